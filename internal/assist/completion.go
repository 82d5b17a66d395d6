package assist

import (
	"path"
	"strings"

	"github.com/dshills/mqlsp/internal/queue"
)

// ItemKind is the presentation kind of a completion item.
type ItemKind string

const (
	KindFunction ItemKind = "function"
	KindField    ItemKind = "field"
	KindKeyword  ItemKind = "keyword"
	KindEnum     ItemKind = "enum"
	KindValue    ItemKind = "value"
	KindText     ItemKind = "text"
)

// CompletionItem is one suggestion.
type CompletionItem struct {
	Label      string
	Kind       ItemKind
	Detail     string
	InsertText string
}

type candidate struct {
	label  string
	detail string
	insert string
}

type row struct {
	kind  ItemKind
	items []candidate
}

func (r row) build() []CompletionItem {
	out := make([]CompletionItem, 0, len(r.items))
	for _, c := range r.items {
		insert := c.insert
		if insert == "" {
			insert = c.label
		}
		out = append(out, CompletionItem{Label: c.label, Kind: r.kind, Detail: c.detail, InsertText: insert})
	}
	return out
}

var redisRows = map[Trigger]row{
	TriggerStreamAppendKey: {KindKeyword, []candidate{
		{label: "STREAMS", detail: "Stream keys and IDs follow"},
		{label: "COUNT", detail: "Maximum entries to return"},
		{label: "BLOCK", detail: "Block for milliseconds"},
		{label: "MAXLEN", detail: "Cap stream length"},
	}},
	TriggerStreamReadOptions: {KindKeyword, []candidate{
		{label: "COUNT", detail: "Maximum entries to return"},
		{label: "BLOCK", detail: "Block for milliseconds"},
		{label: "NOACK", detail: "Skip the pending entries list"},
		{label: "STREAMS", detail: "Stream keys and IDs follow"},
		{label: "GROUP", detail: "Consumer group and consumer name"},
	}},
	TriggerNone: {KindFunction, []candidate{
		{label: "XADD", detail: "Append an entry to a stream", insert: "XADD "},
		{label: "XREAD", detail: "Read entries from streams", insert: "XREAD "},
		{label: "XREADGROUP", detail: "Read entries as a group consumer", insert: "XREADGROUP GROUP "},
		{label: "XACK", detail: "Acknowledge processed entries", insert: "XACK "},
		{label: "XGROUP", detail: "Manage consumer groups", insert: "XGROUP "},
		{label: "XINFO", detail: "Inspect streams and groups", insert: "XINFO "},
		{label: "XLEN", detail: "Number of entries in a stream", insert: "XLEN "},
		{label: "XRANGE", detail: "Entries in an ID range", insert: "XRANGE "},
		{label: "XTRIM", detail: "Trim a stream", insert: "XTRIM "},
		{label: "XPENDING", detail: "Inspect pending entries", insert: "XPENDING "},
		{label: "XCLAIM", detail: "Take ownership of pending entries", insert: "XCLAIM "},
	}},
}

var rabbitRows = map[Trigger]row{
	TriggerExchangeType: {KindEnum, []candidate{
		{label: "direct", detail: "Route by exact routing key"},
		{label: "fanout", detail: "Route to every bound queue"},
		{label: "topic", detail: "Route by routing key pattern"},
		{label: "headers", detail: "Route by message headers"},
	}},
	TriggerQueueType: {KindValue, []candidate{
		{label: "classic", detail: "Classic mirrored-capable queue"},
		{label: "quorum", detail: "Replicated Raft-based queue"},
		{label: "stream", detail: "Append-only replicated log"},
	}},
}

var rabbitConfKeys = row{KindField, []candidate{
	{label: "listeners.tcp.default", insert: "listeners.tcp.default = 5672"},
	{label: "default_user", insert: "default_user = "},
	{label: "default_pass", insert: "default_pass = "},
	{label: "default_vhost", insert: "default_vhost = /"},
	{label: "loopback_users.guest", insert: "loopback_users.guest = true"},
	{label: "vm_memory_high_watermark.relative", insert: "vm_memory_high_watermark.relative = 0.4"},
	{label: "disk_free_limit.absolute", insert: "disk_free_limit.absolute = 2GB"},
	{label: "management.tcp.port", insert: "management.tcp.port = 15672"},
	{label: "log.console.level", insert: "log.console.level = info"},
	{label: "cluster_formation.peer_discovery_backend", insert: "cluster_formation.peer_discovery_backend = classic_config"},
}}

var rabbitDefinitionFields = row{KindField, []candidate{
	{label: "durable", detail: "Survive broker restart"},
	{label: "auto_delete", detail: "Delete when last consumer leaves"},
	{label: "exclusive", detail: "Owned by one connection"},
	{label: "arguments", detail: "Optional x- arguments"},
	{label: "x-queue-type", detail: "classic, quorum or stream"},
	{label: "x-message-ttl", detail: "Per-queue message TTL in ms"},
	{label: "x-dead-letter-exchange", detail: "Exchange for rejected messages"},
	{label: "x-max-length", detail: "Maximum ready messages"},
	{label: "vhost", detail: "Virtual host"},
	{label: "routing_key", detail: "Binding routing key"},
}}

var natsRows = map[Trigger]row{
	TriggerSubject: {KindValue, []candidate{
		{label: "*", detail: "Match exactly one token"},
		{label: ">", detail: "Match one or more trailing tokens"},
		{label: "$JS.API.>", detail: "JetStream API subjects"},
		{label: "_INBOX.>", detail: "Reply inbox subjects"},
	}},
}

var natsServerKeys = row{KindField, []candidate{
	{label: "port", insert: "port: 4222"},
	{label: "host", insert: "host: 0.0.0.0"},
	{label: "listen", insert: "listen: 0.0.0.0:4222"},
	{label: "server_name", insert: "server_name: "},
	{label: "jetstream", insert: "jetstream {\n  store_dir: \n}"},
	{label: "store_dir", insert: "store_dir: "},
	{label: "max_memory_store", insert: "max_memory_store: 1GB"},
	{label: "max_file_store", insert: "max_file_store: 10GB"},
	{label: "cluster", insert: "cluster {\n  listen: 0.0.0.0:6222\n}"},
	{label: "authorization", insert: "authorization {\n  token: \n}"},
	{label: "accounts", insert: "accounts {\n}"},
	{label: "leafnodes", insert: "leafnodes {\n}"},
	{label: "max_payload", insert: "max_payload: 1MB"},
}}

var natsStreamFields = row{KindField, []candidate{
	{label: "name", detail: "Stream name"},
	{label: "subjects", detail: "Subjects captured by the stream"},
	{label: "retention", detail: "limits, interest or workqueue"},
	{label: "storage", detail: "file or memory"},
	{label: "max_msgs", detail: "Message count limit"},
	{label: "max_bytes", detail: "Size limit"},
	{label: "max_age", detail: "Age limit in nanoseconds"},
	{label: "num_replicas", detail: "Replica count"},
	{label: "discard", detail: "old or new"},
	{label: "duplicate_window", detail: "Deduplication window"},
}}

var genericRow = row{KindFunction, []candidate{
	{label: "publish", detail: "Send a message"},
	{label: "subscribe", detail: "Receive messages"},
	{label: "consume", detail: "Process messages from a queue"},
	{label: "ack", detail: "Acknowledge a message"},
	{label: "nack", detail: "Reject a message"},
}}

// Complete returns suggestions for the active system. kind is a document
// hint such as a file name or extension. Adapter-specific tables never fall
// through to the generic list; only SystemNone gets it.
func Complete(system queue.System, ctx CursorContext, kind string) []CompletionItem {
	switch system {
	case queue.SystemStreamStore:
		if r, ok := redisRows[ctx.Trigger]; ok {
			return r.build()
		}
	case queue.SystemBroker:
		if r, ok := rabbitRows[ctx.Trigger]; ok {
			return r.build()
		}
		if ctx.Trigger == TriggerNone {
			if isJSONKind(kind) {
				return rabbitDefinitionFields.build()
			}
			return rabbitConfKeys.build()
		}
	case queue.SystemPubSub:
		if r, ok := natsRows[ctx.Trigger]; ok {
			return r.build()
		}
		if ctx.Trigger == TriggerNone {
			if isJSONKind(kind) {
				return natsStreamFields.build()
			}
			return natsServerKeys.build()
		}
	case queue.SystemNone:
		return genericRow.build()
	}
	return []CompletionItem{}
}

// KindHint derives the document hint passed to Complete from a path.
func KindHint(p string) string {
	base := strings.ToLower(path.Base(strings.ReplaceAll(p, "\\", "/")))
	if ext := path.Ext(base); ext != "" {
		return ext
	}
	return base
}

func isJSONKind(kind string) bool {
	return kind == ".json" || kind == ".yaml" || kind == ".yml"
}
