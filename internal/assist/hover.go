package assist

import (
	"strings"

	"github.com/dshills/mqlsp/internal/queue"
)

var redisDocs = map[string]string{
	"XADD":       "**XADD** key [NOMKSTREAM] [MAXLEN|MINID [=|~] threshold] *|id field value [field value ...]\n\nAppends an entry to a stream, creating the stream if needed. Returns the entry ID.",
	"XREAD":      "**XREAD** [COUNT count] [BLOCK ms] STREAMS key [key ...] id [id ...]\n\nReads entries with IDs greater than the given ones.",
	"XREADGROUP": "**XREADGROUP** GROUP group consumer [COUNT count] [BLOCK ms] [NOACK] STREAMS key [key ...] id [id ...]\n\nReads as a consumer group member. `>` delivers never-delivered entries.",
	"XACK":       "**XACK** key group id [id ...]\n\nRemoves entries from the group's pending entries list.",
	"XGROUP":     "**XGROUP** CREATE|DESTROY|SETID|CREATECONSUMER|DELCONSUMER\n\nManages consumer groups.",
	"XINFO":      "**XINFO** STREAM|GROUPS|CONSUMERS key\n\nReports stream, group and consumer state.",
	"XLEN":       "**XLEN** key\n\nNumber of entries in the stream.",
	"XRANGE":     "**XRANGE** key start end [COUNT count]\n\nEntries between two IDs, inclusive. `-` and `+` are the extremes.",
	"XTRIM":      "**XTRIM** key MAXLEN|MINID [=|~] threshold\n\nEvicts older entries.",
	"XPENDING":   "**XPENDING** key group [[IDLE min-idle] start end count [consumer]]\n\nInspects delivered but unacknowledged entries.",
	"XCLAIM":     "**XCLAIM** key group consumer min-idle-time id [id ...]\n\nTransfers ownership of pending entries.",
	"MAXLEN":     "**MAXLEN** threshold\n\nCaps the stream length. `~` allows approximate trimming.",
	"COUNT":      "**COUNT** n\n\nMaximum number of entries returned.",
	"BLOCK":      "**BLOCK** milliseconds\n\nWaits for new entries; 0 blocks forever.",
	"STREAMS":    "**STREAMS** key [key ...] id [id ...]\n\nMust be the last option.",
	"NOACK":      "**NOACK**\n\nEntries are not added to the pending entries list.",
}

var rabbitDocs = map[string]string{
	"durable":                "**durable**\n\nThe queue or exchange survives a broker restart.",
	"auto_delete":            "**auto_delete**\n\nDeleted once the last consumer unsubscribes.",
	"exclusive":              "**exclusive**\n\nUsed by one connection and deleted when it closes.",
	"direct":                 "**direct** exchange\n\nRoutes to queues whose binding key equals the routing key.",
	"fanout":                 "**fanout** exchange\n\nRoutes to every bound queue, ignoring the routing key.",
	"topic":                  "**topic** exchange\n\nRoutes by pattern: `*` matches one word, `#` zero or more.",
	"headers":                "**headers** exchange\n\nRoutes by header values; `x-match` selects all or any.",
	"x-queue-type":           "**x-queue-type**\n\n`classic`, `quorum` or `stream`.",
	"x-message-ttl":          "**x-message-ttl**\n\nMessage time-to-live in milliseconds.",
	"x-dead-letter-exchange": "**x-dead-letter-exchange**\n\nExchange that receives rejected or expired messages.",
	"x-max-length":           "**x-max-length**\n\nMaximum number of ready messages.",
	"quorum":                 "**quorum** queue\n\nReplicated, Raft-based durable queue.",
	"vhost":                  "**vhost**\n\nVirtual host; isolates exchanges, queues and permissions.",
	"default_user":           "**default_user**\n\nUser created on first boot.",
	"loopback_users":         "**loopback_users**\n\nUsers allowed to connect only from localhost.",
	"listeners":              "**listeners.tcp.default**\n\nAMQP listener port, 5672 by default.",
}

var natsDocs = map[string]string{
	"jetstream":        "**jetstream**\n\nEnables the JetStream persistence layer.",
	"store_dir":        "**store_dir**\n\nDirectory for JetStream file storage.",
	"max_memory_store": "**max_memory_store**\n\nLimit for memory-backed streams.",
	"max_file_store":   "**max_file_store**\n\nLimit for file-backed streams.",
	"port":             "**port**\n\nClient port, 4222 by default.",
	"listen":           "**listen**\n\n`host:port` for client connections.",
	"cluster":          "**cluster**\n\nRoute configuration for clustering servers.",
	"leafnodes":        "**leafnodes**\n\nLeaf node connections that extend a cluster.",
	"authorization":    "**authorization**\n\nUsers, tokens and permissions.",
	"subjects":         "**subjects**\n\nSubjects captured by a stream. Wildcards `*` and `>` are allowed.",
	"retention":        "**retention**\n\n`limits`, `interest` or `workqueue`.",
	"max_age":          "**max_age**\n\nMaximum message age.",
	"durable_name":     "**durable_name**\n\nName that makes a consumer survive restarts.",
	"ack_policy":       "**ack_policy**\n\n`none`, `all` or `explicit`.",
	"deliver_policy":   "**deliver_policy**\n\n`all`, `last`, `new`, `by_start_sequence` or `by_start_time`.",
	"filter_subject":   "**filter_subject**\n\nConsumer reads only matching subjects.",
}

var genericDocs = map[string]string{
	"publish":   "**publish**\n\nSend a message to a queue, stream or subject.",
	"subscribe": "**subscribe**\n\nRegister interest in messages.",
	"consume":   "**consume**\n\nReceive and process messages.",
	"ack":       "**ack**\n\nConfirm a message was processed.",
	"nack":      "**nack**\n\nReject a message, optionally requeueing it.",
}

// Hover returns markdown documentation for word. Redis commands match
// case-insensitively; other vocabularies are case-sensitive.
func Hover(system queue.System, word string) (string, bool) {
	if word == "" {
		return "", false
	}
	var doc string
	var ok bool
	switch system {
	case queue.SystemStreamStore:
		doc, ok = redisDocs[strings.ToUpper(word)]
	case queue.SystemBroker:
		doc, ok = rabbitDocs[word]
	case queue.SystemPubSub:
		doc, ok = natsDocs[word]
	case queue.SystemNone:
		doc, ok = genericDocs[word]
	}
	return doc, ok
}
