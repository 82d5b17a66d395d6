// Package rabbitmq implements the broker adapter using rabbitmqctl for
// administration and rabbitmqadmin for message traffic.
package rabbitmq

import (
	"context"
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/mqlsp/internal/queue"
)

// Config holds connection settings. Port is the management API port used by
// rabbitmqadmin.
type Config struct {
	Ctl   string
	Admin string
	Host  string
	Port  int
	VHost string
	Node  string
}

// DefaultConfig returns settings for a local broker.
func DefaultConfig() Config {
	return Config{
		Ctl:   "rabbitmqctl",
		Admin: "rabbitmqadmin",
		Host:  "127.0.0.1",
		Port:  15672,
		VHost: "/",
	}
}

// Adapter drives RabbitMQ through its command-line tools.
type Adapter struct {
	cfg    Config
	runner queue.Runner
}

var _ queue.Adapter = (*Adapter)(nil)

// New creates an adapter. A nil runner uses queue.ExecRunner.
func New(cfg Config, runner queue.Runner) *Adapter {
	def := DefaultConfig()
	if cfg.Ctl == "" {
		cfg.Ctl = def.Ctl
	}
	if cfg.Admin == "" {
		cfg.Admin = def.Admin
	}
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.VHost == "" {
		cfg.VHost = def.VHost
	}
	if runner == nil {
		runner = queue.ExecRunner{}
	}
	return &Adapter{cfg: cfg, runner: runner}
}

// System implements queue.Adapter.
func (a *Adapter) System() queue.System { return queue.SystemBroker }

// Metadata implements queue.Adapter.
func (a *Adapter) Metadata() queue.Metadata {
	return queue.Metadata{
		Name:        "RabbitMQ",
		Description: "AMQP broker with exchanges, bindings and queues",
		Protocol:    "AMQP 0-9-1",
		Tool:        a.cfg.Ctl,
		Capabilities: []queue.Capability{
			queue.CapPublish,
			queue.CapSubscribe,
			queue.CapRouting,
			queue.CapPriority,
			queue.CapHeaders,
			queue.CapPersistence,
			queue.CapPurge,
		},
	}
}

// Detect implements queue.Adapter.
func (a *Adapter) Detect(ctx context.Context) bool {
	_, err := a.Version(ctx)
	return err == nil
}

var versionPattern = regexp.MustCompile(`^\d+(\.\d+)+\S*$`)

// Version implements queue.Adapter.
func (a *Adapter) Version(ctx context.Context) (string, error) {
	res, err := queue.Invoke(ctx, a.runner, "version", a.cfg.Ctl, a.ctlArgs("version")...)
	if err != nil {
		return "", err
	}
	for _, line := range queue.Lines(res.Stdout) {
		if versionPattern.MatchString(line) {
			return line, nil
		}
	}
	return "", queue.ParseError("version", "version", res.Combined())
}

// Publish implements queue.Adapter. rabbitmqadmin does not report an ID, so
// one is synthesized and attached as the message_id property.
func (a *Adapter) Publish(ctx context.Context, name string, msg queue.Message, opts queue.PublishOptions) (string, error) {
	body, err := msg.Body()
	if err != nil {
		return "", &queue.Error{Kind: queue.KindParseFailure, Op: "publish", Message: "failed to encode message", Err: err}
	}

	exchange := opts.Exchange
	if exchange == "" {
		exchange = "amq.default"
	}
	routingKey := opts.RoutingKey
	if routingKey == "" {
		routingKey = name
	}

	id := queue.NewMessageID()
	props, err := publishProperties(id, msg, opts)
	if err != nil {
		return "", &queue.Error{Kind: queue.KindParseFailure, Op: "publish", Message: "failed to encode properties", Err: err}
	}

	args := append(a.adminArgs(),
		"publish",
		"exchange="+exchange,
		"routing_key="+routingKey,
		"payload="+body,
		"properties="+props,
	)
	res, err := queue.Invoke(ctx, a.runner, "publish", a.cfg.Admin, args...)
	if err != nil {
		return "", err
	}

	out := res.Combined()
	switch {
	case strings.Contains(out, "NOT routed"):
		return "", queue.NotFoundError("publish", routingKey, out)
	case strings.Contains(out, "Message published"):
		return id, nil
	}
	return "", queue.ParseError("publish", "publish confirmation", out)
}

// publishProperties builds the basic properties document passed to
// rabbitmqadmin.
func publishProperties(id string, msg queue.Message, opts queue.PublishOptions) (string, error) {
	props, err := sjson.Set("{}", "message_id", id)
	if err != nil {
		return "", err
	}
	if props, err = sjson.Set(props, "priority", priorityValue(opts.Priority)); err != nil {
		return "", err
	}
	if opts.Persistent {
		if props, err = sjson.Set(props, "delivery_mode", 2); err != nil {
			return "", err
		}
	}
	if msg.IsRecord() {
		if props, err = sjson.Set(props, "content_type", "application/json"); err != nil {
			return "", err
		}
	}
	if len(opts.Headers) > 0 {
		if props, err = sjson.Set(props, "headers", opts.Headers); err != nil {
			return "", err
		}
	}
	return props, nil
}

// Subscribe implements queue.Adapter with basic.get. The broker has no
// consumer-group or blocking semantics for get, so Group, Consumer and
// Block are ignored. Start "peek" requeues the fetched messages unless the
// read is Durable, which always consumes.
func (a *Adapter) Subscribe(ctx context.Context, name string, opts queue.SubscribeOptions) ([]string, error) {
	ackmode := "ack_requeue_false"
	if opts.Start == "peek" && !opts.Durable {
		ackmode = "ack_requeue_true"
	}
	args := append(a.adminArgs(),
		"-f", "raw_json",
		"get",
		"queue="+name,
		"count="+strconv.Itoa(opts.EffectiveCount()),
		"ackmode="+ackmode,
	)
	res, err := queue.Invoke(ctx, a.runner, "subscribe", a.cfg.Admin, args...)
	if err != nil {
		if isNotFound(queue.OutputOf(err)) {
			return nil, queue.NotFoundError("subscribe", name, queue.OutputOf(err))
		}
		return nil, err
	}
	return parseGetReply(res.Stdout)
}

// ListQueues implements queue.Adapter.
func (a *Adapter) ListQueues(ctx context.Context) ([]string, error) {
	args := a.ctlArgs("list_queues", "-p", a.cfg.VHost, "name", "--formatter", "json")
	res, err := queue.Invoke(ctx, a.runner, "list", a.cfg.Ctl, args...)
	if err != nil {
		return nil, err
	}
	payload, ok := queue.JSONPayload(res.Stdout)
	if !ok || !gjson.Valid(payload) || !gjson.Parse(payload).IsArray() {
		return nil, queue.ParseError("list", "queue list", res.Stdout)
	}

	names := []string{}
	for _, row := range gjson.Parse(payload).Array() {
		name := row.Get("name")
		if !name.Exists() {
			return nil, queue.ParseError("list", "queue name", res.Stdout)
		}
		names = append(names, name.String())
	}
	return names, nil
}

// QueueStatus implements queue.Adapter. ConsumerGroups holds the consumer
// tags attached to the queue, the closest broker analogue of a named group.
func (a *Adapter) QueueStatus(ctx context.Context, name string) (*queue.QueueInfo, error) {
	args := a.ctlArgs("list_queues", "-p", a.cfg.VHost, "--no-table-headers", "name", "messages", "consumers")
	res, err := queue.Invoke(ctx, a.runner, "status", a.cfg.Ctl, args...)
	if err != nil {
		return nil, err
	}

	info, consumers, err := findQueueRow(name, res.Stdout)
	if err != nil {
		return nil, err
	}

	info.ConsumerGroups = []string{}
	if consumers == 0 {
		return info, nil
	}

	args = a.ctlArgs("list_consumers", "-p", a.cfg.VHost, "--no-table-headers", "queue_name", "consumer_tag")
	res, err = queue.Invoke(ctx, a.runner, "status", a.cfg.Ctl, args...)
	if err != nil {
		return nil, err
	}
	for _, line := range queue.Lines(res.Stdout) {
		cols := strings.Split(line, "\t")
		if len(cols) >= 2 && cols[0] == name {
			info.ConsumerGroups = append(info.ConsumerGroups, cols[1])
		}
	}
	return info, nil
}

// PurgeQueue implements queue.Adapter. A missing queue counts as purged.
func (a *Adapter) PurgeQueue(ctx context.Context, name string) error {
	_, err := queue.Invoke(ctx, a.runner, "purge", a.cfg.Ctl, a.ctlArgs("purge_queue", "-p", a.cfg.VHost, name)...)
	if err != nil && isNotFound(queue.OutputOf(err)) {
		return nil
	}
	return err
}

func (a *Adapter) ctlArgs(cmd string, rest ...string) []string {
	var args []string
	if a.cfg.Node != "" {
		args = append(args, "-n", a.cfg.Node)
	}
	args = append(args, "-q", cmd)
	return append(args, rest...)
}

func (a *Adapter) adminArgs() []string {
	return []string{"-H", a.cfg.Host, "-P", strconv.Itoa(a.cfg.Port), "-V", a.cfg.VHost}
}

func priorityValue(p queue.Priority) int {
	switch p {
	case queue.PriorityLow:
		return 1
	case queue.PriorityHigh:
		return 9
	default:
		return 5
	}
}

func isNotFound(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "not_found") || strings.Contains(lower, "no queue")
}

// parseGetReply decodes rabbitmqadmin raw_json get output: an array of
// objects carrying payload and payload_encoding.
func parseGetReply(out string) ([]string, error) {
	payload, ok := queue.JSONPayload(out)
	if !ok || !gjson.Valid(payload) {
		return nil, queue.ParseError("subscribe", "messages", out)
	}
	root := gjson.Parse(payload)
	if !root.IsArray() {
		return nil, queue.ParseError("subscribe", "messages", out)
	}

	bodies := []string{}
	for _, m := range root.Array() {
		p := m.Get("payload")
		if !p.Exists() {
			return nil, queue.ParseError("subscribe", "message payload", out)
		}
		body := p.String()
		if m.Get("payload_encoding").String() == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(body)
			if err != nil {
				return nil, queue.ParseError("subscribe", "message payload", out)
			}
			body = string(decoded)
		}
		bodies = append(bodies, body)
	}
	return bodies, nil
}

// findQueueRow scans tab-separated name/messages/consumers rows.
func findQueueRow(name, out string) (*queue.QueueInfo, int, error) {
	for _, line := range queue.Lines(out) {
		cols := strings.Split(line, "\t")
		if cols[0] != name {
			continue
		}
		if len(cols) < 3 {
			return nil, 0, queue.ParseError("status", "queue row", out)
		}
		length, err := strconv.Atoi(strings.TrimSpace(cols[1]))
		if err != nil || length < 0 {
			return nil, 0, queue.ParseError("status", "message count", out)
		}
		consumers, err := strconv.Atoi(strings.TrimSpace(cols[2]))
		if err != nil {
			return nil, 0, queue.ParseError("status", "consumer count", out)
		}
		return &queue.QueueInfo{Name: name, Length: length}, consumers, nil
	}
	return nil, 0, queue.NotFoundError("status", name, out)
}
