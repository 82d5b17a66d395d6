// Package nats implements the pubsub adapter on top of the nats CLI.
//
// Core NATS subjects are used for plain publish and subscribe; JetStream
// streams back status, purge, persistent publish and consumer reads.
package nats

import (
	"context"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dshills/mqlsp/internal/queue"
)

// Config holds connection settings. Context, when set, selects a saved nats
// CLI context instead of Server.
type Config struct {
	CLI     string
	Server  string
	Context string
}

// DefaultConfig returns settings for a local server.
func DefaultConfig() Config {
	return Config{CLI: "nats", Server: "nats://127.0.0.1:4222"}
}

// Adapter drives NATS and JetStream through the nats CLI.
type Adapter struct {
	cfg    Config
	runner queue.Runner
}

var _ queue.Adapter = (*Adapter)(nil)

// New creates an adapter. A nil runner uses queue.ExecRunner.
func New(cfg Config, runner queue.Runner) *Adapter {
	def := DefaultConfig()
	if cfg.CLI == "" {
		cfg.CLI = def.CLI
	}
	if cfg.Server == "" {
		cfg.Server = def.Server
	}
	if runner == nil {
		runner = queue.ExecRunner{}
	}
	return &Adapter{cfg: cfg, runner: runner}
}

// System implements queue.Adapter.
func (a *Adapter) System() queue.System { return queue.SystemPubSub }

// Metadata implements queue.Adapter.
func (a *Adapter) Metadata() queue.Metadata {
	return queue.Metadata{
		Name:        "NATS JetStream",
		Description: "Subject-based pub/sub with persistent JetStream streams",
		Protocol:    "NATS",
		Tool:        a.cfg.CLI,
		Capabilities: []queue.Capability{
			queue.CapPublish,
			queue.CapSubscribe,
			queue.CapHeaders,
			queue.CapPersistence,
			queue.CapConsumerGroups,
			queue.CapReplay,
			queue.CapPurge,
		},
	}
}

// Detect implements queue.Adapter.
func (a *Adapter) Detect(ctx context.Context) bool {
	_, err := a.Version(ctx)
	return err == nil
}

var versionPattern = regexp.MustCompile(`v?(\d+(?:\.\d+)+\S*)`)

// Version implements queue.Adapter.
func (a *Adapter) Version(ctx context.Context) (string, error) {
	res, err := queue.Invoke(ctx, a.runner, "version", a.cfg.CLI, "--version")
	if err != nil {
		return "", err
	}
	m := versionPattern.FindStringSubmatch(res.Combined())
	if m == nil {
		return "", queue.ParseError("version", "version", res.Combined())
	}
	return m[1], nil
}

var (
	publishedPattern = regexp.MustCompile(`(?i)published\s+\d+\s+bytes`)
	ackPattern       = regexp.MustCompile(`(?i)stream:\s*"?([^\s"]+)"?\s+sequence:\s*(\d+)`)
)

// Publish implements queue.Adapter. Persistent publishes go through
// JetStream and return "<stream>:<sequence>"; core publishes get a
// synthesized ID.
func (a *Adapter) Publish(ctx context.Context, subject string, msg queue.Message, opts queue.PublishOptions) (string, error) {
	body, err := msg.Body()
	if err != nil {
		return "", &queue.Error{Kind: queue.KindParseFailure, Op: "publish", Message: "failed to encode message", Err: err}
	}

	id := queue.NewMessageID()
	args := append(a.connArgs(), "pub", subject, body)
	headers := map[string]string{"Nats-Msg-Id": id}
	for k, v := range opts.Headers {
		headers[k] = v
	}
	if opts.Priority != queue.PriorityNormal {
		headers["priority"] = opts.Priority.String()
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, "-H", k+":"+headers[k])
	}
	if opts.Persistent {
		args = append(args, "--jetstream")
	}

	res, err := queue.Invoke(ctx, a.runner, "publish", a.cfg.CLI, args...)
	if err != nil {
		if isStreamNotFound(queue.OutputOf(err)) {
			return "", queue.NotFoundError("publish", subject, queue.OutputOf(err))
		}
		return "", err
	}

	out := res.Combined()
	if opts.Persistent {
		m := ackPattern.FindStringSubmatch(out)
		if m == nil {
			return "", queue.ParseError("publish", "publish acknowledgement", out)
		}
		return m[1] + ":" + m[2], nil
	}
	if !publishedPattern.MatchString(out) {
		return "", queue.ParseError("publish", "publish confirmation", out)
	}
	return id, nil
}

// DefaultWait bounds a subscription when SubscribeOptions.Block is zero.
const DefaultWait = 2 * time.Second

// Subscribe implements queue.Adapter. A Group names a JetStream consumer on
// the stream called queue; otherwise queue is a subject and a core
// subscription collects up to Count messages. The tool always gets a wait
// bound, and messages that arrived before it or the caller's deadline ran
// out are returned.
func (a *Adapter) Subscribe(ctx context.Context, name string, opts queue.SubscribeOptions) ([]string, error) {
	count := opts.EffectiveCount()
	wait := opts.Block
	if wait <= 0 {
		wait = DefaultWait
	}
	args := a.connArgs()
	if opts.Group != "" {
		args = append(args, "consumer", "next", name, opts.Group, "--count", strconv.Itoa(count), "--raw")
	} else {
		args = append(args, "sub", name, "--count", strconv.Itoa(count), "--raw")
		args = append(args, startArgs(opts.Start)...)
	}
	args = append(args, "--timeout", wait.String())

	res, err := queue.Invoke(ctx, a.runner, "subscribe", a.cfg.CLI, args...)
	if err != nil {
		out := queue.OutputOf(err)
		switch {
		case isStreamNotFound(out) || strings.Contains(strings.ToLower(out), "consumer not found"):
			return nil, queue.NotFoundError("subscribe", name, out)
		case queue.KindOf(err) == queue.KindToolUnavailable && isWaitExpired(out):
			// the tool's own wait ran out; keep what arrived
		case queue.KindOf(err) == queue.KindTimeout:
			// the caller's deadline ran out; keep what arrived
		default:
			return nil, err
		}
	}

	bodies := queue.Lines(res.Stdout)
	if bodies == nil {
		bodies = []string{}
	}
	if len(bodies) > count {
		bodies = bodies[:count]
	}
	return bodies, nil
}

// ListQueues implements queue.Adapter by listing JetStream streams.
func (a *Adapter) ListQueues(ctx context.Context) ([]string, error) {
	args := append(a.connArgs(), "stream", "ls", "--json")
	res, err := queue.Invoke(ctx, a.runner, "list", a.cfg.CLI, args...)
	if err != nil {
		return nil, err
	}

	names := []string{}
	if strings.TrimSpace(res.Stdout) == "null" {
		return names, nil
	}
	payload, ok := queue.JSONPayload(res.Stdout)
	if !ok || !gjson.Valid(payload) || !gjson.Parse(payload).IsArray() {
		return nil, queue.ParseError("list", "stream list", res.Stdout)
	}
	for _, item := range gjson.Parse(payload).Array() {
		var name string
		switch {
		case item.Type == gjson.String:
			name = item.String()
		case item.IsObject():
			name = item.Get("config.name").String()
		}
		if name == "" {
			return nil, queue.ParseError("list", "stream name", res.Stdout)
		}
		names = append(names, name)
	}
	return names, nil
}

// QueueStatus implements queue.Adapter.
func (a *Adapter) QueueStatus(ctx context.Context, stream string) (*queue.QueueInfo, error) {
	args := append(a.connArgs(), "stream", "info", stream, "--json")
	res, err := queue.Invoke(ctx, a.runner, "status", a.cfg.CLI, args...)
	if err != nil {
		if isStreamNotFound(queue.OutputOf(err)) {
			return nil, queue.NotFoundError("status", stream, queue.OutputOf(err))
		}
		return nil, err
	}
	if isStreamNotFound(res.Stdout) {
		return nil, queue.NotFoundError("status", stream, res.Stdout)
	}

	payload, ok := queue.JSONPayload(res.Stdout)
	if !ok || !gjson.Valid(payload) {
		return nil, queue.ParseError("status", "stream info", res.Stdout)
	}
	state := gjson.Get(payload, "state")
	messages := state.Get("messages")
	if !state.Exists() || !messages.Exists() || messages.Int() < 0 {
		return nil, queue.ParseError("status", "stream state", res.Stdout)
	}

	info := &queue.QueueInfo{
		Name:           stream,
		Length:         int(messages.Int()),
		ConsumerGroups: []string{},
	}
	if seq := state.Get("last_seq").Uint(); seq > 0 {
		info.LastID = strconv.FormatUint(seq, 10)
	}

	if state.Get("consumer_count").Int() == 0 {
		return info, nil
	}
	args = append(a.connArgs(), "consumer", "ls", stream, "--names")
	res, err = queue.Invoke(ctx, a.runner, "status", a.cfg.CLI, args...)
	if err != nil {
		return nil, err
	}
	info.ConsumerGroups = append(info.ConsumerGroups, queue.Lines(res.Stdout)...)
	return info, nil
}

// PurgeQueue implements queue.Adapter. A missing stream counts as purged.
func (a *Adapter) PurgeQueue(ctx context.Context, stream string) error {
	args := append(a.connArgs(), "stream", "purge", stream, "--force")
	_, err := queue.Invoke(ctx, a.runner, "purge", a.cfg.CLI, args...)
	if err != nil && isStreamNotFound(queue.OutputOf(err)) {
		return nil
	}
	return err
}

func (a *Adapter) connArgs() []string {
	if a.cfg.Context != "" {
		return []string{"--context", a.cfg.Context}
	}
	return []string{"--server", a.cfg.Server}
}

func startArgs(start string) []string {
	switch start {
	case "":
		return nil
	case "all", "0":
		return []string{"--all"}
	case "last":
		return []string{"--last"}
	case "new", "$":
		return []string{"--new"}
	}
	if _, err := strconv.ParseUint(start, 10, 64); err == nil {
		return []string{"--start-sequence", start}
	}
	return []string{"--since", start}
}

func isStreamNotFound(out string) bool {
	return strings.Contains(strings.ToLower(out), "stream not found")
}

func isWaitExpired(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded")
}
