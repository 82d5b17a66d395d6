// Package redis implements the stream-store adapter on top of redis-cli.
//
// Streams are addressed by key. Commands that return nested replies are run
// with --json; the rest use redis-cli's raw, one-value-per-line output.
package redis

import (
	"context"
	"encoding/json"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dshills/mqlsp/internal/queue"
)

// Config holds connection settings.
type Config struct {
	CLI  string
	Host string
	Port int
	DB   int
}

// DefaultConfig returns settings for a local server.
func DefaultConfig() Config {
	return Config{CLI: "redis-cli", Host: "127.0.0.1", Port: 6379}
}

// Adapter drives Redis Streams through redis-cli.
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
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if runner == nil {
		runner = queue.ExecRunner{}
	}
	return &Adapter{cfg: cfg, runner: runner}
}

// System implements queue.Adapter.
func (a *Adapter) System() queue.System { return queue.SystemStreamStore }

// Metadata implements queue.Adapter.
func (a *Adapter) Metadata() queue.Metadata {
	return queue.Metadata{
		Name:        "Redis Streams",
		Description: "Append-only stream log with consumer groups",
		Protocol:    "RESP",
		Tool:        a.cfg.CLI,
		Capabilities: []queue.Capability{
			queue.CapPublish,
			queue.CapSubscribe,
			queue.CapConsumerGroups,
			queue.CapPersistence,
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

// Version implements queue.Adapter.
func (a *Adapter) Version(ctx context.Context) (string, error) {
	res, err := queue.Invoke(ctx, a.runner, "version", a.cfg.CLI, "--version")
	if err != nil {
		return "", err
	}
	fields := strings.Fields(res.Stdout)
	if len(fields) < 2 || fields[0] != "redis-cli" {
		return "", queue.ParseError("version", "version", res.Combined())
	}
	return fields[1], nil
}

// Publish implements queue.Adapter using XADD.
func (a *Adapter) Publish(ctx context.Context, stream string, msg queue.Message, opts queue.PublishOptions) (string, error) {
	args := []string{"XADD", stream}
	if opts.MaxLen > 0 {
		args = append(args, "MAXLEN", "~", strconv.Itoa(opts.MaxLen))
	}
	args = append(args, "*")

	fields, err := encodeFields(msg)
	if err != nil {
		return "", &queue.Error{Kind: queue.KindParseFailure, Op: "publish", Message: "failed to encode message", Err: err}
	}
	args = append(args, fields...)
	if opts.Priority != queue.PriorityNormal {
		args = append(args, "priority", opts.Priority.String())
	}
	for _, k := range sortedKeys(opts.Headers) {
		args = append(args, "header:"+k, opts.Headers[k])
	}

	out, err := a.command(ctx, "publish", stream, args...)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(out)
	if !streamID.MatchString(id) {
		return "", queue.ParseError("publish", "message id", out)
	}
	return id, nil
}

// Subscribe implements queue.Adapter using XREAD or XREADGROUP. A durable
// group read creates the group at "$" first, so a new group starts with
// entries added after it; a non-durable read of a missing group is NotFound.
func (a *Adapter) Subscribe(ctx context.Context, stream string, opts queue.SubscribeOptions) ([]string, error) {
	var args []string
	if opts.Group != "" {
		if opts.Durable {
			if err := a.ensureGroup(ctx, stream, opts.Group); err != nil {
				return nil, err
			}
		}
		consumer := opts.Consumer
		if consumer == "" {
			consumer = "mqlsp"
		}
		args = []string{"XREADGROUP", "GROUP", opts.Group, consumer}
		args = append(args, readOptions(opts)...)
		if !opts.Durable {
			args = append(args, "NOACK")
		}
		start := opts.Start
		if start == "" {
			start = ">"
		}
		args = append(args, "STREAMS", stream, start)
	} else {
		args = append([]string{"XREAD"}, readOptions(opts)...)
		start := opts.Start
		if start == "" {
			start = "0"
		}
		args = append(args, "STREAMS", stream, start)
	}

	out, err := a.jsonCommand(ctx, "subscribe", stream, args...)
	if err != nil {
		return nil, err
	}
	return parseReadReply(out, opts.EffectiveCount())
}

// ListQueues implements queue.Adapter.
func (a *Adapter) ListQueues(ctx context.Context) ([]string, error) {
	args := append(a.connArgs(), "--scan", "--type", "stream")
	res, err := queue.Invoke(ctx, a.runner, "list", a.cfg.CLI, args...)
	if err != nil {
		return nil, err
	}
	if e := replyError("list", "", res.Stdout); e != nil {
		return nil, e
	}
	names := queue.Lines(res.Stdout)
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// QueueStatus implements queue.Adapter using XINFO.
func (a *Adapter) QueueStatus(ctx context.Context, stream string) (*queue.QueueInfo, error) {
	out, err := a.command(ctx, "status", stream, "XINFO", "STREAM", stream)
	if err != nil {
		return nil, err
	}
	info, err := parseStreamInfo(stream, out)
	if err != nil {
		return nil, err
	}

	groupsOut, err := a.command(ctx, "status", stream, "XINFO", "GROUPS", stream)
	if err != nil {
		return nil, err
	}
	info.ConsumerGroups = parseGroupNames(groupsOut)
	return info, nil
}

// PurgeQueue implements queue.Adapter. XTRIM on a missing key is a no-op.
func (a *Adapter) PurgeQueue(ctx context.Context, stream string) error {
	_, err := a.command(ctx, "purge", stream, "XTRIM", stream, "MAXLEN", "0")
	return err
}

func (a *Adapter) ensureGroup(ctx context.Context, stream, group string) error {
	_, err := a.command(ctx, "subscribe", stream, "XGROUP", "CREATE", stream, group, "$", "MKSTREAM")
	if err != nil && strings.Contains(queue.OutputOf(err), "BUSYGROUP") {
		return nil
	}
	return err
}

func (a *Adapter) connArgs() []string {
	args := []string{"-h", a.cfg.Host, "-p", strconv.Itoa(a.cfg.Port)}
	if a.cfg.DB != 0 {
		args = append(args, "-n", strconv.Itoa(a.cfg.DB))
	}
	return args
}

// command runs a server command in raw mode and checks for error replies.
func (a *Adapter) command(ctx context.Context, op, stream string, cmd ...string) (string, error) {
	args := append(a.connArgs(), cmd...)
	res, err := queue.Invoke(ctx, a.runner, op, a.cfg.CLI, args...)
	if err != nil {
		if isNoSuchKey(queue.OutputOf(err)) {
			return "", queue.NotFoundError(op, stream, queue.OutputOf(err))
		}
		return "", err
	}
	if e := replyError(op, stream, res.Stdout); e != nil {
		return "", e
	}
	return res.Stdout, nil
}

func (a *Adapter) jsonCommand(ctx context.Context, op, stream string, cmd ...string) (string, error) {
	return a.command(ctx, op, stream, append([]string{"--json"}, cmd...)...)
}

func readOptions(opts queue.SubscribeOptions) []string {
	args := []string{"COUNT", strconv.Itoa(opts.EffectiveCount())}
	if opts.Block > 0 {
		args = append(args, "BLOCK", strconv.FormatInt(opts.Block.Milliseconds(), 10))
	}
	return args
}

var (
	streamID   = regexp.MustCompile(`^\d+-\d+$`)
	errorReply = regexp.MustCompile(`^(ERR|WRONGTYPE|NOGROUP|BUSYGROUP|NOAUTH|NOPERM|LOADING|READONLY|MOVED|MASTERDOWN)\b`)
)

// replyError turns a Redis error reply printed with a zero exit status into
// a typed failure.
func replyError(op, stream, out string) error {
	first := strings.TrimSpace(out)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	first = strings.Trim(strings.TrimPrefix(first, "(error) "), `"`)
	if !errorReply.MatchString(first) {
		return nil
	}
	if isNoSuchKey(first) || strings.HasPrefix(first, "NOGROUP") {
		return queue.NotFoundError(op, stream, out)
	}
	return &queue.Error{Kind: queue.KindToolUnavailable, Op: op, Message: first, Output: out}
}

func isNoSuchKey(out string) bool {
	return strings.Contains(strings.ToLower(out), "no such key")
}

// encodeFields flattens a message into XADD field/value pairs.
func encodeFields(msg queue.Message) ([]string, error) {
	if !msg.IsRecord() {
		return []string{"data", msg.Text}, nil
	}
	if len(msg.Fields) == 0 {
		return []string{"data", "{}"}, nil
	}
	var out []string
	for _, k := range sortedKeys(msg.Fields) {
		switch v := msg.Fields[k].(type) {
		case string:
			out = append(out, k, v)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			out = append(out, k, string(data))
		}
	}
	return out, nil
}

// parseReadReply decodes an XREAD/XREADGROUP --json reply. The reply is an
// array of [stream, entries] pairs, or an object keyed by stream under
// RESP3; an empty or null reply means no messages.
func parseReadReply(out string, limit int) ([]string, error) {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" || trimmed == "null" || trimmed == "(nil)" {
		return []string{}, nil
	}
	if !gjson.Valid(trimmed) {
		return nil, queue.ParseError("subscribe", "stream entries", out)
	}

	var entries []gjson.Result
	root := gjson.Parse(trimmed)
	switch {
	case root.IsArray():
		for _, pair := range root.Array() {
			if !pair.IsArray() || len(pair.Array()) != 2 {
				return nil, queue.ParseError("subscribe", "stream entries", out)
			}
			entries = append(entries, pair.Array()[1].Array()...)
		}
	case root.IsObject():
		root.ForEach(func(_, v gjson.Result) bool {
			entries = append(entries, v.Array()...)
			return true
		})
	default:
		return nil, queue.ParseError("subscribe", "stream entries", out)
	}

	bodies := make([]string, 0, len(entries))
	for _, entry := range entries {
		parts := entry.Array()
		if len(parts) != 2 || !parts[1].IsArray() {
			return nil, queue.ParseError("subscribe", "stream entry", out)
		}
		bodies = append(bodies, entryBody(parts[1].Array()))
		if len(bodies) == limit {
			break
		}
	}
	return bodies, nil
}

func entryBody(kv []gjson.Result) string {
	if len(kv) == 2 && kv[0].String() == "data" {
		return kv[1].String()
	}
	fields := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i].String()] = kv[i+1].String()
	}
	data, _ := json.Marshal(fields)
	return string(data)
}

// parseStreamInfo reads XINFO STREAM raw output: alternating key and value
// lines.
func parseStreamInfo(stream, out string) (*queue.QueueInfo, error) {
	lines := queue.Lines(out)
	info := &queue.QueueInfo{Name: stream, ConsumerGroups: []string{}}
	haveLength := false
	for i := 0; i+1 < len(lines); i++ {
		switch lines[i] {
		case "length":
			if haveLength {
				continue
			}
			n, err := strconv.Atoi(lines[i+1])
			if err != nil || n < 0 {
				return nil, queue.ParseError("status", "stream length", out)
			}
			info.Length = n
			haveLength = true
		case "last-generated-id":
			if info.LastID == "" {
				info.LastID = lines[i+1]
			}
		}
	}
	if !haveLength {
		return nil, queue.ParseError("status", "stream length", out)
	}
	return info, nil
}

func parseGroupNames(out string) []string {
	lines := queue.Lines(out)
	groups := []string{}
	for i := 0; i+1 < len(lines); i++ {
		if lines[i] == "name" {
			groups = append(groups, lines[i+1])
			i++
		}
	}
	return groups
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
