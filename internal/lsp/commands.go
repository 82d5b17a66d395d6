package lsp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dshills/mqlsp/internal/logging"
	"github.com/dshills/mqlsp/internal/queue"
)

// Commands accepted by workspace/executeCommand.
const (
	CommandValidate       = "validate"
	CommandTestConnection = "test-connection"
	CommandListQueues     = "list-queues"
	CommandQueueStatus    = "queue-status"
	CommandPurgeQueue     = "purge-queue"
	CommandPublish        = "publish"
	CommandSubscribe      = "subscribe"
)

// CommandNames returns the advertised command list.
func CommandNames() []string {
	return []string{
		CommandValidate,
		CommandTestConnection,
		CommandListQueues,
		CommandQueueStatus,
		CommandPurgeQueue,
		CommandPublish,
		CommandSubscribe,
	}
}

// ValidateResult is the validate outcome for one document.
type ValidateResult struct {
	URI         DocumentURI  `json:"uri"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// ConnectionResult reports a successful connection test.
type ConnectionResult struct {
	System  string `json:"system"`
	Tool    string `json:"tool"`
	Version string `json:"version"`
	Queues  int    `json:"queues"`
}

// PublishResult carries the published message identifier.
type PublishResult struct {
	ID string `json:"id"`
}

// SubscribeResult carries consumed message bodies.
type SubscribeResult struct {
	Messages []string `json:"messages"`
}

// PurgeResult confirms a purge.
type PurgeResult struct {
	Queue  string `json:"queue"`
	Purged bool   `json:"purged"`
}

type publishArgs struct {
	Exchange   string            `json:"exchange"`
	RoutingKey string            `json:"routingKey"`
	Priority   string            `json:"priority"`
	Persistent bool              `json:"persistent"`
	Headers    map[string]string `json:"headers"`
	MaxLen     int               `json:"maxLen"`
}

type subscribeArgs struct {
	Group    string `json:"group"`
	Consumer string `json:"consumer"`
	Count    int    `json:"count"`
	Block    string `json:"block"`
	Start    string `json:"start"`
	Durable  bool   `json:"durable"`
}

func (s *Session) executeCommand(ctx context.Context, raw json.RawMessage) (any, error) {
	var params ExecuteCommandParams
	if err := unmarshalParams(raw, &params); err != nil {
		return nil, err
	}
	args := params.Arguments

	known := false
	for _, name := range CommandNames() {
		known = known || name == params.Command
	}
	if !known {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "unknown command: " + params.Command}
	}

	if params.Command == CommandValidate {
		return s.cmdValidate(args)
	}

	adapter, ok := s.registry.Get(s.Active())
	if !ok {
		return nil, &RPCError{Code: CodeRequestFailed, Message: ErrNoSystem.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.CommandTimeout)
	defer cancel()

	logging.Debug("session", "command %s on %s", params.Command, adapter.System())

	switch params.Command {
	case CommandTestConnection:
		return cmdTestConnection(ctx, adapter)
	case CommandListQueues:
		names, err := adapter.ListQueues(ctx)
		if err != nil {
			return nil, adapterError(err)
		}
		if names == nil {
			names = []string{}
		}
		return names, nil
	case CommandQueueStatus:
		name, err := stringArg(args, 0, "queue")
		if err != nil {
			return nil, err
		}
		info, err := adapter.QueueStatus(ctx, name)
		if err != nil {
			return nil, adapterError(err)
		}
		return info, nil
	case CommandPurgeQueue:
		name, err := stringArg(args, 0, "queue")
		if err != nil {
			return nil, err
		}
		if err := adapter.PurgeQueue(ctx, name); err != nil {
			return nil, adapterError(err)
		}
		return &PurgeResult{Queue: name, Purged: true}, nil
	case CommandPublish:
		return cmdPublish(ctx, adapter, args)
	case CommandSubscribe:
		return cmdSubscribe(ctx, adapter, args)
	}
	return nil, &RPCError{Code: CodeInvalidParams, Message: "unknown command: " + params.Command}
}

// cmdValidate validates one document, or every open document when no uri
// is given, and publishes the results.
func (s *Session) cmdValidate(args []json.RawMessage) (any, error) {
	results := []ValidateResult{}
	if s.Active() == queue.SystemNone {
		return results, nil
	}

	var uris []DocumentURI
	if len(args) > 0 {
		uri, err := stringArg(args, 0, "uri")
		if err != nil {
			return nil, err
		}
		uris = []DocumentURI{DocumentURI(uri)}
	} else {
		uris = s.docs.URIs()
	}

	for _, uri := range uris {
		text, version, err := s.documentText(uri)
		if err != nil {
			return nil, &RPCError{Code: CodeRequestFailed, Message: err.Error()}
		}
		results = append(results, ValidateResult{URI: uri, Diagnostics: s.validateNow(uri, text, version)})
	}
	return results, nil
}

// documentText returns the open snapshot of uri or reads it from disk.
func (s *Session) documentText(uri DocumentURI) (string, int, error) {
	if doc, ok := s.docs.Get(uri); ok {
		return doc.Text, doc.Version, nil
	}
	data, err := os.ReadFile(URIToFilePath(uri))
	if err != nil {
		return "", 0, fmt.Errorf("read %s: %w", uri, err)
	}
	return string(data), 0, nil
}

func cmdTestConnection(ctx context.Context, adapter queue.Adapter) (any, error) {
	version, err := adapter.Version(ctx)
	if err != nil {
		return nil, adapterError(err)
	}
	names, err := adapter.ListQueues(ctx)
	if err != nil {
		return nil, adapterError(err)
	}
	meta := adapter.Metadata()
	return &ConnectionResult{
		System:  adapter.System().String(),
		Tool:    meta.Tool,
		Version: version,
		Queues:  len(names),
	}, nil
}

func cmdPublish(ctx context.Context, adapter queue.Adapter, args []json.RawMessage) (any, error) {
	name, err := stringArg(args, 0, "queue")
	if err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "missing message argument"}
	}
	msg, err := messageArg(args[1])
	if err != nil {
		return nil, err
	}

	var opts publishArgs
	if err := objectArg(args, 2, &opts); err != nil {
		return nil, err
	}
	priority, err := queue.ParsePriority(opts.Priority)
	if err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}

	id, err := adapter.Publish(ctx, name, msg, queue.PublishOptions{
		Exchange:   opts.Exchange,
		RoutingKey: opts.RoutingKey,
		Priority:   priority,
		Persistent: opts.Persistent,
		Headers:    opts.Headers,
		MaxLen:     opts.MaxLen,
	})
	if err != nil {
		return nil, adapterError(err)
	}
	return &PublishResult{ID: id}, nil
}

func cmdSubscribe(ctx context.Context, adapter queue.Adapter, args []json.RawMessage) (any, error) {
	name, err := stringArg(args, 0, "queue")
	if err != nil {
		return nil, err
	}

	var opts subscribeArgs
	if err := objectArg(args, 1, &opts); err != nil {
		return nil, err
	}
	var block time.Duration
	if opts.Block != "" {
		block, err = time.ParseDuration(opts.Block)
		if err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: "invalid block duration: " + opts.Block}
		}
	}

	messages, err := adapter.Subscribe(ctx, name, queue.SubscribeOptions{
		Group:    opts.Group,
		Consumer: opts.Consumer,
		Count:    opts.Count,
		Block:    block,
		Start:    opts.Start,
		Durable:  opts.Durable,
	})
	if err != nil {
		return nil, adapterError(err)
	}
	if messages == nil {
		messages = []string{}
	}
	return &SubscribeResult{Messages: messages}, nil
}

// adapterError surfaces an adapter failure with its raw tool output.
func adapterError(err error) error {
	data := map[string]string{"kind": queue.KindOf(err).String()}
	if out := queue.OutputOf(err); out != "" {
		data["output"] = out
	}
	if errors.Is(err, context.DeadlineExceeded) {
		data["kind"] = queue.KindTimeout.String()
	}
	return &RPCError{Code: CodeRequestFailed, Message: err.Error(), Data: data}
}

func stringArg(args []json.RawMessage, i int, name string) (string, error) {
	if i >= len(args) {
		return "", &RPCError{Code: CodeInvalidParams, Message: "missing " + name + " argument"}
	}
	var v string
	if err := json.Unmarshal(args[i], &v); err != nil || v == "" {
		return "", &RPCError{Code: CodeInvalidParams, Message: name + " must be a non-empty string"}
	}
	return v, nil
}

// objectArg decodes an optional options object. Absent or null leaves v
// unchanged.
func objectArg(args []json.RawMessage, i int, v any) error {
	if i >= len(args) || bytes.Equal(bytes.TrimSpace(args[i]), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(args[i], v); err != nil {
		return &RPCError{Code: CodeInvalidParams, Message: "invalid options: " + err.Error()}
	}
	return nil
}

// messageArg accepts a JSON object as a record and anything else as text.
func messageArg(raw json.RawMessage) (queue.Message, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case bytes.HasPrefix(trimmed, []byte("{")):
		var fields map[string]any
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return queue.Message{}, &RPCError{Code: CodeInvalidParams, Message: "invalid message: " + err.Error()}
		}
		return queue.RecordMessage(fields), nil
	case bytes.HasPrefix(trimmed, []byte(`"`)):
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return queue.Message{}, &RPCError{Code: CodeInvalidParams, Message: "invalid message: " + err.Error()}
		}
		return queue.TextMessage(text), nil
	}
	return queue.TextMessage(string(trimmed)), nil
}
