package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/mqlsp/internal/queue"
	"github.com/dshills/mqlsp/internal/queue/queuetest"
)

type stubAdapter struct {
	system  queue.System
	present bool
	probed  *[]queue.System
}

func (s stubAdapter) System() queue.System { return s.system }
func (s stubAdapter) Detect(context.Context) bool {
	if s.probed != nil {
		*s.probed = append(*s.probed, s.system)
	}
	return s.present
}
func (s stubAdapter) Publish(context.Context, string, queue.Message, queue.PublishOptions) (string, error) {
	return "", nil
}
func (s stubAdapter) Subscribe(context.Context, string, queue.SubscribeOptions) ([]string, error) {
	return nil, nil
}
func (s stubAdapter) ListQueues(context.Context) ([]string, error)                  { return nil, nil }
func (s stubAdapter) QueueStatus(context.Context, string) (*queue.QueueInfo, error) { return nil, nil }
func (s stubAdapter) PurgeQueue(context.Context, string) error                      { return nil }
func (s stubAdapter) Version(context.Context) (string, error)                       { return "1", nil }
func (s stubAdapter) Metadata() queue.Metadata {
	return queue.Metadata{Name: s.system.String(), Tool: s.system.String(), Capabilities: []queue.Capability{queue.CapPublish}}
}

func TestDetect_PriorityOrder(t *testing.T) {
	var probed []queue.System
	adapters := []queue.Adapter{
		stubAdapter{system: queue.SystemStreamStore, probed: &probed},
		stubAdapter{system: queue.SystemBroker, present: true, probed: &probed},
		stubAdapter{system: queue.SystemPubSub, present: true, probed: &probed},
	}

	got := queue.Detect(context.Background(), "/project", adapters...)

	assert.Equal(t, queue.SystemBroker, got)
	assert.Equal(t, []queue.System{queue.SystemStreamStore, queue.SystemBroker}, probed)
}

func TestDetect_NoneWhenNothingResponds(t *testing.T) {
	r := queue.NewRegistry(
		stubAdapter{system: queue.SystemStreamStore},
		stubAdapter{system: queue.SystemBroker},
		stubAdapter{system: queue.SystemPubSub},
	)
	assert.Equal(t, queue.SystemNone, r.Detect(context.Background(), "/project"))
}

func TestDetect_EmptyRootShortCircuits(t *testing.T) {
	var probed []queue.System
	got := queue.Detect(context.Background(), "", stubAdapter{system: queue.SystemStreamStore, present: true, probed: &probed})
	assert.Equal(t, queue.SystemNone, got)
	assert.Empty(t, probed)
}

func TestRegistry_Get(t *testing.T) {
	r := queue.NewRegistry(stubAdapter{system: queue.SystemPubSub}, nil)
	a, ok := r.Get(queue.SystemPubSub)
	require.True(t, ok)
	assert.Equal(t, queue.SystemPubSub, a.System())

	_, ok = r.Get(queue.SystemBroker)
	assert.False(t, ok)
	assert.Len(t, r.Adapters(), 1)
}

func TestParseSystem(t *testing.T) {
	tests := map[string]queue.System{
		"":             queue.SystemNone,
		"redis":        queue.SystemStreamStore,
		"stream-store": queue.SystemStreamStore,
		"RabbitMQ":     queue.SystemBroker,
		"jetstream":    queue.SystemPubSub,
	}
	for in, want := range tests {
		got, err := queue.ParseSystem(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		if want != queue.SystemNone {
			round, err := queue.ParseSystem(got.String())
			require.NoError(t, err)
			assert.Equal(t, want, round)
		}
	}

	_, err := queue.ParseSystem("kafka")
	assert.Error(t, err)
}

func TestInvoke_MapsFailures(t *testing.T) {
	runner := queuetest.NewRunner().
		On("tool ok", queuetest.Reply{Stdout: "fine\n"}).
		On("tool bad", queuetest.Reply{Stderr: "boom", ExitCode: 2})

	res, err := queue.Invoke(context.Background(), runner, "probe", "tool", "ok")
	require.NoError(t, err)
	assert.Equal(t, "fine\n", res.Stdout)

	_, err = queue.Invoke(context.Background(), runner, "probe", "tool", "bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, queue.ErrToolUnavailable)
	assert.Equal(t, "boom", queue.OutputOf(err))

	_, err = queue.Invoke(context.Background(), runner, "probe", "missing")
	assert.ErrorIs(t, err, queue.ErrToolUnavailable)
}

func TestInvoke_DeadlineBecomesTimeout(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	runner := queuetest.NewRunner().On("tool slow", queuetest.Reply{})
	_, err := queue.Invoke(ctx, runner, "probe", "tool", "slow")
	assert.ErrorIs(t, err, queue.ErrTimeout)
	assert.Equal(t, queue.KindTimeout, queue.KindOf(err))
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := queue.ExecRunner{}.Run(context.Background(), "mqlsp-definitely-not-installed")
	assert.Error(t, err)
}

func TestError_Format(t *testing.T) {
	err := queue.ParseError("publish", "message id", "")
	assert.Equal(t, "publish: failed to parse message id", err.Error())
	assert.True(t, errors.Is(err, queue.ErrParseFailure))
	assert.False(t, errors.Is(err, queue.ErrNotFound))

	nf := queue.NotFoundError("status", "orders", "")
	assert.ErrorIs(t, nf, queue.ErrNotFound)
}

func TestMessage_Body(t *testing.T) {
	body, err := queue.TextMessage("hello").Body()
	require.NoError(t, err)
	assert.Equal(t, "hello", body)

	body, err = queue.RecordMessage(map[string]any{"b": 2, "a": "x"}).Body()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"x","b":2}`, body)
}

func TestLinesAndJSONPayload(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, queue.Lines("a\n\n  b  \n"))
	assert.Nil(t, queue.Lines(""))

	payload, ok := queue.JSONPayload("warning: x\n[\"q1\"]\n")
	require.True(t, ok)
	assert.Equal(t, `["q1"]`, payload)

	_, ok = queue.JSONPayload("no json here")
	assert.False(t, ok)
}

func TestPriorityAndCount(t *testing.T) {
	p, err := queue.ParsePriority("HIGH")
	require.NoError(t, err)
	assert.Equal(t, queue.PriorityHigh, p)
	_, err = queue.ParsePriority("urgent")
	assert.Error(t, err)

	assert.Equal(t, queue.DefaultCount, queue.SubscribeOptions{}.EffectiveCount())
	assert.Equal(t, 3, queue.SubscribeOptions{Count: 3}.EffectiveCount())
}

func TestNewMessageIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := queue.NewMessageID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
