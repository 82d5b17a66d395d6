package rabbitmq

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dshills/mqlsp/internal/queue"
	"github.com/dshills/mqlsp/internal/queue/queuetest"
)

const admin = "rabbitmqadmin -H 127.0.0.1 -P 15672 -V / "

func newTestAdapter() (*Adapter, *queuetest.Runner) {
	r := queuetest.NewRunner()
	return New(Config{}, r), r
}

func TestMetadata(t *testing.T) {
	a, r := newTestAdapter()
	md := a.Metadata()
	assert.Equal(t, "RabbitMQ", md.Name)
	assert.True(t, md.Has(queue.CapRouting))
	assert.Empty(t, r.Calls())
}

func TestDetectAndVersion(t *testing.T) {
	a, r := newTestAdapter()
	assert.False(t, a.Detect(context.Background()))

	r.On("rabbitmqctl -q version", queuetest.Reply{Stdout: "3.12.4\n"})
	assert.True(t, a.Detect(context.Background()))
	v, err := a.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3.12.4", v)
}

func TestVersion_NodeDown(t *testing.T) {
	r := queuetest.NewRunner()
	a := New(Config{Node: "rabbit@box"}, r)
	r.On("rabbitmqctl -n rabbit@box -q version", queuetest.Reply{Stderr: "Error: unable to perform an operation on node", ExitCode: 69})

	_, err := a.Version(context.Background())
	assert.ErrorIs(t, err, queue.ErrToolUnavailable)
	assert.False(t, a.Detect(context.Background()))
}

func TestPublish_SynthesizesID(t *testing.T) {
	a, r := newTestAdapter()
	r.On(admin+"publish exchange=amq.default routing_key=orders payload=hello properties=*", queuetest.Reply{Stdout: "Message published\n"})

	id, err := a.Publish(context.Background(), "orders", queue.TextMessage("hello"), queue.PublishOptions{
		Persistent: true,
		Priority:   queue.PriorityHigh,
		Headers:    map[string]string{"tenant": "a"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	call := r.LastCall()
	props := call[strings.Index(call, "properties=")+len("properties="):]
	assert.Equal(t, id, gjson.Get(props, "message_id").String())
	assert.Equal(t, int64(2), gjson.Get(props, "delivery_mode").Int())
	assert.Equal(t, int64(9), gjson.Get(props, "priority").Int())
	assert.Equal(t, "a", gjson.Get(props, "headers.tenant").String())

	second, err := a.Publish(context.Background(), "orders", queue.TextMessage("hello"), queue.PublishOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, id, second)
}

func TestPublish_RecordToExchange(t *testing.T) {
	a, r := newTestAdapter()
	r.On(admin+`publish exchange=events routing_key=order.created payload={"id":1} properties=*`, queuetest.Reply{Stdout: "Message published\n"})

	_, err := a.Publish(context.Background(), "orders", queue.RecordMessage(map[string]any{"id": 1}), queue.PublishOptions{
		Exchange: "events", RoutingKey: "order.created",
	})
	require.NoError(t, err)
	assert.Contains(t, r.LastCall(), `"content_type":"application/json"`)
}

func TestPublish_NotRouted(t *testing.T) {
	a, r := newTestAdapter()
	r.On(admin+"publish *", queuetest.Reply{Stdout: "Message published but NOT routed\n"})

	_, err := a.Publish(context.Background(), "missing", queue.TextMessage("x"), queue.PublishOptions{})
	assert.ErrorIs(t, err, queue.ErrNotFound)
}

func TestPublish_UnexpectedOutput(t *testing.T) {
	a, r := newTestAdapter()
	r.On(admin+"publish *", queuetest.Reply{Stdout: ""})

	_, err := a.Publish(context.Background(), "orders", queue.TextMessage("x"), queue.PublishOptions{})
	assert.ErrorIs(t, err, queue.ErrParseFailure)
}

func TestSubscribe(t *testing.T) {
	a, r := newTestAdapter()
	r.On(admin+"-f raw_json get queue=orders count=2 ackmode=ack_requeue_false", queuetest.Reply{
		Stdout: `[{"payload":"hello","payload_encoding":"string"},{"payload":"d29ybGQ=","payload_encoding":"base64"}]`,
	})

	bodies, err := a.Subscribe(context.Background(), "orders", queue.SubscribeOptions{Count: 2, Group: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world"}, bodies)
}

func TestSubscribe_PeekRequeues(t *testing.T) {
	a, r := newTestAdapter()
	r.On(admin+"-f raw_json get queue=orders count=10 ackmode=ack_requeue_true", queuetest.Reply{Stdout: "[]"})

	bodies, err := a.Subscribe(context.Background(), "orders", queue.SubscribeOptions{Start: "peek"})
	require.NoError(t, err)
	assert.Empty(t, bodies)
}

func TestSubscribe_DurablePeekConsumes(t *testing.T) {
	a, r := newTestAdapter()
	r.On(admin+"-f raw_json get queue=orders count=10 ackmode=ack_requeue_false", queuetest.Reply{Stdout: "[]"})

	_, err := a.Subscribe(context.Background(), "orders", queue.SubscribeOptions{Start: "peek", Durable: true})
	require.NoError(t, err)
	assert.Contains(t, r.LastCall(), "ackmode=ack_requeue_false")
}

func TestSubscribe_Malformed(t *testing.T) {
	a, r := newTestAdapter()
	r.On(admin+"-f raw_json get *", queuetest.Reply{Stdout: `[{"routing_key":"x"}]`})

	_, err := a.Subscribe(context.Background(), "orders", queue.SubscribeOptions{})
	assert.ErrorIs(t, err, queue.ErrParseFailure)

	r.On(admin+"-f raw_json get *", queuetest.Reply{Stdout: ""})
	_, err = a.Subscribe(context.Background(), "orders", queue.SubscribeOptions{})
	assert.ErrorIs(t, err, queue.ErrParseFailure)
}

func TestListQueues(t *testing.T) {
	a, r := newTestAdapter()
	r.On("rabbitmqctl -q list_queues -p / name --formatter json", queuetest.Reply{
		Stdout: "[\n{\"name\":\"orders\"}\n,{\"name\":\"audit\"}\n]\n",
	})

	names, err := a.ListQueues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "audit"}, names)
}

func TestListQueues_Garbage(t *testing.T) {
	a, r := newTestAdapter()
	r.On("rabbitmqctl -q list_queues -p / name --formatter json", queuetest.Reply{Stdout: "Listing queues"})

	_, err := a.ListQueues(context.Background())
	assert.ErrorIs(t, err, queue.ErrParseFailure)
}

func TestQueueStatus(t *testing.T) {
	a, r := newTestAdapter()
	r.On("rabbitmqctl -q list_queues -p / --no-table-headers name messages consumers", queuetest.Reply{
		Stdout: "audit\t0\t0\norders\t12\t2\n",
	})
	r.On("rabbitmqctl -q list_consumers -p / --no-table-headers queue_name consumer_tag", queuetest.Reply{
		Stdout: "orders\tamq.ctag-1\naudit\tamq.ctag-9\norders\tbilling\n",
	})

	info, err := a.QueueStatus(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", info.Name)
	assert.Equal(t, 12, info.Length)
	assert.Equal(t, []string{"amq.ctag-1", "billing"}, info.ConsumerGroups)
	assert.Empty(t, info.LastID)
}

func TestQueueStatus_IdleQueueSkipsConsumerLookup(t *testing.T) {
	a, r := newTestAdapter()
	r.On("rabbitmqctl -q list_queues -p / --no-table-headers name messages consumers", queuetest.Reply{Stdout: "audit\t0\t0\n"})

	info, err := a.QueueStatus(context.Background(), "audit")
	require.NoError(t, err)
	assert.Equal(t, 0, info.Length)
	assert.Equal(t, []string{}, info.ConsumerGroups)
	assert.Len(t, r.Calls(), 1)
}

func TestQueueStatus_NotFoundAndMalformed(t *testing.T) {
	a, r := newTestAdapter()
	r.On("rabbitmqctl -q list_queues -p / --no-table-headers name messages consumers", queuetest.Reply{Stdout: "orders\tmany\t0\n"})

	_, err := a.QueueStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, queue.ErrNotFound)

	_, err = a.QueueStatus(context.Background(), "orders")
	assert.ErrorIs(t, err, queue.ErrParseFailure)
}

func TestPurgeQueue_Idempotent(t *testing.T) {
	a, r := newTestAdapter()
	r.On("rabbitmqctl -q purge_queue -p / orders", queuetest.Reply{})
	r.On("rabbitmqctl -q purge_queue -p / ghost", queuetest.Reply{
		Stderr: "Error: {not_found,{resource,<<\"/\">>,queue,<<\"ghost\">>}}", ExitCode: 1,
	})

	require.NoError(t, a.PurgeQueue(context.Background(), "orders"))
	require.NoError(t, a.PurgeQueue(context.Background(), "orders"))
	require.NoError(t, a.PurgeQueue(context.Background(), "ghost"))
}
