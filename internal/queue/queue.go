package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// System identifies which message-queue system is active for a session.
// The set is closed: every provider switches over all four values.
type System int

const (
	// SystemNone means no backing system was detected.
	SystemNone System = iota
	// SystemStreamStore is Redis Streams.
	SystemStreamStore
	// SystemBroker is RabbitMQ.
	SystemBroker
	// SystemPubSub is NATS with JetStream.
	SystemPubSub
)

// String returns the identity tag.
func (s System) String() string {
	switch s {
	case SystemStreamStore:
		return "stream-store"
	case SystemBroker:
		return "broker"
	case SystemPubSub:
		return "pubsub"
	default:
		return "none"
	}
}

// ParseSystem parses an identity tag. The backing system names are accepted
// as aliases.
func ParseSystem(s string) (System, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return SystemNone, nil
	case "stream-store", "redis":
		return SystemStreamStore, nil
	case "broker", "rabbitmq":
		return SystemBroker, nil
	case "pubsub", "nats", "jetstream":
		return SystemPubSub, nil
	}
	return SystemNone, fmt.Errorf("unknown queue system %q", s)
}

// Capability tags advertised in Metadata.
type Capability string

const (
	CapPublish        Capability = "publish"
	CapSubscribe      Capability = "subscribe"
	CapConsumerGroups Capability = "consumer-groups"
	CapPersistence    Capability = "persistence"
	CapRouting        Capability = "routing"
	CapPriority       Capability = "priority"
	CapHeaders        Capability = "headers"
	CapReplay         Capability = "replay"
	CapPurge          Capability = "purge"
)

// Metadata describes an adapter. It is static per adapter.
type Metadata struct {
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Protocol     string       `json:"protocol"`
	Tool         string       `json:"tool"`
	Capabilities []Capability `json:"capabilities"`
}

// Has reports whether the capability is advertised.
func (m Metadata) Has(c Capability) bool {
	for _, have := range m.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// QueueInfo is a point-in-time view of a queue or stream.
type QueueInfo struct {
	Name           string   `json:"name"`
	Length         int      `json:"length"`
	ConsumerGroups []string `json:"consumerGroups"`
	LastID         string   `json:"lastId,omitempty"`
}

// Priority is the publish priority class.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityLow
	PriorityHigh
)

// String returns the priority class name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// ParsePriority parses low, normal or high. Empty means normal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q", s)
}

// Message is a publish payload: raw text or a structured record.
// Fields takes precedence when non-nil.
type Message struct {
	Text   string
	Fields map[string]any
}

// TextMessage returns a raw text message.
func TextMessage(s string) Message { return Message{Text: s} }

// RecordMessage returns a structured message.
func RecordMessage(fields map[string]any) Message { return Message{Fields: fields} }

// IsRecord reports whether the message is a structured record.
func (m Message) IsRecord() bool { return m.Fields != nil }

// Body serializes the message as text: records become a JSON document.
func (m Message) Body() (string, error) {
	if !m.IsRecord() {
		return m.Text, nil
	}
	data, err := json.Marshal(m.Fields)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return string(data), nil
}

// PublishOptions are the recognized publish options. Each adapter honors
// the subset its system supports and ignores the rest.
type PublishOptions struct {
	Exchange   string
	RoutingKey string
	Priority   Priority
	Persistent bool
	Headers    map[string]string
	MaxLen     int
}

// SubscribeOptions are the recognized subscribe options.
type SubscribeOptions struct {
	Group    string
	Consumer string
	Count    int
	Block    time.Duration
	Start    string
	Durable  bool
}

// DefaultCount is used when SubscribeOptions.Count is not positive.
const DefaultCount = 10

// EffectiveCount returns Count or DefaultCount.
func (o SubscribeOptions) EffectiveCount() int {
	if o.Count <= 0 {
		return DefaultCount
	}
	return o.Count
}

// Adapter normalizes one backing system's command-line tooling.
//
// Implementations hold connection settings only and are safe for concurrent
// use. No method panics on tool failure; errors are *Error values.
type Adapter interface {
	// System returns the identity this adapter serves.
	System() System

	// Detect reports whether the backing tool is installed and responds.
	// Failures yield false.
	Detect(ctx context.Context) bool

	// Publish sends a message and returns its identifier.
	Publish(ctx context.Context, queue string, msg Message, opts PublishOptions) (string, error)

	// Subscribe consumes up to opts.Count message bodies.
	Subscribe(ctx context.Context, queue string, opts SubscribeOptions) ([]string, error)

	// ListQueues returns queue or stream names.
	ListQueues(ctx context.Context) ([]string, error)

	// QueueStatus returns a fresh QueueInfo or ErrNotFound.
	QueueStatus(ctx context.Context, queue string) (*QueueInfo, error)

	// PurgeQueue removes all messages. Purging an empty queue succeeds.
	PurgeQueue(ctx context.Context, queue string) error

	// Version returns the backing tool version.
	Version(ctx context.Context) (string, error)

	// Metadata describes the adapter without I/O.
	Metadata() Metadata
}

// NewMessageID synthesizes an identifier for systems whose tooling does not
// return one. UUIDv7 values sort by creation time.
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
