package assist

import (
	"strings"
	"testing"

	"github.com/dshills/mqlsp/internal/queue"
)

func TestHover(t *testing.T) {
	tests := []struct {
		name   string
		system queue.System
		word   string
		ok     bool
		prefix string
	}{
		{"redis lowercase", queue.SystemStreamStore, "xadd", true, "**XADD**"},
		{"redis upper", queue.SystemStreamStore, "XREADGROUP", true, "**XREADGROUP**"},
		{"redis unknown", queue.SystemStreamStore, "GET", false, ""},
		{"broker exact", queue.SystemBroker, "durable", true, "**durable**"},
		{"broker case sensitive", queue.SystemBroker, "Durable", false, ""},
		{"pubsub", queue.SystemPubSub, "jetstream", true, "**jetstream**"},
		{"pubsub case sensitive", queue.SystemPubSub, "JetStream", false, ""},
		{"none generic", queue.SystemNone, "publish", true, "**publish**"},
		{"none ignores redis", queue.SystemNone, "XADD", false, ""},
		{"empty", queue.SystemStreamStore, "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, ok := Hover(tt.system, tt.word)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !strings.HasPrefix(doc, tt.prefix) {
				t.Errorf("doc = %q, want prefix %q", doc, tt.prefix)
			}
		})
	}
}
