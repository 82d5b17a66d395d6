package assist

import (
	"testing"

	"github.com/dshills/mqlsp/internal/queue"
)

func labels(items []CompletionItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Label
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCompleteStreamAppendKeywords(t *testing.T) {
	ctx := Extract("XADD ", 0, 5)
	items := Complete(queue.SystemStreamStore, ctx, ".redis")

	want := []string{"STREAMS", "COUNT", "BLOCK", "MAXLEN"}
	if got := labels(items); !equalStrings(got, want) {
		t.Fatalf("labels = %v, want %v", got, want)
	}
	for _, it := range items {
		if it.Kind != KindKeyword {
			t.Errorf("%s kind = %s, want keyword", it.Label, it.Kind)
		}
		if it.InsertText != it.Label {
			t.Errorf("%s insert = %q", it.Label, it.InsertText)
		}
	}
}

func TestCompleteExchangeTypes(t *testing.T) {
	ctx := Extract("exchange: ", 0, 10)
	items := Complete(queue.SystemBroker, ctx, ".yaml")

	want := []string{"direct", "fanout", "topic", "headers"}
	if got := labels(items); !equalStrings(got, want) {
		t.Fatalf("labels = %v, want %v", got, want)
	}
	if items[0].Kind != KindEnum {
		t.Errorf("exchange type kind = %s", items[0].Kind)
	}
}

func TestCompleteNoTriggerForAdapterIsEmpty(t *testing.T) {
	// A trigger the adapter has no table for yields nothing.
	ctx := Extract("exchange: ", 0, 10)
	items := Complete(queue.SystemStreamStore, ctx, ".conf")
	if items == nil || len(items) != 0 {
		t.Errorf("items = %v, want empty non-nil", items)
	}
}

func TestCompleteNoneSystemGeneric(t *testing.T) {
	for _, before := range []string{"", "XADD ", "exchange: "} {
		items := Complete(queue.SystemNone, Extract(before, 0, len(before)), "")
		if len(items) != 5 || items[0].Label != "publish" {
			t.Errorf("before %q: labels = %v", before, labels(items))
		}
	}
}

func TestCompleteDocumentKinds(t *testing.T) {
	none := CursorContext{}

	if got := labels(Complete(queue.SystemBroker, none, ".json")); got[0] != "durable" {
		t.Errorf("broker json = %v", got)
	}
	if got := labels(Complete(queue.SystemBroker, none, ".conf")); got[0] != "listeners.tcp.default" {
		t.Errorf("broker conf = %v", got)
	}
	if got := labels(Complete(queue.SystemPubSub, none, ".json")); got[0] != "name" {
		t.Errorf("pubsub json = %v", got)
	}
	if got := labels(Complete(queue.SystemPubSub, none, ".conf")); got[0] != "port" {
		t.Errorf("pubsub conf = %v", got)
	}
	if got := labels(Complete(queue.SystemStreamStore, none, "")); got[0] != "XADD" {
		t.Errorf("stream-store commands = %v", got)
	}
}

func TestCompleteSubjects(t *testing.T) {
	ctx := Extract("nats sub ", 0, 9)
	items := Complete(queue.SystemPubSub, ctx, "")
	if len(items) == 0 || items[0].Label != "*" {
		t.Errorf("labels = %v", labels(items))
	}
}

func TestKindHint(t *testing.T) {
	tests := map[string]string{
		"/etc/nats/nats-server.conf": ".conf",
		"C:\\cfg\\Definitions.JSON":  ".json",
		"/srv/Makefile":              "makefile",
		"/srv/orders.stream.json":    ".json",
	}
	for in, want := range tests {
		if got := KindHint(in); got != want {
			t.Errorf("KindHint(%q) = %q, want %q", in, got, want)
		}
	}
}
