package queue

import (
	"context"

	"github.com/dshills/mqlsp/internal/logging"
)

// Detect picks the active system for a project.
//
// An empty root short-circuits to SystemNone. Otherwise adapters are probed
// in the order given and the first one whose tool responds wins. Callers
// pass adapters in priority order: stream-store, broker, pubsub.
func Detect(ctx context.Context, root string, adapters ...Adapter) System {
	if root == "" {
		logging.Debug("detect", "no project root, skipping detection")
		return SystemNone
	}

	for _, a := range adapters {
		if a == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if a.Detect(ctx) {
			logging.Info("detect", "detected %s (%s) in %s", a.System(), a.Metadata().Name, root)
			return a.System()
		}
		logging.Debug("detect", "%s not available", a.Metadata().Tool)
	}
	return SystemNone
}

// Registry maps identities to adapters.
type Registry struct {
	ordered []Adapter
	by      map[System]Adapter
}

// NewRegistry creates a registry; order is the detection priority.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{by: make(map[System]Adapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		r.ordered = append(r.ordered, a)
		r.by[a.System()] = a
	}
	return r
}

// Get returns the adapter for s.
func (r *Registry) Get(s System) (Adapter, bool) {
	a, ok := r.by[s]
	return a, ok
}

// Adapters returns adapters in priority order.
func (r *Registry) Adapters() []Adapter {
	out := make([]Adapter, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Detect runs Detect over the registered adapters.
func (r *Registry) Detect(ctx context.Context, root string) System {
	return Detect(ctx, root, r.ordered...)
}
