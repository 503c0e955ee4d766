package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrUnknownTarget is returned when a job references an unregistered target.
var ErrUnknownTarget = errors.New("unknown job target")

// JobFunc is the work a job performs each time it fires.
type JobFunc func(ctx context.Context, args map[string]any) error

// Registry maps persisted target references to functions. Jobs store the
// reference, so targets must be registered again on every start.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]JobFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]JobFunc)}
}

// Register binds ref to fn, replacing any earlier binding.
func (r *Registry) Register(ref string, fn JobFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[ref] = fn
}

// Lookup returns the function bound to ref.
func (r *Registry) Lookup(ref string) (JobFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[ref]
	return fn, ok
}

// Refs returns the registered references in sorted order.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0, len(r.funcs))
	for ref := range r.funcs {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
