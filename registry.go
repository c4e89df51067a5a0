package tessera

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Registry holds loaded models keyed by namespace and version. Loads copy
// the underlying map and swap it atomically, so lookups on the hot path are
// lock-free and never observe a partially registered model.
type Registry struct {
	mu     sync.Mutex // serializes writers only
	models atomic.Pointer[map[string]*Model]
}

func NewRegistry() *Registry {
	r := &Registry{}
	models := make(map[string]*Model)
	r.models.Store(&models)
	return r
}

func modelKey(namespace, version string) string {
	return namespace + "@" + version
}

// Add registers a model. A namespace+version pair can only be registered
// once; schema changes load a new version instead of mutating in place.
func (r *Registry) Add(m *Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := modelKey(m.Namespace, m.Version)
	current := *r.models.Load()
	if _, ok := current[key]; ok {
		return fmt.Errorf("%s: %w", key, ErrDuplicateModel)
	}

	next := make(map[string]*Model, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[key] = m
	r.models.Store(&next)
	return nil
}

// Lookup returns the model registered for namespace and version.
func (r *Registry) Lookup(namespace, version string) (*Model, bool) {
	m, ok := (*r.models.Load())[modelKey(namespace, version)]
	return m, ok
}
