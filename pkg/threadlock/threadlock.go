// Package threadlock implements per-thread serialization (§4.10 step 3,
// §5): every step of the Ingress Dispatcher pipeline, and every Scheduler
// job dispatch, runs under one lock keyed by thread id, so a single
// thread's messages are always processed in the order they arrived while
// different threads proceed fully in parallel. Grounded on the teacher's
// activeSessions cancel-function registry (pkg/queue/pool.go), repurposed
// from cancellation bookkeeping to mutual exclusion.
package threadlock

import (
	"sync"

	"github.com/google/uuid"
)

// Registry hands out one mutex per thread id, created lazily and released
// once its last holder unlocks so idle threads don't accumulate entries
// forever.
type Registry struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[uuid.UUID]*entry)}
}

// Lock blocks until the per-thread lock for id is acquired and returns a
// release function that must be called exactly once, typically via defer.
func (r *Registry) Lock(id uuid.UUID) func() {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		e = &entry{}
		r.entries[id] = e
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		r.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(r.entries, id)
		}
		r.mu.Unlock()
	}
}
