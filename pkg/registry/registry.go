// Package registry implements the solution-triple registry: the one piece
// of state C5 and C6 share across workers. Each key belongs to exactly one
// worker at a time, so updates are read-whole-value, modify, write-whole-
// value rather than field-level locking (spec.md's "Shared resources" note).
package registry

import (
	"sync"

	"github.com/klever-verify/core/pkg/storage"
	"github.com/klever-verify/core/pkg/types"
)

// Registry is the process-wide keyed slot map for solution triples. It is
// backed by storage.Store so the triples survive a process restart, but the
// single-owner discipline (one worker touches one key at a time) is enforced
// in-process by a per-key mutex, not by the store.
type Registry struct {
	store storage.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Registry backed by store.
func New(store storage.Store) *Registry {
	return &Registry{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *Registry) keyLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// Create installs a fresh triple for key, called when C5 first sees a task.
// It is a no-op if the key already exists, since the poller may observe the
// same task ID more than once before the worker retires it.
func (r *Registry) Create(key string) error {
	lock := r.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	_, ok, err := r.store.GetTriple(key)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return r.store.PutTriple(key, types.SolutionTriple{RemoteStatus: types.StatusPending})
}

// Update performs an atomic read-modify-write of the triple at key. A
// per-key lock serializes concurrent Updates of the same key; Update does
// not check which worker owns the key.
func (r *Registry) Update(key string, fn func(types.SolutionTriple) types.SolutionTriple) error {
	lock := r.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	triple, _, err := r.store.GetTriple(key)
	if err != nil {
		return err
	}
	return r.store.PutTriple(key, fn(triple))
}

// Get returns the current triple for key.
func (r *Registry) Get(key string) (types.SolutionTriple, bool, error) {
	lock := r.keyLock(key)
	lock.Lock()
	defer lock.Unlock()
	return r.store.GetTriple(key)
}

// Delete removes the triple for key and drops its per-key lock. The worker
// pool does not call it, so a processed task's final triple stays in the
// store.
func (r *Registry) Delete(key string) error {
	lock := r.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := r.store.DeleteTriple(key); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.locks, key)
	r.mu.Unlock()
	return nil
}

// Len reports how many solution triples are currently live. Useful for
// tests and for a shutdown sanity check (every key should be gone once the
// job finishes).
func (r *Registry) Len() (int, error) {
	all, err := r.store.ListTriples()
	if err != nil {
		return 0, err
	}
	return len(all), nil
}
