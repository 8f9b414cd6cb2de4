package lifecycle

import "sync"

// registry serialises decisions about one backend resource. Reuse and
// recreate for the same name never interleave; different names proceed in
// parallel.
type registry struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func newRegistry() *registry {
	return &registry{locks: make(map[string]*entry)}
}

// lock acquires the lock for key and returns its release function.
func (r *registry) lock(key string) func() {
	r.mu.Lock()
	e, ok := r.locks[key]
	if !ok {
		e = &entry{}
		r.locks[key] = e
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		r.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(r.locks, key)
		}
		r.mu.Unlock()
	}
}

// size returns the number of keys currently held or awaited.
func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
