package session

import (
	"fmt"
	"sync"
)

// active tracks the working directories owned by this process. The
// lockfile covers other processes; this map answers without touching the
// filesystem and covers callers sharing one process.
var active = &dirRegistry{owners: make(map[string]string)}

type dirRegistry struct {
	mu     sync.Mutex
	owners map[string]string
}

func (r *dirRegistry) claim(dir, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.owners[dir]; ok {
		return fmt.Errorf("directory is owned by %s in this process", current)
	}
	r.owners[dir] = owner
	return nil
}

func (r *dirRegistry) release(dir, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.owners[dir] == owner {
		delete(r.owners, dir)
	}
}

func (r *dirRegistry) owner(dir string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[dir]
	return owner, ok
}
