// Package secrets holds secret values forwarded from the host environment
// into a sandbox. Values live in memguard locked buffers until the moment
// they are handed to a process environment and are never written to disk.
package secrets

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
)

// LookupFunc resolves an environment variable, like os.LookupEnv.
type LookupFunc func(name string) (string, bool)

// Store maps variable names to protected values.
type Store struct {
	mu    sync.RWMutex
	items map[string]*memguard.LockedBuffer
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{items: make(map[string]*memguard.LockedBuffer)}
}

// Load reads each named variable through lookup. A name that is not set
// is an error: a sandbox silently missing a credential fails much later
// and far less clearly.
func Load(names []string, lookup LookupFunc) (*Store, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	s := NewStore()
	for _, name := range names {
		value, ok := lookup(name)
		if !ok {
			s.Destroy()
			return nil, fmt.Errorf("secret %s is not set in the environment", name)
		}
		s.Set(name, value)
	}
	return s, nil
}

// Set stores a value, destroying any previous value for the name.
func (s *Store) Set(name, value string) {
	buf := memguard.NewBufferFromBytes([]byte(value))

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[name]; ok {
		existing.Destroy()
	}
	s.items[name] = buf
}

// Names returns the stored variable names, sorted. Names are safe to log
// and to include in configuration hashes.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.items))
	for name := range s.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithValue calls fn with the plaintext value of name. fn must not retain it.
func (s *Store) WithValue(name string, fn func(string)) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf, ok := s.items[name]
	if !ok {
		return false
	}
	// memguard represents an empty value as a null buffer.
	if !buf.IsAlive() {
		fn("")
		return true
	}
	fn(buf.String())
	return true
}

// Env renders the secrets as KEY=VALUE entries for a process environment.
// The returned strings live in regular memory.
func (s *Store) Env() []string {
	names := s.Names()
	env := make([]string, 0, len(names))
	for _, name := range names {
		s.WithValue(name, func(v string) {
			env = append(env, name+"="+strings.Clone(v))
		})
	}
	return env
}

// Len returns the number of stored secrets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Destroy wipes all values.
func (s *Store) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, buf := range s.items {
		buf.Destroy()
		delete(s.items, name)
	}
}

// String returns a safe representation of the store (names only).
func (s *Store) String() string {
	return fmt.Sprintf("secrets.Store{%s}", strings.Join(s.Names(), ", "))
}
