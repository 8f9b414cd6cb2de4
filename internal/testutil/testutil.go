// Package testutil provides test utilities for engine and CLI tests
package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Ramtinhoss/vibekit/internal/audit"
	"github.com/Ramtinhoss/vibekit/internal/clock"
	"github.com/Ramtinhoss/vibekit/internal/config"
	"github.com/Ramtinhoss/vibekit/internal/runtime"
	"github.com/Ramtinhoss/vibekit/internal/system"
)

// Epoch is the initial time of every TestEnv clock.
var Epoch = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// TestEnv holds a temporary project and mock collaborators
type TestEnv struct {
	T        *testing.T
	Dir      string
	Paths    *config.Paths
	Runtime  *runtime.MockRuntime
	Executor *system.MockExecutor
	Clock    *clock.FakeClock
	Recorder *Recorder
}

// NewTestEnv creates a project directory with mock runtime, executor and
// clock.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve temp dir: %v", err)
	}
	dir = filepath.Join(dir, "project")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}

	paths, err := config.NewPaths(dir)
	if err != nil {
		t.Fatalf("Failed to resolve paths: %v", err)
	}

	return &TestEnv{
		T:        t,
		Dir:      dir,
		Paths:    paths,
		Runtime:  runtime.NewMockRuntime(),
		Executor: system.NewMockExecutor(),
		Clock:    clock.Fake(Epoch),
		Recorder: &Recorder{},
	}
}

// WriteFile writes a project file, creating parent directories.
func (e *TestEnv) WriteFile(rel, content string) {
	e.T.Helper()
	WriteFile(e.T, filepath.Join(e.Dir, rel), content)
}

// ReadFile returns a project file's content.
func (e *TestEnv) ReadFile(rel string) string {
	e.T.Helper()
	data, err := os.ReadFile(filepath.Join(e.Dir, rel))
	if err != nil {
		e.T.Fatalf("Failed to read %s: %v", rel, err)
	}
	return string(data)
}

// Exists reports whether a project file exists.
func (e *TestEnv) Exists(rel string) bool {
	_, err := os.Lstat(filepath.Join(e.Dir, rel))
	return err == nil
}

// ShadowPath returns the location of rel inside the shadow root.
func (e *TestEnv) ShadowPath(rel string) string {
	return filepath.Join(e.Paths.ShadowDir, rel)
}

// SaveProjectConfig writes the project configuration.
func (e *TestEnv) SaveProjectConfig(cfg *config.ProjectConfig) {
	e.T.Helper()
	if err := config.SaveProjectConfig(e.Paths.ConfigFile, cfg); err != nil {
		e.T.Fatalf("Failed to save project config: %v", err)
	}
}

// Agent makes every started host command run fn in its working directory
// and exit with code.
func (e *TestEnv) Agent(code int, fn func(dir string)) {
	e.Executor.OnStart = func(cmd system.Command) *system.MockProcess {
		if fn != nil {
			fn(cmd.Dir)
		}
		p := system.NewMockProcess()
		p.Exit(code)
		return p
	}
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// Recorder collects session events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

// Record stores an event.
func (r *Recorder) Record(e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns the recorded events.
func (r *Recorder) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []audit.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]audit.EventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

// Find returns the first event of the given type.
func (r *Recorder) Find(t audit.EventType) (audit.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == t {
			return e, true
		}
	}
	return audit.Event{}, false
}
