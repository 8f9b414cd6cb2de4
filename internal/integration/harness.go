package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ramtinhoss/vibekit/internal/backend"
	"github.com/Ramtinhoss/vibekit/internal/config"
	"github.com/Ramtinhoss/vibekit/internal/lifecycle"
	"github.com/Ramtinhoss/vibekit/internal/runtime"
	"github.com/Ramtinhoss/vibekit/internal/session"
	"github.com/Ramtinhoss/vibekit/internal/system"
	"github.com/Ramtinhoss/vibekit/internal/testutil"
)

const defaultTestImage = "alpine:3.20"

// Harness drives sessions for one project directory against real
// backends.
type Harness struct {
	t        *testing.T
	dir      string
	rt       *runtime.DockerRuntime
	recorder *testutil.Recorder
	orch     *session.Orchestrator
	cfgs     []*session.Config
}

// NewHarness returns a harness for a fresh project directory, or skips the
// test when integration tests are disabled.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	if os.Getenv("VIBEKIT_INTEGRATION_TESTS") != "1" {
		t.Skip("integration tests disabled (set VIBEKIT_INTEGRATION_TESTS=1 to enable)")
	}

	h := &Harness{
		t:        t,
		dir:      t.TempDir(),
		recorder: &testutil.Recorder{},
	}
	h.build()
	t.Cleanup(h.Cleanup)
	return h
}

// RequireDocker connects the harness to the Docker daemon, skipping the
// test when none is reachable.
func (h *Harness) RequireDocker() {
	h.t.Helper()

	rt, err := runtime.NewDockerRuntime()
	if err != nil {
		h.t.Skipf("docker not available: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Ping(ctx); err != nil {
		rt.Close()
		h.t.Skipf("docker daemon not reachable: %v", err)
	}
	h.rt = rt
	h.build()
}

func (h *Harness) build() {
	var rt runtime.Runtime
	if h.rt != nil {
		rt = h.rt
	}
	lm := lifecycle.NewManager(rt,
		lifecycle.WithExecutor(system.DefaultExecutor()),
		lifecycle.WithProvisionTimeout(5*time.Minute),
	)
	h.orch = session.New(lm, session.WithRecorders(func(*config.Paths) session.Recorder { return h.recorder }))
}

// Dir returns the project directory.
func (h *Harness) Dir() string {
	return h.dir
}

// Orchestrator returns the orchestrator the harness runs sessions with.
func (h *Harness) Orchestrator() *session.Orchestrator {
	return h.orch
}

// Recorder returns the recorder every session event goes to.
func (h *Harness) Recorder() *testutil.Recorder {
	return h.recorder
}

// Config returns a session configuration for the project on the given
// backend. Docker configurations are torn down when the test ends.
func (h *Harness) Config(kind backend.Kind) *session.Config {
	cfg := &session.Config{
		WorkingDirectory: h.dir,
		Backend:          kind,
		Network:          backend.NetworkNone,
		GracePeriod:      2 * time.Second,
	}
	if kind == backend.KindDocker {
		cfg.Image = testImage()
	}
	h.cfgs = append(h.cfgs, cfg)
	return cfg
}

// Run runs argv as the agent of a complete session.
func (h *Harness) Run(ctx context.Context, cfg *session.Config, argv ...string) (*session.Report, error) {
	return h.orch.Run(ctx, cfg, backend.ExecRequest{Argv: argv})
}

// WriteFile writes a file in the project directory.
func (h *Harness) WriteFile(rel, content string) {
	testutil.WriteFile(h.t, filepath.Join(h.dir, rel), content)
}

// ReadFile reads a file from the project directory.
func (h *Harness) ReadFile(rel string) string {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(h.dir, rel))
	if err != nil {
		h.t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(data)
}

// Exists reports whether a file exists in the project directory.
func (h *Harness) Exists(rel string) bool {
	_, err := os.Stat(filepath.Join(h.dir, rel))
	return err == nil
}

// Cleanup removes everything sessions left behind, including containers.
func (h *Harness) Cleanup() {
	ctx := context.Background()
	for _, cfg := range h.cfgs {
		if err := h.orch.Clean(ctx, cfg); err != nil {
			h.t.Logf("Warning: failed to clean %s backend: %v", cfg.Backend, err)
		}
	}
	if h.rt != nil {
		h.rt.Close()
	}
}

func testImage() string {
	if img := os.Getenv("VIBEKIT_TEST_IMAGE"); img != "" {
		return img
	}
	return defaultTestImage
}
