// Package lifecycle decides whether a session gets a reused or a freshly
// provisioned backend, and detects configuration drift on persistent
// containers.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ramtinhoss/vibekit/internal/backend"
	"github.com/Ramtinhoss/vibekit/internal/config"
	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/logging"
	"github.com/Ramtinhoss/vibekit/internal/runtime"
	"github.com/Ramtinhoss/vibekit/internal/system"
)

// cleanupTimeout bounds best-effort removal of a half-provisioned resource.
const cleanupTimeout = 30 * time.Second

// Status is the observed state of a project's backend resource.
type Status struct {
	Kind       backend.Kind
	Name       string
	State      backend.State
	ConfigHash string
	Drifted    bool // the resource exists but was created with other parameters
}

// Installed reports whether the resource exists.
func (s *Status) Installed() bool {
	return s.State != backend.StateNotCreated
}

// Running reports whether the resource is running.
func (s *Status) Running() bool {
	return s.State == backend.StateRunning
}

// Manager ensures backends are ready for sessions.
type Manager struct {
	rt               runtime.Runtime
	executor         system.Executor
	provisionTimeout time.Duration

	mu        sync.Mutex
	providers map[backend.Kind]backend.Provider

	registry *registry
}

// Option configures a Manager.
type Option func(*Manager)

// WithProvisionTimeout bounds EnsureReady. Zero disables the bound.
func WithProvisionTimeout(d time.Duration) Option {
	return func(m *Manager) { m.provisionTimeout = d }
}

// WithExecutor sets the host process executor used by the none and local
// backends.
func WithExecutor(e system.Executor) Option {
	return func(m *Manager) { m.executor = e }
}

// WithProvider overrides the provider for its kind.
func WithProvider(p backend.Provider) Option {
	return func(m *Manager) { m.providers[p.Kind()] = p }
}

// NewManager creates a Manager. rt may be nil when the docker backend is
// not used.
func NewManager(rt runtime.Runtime, opts ...Option) *Manager {
	m := &Manager{
		rt:               rt,
		provisionTimeout: config.DefaultProvisionTimeout,
		providers:        make(map[backend.Kind]backend.Provider),
		registry:         newRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Provider returns the provider for kind, creating it on first use.
func (m *Manager) Provider(kind backend.Kind) (backend.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.providers[kind]; ok {
		return p, nil
	}
	p, err := backend.New(kind, backend.Options{Runtime: m.rt, Executor: m.executor})
	if err != nil {
		return nil, err
	}
	m.providers[kind] = p
	return p, nil
}

func lockKey(cfg *backend.Config) string {
	return string(cfg.Kind) + "/" + cfg.Name
}

// EnsureReady returns a ready backend for cfg.
//
// A persistent resource whose stored parameters match cfg is resumed. A
// persistent resource whose parameters drifted is destroyed and
// provisioned again. In fresh mode any previous resource with the same
// name is destroyed first. The returned handle always reflects cfg.
func (m *Manager) EnsureReady(ctx context.Context, cfg *backend.Config) (*backend.Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sberrors.ConfigError("invalid sandbox configuration", err)
	}

	p, err := m.Provider(cfg.Kind)
	if err != nil {
		return nil, err
	}

	release := m.registry.lock(lockKey(cfg))
	defer release()

	pctx := ctx
	if m.provisionTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, m.provisionTimeout)
		defer cancel()
	}

	h, err := m.ensureReady(pctx, p, cfg)
	if err != nil {
		return nil, m.classify(ctx, pctx, err)
	}
	return h, nil
}

func (m *Manager) ensureReady(ctx context.Context, p backend.Provider, cfg *backend.Config) (*backend.Handle, error) {
	ins, err := p.Inspect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	want := cfg.Hash()
	recreated := false

	if ins.State != backend.StateNotCreated {
		switch {
		case cfg.Persistent && ins.ConfigHash == want:
			logging.Info("reusing sandbox", "backend", cfg.Kind, "name", cfg.Name, "state", ins.State)
			return p.Resume(ctx, cfg, ins)

		case cfg.Persistent:
			logging.Info("sandbox configuration changed, recreating",
				"backend", cfg.Kind, "name", cfg.Name, "want", want, "got", ins.ConfigHash)
			recreated = true

		default:
			logging.Debug("fresh mode, removing previous sandbox", "backend", cfg.Kind, "name", cfg.Name)
		}

		if err := p.Teardown(ctx, cfg.Handle()); err != nil {
			return nil, sberrors.ProvisioningError(fmt.Sprintf("failed to remove previous sandbox %s", cfg.Name), err)
		}
	}

	logging.Info("provisioning sandbox", "backend", cfg.Kind, "name", cfg.Name)
	h, err := p.Provision(ctx, cfg)
	if err != nil {
		m.cleanupFailed(ctx, p, cfg)
		return nil, err
	}
	h.Recreated = recreated
	return h, nil
}

// cleanupFailed removes whatever a failed provision left behind.
func (m *Manager) cleanupFailed(ctx context.Context, p backend.Provider, cfg *backend.Config) {
	if cfg.Kind != backend.KindDocker {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := p.Teardown(cctx, cfg.Handle()); err != nil {
		logging.Warn("failed to clean up after provisioning failure", "name", cfg.Name, "error", err)
	}
}

// classify maps a provisioning failure onto the error taxonomy. pctx is
// the context bounded by the provisioning timeout.
func (m *Manager) classify(ctx, pctx context.Context, err error) error {
	if ctx.Err() == nil && errors.Is(pctx.Err(), context.DeadlineExceeded) {
		return sberrors.TimeoutError("provisioning", m.provisionTimeout, err)
	}

	var sbErr *sberrors.SandboxError
	if errors.As(err, &sbErr) {
		return err
	}
	return sberrors.ProvisioningError("failed to provision sandbox", err)
}

// Stop stops a backend resource but keeps it for reuse.
func (m *Manager) Stop(ctx context.Context, h *backend.Handle) error {
	p, err := m.Provider(h.Kind)
	if err != nil {
		return err
	}

	release := m.registry.lock(string(h.Kind) + "/" + h.Name)
	defer release()

	return p.Stop(ctx, h)
}

// Teardown destroys a backend resource.
func (m *Manager) Teardown(ctx context.Context, h *backend.Handle) error {
	p, err := m.Provider(h.Kind)
	if err != nil {
		return err
	}

	release := m.registry.lock(string(h.Kind) + "/" + h.Name)
	defer release()

	return p.Teardown(ctx, h)
}

// Status reports the three-state status of cfg's resource and whether it
// drifted from cfg.
func (m *Manager) Status(ctx context.Context, cfg *backend.Config) (*Status, error) {
	p, err := m.Provider(cfg.Kind)
	if err != nil {
		return nil, err
	}

	ins, err := p.Inspect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Status{
		Kind:       cfg.Kind,
		Name:       cfg.Name,
		State:      ins.State,
		ConfigHash: ins.ConfigHash,
		Drifted:    ins.State != backend.StateNotCreated && ins.ConfigHash != cfg.Hash(),
	}, nil
}

// Containers lists every container vibekit created, across all projects.
// Without a container runtime there are none.
func (m *Manager) Containers(ctx context.Context) ([]*runtime.ContainerInfo, error) {
	if m.rt == nil {
		return nil, nil
	}
	containers, err := m.rt.List(ctx)
	if err != nil {
		return nil, sberrors.ProvisioningError("failed to list sandbox containers", err)
	}
	return containers, nil
}
