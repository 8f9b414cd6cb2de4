// Package app provides the application context for vibekit.
// It allows dependency injection for testing.
package app

import (
	"sync"

	"github.com/Ramtinhoss/vibekit/internal/clock"
	"github.com/Ramtinhoss/vibekit/internal/config"
	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/lifecycle"
	"github.com/Ramtinhoss/vibekit/internal/logging"
	"github.com/Ramtinhoss/vibekit/internal/runtime"
	"github.com/Ramtinhoss/vibekit/internal/secrets"
	"github.com/Ramtinhoss/vibekit/internal/session"
	"github.com/Ramtinhoss/vibekit/internal/system"
)

// App holds the application dependencies
type App struct {
	// Runtime is the container runtime. It is nil when no container
	// engine was found; only the docker backend needs it.
	Runtime runtime.Runtime

	// Executor starts host processes for the none and local backends
	Executor system.Executor

	// Clock drives the agent shutdown grace period
	Clock clock.Clock

	// LookupEnv resolves secret values
	LookupEnv secrets.LookupFunc

	// Recorders overrides the per-project event log
	Recorders session.RecorderFactory

	// StateHook observes session state transitions.
	StateHook func(*session.Session, session.State)

	mu     sync.Mutex
	orch   *session.Orchestrator
	detect bool
}

// Option is a function that configures the App
type Option func(*App)

// WithRuntime sets a custom runtime
func WithRuntime(r runtime.Runtime) Option {
	return func(a *App) {
		a.Runtime = r
	}
}

// WithExecutor sets a custom host process executor
func WithExecutor(e system.Executor) Option {
	return func(a *App) {
		a.Executor = e
	}
}

// WithClock sets a custom clock
func WithClock(c clock.Clock) Option {
	return func(a *App) {
		a.Clock = c
	}
}

// WithLookupEnv sets how secret values are read from the environment
func WithLookupEnv(f secrets.LookupFunc) Option {
	return func(a *App) {
		a.LookupEnv = f
	}
}

// WithRecorders sets a custom event recorder factory
func WithRecorders(f session.RecorderFactory) Option {
	return func(a *App) {
		a.Recorders = f
	}
}

// New creates a new App with the given options.
// If runtime is not provided via WithRuntime, it is detected on first use.
func New(opts ...Option) *App {
	app := &App{
		Executor: system.DefaultExecutor(),
		Clock:    clock.Real(),
	}

	for _, opt := range opts {
		opt(app)
	}
	app.detect = app.Runtime == nil

	return app
}

// runtime returns the container runtime, connecting to the engine on
// first use. A missing engine is not an error until a docker session
// needs it.
func (a *App) runtime() runtime.Runtime {
	if a.detect {
		a.detect = false
		rt, err := runtime.NewDockerRuntime()
		if err != nil {
			logging.Debug("failed to initialize runtime", "error", err)
		} else {
			a.Runtime = rt
		}
	}
	return a.Runtime
}

// Project loads the paths and configuration of the project at dir. A
// project without a config file gets the defaults.
func (a *App) Project(dir string) (*config.Paths, *config.ProjectConfig, error) {
	paths, err := config.NewPaths(dir)
	if err != nil {
		return nil, nil, sberrors.ConfigError("invalid working directory", err)
	}

	pc, err := config.LoadProjectConfig(paths.ConfigFile)
	if err != nil {
		return nil, nil, sberrors.ConfigError("failed to load "+paths.ConfigFile, err)
	}
	return paths, pc, nil
}

// SessionConfig builds a session configuration from a project
// configuration and loads its secrets from the environment.
func (a *App) SessionConfig(paths *config.Paths, pc *config.ProjectConfig) (*session.Config, error) {
	cfg, err := session.FromProject(paths.ProjectDir, pc)
	if err != nil {
		return nil, err
	}

	store, err := secrets.Load(pc.Secrets.Env, a.LookupEnv)
	if err != nil {
		return nil, sberrors.ConfigError("failed to load secrets", err)
	}
	cfg.Secrets = store
	return cfg, nil
}

// InspectConfig builds a session configuration for commands that inspect
// or remove a backend but never start one. Secrets carry their names
// only, which is all the drift check needs.
func (a *App) InspectConfig(paths *config.Paths, pc *config.ProjectConfig) (*session.Config, error) {
	cfg, err := session.FromProject(paths.ProjectDir, pc)
	if err != nil {
		return nil, err
	}

	store := secrets.NewStore()
	for _, name := range pc.Secrets.Env {
		store.Set(name, "")
	}
	cfg.Secrets = store
	return cfg, nil
}

// Orchestrator returns the process-wide session orchestrator, creating
// it on first use with the given provisioning bound.
func (a *App) Orchestrator(pc *config.ProjectConfig) *session.Orchestrator {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.orch != nil {
		return a.orch
	}

	lm := lifecycle.NewManager(a.runtime(),
		lifecycle.WithExecutor(a.Executor),
		lifecycle.WithProvisionTimeout(pc.Sandbox.ProvisionTimeout.Duration),
	)

	opts := []session.Option{
		session.WithClock(a.Clock),
		session.WithStateHook(func(s *session.Session, st session.State) {
			if hook := a.StateHook; hook != nil {
				hook(s, st)
			}
		}),
	}
	if a.Recorders != nil {
		opts = append(opts, session.WithRecorders(a.Recorders))
	}
	a.orch = session.New(lm, opts...)
	return a.orch
}

// Close releases the container engine connection.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.Runtime.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Default is the default application instance
var Default = New()

// SetDefault sets the default application instance (used for testing)
func SetDefault(app *App) {
	Default = app
}

// ResetDefault resets to the default application instance
func ResetDefault() {
	Default = New()
}
