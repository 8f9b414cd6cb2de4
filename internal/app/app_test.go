package app

import (
	"context"
	"testing"

	"github.com/Ramtinhoss/vibekit/internal/backend"
	"github.com/Ramtinhoss/vibekit/internal/config"
	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/runtime"
	"github.com/Ramtinhoss/vibekit/internal/session"
	"github.com/Ramtinhoss/vibekit/internal/testutil"
)

func testApp(env *testutil.TestEnv, opts ...Option) *App {
	base := []Option{
		WithRuntime(env.Runtime),
		WithExecutor(env.Executor),
		WithClock(env.Clock),
		WithRecorders(func(*config.Paths) session.Recorder { return env.Recorder }),
		WithLookupEnv(func(string) (string, bool) { return "", false }),
	}
	return New(append(base, opts...)...)
}

func TestNew(t *testing.T) {
	app := New(WithRuntime(runtime.NewMockRuntime()))

	if app == nil {
		t.Fatal("New() returned nil")
	}
	if app.Executor == nil {
		t.Error("Executor should not be nil")
	}
	if app.Clock == nil {
		t.Error("Clock should not be nil")
	}
}

func TestNew_WithRuntime(t *testing.T) {
	mockRuntime := runtime.NewMockRuntime()

	app := New(WithRuntime(mockRuntime))

	if app.Runtime != mockRuntime {
		t.Error("WithRuntime did not set runtime")
	}
	if app.runtime() != mockRuntime {
		t.Error("runtime() replaced an injected runtime")
	}
}

func TestProject_Defaults(t *testing.T) {
	env := testutil.NewTestEnv(t)

	paths, pc, err := testApp(env).Project(env.Dir)
	if err != nil {
		t.Fatalf("Project() error: %v", err)
	}
	if paths.ProjectDir != env.Dir {
		t.Errorf("ProjectDir = %q, want %q", paths.ProjectDir, env.Dir)
	}
	if pc.Sandbox.Backend != config.DefaultBackend {
		t.Errorf("Backend = %q, want default %q", pc.Sandbox.Backend, config.DefaultBackend)
	}
}

func TestProject_LoadsConfigFile(t *testing.T) {
	env := testutil.NewTestEnv(t)
	pc := config.DefaultProjectConfig()
	pc.Sandbox.Backend = "local"
	pc.Sync.Ignore = []string{"dist"}
	env.SaveProjectConfig(pc)

	_, got, err := testApp(env).Project(env.Dir)
	if err != nil {
		t.Fatalf("Project() error: %v", err)
	}
	if got.Sandbox.Backend != "local" {
		t.Errorf("Backend = %q, want local", got.Sandbox.Backend)
	}
	if len(got.Sync.Ignore) != 1 || got.Sync.Ignore[0] != "dist" {
		t.Errorf("Ignore = %v, want [dist]", got.Sync.Ignore)
	}
}

func TestProject_InvalidConfig(t *testing.T) {
	env := testutil.NewTestEnv(t)
	data, err := testutil.LoadFixture("invalid_project_config.toml")
	if err != nil {
		t.Fatalf("LoadFixture() error: %v", err)
	}
	testutil.WriteFile(t, env.Paths.ConfigFile, string(data))

	_, _, err = testApp(env).Project(env.Dir)
	if !sberrors.IsKind(err, sberrors.KindConfig) {
		t.Errorf("Project() error = %v, want config error", err)
	}
	if sberrors.GetExitCode(err) != sberrors.ExitConfigError {
		t.Errorf("exit code = %d, want %d", sberrors.GetExitCode(err), sberrors.ExitConfigError)
	}
}

func TestSessionConfig_LoadsSecrets(t *testing.T) {
	env := testutil.NewTestEnv(t)
	lookup := func(name string) (string, bool) {
		if name == "API_TOKEN" {
			return "s3cret", true
		}
		return "", false
	}
	app := testApp(env, WithLookupEnv(lookup))

	paths, pc, err := app.Project(env.Dir)
	if err != nil {
		t.Fatalf("Project() error: %v", err)
	}
	pc.Secrets.Env = []string{"API_TOKEN"}

	cfg, err := app.SessionConfig(paths, pc)
	if err != nil {
		t.Fatalf("SessionConfig() error: %v", err)
	}
	defer cfg.Secrets.Destroy()

	if cfg.WorkingDirectory != env.Dir {
		t.Errorf("WorkingDirectory = %q, want %q", cfg.WorkingDirectory, env.Dir)
	}
	if cfg.Secrets.Len() != 1 {
		t.Errorf("Secrets.Len() = %d, want 1", cfg.Secrets.Len())
	}
}

func TestSessionConfig_MissingSecret(t *testing.T) {
	env := testutil.NewTestEnv(t)
	app := testApp(env)

	paths, pc, err := app.Project(env.Dir)
	if err != nil {
		t.Fatalf("Project() error: %v", err)
	}
	pc.Secrets.Env = []string{"NOT_SET"}

	_, err = app.SessionConfig(paths, pc)
	if !sberrors.IsKind(err, sberrors.KindConfig) {
		t.Errorf("SessionConfig() error = %v, want config error", err)
	}
}

func TestInspectConfig_NeedsNoSecretValues(t *testing.T) {
	env := testutil.NewTestEnv(t)
	app := testApp(env)

	paths, pc, err := app.Project(env.Dir)
	if err != nil {
		t.Fatalf("Project() error: %v", err)
	}
	pc.Secrets.Env = []string{"NOT_SET"}

	cfg, err := app.InspectConfig(paths, pc)
	if err != nil {
		t.Fatalf("InspectConfig() error: %v", err)
	}
	defer cfg.Secrets.Destroy()

	names := cfg.Secrets.Names()
	if len(names) != 1 || names[0] != "NOT_SET" {
		t.Errorf("Secrets.Names() = %v, want [NOT_SET]", names)
	}
}

func TestOrchestrator_StateHook(t *testing.T) {
	env := testutil.NewTestEnv(t)
	app := testApp(env)

	var states []session.State
	app.StateHook = func(_ *session.Session, st session.State) {
		states = append(states, st)
	}

	paths, pc, err := app.Project(env.Dir)
	if err != nil {
		t.Fatalf("Project() error: %v", err)
	}
	cfg, err := app.SessionConfig(paths, pc)
	if err != nil {
		t.Fatalf("SessionConfig() error: %v", err)
	}

	s, err := app.Orchestrator(pc).StartSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}
	if err := s.EndSession(context.Background()); err != nil {
		t.Fatalf("EndSession() error: %v", err)
	}

	if len(states) == 0 || states[0] != session.StateProvisioning {
		t.Errorf("states = %v, want provisioning first", states)
	}
	if states[len(states)-1] != session.StateClosed {
		t.Errorf("last state = %q, want closed", states[len(states)-1])
	}
}

func TestOrchestrator_ReusedAndUsable(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFile("a.txt", "hello")
	app := testApp(env)

	paths, pc, err := app.Project(env.Dir)
	if err != nil {
		t.Fatalf("Project() error: %v", err)
	}
	pc.Sandbox.Backend = "local"

	o := app.Orchestrator(pc)
	if app.Orchestrator(pc) != o {
		t.Error("Orchestrator() should return the same instance")
	}

	cfg, err := app.SessionConfig(paths, pc)
	if err != nil {
		t.Fatalf("SessionConfig() error: %v", err)
	}

	s, err := o.StartSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("StartSession() error: %v", err)
	}
	if s.Backend != backend.KindLocal {
		t.Errorf("Backend = %q, want local", s.Backend)
	}
	if err := s.EndSession(context.Background()); err != nil {
		t.Fatalf("EndSession() error: %v", err)
	}
	if len(env.Recorder.Events()) == 0 {
		t.Error("expected events through the injected recorder")
	}
}

func TestClose_WithoutEngine(t *testing.T) {
	app := New(WithRuntime(runtime.NewMockRuntime()))
	if err := app.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestSetDefault(t *testing.T) {
	// Save original default
	original := Default
	defer func() { Default = original }()

	customApp := New(WithRuntime(runtime.NewMockRuntime()))
	SetDefault(customApp)

	if Default != customApp {
		t.Error("SetDefault did not update Default")
	}
}

func TestResetDefault(t *testing.T) {
	// Save original default
	original := Default
	defer func() { Default = original }()

	customApp := New(WithRuntime(runtime.NewMockRuntime()))
	SetDefault(customApp)

	ResetDefault()

	if Default == customApp {
		t.Error("ResetDefault did not create new Default")
	}
}
