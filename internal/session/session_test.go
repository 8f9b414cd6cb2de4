package session

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramtinhoss/vibekit/internal/audit"
	"github.com/Ramtinhoss/vibekit/internal/backend"
	"github.com/Ramtinhoss/vibekit/internal/config"
	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/lifecycle"
	"github.com/Ramtinhoss/vibekit/internal/logging"
	"github.com/Ramtinhoss/vibekit/internal/reconcile"
	"github.com/Ramtinhoss/vibekit/internal/secrets"
	"github.com/Ramtinhoss/vibekit/internal/system"
	"github.com/Ramtinhoss/vibekit/internal/testutil"
)

func newOrchestrator(env *testutil.TestEnv, opts ...Option) *Orchestrator {
	lm := lifecycle.NewManager(env.Runtime, lifecycle.WithExecutor(env.Executor))
	base := []Option{
		WithClock(env.Clock),
		WithRecorders(func(*config.Paths) Recorder { return env.Recorder }),
	}
	return New(lm, append(base, opts...)...)
}

func localConfig(env *testutil.TestEnv) *Config {
	return &Config{
		WorkingDirectory: env.Dir,
		Backend:          backend.KindLocal,
		Network:          backend.NetworkNone,
		GracePeriod:      10 * time.Second,
	}
}

func start(t *testing.T, o *Orchestrator, cfg *Config) *Session {
	t.Helper()
	s, err := o.StartSession(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.EndSession(context.Background()) })
	return s
}

func writeIn(t *testing.T, dir, rel, content string) {
	t.Helper()
	testutil.WriteFile(t, filepath.Join(dir, rel), content)
}

func TestStartSession_MirrorsProjectWithEmptyDiff(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFile("b.txt", "old")
	env.WriteFile("src/main.go", "package main")
	env.WriteFile(".git/HEAD", "ref: refs/heads/main")

	s := start(t, newOrchestrator(env), localConfig(env))

	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, env.Paths.ShadowDir, s.Handle().Root)

	data, err := os.ReadFile(env.ShadowPath("src/main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main", string(data))
	assert.NoFileExists(t, env.ShadowPath(".git/HEAD"))

	changes, err := s.Changes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changes)

	rec, err := config.LoadSessionRecord(env.Paths)
	require.NoError(t, err)
	assert.Equal(t, s.ID, rec.ID)
	assert.Equal(t, string(StateRunning), rec.State)
	assert.True(t, rec.Pending)
	assert.FileExists(t, env.Paths.BaselineFile)
}

func TestSession_AddAndDeleteScenario(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFile("b.txt", "old")
	env.Agent(0, func(dir string) {
		writeIn(t, dir, "a.txt", "x")
		require.NoError(t, os.Remove(filepath.Join(dir, "b.txt")))
	})

	s := start(t, newOrchestrator(env), localConfig(env))

	res, err := s.RunCommand(context.Background(), []string{"agent", "--edit"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	// The host is untouched until the sync.
	assert.False(t, env.Exists("a.txt"))
	assert.True(t, env.Exists("b.txt"))

	result, err := s.SyncNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "b.txt"}, result.Applied)
	assert.True(t, result.Complete())
	assert.Equal(t, "x", env.ReadFile("a.txt"))
	assert.False(t, env.Exists("b.txt"))
	assert.Equal(t, StateRunning, s.State())

	cmds := env.Executor.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, env.Paths.ShadowDir, cmds[0].Dir)
}

func TestSession_HostEditConflict(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFile("c.txt", "original")
	env.Agent(0, func(dir string) {
		writeIn(t, dir, "c.txt", "agent version")
	})

	s := start(t, newOrchestrator(env), localConfig(env))
	env.WriteFile("c.txt", "user version")

	_, err := s.RunCommand(context.Background(), []string{"agent"})
	require.NoError(t, err)

	result, err := s.SyncNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"c.txt"}, result.Conflicts())
	assert.Equal(t, "user version", env.ReadFile("c.txt"))
	assert.True(t, sberrors.IsKind(result.Err(), sberrors.KindSyncConflict))

	e, ok := env.Recorder.Find(audit.EventConflict)
	require.True(t, ok)
	assert.Equal(t, []string{"c.txt"}, e.Paths)
}

func TestSession_ForceOverwritesButNeverDeletes(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFile("c.txt", "original")
	env.WriteFile("d.txt", "original")
	env.Agent(0, func(dir string) {
		writeIn(t, dir, "c.txt", "agent version")
		require.NoError(t, os.Remove(filepath.Join(dir, "d.txt")))
	})

	cfg := localConfig(env)
	cfg.Force = true
	s := start(t, newOrchestrator(env), cfg)
	env.WriteFile("c.txt", "user version")
	env.WriteFile("d.txt", "user version")

	_, err := s.RunCommand(context.Background(), []string{"agent"})
	require.NoError(t, err)

	result, err := s.SyncNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"c.txt"}, result.Applied)
	assert.Equal(t, []string{"d.txt"}, result.Conflicts())
	assert.Equal(t, "agent version", env.ReadFile("c.txt"))
	assert.Equal(t, "user version", env.ReadFile("d.txt"))
}

func TestSession_RepeatedSyncIsIdempotent(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFile("b.txt", "old")
	env.Agent(0, func(dir string) {
		writeIn(t, dir, "a.txt", "x")
		writeIn(t, dir, "b.txt", "new")
	})

	s := start(t, newOrchestrator(env), localConfig(env))
	_, err := s.RunCommand(context.Background(), []string{"agent"})
	require.NoError(t, err)

	first, err := s.SyncNow(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Applied, 2)

	second, err := s.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.Applied)
	assert.Empty(t, second.Conflicts())
	assert.True(t, second.Complete())
	assert.Equal(t, "new", env.ReadFile("b.txt"))
}

// editRounds makes the n-th agent command apply rounds[n] to its
// working directory.
func editRounds(t *testing.T, env *testutil.TestEnv, rounds ...func(dir string)) {
	var n int
	env.Agent(0, func(dir string) {
		require.Less(t, n, len(rounds), "unexpected agent command")
		rounds[n](dir)
		n++
	})
}

func TestSession_ResyncOfAlreadySyncedFiles(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFile("m.txt", "m0")
	editRounds(t, env,
		func(dir string) {
			writeIn(t, dir, "a.txt", "v1")
			writeIn(t, dir, "m.txt", "m1")
		},
		func(dir string) {
			writeIn(t, dir, "a.txt", "v2")
			writeIn(t, dir, "m.txt", "m2")
		},
	)

	s := start(t, newOrchestrator(env), localConfig(env))
	ctx := context.Background()

	_, err := s.RunCommand(ctx, []string{"agent"})
	require.NoError(t, err)
	first, err := s.SyncNow(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt", "m.txt"}, first.Applied)

	_, err = s.RunCommand(ctx, []string{"agent"})
	require.NoError(t, err)
	second, err := s.SyncNow(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "m.txt"}, second.Applied)
	assert.Empty(t, second.Conflicts())
	assert.True(t, second.Complete())
	assert.Equal(t, "v2", env.ReadFile("a.txt"))
	assert.Equal(t, "m2", env.ReadFile("m.txt"))
}

func TestSession_ResyncStillGuardsHostEdits(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFile("m.txt", "m0")
	editRounds(t, env,
		func(dir string) { writeIn(t, dir, "m.txt", "m1") },
		func(dir string) { writeIn(t, dir, "m.txt", "m2") },
	)

	s := start(t, newOrchestrator(env), localConfig(env))
	ctx := context.Background()

	_, err := s.RunCommand(ctx, []string{"agent"})
	require.NoError(t, err)
	_, err = s.SyncNow(ctx)
	require.NoError(t, err)

	env.WriteFile("m.txt", "user edit")
	_, err = s.RunCommand(ctx, []string{"agent"})
	require.NoError(t, err)
	result, err := s.SyncNow(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"m.txt"}, result.Conflicts())
	assert.Equal(t, "user edit", env.ReadFile("m.txt"))
}

func TestSession_RevertAfterSyncRestoresHost(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFile("m.txt", "m0")
	editRounds(t, env,
		func(dir string) {
			writeIn(t, dir, "scratch.txt", "tmp")
			writeIn(t, dir, "m.txt", "m1")
		},
		func(dir string) {
			require.NoError(t, os.Remove(filepath.Join(dir, "scratch.txt")))
			writeIn(t, dir, "m.txt", "m0")
		},
	)

	s := start(t, newOrchestrator(env), localConfig(env))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.RunCommand(ctx, []string{"agent"})
		require.NoError(t, err)
		result, err := s.SyncNow(ctx)
		require.NoError(t, err)
		require.True(t, result.Complete())
	}

	assert.False(t, env.Exists("scratch.txt"))
	assert.Equal(t, "m0", env.ReadFile("m.txt"))
}

func TestSyncPending_UsesLedgerOfEarlierSyncs(t *testing.T) {
	env := testutil.NewTestEnv(t)
	editRounds(t, env,
		func(dir string) { writeIn(t, dir, "a.txt", "v1") },
		func(dir string) { writeIn(t, dir, "a.txt", "v2") },
	)
	o := newOrchestrator(env)
	ctx := context.Background()

	s, err := o.StartSession(ctx, localConfig(env))
	require.NoError(t, err)
	_, err = s.RunCommand(ctx, []string{"agent"})
	require.NoError(t, err)
	_, err = s.SyncNow(ctx)
	require.NoError(t, err)
	_, err = s.RunCommand(ctx, []string{"agent"})
	require.NoError(t, err)
	require.NoError(t, s.EndSession(ctx))
	assert.FileExists(t, env.Paths.LedgerFile)

	changes, rec, err := o.PendingChanges(ctx, env.Dir)
	require.NoError(t, err)
	assert.True(t, rec.Pending)
	assert.Contains(t, changes, "a.txt")

	result, err := o.SyncPending(ctx, env.Dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, result.Applied)
	assert.Empty(t, result.Conflicts())
	assert.Equal(t, "v2", env.ReadFile("a.txt"))

	next := start(t, o, localConfig(env))
	assert.Equal(t, StateRunning, next.State())
	assert.NoFileExists(t, env.Paths.LedgerFile, "a new session starts a new ledger")
}

func TestStartSession_SecondSessionConflicts(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Agent(0, nil)
	o := newOrchestrator(env)

	first := start(t, o, localConfig(env))

	_, err := o.StartSession(context.Background(), localConfig(env))
	require.Error(t, err)
	assert.True(t, sberrors.IsKind(err, sberrors.KindLockConflict))
	assert.Equal(t, sberrors.ExitLockConflict, sberrors.GetExitCode(err))

	// A separate orchestrator in the same process is refused as well.
	_, err = newOrchestrator(env).StartSession(context.Background(), localConfig(env))
	assert.True(t, sberrors.IsKind(err, sberrors.KindLockConflict))

	// The first session is unaffected.
	assert.Equal(t, StateRunning, first.State())
	_, err = first.RunCommand(context.Background(), []string{"true"})
	assert.NoError(t, err)
}

func TestStartSession_ConcurrentInvocations(t *testing.T) {
	env := testutil.NewTestEnv(t)
	o := newOrchestrator(env)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		started  []*Session
		failures []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := o.StartSession(context.Background(), localConfig(env))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			started = append(started, s)
		}()
	}
	wg.Wait()

	require.Len(t, started, 1)
	require.Len(t, failures, 1)
	assert.True(t, sberrors.IsKind(failures[0], sberrors.KindLockConflict))
	assert.NoError(t, started[0].EndSession(context.Background()))
}

func TestStartSession_LockHeldByAnotherProcess(t *testing.T) {
	env := testutil.NewTestEnv(t)
	require.NoError(t, env.Paths.EnsureMetaDir())

	// A lockfile naming a live process; this test process is alive.
	content := fmt.Sprintf("%d\n%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	require.NoError(t, os.WriteFile(env.Paths.LockFile, []byte(content), 0644))

	_, err := newOrchestrator(env).StartSession(context.Background(), localConfig(env))
	assert.True(t, sberrors.IsKind(err, sberrors.KindLockConflict))
}

func TestStartSession_StaleLockIsReclaimed(t *testing.T) {
	env := testutil.NewTestEnv(t)
	require.NoError(t, env.Paths.EnsureMetaDir())
	require.NoError(t, os.WriteFile(env.Paths.LockFile, []byte("999999999\n"), 0644))

	s := start(t, newOrchestrator(env), localConfig(env))
	assert.Equal(t, StateRunning, s.State())
}

func TestEndSession_ReleasesLockAndCloses(t *testing.T) {
	env := testutil.NewTestEnv(t)
	var states []State
	var mu sync.Mutex
	o := newOrchestrator(env, WithStateHook(func(_ *Session, st State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	}))

	s, err := o.StartSession(context.Background(), localConfig(env))
	require.NoError(t, err)
	assert.True(t, Active(env.Dir))

	require.NoError(t, s.EndSession(context.Background()))
	require.NoError(t, s.EndSession(context.Background()))

	assert.Equal(t, StateClosed, s.State())
	assert.False(t, Active(env.Dir))
	assert.NoFileExists(t, env.Paths.LockFile)
	assert.DirExists(t, env.Paths.ShadowDir, "shadow root is kept until clean")

	mu.Lock()
	assert.Equal(t, []State{StateProvisioning, StateRunning, StateTerminating, StateClosed}, states)
	mu.Unlock()

	rec, err := config.LoadSessionRecord(env.Paths)
	require.NoError(t, err)
	assert.Equal(t, string(StateClosed), rec.State)
	assert.False(t, rec.Pending)

	_, err = s.RunCommand(context.Background(), []string{"true"})
	assert.Error(t, err)

	assert.Equal(t, []audit.EventType{audit.EventSessionStart, audit.EventProvision, audit.EventSessionEnd},
		env.Recorder.Types())
}

func TestEndSession_UnsyncedChangesBlockNextSession(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Agent(0, func(dir string) { writeIn(t, dir, "a.txt", "x") })
	o := newOrchestrator(env)

	s, err := o.StartSession(context.Background(), localConfig(env))
	require.NoError(t, err)
	_, err = s.RunCommand(context.Background(), []string{"agent"})
	require.NoError(t, err)
	require.NoError(t, s.EndSession(context.Background()))

	rec, err := config.LoadSessionRecord(env.Paths)
	require.NoError(t, err)
	assert.True(t, rec.Pending)

	_, err = o.StartSession(context.Background(), localConfig(env))
	require.Error(t, err)
	assert.True(t, sberrors.IsKind(err, sberrors.KindPendingChanges))
	assert.False(t, Active(env.Dir), "a refused session must release the lock")

	result, err := o.SyncPending(context.Background(), env.Dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, result.Applied)
	assert.Equal(t, "x", env.ReadFile("a.txt"))

	next := start(t, o, localConfig(env))
	assert.Equal(t, StateRunning, next.State())
}

func TestRunCommand_NonZeroExitIsNotAnError(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Agent(3, nil)

	s := start(t, newOrchestrator(env), localConfig(env))
	res, err := s.RunCommand(context.Background(), []string{"make", "test"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)

	e, ok := env.Recorder.Find(audit.EventExec)
	require.True(t, ok)
	assert.Equal(t, "make test exit=3", e.Details)
	assert.Equal(t, s.ID, e.Session)
}

func TestRunCommand_TimeoutAbortsSession(t *testing.T) {
	env := testutil.NewTestEnv(t)
	var proc *system.MockProcess
	env.Executor.OnStart = func(system.Command) *system.MockProcess {
		proc = system.NewMockProcess()
		return proc
	}

	cfg := localConfig(env)
	cfg.CommandTimeout = 50 * time.Millisecond
	s, err := newOrchestrator(env).StartSession(context.Background(), cfg)
	require.NoError(t, err)

	_, err = s.RunCommand(context.Background(), []string{"sleep", "1000"})
	require.Error(t, err)
	assert.True(t, sberrors.IsKind(err, sberrors.KindTimeout))
	assert.Equal(t, StateAborted, s.State())
	assert.False(t, Active(env.Dir))

	_, kills := proc.Signals()
	assert.Equal(t, 1, kills)

	rec, err := config.LoadSessionRecord(env.Paths)
	require.NoError(t, err)
	assert.Equal(t, string(StateAborted), rec.State)
	assert.True(t, rec.Pending)
}

func TestStartSession_ProvisioningFailureAborts(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Runtime.SetError("Create", fmt.Errorf("image not found"))

	var last State
	o := newOrchestrator(env, WithStateHook(func(_ *Session, st State) { last = st }))

	cfg := localConfig(env)
	cfg.Backend = backend.KindDocker
	cfg.Image = "missing:latest"

	_, err := o.StartSession(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, sberrors.IsKind(err, sberrors.KindProvisioning))
	assert.Equal(t, StateAborted, last)
	assert.False(t, Active(env.Dir))
	assert.Empty(t, env.Executor.Commands(), "no agent code may run")

	_, ok := env.Recorder.Find(audit.EventAbort)
	assert.True(t, ok)

	env.Runtime.ClearError("Create")
	s := start(t, o, cfg)
	assert.Equal(t, StateRunning, s.State())
}

func TestStartSession_InvalidDirectory(t *testing.T) {
	env := testutil.NewTestEnv(t)
	cfg := localConfig(env)
	cfg.WorkingDirectory = filepath.Join(env.Dir, "missing")

	_, err := newOrchestrator(env).StartSession(context.Background(), cfg)
	assert.True(t, sberrors.IsKind(err, sberrors.KindConfig))
}

func TestSession_NoneBackendRunsInProject(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Agent(0, func(dir string) { writeIn(t, dir, "a.txt", "x") })

	cfg := localConfig(env)
	cfg.Backend = backend.KindNone
	s := start(t, newOrchestrator(env), cfg)

	_, err := s.RunCommand(context.Background(), []string{"agent"})
	require.NoError(t, err)
	assert.Equal(t, "x", env.ReadFile("a.txt"))

	result, err := s.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Applied)
	assert.Equal(t, reconcile.SkipUpToDate, result.Skipped["a.txt"].Reason)

	require.NoError(t, s.EndSession(context.Background()))
	rec, err := config.LoadSessionRecord(env.Paths)
	require.NoError(t, err)
	assert.False(t, rec.Pending)
	assert.NoDirExists(t, env.Paths.ShadowDir)
}

func TestSession_DockerFreshTornDownAtEnd(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFile("b.txt", "old")

	cfg := localConfig(env)
	cfg.Backend = backend.KindDocker
	cfg.Image = "ubuntu:24.04"
	name := config.ResourceName(env.Dir)

	s, err := newOrchestrator(env).StartSession(context.Background(), cfg)
	require.NoError(t, err)

	created := env.Runtime.Created[name]
	assert.Equal(t, "/workspace", created.BindMounts[env.Paths.ShadowDir])
	assert.Equal(t, "none", created.Network)

	data, err := os.ReadFile(env.ShadowPath("b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	require.NoError(t, s.EndSession(context.Background()))
	assert.Len(t, env.Runtime.GetCallsFor("Destroy"), 1)
	_, ok := env.Recorder.Find(audit.EventTeardown)
	assert.True(t, ok)
}

// captureLog sends warnings to a buffer for the rest of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logging.Setup(false, false, &buf)
	t.Cleanup(func() { logging.Setup(false, false, nil) })
	return &buf
}

func TestSession_ReuseWarnsAboutCreationTimeSecrets(t *testing.T) {
	env := testutil.NewTestEnv(t)
	o := newOrchestrator(env)

	store := secrets.NewStore()
	t.Cleanup(store.Destroy)
	store.Set("API_TOKEN", "first")

	cfg := localConfig(env)
	cfg.Backend = backend.KindDocker
	cfg.Image = "ubuntu:24.04"
	cfg.Persistent = true
	cfg.Secrets = store

	logs := captureLog(t)
	s := start(t, o, cfg)
	require.NoError(t, s.EndSession(context.Background()))
	assert.NotContains(t, logs.String(), "secret values", "a new container gets the current values")

	// Rotating a value does not change the configuration hash.
	store.Set("API_TOKEN", "rotated")
	s = start(t, o, cfg)
	require.True(t, s.Handle().Reused)
	require.NoError(t, s.EndSession(context.Background()))

	out := logs.String()
	assert.Equal(t, 1, strings.Count(out, "keeps the secret values it was created with"))
	assert.Contains(t, out, "API_TOKEN")
	assert.NotContains(t, out, "rotated")
}

func TestSession_ReuseWithoutSecretsIsQuiet(t *testing.T) {
	env := testutil.NewTestEnv(t)
	o := newOrchestrator(env)

	cfg := localConfig(env)
	cfg.Backend = backend.KindDocker
	cfg.Image = "ubuntu:24.04"
	cfg.Persistent = true

	logs := captureLog(t)
	for i := 0; i < 2; i++ {
		s := start(t, o, cfg)
		require.NoError(t, s.EndSession(context.Background()))
	}
	assert.NotContains(t, logs.String(), "secret values")
}
