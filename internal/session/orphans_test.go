package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramtinhoss/vibekit/internal/backend"
	"github.com/Ramtinhoss/vibekit/internal/runtime"
	"github.com/Ramtinhoss/vibekit/internal/testutil"
)

func managedLabels(project string) map[string]string {
	labels := map[string]string{runtime.LabelManaged: "true"}
	if project != "" {
		labels[backend.LabelProject] = project
	}
	return labels
}

func persistentDocker(env *testutil.TestEnv) *Config {
	cfg := localConfig(env)
	cfg.Backend = backend.KindDocker
	cfg.Image = "ubuntu:24.04"
	cfg.Persistent = true
	return cfg
}

func orphanNames(orphans []Orphan) []string {
	var names []string
	for _, o := range orphans {
		names = append(names, o.Name)
	}
	return names
}

func TestOrphans_TrackedContainerIsNotReported(t *testing.T) {
	env := testutil.NewTestEnv(t)
	o := newOrchestrator(env)

	s := start(t, o, persistentDocker(env))
	require.NoError(t, s.EndSession(context.Background()))
	require.Len(t, env.Runtime.Containers, 1)

	orphans, err := o.Orphans(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestOrphans_ReportsUntrackedContainers(t *testing.T) {
	env := testutil.NewTestEnv(t)
	o := newOrchestrator(env)

	removed := filepath.Join(t.TempDir(), "deleted-project")
	unrecorded := t.TempDir()
	env.Runtime.AddContainer("vibekit-gone", runtime.StatusStopped, managedLabels(removed))
	env.Runtime.AddContainer("vibekit-unrecorded", runtime.StatusRunning, managedLabels(unrecorded))
	env.Runtime.AddContainer("vibekit-unlabeled", runtime.StatusStopped, managedLabels(""))
	env.Runtime.AddContainer("postgres", runtime.StatusRunning, map[string]string{"app": "db"})

	orphans, err := o.Orphans(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"vibekit-gone", "vibekit-unlabeled", "vibekit-unrecorded"}, orphanNames(orphans))

	assert.Equal(t, "project directory no longer exists", orphans[0].Reason)
	assert.Equal(t, removed, orphans[0].ProjectDir)
	assert.Equal(t, runtime.StatusStopped, orphans[0].Status)
	assert.Equal(t, "no project label", orphans[1].Reason)
	assert.Equal(t, "project has no session record", orphans[2].Reason)
	assert.Equal(t, runtime.StatusRunning, orphans[2].Status)
}

func TestOrphans_ProjectSwitchedBackend(t *testing.T) {
	env := testutil.NewTestEnv(t)
	o := newOrchestrator(env)

	s := start(t, o, persistentDocker(env))
	require.NoError(t, s.EndSession(context.Background()))

	s = start(t, o, localConfig(env))
	require.NoError(t, s.EndSession(context.Background()))

	orphans, err := o.Orphans(context.Background())
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, env.Paths.ProjectDir, orphans[0].ProjectDir)
	assert.Equal(t, "project now uses the local backend", orphans[0].Reason)
}

func TestOrphans_ProjectWithActiveSessionIsSkipped(t *testing.T) {
	env := testutil.NewTestEnv(t)
	o := newOrchestrator(env)
	env.Runtime.AddContainer("vibekit-leftover", runtime.StatusStopped, managedLabels(env.Paths.ProjectDir))

	s := start(t, o, localConfig(env))
	orphans, err := o.Orphans(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orphans)

	require.NoError(t, s.EndSession(context.Background()))
	orphans, err = o.Orphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"vibekit-leftover"}, orphanNames(orphans))
}

func TestRemoveOrphans(t *testing.T) {
	env := testutil.NewTestEnv(t)
	o := newOrchestrator(env)

	s := start(t, o, persistentDocker(env))
	require.NoError(t, s.EndSession(context.Background()))
	tracked := s.Handle().Name
	env.Runtime.AddContainer("vibekit-gone", runtime.StatusRunning, managedLabels(filepath.Join(t.TempDir(), "x")))

	removed, err := o.RemoveOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"vibekit-gone"}, orphanNames(removed))
	assert.Contains(t, env.Runtime.Containers, tracked)
	assert.NotContains(t, env.Runtime.Containers, "vibekit-gone")

	removed, err = o.RemoveOrphans(context.Background())
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestRemoveOrphans_DestroyFailure(t *testing.T) {
	env := testutil.NewTestEnv(t)
	o := newOrchestrator(env)
	env.Runtime.AddContainer("vibekit-gone", runtime.StatusRunning, managedLabels(filepath.Join(t.TempDir(), "x")))
	env.Runtime.Errors["Destroy"] = errors.New("device busy")

	removed, err := o.RemoveOrphans(context.Background())
	assert.Error(t, err)
	assert.Empty(t, removed)
	assert.Contains(t, env.Runtime.Containers, "vibekit-gone")
}
