package tui

import (
	"errors"
	"strings"
	"testing"

	"github.com/Ramtinhoss/vibekit/internal/backend"
	"github.com/Ramtinhoss/vibekit/internal/config"
	"github.com/Ramtinhoss/vibekit/internal/lifecycle"
	"github.com/Ramtinhoss/vibekit/internal/reconcile"
	"github.com/Ramtinhoss/vibekit/internal/runtime"
	"github.com/Ramtinhoss/vibekit/internal/session"
	"github.com/Ramtinhoss/vibekit/internal/tracker"
)

func assertContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestRenderChanges_Empty(t *testing.T) {
	out := RenderChanges(nil)
	assertContains(t, out, "No pending changes.")
}

func TestRenderChanges(t *testing.T) {
	out := RenderChanges(changeSet(
		tracker.Change{Path: "a.txt", Kind: tracker.Added},
		tracker.Change{Path: "src/main.go", Kind: tracker.Modified},
		tracker.Change{Path: "src/old.go", Kind: tracker.Deleted},
	))

	assertContains(t, out,
		"1 added, 1 modified, 1 deleted",
		"(project root)",
		"+ a.txt",
		"src/",
		"~ src/main.go",
		"- src/old.go",
	)
	if strings.Index(out, "a.txt") > strings.Index(out, "src/main.go") {
		t.Error("root files should be listed before directories")
	}
}

func TestRenderSyncReport_Nothing(t *testing.T) {
	out := RenderSyncReport(&reconcile.Result{}, nil)
	assertContains(t, out, "Nothing to synchronize.")
}

func TestRenderSyncReport_Complete(t *testing.T) {
	changes := changeSet(
		tracker.Change{Path: "a.txt", Kind: tracker.Added},
		tracker.Change{Path: "b.txt", Kind: tracker.Deleted},
	)
	result := &reconcile.Result{
		Applied: []string{"a.txt", "b.txt"},
		Skipped: map[string]reconcile.Skip{
			"c.txt": {Reason: reconcile.SkipUpToDate},
		},
	}

	out := RenderSyncReport(result, changes)
	assertContains(t, out, "✓", "Synchronized 2 of 3", "+ a.txt", "- b.txt", "1 file already up to date")
	if strings.Contains(out, "Conflicts") || strings.Contains(out, "Failed") {
		t.Errorf("complete report should not list problems:\n%s", out)
	}
}

func TestRenderSyncReport_Incomplete(t *testing.T) {
	result := &reconcile.Result{
		Applied: []string{"a.txt"},
		Skipped: map[string]reconcile.Skip{
			"c.txt": {Reason: reconcile.SkipConflict, Detail: "host modified"},
			"e.txt": {Reason: reconcile.SkipCancelled},
		},
		Failed: map[string]error{
			"d.txt": errors.New("permission denied"),
		},
	}

	out := RenderSyncReport(result, nil)
	assertContains(t, out,
		"⚠",
		"Synchronized 1 of 4",
		"~ a.txt",
		"Conflicts",
		"! c.txt",
		"host modified",
		"Failed",
		"✗ d.txt: permission denied",
		"Not attempted",
		"e.txt",
	)
	if strings.Contains(out, "up to date") {
		t.Errorf("no file was up to date:\n%s", out)
	}
}

func TestRenderStatus(t *testing.T) {
	out := RenderStatus(StatusView{
		ProjectDir: "/work/app",
		Backend: &lifecycle.Status{
			Kind:    backend.KindDocker,
			Name:    "vibekit-app-1234",
			State:   backend.StateRunning,
			Drifted: true,
		},
		Record: &config.SessionRecord{
			ID:        "3f2a",
			State:     "closed",
			CreatedAt: "2026-03-02T10:00:00Z",
			Pending:   true,
		},
	})

	assertContains(t, out,
		"/work/app",
		"docker",
		"vibekit-app-1234",
		"running",
		"drifted",
		"none",
		"3f2a closed",
		"unsynced changes",
	)
}

func TestRenderStatus_LocalNotCreated(t *testing.T) {
	out := RenderStatus(StatusView{
		ProjectDir: "/work/app",
		Backend:    &lifecycle.Status{Kind: backend.KindLocal, Name: "vibekit-app-1234", State: backend.StateNotCreated},
		Active:     true,
	})

	assertContains(t, out, "local", "not created", "active")
	if strings.Contains(out, "vibekit-app-1234") {
		t.Error("local backends have no container name to show")
	}
	if strings.Contains(out, "Pending") {
		t.Error("no record means nothing pending")
	}
}

func TestRenderStatus_Orphans(t *testing.T) {
	out := RenderStatus(StatusView{
		ProjectDir: "/work/app",
		Orphans: []session.Orphan{
			{Name: "vibekit-old-99aa", ProjectDir: "/work/old", Status: runtime.StatusStopped, Reason: "project directory no longer exists"},
		},
	})

	assertContains(t, out,
		"1 untracked container(s)",
		"vibekit clean --orphans",
		"vibekit-old-99aa",
		"stopped",
		"project directory no longer exists",
	)
}
