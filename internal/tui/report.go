package tui

import (
	"fmt"
	"strings"

	"github.com/Ramtinhoss/vibekit/internal/backend"
	"github.com/Ramtinhoss/vibekit/internal/config"
	"github.com/Ramtinhoss/vibekit/internal/lifecycle"
	"github.com/Ramtinhoss/vibekit/internal/reconcile"
	"github.com/Ramtinhoss/vibekit/internal/session"
	"github.com/Ramtinhoss/vibekit/internal/tracker"
)

const maxPathWidth = 60

// RenderChanges lists pending changes grouped by top-level directory.
func RenderChanges(changes tracker.ChangeSet) string {
	if len(changes) == 0 {
		return mutedStyle.Render("No pending changes.") + "\n"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Pending changes"))
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("  %d added, %d modified, %d deleted",
		changes.Count(tracker.Added), changes.Count(tracker.Modified), changes.Count(tracker.Deleted))))
	sb.WriteString("\n")

	for _, g := range groupChanges(changes) {
		sb.WriteString("\n" + groupHeader(g) + "\n")
		for _, c := range g.changes {
			fmt.Fprintf(&sb, "  %s %s\n", kindMarker(c.Kind), shortenPath(c.Path, maxPathWidth))
		}
	}
	return sb.String()
}

// RenderSyncReport describes what a sync did and did not apply. changes
// supplies the kind of each applied path and may be nil.
func RenderSyncReport(result *reconcile.Result, changes tracker.ChangeSet) string {
	var sb strings.Builder

	total := len(result.Applied) + len(result.Skipped) + len(result.Failed)
	if total == 0 {
		return mutedStyle.Render("Nothing to synchronize.") + "\n"
	}

	heading := fmt.Sprintf("Synchronized %d of %d", len(result.Applied), total)
	if result.Complete() {
		sb.WriteString(okStyle.Render("✓ ") + titleStyle.Render(heading) + "\n")
	} else {
		sb.WriteString(warningStyle.Render("⚠ ") + titleStyle.Render(heading) + "\n")
	}

	for _, p := range result.Applied {
		kind := tracker.Modified
		if c, ok := changes[p]; ok {
			kind = c.Kind
		}
		fmt.Fprintf(&sb, "  %s %s\n", kindMarker(kind), shortenPath(p, maxPathWidth))
	}

	if conflicts := result.Conflicts(); len(conflicts) > 0 {
		sb.WriteString("\n" + warningStyle.Render("Conflicts") +
			mutedStyle.Render(" (host files changed during the session; kept the host version)") + "\n")
		for _, p := range conflicts {
			line := "  ! " + shortenPath(p, maxPathWidth)
			if d := result.Skipped[p].Detail; d != "" {
				line += mutedStyle.Render("  " + d)
			}
			sb.WriteString(line + "\n")
		}
	}

	if failed := result.FailedPaths(); len(failed) > 0 {
		sb.WriteString("\n" + errorStyle.Render("Failed") + "\n")
		for _, p := range failed {
			fmt.Fprintf(&sb, "  ✗ %s: %v\n", shortenPath(p, maxPathWidth), result.Failed[p])
		}
	}

	if cancelled := result.Cancelled(); len(cancelled) > 0 {
		sb.WriteString("\n" + errorStyle.Render("Not attempted") + mutedStyle.Render(" (cancelled)") + "\n")
		for _, p := range cancelled {
			sb.WriteString("  · " + shortenPath(p, maxPathWidth) + "\n")
		}
	}

	upToDate := len(result.Skipped) - len(result.Conflicts()) - len(result.Cancelled())
	if upToDate > 0 {
		sb.WriteString(mutedStyle.Render(fmt.Sprintf("  %s already up to date", plural(upToDate, "file"))) + "\n")
	}

	return sb.String()
}

// StatusView is everything `status` reports about a project.
type StatusView struct {
	ProjectDir string
	Backend    *lifecycle.Status
	// Record is the last session's record; nil when there is none.
	Record *config.SessionRecord
	// Active is set when a session currently holds the project.
	Active bool
	// Orphans are vibekit containers of any project that nothing tracks.
	Orphans []session.Orphan
}

// RenderStatus renders a project's backend and session status.
func RenderStatus(v StatusView) string {
	var sb strings.Builder

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(label) + value + "\n")
	}

	sb.WriteString(titleStyle.Render(v.ProjectDir) + "\n")

	if st := v.Backend; st != nil {
		backendLine := string(st.Kind)
		if st.Kind == backend.KindDocker {
			backendLine += mutedStyle.Render(" (" + st.Name + ")")
		}
		row("Backend", backendLine)

		state := stateLabel(st.State)
		if st.Drifted {
			state += " " + warningStyle.Render("drifted; next session recreates it")
		}
		row("State", state)
	}

	if v.Active {
		row("Session", okStyle.Render("active"))
	} else {
		row("Session", mutedStyle.Render("none"))
	}

	if rec := v.Record; rec != nil {
		row("Last", fmt.Sprintf("%s %s %s", rec.ID, rec.State,
			mutedStyle.Render(rec.CreatedAt)))
		if rec.Pending {
			row("Pending", warningStyle.Render("unsynced changes")+mutedStyle.Render("; run 'vibekit diff' or 'vibekit sync'"))
		}
	}

	if len(v.Orphans) > 0 {
		row("Orphans", warningStyle.Render(fmt.Sprintf("%d untracked container(s)", len(v.Orphans)))+
			mutedStyle.Render("; run 'vibekit clean --orphans'"))
		for _, o := range v.Orphans {
			sb.WriteString("  " + o.Name + mutedStyle.Render(fmt.Sprintf(" %s, %s", o.Status, o.Reason)) + "\n")
		}
	}

	return sb.String()
}

func stateLabel(s backend.State) string {
	switch s {
	case backend.StateRunning:
		return okStyle.Render("running")
	case backend.StateStopped:
		return modifiedStyle.Render("stopped")
	default:
		return mutedStyle.Render("not created")
	}
}
