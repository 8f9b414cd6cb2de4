package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/Ramtinhoss/vibekit/internal/backend"
	"github.com/Ramtinhoss/vibekit/internal/config"
	"github.com/Ramtinhoss/vibekit/internal/logging"
	"github.com/Ramtinhoss/vibekit/internal/runtime"
)

// Orphan is a sandbox container that no project tracks anymore. Clean
// never reaches it, because it only removes the container named in the
// project's current session record.
type Orphan struct {
	Name       string
	ProjectDir string
	Status     runtime.ContainerStatus
	Reason     string
}

// Orphans lists the managed containers whose project is gone, has no
// session record, or records a different backend resource. Containers of
// projects with an active session are never reported.
func (o *Orchestrator) Orphans(ctx context.Context) ([]Orphan, error) {
	containers, err := o.lifecycle.Containers(ctx)
	if err != nil {
		return nil, err
	}

	var orphans []Orphan
	for _, c := range containers {
		dir := c.Labels[backend.LabelProject]
		reason := orphanReason(c.Name, dir)
		if reason == "" {
			continue
		}
		orphans = append(orphans, Orphan{Name: c.Name, ProjectDir: dir, Status: c.Status, Reason: reason})
	}

	sort.Slice(orphans, func(i, j int) bool { return orphans[i].Name < orphans[j].Name })
	return orphans, nil
}

// RemoveOrphans destroys the containers Orphans reports and returns the
// ones it removed. A failure to remove one container does not stop the
// others.
func (o *Orchestrator) RemoveOrphans(ctx context.Context) ([]Orphan, error) {
	orphans, err := o.Orphans(ctx)
	if err != nil {
		return nil, err
	}

	var removed []Orphan
	var errs []error
	for _, orphan := range orphans {
		// A session may have claimed the project since it was listed.
		if orphan.ProjectDir != "" && Active(orphan.ProjectDir) {
			continue
		}
		h := &backend.Handle{Kind: backend.KindDocker, Name: orphan.Name}
		if err := o.lifecycle.Teardown(ctx, h); err != nil {
			errs = append(errs, err)
			continue
		}
		logging.Info("removed orphaned container", "name", orphan.Name, "project", orphan.ProjectDir, "reason", orphan.Reason)
		removed = append(removed, orphan)
	}
	return removed, errors.Join(errs...)
}

// orphanReason explains why a container is untracked, or returns "" when
// its project still owns it.
func orphanReason(name, dir string) string {
	if dir == "" {
		return "no project label"
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "project directory no longer exists"
	}

	paths, err := config.NewPaths(dir)
	if err != nil {
		return "project directory is unusable"
	}
	if Active(paths.ProjectDir) {
		return ""
	}

	rec, err := config.LoadSessionRecord(paths)
	switch {
	case os.IsNotExist(err):
		return "project has no session record"
	case err != nil:
		// An unreadable record is a problem for the project, not proof
		// that the container is abandoned.
		return ""
	case backend.Kind(rec.Backend) != backend.KindDocker:
		return fmt.Sprintf("project now uses the %s backend", rec.Backend)
	case rec.ResourceName != name:
		return fmt.Sprintf("project now uses container %s", rec.ResourceName)
	}
	return ""
}
