package cmd

import (
	"fmt"
	"io"

	"github.com/Ramtinhoss/vibekit/internal/app"
	"github.com/Ramtinhoss/vibekit/internal/config"
	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/reconcile"
	"github.com/Ramtinhoss/vibekit/internal/session"
	"github.com/Ramtinhoss/vibekit/internal/tracker"
	"github.com/Ramtinhoss/vibekit/internal/tui"
)

// loadProject resolves the project directory and loads its configuration.
func loadProject() (*config.Paths, *config.ProjectConfig, error) {
	dir, err := projectDir()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to determine working directory: %w", err)
	}
	return app.Default.Project(dir)
}

// inspectProject loads the project and a session configuration suitable
// for inspecting or removing its backend. A non-empty kind overrides the
// configured backend.
func inspectProject(kind string) (*config.Paths, *config.ProjectConfig, *session.Config, error) {
	paths, pc, err := loadProject()
	if err != nil {
		return nil, nil, nil, err
	}
	if kind != "" {
		pc.Sandbox.Backend = kind
		if err := pc.Validate(); err != nil {
			return nil, nil, nil, sberrors.ConfigError("invalid --sandbox", err)
		}
	}

	cfg, err := app.Default.InspectConfig(paths, pc)
	if err != nil {
		return nil, nil, nil, err
	}
	return paths, pc, cfg, nil
}

// orchestrator returns the application's session orchestrator.
func orchestrator(pc *config.ProjectConfig) *session.Orchestrator {
	return app.Default.Orchestrator(pc)
}

// printSyncReport prints what a sync did and did not apply.
func printSyncReport(w io.Writer, result *reconcile.Result, changes tracker.ChangeSet) {
	if result == nil {
		return
	}
	fmt.Fprint(w, tui.RenderSyncReport(result, changes))
}
