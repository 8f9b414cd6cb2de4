package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Ramtinhoss/vibekit/internal/audit"
	"github.com/Ramtinhoss/vibekit/internal/backend"
	"github.com/Ramtinhoss/vibekit/internal/config"
	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/lifecycle"
	"github.com/Ramtinhoss/vibekit/internal/lockfile"
	"github.com/Ramtinhoss/vibekit/internal/logging"
	"github.com/Ramtinhoss/vibekit/internal/reconcile"
	"github.com/Ramtinhoss/vibekit/internal/tracker"
)

// Status reports the three-state status of the backend cfg describes.
func (o *Orchestrator) Status(ctx context.Context, cfg *Config) (*lifecycle.Status, error) {
	paths, err := resolvePaths(cfg.WorkingDirectory)
	if err != nil {
		return nil, err
	}
	return o.lifecycle.Status(ctx, cfg.backendConfig(paths))
}

// Active reports whether a session in this process or another one owns
// dir.
func Active(dir string) bool {
	paths, err := config.NewPaths(dir)
	if err != nil {
		return false
	}
	if _, ok := active.owner(paths.ProjectDir); ok {
		return true
	}
	return lockfile.IsHeld(paths.LockFile)
}

// Record returns the persisted record of the last session for dir.
func Record(dir string) (*config.SessionRecord, error) {
	paths, err := resolvePaths(dir)
	if err != nil {
		return nil, err
	}
	return loadRecord(paths)
}

func loadRecord(paths *config.Paths) (*config.SessionRecord, error) {
	rec, err := config.LoadSessionRecord(paths)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sberrors.NotFound(fmt.Sprintf("session for %s", paths.ProjectDir))
		}
		return nil, err
	}
	return rec, nil
}

// PendingChanges diffs the isolated root left by the last session against
// its baseline.
func (o *Orchestrator) PendingChanges(ctx context.Context, dir string) (tracker.ChangeSet, *config.SessionRecord, error) {
	paths, err := resolvePaths(dir)
	if err != nil {
		return nil, nil, err
	}
	rec, err := loadRecord(paths)
	if err != nil {
		return nil, nil, err
	}
	if rec.Backend == string(backend.KindNone) {
		return tracker.ChangeSet{}, rec, nil
	}

	base, m, err := tracker.LoadBaseline(paths.BaselineFile)
	if err != nil {
		return nil, rec, sberrors.Wrap(sberrors.KindSyncIO, "failed to load baseline", err)
	}
	ledger, err := reconcile.LoadLedger(paths.LedgerFile)
	if err != nil {
		return nil, rec, sberrors.Wrap(sberrors.KindSyncIO, "failed to load sync ledger", err)
	}
	changes, err := tracker.Diff(ctx, rec.IsolatedRoot, base, m)
	if err != nil {
		return nil, rec, sberrors.Wrap(sberrors.KindSyncIO, "failed to compute changes", err)
	}
	return ledger.Reverts(changes, base), rec, nil
}

// SyncPending completes the sync of a session that ended with changes
// the host has not received. It needs the directory's lock like a new
// session does. When nothing is pending it returns an empty result.
func (o *Orchestrator) SyncPending(ctx context.Context, dir string, force bool) (*reconcile.Result, error) {
	paths, err := resolvePaths(dir)
	if err != nil {
		return nil, err
	}

	release, err := o.acquire(paths, "sync")
	if err != nil {
		return nil, err
	}
	defer release()

	rec, err := loadRecord(paths)
	if err != nil {
		return nil, err
	}
	if !rec.Pending {
		return &reconcile.Result{Skipped: map[string]reconcile.Skip{}, Failed: map[string]error{}}, nil
	}

	base, m, err := tracker.LoadBaseline(paths.BaselineFile)
	if err != nil {
		return nil, sberrors.Wrap(sberrors.KindSyncIO, "failed to load baseline", err)
	}
	ledger, err := reconcile.LoadLedger(paths.LedgerFile)
	if err != nil {
		return nil, sberrors.Wrap(sberrors.KindSyncIO, "failed to load sync ledger", err)
	}

	recorder := o.recorders(paths)
	record := func(e audit.Event) {
		e.Session = rec.ID
		e.Timestamp = o.clock.Now()
		if err := recorder.Record(e); err != nil {
			logging.Warn("failed to record session event", "type", e.Type, "error", err)
		}
	}

	diff, err := tracker.Diff(ctx, rec.IsolatedRoot, base, m)
	if err != nil {
		err = sberrors.Wrap(sberrors.KindSyncIO, "failed to compute changes", err)
		record(audit.Event{Type: audit.EventError, Details: err.Error()})
		return nil, err
	}
	changes := ledger.Reverts(diff, base)

	result := reconcile.Apply(ctx, changes, rec.IsolatedRoot, paths.ProjectDir, reconcile.Options{Force: force, Ledger: ledger})
	recordSync(record, changes, result)

	if len(result.Applied) > 0 {
		ledger.Update(changes, result)
		if err := reconcile.SaveLedger(paths.LedgerFile, ledger); err != nil {
			return result, err
		}
	}

	if result.Complete() {
		rec.Pending = false
		if err := config.SaveSessionRecord(paths, rec); err != nil {
			return result, fmt.Errorf("failed to update session record: %w", err)
		}
	}
	return result, nil
}

// Stop stops the backend cfg describes and keeps it for reuse.
func (o *Orchestrator) Stop(ctx context.Context, cfg *Config) error {
	paths, err := resolvePaths(cfg.WorkingDirectory)
	if err != nil {
		return err
	}

	release, err := o.acquire(paths, "stop")
	if err != nil {
		return err
	}
	defer release()

	return o.lifecycle.Stop(ctx, cfg.backendConfig(paths).Handle())
}

// Clean destroys everything a project's sessions left behind: the
// container, the shadow root, the session record and the baseline.
// Unsynced changes are discarded.
func (o *Orchestrator) Clean(ctx context.Context, cfg *Config) error {
	paths, err := resolvePaths(cfg.WorkingDirectory)
	if err != nil {
		return err
	}

	release, err := o.acquire(paths, "clean")
	if err != nil {
		return err
	}
	defer release()

	bcfg := cfg.backendConfig(paths)
	rec, err := config.LoadSessionRecord(paths)
	if err == nil {
		bcfg.Kind = backend.Kind(rec.Backend)
		if rec.Pending {
			logging.Warn("discarding unsynced changes", "root", rec.IsolatedRoot)
		}
	}

	if bcfg.Kind == backend.KindDocker {
		if err := o.lifecycle.Teardown(ctx, bcfg.Handle()); err != nil {
			return sberrors.ProvisioningError("failed to remove sandbox container", err)
		}
	}

	if err := os.RemoveAll(paths.ShadowDir); err != nil {
		return fmt.Errorf("failed to remove shadow root: %w", err)
	}
	for _, f := range []string{paths.BaselineFile, paths.LedgerFile} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(f), err)
		}
	}
	if err := config.DeleteSessionRecord(paths); err != nil {
		return fmt.Errorf("failed to remove session record: %w", err)
	}

	event := audit.Event{Type: audit.EventTeardown, Timestamp: o.clock.Now(), Details: "clean backend=" + string(bcfg.Kind)}
	if rec != nil {
		event.Session = rec.ID
	}
	if err := o.recorders(paths).Record(event); err != nil {
		logging.Warn("failed to record clean", "error", err)
	}
	return nil
}
