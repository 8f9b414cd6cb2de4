// Package reconcile applies a tracker.ChangeSet from an isolated root back
// onto the host project.
//
// Every entry is applied independently. A host file that changed since
// the baseline is never overwritten without Options.Force and is never
// deleted, even with Force. Paths that would resolve outside the host root
// are rejected.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"

	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/logging"
	"github.com/Ramtinhoss/vibekit/internal/tracker"
)

// SkipReason explains why an entry was not applied.
type SkipReason string

const (
	// SkipConflict means the host file diverged from the baseline.
	SkipConflict SkipReason = "conflict"
	// SkipUpToDate means the host already matches the isolated root.
	SkipUpToDate SkipReason = "up-to-date"
	// SkipCancelled means the sync was cancelled before the entry was reached.
	SkipCancelled SkipReason = "cancelled"
)

// Skip records an entry that was deliberately not applied.
type Skip struct {
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// Options controls Apply.
type Options struct {
	// Force overwrites added and modified files even when the host copy
	// diverged from the baseline. It does not affect deletions.
	Force bool
	// Ledger holds what earlier syncs of the session wrote. A host file
	// matching its ledger entry is treated as unchanged.
	Ledger Ledger
}

// Result is the aggregate outcome of Apply.
type Result struct {
	Applied []string         `json:"applied"`
	Skipped map[string]Skip  `json:"skipped"`
	Failed  map[string]error `json:"-"`
}

func newResult() *Result {
	return &Result{
		Skipped: make(map[string]Skip),
		Failed:  make(map[string]error),
	}
}

// Conflicts returns the paths skipped because of a conflict, sorted.
func (r *Result) Conflicts() []string {
	return r.skippedFor(SkipConflict)
}

// Cancelled returns the paths never attempted because of cancellation, sorted.
func (r *Result) Cancelled() []string {
	return r.skippedFor(SkipCancelled)
}

func (r *Result) skippedFor(reason SkipReason) []string {
	var paths []string
	for p, s := range r.Skipped {
		if s.Reason == reason {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// FailedPaths returns the paths that failed, sorted.
func (r *Result) FailedPaths() []string {
	paths := make([]string, 0, len(r.Failed))
	for p := range r.Failed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Complete reports whether the host now reflects every change.
func (r *Result) Complete() bool {
	return len(r.Failed) == 0 && len(r.Conflicts()) == 0 && len(r.Cancelled()) == 0
}

// Err summarizes an incomplete result as a typed error. I/O failures take
// precedence over conflicts.
func (r *Result) Err() error {
	if failed := append(r.FailedPaths(), r.Cancelled()...); len(failed) > 0 {
		var cause error
		if len(r.Failed) > 0 {
			cause = r.Failed[r.FailedPaths()[0]]
		}
		return sberrors.SyncIOError(failed, cause)
	}
	if conflicts := r.Conflicts(); len(conflicts) > 0 {
		return sberrors.SyncConflictError(conflicts)
	}
	return nil
}

// Apply copies added and modified files from isolatedRoot to hostRoot and
// removes deleted files from hostRoot, in path order. The context is
// checked between files; once it is done the remaining entries are
// reported as cancelled and no file is left partially written.
func Apply(ctx context.Context, changes tracker.ChangeSet, isolatedRoot, hostRoot string, opts Options) *Result {
	result := newResult()

	for _, change := range changes.Sorted() {
		if ctx.Err() != nil {
			result.Skipped[change.Path] = Skip{Reason: SkipCancelled}
			continue
		}

		skip, err := applyOne(change, isolatedRoot, hostRoot, opts)
		switch {
		case err != nil:
			logging.Warn("failed to sync file", "path", change.Path, "error", err)
			result.Failed[change.Path] = err
		case skip != nil:
			logging.Debug("skipped file", "path", change.Path, "reason", skip.Reason)
			result.Skipped[change.Path] = *skip
		default:
			result.Applied = append(result.Applied, change.Path)
		}
	}

	logging.Debug("sync applied", "applied", len(result.Applied),
		"skipped", len(result.Skipped), "failed", len(result.Failed))
	return result
}

func applyOne(change tracker.Change, isolatedRoot, hostRoot string, opts Options) (*Skip, error) {
	rel, err := validateRel(change.Path)
	if err != nil {
		return nil, err
	}

	target, err := tracker.ResolveIn(hostRoot, rel)
	if err != nil {
		return nil, err
	}

	hostHash, err := tracker.HashIfExists(target)
	if err != nil {
		return nil, fmt.Errorf("cannot read host file: %w", err)
	}

	expected, synced := opts.Ledger.Expected(change)

	switch change.Kind {
	case tracker.Added, tracker.Modified:
		if hostHash == change.Hash {
			return &Skip{Reason: SkipUpToDate}, nil
		}
		if hostHash != expected && !opts.Force {
			return &Skip{Reason: SkipConflict, Detail: conflictDetail(expected, hostHash, synced)}, nil
		}
		source, err := tracker.ResolveIn(isolatedRoot, rel)
		if err != nil {
			return nil, err
		}
		return nil, copyToHost(source, target)

	case tracker.Deleted:
		if hostHash == "" {
			return &Skip{Reason: SkipUpToDate}, nil
		}
		if hostHash != expected {
			return &Skip{Reason: SkipConflict, Detail: conflictDetail(expected, hostHash, synced)}, nil
		}
		if err := os.Remove(target); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown change kind %q", change.Kind)
	}
}

func conflictDetail(expected, hostHash string, synced bool) string {
	since := "since the session started"
	if synced {
		since = "since the last sync"
	}
	switch {
	case expected == "":
		return "created on the host " + since
	case hostHash == "":
		return "deleted on the host " + since
	default:
		return "modified on the host " + since
	}
}

// validateRel rejects absolute paths and paths that climb out of the root.
func validateRel(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute path %q rejected", p)
	}
	rel := filepath.FromSlash(p)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q escapes the project root", p)
	}
	return filepath.Clean(rel), nil
}

// copyToHost writes source over target atomically, creating parent
// directories and preserving the source permissions.
func copyToHost(source, target string) error {
	info, err := os.Lstat(source)
	if err != nil {
		return fmt.Errorf("cannot read sandbox file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("sandbox path is no longer a regular file")
	}

	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("cannot read sandbox file: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("cannot create parent directory: %w", err)
	}

	if err := atomic.WriteFile(target, in); err != nil {
		return err
	}
	return os.Chmod(target, info.Mode().Perm())
}
