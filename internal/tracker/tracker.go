// Package tracker records content-hash baselines of a directory tree and
// computes the files added, modified, or deleted since.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	goruntime "runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

var errNotRegular = errors.New("not a regular file")

// Baseline maps slash-separated relative paths to content hashes.
type Baseline map[string]string

// ChangeKind classifies a Change.
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Modified ChangeKind = "modified"
	Deleted  ChangeKind = "deleted"
)

// Change is one file that differs from the baseline.
type Change struct {
	Path string     `json:"path"`
	Kind ChangeKind `json:"kind"`
	// Hash is the current content hash; empty for deletions.
	Hash string `json:"hash,omitempty"`
	// BaselineHash is the hash recorded in the baseline; empty for additions.
	BaselineHash string `json:"baselineHash,omitempty"`
}

// ChangeSet holds at most one Change per path.
type ChangeSet map[string]Change

// Paths returns the changed paths in lexical order.
func (cs ChangeSet) Paths() []string {
	paths := make([]string, 0, len(cs))
	for p := range cs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Sorted returns the changes ordered by path.
func (cs ChangeSet) Sorted() []Change {
	changes := make([]Change, 0, len(cs))
	for _, p := range cs.Paths() {
		changes = append(changes, cs[p])
	}
	return changes
}

// Count returns the number of changes of the given kind.
func (cs ChangeSet) Count(kind ChangeKind) int {
	n := 0
	for _, c := range cs {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// Workers bounds the number of files hashed concurrently.
var Workers = goruntime.NumCPU()

// Snapshot hashes every regular file under root that m does not exclude.
// Directories, symlinks, and other special files are not tracked.
func Snapshot(ctx context.Context, root string, m *Matcher) (Baseline, error) {
	rels, err := walk(ctx, root, m)
	if err != nil {
		return nil, err
	}
	return hashAll(ctx, root, rels)
}

// Diff re-walks root and compares it with base. Paths only present now
// are Added, paths whose hash changed are Modified, and paths that are
// gone are Deleted.
func Diff(ctx context.Context, root string, base Baseline, m *Matcher) (ChangeSet, error) {
	current, err := Snapshot(ctx, root, m)
	if err != nil {
		return nil, err
	}
	return Compare(base, current), nil
}

// Compare returns the changes that turn base into current.
func Compare(base, current Baseline) ChangeSet {
	changes := make(ChangeSet)

	for p, hash := range current {
		old, ok := base[p]
		switch {
		case !ok:
			changes[p] = Change{Path: p, Kind: Added, Hash: hash}
		case old != hash:
			changes[p] = Change{Path: p, Kind: Modified, Hash: hash, BaselineHash: old}
		}
	}

	for p, old := range base {
		if _, ok := current[p]; !ok {
			changes[p] = Change{Path: p, Kind: Deleted, BaselineHash: old}
		}
	}

	return changes
}

// walk returns the slash-separated relative paths of the regular files
// under root, honoring m. It checks ctx between entries.
func walk(ctx context.Context, root string, m *Matcher) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot walk %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cannot walk %s: not a directory", root)
	}

	var rels []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if m.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type().IsRegular() {
			rels = append(rels, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rels, nil
}

// hashAll hashes rels concurrently. Files that disappear between the walk
// and the hash are treated as absent.
func hashAll(ctx context.Context, root string, rels []string) (Baseline, error) {
	hashes := make([]string, len(rels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(Workers, 1))
	for i, rel := range rels {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			hash, err := HashFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return fmt.Errorf("failed to hash %s: %w", rel, err)
			}
			hashes[i] = hash
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	base := make(Baseline, len(rels))
	for i, rel := range rels {
		if hashes[i] != "" {
			base[rel] = hashes[i]
		}
	}
	return base, nil
}
