package tracker

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/Ramtinhoss/vibekit/internal/logging"
)

// MirrorStats summarizes a Mirror call.
type MirrorStats struct {
	Copied    int
	Unchanged int
	Removed   int
}

// Mirror makes dst an exact copy of src for every path m does not
// exclude: directories and symlinks are recreated, regular files whose
// content differs are copied, and entries absent from src are removed.
// Excluded paths already present in dst are left alone, so dependency
// caches built inside a persistent sandbox survive. Paths in dst are
// resolved with securejoin so a symlink left in dst by an earlier session
// cannot redirect writes outside it.
func Mirror(ctx context.Context, src, dst string, m *Matcher) (*MirrorStats, error) {
	stats := &MirrorStats{}

	if err := os.MkdirAll(dst, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dst, err)
	}

	present := make(map[string]bool)
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == src {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		slashRel := filepath.ToSlash(rel)
		if m.Match(slashRel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		present[slashRel] = true

		target, err := ResolveIn(dst, rel)
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return ensureDir(target)
		case d.Type()&fs.ModeSymlink != 0:
			return mirrorSymlink(path, target)
		case d.Type().IsRegular():
			copied, err := mirrorFile(path, target)
			if err != nil {
				return err
			}
			if copied {
				stats.Copied++
			} else {
				stats.Unchanged++
			}
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	removed, err := prune(ctx, dst, present, m)
	stats.Removed = removed
	if err != nil {
		return stats, err
	}

	logging.Debug("mirrored tree", "src", src, "dst", dst,
		"copied", stats.Copied, "unchanged", stats.Unchanged, "removed", stats.Removed)
	return stats, nil
}

func ensureDir(target string) error {
	info, err := os.Lstat(target)
	if err == nil && info.IsDir() {
		return nil
	}
	if err == nil {
		if err := os.RemoveAll(target); err != nil {
			return err
		}
	}
	return os.MkdirAll(target, 0755)
}

func mirrorSymlink(path, target string) error {
	link, err := os.Readlink(path)
	if err != nil {
		return err
	}
	if existing, err := os.Readlink(target); err == nil && existing == link {
		return nil
	}
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	return os.Symlink(link, target)
}

// mirrorFile copies path to target unless target already holds the same
// content. It reports whether a copy was made.
func mirrorFile(path, target string) (bool, error) {
	srcInfo, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	if dstInfo, err := os.Lstat(target); err == nil {
		if dstInfo.Mode().IsRegular() && dstInfo.Size() == srcInfo.Size() {
			srcHash, err := HashFile(path)
			if err != nil {
				return false, err
			}
			if dstHash, err := HashFile(target); err == nil && dstHash == srcHash {
				if dstInfo.Mode().Perm() != srcInfo.Mode().Perm() {
					return false, os.Chmod(target, srcInfo.Mode().Perm())
				}
				return false, nil
			}
		}
		if !dstInfo.Mode().IsRegular() {
			if err := os.RemoveAll(target); err != nil {
				return false, err
			}
		}
	}

	if err := CopyFile(path, target, srcInfo.Mode().Perm()); err != nil {
		return false, err
	}
	return true, nil
}

// ResolveIn returns the location of rel inside root. Symlinks in the
// parent directories are resolved as if root were the filesystem root;
// the final component is left unresolved so that it can be replaced.
func ResolveIn(root, rel string) (string, error) {
	parent, err := securejoin.SecureJoin(root, filepath.Dir(rel))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s in %s: %w", rel, root, err)
	}
	return filepath.Join(parent, filepath.Base(rel)), nil
}

// CopyFile copies src to dst with the given permissions, replacing dst.
func CopyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, perm)
}

// prune removes entries under dst that are neither in present nor excluded.
func prune(ctx context.Context, dst string, present map[string]bool, m *Matcher) (int, error) {
	var stale []string
	err := filepath.WalkDir(dst, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == dst {
			return nil
		}

		rel, err := filepath.Rel(dst, path)
		if err != nil {
			return err
		}
		slashRel := filepath.ToSlash(rel)
		if m.Match(slashRel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !present[slashRel] {
			stale = append(stale, path)
			if d.IsDir() {
				return filepath.SkipDir
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	// Deepest first so nothing is removed twice.
	sort.Sort(sort.Reverse(sort.StringSlice(stale)))
	for _, path := range stale {
		if err := os.RemoveAll(path); err != nil {
			return 0, fmt.Errorf("failed to remove stale %s: %w", path, err)
		}
	}
	return len(stale), nil
}
