// Package lockfile provides the advisory per-project lock that keeps two
// vibekit processes from running sessions against the same directory.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var ErrLocked = errors.New("lock is held by another process")

// unreadableGrace is how long a lockfile without a valid holder is
// treated as held. Lockfiles written by TryAcquire always carry a PID, so
// an unreadable one older than this was left by something else.
const unreadableGrace = 10 * time.Second

// Lockfile represents a file-based lock
type Lockfile struct {
	path   string
	pid    int
	locked bool
}

// Holder describes the process recorded in an existing lockfile.
type Holder struct {
	PID        int
	AcquiredAt time.Time
}

// New creates a new lockfile instance
func New(path string) *Lockfile {
	return &Lockfile{
		path: path,
	}
}

// TryAcquire attempts to acquire the lock without blocking. The holder's
// PID is written to a temporary file that is then hard-linked into place,
// so the lockfile never exists without its holder. A lockfile left behind
// by a process that no longer exists is removed and the acquisition
// retried once.
func (l *Lockfile) TryAcquire() error {
	if l.locked {
		return nil
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}

	tmp, err := writeHolder(dir, os.Getpid())
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	err = os.Link(tmp, l.path)
	if err != nil {
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lockfile: %w", err)
		}

		stale, reason := l.checkStale()
		if !stale {
			return fmt.Errorf("%w: %s", ErrLocked, reason)
		}
		if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("failed to remove stale lockfile (%s): %w", reason, removeErr)
		}

		if err := os.Link(tmp, l.path); err != nil {
			if os.IsExist(err) {
				return fmt.Errorf("%w: lock was taken while removing a stale lockfile", ErrLocked)
			}
			return fmt.Errorf("failed to create lockfile after removing stale one: %w", err)
		}
	}

	l.pid = os.Getpid()
	l.locked = true
	return nil
}

// writeHolder writes a complete lockfile body to a temporary file in dir
// and returns its path.
func writeHolder(dir string, pid int) (string, error) {
	f, err := os.CreateTemp(dir, ".lock-*")
	if err != nil {
		return "", fmt.Errorf("failed to create lockfile: %w", err)
	}

	content := fmt.Sprintf("%d\n%s\n", pid, time.Now().Format(time.RFC3339))
	_, err = f.WriteString(content)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write lockfile: %w", err)
	}
	return f.Name(), nil
}

// checkStale reports whether the existing lockfile belongs to a process
// that is no longer running. A lockfile that cannot be parsed counts as
// held until it is older than unreadableGrace.
func (l *Lockfile) checkStale() (bool, string) {
	holder, err := ReadHolder(l.path)
	if err != nil {
		if fresh, statErr := recentlyModified(l.path); statErr != nil {
			if os.IsNotExist(statErr) {
				return true, "lockfile was removed"
			}
			return false, statErr.Error()
		} else if fresh {
			return false, "lockfile is being written by another process"
		}
		return true, err.Error()
	}

	if holder.PID == os.Getpid() {
		return false, "lock is held by this process"
	}

	if !isProcessRunning(holder.PID) {
		return true, fmt.Sprintf("process with PID %d is not running", holder.PID)
	}

	return false, fmt.Sprintf("process with PID %d is running", holder.PID)
}

func recentlyModified(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return time.Since(info.ModTime()) < unreadableGrace, nil
}

// ReadHolder parses an existing lockfile.
func ReadHolder(path string) (*Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read lockfile: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || pid <= 0 {
		return nil, fmt.Errorf("invalid PID in lockfile")
	}

	holder := &Holder{PID: pid}
	if len(lines) >= 2 {
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(lines[1])); err == nil {
			holder.AcquiredAt = ts
		}
	}
	return holder, nil
}

// IsHeld reports whether a live process holds the lock at path.
func IsHeld(path string) bool {
	holder, err := ReadHolder(path)
	if err != nil {
		fresh, statErr := recentlyModified(path)
		return statErr == nil && fresh
	}
	return holder.PID == os.Getpid() || isProcessRunning(holder.PID)
}

func isProcessRunning(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Release releases the lock
func (l *Lockfile) Release() error {
	if !l.locked {
		return nil
	}

	l.locked = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lockfile: %w", err)
	}
	return nil
}

// Locked returns true if the lock is held
func (l *Lockfile) Locked() bool {
	return l.locked
}

// Path returns the lockfile path
func (l *Lockfile) Path() string {
	return l.path
}
