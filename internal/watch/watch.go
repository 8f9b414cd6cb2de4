// Package watch reports file activity under a sandbox's isolated root
// while an agent runs. It is informational only: the change tracker, not
// the watcher, decides what gets synchronized.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Ramtinhoss/vibekit/internal/logging"
)

// Op is the kind of activity observed on a path.
type Op string

const (
	OpCreate Op = "create"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
	OpRename Op = "rename"
)

// Event is one observed change. Path is slash-separated and relative to
// the watched root.
type Event struct {
	Path string
	Op   Op
	Time time.Time
}

// Watcher watches a directory tree recursively. Directories created after
// the watcher starts are added as they appear.
type Watcher struct {
	root    string
	exclude func(rel string) bool
	fw      *fsnotify.Watcher

	stop      chan struct{}
	closeOnce sync.Once
}

// New watches root. exclude, when non-nil, filters out paths (and whole
// directories) that should not be reported.
func New(root string, exclude func(rel string) bool) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:    root,
		exclude: exclude,
		fw:      fw,
		stop:    make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.excluded(path) {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			logging.Debug("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return ""
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) excluded(path string) bool {
	if w.exclude == nil {
		return false
	}
	return w.exclude(w.rel(path))
}

// Run delivers events to fn until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, fn func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if e, ok := w.translate(ev); ok {
				fn(e)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			logging.Warn("file watcher error", "root", w.root, "error", err)
		}
	}
}

func (w *Watcher) translate(ev fsnotify.Event) (Event, bool) {
	rel := w.rel(ev.Name)
	if rel == "" || rel == "." || w.excluded(ev.Name) {
		return Event{}, false
	}

	e := Event{Path: rel, Time: time.Now()}
	switch {
	case ev.Has(fsnotify.Create):
		e.Op = OpCreate
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				logging.Debug("failed to watch new directory", "path", ev.Name, "error", err)
			}
		}
	case ev.Has(fsnotify.Write):
		e.Op = OpWrite
	case ev.Has(fsnotify.Remove):
		e.Op = OpRemove
	case ev.Has(fsnotify.Rename):
		e.Op = OpRename
	default:
		return Event{}, false
	}
	return e, true
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)
		err = w.fw.Close()
	})
	return err
}
