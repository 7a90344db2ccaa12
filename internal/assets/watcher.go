package assets

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/cjeanneret/FrameGo/internal/debug"
)

// Watcher reports asset files that changed on disk.
type Watcher struct {
	dir string
	w   *fsnotify.Watcher
}

// NewWatcher starts watching dir and every directory below it.
// Close must be called when done.
func NewWatcher(dir string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("asset watcher: %w", err)
	}
	aw := &Watcher{dir: dir, w: w}
	if err := aw.addTree(dir); err != nil {
		w.Close()
		return nil, err
	}
	debug.Verbose("Watching asset directory %s", dir)
	return aw, nil
}

// addTree watches root and the directories below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.w.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// Run calls onChange with the slash-separated asset name of every file that
// is written, created, removed or renamed, until ctx is done.
func (w *Watcher) Run(ctx context.Context, onChange func(name string)) error {
	defer w.w.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						debug.Error(err)
					}
				}
			}
			rel, err := filepath.Rel(w.dir, ev.Name)
			if err != nil {
				continue
			}
			debug.Trace("asset event %s %s", ev.Op, rel)
			onChange(filepath.ToSlash(rel))
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			debug.Error(fmt.Errorf("asset watcher: %w", err))
		}
	}
}

// Close stops watching. Run returns afterwards.
func (w *Watcher) Close() error {
	return w.w.Close()
}
