// Package watch reports changes to a fixed set of IR files using OS-native
// notifications.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op is a bitmask of file operations.
type Op uint8

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
)

// translate maps an fsnotify event onto Op. Chmod-only events are dropped.
func translate(ev fsnotify.Event) (Op, bool) {
	var op Op
	if ev.Op&fsnotify.Create != 0 {
		op |= OpCreate
	}
	if ev.Op&fsnotify.Write != 0 {
		op |= OpWrite
	}
	if ev.Op&fsnotify.Remove != 0 {
		op |= OpRemove
	}
	if ev.Op&fsnotify.Rename != 0 {
		op |= OpRename
	}
	return op, op != 0
}

// Watcher watches the directories holding its files, since editors often
// replace a file instead of writing it in place.
type Watcher struct {
	w        *fsnotify.Watcher
	files    map[string]bool
	debounce time.Duration
}

// New watches paths. Changes arriving within debounce of each other are
// reported together.
func New(paths []string, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{w: fw, files: make(map[string]bool), debounce: debounce}
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Run calls fn with the sorted, de-duplicated list of changed files after
// each quiet period until ctx is done. Removed files are not reported.
func (w *Watcher) Run(ctx context.Context, fn func(changed []string)) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			op, ok := translate(ev)
			name := filepath.Clean(ev.Name)
			if !ok || !w.files[name] || op&(OpCreate|OpWrite|OpRename) == 0 {
				continue
			}
			pending[name] = true
			timer.Reset(w.debounce)

		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)

		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = make(map[string]bool)
			if len(changed) > 0 {
				fn(changed)
			}
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error { return w.w.Close() }
