package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher turns filesystem writes by external producers (the mail-to-store
// shim dropping PDFs into Stage1_Pending, the warehouse export refreshing
// dimension snapshots) into object-created callbacks. In-process writers
// already notify through FSStore.OnPut; the watcher only covers files the
// process did not write itself.
type Watcher struct {
	basePath string
	watcher  *fsnotify.Watcher
	prefixes []string
	emit     func(key string)
}

// NewWatcher watches the given stage prefixes under the store root.
func NewWatcher(basePath string, prefixes []string, emit func(key string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{basePath: basePath, watcher: fw, prefixes: prefixes, emit: emit}
	for _, p := range prefixes {
		dir := filepath.Join(basePath, filepath.FromSlash(strings.TrimSuffix(p, "/")))
		if err := os.MkdirAll(dir, 0750); err != nil {
			fw.Close()
			return nil, err
		}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run delivers events until the context is canceled. Rename completions
// count as creations because FSStore commits via rename.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			info, err := os.Stat(ev.Name)
			if err != nil || info.IsDir() {
				continue
			}
			if strings.HasPrefix(filepath.Base(ev.Name), ".put-") {
				continue
			}
			rel, err := filepath.Rel(w.basePath, ev.Name)
			if err != nil {
				continue
			}
			w.emit(filepath.ToSlash(rel))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Watcher error", "error", err)
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error { return w.watcher.Close() }
