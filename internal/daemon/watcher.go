package daemon

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/logfields"
)

// SourceWatcher calls a trigger once a burst of source changes has been
// quiet for the debounce window.
type SourceWatcher struct {
	watcher  *fsnotify.Watcher
	roots    []string
	debounce time.Duration
	trigger  func(reason string)
}

// NewSourceWatcher watches every directory below roots. Missing roots are skipped.
func NewSourceWatcher(roots []string, debounce time.Duration, trigger func(reason string)) (*SourceWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.DaemonError("failed to create file watcher").WithCause(err).Build()
	}
	sw := &SourceWatcher{watcher: w, debounce: debounce, trigger: trigger}
	for _, root := range roots {
		if fi, statErr := os.Stat(root); statErr != nil || !fi.IsDir() {
			slog.Warn("Watch root missing, skipping", logfields.Path(root))
			continue
		}
		addDirsRecursive(w, root)
		sw.roots = append(sw.roots, root)
	}
	if len(sw.roots) == 0 {
		_ = w.Close()
		return nil, errors.ValidationError("no source directories to watch").Build()
	}
	return sw, nil
}

// Run delivers debounced triggers until ctx is done.
func (s *SourceWatcher) Run(ctx context.Context) error {
	defer func() { _ = s.watcher.Close() }()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	var (
		fire    <-chan time.Time
		changed string
	)
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			if !s.handle(ev) {
				continue
			}
			changed = ev.Name
			timer.Reset(s.debounce)
			fire = timer.C
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("File watcher error", logfields.Error(err))
		case <-fire:
			fire = nil
			s.trigger("change: " + changed)
		}
	}
}

// handle reports whether ev should start or extend the debounce window.
func (s *SourceWatcher) handle(ev fsnotify.Event) bool {
	if shouldIgnoreEvent(ev.Name) || ev.Op == fsnotify.Chmod {
		return false
	}
	if ev.Op.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			addDirsRecursive(s.watcher, ev.Name)
		}
	}
	slog.Debug("Source change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	return true
}

func addDirsRecursive(w *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := w.Add(path); err != nil {
				slog.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
			}
		}
		return nil
	})
}

// shouldIgnoreEvent filters hidden files and editor swap files.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "."):
		return true
	case strings.HasSuffix(base, "~"), strings.HasSuffix(base, ".swp"), strings.HasSuffix(base, ".swx"):
		return true
	case strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	}
	return false
}
