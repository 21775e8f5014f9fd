// Package inbox finds manual files on disk: a one-shot glob scan and a directory watcher.
package inbox

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultPattern matches the formats the extractor reads.
const DefaultPattern = "**/*.{pdf,txt}"

// Scan returns the regular files under root matching pattern, sorted.
// Hidden files and directories are skipped.
func Scan(root, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	rels, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}

	paths := make([]string, 0, len(rels))
	for _, rel := range rels {
		if hidden(rel) {
			continue
		}
		paths = append(paths, filepath.Join(root, filepath.FromSlash(rel)))
	}
	sort.Strings(paths)
	return paths, nil
}

// Match reports whether path, inside root, matches pattern.
func Match(root, path, pattern string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	if hidden(rel) {
		return false
	}
	ok, _ := doublestar.Match(pattern, rel)
	return ok
}

func hidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// Watcher reports files written into a directory tree once they settle.
type Watcher struct {
	root     string
	pattern  string
	debounce time.Duration
	logger   *zap.Logger
}

// NewWatcher creates a watcher over root. debounce is the quiet period
// after the last write before a file is handed over.
func NewWatcher(root, pattern string, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Watcher{root: root, pattern: pattern, debounce: debounce, logger: logger}, nil
}

// Run watches until ctx is done, calling handle for each settled matching file.
// handle runs on the watcher goroutine; files are handed over one at a time.
func (w *Watcher) Run(ctx context.Context, handle func(ctx context.Context, path string)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.onEvent(fw, ev, pending)
		case now := <-ticker.C:
			for _, path := range w.settled(pending, now) {
				handle(ctx, path)
			}
		}
	}
}

func (w *Watcher) onEvent(fw *fsnotify.Watcher, ev fsnotify.Event, pending map[string]time.Time) {
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) {
				if err := w.addTree(fw, ev.Name); err != nil {
					w.logger.Warn("Cannot watch new directory", zap.String("dir", ev.Name), zap.Error(err))
				}
			}
			return
		}
		if Match(w.root, ev.Name, w.pattern) {
			pending[ev.Name] = time.Now()
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		delete(pending, ev.Name)
	}
}

// settled removes and returns, sorted, the pending files quiet for at least the debounce period.
func (w *Watcher) settled(pending map[string]time.Time, now time.Time) []string {
	var ready []string
	for path, last := range pending {
		if now.Sub(last) >= w.debounce {
			ready = append(ready, path)
			delete(pending, path)
		}
	}
	sort.Strings(ready)
	return ready
}

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
