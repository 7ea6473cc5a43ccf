package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for further changes before
// calling onChange.
const DefaultDebounce = 500 * time.Millisecond

// Watch calls onChange whenever a file matching patterns is created,
// written, renamed or removed. Bursts of events are coalesced by debounce.
// It blocks until ctx ends and returns nil in that case.
func Watch(ctx context.Context, root string, patterns []string, debounce time.Duration, logger *slog.Logger, onChange func()) error {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	abs := absPatterns(root, patterns)
	dirs, err := watchDirs(abs)
	if err != nil {
		return err
	}
	for _, d := range dirs {
		if err := fsw.Add(d); err != nil {
			return fmt.Errorf("watching %s: %w", d, err)
		}
	}
	logger.Info("watching reference corpus", "dirs", len(dirs), "debounce", debounce)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = fsw.Add(ev.Name)
					continue
				}
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !matchesAny(abs, ev.Name) {
				continue
			}
			logger.Debug("corpus change", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerCh = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		case <-timerCh:
			timerCh = nil
			onChange()
		}
	}
}

func absPatterns(root string, patterns []string) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		if filepath.IsAbs(p) {
			out[i] = filepath.Clean(p)
		} else {
			out[i] = filepath.Join(root, p)
		}
	}
	return out
}

func matchesAny(patterns []string, path string) bool {
	if !supported[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	for _, p := range patterns {
		if ok, _ := doublestar.PathMatch(p, path); ok {
			return true
		}
	}
	return false
}

// watchDirs returns the existing directories under the static prefix of
// each pattern. fsnotify is not recursive, so every subdirectory is added.
func watchDirs(patterns []string) ([]string, error) {
	set := make(map[string]bool)
	for _, p := range patterns {
		base, _ := doublestar.SplitPattern(filepath.ToSlash(p))
		base = filepath.FromSlash(base)
		info, err := os.Stat(base)
		if err != nil || !info.IsDir() {
			continue
		}
		err = filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != base {
					return filepath.SkipDir
				}
				set[path] = true
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", base, err)
		}
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no existing directories to watch for %s", strings.Join(patterns, ", "))
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}
