// Package watch marks the local cache stale when Linear.app mutates its
// IndexedDB LevelDB directory, so the next tool call reloads without waiting
// for the TTL to lapse.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces LevelDB's burst of log/manifest writes into a
// single staleness mark.
const debounceDelay = 2 * time.Second

// Staler is the cache surface the watcher drives.
type Staler interface {
	MarkStale()
}

// Watcher observes a LevelDB directory and marks the cache stale after
// writes settle.
type Watcher struct {
	dir   string
	cache Staler
	log   *slog.Logger
	fsw   *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// New builds a watcher over the given LevelDB directory.
func New(dir string, cache Staler, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{dir: dir, cache: cache, log: log, fsw: fsw}, nil
}

// Start runs the event loop until ctx is done or the watcher is closed.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !relevantFile(event.Name) {
				continue
			}
			w.bump()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("db watcher error", "error", err)
		}
	}
}

// relevantFile reports whether a LevelDB file change implies new data.
// Writes land in .log files; compactions swap MANIFEST/CURRENT.
func relevantFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".log") ||
		strings.HasSuffix(base, ".ldb") ||
		strings.HasPrefix(base, "MANIFEST") ||
		base == "CURRENT"
}

func (w *Watcher) bump() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, func() {
		w.log.Debug("db changed on disk, marking cache stale", "dir", w.dir)
		w.cache.MarkStale()
	})
}

// Close stops the watcher. Pending debounce fires are cancelled.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}
