package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last file event of a
// dataset before a change is reported.
const DefaultDebounce = 250 * time.Millisecond

// Change reports that files below a watched dataset directory changed.
type Change struct {
	Root string // dataset directory as passed to Add
	File string // last file that triggered the change
}

// Watcher monitors dataset directories for method file changes using
// fsnotify. fsnotify is not recursive, so each directory below a root is
// registered separately.
type Watcher struct {
	Changes <-chan Change

	changes  chan Change
	done     chan struct{}
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      *zap.Logger

	mu    sync.Mutex
	roots []string
}

// NewWatcher creates a watcher. A non-positive debounce uses DefaultDebounce.
func NewWatcher(debounce time.Duration, log *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ch := make(chan Change, 16)
	w := &Watcher{
		Changes:  ch,
		changes:  ch,
		done:     make(chan struct{}),
		watcher:  fw,
		debounce: debounce,
		log:      log,
	}
	if w.log == nil {
		w.log = zap.NewNop()
	}
	go w.loop()
	return w, nil
}

// Add registers root and every directory below it.
func (w *Watcher) Add(root string) error {
	root = filepath.Clean(root)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.roots = append(w.roots, root)
	w.mu.Unlock()
	return nil
}

// Remove stops watching root.
func (w *Watcher) Remove(root string) {
	root = filepath.Clean(root)
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, r := range w.roots {
		if r == root {
			w.roots = append(w.roots[:i], w.roots[i+1:]...)
			break
		}
	}
	for _, p := range w.watcher.WatchList() {
		if p == root || strings.HasPrefix(p, root+string(filepath.Separator)) {
			_ = w.watcher.Remove(p)
		}
	}
}

// Stop closes the watcher and the Changes channel.
func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done
	close(w.changes)
}

// rootOf returns the watched root containing path.
func (w *Watcher) rootOf(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	best := ""
	for _, r := range w.roots {
		if (path == r || strings.HasPrefix(path, r+string(filepath.Separator))) && len(r) > len(best) {
			best = r
		}
	}
	return best, best != ""
}

type pendingChange struct {
	file string
	at   time.Time
}

func (w *Watcher) loop() {
	defer close(w.done)

	pending := make(map[string]pendingChange)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				for root, p := range pending {
					w.changes <- Change{Root: root, File: p.file}
				}
				return
			}
			if !relevant(event) {
				continue
			}
			root, ok := w.rootOf(event.Name)
			if !ok {
				continue
			}
			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					_ = w.watcher.Add(event.Name)
				}
			}
			pending[root] = pendingChange{file: event.Name, at: time.Now()}

		case <-ticker.C:
			now := time.Now()
			for root, p := range pending {
				if now.Sub(p.at) >= w.debounce {
					w.changes <- Change{Root: root, File: p.file}
					delete(pending, root)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

// relevant filters editor and lock-file noise.
func relevant(e fsnotify.Event) bool {
	if !(e.Has(fsnotify.Write) || e.Has(fsnotify.Create) || e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename)) {
		return false
	}
	base := filepath.Base(e.Name)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~") &&
		!strings.HasSuffix(base, "-journal") && !strings.HasSuffix(base, ".lock")
}

// Follow reloads datasets as their directories change until ctx is done or
// the watcher stops. Changes for paths that are no longer loaded are
// ignored. Reload failures are logged and keep the previous dataset.
func (s *Session) Follow(ctx context.Context, w *Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-w.Changes:
			if !ok {
				return
			}
			e, err := s.Lookup(c.Root)
			if errors.Is(err, ErrNotLoaded) {
				continue
			}
			if err != nil {
				s.log.Warn("watch lookup", zap.String("path", c.Root), zap.Error(err))
				continue
			}
			if _, err := s.Reload(ctx, e.ID); err != nil {
				s.log.Warn("reload failed", zap.String("path", e.Path), zap.String("file", c.File), zap.Error(err))
				continue
			}
			s.log.Info("dataset reloaded", zap.String("path", e.Path), zap.String("file", c.File))
		}
	}
}
