// Package watch triggers work when watched files change on disk.
//
// Files are watched through their parent directory so that atomic
// replacement (write to a temp file, rename over the original) is seen as a
// change. Bursts of events are debounced into a single trigger.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/workertiers/internal/logging"
)

// DefaultDebounce is the quiet period after the last event before a trigger.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reports changes to a set of files.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *logging.Logger

	mu    sync.RWMutex
	files map[string]struct{}
	dirs  map[string]struct{}
}

// New creates a Watcher. A non-positive debounce uses DefaultDebounce; a nil
// logger discards output.
func New(debounce time.Duration, logger *logging.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Watcher{
		watcher:  watcher,
		debounce: debounce,
		logger:   logger,
		files:    make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
	}, nil
}

// Add starts watching path. The file itself need not exist yet, but its
// directory must.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(abs)
	if _, ok := w.dirs[dir]; !ok {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = struct{}{}
	}
	w.files[abs] = struct{}{}
	return nil
}

func (w *Watcher) tracked(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.files[abs]
	return ok
}

// Run calls fn once per debounced burst of changes until ctx is done. An
// error from fn is logged and watching continues. Run returns nil when ctx
// is canceled and an error when the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context, fn func(context.Context) error) error {
	// Debounce events - editors and atomic writers emit several per save
	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C // drain initial timer
	defer debounceTimer.Stop()

	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !w.tracked(event.Name) {
				continue
			}
			pending[event.Name] = struct{}{}
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			if len(pending) == 0 {
				continue
			}
			for name := range pending {
				w.logger.Info("watched file changed", "path", name)
			}
			pending = make(map[string]struct{})

			if err := fn(ctx); err != nil {
				w.logger.Error("triggered run failed", "error", err.Error())
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// Close stops watching and releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
