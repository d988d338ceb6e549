package modelfile

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/samcharles93/cudiffusion/internal/logger"
)

// DefaultSettle is how long the watcher waits after the last model file
// event before reporting a change. Copying a multi-gigabyte checkpoint
// produces a long burst of write events.
const DefaultSettle = 500 * time.Millisecond

// Watcher reports changes to the set of model files in a directory.
type Watcher struct {
	dir    string
	settle time.Duration
	log    logger.Logger
	w      *fsnotify.Watcher
}

// Watch establishes a watch on dir. The directory must exist.
func Watch(dir string, log logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.Discard()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create models watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch models directory %s: %w", dir, err)
	}
	return &Watcher{dir: dir, settle: DefaultSettle, log: log, w: fw}, nil
}

// SetSettle overrides the debounce interval. Call before Run.
func (w *Watcher) SetSettle(d time.Duration) {
	w.settle = d
}

// Run invokes onChange with the fresh listing after each settled burst of
// model file events. It returns when ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, onChange func([]string)) error {
	defer func() { _ = w.w.Close() }()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	stop := func() {
		if timer != nil {
			timer.Stop()
		}
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) || !IsModelName(filepath.Base(ev.Name)) {
				continue
			}
			w.log.Debug("models directory event", "file", ev.Name, "op", ev.Op.String())
			stop()
			timer = time.NewTimer(w.settle)
			pending = timer.C
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("models watcher error", "error", err)
		case <-pending:
			pending = nil
			models, err := List(w.dir)
			if err != nil {
				w.log.Warn("failed to list models", "dir", w.dir, "error", err)
				continue
			}
			onChange(models)
		}
	}
}

// Close stops the watch. Run returns once the event channel closes.
func (w *Watcher) Close() error {
	return w.w.Close()
}
