package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

var (
	// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
	ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

	// ErrWatcherClosed indicates the watcher stopped delivering events.
	ErrWatcherClosed = errors.New("filesystem watcher closed")
)

// DefaultDebounce is how long Wait lets writes to the tasks file settle.
const DefaultDebounce = 500 * time.Millisecond

// TasksWatcher waits for the tracker's tasks file to change.
//
// The parent directory is watched rather than the file, because the tracker
// and editors replace the file by rename. Watching starts in NewTasksWatcher,
// so a change made while an iteration runs is still seen by the next Wait.
type TasksWatcher struct {
	path     string
	debounce time.Duration
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	changed chan struct{}
	done    chan struct{}
}

// NewTasksWatcher starts watching path. Close releases the watcher.
func NewTasksWatcher(path string, logger *zap.Logger) (*TasksWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving tasks file: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	w := &TasksWatcher{
		path:     filepath.Clean(abs),
		debounce: DefaultDebounce,
		logger:   logger,
		watcher:  watcher,
		changed:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go w.processEvents()
	return w, nil
}

// Path returns the watched file.
func (w *TasksWatcher) Path() string {
	return w.path
}

// Close stops watching. Pending and later Waits return ErrWatcherClosed.
func (w *TasksWatcher) Close() error {
	return w.watcher.Close()
}

// processEvents records changes to the tasks file until the watcher closes.
// Changes coalesce: one pending signal covers any number of writes.
func (w *TasksWatcher) processEvents() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("tasks file changed", zap.String("op", event.Op.String()))
			select {
			case w.changed <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("tasks file watcher error", zap.Error(err))
		}
	}
}

// Wait blocks until the tasks file has been written, created or replaced
// since the previous Wait returned (or since the watcher started), then lets
// further writes settle for the debounce interval.
func (w *TasksWatcher) Wait(ctx context.Context) error {
	w.logger.Debug("waiting for tasks file change", zap.String("path", w.path))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.changed:
	case <-w.done:
		return ErrWatcherClosed
	}

	w.logger.Info("tasks file changed", zap.String("path", w.path))
	if err := w.settle(ctx); err != nil {
		return err
	}
	// Writes during the settle interval belong to this change.
	select {
	case <-w.changed:
	default:
	}
	return nil
}

func (w *TasksWatcher) settle(ctx context.Context) error {
	if w.debounce <= 0 {
		return nil
	}
	if !sleep(ctx, w.debounce) {
		return ctx.Err()
	}
	return nil
}
