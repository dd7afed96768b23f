// Package watcher follows the managed download directory with fsnotify so
// that files deleted behind the service's back drop out of the registry
// without waiting for a lookup to notice.
package watcher

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"media-downloader/internal/logging"
	"media-downloader/internal/metrics"
)

// Forgetter drops the index entry for a path whose file is gone.
type Forgetter interface {
	Forget(path string) bool
}

// Watcher watches a single directory, non-recursively.
type Watcher struct {
	store  Forgetter
	fsw    *fsnotify.Watcher
	done   chan struct{}
	closed sync.Once
}

// New starts watching dir and forwarding removals to store.
func New(dir string, store Forgetter) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		metrics.WatcherErrors.Inc()
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		store: store,
		fsw:   fsw,
		done:  make(chan struct{}),
	}
	go w.run()

	logging.Debug("Watching %s for out-of-band removals", dir)
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	metrics.WatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	// Hidden files are scratch space for the downloader and database probes.
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}

	if w.store.Forget(event.Name) {
		logging.Debug("Watcher dropped record for %s", event.Name)
	}
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	var err error
	w.closed.Do(func() {
		err = w.fsw.Close()
		<-w.done
	})
	return err
}

// eventType returns a string representation of the fsnotify operation
func eventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}
