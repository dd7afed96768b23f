package database

import (
	"context"
	"sync"
	"time"

	"media-downloader/internal/logging"
	"media-downloader/internal/metrics"
	"media-downloader/internal/registry"
)

// DefaultQueueSize is the Recorder queue length used when none is given.
const DefaultQueueSize = 256

// Writer is the subset of Database the Recorder writes through.
type Writer interface {
	RecordArtifact(ctx context.Context, rec registry.Record) error
	MarkRemoved(ctx context.Context, id, reason string, at time.Time) (bool, error)
}

type historyEvent struct {
	rec    registry.Record
	added  bool
	reason registry.Reason
	at     time.Time
}

// Recorder is a registry.Listener that writes lifecycle events to the
// history database from a single background goroutine. Events are dropped,
// and counted, when the queue is full.
type Recorder struct {
	w      Writer
	events chan historyEvent
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts a Recorder writing to w.
func NewRecorder(w Writer, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	r := &Recorder{
		w:      w,
		events: make(chan historyEvent, queueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// RecordAdded implements registry.Listener.
func (r *Recorder) RecordAdded(rec registry.Record) {
	r.enqueue(historyEvent{rec: rec, added: true, at: time.Now()})
}

// RecordRemoved implements registry.Listener.
func (r *Recorder) RecordRemoved(rec registry.Record, reason registry.Reason) {
	r.enqueue(historyEvent{rec: rec, reason: reason, at: time.Now()})
}

func (r *Recorder) enqueue(ev historyEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}

	select {
	case r.events <- ev:
	default:
		metrics.HistoryQueueDropped.Inc()
		logging.Warn("History queue full, dropping event for %s", ev.rec.ID)
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	for ev := range r.events {
		if ev.added {
			if err := r.w.RecordArtifact(context.Background(), ev.rec); err != nil {
				logging.Error("Failed to record history for %s: %v", ev.rec.ID, err)
			}
			continue
		}
		if _, err := r.w.MarkRemoved(context.Background(), ev.rec.ID, string(ev.reason), ev.at); err != nil {
			logging.Error("Failed to mark %s removed in history: %v", ev.rec.ID, err)
		}
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	<-r.done
}
