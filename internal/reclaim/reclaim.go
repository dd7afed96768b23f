// Package reclaim runs expiry sweeps against the registry, both on a fixed
// interval and on demand from request handlers.
package reclaim

import (
	"sync"
	"time"

	"media-downloader/internal/logging"
	"media-downloader/internal/metrics"
)

// Sweeper removes expired entries and reports how many went.
// *registry.Store satisfies it.
type Sweeper interface {
	SweepExpired() int
}

// Stats summarizes scheduler activity.
type Stats struct {
	Sweeps    int64     `json:"sweeps"`
	Reclaimed int64     `json:"reclaimed"`
	Coalesced int64     `json:"coalesced"`
	LastSweep time.Time `json:"lastSweep"`
	Running   bool      `json:"running"`
}

// Scheduler owns the background sweep goroutine. Trigger never blocks: a
// burst of triggers collapses into a single pending sweep.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration

	trigger  chan struct{}
	stopChan chan struct{}
	doneChan chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	sweepMu   sync.Mutex

	mu    sync.Mutex
	stats Stats
}

// New creates a Scheduler. A non-positive interval disables the ticker, in
// which case only triggers and SweepNow cause sweeps.
func New(sweeper Sweeper, interval time.Duration) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Trigger requests a sweep without waiting for it.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
		s.mu.Lock()
		s.stats.Coalesced++
		s.mu.Unlock()
		metrics.ReclaimTriggersDropped.Inc()
	}
}

// Start launches the sweep loop. Calling Start more than once is a no-op.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.stats.Running = true
		s.mu.Unlock()

		if s.interval > 0 {
			logging.Info("Reclamation scheduler started (interval: %v)", s.interval)
		} else {
			logging.Info("Reclamation scheduler started (on demand only)")
		}
		go s.loop()
	})
}

// Stop ends the loop and waits for an in-flight sweep to finish. A Scheduler
// cannot be restarted once stopped.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.startOnce.Do(func() {})
		close(s.stopChan)

		s.mu.Lock()
		running := s.stats.Running
		s.stats.Running = false
		s.mu.Unlock()

		if running {
			<-s.doneChan
			logging.Info("Reclamation scheduler stopped")
		}
	})
}

// SweepNow runs a sweep on the calling goroutine.
func (s *Scheduler) SweepNow() int {
	return s.sweep("manual")
}

// Stats returns a copy of the current counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) loop() {
	defer close(s.doneChan)

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-s.stopChan:
			return
		case <-tick:
			s.sweep("interval")
		case <-s.trigger:
			s.sweep("request")
		}
	}
}

func (s *Scheduler) sweep(trigger string) int {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	start := time.Now()
	n := s.sweeper.SweepExpired()
	elapsed := time.Since(start)

	metrics.ReclaimSweepsTotal.WithLabelValues(trigger).Inc()
	metrics.ReclaimSweepDuration.Observe(elapsed.Seconds())
	metrics.ReclaimRecordsReclaimed.Add(float64(n))
	metrics.ReclaimLastSweepTimestamp.SetToCurrentTime()

	s.mu.Lock()
	s.stats.Sweeps++
	s.stats.Reclaimed += int64(n)
	s.stats.LastSweep = start
	s.mu.Unlock()

	if n > 0 {
		logging.Info("Reclaimed %d expired file(s) in %v (%s)", n, elapsed, trigger)
	} else {
		logging.Debug("Sweep found nothing to reclaim (%s, %v)", trigger, elapsed)
	}
	return n
}
