// Package workers sizes and bounds the concurrent work the downloader runs
// against external tools (yt-dlp, ffmpeg).
package workers

import (
	"context"
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that pins the worker count.
const EnvOverride = "DOWNLOAD_WORKERS"

// Count returns the optimal number of workers for a given task type.
// It respects container CPU limits via GOMAXPROCS.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks
//   - 2.0 for I/O-bound tasks
//   - 1.5 for mixed tasks
//
// The limit parameter caps the worker count. Use 0 for no limit.
//
// Can be overridden with the DOWNLOAD_WORKERS environment variable.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
// Downloads are network-bound while yt-dlp runs and CPU-bound while ffmpeg
// post-processes, so the producer sizes its pool with this.
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

// Limiter bounds how many jobs run at once.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter returns a Limiter admitting n concurrent jobs (minimum 1).
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	<-l.slots
}

// Cap returns the configured concurrency.
func (l *Limiter) Cap() int {
	return cap(l.slots)
}

// InUse returns the number of held slots.
func (l *Limiter) InUse() int {
	return len(l.slots)
}
