package streaming

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"
)

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates that the client did not accept a chunk
	// within the configured write timeout.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates that the request context ended before the
	// transfer completed.
	ErrClientGone = errors.New("client disconnected")

	// ErrTransferTooLong indicates that the transfer ran past MaxDuration.
	ErrTransferTooLong = errors.New("transfer exceeded maximum duration")
)

// Config bounds how long a client may take to receive a response.
type Config struct {
	// WriteTimeout is the deadline for each chunk (0 = none)
	WriteTimeout time.Duration
	// MaxDuration is the absolute maximum transfer duration (0 = unlimited)
	MaxDuration time.Duration
	// ChunkSize is the largest single write passed to the connection
	// (0 = write as received)
	ChunkSize int
}

// DefaultConfig returns the limits used for artifact downloads.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		MaxDuration:  0,
		ChunkSize:    64 * 1024,
	}
}

// Writer wraps an http.ResponseWriter and moves the connection's write
// deadline forward before every chunk, so a stalled client fails the
// transfer instead of holding it open. Connections that do not support
// deadlines (such as test recorders) are written to without one.
type Writer struct {
	http.ResponseWriter

	ctx       context.Context
	rc        *http.ResponseController
	config    Config
	startTime time.Time
	deadlines bool

	mu      sync.Mutex
	written int64
	err     error
}

// NewWriter wraps w. ctx is normally the request context.
func NewWriter(ctx context.Context, w http.ResponseWriter, config Config) *Writer {
	return &Writer{
		ResponseWriter: w,
		ctx:            ctx,
		rc:             http.NewResponseController(w),
		config:         config,
		startTime:      time.Now(),
		deadlines:      config.WriteTimeout > 0,
	}
}

// Write implements io.Writer. After the first failure every call returns
// the same error.
func (sw *Writer) Write(p []byte) (int, error) {
	if err := sw.Err(); err != nil {
		return 0, err
	}

	total := 0
	for len(p) > 0 {
		if err := sw.check(); err != nil {
			return total, sw.fail(err)
		}

		chunk := p
		if sw.config.ChunkSize > 0 && len(chunk) > sw.config.ChunkSize {
			chunk = chunk[:sw.config.ChunkSize]
		}

		sw.extendDeadline()
		n, err := sw.ResponseWriter.Write(chunk)
		total += n

		sw.mu.Lock()
		sw.written += int64(n)
		sw.mu.Unlock()

		if err != nil {
			return total, sw.fail(sw.classify(err))
		}
		p = p[len(chunk):]
	}

	return total, nil
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sw *Writer) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// Close clears the write deadline so the connection can be reused.
func (sw *Writer) Close() {
	if sw.deadlines {
		_ = sw.rc.SetWriteDeadline(time.Time{})
	}
}

// Stats returns bytes written and time since the writer was created.
func (sw *Writer) Stats() (bytesWritten int64, duration time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.written, time.Since(sw.startTime)
}

// Err returns the error that ended the transfer, or nil.
func (sw *Writer) Err() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.err
}

func (sw *Writer) check() error {
	select {
	case <-sw.ctx.Done():
		return ErrClientGone
	default:
	}

	if sw.config.MaxDuration > 0 && time.Since(sw.startTime) > sw.config.MaxDuration {
		return ErrTransferTooLong
	}
	return nil
}

func (sw *Writer) extendDeadline() {
	if !sw.deadlines {
		return
	}
	err := sw.rc.SetWriteDeadline(time.Now().Add(sw.config.WriteTimeout))
	if errors.Is(err, http.ErrNotSupported) {
		sw.deadlines = false
	}
}

func (sw *Writer) classify(err error) error {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ErrWriteTimeout
	case sw.ctx.Err() != nil:
		return ErrClientGone
	default:
		return err
	}
}

func (sw *Writer) fail(err error) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.err == nil {
		sw.err = err
	}
	return sw.err
}
