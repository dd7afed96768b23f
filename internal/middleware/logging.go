package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"media-downloader/internal/logging"
)

// responseWriter records the status and body size for the access log.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	// SkipPaths are path prefixes that are never logged
	SkipPaths []string
	// LogHealthChecks controls whether probe endpoints are logged
	LogHealthChecks bool
	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool
}

// DefaultLoggingConfig logs everything and uses the socket address.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:         []string{},
		LogHealthChecks:   true,
		TrustProxyHeaders: false,
	}
}

// W3CLogger writes access lines in W3C Extended Log Format.
type W3CLogger struct {
	config      LoggingConfig
	serviceName string
}

// NewW3CLogger creates a new W3C format logger
func NewW3CLogger(config LoggingConfig, serviceName string) *W3CLogger {
	if serviceName == "" {
		serviceName = "-"
	}
	return &W3CLogger{
		config:      config,
		serviceName: serviceName,
	}
}

// isHealthCheck matches the probes at the root and the health route under
// any API prefix.
func isHealthCheck(path string) bool {
	return path == "/livez" || path == "/health" || strings.HasSuffix(path, "/youtube/health")
}

// sanitizeLogField strips control characters so request data cannot forge
// log lines or inject terminal escapes. Newlines become spaces.
func sanitizeLogField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			b.WriteRune(' ')
		case r == '\t':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Logger returns HTTP logging middleware using W3C Extended Log Format.
// serviceName is written as the s-sitename field.
func Logger(config LoggingConfig, serviceName string) func(http.Handler) http.Handler {
	logger := NewW3CLogger(config, serviceName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)
			logger.logRequest(r, wrapped, time.Since(start))
		})
	}
}

// logRequest writes one access line:
//
//	date time s-sitename c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes time-taken cs(Range) sc(Content-Type) cs(User-Agent)
func (l *W3CLogger) logRequest(r *http.Request, rw *responseWriter, duration time.Duration) {
	now := time.Now().UTC()

	contentType := rw.Header().Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}

	logging.Access(fmt.Sprintf("%s %s %s %s %s %s %s %d %d %d %s %s %s",
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		escapeW3CField(l.serviceName),
		w3cField(getClientIP(r, l.config.TrustProxyHeaders)),
		w3cField(r.Method),
		w3cField(r.URL.Path),
		w3cField(r.URL.RawQuery),
		rw.statusCode,
		rw.bytesWritten,
		duration.Milliseconds(),
		w3cField(r.Header.Get("Range")),
		w3cField(contentType),
		w3cField(r.Header.Get("User-Agent")),
	))
}

func shouldSkip(path string, config LoggingConfig) bool {
	for _, skipPath := range config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return !config.LogHealthChecks && isHealthCheck(path)
}

func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// w3cField sanitizes a request-controlled value and substitutes "-" when
// it is empty.
func w3cField(s string) string {
	s = sanitizeLogField(s)
	if s == "" {
		return "-"
	}
	return escapeW3CField(s)
}

// escapeW3CField quotes values containing whitespace or quotes, doubling
// embedded quotes.
func escapeW3CField(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}
