package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"media-downloader/internal/logging"
)

// Recover turns a handler panic into a logged JSON 500. http.ErrAbortHandler
// is re-raised so the server can abort the connection as usual.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			logging.Error("Panic serving %s %s: %v\n%s",
				sanitizeLogField(r.Method), sanitizeLogField(r.URL.Path), rec, debug.Stack())

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   "Internal server error",
				"details": "An unexpected error occurred",
			})
		}()

		next.ServeHTTP(w, r)
	})
}
