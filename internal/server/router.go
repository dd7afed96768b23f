package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"media-downloader/internal/handlers"
	"media-downloader/internal/middleware"
	"media-downloader/internal/startup"
)

// NewRouter registers every API route under apiPrefix plus the probes at
// the root. Request metrics are labeled by route template.
func NewRouter(h *handlers.Handlers, apiPrefix string) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	r.NotFoundHandler = http.HandlerFunc(h.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.MethodNotAllowed)

	// Probes and service info
	r.HandleFunc("/", h.Root).Methods("GET")
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix(apiPrefix).Subrouter()

	yt := api.PathPrefix("/youtube").Subrouter()
	yt.HandleFunc("/info", h.GetVideoInfo).Methods("POST")
	yt.HandleFunc("/download", h.DownloadVideo).Methods("POST")
	yt.HandleFunc("/download/{id}", h.ServeDownload).Methods("GET", "HEAD")
	yt.HandleFunc("/download/{id}/thumbnail", h.GetThumbnail).Methods("GET")
	yt.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api.HandleFunc("/download/{id}", h.ServeDownload).Methods("GET", "HEAD")

	// Diagnostics
	api.HandleFunc("/diagnostic/files", h.ListFiles).Methods("GET")
	api.HandleFunc("/diagnostic/check/{id}", h.CheckFile).Methods("GET")

	return r
}

// Wrap applies the middleware that must see every request, including
// preflights and unmatched routes.
func Wrap(router http.Handler, config *startup.Config) http.Handler {
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggingConfig.TrustProxyHeaders = config.TrustProxy

	handler := middleware.CORS(config.CORSOrigins)(router)
	handler = middleware.Logger(loggingConfig, serviceName)(handler)
	return middleware.Recover(handler)
}

// newMetricsMux serves /metrics on its own port.
func newMetricsMux(h *handlers.Handlers) *http.ServeMux {
	m := http.NewServeMux()
	m.Handle("/metrics", h.MetricsHandler())
	return m
}
