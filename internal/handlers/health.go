package handlers

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"media-downloader/internal/reclaim"
	"media-downloader/internal/startup"
)

const statusOK = "ok"

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	Records    int           `json:"records"`
	TTLSeconds int64         `json:"ttlSeconds"`
	Reclaimer  reclaim.Stats `json:"reclaimer"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:       statusOK,
		Service:      h.projectName,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Records:      len(h.registry.Snapshot()),
		TTLSeconds:   int64(h.registry.TTL() / time.Second),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if h.reclaimer != nil {
		response.Reclaimer = h.reclaimer.Stats()
	}

	writeJSONResponse(w, http.StatusOK, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// Root describes the service and how long it keeps downloads.
func (h *Handlers) Root(w http.ResponseWriter, _ *http.Request) {
	disclaimer := "Users are responsible for the content they download. " +
		"This service does not store any content beyond a " + retentionPeriod(h.registry.TTL()) + " temporary period."

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"name":       h.projectName,
		"api":        h.apiPrefix,
		"disclaimer": disclaimer,
	})
}

// retentionPeriod renders a TTL as "5-minute", "90-second" and so on.
func retentionPeriod(ttl time.Duration) string {
	switch {
	case ttl >= time.Hour && ttl%time.Hour == 0:
		return fmt.Sprintf("%d-hour", ttl/time.Hour)
	case ttl >= time.Minute && ttl%time.Minute == 0:
		return fmt.Sprintf("%d-minute", ttl/time.Minute)
	default:
		return fmt.Sprintf("%d-second", ttl/time.Second)
	}
}
