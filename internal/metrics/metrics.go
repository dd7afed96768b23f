// Package metrics declares the Prometheus collectors exported by the
// downloader and the adapters that feed them from other packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_downloader_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_downloader_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Registry metrics
var (
	RegistryRecordsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_downloader_registry_records",
			Help: "Number of records currently tracked by the registry",
		},
	)

	RegistryRegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_registry_registrations_total",
			Help: "Total number of artifacts registered",
		},
		[]string{"kind"},
	)

	RegistryRemovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_registry_removals_total",
			Help: "Total number of records removed, by reason",
		},
		[]string{"reason"},
	)

	RegistryTrackedBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_downloader_registry_tracked_bytes",
			Help: "Bytes on disk held by tracked artifacts",
		},
		[]string{"kind"},
	)

	DirectoryFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_downloader_directory_files",
			Help: "Number of files in the managed directory, tracked or not",
		},
	)
)

// Reclamation metrics
var (
	ReclaimSweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_reclaim_sweeps_total",
			Help: "Total number of expiry sweeps, by what triggered them",
		},
		[]string{"trigger"}, // "interval", "request", "manual"
	)

	ReclaimSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_downloader_reclaim_sweep_duration_seconds",
			Help:    "Duration of expiry sweeps in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	ReclaimRecordsReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_downloader_reclaim_records_total",
			Help: "Total number of expired records reclaimed by sweeps",
		},
	)

	ReclaimTriggersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_downloader_reclaim_triggers_coalesced_total",
			Help: "Sweep triggers folded into an already pending sweep",
		},
	)

	ReclaimLastSweepTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_downloader_reclaim_last_sweep_timestamp",
			Help: "Unix timestamp of the last completed sweep",
		},
	)
)

// File server metrics
var (
	FileResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_file_resolutions_total",
			Help: "Total number of file resolutions, by how they were satisfied",
		},
		[]string{"source"}, // "registry", "direct", "not_found"
	)

	ServedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_served_bytes_total",
			Help: "Total bytes of artifact content written to clients",
		},
		[]string{"kind"},
	)

	ServeResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_serve_results_total",
			Help: "Total number of artifact transfers, by outcome",
		},
		[]string{"result"}, // "complete", "timeout", "aborted"
	)
)

// Producer metrics
var (
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_downloads_total",
			Help: "Total number of download jobs",
		},
		[]string{"kind", "status"},
	)

	DownloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_downloader_download_duration_seconds",
			Help:    "Download job duration in seconds",
			Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	DownloadsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_downloader_downloads_in_progress",
			Help: "Number of download jobs currently running",
		},
	)

	DownloadsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_downloader_downloads_queued",
			Help: "Number of download jobs waiting for a worker slot",
		},
	)

	DownloadFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_download_fallbacks_total",
			Help: "Downloads whose output had to be located by prefix scan",
		},
		[]string{"action"}, // "adopted", "converted"
	)

	InfoRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_info_requests_total",
			Help: "Total number of metadata extractions",
		},
		[]string{"status"},
	)

	InfoDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_downloader_info_duration_seconds",
			Help:    "Metadata extraction duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
)

// Transcoder metrics
var (
	TranscoderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_transcoder_jobs_total",
			Help: "Total number of transcoding jobs",
		},
		[]string{"status"},
	)

	TranscoderJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_downloader_transcoder_job_duration_seconds",
			Help:    "Transcoding job duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	TranscoderJobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_downloader_transcoder_jobs_in_progress",
			Help: "Number of transcoding jobs currently in progress",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_thumbnail_generations_total",
			Help: "Total number of preview thumbnails generated",
		},
		[]string{"kind", "status"},
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_downloader_thumbnail_generation_duration_seconds",
			Help:    "Preview thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)
)

// History database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_downloader_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_downloader_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)

	HistoryQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_downloader_history_events_dropped_total",
			Help: "History events dropped because the write queue was full",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_downloader_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation latency by volume and operation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_filesystem_operation_errors_total",
			Help: "Filesystem operation errors by volume and operation",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_filesystem_retry_attempts_total",
			Help: "Filesystem operation retries after a stale handle",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_filesystem_stale_errors_total",
			Help: "NFS stale file handle errors seen",
		},
		[]string{"operation", "volume"},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloader_watcher_events_total",
			Help: "Managed directory events seen by the watcher",
		},
		[]string{"op"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_downloader_watcher_errors_total",
			Help: "Errors reported by the directory watcher",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_downloader_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
