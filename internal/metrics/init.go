package metrics

import (
	"media-downloader/internal/mediatypes"
	"media-downloader/internal/registry"
)

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup.
func InitializeMetrics() {
	kinds := []mediatypes.Kind{mediatypes.KindAudio, mediatypes.KindVideo, mediatypes.KindUnknown}

	for _, k := range kinds {
		RegistryRegistrationsTotal.WithLabelValues(string(k))
		RegistryTrackedBytes.WithLabelValues(string(k))
	}
	for _, r := range registry.Reasons {
		RegistryRemovalsTotal.WithLabelValues(string(r))
	}

	for _, trigger := range []string{"interval", "request", "manual"} {
		ReclaimSweepsTotal.WithLabelValues(trigger)
	}

	for _, source := range []string{"registry", "direct", "not_found"} {
		FileResolutionsTotal.WithLabelValues(source)
	}
	for _, k := range kinds {
		ServedBytesTotal.WithLabelValues(string(k))
	}
	for _, result := range []string{"complete", "timeout", "aborted"} {
		ServeResultsTotal.WithLabelValues(result)
	}

	for _, k := range []mediatypes.Kind{mediatypes.KindAudio, mediatypes.KindVideo} {
		for _, status := range []string{"success", "error", "invalid", "cancelled"} {
			DownloadsTotal.WithLabelValues(string(k), status)
		}
		DownloadDuration.WithLabelValues(string(k))
		for _, status := range []string{"success", "error", "no_image"} {
			ThumbnailGenerationsTotal.WithLabelValues(string(k), status)
		}
		ThumbnailGenerationDuration.WithLabelValues(string(k))
	}
	for _, action := range []string{"adopted", "converted"} {
		DownloadFallbacksTotal.WithLabelValues(action)
	}
	for _, status := range []string{"success", "error", "invalid"} {
		InfoRequestsTotal.WithLabelValues(status)
	}
	for _, status := range []string{"success", "error"} {
		TranscoderJobsTotal.WithLabelValues(status)
	}

	for _, op := range []string{"initialize_schema", "insert_artifact", "mark_removed", "recent", "stats"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	volumes := []string{"downloads", "database", "unknown"}
	fsOps := []string{"stat", "open", "readdir", "remove"}
	for _, vol := range volumes {
		for _, op := range fsOps {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
		}
	}

	for _, op := range []string{"create", "write", "remove", "rename", "chmod"} {
		WatcherEventsTotal.WithLabelValues(op)
	}
}
