// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is read from the environment by [LoadConfig], after loading
// a .env file from the working directory if one exists (real environment
// variables always win). The following variables are supported:
//
//   - DOWNLOAD_PATH: Managed download directory (default: /tmp/youtube_downloads)
//   - FILE_EXPIRY_SECONDS: Lifetime of a produced file (default: 300)
//   - SWEEP_INTERVAL: Background reclamation interval, 0 to disable (default: 1m)
//   - MAX_RESOLUTION: Highest video height offered (default: 1080p)
//   - SUPPORTED_QUALITIES: Comma list or JSON array (default: 360p,720p,1080p)
//   - FFMPEG_PATH, YTDLP_PATH: External tool binaries (default: from PATH)
//   - YTDLP_COOKIES_FILE, YTDLP_VISITOR_DATA: Optional extractor credentials
//   - DOWNLOAD_WORKERS_MAX: Upper bound on concurrent downloads (default: 4)
//   - HOST, PORT: API listen address (default: 0.0.0.0:8000)
//   - METRICS_PORT, METRICS_ENABLED: Prometheus server (default: 9090, true)
//   - DATABASE_DIR, HISTORY_ENABLED: Download history database (default: ./data, true)
//   - THUMBNAILS_ENABLED, THUMBNAIL_SIZE: Preview images (default: true, 320)
//   - WATCH_DOWNLOADS: Watch the download directory for deletions (default: true)
//   - BACKEND_CORS_ORIGINS: Allowed browser origins, comma list or JSON array
//   - API_V1_STR, PROJECT_NAME: API prefix and display name
//   - LOG_LEVEL, LOG_HEALTH_CHECKS, LOG_FILE: Logging
//
// Invalid values are logged and replaced by their defaults.
//
// # Directory Setup
//
//   - Download directory: Required, created if missing, must be writable
//   - Database directory: Optional, history is disabled if it is unusable
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup
