package startup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"media-downloader/internal/logging"
)

// Config holds all application configuration
type Config struct {
	ProjectName     string
	APIV1Str        string
	Host            string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool
	TrustProxy      bool
	CORSOrigins     []string

	DownloadPath       string
	FileExpiry         time.Duration
	SweepInterval      time.Duration
	MaxResolution      string
	SupportedQualities []string
	FFmpegPath         string
	YtDlpPath          string
	CookiesFile        string
	VisitorData        string
	DownloadWorkersMax int
	StreamWriteTimeout time.Duration

	DatabaseDir    string
	HistoryEnabled bool

	ThumbnailsEnabled bool
	ThumbnailSize     int
	WatchDownloads    bool

	// Derived paths
	DatabasePath string
}

const (
	defaultDownloadPath  = "/tmp/youtube_downloads"
	defaultExpirySeconds = 300
	defaultMaxResolution = "1080p"
	defaultQualities     = "360p,720p,1080p"
	defaultProjectName   = "YouTube Downloader API"
)

// LoadConfig loads configuration from .env and the environment, validates
// it and prepares the directories it names.
func LoadConfig() (*Config, error) {
	LoadDotEnv(".env")

	printBanner()
	logSystemInfo()

	config := ReadConfig()
	logConfig(config)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := prepareDirectories(config); err != nil {
		return nil, err
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    History:     %s", enabledString(config.HistoryEnabled))
	logging.Info("    Thumbnails:  %s", enabledString(config.ThumbnailsEnabled))
	logging.Info("    Watcher:     %s", enabledString(config.WatchDownloads))
	logging.Info("    Metrics:     %s", enabledString(config.MetricsEnabled))

	return config, nil
}

// ReadConfig parses the environment into a Config without touching the
// filesystem. Invalid values log a warning and fall back to the default.
func ReadConfig() *Config {
	config := &Config{
		ProjectName:     getEnv("PROJECT_NAME", defaultProjectName),
		APIV1Str:        "/" + strings.Trim(getEnv("API_V1_STR", "/api/v1"), "/"),
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8000"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		LogHealthChecks: getEnvBool("LOG_HEALTH_CHECKS", true),
		TrustProxy:      getEnvBool("TRUST_PROXY_HEADERS", false),
		CORSOrigins:     getEnvList("BACKEND_CORS_ORIGINS", ""),

		DownloadPath:       getEnv("DOWNLOAD_PATH", defaultDownloadPath),
		FileExpiry:         time.Duration(getEnvInt("FILE_EXPIRY_SECONDS", defaultExpirySeconds)) * time.Second,
		SweepInterval:      getEnvDuration("SWEEP_INTERVAL", time.Minute),
		MaxResolution:      getEnvResolution("MAX_RESOLUTION", defaultMaxResolution),
		SupportedQualities: getEnvList("SUPPORTED_QUALITIES", defaultQualities),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		YtDlpPath:          getEnv("YTDLP_PATH", "yt-dlp"),
		CookiesFile:        os.Getenv("YTDLP_COOKIES_FILE"),
		VisitorData:        os.Getenv("YTDLP_VISITOR_DATA"),
		DownloadWorkersMax: getEnvInt("DOWNLOAD_WORKERS_MAX", 4),
		StreamWriteTimeout: getEnvDuration("STREAM_WRITE_TIMEOUT", 30*time.Second),

		DatabaseDir:    getEnv("DATABASE_DIR", "./data"),
		HistoryEnabled: getEnvBool("HISTORY_ENABLED", true),

		ThumbnailsEnabled: getEnvBool("THUMBNAILS_ENABLED", true),
		ThumbnailSize:     getEnvInt("THUMBNAIL_SIZE", 320),
		WatchDownloads:    getEnvBool("WATCH_DOWNLOADS", true),
	}

	if abs, err := filepath.Abs(config.DownloadPath); err == nil {
		config.DownloadPath = abs
	}
	if abs, err := filepath.Abs(config.DatabaseDir); err == nil {
		config.DatabaseDir = abs
	}
	config.DatabasePath = filepath.Join(config.DatabaseDir, "history.db")

	return config
}

func logConfig(c *Config) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  PROJECT_NAME:          %s", c.ProjectName)
	logging.Info("  API_V1_STR:            %s", c.APIV1Str)
	logging.Info("  HOST:                  %s", c.Host)
	logging.Info("  PORT:                  %s", c.Port)
	logging.Info("  METRICS_PORT:          %s", c.MetricsPort)
	logging.Info("  METRICS_ENABLED:       %v", c.MetricsEnabled)
	logging.Info("  DOWNLOAD_PATH:         %s", c.DownloadPath)
	logging.Info("  FILE_EXPIRY_SECONDS:   %d", int(c.FileExpiry.Seconds()))
	logging.Info("  SWEEP_INTERVAL:        %s", c.SweepInterval)
	logging.Info("  MAX_RESOLUTION:        %s", c.MaxResolution)
	logging.Info("  SUPPORTED_QUALITIES:   %s", strings.Join(c.SupportedQualities, ","))
	logging.Info("  FFMPEG_PATH:           %s", c.FFmpegPath)
	logging.Info("  YTDLP_PATH:            %s", c.YtDlpPath)
	logging.Info("  YTDLP_COOKIES_FILE:    %s", valueOrNone(c.CookiesFile))
	logging.Info("  YTDLP_VISITOR_DATA:    %s", redact(c.VisitorData))
	logging.Info("  DOWNLOAD_WORKERS_MAX:  %d", c.DownloadWorkersMax)
	logging.Info("  STREAM_WRITE_TIMEOUT:  %s", c.StreamWriteTimeout)
	logging.Info("  DATABASE_DIR:          %s", c.DatabaseDir)
	logging.Info("  HISTORY_ENABLED:       %v", c.HistoryEnabled)
	logging.Info("  THUMBNAILS_ENABLED:    %v", c.ThumbnailsEnabled)
	logging.Info("  THUMBNAIL_SIZE:        %d", c.ThumbnailSize)
	logging.Info("  WATCH_DOWNLOADS:       %v", c.WatchDownloads)
	logging.Info("  BACKEND_CORS_ORIGINS:  %s", valueOrNone(strings.Join(c.CORSOrigins, ",")))
	logging.Info("  LOG_HEALTH_CHECKS:     %v", c.LogHealthChecks)
	logging.Info("  TRUST_PROXY_HEADERS:   %v", c.TrustProxy)
	logging.Info("  LOG_LEVEL:             %s", logging.GetLevel())
}

// prepareDirectories creates the download directory (required) and the
// database directory (optional; history is disabled when unusable).
func prepareDirectories(c *Config) error {
	logging.Info("  Download directory (absolute): %s", c.DownloadPath)
	if err := ensureDirectory(c.DownloadPath, "download"); err != nil {
		return fmt.Errorf("download directory error: %w", err)
	}
	logging.Debug("  Testing download directory write access...")
	if err := testWriteAccess(c.DownloadPath); err != nil {
		return fmt.Errorf("download directory is not writable: %w", err)
	}
	logging.Info("  [OK] Download directory is writable")

	if c.HistoryEnabled {
		logging.Info("  Database directory (absolute): %s", c.DatabaseDir)
		c.HistoryEnabled = setupOptionalDir(c.DatabaseDir, "history")
	}

	return nil
}

// LoadDotEnv loads variables from the given files without overriding the
// real environment. A missing file is not an error.
func LoadDotEnv(paths ...string) {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logging.Warn("Failed to load %s: %v", path, err)
			}
			continue
		}
		logging.Debug("Loaded environment from %s", path)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid positive integer for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvDuration parses a Go duration. Zero is allowed and means "off".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvResolution(key, defaultValue string) string {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(value, "p")); err != nil || n <= 0 || !strings.HasSuffix(value, "p") {
		logging.Warn("Invalid resolution for %s: %q, using default: %s", key, value, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvList reads a comma separated list or a JSON array of strings.
func getEnvList(key, defaultValue string) []string {
	value := strings.TrimSpace(getEnv(key, defaultValue))
	if value == "" {
		return nil
	}

	if strings.HasPrefix(value, "[") {
		var items []string
		if err := json.Unmarshal([]byte(value), &items); err != nil {
			logging.Warn("Invalid list for %s: %v, using default", key, err)
			return getEnvListValue(defaultValue)
		}
		return compact(items)
	}

	return getEnvListValue(value)
}

func getEnvListValue(value string) []string {
	return compact(strings.Split(value, ","))
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func redact(s string) string {
	if s == "" {
		return "(none)"
	}
	return "(set)"
}
