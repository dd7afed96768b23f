package startup

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
}

// clearEnv blanks every variable ReadConfig consults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PROJECT_NAME", "API_V1_STR", "HOST", "PORT", "METRICS_PORT", "METRICS_ENABLED",
		"LOG_HEALTH_CHECKS", "BACKEND_CORS_ORIGINS", "DOWNLOAD_PATH", "FILE_EXPIRY_SECONDS",
		"SWEEP_INTERVAL", "MAX_RESOLUTION", "SUPPORTED_QUALITIES", "FFMPEG_PATH", "YTDLP_PATH",
		"YTDLP_COOKIES_FILE", "YTDLP_VISITOR_DATA", "DOWNLOAD_WORKERS_MAX", "DATABASE_DIR",
		"HISTORY_ENABLED", "THUMBNAILS_ENABLED", "THUMBNAIL_SIZE", "WATCH_DOWNLOADS",
	} {
		t.Setenv(key, "")
	}
}

func TestReadConfigDefaults(t *testing.T) {
	clearEnv(t)

	c := ReadConfig()

	if c.DownloadPath != "/tmp/youtube_downloads" {
		t.Errorf("DownloadPath = %q", c.DownloadPath)
	}
	if c.FileExpiry != 300*time.Second {
		t.Errorf("FileExpiry = %v, want 5m", c.FileExpiry)
	}
	if c.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %v, want 1m", c.SweepInterval)
	}
	if c.MaxResolution != "1080p" {
		t.Errorf("MaxResolution = %q", c.MaxResolution)
	}
	if want := []string{"360p", "720p", "1080p"}; !reflect.DeepEqual(c.SupportedQualities, want) {
		t.Errorf("SupportedQualities = %v, want %v", c.SupportedQualities, want)
	}
	if c.FFmpegPath != "ffmpeg" || c.YtDlpPath != "yt-dlp" {
		t.Errorf("tools = %q, %q", c.FFmpegPath, c.YtDlpPath)
	}
	if c.Host != "0.0.0.0" || c.Port != "8000" || c.MetricsPort != "9090" {
		t.Errorf("listen = %s:%s metrics %s", c.Host, c.Port, c.MetricsPort)
	}
	if c.APIV1Str != "/api/v1" {
		t.Errorf("APIV1Str = %q", c.APIV1Str)
	}
	if c.ProjectName != "YouTube Downloader API" {
		t.Errorf("ProjectName = %q", c.ProjectName)
	}
	if !c.MetricsEnabled || !c.HistoryEnabled || !c.ThumbnailsEnabled || !c.WatchDownloads {
		t.Error("expected feature flags to default on")
	}
	if c.CORSOrigins != nil {
		t.Errorf("CORSOrigins = %v, want nil", c.CORSOrigins)
	}
	if c.ThumbnailSize != 320 || c.DownloadWorkersMax != 4 {
		t.Errorf("ThumbnailSize = %d, DownloadWorkersMax = %d", c.ThumbnailSize, c.DownloadWorkersMax)
	}
	if c.StreamWriteTimeout != 30*time.Second {
		t.Errorf("StreamWriteTimeout = %v, want 30s", c.StreamWriteTimeout)
	}
	if filepath.Base(c.DatabasePath) != "history.db" || !filepath.IsAbs(c.DatabasePath) {
		t.Errorf("DatabasePath = %q", c.DatabasePath)
	}
}

func TestReadConfigOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	t.Setenv("DOWNLOAD_PATH", dir)
	t.Setenv("FILE_EXPIRY_SECONDS", "60")
	t.Setenv("SWEEP_INTERVAL", "0")
	t.Setenv("MAX_RESOLUTION", "720P")
	t.Setenv("SUPPORTED_QUALITIES", `["480p", "720p"]`)
	t.Setenv("BACKEND_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("API_V1_STR", "api/v2/")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("YTDLP_VISITOR_DATA", "token")

	c := ReadConfig()

	if c.DownloadPath != dir {
		t.Errorf("DownloadPath = %q, want %q", c.DownloadPath, dir)
	}
	if c.FileExpiry != time.Minute {
		t.Errorf("FileExpiry = %v, want 1m", c.FileExpiry)
	}
	if c.SweepInterval != 0 {
		t.Errorf("SweepInterval = %v, want 0", c.SweepInterval)
	}
	if c.MaxResolution != "720p" {
		t.Errorf("MaxResolution = %q, want 720p", c.MaxResolution)
	}
	if want := []string{"480p", "720p"}; !reflect.DeepEqual(c.SupportedQualities, want) {
		t.Errorf("SupportedQualities = %v, want %v", c.SupportedQualities, want)
	}
	if want := []string{"https://a.example", "https://b.example"}; !reflect.DeepEqual(c.CORSOrigins, want) {
		t.Errorf("CORSOrigins = %v, want %v", c.CORSOrigins, want)
	}
	if c.APIV1Str != "/api/v2" {
		t.Errorf("APIV1Str = %q, want /api/v2", c.APIV1Str)
	}
	if c.MetricsEnabled {
		t.Error("MetricsEnabled = true")
	}
	if c.VisitorData != "token" {
		t.Errorf("VisitorData = %q", c.VisitorData)
	}
}

func TestReadConfigInvalidFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("FILE_EXPIRY_SECONDS", "-5")
	t.Setenv("SWEEP_INTERVAL", "often")
	t.Setenv("MAX_RESOLUTION", "huge")
	t.Setenv("SUPPORTED_QUALITIES", "[broken")
	t.Setenv("THUMBNAIL_SIZE", "abc")
	t.Setenv("HISTORY_ENABLED", "maybe")

	c := ReadConfig()

	if c.FileExpiry != 300*time.Second {
		t.Errorf("FileExpiry = %v, want default", c.FileExpiry)
	}
	if c.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %v, want default", c.SweepInterval)
	}
	if c.MaxResolution != "1080p" {
		t.Errorf("MaxResolution = %q, want default", c.MaxResolution)
	}
	if len(c.SupportedQualities) != 3 {
		t.Errorf("SupportedQualities = %v, want default", c.SupportedQualities)
	}
	if c.ThumbnailSize != 320 {
		t.Errorf("ThumbnailSize = %d, want default", c.ThumbnailSize)
	}
	if !c.HistoryEnabled {
		t.Error("HistoryEnabled should fall back to true")
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"", false, false},
		{"true", false, true},
		{"1", false, true},
		{"FALSE", true, false},
		{"nope", true, true},
	}
	for _, tt := range tests {
		t.Setenv("TEST_BOOL", tt.value)
		if got := getEnvBool("TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "DOTENV_ONLY=from-file\nDOTENV_BOTH=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DOTENV_BOTH", "from-env")
	t.Setenv("DOTENV_ONLY", "")
	os.Unsetenv("DOTENV_ONLY")

	LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env"))

	if got := os.Getenv("DOTENV_ONLY"); got != "from-file" {
		t.Errorf("DOTENV_ONLY = %q, want from-file", got)
	}
	if got := os.Getenv("DOTENV_BOTH"); got != "from-env" {
		t.Errorf("DOTENV_BOTH = %q, want from-env", got)
	}
}

func TestPrepareDirectories(t *testing.T) {
	root := t.TempDir()
	c := &Config{
		DownloadPath:   filepath.Join(root, "downloads", "nested"),
		DatabaseDir:    filepath.Join(root, "data"),
		HistoryEnabled: true,
	}

	if err := prepareDirectories(c); err != nil {
		t.Fatalf("prepareDirectories() error = %v", err)
	}
	if info, err := os.Stat(c.DownloadPath); err != nil || !info.IsDir() {
		t.Errorf("download directory not created: %v", err)
	}
	if !c.HistoryEnabled {
		t.Error("HistoryEnabled turned off for a writable directory")
	}
}

func TestPrepareDirectoriesDownloadPathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := prepareDirectories(&Config{DownloadPath: file}); err == nil {
		t.Error("prepareDirectories() with a file as download path succeeded")
	}
}

func TestPrepareDirectoriesDisablesHistory(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	c := &Config{
		DownloadPath:   filepath.Join(root, "downloads"),
		DatabaseDir:    filepath.Join(blocker, "data"),
		HistoryEnabled: true,
	}
	if err := prepareDirectories(c); err != nil {
		t.Fatalf("prepareDirectories() error = %v", err)
	}
	if c.HistoryEnabled {
		t.Error("HistoryEnabled should be off when the database directory cannot be created")
	}
}

func TestCheckWritable(t *testing.T) {
	root := t.TempDir()
	if err := CheckWritable(filepath.Join(root, "a", "b")); err != nil {
		t.Errorf("CheckWritable(new dir) error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a", "b", ".write-test")); !os.IsNotExist(err) {
		t.Error("write test file left behind")
	}

	file := filepath.Join(root, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CheckWritable(filepath.Join(file, "sub")); err == nil {
		t.Error("CheckWritable() under a regular file succeeded")
	}
}

func TestCheckTool(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-tool")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 'fake-tool 1.2.3'\necho second line\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	ok := CheckTool(context.Background(), "fake", script, "--version")
	if !ok.OK() || ok.Version != "fake-tool 1.2.3" {
		t.Errorf("CheckTool() = %+v", ok)
	}

	missing := CheckTool(context.Background(), "missing", filepath.Join(dir, "nope"))
	if missing.OK() {
		t.Errorf("CheckTool(missing) = %+v, want error", missing)
	}
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(_ http.ResponseWriter, _ *http.Request) {}).Methods("GET")
	r.HandleFunc("/api/v1/youtube/info", func(_ http.ResponseWriter, _ *http.Request) {}).Methods("POST")

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 2 {
		t.Fatalf("len(routes) = %d, want 2", len(routes))
	}
	if routes[1].Method != "POST" || routes[1].Path != "/api/v1/youtube/info" {
		t.Errorf("routes[1] = %+v", routes[1])
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"/health", "health"},
		{"/api/v1/youtube/info", "api/youtube"},
		{"/api/v1/download/{id}", "api/download"},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := getRouteGroup(tt.path); got != tt.want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
