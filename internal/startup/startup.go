package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"media-downloader/internal/logging"
	"media-downloader/internal/memory"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// ToolStatus is the result of probing an external binary.
type ToolStatus struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK reports whether the tool was found and answered.
func (s ToolStatus) OK() bool {
	return s.Error == ""
}

// CheckTool resolves bin on PATH (or as given) and runs it with versionArgs,
// returning the first line of its output.
func CheckTool(ctx context.Context, name, bin string, versionArgs ...string) ToolStatus {
	status := ToolStatus{Name: name, Path: bin}

	path, err := exec.LookPath(bin)
	if err != nil {
		status.Error = fmt.Sprintf("%s not found: %v", bin, err)
		return status
	}
	status.Path = path

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, versionArgs...).Output()
	if err != nil {
		status.Error = fmt.Sprintf("failed to get %s version: %v", name, err)
		return status
	}

	first, _, _ := strings.Cut(string(output), "\n")
	status.Version = strings.TrimSpace(first)
	return status
}

// CheckTools probes yt-dlp, ffmpeg and ffprobe.
func CheckTools(ctx context.Context, c *Config) []ToolStatus {
	ffprobe := "ffprobe"
	if strings.ContainsRune(c.FFmpegPath, filepath.Separator) {
		ffprobe = filepath.Join(filepath.Dir(c.FFmpegPath), "ffprobe")
	}
	return []ToolStatus{
		CheckTool(ctx, "yt-dlp", c.YtDlpPath, "--version"),
		CheckTool(ctx, "ffmpeg", c.FFmpegPath, "-version"),
		CheckTool(ctx, "ffprobe", ffprobe, "-version"),
	}
}

// CheckWritable creates dir if needed and verifies that files can be
// written to it.
func CheckWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return testWriteAccess(dir)
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogMemoryConfig logs the Go memory limit configuration
func LogMemoryConfig(result memory.Result) {
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	switch {
	case !result.Configured:
		logging.Info("  GOMEMLIMIT: not configured (set MEMORY_LIMIT to enable)")
	case result.Source == "GOMEMLIMIT":
		logging.Info("  GOMEMLIMIT: %d bytes (from GOMEMLIMIT)", result.GoMemLimit)
	default:
		logging.Info("  GOMEMLIMIT: %d bytes (%.0f%% of %d byte container limit)",
			result.GoMemLimit, result.Ratio*100, result.ContainerLimit)
	}
	logging.Info("")
}

// LogToolsInit probes the external tools and logs what was found. Missing
// tools are warnings; the API still starts and reports errors per request.
func LogToolsInit(ctx context.Context, c *Config) []ToolStatus {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("EXTERNAL TOOLS")
	logging.Info("------------------------------------------------------------")

	tools := CheckTools(ctx, c)
	for _, tool := range tools {
		if tool.OK() {
			logging.Info("  [OK] %-8s %s", tool.Name, tool.Version)
			logging.Debug("       path: %s", tool.Path)
		} else {
			logging.Warn("  %s check failed: %s", tool.Name, tool.Error)
		}
	}
	return tools
}

// LogHistoryInit logs history database initialization
func LogHistoryInit(enabled bool, duration time.Duration, err error) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HISTORY DATABASE")
	logging.Info("------------------------------------------------------------")
	switch {
	case !enabled:
		logging.Info("  History disabled")
	case err != nil:
		logging.Warn("  History database unavailable: %v", err)
		logging.Warn("  Downloads will not be recorded")
	default:
		logging.Info("  [OK] History database initialized in %v", duration)
	}
}

// LogReclaimerInit logs the reclamation scheduler configuration
func LogReclaimerInit(ttl, interval time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("RECLAMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  File lifetime:  %v", ttl)
	if interval > 0 {
		logging.Info("  Sweep interval: %v", interval)
	} else {
		logging.Info("  Sweep interval: request-driven only")
	}
}

// LogThumbnailInit logs thumbnail generator initialization
func LogThumbnailInit(enabled bool, size int) {
	if enabled {
		logging.Info("  Thumbnails: %dpx previews", size)
	} else {
		logging.Info("  Thumbnails disabled")
	}
}

// LogWatcherInit logs whether the download directory watcher started
func LogWatcherInit(dir string, err error) {
	if err != nil {
		logging.Warn("  Directory watcher unavailable: %v", err)
		logging.Warn("  Out-of-band deletions will be noticed on lookup")
		return
	}
	logging.Info("  [OK] Watching %s", dir)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 4)
	if len(parts) == 0 {
		return ""
	}

	// api/v1/<group>
	if parts[0] == "api" && len(parts) > 2 {
		return "api/" + parts[2]
	}

	return parts[0]
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Host            string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://%s:%s", config.Host, config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://%s:%s/metrics", config.Host, config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Local access:")
	logging.Info("    Application:   http://localhost:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://localhost:%s/metrics", config.MetricsPort)
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
                   _ _               _                     _
  _ __ ___   ___  __| (_) __ _     __| | _____      ___ __ | | ___   __ _  __| | ___ _ __
 | '_ ' _ \ / _ \/ _' | |/ _' |   / _' |/ _ \ \ /\ / / '_ \| |/ _ \ / _' |/ _' |/ _ \ '__|
 | | | | | |  __/ (_| | | (_| |  | (_| | (_) \ V  V /| | | | | (_) | (_| | (_| |  __/ |
 |_| |_| |_|\___|\__,_|_|\__,_|   \__,_|\___/ \_/\_/ |_| |_|_|\___/ \__,_|\__,_|\___|_|

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")

	if logging.IsDebugEnabled() {
		if entries, err := os.ReadDir(path); err == nil {
			logging.Debug("    Contents: %d entries (left over from a previous run are not tracked)", len(entries))
		}
	}

	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}
