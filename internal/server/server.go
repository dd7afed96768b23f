// Package server wires the downloader's components together and runs the
// HTTP and metrics listeners until the context is cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"media-downloader/internal/database"
	"media-downloader/internal/fileserver"
	"media-downloader/internal/filesystem"
	"media-downloader/internal/handlers"
	"media-downloader/internal/logging"
	"media-downloader/internal/mediatypes"
	"media-downloader/internal/metrics"
	"media-downloader/internal/reclaim"
	"media-downloader/internal/registry"
	"media-downloader/internal/startup"
	"media-downloader/internal/thumbnail"
	"media-downloader/internal/transcoder"
	"media-downloader/internal/watcher"
	"media-downloader/internal/youtube"
)

const (
	serviceName = "media-downloader"

	shutdownTimeout        = 30 * time.Second
	metricsCollectInterval = time.Minute
	historySizeInterval    = 5 * time.Minute
)

// App owns every long-lived component.
type App struct {
	config *startup.Config

	store      *registry.Store
	reclaimer  *reclaim.Scheduler
	transcoder *transcoder.Transcoder
	producer   *youtube.Producer
	thumbnails *thumbnail.Generator
	history    *database.Database
	recorder   *database.Recorder
	watcher    *watcher.Watcher
	collector  *metrics.Collector

	handlers *handlers.Handlers
	router   *mux.Router

	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds the component graph described by config. Optional features
// that fail to initialize are logged and left out.
func New(ctx context.Context, config *startup.Config) (*App, error) {
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"downloads": config.DownloadPath,
		"database":  config.DatabaseDir,
	}))
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	metrics.InitializeMetrics()
	build := startup.GetBuildInfo()
	metrics.SetAppInfo(build.Version, build.Commit, build.GoVersion)

	a := &App{
		config:   config,
		stopChan: make(chan struct{}),
	}

	a.transcoder = transcoder.New(config.FFmpegPath)

	startup.LogThumbnailInit(config.ThumbnailsEnabled, config.ThumbnailSize)
	a.thumbnails = thumbnail.New(config.FFmpegPath, config.ThumbnailSize, config.ThumbnailsEnabled)

	if config.HistoryEnabled {
		start := time.Now()
		db, err := database.New(ctx, config.DatabasePath)
		startup.LogHistoryInit(true, time.Since(start), err)
		if err == nil {
			a.history = db
			a.recorder = database.NewRecorder(db, database.DefaultQueueSize)
		}
	} else {
		startup.LogHistoryInit(false, 0, nil)
	}

	opts := []registry.Option{
		registry.WithListener(metrics.RegistryListener{}),
		registry.WithListener(a.thumbnails),
	}
	if a.recorder != nil {
		opts = append(opts, registry.WithListener(a.recorder))
	}
	store, err := registry.New(config.DownloadPath, config.FileExpiry, opts...)
	if err != nil {
		a.closeHistory()
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	a.store = store

	startup.LogReclaimerInit(config.FileExpiry, config.SweepInterval)
	a.reclaimer = reclaim.New(store, config.SweepInterval)

	producer, err := youtube.New(youtube.Config{
		YtDlpPath:          config.YtDlpPath,
		FFmpegPath:         config.FFmpegPath,
		Dir:                store.Dir(),
		MaxResolution:      config.MaxResolution,
		SupportedQualities: config.SupportedQualities,
		CookiesFile:        config.CookiesFile,
		VisitorData:        config.VisitorData,
		MaxWorkers:         config.DownloadWorkersMax,
	}, youtube.ExecRunner{}, a.transcoder)
	if err != nil {
		a.closeHistory()
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	a.producer = producer

	if config.WatchDownloads {
		w, err := watcher.New(store.Dir(), store)
		startup.LogWatcherInit(store.Dir(), err)
		if err == nil {
			a.watcher = w
		}
	}

	a.collector = metrics.NewCollector(registryStats(store), metricsCollectInterval)

	deps := handlers.Deps{
		Registry:   store,
		Producer:   producer,
		Files:      fileserver.New(store, store.Dir(), a.reclaimer),
		Reclaimer:  a.reclaimer,
		Thumbnails: a.thumbnails,
		Prober:     a.transcoder,
	}
	if a.history != nil {
		deps.History = a.history
	}
	a.handlers = handlers.New(deps, config)
	a.router = NewRouter(a.handlers, config.APIV1Str)

	return a, nil
}

// Router returns the route table without the outer middleware.
func (a *App) Router() *mux.Router { return a.router }

// Handler returns the fully wrapped application handler.
func (a *App) Handler() http.Handler { return Wrap(a.router, a.config) }

// Store returns the registry.
func (a *App) Store() *registry.Store { return a.store }

// Run serves until ctx is cancelled or a listener fails, then shuts every
// component down. It returns the listener error, if any.
func (a *App) Run(ctx context.Context, startTime time.Time) error {
	a.start()

	srv := &http.Server{
		Addr:         net.JoinHostPort(a.config.Host, a.config.Port),
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if a.config.MetricsEnabled {
		metricsSrv = &http.Server{
			Addr:         net.JoinHostPort(a.config.Host, a.config.MetricsPort),
			Handler:      newMetricsMux(a.handlers),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		}
	}

	errChan := make(chan error, 2)
	serve := func(name string, s *http.Server) {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("%s server: %w", name, err)
		}
	}
	go serve("HTTP", srv)
	if metricsSrv != nil {
		go serve("metrics", metricsSrv)
	}

	startup.LogHTTPRoutes(a.router, a.config.LogHealthChecks)
	startup.LogServerStarted(startup.ServerConfig{
		Host:            a.config.Host,
		Port:            a.config.Port,
		MetricsPort:     a.config.MetricsPort,
		MetricsEnabled:  a.config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errChan:
		logging.Error("%v", runErr)
	}

	a.shutdown(srv, metricsSrv)
	return runErr
}

func (a *App) start() {
	a.reclaimer.Start()
	if a.config.MetricsEnabled {
		a.collector.Start()
	}
	if a.history != nil {
		a.wg.Add(1)
		go a.sampleHistorySize()
	}
}

// sampleHistorySize keeps the database size gauges current.
func (a *App) sampleHistorySize() {
	defer a.wg.Done()

	a.history.UpdateSizeMetrics()
	ticker := time.NewTicker(historySizeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.history.UpdateSizeMetrics()
		case <-a.stopChan:
			return
		}
	}
}

func (a *App) shutdown(srv, metricsSrv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.watcher != nil {
		startup.LogShutdownStep("Stopping directory watcher")
		if err := a.watcher.Close(); err != nil {
			logging.Warn("Watcher close error: %v", err)
		}
		startup.LogShutdownStepComplete("Directory watcher stopped")
	}

	startup.LogShutdownStep("Stopping reclamation scheduler")
	a.reclaimer.Stop()
	startup.LogShutdownStepComplete("Reclamation scheduler stopped")

	startup.LogShutdownStep("Cleaning up transcoder")
	a.transcoder.Cleanup()
	startup.LogShutdownStepComplete("Transcoder cleanup complete")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
		_ = srv.Close()
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
		a.collector.Stop()
	}

	a.Close()
	startup.LogShutdownComplete()
	logging.Sync()
}

// Close releases the components that outlive request handling. It is safe
// to call more than once and without Run.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		close(a.stopChan)
		a.wg.Wait()
		if a.watcher != nil {
			_ = a.watcher.Close()
		}
		a.closeHistory()
	})
}

// closeHistory drains pending history writes before closing the database.
func (a *App) closeHistory() {
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			logging.Warn("History database close error: %v", err)
		} else {
			startup.LogShutdownStepComplete("History database closed")
		}
	}
}

// registryStats samples what the registry tracks and what is actually on
// disk, so drift between the two shows up in metrics.
func registryStats(store *registry.Store) metrics.StatsProviderFunc {
	retry := filesystem.DefaultRetryConfig()
	return func() metrics.Stats {
		var s metrics.Stats
		for _, rec := range store.Snapshot() {
			s.Records++
			switch rec.Kind {
			case mediatypes.KindAudio:
				s.AudioBytes += rec.Size
			case mediatypes.KindVideo:
				s.VideoBytes += rec.Size
			default:
				s.UnknownBytes += rec.Size
			}
		}

		entries, err := filesystem.ReadDirWithRetry(store.Dir(), retry)
		if err != nil {
			logging.Warn("Listing %s for metrics: %v", store.Dir(), err)
			return s
		}
		for _, e := range entries {
			if !e.IsDir() {
				s.DirectoryFiles++
			}
		}
		return s
	}
}
