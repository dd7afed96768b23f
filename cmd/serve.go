package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"media-downloader/internal/memory"
	"media-downloader/internal/server"
	"media-downloader/internal/startup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the HTTP API, the reclamation scheduler and, when enabled, the
metrics listener. SIGINT or SIGTERM triggers a graceful shutdown.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	// Set GOMEMLIMIT before anything allocates much
	startup.LogMemoryConfig(memory.ConfigureFromEnv())

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	startup.LogToolsInit(ctx, config)

	app, err := server.New(ctx, config)
	if err != nil {
		startup.LogFatal("Failed to initialize: %v", err)
	}

	go waitForSignal(ctx, cancel)

	return app.Run(ctx, startTime)
}

// waitForSignal cancels the server context on SIGINT or SIGTERM.
func waitForSignal(ctx context.Context, cancel context.CancelFunc) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		startup.LogShutdownInitiated(sig.String())
		cancel()
	case <-ctx.Done():
	}
}
