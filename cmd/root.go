// Package cmd holds the command line interface. Running the binary without
// a subcommand starts the API server.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "media-downloader",
	Short: "Ephemeral YouTube download API",
	Long: "media-downloader fetches videos and audio with yt-dlp, hands them out\n" +
		"over HTTP and deletes them once their retention period has passed.\n\n" +
		"Configuration is read from the environment and an optional .env file.",
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}
