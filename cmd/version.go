package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"media-downloader/internal/startup"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Display version information",
	Aliases: []string{"v"},
	Run:     runVersion,
}

func runVersion(cmd *cobra.Command, args []string) {
	info := startup.GetBuildInfo()
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "media-downloader %s\n", info.Version)
	fmt.Fprintf(w, "  Commit:     %s\n", info.Commit)
	fmt.Fprintf(w, "  Build Time: %s\n", info.BuildTime)
	fmt.Fprintf(w, "  Go:         %s %s/%s\n", info.GoVersion, info.OS, info.Arch)
}
