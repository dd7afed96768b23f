package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"media-downloader/internal/startup"
)

var checkJSON bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify external tools and directories",
	Long: `Check that yt-dlp, ffmpeg and ffprobe can be executed and that the
download directory is writable. Exits non-zero when something required is
missing, which makes it usable as a container readiness gate.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the report as JSON")
}

// CheckReport is the outcome of the check command.
type CheckReport struct {
	Tools       []startup.ToolStatus `json:"tools"`
	DownloadDir DirStatus            `json:"download_dir"`
	DatabaseDir *DirStatus           `json:"database_dir,omitempty"`
}

// DirStatus is the writability of one directory.
type DirStatus struct {
	Path  string `json:"path"`
	Error string `json:"error,omitempty"`
}

// OK reports whether every tool and the download directory passed. The
// database directory is optional and only warns.
func (r CheckReport) OK() bool {
	for _, tool := range r.Tools {
		if !tool.OK() {
			return false
		}
	}
	return r.DownloadDir.Error == ""
}

var errCheckFailed = errors.New("check failed")

func runCheck(cmd *cobra.Command, args []string) error {
	startup.LoadDotEnv(".env")
	config := startup.ReadConfig()

	report := buildReport(cmd, config)
	if checkJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(cmd.OutOrStdout(), report)
	}

	if !report.OK() {
		return errCheckFailed
	}
	return nil
}

func buildReport(cmd *cobra.Command, config *startup.Config) CheckReport {
	report := CheckReport{
		Tools:       startup.CheckTools(cmd.Context(), config),
		DownloadDir: dirStatus(config.DownloadPath),
	}
	if config.HistoryEnabled {
		db := dirStatus(config.DatabaseDir)
		report.DatabaseDir = &db
	}
	return report
}

func dirStatus(path string) DirStatus {
	status := DirStatus{Path: path}
	if err := startup.CheckWritable(path); err != nil {
		status.Error = err.Error()
	}
	return status
}

func printReport(w io.Writer, r CheckReport) {
	for _, tool := range r.Tools {
		if tool.OK() {
			fmt.Fprintf(w, "[OK]   %-8s %s\n", tool.Name, tool.Version)
		} else {
			fmt.Fprintf(w, "[FAIL] %-8s %s\n", tool.Name, tool.Error)
		}
	}

	printDir(w, "[FAIL]", "downloads", r.DownloadDir)
	if r.DatabaseDir != nil {
		printDir(w, "[WARN]", "history", *r.DatabaseDir)
	}
}

func printDir(w io.Writer, failTag, name string, d DirStatus) {
	if d.Error == "" {
		fmt.Fprintf(w, "[OK]   %-8s %s\n", name, d.Path)
		return
	}
	fmt.Fprintf(w, "%s %-8s %s: %s\n", failTag, name, d.Path, d.Error)
}
