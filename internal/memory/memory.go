// Package memory sets the Go runtime soft memory limit from the container
// limit. The downloader's heavy memory users are the yt-dlp and ffmpeg child
// processes, so only a modest share of the container goes to the Go heap.
package memory

import (
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"media-downloader/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go heap.
const DefaultMemoryRatio = 0.5

// Result describes what ConfigureFromEnv did.
type Result struct {
	// Configured indicates whether a memory limit is in effect
	Configured bool

	// Source is "GOMEMLIMIT", "MEMORY_LIMIT" or "none"
	Source string

	// ContainerLimit is the parsed MEMORY_LIMIT in bytes, 0 if unset
	ContainerLimit int64

	// GoMemLimit is the effective Go memory limit in bytes, 0 if unset
	GoMemLimit int64

	Ratio float64
}

// ConfigureFromEnv applies GOMEMLIMIT, or derives it from MEMORY_LIMIT and
// MEMORY_RATIO. Call it early in startup.
func ConfigureFromEnv() Result {
	if goMemLimitEnv := os.Getenv("GOMEMLIMIT"); goMemLimitEnv != "" {
		result := Result{Source: "GOMEMLIMIT"}
		// The runtime already parsed it; read it back to report.
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", goMemLimitEnv)
		return result
	}

	result := configure(os.Getenv("MEMORY_LIMIT"), os.Getenv("MEMORY_RATIO"))
	if result.Configured {
		debug.SetMemoryLimit(result.GoMemLimit)
		logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s container limit)",
			formatBytes(result.GoMemLimit), result.Ratio*100, formatBytes(result.ContainerLimit))
	}
	return result
}

// configure computes the limit without touching the runtime.
func configure(limitStr, ratioStr string) Result {
	if limitStr == "" {
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT will not be configured automatically")
		return Result{Source: "none"}
	}

	limit, err := parseQuantity(limitStr)
	if err != nil || limit <= 0 {
		logging.Warn("Failed to parse MEMORY_LIMIT %q: %v", limitStr, err)
		return Result{Source: "none"}
	}

	ratio := DefaultMemoryRatio
	if ratioStr != "" {
		parsed, err := strconv.ParseFloat(ratioStr, 64)
		switch {
		case err != nil:
			logging.Warn("Failed to parse MEMORY_RATIO %q: %v, using default %.2f", ratioStr, err, DefaultMemoryRatio)
		case parsed <= 0 || parsed > 1:
			logging.Warn("MEMORY_RATIO %q out of range (0.0-1.0], using default %.2f", ratioStr, DefaultMemoryRatio)
		default:
			ratio = parsed
		}
	}

	return Result{
		Configured:     true,
		Source:         "MEMORY_LIMIT",
		ContainerLimit: limit,
		GoMemLimit:     int64(float64(limit) * ratio),
		Ratio:          ratio,
	}
}

// parseQuantity accepts plain bytes or a Kubernetes binary/decimal suffix
// (Ki, Mi, Gi, K, M, G).
func parseQuantity(s string) (int64, error) {
	s = strings.TrimSpace(s)
	multipliers := []struct {
		suffix string
		factor int64
	}{
		{"Ki", 1 << 10}, {"Mi", 1 << 20}, {"Gi", 1 << 30}, {"Ti", 1 << 40},
		{"K", 1e3}, {"M", 1e6}, {"G", 1e9}, {"T", 1e12},
	}
	for _, m := range multipliers {
		if strings.HasSuffix(s, m.suffix) {
			n, err := strconv.ParseInt(strings.TrimSuffix(s, m.suffix), 10, 64)
			if err != nil {
				return 0, err
			}
			if n > math.MaxInt64/m.factor {
				return 0, fmt.Errorf("quantity %q overflows", s)
			}
			return n * m.factor, nil
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

// formatBytes formats bytes into human-readable string
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
