// Package transcoder wraps the ffmpeg invocations the downloader needs after
// yt-dlp has finished: container conversion to MP4 and stream probing.
package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"media-downloader/internal/logging"
	"media-downloader/internal/metrics"
)

// Transcoder runs ffmpeg conversions and tracks the live processes so they
// can be killed on shutdown.
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
	processes   map[string]*exec.Cmd
	processMu   sync.Mutex
}

// VideoInfo contains information about a media file.
type VideoInfo struct {
	Duration   float64 `json:"duration"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	VideoCodec string  `json:"videoCodec"`
	AudioCodec string  `json:"audioCodec"`
	Container  string  `json:"container"`
}

// New creates a Transcoder. ffprobe is looked up next to ffmpegPath when
// that is a path, or on PATH otherwise.
func New(ffmpegPath string) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	ffprobe := "ffprobe"
	if dir := filepath.Dir(ffmpegPath); strings.ContainsRune(ffmpegPath, filepath.Separator) {
		ffprobe = filepath.Join(dir, "ffprobe")
	}

	return &Transcoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobe,
		processes:   make(map[string]*exec.Cmd),
	}
}

// FFmpegPath returns the configured ffmpeg binary.
func (t *Transcoder) FFmpegPath() string {
	return t.ffmpegPath
}

// ToMP4 converts src into an H.264/AAC MP4 at dst. Output is written to a
// temporary sibling and renamed into place, so dst never holds a partial file.
func (t *Transcoder) ToMP4(ctx context.Context, src, dst string) error {
	tmp := dst + ".converting"
	args := []string{
		"-y",
		"-v", "error",
		"-i", src,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "192k",
		"-strict", "experimental",
		"-movflags", "+faststart",
		"-f", "mp4",
		tmp,
	}

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	t.processMu.Lock()
	t.processes[dst] = cmd
	t.processMu.Unlock()
	metrics.TranscoderJobsInProgress.Inc()

	defer func() {
		t.processMu.Lock()
		delete(t.processes, dst)
		t.processMu.Unlock()
		metrics.TranscoderJobsInProgress.Dec()
	}()

	logging.Info("Converting %s to MP4: %s", src, dst)
	start := time.Now()

	if err := cmd.Run(); err != nil {
		metrics.TranscoderJobsTotal.WithLabelValues("error").Inc()
		_ = os.Remove(tmp)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Error("FFmpeg stderr: %s", strings.TrimSpace(stderr.String()))
		return fmt.Errorf("converting %s to mp4: %w", filepath.Base(src), err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		metrics.TranscoderJobsTotal.WithLabelValues("error").Inc()
		_ = os.Remove(tmp)
		return fmt.Errorf("moving converted file into place: %w", err)
	}

	metrics.TranscoderJobsTotal.WithLabelValues("success").Inc()
	metrics.TranscoderJobDuration.Observe(time.Since(start).Seconds())
	logging.Info("Successfully converted to MP4: %s (%v)", dst, time.Since(start).Round(time.Millisecond))
	return nil
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// Probe reports the codecs, dimensions and duration of a media file.
func (t *Transcoder) Probe(ctx context.Context, filePath string) (*VideoInfo, error) {
	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe error: %w - %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (*VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	info := &VideoInfo{Container: out.Format.FormatName}
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
				info.Width = s.Width
				info.Height = s.Height
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		}
	}
	return info, nil
}

// Active returns the number of running conversions.
func (t *Transcoder) Active() int {
	t.processMu.Lock()
	defer t.processMu.Unlock()
	return len(t.processes)
}

// Cleanup stops all active conversion processes.
func (t *Transcoder) Cleanup() {
	t.processMu.Lock()
	defer t.processMu.Unlock()

	for path, cmd := range t.processes {
		if cmd.Process != nil {
			logging.Info("Killing conversion process for: %s", path)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill conversion process for %s: %v", path, err)
			}
		}
	}
}
