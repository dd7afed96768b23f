// Package youtube produces downloadable artifacts from YouTube URLs by
// driving yt-dlp, and converts stray containers to MP4 through ffmpeg.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"media-downloader/internal/fileid"
	"media-downloader/internal/filesystem"
	"media-downloader/internal/logging"
	"media-downloader/internal/mediatypes"
	"media-downloader/internal/metrics"
	"media-downloader/internal/workers"
)

var (
	// ErrInvalidURL is returned for URLs that are not YouTube video links.
	ErrInvalidURL = errors.New("invalid YouTube URL")

	// ErrUnavailable is returned when yt-dlp cannot extract or fetch the video.
	ErrUnavailable = errors.New("video unavailable")

	// ErrNoOutput is returned when yt-dlp reported success but left no file.
	ErrNoOutput = errors.New("download produced no output file")
)

// IsClientError reports whether err should be surfaced as a bad request
// rather than a server fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrUnavailable)
}

var urlPattern = regexp.MustCompile(`^(?:https?://)?(?:www\.)?(?:youtube\.com|youtu\.be)/(?:watch\?v=)?([^\s&]+)`)

// ValidateURL reports whether url looks like a YouTube video link.
func ValidateURL(url string) bool {
	return urlPattern.MatchString(url)
}

// Converter converts a media file into an MP4 container.
type Converter interface {
	ToMP4(ctx context.Context, src, dst string) error
}

// Config holds producer settings.
type Config struct {
	YtDlpPath          string
	FFmpegPath         string
	Dir                string
	MaxResolution      string
	SupportedQualities []string
	CookiesFile        string
	VisitorData        string
	MaxWorkers         int
}

// VideoInfo is the metadata returned to clients before a download.
type VideoInfo struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Thumbnail    string   `json:"thumbnail,omitempty"`
	Duration     *int64   `json:"duration"`
	Uploader     string   `json:"uploader,omitempty"`
	Formats      []Format `json:"formats"`
	HasAudioOnly bool     `json:"has_audio_only"`
}

type rawInfo struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Thumbnail string      `json:"thumbnail"`
	Duration  *float64    `json:"duration"`
	Uploader  string      `json:"uploader"`
	Formats   []rawFormat `json:"formats"`
}

// Request selects what to download.
type Request struct {
	URL       string
	FormatID  string
	AudioOnly bool
}

// Artifact is a finished file in the managed directory, ready to register.
type Artifact struct {
	Filename     string
	OriginalName string
	Title        string
	Kind         mediatypes.Kind
}

// Producer runs yt-dlp jobs with bounded concurrency.
type Producer struct {
	cfg       Config
	runner    Runner
	converter Converter
	limiter   *workers.Limiter
	maxHeight int
	heights   []int
	retry     filesystem.RetryConfig
}

// New validates cfg and creates a Producer.
func New(cfg Config, runner Runner, converter Converter) (*Producer, error) {
	if cfg.YtDlpPath == "" {
		cfg.YtDlpPath = "yt-dlp"
	}
	if cfg.MaxResolution == "" {
		cfg.MaxResolution = "1080p"
	}
	if len(cfg.SupportedQualities) == 0 {
		cfg.SupportedQualities = []string{"360p", "720p", "1080p"}
	}
	if runner == nil {
		runner = ExecRunner{}
	}

	maxHeight, err := ParseResolution(cfg.MaxResolution)
	if err != nil {
		return nil, fmt.Errorf("max resolution: %w", err)
	}
	heights := make([]int, 0, len(cfg.SupportedQualities))
	for _, q := range cfg.SupportedQualities {
		h, err := ParseResolution(q)
		if err != nil {
			return nil, fmt.Errorf("supported qualities: %w", err)
		}
		heights = append(heights, h)
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving download dir: %w", err)
	}
	cfg.Dir = dir

	n := workers.ForMixed(cfg.MaxWorkers)
	logging.Info("Download workers: %d", n)

	return &Producer{
		cfg:       cfg,
		runner:    runner,
		converter: converter,
		limiter:   workers.NewLimiter(n),
		maxHeight: maxHeight,
		heights:   heights,
		retry:     filesystem.DefaultRetryConfig(),
	}, nil
}

// Workers returns the download concurrency limit.
func (p *Producer) Workers() int {
	return p.limiter.Cap()
}

// commonArgs are passed to every yt-dlp invocation.
func (p *Producer) commonArgs() []string {
	args := []string{
		"--quiet",
		"--no-warnings",
		"--no-check-certificates",
		"--no-playlist",
		"--user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/93.0.4577.82 Safari/537.36",
		"--add-header", "Accept:text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"--add-header", "Accept-Language:en-US,en;q=0.5",
		"--extractor-args", "youtubetab:skip=webpage",
	}

	youtubeArgs := "youtube:player_skip=webpage,configs"
	if p.cfg.VisitorData != "" {
		youtubeArgs += ";visitor_data=" + p.cfg.VisitorData
	}
	args = append(args, "--extractor-args", youtubeArgs)

	if p.cfg.CookiesFile != "" {
		args = append(args, "--cookies", p.cfg.CookiesFile)
	}
	if strings.ContainsRune(p.cfg.FFmpegPath, filepath.Separator) {
		args = append(args, "--ffmpeg-location", p.cfg.FFmpegPath)
	}
	return args
}

// Info extracts metadata and the filtered format list for url.
func (p *Producer) Info(ctx context.Context, url string) (*VideoInfo, error) {
	if !ValidateURL(url) {
		metrics.InfoRequestsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidURL
	}

	start := time.Now()
	args := append(p.commonArgs(), "--dump-single-json", "--skip-download", "--", url)
	out, err := p.runner.Run(ctx, p.cfg.YtDlpPath, args...)
	metrics.InfoDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.InfoRequestsTotal.WithLabelValues("error").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.Error("Error extracting video info for %s: %v", url, err)
		return nil, fmt.Errorf("%w: failed to extract video info: %v", ErrUnavailable, err)
	}

	var raw rawInfo
	if err := json.Unmarshal(out, &raw); err != nil {
		metrics.InfoRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("parsing yt-dlp output: %w", err)
	}

	info := &VideoInfo{
		ID:           raw.ID,
		Title:        raw.Title,
		Thumbnail:    raw.Thumbnail,
		Uploader:     raw.Uploader,
		Formats:      filterFormats(raw.Formats, p.maxHeight, p.heights),
		HasAudioOnly: hasAudioOnly(raw.Formats),
	}
	if raw.Duration != nil {
		d := int64(*raw.Duration)
		info.Duration = &d
	}

	metrics.InfoRequestsTotal.WithLabelValues("success").Inc()
	logging.Debug("Extracted info for %s: %q, %d format(s)", raw.ID, raw.Title, len(info.Formats))
	return info, nil
}

var unsafeTitleChars = regexp.MustCompile(`[^\p{L}\p{N}_\-. ]`)

// SafeTitle strips characters that do not belong in a download file name.
func SafeTitle(title string) string {
	safe := strings.TrimSpace(unsafeTitleChars.ReplaceAllString(title, ""))
	if safe == "" {
		return "youtube_video"
	}
	return safe
}

// defaultVideoFormat prefers H.264 MP4 with AAC audio for compatibility.
const defaultVideoFormat = "bestvideo[ext=mp4][vcodec^=avc][height<=1080]+bestaudio[ext=m4a]/best[ext=mp4][height<=1080]/best[height<=1080]"

func formatSpec(req Request) string {
	switch {
	case req.AudioOnly:
		return "bestaudio/best"
	case req.FormatID != "":
		return req.FormatID + "+bestaudio/best"
	default:
		return defaultVideoFormat
	}
}

// Download fetches req into the managed directory and returns the artifact.
// On failure no file with the job's id is left behind.
func (p *Producer) Download(ctx context.Context, req Request) (*Artifact, error) {
	kind, ext := mediatypes.KindVideo, "mp4"
	if req.AudioOnly {
		kind, ext = mediatypes.KindAudio, "mp3"
	}

	if !ValidateURL(req.URL) {
		metrics.DownloadsTotal.WithLabelValues(string(kind), "invalid").Inc()
		return nil, ErrInvalidURL
	}

	metrics.DownloadsQueued.Inc()
	err := p.limiter.Acquire(ctx)
	metrics.DownloadsQueued.Dec()
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues(string(kind), "cancelled").Inc()
		return nil, err
	}
	defer p.limiter.Release()

	metrics.DownloadsInProgress.Inc()
	defer metrics.DownloadsInProgress.Dec()
	start := time.Now()

	art, err := p.download(ctx, req, kind, ext)
	switch {
	case err == nil:
		metrics.DownloadsTotal.WithLabelValues(string(kind), "success").Inc()
		metrics.DownloadDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	case ctx.Err() != nil:
		metrics.DownloadsTotal.WithLabelValues(string(kind), "cancelled").Inc()
	case IsClientError(err):
		metrics.DownloadsTotal.WithLabelValues(string(kind), "invalid").Inc()
	default:
		metrics.DownloadsTotal.WithLabelValues(string(kind), "error").Inc()
	}
	return art, err
}

func (p *Producer) download(ctx context.Context, req Request, kind mediatypes.Kind, ext string) (*Artifact, error) {
	info, err := p.Info(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	title := info.Title
	if title == "" {
		title = "video"
	}
	safeTitle := SafeTitle(title)
	id := fileid.New()

	if err := os.MkdirAll(p.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating download dir: %w", err)
	}

	args := append(p.commonArgs(),
		"--format", formatSpec(req),
		"--no-write-thumbnail",
		"--output", filepath.Join(p.cfg.Dir, id+".%(ext)s"),
	)
	if req.AudioOnly {
		args = append(args, "--extract-audio", "--audio-format", "mp3", "--audio-quality", "192K", "--embed-metadata")
	} else {
		args = append(args, "--merge-output-format", "mp4", "--remux-video", "mp4")
	}
	args = append(args, "--", req.URL)

	logging.Info("Downloading %s %q as %s", kind, title, id)
	if _, err := p.runner.Run(ctx, p.cfg.YtDlpPath, args...); err != nil {
		p.discardID(id)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.Error("Error downloading %s: %v", req.URL, err)
		return nil, fmt.Errorf("%w: failed to download video: %v", ErrUnavailable, err)
	}

	filename, err := p.locateOutput(ctx, id, ext, req.AudioOnly)
	if err != nil {
		p.discardID(id)
		return nil, err
	}

	logging.Info("Download completed: %s", filepath.Join(p.cfg.Dir, filename))
	return &Artifact{
		Filename:     filename,
		OriginalName: safeTitle + "." + ext,
		Title:        title,
		Kind:         kind,
	}, nil
}

// locateOutput returns the name of the file yt-dlp produced for id. When the
// expected <id>.<ext> is missing, the first other file carrying the id is
// used; a video that landed in another container is converted to MP4.
func (p *Producer) locateOutput(ctx context.Context, id, ext string, audioOnly bool) (string, error) {
	expected := fileid.Filename(id, ext)
	if filesystem.IsRegularFile(filepath.Join(p.cfg.Dir, expected), p.retry) {
		return expected, nil
	}
	logging.Warn("File not found after download: %s, scanning for alternatives", expected)

	found := p.filesWithID(id)
	if len(found) == 0 {
		logging.Error("No output file for %s in %s", id, p.cfg.Dir)
		return "", fmt.Errorf("%w in %s", ErrNoOutput, p.cfg.Dir)
	}

	actual := found[0]
	logging.Info("Found alternative file: %s", actual)
	metrics.DownloadFallbacksTotal.WithLabelValues("adopted").Inc()

	if audioOnly || strings.EqualFold(filepath.Ext(actual), ".mp4") || p.converter == nil {
		return actual, nil
	}

	src := filepath.Join(p.cfg.Dir, actual)
	dst := filepath.Join(p.cfg.Dir, expected)
	if err := p.converter.ToMP4(ctx, src, dst); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logging.Error("Error converting to MP4, keeping %s: %v", actual, err)
		return actual, nil
	}

	metrics.DownloadFallbacksTotal.WithLabelValues("converted").Inc()
	if err := filesystem.RemoveWithRetry(src, p.retry); err != nil {
		logging.Warn("Failed to remove %s after conversion: %v", src, err)
	}
	return expected, nil
}

// partialSuffixes mark files yt-dlp is still writing or has abandoned.
var partialSuffixes = []string{".part", ".ytdl", ".temp", ".converting"}

// filesWithID lists finished regular files in the managed directory whose
// names start with id, in name order.
func (p *Producer) filesWithID(id string) []string {
	entries, err := filesystem.ReadDirWithRetry(p.cfg.Dir, p.retry)
	if err != nil {
		logging.Error("Listing %s: %v", p.cfg.Dir, err)
		return nil
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, id) || !e.Type().IsRegular() || isPartial(name) {
			continue
		}
		names = append(names, name)
	}
	return names
}

func isPartial(name string) bool {
	for _, s := range partialSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// Discard removes every file belonging to art's id, for when registration
// fails after a successful download.
func (p *Producer) Discard(art *Artifact) {
	if art == nil {
		return
	}
	p.discardID(fileid.Base(art.Filename))
}

// discardID deletes all files, partial or not, whose names start with id.
func (p *Producer) discardID(id string) {
	if id == "" {
		return
	}
	entries, err := filesystem.ReadDirWithRetry(p.cfg.Dir, p.retry)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), id) || e.IsDir() {
			continue
		}
		path := filepath.Join(p.cfg.Dir, e.Name())
		if err := filesystem.RemoveWithRetry(path, p.retry); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Error("Error cleaning up %s: %v", path, err)
		} else {
			logging.Debug("Cleaned up partial file %s", path)
		}
	}
}
