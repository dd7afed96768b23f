// Package thumbnail renders small JPEG previews of downloaded artifacts: a
// poster frame for video, the embedded cover art for audio.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"strings"
	"sync"
	"time"

	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"media-downloader/internal/logging"
	"media-downloader/internal/mediatypes"
	"media-downloader/internal/metrics"
	"media-downloader/internal/registry"
	"media-downloader/internal/workers"
)

var (
	// ErrDisabled is returned when preview generation is turned off.
	ErrDisabled = errors.New("thumbnails disabled")

	// ErrNoImage is returned when the artifact has no picture to show.
	ErrNoImage = errors.New("artifact has no image")
)

// maxCached bounds the in-memory preview cache.
const maxCached = 256

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Generator renders and caches previews keyed by artifact path.
type Generator struct {
	ffmpegPath string
	size       int
	enabled    bool
	limiter    *workers.Limiter
	run        runFunc

	mu    sync.Mutex
	cache map[string][]byte
}

// New creates a Generator producing previews that fit in size x size.
func New(ffmpegPath string, size int, enabled bool) *Generator {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if size <= 0 {
		size = 320
	}
	if enabled {
		logging.Debug("Thumbnail generator: enabled, size %dpx", size)
	} else {
		logging.Debug("Thumbnail generator: disabled")
	}
	return &Generator{
		ffmpegPath: ffmpegPath,
		size:       size,
		enabled:    enabled,
		limiter:    workers.NewLimiter(workers.ForCPU(4)),
		run:        runFFmpeg,
		cache:      make(map[string][]byte),
	}
}

// IsEnabled reports whether previews are generated.
func (g *Generator) IsEnabled() bool {
	return g.enabled
}

// Generate returns a JPEG preview of the artifact at path.
func (g *Generator) Generate(ctx context.Context, path string, kind mediatypes.Kind) ([]byte, error) {
	if !g.enabled {
		return nil, ErrDisabled
	}

	g.mu.Lock()
	if data, ok := g.cache[path]; ok {
		g.mu.Unlock()
		logging.Debug("Thumbnail cache hit: %s", path)
		return data, nil
	}
	g.mu.Unlock()

	if err := g.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer g.limiter.Release()

	start := time.Now()
	label := string(kind)
	if kind != mediatypes.KindAudio {
		label = string(mediatypes.KindVideo)
	}

	img, err := g.extract(ctx, path, kind)
	if err != nil {
		status := "error"
		if errors.Is(err, ErrNoImage) {
			status = "no_image"
		}
		metrics.ThumbnailGenerationsTotal.WithLabelValues(label, status).Inc()
		return nil, err
	}

	data, err := encode(img, g.size)
	if err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(label, "error").Inc()
		return nil, err
	}

	metrics.ThumbnailGenerationsTotal.WithLabelValues(label, "success").Inc()
	metrics.ThumbnailGenerationDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	g.mu.Lock()
	if len(g.cache) >= maxCached {
		for k := range g.cache {
			delete(g.cache, k)
			break
		}
	}
	g.cache[path] = data
	g.mu.Unlock()

	return data, nil
}

// extract pulls a single image out of the artifact with ffmpeg.
func (g *Generator) extract(ctx context.Context, path string, kind mediatypes.Kind) (image.Image, error) {
	var args []string
	if kind == mediatypes.KindAudio {
		// Cover art is an attached picture stream; copy it out untouched.
		args = []string{"-v", "error", "-i", path, "-an", "-map", "0:v:0", "-frames:v", "1", "-c:v", "copy", "-f", "image2pipe", "-"}
	} else {
		args = []string{"-v", "error", "-ss", "00:00:01", "-i", path, "-frames:v", "1", "-f", "image2pipe", "-c:v", "png", "-"}
	}

	out, err := g.run(ctx, g.ffmpegPath, args...)
	if err != nil && kind != mediatypes.KindAudio && ctx.Err() == nil {
		// Clips shorter than a second have no frame at 00:00:01.
		logging.Debug("Frame at 1s failed for %s: %v, retrying at start", path, err)
		out, err = g.run(ctx, g.ffmpegPath, "-v", "error", "-i", path, "-frames:v", "1", "-f", "image2pipe", "-c:v", "png", "-")
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.Debug("No image extracted from %s: %v", path, err)
		return nil, fmt.Errorf("%w: %v", ErrNoImage, err)
	}
	if len(out) == 0 {
		return nil, ErrNoImage
	}

	img, err := imaging.Decode(bytes.NewReader(out), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding extracted image: %w", err)
	}
	return img, nil
}

// encode fits img into size x size and encodes it as JPEG.
func encode(img image.Image, size int) ([]byte, error) {
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// RecordAdded implements registry.Listener.
func (g *Generator) RecordAdded(registry.Record) {}

// RecordRemoved drops the cached preview of a departed artifact.
func (g *Generator) RecordRemoved(rec registry.Record, _ registry.Reason) {
	g.mu.Lock()
	delete(g.cache, rec.Path)
	g.mu.Unlock()
}

// Cached returns the number of cached previews.
func (g *Generator) Cached() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cache)
}

func runFFmpeg(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
