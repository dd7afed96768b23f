package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync/atomic"
	"testing"

	"media-downloader/internal/mediatypes"
	"media-downloader/internal/registry"
)

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(w, h)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solidImage(w, h), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type fakeFFmpeg struct {
	calls  atomic.Int32
	out    []byte
	err    error
	failAt int32 // calls numbered from 1 that fail, 0 for none
	args   [][]string
}

func (f *fakeFFmpeg) run(_ context.Context, _ string, args ...string) ([]byte, error) {
	n := f.calls.Add(1)
	f.args = append(f.args, args)
	if f.err != nil && (f.failAt == 0 || n == f.failAt) {
		return nil, f.err
	}
	return f.out, nil
}

func newGenerator(fake *fakeFFmpeg, size int) *Generator {
	g := New("ffmpeg", size, true)
	g.run = fake.run
	return g
}

func decodeJPEG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	return img
}

func TestGenerateVideoFrame(t *testing.T) {
	fake := &fakeFFmpeg{out: pngBytes(t, 1280, 720)}
	g := newGenerator(fake, 320)

	data, err := g.Generate(context.Background(), "/dl/a.mp4", mediatypes.KindVideo)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	b := decodeJPEG(t, data).Bounds()
	if b.Dx() != 320 || b.Dy() != 180 {
		t.Errorf("preview = %dx%d, want 320x180", b.Dx(), b.Dy())
	}

	args := fake.args[0]
	if args[3] != "00:00:01" {
		t.Errorf("video frame not seeked to 1s: %v", args)
	}
}

func TestGenerateAudioCover(t *testing.T) {
	fake := &fakeFFmpeg{out: jpegBytes(t, 500, 500)}
	g := newGenerator(fake, 200)

	data, err := g.Generate(context.Background(), "/dl/a.mp3", mediatypes.KindAudio)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	b := decodeJPEG(t, data).Bounds()
	if b.Dx() != 200 || b.Dy() != 200 {
		t.Errorf("preview = %dx%d, want 200x200", b.Dx(), b.Dy())
	}

	joined := ""
	for _, a := range fake.args[0] {
		joined += a + " "
	}
	if !bytes.Contains([]byte(joined), []byte("-map 0:v:0")) || !bytes.Contains([]byte(joined), []byte("-c:v copy")) {
		t.Errorf("audio cover args = %v", fake.args[0])
	}
}

func TestSmallImageNotUpscaled(t *testing.T) {
	fake := &fakeFFmpeg{out: pngBytes(t, 100, 50)}
	g := newGenerator(fake, 320)

	data, err := g.Generate(context.Background(), "/dl/small.mp4", mediatypes.KindVideo)
	if err != nil {
		t.Fatal(err)
	}
	if b := decodeJPEG(t, data).Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("preview = %dx%d, want 100x50", b.Dx(), b.Dy())
	}
}

func TestVideoRetriesFromStart(t *testing.T) {
	fake := &fakeFFmpeg{out: pngBytes(t, 64, 64), err: errors.New("no frame"), failAt: 1}
	g := newGenerator(fake, 32)

	if _, err := g.Generate(context.Background(), "/dl/short.mp4", mediatypes.KindVideo); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if fake.calls.Load() != 2 {
		t.Errorf("ffmpeg calls = %d, want 2", fake.calls.Load())
	}
	for _, a := range fake.args[1] {
		if a == "-ss" {
			t.Error("retry still seeks")
		}
	}
}

func TestAudioWithoutCover(t *testing.T) {
	fake := &fakeFFmpeg{err: errors.New("Stream map '0:v:0' matches no streams")}
	g := newGenerator(fake, 32)

	_, err := g.Generate(context.Background(), "/dl/bare.mp3", mediatypes.KindAudio)
	if !errors.Is(err, ErrNoImage) {
		t.Errorf("Generate() error = %v, want ErrNoImage", err)
	}
	if fake.calls.Load() != 1 {
		t.Errorf("ffmpeg calls = %d, want 1 for audio", fake.calls.Load())
	}
}

func TestEmptyOutput(t *testing.T) {
	g := newGenerator(&fakeFFmpeg{}, 32)
	if _, err := g.Generate(context.Background(), "/dl/x.mp4", mediatypes.KindVideo); !errors.Is(err, ErrNoImage) {
		t.Errorf("Generate() error = %v, want ErrNoImage", err)
	}
}

func TestUndecodableOutput(t *testing.T) {
	g := newGenerator(&fakeFFmpeg{out: []byte("garbage")}, 32)
	_, err := g.Generate(context.Background(), "/dl/x.mp4", mediatypes.KindVideo)
	if err == nil || errors.Is(err, ErrNoImage) {
		t.Errorf("Generate() error = %v, want decode error", err)
	}
}

func TestDisabled(t *testing.T) {
	g := New("ffmpeg", 320, false)
	if g.IsEnabled() {
		t.Error("IsEnabled() = true")
	}
	if _, err := g.Generate(context.Background(), "/dl/a.mp4", mediatypes.KindVideo); !errors.Is(err, ErrDisabled) {
		t.Errorf("Generate() error = %v, want ErrDisabled", err)
	}
}

func TestCacheAndEviction(t *testing.T) {
	fake := &fakeFFmpeg{out: pngBytes(t, 64, 64)}
	g := newGenerator(fake, 32)

	for i := 0; i < 3; i++ {
		if _, err := g.Generate(context.Background(), "/dl/a.mp4", mediatypes.KindVideo); err != nil {
			t.Fatal(err)
		}
	}
	if fake.calls.Load() != 1 {
		t.Errorf("ffmpeg calls = %d, want 1 with caching", fake.calls.Load())
	}
	if g.Cached() != 1 {
		t.Errorf("Cached() = %d, want 1", g.Cached())
	}

	var l registry.Listener = g
	l.RecordAdded(registry.Record{Path: "/dl/a.mp4"})
	l.RecordRemoved(registry.Record{Path: "/dl/a.mp4"}, registry.ReasonExpired)
	if g.Cached() != 0 {
		t.Errorf("Cached() = %d after removal, want 0", g.Cached())
	}
}

func TestContextCancelled(t *testing.T) {
	g := newGenerator(&fakeFFmpeg{out: pngBytes(t, 8, 8)}, 8)
	// Occupy every slot so Generate has to wait.
	for i := 0; i < g.limiter.Cap(); i++ {
		if err := g.limiter.Acquire(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.Generate(ctx, "/dl/a.mp4", mediatypes.KindVideo); !errors.Is(err, context.Canceled) {
		t.Errorf("Generate() error = %v, want context.Canceled", err)
	}
}
