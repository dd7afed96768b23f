package transcoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeFFmpeg writes an executable script standing in for ffmpeg. The script
// copies the -i input to the last argument.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

const copyScript = `src=""; dst=""
while [ $# -gt 0 ]; do
  case "$1" in
    -i) src="$2"; shift 2;;
    *) dst="$1"; shift;;
  esac
done
cp "$src" "$dst"`

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		ffmpeg      string
		wantFFmpeg  string
		wantFFprobe string
	}{
		{"default", "", "ffmpeg", "ffprobe"},
		{"bare name", "ffmpeg", "ffmpeg", "ffprobe"},
		{"absolute path", "/opt/ffmpeg/bin/ffmpeg", "/opt/ffmpeg/bin/ffmpeg", "/opt/ffmpeg/bin/ffprobe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(tt.ffmpeg)
			if tr.FFmpegPath() != tt.wantFFmpeg {
				t.Errorf("FFmpegPath() = %q, want %q", tr.FFmpegPath(), tt.wantFFmpeg)
			}
			if tr.ffprobePath != tt.wantFFprobe {
				t.Errorf("ffprobePath = %q, want %q", tr.ffprobePath, tt.wantFFprobe)
			}
			if tr.processes == nil {
				t.Error("processes map not initialized")
			}
		})
	}
}

func TestToMP4Success(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "abc.webm")
	dst := filepath.Join(dir, "abc.mp4")
	if err := os.WriteFile(src, []byte("webm-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := New(fakeFFmpeg(t, copyScript))
	if err := tr.ToMP4(context.Background(), src, dst); err != nil {
		t.Fatalf("ToMP4() error = %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "webm-bytes" {
		t.Errorf("output = %q", data)
	}
	if _, err := os.Stat(dst + ".converting"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
	if tr.Active() != 0 {
		t.Errorf("Active() = %d after completion, want 0", tr.Active())
	}
}

func TestToMP4Failure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "abc.webm")
	dst := filepath.Join(dir, "abc.mp4")
	if err := os.WriteFile(src, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tr := New(fakeFFmpeg(t, `for a in "$@"; do last="$a"; done
echo partial > "$last"
echo "Unknown encoder" >&2
exit 1`))

	if err := tr.ToMP4(context.Background(), src, dst); err == nil {
		t.Fatal("ToMP4() succeeded, want error")
	}
	for _, p := range []string{dst, dst + ".converting"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s exists after failed conversion", filepath.Base(p))
		}
	}
}

func TestToMP4ContextCancelled(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "abc.webm")
	if err := os.WriteFile(src, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tr := New(fakeFFmpeg(t, "exec sleep 5"))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := tr.ToMP4(ctx, src, filepath.Join(dir, "abc.mp4"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ToMP4() error = %v, want DeadlineExceeded", err)
	}
}

func TestToMP4MissingBinary(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "no-such-ffmpeg"))
	if err := tr.ToMP4(context.Background(), "in", filepath.Join(t.TempDir(), "out.mp4")); err == nil {
		t.Error("ToMP4() with missing binary succeeded, want error")
	}
}

func TestCleanupKillsRunningConversion(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "abc.webm")
	if err := os.WriteFile(src, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tr := New(fakeFFmpeg(t, "exec sleep 30"))
	done := make(chan error, 1)
	go func() {
		done <- tr.ToMP4(context.Background(), src, filepath.Join(dir, "abc.mp4"))
	}()

	deadline := time.Now().Add(2 * time.Second)
	for tr.Active() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("conversion never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// The process may be registered before it has started.
	time.Sleep(50 * time.Millisecond)
	tr.Cleanup()

	select {
	case err := <-done:
		if err == nil {
			t.Error("killed conversion reported success")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Cleanup() did not stop the conversion")
	}
}

func TestParseProbe(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720},
			{"codec_type": "audio", "codec_name": "aac"},
			{"codec_type": "video", "codec_name": "mjpeg", "width": 320, "height": 180}
		],
		"format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "212.500000"}
	}`)

	info, err := parseProbe(data)
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	want := VideoInfo{
		Duration:   212.5,
		Width:      1280,
		Height:     720,
		VideoCodec: "h264",
		AudioCodec: "aac",
		Container:  "mov,mp4,m4a,3gp,3g2,mj2",
	}
	if *info != want {
		t.Errorf("parseProbe() = %+v, want %+v", *info, want)
	}
}

func TestParseProbeAudioOnly(t *testing.T) {
	info, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio","codec_name":"mp3"}],"format":{"format_name":"mp3","duration":"n/a"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if info.VideoCodec != "" || info.AudioCodec != "mp3" || info.Duration != 0 {
		t.Errorf("parseProbe() = %+v", *info)
	}
}

func TestParseProbeInvalid(t *testing.T) {
	if _, err := parseProbe([]byte("not json")); err == nil {
		t.Error("parseProbe() accepted invalid JSON")
	}
}
