package youtube

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
)

// fakeRunner answers --dump-single-json calls with infoJSON and simulates
// downloads by writing files named from the --output template.
type fakeRunner struct {
	mu       sync.Mutex
	calls    [][]string
	infoJSON string
	infoErr  error

	// downloadExts are written for the download call, replacing %(ext)s.
	downloadExts []string
	downloadErr  error
	block        chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	if hasArg(args, "--dump-single-json") {
		if f.infoErr != nil {
			return nil, f.infoErr
		}
		return []byte(f.infoJSON), nil
	}

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	template := argValue(args, "--output")
	for _, ext := range f.downloadExts {
		path := strings.Replace(template, "%(ext)s", ext, 1)
		if err := os.WriteFile(path, []byte("media:"+ext), 0o644); err != nil {
			return nil, err
		}
	}
	return nil, f.downloadErr
}

func (f *fakeRunner) downloadCall() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if hasArg(c, "--output") {
			return c
		}
	}
	return nil
}

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// fakeConverter copies src to dst, or fails.
type fakeConverter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *fakeConverter) ToMP4(_ context.Context, src, dst string) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

var errToolFailed = errors.New("exit status 1")

const sampleInfo = `{
  "id": "dQw4w9WgXcQ",
  "title": "Rick Astley - Never Gonna Give You Up (Official Video) [4K]",
  "thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
  "duration": 212.0,
  "uploader": "Rick Astley",
  "formats": [
    {"format_id": "140", "ext": "m4a", "vcodec": "none", "acodec": "mp4a.40.2", "height": null, "filesize": 3433514},
    {"format_id": "160", "ext": "mp4", "vcodec": "avc1.4d400c", "acodec": "none", "height": 144, "fps": 25, "filesize": 1000},
    {"format_id": "134", "ext": "mp4", "vcodec": "avc1.4d401e", "acodec": "none", "height": 360, "fps": 25, "filesize": 5000},
    {"format_id": "243", "ext": "webm", "vcodec": "vp9", "acodec": "none", "height": 360, "fps": 25, "filesize": 7000},
    {"format_id": "136", "ext": "mp4", "vcodec": "avc1.4d401f", "acodec": "none", "height": 720, "fps": 25, "filesize": null},
    {"format_id": "137", "ext": "mp4", "vcodec": "avc1.640028", "acodec": "none", "height": 1080, "fps": 25, "filesize": 90000},
    {"format_id": "313", "ext": "webm", "vcodec": "vp9", "acodec": "none", "height": 2160, "fps": 25, "filesize": 900000},
    {"format_id": "sb0", "ext": "mhtml", "vcodec": "none", "acodec": "none"}
  ]
}`
