package fileid

import (
	"regexp"
	"sync"
	"testing"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestNewFormat(t *testing.T) {
	id := New()
	if !hexID.MatchString(id) {
		t.Errorf("New() = %q, want 32 lowercase hex characters", id)
	}
	if !IsSafe(id) {
		t.Errorf("New() = %q is not a safe filename", id)
	}
}

func TestNewUniqueUnderConcurrency(t *testing.T) {
	const n = 1000

	var mu sync.Mutex
	seen := make(map[string]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := New()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("generated %d unique ids, want %d", len(seen), n)
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		id, ext, want string
	}{
		{"abc", "mp4", "abc.mp4"},
		{"abc", ".mp3", "abc.mp3"},
		{"abc", "", "abc"},
	}
	for _, tt := range tests {
		if got := Filename(tt.id, tt.ext); got != tt.want {
			t.Errorf("Filename(%q, %q) = %q, want %q", tt.id, tt.ext, got, tt.want)
		}
	}
}

func TestBase(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{"a1b2.mp4", "a1b2"},
		{"a1b2.f137.mp4", "a1b2"},
		{"a1b2", "a1b2"},
		{".hidden", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Base(tt.name); got != tt.want {
			t.Errorf("Base(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestIsSafe(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a1b2.mp4", true},
		{"title with spaces.mp3", true},
		{"", false},
		{".", false},
		{"..", false},
		{"../etc/passwd", false},
		{"dir/file.mp4", false},
		{`dir\file.mp4`, false},
		{"nul\x00byte", false},
	}
	for _, tt := range tests {
		if got := IsSafe(tt.name); got != tt.want {
			t.Errorf("IsSafe(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
