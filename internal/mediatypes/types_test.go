package mediatypes

import "testing"

func TestKindOf(t *testing.T) {
	tests := []struct {
		ext      string
		expected Kind
	}{
		{".mp3", KindAudio},
		{"mp3", KindAudio},
		{".M4A", KindAudio},
		{".opus", KindAudio},
		{".mp4", KindVideo},
		{".webm", KindVideo},
		{".MKV", KindVideo},
		{".part", KindUnknown},
		{".jpg", KindUnknown},
		{"", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			if got := KindOf(tt.ext); got != tt.expected {
				t.Errorf("KindOf(%q) = %q, want %q", tt.ext, got, tt.expected)
			}
		})
	}
}

func TestKindOfPath(t *testing.T) {
	tests := []struct {
		name     string
		expected Kind
	}{
		{"abc.mp3", KindAudio},
		{"abc.f137.mp4", KindVideo},
		{"abc", KindUnknown},
	}

	for _, tt := range tests {
		if got := KindOfPath(tt.name); got != tt.expected {
			t.Errorf("KindOfPath(%q) = %q, want %q", tt.name, got, tt.expected)
		}
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		ext      string
		expected string
	}{
		{".mp3", "audio/mpeg"},
		{".MP3", "audio/mpeg"},
		{"mp4", "video/mp4"},
		{".webm", DefaultContentType},
		{".m4a", DefaultContentType},
		{".txt", DefaultContentType},
		{"", DefaultContentType},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			if got := ContentType(tt.ext); got != tt.expected {
				t.Errorf("ContentType(%q) = %q, want %q", tt.ext, got, tt.expected)
			}
		})
	}
}

func TestContentTypeOfPath(t *testing.T) {
	if got := ContentTypeOfPath("/tmp/x/abc.mp4"); got != "video/mp4" {
		t.Errorf("ContentTypeOfPath() = %q, want video/mp4", got)
	}
	if got := ContentTypeOfPath("README"); got != DefaultContentType {
		t.Errorf("ContentTypeOfPath() = %q, want %q", got, DefaultContentType)
	}
}

func TestIsMediaFile(t *testing.T) {
	if !IsMediaFile(".mp3") || !IsMediaFile(".mp4") {
		t.Error("IsMediaFile should accept .mp3 and .mp4")
	}
	if IsMediaFile(".txt") {
		t.Error("IsMediaFile(.txt) = true, want false")
	}
}

func TestExtensionSetsDisjoint(t *testing.T) {
	for ext := range AudioExtensions {
		if VideoExtensions[ext] {
			t.Errorf("extension %q is both audio and video", ext)
		}
	}
}
