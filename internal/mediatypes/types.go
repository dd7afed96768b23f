// Package mediatypes classifies downloaded artifacts by extension.
package mediatypes

import (
	"path/filepath"
	"strings"
)

// Kind is the coarse artifact type reported to clients.
type Kind string

const (
	// KindAudio is an audio-only artifact.
	KindAudio Kind = "audio"
	// KindVideo is a video artifact, possibly with an audio track.
	KindVideo Kind = "video"
	// KindUnknown is anything not recognized.
	KindUnknown Kind = "unknown"
)

// DefaultContentType is served for extensions without a specific mapping.
const DefaultContentType = "application/octet-stream"

// AudioExtensions maps file extensions to whether they hold audio-only media.
var AudioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".opus": true,
	".ogg":  true,
	".aac":  true,
	".wav":  true,
	".flac": true,
}

// VideoExtensions maps file extensions to whether they hold video media.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".webm": true,
	".mov":  true,
	".m4v":  true,
	".flv":  true,
	".avi":  true,
}

// ContentTypes lists the only extensions the file server labels specifically.
// Everything else is served as DefaultContentType.
var ContentTypes = map[string]string{
	".mp3": "audio/mpeg",
	".mp4": "video/mp4",
}

func normalize(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// KindOf returns the Kind for an extension, with or without the leading dot.
func KindOf(ext string) Kind {
	ext = normalize(ext)
	if AudioExtensions[ext] {
		return KindAudio
	}
	if VideoExtensions[ext] {
		return KindVideo
	}
	return KindUnknown
}

// KindOfPath returns the Kind for a filename.
func KindOfPath(name string) Kind {
	return KindOf(filepath.Ext(name))
}

// ContentType returns the MIME type the file server uses for an extension.
func ContentType(ext string) string {
	if ct, ok := ContentTypes[normalize(ext)]; ok {
		return ct
	}
	return DefaultContentType
}

// ContentTypeOfPath returns the MIME type for a filename.
func ContentTypeOfPath(name string) string {
	return ContentType(filepath.Ext(name))
}

// IsMediaFile returns true if the extension is a recognized audio or video type.
func IsMediaFile(ext string) bool {
	return KindOf(ext) != KindUnknown
}
