package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"media-downloader/internal/fileserver"
	"media-downloader/internal/filesystem"
	"media-downloader/internal/logging"
	"media-downloader/internal/mediatypes"
	"media-downloader/internal/metrics"
	"media-downloader/internal/streaming"
	"media-downloader/internal/thumbnail"
)

// ServeDownload streams an artifact as an attachment. Range requests are
// honored. An open file keeps streaming even if a sweep deletes it mid-way.
func (h *Handlers) ServeDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	logging.Debug("Download handler called for file: %s", id)

	file, err := h.files.Resolve(id)
	if err != nil {
		h.writeNotFound(w, id, err)
		return
	}

	f, err := h.openArtifact(file.Path)
	if err != nil {
		h.writeNotFound(w, id, err)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		logging.Error("Stat of open artifact %s failed: %v", file.Path, err)
		writeJSONError(w, http.StatusInternalServerError, "Server error", "Failed to access file")
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", attachment(file.DisplayName))
	w.Header().Set("Cache-Control", "private, no-cache")
	if !file.ExpiresAt.IsZero() {
		w.Header().Set("Expires", file.ExpiresAt.UTC().Format(http.TimeFormat))
	}

	sw := streaming.NewWriter(r.Context(), w, h.stream)
	http.ServeContent(sw, r, file.DisplayName, stat.ModTime(), f)
	sw.Close()
	recordTransfer(id, file.Kind, sw)
}

// recordTransfer counts what actually reached the client.
func recordTransfer(id string, kind mediatypes.Kind, sw *streaming.Writer) {
	written, duration := sw.Stats()
	metrics.ServedBytesTotal.WithLabelValues(string(kind)).Add(float64(written))

	err := sw.Err()
	switch {
	case err == nil:
		metrics.ServeResultsTotal.WithLabelValues("complete").Inc()
		logging.Debug("Served %s: %d bytes in %v", id, written, duration)
	case errors.Is(err, streaming.ErrWriteTimeout), errors.Is(err, streaming.ErrTransferTooLong):
		metrics.ServeResultsTotal.WithLabelValues("timeout").Inc()
		logging.Warn("Transfer of %s stalled after %d bytes: %v", id, written, err)
	default:
		metrics.ServeResultsTotal.WithLabelValues("aborted").Inc()
		logging.Debug("Transfer of %s ended early after %d bytes: %v", id, written, err)
	}
}

// GetThumbnail renders a JPEG preview of an artifact.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if h.thumbnails == nil || !h.thumbnails.IsEnabled() {
		writeJSONError(w, http.StatusServiceUnavailable, "Thumbnails disabled", "")
		return
	}

	file, err := h.files.Resolve(id)
	if err != nil {
		h.writeNotFound(w, id, err)
		return
	}

	kind := file.Kind
	if kind == mediatypes.KindUnknown {
		kind = mediatypes.KindOfPath(file.Path)
	}
	if kind == mediatypes.KindUnknown {
		writeJSONError(w, http.StatusNotFound, "No preview available",
			fmt.Sprintf("'%s' is not an audio or video file", id))
		return
	}

	thumb, err := h.thumbnails.Generate(r.Context(), file.Path, kind)
	switch {
	case err == nil:
	case errors.Is(err, thumbnail.ErrNoImage):
		writeJSONError(w, http.StatusNotFound, "No preview available",
			fmt.Sprintf("'%s' has no picture to show", id))
		return
	case errors.Is(err, thumbnail.ErrDisabled):
		writeJSONError(w, http.StatusServiceUnavailable, "Thumbnails disabled", "")
		return
	default:
		logging.Error("Thumbnail generation failed for %s: %v", id, err)
		writeJSONError(w, http.StatusInternalServerError, "Server error", "Failed to generate thumbnail")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(thumb)))
	w.Header().Set("Cache-Control", cacheControlUntil(file.ExpiresAt))
	if _, err := w.Write(thumb); err != nil {
		logging.Debug("Thumbnail write for %s failed: %v", id, err)
	}
}

func (h *Handlers) openArtifact(path string) (*os.File, error) {
	return filesystem.OpenWithRetry(path, h.retry)
}

func (h *Handlers) writeNotFound(w http.ResponseWriter, id string, err error) {
	if !errors.Is(err, fileserver.ErrNotFound) {
		logging.Warn("Artifact %s vanished before it could be opened: %v", id, err)
	}
	writeJSONError(w, http.StatusNotFound, "File not found",
		fmt.Sprintf("The requested file '%s' does not exist or has expired", id))
}

// attachment builds a Content-Disposition value, falling back to a plain
// ASCII name when the display name cannot be encoded.
func attachment(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return `attachment; filename="download"`
}

// cacheControlUntil lets clients cache a preview no longer than the
// artifact lives.
func cacheControlUntil(expires time.Time) string {
	if expires.IsZero() {
		return "private, no-cache"
	}
	secs := int(time.Until(expires).Seconds())
	if secs <= 0 {
		return "private, no-cache"
	}
	return "private, max-age=" + strconv.Itoa(secs)
}
