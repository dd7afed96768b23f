package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"media-downloader/internal/logging"
	"media-downloader/internal/mediatypes"
	"media-downloader/internal/registry"
	"media-downloader/internal/youtube"
)

// URLRequest is the body of an info request.
type URLRequest struct {
	URL string `json:"url"`
}

// DownloadRequest is the body of a download request.
type DownloadRequest struct {
	URL       string `json:"url"`
	FormatID  string `json:"format_id,omitempty"`
	AudioOnly bool   `json:"audio_only"`
}

// FileInfo describes a registered artifact to the client.
type FileInfo struct {
	ID               string          `json:"id"`
	OriginalFilename string          `json:"original_filename"`
	CreatedAt        time.Time       `json:"created_at"`
	ExpiresAt        time.Time       `json:"expires_at"`
	Type             mediatypes.Kind `json:"type"`
	DownloadURL      string          `json:"download_url"`
}

// DownloadResponse carries the file info both at the top level and under
// file_info, which older clients read.
type DownloadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	FileInfo
	Nested *FileInfo `json:"file_info"`
}

// GetVideoInfo returns metadata and the selectable formats for a URL.
func (h *Handlers) GetVideoInfo(w http.ResponseWriter, r *http.Request) {
	var req URLRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeJSONError(w, http.StatusBadRequest, "Invalid request", "URL must be a valid string")
		return
	}

	info, err := h.producer.Info(r.Context(), req.URL)
	if err != nil {
		h.writeProducerError(w, r, "Info", req.URL, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, info)
}

// DownloadVideo fetches the requested media, registers it and answers with
// the link it can be fetched from until it expires.
func (h *Handlers) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeJSONError(w, http.StatusBadRequest, "Invalid request", "URL must be a valid string")
		return
	}

	h.triggerReclaim()

	logging.Info("Download requested: %s (format=%q, audio_only=%v)", req.URL, req.FormatID, req.AudioOnly)

	art, err := h.producer.Download(r.Context(), youtube.Request{
		URL:       req.URL,
		FormatID:  req.FormatID,
		AudioOnly: req.AudioOnly,
	})
	if err != nil {
		h.writeProducerError(w, r, "Download", req.URL, err)
		return
	}

	rec, err := h.registry.Register(art.Filename, art.OriginalName, art.Kind)
	if err != nil {
		logging.Error("Registering %s failed: %v", art.Filename, err)
		h.producer.Discard(art)
		details := err.Error()
		if errors.Is(err, registry.ErrArtifactMissing) {
			details = "File was not created properly"
		}
		writeJSONError(w, http.StatusInternalServerError, "Server error", details)
		return
	}

	info := h.fileInfo(rec)
	writeJSONResponse(w, http.StatusOK, DownloadResponse{
		Success:  true,
		Message:  "Download initiated successfully",
		FileInfo: info,
		Nested:   &info,
	})
}

func (h *Handlers) fileInfo(rec registry.Record) FileInfo {
	return FileInfo{
		ID:               rec.ID,
		OriginalFilename: rec.OriginalName,
		CreatedAt:        rec.CreatedAt,
		ExpiresAt:        rec.ExpiresAt,
		Type:             rec.Kind,
		DownloadURL:      h.downloadURL(rec.ID),
	}
}

func (h *Handlers) downloadURL(id string) string {
	return h.apiPrefix + "/youtube/download/" + url.PathEscape(id)
}

// writeProducerError maps producer failures to client or server errors.
func (h *Handlers) writeProducerError(w http.ResponseWriter, r *http.Request, op, target string, err error) {
	switch {
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		logging.Info("%s for %s cancelled by client", op, target)
		writeJSONError(w, 499, "Request cancelled", err.Error())
	case youtube.IsClientError(err):
		logging.Warn("%s rejected for %s: %v", op, target, err)
		writeJSONError(w, http.StatusBadRequest, "Invalid request", err.Error())
	default:
		logging.Error("%s failed for %s: %v", op, target, err)
		writeJSONError(w, http.StatusInternalServerError, "Server error", err.Error())
	}
}
