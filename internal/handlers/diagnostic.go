package handlers

import (
	"context"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"media-downloader/internal/database"
	"media-downloader/internal/fileid"
	"media-downloader/internal/filesystem"
	"media-downloader/internal/logging"
	"media-downloader/internal/registry"
	"media-downloader/internal/transcoder"
)

const (
	diagnosticHistoryLimit = 20
	probeTimeout           = 10 * time.Second
)

// DiskFile is one entry of the managed directory.
type DiskFile struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// FilesResponse is the diagnostic view of the managed directory.
type FilesResponse struct {
	DownloadPath    string              `json:"download_path"`
	FilesOnDisk     []DiskFile          `json:"files_on_disk"`
	FilesInRegistry []string            `json:"files_in_registry"`
	Records         []registry.Record   `json:"records"`
	History         []database.Artifact `json:"history,omitempty"`
	HistoryStats    *database.Stats     `json:"history_stats,omitempty"`
	HistoryError    string              `json:"history_error,omitempty"`
}

// CheckResponse reports what is known about a single identifier.
type CheckResponse struct {
	FileID       string                `json:"file_id"`
	FilePath     string                `json:"file_path"`
	Exists       bool                  `json:"exists"`
	SimilarFiles []string              `json:"similar_files"`
	InRegistry   bool                  `json:"in_registry"`
	ExpiresAt    *time.Time            `json:"expires_at,omitempty"`
	Media        *transcoder.VideoInfo `json:"media,omitempty"`
	ProbeError   string                `json:"probe_error,omitempty"`
}

// ListFiles compares the managed directory with the registry.
func (h *Handlers) ListFiles(w http.ResponseWriter, r *http.Request) {
	entries, err := filesystem.ReadDirWithRetry(h.downloadDir, h.retry)
	if err != nil {
		logging.Error("Error listing files: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Server error", err.Error())
		return
	}

	resp := FilesResponse{
		DownloadPath:    h.downloadDir,
		FilesOnDisk:     make([]DiskFile, 0, len(entries)),
		FilesInRegistry: []string{},
		Records:         h.registry.Snapshot(),
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		resp.FilesOnDisk = append(resp.FilesOnDisk, DiskFile{
			Name:     e.Name(),
			Path:     filepath.Join(h.downloadDir, e.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	for _, rec := range resp.Records {
		resp.FilesInRegistry = append(resp.FilesInRegistry, rec.ID)
	}

	if h.history != nil {
		recent, err := h.history.Recent(r.Context(), diagnosticHistoryLimit)
		if err != nil {
			resp.HistoryError = err.Error()
		} else {
			resp.History = recent
		}
		if stats, err := h.history.Stats(r.Context()); err == nil {
			resp.HistoryStats = &stats
		} else if resp.HistoryError == "" {
			resp.HistoryError = err.Error()
		}
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// CheckFile reports whether id exists on disk and in the registry, lists
// files sharing its base and probes the media when it exists.
func (h *Handlers) CheckFile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !fileid.IsSafe(id) {
		writeJSONError(w, http.StatusBadRequest, "Invalid request", "file id must be a plain file name")
		return
	}

	path := filepath.Join(h.downloadDir, id)
	resp := CheckResponse{
		FileID:       id,
		FilePath:     path,
		Exists:       filesystem.IsRegularFile(path, h.retry),
		SimilarFiles: []string{},
	}

	for _, rec := range h.registry.Snapshot() {
		if rec.ID == id {
			resp.InRegistry = true
			expires := rec.ExpiresAt
			resp.ExpiresAt = &expires
			break
		}
	}

	if !resp.Exists {
		resp.SimilarFiles = h.similarFiles(fileid.Base(id))
	} else if h.prober != nil {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		info, err := h.prober.Probe(ctx, path)
		cancel()
		if err != nil {
			resp.ProbeError = err.Error()
		} else {
			resp.Media = info
		}
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *Handlers) similarFiles(base string) []string {
	out := []string{}
	if base == "" {
		return out
	}
	entries, err := filesystem.ReadDirWithRetry(h.downloadDir, h.retry)
	if err != nil {
		logging.Error("Error checking file: %v", err)
		return out
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), base) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}
