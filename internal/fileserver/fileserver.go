// Package fileserver resolves client-supplied identifiers to artifacts on
// disk, falling back to files that were never registered.
package fileserver

import (
	"errors"
	"path/filepath"
	"time"

	"media-downloader/internal/fileid"
	"media-downloader/internal/filesystem"
	"media-downloader/internal/logging"
	"media-downloader/internal/mediatypes"
	"media-downloader/internal/metrics"
	"media-downloader/internal/registry"
)

// ErrNotFound means neither the registry nor the managed directory could
// satisfy the identifier.
var ErrNotFound = errors.New("file not found or expired")

// Store is the registry view the server needs.
type Store interface {
	Lookup(id string) (registry.Record, error)
}

// Trigger requests a reclamation sweep without waiting for it.
type Trigger interface {
	Trigger()
}

// ServableFile describes an artifact ready to stream.
type ServableFile struct {
	Path        string
	DisplayName string
	ContentType string
	Kind        mediatypes.Kind
	Registered  bool
	ExpiresAt   time.Time // zero for unregistered files
}

// Server resolves identifiers.
type Server struct {
	store     Store
	dir       string
	reclaimer Trigger
	retry     filesystem.RetryConfig
}

// New creates a Server. reclaimer may be nil.
func New(store Store, dir string, reclaimer Trigger) *Server {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Server{
		store:     store,
		dir:       dir,
		reclaimer: reclaimer,
		retry:     filesystem.DefaultRetryConfig(),
	}
}

// Resolve maps id to a servable file. Registered, live records win; failing
// that, a file literally named id in the managed directory is served with a
// generic content type.
func (s *Server) Resolve(id string) (*ServableFile, error) {
	if s.reclaimer != nil {
		s.reclaimer.Trigger()
	}

	rec, err := s.store.Lookup(id)
	if err == nil {
		metrics.FileResolutionsTotal.WithLabelValues("registry").Inc()
		logging.Debug("Serving registered file %s from %s", rec.ID, rec.Path)
		return &ServableFile{
			Path:        rec.Path,
			DisplayName: rec.OriginalName,
			ContentType: mediatypes.ContentTypeOfPath(rec.Path),
			Kind:        rec.Kind,
			Registered:  true,
			ExpiresAt:   rec.ExpiresAt,
		}, nil
	}
	if !errors.Is(err, registry.ErrNotFound) {
		logging.Warn("Registry lookup for %s failed: %v", id, err)
	}

	if fileid.IsSafe(id) {
		path := filepath.Join(s.dir, id)
		if filesystem.IsRegularFile(path, s.retry) {
			metrics.FileResolutionsTotal.WithLabelValues("direct").Inc()
			logging.Info("File found via direct path: %s", path)
			return &ServableFile{
				Path:        path,
				DisplayName: id,
				ContentType: mediatypes.DefaultContentType,
				Kind:        mediatypes.KindUnknown,
			}, nil
		}
	}

	metrics.FileResolutionsTotal.WithLabelValues("not_found").Inc()
	logging.Debug("File not found: %s", id)
	return nil, ErrNotFound
}
