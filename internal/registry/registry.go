// Package registry tracks downloaded artifacts in the managed directory and
// binds each file's lifetime to a time-to-live record.
//
// A Store is the single authority on whether an artifact is live. Every
// operation holds the store mutex across its index check, index mutation and
// filesystem side effect, so concurrent callers never observe an entry whose
// file has already been deleted (or the reverse) once the call returns.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"media-downloader/internal/fileid"
	"media-downloader/internal/filesystem"
	"media-downloader/internal/logging"
	"media-downloader/internal/mediatypes"
)

var (
	// ErrArtifactMissing is returned by Register when no backing file exists,
	// even after the prefix fallback scan.
	ErrArtifactMissing = errors.New("artifact missing")

	// ErrNotFound is returned by Lookup for unknown, expired or vanished ids.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidName is returned by Register for names that are not a single
	// path element inside the managed directory.
	ErrInvalidName = errors.New("invalid file name")
)

// Record is one tracked artifact. Values handed out by the Store are copies.
type Record struct {
	ID           string          `json:"id"`
	Path         string          `json:"path"`
	OriginalName string          `json:"original_filename"`
	Kind         mediatypes.Kind `json:"type"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Size         int64           `json:"size"`
}

// ExpiredAt reports whether the record is past its expiry at t.
func (r Record) ExpiredAt(t time.Time) bool {
	return t.After(r.ExpiresAt)
}

// Reason explains why a record left the store.
type Reason string

const (
	ReasonRemoved  Reason = "removed"
	ReasonExpired  Reason = "expired"
	ReasonSwept    Reason = "swept"
	ReasonVanished Reason = "vanished"
	ReasonReplaced Reason = "replaced"
)

// Reasons lists every Reason, for metric label initialization.
var Reasons = []Reason{ReasonRemoved, ReasonExpired, ReasonSwept, ReasonVanished, ReasonReplaced}

// Listener observes record lifecycle events. Callbacks run after the store
// lock is released and must not block for long.
type Listener interface {
	RecordAdded(rec Record)
	RecordRemoved(rec Record, reason Reason)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithListener adds a lifecycle listener. May be given more than once.
func WithListener(l Listener) Option {
	return func(s *Store) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

// WithRetryConfig sets the retry behavior for filesystem calls.
func WithRetryConfig(rc filesystem.RetryConfig) Option {
	return func(s *Store) {
		s.retry = rc
	}
}

// Store maps artifact ids to records with TTL semantics.
type Store struct {
	mu      sync.Mutex
	records map[string]*Record

	dir       string
	ttl       time.Duration
	now       func() time.Time
	retry     filesystem.RetryConfig
	listeners []Listener
}

type event struct {
	rec    Record
	added  bool
	reason Reason
}

// New creates a Store for dir, creating the directory if needed.
func New(dir string, ttl time.Duration, opts ...Option) (*Store, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("registry: ttl must be positive, got %v", ttl)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("registry: resolving %s: %w", dir, err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, fmt.Errorf("registry: creating %s: %w", absDir, err)
	}

	s := &Store{
		records: make(map[string]*Record),
		dir:     absDir,
		ttl:     ttl,
		now:     time.Now,
		retry:   filesystem.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the absolute managed directory.
func (s *Store) Dir() string { return s.dir }

// TTL returns the record lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Register starts tracking filename, which must already exist in the managed
// directory. If it does not, the first file whose name starts with the id
// portion of filename is adopted instead and the record id becomes that
// file's name. A record with the same id is replaced.
func (s *Store) Register(filename, originalName string, kind mediatypes.Kind) (Record, error) {
	if !fileid.IsSafe(filename) {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}

	s.mu.Lock()

	id := filename
	path := filepath.Join(s.dir, id)
	info, err := filesystem.StatWithRetry(path, s.retry)
	if err != nil || !info.Mode().IsRegular() {
		logging.Warn("Cannot register non-existent file %s, scanning for similar names", path)

		adopted, adoptedInfo, ok := s.findByPrefix(fileid.Base(filename))
		if !ok {
			s.mu.Unlock()
			logging.Error("No file matching %s found in %s", filename, s.dir)
			return Record{}, fmt.Errorf("%w: %s", ErrArtifactMissing, path)
		}

		// The prefix match is not proof of origin; an unrelated file sharing
		// the id prefix would be adopted here.
		logging.Warn("Adopting %s in place of missing %s", adopted, filename)
		id, path, info = adopted, filepath.Join(s.dir, adopted), adoptedInfo
	}

	now := s.now()
	rec := &Record{
		ID:           id,
		Path:         path,
		OriginalName: originalName,
		Kind:         kind,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
		Size:         info.Size(),
	}

	var events []event
	if prev, ok := s.records[id]; ok {
		logging.Warn("Replacing existing record for %s", id)
		events = append(events, event{rec: *prev, reason: ReasonReplaced})
	}
	s.records[id] = rec
	events = append(events, event{rec: *rec, added: true})
	out := *rec

	s.mu.Unlock()

	logging.Info("File registered: %s (%s, %d bytes), expires %s",
		id, kind, rec.Size, rec.ExpiresAt.Format(time.RFC3339))
	s.dispatch(events)
	return out, nil
}

// findByPrefix returns the first regular file, in name order, whose name
// starts with prefix. Caller holds s.mu.
func (s *Store) findByPrefix(prefix string) (string, os.FileInfo, bool) {
	if prefix == "" {
		return "", nil, false
	}

	entries, err := filesystem.ReadDirWithRetry(s.dir, s.retry)
	if err != nil {
		logging.Error("Listing %s: %v", s.dir, err)
		return "", nil, false
	}

	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), prefix) || e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		return e.Name(), info, true
	}
	return "", nil, false
}

// Lookup returns the live record for id. An exact id match wins; otherwise
// any record whose id has the same base (text before the first '.') is used,
// the earliest-created one if there are several. Expired records and records
// whose file has vanished are dropped and reported as ErrNotFound.
func (s *Store) Lookup(id string) (Record, error) {
	s.mu.Lock()

	rec := s.match(id)
	if rec == nil {
		s.mu.Unlock()
		logging.Debug("File not found in registry: %s", id)
		return Record{}, ErrNotFound
	}

	if rec.ExpiredAt(s.now()) {
		s.deleteLocked(rec)
		s.mu.Unlock()
		logging.Info("File has expired: %s (expired %s)", rec.ID, rec.ExpiresAt.Format(time.RFC3339))
		s.dispatch([]event{{rec: *rec, reason: ReasonExpired}})
		return Record{}, ErrNotFound
	}

	if info, err := filesystem.StatWithRetry(rec.Path, s.retry); err != nil || !info.Mode().IsRegular() {
		delete(s.records, rec.ID)
		s.mu.Unlock()
		logging.Warn("File missing on disk, dropping record: %s", rec.Path)
		s.dispatch([]event{{rec: *rec, reason: ReasonVanished}})
		return Record{}, ErrNotFound
	}

	out := *rec
	s.mu.Unlock()
	return out, nil
}

// match implements the two-phase lookup. Caller holds s.mu.
func (s *Store) match(id string) *Record {
	if rec, ok := s.records[id]; ok {
		return rec
	}

	base := fileid.Base(id)
	if base == "" {
		return nil
	}

	var found *Record
	for key, rec := range s.records {
		if fileid.Base(key) != base {
			continue
		}
		if found == nil || rec.CreatedAt.Before(found.CreatedAt) ||
			(rec.CreatedAt.Equal(found.CreatedAt) && rec.ID < found.ID) {
			found = rec
		}
	}
	return found
}

// Remove drops the record with exactly this id and deletes its file. File
// deletion failures are logged only. Reports whether a record was present.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		logging.Debug("Attempted to remove non-existent record: %s", id)
		return false
	}
	s.deleteLocked(rec)
	s.mu.Unlock()

	s.dispatch([]event{{rec: *rec, reason: ReasonRemoved}})
	return true
}

// SweepExpired removes every expired record and returns how many went.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	now := s.now()

	var events []event
	for _, rec := range s.records {
		if rec.ExpiredAt(now) {
			s.deleteLocked(rec)
			events = append(events, event{rec: *rec, reason: ReasonSwept})
		}
	}
	s.mu.Unlock()

	if len(events) > 0 {
		logging.Info("Swept %d expired file(s)", len(events))
	}
	s.dispatch(events)
	return len(events)
}

// Forget drops the record backed by path if that file no longer exists.
// It never deletes anything from disk.
func (s *Store) Forget(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil || filepath.Dir(abs) != s.dir {
		return false
	}
	id := filepath.Base(abs)

	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok || rec.Path != abs {
		s.mu.Unlock()
		return false
	}
	if _, err := filesystem.StatWithRetry(abs, s.retry); err == nil {
		s.mu.Unlock()
		return false
	}
	delete(s.records, id)
	s.mu.Unlock()

	logging.Info("Backing file for %s disappeared, record dropped", id)
	s.dispatch([]event{{rec: *rec, reason: ReasonVanished}})
	return true
}

// Snapshot returns copies of all records ordered by creation time.
func (s *Store) Snapshot() []Record {
	s.mu.Lock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of tracked records, live or not yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// deleteLocked removes rec from the index and its file from disk.
// Caller holds s.mu.
func (s *Store) deleteLocked(rec *Record) {
	delete(s.records, rec.ID)

	err := filesystem.RemoveWithRetry(rec.Path, s.retry)
	switch {
	case err == nil:
		logging.Debug("File deleted: %s", rec.Path)
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("File already gone: %s", rec.Path)
	default:
		logging.Error("Error removing file %s: %v", rec.Path, err)
	}
}

func (s *Store) dispatch(events []event) {
	if len(s.listeners) == 0 {
		return
	}
	for _, ev := range events {
		for _, l := range s.listeners {
			if ev.added {
				l.RecordAdded(ev.rec)
			} else {
				l.RecordRemoved(ev.rec, ev.reason)
			}
		}
	}
}
