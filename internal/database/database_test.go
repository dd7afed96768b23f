package database

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"media-downloader/internal/mediatypes"
	"media-downloader/internal/metrics"
	"media-downloader/internal/registry"
)

func setupTestDB(t testing.TB) (*Database, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "history.db")
	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, dbPath
}

func record(id string, kind mediatypes.Kind, size int64, created time.Time) registry.Record {
	return registry.Record{
		ID:           id,
		Path:         "/dl/" + id,
		OriginalName: "Title." + id[len(id)-3:],
		Kind:         kind,
		CreatedAt:    created,
		ExpiresAt:    created.Add(time.Hour),
		Size:         size,
	}
}

func TestNewDatabase(t *testing.T) {
	db, dbPath := setupTestDB(t)

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Database file was not created: %v", err)
	}
	if db.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
	}
	if err := db.db.PingContext(context.Background()); err != nil {
		t.Errorf("Database ping failed: %v", err)
	}
}

func TestNewDatabaseReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	db, err := New(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RecordArtifact(ctx, record("a.mp4", mediatypes.KindVideo, 10, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	// Migrations must be idempotent.
	db, err = New(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	got, err := db.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "a.mp4" {
		t.Errorf("Recent() after reopen = %+v", got)
	}
}

func TestNewDatabaseMissingDir(t *testing.T) {
	_, err := New(context.Background(), filepath.Join(t.TempDir(), "nope", "history.db"))
	if err == nil {
		t.Error("New() in missing directory succeeded, want error")
	}
}

func TestRecordAndRecent(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a.mp4", "b.mp3", "c.mp4"} {
		kind := mediatypes.KindVideo
		if i == 1 {
			kind = mediatypes.KindAudio
		}
		if err := db.RecordArtifact(ctx, record(id, kind, int64(100*(i+1)), base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("RecordArtifact(%s) error = %v", id, err)
		}
	}

	got, err := db.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Recent(2)) = %d, want 2", len(got))
	}
	if got[0].ID != "c.mp4" || got[1].ID != "b.mp3" {
		t.Errorf("Recent order = %s, %s; want c.mp4, b.mp3", got[0].ID, got[1].ID)
	}
	if got[1].Kind != "audio" || got[1].Size != 200 {
		t.Errorf("row = %+v", got[1])
	}
	if !got[0].CreatedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("CreatedAt = %v", got[0].CreatedAt)
	}
	if got[0].RemovedAt != nil {
		t.Error("RemovedAt set on live artifact")
	}
}

func TestMarkRemoved(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := db.RecordArtifact(ctx, record("a.mp4", mediatypes.KindVideo, 1, now)); err != nil {
		t.Fatal(err)
	}

	found, err := db.MarkRemoved(ctx, "a.mp4", "expired", now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("MarkRemoved() error = %v", err)
	}
	if !found {
		t.Error("MarkRemoved() found = false")
	}

	found, err = db.MarkRemoved(ctx, "a.mp4", "removed", now.Add(3*time.Hour))
	if err != nil || found {
		t.Errorf("second MarkRemoved() = %v, %v; want false, nil", found, err)
	}

	got, _ := db.Recent(ctx, 1)
	if got[0].RemovedAt == nil || got[0].RemovalReason != "expired" {
		t.Errorf("row = %+v, want removed with reason expired", got[0])
	}
}

func TestMarkRemovedTargetsNewestOpenRow(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	// A replaced record followed by its replacement under the same id.
	_ = db.RecordArtifact(ctx, record("a.mp4", mediatypes.KindVideo, 1, now))
	_, _ = db.MarkRemoved(ctx, "a.mp4", "replaced", now.Add(time.Second))
	_ = db.RecordArtifact(ctx, record("a.mp4", mediatypes.KindVideo, 2, now.Add(time.Second)))

	if _, err := db.MarkRemoved(ctx, "a.mp4", "removed", now.Add(2*time.Second)); err != nil {
		t.Fatal(err)
	}

	got, _ := db.Recent(ctx, 10)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].RemovalReason != "removed" || got[1].RemovalReason != "replaced" {
		t.Errorf("reasons = %q, %q; want removed, replaced", got[0].RemovalReason, got[1].RemovalReason)
	}
}

func TestStats(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	empty, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() on empty db error = %v", err)
	}
	if empty != (Stats{}) {
		t.Errorf("empty Stats() = %+v", empty)
	}

	now := time.Now()
	_ = db.RecordArtifact(ctx, record("a.mp4", mediatypes.KindVideo, 100, now))
	_ = db.RecordArtifact(ctx, record("b.mp3", mediatypes.KindAudio, 50, now))
	_ = db.RecordArtifact(ctx, record("c.mp3", mediatypes.KindAudio, 25, now))
	_, _ = db.MarkRemoved(ctx, "b.mp3", "swept", now)

	s, err := db.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := Stats{Total: 3, Live: 2, Removed: 1, Audio: 2, Video: 1, TotalBytes: 175}
	if s != want {
		t.Errorf("Stats() = %+v, want %+v", s, want)
	}
}

func TestRecordQueryMetrics(t *testing.T) {
	before := testutil.ToFloat64(metrics.DBQueryTotal.WithLabelValues("stats", "success"))

	db, _ := setupTestDB(t)
	if _, err := db.Stats(context.Background()); err != nil {
		t.Fatal(err)
	}

	after := testutil.ToFloat64(metrics.DBQueryTotal.WithLabelValues("stats", "success"))
	if after != before+1 {
		t.Errorf("stats query counter went %v -> %v, want +1", before, after)
	}
}

func TestUpdateSizeMetrics(t *testing.T) {
	db, _ := setupTestDB(t)
	_ = db.RecordArtifact(context.Background(), record("a.mp4", mediatypes.KindVideo, 1, time.Now()))

	db.UpdateSizeMetrics()
	if v := testutil.ToFloat64(metrics.DBSizeBytes.WithLabelValues("main")); v <= 0 {
		t.Errorf("main db size = %v, want > 0", v)
	}
}

func TestRecorderWritesThrough(t *testing.T) {
	db, _ := setupTestDB(t)
	r := NewRecorder(db, 8)

	now := time.Now()
	rec := record("a.mp4", mediatypes.KindVideo, 42, now)
	r.RecordAdded(rec)
	r.RecordRemoved(rec, registry.ReasonExpired)
	r.Close()

	got, err := db.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].RemovalReason != "expired" {
		t.Errorf("RemovalReason = %q, want expired", got[0].RemovalReason)
	}
}

type blockingWriter struct {
	release chan struct{}
	mu      sync.Mutex
	added   int
	removed int
}

func (w *blockingWriter) RecordArtifact(context.Context, registry.Record) error {
	<-w.release
	w.mu.Lock()
	w.added++
	w.mu.Unlock()
	return nil
}

func (w *blockingWriter) MarkRemoved(context.Context, string, string, time.Time) (bool, error) {
	w.mu.Lock()
	w.removed++
	w.mu.Unlock()
	return true, nil
}

func TestRecorderDropsWhenFull(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	r := NewRecorder(w, 1)

	before := testutil.ToFloat64(metrics.HistoryQueueDropped)

	rec := record("a.mp4", mediatypes.KindVideo, 1, time.Now())
	r.RecordAdded(rec) // picked up by the writer goroutine, which blocks

	// Wait until the first event has left the queue.
	deadline := time.Now().Add(2 * time.Second)
	for len(r.events) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	r.RecordAdded(rec) // fills the queue
	r.RecordAdded(rec) // dropped

	if got := testutil.ToFloat64(metrics.HistoryQueueDropped) - before; got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}

	close(w.release)
	r.Close()

	if w.added != 2 {
		t.Errorf("added = %d, want 2", w.added)
	}
}

func TestRecorderCloseIsIdempotent(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	close(w.release)
	r := NewRecorder(w, 0)

	r.Close()
	r.Close()

	// Events after Close are ignored rather than panicking.
	r.RecordRemoved(record("a.mp4", mediatypes.KindVideo, 1, time.Now()), registry.ReasonRemoved)
	if w.removed != 0 {
		t.Errorf("removed = %d, want 0", w.removed)
	}
}
