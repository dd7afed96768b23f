package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-downloader/internal/logging"
	"media-downloader/internal/metrics"
	"media-downloader/internal/registry"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Artifact is one row of download history.
type Artifact struct {
	ID            string     `json:"id"`
	OriginalName  string     `json:"original_filename"`
	Kind          string     `json:"type"`
	Size          int64      `json:"size"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	RemovedAt     *time.Time `json:"removed_at,omitempty"`
	RemovalReason string     `json:"removal_reason,omitempty"`
}

// Stats summarizes the history table.
type Stats struct {
	Total      int64 `json:"total"`
	Live       int64 `json:"live"`
	Removed    int64 `json:"removed"`
	Audio      int64 `json:"audio"`
	Video      int64 `json:"video"`
	TotalBytes int64 `json:"total_bytes"`
}

// Database is the download history store.
type Database struct {
	db     *sql.DB
	dbPath string
}

// New opens (creating if needed) the history database at dbPath. The parent
// directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("History database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("History database ready at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		row_id INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		original_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_id ON artifacts(id);
	CREATE INDEX IF NOT EXISTS idx_artifacts_created ON artifacts(created_at);
	`

	if _, err = d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// runMigrations applies database schema migrations
func (d *Database) runMigrations(ctx context.Context) error {
	// Migration 1: removal tracking columns
	var columnExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('artifacts')
		WHERE name='removed_at'
	`).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check for removed_at column: %w", err)
	}

	if !columnExists {
		logging.Info("Migrating database: adding removal columns to artifacts table")

		if _, err := d.db.ExecContext(ctx, `ALTER TABLE artifacts ADD COLUMN removed_at INTEGER`); err != nil {
			return fmt.Errorf("failed to add removed_at column: %w", err)
		}
		if _, err := d.db.ExecContext(ctx, `ALTER TABLE artifacts ADD COLUMN removal_reason TEXT`); err != nil {
			return fmt.Errorf("failed to add removal_reason column: %w", err)
		}

		logging.Info("Migration complete: removal columns added")
	}

	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// RecordArtifact appends a history row for a newly registered artifact.
func (d *Database) RecordArtifact(ctx context.Context, rec registry.Record) (err error) {
	start := time.Now()
	defer func() { recordQuery("insert_artifact", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, original_name, kind, size, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.OriginalName, string(rec.Kind), rec.Size,
		rec.CreatedAt.UnixMilli(), rec.ExpiresAt.UnixMilli())
	return err
}

// MarkRemoved stamps the newest open row for id as removed. It reports
// whether a row was updated.
func (d *Database) MarkRemoved(ctx context.Context, id, reason string, at time.Time) (found bool, err error) {
	start := time.Now()
	defer func() { recordQuery("mark_removed", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `
		UPDATE artifacts SET removed_at = ?, removal_reason = ?
		WHERE row_id = (
			SELECT row_id FROM artifacts
			WHERE id = ? AND removed_at IS NULL
			ORDER BY row_id DESC LIMIT 1
		)
	`, at.UnixMilli(), reason, id)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		logging.Debug("No open history row for %s", id)
	}
	return rows > 0, nil
}

// Recent returns up to limit history rows, newest first.
func (d *Database) Recent(ctx context.Context, limit int) (out []Artifact, err error) {
	start := time.Now()
	defer func() { recordQuery("recent", start, err) }()

	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, original_name, kind, size, created_at, expires_at, removed_at, removal_reason
		FROM artifacts
		ORDER BY created_at DESC, row_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	out = make([]Artifact, 0, limit)
	for rows.Next() {
		var (
			a                Artifact
			created, expires int64
			removedAt        sql.NullInt64
			removalReason    sql.NullString
		)
		if err = rows.Scan(&a.ID, &a.OriginalName, &a.Kind, &a.Size,
			&created, &expires, &removedAt, &removalReason); err != nil {
			return nil, err
		}
		a.CreatedAt = time.UnixMilli(created)
		a.ExpiresAt = time.UnixMilli(expires)
		if removedAt.Valid {
			t := time.UnixMilli(removedAt.Int64)
			a.RemovedAt = &t
		}
		a.RemovalReason = removalReason.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats summarizes the history table.
func (d *Database) Stats(ctx context.Context) (s Stats, err error) {
	start := time.Now()
	defer func() { recordQuery("stats", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN removed_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN removed_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'audio' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'video' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(size), 0)
		FROM artifacts
	`).Scan(&s.Total, &s.Live, &s.Removed, &s.Audio, &s.Video, &s.TotalBytes)
	return s, err
}

// UpdateSizeMetrics publishes the on-disk size of the database and its WAL
// and SHM companions.
func (d *Database) UpdateSizeMetrics() {
	for label, path := range map[string]string{
		"main": d.dbPath,
		"wal":  d.dbPath + "-wal",
		"shm":  d.dbPath + "-shm",
	} {
		info, err := os.Stat(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logging.Debug("Cannot stat %s: %v", path, err)
			}
			metrics.DBSizeBytes.WithLabelValues(label).Set(0)
			continue
		}
		metrics.DBSizeBytes.WithLabelValues(label).Set(float64(info.Size()))
	}
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("Database file %s is read-only! Mode: %v - this will cause write failures", path, info.Mode())
			if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
				logging.Error("Failed to fix permissions on %s: %v", path, chmodErr)
			} else {
				logging.Info("Fixed permissions on %s", path)
			}
		}
	}

	return nil
}
