// Package records tracks last-modified times of upstream records (profiles,
// documents, questionnaires, tasks, matches, financials) per user in SQLite.
//
// The freshness oracle reads the per-source maximum from here. Deleting a
// record leaves a tombstone stamped with the deletion time, so removals
// advance the source timestamp just like edits do.
package records

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dyluth/larder/pkg/larder"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// Record is one upstream record modification.
type Record struct {
	UserID    string        `json:"user_id"`
	Source    larder.Source `json:"source"`
	RecordID  string        `json:"record_id"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Validate checks that the record identifies a known source.
func (r Record) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if r.RecordID == "" {
		return fmt.Errorf("record_id is required")
	}
	if r.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return r.Source.Validate()
}

// Store is a SQLite-backed record timestamp store.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create records directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open records database: %w", err)
	}
	// SQLite allows one writer; serialise through a single connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure records database: %w", err)
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate records database: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Touch records that a record was created or modified at r.UpdatedAt.
// An older timestamp never replaces a newer one.
func (s *Store) Touch(ctx context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO record_versions (user_id, source, record_id, updated_at_ms, deleted)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(user_id, source, record_id) DO UPDATE SET
			updated_at_ms = MAX(updated_at_ms, excluded.updated_at_ms),
			deleted = 0
	`, r.UserID, string(r.Source), r.RecordID, r.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to touch record: %w", err)
	}
	return nil
}

// Delete tombstones a record at time at.
func (s *Store) Delete(ctx context.Context, userID string, source larder.Source, recordID string, at time.Time) error {
	return s.tombstone(ctx, Record{UserID: userID, Source: source, RecordID: recordID, UpdatedAt: at})
}

func (s *Store) tombstone(ctx context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO record_versions (user_id, source, record_id, updated_at_ms, deleted)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(user_id, source, record_id) DO UPDATE SET
			updated_at_ms = MAX(updated_at_ms, excluded.updated_at_ms),
			deleted = 1
	`, r.UserID, string(r.Source), r.RecordID, r.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// Latest returns the snapshot for userID: for each source, the maximum
// updated_at over its records (tombstones included), or Epoch if none.
func (s *Store) Latest(ctx context.Context, userID string) (larder.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, MAX(updated_at_ms)
		FROM record_versions
		WHERE user_id = ?
		GROUP BY source
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query record timestamps: %w", err)
	}
	defer rows.Close()

	snapshot := larder.NewSnapshot()
	for rows.Next() {
		var source string
		var ms int64
		if err := rows.Scan(&source, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan record timestamp: %w", err)
		}
		src := larder.Source(source)
		if src.Validate() != nil {
			s.logger.Warn("ignoring unknown record source", zap.String("source", source))
			continue
		}
		snapshot.Observe(src, time.UnixMilli(ms))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read record timestamps: %w", err)
	}
	return snapshot, nil
}

// Count returns the number of live (non-deleted) records for userID and source.
func (s *Store) Count(ctx context.Context, userID string, source larder.Source) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM record_versions
		WHERE user_id = ? AND source = ? AND deleted = 0
	`, userID, string(source)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}
