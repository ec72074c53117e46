package records

import (
	"fmt"

	"go.uber.org/zap"
)

// migration is a single schema step.
type migration struct {
	version int
	name    string
	up      func() error
}

func (s *Store) runMigrations() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	migrations := []migration{
		{version: 1, name: "record_versions", up: s.migration001RecordVersions},
	}

	for _, m := range migrations {
		if current >= m.version {
			continue
		}
		s.logger.Info("running records migration", zap.Int("version", m.version), zap.String("name", m.name))
		if err := m.up(); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *Store) migration001RecordVersions() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS record_versions (
			user_id TEXT NOT NULL,
			source TEXT NOT NULL,
			record_id TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, source, record_id)
		)
	`); err != nil {
		return fmt.Errorf("failed to create record_versions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_record_versions_user_source
		ON record_versions(user_id, source, updated_at_ms DESC)
	`); err != nil {
		return fmt.Errorf("failed to create record_versions index: %w", err)
	}
	return nil
}
