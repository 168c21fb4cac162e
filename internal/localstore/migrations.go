package localstore

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the current database schema version
const SchemaVersion = 3

const schema = `
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS collections (
    key TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

// Migration is a versioned schema change
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema
	{
		Version:     2,
		Description: "Add sync_history table",
		SQL: `
CREATE TABLE IF NOT EXISTS sync_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    direction TEXT NOT NULL,
    entity TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    result TEXT NOT NULL,
    detail TEXT DEFAULT '',
    device_id TEXT DEFAULT '',
    timestamp TEXT NOT NULL
);
`,
	},
	{
		Version:     3,
		Description: "Index sync_history by entity",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_sync_history_entity ON sync_history(entity, entity_id);`,
	},
}

// SchemaVersion returns the version recorded in schema_info, 0 when unset
func (s *Store) SchemaVersion() int {
	var version string
	if err := s.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version); err != nil {
		return 0
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v
}

func (s *Store) setSchemaVersion(version int) error {
	_, err := s.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", version))
	return err
}

// runMigrations applies pending migrations under the write lock.
func (s *Store) runMigrations() (int, error) {
	if _, err := s.conn.Exec(schema); err != nil {
		return 0, fmt.Errorf("create schema: %w", err)
	}
	if s.SchemaVersion() >= SchemaVersion {
		return 0, nil
	}

	var run int
	err := s.withWriteLock(func() error {
		current := s.SchemaVersion()
		if current == 0 {
			current = 1
			if err := s.setSchemaVersion(1); err != nil {
				return fmt.Errorf("set version 1: %w", err)
			}
		}
		for _, m := range Migrations {
			if m.Version <= current {
				continue
			}
			if err := s.applyMigration(m); err != nil {
				return err
			}
			run++
		}
		return nil
	})
	return run, err
}

func (s *Store) applyMigration(m Migration) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: %w", m.Version, err)
	}
	defer func() {
		if tx != nil {
			tx.Rollback()
		}
	}()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", m.Version)); err != nil {
		return fmt.Errorf("set version %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	tx = nil
	return nil
}

func tableExists(conn *sql.DB, table string) (bool, error) {
	var count int
	err := conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
