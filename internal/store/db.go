package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sqlx.DB
}

// Open opens (or creates) the catalog database, applies the concurrency
// pragmas, and validates the schema-version marker. A missing or stale marker
// triggers a destructive rebuild; Rebuilt on the result reports it so the
// caller can schedule a full rescan.
func Open(dsn string) (*DB, bool, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open db: %w", err)
	}

	// Pragmas for concurrent writers sharing one file
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=30000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, false, fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}

	if err := db.Ping(); err != nil {
		return nil, false, fmt.Errorf("failed to ping db: %w", err)
	}

	s := &DB{db}
	rebuilt, err := s.ensureSchema()
	if err != nil {
		return nil, false, err
	}
	return s, rebuilt, nil
}

// ensureSchema validates db_info.schema_version. On a valid marker nothing
// changes; otherwise every object is dropped and recreated.
func (db *DB) ensureSchema() (bool, error) {
	var version int
	err := db.Get(&version, "SELECT schema_version FROM db_info LIMIT 1")
	if err == nil && version >= SchemaVersion {
		return false, nil
	}

	// Marker missing, unreadable, or stale: rebuild from scratch.
	if _, err := db.Exec(dropAll); err != nil {
		return false, fmt.Errorf("failed to drop stale schema: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		return false, fmt.Errorf("failed to apply schema: %w", err)
	}
	if _, err := db.Exec("INSERT INTO db_info (schema_version) VALUES (?)", SchemaVersion); err != nil {
		return false, fmt.Errorf("failed to write schema version: %w", err)
	}
	return true, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
