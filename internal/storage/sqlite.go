package storage

import (
	"database/sql"
	"encoding/json"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jeffkos/form-ease-sub004/internal/common/errors"
	"github.com/jeffkos/form-ease-sub004/internal/triggers"
)

// SQLiteStore persists each trigger as a JSON row in a single table. Save
// replaces the whole snapshot inside one transaction, keeping the same
// last-writer-wins semantics as the file store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a SQLite-backed store at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.ConfigError("database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.ConnectionError("failed to open database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.ConnectionError("failed to ping database", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS formease_triggers (
			id         TEXT PRIMARY KEY,
			definition TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return errors.InternalError("failed to migrate trigger table", err)
	}
	return nil
}

// Load reads all persisted triggers
func (s *SQLiteStore) Load() ([]*triggers.Trigger, error) {
	rows, err := s.db.Query(`SELECT definition FROM formease_triggers`)
	if err != nil {
		return nil, errors.InternalError("failed to query triggers", err)
	}
	defer rows.Close()

	set := []*triggers.Trigger{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.InternalError("failed to scan trigger row", err)
		}

		var trigger triggers.Trigger
		if err := json.Unmarshal([]byte(raw), &trigger); err != nil {
			return nil, errors.InternalError("failed to decode trigger row", err)
		}
		set = append(set, &trigger)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.InternalError("failed to iterate trigger rows", err)
	}
	return set, nil
}

// Save replaces the persisted snapshot with the given trigger set
func (s *SQLiteStore) Save(set []*triggers.Trigger) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.InternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM formease_triggers`); err != nil {
		return errors.InternalError("failed to clear trigger table", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO formease_triggers (id, definition) VALUES (?, ?)`)
	if err != nil {
		return errors.InternalError("failed to prepare insert", err)
	}
	defer stmt.Close()

	for _, trigger := range set {
		raw, err := json.Marshal(trigger)
		if err != nil {
			return errors.InternalError("failed to encode trigger", err)
		}
		if _, err := stmt.Exec(trigger.ID, string(raw)); err != nil {
			return errors.InternalError("failed to insert trigger", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.InternalError("failed to commit snapshot", err)
	}
	return nil
}

// Close closes the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Health pings the database
func (s *SQLiteStore) Health() error {
	if err := s.db.Ping(); err != nil {
		return errors.ConnectionError("database ping failed", err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
