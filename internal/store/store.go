// Package store provides the station's scoped local persistence: a
// sqlite-backed key-value store. Each subsystem owns disjoint keys and never
// overwrites another's.
package store

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alnlabs/gmstation/internal/errors"
	"github.com/alnlabs/gmstation/internal/models"
)

// Logical storage keys. One owner per key.
const (
	KeySession     = "session"      // ledger: JSON session record
	KeyDeviceID    = "device_id"    // app: stable station identity
	KeyGameMode    = "game_mode"    // app: scoring mode override
	KeySessionMode = "session_mode" // session controller: standalone/networked
	KeyAuthToken   = "auth_token"   // session controller: orchestrator credential
)

// Store provides data access methods over the station database
type Store struct {
	db *sql.DB
}

// New creates a new Store backed by the sqlite database at dbPath
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs database migrations
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the value stored under key, or ErrNotFound
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// Set stores value under key, replacing any previous value
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	return err
}

// Delete removes key from the store. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return err
}

// SaveSessionRecord persists a full session record under the session key
func (s *Store) SaveSessionRecord(ctx context.Context, record *models.SessionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Persistence("failed to encode session record", err)
	}
	if err := s.Set(ctx, KeySession, string(data)); err != nil {
		return errors.Persistence("failed to persist session record", err)
	}
	return nil
}

// LoadSessionRecord reads the persisted session record. Returns ErrNotFound
// when no record is stored; a corrupt record yields a Persistence error so
// callers can treat it as "no prior session".
func (s *Store) LoadSessionRecord(ctx context.Context) (*models.SessionRecord, error) {
	raw, err := s.Get(ctx, KeySession)
	if err != nil {
		return nil, err
	}

	var record models.SessionRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, errors.Persistence("stored session record is corrupt", err)
	}
	return &record, nil
}

// DeleteSessionRecord removes the persisted session record
func (s *Store) DeleteSessionRecord(ctx context.Context) error {
	return s.Delete(ctx, KeySession)
}
