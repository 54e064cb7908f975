// Package store provides durable local key/value persistence for
// JSON-serializable state.
//
// The store is a passive mirror: components read their key once at
// startup and write it back after every mutation. It is never a source
// of truth during an active session. Corrupt stored values are logged
// and discarded rather than surfaced as errors.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// Well-known keys. No two components share a key.
const (
	KeyChatHistory  = "chat_history_v2"
	KeyAppSettings  = "app_settings_v6"
	KeyImageGallery = "image_gallery_v1"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("store: key not found")

// Store persists JSON blobs under string keys in a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates (or opens) the store at path. Use ":memory:" for an
// ephemeral store in tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set marshals v and writes it under key, replacing any previous value.
func (s *Store) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO blobs (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(data),
	)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Get unmarshals the value stored under key into v. A missing key
// returns ErrNotFound. A value that no longer parses is discarded and
// reported as ErrNotFound so callers fall back to empty state.
func (s *Store) Get(key string, v any) error {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM blobs WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.logger.Warn("discarding corrupt stored value", "key", key, "error", err)
		if _, delErr := s.db.Exec(`DELETE FROM blobs WHERE key = ?`, key); delErr != nil {
			s.logger.Warn("failed to delete corrupt value", "key", key, "error", delErr)
		}
		return ErrNotFound
	}
	return nil
}

// Delete removes the value stored under key. Deleting a missing key is
// not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
