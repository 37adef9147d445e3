package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SecretStore is a SQLite-backed key-value store for credential material
// and brute-force counters. Every call takes a context and may block on
// the database; callers must not assume it resolves before first paint.
type SecretStore struct {
	db   *sql.DB
	path string
}

// OpenSecret opens (or creates) the secret store at dir.
func OpenSecret(dir string) (*SecretStore, error) {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("store: failed to create state directory: %w", err)
	}

	path := filepath.Join(dir, DBFileName)
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}

	// Single-connection mode avoids "database is locked" errors; the store
	// is shared across surfaces through the file, not through this handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS applock_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to create table: %w", err)
	}

	if err := os.Chmod(path, fileMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to set database permissions: %w", err)
	}

	return &SecretStore{db: db, path: path}, nil
}

// Get returns the value for key, or ErrNotFound.
func (s *SecretStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM applock_state WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("store: failed to read %q: %w", key, err)
	}
	return value, nil
}

// Set writes key=value.
func (s *SecretStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO applock_state(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("store: failed to write %q: %w", key, err)
	}
	return nil
}

// SetMany writes several keys in a single transaction. Either every key is
// written or none is; partial credential material is never observable.
func (s *SecretStore) SetMany(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO applock_state(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value")
	if err != nil {
		return fmt.Errorf("store: failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for k, v := range values {
		if _, err := stmt.ExecContext(ctx, k, v); err != nil {
			return fmt.Errorf("store: failed to write %q: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit: %w", err)
	}
	return nil
}

// All returns every key/value pair.
func (s *SecretStore) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM applock_state")
	if err != nil {
		return nil, fmt.Errorf("store: failed to list: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: failed to scan row: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: failed to list: %w", err)
	}
	return out, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *SecretStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM applock_state WHERE key = ?", key); err != nil {
		return fmt.Errorf("store: failed to delete %q: %w", key, err)
	}
	return nil
}

// DeleteAll removes every key.
func (s *SecretStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM applock_state"); err != nil {
		return fmt.Errorf("store: failed to clear: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SecretStore) Close() error {
	return s.db.Close()
}
