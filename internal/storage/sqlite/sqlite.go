// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/tabsplit/internal/models"
	"github.com/mmynk/tabsplit/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Concurrent upserts of the same session serialise on the write lock
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetSession retrieves a session document by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*storage.Record, error) {
	var (
		doc       string
		updatedBy string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT document, updated_by, updated_at FROM sessions WHERE id = ?",
		id,
	).Scan(&doc, &updatedBy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session, err := models.UnmarshalDocument([]byte(doc))
	if err != nil {
		return nil, err
	}

	return &storage.Record{
		ID:        id,
		Session:   session,
		UpdatedBy: updatedBy,
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}, nil
}

// UpsertSession writes the whole document, replacing any previous version.
func (s *SQLiteStore) UpsertSession(ctx context.Context, id string, session models.Session, updatedBy string) error {
	doc, err := models.MarshalDocument(session)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, document, last_updated, updated_by, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   document = excluded.document,
		   last_updated = excluded.last_updated,
		   updated_by = excluded.updated_by,
		   updated_at = excluded.updated_at`,
		id, string(doc), session.LastUpdated.UTC().Format(time.RFC3339Nano), updatedBy, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	return nil
}

// DeleteSession removes a session document.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}

	return nil
}
