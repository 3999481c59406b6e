// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/tabsplit/internal/models"
)

// ErrNotFound is returned when no document exists for a session ID.
var ErrNotFound = errors.New("session not found")

// Record is a stored session document with its bookkeeping columns.
type Record struct {
	ID      string
	Session models.Session

	// UpdatedBy is the device ID of the last writer, empty when unknown.
	UpdatedBy string
	UpdatedAt time.Time
}

// Store defines the interface for session document storage.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the service layer.
type Store interface {
	// GetSession retrieves the document of a session.
	// Returns ErrNotFound if no document exists.
	GetSession(ctx context.Context, id string) (*Record, error)

	// UpsertSession overwrites the document of a session, creating it if
	// needed. Writing the same document twice is harmless.
	UpsertSession(ctx context.Context, id string, s models.Session, updatedBy string) error

	// DeleteSession removes a session. Returns ErrNotFound if it does not
	// exist.
	DeleteSession(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}
