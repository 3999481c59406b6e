// Package postgres provides a PostgreSQL-backed implementation of the
// storage.Store interface on top of GORM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mmynk/tabsplit/internal/models"
	"github.com/mmynk/tabsplit/internal/storage"
)

// Ensure PostgresStore implements storage.Store
var _ storage.Store = (*PostgresStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    document JSONB NOT NULL,
    last_updated TIMESTAMPTZ NOT NULL,
    updated_by TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
`

// sessionModel is the row of the sessions table.
type sessionModel struct {
	ID          string `gorm:"primaryKey"`
	Document    string `gorm:"type:jsonb;not null"`
	LastUpdated time.Time
	UpdatedBy   string
	UpdatedAt   time.Time
}

func (sessionModel) TableName() string { return "sessions" }

// PostgresStore implements storage.Store using PostgreSQL.
type PostgresStore struct {
	db *gorm.DB
}

// Open connects to the database at dsn and creates the schema.
func Open(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := db.Exec(schema).Error; err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return New(db), nil
}

// New wraps an open GORM connection. The schema must already exist.
func New(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetSession retrieves a session document by ID.
func (s *PostgresStore) GetSession(ctx context.Context, id string) (*storage.Record, error) {
	var model sessionModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session, err := models.UnmarshalDocument([]byte(model.Document))
	if err != nil {
		return nil, err
	}

	return &storage.Record{
		ID:        model.ID,
		Session:   session,
		UpdatedBy: model.UpdatedBy,
		UpdatedAt: model.UpdatedAt.UTC(),
	}, nil
}

// UpsertSession writes the whole document, replacing any previous version.
func (s *PostgresStore) UpsertSession(ctx context.Context, id string, session models.Session, updatedBy string) error {
	doc, err := models.MarshalDocument(session)
	if err != nil {
		return err
	}

	model := sessionModel{
		ID:          id,
		Document:    string(doc),
		LastUpdated: session.LastUpdated.UTC(),
		UpdatedBy:   updatedBy,
		UpdatedAt:   time.Now().UTC(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"document", "last_updated", "updated_by", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	return nil
}

// DeleteSession removes a session document.
func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&sessionModel{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return nil
}
