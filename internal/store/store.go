package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parkingo-client/internal/model"
)

// ErrNoToken is returned by LoadToken when nothing has been persisted.
var ErrNoToken = errors.New("store: no auth token saved")

// Store defines the persistence operations for the session token.
type Store interface {
	LoadToken(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	DeleteToken(ctx context.Context) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, now: time.Now}
}

// LoadToken returns the persisted token or ErrNoToken.
func (s *gormStore) LoadToken(ctx context.Context) (string, error) {
	var row model.AuthToken
	err := s.db.WithContext(ctx).First(&row, model.AuthTokenRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to load auth token: %w", err)
	}
	if row.Token == "" {
		return "", ErrNoToken
	}
	return row.Token, nil
}

// SaveToken upserts the single token row.
func (s *gormStore) SaveToken(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("store: refusing to save an empty token")
	}
	row := model.AuthToken{ID: model.AuthTokenRowID, Token: token, UpdatedAt: s.now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save auth token: %w", err)
	}
	log.Println("Auth token persisted")
	return nil
}

// DeleteToken removes the persisted token. Deleting when none exists is not an error.
func (s *gormStore) DeleteToken(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Delete(&model.AuthToken{}, model.AuthTokenRowID).Error; err != nil {
		return fmt.Errorf("failed to delete auth token: %w", err)
	}
	return nil
}
