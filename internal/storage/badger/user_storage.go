package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/storage"
	"github.com/timshannon/badgerhold/v4"
)

// UserStorage persists authenticated principals.
type UserStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewUserStorage creates a user storage backed by BadgerDB
func NewUserStorage(db *BadgerDB, logger arbor.ILogger) *UserStorage {
	return &UserStorage{db: db, logger: logger}
}

// SaveUser inserts or replaces a user record.
func (s *UserStorage) SaveUser(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	if user.CreateTime.IsZero() {
		user.CreateTime = time.Now().UTC()
	}
	return s.db.store.Upsert(user.Name, user)
}

// GetUser retrieves a user by name
func (s *UserStorage) GetUser(ctx context.Context, name string) (*models.User, error) {
	var user models.User
	if err := s.db.store.Get(name, &user); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", name, storage.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}
