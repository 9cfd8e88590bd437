package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/storage"
	"github.com/timshannon/badgerhold/v4"
)

// ConfigStorage persists global settings and mission-scoped context.
type ConfigStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewConfigStorage creates a config storage backed by BadgerDB
func NewConfigStorage(db *BadgerDB, logger arbor.ILogger) *ConfigStorage {
	return &ConfigStorage{db: db, logger: logger}
}

// GetGlobalConfig retrieves one platform-wide setting.
func (s *ConfigStorage) GetGlobalConfig(ctx context.Context, key string) (*models.GlobalConfigEntry, error) {
	var entry models.GlobalConfigEntry
	if err := s.db.store.Get("global/"+key, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("global config %s: %w", key, storage.ErrNotFound)
		}
		return nil, err
	}
	return &entry, nil
}

// ListGlobalConfig returns every platform-wide setting.
func (s *ConfigStorage) ListGlobalConfig(ctx context.Context) ([]*models.GlobalConfigEntry, error) {
	var entries []*models.GlobalConfigEntry
	if err := s.db.store.Find(&entries, nil); err != nil {
		return nil, err
	}
	return entries, nil
}

// SetGlobalConfig inserts or replaces a platform-wide setting.
func (s *ConfigStorage) SetGlobalConfig(ctx context.Context, entry *models.GlobalConfigEntry) error {
	entry.UpdateTime = time.Now().UTC()
	return s.db.store.Upsert("global/"+entry.Key, entry)
}

// GetMissionContext retrieves one mission-scoped entry. Expiry is the
// caller's concern, the raw record is returned.
func (s *ConfigStorage) GetMissionContext(ctx context.Context, missionName, key string) (*models.MissionContextEntry, error) {
	var entry models.MissionContextEntry
	storageKey := "mctx/" + missionName + "/" + key
	if err := s.db.store.Get(storageKey, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("mission context %s/%s: %w", missionName, key, storage.ErrNotFound)
		}
		return nil, err
	}
	return &entry, nil
}

// SetMissionContext applies the entry under optimistic locking. A new
// entry must carry an empty version token, an update must carry the
// token from the read it is based on.
func (s *ConfigStorage) SetMissionContext(ctx context.Context, entry *models.MissionContextEntry) error {
	expected := entry.VersionID
	next := newVersionID()
	storageKey := "mctx/" + entry.StorageKey()

	err := s.db.commitWithRetry(func(txn *badgerdb.Txn) error {
		var current models.MissionContextEntry
		err := s.db.store.TxGet(txn, storageKey, &current)
		switch {
		case errors.Is(err, badgerhold.ErrNotFound):
			if expected != "" {
				return fmt.Errorf("mission context %s: %w", entry.StorageKey(), storage.ErrStaleData)
			}
		case err != nil:
			return err
		default:
			if current.VersionID != expected {
				return fmt.Errorf("mission context %s: %w", entry.StorageKey(), storage.ErrStaleData)
			}
		}
		entry.VersionID = next
		return s.db.store.TxUpsert(txn, storageKey, entry)
	})
	if err != nil {
		entry.VersionID = expected
		return err
	}
	return nil
}

// PurgeExpiredMissionContext deletes entries past their TTL and reports
// how many were removed.
func (s *ConfigStorage) PurgeExpiredMissionContext(ctx context.Context, now time.Time) (int, error) {
	var entries []*models.MissionContextEntry
	if err := s.db.store.Find(&entries, nil); err != nil {
		return 0, err
	}
	purged := 0
	for _, entry := range entries {
		if !entry.Expired(now) {
			continue
		}
		storageKey := "mctx/" + entry.StorageKey()
		if err := s.db.store.Delete(storageKey, &models.MissionContextEntry{}); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			return purged, err
		}
		purged++
	}
	if purged > 0 {
		s.logger.Debug().Int("purged", purged).Msg("Expired mission context entries removed")
	}
	return purged, nil
}
