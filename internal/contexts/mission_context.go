package contexts

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/storage"
)

// DefaultMissionContextTTL bounds how long a mission context entry
// stays visible without being refreshed.
const DefaultMissionContextTTL = 24 * time.Hour

// MissionContextService exposes mission-scoped key/value state shared
// by every job of a mission. Entries carry a TTL and a write can lose
// an optimistic-locking race.
type MissionContextService struct {
	configs interfaces.ConfigStorage
	logger  arbor.ILogger
}

// NewMissionContextService creates a mission context service
func NewMissionContextService(configs interfaces.ConfigStorage, logger arbor.ILogger) *MissionContextService {
	return &MissionContextService{configs: configs, logger: logger}
}

// Get returns the value for key and whether a live entry exists.
// Expired entries read as missing.
func (s *MissionContextService) Get(ctx context.Context, missionName, key string) (string, bool, error) {
	entry, err := s.configs.GetMissionContext(ctx, missionName, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if entry.Expired(time.Now().UTC()) {
		return "", false, nil
	}
	return entry.Value, true, nil
}

// Set writes the entry with the given TTL. It returns false when a
// concurrent writer won the race, the caller decides whether the loss
// matters. A ttl of zero uses the default.
func (s *MissionContextService) Set(ctx context.Context, missionName, key, value string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultMissionContextTTL
	}
	now := time.Now().UTC()

	entry := &models.MissionContextEntry{
		MissionName: missionName,
		Key:         key,
		Value:       value,
		ExpireTime:  now.Add(ttl),
	}
	// Carry the current token when an entry already exists.
	current, err := s.configs.GetMissionContext(ctx, missionName, key)
	if err == nil {
		entry.VersionID = current.VersionID
	} else if !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}

	if err := s.configs.SetMissionContext(ctx, entry); err != nil {
		if errors.Is(err, storage.ErrStaleData) {
			s.logger.Debug().
				Str("mission", missionName).
				Str("key", key).
				Msg("Mission context write lost optimistic-locking race")
			return false, nil
		}
		return false, err
	}
	return true, nil
}
