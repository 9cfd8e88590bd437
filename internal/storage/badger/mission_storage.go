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

// MissionStorage persists versioned workflow templates.
type MissionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMissionStorage creates a mission storage backed by BadgerDB
func NewMissionStorage(db *BadgerDB, logger arbor.ILogger) *MissionStorage {
	return &MissionStorage{db: db, logger: logger}
}

// SaveMission stores a mission revision. Revisions are immutable, a
// second save of the same name and version fails.
func (s *MissionStorage) SaveMission(ctx context.Context, mission *models.Mission) error {
	if mission.CreateTime.IsZero() {
		mission.CreateTime = time.Now().UTC()
	}
	if err := s.db.store.Insert(mission.Key(), mission); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("mission %s: %w", mission.Key(), storage.ErrAlreadyExists)
		}
		return err
	}
	s.logger.Debug().
		Str("mission", mission.Name).
		Int("version", mission.Version).
		Msg("Mission saved")
	return nil
}

// GetMission returns the named revision, or the latest when version is 0.
func (s *MissionStorage) GetMission(ctx context.Context, name string, version int) (*models.Mission, error) {
	if version > 0 {
		var mission models.Mission
		key := fmt.Sprintf("%s@%d", name, version)
		if err := s.db.store.Get(key, &mission); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return nil, fmt.Errorf("mission %s: %w", key, storage.ErrNotFound)
			}
			return nil, err
		}
		return &mission, nil
	}

	var revisions []*models.Mission
	if err := s.db.store.Find(&revisions, badgerhold.Where("Name").Eq(name)); err != nil {
		return nil, err
	}
	if len(revisions) == 0 {
		return nil, fmt.Errorf("mission %s: %w", name, storage.ErrNotFound)
	}
	latest := revisions[0]
	for _, m := range revisions[1:] {
		if m.Version > latest.Version {
			latest = m
		}
	}
	return latest, nil
}

// ListMissions returns the latest revision of every mission.
func (s *MissionStorage) ListMissions(ctx context.Context) ([]*models.Mission, error) {
	var all []*models.Mission
	if err := s.db.store.Find(&all, nil); err != nil {
		return nil, err
	}
	latest := make(map[string]*models.Mission, len(all))
	for _, m := range all {
		if cur, ok := latest[m.Name]; !ok || m.Version > cur.Version {
			latest[m.Name] = m
		}
	}
	missions := make([]*models.Mission, 0, len(latest))
	for _, m := range latest {
		missions = append(missions, m)
	}
	return missions, nil
}
