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

// GlobalConfigService exposes platform-wide key/value settings.
type GlobalConfigService struct {
	configs interfaces.ConfigStorage
	logger  arbor.ILogger
}

// NewGlobalConfigService creates a global config service
func NewGlobalConfigService(configs interfaces.ConfigStorage, logger arbor.ILogger) *GlobalConfigService {
	return &GlobalConfigService{configs: configs, logger: logger}
}

// Get returns the value for key and whether it exists.
func (s *GlobalConfigService) Get(ctx context.Context, key string) (string, bool, error) {
	entry, err := s.configs.GetGlobalConfig(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return entry.Value, true, nil
}

// GetAll returns every setting as a map.
func (s *GlobalConfigService) GetAll(ctx context.Context) (map[string]string, error) {
	entries, err := s.configs.ListGlobalConfig(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		out[entry.Key] = entry.Value
	}
	return out, nil
}

// Set stores a setting, replacing any previous value.
func (s *GlobalConfigService) Set(ctx context.Context, key, value string) error {
	return s.configs.SetGlobalConfig(ctx, &models.GlobalConfigEntry{
		Key:        key,
		Value:      value,
		UpdateTime: time.Now().UTC(),
	})
}
