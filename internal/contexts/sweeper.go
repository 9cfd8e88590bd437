package contexts

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
)

// Sweeper periodically purges expired mission context entries.
type Sweeper struct {
	configs  interfaces.ConfigStorage
	logger   arbor.ILogger
	schedule string
	cron     *cron.Cron
}

// NewSweeper creates a sweeper running on the given cron schedule.
func NewSweeper(configs interfaces.ConfigStorage, logger arbor.ILogger, schedule string) *Sweeper {
	return &Sweeper{
		configs:  configs,
		logger:   logger,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the sweep and begins the schedule.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.sweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", s.schedule).Msg("Mission context sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	purged, err := s.configs.PurgeExpiredMissionContext(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Mission context sweep failed")
		return
	}
	if purged > 0 {
		s.logger.Info().Int("purged", purged).Msg("Mission context sweep removed expired entries")
	}
}
