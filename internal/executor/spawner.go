package executor

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
)

// Spawner runs task executions as goroutines and keeps a cancel handle
// per live execution. It implements the job manager's TaskRunner.
type Spawner struct {
	executor *Executor
	logger   arbor.ILogger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

// NewSpawner creates a spawner around the executor.
func NewSpawner(executor *Executor, logger arbor.ILogger) *Spawner {
	return &Spawner{
		executor: executor,
		logger:   logger,
		cancels:  map[string]context.CancelFunc{},
	}
}

// SpawnTask starts the task in the background. A task already running
// under this spawner is not started twice, the claim in storage
// guards against other processes.
func (s *Spawner) SpawnTask(jobID, taskName string) {
	key := models.TaskKey(jobID, taskName)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, running := s.cancels[key]; running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancels[key] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.cancels, key)
			s.mu.Unlock()
			cancel()
			s.wg.Done()
		}()
		if err := s.executor.Run(ctx, jobID, taskName); err != nil {
			s.logger.Error().Err(err).Str("job_id", jobID).Str("task", taskName).Msg("Task execution failed")
		}
	}()
}

// StopTask cancels a live execution. The signal is advisory, the
// operator decides when it actually stops.
func (s *Spawner) StopTask(jobID, taskName string) {
	key := models.TaskKey(jobID, taskName)
	s.mu.Lock()
	cancel, ok := s.cancels[key]
	s.mu.Unlock()
	if ok {
		s.logger.Debug().Str("job_id", jobID).Str("task", taskName).Msg("Stopping task execution")
		cancel()
	}
}

// Shutdown cancels every live execution and waits for the goroutines
// to drain.
func (s *Spawner) Shutdown() {
	s.mu.Lock()
	s.closed = true
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
