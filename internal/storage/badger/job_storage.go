package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/storage"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage persists job records with optimistic locking.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a job storage backed by BadgerDB
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) *JobStorage {
	return &JobStorage{db: db, logger: logger}
}

// CreateJobWithTasks persists the job and all of its tasks atomically.
// Every record receives a fresh version token.
func (s *JobStorage) CreateJobWithTasks(ctx context.Context, job *models.Job, tasks []*models.Task) error {
	now := time.Now().UTC()
	job.VersionID = newVersionID()
	if job.CreateTime.IsZero() {
		job.CreateTime = now
	}
	job.UpdateTime = now
	for _, task := range tasks {
		task.VersionID = newVersionID()
	}

	err := s.db.commitWithRetry(func(txn *badgerdb.Txn) error {
		if err := s.db.store.TxInsert(txn, job.JobID, job); err != nil {
			if errors.Is(err, badgerhold.ErrKeyExists) {
				return fmt.Errorf("job %s: %w", job.JobID, storage.ErrAlreadyExists)
			}
			return err
		}
		for _, task := range tasks {
			if err := s.db.store.TxInsert(txn, task.Key(), task); err != nil {
				if errors.Is(err, badgerhold.ErrKeyExists) {
					return fmt.Errorf("task %s: %w", task.Key(), storage.ErrAlreadyExists)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug().
		Str("job_id", job.JobID).
		Int("tasks", len(tasks)).
		Msg("Job created")
	return nil
}

// GetJob retrieves a job by ID
func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.store.Get(jobID, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, storage.ErrNotFound)
		}
		return nil, err
	}
	return &job, nil
}

// UpdateJob applies the record if its version token still matches the
// stored one. On success the record carries the new token.
func (s *JobStorage) UpdateJob(ctx context.Context, job *models.Job) error {
	expected := job.VersionID
	next := newVersionID()

	err := s.db.commitWithRetry(func(txn *badgerdb.Txn) error {
		var current models.Job
		if err := s.db.store.TxGet(txn, job.JobID, &current); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return fmt.Errorf("job %s: %w", job.JobID, storage.ErrNotFound)
			}
			return err
		}
		if current.VersionID != expected {
			return fmt.Errorf("job %s: %w", job.JobID, storage.ErrStaleData)
		}
		job.VersionID = next
		job.UpdateTime = time.Now().UTC()
		return s.db.store.TxUpdate(txn, job.JobID, job)
	})
	if err != nil {
		// Leave the caller's token untouched so a reread can retry.
		job.VersionID = expected
		return err
	}
	return nil
}

// ListJobs returns jobs matching the filter, newest first.
func (s *JobStorage) ListJobs(ctx context.Context, opts interfaces.JobListOptions) ([]*models.Job, error) {
	var query *badgerhold.Query
	if opts.UserName != "" {
		query = badgerhold.Where("UserName").Eq(opts.UserName)
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
	} else if opts.Status != "" {
		query = badgerhold.Where("Status").Eq(opts.Status)
	}

	var jobs []*models.Job
	var err error
	if query != nil {
		err = s.db.store.Find(&jobs, query)
	} else {
		err = s.db.store.Find(&jobs, nil)
	}
	if err != nil {
		return nil, err
	}

	// Time filtering and ordering happen here rather than in the query
	// so index encoding stays out of the comparison.
	filtered := jobs[:0]
	for _, job := range jobs {
		if !opts.Since.IsZero() && job.CreateTime.Before(opts.Since) {
			continue
		}
		filtered = append(filtered, job)
	}
	sort.Slice(filtered, func(i, k int) bool {
		return filtered[i].CreateTime.After(filtered[k].CreateTime)
	})
	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}
	return filtered, nil
}

// CountJobsByStatus returns how many jobs currently hold the status.
func (s *JobStorage) CountJobsByStatus(ctx context.Context, status models.Status) (int, error) {
	var jobs []*models.Job
	if err := s.db.store.Find(&jobs, badgerhold.Where("Status").Eq(status)); err != nil {
		return 0, err
	}
	return len(jobs), nil
}
