package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/storage"
	"github.com/timshannon/badgerhold/v4"
)

// TaskStorage persists task records with optimistic locking.
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTaskStorage creates a task storage backed by BadgerDB
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) *TaskStorage {
	return &TaskStorage{db: db, logger: logger}
}

// GetTask retrieves one task of a job
func (s *TaskStorage) GetTask(ctx context.Context, jobID, name string) (*models.Task, error) {
	var task models.Task
	if err := s.db.store.Get(models.TaskKey(jobID, name), &task); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("task %s: %w", models.TaskKey(jobID, name), storage.ErrNotFound)
		}
		return nil, err
	}
	return &task, nil
}

// GetTasksByJob returns every task of a job, ordered by name.
func (s *TaskStorage) GetTasksByJob(ctx context.Context, jobID string) ([]*models.Task, error) {
	var tasks []*models.Task
	if err := s.db.store.Find(&tasks, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, k int) bool {
		return tasks[i].Name < tasks[k].Name
	})
	return tasks, nil
}

// UpdateTask applies the record if its version token still matches the
// stored one.
func (s *TaskStorage) UpdateTask(ctx context.Context, task *models.Task) error {
	expected := task.VersionID
	next := newVersionID()

	err := s.db.commitWithRetry(func(txn *badgerdb.Txn) error {
		if err := s.casTask(txn, task, expected, next); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		task.VersionID = expected
		return err
	}
	return nil
}

// UpdateTaskAndJob applies both records in one transaction, each under
// optimistic locking. Either both writes land or neither does.
func (s *TaskStorage) UpdateTaskAndJob(ctx context.Context, task *models.Task, job *models.Job) error {
	expectedTask := task.VersionID
	expectedJob := job.VersionID
	nextTask := newVersionID()
	nextJob := newVersionID()

	err := s.db.commitWithRetry(func(txn *badgerdb.Txn) error {
		if err := s.casTask(txn, task, expectedTask, nextTask); err != nil {
			return err
		}

		var currentJob models.Job
		if err := s.db.store.TxGet(txn, job.JobID, &currentJob); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return fmt.Errorf("job %s: %w", job.JobID, storage.ErrNotFound)
			}
			return err
		}
		if currentJob.VersionID != expectedJob {
			return fmt.Errorf("job %s: %w", job.JobID, storage.ErrStaleData)
		}
		job.VersionID = nextJob
		job.UpdateTime = time.Now().UTC()
		return s.db.store.TxUpdate(txn, job.JobID, job)
	})
	if err != nil {
		task.VersionID = expectedTask
		job.VersionID = expectedJob
		return err
	}
	return nil
}

func (s *TaskStorage) casTask(txn *badgerdb.Txn, task *models.Task, expected, next string) error {
	var current models.Task
	if err := s.db.store.TxGet(txn, task.Key(), &current); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("task %s: %w", task.Key(), storage.ErrNotFound)
		}
		return err
	}
	if current.VersionID != expected {
		return fmt.Errorf("task %s: %w", task.Key(), storage.ErrStaleData)
	}
	task.VersionID = next
	return s.db.store.TxUpdate(txn, task.Key(), task)
}
