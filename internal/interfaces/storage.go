package interfaces

import (
	"context"
	"time"

	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
)

// MissionStorage manages versioned workflow templates.
type MissionStorage interface {
	// SaveMission stores a mission revision, failing if it already exists.
	SaveMission(ctx context.Context, mission *models.Mission) error
	// GetMission returns the named revision, or the latest when version is 0.
	GetMission(ctx context.Context, name string, version int) (*models.Mission, error)
	// ListMissions returns the latest revision of every mission.
	ListMissions(ctx context.Context) ([]*models.Mission, error)
}

// JobListOptions filters job queries.
type JobListOptions struct {
	UserName string
	Status   models.Status
	Since    time.Time
	Limit    int
}

// JobStorage manages job records with optimistic locking.
type JobStorage interface {
	// CreateJobWithTasks persists the job and all of its tasks in one
	// transaction.
	CreateJobWithTasks(ctx context.Context, job *models.Job, tasks []*models.Task) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	// UpdateJob applies the record if its VersionID still matches the
	// stored one, returning storage.ErrStaleData otherwise.
	UpdateJob(ctx context.Context, job *models.Job) error
	ListJobs(ctx context.Context, opts JobListOptions) ([]*models.Job, error)
	CountJobsByStatus(ctx context.Context, status models.Status) (int, error)
}

// TaskStorage manages task records with optimistic locking.
type TaskStorage interface {
	GetTask(ctx context.Context, jobID, name string) (*models.Task, error)
	GetTasksByJob(ctx context.Context, jobID string) ([]*models.Task, error)
	// UpdateTask applies the record under optimistic locking.
	UpdateTask(ctx context.Context, task *models.Task) error
	// UpdateTaskAndJob applies both records in one transaction, each
	// under optimistic locking.
	UpdateTaskAndJob(ctx context.Context, task *models.Task, job *models.Job) error
}

// UserStorage manages authenticated principals.
type UserStorage interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, name string) (*models.User, error)
}

// ConfigStorage manages global settings and mission-scoped context.
type ConfigStorage interface {
	GetGlobalConfig(ctx context.Context, key string) (*models.GlobalConfigEntry, error)
	ListGlobalConfig(ctx context.Context) ([]*models.GlobalConfigEntry, error)
	SetGlobalConfig(ctx context.Context, entry *models.GlobalConfigEntry) error

	GetMissionContext(ctx context.Context, missionName, key string) (*models.MissionContextEntry, error)
	// SetMissionContext applies the entry under optimistic locking.
	SetMissionContext(ctx context.Context, entry *models.MissionContextEntry) error
	// PurgeExpiredMissionContext deletes entries past their TTL and
	// returns how many were removed.
	PurgeExpiredMissionContext(ctx context.Context, now time.Time) (int, error)
}

// StorageManager bundles every storage concern behind one handle.
type StorageManager interface {
	Missions() MissionStorage
	Jobs() JobStorage
	Tasks() TaskStorage
	Users() UserStorage
	Configs() ConfigStorage
	Close() error
}
