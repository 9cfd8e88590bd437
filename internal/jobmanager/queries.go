package jobmanager

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/dag"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
)

// JobDetails is the full view of one job returned to API clients.
type JobDetails struct {
	JobID          string               `json:"job_id"`
	MissionName    string               `json:"mission_name"`
	MissionVersion int                  `json:"mission_version"`
	MainParty      string               `json:"main_party"`
	JoinParties    []string             `json:"join_parties"`
	Status         string               `json:"status"`
	Progress       string               `json:"progress"`
	UserName       string               `json:"user_name"`
	CreateTime     time.Time            `json:"create_time"`
	UpdateTime     time.Time            `json:"update_time"`
	Tasks          []models.TaskDetails `json:"tasks"`
}

// ListOptions filters GetJobs.
type ListOptions struct {
	UserName string
	Status   string
	Hours    int
	Limit    int
}

// GetJobDetails returns the job, its progress and every task in
// execution order. Tasks that have not started sort last.
func (m *Manager) GetJobDetails(ctx context.Context, jobID string) (*JobDetails, error) {
	job, err := m.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	tasks, err := m.storage.Tasks().GetTasksByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	missionDAG, err := m.missionDAG(ctx, job)
	if err != nil {
		return nil, err
	}
	graph, err := dag.Build(jobID, missionDAG, tasks)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sort.SliceStable(tasks, func(i, k int) bool {
		return taskSortTime(tasks[i], now).Before(taskSortTime(tasks[k], now))
	})
	details := make([]models.TaskDetails, len(tasks))
	for i, task := range tasks {
		details[i] = task.Details()
	}

	return &JobDetails{
		JobID:          job.JobID,
		MissionName:    job.MissionName,
		MissionVersion: job.MissionVersion,
		MainParty:      job.MainParty,
		JoinParties:    job.JoinParties,
		Status:         job.Status.String(),
		Progress:       fmt.Sprintf("%.2f%%", graph.Progress()*100),
		UserName:       job.UserName,
		CreateTime:     job.CreateTime,
		UpdateTime:     job.UpdateTime,
		Tasks:          details,
	}, nil
}

func taskSortTime(task *models.Task, now time.Time) time.Time {
	if task.StartTime == nil {
		return now
	}
	return *task.StartTime
}

// defaultJobListLimit caps listings when the caller names no limit.
const defaultJobListLimit = 10

// GetJobs lists job summaries, newest first.
func (m *Manager) GetJobs(ctx context.Context, opts ListOptions) ([]models.JobSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultJobListLimit
	}
	listOpts := interfaces.JobListOptions{
		UserName: opts.UserName,
		Limit:    limit,
	}
	if opts.Status != "" {
		status, err := models.ParseStatus(opts.Status)
		if err != nil {
			return nil, common.NewValidationError("%s", err.Error())
		}
		listOpts.Status = status
	}
	if opts.Hours > 0 {
		listOpts.Since = time.Now().UTC().Add(-time.Duration(opts.Hours) * time.Hour)
	}

	jobs, err := m.storage.Jobs().ListJobs(ctx, listOpts)
	if err != nil {
		return nil, err
	}
	summaries := make([]models.JobSummary, len(jobs))
	for i, job := range jobs {
		summaries[i] = job.Summary()
	}
	return summaries, nil
}
