package interfaces

import (
	"context"

	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
)

// SubmitRequest is the cross-party job creation payload.
type SubmitRequest struct {
	JobID          string                 `json:"job_id" validate:"required"`
	MissionName    string                 `json:"mission_name" validate:"required"`
	MissionVersion int                    `json:"mission_version"`
	MainParty      string                 `json:"main_party" validate:"required"`
	UserName       string                 `json:"user_name"`
	Params         map[string]interface{} `json:"mission_params,omitempty"`
}

// TaskUpdate is the cross-party task progress payload. The job and
// task are addressed by the URL path, the body carries only the
// transition itself.
type TaskUpdate struct {
	TaskName   string                 `json:"-"`
	Status     models.Status          `json:"task_status" validate:"required"`
	JobContext map[string]interface{} `json:"job_context,omitempty"`
	Errors     string                 `json:"errors,omitempty"`
}

// PeerClient pushes coordination calls to the other parties of a job.
type PeerClient interface {
	// Submit replicates a job creation to the named party.
	Submit(ctx context.Context, party string, req *SubmitRequest) error
	// Rerun asks the named party to restart a finished job.
	Rerun(ctx context.Context, party, jobID string) error
	// Cancel asks the named party to stop a job.
	Cancel(ctx context.Context, party, jobID string) error
	// UpdateTask reports task progress to the named party.
	UpdateTask(ctx context.Context, party, jobID string, update *TaskUpdate) error
}
