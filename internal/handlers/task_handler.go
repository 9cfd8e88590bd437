package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/jobmanager"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
)

// TaskHandler serves the cross-party task progress endpoint.
type TaskHandler struct {
	manager  *jobmanager.Manager
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewTaskHandler creates a task handler.
func NewTaskHandler(manager *jobmanager.Manager, logger arbor.ILogger) *TaskHandler {
	return &TaskHandler{
		manager:  manager,
		validate: validator.New(),
		logger:   logger,
	}
}

type taskUpdatePayload struct {
	TaskStatus string                 `json:"task_status" validate:"required"`
	JobContext map[string]interface{} `json:"job_context,omitempty"`
	Errors     string                 `json:"errors,omitempty"`
}

// Update handles PATCH /api/v1/tasks/{job_id}/{task_name}. Only peer
// platform instances report task progress.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())
	if err := requireNode(user); err != nil {
		writeError(w, err)
		return
	}

	jobID, err := pathJobID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	taskName := r.PathValue("task_name")
	if taskName == "" {
		writeError(w, common.NewValidationError("missing task name"))
		return
	}

	var payload taskUpdatePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := h.validate.Struct(&payload); err != nil {
		writeError(w, common.NewValidationError("%s", err.Error()))
		return
	}
	status, err := models.ParseStatus(payload.TaskStatus)
	if err != nil {
		writeError(w, common.NewValidationError("%s", err.Error()))
		return
	}

	err = h.manager.UpdateTask(r.Context(), jobID, &interfaces.TaskUpdate{
		TaskName:   taskName,
		Status:     status,
		JobContext: payload.JobContext,
		Errors:     payload.Errors,
	})
	if err != nil {
		if errors.Is(err, jobmanager.ErrTaskClaimed) {
			writeError(w, common.NewValidationError("%s", err.Error()))
			return
		}
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}
