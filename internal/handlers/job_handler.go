package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/jobmanager"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
)

// JobHandler serves the job lifecycle endpoints.
type JobHandler struct {
	manager  *jobmanager.Manager
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewJobHandler creates a job handler.
func NewJobHandler(manager *jobmanager.Manager, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		manager:  manager,
		validate: validator.New(),
		logger:   logger,
	}
}

type submitPayload struct {
	JobID          string                 `json:"job_id,omitempty"`
	MissionName    string                 `json:"mission_name,omitempty"`
	MissionVersion int                    `json:"mission_version,omitempty" validate:"min=0"`
	MainParty      string                 `json:"main_party,omitempty"`
	UserName       string                 `json:"user_name,omitempty"`
	MissionParams  map[string]interface{} `json:"mission_params,omitempty"`
}

// Submit handles POST /api/v1/jobs. A payload carrying a job ID is a
// replica pushed by the main party and only peers may send one.
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())

	var payload submitPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := h.validate.Struct(&payload); err != nil {
		writeError(w, common.NewValidationError("%s", err.Error()))
		return
	}

	req := &interfaces.SubmitRequest{
		MissionName:    payload.MissionName,
		MissionVersion: payload.MissionVersion,
		MainParty:      payload.MainParty,
		Params:         payload.MissionParams,
		UserName:       user.Name,
	}
	if payload.JobID != "" {
		if err := requireNode(user); err != nil {
			writeError(w, err)
			return
		}
		if payload.MainParty == "" {
			writeError(w, common.NewValidationError("replicated submission needs main_party"))
			return
		}
		req.JobID = payload.JobID
		req.UserName = payload.UserName
	}

	jobID, err := h.manager.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]interface{}{"job_id": jobID})
}

// Details handles GET /api/v1/jobs/{job_id}.
func (h *JobHandler) Details(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathJobID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.authorizeJob(r, jobID); err != nil {
		writeError(w, err)
		return
	}
	details, err := h.manager.GetJobDetails(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]interface{}{"job": details})
}

type listQuery struct {
	UserName string `validate:"omitempty"`
	Status   string `validate:"omitempty,oneof=INIT RUNNING SUCCESS FAILED CANCELED"`
	Hours    int    `validate:"min=0,max=720"`
	Limit    int    `validate:"min=0,max=1000"`
}

// List handles GET /api/v1/jobs. Regular users see their own jobs,
// peers and admins may query any user.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())

	query := listQuery{
		UserName: r.URL.Query().Get("user"),
		Status:   r.URL.Query().Get("status"),
	}
	var err error
	if query.Hours, err = queryInt(r, "hours"); err != nil {
		writeError(w, err)
		return
	}
	if query.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, err)
		return
	}
	if err := h.validate.Struct(&query); err != nil {
		writeError(w, common.NewValidationError("%s", err.Error()))
		return
	}

	if user.Role == models.RoleOperator {
		query.UserName = user.Name
	} else if query.UserName == "" {
		query.UserName = user.Name
	}

	jobs, err := h.manager.GetJobs(r.Context(), jobmanager.ListOptions{
		UserName: query.UserName,
		Status:   query.Status,
		Hours:    query.Hours,
		Limit:    query.Limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]interface{}{"jobs": jobs})
}

// Rerun handles POST /api/v1/jobs/{job_id}/rerun.
func (h *JobHandler) Rerun(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, h.manager.Rerun)
}

// Cancel handles POST /api/v1/jobs/{job_id}/cancel.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, h.manager.Cancel)
}

func (h *JobHandler) jobAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, jobID string) error) {
	jobID, err := pathJobID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.authorizeJob(r, jobID); err != nil {
		writeError(w, err)
		return
	}
	if err := action(r.Context(), jobID); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, nil)
}

func (h *JobHandler) authorizeJob(r *http.Request, jobID string) error {
	job, err := h.manager.GetJob(r.Context(), jobID)
	if err != nil {
		return err
	}
	return checkJobAccess(UserFrom(r.Context()), job.UserName)
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, common.NewValidationError("query parameter %s must be an integer", name)
	}
	return value, nil
}
