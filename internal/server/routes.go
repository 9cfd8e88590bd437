package server

import (
	"encoding/json"
	"net/http"

	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/handlers"
)

// NewRouter assembles the API surface. Every /api/v1 route sits behind
// bearer authentication, health stays open for probes.
func NewRouter(auth *handlers.Auth, jobs *handlers.JobHandler, tasks *handlers.TaskHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "ok",
			"version": common.GetVersion(),
		})
	})

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/jobs", jobs.Submit)
	api.HandleFunc("GET /api/v1/jobs", jobs.List)
	api.HandleFunc("GET /api/v1/jobs/{job_id}", jobs.Details)
	api.HandleFunc("POST /api/v1/jobs/{job_id}/rerun", jobs.Rerun)
	api.HandleFunc("POST /api/v1/jobs/{job_id}/cancel", jobs.Cancel)
	api.HandleFunc("PATCH /api/v1/tasks/{job_id}/{task_name}", tasks.Update)
	mux.Handle("/api/v1/", auth.Middleware(api))

	return mux
}
