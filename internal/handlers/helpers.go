package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
)

// writeSuccess writes the success envelope with optional extra fields.
func writeSuccess(w http.ResponseWriter, extra map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes the failure envelope with the status mapped from
// the error.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(common.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success":       false,
		"error_message": err.Error(),
	})
}

// decodeJSON parses the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return common.NewValidationError("invalid request body: %s", err.Error())
	}
	return nil
}

// pathJobID extracts and validates the job_id path segment.
func pathJobID(r *http.Request) (string, error) {
	jobID := r.PathValue("job_id")
	if !common.IsJobID(jobID) {
		return "", common.NewValidationError("invalid job id %q", jobID)
	}
	return jobID, nil
}
