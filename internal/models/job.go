package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job is one execution of a mission across a set of parties. The
// JobContext field holds the JSON-encoded per-party context document;
// VersionID implements optimistic locking on every update.
type Job struct {
	JobID          string    `json:"job_id" badgerhold:"key"`
	MissionName    string    `json:"mission_name"`
	MissionVersion int       `json:"mission_version"`
	JobContext     []byte    `json:"job_context"`
	MainParty      string    `json:"main_party"`
	JoinParties    []string  `json:"join_parties"`
	Status         Status    `json:"status" badgerhold:"index"`
	UserName       string    `json:"user_name" badgerhold:"index"`
	CreateTime     time.Time `json:"create_time"`
	UpdateTime     time.Time `json:"update_time"`
	VersionID      string    `json:"version_id"`
}

// Context decodes the stored job context document.
func (j *Job) Context() (map[string]interface{}, error) {
	if len(j.JobContext) == 0 {
		return map[string]interface{}{}, nil
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(j.JobContext, &doc); err != nil {
		return nil, fmt.Errorf("job %s: invalid context: %w", j.JobID, err)
	}
	return doc, nil
}

// SetContext encodes and stores the job context document.
func (j *Job) SetContext(doc map[string]interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("job %s: encode context: %w", j.JobID, err)
	}
	j.JobContext = data
	return nil
}

// IsMainParty reports whether the given party coordinates this job.
func (j *Job) IsMainParty(party string) bool {
	return j.MainParty == party
}

// JobSummary is the list-view shape returned by job queries.
type JobSummary struct {
	JobID       string    `json:"job_id"`
	MissionName string    `json:"mission_name"`
	Status      string    `json:"status"`
	UserName    string    `json:"user_name"`
	CreateTime  time.Time `json:"create_time"`
	UpdateTime  time.Time `json:"update_time"`
}

// Summary projects the job into its list-view shape.
func (j *Job) Summary() JobSummary {
	return JobSummary{
		JobID:       j.JobID,
		MissionName: j.MissionName,
		Status:      j.Status.String(),
		UserName:    j.UserName,
		CreateTime:  j.CreateTime,
		UpdateTime:  j.UpdateTime,
	}
}
