package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Task is one node of a job's DAG, owned by a single party. Args holds
// the JSON-encoded operator arguments resolved at submit time.
type Task struct {
	JobID     string     `json:"job_id" badgerhold:"index"`
	Name      string     `json:"name"`
	Party     string     `json:"party"`
	Class     string     `json:"class"`
	ClassPath string     `json:"class_path"`
	Args      []byte     `json:"args"`
	Depends   []string   `json:"depends,omitempty"`
	Status    Status     `json:"status"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Errors    string     `json:"errors,omitempty"`
	VersionID string     `json:"version_id"`
}

// Key returns the unique storage key for this task.
func (t *Task) Key() string {
	return TaskKey(t.JobID, t.Name)
}

// TaskKey builds the storage key for a task of a job.
func TaskKey(jobID, name string) string {
	return jobID + "/" + name
}

// ParseArgs decodes the stored operator arguments.
func (t *Task) ParseArgs() (map[string]interface{}, error) {
	if len(t.Args) == 0 {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal(t.Args, &args); err != nil {
		return nil, fmt.Errorf("task %s: invalid args: %w", t.Key(), err)
	}
	return args, nil
}

// SetArgs encodes and stores the operator arguments.
func (t *Task) SetArgs(args map[string]interface{}) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("task %s: encode args: %w", t.Key(), err)
	}
	t.Args = data
	return nil
}

// Run marks the task started.
func (t *Task) Run() {
	now := time.Now().UTC()
	t.Status = StatusRunning
	t.StartTime = &now
	t.EndTime = nil
	t.Errors = ""
}

// Success marks the task finished successfully.
func (t *Task) Success() {
	now := time.Now().UTC()
	t.Status = StatusSuccess
	t.EndTime = &now
}

// Fail marks the task failed with the given reason.
func (t *Task) Fail(errs string) {
	now := time.Now().UTC()
	t.Status = StatusFailed
	t.EndTime = &now
	t.Errors = errs
}

// Cancel marks the task canceled.
func (t *Task) Cancel() {
	now := time.Now().UTC()
	t.Status = StatusCanceled
	t.EndTime = &now
}

// Reset returns the task to its initial state for a rerun.
func (t *Task) Reset() {
	t.Status = StatusInit
	t.StartTime = nil
	t.EndTime = nil
	t.Errors = ""
}

// TaskDetails is the per-task shape inside job detail responses.
// Unset timestamps render as "NA".
type TaskDetails struct {
	Name      string `json:"name"`
	Party     string `json:"party"`
	Status    string `json:"status"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Errors    string `json:"errors,omitempty"`
}

// Details projects the task into its detail-view shape.
func (t *Task) Details() TaskDetails {
	return TaskDetails{
		Name:      t.Name,
		Party:     t.Party,
		Status:    t.Status.String(),
		StartTime: formatTaskTime(t.StartTime),
		EndTime:   formatTaskTime(t.EndTime),
		Errors:    t.Errors,
	}
}

func formatTaskTime(ts *time.Time) string {
	if ts == nil {
		return "NA"
	}
	return ts.Format("2006-01-02 15:04:05")
}
