package interfaces

import "context"

// Operator is a unit of computation executed for one task on one
// party. Run receives the fully resolved configmap and reports whether
// the task succeeded; a false return or an error marks the task FAILED.
// Implementations must honor ctx cancellation, which signals that the
// job was canceled.
type Operator interface {
	Run(ctx context.Context, configMap map[string]interface{}) (bool, error)
}

// TaskRunner schedules local task executions. It is implemented by the
// executor spawner and consumed by the job manager.
type TaskRunner interface {
	// SpawnTask starts the named task of a job in the background.
	SpawnTask(jobID, taskName string)
	// StopTask cancels a running task execution if one exists. The
	// cancellation is advisory, the operator decides when to stop.
	StopTask(jobID, taskName string)
}
