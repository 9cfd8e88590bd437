package jobmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
)

// inlineRunner executes every spawned task synchronously: it claims
// the task, then reports the scripted outcome through the manager,
// exactly like a real executor would, just without goroutines.
type inlineRunner struct {
	manager  *Manager
	outcomes map[string]*interfaces.TaskUpdate
}

func (r *inlineRunner) SpawnTask(jobID, taskName string) {
	ctx := context.Background()
	err := r.manager.UpdateTask(ctx, jobID, &interfaces.TaskUpdate{
		TaskName: taskName,
		Status:   models.StatusRunning,
	})
	if err != nil {
		return
	}
	outcome, ok := r.outcomes[taskName]
	if !ok {
		outcome = &interfaces.TaskUpdate{Status: models.StatusSuccess}
	}
	_ = r.manager.UpdateTask(ctx, jobID, &interfaces.TaskUpdate{
		TaskName:   taskName,
		Status:     outcome.Status,
		JobContext: outcome.JobContext,
		Errors:     outcome.Errors,
	})
}

func (r *inlineRunner) StopTask(jobID, taskName string) {}

// newTwoPartyEnv wires two managers together through in-process peers.
func newTwoPartyEnv(t *testing.T) (*testEnv, *testEnv) {
	envA := newTestEnv(t, "party_a")
	envB := newTestEnv(t, "party_b")
	envA.peer.remotes["party_b"] = envB.manager
	envB.peer.remotes["party_a"] = envA.manager
	return envA, envB
}

func TestTwoParty_JobConvergesToSuccess(t *testing.T) {
	envA, envB := newTwoPartyEnv(t)
	envA.manager.SetTaskRunner(&inlineRunner{
		manager: envA.manager,
		outcomes: map[string]*interfaces.TaskUpdate{
			"psi_a": {
				Status: models.StatusSuccess,
				JobContext: map[string]interface{}{
					"common":  map[string]interface{}{"session": "s-1"},
					"party_b": map[string]interface{}{"share": "blob"},
				},
			},
		},
	})
	envB.manager.SetTaskRunner(&inlineRunner{manager: envB.manager, outcomes: map[string]*interfaces.TaskUpdate{}})

	ctx := context.Background()
	jobID, err := envA.manager.Submit(ctx, &interfaces.SubmitRequest{UserName: "alice"})
	require.NoError(t, err)

	// Both replicas converged on SUCCESS through peer updates alone.
	for _, env := range []*testEnv{envA, envB} {
		job, err := env.storage.Jobs().GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSuccess, job.Status)
	}

	// party_b saw the common subtree and its own share, nothing else.
	jobB, err := envB.storage.Jobs().GetJob(ctx, jobID)
	require.NoError(t, err)
	docB, err := jobB.Context()
	require.NoError(t, err)
	commonDoc := docB["common"].(map[string]interface{})
	assert.Equal(t, "s-1", commonDoc["session"])
	assert.Contains(t, docB, "party_b")
}

func TestTwoParty_RemoteFailureFailsBothSides(t *testing.T) {
	envA, envB := newTwoPartyEnv(t)
	envA.manager.SetTaskRunner(&inlineRunner{
		manager: envA.manager,
		outcomes: map[string]*interfaces.TaskUpdate{
			"psi_a": {Status: models.StatusFailed, Errors: "dataset missing"},
		},
	})
	envB.manager.SetTaskRunner(&inlineRunner{manager: envB.manager, outcomes: map[string]*interfaces.TaskUpdate{}})

	ctx := context.Background()
	jobID, err := envA.manager.Submit(ctx, &interfaces.SubmitRequest{UserName: "alice"})
	require.NoError(t, err)

	for _, env := range []*testEnv{envA, envB} {
		job, err := env.storage.Jobs().GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, job.Status)
	}

	taskA, err := envA.storage.Tasks().GetTask(ctx, jobID, "psi_a")
	require.NoError(t, err)
	assert.Equal(t, "dataset missing", taskA.Errors)

	// The dependent task on party_b never started.
	taskB, err := envB.storage.Tasks().GetTask(ctx, jobID, "psi_b")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInit, taskB.Status)
}

func TestTwoParty_RerunAfterFailureSucceeds(t *testing.T) {
	envA, envB := newTwoPartyEnv(t)
	failing := &inlineRunner{
		manager: envA.manager,
		outcomes: map[string]*interfaces.TaskUpdate{
			"psi_a": {Status: models.StatusFailed, Errors: "transient"},
		},
	}
	envA.manager.SetTaskRunner(failing)
	envB.manager.SetTaskRunner(&inlineRunner{manager: envB.manager, outcomes: map[string]*interfaces.TaskUpdate{}})

	ctx := context.Background()
	jobID, err := envA.manager.Submit(ctx, &interfaces.SubmitRequest{UserName: "alice"})
	require.NoError(t, err)

	job, err := envA.storage.Jobs().GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, job.Status)

	// The flaw is gone on the second attempt.
	failing.outcomes = map[string]*interfaces.TaskUpdate{}
	require.NoError(t, envA.manager.Rerun(ctx, jobID))

	for _, env := range []*testEnv{envA, envB} {
		job, err := env.storage.Jobs().GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSuccess, job.Status)
	}
}
