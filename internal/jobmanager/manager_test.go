package jobmanager

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/contexts"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
	badgerstore "github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/storage/badger"
)

// testPeer records outbound coordination calls and optionally forwards
// them to in-process managers standing in for the other parties.
type testPeer struct {
	mu      sync.Mutex
	remotes map[string]*Manager
	submits []*interfaces.SubmitRequest
	reruns  []string
	cancels []string
	updates []*interfaces.TaskUpdate
}

func newTestPeer() *testPeer {
	return &testPeer{remotes: map[string]*Manager{}}
}

func (p *testPeer) Submit(ctx context.Context, party string, req *interfaces.SubmitRequest) error {
	p.mu.Lock()
	p.submits = append(p.submits, req)
	remote := p.remotes[party]
	p.mu.Unlock()
	if remote != nil {
		_, err := remote.Submit(ctx, req)
		return err
	}
	return nil
}

func (p *testPeer) Rerun(ctx context.Context, party, jobID string) error {
	p.mu.Lock()
	p.reruns = append(p.reruns, party+":"+jobID)
	remote := p.remotes[party]
	p.mu.Unlock()
	if remote != nil {
		return remote.Rerun(ctx, jobID)
	}
	return nil
}

func (p *testPeer) Cancel(ctx context.Context, party, jobID string) error {
	p.mu.Lock()
	p.cancels = append(p.cancels, party+":"+jobID)
	remote := p.remotes[party]
	p.mu.Unlock()
	if remote != nil {
		return remote.Cancel(ctx, jobID)
	}
	return nil
}

func (p *testPeer) UpdateTask(ctx context.Context, party, jobID string, update *interfaces.TaskUpdate) error {
	p.mu.Lock()
	p.updates = append(p.updates, update)
	remote := p.remotes[party]
	p.mu.Unlock()
	if remote != nil {
		return remote.UpdateTask(ctx, jobID, update)
	}
	return nil
}

// testRunner records spawn and stop requests without running anything.
type testRunner struct {
	mu      sync.Mutex
	spawned []string
	stopped []string
}

func (r *testRunner) SpawnTask(jobID, taskName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spawned = append(r.spawned, models.TaskKey(jobID, taskName))
}

func (r *testRunner) StopTask(jobID, taskName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, models.TaskKey(jobID, taskName))
}

func (r *testRunner) spawnedTasks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.spawned...)
}

func (r *testRunner) stoppedTasks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stopped...)
}

type testEnv struct {
	manager *Manager
	storage interfaces.StorageManager
	peer    *testPeer
	runner  *testRunner
}

func newTestEnv(t *testing.T, party string) *testEnv {
	t.Helper()
	logger := arbor.NewLogger()
	store, err := badgerstore.NewManager(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), party),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	seedMission(t, store)

	peer := newTestPeer()
	jobCtx := contexts.NewJobContextService(store.Jobs(), logger)
	manager := NewManager(Options{
		Party:          party,
		MaxJobLimit:    10,
		DefaultMission: "ecdh_psi",
	}, store, jobCtx, peer, logger)
	runner := &testRunner{}
	manager.SetTaskRunner(runner)

	return &testEnv{manager: manager, storage: store, peer: peer, runner: runner}
}

func seedMission(t *testing.T, store interfaces.StorageManager) {
	t.Helper()
	mission := &models.Mission{Name: "ecdh_psi", Version: 1}
	require.NoError(t, mission.SetDAG(&models.MissionDAG{
		Params: map[string]interface{}{
			"common": map[string]interface{}{"protocol": "ecdh"},
		},
		Tasks: map[string]*models.OperatorSpec{
			"psi_a": {
				Party:     "party_a",
				Class:     "PSIOperator",
				ClassPath: "operators.psi",
				Args:      map[string]interface{}{"role": "sender"},
			},
			"psi_b": {
				Party:     "party_b",
				Class:     "PSIOperator",
				ClassPath: "operators.psi",
				Args:      map[string]interface{}{"role": "receiver"},
				Depends:   []string{"psi_a"},
			},
		},
	}))
	require.NoError(t, store.Missions().SaveMission(context.Background(), mission))
}

func TestSubmit_LocalOrigin(t *testing.T) {
	env := newTestEnv(t, "party_a")
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, &interfaces.SubmitRequest{
		UserName: "alice",
		Params: map[string]interface{}{
			"party_a": map[string]interface{}{"input": "/data/a.csv"},
		},
	})
	require.NoError(t, err)
	assert.True(t, common.IsJobID(jobID))

	job, err := env.storage.Jobs().GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, job.Status)
	assert.Equal(t, "party_a", job.MainParty)
	assert.Equal(t, []string{"party_a", "party_b"}, job.JoinParties)
	assert.Equal(t, "ecdh_psi", job.MissionName)

	doc, err := job.Context()
	require.NoError(t, err)
	assert.Contains(t, doc, "common")
	assert.Contains(t, doc, "party_a")

	// The creation was replicated to the other participant.
	require.Len(t, env.peer.submits, 1)
	assert.Equal(t, jobID, env.peer.submits[0].JobID)
	assert.Equal(t, "party_a", env.peer.submits[0].MainParty)

	// Only this party's dependency-free task was spawned.
	assert.Equal(t, []string{models.TaskKey(jobID, "psi_a")}, env.runner.spawnedTasks())
}

func TestSubmit_InitialContextDocument(t *testing.T) {
	env := newTestEnv(t, "party_a")
	ctx := context.Background()

	params := map[string]interface{}{
		"party_a": map[string]interface{}{"input": "/data/a.csv"},
		"timeout": 30,
	}
	jobID, err := env.manager.Submit(ctx, &interfaces.SubmitRequest{
		UserName: "alice",
		Params:   params,
	})
	require.NoError(t, err)

	job, err := env.storage.Jobs().GetJob(ctx, jobID)
	require.NoError(t, err)
	doc, err := job.Context()
	require.NoError(t, err)

	// One empty subtree per party, the raw submission parked under
	// common.__user_input until execution distributes it.
	assert.Equal(t, map[string]interface{}{}, doc["party_a"])
	assert.Equal(t, map[string]interface{}{}, doc["party_b"])

	commonDoc, ok := doc["common"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, jobID, commonDoc["job_id"])
	assert.Equal(t, "ecdh", commonDoc["protocol"])
	userInput, ok := commonDoc["__user_input"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, userInput, "party_a")
	assert.Contains(t, userInput, "timeout")
}

func TestSubmit_ReplicaDoesNotRebroadcast(t *testing.T) {
	env := newTestEnv(t, "party_b")
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, &interfaces.SubmitRequest{
		JobID:       "j_replica1",
		MissionName: "ecdh_psi",
		MainParty:   "party_a",
		UserName:    "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "j_replica1", jobID)
	assert.Empty(t, env.peer.submits)

	// psi_b depends on psi_a, nothing runs on this side yet.
	assert.Empty(t, env.runner.spawnedTasks())
}

func TestSubmit_RejectsInvalidReplicaID(t *testing.T) {
	env := newTestEnv(t, "party_b")

	_, err := env.manager.Submit(context.Background(), &interfaces.SubmitRequest{
		JobID:       "not-a-job-id",
		MissionName: "ecdh_psi",
		MainParty:   "party_a",
	})
	assert.ErrorContains(t, err, "invalid job id")
}

func TestSubmit_EnforcesJobLimit(t *testing.T) {
	env := newTestEnv(t, "party_a")
	env.manager.opts.MaxJobLimit = 1
	ctx := context.Background()

	_, err := env.manager.Submit(ctx, &interfaces.SubmitRequest{UserName: "alice"})
	require.NoError(t, err)

	_, err = env.manager.Submit(ctx, &interfaces.SubmitRequest{UserName: "alice"})
	assert.ErrorContains(t, err, "job limit exceeded")
}

func TestSubmit_UnknownMission(t *testing.T) {
	env := newTestEnv(t, "party_a")

	_, err := env.manager.Submit(context.Background(), &interfaces.SubmitRequest{
		MissionName: "no_such_mission",
		UserName:    "alice",
	})
	assert.ErrorContains(t, err, "unknown mission")
}

func TestUpdateTask_ClaimIsExclusive(t *testing.T) {
	env := newTestEnv(t, "party_a")
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, &interfaces.SubmitRequest{UserName: "alice"})
	require.NoError(t, err)

	claim := &interfaces.TaskUpdate{TaskName: "psi_a", Status: models.StatusRunning}
	require.NoError(t, env.manager.UpdateTask(ctx, jobID, claim))

	err = env.manager.UpdateTask(ctx, jobID, claim)
	assert.ErrorIs(t, err, ErrTaskClaimed)
}

func TestUpdateTask_SuccessMergesContextAndBroadcasts(t *testing.T) {
	env := newTestEnv(t, "party_a")
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, &interfaces.SubmitRequest{UserName: "alice"})
	require.NoError(t, err)
	require.NoError(t, env.manager.UpdateTask(ctx, jobID, &interfaces.TaskUpdate{
		TaskName: "psi_a", Status: models.StatusRunning,
	}))

	require.NoError(t, env.manager.UpdateTask(ctx, jobID, &interfaces.TaskUpdate{
		TaskName: "psi_a",
		Status:   models.StatusSuccess,
		JobContext: map[string]interface{}{
			"common":  map[string]interface{}{"handshake": "done"},
			"party_a": map[string]interface{}{"secret": "mine"},
			"party_b": map[string]interface{}{"share": "theirs"},
		},
	}))

	job, err := env.storage.Jobs().GetJob(ctx, jobID)
	require.NoError(t, err)
	doc, err := job.Context()
	require.NoError(t, err)
	assert.Contains(t, doc, "party_a")

	// The outbound update for party_b must not leak party_a's subtree.
	var success *interfaces.TaskUpdate
	for _, update := range env.peer.updates {
		if update.Status == models.StatusSuccess {
			success = update
		}
	}
	require.NotNil(t, success)
	assert.Contains(t, success.JobContext, "common")
	assert.Contains(t, success.JobContext, "party_b")
	assert.NotContains(t, success.JobContext, "party_a")
}

func TestUpdateTask_RejectedOnFinishedJob(t *testing.T) {
	env := newTestEnv(t, "party_a")
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, &interfaces.SubmitRequest{UserName: "alice"})
	require.NoError(t, err)
	require.NoError(t, env.manager.Cancel(ctx, jobID))

	err = env.manager.UpdateTask(ctx, jobID, &interfaces.TaskUpdate{
		TaskName: "psi_a", Status: models.StatusRunning,
	})
	assert.ErrorContains(t, err, "no longer accepted")
}

func TestCancel_StopsLocalRunningTasks(t *testing.T) {
	env := newTestEnv(t, "party_a")
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, &interfaces.SubmitRequest{UserName: "alice"})
	require.NoError(t, err)
	require.NoError(t, env.manager.UpdateTask(ctx, jobID, &interfaces.TaskUpdate{
		TaskName: "psi_a", Status: models.StatusRunning,
	}))

	require.NoError(t, env.manager.Cancel(ctx, jobID))

	job, err := env.storage.Jobs().GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, job.Status)

	task, err := env.storage.Tasks().GetTask(ctx, jobID, "psi_a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, task.Status)
	assert.Equal(t, []string{models.TaskKey(jobID, "psi_a")}, env.runner.stoppedTasks())
	assert.Equal(t, []string{"party_b:" + jobID}, env.peer.cancels)

	// Cancel on a finished job is a no-op.
	require.NoError(t, env.manager.Cancel(ctx, jobID))
	assert.Len(t, env.peer.cancels, 1)
}

func TestRerun_ResetsUnfinishedTasks(t *testing.T) {
	env := newTestEnv(t, "party_a")
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, &interfaces.SubmitRequest{UserName: "alice"})
	require.NoError(t, err)
	require.NoError(t, env.manager.UpdateTask(ctx, jobID, &interfaces.TaskUpdate{
		TaskName: "psi_a", Status: models.StatusRunning,
	}))
	require.NoError(t, env.manager.UpdateTask(ctx, jobID, &interfaces.TaskUpdate{
		TaskName: "psi_a", Status: models.StatusFailed, Errors: "boom",
	}))

	job, err := env.storage.Jobs().GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, job.Status)

	require.NoError(t, env.manager.Rerun(ctx, jobID))

	job, err = env.storage.Jobs().GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, job.Status)

	task, err := env.storage.Tasks().GetTask(ctx, jobID, "psi_a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInit, task.Status)
	assert.Empty(t, task.Errors)
	assert.Equal(t, []string{"party_b:" + jobID}, env.peer.reruns)
}

func TestRerun_IgnoredWhileRunning(t *testing.T) {
	env := newTestEnv(t, "party_a")
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, &interfaces.SubmitRequest{UserName: "alice"})
	require.NoError(t, err)

	require.NoError(t, env.manager.Rerun(ctx, jobID))
	assert.Empty(t, env.peer.reruns)
}

func TestRerun_KeepsRunningPeerTasks(t *testing.T) {
	env := newTestEnv(t, "party_b")
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, &interfaces.SubmitRequest{
		JobID:       "j_rerun01",
		MissionName: "ecdh_psi",
		MainParty:   "party_a",
		UserName:    "alice",
	})
	require.NoError(t, err)

	// party_a reported its task running, then the job was canceled on
	// this side. The mirror of the peer-owned task keeps its status.
	require.NoError(t, env.manager.UpdateTask(ctx, jobID, &interfaces.TaskUpdate{
		TaskName: "psi_a", Status: models.StatusRunning,
	}))
	require.NoError(t, env.manager.Cancel(ctx, jobID))

	task, err := env.storage.Tasks().GetTask(ctx, jobID, "psi_a")
	require.NoError(t, err)
	require.Equal(t, models.StatusRunning, task.Status)

	require.NoError(t, env.manager.Rerun(ctx, jobID))

	job, err := env.storage.Jobs().GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, job.Status)

	task, err = env.storage.Tasks().GetTask(ctx, jobID, "psi_a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, task.Status)
}

func TestGetJobDetails_ProgressFormat(t *testing.T) {
	env := newTestEnv(t, "party_a")
	ctx := context.Background()

	jobID, err := env.manager.Submit(ctx, &interfaces.SubmitRequest{UserName: "alice"})
	require.NoError(t, err)

	details, err := env.manager.GetJobDetails(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "0.00%", details.Progress)
	require.Len(t, details.Tasks, 2)
	assert.Equal(t, "NA", details.Tasks[0].StartTime)

	require.NoError(t, env.manager.UpdateTask(ctx, jobID, &interfaces.TaskUpdate{
		TaskName: "psi_a", Status: models.StatusRunning,
	}))
	require.NoError(t, env.manager.UpdateTask(ctx, jobID, &interfaces.TaskUpdate{
		TaskName: "psi_a", Status: models.StatusSuccess,
	}))

	details, err = env.manager.GetJobDetails(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "50.00%", details.Progress)
	// The started task sorts before the unstarted one.
	assert.Equal(t, "psi_a", details.Tasks[0].Name)
}

func TestGetJobs_FiltersByUser(t *testing.T) {
	env := newTestEnv(t, "party_a")
	ctx := context.Background()

	_, err := env.manager.Submit(ctx, &interfaces.SubmitRequest{UserName: "alice"})
	require.NoError(t, err)
	_, err = env.manager.Submit(ctx, &interfaces.SubmitRequest{UserName: "bob"})
	require.NoError(t, err)

	jobs, err := env.manager.GetJobs(ctx, ListOptions{UserName: "alice"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "alice", jobs[0].UserName)

	_, err = env.manager.GetJobs(ctx, ListOptions{Status: "BOGUS"})
	assert.ErrorContains(t, err, "unknown status")
}

func TestGetJobs_DefaultLimit(t *testing.T) {
	env := newTestEnv(t, "party_a")
	env.manager.opts.MaxJobLimit = 50
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := env.manager.Submit(ctx, &interfaces.SubmitRequest{UserName: "alice"})
		require.NoError(t, err)
	}

	jobs, err := env.manager.GetJobs(ctx, ListOptions{UserName: "alice"})
	require.NoError(t, err)
	assert.Len(t, jobs, 10)

	jobs, err = env.manager.GetJobs(ctx, ListOptions{UserName: "alice", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}
