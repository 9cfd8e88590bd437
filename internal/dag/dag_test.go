package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
)

func task(name, party string, status models.Status, depends ...string) *models.Task {
	return &models.Task{
		JobID:   "j_dag",
		Name:    name,
		Party:   party,
		Status:  status,
		Depends: depends,
	}
}

// missionFor derives the mission view matching the given task rows.
func missionFor(tasks ...*models.Task) *models.MissionDAG {
	m := &models.MissionDAG{Tasks: map[string]*models.OperatorSpec{}}
	for _, task := range tasks {
		m.Tasks[task.Name] = &models.OperatorSpec{Party: task.Party, Depends: task.Depends}
	}
	return m
}

func build(tasks ...*models.Task) (*DAG, error) {
	return Build("j_dag", missionFor(tasks...), tasks)
}

func TestBuild_RejectsUnknownDependency(t *testing.T) {
	_, err := build(task("a", "party_a", models.StatusInit, "ghost"))
	assert.ErrorContains(t, err, "unknown task")
}

func TestBuild_RejectsDuplicateTask(t *testing.T) {
	_, err := build(
		task("a", "party_a", models.StatusInit),
		task("a", "party_b", models.StatusInit),
	)
	assert.ErrorContains(t, err, "duplicate task")
}

func TestBuild_RejectsCycle(t *testing.T) {
	_, err := build(
		task("a", "party_a", models.StatusInit, "b"),
		task("b", "party_a", models.StatusInit, "a"),
	)
	assert.ErrorContains(t, err, "cycle")
}

func TestBuild_RequiresTaskRowPerOperator(t *testing.T) {
	full := []*models.Task{
		task("a", "party_a", models.StatusInit),
		task("b", "party_b", models.StatusInit, "a"),
	}

	_, err := Build("j_dag", missionFor(full...), full[:1])
	assert.ErrorContains(t, err, "has no task row")
}

func TestReadyTasks_DependenciesGateExecution(t *testing.T) {
	d, err := build(
		task("prepare_a", "party_a", models.StatusSuccess),
		task("prepare_b", "party_b", models.StatusSuccess),
		task("psi_a", "party_a", models.StatusInit, "prepare_a", "prepare_b"),
		task("psi_b", "party_b", models.StatusInit, "prepare_a", "prepare_b"),
		task("report_a", "party_a", models.StatusInit, "psi_a"),
	)
	require.NoError(t, err)

	ready := d.ReadyTasks("party_a")
	require.Len(t, ready, 1)
	assert.Equal(t, "psi_a", ready[0].Name)

	ready = d.ReadyTasks("party_b")
	require.Len(t, ready, 1)
	assert.Equal(t, "psi_b", ready[0].Name)
}

func TestReadyTasks_SkipsStartedTasks(t *testing.T) {
	d, err := build(
		task("a", "party_a", models.StatusRunning),
		task("b", "party_a", models.StatusSuccess),
	)
	require.NoError(t, err)

	assert.Empty(t, d.ReadyTasks("party_a"))
	running := d.RunningTasks("party_a")
	require.Len(t, running, 1)
	assert.Equal(t, "a", running[0].Name)
}

func TestJudgeJobStatus(t *testing.T) {
	cases := []struct {
		name     string
		statuses []models.Status
		want     models.Status
	}{
		{"all success", []models.Status{models.StatusSuccess, models.StatusSuccess}, models.StatusSuccess},
		{"failure dominates", []models.Status{models.StatusSuccess, models.StatusFailed, models.StatusCanceled}, models.StatusFailed},
		{"cancellation beats progress", []models.Status{models.StatusSuccess, models.StatusCanceled, models.StatusRunning}, models.StatusCanceled},
		{"otherwise running", []models.Status{models.StatusSuccess, models.StatusRunning, models.StatusInit}, models.StatusRunning},
		{"fresh job running", []models.Status{models.StatusInit, models.StatusInit}, models.StatusRunning},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tasks := make([]*models.Task, len(tc.statuses))
			for i, status := range tc.statuses {
				tasks[i] = task(string(rune('a'+i)), "party_a", status)
			}
			d, err := build(tasks...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.JudgeJobStatus())
		})
	}
}

func TestProgress(t *testing.T) {
	d, err := build(
		task("a", "party_a", models.StatusSuccess),
		task("b", "party_a", models.StatusSuccess),
		task("c", "party_b", models.StatusRunning),
		task("d", "party_b", models.StatusInit),
	)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, d.Progress(), 1e-9)
}
