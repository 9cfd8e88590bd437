package dag

import (
	"fmt"
	"sort"

	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
)

// DAG is the dependency view over the persisted tasks of one job. It
// is rebuilt from storage on every scheduling decision, the stored
// task rows are the single source of truth.
type DAG struct {
	jobID string
	nodes map[string]*models.Task
}

// Build constructs the DAG for a job from its mission and its task
// rows. Every mission operator must have a task row, every dependency
// must name an existing task and the graph must be acyclic.
func Build(jobID string, missionDAG *models.MissionDAG, tasks []*models.Task) (*DAG, error) {
	nodes := make(map[string]*models.Task, len(tasks))
	for _, task := range tasks {
		if _, dup := nodes[task.Name]; dup {
			return nil, fmt.Errorf("job %s: duplicate task %s", jobID, task.Name)
		}
		nodes[task.Name] = task
	}
	for name := range missionDAG.Tasks {
		if _, ok := nodes[name]; !ok {
			return nil, fmt.Errorf("job %s: mission operator %s has no task row", jobID, name)
		}
	}
	for _, task := range tasks {
		for _, dep := range task.Depends {
			if _, ok := nodes[dep]; !ok {
				return nil, fmt.Errorf("job %s: task %s depends on unknown task %s", jobID, task.Name, dep)
			}
		}
	}

	d := &DAG{jobID: jobID, nodes: nodes}
	if err := d.checkAcyclic(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DAG) checkAcyclic() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(d.nodes))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("job %s: dependency cycle through task %s", d.jobID, name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range d.nodes[name].Depends {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for name := range d.nodes {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// ReadyTasks returns the tasks of the given party whose dependencies
// have all succeeded and that have not started yet, ordered by name.
func (d *DAG) ReadyTasks(party string) []*models.Task {
	var ready []*models.Task
	for _, task := range d.nodes {
		if task.Party != party || task.Status != models.StatusInit {
			continue
		}
		if d.dependsSatisfied(task) {
			ready = append(ready, task)
		}
	}
	sort.Slice(ready, func(i, k int) bool {
		return ready[i].Name < ready[k].Name
	})
	return ready
}

// RunningTasks returns the given party's tasks currently running,
// ordered by name.
func (d *DAG) RunningTasks(party string) []*models.Task {
	var running []*models.Task
	for _, task := range d.nodes {
		if task.Party == party && task.Status == models.StatusRunning {
			running = append(running, task)
		}
	}
	sort.Slice(running, func(i, k int) bool {
		return running[i].Name < running[k].Name
	})
	return running
}

func (d *DAG) dependsSatisfied(task *models.Task) bool {
	for _, dep := range task.Depends {
		if d.nodes[dep].Status != models.StatusSuccess {
			return false
		}
	}
	return true
}

// JudgeJobStatus derives the job status from its task statuses. A
// failure dominates a cancellation, which dominates everything but
// total success.
func (d *DAG) JudgeJobStatus() models.Status {
	failed := false
	canceled := false
	allSuccess := true
	for _, task := range d.nodes {
		switch task.Status {
		case models.StatusFailed:
			failed = true
		case models.StatusCanceled:
			canceled = true
		}
		if task.Status != models.StatusSuccess {
			allSuccess = false
		}
	}
	switch {
	case failed:
		return models.StatusFailed
	case canceled:
		return models.StatusCanceled
	case allSuccess:
		return models.StatusSuccess
	default:
		return models.StatusRunning
	}
}

// Progress returns the finished fraction of the job's tasks.
func (d *DAG) Progress() float64 {
	if len(d.nodes) == 0 {
		return 0
	}
	finished := 0
	for _, task := range d.nodes {
		if task.Status == models.StatusSuccess {
			finished++
		}
	}
	return float64(finished) / float64(len(d.nodes))
}
