package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/contexts"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/dag"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/storage"
)

// ErrTaskClaimed reports that another executor already moved the task
// out of INIT. The loser drops its attempt silently.
var ErrTaskClaimed = errors.New("task already claimed")

// statusRetryLimit bounds rereads after an update loses an
// optimistic-locking race.
const statusRetryLimit = 3

// Options carries the scheduling policy of a manager.
type Options struct {
	Party          string
	MaxJobLimit    int
	DefaultMission string
}

// Manager coordinates the job lifecycle across parties. Every party of
// a job runs its own manager over its own replica of the job and task
// rows, peers exchange status through the peer client.
type Manager struct {
	opts       Options
	storage    interfaces.StorageManager
	jobContext *contexts.JobContextService
	peers      interfaces.PeerClient
	logger     arbor.ILogger

	mu     sync.RWMutex
	runner interfaces.TaskRunner
}

// NewManager creates a job manager.
func NewManager(opts Options, storageManager interfaces.StorageManager, jobContext *contexts.JobContextService, peers interfaces.PeerClient, logger arbor.ILogger) *Manager {
	return &Manager{
		opts:       opts,
		storage:    storageManager,
		jobContext: jobContext,
		peers:      peers,
		logger:     logger,
	}
}

// SetTaskRunner wires the executor after construction, the runner
// needs the manager to report status back.
func (m *Manager) SetTaskRunner(runner interfaces.TaskRunner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runner = runner
}

func (m *Manager) taskRunner() interfaces.TaskRunner {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runner
}

// Party returns the party this manager schedules for.
func (m *Manager) Party() string {
	return m.opts.Party
}

// Submit creates a job from a mission template. A request without a
// job ID is a local submission: the ID is minted here, this party
// becomes the main party and the creation is replicated to every
// other participant before the local commit. A request carrying a job
// ID is a replica arriving from the main party.
func (m *Manager) Submit(ctx context.Context, req *interfaces.SubmitRequest) (string, error) {
	local := req.JobID == ""
	if local {
		req.JobID = common.NewJobID()
		if req.MainParty == "" {
			req.MainParty = m.opts.Party
		}
	} else if !common.IsJobID(req.JobID) {
		return "", common.NewValidationError("invalid job id %q", req.JobID)
	}

	running, err := m.storage.Jobs().CountJobsByStatus(ctx, models.StatusRunning)
	if err != nil {
		return "", err
	}
	if running >= m.opts.MaxJobLimit {
		return "", common.NewValidationError("job limit exceeded: %d jobs already running", running)
	}

	missionName := req.MissionName
	if missionName == "" {
		missionName = m.opts.DefaultMission
	}
	mission, err := m.storage.Missions().GetMission(ctx, missionName, req.MissionVersion)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", common.NewValidationError("unknown mission %q", missionName)
		}
		return "", err
	}
	missionDAG, err := mission.ParseDAG()
	if err != nil {
		return "", err
	}

	tasks, joinParties, err := buildTasks(req.JobID, missionDAG)
	if err != nil {
		return "", err
	}
	if !containsString(joinParties, m.opts.Party) {
		return "", common.NewValidationError("mission %q assigns no task to party %s", missionName, m.opts.Party)
	}

	job := &models.Job{
		JobID:          req.JobID,
		MissionName:    mission.Name,
		MissionVersion: mission.Version,
		MainParty:      req.MainParty,
		JoinParties:    joinParties,
		Status:         models.StatusRunning,
		UserName:       req.UserName,
	}
	if err := job.SetContext(initialContext(job, missionDAG, req.Params)); err != nil {
		return "", err
	}

	// The main party replicates before committing locally. A peer that
	// accepted the job keeps it even when a later peer refuses, the
	// judge on that side never sees local tasks start.
	if local && job.IsMainParty(m.opts.Party) {
		replica := &interfaces.SubmitRequest{
			JobID:          job.JobID,
			MissionName:    mission.Name,
			MissionVersion: mission.Version,
			MainParty:      job.MainParty,
			UserName:       job.UserName,
			Params:         req.Params,
		}
		for _, party := range otherParties(job, m.opts.Party) {
			if err := m.peers.Submit(ctx, party, replica); err != nil {
				return "", fmt.Errorf("failed to replicate job %s to %s: %w", job.JobID, party, err)
			}
		}
	}

	if err := m.storage.Jobs().CreateJobWithTasks(ctx, job, tasks); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return "", common.NewValidationError("job %s already exists", job.JobID)
		}
		return "", err
	}
	m.logger.Info().
		Str("job_id", job.JobID).
		Str("mission", mission.Name).
		Str("main_party", job.MainParty).
		Bool("local_origin", local).
		Msg("Job created")

	if err := m.TriggerJob(ctx, job.JobID); err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Initial trigger failed")
	}
	return job.JobID, nil
}

// Rerun restarts a failed or canceled job. Failed and canceled tasks
// return to the initial state, everything else keeps its status,
// including running mirrors of peer-owned tasks. Reruns on a job in
// any other state are ignored.
func (m *Manager) Rerun(ctx context.Context, jobID string) error {
	job, err := m.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.StatusFailed && job.Status != models.StatusCanceled {
		m.logger.Debug().Str("job_id", jobID).Str("status", job.Status.String()).Msg("Rerun ignored, job not restartable")
		return nil
	}

	if job.IsMainParty(m.opts.Party) {
		for _, party := range otherParties(job, m.opts.Party) {
			if err := m.peers.Rerun(ctx, party, jobID); err != nil {
				return fmt.Errorf("failed to replicate rerun of %s to %s: %w", jobID, party, err)
			}
		}
	}

	tasks, err := m.storage.Tasks().GetTasksByJob(ctx, jobID)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if task.Status != models.StatusFailed && task.Status != models.StatusCanceled {
			continue
		}
		if err := m.updateTaskWithRetry(ctx, task, func(t *models.Task) { t.Reset() }); err != nil {
			return err
		}
	}

	if err := m.updateJobStatus(ctx, job, models.StatusRunning); err != nil {
		return err
	}
	m.logger.Info().Str("job_id", jobID).Msg("Job rerun started")
	return m.TriggerJob(ctx, jobID)
}

// Cancel stops a job. The cancellation is replicated by the main
// party, marked locally and pushed to running local executors. Cancel
// on an already finished job is a no-op.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	job, err := m.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}

	if job.IsMainParty(m.opts.Party) {
		for _, party := range otherParties(job, m.opts.Party) {
			if err := m.peers.Cancel(ctx, party, jobID); err != nil {
				// A peer that cannot be reached must not keep the local
				// side running forever.
				m.logger.Warn().Err(err).Str("job_id", jobID).Str("party", party).Msg("Cancel replication failed")
			}
		}
	}

	if err := m.updateJobStatus(ctx, job, models.StatusCanceled); err != nil {
		return err
	}
	if err := m.stopLocalRunningTasks(ctx, jobID); err != nil {
		return err
	}
	m.logger.Info().Str("job_id", jobID).Msg("Job canceled")
	return nil
}

// UpdateTask applies a task status report, merges the attached context
// and advances the job. Reports for finished jobs are rejected. A
// RUNNING report claims the task, losing the claim returns
// ErrTaskClaimed.
func (m *Manager) UpdateTask(ctx context.Context, jobID string, update *interfaces.TaskUpdate) error {
	job, err := m.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return common.NewValidationError("job %s is %s, task updates are no longer accepted", jobID, job.Status)
	}
	task, err := m.storage.Tasks().GetTask(ctx, jobID, update.TaskName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return common.NewValidationError("job %s has no task %q", jobID, update.TaskName)
		}
		return err
	}

	switch update.Status {
	case models.StatusRunning:
		if err := m.claimTask(ctx, task); err != nil {
			return err
		}
	case models.StatusSuccess:
		if err := m.finishTask(ctx, job, task, update, func(t *models.Task) { t.Success() }); err != nil {
			return err
		}
	case models.StatusFailed:
		if err := m.finishTask(ctx, job, task, update, func(t *models.Task) { t.Fail(update.Errors) }); err != nil {
			return err
		}
	case models.StatusCanceled:
		if err := m.updateTaskWithRetry(ctx, task, func(t *models.Task) { t.Cancel() }); err != nil {
			return err
		}
	default:
		return common.NewValidationError("unsupported task status %q", update.Status)
	}

	m.logger.Info().
		Str("job_id", jobID).
		Str("task", update.TaskName).
		Str("status", update.Status.String()).
		Msg("Task updated")

	// Reports for this party's own tasks come from local executors and
	// are pushed to the peers. The stored row decides ownership, a
	// report arriving from a peer concerns that peer's task and is not
	// replicated again.
	if task.Party == m.opts.Party {
		m.broadcastTaskUpdate(ctx, job, update)
	}

	if update.Status.IsTerminal() {
		return m.TriggerJob(ctx, jobID)
	}
	return nil
}

// TriggerJob re-evaluates the job's DAG: it derives the job status
// from the task statuses, spawns every local task that became ready
// and stops local work when the job reached a terminal state.
func (m *Manager) TriggerJob(ctx context.Context, jobID string) error {
	job, err := m.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}
	tasks, err := m.storage.Tasks().GetTasksByJob(ctx, jobID)
	if err != nil {
		return err
	}
	missionDAG, err := m.missionDAG(ctx, job)
	if err != nil {
		return err
	}
	graph, err := dag.Build(jobID, missionDAG, tasks)
	if err != nil {
		return err
	}

	status := graph.JudgeJobStatus()
	if status != job.Status {
		if err := m.updateJobStatus(ctx, job, status); err != nil {
			return err
		}
		m.logger.Info().Str("job_id", jobID).Str("status", status.String()).Msg("Job status advanced")
	}

	if status.IsTerminal() {
		if status != models.StatusSuccess {
			return m.stopLocalRunningTasks(ctx, jobID)
		}
		return nil
	}

	runner := m.taskRunner()
	if runner == nil {
		return nil
	}
	for _, task := range graph.ReadyTasks(m.opts.Party) {
		m.logger.Debug().Str("job_id", jobID).Str("task", task.Name).Msg("Spawning ready task")
		runner.SpawnTask(jobID, task.Name)
	}
	return nil
}

// claimTask moves a task from INIT to RUNNING. Exactly one caller wins.
func (m *Manager) claimTask(ctx context.Context, task *models.Task) error {
	for attempt := 0; attempt < statusRetryLimit; attempt++ {
		if task.Status != models.StatusInit {
			return fmt.Errorf("task %s is %s: %w", task.Key(), task.Status, ErrTaskClaimed)
		}
		task.Run()
		err := m.storage.Tasks().UpdateTask(ctx, task)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrStaleData) {
			return err
		}
		fresh, rerr := m.storage.Tasks().GetTask(ctx, task.JobID, task.Name)
		if rerr != nil {
			return rerr
		}
		*task = *fresh
	}
	return fmt.Errorf("task %s: claim exhausted retries: %w", task.Key(), storage.ErrStaleData)
}

// finishTask applies a terminal transition and merges any attached
// context into the job document in the same transaction.
func (m *Manager) finishTask(ctx context.Context, job *models.Job, task *models.Task, update *interfaces.TaskUpdate, transition func(*models.Task)) error {
	if len(update.JobContext) == 0 {
		return m.updateTaskWithRetry(ctx, task, transition)
	}

	for attempt := 0; attempt < statusRetryLimit; attempt++ {
		doc, err := job.Context()
		if err != nil {
			return err
		}
		if err := job.SetContext(common.DeepMerge(doc, update.JobContext)); err != nil {
			return err
		}
		transition(task)

		err = m.storage.Tasks().UpdateTaskAndJob(ctx, task, job)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrStaleData) {
			return err
		}
		freshJob, rerr := m.getJob(ctx, job.JobID)
		if rerr != nil {
			return rerr
		}
		freshTask, rerr := m.storage.Tasks().GetTask(ctx, task.JobID, task.Name)
		if rerr != nil {
			return rerr
		}
		*job = *freshJob
		*task = *freshTask
	}
	return fmt.Errorf("task %s: update exhausted retries: %w", task.Key(), storage.ErrStaleData)
}

func (m *Manager) updateTaskWithRetry(ctx context.Context, task *models.Task, transition func(*models.Task)) error {
	for attempt := 0; attempt < statusRetryLimit; attempt++ {
		transition(task)
		err := m.storage.Tasks().UpdateTask(ctx, task)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrStaleData) {
			return err
		}
		fresh, rerr := m.storage.Tasks().GetTask(ctx, task.JobID, task.Name)
		if rerr != nil {
			return rerr
		}
		*task = *fresh
	}
	return fmt.Errorf("task %s: update exhausted retries: %w", task.Key(), storage.ErrStaleData)
}

// updateJobStatus applies a status change under optimistic locking,
// rereading on staleness. A terminal status written by a concurrent
// updater is accepted as the final word.
func (m *Manager) updateJobStatus(ctx context.Context, job *models.Job, status models.Status) error {
	for attempt := 0; attempt < statusRetryLimit; attempt++ {
		job.Status = status
		err := m.storage.Jobs().UpdateJob(ctx, job)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrStaleData) {
			return err
		}
		fresh, rerr := m.getJob(ctx, job.JobID)
		if rerr != nil {
			return rerr
		}
		*job = *fresh
		if job.Status.IsTerminal() && job.Status != status {
			return nil
		}
	}
	return fmt.Errorf("job %s: status update exhausted retries: %w", job.JobID, storage.ErrStaleData)
}

// stopLocalRunningTasks cancels this party's running tasks and signals
// their executors.
func (m *Manager) stopLocalRunningTasks(ctx context.Context, jobID string) error {
	tasks, err := m.storage.Tasks().GetTasksByJob(ctx, jobID)
	if err != nil {
		return err
	}
	runner := m.taskRunner()
	for _, task := range tasks {
		if task.Party != m.opts.Party || task.Status != models.StatusRunning {
			continue
		}
		if err := m.updateTaskWithRetry(ctx, task, func(t *models.Task) { t.Cancel() }); err != nil {
			return err
		}
		if runner != nil {
			runner.StopTask(jobID, task.Name)
		}
	}
	return nil
}

// broadcastTaskUpdate pushes a local task report to every other party.
// Each recipient receives only the common subtree and its own subtree
// of the job context. Peer failures are logged, the local state is
// already committed and the peers converge on the next report.
func (m *Manager) broadcastTaskUpdate(ctx context.Context, job *models.Job, update *interfaces.TaskUpdate) {
	doc, err := job.Context()
	if err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("Cannot read context for broadcast")
		doc = map[string]interface{}{}
	}
	for _, party := range otherParties(job, m.opts.Party) {
		outbound := &interfaces.TaskUpdate{
			TaskName: update.TaskName,
			Status:   update.Status,
			Errors:   update.Errors,
		}
		if update.Status == models.StatusSuccess {
			outbound.JobContext = filterContextFor(doc, party)
		}
		if err := m.peers.UpdateTask(ctx, party, job.JobID, outbound); err != nil {
			m.logger.Warn().
				Err(err).
				Str("job_id", job.JobID).
				Str("task", update.TaskName).
				Str("party", party).
				Msg("Task update replication failed")
		}
	}
}

// filterContextFor trims the context document to what the recipient
// party may see.
func filterContextFor(doc map[string]interface{}, party string) map[string]interface{} {
	filtered := map[string]interface{}{}
	if commonDoc, ok := doc[contexts.CommonScope]; ok {
		filtered[contexts.CommonScope] = commonDoc
	}
	if partyDoc, ok := doc[party]; ok {
		filtered[party] = partyDoc
	}
	return filtered
}

// GetJob returns the stored job record.
func (m *Manager) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return m.getJob(ctx, jobID)
}

func (m *Manager) missionDAG(ctx context.Context, job *models.Job) (*models.MissionDAG, error) {
	mission, err := m.storage.Missions().GetMission(ctx, job.MissionName, job.MissionVersion)
	if err != nil {
		return nil, err
	}
	return mission.ParseDAG()
}

func (m *Manager) getJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := m.storage.Jobs().GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, common.NewValidationError("unknown job %q", jobID)
		}
		return nil, err
	}
	return job, nil
}

// initialContext builds the context document of a fresh job: an empty
// subtree per participating party and a common subtree carrying the
// job ID and the submitter's raw parameters under __user_input.
// Mission-level defaults sit underneath so operators can override them.
func initialContext(job *models.Job, missionDAG *models.MissionDAG, userInput map[string]interface{}) map[string]interface{} {
	if userInput == nil {
		userInput = map[string]interface{}{}
	}
	doc := make(map[string]interface{}, len(job.JoinParties)+1)
	for _, party := range job.JoinParties {
		doc[party] = map[string]interface{}{}
	}
	doc[contexts.CommonScope] = map[string]interface{}{
		"__user_input": userInput,
		"job_id":       job.JobID,
	}
	if len(missionDAG.Params) > 0 {
		doc = common.DeepMerge(missionDAG.Params, doc)
	}
	return doc
}

// buildTasks materializes task rows from a mission DAG and returns the
// distinct sorted set of participating parties.
func buildTasks(jobID string, missionDAG *models.MissionDAG) ([]*models.Task, []string, error) {
	tasks := make([]*models.Task, 0, len(missionDAG.Tasks))
	partySet := make(map[string]bool)
	for name, spec := range missionDAG.Tasks {
		task := &models.Task{
			JobID:     jobID,
			Name:      name,
			Party:     spec.Party,
			Class:     spec.Class,
			ClassPath: spec.ClassPath,
			Depends:   spec.Depends,
			Status:    models.StatusInit,
		}
		if err := task.SetArgs(spec.Args); err != nil {
			return nil, nil, err
		}
		tasks = append(tasks, task)
		partySet[spec.Party] = true
	}
	if _, err := dag.Build(jobID, missionDAG, tasks); err != nil {
		return nil, nil, err
	}

	parties := make([]string, 0, len(partySet))
	for party := range partySet {
		parties = append(parties, party)
	}
	sort.Strings(parties)
	return tasks, parties, nil
}

func otherParties(job *models.Job, self string) []string {
	others := make([]string, 0, len(job.JoinParties))
	for _, party := range job.JoinParties {
		if party != self {
			others = append(others, party)
		}
	}
	return others
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
