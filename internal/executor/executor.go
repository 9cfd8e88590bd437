package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/contexts"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/jobmanager"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/network"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/operators"
)

// Executor runs one party's tasks in-process. It claims the task,
// resolves the operator configuration and reports the outcome back
// through the job manager.
type Executor struct {
	party       string
	safeWorkDir string
	storage     interfaces.StorageManager
	manager     *jobmanager.Manager
	registry    *operators.Registry
	netGen      *network.Generator
	global      *contexts.GlobalConfigService
	mission     *contexts.MissionContextService
	jobContext  *contexts.JobContextService
	logger      arbor.ILogger
}

// Options bundles the executor dependencies.
type Options struct {
	Party       string
	SafeWorkDir string
	Storage     interfaces.StorageManager
	Manager     *jobmanager.Manager
	Registry    *operators.Registry
	NetGen      *network.Generator
	Global      *contexts.GlobalConfigService
	Mission     *contexts.MissionContextService
	JobContext  *contexts.JobContextService
	Logger      arbor.ILogger
}

// New creates an executor.
func New(opts Options) *Executor {
	return &Executor{
		party:       opts.Party,
		safeWorkDir: opts.SafeWorkDir,
		storage:     opts.Storage,
		manager:     opts.Manager,
		registry:    opts.Registry,
		netGen:      opts.NetGen,
		global:      opts.Global,
		mission:     opts.Mission,
		jobContext:  opts.JobContext,
		logger:      opts.Logger,
	}
}

// Run executes one task to completion. Losing the claim to a
// concurrent executor is not an error, the loser just leaves. ctx is
// canceled when the job is stopped, the operator is expected to notice.
func (e *Executor) Run(ctx context.Context, jobID, taskName string) error {
	err := e.manager.UpdateTask(ctx, jobID, &interfaces.TaskUpdate{
		TaskName: taskName,
		Status:   models.StatusRunning,
	})
	if err != nil {
		if errors.Is(err, jobmanager.ErrTaskClaimed) {
			e.logger.Debug().Str("job_id", jobID).Str("task", taskName).Msg("Task already claimed elsewhere")
			return nil
		}
		return err
	}

	ok, runErr := e.execute(ctx, jobID, taskName)
	if ctx.Err() != nil {
		// The job was stopped underneath us. The cancel path already
		// wrote the task status, a report here would be rejected.
		e.logger.Debug().Str("job_id", jobID).Str("task", taskName).Msg("Task execution canceled")
		return nil
	}

	report := &interfaces.TaskUpdate{
		TaskName: taskName,
		Status:   models.StatusSuccess,
	}
	if runErr != nil || !ok {
		report.Status = models.StatusFailed
		if runErr != nil {
			report.Errors = runErr.Error()
		} else {
			report.Errors = "operator reported failure"
		}
	}
	// The outcome is reported even when the spawn context died, a
	// finished result must never be dropped.
	if err := e.manager.UpdateTask(context.Background(), jobID, report); err != nil {
		e.logger.Error().Err(err).Str("job_id", jobID).Str("task", taskName).Msg("Failed to report task outcome")
		return err
	}
	return nil
}

func (e *Executor) execute(ctx context.Context, jobID, taskName string) (bool, error) {
	job, err := e.storage.Jobs().GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	task, err := e.storage.Tasks().GetTask(ctx, jobID, taskName)
	if err != nil {
		return false, err
	}

	factory, err := e.registry.Lookup(task.ClassPath, task.Class)
	if err != nil {
		return false, err
	}

	cm := contexts.NewConfigManager(e.party, jobID, job.MissionName, e.global, e.mission, e.jobContext)
	args, err := task.ParseArgs()
	if err != nil {
		return false, err
	}
	resolved, err := cm.ResolveArgs(ctx, args)
	if err != nil {
		return false, err
	}
	resolved = common.SanitizePaths(resolved, e.safeWorkDir)
	configMap, err := e.buildConfigMap(job, task)
	if err != nil {
		return false, err
	}

	operator, err := factory(e.party, cm, resolved)
	if err != nil {
		return false, fmt.Errorf("failed to construct operator %s/%s: %w", task.ClassPath, task.Class, err)
	}

	e.logger.Info().
		Str("job_id", jobID).
		Str("task", taskName).
		Str("operator", task.ClassPath+"/"+task.Class).
		Msg("Running operator")
	return operator.Run(ctx, configMap)
}

// buildConfigMap assembles the document handed to the operator: the
// full context document with the submitter's input distributed into
// the party subtrees and the transport descriptor folded into common.
// Every path value is rebased into the sandbox directory.
func (e *Executor) buildConfigMap(job *models.Job, task *models.Task) (map[string]interface{}, error) {
	configMap, err := job.Context()
	if err != nil {
		return nil, err
	}
	commonDoc, _ := configMap[contexts.CommonScope].(map[string]interface{})
	if commonDoc == nil {
		commonDoc = map[string]interface{}{}
	}

	// User input addressed to a party moves into that party's subtree,
	// the remainder lands in common.
	userInput, _ := commonDoc["__user_input"].(map[string]interface{})
	delete(commonDoc, "__user_input")
	for key, value := range userInput {
		forParty, isDoc := value.(map[string]interface{})
		if isDoc && containsString(job.JoinParties, key) {
			subtree, _ := configMap[key].(map[string]interface{})
			if subtree == nil {
				subtree = map[string]interface{}{}
			}
			configMap[key] = common.DeepMerge(subtree, forParty)
			continue
		}
		commonDoc[key] = value
	}

	passphrase := fmt.Sprintf("%s.%s.%s", job.JobID, task.ClassPath, task.Class)
	descriptor, err := e.netGen.Generate(passphrase, job.JoinParties)
	if err != nil {
		return nil, err
	}
	for key, value := range descriptor {
		commonDoc[key] = value
	}
	configMap[contexts.CommonScope] = commonDoc

	return common.SanitizePaths(configMap, e.safeWorkDir), nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
