package contexts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/storage"
)

// CommonScope is the job context subtree visible to every party.
const CommonScope = "common"

// mergeRetryLimit bounds how often a context write rereads after
// losing an optimistic-locking race.
const mergeRetryLimit = 5

// JobContextService reads and merges the per-party context document of
// a job. Reads resolve dotted paths against the caller's party subtree
// first and the common subtree second. Writes deep-merge and retry on
// staleness, so concurrent writers never drop each other's keys.
type JobContextService struct {
	jobs   interfaces.JobStorage
	logger arbor.ILogger
}

// NewJobContextService creates a job context service
func NewJobContextService(jobs interfaces.JobStorage, logger arbor.ILogger) *JobContextService {
	return &JobContextService{jobs: jobs, logger: logger}
}

// Get resolves a dotted path for the given party. The party subtree
// shadows the common subtree.
func (s *JobContextService) Get(ctx context.Context, jobID, party, path string) (interface{}, bool, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	doc, err := job.Context()
	if err != nil {
		return nil, false, err
	}
	value, ok := LookupPath(doc, party, path)
	return value, ok, nil
}

// GetAll returns the whole context document.
func (s *JobContextService) GetAll(ctx context.Context, jobID string) (map[string]interface{}, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return job.Context()
}

// Set writes a single value under the party subtree at the dotted path.
func (s *JobContextService) Set(ctx context.Context, jobID, party, path string, value interface{}) error {
	override := map[string]interface{}{party: nestedValue(path, value)}
	return s.Merge(ctx, jobID, override)
}

// Merge deep-merges the override document into the job context,
// rereading and retrying when a concurrent writer got there first.
func (s *JobContextService) Merge(ctx context.Context, jobID string, override map[string]interface{}) error {
	for attempt := 0; attempt < mergeRetryLimit; attempt++ {
		job, err := s.jobs.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		doc, err := job.Context()
		if err != nil {
			return err
		}
		if err := job.SetContext(common.DeepMerge(doc, override)); err != nil {
			return err
		}
		err = s.jobs.UpdateJob(ctx, job)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrStaleData) {
			return err
		}
		s.logger.Debug().
			Str("job_id", jobID).
			Int("attempt", attempt+1).
			Msg("Job context merge lost optimistic-locking race, rereading")
	}
	return fmt.Errorf("job %s: context merge exhausted %d attempts: %w", jobID, mergeRetryLimit, storage.ErrStaleData)
}

// LookupPath resolves a dotted path against the party subtree first and
// the common subtree second.
func LookupPath(doc map[string]interface{}, party, path string) (interface{}, bool) {
	scopes := []string{party}
	if party != CommonScope {
		scopes = append(scopes, CommonScope)
	}
	for _, scope := range scopes {
		subtree, ok := doc[scope].(map[string]interface{})
		if !ok {
			continue
		}
		if value, found := lookupDotted(subtree, path); found {
			return value, true
		}
	}
	return nil, false
}

func lookupDotted(node map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	for i, part := range parts {
		value, ok := node[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return value, true
		}
		node, ok = value.(map[string]interface{})
		if !ok {
			return nil, false
		}
	}
	return nil, false
}

// nestedValue expands "a.b.c" into {"a":{"b":{"c":value}}}.
func nestedValue(path string, value interface{}) interface{} {
	parts := strings.Split(path, ".")
	result := value
	for i := len(parts) - 1; i >= 0; i-- {
		result = map[string]interface{}{parts[i]: result}
	}
	return result
}
