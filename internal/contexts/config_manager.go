package contexts

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Placeholder prefixes recognized in operator arguments.
const (
	placeholderJobContext     = "job_context."
	placeholderMissionContext = "mission_context."
	placeholderGlobalConfig   = "global_config."
)

// ConfigManager is the resolution facade handed to an operator run. It
// scopes context access to one job, one mission and one party.
type ConfigManager struct {
	party       string
	jobID       string
	missionName string
	global      *GlobalConfigService
	mission     *MissionContextService
	job         *JobContextService
}

// NewConfigManager creates a config manager scoped to one task run.
func NewConfigManager(party, jobID, missionName string, global *GlobalConfigService, mission *MissionContextService, job *JobContextService) *ConfigManager {
	return &ConfigManager{
		party:       party,
		jobID:       jobID,
		missionName: missionName,
		global:      global,
		mission:     mission,
		job:         job,
	}
}

// Party returns the party this manager is scoped to.
func (m *ConfigManager) Party() string { return m.party }

// JobID returns the job this manager is scoped to.
func (m *ConfigManager) JobID() string { return m.jobID }

// GetJobContext resolves a dotted path in the job context, party
// subtree first.
func (m *ConfigManager) GetJobContext(ctx context.Context, path string) (interface{}, bool, error) {
	return m.job.Get(ctx, m.jobID, m.party, path)
}

// SetJobContext writes a value under this party's subtree.
func (m *ConfigManager) SetJobContext(ctx context.Context, path string, value interface{}) error {
	return m.job.Set(ctx, m.jobID, m.party, path, value)
}

// GetMissionContext reads a mission-scoped value, honoring TTL.
func (m *ConfigManager) GetMissionContext(ctx context.Context, key string) (string, bool, error) {
	return m.mission.Get(ctx, m.missionName, key)
}

// SetMissionContext writes a mission-scoped value. A false return
// means a concurrent writer won the race.
func (m *ConfigManager) SetMissionContext(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return m.mission.Set(ctx, m.missionName, key, value, ttl)
}

// GetGlobalConfig reads a platform-wide setting.
func (m *ConfigManager) GetGlobalConfig(ctx context.Context, key string) (string, bool, error) {
	return m.global.Get(ctx, key)
}

// ResolveArgs walks the argument document and substitutes
// ${job_context.*}, ${mission_context.*} and ${global_config.*}
// placeholders with their current values. Unresolvable placeholders
// fail, half-configured operators are worse than loud errors.
func (m *ConfigManager) ResolveArgs(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		resolved, err := m.resolveValue(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("arg %s: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func (m *ConfigManager) resolveValue(ctx context.Context, v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		return m.ResolveArgs(ctx, val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			resolved, err := m.resolveValue(ctx, item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case string:
		return m.resolveString(ctx, val)
	default:
		return v, nil
	}
}

func (m *ConfigManager) resolveString(ctx context.Context, s string) (interface{}, error) {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return s, nil
	}
	ref := s[2 : len(s)-1]
	switch {
	case strings.HasPrefix(ref, placeholderJobContext):
		path := strings.TrimPrefix(ref, placeholderJobContext)
		value, ok, err := m.GetJobContext(ctx, path)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("job context has no value at %q", path)
		}
		return value, nil
	case strings.HasPrefix(ref, placeholderMissionContext):
		key := strings.TrimPrefix(ref, placeholderMissionContext)
		value, ok, err := m.GetMissionContext(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("mission context has no value for %q", key)
		}
		return value, nil
	case strings.HasPrefix(ref, placeholderGlobalConfig):
		key := strings.TrimPrefix(ref, placeholderGlobalConfig)
		value, ok, err := m.GetGlobalConfig(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("global config has no value for %q", key)
		}
		return value, nil
	default:
		// Unknown placeholder forms pass through verbatim.
		return s, nil
	}
}
