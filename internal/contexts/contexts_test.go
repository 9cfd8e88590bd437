package contexts

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
	badgerstore "github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/storage/badger"
)

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	mgr, err := badgerstore.NewManager(arbor.NewLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func seedJob(t *testing.T, storage interfaces.StorageManager, jobID string, doc map[string]interface{}) {
	t.Helper()
	job := &models.Job{
		JobID:       jobID,
		MissionName: "ecdh_psi",
		MainParty:   "party_a",
		Status:      models.StatusRunning,
		UserName:    "alice",
	}
	require.NoError(t, job.SetContext(doc))
	require.NoError(t, storage.Jobs().CreateJobWithTasks(context.Background(), job, nil))
}

func TestLookupPath_PartyShadowsCommon(t *testing.T) {
	doc := map[string]interface{}{
		"common":  map[string]interface{}{"curve": "p256", "rounds": float64(3)},
		"party_a": map[string]interface{}{"curve": "curve25519"},
	}

	value, ok := LookupPath(doc, "party_a", "curve")
	require.True(t, ok)
	assert.Equal(t, "curve25519", value)

	value, ok = LookupPath(doc, "party_a", "rounds")
	require.True(t, ok)
	assert.Equal(t, float64(3), value)

	_, ok = LookupPath(doc, "party_a", "missing")
	assert.False(t, ok)
}

func TestLookupPath_DottedTraversal(t *testing.T) {
	doc := map[string]interface{}{
		"party_b": map[string]interface{}{
			"inputs": map[string]interface{}{"path": "/data/b.csv"},
		},
	}

	value, ok := LookupPath(doc, "party_b", "inputs.path")
	require.True(t, ok)
	assert.Equal(t, "/data/b.csv", value)

	// A scalar in the middle of the path is a miss, not an error.
	_, ok = LookupPath(doc, "party_b", "inputs.path.deeper")
	assert.False(t, ok)
}

func TestJobContext_SetAndGet(t *testing.T) {
	store := newTestStorage(t)
	svc := NewJobContextService(store.Jobs(), arbor.NewLogger())
	ctx := context.Background()

	seedJob(t, store, "j_ctx", map[string]interface{}{
		"common": map[string]interface{}{"protocol": "ecdh"},
	})

	require.NoError(t, svc.Set(ctx, "j_ctx", "party_a", "outputs.size", 42))

	value, ok, err := svc.Get(ctx, "j_ctx", "party_a", "outputs.size")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(42), value)

	// Common values stay visible to every party.
	value, ok, err = svc.Get(ctx, "j_ctx", "party_b", "protocol")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ecdh", value)
}

func TestJobContext_MergePreservesConcurrentKeys(t *testing.T) {
	store := newTestStorage(t)
	svc := NewJobContextService(store.Jobs(), arbor.NewLogger())
	ctx := context.Background()

	seedJob(t, store, "j_merge", map[string]interface{}{})

	require.NoError(t, svc.Merge(ctx, "j_merge", map[string]interface{}{
		"party_a": map[string]interface{}{"a_result": 1},
	}))
	require.NoError(t, svc.Merge(ctx, "j_merge", map[string]interface{}{
		"party_b": map[string]interface{}{"b_result": 2},
	}))

	doc, err := svc.GetAll(ctx, "j_merge")
	require.NoError(t, err)
	assert.Contains(t, doc, "party_a")
	assert.Contains(t, doc, "party_b")
}

func TestMissionContext_TTL(t *testing.T) {
	store := newTestStorage(t)
	svc := NewMissionContextService(store.Configs(), arbor.NewLogger())
	ctx := context.Background()

	ok, err := svc.Set(ctx, "ecdh_psi", "session", "abc", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	value, found, err := svc.Get(ctx, "ecdh_psi", "session")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "abc", value)

	time.Sleep(80 * time.Millisecond)

	_, found, err = svc.Get(ctx, "ecdh_psi", "session")
	require.NoError(t, err)
	assert.False(t, found, "expired entry must read as missing")
}

func TestConfigManager_ResolveArgs(t *testing.T) {
	store := newTestStorage(t)
	logger := arbor.NewLogger()
	global := NewGlobalConfigService(store.Configs(), logger)
	mission := NewMissionContextService(store.Configs(), logger)
	jobCtx := NewJobContextService(store.Jobs(), logger)
	ctx := context.Background()

	seedJob(t, store, "j_resolve", map[string]interface{}{
		"party_a": map[string]interface{}{"inputs": map[string]interface{}{"path": "/data/a.csv"}},
	})
	require.NoError(t, global.Set(ctx, "redis_host", "redis.internal"))
	ok, err := mission.Set(ctx, "ecdh_psi", "session", "s-123", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	cm := NewConfigManager("party_a", "j_resolve", "ecdh_psi", global, mission, jobCtx)

	resolved, err := cm.ResolveArgs(ctx, map[string]interface{}{
		"input":   "${job_context.inputs.path}",
		"session": "${mission_context.session}",
		"host":    "${global_config.redis_host}",
		"plain":   "unchanged",
		"nested":  map[string]interface{}{"again": "${global_config.redis_host}"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/data/a.csv", resolved["input"])
	assert.Equal(t, "s-123", resolved["session"])
	assert.Equal(t, "redis.internal", resolved["host"])
	assert.Equal(t, "unchanged", resolved["plain"])
	assert.Equal(t, "redis.internal", resolved["nested"].(map[string]interface{})["again"])
}

func TestConfigManager_ResolveArgs_MissingReferenceFails(t *testing.T) {
	store := newTestStorage(t)
	logger := arbor.NewLogger()
	global := NewGlobalConfigService(store.Configs(), logger)
	mission := NewMissionContextService(store.Configs(), logger)
	jobCtx := NewJobContextService(store.Jobs(), logger)

	seedJob(t, store, "j_missing", map[string]interface{}{})
	cm := NewConfigManager("party_a", "j_missing", "ecdh_psi", global, mission, jobCtx)

	_, err := cm.ResolveArgs(context.Background(), map[string]interface{}{
		"input": "${job_context.nothing.here}",
	})
	assert.ErrorContains(t, err, "no value")
}
