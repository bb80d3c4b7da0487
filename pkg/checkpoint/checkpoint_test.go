package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorekeeper/chronicle/pkg/types"
)

func TestCheckpointManager(t *testing.T) {
	// Create temporary directory for tests
	tmpDir, err := os.MkdirTemp("", "chronicle-checkpoint-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()

	t.Run("Create manager with custom directory", func(t *testing.T) {
		manager, err := NewCheckpointManager(tmpDir)
		require.NoError(t, err)
		assert.Equal(t, tmpDir, manager.GetCheckpointDir())
	})

	t.Run("Create manager with default directory", func(t *testing.T) {
		manager, err := NewCheckpointManager("")
		require.NoError(t, err)
		expectedDir := filepath.Join(os.TempDir(), "chronicle-checkpoints")
		assert.Equal(t, expectedDir, manager.GetCheckpointDir())
	})

	t.Run("Save and load checkpoint", func(t *testing.T) {
		manager, err := NewCheckpointManager(tmpDir)
		require.NoError(t, err)

		checkpoint := &RunCheckpoint{
			RunID:         "run-123",
			UserID:        "user-456",
			Stage:         StageSegmented,
			CreatedAt:     time.Now(),
			LastUpdatedAt: time.Now(),
			Text:          "I moved to Berlin. Before that I lived in Madrid.",
			Source:        types.SourceChat,
			Units: []types.NarrativeUnit{
				{UnitID: "u1", Text: "I moved to Berlin", NarrativeOrder: 0},
				{UnitID: "u2", Text: "Before that I lived in Madrid", NarrativeOrder: 1},
			},
		}

		// Save checkpoint
		err = manager.Save(ctx, checkpoint)
		require.NoError(t, err)

		// Load checkpoint
		loaded, err := manager.Load(ctx, "run-123")
		require.NoError(t, err)
		require.NotNil(t, loaded)

		assert.Equal(t, checkpoint.RunID, loaded.RunID)
		assert.Equal(t, checkpoint.UserID, loaded.UserID)
		assert.Equal(t, checkpoint.Stage, loaded.Stage)
		assert.Equal(t, checkpoint.Text, loaded.Text)
		assert.Equal(t, len(checkpoint.Units), len(loaded.Units))
		assert.Equal(t, "u1", loaded.Units[0].UnitID)
	})

	t.Run("Save preserves stage outputs through JSON", func(t *testing.T) {
		manager, err := NewCheckpointManager(tmpDir)
		require.NoError(t, err)

		start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		checkpoint := &RunCheckpoint{
			RunID:  "run-outputs",
			UserID: "user-456",
			Stage:  StageResolved,
			Text:   "I started a new job.",
			Hypotheses: []types.TemporalHypothesis{
				{UnitID: "u1", StartDate: &start, Confidence: 0.9},
			},
			Resolved: []types.ResolvedUnit{
				{
					Unit:       types.NarrativeUnit{UnitID: "u1", Text: "I started a new job"},
					StartDate:  start,
					Confidence: 0.9,
				},
			},
		}

		require.NoError(t, manager.Save(ctx, checkpoint))

		loaded, err := manager.Load(ctx, "run-outputs")
		require.NoError(t, err)
		require.NotNil(t, loaded)
		require.Len(t, loaded.Hypotheses, 1)
		require.NotNil(t, loaded.Hypotheses[0].StartDate)
		assert.True(t, loaded.Hypotheses[0].StartDate.Equal(start))
		require.Len(t, loaded.Resolved, 1)
		assert.True(t, loaded.Resolved[0].StartDate.Equal(start))
		assert.InDelta(t, 0.9, loaded.Resolved[0].Confidence, 1e-9)
	})

	t.Run("Load non-existent checkpoint", func(t *testing.T) {
		manager, err := NewCheckpointManager(tmpDir)
		require.NoError(t, err)

		loaded, err := manager.Load(ctx, "non-existent")
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("Delete checkpoint", func(t *testing.T) {
		manager, err := NewCheckpointManager(tmpDir)
		require.NoError(t, err)

		checkpoint := &RunCheckpoint{
			RunID:     "run-delete",
			UserID:    "user-456",
			Stage:     StageSegmented,
			CreatedAt: time.Now(),
		}

		// Save and verify exists
		err = manager.Save(ctx, checkpoint)
		require.NoError(t, err)

		exists, err := manager.Exists(ctx, "run-delete")
		require.NoError(t, err)
		assert.True(t, exists)

		// Delete and verify doesn't exist
		err = manager.Delete(ctx, "run-delete")
		require.NoError(t, err)

		exists, err = manager.Exists(ctx, "run-delete")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Update stage", func(t *testing.T) {
		manager, err := NewCheckpointManager(tmpDir)
		require.NoError(t, err)

		checkpoint := &RunCheckpoint{
			RunID:     "run-stage",
			UserID:    "user-456",
			Stage:     StageSegmented,
			CreatedAt: time.Now(),
		}

		err = manager.Save(ctx, checkpoint)
		require.NoError(t, err)

		// Update stage
		err = manager.UpdateStage(ctx, "run-stage", StageHypothesized)
		require.NoError(t, err)

		// Verify updated
		loaded, err := manager.Load(ctx, "run-stage")
		require.NoError(t, err)
		assert.Equal(t, StageHypothesized, loaded.Stage)
	})

	t.Run("Record error", func(t *testing.T) {
		manager, err := NewCheckpointManager(tmpDir)
		require.NoError(t, err)

		checkpoint := &RunCheckpoint{
			RunID:        "run-error",
			UserID:       "user-456",
			Stage:        StageSegmented,
			CreatedAt:    time.Now(),
			AttemptCount: 0,
		}

		err = manager.Save(ctx, checkpoint)
		require.NoError(t, err)

		// Record error
		err = manager.RecordError(ctx, "run-error", assert.AnError)
		require.NoError(t, err)

		// Verify error recorded
		loaded, err := manager.Load(ctx, "run-error")
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.AttemptCount)
		assert.Contains(t, loaded.LastError, "assert.AnError")
	})

	t.Run("List checkpoints", func(t *testing.T) {
		manager, err := NewCheckpointManager(tmpDir)
		require.NoError(t, err)

		// Create multiple checkpoints
		for i := 0; i < 3; i++ {
			checkpoint := &RunCheckpoint{
				RunID:     fmt.Sprintf("run-list-%d", i),
				UserID:    "user-456",
				Stage:     StageSegmented,
				CreatedAt: time.Now(),
			}
			err = manager.Save(ctx, checkpoint)
			require.NoError(t, err)
		}

		// List all
		checkpoints, err := manager.List(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(checkpoints), 3)
	})

	t.Run("Clean old checkpoints", func(t *testing.T) {
		manager, err := NewCheckpointManager(tmpDir)
		require.NoError(t, err)

		// Create old checkpoint - manually write with old timestamp
		oldTime := time.Now().Add(-48 * time.Hour)
		oldCheckpoint := &RunCheckpoint{
			RunID:         "run-old",
			UserID:        "user-456",
			Stage:         StageSegmented,
			CreatedAt:     oldTime,
			LastUpdatedAt: oldTime,
		}
		// Manually write to preserve old timestamp
		data, err := json.MarshalIndent(oldCheckpoint, "", "  ")
		require.NoError(t, err)
		oldPath, err := manager.GetCheckpointPath("run-old")
		require.NoError(t, err)
		err = os.WriteFile(oldPath, data, 0644)
		require.NoError(t, err)

		// Create recent checkpoint
		recentCheckpoint := &RunCheckpoint{
			RunID:         "run-recent",
			UserID:        "user-456",
			Stage:         StageSegmented,
			CreatedAt:     time.Now(),
			LastUpdatedAt: time.Now(),
		}
		err = manager.Save(ctx, recentCheckpoint)
		require.NoError(t, err)

		// Clean old (older than 24 hours)
		removed, err := manager.CleanOld(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, removed, 1)

		// Verify old checkpoint is gone but recent remains
		exists, err := manager.Exists(ctx, "run-old")
		require.NoError(t, err)
		assert.False(t, exists)

		exists, err = manager.Exists(ctx, "run-recent")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestPathTraversalPrevention(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "chronicle-checkpoint-security-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()
	manager, err := NewCheckpointManager(tmpDir)
	require.NoError(t, err)

	pathTraversalAttempts := []struct {
		name  string
		runID string
	}{
		{"simple path traversal", "../../../etc/passwd"},
		{"path traversal with dots", ".."},
		{"double traversal", "foo/../.."},
		{"forward slash", "foo/bar"},
		{"backslash", `foo\bar`},
		{"null byte", "run\x00.json"},
		{"hidden file traversal", "../.hidden"},
		{"absolute path attempt", "/etc/passwd"},
		{"windows path", `C:\Windows\System32`},
		{"empty ID", ""},
	}

	for _, tc := range pathTraversalAttempts {
		t.Run("GetCheckpointPath_"+tc.name, func(t *testing.T) {
			_, err := manager.GetCheckpointPath(tc.runID)
			assert.ErrorIs(t, err, ErrInvalidRunID, "Run ID %q should be rejected", tc.runID)
		})

		t.Run("Load_"+tc.name, func(t *testing.T) {
			_, err := manager.Load(ctx, tc.runID)
			assert.Error(t, err, "Load should reject run ID %q", tc.runID)
		})

		t.Run("Delete_"+tc.name, func(t *testing.T) {
			err := manager.Delete(ctx, tc.runID)
			assert.Error(t, err, "Delete should reject run ID %q", tc.runID)
		})

		t.Run("Exists_"+tc.name, func(t *testing.T) {
			_, err := manager.Exists(ctx, tc.runID)
			assert.Error(t, err, "Exists should reject run ID %q", tc.runID)
		})

		t.Run("Save_"+tc.name, func(t *testing.T) {
			checkpoint := &RunCheckpoint{
				RunID:  tc.runID,
				UserID: "test-user",
				Stage:  StageInitial,
			}
			err := manager.Save(ctx, checkpoint)
			assert.Error(t, err, "Save should reject run ID %q", tc.runID)
		})
	}

	// Test that valid run IDs still work
	validIDs := []string{
		"run-123",
		"my_run",
		"Run.With.Dots",
		"run-2024-01-15T10:30:00Z",
		"abc123def456",
		"a",
	}

	for _, id := range validIDs {
		t.Run("valid_ID_"+id, func(t *testing.T) {
			path, err := manager.GetCheckpointPath(id)
			require.NoError(t, err, "Valid run ID %q should be accepted", id)
			assert.Contains(t, path, id, "Path should contain the run ID")
			assert.True(t, strings.HasPrefix(path, tmpDir),
				"Path should be within checkpoint directory")
		})
	}
}

func TestStages(t *testing.T) {
	stages := []Stage{
		StageInitial,
		StageSegmented,
		StageHypothesized,
		StageResolved,
		StageMaterialized,
		StageCompleted,
	}

	// Verify all stages are unique
	stageMap := make(map[Stage]bool)
	for _, stage := range stages {
		assert.False(t, stageMap[stage], "Duplicate stage: %s", stage)
		stageMap[stage] = true
	}

	// GetNextStage walks the whole pipeline in order
	current := StageInitial
	for i := 1; i < len(stages); i++ {
		next, err := GetNextStage(current)
		require.NoError(t, err)
		assert.Equal(t, stages[i], next)
		current = next
	}

	_, err := GetNextStage(Stage("bogus"))
	assert.Error(t, err)

	assert.True(t, StageResolved.Reached(StageSegmented))
	assert.True(t, StageResolved.Reached(StageResolved))
	assert.False(t, StageSegmented.Reached(StageResolved))
	assert.False(t, Stage("bogus").Reached(StageInitial))
}

func TestCheckpointHelpers(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "chronicle-checkpoint-helpers-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()

	t.Run("NewCheckpoint starts at initial stage", func(t *testing.T) {
		cp := NewCheckpoint("run-1", "user-1", "some text", types.SourceJournal)
		assert.Equal(t, StageInitial, cp.Stage)
		assert.Equal(t, "run-1", cp.RunID)
		assert.Equal(t, "user-1", cp.UserID)
		assert.Equal(t, types.SourceJournal, cp.Source)
		assert.Equal(t, 0, cp.AttemptCount)
		assert.False(t, cp.CreatedAt.IsZero())
	})

	t.Run("CanRetry", func(t *testing.T) {
		cp := NewCheckpoint("run-retry", "user-1", "text", types.SourceChat)
		assert.True(t, cp.CanRetry(3, time.Hour))

		cp.AttemptCount = 3
		assert.False(t, cp.CanRetry(3, time.Hour), "exhausted attempts")

		cp.AttemptCount = 0
		cp.CreatedAt = time.Now().Add(-2 * time.Hour)
		assert.False(t, cp.CanRetry(3, time.Hour), "too old")

		cp.CreatedAt = time.Now()
		cp.Stage = StageCompleted
		assert.False(t, cp.CanRetry(3, time.Hour), "already completed")
	})

	t.Run("GetProgress", func(t *testing.T) {
		cp := NewCheckpoint("run-progress", "user-1", "text", types.SourceChat)
		assert.Equal(t, "0% (initial)", cp.GetProgress())

		cp.Stage = StageResolved
		assert.Equal(t, "60% (resolved)", cp.GetProgress())

		cp.Stage = StageCompleted
		assert.Equal(t, "100% (completed)", cp.GetProgress())

		cp.Stage = Stage("bogus")
		assert.Equal(t, "Unknown stage", cp.GetProgress())
	})

	t.Run("IsRecoverable", func(t *testing.T) {
		cp := NewCheckpoint("run-rec", "user-1", "text", types.SourceChat)
		assert.True(t, cp.IsRecoverable(), "failure during segmentation")

		cp.Stage = StageSegmented
		assert.True(t, cp.IsRecoverable(), "failure during hypothesis extraction")

		cp.Stage = StageHypothesized
		assert.False(t, cp.IsRecoverable(), "resolution is deterministic")

		cp.Stage = StageResolved
		assert.True(t, cp.IsRecoverable(), "failure during store write")

		cp.Stage = StageCompleted
		assert.False(t, cp.IsRecoverable())
	})

	t.Run("LoadOrCreate", func(t *testing.T) {
		manager, err := NewCheckpointManager(tmpDir)
		require.NoError(t, err)

		cp, existed, err := manager.LoadOrCreate(ctx, "run-loc", "user-1", "text", types.SourceChat)
		require.NoError(t, err)
		assert.False(t, existed)
		assert.Equal(t, StageInitial, cp.Stage)

		// Second call finds the checkpoint saved by the first
		cp2, existed, err := manager.LoadOrCreate(ctx, "run-loc", "user-1", "text", types.SourceChat)
		require.NoError(t, err)
		assert.True(t, existed)
		assert.Equal(t, cp.RunID, cp2.RunID)
	})

	t.Run("SaveWithStage and SaveWithError", func(t *testing.T) {
		manager, err := NewCheckpointManager(tmpDir)
		require.NoError(t, err)

		cp := NewCheckpoint("run-sws", "user-1", "text", types.SourceChat)
		require.NoError(t, manager.SaveWithStage(ctx, cp, StageSegmented))

		loaded, err := manager.Load(ctx, "run-sws")
		require.NoError(t, err)
		assert.Equal(t, StageSegmented, loaded.Stage)

		require.NoError(t, manager.SaveWithError(ctx, cp, assert.AnError))
		loaded, err = manager.Load(ctx, "run-sws")
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.AttemptCount)
		assert.NotEmpty(t, loaded.LastError)
	})

	t.Run("Summary", func(t *testing.T) {
		cp := NewCheckpoint("run-sum", "user-1", "text", types.SourceChat)
		cp.Stage = StageResolved
		cp.Units = []types.NarrativeUnit{{UnitID: "u1", Text: "t"}}
		cp.Resolved = []types.ResolvedUnit{{Unit: types.NarrativeUnit{UnitID: "u1"}}}
		cp.LastError = "transient timeout"

		summary := cp.Summary()
		assert.Contains(t, summary, "Run: run-sum")
		assert.Contains(t, summary, "User: user-1")
		assert.Contains(t, summary, "60% (resolved)")
		assert.Contains(t, summary, "Units: 1")
		assert.Contains(t, summary, "Resolved Units: 1")
		assert.Contains(t, summary, "Last Error: transient timeout")
	})

	t.Run("FindStalled and FindFailed and GetStatistics", func(t *testing.T) {
		statsDir, err := os.MkdirTemp("", "chronicle-checkpoint-stats-*")
		require.NoError(t, err)
		defer os.RemoveAll(statsDir)

		manager, err := NewCheckpointManager(statsDir)
		require.NoError(t, err)

		// Completed run
		done := NewCheckpoint("run-done", "user-1", "text", types.SourceChat)
		done.Stage = StageCompleted
		require.NoError(t, manager.Save(ctx, done))

		// Failed run (attempts exhausted)
		failed := NewCheckpoint("run-failed", "user-1", "text", types.SourceChat)
		failed.AttemptCount = 5
		require.NoError(t, manager.Save(ctx, failed))

		// Stalled run: write by hand so LastUpdatedAt stays old
		old := time.Now().Add(-3 * time.Hour)
		stalled := NewCheckpoint("run-stalled", "user-1", "text", types.SourceChat)
		stalled.CreatedAt = old
		stalled.LastUpdatedAt = old
		data, err := json.MarshalIndent(stalled, "", "  ")
		require.NoError(t, err)
		stalledPath, err := manager.GetCheckpointPath("run-stalled")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(stalledPath, data, 0644))

		// Active run
		active := NewCheckpoint("run-active", "user-1", "text", types.SourceChat)
		active.Stage = StageSegmented
		require.NoError(t, manager.Save(ctx, active))

		stalledList, err := manager.FindStalled(ctx, time.Hour)
		require.NoError(t, err)
		require.Len(t, stalledList, 1)
		assert.Equal(t, "run-stalled", stalledList[0].RunID)

		failedList, err := manager.FindFailed(ctx, 3)
		require.NoError(t, err)
		require.Len(t, failedList, 1)
		assert.Equal(t, "run-failed", failedList[0].RunID)

		stats, err := manager.GetStatistics(ctx, 3, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 4, stats.Total)
		assert.Equal(t, 1, stats.Completed)
		assert.Equal(t, 1, stats.Failed)
		assert.Equal(t, 1, stats.Stalled)
		assert.Equal(t, 1, stats.InProgress)
		assert.Equal(t, 1, stats.ByStage[StageCompleted])
		assert.Equal(t, 1, stats.ByStage[StageSegmented])
	})
}
