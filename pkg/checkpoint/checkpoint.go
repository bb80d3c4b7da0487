// Package checkpoint persists pipeline run state so interrupted
// ingestions can resume from the last completed stage instead of
// re-running the model.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lorekeeper/chronicle/pkg/types"
)

// ErrInvalidRunID is returned when a run ID contains invalid characters
var ErrInvalidRunID = errors.New("invalid run ID: contains path traversal or invalid characters")

// Stage represents how far a pipeline run has progressed.
type Stage string

const (
	StageInitial      Stage = "initial"
	StageSegmented    Stage = "segmented"
	StageHypothesized Stage = "hypothesized"
	StageResolved     Stage = "resolved"
	StageMaterialized Stage = "materialized"
	StageCompleted    Stage = "completed"
)

// stageRank orders stages along the pipeline. Unknown stages rank
// below initial.
var stageRank = map[Stage]int{
	StageInitial:      0,
	StageSegmented:    1,
	StageHypothesized: 2,
	StageResolved:     3,
	StageMaterialized: 4,
	StageCompleted:    5,
}

// Reached reports whether s is at or past the given stage.
func (s Stage) Reached(stage Stage) bool {
	current, ok := stageRank[s]
	if !ok {
		return false
	}
	target, ok := stageRank[stage]
	if !ok {
		return false
	}
	return current >= target
}

// RunCheckpoint captures everything needed to resume a run: the
// original input plus the output of each completed stage.
type RunCheckpoint struct {
	RunID  string `json:"run_id"`
	UserID string `json:"user_id"`
	Stage  Stage  `json:"stage"`

	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	AttemptCount  int       `json:"attempt_count"`
	LastError     string    `json:"last_error,omitempty"`

	// Original input
	Text          string             `json:"text"`
	Source        types.Source       `json:"source,omitempty"`
	SourceEntryID string             `json:"source_entry_id,omitempty"`
	Tags          []string           `json:"tags,omitempty"`
	Anchors       []types.LifeAnchor `json:"anchors,omitempty"`

	// Stage outputs
	Units      []types.NarrativeUnit      `json:"units,omitempty"`
	Hypotheses []types.TemporalHypothesis `json:"hypotheses,omitempty"`
	Resolved   []types.ResolvedUnit       `json:"resolved,omitempty"`
	EntryIDs   []string                   `json:"entry_ids,omitempty"`
}

// CheckpointManager reads and writes run checkpoints under a single
// directory, one JSON file per run.
type CheckpointManager struct {
	checkpointDir string
}

// NewCheckpointManager creates a new checkpoint manager.
// If checkpointDir is empty, uses os.TempDir()/chronicle-checkpoints.
func NewCheckpointManager(checkpointDir string) (*CheckpointManager, error) {
	if checkpointDir == "" {
		checkpointDir = filepath.Join(os.TempDir(), "chronicle-checkpoints")
	}

	if err := os.MkdirAll(checkpointDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	return &CheckpointManager{
		checkpointDir: checkpointDir,
	}, nil
}

// validateRunID checks that the run ID is safe for use in file paths.
// It rejects IDs containing path separators, path traversal sequences,
// or null bytes.
func validateRunID(runID string) error {
	if runID == "" {
		return ErrInvalidRunID
	}
	if strings.Contains(runID, "..") {
		return ErrInvalidRunID
	}
	if strings.ContainsAny(runID, `/\`) {
		return ErrInvalidRunID
	}
	if strings.ContainsRune(runID, '\x00') {
		return ErrInvalidRunID
	}
	return nil
}

// isPathWithinDirectory checks that the resolved path is within the
// expected directory.
func isPathWithinDirectory(path, directory string) bool {
	cleanPath := filepath.Clean(path)
	cleanDir := filepath.Clean(directory)

	if !strings.HasSuffix(cleanDir, string(filepath.Separator)) {
		cleanDir += string(filepath.Separator)
	}

	return strings.HasPrefix(cleanPath, cleanDir) || cleanPath == filepath.Clean(directory)
}

// GetCheckpointPath returns the file path for a run's checkpoint.
// Returns an error if the run ID contains invalid characters or path
// traversal sequences.
func (m *CheckpointManager) GetCheckpointPath(runID string) (string, error) {
	if err := validateRunID(runID); err != nil {
		return "", err
	}

	filename := fmt.Sprintf("run_%s.json", runID)
	fullPath := filepath.Join(m.checkpointDir, filename)

	if !isPathWithinDirectory(fullPath, m.checkpointDir) {
		return "", ErrInvalidRunID
	}

	return fullPath, nil
}

// Save persists the checkpoint to disk. The write goes to a temporary
// file first, then renames, so readers never see a torn file.
func (m *CheckpointManager) Save(ctx context.Context, checkpoint *RunCheckpoint) error {
	checkpoint.LastUpdatedAt = time.Now()

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	checkpointPath, err := m.GetCheckpointPath(checkpoint.RunID)
	if err != nil {
		return fmt.Errorf("invalid run ID: %w", err)
	}

	tmpPath := checkpointPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}

	if err := os.Rename(tmpPath, checkpointPath); err != nil {
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}

	return nil
}

// Load retrieves a checkpoint from disk. A missing checkpoint returns
// (nil, nil).
func (m *CheckpointManager) Load(ctx context.Context, runID string) (*RunCheckpoint, error) {
	checkpointPath, err := m.GetCheckpointPath(runID)
	if err != nil {
		return nil, fmt.Errorf("invalid run ID: %w", err)
	}

	data, err := os.ReadFile(checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var checkpoint RunCheckpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	return &checkpoint, nil
}

// Delete removes a checkpoint from disk.
func (m *CheckpointManager) Delete(ctx context.Context, runID string) error {
	checkpointPath, err := m.GetCheckpointPath(runID)
	if err != nil {
		return fmt.Errorf("invalid run ID: %w", err)
	}

	if err := os.Remove(checkpointPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete checkpoint file: %w", err)
	}

	return nil
}

// Exists checks if a checkpoint exists for a run.
func (m *CheckpointManager) Exists(ctx context.Context, runID string) (bool, error) {
	checkpointPath, err := m.GetCheckpointPath(runID)
	if err != nil {
		return false, fmt.Errorf("invalid run ID: %w", err)
	}

	_, err = os.Stat(checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check checkpoint existence: %w", err)
	}

	return true, nil
}

// List returns all checkpoints in the checkpoint directory.
func (m *CheckpointManager) List(ctx context.Context) ([]*RunCheckpoint, error) {
	entries, err := os.ReadDir(m.checkpointDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var checkpoints []*RunCheckpoint
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		// Only process .json files, skip .tmp files
		if filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(m.checkpointDir, entry.Name()))
		if err != nil {
			continue
		}

		var checkpoint RunCheckpoint
		if err := json.Unmarshal(data, &checkpoint); err != nil {
			continue
		}

		checkpoints = append(checkpoints, &checkpoint)
	}

	return checkpoints, nil
}

// UpdateStage updates the checkpoint's current stage.
func (m *CheckpointManager) UpdateStage(ctx context.Context, runID string, stage Stage) error {
	checkpoint, err := m.Load(ctx, runID)
	if err != nil {
		return err
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint not found for run %s", runID)
	}

	checkpoint.Stage = stage
	return m.Save(ctx, checkpoint)
}

// RecordError records an error on the checkpoint and increments the
// attempt count.
func (m *CheckpointManager) RecordError(ctx context.Context, runID string, runErr error) error {
	checkpoint, err := m.Load(ctx, runID)
	if err != nil {
		return err
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint not found for run %s", runID)
	}

	checkpoint.LastError = runErr.Error()
	checkpoint.AttemptCount++
	return m.Save(ctx, checkpoint)
}

// GetCheckpointDir returns the checkpoint directory path.
func (m *CheckpointManager) GetCheckpointDir() string {
	return m.checkpointDir
}

// CleanOld removes checkpoints older than the specified duration and
// returns how many were removed.
func (m *CheckpointManager) CleanOld(ctx context.Context, maxAge time.Duration) (int, error) {
	checkpoints, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, checkpoint := range checkpoints {
		if checkpoint.LastUpdatedAt.Before(cutoff) {
			if err := m.Delete(ctx, checkpoint.RunID); err != nil {
				continue
			}
			removed++
		}
	}

	return removed, nil
}
