package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/lorekeeper/chronicle/pkg/types"
)

// NewCheckpoint creates a new checkpoint for a run at the initial stage
func NewCheckpoint(runID, userID, text string, source types.Source) *RunCheckpoint {
	now := time.Now()
	return &RunCheckpoint{
		RunID:         runID,
		UserID:        userID,
		Stage:         StageInitial,
		CreatedAt:     now,
		LastUpdatedAt: now,
		AttemptCount:  0,
		Text:          text,
		Source:        source,
	}
}

// CanRetry determines if a checkpoint should be retried based on attempt count and age
func (c *RunCheckpoint) CanRetry(maxAttempts int, maxAge time.Duration) bool {
	if c.Stage == StageCompleted {
		return false
	}

	if c.AttemptCount >= maxAttempts {
		return false
	}

	age := time.Since(c.CreatedAt)
	if age > maxAge {
		return false
	}

	return true
}

// GetProgress returns a human-readable progress description
func (c *RunCheckpoint) GetProgress() string {
	stages := []Stage{
		StageInitial,
		StageSegmented,
		StageHypothesized,
		StageResolved,
		StageMaterialized,
		StageCompleted,
	}

	currentIdx := -1
	for i, stage := range stages {
		if stage == c.Stage {
			currentIdx = i
			break
		}
	}

	if currentIdx == -1 {
		return "Unknown stage"
	}

	percentage := (float64(currentIdx) / float64(len(stages)-1)) * 100
	return fmt.Sprintf("%.0f%% (%s)", percentage, c.Stage)
}

// IsRecoverable determines if an error after the current stage is likely recoverable
func (c *RunCheckpoint) IsRecoverable() bool {
	// A failure after these stages happened during an inference call
	// (segmentation, hypothesis extraction) or a store write, which are
	// generally transient. The stage's own output is already saved, so
	// retrying does not repeat completed work.
	recoverableStages := map[Stage]bool{
		StageInitial:   true,
		StageSegmented: true,
		StageResolved:  true,
	}

	return recoverableStages[c.Stage]
}

// SaveWithStage is a helper that updates the stage and saves in one operation
func (m *CheckpointManager) SaveWithStage(ctx context.Context, checkpoint *RunCheckpoint, stage Stage) error {
	checkpoint.Stage = stage
	return m.Save(ctx, checkpoint)
}

// SaveWithError is a helper that records an error and saves in one operation
func (m *CheckpointManager) SaveWithError(ctx context.Context, checkpoint *RunCheckpoint, err error) error {
	checkpoint.AttemptCount++
	checkpoint.LastError = err.Error()
	return m.Save(ctx, checkpoint)
}

// LoadOrCreate loads an existing checkpoint or creates a new one
func (m *CheckpointManager) LoadOrCreate(ctx context.Context, runID, userID, text string, source types.Source) (*RunCheckpoint, bool, error) {
	existing, err := m.Load(ctx, runID)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		return existing, true, nil
	}

	// Create new checkpoint
	checkpoint := NewCheckpoint(runID, userID, text, source)
	if err := m.Save(ctx, checkpoint); err != nil {
		return nil, false, err
	}

	return checkpoint, false, nil
}

// GetNextStage returns the next stage in the pipeline after the current stage
func GetNextStage(current Stage) (Stage, error) {
	stages := map[Stage]Stage{
		StageInitial:      StageSegmented,
		StageSegmented:    StageHypothesized,
		StageHypothesized: StageResolved,
		StageResolved:     StageMaterialized,
		StageMaterialized: StageCompleted,
	}

	next, ok := stages[current]
	if !ok {
		return "", fmt.Errorf("unknown current stage: %s", current)
	}

	return next, nil
}

// Summary provides a human-readable summary of the checkpoint
func (c *RunCheckpoint) Summary() string {
	summary := fmt.Sprintf("Run: %s\n", c.RunID)
	summary += fmt.Sprintf("User: %s\n", c.UserID)
	summary += fmt.Sprintf("Progress: %s\n", c.GetProgress())
	summary += fmt.Sprintf("Created: %s\n", c.CreatedAt.Format(time.RFC3339))
	summary += fmt.Sprintf("Last Updated: %s\n", c.LastUpdatedAt.Format(time.RFC3339))
	summary += fmt.Sprintf("Attempts: %d\n", c.AttemptCount)

	if c.LastError != "" {
		summary += fmt.Sprintf("Last Error: %s\n", c.LastError)
	}

	if c.Units != nil {
		summary += fmt.Sprintf("Units: %d\n", len(c.Units))
	}

	if c.Hypotheses != nil {
		summary += fmt.Sprintf("Hypotheses: %d\n", len(c.Hypotheses))
	}

	if c.Resolved != nil {
		summary += fmt.Sprintf("Resolved Units: %d\n", len(c.Resolved))
	}

	if c.EntryIDs != nil {
		summary += fmt.Sprintf("Entries Written: %d\n", len(c.EntryIDs))
	}

	return summary
}

// FindStalled returns checkpoints that haven't been updated recently
func (m *CheckpointManager) FindStalled(ctx context.Context, stalledDuration time.Duration) ([]*RunCheckpoint, error) {
	checkpoints, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-stalledDuration)
	var stalled []*RunCheckpoint

	for _, checkpoint := range checkpoints {
		if checkpoint.Stage != StageCompleted && checkpoint.LastUpdatedAt.Before(cutoff) {
			stalled = append(stalled, checkpoint)
		}
	}

	return stalled, nil
}

// FindFailed returns checkpoints that have exceeded max attempts
func (m *CheckpointManager) FindFailed(ctx context.Context, maxAttempts int) ([]*RunCheckpoint, error) {
	checkpoints, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	var failed []*RunCheckpoint
	for _, checkpoint := range checkpoints {
		if checkpoint.Stage != StageCompleted && checkpoint.AttemptCount >= maxAttempts {
			failed = append(failed, checkpoint)
		}
	}

	return failed, nil
}

// CheckpointStatistics summarizes the state of all checkpoints on disk
type CheckpointStatistics struct {
	Total      int
	Completed  int
	InProgress int
	Failed     int
	Stalled    int
	ByStage    map[Stage]int
}

func (m *CheckpointManager) GetStatistics(ctx context.Context, maxAttempts int, stalledDuration time.Duration) (*CheckpointStatistics, error) {
	checkpoints, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &CheckpointStatistics{
		Total:   len(checkpoints),
		ByStage: make(map[Stage]int),
	}

	cutoff := time.Now().Add(-stalledDuration)

	for _, checkpoint := range checkpoints {
		stats.ByStage[checkpoint.Stage]++

		if checkpoint.Stage == StageCompleted {
			stats.Completed++
		} else if checkpoint.AttemptCount >= maxAttempts {
			stats.Failed++
		} else if checkpoint.LastUpdatedAt.Before(cutoff) {
			stats.Stalled++
		} else {
			stats.InProgress++
		}
	}

	return stats, nil
}
