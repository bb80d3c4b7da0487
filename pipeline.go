package chronicle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lorekeeper/chronicle/pkg/checkpoint"
	"github.com/lorekeeper/chronicle/pkg/materialize"
	"github.com/lorekeeper/chronicle/pkg/segment"
	"github.com/lorekeeper/chronicle/pkg/types"
)

// RunOptions holds optional parameters for a single ingestion run.
type RunOptions struct {
	// Source labels where the text came from (chat, journal, import).
	Source types.Source

	// SourceEntryID is set when the text re-processes an existing
	// entry; the derived entries carry it as provenance.
	SourceEntryID string

	// Tags are attached to every entry the run produces.
	Tags []string

	// DefaultDate is the materializer's fallback for units that carry
	// no resolution at all. Zero means the current date.
	DefaultDate time.Time

	// Anchors are per-call dating references, merged with the user's
	// stored anchors; on id collision the per-call anchor wins.
	Anchors []types.LifeAnchor

	// ParentSagaID groups the run's entries under one long-running
	// story.
	ParentSagaID string

	// RunID names the run for checkpointing. Empty means a fresh
	// random id; pass the previous id to resume an interrupted run.
	RunID string
}

// Run executes the full pipeline for one narrative text. Empty or
// whitespace-only input returns an empty result without calling any
// collaborator. Inference failures degrade to fallback dating;
// persistence failures abort the run and propagate.
func (c *Client) Run(ctx context.Context, userID, text string, options *RunOptions) ([]types.MaterializedSlice, error) {
	if userID == "" {
		return nil, types.ErrEmptyUserID
	}
	if strings.TrimSpace(text) == "" {
		c.logger.Debug("empty input, nothing to ingest", "user_id", userID)
		return nil, nil
	}

	var opts RunOptions
	if options != nil {
		opts = *options
	}
	source := opts.Source
	if source == "" {
		source = c.config.DefaultSource
	}

	cp := c.loadCheckpoint(ctx, userID, text, source, &opts)
	if cp != nil {
		// A resumed run finishes the work it recorded, not the
		// arguments of the retry call.
		text = cp.Text
		if cp.Source != "" {
			source = cp.Source
		}
		opts.SourceEntryID = cp.SourceEntryID
		opts.Tags = cp.Tags
		opts.Anchors = cp.Anchors
	}

	fallbackDate := opts.DefaultDate
	if fallbackDate.IsZero() {
		fallbackDate = time.Now().UTC()
	}

	units := c.segmentStage(ctx, cp, text)
	if len(units) == 0 {
		return nil, nil
	}

	ic := c.inferenceContext(ctx, userID, opts.Anchors)

	hypotheses := c.hypothesisStage(ctx, cp, units, ic)
	resolved := c.resolveStage(ctx, cp, units, hypotheses, ic.Anchors)

	slices, err := c.materializeStage(ctx, cp, materialize.Input{
		UserID:        userID,
		Units:         units,
		Resolved:      resolved,
		Source:        source,
		SourceEntryID: opts.SourceEntryID,
		Tags:          opts.Tags,
		FallbackDate:  fallbackDate,
		ParentSagaID:  opts.ParentSagaID,
	})
	if err != nil {
		return nil, err
	}

	c.epiphany.Record(userID, resolved)
	if cp != nil {
		c.saveStage(ctx, cp, checkpoint.StageCompleted)
	}

	c.logger.Info("run complete",
		"user_id", userID,
		"units", len(units),
		"entries", len(slices))
	return slices, nil
}

// loadCheckpoint prepares the run's checkpoint when checkpointing is
// enabled. Checkpoint I/O failures never fail the run; they log a
// warning and the run proceeds unrecorded.
func (c *Client) loadCheckpoint(ctx context.Context, userID, text string, source types.Source, opts *RunOptions) *checkpoint.RunCheckpoint {
	if c.checkpoints == nil {
		return nil
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	cp, existed, err := c.checkpoints.LoadOrCreate(ctx, runID, userID, text, source)
	if err != nil {
		c.logger.Warn("checkpointing disabled for this run", "run_id", runID, "error", err)
		return nil
	}

	if existed {
		c.logger.Info("resuming run from checkpoint",
			"run_id", runID,
			"progress", cp.GetProgress())
		return cp
	}

	cp.SourceEntryID = opts.SourceEntryID
	cp.Tags = opts.Tags
	cp.Anchors = opts.Anchors
	if err := c.checkpoints.Save(ctx, cp); err != nil {
		c.logger.Warn("failed to save checkpoint", "run_id", runID, "error", err)
	}
	return cp
}

func (c *Client) segmentStage(ctx context.Context, cp *checkpoint.RunCheckpoint, text string) []types.NarrativeUnit {
	if cp != nil && cp.Stage.Reached(checkpoint.StageSegmented) && len(cp.Units) > 0 {
		return cp.Units
	}

	units := segment.Segment(text)
	if cp != nil {
		cp.Units = units
		c.saveStage(ctx, cp, checkpoint.StageSegmented)
	}
	return units
}

func (c *Client) hypothesisStage(ctx context.Context, cp *checkpoint.RunCheckpoint, units []types.NarrativeUnit, ic types.InferenceContext) []types.TemporalHypothesis {
	if cp != nil && cp.Stage.Reached(checkpoint.StageHypothesized) && len(cp.Hypotheses) > 0 {
		return cp.Hypotheses
	}

	hypotheses := c.normalizer.Normalize(ctx, units, ic)
	if cp != nil {
		cp.Hypotheses = hypotheses
		c.saveStage(ctx, cp, checkpoint.StageHypothesized)
	}
	return hypotheses
}

func (c *Client) resolveStage(ctx context.Context, cp *checkpoint.RunCheckpoint, units []types.NarrativeUnit, hypotheses []types.TemporalHypothesis, anchors []types.LifeAnchor) []types.ResolvedUnit {
	if cp != nil && cp.Stage.Reached(checkpoint.StageResolved) && len(cp.Resolved) > 0 {
		return cp.Resolved
	}

	resolved := c.resolver.Resolve(units, hypotheses, anchors)
	if cp != nil {
		cp.Resolved = resolved
		c.saveStage(ctx, cp, checkpoint.StageResolved)
	}
	return resolved
}

// materializeStage persists the resolved units. A checkpoint that
// already reached the materialized stage reloads the written entries
// instead of writing them again.
func (c *Client) materializeStage(ctx context.Context, cp *checkpoint.RunCheckpoint, input materialize.Input) ([]types.MaterializedSlice, error) {
	if cp != nil && cp.Stage.Reached(checkpoint.StageMaterialized) && len(cp.EntryIDs) > 0 {
		return c.reloadSlices(ctx, cp, input.UserID)
	}

	slices, err := c.materializer.Materialize(ctx, input)
	if err != nil {
		if cp != nil {
			if saveErr := c.checkpoints.SaveWithError(ctx, cp, err); saveErr != nil {
				c.logger.Warn("failed to record error on checkpoint", "run_id", cp.RunID, "error", saveErr)
			}
		}
		return nil, err
	}

	if cp != nil {
		cp.EntryIDs = make([]string, 0, len(slices))
		for _, s := range slices {
			cp.EntryIDs = append(cp.EntryIDs, s.EntryID)
		}
		c.saveStage(ctx, cp, checkpoint.StageMaterialized)
	}
	return slices, nil
}

// reloadSlices rebuilds the run's result from entries a previous
// attempt already persisted.
func (c *Client) reloadSlices(ctx context.Context, cp *checkpoint.RunCheckpoint, userID string) ([]types.MaterializedSlice, error) {
	slices := make([]types.MaterializedSlice, 0, len(cp.EntryIDs))
	for _, id := range cp.EntryIDs {
		entry, err := c.store.GetEntry(ctx, userID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to reload entry %s from checkpointed run %s: %w", id, cp.RunID, err)
		}

		slice := types.MaterializedSlice{
			EntryID:            entry.ID,
			Content:            entry.Content,
			Date:               entry.Date,
			NarrativeOrder:     entry.NarrativeOrder,
			Source:             entry.Source,
			DerivedFromEntryID: entry.DerivedFromEntryID,
		}
		if v, ok := entry.Metadata["unit_id"].(string); ok {
			slice.UnitID = v
		}
		if v, ok := entry.Metadata["inference_confidence"].(float64); ok {
			slice.InferenceConfidence = &v
		}
		slices = append(slices, slice)
	}

	c.logger.Info("reloaded materialized entries from checkpoint",
		"run_id", cp.RunID,
		"entries", len(slices))
	return slices, nil
}

func (c *Client) saveStage(ctx context.Context, cp *checkpoint.RunCheckpoint, stage checkpoint.Stage) {
	if err := c.checkpoints.SaveWithStage(ctx, cp, stage); err != nil {
		c.logger.Warn("failed to save checkpoint",
			"run_id", cp.RunID,
			"stage", stage,
			"error", err)
	}
}

// inferenceContext assembles what the model may consult besides the
// units: the user's anchors (stored merged with per-call) and a tail of
// their persisted timeline. Read failures degrade to a smaller context,
// never to a failed run.
func (c *Client) inferenceContext(ctx context.Context, userID string, callAnchors []types.LifeAnchor) types.InferenceContext {
	ic := types.InferenceContext{
		Anchors: c.mergeAnchors(ctx, userID, callAnchors),
	}

	entries, err := c.store.GetEntries(ctx, userID, types.EntryFilter{})
	if err != nil {
		c.logger.Warn("failed to load previous entries for inference context",
			"user_id", userID,
			"error", err)
		return ic
	}

	start := len(entries) - c.config.PreviousEntryLimit
	if start < 0 {
		start = 0
	}
	for _, e := range entries[start:] {
		ic.PreviousEntries = append(ic.PreviousEntries, types.PreviousEntry{
			Content: e.Content,
			Date:    e.Date,
		})
	}
	return ic
}

// mergeAnchors joins stored anchors with per-call anchors; a per-call
// anchor replaces a stored one with the same id.
func (c *Client) mergeAnchors(ctx context.Context, userID string, callAnchors []types.LifeAnchor) []types.LifeAnchor {
	stored, err := c.store.GetAnchors(ctx, userID)
	if err != nil {
		c.logger.Warn("failed to load stored anchors",
			"user_id", userID,
			"error", err)
	}
	if len(callAnchors) == 0 {
		return stored
	}

	overridden := make(map[string]bool, len(callAnchors))
	for _, a := range callAnchors {
		if a.ID != "" {
			overridden[a.ID] = true
		}
	}

	merged := make([]types.LifeAnchor, 0, len(stored)+len(callAnchors))
	for _, a := range stored {
		if a.ID != "" && overridden[a.ID] {
			continue
		}
		merged = append(merged, a)
	}
	return append(merged, callAnchors...)
}
