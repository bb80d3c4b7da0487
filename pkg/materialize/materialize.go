// Package materialize persists resolved narrative units as timeline entries.
// It is the only pipeline stage with side effects: saves run sequentially so
// records land in narrative order, and a storage failure aborts the run
// immediately with no rollback of earlier saves.
package materialize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lorekeeper/chronicle/pkg/types"
)

// EntrySaver is the slice of the storage collaborator the materializer needs.
type EntrySaver interface {
	SaveEntry(ctx context.Context, entry *types.TimelineEntry) (string, error)
}

// Input bundles everything one materialization run needs.
type Input struct {
	UserID string

	// Units in narrative order; Resolved holds their dated counterparts,
	// matched by unit id.
	Units    []types.NarrativeUnit
	Resolved []types.ResolvedUnit

	Source types.Source

	// SourceEntryID is the raw entry this text came from, when ingestion
	// re-processed an existing record.
	SourceEntryID string

	Tags []string

	// FallbackDate is used for any unit without a resolved date.
	FallbackDate time.Time

	// ParentSagaID groups entries that belong to one long-running story.
	ParentSagaID string
}

// Materializer writes resolved units through the storage collaborator.
type Materializer struct {
	saver  EntrySaver
	logger *slog.Logger
}

// NewMaterializer creates a Materializer writing through saver.
func NewMaterializer(saver EntrySaver, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{
		saver:  saver,
		logger: logger,
	}
}

// Materialize persists one entry per unit, in narrative order, and returns
// the corresponding slices. The first storage failure stops the loop and
// propagates; entries saved before the failure stay persisted.
func (m *Materializer) Materialize(ctx context.Context, input Input) ([]types.MaterializedSlice, error) {
	if len(input.Units) == 0 {
		return nil, nil
	}

	resolvedByID := make(map[string]types.ResolvedUnit, len(input.Resolved))
	for _, ru := range input.Resolved {
		resolvedByID[ru.Hypothesis.UnitID] = ru
	}

	slices := make([]types.MaterializedSlice, 0, len(input.Units))
	for _, unit := range input.Units {
		entryDate := input.FallbackDate
		var confidence *float64

		ru, ok := resolvedByID[unit.UnitID]
		if ok {
			entryDate = atNoonUTC(ru.StartDate)
			c := ru.Confidence
			confidence = &c
		}

		entry := &types.TimelineEntry{
			UserID:             input.UserID,
			Content:            unit.Text,
			Date:               entryDate,
			Tags:               input.Tags,
			Source:             input.Source,
			NarrativeOrder:     unit.NarrativeOrder,
			DerivedFromEntryID: input.SourceEntryID,
			Metadata:           m.provenance(unit, ru, ok, input),
		}

		id, err := m.saver.SaveEntry(ctx, entry)
		if err != nil {
			m.logger.Error("entry save failed, aborting materialization",
				"unit_id", unit.UnitID,
				"saved", len(slices),
				"error", err)
			return nil, fmt.Errorf("failed to save entry for unit %s: %w", unit.UnitID, err)
		}

		slices = append(slices, types.MaterializedSlice{
			EntryID:             id,
			Content:             unit.Text,
			Date:                entryDate,
			NarrativeOrder:      unit.NarrativeOrder,
			Source:              input.Source,
			UnitID:              unit.UnitID,
			DerivedFromEntryID:  input.SourceEntryID,
			InferenceConfidence: confidence,
		})
	}

	m.logger.Info("materialization complete", "entries", len(slices), "user_id", input.UserID)
	return slices, nil
}

// provenance builds the metadata bag persisted with each entry.
func (m *Materializer) provenance(unit types.NarrativeUnit, ru types.ResolvedUnit, resolved bool, input Input) map[string]interface{} {
	meta := map[string]interface{}{
		"unit_id":              unit.UnitID,
		"narrative_order":      unit.NarrativeOrder,
		"ingested_by_pipeline": true,
	}
	if input.SourceEntryID != "" {
		meta["source_entry_id"] = input.SourceEntryID
	}
	if input.ParentSagaID != "" {
		meta["parent_saga_id"] = input.ParentSagaID
	}
	if resolved {
		meta["inference_confidence"] = ru.Confidence
		if ru.Reasoning != "" {
			meta["reasoning"] = ru.Reasoning
		}
		if ru.Fallback {
			meta["date_fallback"] = true
		}
		if len(ru.Hypothesis.Threads) > 0 {
			meta["threads"] = ru.Hypothesis.Threads
		}
	}
	return meta
}

// atNoonUTC pins a resolved date to noon UTC, the fixed time-of-day for
// date-precision entries.
func atNoonUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}
