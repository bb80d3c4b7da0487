// Package hypothesis turns raw model output into validated temporal
// hypotheses. The normalizer owns the one inference call per ingestion and is
// the only place the model's response contract is enforced: everything
// downstream receives clean, fully covered hypotheses or none at all.
package hypothesis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lorekeeper/chronicle/pkg/nlp"
	"github.com/lorekeeper/chronicle/pkg/prompts"
	"github.com/lorekeeper/chronicle/pkg/types"
)

const (
	// stubConfidence marks hypotheses the model never produced.
	stubConfidence = 0.2
	// stubReasoningMissing is the reasoning attached to per-unit stubs.
	stubReasoningMissing = "missing from model output"
)

// Normalizer asks the inference collaborator to date a batch of narrative
// units and validates whatever comes back. It never returns an error: failures
// degrade to stub hypotheses so the pipeline can fall back to default dates.
type Normalizer struct {
	client  nlp.Client
	prompts prompts.InferTimelinePrompt
	logger  *slog.Logger

	// UseYAML renders prompt payload sections as YAML instead of JSON.
	// Some models follow long structured payloads better that way.
	UseYAML bool
}

// NewNormalizer creates a Normalizer backed by client.
func NewNormalizer(client nlp.Client, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		client:  client,
		prompts: prompts.NewInferTimelineVersions(),
		logger:  logger,
	}
}

// Normalize produces exactly one TemporalHypothesis per input unit, in input
// order. It makes at most one inference call; any failure along the way is
// absorbed into stub hypotheses with a reasoning string naming the failure.
func (n *Normalizer) Normalize(ctx context.Context, units []types.NarrativeUnit, ic types.InferenceContext) []types.TemporalHypothesis {
	if len(units) == 0 {
		return nil
	}

	messages, err := n.prompts.Infer().Call(n.buildPromptContext(units, ic))
	if err != nil {
		n.logger.Warn("failed to build inference prompt", "error", err)
		return n.stubAll(units, fmt.Sprintf("inference unavailable: %v", err))
	}

	n.logger.Info("requesting temporal inference", "units", len(units), "anchors", len(ic.Anchors))

	resp, err := n.client.ChatWithStructuredOutput(ctx, messages, prompts.InferenceResponse{})
	if err != nil {
		n.logger.Warn("inference call failed", "error", err)
		return n.stubAll(units, fmt.Sprintf("inference call failed: %v", err))
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		n.logger.Warn("inference returned an empty response")
		return n.stubAll(units, "inference returned an empty response")
	}
	prompts.LogResponses(n.logger, *resp)

	rows, err := parseInferenceRows(resp.Content)
	if err != nil {
		n.logger.Warn("inference response not parseable", "error", err)
		return n.stubAll(units, fmt.Sprintf("inference response not parseable: %v", err))
	}

	return n.validate(units, rows)
}

// buildPromptContext converts units and the inference context into the loose
// map the prompt template consumes.
func (n *Normalizer) buildPromptContext(units []types.NarrativeUnit, ic types.InferenceContext) map[string]interface{} {
	promptUnits := make([]prompts.PromptUnit, len(units))
	for i, u := range units {
		promptUnits[i] = prompts.PromptUnit{
			UnitID:          u.UnitID,
			Text:            u.Text,
			NarrativeOrder:  u.NarrativeOrder,
			TemporalMarkers: u.TemporalMarkers,
		}
	}

	promptAnchors := make([]prompts.PromptAnchor, len(ic.Anchors))
	for i, a := range ic.Anchors {
		promptAnchors[i] = prompts.PromptAnchor{
			ID:    a.ID,
			Label: a.Label,
			Date:  a.Date.Format("2006-01-02"),
			Type:  a.Type,
		}
	}

	promptEntries := make([]prompts.PromptEntry, len(ic.PreviousEntries))
	for i, e := range ic.PreviousEntries {
		promptEntries[i] = prompts.PromptEntry{
			Date:    e.Date.Format("2006-01-02"),
			Content: e.Content,
		}
	}

	return map[string]interface{}{
		"units":            promptUnits,
		"anchors":          promptAnchors,
		"previous_entries": promptEntries,
		"reference_time":   time.Now().UTC().Format("2006-01-02"),
		"use_yaml":         n.UseYAML,
		"logger":           n.logger,
	}
}

// stubAll covers every unit with a low-confidence stub after a batch-level
// failure.
func (n *Normalizer) stubAll(units []types.NarrativeUnit, reasoning string) []types.TemporalHypothesis {
	hypotheses := make([]types.TemporalHypothesis, len(units))
	for i, u := range units {
		hypotheses[i] = types.TemporalHypothesis{
			UnitID:     u.UnitID,
			Confidence: stubConfidence,
			Reasoning:  reasoning,
		}
	}
	return hypotheses
}

// parseInferenceRows extracts the per-unit rows from a raw model response.
// Accepted envelopes: {"inferences": [...]}, the legacy {"segments": [...]},
// and a bare array. The response is repaired before parsing because models
// routinely emit fences, prose, or trailing commas around the payload.
func parseInferenceRows(raw string) ([]map[string]interface{}, error) {
	cleaned, err := nlp.RepairJSON(raw)
	if err != nil {
		return nil, err
	}

	var payload interface{}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, err
	}

	var items []interface{}
	switch v := payload.(type) {
	case map[string]interface{}:
		if arr, ok := v["inferences"].([]interface{}); ok {
			items = arr
		} else if arr, ok := v["segments"].([]interface{}); ok {
			items = arr
		} else {
			return nil, fmt.Errorf("response object has no inferences array")
		}
	case []interface{}:
		items = v
	default:
		return nil, fmt.Errorf("response is neither an object nor an array")
	}

	rows := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if row, ok := item.(map[string]interface{}); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// validate walks the untyped rows field by field and assembles exactly one
// hypothesis per input unit. Unknown unit ids are dropped, duplicates keep the
// first occurrence, and units the model skipped get stubs.
func (n *Normalizer) validate(units []types.NarrativeUnit, rows []map[string]interface{}) []types.TemporalHypothesis {
	unitSet := make(map[string]bool, len(units))
	for _, u := range units {
		unitSet[u.UnitID] = true
	}

	validated := make(map[string]types.TemporalHypothesis, len(units))
	dropped := 0
	for _, row := range rows {
		unitID := asString(row["unit_id"])
		if !unitSet[unitID] {
			dropped++
			continue
		}
		if _, dup := validated[unitID]; dup {
			dropped++
			continue
		}

		h := types.TemporalHypothesis{
			UnitID:     unitID,
			Confidence: clampedConfidence(row["confidence"]),
			Reasoning:  asString(row["reasoning"]),
			StartDate:  parseFlexibleDate(asString(row["start_date"])),
			EndDate:    parseFlexibleDate(asString(row["end_date"])),
		}

		relativeTo := asString(row["relative_to"])
		relation := types.Relation(strings.ToLower(asString(row["relation"])))
		if relativeTo != "" && types.ValidRelation(relation) {
			h.RelativeTo = relativeTo
			h.Relation = relation
		}

		h.Threads = stringSlice(row["threads"])

		// The prompt asks for links under "relations"; accept "links" too.
		rawLinks := row["relations"]
		if rawLinks == nil {
			rawLinks = row["links"]
		}
		h.Links = n.validateLinks(rawLinks, unitSet)

		validated[unitID] = h
	}

	if dropped > 0 {
		n.logger.Debug("dropped invalid inference rows", "count", dropped)
	}

	stubbed := 0
	hypotheses := make([]types.TemporalHypothesis, len(units))
	for i, u := range units {
		if h, ok := validated[u.UnitID]; ok {
			hypotheses[i] = h
			continue
		}
		hypotheses[i] = types.TemporalHypothesis{
			UnitID:     u.UnitID,
			Confidence: stubConfidence,
			Reasoning:  stubReasoningMissing,
		}
		stubbed++
	}

	if stubbed > 0 {
		n.logger.Warn("model skipped units, stubbed", "count", stubbed, "total", len(units))
	}

	return hypotheses
}

// validateLinks keeps only links with a recognized type and a target inside
// the current batch.
func (n *Normalizer) validateLinks(raw interface{}, unitSet map[string]bool) []types.UnitLink {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	var links []types.UnitLink
	for _, item := range items {
		row, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		linkType := types.LinkType(strings.ToLower(asString(row["type"])))
		target := asString(row["target_unit_id"])
		if !types.ValidLinkType(linkType) || !unitSet[target] {
			continue
		}
		links = append(links, types.UnitLink{Type: linkType, TargetUnitID: target})
	}
	return links
}

// clampedConfidence pulls a confidence out of an untyped value and clamps it.
// Missing or non-numeric values take the 0.3 default.
func clampedConfidence(v interface{}) float64 {
	f, ok := v.(float64)
	if !ok {
		return types.ClampConfidence(-1)
	}
	return types.ClampConfidence(f)
}

// asString returns v as a trimmed string, or "" for anything non-string.
func asString(v interface{}) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// stringSlice converts an untyped array into a []string, skipping non-string
// and empty elements.
func stringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s := asString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// dateFormats are the layouts accepted for model-reported dates, most
// specific first.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01",
	"2006",
}

// parseFlexibleDate parses an ISO-8601-ish date string into a UTC time.
// Partial dates snap to the start of their period. Returns nil when s is
// empty or unparseable.
func parseFlexibleDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
