// Package resolve settles temporal hypotheses into absolute dates. It builds
// a precedence graph from before/after relations, orders it topologically,
// propagates known dates through relative references, and assigns a
// low-confidence default date to whatever remains unresolved. The resolver
// never errors: malformed and cyclic input degrade to the fallback path.
package resolve

import (
	"log/slog"
	"time"

	"github.com/lorekeeper/chronicle/pkg/types"
)

const (
	// derivedOffset is the coarse one-year step (365.25 days) applied when a
	// date is derived from a bare before/after relation.
	derivedOffset = time.Duration(8766) * time.Hour

	// fallbackConfidenceCap bounds the confidence of units dated by default.
	fallbackConfidenceCap = 0.4

	// fallbackNote is appended to the reasoning of units dated by default.
	fallbackNote = "unresolved; default date used"

	// propagation is deliberately bounded: two sweeps, not a fixed point.
	// Chains needing more hops from a dated unit fall through to the default.
	propagationPasses = 2
)

// Resolver turns hypotheses into resolved units. It is synchronous and
// side-effect-free; construct once and share freely.
type Resolver struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		logger: logger,
		now:    time.Now,
	}
}

// Resolve produces exactly one ResolvedUnit per hypothesis, in hypothesis
// order, each carrying a non-empty StartDate. Units are matched to hypotheses
// by unit id. Narrative order plays no part in any date decision.
func (r *Resolver) Resolve(units []types.NarrativeUnit, hypotheses []types.TemporalHypothesis, anchors []types.LifeAnchor) []types.ResolvedUnit {
	if len(hypotheses) == 0 {
		return nil
	}

	unitByID := make(map[string]types.NarrativeUnit, len(units))
	for _, u := range units {
		unitByID[u.UnitID] = u
	}

	// Working copies: resolution fills dates in, never touches the input.
	working := make(map[string]*types.TemporalHypothesis, len(hypotheses))
	for i := range hypotheses {
		h := hypotheses[i]
		working[h.UnitID] = &h
	}

	ordered, unordered := TopologicalOrder(hypotheses)
	if len(unordered) > 0 {
		r.logger.Warn("relation cycle detected, members resolve last", "units", unordered)
	}
	walk := append(ordered, unordered...)

	for pass := 1; pass <= propagationPasses; pass++ {
		derived := 0
		for _, id := range walk {
			h := working[id]
			if h.StartDate != nil || !h.HasRelative() {
				continue
			}
			ref, ok := working[h.RelativeTo]
			if !ok || ref.StartDate == nil {
				continue
			}

			var d time.Time
			switch h.Relation {
			case types.RelationBefore:
				d = ref.StartDate.Add(-derivedOffset)
			case types.RelationAfter:
				d = ref.StartDate.Add(derivedOffset)
			case types.RelationDuring:
				d = *ref.StartDate
			}
			h.StartDate = &d
			derived++
		}
		r.logger.Debug("propagation pass complete", "pass", pass, "derived", derived)
	}

	fallbackDate := types.MostRecentAnchorDate(anchors)
	if fallbackDate.IsZero() {
		fallbackDate = r.now().UTC().Truncate(24 * time.Hour)
	}

	resolved := make([]types.ResolvedUnit, len(hypotheses))
	fellBack := 0
	for i, original := range hypotheses {
		h := working[original.UnitID]

		ru := types.ResolvedUnit{
			Unit:       unitByID[original.UnitID],
			Hypothesis: original,
			EndDate:    h.EndDate,
			Confidence: types.ClampConfidence(h.Confidence),
			Reasoning:  h.Reasoning,
		}

		if h.StartDate != nil {
			ru.StartDate = *h.StartDate
		} else {
			ru.StartDate = fallbackDate
			if ru.Confidence > fallbackConfidenceCap {
				ru.Confidence = fallbackConfidenceCap
			}
			if ru.Reasoning == "" {
				ru.Reasoning = fallbackNote
			} else {
				ru.Reasoning += "; " + fallbackNote
			}
			ru.Fallback = true
			fellBack++
		}

		resolved[i] = ru
	}

	r.logger.Info("resolution complete",
		"units", len(resolved),
		"cycles", len(unordered),
		"fallbacks", fellBack)

	return resolved
}
