package types

import "time"

// Relation describes how a unit relates in time to its reference.
type Relation string

const (
	// RelationBefore means the unit happened before its reference.
	RelationBefore Relation = "before"
	// RelationAfter means the unit happened after its reference.
	RelationAfter Relation = "after"
	// RelationDuring means the unit overlaps its reference in time.
	RelationDuring Relation = "during"
)

// ValidRelation reports whether r is one of the recognized relations.
func ValidRelation(r Relation) bool {
	switch r {
	case RelationBefore, RelationAfter, RelationDuring:
		return true
	}
	return false
}

// LinkType describes a non-ordering relationship between two units.
type LinkType string

const (
	// LinkPausedBy marks a unit whose activity was interrupted by another.
	LinkPausedBy LinkType = "paused_by"
	// LinkParallelTo marks units that ran at the same time.
	LinkParallelTo LinkType = "parallel_to"
)

// ValidLinkType reports whether t is one of the recognized link types.
func ValidLinkType(t LinkType) bool {
	return t == LinkPausedBy || t == LinkParallelTo
}

// UnitLink connects a unit to another unit in the same batch without
// implying an order between them.
type UnitLink struct {
	Type         LinkType `json:"type" mapstructure:"type"`
	TargetUnitID string   `json:"target_unit_id" mapstructure:"target_unit_id"`
}

// TemporalHypothesis is the model's best guess about when a unit
// happened. Dates are optional; relative placement uses RelativeTo
// plus Relation.
type TemporalHypothesis struct {
	UnitID string `json:"unit_id" mapstructure:"unit_id"`

	// StartDate and EndDate are absolute bounds when the model could
	// infer them directly from the text.
	StartDate *time.Time `json:"start_date,omitempty" mapstructure:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty" mapstructure:"end_date"`

	// RelativeTo names another unit in the batch this unit is ordered
	// against. Relation says which way. Both are set or both are empty.
	RelativeTo string   `json:"relative_to,omitempty" mapstructure:"relative_to"`
	Relation   Relation `json:"relation,omitempty" mapstructure:"relation"`

	// Confidence is the model's self-reported certainty in [0, 1].
	Confidence float64 `json:"confidence" mapstructure:"confidence"`

	// Reasoning is a short free-text justification, kept for audit.
	Reasoning string `json:"reasoning,omitempty" mapstructure:"reasoning"`

	// Threads are narrative strand labels, e.g. "career" or "health".
	Threads []string `json:"threads,omitempty" mapstructure:"threads"`

	// Links are non-ordering relationships to other units in the batch.
	Links []UnitLink `json:"links,omitempty" mapstructure:"links"`
}

// HasRelative reports whether the hypothesis carries a usable
// relative placement.
func (h *TemporalHypothesis) HasRelative() bool {
	return h.RelativeTo != "" && ValidRelation(h.Relation)
}

// ClampConfidence forces v into [0, 1]. NaN and values outside the
// range collapse to the default of 0.3.
func ClampConfidence(v float64) float64 {
	if v != v || v < 0 || v > 1 {
		return 0.3
	}
	return v
}

// ResolvedUnit is a unit whose temporal hypothesis has been settled
// into an absolute placement, or explicitly marked unresolved.
type ResolvedUnit struct {
	Unit       NarrativeUnit      `json:"unit" mapstructure:"unit"`
	Hypothesis TemporalHypothesis `json:"hypothesis" mapstructure:"hypothesis"`

	// StartDate is always set after resolution, falling back to the
	// default date when nothing better could be derived.
	StartDate time.Time  `json:"start_date" mapstructure:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty" mapstructure:"end_date"`

	// Confidence is the final certainty after resolution adjustments.
	Confidence float64 `json:"confidence" mapstructure:"confidence"`

	// Reasoning carries the hypothesis reasoning plus any notes the
	// resolver appended.
	Reasoning string `json:"reasoning,omitempty" mapstructure:"reasoning"`

	// Fallback is true when the date came from the default rather than
	// from the text or the precedence graph.
	Fallback bool `json:"fallback,omitempty" mapstructure:"fallback"`
}
