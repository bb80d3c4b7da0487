package types

import (
	"strings"
	"time"
)

// TimelineEntry is a persisted event on a user's timeline. Entries are
// what the rest of the system reads back; everything upstream of the
// store exists to produce these.
type TimelineEntry struct {
	ID      string `json:"id" mapstructure:"id"`
	UserID  string `json:"user_id" mapstructure:"user_id"`
	Content string `json:"content" mapstructure:"content"`

	// Date is the resolved moment of the event, at noon UTC for
	// date-precision entries.
	Date time.Time `json:"date" mapstructure:"date"`

	Tags   []string `json:"tags,omitempty" mapstructure:"tags"`
	Source Source   `json:"source" mapstructure:"source"`

	// NarrativeOrder preserves the telling order within the text the
	// entry was derived from.
	NarrativeOrder int `json:"narrative_order,omitempty" mapstructure:"narrative_order"`

	// DerivedFromEntryID points at the raw entry this one was split
	// from, when ingestion started from an existing record.
	DerivedFromEntryID string `json:"derived_from_entry_id,omitempty" mapstructure:"derived_from_entry_id"`

	// Archived entries are kept for history but excluded from reads
	// unless explicitly requested.
	Archived bool `json:"archived,omitempty" mapstructure:"archived"`

	CreatedAt time.Time `json:"created_at" mapstructure:"created_at"`
	UpdatedAt time.Time `json:"updated_at" mapstructure:"updated_at"`

	Metadata map[string]interface{} `json:"metadata,omitempty" mapstructure:"metadata"`
}

// ValidateForSave checks the fields the store requires.
func (e *TimelineEntry) ValidateForSave() error {
	if e.UserID == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(e.Content) == "" {
		return ErrEmptyContent
	}
	return nil
}

// EntryFilter narrows timeline reads. Zero-value fields match
// everything.
type EntryFilter struct {
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
	Source Source     `json:"source,omitempty"`
	Tags   []string   `json:"tags,omitempty"`

	// IncludeArchived brings archived entries back into results.
	IncludeArchived bool `json:"include_archived,omitempty"`

	// Limit caps the number of entries returned. Zero means no cap.
	Limit int `json:"limit,omitempty"`
}

// MaterializedSlice is the caller-facing record for one narrative unit
// after the full pipeline has run.
type MaterializedSlice struct {
	EntryID        string    `json:"entry_id" mapstructure:"entry_id"`
	Content        string    `json:"content" mapstructure:"content"`
	Date           time.Time `json:"date" mapstructure:"date"`
	NarrativeOrder int       `json:"narrative_order" mapstructure:"narrative_order"`
	Source         Source    `json:"source" mapstructure:"source"`

	// UnitID ties the slice back to the narrative unit it came from.
	UnitID string `json:"unit_id" mapstructure:"unit_id"`

	// DerivedFromEntryID is set when ingestion re-processed an
	// existing entry.
	DerivedFromEntryID string `json:"derived_from_entry_id,omitempty" mapstructure:"derived_from_entry_id"`

	// InferenceConfidence is the resolver's final confidence, nil when
	// the pipeline ran without inference.
	InferenceConfidence *float64 `json:"inference_confidence,omitempty" mapstructure:"inference_confidence"`
}

// PreviousEntry is a compact view of an already-persisted entry, passed
// to the model so it can place new units against known history.
type PreviousEntry struct {
	Content string    `json:"content" mapstructure:"content"`
	Date    time.Time `json:"date" mapstructure:"date"`
}

// InferenceContext bundles everything the model may consult besides
// the units themselves.
type InferenceContext struct {
	Anchors         []LifeAnchor    `json:"anchors,omitempty"`
	PreviousEntries []PreviousEntry `json:"previous_entries,omitempty"`
}
