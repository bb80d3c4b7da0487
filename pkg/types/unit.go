package types

import (
	"errors"
	"strings"
	"time"
)

// Validation errors
var (
	ErrEmptyUserID     = errors.New("user_id cannot be empty")
	ErrEmptyContent    = errors.New("content cannot be empty")
	ErrEmptyUnitID     = errors.New("unit_id cannot be empty")
	ErrEmptyEntryID    = errors.New("entry id cannot be empty")
	ErrInvalidOrder    = errors.New("narrative_order must be positive")
	ErrEmptySource     = errors.New("source cannot be empty")
	ErrInvalidRelation = errors.New("relation must be one of: before, after, during")
)

// NarrativeUnit is a coherent fragment of a narrative text, usually a
// sentence or a small group of sentences describing one event.
type NarrativeUnit struct {
	UnitID string `json:"unit_id" mapstructure:"unit_id"`
	Text   string `json:"text" mapstructure:"text"`

	// NarrativeOrder is the 1-based position of the unit in the text it
	// was split from. It reflects telling order, not event order.
	NarrativeOrder int `json:"narrative_order" mapstructure:"narrative_order"`

	// TemporalMarkers are the time-related phrases found in Text,
	// lowercased and deduplicated.
	TemporalMarkers []string `json:"temporal_markers,omitempty" mapstructure:"temporal_markers"`
}

// Validate checks if the NarrativeUnit has all required fields set.
func (u *NarrativeUnit) Validate() error {
	if u.UnitID == "" {
		return ErrEmptyUnitID
	}
	if strings.TrimSpace(u.Text) == "" {
		return ErrEmptyContent
	}
	if u.NarrativeOrder < 1 {
		return ErrInvalidOrder
	}
	return nil
}

// Source identifies where a narrative text came from.
type Source string

const (
	// SourceChat for text captured from a conversation.
	SourceChat Source = "chat"
	// SourceJournal for journal or diary entries.
	SourceJournal Source = "journal"
	// SourceImport for bulk-imported documents.
	SourceImport Source = "import"
	// SourceCorrection for entries that replace an archived original.
	SourceCorrection Source = "correction"
)

// LifeAnchor is a user-confirmed event with a known date. Anchors give
// the resolver fixed points to derive other dates from.
type LifeAnchor struct {
	ID    string    `json:"id" mapstructure:"id"`
	Label string    `json:"label" mapstructure:"label"`
	Date  time.Time `json:"date" mapstructure:"date"`
	Type  string    `json:"type,omitempty" mapstructure:"type"`
}

// MostRecentAnchorDate returns the latest anchor date, or the zero time
// when the slice is empty.
func MostRecentAnchorDate(anchors []LifeAnchor) time.Time {
	var latest time.Time
	for _, a := range anchors {
		if a.Date.After(latest) {
			latest = a.Date
		}
	}
	return latest
}
