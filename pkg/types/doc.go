// Package types defines the core data types for the chronicle pipeline.
//
// This package contains the fundamental types used throughout chronicle:
//   - NarrativeUnit: A fragment of narrative text with its telling order
//   - TemporalHypothesis: The model's guess about when a unit happened
//   - ResolvedUnit: A unit settled into an absolute timestamp
//   - TimelineEntry: A persisted event on a user's timeline
//   - MaterializedSlice: The caller-facing record for one unit
//   - LifeAnchor: A user-confirmed event with a known date
//
// # Temporal Relations
//
// Hypotheses place units against each other with one of three
// relations:
//   - RelationBefore: the unit happened before its reference
//   - RelationAfter: the unit happened after its reference
//   - RelationDuring: the unit overlaps its reference
//
// # Validation
//
// Types provide Validate-style methods for input checking:
//
//	entry := &types.TimelineEntry{UserID: "u-1", Content: "moved to Berlin"}
//	if err := entry.ValidateForSave(); err != nil {
//	    // Handle validation error
//	}
//
// # JSON Serialization
//
// All types are designed to be JSON-serializable with appropriate
// struct tags; wire names are snake_case.
package types
