package dto

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// IngestRequest asks the pipeline to turn one narrative text into dated
// timeline entries for a user.
type IngestRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Text   string `json:"text" binding:"required"`

	// Source labels where the text came from. Defaults to chat.
	Source string `json:"source,omitempty"`

	// Tags are attached to every entry the run produces.
	Tags []string `json:"tags,omitempty"`

	// Anchors are per-request dating references, merged with the user's
	// stored anchors for this run only.
	Anchors []AnchorPayload `json:"anchors,omitempty"`

	// DefaultDate overrides the fallback date for units the resolver
	// cannot place.
	DefaultDate *time.Time `json:"default_date,omitempty"`

	// ParentSagaID groups the run's entries under one long-running story.
	ParentSagaID string `json:"parent_saga_id,omitempty"`

	// RunID resumes a previously interrupted run when checkpointing is
	// enabled. Leave empty for a fresh run.
	RunID string `json:"run_id,omitempty"`
}

// Validate performs validation on IngestRequest
func (r *IngestRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrEmptyUserID
	}
	if len(r.UserID) > MaxUserIDLength {
		return ErrUserIDTooLong
	}
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	if len(r.Text) > MaxTextLength {
		return ErrTextTooLong
	}
	if r.Source != "" && !ValidSources[strings.ToLower(r.Source)] {
		return ErrInvalidSource
	}
	if len(r.Tags) > MaxTagsCount {
		return errors.New("tags count exceeds maximum (50)")
	}
	if len(r.Anchors) > MaxAnchorsCount {
		return errors.New("anchors count exceeds maximum (100)")
	}
	for i, anchor := range r.Anchors {
		if err := anchor.Validate(); err != nil {
			return fmt.Errorf("anchor %d: %w", i, err)
		}
	}
	return nil
}

// ClearTimelineRequest names the user whose timeline is wiped.
type ClearTimelineRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// Validate performs validation on ClearTimelineRequest
func (r *ClearTimelineRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id must be specified for timeline clearing. Clearing all users is not supported via API for safety.")
	}
	if len(r.UserID) > MaxUserIDLength {
		return ErrUserIDTooLong
	}
	return nil
}

// IngestResponse represents a response from ingest operations
type IngestResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ProcessID string `json:"process_id,omitempty"`
}
