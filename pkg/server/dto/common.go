package dto

import (
	"errors"
	"strings"
	"time"
)

// Validation errors
var (
	ErrEmptyUserID   = errors.New("user_id cannot be empty")
	ErrEmptyText     = errors.New("text cannot be empty")
	ErrEmptyLabel    = errors.New("label cannot be empty")
	ErrEmptyContent  = errors.New("content cannot be empty")
	ErrZeroDate      = errors.New("date must be set")
	ErrUserIDTooLong = errors.New("user_id exceeds maximum length (256)")
	ErrLabelTooLong  = errors.New("label exceeds maximum length (1024)")
	ErrTextTooLong   = errors.New("text exceeds maximum length (1MB)")
	ErrInvalidSource = errors.New("invalid source: must be chat, journal, or import")
)

// Maximum field lengths, enforced before anything reaches the pipeline
const (
	MaxUserIDLength = 256
	MaxLabelLength  = 1024
	MaxTextLength   = 1024 * 1024 // 1MB
	MaxTagsCount    = 50
	MaxAnchorsCount = 100
)

// ValidSources defines the sources a caller may label a narrative with.
// The correction source is reserved for the correct-entry flow.
var ValidSources = map[string]bool{
	"chat":    true,
	"journal": true,
	"import":  true,
}

// AnchorPayload is a dated reference event supplied by the caller,
// either inline with an ingest request or through the anchors endpoint.
type AnchorPayload struct {
	ID    string    `json:"id,omitempty"`
	Label string    `json:"label" binding:"required"`
	Date  time.Time `json:"date" binding:"required"`
	Type  string    `json:"type,omitempty"`
}

// Validate performs validation on AnchorPayload
func (a *AnchorPayload) Validate() error {
	if strings.TrimSpace(a.Label) == "" {
		return ErrEmptyLabel
	}
	if len(a.Label) > MaxLabelLength {
		return ErrLabelTooLong
	}
	if a.Date.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// Result represents a generic API result
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
