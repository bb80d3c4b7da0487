package dto

import (
	"strings"
	"time"
)

// CorrectEntryRequest replaces an entry's content and date. The original
// entry is archived, not deleted.
type CorrectEntryRequest struct {
	Content string    `json:"content" binding:"required"`
	Date    time.Time `json:"date" binding:"required"`
	Tags    []string  `json:"tags,omitempty"`
}

// Validate performs validation on CorrectEntryRequest
func (r *CorrectEntryRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return ErrEmptyContent
	}
	if len(r.Content) > MaxTextLength {
		return ErrTextTooLong
	}
	if r.Date.IsZero() {
		return ErrZeroDate
	}
	return nil
}
