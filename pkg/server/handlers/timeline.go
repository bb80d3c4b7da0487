package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lorekeeper/chronicle"
	"github.com/lorekeeper/chronicle/pkg/server/dto"
	"github.com/lorekeeper/chronicle/pkg/store"
	"github.com/lorekeeper/chronicle/pkg/types"
)

// TimelineHandler handles timeline retrieval and curation requests
type TimelineHandler struct {
	chronicle chronicle.Chronicle
}

// NewTimelineHandler creates a new timeline handler
func NewTimelineHandler(c chronicle.Chronicle) *TimelineHandler {
	return &TimelineHandler{
		chronicle: c,
	}
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrEntryNotFound), errors.Is(err, store.ErrAnchorNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrEmptyUserID), errors.Is(err, types.ErrEmptyEntryID),
		errors.Is(err, types.ErrEmptyContent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, errCode string, err error) {
	c.JSON(statusForError(err), dto.ErrorResponse{
		Error:   errCode,
		Message: err.Error(),
	})
}

// parseEntryFilter reads filter fields from query parameters. Dates
// accept RFC3339 or plain YYYY-MM-DD.
func parseEntryFilter(c *gin.Context) (types.EntryFilter, error) {
	var filter types.EntryFilter

	if from := c.Query("from"); from != "" {
		t, err := parseQueryDate(from)
		if err != nil {
			return filter, errors.New("invalid 'from' date: use RFC3339 or YYYY-MM-DD")
		}
		filter.From = &t
	}

	if to := c.Query("to"); to != "" {
		t, err := parseQueryDate(to)
		if err != nil {
			return filter, errors.New("invalid 'to' date: use RFC3339 or YYYY-MM-DD")
		}
		filter.To = &t
	}

	filter.Source = types.Source(c.Query("source"))

	if tags := c.Query("tags"); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				filter.Tags = append(filter.Tags, trimmed)
			}
		}
	}

	filter.IncludeArchived = c.Query("include_archived") == "true"

	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return filter, errors.New("invalid 'limit': must be a non-negative integer")
		}
		filter.Limit = n
	}

	return filter, nil
}

func parseQueryDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

// GetTimeline handles GET /api/v1/timeline/:user_id
func (h *TimelineHandler) GetTimeline(c *gin.Context) {
	userID := c.Param("user_id")

	filter, err := parseEntryFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	entries, err := h.chronicle.Timeline(c.Request.Context(), userID, filter)
	if err != nil {
		respondError(c, "retrieval_failed", err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{
		Success: true,
		Data: gin.H{
			"user_id": userID,
			"count":   len(entries),
			"entries": entries,
		},
	})
}

// GetEntry handles GET /api/v1/timeline/:user_id/entries/:entry_id
func (h *TimelineHandler) GetEntry(c *gin.Context) {
	userID := c.Param("user_id")
	entryID := c.Param("entry_id")

	entry, err := h.chronicle.GetEntry(c.Request.Context(), userID, entryID)
	if err != nil {
		respondError(c, "retrieval_failed", err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{
		Success: true,
		Data:    entry,
	})
}

// ArchiveEntry handles POST /api/v1/timeline/:user_id/entries/:entry_id/archive
func (h *TimelineHandler) ArchiveEntry(c *gin.Context) {
	userID := c.Param("user_id")
	entryID := c.Param("entry_id")

	if err := h.chronicle.ArchiveEntry(c.Request.Context(), userID, entryID); err != nil {
		respondError(c, "archive_failed", err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{
		Success: true,
		Data:    gin.H{"entry_id": entryID, "archived": true},
	})
}

// CorrectEntry handles POST /api/v1/timeline/:user_id/entries/:entry_id/correct
func (h *TimelineHandler) CorrectEntry(c *gin.Context) {
	userID := c.Param("user_id")
	entryID := c.Param("entry_id")

	var req dto.CorrectEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	replacement := &types.TimelineEntry{
		UserID:  userID,
		Content: req.Content,
		Date:    req.Date,
		Tags:    req.Tags,
		Source:  types.SourceCorrection,
	}

	newID, err := h.chronicle.CorrectEntry(c.Request.Context(), userID, entryID, replacement)
	if err != nil {
		respondError(c, "correction_failed", err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{
		Success: true,
		Data: gin.H{
			"corrected_entry_id": entryID,
			"replacement_id":     newID,
		},
	})
}

// GetInsights handles GET /api/v1/timeline/:user_id/insights
func (h *TimelineHandler) GetInsights(c *gin.Context) {
	userID := c.Param("user_id")

	insights, err := h.chronicle.Insights(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "insight_failed", err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{
		Success: true,
		Data: gin.H{
			"user_id":  userID,
			"count":    len(insights),
			"insights": insights,
		},
	})
}
