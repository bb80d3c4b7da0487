package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lorekeeper/chronicle"
	"github.com/lorekeeper/chronicle/pkg/server/dto"
	"github.com/lorekeeper/chronicle/pkg/types"
)

// IngestHandler handles narrative ingestion requests
type IngestHandler struct {
	chronicle chronicle.Chronicle
	logger    *slog.Logger
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(c chronicle.Chronicle, logger *slog.Logger) *IngestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestHandler{
		chronicle: c,
		logger:    logger,
	}
}

// generateProcessID generates a unique process ID for tracking async operations
func generateProcessID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random generation fails
		return fmt.Sprintf("proc_%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("proc_%s", hex.EncodeToString(bytes))
}

// runOptions converts the request's optional fields into pipeline options.
func runOptions(req *dto.IngestRequest) *chronicle.RunOptions {
	opts := &chronicle.RunOptions{
		Source:       types.Source(req.Source),
		Tags:         req.Tags,
		ParentSagaID: req.ParentSagaID,
		RunID:        req.RunID,
	}

	if req.DefaultDate != nil {
		opts.DefaultDate = *req.DefaultDate
	}

	for _, anchor := range req.Anchors {
		opts.Anchors = append(opts.Anchors, types.LifeAnchor{
			ID:    anchor.ID,
			Label: anchor.Label,
			Date:  anchor.Date,
			Type:  anchor.Type,
		})
	}

	return opts
}

// Ingest handles POST /api/v1/ingest. The pipeline runs in the
// background; the response carries a process id for log correlation.
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req dto.IngestRequest
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

	processID := generateProcessID()
	opts := runOptions(&req)

	go func() {
		// The request context dies with the response; the background run
		// gets its own. Panics must not take the server down.
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("panic recovered in background ingest",
					"process_id", processID,
					"user_id", req.UserID,
					"panic", r)
			}
		}()

		ctx := context.Background()

		h.logger.Info("starting background ingest",
			"process_id", processID,
			"user_id", req.UserID,
			"text_length", len(req.Text))

		slices, err := h.chronicle.Run(ctx, req.UserID, req.Text, opts)
		if err != nil {
			h.logger.Error("background ingest failed",
				"process_id", processID,
				"user_id", req.UserID,
				"error", err)
			return
		}

		h.logger.Info("background ingest completed",
			"process_id", processID,
			"user_id", req.UserID,
			"entries", len(slices))
	}()

	c.JSON(http.StatusAccepted, dto.IngestResponse{
		Success:   true,
		Message:   "narrative queued for processing",
		ProcessID: processID,
	})
}

// IngestSync handles POST /api/v1/ingest/sync. The pipeline runs inside
// the request and the materialized entries come back in the response.
func (h *IngestHandler) IngestSync(c *gin.Context) {
	var req dto.IngestRequest
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

	slices, err := h.chronicle.Run(c.Request.Context(), req.UserID, req.Text, runOptions(&req))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "ingest_failed",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.Result{
		Success: true,
		Data: gin.H{
			"count":   len(slices),
			"entries": slices,
		},
	})
}

// ClearTimeline handles DELETE /api/v1/ingest/clear
func (h *IngestHandler) ClearTimeline(c *gin.Context) {
	var req dto.ClearTimelineRequest
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

	if err := h.chronicle.ClearTimeline(c.Request.Context(), req.UserID); err != nil {
		h.logger.Error("failed to clear timeline", "user_id", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "clear_failed",
			Message: err.Error(),
		})
		return
	}

	h.logger.Info("cleared timeline", "user_id", req.UserID)
	c.JSON(http.StatusOK, dto.IngestResponse{
		Success: true,
		Message: fmt.Sprintf("cleared timeline for user %s", req.UserID),
	})
}
