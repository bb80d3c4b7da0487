package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lorekeeper/chronicle"
	"github.com/lorekeeper/chronicle/pkg/server/dto"
	"github.com/lorekeeper/chronicle/pkg/types"
)

// AnchorHandler handles life anchor registry requests
type AnchorHandler struct {
	chronicle chronicle.Chronicle
}

// NewAnchorHandler creates a new anchor handler
func NewAnchorHandler(c chronicle.Chronicle) *AnchorHandler {
	return &AnchorHandler{
		chronicle: c,
	}
}

// AddAnchor handles POST /api/v1/anchors/:user_id
func (h *AnchorHandler) AddAnchor(c *gin.Context) {
	userID := c.Param("user_id")

	var req dto.AnchorPayload
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

	anchor := &types.LifeAnchor{
		ID:    req.ID,
		Label: req.Label,
		Date:  req.Date,
		Type:  req.Type,
	}

	id, err := h.chronicle.AddAnchor(c.Request.Context(), userID, anchor)
	if err != nil {
		respondError(c, "anchor_failed", err)
		return
	}

	c.JSON(http.StatusCreated, dto.Result{
		Success: true,
		Data:    gin.H{"anchor_id": id},
	})
}

// GetAnchors handles GET /api/v1/anchors/:user_id
func (h *AnchorHandler) GetAnchors(c *gin.Context) {
	userID := c.Param("user_id")

	anchors, err := h.chronicle.GetAnchors(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "retrieval_failed", err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{
		Success: true,
		Data: gin.H{
			"user_id": userID,
			"count":   len(anchors),
			"anchors": anchors,
		},
	})
}

// DeleteAnchor handles DELETE /api/v1/anchors/:user_id/:anchor_id
func (h *AnchorHandler) DeleteAnchor(c *gin.Context) {
	userID := c.Param("user_id")
	anchorID := c.Param("anchor_id")

	if err := h.chronicle.DeleteAnchor(c.Request.Context(), userID, anchorID); err != nil {
		respondError(c, "delete_failed", err)
		return
	}

	c.JSON(http.StatusOK, dto.Result{
		Success: true,
		Data:    gin.H{"anchor_id": anchorID, "deleted": true},
	})
}
