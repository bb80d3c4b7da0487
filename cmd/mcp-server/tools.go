package main

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/lorekeeper/chronicle"
	"github.com/lorekeeper/chronicle/pkg/types"
)

// Tool request/response types

// IngestNarrativeRequest represents the parameters for ingesting a narrative
type IngestNarrativeRequest struct {
	Text        string   `json:"text"`
	UserID      string   `json:"user_id,omitempty"`
	Source      string   `json:"source,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	DefaultDate string   `json:"default_date,omitempty"`
	SagaID      string   `json:"saga_id,omitempty"`
}

// GetTimelineRequest represents timeline read parameters
type GetTimelineRequest struct {
	UserID          string   `json:"user_id,omitempty"`
	From            string   `json:"from,omitempty"`
	To              string   `json:"to,omitempty"`
	Source          string   `json:"source,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	IncludeArchived bool     `json:"include_archived,omitempty"`
	Limit           int      `json:"limit,omitempty"`
}

// EntryRequest identifies a single timeline entry
type EntryRequest struct {
	UserID  string `json:"user_id,omitempty"`
	EntryID string `json:"entry_id"`
}

// AddAnchorRequest represents the parameters for adding a life anchor
type AddAnchorRequest struct {
	UserID string `json:"user_id,omitempty"`
	Label  string `json:"label"`
	Date   string `json:"date"`
	Type   string `json:"type,omitempty"`
}

// UserRequest identifies a user
type UserRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// Response types

// ToolResponse is a generic response wrapper
type ToolResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// parseToolDate accepts RFC3339 timestamps and bare dates.
func parseToolDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

// userOrDefault falls back to the server's configured default user.
func (s *MCPServer) userOrDefault(userID string) string {
	if userID != "" {
		return userID
	}
	return s.config.DefaultUser
}

// entryResult formats a timeline entry to the shape tools return.
func entryResult(entry *types.TimelineEntry) map[string]interface{} {
	result := map[string]interface{}{
		"id":              entry.ID,
		"date":            entry.Date.Format(time.RFC3339),
		"content":         entry.Content,
		"source":          string(entry.Source),
		"narrative_order": entry.NarrativeOrder,
		"created_at":      entry.CreatedAt.Format(time.RFC3339),
	}

	if len(entry.Tags) > 0 {
		result["tags"] = entry.Tags
	}
	if entry.DerivedFromEntryID != "" {
		result["derived_from"] = entry.DerivedFromEntryID
	}
	if entry.Archived {
		result["archived"] = true
	}
	if entry.Metadata != nil {
		result["metadata"] = entry.Metadata
	}

	return result
}

// IngestNarrativeTool handles ingesting narratives into the timeline
// This is the primary way to add information to the timeline.
// The call blocks until the pipeline has materialized all entries.
func (s *MCPServer) IngestNarrativeTool(ctx *ai.ToolContext, input *IngestNarrativeRequest) (*ToolResponse, error) {
	// Validate required fields
	if input.Text == "" {
		return &ToolResponse{
			Success: false,
			Error:   "Text is required",
		}, nil
	}

	// Set defaults
	userID := s.userOrDefault(input.UserID)
	source := input.Source
	if source == "" {
		source = s.config.DefaultSource
	}

	opts := &chronicle.RunOptions{
		Source:       types.Source(source),
		Tags:         input.Tags,
		ParentSagaID: input.SagaID,
	}

	if input.DefaultDate != "" {
		defaultDate, err := parseToolDate(input.DefaultDate)
		if err != nil {
			return &ToolResponse{
				Success: false,
				Error:   fmt.Sprintf("Invalid default_date: %v", err),
			}, nil
		}
		opts.DefaultDate = defaultDate
	}

	// Run the pipeline
	slices, err := s.client.Run(context.Background(), userID, input.Text, opts)
	if err != nil {
		s.logger.Error("Failed to ingest narrative", "error", err)
		return &ToolResponse{
			Success: false,
			Error:   fmt.Sprintf("Failed to ingest narrative: %v", err),
		}, nil
	}

	if len(slices) == 0 {
		return &ToolResponse{
			Success: true,
			Message: "The narrative contained no events to record",
			Data: map[string]interface{}{
				"entries": []interface{}{},
			},
		}, nil
	}

	// Format the materialized entries
	entries := make([]map[string]interface{}, len(slices))
	for i, slice := range slices {
		entry := map[string]interface{}{
			"entry_id":        slice.EntryID,
			"date":            slice.Date.Format(time.RFC3339),
			"content":         slice.Content,
			"narrative_order": slice.NarrativeOrder,
		}
		if slice.InferenceConfidence != nil {
			entry["confidence"] = *slice.InferenceConfidence
		}
		entries[i] = entry
	}

	s.logger.Info("Narrative ingested successfully", "user_id", userID, "entries", len(slices))
	return &ToolResponse{
		Success: true,
		Message: fmt.Sprintf("Materialized %d timeline entries", len(slices)),
		Data: map[string]interface{}{
			"entries": entries,
			"total":   len(entries),
		},
	}, nil
}

// GetTimelineTool handles reading a user's timeline
// Entries come back in chronological order with narrative order as tie break.
func (s *MCPServer) GetTimelineTool(ctx *ai.ToolContext, input *GetTimelineRequest) (*ToolResponse, error) {
	userID := s.userOrDefault(input.UserID)

	filter := types.EntryFilter{
		Source:          types.Source(input.Source),
		Tags:            input.Tags,
		IncludeArchived: input.IncludeArchived,
		Limit:           input.Limit,
	}

	if input.From != "" {
		from, err := parseToolDate(input.From)
		if err != nil {
			return &ToolResponse{
				Success: false,
				Error:   fmt.Sprintf("Invalid from date: %v", err),
			}, nil
		}
		filter.From = &from
	}
	if input.To != "" {
		to, err := parseToolDate(input.To)
		if err != nil {
			return &ToolResponse{
				Success: false,
				Error:   fmt.Sprintf("Invalid to date: %v", err),
			}, nil
		}
		filter.To = &to
	}

	entries, err := s.client.Timeline(context.Background(), userID, filter)
	if err != nil {
		s.logger.Error("Failed to read timeline", "error", err)
		return &ToolResponse{
			Success: false,
			Error:   fmt.Sprintf("Failed to read timeline: %v", err),
		}, nil
	}

	if len(entries) == 0 {
		return &ToolResponse{
			Success: true,
			Message: fmt.Sprintf("No entries found for user %s", userID),
			Data: map[string]interface{}{
				"entries": []interface{}{},
				"total":   0,
				"user_id": userID,
			},
		}, nil
	}

	results := make([]map[string]interface{}, len(entries))
	for i := range entries {
		results[i] = entryResult(&entries[i])
	}

	s.logger.Info("Retrieved timeline", "user_id", userID, "count", len(results))
	return &ToolResponse{
		Success: true,
		Message: fmt.Sprintf("Retrieved %d entries", len(results)),
		Data: map[string]interface{}{
			"entries": results,
			"total":   len(results),
			"user_id": userID,
		},
	}, nil
}

// GetEntryTool handles getting a single timeline entry by ID
func (s *MCPServer) GetEntryTool(ctx *ai.ToolContext, input *EntryRequest) (*ToolResponse, error) {
	if input.EntryID == "" {
		return &ToolResponse{
			Success: false,
			Error:   "EntryID is required",
		}, nil
	}

	userID := s.userOrDefault(input.UserID)

	entry, err := s.client.GetEntry(context.Background(), userID, input.EntryID)
	if err != nil {
		s.logger.Error("Failed to get entry", "entry_id", input.EntryID, "error", err)
		return &ToolResponse{
			Success: false,
			Error:   fmt.Sprintf("Failed to get entry: %v", err),
		}, nil
	}

	return &ToolResponse{
		Success: true,
		Message: "Entry retrieved successfully",
		Data:    entryResult(entry),
	}, nil
}

// ArchiveEntryTool handles archiving timeline entries
func (s *MCPServer) ArchiveEntryTool(ctx *ai.ToolContext, input *EntryRequest) (*ToolResponse, error) {
	if input.EntryID == "" {
		return &ToolResponse{
			Success: false,
			Error:   "EntryID is required",
		}, nil
	}

	userID := s.userOrDefault(input.UserID)

	err := s.client.ArchiveEntry(context.Background(), userID, input.EntryID)
	if err != nil {
		s.logger.Error("Failed to archive entry", "entry_id", input.EntryID, "error", err)
		return &ToolResponse{
			Success: false,
			Error:   fmt.Sprintf("Failed to archive entry: %v", err),
		}, nil
	}

	s.logger.Info("Entry archived successfully", "entry_id", input.EntryID)
	return &ToolResponse{
		Success: true,
		Message: fmt.Sprintf("Entry %s archived successfully", input.EntryID),
	}, nil
}

// AddAnchorTool handles adding life anchors
// Anchors are known dated milestones the resolver can date future
// narratives against.
func (s *MCPServer) AddAnchorTool(ctx *ai.ToolContext, input *AddAnchorRequest) (*ToolResponse, error) {
	if input.Label == "" {
		return &ToolResponse{
			Success: false,
			Error:   "Label is required",
		}, nil
	}
	if input.Date == "" {
		return &ToolResponse{
			Success: false,
			Error:   "Date is required",
		}, nil
	}

	date, err := parseToolDate(input.Date)
	if err != nil {
		return &ToolResponse{
			Success: false,
			Error:   fmt.Sprintf("Invalid date: %v", err),
		}, nil
	}

	userID := s.userOrDefault(input.UserID)

	anchor := &types.LifeAnchor{
		Label: input.Label,
		Date:  date,
		Type:  input.Type,
	}

	anchorID, err := s.client.AddAnchor(context.Background(), userID, anchor)
	if err != nil {
		s.logger.Error("Failed to add anchor", "label", input.Label, "error", err)
		return &ToolResponse{
			Success: false,
			Error:   fmt.Sprintf("Failed to add anchor: %v", err),
		}, nil
	}

	s.logger.Info("Anchor added successfully", "label", input.Label, "user_id", userID)
	return &ToolResponse{
		Success: true,
		Message: fmt.Sprintf("Anchor '%s' added successfully", input.Label),
		Data: map[string]interface{}{
			"anchor_id": anchorID,
		},
	}, nil
}

// GetAnchorsTool handles listing a user's life anchors
func (s *MCPServer) GetAnchorsTool(ctx *ai.ToolContext, input *UserRequest) (*ToolResponse, error) {
	userID := s.userOrDefault(input.UserID)

	anchors, err := s.client.GetAnchors(context.Background(), userID)
	if err != nil {
		s.logger.Error("Failed to get anchors", "error", err)
		return &ToolResponse{
			Success: false,
			Error:   fmt.Sprintf("Failed to get anchors: %v", err),
		}, nil
	}

	if len(anchors) == 0 {
		return &ToolResponse{
			Success: true,
			Message: fmt.Sprintf("No anchors found for user %s", userID),
			Data: map[string]interface{}{
				"anchors": []interface{}{},
				"total":   0,
			},
		}, nil
	}

	results := make([]map[string]interface{}, len(anchors))
	for i, anchor := range anchors {
		result := map[string]interface{}{
			"id":    anchor.ID,
			"label": anchor.Label,
			"date":  anchor.Date.Format(time.RFC3339),
		}
		if anchor.Type != "" {
			result["type"] = anchor.Type
		}
		results[i] = result
	}

	return &ToolResponse{
		Success: true,
		Message: fmt.Sprintf("Retrieved %d anchors", len(results)),
		Data: map[string]interface{}{
			"anchors": results,
			"total":   len(results),
		},
	}, nil
}

// GetInsightsTool handles deriving insights from a user's timeline
func (s *MCPServer) GetInsightsTool(ctx *ai.ToolContext, input *UserRequest) (*ToolResponse, error) {
	userID := s.userOrDefault(input.UserID)

	insights, err := s.client.Insights(context.Background(), userID)
	if err != nil {
		s.logger.Error("Failed to derive insights", "error", err)
		return &ToolResponse{
			Success: false,
			Error:   fmt.Sprintf("Failed to derive insights: %v", err),
		}, nil
	}

	if len(insights) == 0 {
		return &ToolResponse{
			Success: true,
			Message: fmt.Sprintf("No insights available for user %s", userID),
			Data: map[string]interface{}{
				"insights": []interface{}{},
			},
		}, nil
	}

	results := make([]map[string]interface{}, len(insights))
	for i, insight := range insights {
		result := map[string]interface{}{
			"type":        string(insight.Type),
			"description": insight.Description,
			"confidence":  insight.Confidence,
		}
		if len(insight.Evidence) > 0 {
			result["evidence"] = insight.Evidence
		}
		results[i] = result
	}

	return &ToolResponse{
		Success: true,
		Message: fmt.Sprintf("Derived %d insights", len(results)),
		Data: map[string]interface{}{
			"insights": results,
			"total":    len(results),
		},
	}, nil
}

// ClearTimelineTool handles clearing a user's timeline
// Removes all entries for the user; anchors are kept.
func (s *MCPServer) ClearTimelineTool(ctx *ai.ToolContext, input *UserRequest) (*ToolResponse, error) {
	userID := s.userOrDefault(input.UserID)

	// Warn about the destructive operation
	s.logger.Warn("Clearing timeline", "user_id", userID)

	err := s.client.ClearTimeline(context.Background(), userID)
	if err != nil {
		s.logger.Error("Failed to clear timeline", "error", err, "user_id", userID)
		return &ToolResponse{
			Success: false,
			Error:   fmt.Sprintf("Failed to clear timeline: %v", err),
		}, nil
	}

	s.logger.Info("Timeline cleared successfully", "user_id", userID)
	return &ToolResponse{
		Success: true,
		Message: fmt.Sprintf("Timeline cleared successfully for user '%s'", userID),
		Data: map[string]interface{}{
			"user_id": userID,
			"cleared": true,
		},
	}, nil
}
