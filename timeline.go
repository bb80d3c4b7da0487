package chronicle

import (
	"context"
	"fmt"

	"github.com/lorekeeper/chronicle/pkg/epiphany"
	"github.com/lorekeeper/chronicle/pkg/store"
	"github.com/lorekeeper/chronicle/pkg/types"
)

// Timeline retrieves a user's entries, date-ascending, narrowed by the
// filter.
func (c *Client) Timeline(ctx context.Context, userID string, filter types.EntryFilter) ([]types.TimelineEntry, error) {
	if userID == "" {
		return nil, types.ErrEmptyUserID
	}
	return c.store.GetEntries(ctx, userID, filter)
}

// GetEntry retrieves a single entry by id.
func (c *Client) GetEntry(ctx context.Context, userID, entryID string) (*types.TimelineEntry, error) {
	return c.store.GetEntry(ctx, userID, entryID)
}

// ArchiveEntry soft-archives an entry.
func (c *Client) ArchiveEntry(ctx context.Context, userID, entryID string) error {
	return c.store.ArchiveEntry(ctx, userID, entryID)
}

// CorrectEntry archives the original entry and persists the replacement
// with corrected_from provenance, returning the new entry's id.
func (c *Client) CorrectEntry(ctx context.Context, userID, entryID string, replacement *types.TimelineEntry) (string, error) {
	return c.store.CorrectEntry(ctx, userID, entryID, replacement)
}

// ClearTimeline removes all entries for a user and resets the user's
// companion context.
func (c *Client) ClearTimeline(ctx context.Context, userID string) error {
	if userID == "" {
		return types.ErrEmptyUserID
	}
	if err := c.store.ClearEntries(ctx, userID); err != nil {
		return err
	}
	c.epiphany.ResetUser(userID)
	c.logger.Info("timeline cleared", "user_id", userID)
	return nil
}

// AddAnchor registers a life anchor for the user.
func (c *Client) AddAnchor(ctx context.Context, userID string, anchor *types.LifeAnchor) (string, error) {
	return c.store.SaveAnchor(ctx, userID, anchor)
}

// GetAnchors retrieves a user's anchors, date-ascending.
func (c *Client) GetAnchors(ctx context.Context, userID string) ([]types.LifeAnchor, error) {
	if userID == "" {
		return nil, types.ErrEmptyUserID
	}
	return c.store.GetAnchors(ctx, userID)
}

// DeleteAnchor removes an anchor by id.
func (c *Client) DeleteAnchor(ctx context.Context, userID, anchorID string) error {
	return c.store.DeleteAnchor(ctx, userID, anchorID)
}

// Insights derives companion insights from the user's persisted
// timeline and the resolutions recorded since the last reset.
func (c *Client) Insights(ctx context.Context, userID string) ([]epiphany.Insight, error) {
	if userID == "" {
		return nil, types.ErrEmptyUserID
	}

	entries, err := c.store.GetEntries(ctx, userID, types.EntryFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load timeline for insights: %w", err)
	}

	return c.insights.Insights(entries, c.epiphany.Units(userID)), nil
}

// ExportTimeline writes the user's filtered entries to a Parquet file
// under outputDir and returns the file path.
func (c *Client) ExportTimeline(ctx context.Context, userID, outputDir string, filter types.EntryFilter) (string, error) {
	if userID == "" {
		return "", types.ErrEmptyUserID
	}
	return store.ExportEntries(ctx, c.store, userID, outputDir, filter)
}
