package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/lorekeeper/chronicle/pkg/types"
)

// Neo4jStore persists entries and anchors as nodes in a Neo4j graph.
// Entries become (:Entry) nodes and anchors (:Anchor) nodes, keyed by
// id and user_id. Dates are stored as RFC3339 strings in UTC; metadata
// as a JSON string property.
type Neo4jStore struct {
	client   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewNeo4jStore creates a store backed by a Neo4j database.
func NewNeo4jStore(uri, username, password, database string, logger *slog.Logger) (*Neo4jStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	return &Neo4jStore{
		client:   driver,
		database: database,
		logger:   logger,
	}, nil
}

func (n *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
}

func (n *Neo4jStore) SaveEntry(ctx context.Context, entry *types.TimelineEntry) (string, error) {
	if err := prepareEntry(entry); err != nil {
		return "", err
	}

	props, err := entryToProperties(entry)
	if err != nil {
		return "", err
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (e:Entry {id: $id, user_id: $user_id})
			SET e += $properties
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"id":         entry.ID,
			"user_id":    entry.UserID,
			"properties": props,
		})
		return nil, err
	})
	if err != nil {
		return "", fmt.Errorf("failed to save entry %s: %w", entry.ID, err)
	}
	return entry.ID, nil
}

func (n *Neo4jStore) GetEntry(ctx context.Context, userID, entryID string) (*types.TimelineEntry, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (e:Entry {id: $id, user_id: $user_id})
			RETURN e
		`
		res, err := tx.Run(ctx, query, map[string]any{
			"id":      entryID,
			"user_id": userID,
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		if isNoRecordsError(err) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to read entry %s: %w", entryID, err)
	}

	record := result.(*db.Record)
	nodeValue, found := record.Get("e")
	if !found {
		return nil, ErrEntryNotFound
	}
	node, ok := nodeValue.(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected type for entry node: got %T", nodeValue)
	}
	return entryFromNode(node), nil
}

func (n *Neo4jStore) GetEntries(ctx context.Context, userID string, filter types.EntryFilter) ([]types.TimelineEntry, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (e:Entry {user_id: $user_id})
			RETURN e
		`
		res, err := tx.Run(ctx, query, map[string]any{"user_id": userID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for user %s: %w", userID, err)
	}

	records := result.([]*db.Record)
	var entries []types.TimelineEntry
	for _, record := range records {
		nodeValue, found := record.Get("e")
		if !found {
			continue
		}
		node, ok := nodeValue.(dbtype.Node)
		if !ok {
			continue
		}
		entry := entryFromNode(node)
		if entryMatchesFilter(entry, filter) {
			entries = append(entries, *entry)
		}
	}

	sortEntriesByDate(entries)
	return applyLimit(entries, filter.Limit), nil
}

func (n *Neo4jStore) ArchiveEntry(ctx context.Context, userID, entryID string) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (e:Entry {id: $id, user_id: $user_id})
			SET e.archived = true, e.updated_at = $updated_at
			RETURN e.id
		`
		res, err := tx.Run(ctx, query, map[string]any{
			"id":         entryID,
			"user_id":    userID,
			"updated_at": time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		if isNoRecordsError(err) {
			return ErrEntryNotFound
		}
		return fmt.Errorf("failed to archive entry %s: %w", entryID, err)
	}
	return nil
}

func (n *Neo4jStore) CorrectEntry(ctx context.Context, userID, entryID string, replacement *types.TimelineEntry) (string, error) {
	return correctEntry(ctx, n, userID, entryID, replacement)
}

func (n *Neo4jStore) ClearEntries(ctx context.Context, userID string) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (e:Entry {user_id: $user_id})
			DETACH DELETE e
		`
		_, err := tx.Run(ctx, query, map[string]any{"user_id": userID})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to clear entries for user %s: %w", userID, err)
	}
	return nil
}

func (n *Neo4jStore) SaveAnchor(ctx context.Context, userID string, anchor *types.LifeAnchor) (string, error) {
	if err := prepareAnchor(userID, anchor); err != nil {
		return "", err
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (a:Anchor {id: $id, user_id: $user_id})
			SET a.label = $label, a.date = $date, a.type = $type
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"id":      anchor.ID,
			"user_id": userID,
			"label":   anchor.Label,
			"date":    anchor.Date.UTC().Format(time.RFC3339),
			"type":    anchor.Type,
		})
		return nil, err
	})
	if err != nil {
		return "", fmt.Errorf("failed to save anchor %s: %w", anchor.ID, err)
	}
	return anchor.ID, nil
}

func (n *Neo4jStore) GetAnchors(ctx context.Context, userID string) ([]types.LifeAnchor, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (a:Anchor {user_id: $user_id})
			RETURN a
			ORDER BY a.date ASC
		`
		res, err := tx.Run(ctx, query, map[string]any{"user_id": userID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list anchors for user %s: %w", userID, err)
	}

	records := result.([]*db.Record)
	var anchors []types.LifeAnchor
	for _, record := range records {
		nodeValue, found := record.Get("a")
		if !found {
			continue
		}
		node, ok := nodeValue.(dbtype.Node)
		if !ok {
			continue
		}
		anchors = append(anchors, anchorFromNode(node))
	}
	return anchors, nil
}

func (n *Neo4jStore) DeleteAnchor(ctx context.Context, userID, anchorID string) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (a:Anchor {id: $id, user_id: $user_id})
			DETACH DELETE a
			RETURN count(a) AS deleted
		`
		res, err := tx.Run(ctx, query, map[string]any{
			"id":      anchorID,
			"user_id": userID,
		})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to delete anchor %s: %w", anchorID, err)
	}

	record := result.(*db.Record)
	if deleted, found := record.Get("deleted"); found {
		if count, ok := deleted.(int64); ok && count == 0 {
			return ErrAnchorNotFound
		}
	}
	return nil
}

func (n *Neo4jStore) Close() error {
	return n.client.Close(context.Background())
}

// VerifyConnectivity checks if the store can reach the database.
func (n *Neo4jStore) VerifyConnectivity(ctx context.Context) error {
	return n.client.VerifyConnectivity(ctx)
}

func isNoRecordsError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no more records")
}

func entryToProperties(entry *types.TimelineEntry) (map[string]any, error) {
	props := map[string]any{
		"content":    entry.Content,
		"date":       entry.Date.UTC().Format(time.RFC3339),
		"source":     string(entry.Source),
		"archived":   entry.Archived,
		"created_at": entry.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at": entry.UpdatedAt.UTC().Format(time.RFC3339),
	}

	if len(entry.Tags) > 0 {
		props["tags"] = entry.Tags
	}
	if entry.NarrativeOrder > 0 {
		props["narrative_order"] = entry.NarrativeOrder
	}
	if entry.DerivedFromEntryID != "" {
		props["derived_from_entry_id"] = entry.DerivedFromEntryID
	}
	if len(entry.Metadata) > 0 {
		metadataJSON, err := json.Marshal(entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		props["metadata"] = string(metadataJSON)
	}

	return props, nil
}

func entryFromNode(node dbtype.Node) *types.TimelineEntry {
	props := node.Props
	entry := &types.TimelineEntry{}

	if id, ok := props["id"].(string); ok {
		entry.ID = id
	}
	if userID, ok := props["user_id"].(string); ok {
		entry.UserID = userID
	}
	if content, ok := props["content"].(string); ok {
		entry.Content = content
	}
	if source, ok := props["source"].(string); ok {
		entry.Source = types.Source(source)
	}
	if archived, ok := props["archived"].(bool); ok {
		entry.Archived = archived
	}
	if order, ok := props["narrative_order"].(int64); ok {
		entry.NarrativeOrder = int(order)
	}
	if derived, ok := props["derived_from_entry_id"].(string); ok {
		entry.DerivedFromEntryID = derived
	}
	if tagsValue, ok := props["tags"].([]any); ok {
		for _, t := range tagsValue {
			if tag, ok := t.(string); ok {
				entry.Tags = append(entry.Tags, tag)
			}
		}
	}
	if dateStr, ok := props["date"].(string); ok {
		if t, err := time.Parse(time.RFC3339, dateStr); err == nil {
			entry.Date = t
		}
	}
	if createdStr, ok := props["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, createdStr); err == nil {
			entry.CreatedAt = t
		}
	}
	if updatedStr, ok := props["updated_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, updatedStr); err == nil {
			entry.UpdatedAt = t
		}
	}
	if metadataStr, ok := props["metadata"].(string); ok && metadataStr != "" {
		var metadata map[string]interface{}
		if err := json.Unmarshal([]byte(metadataStr), &metadata); err == nil {
			entry.Metadata = metadata
		}
	}

	return entry
}

func anchorFromNode(node dbtype.Node) types.LifeAnchor {
	props := node.Props
	anchor := types.LifeAnchor{}

	if id, ok := props["id"].(string); ok {
		anchor.ID = id
	}
	if label, ok := props["label"].(string); ok {
		anchor.Label = label
	}
	if anchorType, ok := props["type"].(string); ok {
		anchor.Type = anchorType
	}
	if dateStr, ok := props["date"].(string); ok {
		if t, err := time.Parse(time.RFC3339, dateStr); err == nil {
			anchor.Date = t
		}
	}

	return anchor
}
