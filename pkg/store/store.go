// Package store provides persistent storage for timeline entries and
// life anchors.
//
// # Supported Backends
//
// The following storage backends are supported:
//   - MemoryStore: in-process maps, for tests and examples
//   - BadgerStore: embedded BadgerDB key-value store (the default)
//   - PostgresStore: external PostgreSQL
//   - Neo4jStore: Neo4j graph database
//
// # Usage
//
//	st, err := store.New(config.StoreConfig{Driver: "badger", URI: dir}, logger)
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
// All backends share the same read semantics: GetEntries returns a
// user's entries ordered by date, excludes archived entries unless the
// filter asks for them, and matches tag filters when the entry carries
// at least one of the requested tags.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lorekeeper/chronicle/pkg/config"
	"github.com/lorekeeper/chronicle/pkg/types"
)

// Driver names accepted by New.
const (
	DriverMemory   = "memory"
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
	DriverNeo4j    = "neo4j"
)

// Storage errors.
var (
	ErrEntryNotFound  = errors.New("entry not found")
	ErrAnchorNotFound = errors.New("anchor not found")
)

// EntryStore is the persistence contract for timelines. SaveEntry
// returns the stored entry's id, assigning one when the entry has
// none. CorrectEntry archives the original and persists a replacement
// carrying corrected_from provenance, returning the replacement's id.
type EntryStore interface {
	SaveEntry(ctx context.Context, entry *types.TimelineEntry) (string, error)
	GetEntry(ctx context.Context, userID, entryID string) (*types.TimelineEntry, error)
	GetEntries(ctx context.Context, userID string, filter types.EntryFilter) ([]types.TimelineEntry, error)
	ArchiveEntry(ctx context.Context, userID, entryID string) error
	CorrectEntry(ctx context.Context, userID, entryID string, replacement *types.TimelineEntry) (string, error)
	ClearEntries(ctx context.Context, userID string) error

	SaveAnchor(ctx context.Context, userID string, anchor *types.LifeAnchor) (string, error)
	GetAnchors(ctx context.Context, userID string) ([]types.LifeAnchor, error)
	DeleteAnchor(ctx context.Context, userID, anchorID string) error

	Close() error
}

// New creates an EntryStore from configuration. An empty driver falls
// back to the in-memory store so tests and examples need no setup.
func New(cfg config.StoreConfig, logger *slog.Logger) (EntryStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(cfg.Driver) {
	case DriverMemory, "":
		return NewMemoryStore(), nil

	case DriverBadger:
		if cfg.URI == "" {
			return nil, fmt.Errorf("badger store requires a data directory in store.uri")
		}
		return NewBadgerStore(cfg.URI, logger)

	case DriverPostgres:
		if cfg.URI == "" {
			return nil, fmt.Errorf("postgres store requires a connection string in store.uri")
		}
		return NewPostgresStore(cfg.URI, logger)

	case DriverNeo4j:
		if cfg.URI == "" {
			return nil, fmt.Errorf("neo4j store requires a bolt uri in store.uri")
		}
		return NewNeo4jStore(cfg.URI, cfg.Username, cfg.Password, cfg.Database, logger)

	default:
		return nil, fmt.Errorf("unsupported store driver: %s (supported: memory, badger, postgres, neo4j)", cfg.Driver)
	}
}

// prepareEntry validates an entry and fills the fields every backend
// needs before persisting: id and timestamps.
func prepareEntry(entry *types.TimelineEntry) error {
	if entry == nil {
		return fmt.Errorf("cannot save nil entry")
	}
	if err := entry.ValidateForSave(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	return nil
}

// prepareAnchor validates an anchor and assigns an id when missing.
func prepareAnchor(userID string, anchor *types.LifeAnchor) error {
	if anchor == nil {
		return fmt.Errorf("cannot save nil anchor")
	}
	if userID == "" {
		return types.ErrEmptyUserID
	}
	if strings.TrimSpace(anchor.Label) == "" {
		return fmt.Errorf("anchor label cannot be empty")
	}
	if anchor.Date.IsZero() {
		return fmt.Errorf("anchor date cannot be zero")
	}
	if anchor.ID == "" {
		anchor.ID = uuid.New().String()
	}
	return nil
}

// entryMatchesFilter reports whether an entry passes every constraint
// in the filter. Tags match when the entry carries at least one of the
// requested tags.
func entryMatchesFilter(entry *types.TimelineEntry, filter types.EntryFilter) bool {
	if entry.Archived && !filter.IncludeArchived {
		return false
	}
	if filter.From != nil && entry.Date.Before(*filter.From) {
		return false
	}
	if filter.To != nil && entry.Date.After(*filter.To) {
		return false
	}
	if filter.Source != "" && entry.Source != filter.Source {
		return false
	}
	if len(filter.Tags) > 0 && !hasAnyTag(entry.Tags, filter.Tags) {
		return false
	}
	return true
}

func hasAnyTag(entryTags, wanted []string) bool {
	for _, w := range wanted {
		for _, t := range entryTags {
			if strings.EqualFold(t, w) {
				return true
			}
		}
	}
	return false
}

// sortEntriesByDate orders entries chronologically, breaking ties by
// narrative order and then creation time so runs read back in telling
// order.
func sortEntriesByDate(entries []types.TimelineEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		if entries[i].NarrativeOrder != entries[j].NarrativeOrder {
			return entries[i].NarrativeOrder < entries[j].NarrativeOrder
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}

func applyLimit(entries []types.TimelineEntry, limit int) []types.TimelineEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

func sortAnchorsByDate(anchors []types.LifeAnchor) {
	sort.SliceStable(anchors, func(i, j int) bool {
		return anchors[i].Date.Before(anchors[j].Date)
	})
}

func touchEntry(entry *types.TimelineEntry) {
	entry.UpdatedAt = time.Now().UTC()
}

// correctEntry implements the shared archive-and-replace flow on top
// of any backend. The replacement inherits the original's date, tags
// and source when it leaves them unset, gets a fresh id, and records
// which entry it corrects in its metadata.
func correctEntry(ctx context.Context, s EntryStore, userID, entryID string, replacement *types.TimelineEntry) (string, error) {
	if replacement == nil {
		return "", fmt.Errorf("cannot correct entry %s with nil replacement", entryID)
	}

	original, err := s.GetEntry(ctx, userID, entryID)
	if err != nil {
		return "", err
	}

	if err := s.ArchiveEntry(ctx, userID, entryID); err != nil {
		return "", fmt.Errorf("failed to archive entry %s: %w", entryID, err)
	}

	corrected := *replacement
	corrected.ID = ""
	corrected.UserID = userID
	if strings.TrimSpace(corrected.Content) == "" {
		corrected.Content = original.Content
	}
	if corrected.Date.IsZero() {
		corrected.Date = original.Date
	}
	if corrected.Tags == nil {
		corrected.Tags = original.Tags
	}
	if corrected.Source == "" {
		corrected.Source = types.SourceCorrection
	}
	if corrected.NarrativeOrder == 0 {
		corrected.NarrativeOrder = original.NarrativeOrder
	}
	corrected.Archived = false
	corrected.CreatedAt = time.Time{}

	meta := make(map[string]interface{}, len(corrected.Metadata)+1)
	for k, v := range corrected.Metadata {
		meta[k] = v
	}
	meta["corrected_from"] = original.ID
	corrected.Metadata = meta

	id, err := s.SaveEntry(ctx, &corrected)
	if err != nil {
		return "", fmt.Errorf("failed to save correction for entry %s: %w", entryID, err)
	}
	return id, nil
}
