package store

import (
	"context"
	"sync"

	"github.com/lorekeeper/chronicle/pkg/types"
)

// MemoryStore keeps everything in process memory. It is the zero-setup
// backend used by tests, examples and throwaway runs; nothing survives
// a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]map[string]*types.TimelineEntry
	anchors map[string]map[string]*types.LifeAnchor
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]map[string]*types.TimelineEntry),
		anchors: make(map[string]map[string]*types.LifeAnchor),
	}
}

func (m *MemoryStore) SaveEntry(ctx context.Context, entry *types.TimelineEntry) (string, error) {
	if err := prepareEntry(entry); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	userEntries, ok := m.entries[entry.UserID]
	if !ok {
		userEntries = make(map[string]*types.TimelineEntry)
		m.entries[entry.UserID] = userEntries
	}
	userEntries[entry.ID] = cloneEntry(entry)
	return entry.ID, nil
}

func (m *MemoryStore) GetEntry(ctx context.Context, userID, entryID string) (*types.TimelineEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[userID][entryID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return cloneEntry(entry), nil
}

func (m *MemoryStore) GetEntries(ctx context.Context, userID string, filter types.EntryFilter) ([]types.TimelineEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []types.TimelineEntry
	for _, entry := range m.entries[userID] {
		if entryMatchesFilter(entry, filter) {
			result = append(result, *cloneEntry(entry))
		}
	}

	sortEntriesByDate(result)
	return applyLimit(result, filter.Limit), nil
}

func (m *MemoryStore) ArchiveEntry(ctx context.Context, userID, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[userID][entryID]
	if !ok {
		return ErrEntryNotFound
	}
	entry.Archived = true
	touchEntry(entry)
	return nil
}

func (m *MemoryStore) CorrectEntry(ctx context.Context, userID, entryID string, replacement *types.TimelineEntry) (string, error) {
	return correctEntry(ctx, m, userID, entryID, replacement)
}

func (m *MemoryStore) ClearEntries(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, userID)
	return nil
}

func (m *MemoryStore) SaveAnchor(ctx context.Context, userID string, anchor *types.LifeAnchor) (string, error) {
	if err := prepareAnchor(userID, anchor); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	userAnchors, ok := m.anchors[userID]
	if !ok {
		userAnchors = make(map[string]*types.LifeAnchor)
		m.anchors[userID] = userAnchors
	}
	a := *anchor
	userAnchors[anchor.ID] = &a
	return anchor.ID, nil
}

func (m *MemoryStore) GetAnchors(ctx context.Context, userID string) ([]types.LifeAnchor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []types.LifeAnchor
	for _, anchor := range m.anchors[userID] {
		result = append(result, *anchor)
	}
	sortAnchorsByDate(result)
	return result, nil
}

func (m *MemoryStore) DeleteAnchor(ctx context.Context, userID, anchorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.anchors[userID][anchorID]; !ok {
		return ErrAnchorNotFound
	}
	delete(m.anchors[userID], anchorID)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// cloneEntry copies an entry deeply enough that callers cannot mutate
// stored state through returned pointers.
func cloneEntry(entry *types.TimelineEntry) *types.TimelineEntry {
	clone := *entry
	if entry.Tags != nil {
		clone.Tags = append([]string(nil), entry.Tags...)
	}
	if entry.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(entry.Metadata))
		for k, v := range entry.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
