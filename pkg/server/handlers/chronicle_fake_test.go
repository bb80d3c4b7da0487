package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lorekeeper/chronicle"
	"github.com/lorekeeper/chronicle/pkg/epiphany"
	"github.com/lorekeeper/chronicle/pkg/store"
	"github.com/lorekeeper/chronicle/pkg/types"
)

// fakeChronicle backs handler tests with map storage and injectable
// failures. Run signals on the runs channel so async ingest tests can
// wait for the background goroutine.
type fakeChronicle struct {
	mu      sync.Mutex
	entries map[string]*types.TimelineEntry
	anchors map[string][]types.LifeAnchor
	cleared []string

	runErr error
	runs   chan string
}

var _ chronicle.Chronicle = (*fakeChronicle)(nil)

func newFakeChronicle() *fakeChronicle {
	return &fakeChronicle{
		entries: make(map[string]*types.TimelineEntry),
		anchors: make(map[string][]types.LifeAnchor),
		runs:    make(chan string, 8),
	}
}

func (f *fakeChronicle) Run(ctx context.Context, userID, text string, options *chronicle.RunOptions) ([]types.MaterializedSlice, error) {
	defer func() { f.runs <- userID }()

	if f.runErr != nil {
		return nil, f.runErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := fmt.Sprintf("entry-%d", len(f.entries)+1)
	f.entries[id] = &types.TimelineEntry{
		ID:      id,
		UserID:  userID,
		Content: text,
		Date:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Source:  types.SourceChat,
	}

	return []types.MaterializedSlice{{
		EntryID:        id,
		Content:        text,
		Date:           time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		NarrativeOrder: 1,
	}}, nil
}

func (f *fakeChronicle) Timeline(ctx context.Context, userID string, filter types.EntryFilter) ([]types.TimelineEntry, error) {
	if userID == "" {
		return nil, types.ErrEmptyUserID
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var result []types.TimelineEntry
	for _, entry := range f.entries {
		if entry.UserID != userID {
			continue
		}
		if entry.Archived && !filter.IncludeArchived {
			continue
		}
		result = append(result, *entry)
	}
	return result, nil
}

func (f *fakeChronicle) GetEntry(ctx context.Context, userID, entryID string) (*types.TimelineEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[entryID]
	if !ok || entry.UserID != userID {
		return nil, store.ErrEntryNotFound
	}
	clone := *entry
	return &clone, nil
}

func (f *fakeChronicle) ArchiveEntry(ctx context.Context, userID, entryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[entryID]
	if !ok || entry.UserID != userID {
		return store.ErrEntryNotFound
	}
	entry.Archived = true
	return nil
}

func (f *fakeChronicle) CorrectEntry(ctx context.Context, userID, entryID string, replacement *types.TimelineEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[entryID]
	if !ok || entry.UserID != userID {
		return "", store.ErrEntryNotFound
	}
	entry.Archived = true

	id := fmt.Sprintf("entry-%d", len(f.entries)+1)
	clone := *replacement
	clone.ID = id
	f.entries[id] = &clone
	return id, nil
}

func (f *fakeChronicle) ClearTimeline(ctx context.Context, userID string) error {
	if userID == "" {
		return types.ErrEmptyUserID
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for id, entry := range f.entries {
		if entry.UserID == userID {
			delete(f.entries, id)
		}
	}
	f.cleared = append(f.cleared, userID)
	return nil
}

func (f *fakeChronicle) AddAnchor(ctx context.Context, userID string, anchor *types.LifeAnchor) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if anchor.ID == "" {
		anchor.ID = fmt.Sprintf("anchor-%d", len(f.anchors[userID])+1)
	}
	f.anchors[userID] = append(f.anchors[userID], *anchor)
	return anchor.ID, nil
}

func (f *fakeChronicle) GetAnchors(ctx context.Context, userID string) ([]types.LifeAnchor, error) {
	if userID == "" {
		return nil, types.ErrEmptyUserID
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.LifeAnchor(nil), f.anchors[userID]...), nil
}

func (f *fakeChronicle) DeleteAnchor(ctx context.Context, userID, anchorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	anchors := f.anchors[userID]
	for i, anchor := range anchors {
		if anchor.ID == anchorID {
			f.anchors[userID] = append(anchors[:i], anchors[i+1:]...)
			return nil
		}
	}
	return store.ErrAnchorNotFound
}

func (f *fakeChronicle) Insights(ctx context.Context, userID string) ([]epiphany.Insight, error) {
	if userID == "" {
		return nil, types.ErrEmptyUserID
	}
	return []epiphany.Insight{{
		Type:        epiphany.InsightConfidenceSummary,
		Description: "resolution confidence is steady",
		Confidence:  0.8,
	}}, nil
}

func (f *fakeChronicle) ExportTimeline(ctx context.Context, userID, outputDir string, filter types.EntryFilter) (string, error) {
	if userID == "" {
		return "", types.ErrEmptyUserID
	}
	return outputDir + "/timeline.parquet", nil
}

func (f *fakeChronicle) Close(ctx context.Context) error {
	return nil
}

// waitForRun blocks until the fake's Run has been invoked or the
// timeout passes, returning the user id Run saw.
func (f *fakeChronicle) waitForRun(timeout time.Duration) (string, bool) {
	select {
	case userID := <-f.runs:
		return userID, true
	case <-time.After(timeout):
		return "", false
	}
}
