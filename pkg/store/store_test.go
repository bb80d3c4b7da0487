package store

import (
	"context"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorekeeper/chronicle/pkg/config"
	"github.com/lorekeeper/chronicle/pkg/types"
)

// testStores returns a constructor per backend that can run without
// external services. Postgres and Neo4j share all the filter, archive
// and correction logic exercised here.
func testStores() map[string]func(t *testing.T) EntryStore {
	return map[string]func(t *testing.T) EntryStore{
		"memory": func(t *testing.T) EntryStore {
			return NewMemoryStore()
		},
		"badger": func(t *testing.T) EntryStore {
			s, err := NewBadgerStore(t.TempDir(), nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func testEntry(userID, content string, date time.Time) *types.TimelineEntry {
	return &types.TimelineEntry{
		UserID:  userID,
		Content: content,
		Date:    date,
		Source:  types.SourceJournal,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestStoreSaveAndGetEntry(t *testing.T) {
	for name, open := range testStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			entry := testEntry("user-1", "started a new job", day(2023, time.March, 6))
			entry.Tags = []string{"work"}
			entry.Metadata = map[string]interface{}{"unit_id": "unit-1"}

			id, err := s.SaveEntry(ctx, entry)
			require.NoError(t, err)
			require.NotEmpty(t, id)

			got, err := s.GetEntry(ctx, "user-1", id)
			require.NoError(t, err)
			assert.Equal(t, "started a new job", got.Content)
			assert.Equal(t, types.SourceJournal, got.Source)
			assert.Equal(t, []string{"work"}, got.Tags)
			assert.True(t, got.Date.Equal(day(2023, time.March, 6)))
			assert.Equal(t, "unit-1", got.Metadata["unit_id"])
			assert.False(t, got.CreatedAt.IsZero())

			_, err = s.GetEntry(ctx, "user-1", "no-such-entry")
			assert.ErrorIs(t, err, ErrEntryNotFound)
		})
	}
}

func TestStoreSaveEntryValidation(t *testing.T) {
	for name, open := range testStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			_, err := s.SaveEntry(ctx, &types.TimelineEntry{Content: "no user"})
			assert.ErrorIs(t, err, types.ErrEmptyUserID)

			_, err = s.SaveEntry(ctx, &types.TimelineEntry{UserID: "user-1", Content: "   "})
			assert.ErrorIs(t, err, types.ErrEmptyContent)
		})
	}
}

func TestStoreGetEntriesOrdersByDate(t *testing.T) {
	for name, open := range testStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			later := testEntry("user-1", "later", day(2023, time.June, 1))
			earlier := testEntry("user-1", "earlier", day(2021, time.January, 15))
			middle := testEntry("user-1", "middle", day(2022, time.September, 9))

			for _, e := range []*types.TimelineEntry{later, earlier, middle} {
				_, err := s.SaveEntry(ctx, e)
				require.NoError(t, err)
			}

			entries, err := s.GetEntries(ctx, "user-1", types.EntryFilter{})
			require.NoError(t, err)
			require.Len(t, entries, 3)
			assert.Equal(t, "earlier", entries[0].Content)
			assert.Equal(t, "middle", entries[1].Content)
			assert.Equal(t, "later", entries[2].Content)
		})
	}
}

func TestStoreGetEntriesFilter(t *testing.T) {
	for name, open := range testStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			a := testEntry("user-1", "moved to berlin", day(2020, time.February, 1))
			a.Tags = []string{"moving", "cities"}
			b := testEntry("user-1", "started running", day(2021, time.April, 10))
			b.Tags = []string{"health"}
			c := testEntry("user-1", "chat note", day(2022, time.July, 20))
			c.Source = types.SourceChat

			for _, e := range []*types.TimelineEntry{a, b, c} {
				_, err := s.SaveEntry(ctx, e)
				require.NoError(t, err)
			}

			from := day(2021, time.January, 1)
			to := day(2021, time.December, 31)
			entries, err := s.GetEntries(ctx, "user-1", types.EntryFilter{From: &from, To: &to})
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "started running", entries[0].Content)

			entries, err = s.GetEntries(ctx, "user-1", types.EntryFilter{Source: types.SourceChat})
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "chat note", entries[0].Content)

			entries, err = s.GetEntries(ctx, "user-1", types.EntryFilter{Tags: []string{"cities", "nonexistent"}})
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "moved to berlin", entries[0].Content)

			entries, err = s.GetEntries(ctx, "user-1", types.EntryFilter{Limit: 2})
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "moved to berlin", entries[0].Content)
		})
	}
}

func TestStoreArchiveExcludedByDefault(t *testing.T) {
	for name, open := range testStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			keep := testEntry("user-1", "keep me", day(2022, time.March, 1))
			drop := testEntry("user-1", "archive me", day(2022, time.March, 2))

			_, err := s.SaveEntry(ctx, keep)
			require.NoError(t, err)
			dropID, err := s.SaveEntry(ctx, drop)
			require.NoError(t, err)

			require.NoError(t, s.ArchiveEntry(ctx, "user-1", dropID))

			entries, err := s.GetEntries(ctx, "user-1", types.EntryFilter{})
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "keep me", entries[0].Content)

			entries, err = s.GetEntries(ctx, "user-1", types.EntryFilter{IncludeArchived: true})
			require.NoError(t, err)
			assert.Len(t, entries, 2)

			err = s.ArchiveEntry(ctx, "user-1", "no-such-entry")
			assert.ErrorIs(t, err, ErrEntryNotFound)
		})
	}
}

func TestStoreCorrectEntry(t *testing.T) {
	for name, open := range testStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			original := testEntry("user-1", "graduated in 2019", day(2019, time.May, 1))
			original.Tags = []string{"education"}
			originalID, err := s.SaveEntry(ctx, original)
			require.NoError(t, err)

			newID, err := s.CorrectEntry(ctx, "user-1", originalID, &types.TimelineEntry{
				Content: "graduated in May 2020",
				Date:    day(2020, time.May, 1),
			})
			require.NoError(t, err)
			require.NotEmpty(t, newID)
			require.NotEqual(t, originalID, newID)

			// Original is archived but retrievable.
			old, err := s.GetEntry(ctx, "user-1", originalID)
			require.NoError(t, err)
			assert.True(t, old.Archived)

			corrected, err := s.GetEntry(ctx, "user-1", newID)
			require.NoError(t, err)
			assert.Equal(t, "graduated in May 2020", corrected.Content)
			assert.Equal(t, types.SourceCorrection, corrected.Source)
			assert.Equal(t, []string{"education"}, corrected.Tags)
			assert.Equal(t, originalID, corrected.Metadata["corrected_from"])
			assert.True(t, corrected.Date.Equal(day(2020, time.May, 1)))

			// Default reads see only the correction.
			entries, err := s.GetEntries(ctx, "user-1", types.EntryFilter{})
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, newID, entries[0].ID)

			_, err = s.CorrectEntry(ctx, "user-1", "no-such-entry", &types.TimelineEntry{Content: "x"})
			assert.ErrorIs(t, err, ErrEntryNotFound)
		})
	}
}

func TestStoreCorrectEntryInheritsDate(t *testing.T) {
	for name, open := range testStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			original := testEntry("user-1", "old wording", day(2018, time.November, 3))
			originalID, err := s.SaveEntry(ctx, original)
			require.NoError(t, err)

			newID, err := s.CorrectEntry(ctx, "user-1", originalID, &types.TimelineEntry{
				Content: "new wording",
			})
			require.NoError(t, err)

			corrected, err := s.GetEntry(ctx, "user-1", newID)
			require.NoError(t, err)
			assert.True(t, corrected.Date.Equal(day(2018, time.November, 3)))
		})
	}
}

func TestStoreClearEntries(t *testing.T) {
	for name, open := range testStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			_, err := s.SaveEntry(ctx, testEntry("user-1", "mine", day(2022, time.May, 5)))
			require.NoError(t, err)
			_, err = s.SaveEntry(ctx, testEntry("user-2", "theirs", day(2022, time.May, 6)))
			require.NoError(t, err)

			require.NoError(t, s.ClearEntries(ctx, "user-1"))

			mine, err := s.GetEntries(ctx, "user-1", types.EntryFilter{IncludeArchived: true})
			require.NoError(t, err)
			assert.Empty(t, mine)

			theirs, err := s.GetEntries(ctx, "user-2", types.EntryFilter{})
			require.NoError(t, err)
			assert.Len(t, theirs, 1)
		})
	}
}

func TestStoreUserIsolation(t *testing.T) {
	for name, open := range testStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			id, err := s.SaveEntry(ctx, testEntry("user-1", "private", day(2022, time.May, 5)))
			require.NoError(t, err)

			_, err = s.GetEntry(ctx, "user-2", id)
			assert.ErrorIs(t, err, ErrEntryNotFound)

			entries, err := s.GetEntries(ctx, "user-2", types.EntryFilter{})
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestStoreAnchors(t *testing.T) {
	for name, open := range testStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			later := &types.LifeAnchor{Label: "moved abroad", Date: day(2021, time.August, 1)}
			earlier := &types.LifeAnchor{Label: "graduation", Date: day(2020, time.May, 1)}

			laterID, err := s.SaveAnchor(ctx, "user-1", later)
			require.NoError(t, err)
			require.NotEmpty(t, laterID)
			_, err = s.SaveAnchor(ctx, "user-1", earlier)
			require.NoError(t, err)

			anchors, err := s.GetAnchors(ctx, "user-1")
			require.NoError(t, err)
			require.Len(t, anchors, 2)
			assert.Equal(t, "graduation", anchors[0].Label)
			assert.Equal(t, "moved abroad", anchors[1].Label)

			// Saving with the same id updates in place.
			later.Label = "moved to lisbon"
			_, err = s.SaveAnchor(ctx, "user-1", later)
			require.NoError(t, err)

			anchors, err = s.GetAnchors(ctx, "user-1")
			require.NoError(t, err)
			require.Len(t, anchors, 2)
			assert.Equal(t, "moved to lisbon", anchors[1].Label)

			require.NoError(t, s.DeleteAnchor(ctx, "user-1", laterID))
			anchors, err = s.GetAnchors(ctx, "user-1")
			require.NoError(t, err)
			assert.Len(t, anchors, 1)

			err = s.DeleteAnchor(ctx, "user-1", "no-such-anchor")
			assert.ErrorIs(t, err, ErrAnchorNotFound)
		})
	}
}

func TestStoreAnchorValidation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.SaveAnchor(ctx, "user-1", &types.LifeAnchor{Date: day(2020, time.May, 1)})
	assert.Error(t, err)

	_, err = s.SaveAnchor(ctx, "user-1", &types.LifeAnchor{Label: "undated"})
	assert.Error(t, err)

	_, err = s.SaveAnchor(ctx, "", &types.LifeAnchor{Label: "x", Date: day(2020, time.May, 1)})
	assert.ErrorIs(t, err, types.ErrEmptyUserID)
}

func TestNewStoreFactory(t *testing.T) {
	s, err := New(config.StoreConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(config.StoreConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(config.StoreConfig{Driver: "badger", URI: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())

	_, err = New(config.StoreConfig{Driver: "badger"}, nil)
	assert.Error(t, err)

	_, err = New(config.StoreConfig{Driver: "cassandra"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestExportEntries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := testEntry("user-1", "first event", day(2020, time.January, 1))
	first.Tags = []string{"a", "b"}
	first.Metadata = map[string]interface{}{"unit_id": "unit-1"}
	second := testEntry("user-1", "second event", day(2021, time.January, 1))

	_, err := s.SaveEntry(ctx, second)
	require.NoError(t, err)
	_, err = s.SaveEntry(ctx, first)
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := ExportEntries(ctx, s, "user-1", dir, types.EntryFilter{})
	require.NoError(t, err)
	require.FileExists(t, path)

	rows, err := parquet.ReadFile[EntryExportRecord](path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "first event", rows[0].Content)
	assert.Equal(t, "a,b", rows[0].Tags)
	assert.Contains(t, rows[0].Metadata, "unit-1")
	assert.Equal(t, "second event", rows[1].Content)
}
