package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/lorekeeper/chronicle/pkg/types"
)

// BadgerStore persists entries and anchors in an embedded BadgerDB
// directory. It is the default backend: no external service, survives
// restarts, and is fast enough for single-host use.
//
// Key layout:
//
//	entry/<user_id>/<entry_id>  -> TimelineEntry JSON
//	anchor/<user_id>/<anchor_id> -> LifeAnchor JSON
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerStore opens (or creates) a Badger database at dir.
func NewBadgerStore(dir string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // badger's own logger is chatty; we log at this layer

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store at %s: %w", dir, err)
	}

	logger.Debug("opened badger store", "dir", dir)
	return &BadgerStore{db: db, logger: logger}, nil
}

func entryKey(userID, entryID string) []byte {
	return []byte("entry/" + userID + "/" + entryID)
}

func entryPrefix(userID string) []byte {
	return []byte("entry/" + userID + "/")
}

func anchorKey(userID, anchorID string) []byte {
	return []byte("anchor/" + userID + "/" + anchorID)
}

func anchorPrefix(userID string) []byte {
	return []byte("anchor/" + userID + "/")
}

func (b *BadgerStore) SaveEntry(ctx context.Context, entry *types.TimelineEntry) (string, error) {
	if err := prepareEntry(entry); err != nil {
		return "", err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry %s: %w", entry.ID, err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(entry.UserID, entry.ID), data)
	})
	if err != nil {
		return "", fmt.Errorf("failed to save entry %s: %w", entry.ID, err)
	}
	return entry.ID, nil
}

func (b *BadgerStore) GetEntry(ctx context.Context, userID, entryID string) (*types.TimelineEntry, error) {
	var entry types.TimelineEntry

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(userID, entryID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %s: %w", entryID, err)
	}
	return &entry, nil
}

func (b *BadgerStore) GetEntries(ctx context.Context, userID string, filter types.EntryFilter) ([]types.TimelineEntry, error) {
	var result []types.TimelineEntry

	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := entryPrefix(userID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry types.TimelineEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			if entryMatchesFilter(&entry, filter) {
				result = append(result, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for user %s: %w", userID, err)
	}

	sortEntriesByDate(result)
	return applyLimit(result, filter.Limit), nil
}

func (b *BadgerStore) ArchiveEntry(ctx context.Context, userID, entryID string) error {
	entry, err := b.GetEntry(ctx, userID, entryID)
	if err != nil {
		return err
	}
	entry.Archived = true

	if _, err := b.SaveEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to archive entry %s: %w", entryID, err)
	}
	return nil
}

func (b *BadgerStore) CorrectEntry(ctx context.Context, userID, entryID string, replacement *types.TimelineEntry) (string, error) {
	return correctEntry(ctx, b, userID, entryID, replacement)
}

func (b *BadgerStore) ClearEntries(ctx context.Context, userID string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()

		prefix := entryPrefix(userID)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear entries for user %s: %w", userID, err)
	}
	return nil
}

func (b *BadgerStore) SaveAnchor(ctx context.Context, userID string, anchor *types.LifeAnchor) (string, error) {
	if err := prepareAnchor(userID, anchor); err != nil {
		return "", err
	}

	data, err := json.Marshal(anchor)
	if err != nil {
		return "", fmt.Errorf("failed to marshal anchor %s: %w", anchor.ID, err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(anchorKey(userID, anchor.ID), data)
	})
	if err != nil {
		return "", fmt.Errorf("failed to save anchor %s: %w", anchor.ID, err)
	}
	return anchor.ID, nil
}

func (b *BadgerStore) GetAnchors(ctx context.Context, userID string) ([]types.LifeAnchor, error) {
	var result []types.LifeAnchor

	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := anchorPrefix(userID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var anchor types.LifeAnchor
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &anchor)
			})
			if err != nil {
				return err
			}
			result = append(result, anchor)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list anchors for user %s: %w", userID, err)
	}

	sortAnchorsByDate(result)
	return result, nil
}

func (b *BadgerStore) DeleteAnchor(ctx context.Context, userID, anchorID string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		key := anchorKey(userID, anchorID)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrAnchorNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete anchor %s: %w", anchorID, err)
	}
	return nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}
