package store

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

// BadgerRaw implements RawStore on top of BadgerDB. Adapted from the
// teacher's internal/storage/badger.go: same Get/Iterate/Close shape,
// generalized to batch writes (BadgerStore.Set/Delete were single-key)
// since Patch.Merge needs every change in one fork to land atomically.
type BadgerRaw struct {
	db *badger.DB
}

// NewBadgerRaw opens (creating if absent) a BadgerDB-backed raw store at
// path.
func NewBadgerRaw(path string) (*BadgerRaw, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger db: %w", err)
	}
	return &BadgerRaw{db: db}, nil
}

// Get retrieves a value by key.
func (s *BadgerRaw) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	var valCopy []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			valCopy = append([]byte{}, val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: badger get: %w", err)
	}
	return valCopy, true, nil
}

// Iterate walks every key under prefix in key order.
func (s *BadgerRaw) Iterate(_ context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			keyCopy := item.KeyCopy(nil)
			cont := true
			err := item.Value(func(val []byte) error {
				cont = fn(keyCopy, append([]byte{}, val...))
				return nil
			})
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
}

// WriteBatch applies every change in one atomic Badger transaction.
func (s *BadgerRaw) WriteBatch(_ context.Context, changes []Change) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, c := range changes {
			if c.Delete {
				if err := txn.Delete(c.Key); err != nil && err != badger.ErrKeyNotFound {
					return err
				}
				continue
			}
			if err := txn.Set(c.Key, c.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *BadgerRaw) Close() error {
	return s.db.Close()
}
