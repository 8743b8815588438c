package handles

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
)

const (
	handlePrefix = "handle"
	didPrefix    = "did"
)

// BadgerStore implements Store on top of a Badger database. It can share a
// database directory layout with the registry store but is opened on its own
// path to keep iteration prefixes cheap.
type BadgerStore struct {
	mu sync.Mutex
	db *badger.DB
}

// NewBadgerStore opens (or creates) the database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{db: handle}, nil
}

func handleKey(handle string) []byte {
	return []byte(fmt.Sprintf("%s_%s", handlePrefix, handle))
}

func didKey(did string) []byte {
	return []byte(fmt.Sprintf("%s_%s", didPrefix, did))
}

// Get implements Store.
func (s *BadgerStore) Get(handle string) (*Entry, error) {
	var entry Entry

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(handleKey(handle))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return entry.Unmarshal(val)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// GetByDID implements Store.
func (s *BadgerStore) GetByDID(did string) (*Entry, error) {
	var handle string

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(didKey(did))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			handle = string(val)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return s.Get(handle)
}

// Upsert implements Store.
func (s *BadgerStore) Upsert(entry *Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	isNew, _, err := s.upsert(entry)
	return isNew, err
}

// UpsertEntries implements Store.
func (s *BadgerStore) UpsertEntries(entries []*Entry) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added, updated := 0, 0
	for _, entry := range entries {
		if entry.Handle == "" {
			continue
		}
		isNew, applied, err := s.upsert(entry)
		if err != nil {
			return added, updated, err
		}
		if isNew {
			added++
		} else if applied {
			updated++
		}
	}

	return added, updated, nil
}

func (s *BadgerStore) upsert(entry *Entry) (isNew, applied bool, err error) {
	existing, err := s.Get(entry.Handle)
	if err != nil {
		return false, false, err
	}

	if existing != nil && existing.UpdatedAt.After(entry.UpdatedAt) {
		return false, false, nil
	}

	copied := *entry
	if copied.UpdatedAt.IsZero() {
		copied.UpdatedAt = time.Now().UTC()
	}

	data, err := copied.Marshal()
	if err != nil {
		return false, false, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if existing != nil && existing.DID != copied.DID && existing.DID != "" {
			if err := txn.Delete(didKey(existing.DID)); err != nil {
				return err
			}
		}
		if err := txn.Set(handleKey(copied.Handle), data); err != nil {
			return err
		}
		if copied.DID != "" {
			return txn.Set(didKey(copied.DID), []byte(copied.Handle))
		}
		return nil
	})
	if err != nil {
		return false, false, err
	}

	return existing == nil, true, nil
}

// ListSince implements Store.
func (s *BadgerStore) ListSince(t time.Time, limit int) ([]*Entry, error) {
	recent := []*Entry{}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(handlePrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry Entry
			err := it.Item().Value(func(val []byte) error {
				return entry.Unmarshal(val)
			})
			if err != nil {
				return err
			}
			if entry.UpdatedAt.After(t) {
				recent = append(recent, &entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(recent, func(i, j int) bool {
		return recent[i].UpdatedAt.Before(recent[j].UpdatedAt)
	})

	if limit > 0 && len(recent) > limit {
		recent = recent[:limit]
	}

	return recent, nil
}

// Count implements Store.
func (s *BadgerStore) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(handlePrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
