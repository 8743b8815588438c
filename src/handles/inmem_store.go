package handles

import (
	"sort"
	"sync"
	"time"
)

// InmemStore implements Store with plain maps, for tests and nodes running
// without persistence.
type InmemStore struct {
	sync.RWMutex

	byHandle map[string]*Entry
	byDID    map[string]string // did -> handle
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		byHandle: make(map[string]*Entry),
		byDID:    make(map[string]string),
	}
}

// Get implements Store.
func (s *InmemStore) Get(handle string) (*Entry, error) {
	s.RLock()
	defer s.RUnlock()

	entry, ok := s.byHandle[handle]
	if !ok {
		return nil, nil
	}

	copied := *entry
	return &copied, nil
}

// GetByDID implements Store.
func (s *InmemStore) GetByDID(did string) (*Entry, error) {
	s.RLock()
	defer s.RUnlock()

	handle, ok := s.byDID[did]
	if !ok {
		return nil, nil
	}

	copied := *s.byHandle[handle]
	return &copied, nil
}

// Upsert implements Store.
func (s *InmemStore) Upsert(entry *Entry) (bool, error) {
	s.Lock()
	defer s.Unlock()

	isNew, _ := s.upsertLocked(entry)
	return isNew, nil
}

// UpsertEntries implements Store.
func (s *InmemStore) UpsertEntries(entries []*Entry) (int, int, error) {
	s.Lock()
	defer s.Unlock()

	added, updated := 0, 0
	for _, entry := range entries {
		if entry.Handle == "" {
			continue
		}
		isNew, applied := s.upsertLocked(entry)
		if isNew {
			added++
		} else if applied {
			updated++
		}
	}

	return added, updated, nil
}

// upsertLocked applies last-write-wins. The second return value reports
// whether the write was applied rather than dropped as stale.
func (s *InmemStore) upsertLocked(entry *Entry) (isNew, applied bool) {
	existing, ok := s.byHandle[entry.Handle]
	if ok && existing.UpdatedAt.After(entry.UpdatedAt) {
		return false, false
	}

	copied := *entry
	if copied.UpdatedAt.IsZero() {
		copied.UpdatedAt = time.Now().UTC()
	}

	if ok && existing.DID != copied.DID {
		delete(s.byDID, existing.DID)
	}

	s.byHandle[copied.Handle] = &copied
	if copied.DID != "" {
		s.byDID[copied.DID] = copied.Handle
	}

	return !ok, true
}

// ListSince implements Store.
func (s *InmemStore) ListSince(t time.Time, limit int) ([]*Entry, error) {
	s.RLock()
	defer s.RUnlock()

	recent := []*Entry{}
	for _, entry := range s.byHandle {
		if entry.UpdatedAt.After(t) {
			copied := *entry
			recent = append(recent, &copied)
		}
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
func (s *InmemStore) Count() (int, error) {
	s.RLock()
	defer s.RUnlock()

	return len(s.byHandle), nil
}

// Close implements Store.
func (s *InmemStore) Close() error {
	return nil
}
