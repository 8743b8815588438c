package registry

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/badger"
)

const (
	nodePrefix    = "node"
	seedPrefix    = "seed"
	syncLogPrefix = "synclog"
	identityKey   = "identity"
)

// BadgerStore implements Store on top of a Badger database. A single mutex
// serialises read-modify-write cycles on node entries so that concurrent
// markers against the same domain do not lose updates; Badger itself handles
// durability.
type BadgerStore struct {
	mu sync.Mutex

	ownDomain string
	policy    TrustPolicy
	clock     clock.Clock

	db            *badger.DB
	path          string
	nextSyncIndex int
}

// NewBadgerStore opens (or creates) the database at path.
func NewBadgerStore(ownDomain string, policy TrustPolicy, clk clock.Clock, path string) (*BadgerStore, error) {
	if clk == nil {
		clk = clock.New()
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		ownDomain: ownDomain,
		policy:    policy,
		clock:     clk,
		db:        handle,
		path:      path,
	}

	if err := store.loadSyncIndex(); err != nil {
		handle.Close()
		return nil, err
	}

	return store, nil
}

//==============================================================================
// Keys

func nodeKey(domain string) []byte {
	return []byte(fmt.Sprintf("%s_%s", nodePrefix, domain))
}

func seedKey(domain string) []byte {
	return []byte(fmt.Sprintf("%s_%s", seedPrefix, domain))
}

func syncLogKey(index int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", syncLogPrefix, index))
}

//==============================================================================
// Store interface

// Get implements Store.
func (s *BadgerStore) Get(domain string) (*SwarmNode, error) {
	node, err := s.dbGetNode(domain)
	if err == badger.ErrKeyNotFound {
		return nil, ErrUnknownDomain{Domain: domain}
	}
	return node, err
}

// UpsertNode implements Store.
func (s *BadgerStore) UpsertNode(node *SwarmNode, discoveredVia string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.upsert(node, discoveredVia)
}

// UpsertBatch implements Store.
func (s *BadgerStore) UpsertBatch(nodes []*SwarmNode, discoveredVia string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added, updated := 0, 0
	for _, node := range nodes {
		if node.Domain == "" || node.Domain == s.ownDomain {
			continue
		}
		isNew, err := s.upsert(node, discoveredVia)
		if err != nil {
			return added, updated, err
		}
		if isNew {
			added++
		} else {
			updated++
		}
	}

	return added, updated, nil
}

func (s *BadgerStore) upsert(node *SwarmNode, discoveredVia string) (bool, error) {
	existing, err := s.dbGetNode(node.Domain)
	if err != nil && err != badger.ErrKeyNotFound {
		return false, err
	}

	merged := mergeNode(existing, node, discoveredVia, s.policy, s.clock.Now())

	return existing == nil, s.dbSetNode(merged)
}

// ListActive implements Store.
func (s *BadgerStore) ListActive(limit int) ([]*SwarmNode, error) {
	nodes, err := s.dbListNodes(func(n *SwarmNode) bool { return n.IsActive })
	if err != nil {
		return nil, err
	}

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].TrustScore != nodes[j].TrustScore {
			return nodes[i].TrustScore > nodes[j].TrustScore
		}
		return nodes[i].Domain < nodes[j].Domain
	})

	return bounded(nodes, limit), nil
}

// ListForGossip implements Store.
func (s *BadgerStore) ListForGossip(count int) ([]*SwarmNode, error) {
	nodes, err := s.dbListNodes(func(n *SwarmNode) bool {
		return n.IsActive && n.TrustScore > s.policy.GossipFloor
	})
	if err != nil {
		return nil, err
	}

	rand.Shuffle(len(nodes), func(i, j int) {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	})

	return bounded(nodes, count), nil
}

// ListSince implements Store.
func (s *BadgerStore) ListSince(t time.Time, limit int) ([]*SwarmNode, error) {
	nodes, err := s.dbListNodes(func(n *SwarmNode) bool { return n.UpdatedAt.After(t) })
	if err != nil {
		return nil, err
	}

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].UpdatedAt.Before(nodes[j].UpdatedAt)
	})

	return bounded(nodes, limit), nil
}

// Count implements Store.
func (s *BadgerStore) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(nodePrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// MarkSuccess implements Store.
func (s *BadgerStore) MarkSuccess(domain string) error {
	return s.mark(domain, func(node *SwarmNode) {
		applySuccess(node, s.policy, s.clock.Now())
	})
}

// MarkFailure implements Store.
func (s *BadgerStore) MarkFailure(domain string) error {
	return s.mark(domain, func(node *SwarmNode) {
		applyFailure(node, s.policy, s.clock.Now())
	})
}

func (s *BadgerStore) mark(domain string, apply func(*SwarmNode)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.dbGetNode(domain)
	if err == badger.ErrKeyNotFound {
		return ErrUnknownDomain{Domain: domain}
	}
	if err != nil {
		return err
	}

	apply(node)

	return s.dbSetNode(node)
}

// LogSync implements Store.
func (s *BadgerStore) LogSync(entry *SyncLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *entry
	if copied.StartedAt.IsZero() {
		copied.StartedAt = s.clock.Now()
	}

	data, err := copied.Marshal()
	if err != nil {
		return err
	}

	index := s.nextSyncIndex
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(syncLogKey(index), data)
	})
	if err != nil {
		return err
	}

	s.nextSyncIndex++
	return nil
}

// SyncLog implements Store.
func (s *BadgerStore) SyncLog(limit int) ([]*SyncLogEntry, error) {
	entries := []*SyncLogEntry{}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(syncLogPrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry SyncLogEntry
			err := it.Item().Value(func(val []byte) error {
				return entry.Unmarshal(val)
			})
			if err != nil {
				return err
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	return entries, nil
}

// Seeds implements Store.
func (s *BadgerStore) Seeds() ([]*SeedNode, error) {
	seeds := []*SeedNode{}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(seedPrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var seed SeedNode
			err := it.Item().Value(func(val []byte) error {
				return seed.Unmarshal(val)
			})
			if err != nil {
				return err
			}
			seeds = append(seeds, &seed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return enabledSeeds(seeds), nil
}

// SetSeeds implements Store.
func (s *BadgerStore) SetSeeds(seeds []*SeedNode) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, seed := range seeds {
			data, err := seed.Marshal()
			if err != nil {
				return err
			}
			if err := txn.Set(seedKey(seed.Domain), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// TouchSeed implements Store.
func (s *BadgerStore) TouchSeed(domain string, ok bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var seed SeedNode
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(seedKey(domain))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return seed.Unmarshal(val)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	seed.LastContactAt = s.clock.Now()
	if ok {
		seed.ConsecutiveFailures = 0
	} else {
		seed.ConsecutiveFailures++
	}

	data, err := seed.Marshal()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(seedKey(domain), data)
	})
}

// OwnIdentity implements keys.IdentityStore.
func (s *BadgerStore) OwnIdentity() ([]byte, string, error) {
	var record identityRecord

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(identityKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return record.Unmarshal(val)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	return record.EncryptedPrivateKey, record.PublicKey, nil
}

// SetOwnIdentity implements keys.IdentityStore.
func (s *BadgerStore) SetOwnIdentity(encPriv []byte, pubHex string) error {
	record := identityRecord{
		EncryptedPrivateKey: encPriv,
		PublicKey:           pubHex,
		CreatedAt:           s.clock.Now(),
	}

	data, err := record.Marshal()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(identityKey), data)
	})
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

//==============================================================================
// db helpers

func (s *BadgerStore) dbGetNode(domain string) (*SwarmNode, error) {
	var node SwarmNode

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(domain))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return node.Unmarshal(val)
		})
	})
	if err != nil {
		return nil, err
	}

	return &node, nil
}

func (s *BadgerStore) dbSetNode(node *SwarmNode) error {
	data, err := node.Marshal()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nodeKey(node.Domain), data)
	})
}

func (s *BadgerStore) dbListNodes(keep func(*SwarmNode) bool) ([]*SwarmNode, error) {
	nodes := []*SwarmNode{}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(nodePrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var node SwarmNode
			err := it.Item().Value(func(val []byte) error {
				return node.Unmarshal(val)
			})
			if err != nil {
				return err
			}
			if keep(&node) {
				nodes = append(nodes, &node)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return nodes, nil
}

func (s *BadgerStore) loadSyncIndex() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last synclog key; the first valid key in reverse
		// order is the highest index written so far.
		prefix := []byte(syncLogPrefix + "_")
		it.Seek([]byte(syncLogPrefix + "~"))
		if it.ValidForPrefix(prefix) {
			key := string(it.Item().Key())
			var index int
			if _, err := fmt.Sscanf(key, syncLogPrefix+"_%d", &index); err == nil {
				s.nextSyncIndex = index + 1
			}
		}
		return nil
	})
}
