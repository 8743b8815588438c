package registry

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// InmemStore implements Store with plain maps. It backs tests and nodes that
// run with persistence disabled.
type InmemStore struct {
	sync.RWMutex

	ownDomain string
	policy    TrustPolicy
	clock     clock.Clock

	nodes   map[string]*SwarmNode
	seeds   []*SeedNode
	syncLog []*SyncLogEntry

	identityEnc []byte
	identityPub string
}

// NewInmemStore creates an empty in-memory registry. ownDomain is this node's
// own domain, which UpsertBatch refuses to store.
func NewInmemStore(ownDomain string, policy TrustPolicy, clk clock.Clock) *InmemStore {
	if clk == nil {
		clk = clock.New()
	}
	return &InmemStore{
		ownDomain: ownDomain,
		policy:    policy,
		clock:     clk,
		nodes:     make(map[string]*SwarmNode),
	}
}

// Get implements Store.
func (s *InmemStore) Get(domain string) (*SwarmNode, error) {
	s.RLock()
	defer s.RUnlock()

	node, ok := s.nodes[domain]
	if !ok {
		return nil, ErrUnknownDomain{Domain: domain}
	}

	copied := *node
	return &copied, nil
}

// UpsertNode implements Store.
func (s *InmemStore) UpsertNode(node *SwarmNode, discoveredVia string) (bool, error) {
	s.Lock()
	defer s.Unlock()

	return s.upsertLocked(node, discoveredVia), nil
}

// UpsertBatch implements Store.
func (s *InmemStore) UpsertBatch(nodes []*SwarmNode, discoveredVia string) (int, int, error) {
	s.Lock()
	defer s.Unlock()

	added, updated := 0, 0
	for _, node := range nodes {
		if node.Domain == "" || node.Domain == s.ownDomain {
			continue
		}
		if s.upsertLocked(node, discoveredVia) {
			added++
		} else {
			updated++
		}
	}

	return added, updated, nil
}

func (s *InmemStore) upsertLocked(node *SwarmNode, discoveredVia string) bool {
	existing := s.nodes[node.Domain]
	s.nodes[node.Domain] = mergeNode(existing, node, discoveredVia, s.policy, s.clock.Now())
	return existing == nil
}

// ListActive implements Store.
func (s *InmemStore) ListActive(limit int) ([]*SwarmNode, error) {
	s.RLock()
	defer s.RUnlock()

	active := []*SwarmNode{}
	for _, node := range s.nodes {
		if node.IsActive {
			copied := *node
			active = append(active, &copied)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		if active[i].TrustScore != active[j].TrustScore {
			return active[i].TrustScore > active[j].TrustScore
		}
		return active[i].Domain < active[j].Domain
	})

	return bounded(active, limit), nil
}

// ListForGossip implements Store.
func (s *InmemStore) ListForGossip(count int) ([]*SwarmNode, error) {
	s.RLock()
	defer s.RUnlock()

	eligible := []*SwarmNode{}
	for _, node := range s.nodes {
		if node.IsActive && node.TrustScore > s.policy.GossipFloor {
			copied := *node
			eligible = append(eligible, &copied)
		}
	}

	rand.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})

	return bounded(eligible, count), nil
}

// ListSince implements Store.
func (s *InmemStore) ListSince(t time.Time, limit int) ([]*SwarmNode, error) {
	s.RLock()
	defer s.RUnlock()

	recent := []*SwarmNode{}
	for _, node := range s.nodes {
		if node.UpdatedAt.After(t) {
			copied := *node
			recent = append(recent, &copied)
		}
	}

	sort.Slice(recent, func(i, j int) bool {
		return recent[i].UpdatedAt.Before(recent[j].UpdatedAt)
	})

	return bounded(recent, limit), nil
}

// Count implements Store.
func (s *InmemStore) Count() (int, error) {
	s.RLock()
	defer s.RUnlock()

	return len(s.nodes), nil
}

// MarkSuccess implements Store.
func (s *InmemStore) MarkSuccess(domain string) error {
	s.Lock()
	defer s.Unlock()

	node, ok := s.nodes[domain]
	if !ok {
		return ErrUnknownDomain{Domain: domain}
	}

	applySuccess(node, s.policy, s.clock.Now())
	return nil
}

// MarkFailure implements Store.
func (s *InmemStore) MarkFailure(domain string) error {
	s.Lock()
	defer s.Unlock()

	node, ok := s.nodes[domain]
	if !ok {
		return ErrUnknownDomain{Domain: domain}
	}

	applyFailure(node, s.policy, s.clock.Now())
	return nil
}

// LogSync implements Store.
func (s *InmemStore) LogSync(entry *SyncLogEntry) error {
	s.Lock()
	defer s.Unlock()

	copied := *entry
	if copied.StartedAt.IsZero() {
		copied.StartedAt = s.clock.Now()
	}
	s.syncLog = append(s.syncLog, &copied)

	return nil
}

// SyncLog implements Store.
func (s *InmemStore) SyncLog(limit int) ([]*SyncLogEntry, error) {
	s.RLock()
	defer s.RUnlock()

	log := s.syncLog
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}

	out := make([]*SyncLogEntry, len(log))
	for i, entry := range log {
		copied := *entry
		out[i] = &copied
	}

	return out, nil
}

// Seeds implements Store.
func (s *InmemStore) Seeds() ([]*SeedNode, error) {
	s.RLock()
	defer s.RUnlock()

	return enabledSeeds(s.seeds), nil
}

// SetSeeds implements Store.
func (s *InmemStore) SetSeeds(seeds []*SeedNode) error {
	s.Lock()
	defer s.Unlock()

	s.seeds = make([]*SeedNode, len(seeds))
	for i, seed := range seeds {
		copied := *seed
		s.seeds[i] = &copied
	}

	return nil
}

// TouchSeed implements Store.
func (s *InmemStore) TouchSeed(domain string, ok bool) error {
	s.Lock()
	defer s.Unlock()

	for _, seed := range s.seeds {
		if seed.Domain == domain {
			seed.LastContactAt = s.clock.Now()
			if ok {
				seed.ConsecutiveFailures = 0
			} else {
				seed.ConsecutiveFailures++
			}
			return nil
		}
	}

	return nil
}

// OwnIdentity implements keys.IdentityStore.
func (s *InmemStore) OwnIdentity() ([]byte, string, error) {
	s.RLock()
	defer s.RUnlock()

	return s.identityEnc, s.identityPub, nil
}

// SetOwnIdentity implements keys.IdentityStore.
func (s *InmemStore) SetOwnIdentity(encPriv []byte, pubHex string) error {
	s.Lock()
	defer s.Unlock()

	s.identityEnc = append([]byte{}, encPriv...)
	s.identityPub = pubHex

	return nil
}

// Close implements Store.
func (s *InmemStore) Close() error {
	return nil
}

// enabledSeeds filters and sorts a seed list, falling back to the built-in
// defaults when nothing usable is configured.
func enabledSeeds(seeds []*SeedNode) []*SeedNode {
	enabled := []*SeedNode{}
	for _, seed := range seeds {
		if seed.IsEnabled {
			copied := *seed
			enabled = append(enabled, &copied)
		}
	}

	if len(enabled) == 0 {
		return DefaultSeeds()
	}

	sort.Slice(enabled, func(i, j int) bool {
		if enabled[i].Priority != enabled[j].Priority {
			return enabled[i].Priority < enabled[j].Priority
		}
		return enabled[i].Domain < enabled[j].Domain
	})

	return enabled
}

func bounded(nodes []*SwarmNode, limit int) []*SwarmNode {
	if limit > 0 && len(nodes) > limit {
		return nodes[:limit]
	}
	return nodes
}
