package registry

import (
	"fmt"
	"time"
)

// TrustPolicy tunes the health bookkeeping applied by MarkSuccess and
// MarkFailure and the peer-selection floor of ListForGossip.
type TrustPolicy struct {
	// InitialTrust is assigned to newly discovered nodes.
	InitialTrust int
	// SuccessDelta is added to the trust score on successful contact.
	SuccessDelta int
	// FailureDelta is subtracted from the trust score on failed contact.
	FailureDelta int
	// MaxConsecutiveFailures is the failure streak at which a node becomes
	// inactive.
	MaxConsecutiveFailures int
	// GossipFloor is the minimum trust score required to be selected as a
	// gossip target.
	GossipFloor int
}

// MaxTrust is the upper clamp of the trust score. The lower clamp is 0.
const MaxTrust = 100

// DefaultTrustPolicy returns the tuning used in production unless overridden
// by configuration.
func DefaultTrustPolicy() TrustPolicy {
	return TrustPolicy{
		InitialTrust:           50,
		SuccessDelta:           1,
		FailureDelta:           5,
		MaxConsecutiveFailures: 5,
		GossipFloor:            20,
	}
}

// Store is the interface of the node registry. Both implementations are safe
// for concurrent use; all mutations are domain-keyed idempotent merges.
//
// Store also doubles as the keys.IdentityStore for this node's own signing
// identity, which lives alongside the registry rows.
type Store interface {
	// Get returns the node for the given domain, or ErrUnknownDomain.
	Get(domain string) (*SwarmNode, error)

	// UpsertNode inserts the node if its domain is unseen, otherwise merges
	// non-absent fields over the existing entry. Either way the entry comes
	// out active with a zero failure streak. Returns true when the domain was
	// new. Filtering out this node's own domain is the caller's concern for
	// single upserts; UpsertBatch filters it itself.
	UpsertNode(node *SwarmNode, discoveredVia string) (bool, error)

	// UpsertBatch applies UpsertNode per entry, skipping entries keyed by
	// this node's own domain. Returns counts of added and updated entries.
	UpsertBatch(nodes []*SwarmNode, discoveredVia string) (added, updated int, err error)

	// ListActive returns up to limit active nodes, most trusted first.
	ListActive(limit int) ([]*SwarmNode, error)

	// ListForGossip returns up to count gossip targets: active nodes above
	// the trust floor, in random order.
	ListForGossip(count int) ([]*SwarmNode, error)

	// ListSince returns up to limit nodes whose UpdatedAt is strictly after
	// t, oldest first.
	ListSince(t time.Time, limit int) ([]*SwarmNode, error)

	// Count returns the total number of known nodes, active or not.
	Count() (int, error)

	// MarkSuccess records a successful contact: trust +SuccessDelta (clamped
	// to MaxTrust), failure streak reset, node reactivated, LastSeenAt and
	// LastSyncAt refreshed.
	MarkSuccess(domain string) error

	// MarkFailure records a failed contact: trust -FailureDelta (clamped to
	// 0), failure streak incremented, node deactivated once the streak
	// reaches MaxConsecutiveFailures.
	MarkFailure(domain string) error

	// LogSync appends a sync audit record.
	LogSync(entry *SyncLogEntry) error

	// SyncLog returns up to limit of the most recent sync records, oldest
	// first.
	SyncLog(limit int) ([]*SyncLogEntry, error)

	// Seeds returns the configured enabled seeds ordered by priority, or the
	// built-in default list if none are configured.
	Seeds() ([]*SeedNode, error)

	// SetSeeds replaces the configured seed list.
	SetSeeds(seeds []*SeedNode) error

	// TouchSeed records the outcome of a seed contact.
	TouchSeed(domain string, ok bool) error

	// OwnIdentity and SetOwnIdentity implement keys.IdentityStore.
	OwnIdentity() (encPriv []byte, pubHex string, err error)
	SetOwnIdentity(encPriv []byte, pubHex string) error

	Close() error
}

// ErrUnknownDomain is returned when an operation references a domain that is
// not in the registry.
type ErrUnknownDomain struct {
	Domain string
}

// Error ...
func (e ErrUnknownDomain) Error() string {
	return fmt.Sprintf("registry: unknown domain %q", e.Domain)
}

// IsUnknownDomain checks whether err is an ErrUnknownDomain.
func IsUnknownDomain(err error) bool {
	_, ok := err.(ErrUnknownDomain)
	return ok
}

// mergeNode folds the non-absent fields of incoming over existing and resets
// the health bookkeeping, returning the merged entry. existing may be nil, in
// which case a new entry is created with the policy's initial trust. Health
// fields of incoming are ignored: trust is a local observation.
func mergeNode(existing, incoming *SwarmNode, discoveredVia string, policy TrustPolicy, now time.Time) *SwarmNode {
	var merged SwarmNode

	if existing == nil {
		merged = SwarmNode{
			Domain:        incoming.Domain,
			DiscoveredVia: discoveredVia,
			DiscoveredAt:  now,
			TrustScore:    clampTrust(policy.InitialTrust),
		}
	} else {
		merged = *existing
	}

	if incoming.Name != "" {
		merged.Name = incoming.Name
	}
	if incoming.Description != "" {
		merged.Description = incoming.Description
	}
	if incoming.LogoURL != "" {
		merged.LogoURL = incoming.LogoURL
	}
	if incoming.PublicKey != "" {
		merged.PublicKey = incoming.PublicKey
	}
	if incoming.Version != "" {
		merged.Version = incoming.Version
	}
	if incoming.UserCount > 0 {
		merged.UserCount = incoming.UserCount
	}
	if incoming.PostCount > 0 {
		merged.PostCount = incoming.PostCount
	}
	if len(incoming.Capabilities) > 0 {
		merged.Capabilities = incoming.Capabilities
	}
	// NSFW has no absent state; the latest word wins.
	merged.NSFW = incoming.NSFW

	merged.ConsecutiveFailures = 0
	merged.IsActive = true
	merged.LastSeenAt = now
	merged.UpdatedAt = now

	return &merged
}

// applySuccess mutates node per MarkSuccess semantics.
func applySuccess(node *SwarmNode, policy TrustPolicy, now time.Time) {
	node.TrustScore = clampTrust(node.TrustScore + policy.SuccessDelta)
	node.ConsecutiveFailures = 0
	node.IsActive = true
	node.LastSeenAt = now
	node.LastSyncAt = now
	node.UpdatedAt = now
}

// applyFailure mutates node per MarkFailure semantics.
func applyFailure(node *SwarmNode, policy TrustPolicy, now time.Time) {
	node.TrustScore = clampTrust(node.TrustScore - policy.FailureDelta)
	node.ConsecutiveFailures++
	node.IsActive = node.ConsecutiveFailures < policy.MaxConsecutiveFailures
	node.UpdatedAt = now
}

func clampTrust(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxTrust {
		return MaxTrust
	}
	return score
}
