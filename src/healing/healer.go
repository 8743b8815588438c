package healing

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/cyph3rasi/synapsis-swarm/src/gossip"
	"github.com/cyph3rasi/synapsis-swarm/src/handles"
	"github.com/cyph3rasi/synapsis-swarm/src/net"
	"github.com/cyph3rasi/synapsis-swarm/src/signature"
)

// fetchTimeout bounds a direct profile refetch.
const fetchTimeout = 10 * time.Second

// HealResult reports one repair attempt. Healed means the exchange succeeded
// and brought at least one handle update with it.
type HealResult struct {
	DID    string
	Domain string
	Healed bool
	Sync   *gossip.SyncResult
}

// Healer forces synchronization with a specific node when the regular gossip
// cadence has left a connection stale.
type Healer struct {
	handleStore handles.Store
	engine      *gossip.Engine
	transport   net.Transport
	verifier    *signature.Engine
	clock       clock.Clock
	logger      *logrus.Entry
}

// NewHealer ...
func NewHealer(
	handleStore handles.Store,
	engine *gossip.Engine,
	transport net.Transport,
	verifier *signature.Engine,
	clk clock.Clock,
	logger *logrus.Entry,
) *Healer {
	if clk == nil {
		clk = clock.New()
	}

	return &Healer{
		handleStore: handleStore,
		engine:      engine,
		transport:   transport,
		verifier:    verifier,
		clock:       clk,
		logger:      logger,
	}
}

// HealConnection forces a full gossip exchange with the home node of the
// given user. With knownDomain empty, the domain is resolved through the
// handle registry. The returned error is non-nil when the user cannot be
// resolved or a persistence write fails; an unreachable node is reported in
// the result instead.
func (h *Healer) HealConnection(ctx context.Context, did, knownDomain string) (*HealResult, error) {
	domain := knownDomain
	if domain == "" {
		entry, err := h.handleStore.GetByDID(did)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, fmt.Errorf("healing: no known domain for %q", did)
		}
		domain = entry.Domain
	}

	h.logger.WithFields(logrus.Fields{
		"did":    did,
		"domain": domain,
	}).Debug("forcing gossip exchange")

	// A nil since requests the remote's full view, not just a delta.
	sync, err := h.engine.GossipWithNode(ctx, domain, nil)
	if err != nil {
		return nil, err
	}

	return &HealResult{
		DID:    did,
		Domain: domain,
		Healed: sync.Success && sync.HandlesReceived >= 1,
		Sync:   sync,
	}, nil
}

// UpdateFromProfile refetches one user's profile from its home node and
// refreshes the handle registry (and the verification key cache) from it.
func (h *Healer) UpdateFromProfile(ctx context.Context, handle, domain string) (*handles.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	profile, err := h.transport.FetchProfile(ctx, handle, domain)
	if err != nil {
		return nil, err
	}
	if profile.Handle == "" || profile.DID == "" {
		return nil, fmt.Errorf("healing: incomplete profile for %s@%s", handle, domain)
	}

	entry := &handles.Entry{
		Handle:    profile.Handle,
		DID:       profile.DID,
		Domain:    profile.Domain,
		UpdatedAt: h.clock.Now().UTC(),
	}
	if entry.Domain == "" {
		entry.Domain = domain
	}

	if _, err := h.handleStore.Upsert(entry); err != nil {
		h.logger.WithField("handle", handle).WithError(err).Error("storing refreshed handle")
		return nil, err
	}

	if h.verifier != nil && profile.PublicKey != "" {
		h.verifier.CacheUserKey(entry.Handle, entry.Domain, profile.PublicKey)
	}

	return entry, nil
}
