package net

import "context"

// Transport provides the outbound half of the swarm protocol. Peers are
// addressed by domain; how a domain maps to a connection is the transport's
// business. All calls are synchronous and bounded by the context.
type Transport interface {
	// FetchNodeInfo probes a domain's public info endpoint.
	FetchNodeInfo(ctx context.Context, domain string) (*NodeInfo, error)

	// Announce pushes our announcement to a peer. A successful reply carries
	// the peer's own NodeInfo.
	Announce(ctx context.Context, domain string, announcement *Announcement) (*NodeInfo, error)

	// Gossip performs one duplex exchange with a peer.
	Gossip(ctx context.Context, domain string, envelope *SignedEnvelope) (*GossipResponse, error)

	// DeliverInteraction posts a user-level event to the peer's interaction
	// endpoint for the payload's kind.
	DeliverInteraction(ctx context.Context, domain string, payload *InteractionPayload) error

	// FetchProfile fetches a user's public profile from its home node.
	FetchProfile(ctx context.Context, handle, domain string) (*Profile, error)

	// Close releases transport resources.
	Close() error
}
