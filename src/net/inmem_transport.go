package net

import (
	"context"
	"fmt"
	"sync"
)

// InmemHandlers is the inbound side of an in-memory node: one function per
// endpoint. Nil functions behave like a peer that does not expose the
// endpoint.
type InmemHandlers struct {
	NodeInfoFn    func() (*NodeInfo, error)
	AnnounceFn    func(*Announcement) (*NodeInfo, error)
	GossipFn      func(*SignedEnvelope) (*GossipResponse, error)
	InteractionFn func(*InteractionPayload) error
	ProfileFn     func(handle string) (*Profile, error)
}

// InmemTransport implements Transport against a shared in-process routing
// table, to allow whole swarms to be tested without going over a network.
// All transports created from the same Network see each other.
type InmemNetwork struct {
	sync.RWMutex
	nodes map[string]*InmemHandlers
}

// NewInmemNetwork ...
func NewInmemNetwork() *InmemNetwork {
	return &InmemNetwork{
		nodes: make(map[string]*InmemHandlers),
	}
}

// Connect registers a node's handlers under its domain.
func (n *InmemNetwork) Connect(domain string, handlers *InmemHandlers) {
	n.Lock()
	defer n.Unlock()
	n.nodes[domain] = handlers
}

// Disconnect removes a node, making subsequent calls to it fail like a dead
// host.
func (n *InmemNetwork) Disconnect(domain string) {
	n.Lock()
	defer n.Unlock()
	delete(n.nodes, domain)
}

// Transport returns a Transport view over the network.
func (n *InmemNetwork) Transport() *InmemTransport {
	return &InmemTransport{network: n}
}

func (n *InmemNetwork) lookup(domain string) (*InmemHandlers, error) {
	n.RLock()
	defer n.RUnlock()

	handlers, ok := n.nodes[domain]
	if !ok {
		return nil, fmt.Errorf("inmem: connection refused: %s", domain)
	}
	return handlers, nil
}

// InmemTransport is the outbound view over an InmemNetwork.
type InmemTransport struct {
	network *InmemNetwork
}

// FetchNodeInfo implements Transport.
func (t *InmemTransport) FetchNodeInfo(ctx context.Context, domain string) (*NodeInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handlers, err := t.network.lookup(domain)
	if err != nil {
		return nil, err
	}
	if handlers.NodeInfoFn == nil {
		return nil, fmt.Errorf("inmem: %s: no info endpoint", domain)
	}
	return handlers.NodeInfoFn()
}

// Announce implements Transport.
func (t *InmemTransport) Announce(ctx context.Context, domain string, announcement *Announcement) (*NodeInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handlers, err := t.network.lookup(domain)
	if err != nil {
		return nil, err
	}
	if handlers.AnnounceFn == nil {
		return nil, fmt.Errorf("inmem: %s: no announce endpoint", domain)
	}
	return handlers.AnnounceFn(announcement)
}

// Gossip implements Transport.
func (t *InmemTransport) Gossip(ctx context.Context, domain string, envelope *SignedEnvelope) (*GossipResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handlers, err := t.network.lookup(domain)
	if err != nil {
		return nil, err
	}
	if handlers.GossipFn == nil {
		return nil, fmt.Errorf("inmem: %s: no gossip endpoint", domain)
	}
	return handlers.GossipFn(envelope)
}

// DeliverInteraction implements Transport.
func (t *InmemTransport) DeliverInteraction(ctx context.Context, domain string, payload *InteractionPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	handlers, err := t.network.lookup(domain)
	if err != nil {
		return err
	}
	if handlers.InteractionFn == nil {
		return fmt.Errorf("inmem: %s: no interaction endpoint", domain)
	}
	return handlers.InteractionFn(payload)
}

// FetchProfile implements Transport.
func (t *InmemTransport) FetchProfile(ctx context.Context, handle, domain string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handlers, err := t.network.lookup(domain)
	if err != nil {
		return nil, err
	}
	if handlers.ProfileFn == nil {
		return nil, fmt.Errorf("inmem: %s: no profile endpoint", domain)
	}
	return handlers.ProfileFn(handle)
}

// Close implements Transport.
func (t *InmemTransport) Close() error {
	return nil
}
