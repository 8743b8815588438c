package registry

import (
	"bytes"
	"time"

	"github.com/ugorji/go/codec"
)

// Capability identifies an optional protocol surface a node supports.
type Capability string

const (
	// CapabilityHandles - the node serves and propagates handle-registry
	// entries.
	CapabilityHandles Capability = "handles"
	// CapabilityGossip - the node participates in swarm gossip.
	CapabilityGossip Capability = "gossip"
	// CapabilityRelay - the node relays interactions for third parties.
	CapabilityRelay Capability = "relay"
	// CapabilitySearch - the node exposes a federated search endpoint.
	CapabilitySearch Capability = "search"
)

// DefaultCapabilities are advertised by every node running this subsystem.
var DefaultCapabilities = []Capability{CapabilityHandles, CapabilityGossip}

// SwarmNode is one known peer, keyed by domain. Health fields (TrustScore,
// ConsecutiveFailures, IsActive) are local observations and are never taken
// from remote payloads.
type SwarmNode struct {
	Domain       string       `json:"domain"`
	Name         string       `json:"name,omitempty"`
	Description  string       `json:"description,omitempty"`
	LogoURL      string       `json:"logoUrl,omitempty"`
	PublicKey    string       `json:"publicKey,omitempty"`
	Version      string       `json:"version,omitempty"`
	UserCount    int          `json:"userCount,omitempty"`
	PostCount    int          `json:"postCount,omitempty"`
	NSFW         bool         `json:"nsfw,omitempty"`
	Capabilities []Capability `json:"capabilities,omitempty"`

	DiscoveredVia string    `json:"discoveredVia,omitempty"`
	DiscoveredAt  time.Time `json:"discoveredAt,omitempty"`

	LastSeenAt          time.Time `json:"lastSeenAt,omitempty"`
	LastSyncAt          time.Time `json:"lastSyncAt,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt,omitempty"`
	ConsecutiveFailures int       `json:"-"`
	IsActive            bool      `json:"-"`
	TrustScore          int       `json:"-"`
}

// HasCapability reports whether the node advertises the given capability.
func (n *SwarmNode) HasCapability(c Capability) bool {
	for _, have := range n.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Marshal - canonical json encoding of a SwarmNode, used for storage.
func (n *SwarmNode) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, storageHandle())
	if err := enc.Encode(storedNode{
		Node:                *n,
		ConsecutiveFailures: n.ConsecutiveFailures,
		IsActive:            n.IsActive,
		TrustScore:          n.TrustScore,
	}); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal decodes a SwarmNode from its storage encoding.
func (n *SwarmNode) Unmarshal(data []byte) error {
	var stored storedNode
	dec := codec.NewDecoder(bytes.NewBuffer(data), storageHandle())
	if err := dec.Decode(&stored); err != nil {
		return err
	}
	*n = stored.Node
	n.ConsecutiveFailures = stored.ConsecutiveFailures
	n.IsActive = stored.IsActive
	n.TrustScore = stored.TrustScore
	return nil
}

// storedNode carries the health fields that are deliberately excluded from
// the wire encoding of SwarmNode.
type storedNode struct {
	Node                SwarmNode `json:"node"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	IsActive            bool      `json:"isActive"`
	TrustScore          int       `json:"trustScore"`
}

// SeedNode is a well-known bootstrap peer, used only to join the swarm before
// any peers are known locally.
type SeedNode struct {
	Domain              string    `json:"domain"`
	Priority            int       `json:"priority"`
	IsEnabled           bool      `json:"isEnabled"`
	LastContactAt       time.Time `json:"lastContactAt,omitempty"`
	ConsecutiveFailures int       `json:"consecutiveFailures,omitempty"`
}

// Marshal - canonical json encoding of a SeedNode.
func (s *SeedNode) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, storageHandle())
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal ...
func (s *SeedNode) Unmarshal(data []byte) error {
	dec := codec.NewDecoder(bytes.NewBuffer(data), storageHandle())
	return dec.Decode(s)
}

// SyncDirection distinguishes who initiated a gossip exchange.
type SyncDirection string

const (
	// SyncPush - we initiated the exchange.
	SyncPush SyncDirection = "push"
	// SyncPull - the remote initiated the exchange.
	SyncPull SyncDirection = "pull"
)

// SyncLogEntry is one append-only audit record of a gossip exchange, written
// after every attempt regardless of outcome.
type SyncLogEntry struct {
	RemoteDomain    string        `json:"remoteDomain"`
	Direction       SyncDirection `json:"direction"`
	NodesSent       int           `json:"nodesSent"`
	NodesReceived   int           `json:"nodesReceived"`
	HandlesSent     int           `json:"handlesSent"`
	HandlesReceived int           `json:"handlesReceived"`
	Success         bool          `json:"success"`
	Error           string        `json:"error,omitempty"`
	Duration        time.Duration `json:"duration"`
	StartedAt       time.Time     `json:"startedAt"`
}

// Marshal - canonical json encoding of a SyncLogEntry.
func (e *SyncLogEntry) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, storageHandle())
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal ...
func (e *SyncLogEntry) Unmarshal(data []byte) error {
	dec := codec.NewDecoder(bytes.NewBuffer(data), storageHandle())
	return dec.Decode(e)
}

// identityRecord is this node's own identity row: the encrypted private key
// and the wire form of the public key.
type identityRecord struct {
	EncryptedPrivateKey []byte    `json:"encryptedPrivateKey"`
	PublicKey           string    `json:"publicKey"`
	CreatedAt           time.Time `json:"createdAt"`
}

func (r *identityRecord) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, storageHandle())
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (r *identityRecord) Unmarshal(data []byte) error {
	dec := codec.NewDecoder(bytes.NewBuffer(data), storageHandle())
	return dec.Decode(r)
}

func storageHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}
