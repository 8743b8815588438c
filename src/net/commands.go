package net

import (
	"time"

	"github.com/cyph3rasi/synapsis-swarm/src/handles"
	"github.com/cyph3rasi/synapsis-swarm/src/registry"
)

// NodeInfo is the public metadata a node exposes on its info endpoint and
// returns in response to an announcement.
type NodeInfo struct {
	Domain       string                `json:"domain"`
	Name         string                `json:"name,omitempty"`
	Description  string                `json:"description,omitempty"`
	LogoURL      string                `json:"logoUrl,omitempty"`
	PublicKey    string                `json:"publicKey,omitempty"`
	Version      string                `json:"version,omitempty"`
	UserCount    int                   `json:"userCount,omitempty"`
	PostCount    int                   `json:"postCount,omitempty"`
	NSFW         bool                  `json:"nsfw,omitempty"`
	Capabilities []registry.Capability `json:"capabilities,omitempty"`
}

// ToNode converts public node info into a registry entry. Health fields are
// left to the registry.
func (i *NodeInfo) ToNode() *registry.SwarmNode {
	return &registry.SwarmNode{
		Domain:       i.Domain,
		Name:         i.Name,
		Description:  i.Description,
		LogoURL:      i.LogoURL,
		PublicKey:    i.PublicKey,
		Version:      i.Version,
		UserCount:    i.UserCount,
		PostCount:    i.PostCount,
		NSFW:         i.NSFW,
		Capabilities: i.Capabilities,
	}
}

// Announcement is a node's self-description, pushed to seeds on startup and
// embedded in every gossip payload.
type Announcement struct {
	NodeInfo
	Timestamp time.Time `json:"timestamp"`
}

// GossipPayload carries one side of a gossip exchange: the sender's
// self-announcement, a bounded slice of its registry, and a bounded slice of
// handle deltas. Since, when set, asks the receiver to reply with only state
// updated after that instant.
type GossipPayload struct {
	Sender       string                `json:"sender"`
	Announcement *Announcement         `json:"announcement,omitempty"`
	Nodes        []*registry.SwarmNode `json:"nodes,omitempty"`
	Handles      []*handles.Entry      `json:"handles,omitempty"`
	Timestamp    time.Time             `json:"timestamp"`
	Since        *time.Time            `json:"since,omitempty"`
}

// GossipResponse is the receiver's half of the duplex exchange: its own
// payload plus counts of what it accepted from the request.
type GossipResponse struct {
	GossipPayload
	NodesReceived   int `json:"nodesReceived"`
	HandlesReceived int `json:"handlesReceived"`
}

// SignedEnvelope wraps a gossip payload with a detached signature over its
// canonical serialization. An empty signature means the sender did not sign.
type SignedEnvelope struct {
	Payload   *GossipPayload `json:"payload"`
	Signature string         `json:"signature,omitempty"`
}

// InteractionKind enumerates the user-level events delivered point-to-point
// between nodes, outside of gossip.
type InteractionKind string

const (
	// InteractionLike ...
	InteractionLike InteractionKind = "like"
	// InteractionUnlike ...
	InteractionUnlike InteractionKind = "unlike"
	// InteractionRepost ...
	InteractionRepost InteractionKind = "repost"
	// InteractionFollow ...
	InteractionFollow InteractionKind = "follow"
	// InteractionUnfollow ...
	InteractionUnfollow InteractionKind = "unfollow"
	// InteractionMention ...
	InteractionMention InteractionKind = "mention"
)

// ValidInteractionKind reports whether k is one of the six interaction kinds.
func ValidInteractionKind(k InteractionKind) bool {
	switch k {
	case InteractionLike, InteractionUnlike, InteractionRepost,
		InteractionFollow, InteractionUnfollow, InteractionMention:
		return true
	}
	return false
}

// InteractionPayload is one user-level event. InteractionID makes processing
// idempotent on the receiving side; the sender does not deduplicate.
type InteractionPayload struct {
	InteractionID string          `json:"interactionId"`
	Kind          InteractionKind `json:"kind"`
	ActorHandle   string          `json:"actorHandle"`
	ActorDID      string          `json:"actorDid,omitempty"`
	ActorDomain   string          `json:"actorDomain"`
	TargetHandle  string          `json:"targetHandle,omitempty"`
	TargetPostID  string          `json:"targetPostId,omitempty"`
	Content       string          `json:"content,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Profile is the public profile of a remote user, fetched directly from its
// home node when gossip is too slow or stale.
type Profile struct {
	Handle      string `json:"handle"`
	DID         string `json:"did"`
	Domain      string `json:"domain"`
	DisplayName string `json:"displayName,omitempty"`
	PublicKey   string `json:"publicKey,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}
