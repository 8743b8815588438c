// Package interaction delivers user-level events (likes, reposts, follows,
// mentions) point to point to the target user's home node. Interactions ride
// outside of gossip: they go straight to one node, bounded by a short
// timeout, and carry an id the receiver can deduplicate on.
package interaction
