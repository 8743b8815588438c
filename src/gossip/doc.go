// Package gossip implements the epidemic propagation protocol. Each exchange
// is full duplex in one round trip: the initiator sends its registry view and
// handle deltas, and the receiver replies with its own, so both sides update
// their state from a single request.
//
// A gossip attempt moves Idle -> Sending -> Merged or Failed. Failed always
// routes through MarkFailure and the sync log; Merged through MarkSuccess and
// the sync log. No attempt blocks the progress of others.
package gossip
