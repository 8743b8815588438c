// Package handles implements the handle registry: the global mapping from a
// user handle to its decentralized identifier and owning node domain. Deltas
// of this table piggy-back on gossip payloads; conflicts resolve by
// last-write-wins on UpdatedAt.
package handles
