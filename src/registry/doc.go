// Package registry is the authoritative local store of every known swarm
// peer: identity, metadata, health (trust score, failure streak, active flag)
// and discovery provenance. It also keeps the bootstrap seed list, the
// append-only sync audit log, and this node's own encrypted signing identity.
//
// Two implementations are provided: an in-memory store for tests and
// ephemeral nodes, and a Badger-backed store for production. Both apply the
// same merge-upsert semantics: concurrent writers to the same domain converge
// because every mutation is a monotonic, idempotent merge rather than a blind
// overwrite.
package registry
