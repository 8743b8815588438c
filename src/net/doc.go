// Package net defines the wire structures exchanged between swarm nodes and
// the Transport over which they travel. The production transport speaks
// HTTPS to a peer's well-known swarm endpoints; an in-memory transport allows
// whole swarms to be wired up inside a test process.
package net
