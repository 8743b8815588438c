// Package swarm assembles the membership subsystem: registry, handle store,
// keys, transport, discovery, gossip, interactions, healing, and the inbound
// API, driven by a periodic gossip loop.
package swarm
