// Package service exposes the inbound HTTP endpoints of the swarm protocol:
// node info, announcements, gossip, interactions, and the read-only registry
// views. It is the server-side counterpart of net.HTTPTransport.
package service
