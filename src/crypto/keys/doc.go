// Package keys implements the public key cryptography used throughout the
// swarm subsystem.
//
// A swarm node owns a long-lived cryptographic key-pair that it uses to sign
// and verify gossip exchanges. The private key is secret but the public key is
// shared with other nodes, through the public node-info endpoint, so that they
// can verify messages signed with the private key.
//
// We use elliptic curve cryptography (ECDSA) with the secp256k1 curve, the
// same curve used by Bitcoin and Ethereum.
//
// The private key is never persisted in the clear. It is encrypted with a key
// derived from a process-wide shared secret (scrypt) and stored, together with
// the public key, in the node's own identity row of the registry.
package keys
