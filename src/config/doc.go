// Package config defines the configuration for a Synapsis swarm node.
//
// Regardless of how the swarm subsystem is started, directly from Go code or
// as a standalone process from the command line, it uses the Config object
// defined in this package to store and forward configuration options. On top
// of these options, the node relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//	badger_db/ // the Badger database holding the node registry and handle registry.
//	seeds.json // (optional) a JSON file listing bootstrap seed nodes.
//
// The shared secret used to encrypt the node's private signing key at rest is
// never read from a file; it comes from the SWARM_SECRET environment variable
// or the corresponding flag.
package config
