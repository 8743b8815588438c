package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/cyph3rasi/synapsis-swarm/src/common"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultBadgerFile is the default name of the folder containing the
	// Badger database.
	DefaultBadgerFile = "badger_db"

	// DefaultSeedsFile is the default name of the JSON file listing bootstrap
	// seed nodes.
	DefaultSeedsFile = "seeds.json"
)

// Default configuration values.
const (
	DefaultLogLevel               = "debug"
	DefaultServiceAddr            = "127.0.0.1:8180"
	DefaultGossipInterval         = 5 * time.Minute
	DefaultGossipFanout           = 3
	DefaultGossipTimeout          = 15 * time.Second
	DefaultInteractionTimeout     = 10 * time.Second
	DefaultMaxNodesPerGossip      = 50
	DefaultMaxHandlesPerGossip    = 100
	DefaultGossipTrustFloor       = 20
	DefaultTrustSuccessDelta      = 1
	DefaultTrustFailureDelta      = 5
	DefaultMaxConsecutiveFailures = 5
	DefaultKeyCacheSize           = 1000
	DefaultStore                  = false
)

// Config contains all the configuration properties of a swarm node.
type Config struct {
	// Domain is this node's own domain. It identifies the node in the swarm
	// and is excluded from its own registry. Required.
	Domain string `mapstructure:"domain"`

	// DataDir is the top-level directory containing swarm configuration and
	// data.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, duplicates log output to a file via an lfshook.
	LogFile string `mapstructure:"log-file"`

	// NoService disables the inbound HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the inbound HTTP service which
	// exposes the announce, gossip, node-info and interaction endpoints.
	ServiceAddr string `mapstructure:"service-listen"`

	// Store activates persistent storage. When false, the registry and handle
	// registry live in memory and are lost on restart.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// SharedSecret encrypts the node's private signing key at rest. The
	// keypair manager refuses to operate without it.
	SharedSecret string `mapstructure:"secret"`

	// GossipInterval is the period of the background gossip round timer.
	GossipInterval time.Duration `mapstructure:"gossip-interval"`

	// GossipFanout is the number of peers contacted per gossip round.
	GossipFanout int `mapstructure:"gossip-fanout"`

	// GossipTimeout bounds a single gossip exchange with a peer.
	GossipTimeout time.Duration `mapstructure:"gossip-timeout"`

	// InteractionTimeout bounds interaction delivery and profile fetches.
	InteractionTimeout time.Duration `mapstructure:"interaction-timeout"`

	// MaxNodesPerGossip bounds the number of registry entries included in a
	// single gossip payload.
	MaxNodesPerGossip int `mapstructure:"max-nodes-per-gossip"`

	// MaxHandlesPerGossip bounds the number of handle-registry deltas included
	// in a single gossip payload.
	MaxHandlesPerGossip int `mapstructure:"max-handles-per-gossip"`

	// GossipTrustFloor is the minimum trust score a peer needs to be selected
	// as a gossip target. Peers below the floor remain in the registry and can
	// recover trust by being gossiped about.
	GossipTrustFloor int `mapstructure:"gossip-trust-floor"`

	// TrustSuccessDelta is added to a peer's trust score on successful
	// contact.
	TrustSuccessDelta int `mapstructure:"trust-success-delta"`

	// TrustFailureDelta is subtracted from a peer's trust score on failed
	// contact.
	TrustFailureDelta int `mapstructure:"trust-failure-delta"`

	// MaxConsecutiveFailures is the failure streak at which a peer is marked
	// inactive.
	MaxConsecutiveFailures int `mapstructure:"max-consecutive-failures"`

	// RequireSignedGossip rejects inbound gossip payloads that do not carry a
	// valid signature from the sending node.
	RequireSignedGossip bool `mapstructure:"require-signed-gossip"`

	// KeyCacheSize is the max number of user public keys kept in the LRU
	// cache of the signature engine.
	KeyCacheSize int `mapstructure:"key-cache-size"`

	// Moniker is the friendly display name of this node.
	Moniker string `mapstructure:"moniker"`

	// Description is a short description of this node, shared in
	// announcements.
	Description string `mapstructure:"description"`

	// LogoURL points to this node's logo image.
	LogoURL string `mapstructure:"logo-url"`

	// NSFW flags this node as hosting adult content.
	NSFW bool `mapstructure:"nsfw"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:                DefaultDataDir(),
		LogLevel:               DefaultLogLevel,
		ServiceAddr:            DefaultServiceAddr,
		Store:                  DefaultStore,
		DatabaseDir:            DefaultDatabaseDir(),
		GossipInterval:         DefaultGossipInterval,
		GossipFanout:           DefaultGossipFanout,
		GossipTimeout:          DefaultGossipTimeout,
		InteractionTimeout:     DefaultInteractionTimeout,
		MaxNodesPerGossip:      DefaultMaxNodesPerGossip,
		MaxHandlesPerGossip:    DefaultMaxHandlesPerGossip,
		GossipTrustFloor:       DefaultGossipTrustFloor,
		TrustSuccessDelta:      DefaultTrustSuccessDelta,
		TrustFailureDelta:      DefaultTrustFailureDelta,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		KeyCacheSize:           DefaultKeyCacheSize,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.Domain = "self.test"
	config.SharedSecret = "test-secret"
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level swarm directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitly
// set it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// SeedsFile returns the full path of the JSON file listing bootstrap seeds.
func (c *Config) SeedsFile() string {
	return filepath.Join(c.DataDir, DefaultSeedsFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "swarm". When
// LogFile is set, output is duplicated to that file through an lfshook.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			pathMap := lfshook.PathMap{}
			for _, level := range logrus.AllLevels {
				pathMap[level] = c.LogFile
			}
			c.logger.Hooks.Add(lfshook.NewHook(pathMap, &logrus.JSONFormatter{}))
		}
	}
	return c.logger.WithField("prefix", "swarm")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir returns the default directory name for top-level swarm
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Synapsis", "swarm")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Synapsis", "swarm")
		} else {
			return filepath.Join(home, ".synapsis", "swarm")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
