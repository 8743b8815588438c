package commands

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cyph3rasi/synapsis-swarm/src/swarm"
)

//NewRunCmd returns the command that starts a swarm node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runSwarmd,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runSwarmd(cmd *cobra.Command, args []string) error {
	engine := swarm.NewSwarm(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		_config.Logger().Info("shutting down")
		engine.Shutdown()
		os.Exit(0)
	}()

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("domain", _config.Domain, "This node's own domain")
	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Duplicate log output to this file")
	cmd.Flags().String("moniker", _config.Moniker, "Friendly name of this node")
	cmd.Flags().String("description", _config.Description, "Short description of this node")
	cmd.Flags().String("logo-url", _config.LogoURL, "URL of this node's logo")
	cmd.Flags().Bool("nsfw", _config.NSFW, "Flag this node as hosting adult content")
	cmd.Flags().String("secret", _config.SharedSecret, "Shared secret protecting the signing key at rest")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Do not serve the inbound HTTP API")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")

	// Gossip
	cmd.Flags().Duration("gossip-interval", _config.GossipInterval, "Time between gossip rounds")
	cmd.Flags().Int("gossip-fanout", _config.GossipFanout, "Peers contacted per gossip round")
	cmd.Flags().Duration("gossip-timeout", _config.GossipTimeout, "Timeout of a single gossip exchange")
	cmd.Flags().Duration("interaction-timeout", _config.InteractionTimeout, "Timeout of interaction delivery and profile fetches")
	cmd.Flags().Int("max-nodes-per-gossip", _config.MaxNodesPerGossip, "Max registry entries per gossip payload")
	cmd.Flags().Int("max-handles-per-gossip", _config.MaxHandlesPerGossip, "Max handle deltas per gossip payload")
	cmd.Flags().Bool("require-signed-gossip", _config.RequireSignedGossip, "Reject unsigned inbound gossip")

	// Trust
	cmd.Flags().Int("gossip-trust-floor", _config.GossipTrustFloor, "Minimum trust score of a gossip target")
	cmd.Flags().Int("trust-success-delta", _config.TrustSuccessDelta, "Trust gained per successful contact")
	cmd.Flags().Int("trust-failure-delta", _config.TrustFailureDelta, "Trust lost per failed contact")
	cmd.Flags().Int("max-consecutive-failures", _config.MaxConsecutiveFailures, "Failure streak before a peer goes inactive")
	cmd.Flags().Int("key-cache-size", _config.KeyCacheSize, "Number of user keys in the LRU cache")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"Domain":                 _config.Domain,
		"DataDir":                _config.DataDir,
		"ServiceAddr":            _config.ServiceAddr,
		"NoService":              _config.NoService,
		"Store":                  _config.Store,
		"LogLevel":               _config.LogLevel,
		"Moniker":                _config.Moniker,
		"GossipInterval":         _config.GossipInterval,
		"GossipFanout":           _config.GossipFanout,
		"GossipTimeout":          _config.GossipTimeout,
		"InteractionTimeout":     _config.InteractionTimeout,
		"MaxNodesPerGossip":      _config.MaxNodesPerGossip,
		"MaxHandlesPerGossip":    _config.MaxHandlesPerGossip,
		"RequireSignedGossip":    _config.RequireSignedGossip,
		"GossipTrustFloor":       _config.GossipTrustFloor,
		"TrustSuccessDelta":      _config.TrustSuccessDelta,
		"TrustFailureDelta":      _config.TrustFailureDelta,
		"MaxConsecutiveFailures": _config.MaxConsecutiveFailures,
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper, and let SWARM_* environment variables
	// override the defaults
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	viper.SetEnvPrefix("SWARM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/swarm.toml (.json, .yaml also work)
	viper.SetConfigName("swarm")         // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
