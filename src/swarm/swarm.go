package swarm

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cyph3rasi/synapsis-swarm/src/config"
	"github.com/cyph3rasi/synapsis-swarm/src/crypto/keys"
	"github.com/cyph3rasi/synapsis-swarm/src/discovery"
	"github.com/cyph3rasi/synapsis-swarm/src/gossip"
	"github.com/cyph3rasi/synapsis-swarm/src/handles"
	"github.com/cyph3rasi/synapsis-swarm/src/healing"
	"github.com/cyph3rasi/synapsis-swarm/src/interaction"
	"github.com/cyph3rasi/synapsis-swarm/src/net"
	"github.com/cyph3rasi/synapsis-swarm/src/registry"
	"github.com/cyph3rasi/synapsis-swarm/src/service"
	"github.com/cyph3rasi/synapsis-swarm/src/signature"
)

// shutdownTimeout bounds the graceful drain of the HTTP service.
const shutdownTimeout = 5 * time.Second

// Swarm ties the membership subsystem together: stores, keys, transport, the
// protocol engines, and the background gossip loop. Optional collaborators
// (Stats, Sink, Transport) may be set between NewSwarm and Init.
type Swarm struct {
	Config      *config.Config
	Store       registry.Store
	Handles     handles.Store
	Transport   net.Transport
	KeyManager  *keys.Manager
	Verifier    *signature.Engine
	Discovery   *discovery.Engine
	Gossip      *gossip.Engine
	Interaction *interaction.Deliverer
	Healer      *healing.Healer
	Service     *service.Service
	Timer       *gossip.ControlTimer

	// Stats supplies the public counters for announcements. Optional.
	Stats discovery.StatsProvider

	// Sink receives inbound interactions. Optional.
	Sink service.InteractionSink

	metrics    *prometheus.Registry
	shutdownCh chan struct{}
}

// NewSwarm ...
func NewSwarm(conf *config.Config) *Swarm {
	return &Swarm{
		Config:     conf,
		metrics:    prometheus.NewRegistry(),
		shutdownCh: make(chan struct{}),
	}
}

func (s *Swarm) initStore() error {
	policy := registry.TrustPolicy{
		InitialTrust:           50,
		SuccessDelta:           s.Config.TrustSuccessDelta,
		FailureDelta:           s.Config.TrustFailureDelta,
		MaxConsecutiveFailures: s.Config.MaxConsecutiveFailures,
		GossipFloor:            s.Config.GossipTrustFloor,
	}

	if !s.Config.Store {
		s.Store = registry.NewInmemStore(s.Config.Domain, policy, nil)
		s.Handles = handles.NewInmemStore()

		s.Config.Logger().Debug("created new in-mem stores")
	} else {
		s.Config.Logger().WithField("path", s.Config.DatabaseDir).Debug("Attempting to load or create database")

		store, err := registry.NewBadgerStore(s.Config.Domain, policy, nil, s.Config.DatabaseDir)
		if err != nil {
			return err
		}
		s.Store = store

		handleStore, err := handles.NewBadgerStore(s.Config.DatabaseDir + "_handles")
		if err != nil {
			return err
		}
		s.Handles = handleStore
	}

	return s.loadSeeds()
}

// loadSeeds reads seeds.json into the store. With no file present the store
// falls back to its compiled-in defaults, so a fresh node can always join.
func (s *Swarm) loadSeeds() error {
	seedSet := registry.NewJSONSeedSet(s.Config.SeedsFile())

	seeds, err := seedSet.Seeds()
	if err != nil {
		return err
	}

	if len(seeds) == 0 {
		s.Config.Logger().Debug("no seeds.json, using default seeds")
		return nil
	}

	s.Config.Logger().WithField("seeds", len(seeds)).Debug("loaded seeds.json")

	return s.Store.SetSeeds(seeds)
}

func (s *Swarm) initKey() error {
	if s.Config.Domain == "" {
		return fmt.Errorf("swarm: config needs a domain")
	}

	s.KeyManager = keys.NewManager(s.Config.SharedSecret, s.Store)

	pubHex, err := s.KeyManager.PublicKeyHex()
	if err != nil {
		return err
	}

	s.Config.Logger().WithField("public_key", pubHex).Info("swarm identity ready")

	return nil
}

func (s *Swarm) initTransport() error {
	if s.Transport == nil {
		s.Transport = net.NewHTTPTransport(s.Config.Logger())
	}
	return nil
}

func (s *Swarm) initEngines() error {
	logger := s.Config.Logger()

	verifier, err := signature.NewEngine(s.Transport, s.Config.KeyCacheSize, logger)
	if err != nil {
		return err
	}
	s.Verifier = verifier

	s.Discovery = discovery.NewEngine(
		discovery.Identity{
			Domain:      s.Config.Domain,
			Name:        s.Config.Moniker,
			Description: s.Config.Description,
			LogoURL:     s.Config.LogoURL,
			NSFW:        s.Config.NSFW,
		},
		s.Store,
		s.Transport,
		s.KeyManager,
		s.Stats,
		s.Config.InteractionTimeout,
		nil,
		logger,
	)

	s.Gossip = gossip.NewEngine(
		gossip.Config{
			OwnDomain:     s.Config.Domain,
			Fanout:        s.Config.GossipFanout,
			MaxNodes:      s.Config.MaxNodesPerGossip,
			MaxHandles:    s.Config.MaxHandlesPerGossip,
			Timeout:       s.Config.GossipTimeout,
			RequireSigned: s.Config.RequireSignedGossip,
		},
		s.Store,
		s.Handles,
		s.Transport,
		s.KeyManager,
		s.Verifier,
		s.Discovery,
		gossip.NewMetrics(s.metrics),
		nil,
		logger,
	)

	s.Interaction = interaction.NewDeliverer(
		s.Config.Domain,
		s.Store,
		s.Handles,
		s.Transport,
		s.Config.InteractionTimeout,
		interaction.NewMetrics(s.metrics),
		nil,
		logger,
	)

	s.Healer = healing.NewHealer(s.Handles, s.Gossip, s.Transport, s.Verifier, nil, logger)

	s.Timer = gossip.NewJitterControlTimer()

	return nil
}

func (s *Swarm) initService() error {
	if s.Config.NoService {
		return nil
	}

	svc, err := service.NewService(
		s.Config.ServiceAddr,
		s.Discovery,
		s.Gossip,
		s.Store,
		s.Sink,
		s.metrics,
		s.Config.Logger(),
	)
	if err != nil {
		return err
	}

	s.Service = svc

	return nil
}

// Init wires all the components. It must run before Run.
func (s *Swarm) Init() error {
	if err := s.initStore(); err != nil {
		return err
	}

	if err := s.initKey(); err != nil {
		return err
	}

	if err := s.initTransport(); err != nil {
		return err
	}

	if err := s.initEngines(); err != nil {
		return err
	}

	if err := s.initService(); err != nil {
		return err
	}

	return nil
}

// Bootstrap announces to the seeds and runs one immediate gossip round, so a
// starting node joins the swarm without waiting a full interval.
func (s *Swarm) Bootstrap(ctx context.Context) error {
	if _, err := s.Discovery.AnnounceToSeeds(ctx); err != nil {
		return err
	}

	_, err := s.Gossip.RunRound(ctx)
	return err
}

// Run starts the service and the gossip loop. This is a blocking call; use
// Shutdown to stop.
func (s *Swarm) Run() {
	logger := s.Config.Logger()

	if s.Service != nil {
		go s.Service.Serve()
	}

	go s.Timer.Run(s.Config.GossipInterval)

	if err := s.Bootstrap(context.Background()); err != nil {
		logger.WithError(err).Error("bootstrap")
	}

	for {
		select {
		case <-s.Timer.TickCh():
			if _, err := s.Gossip.RunRound(context.Background()); err != nil {
				logger.WithError(err).Error("gossip round")
			}
		case <-s.shutdownCh:
			return
		}
	}
}

// Shutdown stops the gossip loop, drains the service, and closes the stores.
func (s *Swarm) Shutdown() {
	close(s.shutdownCh)

	s.Timer.Shutdown()

	if s.Service != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.Service.Shutdown(ctx)
	}

	if s.Transport != nil {
		s.Transport.Close()
	}

	if s.Handles != nil {
		s.Handles.Close()
	}

	if s.Store != nil {
		s.Store.Close()
	}
}
