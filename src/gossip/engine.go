package gossip

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/cyph3rasi/synapsis-swarm/src/crypto/keys"
	"github.com/cyph3rasi/synapsis-swarm/src/handles"
	"github.com/cyph3rasi/synapsis-swarm/src/net"
	"github.com/cyph3rasi/synapsis-swarm/src/registry"
	"github.com/cyph3rasi/synapsis-swarm/src/signature"
)

// ErrUnauthenticated is returned by ProcessInbound when signed gossip is
// required and the envelope carries no valid signature.
var ErrUnauthenticated = errors.New("gossip: unauthenticated payload")

// ErrEmptyPayload is returned by ProcessInbound for an envelope without a
// payload.
var ErrEmptyPayload = errors.New("gossip: empty payload")

// Announcer builds this node's self-announcement for embedding in outbound
// payloads. The discovery engine is the production implementation.
type Announcer interface {
	BuildAnnouncement() (*net.Announcement, error)
}

// Config tunes the gossip engine.
type Config struct {
	// OwnDomain is this node's domain; it is never gossiped as a peer.
	OwnDomain string
	// Fanout is the number of peers contacted per round.
	Fanout int
	// MaxNodes bounds the registry slice included in a payload.
	MaxNodes int
	// MaxHandles bounds the handle deltas included in a payload.
	MaxHandles int
	// Timeout bounds a single exchange.
	Timeout time.Duration
	// RequireSigned makes ProcessInbound reject unsigned or unverifiable
	// envelopes.
	RequireSigned bool
}

// DefaultConfig ...
func DefaultConfig(ownDomain string) Config {
	return Config{
		OwnDomain:  ownDomain,
		Fanout:     3,
		MaxNodes:   50,
		MaxHandles: 100,
		Timeout:    15 * time.Second,
	}
}

// SyncResult is the outcome of one gossip exchange. Network failures land
// here, not in an error; only persistence failures are raised to the caller.
type SyncResult struct {
	Domain          string
	Success         bool
	Err             string
	NodesSent       int
	HandlesSent     int
	NodesReceived   int
	HandlesReceived int
	Duration        time.Duration
}

// RoundStats aggregates one gossip round.
type RoundStats struct {
	Peers     int
	Successes int
	Failures  int
	Results   []*SyncResult
}

// Engine runs the duplex gossip protocol against the node registry and the
// handle registry.
type Engine struct {
	conf        Config
	store       registry.Store
	handleStore handles.Store
	transport   net.Transport
	keyManager  *keys.Manager
	verifier    *signature.Engine
	announcer   Announcer
	metrics     *Metrics
	clock       clock.Clock
	logger      *logrus.Entry
}

// NewEngine ...
func NewEngine(
	conf Config,
	store registry.Store,
	handleStore handles.Store,
	transport net.Transport,
	keyManager *keys.Manager,
	verifier *signature.Engine,
	announcer Announcer,
	metrics *Metrics,
	clk clock.Clock,
	logger *logrus.Entry,
) *Engine {
	if conf.Fanout <= 0 {
		conf.Fanout = 3
	}
	if conf.MaxNodes <= 0 {
		conf.MaxNodes = 50
	}
	if conf.MaxHandles <= 0 {
		conf.MaxHandles = 100
	}
	if conf.Timeout <= 0 {
		conf.Timeout = 15 * time.Second
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Engine{
		conf:        conf,
		store:       store,
		handleStore: handleStore,
		transport:   transport,
		keyManager:  keyManager,
		verifier:    verifier,
		announcer:   announcer,
		metrics:     metrics,
		clock:       clk,
		logger:      logger,
	}
}

// BuildPayload assembles one side of an exchange. With since set, only state
// updated strictly after that instant is included; otherwise the most trusted
// active nodes and the full handle tail, both bounded by configuration.
func (e *Engine) BuildPayload(since *time.Time) (*net.GossipPayload, error) {
	ann, err := e.announcer.BuildAnnouncement()
	if err != nil {
		return nil, err
	}

	var nodes []*registry.SwarmNode
	if since != nil {
		nodes, err = e.store.ListSince(*since, e.conf.MaxNodes)
	} else {
		nodes, err = e.store.ListActive(e.conf.MaxNodes)
	}
	if err != nil {
		return nil, err
	}

	handleSince := time.Time{}
	if since != nil {
		handleSince = *since
	}
	handleEntries, err := e.handleStore.ListSince(handleSince, e.conf.MaxHandles)
	if err != nil {
		return nil, err
	}

	return &net.GossipPayload{
		Sender:       e.conf.OwnDomain,
		Announcement: ann,
		Nodes:        nodes,
		Handles:      handleEntries,
		Timestamp:    e.clock.Now().UTC(),
		Since:        since,
	}, nil
}

// SignedPayload builds a payload and wraps it in an envelope signed with this
// node's key.
func (e *Engine) SignedPayload(since *time.Time) (*net.SignedEnvelope, error) {
	payload, err := e.BuildPayload(since)
	if err != nil {
		return nil, err
	}

	priv, _, err := e.keyManager.Keypair()
	if err != nil {
		return nil, err
	}

	sig, err := signature.Sign(payload, priv)
	if err != nil {
		return nil, err
	}

	return &net.SignedEnvelope{Payload: payload, Signature: sig}, nil
}

// ProcessInbound handles a gossip request from a remote peer: authenticate,
// merge the remote view, and reply with our own view filtered by the
// requested since. Authentication failures return ErrUnauthenticated; any
// other error is a persistence failure.
func (e *Engine) ProcessInbound(ctx context.Context, env *net.SignedEnvelope) (*net.GossipResponse, error) {
	if env == nil || env.Payload == nil {
		return nil, ErrEmptyPayload
	}
	payload := env.Payload

	if e.conf.RequireSigned {
		if env.Signature == "" || !e.verifyInbound(ctx, payload, env.Signature) {
			e.logger.WithField("sender", payload.Sender).Warn("rejecting unauthenticated gossip")
			return nil, ErrUnauthenticated
		}
	}

	start := e.clock.Now()

	nodesAccepted, handlesAccepted, err := e.merge(payload.Sender, payload.Announcement, payload.Nodes, payload.Handles)
	if err != nil {
		e.logger.WithField("sender", payload.Sender).WithError(err).Error("merging inbound gossip")
		return nil, err
	}

	reply, err := e.BuildPayload(payload.Since)
	if err != nil {
		e.logger.WithField("sender", payload.Sender).WithError(err).Error("building gossip reply")
		return nil, err
	}

	entry := &registry.SyncLogEntry{
		RemoteDomain:    payload.Sender,
		Direction:       registry.SyncPull,
		NodesSent:       len(reply.Nodes),
		NodesReceived:   nodesAccepted,
		HandlesSent:     len(reply.Handles),
		HandlesReceived: handlesAccepted,
		Success:         true,
		Duration:        e.clock.Since(start),
		StartedAt:       start,
	}
	if err := e.store.LogSync(entry); err != nil {
		e.logger.WithField("sender", payload.Sender).WithError(err).Error("writing sync log")
		return nil, err
	}

	return &net.GossipResponse{
		GossipPayload:   *reply,
		NodesReceived:   nodesAccepted,
		HandlesReceived: handlesAccepted,
	}, nil
}

// GossipWithNode runs one full-duplex exchange with the given domain. The
// returned result reports the exchange outcome; the returned error is non-nil
// only for local failures: payload assembly, health bookkeeping, or the sync
// log.
func (e *Engine) GossipWithNode(ctx context.Context, domain string, since *time.Time) (*SyncResult, error) {
	start := e.clock.Now()
	result := &SyncResult{Domain: domain}

	env, err := e.SignedPayload(since)
	if err != nil {
		return nil, err
	}
	result.NodesSent = len(env.Payload.Nodes)
	result.HandlesSent = len(env.Payload.Handles)

	ctx, cancel := context.WithTimeout(ctx, e.conf.Timeout)
	defer cancel()

	resp, err := e.transport.Gossip(ctx, domain, env)
	if err != nil {
		result.Err = err.Error()
		result.Duration = e.clock.Since(start)
		e.logger.WithField("domain", domain).WithError(err).Debug("gossip exchange failed")
		return result, e.recordAttempt(domain, result, false)
	}

	nodesAccepted, handlesAccepted, err := e.merge(domain, resp.Announcement, resp.Nodes, resp.Handles)
	if err != nil {
		e.logger.WithField("domain", domain).WithError(err).Error("merging gossip response")
		return result, err
	}

	result.Success = true
	result.NodesReceived = nodesAccepted
	result.HandlesReceived = handlesAccepted
	result.Duration = e.clock.Since(start)

	return result, e.recordAttempt(domain, result, true)
}

// RunRound selects up to Fanout peers and gossips with each in turn. A failed
// exchange never prevents the remaining ones; persistence errors are
// collected and joined.
func (e *Engine) RunRound(ctx context.Context) (*RoundStats, error) {
	e.metrics.Rounds.Inc()

	peers, err := e.store.ListForGossip(e.conf.Fanout)
	if err != nil {
		return nil, err
	}

	stats := &RoundStats{}
	var persistErrs []error

	for _, peer := range peers {
		if ctx.Err() != nil {
			break
		}

		var since *time.Time
		if !peer.LastSyncAt.IsZero() {
			t := peer.LastSyncAt
			since = &t
		}

		res, err := e.GossipWithNode(ctx, peer.Domain, since)
		if err != nil {
			persistErrs = append(persistErrs, err)
		}
		if res == nil {
			continue
		}

		stats.Peers++
		stats.Results = append(stats.Results, res)
		e.metrics.PeersContacted.Inc()

		if res.Success {
			stats.Successes++
			e.metrics.PeerSuccesses.Inc()
			e.metrics.NodesReceived.Add(float64(res.NodesReceived))
			e.metrics.HandlesReceived.Add(float64(res.HandlesReceived))
		} else {
			stats.Failures++
			e.metrics.PeerFailures.Inc()
		}
	}

	e.logger.WithFields(logrus.Fields{
		"peers":     stats.Peers,
		"successes": stats.Successes,
		"failures":  stats.Failures,
	}).Debug("gossip round complete")

	return stats, errors.Join(persistErrs...)
}

// merge folds a remote view into the local stores. The sender's announcement
// counts as one more node entry; the registry itself drops anything keyed by
// our own domain.
func (e *Engine) merge(sender string, ann *net.Announcement, nodes []*registry.SwarmNode, handleEntries []*handles.Entry) (nodesAccepted, handlesAccepted int, err error) {
	incoming := nodes
	if ann != nil && ann.Domain != "" {
		incoming = append([]*registry.SwarmNode{ann.ToNode()}, nodes...)
	}

	added, updated, err := e.store.UpsertBatch(incoming, sender)
	if err != nil {
		return 0, 0, err
	}
	nodesAccepted = added + updated

	hAdded, hUpdated, err := e.handleStore.UpsertEntries(handleEntries)
	if err != nil {
		return nodesAccepted, 0, err
	}
	handlesAccepted = hAdded + hUpdated

	return nodesAccepted, handlesAccepted, nil
}

// verifyInbound checks the envelope signature against the sender's node key,
// preferring the key already on record over a network fetch.
func (e *Engine) verifyInbound(ctx context.Context, payload *net.GossipPayload, sig string) bool {
	if node, err := e.store.Get(payload.Sender); err == nil && node.PublicKey != "" {
		return signature.Verify(payload, sig, node.PublicKey)
	}
	return e.verifier.VerifyRemote(ctx, payload, sig, payload.Sender)
}

// recordAttempt applies the health bookkeeping and appends the sync log entry
// for one outbound exchange. An unknown domain is not an error here: a forced
// exchange with a node we have never seen has nothing to mark yet.
func (e *Engine) recordAttempt(domain string, result *SyncResult, ok bool) error {
	var markErr error
	if ok {
		markErr = e.store.MarkSuccess(domain)
	} else {
		markErr = e.store.MarkFailure(domain)
	}
	if registry.IsUnknownDomain(markErr) {
		markErr = nil
	}
	if markErr != nil {
		e.logger.WithField("domain", domain).WithError(markErr).Error("updating node health")
	}

	entry := &registry.SyncLogEntry{
		RemoteDomain:    domain,
		Direction:       registry.SyncPush,
		NodesSent:       result.NodesSent,
		NodesReceived:   result.NodesReceived,
		HandlesSent:     result.HandlesSent,
		HandlesReceived: result.HandlesReceived,
		Success:         ok,
		Error:           result.Err,
		Duration:        result.Duration,
		StartedAt:       e.clock.Now().Add(-result.Duration),
	}
	logErr := e.store.LogSync(entry)
	if logErr != nil {
		e.logger.WithField("domain", domain).WithError(logErr).Error("writing sync log")
	}

	return errors.Join(markErr, logErr)
}
