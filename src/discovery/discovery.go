package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/cyph3rasi/synapsis-swarm/src/crypto/keys"
	"github.com/cyph3rasi/synapsis-swarm/src/net"
	"github.com/cyph3rasi/synapsis-swarm/src/registry"
	"github.com/cyph3rasi/synapsis-swarm/src/version"
)

// defaultTimeout bounds a single announce or probe.
const defaultTimeout = 10 * time.Second

// Identity is the static self-description a node advertises. Everything here
// comes from configuration; the dynamic parts of an announcement (key, stats,
// version) are resolved at build time.
type Identity struct {
	Domain      string
	Name        string
	Description string
	LogoURL     string
	NSFW        bool
}

// StatsProvider reports the node's public counters. The hosting application
// plugs in the real numbers; a nil provider announces zeros.
type StatsProvider interface {
	SwarmStats() (userCount, postCount int)
}

// AnnounceResult is the outcome of announcing to one peer. Network failures
// land here, never in an error.
type AnnounceResult struct {
	Domain  string
	Success bool
	Err     string
}

// Engine builds announcements and runs the bootstrap protocol against the
// seed list.
type Engine struct {
	identity   Identity
	store      registry.Store
	transport  net.Transport
	keyManager *keys.Manager
	stats      StatsProvider
	timeout    time.Duration
	clock      clock.Clock
	logger     *logrus.Entry
}

// NewEngine ...
func NewEngine(
	identity Identity,
	store registry.Store,
	transport net.Transport,
	keyManager *keys.Manager,
	stats StatsProvider,
	timeout time.Duration,
	clk clock.Clock,
	logger *logrus.Entry,
) *Engine {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Engine{
		identity:   identity,
		store:      store,
		transport:  transport,
		keyManager: keyManager,
		stats:      stats,
		timeout:    timeout,
		clock:      clk,
		logger:     logger,
	}
}

// BuildNodeInfo assembles this node's public info: configured identity,
// public key, running version, and live counters.
func (e *Engine) BuildNodeInfo() (*net.NodeInfo, error) {
	pubHex, err := e.keyManager.PublicKeyHex()
	if err != nil {
		return nil, err
	}

	var users, posts int
	if e.stats != nil {
		users, posts = e.stats.SwarmStats()
	}

	return &net.NodeInfo{
		Domain:       e.identity.Domain,
		Name:         e.identity.Name,
		Description:  e.identity.Description,
		LogoURL:      e.identity.LogoURL,
		PublicKey:    pubHex,
		Version:      version.Version,
		UserCount:    users,
		PostCount:    posts,
		NSFW:         e.identity.NSFW,
		Capabilities: registry.DefaultCapabilities,
	}, nil
}

// BuildAnnouncement implements gossip.Announcer.
func (e *Engine) BuildAnnouncement() (*net.Announcement, error) {
	info, err := e.BuildNodeInfo()
	if err != nil {
		return nil, err
	}
	return &net.Announcement{
		NodeInfo:  *info,
		Timestamp: e.clock.Now().UTC(),
	}, nil
}

// AnnounceToNode pushes our announcement to one peer and, on success, folds
// the peer's reply into the registry. The returned error is non-nil only for
// local failures.
func (e *Engine) AnnounceToNode(ctx context.Context, domain string) (*AnnounceResult, error) {
	result := &AnnounceResult{Domain: domain}

	announcement, err := e.BuildAnnouncement()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	info, err := e.transport.Announce(ctx, domain, announcement)
	if err != nil {
		result.Err = err.Error()
		e.logger.WithField("domain", domain).WithError(err).Debug("announce failed")
		return result, e.mark(domain, false)
	}

	result.Success = true

	var persistErrs []error
	if info != nil && info.Domain != "" && info.Domain != e.identity.Domain {
		if _, err := e.store.UpsertNode(info.ToNode(), "announce"); err != nil {
			e.logger.WithField("domain", domain).WithError(err).Error("storing announce reply")
			persistErrs = append(persistErrs, err)
		}
	}
	persistErrs = append(persistErrs, e.mark(domain, true))

	return result, errors.Join(persistErrs...)
}

// mark records the contact outcome on the registry entry. Announcing to a
// node the registry has never seen is normal during bootstrap, so an unknown
// domain is not an error.
func (e *Engine) mark(domain string, ok bool) error {
	var err error
	if ok {
		err = e.store.MarkSuccess(domain)
	} else {
		err = e.store.MarkFailure(domain)
	}
	if registry.IsUnknownDomain(err) {
		return nil
	}
	if err != nil {
		e.logger.WithField("domain", domain).WithError(err).Error("updating node health")
	}
	return err
}

// AnnounceToSeeds announces to every enabled seed in priority order. A failed
// seed never prevents the remaining ones; each contact outcome is recorded on
// the seed itself.
func (e *Engine) AnnounceToSeeds(ctx context.Context) ([]*AnnounceResult, error) {
	seeds, err := e.store.Seeds()
	if err != nil {
		return nil, err
	}

	var results []*AnnounceResult
	var persistErrs []error

	for _, seed := range seeds {
		if seed.Domain == e.identity.Domain {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		result, err := e.AnnounceToNode(ctx, seed.Domain)
		if err != nil {
			persistErrs = append(persistErrs, err)
		}
		if result == nil {
			continue
		}
		results = append(results, result)

		if err := e.store.TouchSeed(seed.Domain, result.Success); err != nil {
			e.logger.WithField("domain", seed.Domain).WithError(err).Error("recording seed contact")
			persistErrs = append(persistErrs, err)
		}
	}

	e.logger.WithFields(logrus.Fields{
		"seeds":     len(seeds),
		"announced": len(results),
	}).Debug("seed bootstrap complete")

	return results, errors.Join(persistErrs...)
}

// FetchNodeInfo probes a domain's public info endpoint.
func (e *Engine) FetchNodeInfo(ctx context.Context, domain string) (*net.NodeInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	return e.transport.FetchNodeInfo(ctx, domain)
}

// DiscoverNode probes a domain and registers it. Probing our own domain is
// refused rather than stored.
func (e *Engine) DiscoverNode(ctx context.Context, domain string) (*registry.SwarmNode, error) {
	if domain == e.identity.Domain {
		return nil, fmt.Errorf("discovery: refusing to discover own domain %q", domain)
	}

	info, err := e.FetchNodeInfo(ctx, domain)
	if err != nil {
		return nil, err
	}
	if info.Domain == e.identity.Domain {
		return nil, fmt.Errorf("discovery: %q claims our own domain", domain)
	}

	if _, err := e.store.UpsertNode(info.ToNode(), "probe"); err != nil {
		e.logger.WithField("domain", domain).WithError(err).Error("storing probed node")
		return nil, err
	}

	return e.store.Get(info.Domain)
}
