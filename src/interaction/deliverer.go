package interaction

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cyph3rasi/synapsis-swarm/src/handles"
	"github.com/cyph3rasi/synapsis-swarm/src/net"
	"github.com/cyph3rasi/synapsis-swarm/src/registry"
)

// defaultTimeout bounds one delivery attempt.
const defaultTimeout = 10 * time.Second

// DeliveryResult is the outcome of one delivery. Network failures land here;
// the caller decides whether to queue a retry.
type DeliveryResult struct {
	Domain        string
	InteractionID string
	Kind          net.InteractionKind
	Success       bool
	Err           string
	Duration      time.Duration
}

// Deliverer posts interactions to remote nodes and answers whether a given
// domain or handle is part of the swarm at all.
type Deliverer struct {
	ownDomain   string
	store       registry.Store
	handleStore handles.Store
	transport   net.Transport
	timeout     time.Duration
	metrics     *Metrics
	clock       clock.Clock
	logger      *logrus.Entry
}

// NewDeliverer ...
func NewDeliverer(
	ownDomain string,
	store registry.Store,
	handleStore handles.Store,
	transport net.Transport,
	timeout time.Duration,
	metrics *Metrics,
	clk clock.Clock,
	logger *logrus.Entry,
) *Deliverer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Deliverer{
		ownDomain:   ownDomain,
		store:       store,
		handleStore: handleStore,
		transport:   transport,
		timeout:     timeout,
		metrics:     metrics,
		clock:       clk,
		logger:      logger,
	}
}

// NewInteraction builds a payload with a fresh id and this node as the actor
// domain. The caller fills in the target fields.
func (d *Deliverer) NewInteraction(kind net.InteractionKind, actorHandle, actorDID string) *net.InteractionPayload {
	return &net.InteractionPayload{
		InteractionID: uuid.NewString(),
		Kind:          kind,
		ActorHandle:   actorHandle,
		ActorDID:      actorDID,
		ActorDomain:   d.ownDomain,
		Timestamp:     d.clock.Now().UTC(),
	}
}

// Deliver posts one interaction to the target domain. The outcome feeds the
// target's health bookkeeping; the returned error is non-nil only for an
// invalid payload or a persistence failure.
func (d *Deliverer) Deliver(ctx context.Context, domain string, payload *net.InteractionPayload) (*DeliveryResult, error) {
	if payload == nil {
		return nil, fmt.Errorf("interaction: nil payload")
	}
	if !net.ValidInteractionKind(payload.Kind) {
		return nil, fmt.Errorf("interaction: invalid kind %q", payload.Kind)
	}
	if payload.InteractionID == "" {
		return nil, fmt.Errorf("interaction: missing interaction id")
	}

	result := &DeliveryResult{
		Domain:        domain,
		InteractionID: payload.InteractionID,
		Kind:          payload.Kind,
	}

	start := d.clock.Now()
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := d.transport.DeliverInteraction(ctx, domain, payload)
	result.Duration = d.clock.Since(start)

	if err != nil {
		result.Err = err.Error()
		d.metrics.Failed.WithLabelValues(string(payload.Kind)).Inc()
		d.logger.WithFields(logrus.Fields{
			"domain": domain,
			"kind":   payload.Kind,
		}).WithError(err).Debug("interaction delivery failed")
		return result, d.mark(domain, false)
	}

	result.Success = true
	d.metrics.Delivered.WithLabelValues(string(payload.Kind)).Inc()

	return result, d.mark(domain, true)
}

// IsSwarmNode reports whether the domain is a known, currently active member
// of the swarm.
func (d *Deliverer) IsSwarmNode(domain string) (bool, error) {
	node, err := d.store.Get(domain)
	if registry.IsUnknownDomain(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return node.IsActive, nil
}

// IsSwarmHandle reports whether the handle is registered anywhere in the
// swarm.
func (d *Deliverer) IsSwarmHandle(handle string) (bool, error) {
	entry, err := d.handleStore.Get(handle)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

func (d *Deliverer) mark(domain string, ok bool) error {
	var err error
	if ok {
		err = d.store.MarkSuccess(domain)
	} else {
		err = d.store.MarkFailure(domain)
	}
	if registry.IsUnknownDomain(err) {
		return nil
	}
	if err != nil {
		d.logger.WithField("domain", domain).WithError(err).Error("updating node health")
	}
	return err
}
