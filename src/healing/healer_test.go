package healing

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cyph3rasi/synapsis-swarm/src/common"
	"github.com/cyph3rasi/synapsis-swarm/src/crypto/keys"
	"github.com/cyph3rasi/synapsis-swarm/src/gossip"
	"github.com/cyph3rasi/synapsis-swarm/src/handles"
	"github.com/cyph3rasi/synapsis-swarm/src/net"
	"github.com/cyph3rasi/synapsis-swarm/src/registry"
	"github.com/cyph3rasi/synapsis-swarm/src/signature"
)

type staticAnnouncer struct {
	domain string
}

func (a *staticAnnouncer) BuildAnnouncement() (*net.Announcement, error) {
	return &net.Announcement{
		NodeInfo:  net.NodeInfo{Domain: a.domain},
		Timestamp: time.Now().UTC(),
	}, nil
}

type swarmMember struct {
	domain  string
	store   registry.Store
	handles handles.Store
	engine  *gossip.Engine
	healer  *Healer
}

func newMember(t *testing.T, network *net.InmemNetwork, domain string) *swarmMember {
	t.Helper()

	store := registry.NewInmemStore(domain, registry.DefaultTrustPolicy(), nil)
	handleStore := handles.NewInmemStore()
	keyManager := keys.NewManager("test-secret", store)
	logger := common.NewTestEntry(t, logrus.DebugLevel, domain)

	verifier, err := signature.NewEngine(network.Transport(), 16, logger)
	if err != nil {
		t.Fatal(err)
	}

	engine := gossip.NewEngine(gossip.DefaultConfig(domain), store, handleStore,
		network.Transport(), keyManager, verifier, &staticAnnouncer{domain: domain},
		nil, nil, logger)

	member := &swarmMember{
		domain:  domain,
		store:   store,
		handles: handleStore,
		engine:  engine,
		healer:  NewHealer(handleStore, engine, network.Transport(), verifier, nil, logger),
	}

	network.Connect(domain, &net.InmemHandlers{
		GossipFn: func(env *net.SignedEnvelope) (*net.GossipResponse, error) {
			return member.engine.ProcessInbound(context.Background(), env)
		},
	})

	return member
}

func TestHealConnectionWithKnownDomain(t *testing.T) {
	network := net.NewInmemNetwork()
	local := newMember(t, network, "local.test")
	remote := newMember(t, network, "remote.test")

	if _, err := remote.handles.Upsert(&handles.Entry{
		Handle: "bob", DID: "did:plc:bob", Domain: "remote.test", UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	result, err := local.healer.HealConnection(context.Background(), "did:plc:bob", "remote.test")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Healed {
		t.Fatalf("exchange with handle updates should heal: %+v", result.Sync)
	}

	entry, err := local.handles.Get("bob")
	if err != nil || entry == nil {
		t.Fatalf("healing should have pulled bob's handle: %v", err)
	}
}

func TestHealConnectionResolvesDomainFromDID(t *testing.T) {
	network := net.NewInmemNetwork()
	local := newMember(t, network, "local.test")
	remote := newMember(t, network, "remote.test")

	// The local registry already maps the DID, but the link is stale: the
	// remote has a newer entry to deliver.
	stale := time.Now().Add(-time.Hour)
	if _, err := local.handles.Upsert(&handles.Entry{
		Handle: "bob", DID: "did:plc:bob", Domain: "remote.test", UpdatedAt: stale,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := remote.handles.Upsert(&handles.Entry{
		Handle: "bob", DID: "did:plc:bob", Domain: "remote.test", UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	result, err := local.healer.HealConnection(context.Background(), "did:plc:bob", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Domain != "remote.test" {
		t.Fatalf("domain should resolve through the handle registry, got %s", result.Domain)
	}
	if !result.Healed {
		t.Fatalf("expected a healed connection: %+v", result.Sync)
	}
}

func TestHealConnectionUnknownDID(t *testing.T) {
	network := net.NewInmemNetwork()
	local := newMember(t, network, "local.test")

	if _, err := local.healer.HealConnection(context.Background(), "did:plc:ghost", ""); err == nil {
		t.Fatal("an unresolvable DID cannot be healed")
	}
}

func TestHealConnectionUnreachableNode(t *testing.T) {
	network := net.NewInmemNetwork()
	local := newMember(t, network, "local.test")

	result, err := local.healer.HealConnection(context.Background(), "did:plc:bob", "dead.test")
	if err != nil {
		t.Fatalf("an unreachable node is a result, not an error: %v", err)
	}
	if result.Healed {
		t.Fatal("nothing was exchanged, nothing healed")
	}
	if result.Sync == nil || result.Sync.Err == "" {
		t.Fatalf("result should carry the cause: %+v", result.Sync)
	}
}

func TestUpdateFromProfile(t *testing.T) {
	network := net.NewInmemNetwork()
	local := newMember(t, network, "local.test")

	network.Connect("home.test", &net.InmemHandlers{
		ProfileFn: func(handle string) (*net.Profile, error) {
			return &net.Profile{
				Handle: handle,
				DID:    "did:plc:" + handle,
				Domain: "home.test",
			}, nil
		},
	})

	entry, err := local.healer.UpdateFromProfile(context.Background(), "carol", "home.test")
	if err != nil {
		t.Fatal(err)
	}
	if entry.DID != "did:plc:carol" || entry.Domain != "home.test" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	stored, err := local.handles.GetByDID("did:plc:carol")
	if err != nil || stored == nil {
		t.Fatalf("refreshed handle should be stored: %v", err)
	}
}
