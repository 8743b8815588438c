package interaction

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cyph3rasi/synapsis-swarm/src/common"
	"github.com/cyph3rasi/synapsis-swarm/src/handles"
	"github.com/cyph3rasi/synapsis-swarm/src/net"
	"github.com/cyph3rasi/synapsis-swarm/src/registry"
)

func newTestDeliverer(t *testing.T, network *net.InmemNetwork) (*Deliverer, registry.Store, handles.Store) {
	t.Helper()

	store := registry.NewInmemStore("self.test", registry.DefaultTrustPolicy(), nil)
	handleStore := handles.NewInmemStore()

	deliverer := NewDeliverer("self.test", store, handleStore, network.Transport(),
		0, nil, nil, common.NewTestEntry(t, logrus.DebugLevel, "interaction"))

	return deliverer, store, handleStore
}

func TestNewInteraction(t *testing.T) {
	deliverer, _, _ := newTestDeliverer(t, net.NewInmemNetwork())

	first := deliverer.NewInteraction(net.InteractionLike, "alice", "did:plc:alice")
	second := deliverer.NewInteraction(net.InteractionLike, "alice", "did:plc:alice")

	if first.InteractionID == "" || first.InteractionID == second.InteractionID {
		t.Fatal("every interaction needs a unique id")
	}
	if first.ActorDomain != "self.test" {
		t.Fatalf("actor domain should be ours, got %s", first.ActorDomain)
	}
	if first.Timestamp.IsZero() {
		t.Fatal("interaction must be timestamped")
	}
}

func TestDeliverSuccess(t *testing.T) {
	network := net.NewInmemNetwork()
	deliverer, store, _ := newTestDeliverer(t, network)

	var received *net.InteractionPayload
	network.Connect("peer.test", &net.InmemHandlers{
		InteractionFn: func(p *net.InteractionPayload) error {
			received = p
			return nil
		},
	})

	if _, err := store.UpsertNode(&registry.SwarmNode{Domain: "peer.test"}, "test"); err != nil {
		t.Fatal(err)
	}

	payload := deliverer.NewInteraction(net.InteractionFollow, "alice", "did:plc:alice")
	payload.TargetHandle = "bob"

	result, err := deliverer.Deliver(context.Background(), "peer.test", payload)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("delivery failed: %s", result.Err)
	}
	if received == nil || received.TargetHandle != "bob" || received.Kind != net.InteractionFollow {
		t.Fatalf("unexpected payload on the receiving side: %+v", received)
	}

	node, err := store.Get("peer.test")
	if err != nil {
		t.Fatal(err)
	}
	if node.TrustScore != 51 {
		t.Fatalf("successful delivery should bump trust, got %d", node.TrustScore)
	}
}

func TestDeliverFailureMarksNode(t *testing.T) {
	network := net.NewInmemNetwork()
	deliverer, store, _ := newTestDeliverer(t, network)

	if _, err := store.UpsertNode(&registry.SwarmNode{Domain: "dead.test"}, "test"); err != nil {
		t.Fatal(err)
	}

	payload := deliverer.NewInteraction(net.InteractionMention, "alice", "")
	result, err := deliverer.Deliver(context.Background(), "dead.test", payload)
	if err != nil {
		t.Fatalf("network failure must not surface as an error: %v", err)
	}
	if result.Success || result.Err == "" {
		t.Fatalf("expected a failed result, got %+v", result)
	}

	node, err := store.Get("dead.test")
	if err != nil {
		t.Fatal(err)
	}
	if node.TrustScore != 45 || node.ConsecutiveFailures != 1 {
		t.Fatalf("failed delivery should penalize the node: %+v", node)
	}
}

func TestDeliverRejectsInvalidPayloads(t *testing.T) {
	deliverer, _, _ := newTestDeliverer(t, net.NewInmemNetwork())

	if _, err := deliverer.Deliver(context.Background(), "peer.test", nil); err == nil {
		t.Fatal("nil payload must be rejected")
	}

	bad := deliverer.NewInteraction("poke", "alice", "")
	if _, err := deliverer.Deliver(context.Background(), "peer.test", bad); err == nil {
		t.Fatal("unknown kind must be rejected")
	}

	noID := deliverer.NewInteraction(net.InteractionLike, "alice", "")
	noID.InteractionID = ""
	if _, err := deliverer.Deliver(context.Background(), "peer.test", noID); err == nil {
		t.Fatal("missing id must be rejected")
	}
}

func TestIsSwarmNode(t *testing.T) {
	deliverer, store, _ := newTestDeliverer(t, net.NewInmemNetwork())

	ok, err := deliverer.IsSwarmNode("ghost.test")
	if err != nil || ok {
		t.Fatalf("unknown domain is not a swarm node: %v %v", ok, err)
	}

	if _, err := store.UpsertNode(&registry.SwarmNode{Domain: "peer.test"}, "test"); err != nil {
		t.Fatal(err)
	}
	ok, err = deliverer.IsSwarmNode("peer.test")
	if err != nil || !ok {
		t.Fatalf("known active domain is a swarm node: %v %v", ok, err)
	}

	// Enough failures deactivate the node, and with it the membership answer.
	for i := 0; i < 5; i++ {
		if err := store.MarkFailure("peer.test"); err != nil {
			t.Fatal(err)
		}
	}
	ok, err = deliverer.IsSwarmNode("peer.test")
	if err != nil || ok {
		t.Fatalf("inactive domain is not a swarm node: %v %v", ok, err)
	}
}

func TestIsSwarmHandle(t *testing.T) {
	deliverer, _, handleStore := newTestDeliverer(t, net.NewInmemNetwork())

	ok, err := deliverer.IsSwarmHandle("alice")
	if err != nil || ok {
		t.Fatalf("unknown handle: %v %v", ok, err)
	}

	if _, err := handleStore.Upsert(&handles.Entry{
		Handle: "alice", DID: "did:plc:alice", Domain: "peer.test", UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	ok, err = deliverer.IsSwarmHandle("alice")
	if err != nil || !ok {
		t.Fatalf("registered handle: %v %v", ok, err)
	}
}
