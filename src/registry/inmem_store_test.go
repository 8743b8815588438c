package registry

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func newTestStore(t *testing.T) (*InmemStore, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewInmemStore("self.test", DefaultTrustPolicy(), mock), mock
}

func TestUpsertNewNode(t *testing.T) {
	store, _ := newTestStore(t)

	isNew, err := store.UpsertNode(&SwarmNode{Domain: "peer.test", Name: "Peer"}, "seed1.test")
	if err != nil {
		t.Fatal(err)
	}
	if !isNew {
		t.Fatal("first upsert should report a new node")
	}

	node, err := store.Get("peer.test")
	if err != nil {
		t.Fatal(err)
	}

	if node.TrustScore != DefaultTrustPolicy().InitialTrust {
		t.Fatalf("new node trust = %d, want %d", node.TrustScore, DefaultTrustPolicy().InitialTrust)
	}
	if !node.IsActive {
		t.Fatal("new node should be active")
	}
	if node.DiscoveredVia != "seed1.test" {
		t.Fatalf("discoveredVia = %q, want seed1.test", node.DiscoveredVia)
	}
	if node.DiscoveredAt.IsZero() || node.LastSeenAt.IsZero() {
		t.Fatal("discovery timestamps should be set")
	}
}

func TestUpsertMergesNonAbsentFields(t *testing.T) {
	store, _ := newTestStore(t)

	store.UpsertNode(&SwarmNode{
		Domain:      "peer.test",
		Name:        "Peer",
		Description: "a peer node",
		PublicKey:   "0XAB",
	}, "")

	// A sparser update must not erase known fields.
	isNew, err := store.UpsertNode(&SwarmNode{Domain: "peer.test", Version: "0.2.0"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if isNew {
		t.Fatal("second upsert should not report a new node")
	}

	node, _ := store.Get("peer.test")
	if node.Name != "Peer" || node.Description != "a peer node" || node.PublicKey != "0XAB" {
		t.Fatalf("merge erased known fields: %+v", node)
	}
	if node.Version != "0.2.0" {
		t.Fatalf("merge did not apply new field: version = %q", node.Version)
	}
}

func TestUpsertReactivatesFailedNode(t *testing.T) {
	store, _ := newTestStore(t)

	store.UpsertNode(&SwarmNode{Domain: "peer.test"}, "")
	for i := 0; i < 5; i++ {
		if err := store.MarkFailure("peer.test"); err != nil {
			t.Fatal(err)
		}
	}

	node, _ := store.Get("peer.test")
	if node.IsActive {
		t.Fatal("node should be inactive after 5 failures")
	}

	// Being gossiped about again brings it back.
	store.UpsertNode(&SwarmNode{Domain: "peer.test"}, "")

	node, _ = store.Get("peer.test")
	if !node.IsActive || node.ConsecutiveFailures != 0 {
		t.Fatalf("upsert should reactivate: active=%v failures=%d", node.IsActive, node.ConsecutiveFailures)
	}
}

func TestUpsertBatchExcludesOwnDomain(t *testing.T) {
	store, _ := newTestStore(t)

	added, updated, err := store.UpsertBatch([]*SwarmNode{
		{Domain: "a.test"},
		{Domain: "self.test"},
		{Domain: "b.test"},
		{Domain: ""},
	}, "gossip.test")
	if err != nil {
		t.Fatal(err)
	}

	if added != 2 || updated != 0 {
		t.Fatalf("added=%d updated=%d, want 2/0", added, updated)
	}

	if _, err := store.Get("self.test"); !IsUnknownDomain(err) {
		t.Fatal("own domain must never be stored")
	}
}

func TestTrustScoreStaysClamped(t *testing.T) {
	store, _ := newTestStore(t)
	store.UpsertNode(&SwarmNode{Domain: "peer.test"}, "")

	// Arbitrary sequence of outcomes; trust must stay within [0,100] at
	// every step.
	outcomes := []bool{
		false, false, false, false, false, false, false, false, false, false,
		false, false, true, true, false, true, false, false, false, false,
	}
	for i, ok := range outcomes {
		if ok {
			store.MarkSuccess("peer.test")
		} else {
			store.MarkFailure("peer.test")
		}
		node, _ := store.Get("peer.test")
		if node.TrustScore < 0 || node.TrustScore > MaxTrust {
			t.Fatalf("step %d: trust %d out of bounds", i, node.TrustScore)
		}
	}

	// Push the score to the ceiling.
	for i := 0; i < 150; i++ {
		store.MarkSuccess("peer.test")
	}
	node, _ := store.Get("peer.test")
	if node.TrustScore != MaxTrust {
		t.Fatalf("trust = %d, want ceiling %d", node.TrustScore, MaxTrust)
	}
}

func TestFailureStreakDeactivation(t *testing.T) {
	store, _ := newTestStore(t)
	store.UpsertNode(&SwarmNode{Domain: "peer.test"}, "")

	// Five failures from trust=50: 45,40,35,30,25, inactive after the 5th.
	wantTrust := []int{45, 40, 35, 30, 25}
	for i, want := range wantTrust {
		store.MarkFailure("peer.test")
		node, _ := store.Get("peer.test")
		if node.TrustScore != want {
			t.Fatalf("failure %d: trust = %d, want %d", i+1, node.TrustScore, want)
		}
		wantActive := i+1 < 5
		if node.IsActive != wantActive {
			t.Fatalf("failure %d: active = %v, want %v", i+1, node.IsActive, wantActive)
		}
	}

	// Exactly one success recovers immediately.
	if err := store.MarkSuccess("peer.test"); err != nil {
		t.Fatal(err)
	}
	node, _ := store.Get("peer.test")
	if !node.IsActive || node.ConsecutiveFailures != 0 {
		t.Fatalf("success should reactivate: active=%v failures=%d", node.IsActive, node.ConsecutiveFailures)
	}
	if node.TrustScore != 26 {
		t.Fatalf("trust = %d, want 26", node.TrustScore)
	}
}

func TestMarkSuccessIncrementsTrust(t *testing.T) {
	store, _ := newTestStore(t)
	store.UpsertNode(&SwarmNode{Domain: "b.test"}, "")

	if err := store.MarkSuccess("b.test"); err != nil {
		t.Fatal(err)
	}

	node, _ := store.Get("b.test")
	if node.TrustScore != 51 || node.ConsecutiveFailures != 0 || !node.IsActive {
		t.Fatalf("got trust=%d failures=%d active=%v, want 51/0/true",
			node.TrustScore, node.ConsecutiveFailures, node.IsActive)
	}
	if node.LastSyncAt.IsZero() {
		t.Fatal("MarkSuccess should refresh LastSyncAt")
	}
}

func TestMarkUnknownDomain(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.MarkSuccess("ghost.test"); !IsUnknownDomain(err) {
		t.Fatalf("expected ErrUnknownDomain, got %v", err)
	}
	if err := store.MarkFailure("ghost.test"); !IsUnknownDomain(err) {
		t.Fatalf("expected ErrUnknownDomain, got %v", err)
	}
}

func TestListForGossipRespectsTrustFloor(t *testing.T) {
	store, _ := newTestStore(t)

	store.UpsertNode(&SwarmNode{Domain: "high.test"}, "")
	store.UpsertNode(&SwarmNode{Domain: "low.test"}, "")

	// Drag low.test under the floor without deactivating it: four failures
	// then a success resets the streak while trust keeps sinking.
	// 50 -> 30 -> 31 -> 11 -> 12.
	for cycle := 0; cycle < 2; cycle++ {
		for i := 0; i < 4; i++ {
			store.MarkFailure("low.test")
		}
		store.MarkSuccess("low.test")
	}

	low, _ := store.Get("low.test")
	if !low.IsActive {
		t.Fatal("setup should leave low.test active")
	}
	if low.TrustScore > DefaultTrustPolicy().GossipFloor {
		t.Fatalf("setup did not push trust under floor: %d", low.TrustScore)
	}

	targets, err := store.ListForGossip(10)
	if err != nil {
		t.Fatal(err)
	}

	for _, node := range targets {
		if node.Domain == "low.test" {
			t.Fatal("node under the trust floor selected for gossip")
		}
	}
}

func TestListForGossipBounded(t *testing.T) {
	store, _ := newTestStore(t)

	domains := []string{"a.test", "b.test", "c.test", "d.test", "e.test"}
	for _, d := range domains {
		store.UpsertNode(&SwarmNode{Domain: d}, "")
	}

	targets, err := store.ListForGossip(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 3 {
		t.Fatalf("got %d targets, want 3", len(targets))
	}

	seen := map[string]bool{}
	for _, node := range targets {
		if seen[node.Domain] {
			t.Fatalf("duplicate gossip target %s", node.Domain)
		}
		seen[node.Domain] = true
	}
}

func TestListForGossipFanoutThreeOfTen(t *testing.T) {
	store, _ := newTestStore(t)

	eligible := map[string]bool{}
	for _, d := range []string{
		"n01.test", "n02.test", "n03.test", "n04.test", "n05.test",
		"n06.test", "n07.test", "n08.test", "n09.test", "n10.test",
	} {
		store.UpsertNode(&SwarmNode{Domain: d}, "")
		eligible[d] = true
	}

	// An eleventh node pushed inactive must never be selected.
	store.UpsertNode(&SwarmNode{Domain: "down.test"}, "")
	for i := 0; i < 5; i++ {
		store.MarkFailure("down.test")
	}

	targets, err := store.ListForGossip(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 3 {
		t.Fatalf("got %d targets from 10 eligible, want 3", len(targets))
	}

	seen := map[string]bool{}
	for _, node := range targets {
		if !eligible[node.Domain] {
			t.Fatalf("ineligible node %s selected", node.Domain)
		}
		if seen[node.Domain] {
			t.Fatalf("duplicate gossip target %s", node.Domain)
		}
		seen[node.Domain] = true
	}
}

func TestListSinceIsStrict(t *testing.T) {
	store, mock := newTestStore(t)

	store.UpsertNode(&SwarmNode{Domain: "old.test"}, "")
	cutoff := mock.Now()

	mock.Add(time.Minute)
	store.UpsertNode(&SwarmNode{Domain: "new.test"}, "")

	nodes, err := store.ListSince(cutoff, 0)
	if err != nil {
		t.Fatal(err)
	}

	// old.test was updated exactly at the cutoff; strictly-after excludes it.
	if len(nodes) != 1 || nodes[0].Domain != "new.test" {
		t.Fatalf("ListSince returned %d nodes, want only new.test", len(nodes))
	}
}

func TestUpsertIdempotent(t *testing.T) {
	store, _ := newTestStore(t)

	batch := []*SwarmNode{
		{Domain: "a.test", Name: "A", PublicKey: "0XAA"},
		{Domain: "b.test", Name: "B"},
	}

	store.UpsertBatch(batch, "peer.test")
	countAfterFirst, _ := store.Count()
	aAfterFirst, _ := store.Get("a.test")

	// Merging the identical payload again changes nothing material.
	added, _, _ := store.UpsertBatch(batch, "peer.test")
	if added != 0 {
		t.Fatalf("second merge added %d nodes, want 0", added)
	}

	countAfterSecond, _ := store.Count()
	if countAfterFirst != countAfterSecond {
		t.Fatalf("registry size changed on idempotent merge: %d -> %d", countAfterFirst, countAfterSecond)
	}

	aAfterSecond, _ := store.Get("a.test")
	if aAfterSecond.Name != aAfterFirst.Name ||
		aAfterSecond.PublicKey != aAfterFirst.PublicKey ||
		aAfterSecond.TrustScore != aAfterFirst.TrustScore {
		t.Fatalf("field values changed on idempotent merge: %+v vs %+v", aAfterFirst, aAfterSecond)
	}
}

func TestSeedsFallBackToDefaults(t *testing.T) {
	store, _ := newTestStore(t)

	seeds, err := store.Seeds()
	if err != nil {
		t.Fatal(err)
	}
	if len(seeds) != len(DefaultSeeds()) {
		t.Fatalf("got %d seeds, want default list of %d", len(seeds), len(DefaultSeeds()))
	}

	store.SetSeeds([]*SeedNode{
		{Domain: "z.test", Priority: 2, IsEnabled: true},
		{Domain: "a.test", Priority: 1, IsEnabled: true},
		{Domain: "off.test", Priority: 0, IsEnabled: false},
	})

	seeds, _ = store.Seeds()
	if len(seeds) != 2 {
		t.Fatalf("got %d enabled seeds, want 2", len(seeds))
	}
	if seeds[0].Domain != "a.test" || seeds[1].Domain != "z.test" {
		t.Fatalf("seeds not ordered by priority: %s, %s", seeds[0].Domain, seeds[1].Domain)
	}
}

func TestSyncLogAppendOnly(t *testing.T) {
	store, _ := newTestStore(t)

	store.LogSync(&SyncLogEntry{RemoteDomain: "a.test", Direction: SyncPush, Success: true})
	store.LogSync(&SyncLogEntry{RemoteDomain: "b.test", Direction: SyncPull, Success: false, Error: "timeout"})

	log, err := store.SyncLog(10)
	if err != nil {
		t.Fatal(err)
	}

	if len(log) != 2 {
		t.Fatalf("got %d entries, want 2", len(log))
	}
	if log[0].RemoteDomain != "a.test" || log[1].RemoteDomain != "b.test" {
		t.Fatal("sync log out of order")
	}
	if log[1].Error != "timeout" {
		t.Fatal("error text not preserved")
	}
}
