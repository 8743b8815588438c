package signature

import (
	"context"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/cyph3rasi/synapsis-swarm/src/common"
	"github.com/cyph3rasi/synapsis-swarm/src/crypto/keys"
	"github.com/cyph3rasi/synapsis-swarm/src/net"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, err := keys.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	pubHex := keys.PublicKeyHex(&priv.PublicKey)

	payload := map[string]interface{}{"a": 1, "b": "two"}

	sig, err := Sign(payload, priv)
	if err != nil {
		t.Fatal(err)
	}

	if !Verify(payload, sig, pubHex) {
		t.Fatal("signature should verify")
	}

	mutated := map[string]interface{}{"a": 2, "b": "two"}
	if Verify(mutated, sig, pubHex) {
		t.Fatal("mutated payload should not verify")
	}

	other, _ := keys.GenerateKey()
	if Verify(payload, sig, keys.PublicKeyHex(&other.PublicKey)) {
		t.Fatal("different key should not verify")
	}

	if Verify(payload, "corrupted|signature", pubHex) {
		t.Fatal("corrupted signature should not verify")
	}

	if Verify(payload, sig, "0Xnotakey") {
		t.Fatal("malformed key should verify to false, not panic")
	}
}

func TestCanonicalizationIsOrderIndependent(t *testing.T) {
	priv, _ := keys.GenerateKey()
	pubHex := keys.PublicKeyHex(&priv.PublicKey)

	// Two maps with identical content; Go map iteration order is random, so
	// only canonicalization makes their signatures interchangeable.
	first := map[string]interface{}{"a": 1, "b": 2, "nested": map[string]interface{}{"x": "y", "z": "w"}}
	second := map[string]interface{}{"nested": map[string]interface{}{"z": "w", "x": "y"}, "b": 2, "a": 1}

	sigFirst, err := Sign(first, priv)
	if err != nil {
		t.Fatal(err)
	}

	if !Verify(second, sigFirst, pubHex) {
		t.Fatal("signature over first ordering should verify the second")
	}

	canonicalFirst, _ := CanonicalBytes(first)
	canonicalSecond, _ := CanonicalBytes(second)
	if string(canonicalFirst) != string(canonicalSecond) {
		t.Fatalf("canonical forms differ:\n%s\n%s", canonicalFirst, canonicalSecond)
	}
}

func newTestEngine(t *testing.T, network *net.InmemNetwork) *Engine {
	t.Helper()

	engine, err := NewEngine(network.Transport(), 16, common.NewTestEntry(t, logrus.DebugLevel, "signature"))
	if err != nil {
		t.Fatal(err)
	}
	return engine
}

func TestVerifyRemote(t *testing.T) {
	priv, _ := keys.GenerateKey()
	pubHex := keys.PublicKeyHex(&priv.PublicKey)

	network := net.NewInmemNetwork()
	network.Connect("peer.test", &net.InmemHandlers{
		NodeInfoFn: func() (*net.NodeInfo, error) {
			return &net.NodeInfo{Domain: "peer.test", PublicKey: pubHex}, nil
		},
	})

	engine := newTestEngine(t, network)

	payload := map[string]interface{}{"hello": "world"}
	sig, _ := Sign(payload, priv)

	if !engine.VerifyRemote(context.Background(), payload, sig, "peer.test") {
		t.Fatal("remote verification should succeed")
	}

	// Unknown domain fails closed.
	if engine.VerifyRemote(context.Background(), payload, sig, "ghost.test") {
		t.Fatal("unreachable key server must fail closed")
	}

	// A peer without a key fails closed.
	network.Connect("keyless.test", &net.InmemHandlers{
		NodeInfoFn: func() (*net.NodeInfo, error) {
			return &net.NodeInfo{Domain: "keyless.test"}, nil
		},
	})
	if engine.VerifyRemote(context.Background(), payload, sig, "keyless.test") {
		t.Fatal("missing key must fail closed")
	}
}

func TestVerifyUserScopedCachesKey(t *testing.T) {
	priv, _ := keys.GenerateKey()
	pubHex := keys.PublicKeyHex(&priv.PublicKey)

	fetches := 0
	network := net.NewInmemNetwork()
	network.Connect("home.test", &net.InmemHandlers{
		ProfileFn: func(handle string) (*net.Profile, error) {
			fetches++
			if handle != "alice" {
				return nil, fmt.Errorf("no such user")
			}
			return &net.Profile{Handle: "alice", Domain: "home.test", PublicKey: pubHex}, nil
		},
	})

	engine := newTestEngine(t, network)

	payload := map[string]interface{}{"post": "hi"}
	sig, _ := Sign(payload, priv)

	if !engine.VerifyUserScoped(context.Background(), payload, sig, "alice", "home.test") {
		t.Fatal("user-scoped verification should succeed")
	}
	if fetches != 1 {
		t.Fatalf("expected 1 profile fetch, got %d", fetches)
	}

	// Second verification hits the cache.
	if !engine.VerifyUserScoped(context.Background(), payload, sig, "alice", "home.test") {
		t.Fatal("cached verification should succeed")
	}
	if fetches != 1 {
		t.Fatalf("expected cache hit, got %d fetches", fetches)
	}

	if engine.VerifyUserScoped(context.Background(), payload, sig, "bob", "home.test") {
		t.Fatal("unknown user must fail closed")
	}
}

func TestVerifyUserScopedMalformedCacheEntryIsMiss(t *testing.T) {
	priv, _ := keys.GenerateKey()
	pubHex := keys.PublicKeyHex(&priv.PublicKey)

	fetches := 0
	network := net.NewInmemNetwork()
	network.Connect("home.test", &net.InmemHandlers{
		ProfileFn: func(handle string) (*net.Profile, error) {
			fetches++
			return &net.Profile{Handle: handle, Domain: "home.test", PublicKey: pubHex}, nil
		},
	})

	engine := newTestEngine(t, network)

	// Poison the cache with garbage; verification must fall through to a
	// fresh fetch.
	engine.CacheUserKey("alice", "home.test", "not-a-key")

	payload := map[string]interface{}{"post": "hi"}
	sig, _ := Sign(payload, priv)

	if !engine.VerifyUserScoped(context.Background(), payload, sig, "alice", "home.test") {
		t.Fatal("verification should recover from a malformed cache entry")
	}
	if fetches != 1 {
		t.Fatalf("expected a refetch, got %d fetches", fetches)
	}
}
