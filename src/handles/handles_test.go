package handles

import (
	"testing"
	"time"
)

func TestUpsertLastWriteWins(t *testing.T) {
	store := NewInmemStore()

	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	isNew, err := store.Upsert(&Entry{Handle: "alice", DID: "did:syn:1", Domain: "a.test", UpdatedAt: t0})
	if err != nil {
		t.Fatal(err)
	}
	if !isNew {
		t.Fatal("first upsert should be new")
	}

	// A newer write moves the handle to another domain.
	store.Upsert(&Entry{Handle: "alice", DID: "did:syn:1", Domain: "b.test", UpdatedAt: t0.Add(time.Minute)})

	entry, _ := store.Get("alice")
	if entry.Domain != "b.test" {
		t.Fatalf("domain = %q, want b.test", entry.Domain)
	}

	// A stale write is dropped.
	store.Upsert(&Entry{Handle: "alice", DID: "did:syn:1", Domain: "c.test", UpdatedAt: t0.Add(-time.Minute)})

	entry, _ = store.Get("alice")
	if entry.Domain != "b.test" {
		t.Fatalf("stale write applied: domain = %q", entry.Domain)
	}
}

func TestUpsertEntriesCounts(t *testing.T) {
	store := NewInmemStore()

	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.Upsert(&Entry{Handle: "alice", DID: "did:syn:1", Domain: "a.test", UpdatedAt: t0})

	added, updated, err := store.UpsertEntries([]*Entry{
		{Handle: "alice", DID: "did:syn:1", Domain: "b.test", UpdatedAt: t0.Add(time.Minute)},
		{Handle: "bob", DID: "did:syn:2", Domain: "a.test", UpdatedAt: t0},
		{Handle: "", DID: "did:syn:3"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if added != 1 || updated != 1 {
		t.Fatalf("added=%d updated=%d, want 1/1", added, updated)
	}
}

func TestGetByDID(t *testing.T) {
	store := NewInmemStore()

	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.Upsert(&Entry{Handle: "alice", DID: "did:syn:1", Domain: "a.test", UpdatedAt: t0})

	entry, err := store.GetByDID("did:syn:1")
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.Handle != "alice" {
		t.Fatalf("GetByDID returned %+v", entry)
	}

	entry, err = store.GetByDID("did:syn:unknown")
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Fatal("unknown DID should return nil")
	}
}

func TestListSinceStrict(t *testing.T) {
	store := NewInmemStore()

	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.Upsert(&Entry{Handle: "old", DID: "did:syn:1", Domain: "a.test", UpdatedAt: t0})
	store.Upsert(&Entry{Handle: "new", DID: "did:syn:2", Domain: "a.test", UpdatedAt: t0.Add(time.Hour)})

	entries, err := store.ListSince(t0, 0)
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 1 || entries[0].Handle != "new" {
		t.Fatalf("ListSince returned %d entries, want only new", len(entries))
	}
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	isNew, err := store.Upsert(&Entry{Handle: "alice", DID: "did:syn:1", Domain: "a.test", UpdatedAt: t0})
	if err != nil {
		t.Fatal(err)
	}
	if !isNew {
		t.Fatal("first upsert should be new")
	}

	entry, err := store.Get("alice")
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.DID != "did:syn:1" {
		t.Fatalf("Get returned %+v", entry)
	}

	byDID, err := store.GetByDID("did:syn:1")
	if err != nil {
		t.Fatal(err)
	}
	if byDID == nil || byDID.Handle != "alice" {
		t.Fatalf("GetByDID returned %+v", byDID)
	}

	count, _ := store.Count()
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}
