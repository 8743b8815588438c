package registry

import (
	"path/filepath"
	"testing"
)

func TestJSONSeedSetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.json")
	set := NewJSONSeedSet(path)

	// Missing file reads as "nothing configured".
	seeds, err := set.Seeds()
	if err != nil {
		t.Fatal(err)
	}
	if seeds != nil {
		t.Fatalf("expected nil seeds for missing file, got %d", len(seeds))
	}

	want := []*SeedNode{
		{Domain: "a.test", Priority: 1, IsEnabled: true},
		{Domain: "b.test", Priority: 2, IsEnabled: false},
	}
	if err := set.Write(want); err != nil {
		t.Fatal(err)
	}

	seeds, err = set.Seeds()
	if err != nil {
		t.Fatal(err)
	}
	if len(seeds) != 2 {
		t.Fatalf("got %d seeds, want 2", len(seeds))
	}
	if seeds[0].Domain != "a.test" || seeds[1].IsEnabled {
		t.Fatalf("seeds did not round trip: %+v", seeds)
	}
}

func TestDefaultSeedsAreEnabled(t *testing.T) {
	seeds := DefaultSeeds()
	if len(seeds) == 0 {
		t.Fatal("default seed list must not be empty")
	}
	for i, seed := range seeds {
		if !seed.IsEnabled {
			t.Fatalf("default seed %s should be enabled", seed.Domain)
		}
		if seed.Priority != i+1 {
			t.Fatalf("default seed priorities should ascend, got %d at %d", seed.Priority, i)
		}
	}
}
