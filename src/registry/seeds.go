package registry

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
)

// defaultSeedDomains is the compiled-in bootstrap list, used when no seeds
// are configured at all. These are the foundation-operated entry points of
// the Synapsis swarm.
var defaultSeedDomains = []string{
	"seed1.synapsis.social",
	"seed2.synapsis.social",
	"seed3.synapsis.social",
}

// DefaultSeeds returns a fresh copy of the built-in seed list.
func DefaultSeeds() []*SeedNode {
	seeds := make([]*SeedNode, len(defaultSeedDomains))
	for i, domain := range defaultSeedDomains {
		seeds[i] = &SeedNode{
			Domain:    domain,
			Priority:  i + 1,
			IsEnabled: true,
		}
	}
	return seeds
}

// JSONSeedSet provides seed persistence on disk in the form of a JSON file,
// typically seeds.json in the data directory.
type JSONSeedSet struct {
	l    sync.Mutex
	path string
}

// NewJSONSeedSet creates a JSONSeedSet over the given file path.
func NewJSONSeedSet(path string) *JSONSeedSet {
	return &JSONSeedSet{
		path: path,
	}
}

// Seeds parses the underlying JSON file and returns the listed seeds. A
// missing or empty file yields a nil slice and no error, which callers treat
// as "nothing configured".
func (j *JSONSeedSet) Seeds() ([]*SeedNode, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, nil
	}

	var seeds []*SeedNode
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&seeds); err != nil {
		return nil, err
	}

	return seeds, nil
}

// Write persists a seed list to the JSON file.
func (j *JSONSeedSet) Write(seeds []*SeedNode) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(seeds); err != nil {
		return err
	}

	return os.WriteFile(j.path, buf.Bytes(), 0644)
}
