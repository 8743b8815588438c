package handles

import (
	"bytes"
	"time"

	"github.com/ugorji/go/codec"
)

// Entry maps a user handle to its decentralized identifier and owning node
// domain. UpdatedAt drives last-write-wins conflict resolution.
type Entry struct {
	Handle    string    `json:"handle"`
	DID       string    `json:"did"`
	Domain    string    `json:"domain"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Marshal - canonical json encoding of an Entry, used for storage.
func (e *Entry) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal ...
func (e *Entry) Unmarshal(data []byte) error {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(bytes.NewBuffer(data), jh)
	return dec.Decode(e)
}

// Store is the handle registry interface consumed by the gossip engine and
// self-healing. Upserts apply last-write-wins by UpdatedAt: an incoming entry
// older than the stored one is ignored.
type Store interface {
	// Get returns the entry for handle, or nil when unknown.
	Get(handle string) (*Entry, error)

	// GetByDID returns the entry for a decentralized identifier, or nil.
	GetByDID(did string) (*Entry, error)

	// Upsert inserts or LWW-updates a single entry. Returns true when the
	// handle was new.
	Upsert(entry *Entry) (bool, error)

	// UpsertEntries applies Upsert per entry and returns counts of added and
	// updated handles. Entries losing the LWW race count as neither.
	UpsertEntries(entries []*Entry) (added, updated int, err error)

	// ListSince returns up to limit entries updated strictly after t, oldest
	// first.
	ListSince(t time.Time, limit int) ([]*Entry, error)

	// Count returns the number of known handles.
	Count() (int, error)

	Close() error
}
