package keys

import (
	"crypto/ecdsa"
	"sync"
)

// IdentityStore persists this node's own identity row: the encrypted private
// key and the public key in wire format. The registry provides the production
// implementation; tests use an in-memory one. A store with no identity yet
// returns (nil, "", nil).
type IdentityStore interface {
	OwnIdentity() (encPriv []byte, pubHex string, err error)
	SetOwnIdentity(encPriv []byte, pubHex string) error
}

// Manager owns the node's long-lived signing identity. The keypair is
// generated lazily on first use, encrypted with the shared secret, and
// persisted through the IdentityStore. If the identity row exists but lacks a
// key, it is backfilled. Duplicate generation under a concurrent first call is
// an accepted race: both writers upsert a complete identity and the last one
// wins.
type Manager struct {
	secret string
	store  IdentityStore

	mu     sync.Mutex
	cached *ecdsa.PrivateKey
}

// NewManager returns a Manager backed by the given store. The secret is
// checked on first use, not here, so that a node without a secret fails with
// ErrNoSharedSecret when it first needs its keys.
func NewManager(secret string, store IdentityStore) *Manager {
	return &Manager{
		secret: secret,
		store:  store,
	}
}

// Keypair returns the node's private and public keys, generating and
// persisting them on first call.
func (m *Manager) Keypair() (*ecdsa.PrivateKey, *ecdsa.PublicKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil {
		return m.cached, &m.cached.PublicKey, nil
	}

	encPriv, _, err := m.store.OwnIdentity()
	if err != nil {
		return nil, nil, err
	}

	if len(encPriv) > 0 {
		priv, err := DecryptKey(encPriv, m.secret)
		if err != nil {
			return nil, nil, err
		}
		m.cached = priv
		return priv, &priv.PublicKey, nil
	}

	priv, err := m.generate()
	if err != nil {
		return nil, nil, err
	}

	m.cached = priv
	return priv, &priv.PublicKey, nil
}

// PublicKeyHex returns the wire format of the node's public key, generating
// the keypair if necessary.
func (m *Manager) PublicKeyHex() (string, error) {
	_, pub, err := m.Keypair()
	if err != nil {
		return "", err
	}
	return PublicKeyHex(pub), nil
}

func (m *Manager) generate() (*ecdsa.PrivateKey, error) {
	priv, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	enc, err := EncryptKey(priv, m.secret)
	if err != nil {
		return nil, err
	}

	if err := m.store.SetOwnIdentity(enc, PublicKeyHex(&priv.PublicKey)); err != nil {
		return nil, err
	}

	return priv, nil
}
