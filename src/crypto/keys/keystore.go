package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters for deriving the at-rest encryption key from the shared
// secret. The salt is fixed: the secret is process-wide, not per-user, so a
// random salt would buy nothing and would be one more thing to persist.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	keystoreSalt = "synapsis-swarm-keystore-v1"
)

var (
	// ErrNoSharedSecret is returned when key material must be encrypted or
	// decrypted but no shared secret was configured.
	ErrNoSharedSecret = errors.New("keys: shared secret is not configured")

	// ErrCiphertextTooShort is returned when an encrypted key blob is too
	// short to contain a nonce.
	ErrCiphertextTooShort = errors.New("keys: ciphertext shorter than nonce")
)

// deriveKey stretches the shared secret into a 32-byte AES key.
func deriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrNoSharedSecret
	}
	return scrypt.Key([]byte(secret), []byte(keystoreSalt), scryptN, scryptR, scryptP, 32)
}

// EncryptKey seals the raw private key bytes with AES-256-GCM under a key
// derived from secret. The output is nonce||ciphertext.
func EncryptKey(priv *ecdsa.PrivateKey, secret string) ([]byte, error) {
	aead, err := newAEAD(secret)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	sealed := aead.Seal(nonce, nonce, DumpPrivateKey(priv), nil)

	return sealed, nil
}

// DecryptKey opens a blob produced by EncryptKey and parses the contained
// private key.
func DecryptKey(blob []byte, secret string) (*ecdsa.PrivateKey, error) {
	aead, err := newAEAD(secret)
	if err != nil {
		return nil, err
	}

	if len(blob) < aead.NonceSize() {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]

	raw, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}

	return ParsePrivateKey(raw)
}

func newAEAD(secret string) (cipher.AEAD, error) {
	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return cipher.NewGCM(block)
}
