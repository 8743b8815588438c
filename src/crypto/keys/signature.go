package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
)

// Sign computes the SHA-256 digest of data and signs it with the private key
// and the built-in pseudo-random generator rand.Reader.
func Sign(priv *ecdsa.PrivateKey, data []byte) (r, s *big.Int, err error) {
	digest := sha256.Sum256(data)
	return ecdsa.Sign(rand.Reader, priv, digest[:])
}

// Verify verifies that a signature represented by r and s values is a valid
// signature of the SHA-256 digest of data by an owner of the private key
// associated with the provided public key.
func Verify(pub *ecdsa.PublicKey, data []byte, r, s *big.Int) bool {
	if pub == nil || r == nil || s == nil {
		return false
	}
	digest := sha256.Sum256(data)
	return ecdsa.Verify(pub, digest[:], r, s)
}

// EncodeSignature returns a string representation of a signature.
func EncodeSignature(r, s *big.Int) string {
	return fmt.Sprintf("%s|%s", r.Text(36), s.Text(36))
}

// DecodeSignature parses a string representation of a signature as produced
// by EncodeSignature.
func DecodeSignature(sig string) (r, s *big.Int, err error) {
	values := strings.Split(sig, "|")
	if len(values) != 2 {
		return r, s, fmt.Errorf("wrong number of values in signature: got %d, want 2", len(values))
	}
	var okR, okS bool
	r, okR = new(big.Int).SetString(values[0], 36)
	s, okS = new(big.Int).SetString(values[1], 36)
	if !okR || !okS {
		return nil, nil, fmt.Errorf("signature values are not base-36 integers")
	}
	return r, s, nil
}
