package signature

import (
	"context"
	"crypto/ecdsa"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/cyph3rasi/synapsis-swarm/src/crypto/keys"
	"github.com/cyph3rasi/synapsis-swarm/src/net"
)

// fetchTimeout bounds remote public-key and profile fetches.
const fetchTimeout = 10 * time.Second

// Sign canonicalizes payload and signs its SHA-256 digest with priv.
func Sign(payload interface{}, priv *ecdsa.PrivateKey) (string, error) {
	canonical, err := CanonicalBytes(payload)
	if err != nil {
		return "", err
	}

	r, s, err := keys.Sign(priv, canonical)
	if err != nil {
		return "", err
	}

	return keys.EncodeSignature(r, s), nil
}

// Verify canonicalizes payload and verifies sig against pubHex. Anything
// malformed - key, signature, payload - verifies to false, never to an
// error.
func Verify(payload interface{}, sig, pubHex string) bool {
	canonical, err := CanonicalBytes(payload)
	if err != nil {
		return false
	}

	pub := keys.ParsePublicKeyHex(pubHex)
	if pub == nil {
		return false
	}

	r, s, err := keys.DecodeSignature(sig)
	if err != nil {
		return false
	}

	return keys.Verify(pub, canonical, r, s)
}

// Engine resolves remote node and user keys for verification. Node keys come
// from the peer's public info endpoint; user keys from the user's profile,
// cached in an LRU keyed by handle@domain.
type Engine struct {
	transport net.Transport
	userKeys  *lru.Cache[string, string]
	logger    *logrus.Entry
}

// NewEngine ...
func NewEngine(transport net.Transport, cacheSize int, logger *logrus.Entry) (*Engine, error) {
	if cacheSize <= 0 {
		cacheSize = 1000
	}

	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, err
	}

	return &Engine{
		transport: transport,
		userKeys:  cache,
		logger:    logger,
	}, nil
}

// VerifyRemote fetches the node key for domain and verifies the payload
// against it. A fetch failure or missing key yields false: unauthenticated
// payloads are always rejected.
func (e *Engine) VerifyRemote(ctx context.Context, payload interface{}, sig, domain string) bool {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	info, err := e.transport.FetchNodeInfo(ctx, domain)
	if err != nil {
		e.logger.WithField("domain", domain).WithError(err).Debug("could not fetch node key")
		return false
	}

	if info.PublicKey == "" {
		return false
	}

	return Verify(payload, sig, info.PublicKey)
}

// VerifyUserScoped resolves the key of handle@domain and verifies the
// payload against it. A cached key without a well-formed point is treated as
// a cache miss; on miss the user's remote profile is fetched and its key
// cached.
func (e *Engine) VerifyUserScoped(ctx context.Context, payload interface{}, sig, handle, domain string) bool {
	pubHex, ok := e.cachedUserKey(handle, domain)
	if !ok {
		fetched, err := e.fetchUserKey(ctx, handle, domain)
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"handle": handle,
				"domain": domain,
			}).WithError(err).Debug("could not resolve user key")
			return false
		}
		pubHex = fetched
	}

	return Verify(payload, sig, pubHex)
}

// CacheUserKey stores a user key, replacing any previous entry. Components
// that fetch profiles out of band use this to warm the cache.
func (e *Engine) CacheUserKey(handle, domain, pubHex string) {
	e.userKeys.Add(userKeyID(handle, domain), pubHex)
}

func (e *Engine) cachedUserKey(handle, domain string) (string, bool) {
	pubHex, ok := e.userKeys.Get(userKeyID(handle, domain))
	if !ok {
		return "", false
	}
	if keys.ParsePublicKeyHex(pubHex) == nil {
		// Malformed cached key: treat as a miss and drop it.
		e.userKeys.Remove(userKeyID(handle, domain))
		return "", false
	}
	return pubHex, true
}

func (e *Engine) fetchUserKey(ctx context.Context, handle, domain string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	profile, err := e.transport.FetchProfile(ctx, handle, domain)
	if err != nil {
		return "", err
	}

	if keys.ParsePublicKeyHex(profile.PublicKey) == nil {
		return "", errMalformedKey{handle: handle, domain: domain}
	}

	e.userKeys.Add(userKeyID(handle, domain), profile.PublicKey)

	return profile.PublicKey, nil
}

func userKeyID(handle, domain string) string {
	return handle + "@" + domain
}

type errMalformedKey struct {
	handle string
	domain string
}

func (e errMalformedKey) Error() string {
	return "signature: malformed public key in profile of " + userKeyID(e.handle, e.domain)
}
