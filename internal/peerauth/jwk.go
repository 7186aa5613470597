// Package peerauth implements the peer authenticator (L5): bearer-token
// validation against a JWK set with a TTL cache, plus the mTLS
// configuration surface shared by inbound broker connections and outbound
// calls to telemetry/OIDC endpoints (spec.md §4.5).
//
// The TTL-keyed in-process cache mirrors the shape of the teacher's
// TTL-keyed Redis cache (api_balancing/internal/federation/cache.go) but
// without the Redis dependency: peer authentication state is scoped to a
// single CARL instance, not shared cluster state, so an in-process map
// guarded by a sync.RWMutex is sufficient and avoids a network round trip on every stream open.
package peerauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// JsonWebKey is the subset of RFC 7517 fields needed for RS256 verification.
type JsonWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k JsonWebKey) publicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("jwk %s: decode n: %w", k.Kid, err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("jwk %s: decode e: %w", k.Kid, err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

type jwkSet struct {
	Keys []JsonWebKey `json:"keys"`
}

type cacheEntry struct {
	key       *rsa.PublicKey
	expiresAt time.Time
}

// jwkTTL is the cache lifetime for a resolved key, per spec.md §4.5.
const jwkTTL = 24 * time.Hour

// KeySource fetches and caches JWKs by kid from an OIDC issuer's certs
// endpoint, evicting and refetching the whole set on a cache miss.
type KeySource struct {
	issuerURL  string
	httpClient *http.Client

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewKeySource builds a KeySource against {issuerURL}/protocol/openid-connect/certs.
func NewKeySource(issuerURL string, httpClient *http.Client) *KeySource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeySource{issuerURL: issuerURL, httpClient: httpClient, cache: make(map[string]cacheEntry)}
}

// Key resolves kid to an RSA public key, using the TTL cache when warm and
// refetching the full certs document on miss or expiry.
func (s *KeySource) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	entry, ok := s.cache[kid]
	s.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.key, nil
	}
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entry, ok = s.cache[kid]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("peerauth: unknown kid %q", kid)
	}
	return entry.key, nil
}

func (s *KeySource) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.issuerURL+"/protocol/openid-connect/certs", nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("peerauth: fetch certs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peerauth: certs endpoint returned %d", resp.StatusCode)
	}
	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("peerauth: decode certs: %w", err)
	}

	next := make(map[string]cacheEntry, len(set.Keys))
	expiresAt := time.Now().Add(jwkTTL)
	for _, k := range set.Keys {
		pub, err := k.publicKey()
		if err != nil {
			continue
		}
		next[k.Kid] = cacheEntry{key: pub, expiresAt: expiresAt}
	}

	s.mu.Lock()
	s.cache = next
	s.mu.Unlock()
	return nil
}
