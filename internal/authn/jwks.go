package authn

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// JWKSCache fetches and caches JSON Web Key Sets by URL. Entries are kept
// for a fixed TTL and are not refreshed on a failed fetch; a stale-but-
// present entry keeps serving until it expires. Concurrent refreshes of
// the same URL are not coalesced — a thundering herd against the JWKS
// endpoint on simultaneous expiry is accepted.
type JWKSCache struct {
	httpClient *http.Client
	ttl        time.Duration

	mu      sync.Mutex
	entries map[string]jwksEntry
}

type jwksEntry struct {
	expiresAt time.Time
	keySet    jose.JSONWebKeySet
}

// NewJWKSCache creates a cache with the given entry TTL. A non-positive
// ttl is treated as zero, meaning every lookup refetches.
func NewJWKSCache(ttl time.Duration) *JWKSCache {
	if ttl < 0 {
		ttl = 0
	}
	return &JWKSCache{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		ttl:        ttl,
		entries:    make(map[string]jwksEntry),
	}
}

// Get returns the key in the JWKS at jwksURL matching kid, fetching and
// caching the set if needed.
func (c *JWKSCache) Get(jwksURL, kid string) (jose.JSONWebKey, error) {
	keySet, err := c.keySet(jwksURL)
	if err != nil {
		return jose.JSONWebKey{}, err
	}

	matches := keySet.Key(kid)
	if len(matches) == 0 {
		return jose.JSONWebKey{}, fmt.Errorf("%w: signing key %q not found in JWKS", ErrUnauthorized, kid)
	}
	return matches[0], nil
}

func (c *JWKSCache) keySet(jwksURL string) (jose.JSONWebKeySet, error) {
	now := time.Now()

	c.mu.Lock()
	cached, ok := c.entries[jwksURL]
	c.mu.Unlock()
	if ok && cached.expiresAt.After(now) {
		return cached.keySet, nil
	}

	keySet, err := c.fetch(jwksURL)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}

	c.mu.Lock()
	c.entries[jwksURL] = jwksEntry{expiresAt: now.Add(c.ttl), keySet: keySet}
	c.mu.Unlock()

	return keySet, nil
}

func (c *JWKSCache) fetch(jwksURL string) (jose.JSONWebKeySet, error) {
	resp, err := c.httpClient.Get(jwksURL)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("%w: fetching JWKS: %v", ErrUnauthorized, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return jose.JSONWebKeySet{}, fmt.Errorf("%w: JWKS endpoint returned status %d", ErrUnauthorized, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("%w: reading JWKS response: %v", ErrUnauthorized, err)
	}

	var keySet jose.JSONWebKeySet
	if err := json.Unmarshal(body, &keySet); err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("%w: parsing JWKS payload: %v", ErrUnauthorized, err)
	}
	return keySet, nil
}
