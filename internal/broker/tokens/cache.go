// Package tokens implements the token acquisition engine: a fingerprinted
// cache with clock-skew guard and TTL clamp, the minter capability, and the
// provider that orchestrates allowlist → cache → secret → mint with a
// last-known-good fallback.
package tokens

import (
	"strings"
	"sync"
)

// Token record sources. A stored record always carries SourceMinted; the
// per-call source (cache, cache_fallback) reflects the provenance of the call
// that returned it, not of the record itself.
const (
	SourceMinted        = "minted"
	SourceCache         = "cache"
	SourceCacheFallback = "cache_fallback"
)

// Key fingerprints a cacheable token: tenant, client and the requested scopes
// verbatim. Identical scopes in a different order address a distinct entry,
// which keeps the minted scope string deterministic per entry.
type Key struct {
	TenantID string
	ClientID string
	scopeKey string
}

// NewKey builds a cache key. The scope order is preserved.
func NewKey(tenantID, clientID string, scopes []string) Key {
	return Key{
		TenantID: tenantID,
		ClientID: clientID,
		scopeKey: strings.Join(scopes, "\x1f"),
	}
}

// Record is a cached token. Records are immutable once stored; a later Put
// for the same key replaces the record wholesale.
type Record struct {
	AccessToken    string
	TokenType      string
	ExpiresAtEpoch int64
	Source         string
}

// Cache maps fingerprints to token records. It is the single source of truth
// for freshness; callers never derive freshness from ExpiresAtEpoch directly.
//
// A mutex guards the map so a concurrent reader sees either the old or the
// new record, never a torn one.
type Cache struct {
	mu      sync.Mutex
	records map[Key]Record
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{records: make(map[Key]Record)}
}

// GetValid returns the record for key if it is present and still valid at
// now with the given skew: a record whose expiry falls inside the skew window
// is treated as absent.
func (c *Cache) GetValid(key Key, now int64, skewSeconds int) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[key]
	if !ok {
		return Record{}, false
	}
	if record.ExpiresAtEpoch <= now+int64(skewSeconds) {
		return Record{}, false
	}
	return record, true
}

// Put stores a freshly minted token, clamping its TTL to maxTTLSeconds and
// flooring it at one second. Any prior record for the key is overwritten.
func (c *Cache) Put(key Key, accessToken, tokenType string, expiresInSeconds, maxTTLSeconds int, now int64) Record {
	ttl := expiresInSeconds
	if ttl > maxTTLSeconds {
		ttl = maxTTLSeconds
	}
	if ttl < 1 {
		ttl = 1
	}

	record := Record{
		AccessToken:    accessToken,
		TokenType:      tokenType,
		ExpiresAtEpoch: now + int64(ttl),
		Source:         SourceMinted,
	}

	c.mu.Lock()
	c.records[key] = record
	c.mu.Unlock()
	return record
}
