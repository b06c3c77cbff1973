package tokens

import (
	"context"
	"strings"
	"time"

	"github.com/bdobrica/mcp-auth-broker/common/spec/contract"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/secrets"
)

// Query names the token a caller wants.
type Query struct {
	TenantID string
	Resource string
	Scopes   []string

	// ForceRefresh skips the initial cache read. A still-valid cache record
	// is never discarded on failure: the last-known-good fallback applies
	// even to forced refreshes.
	ForceRefresh bool

	// Now is the evaluation time in epoch seconds; zero means wall clock.
	// Injectable for tests.
	Now int64
}

// Result is a successful acquisition. Token carries the bearer value and must
// never be copied into audit payloads or response envelopes; only Metadata
// crosses the trust boundary.
type Result struct {
	Token    string
	Metadata contract.TokenMetadata
}

// ProviderOptions configures a Provider.
type ProviderOptions struct {
	ClientID  string
	SecretRef secrets.Reference
	Resolver  secrets.Resolver

	// Minter defaults to an HTTPMinter against the Entra endpoint.
	Minter Minter

	// Cache defaults to a fresh empty cache.
	Cache *Cache

	AllowedResources []string
	AllowedScopes    []string
	CacheSkewSeconds int
	MaxTTLSeconds    int

	// MintTimeout bounds each mint call.
	MintTimeout time.Duration
}

// Provider orchestrates allowlist check → cache read → secret resolution →
// mint → cache write, with a last-known-good fallback when the mint fails.
type Provider struct {
	clientID     string
	secretRef    secrets.Reference
	resolver     secrets.Resolver
	minter       Minter
	cache        *Cache
	allowedRes   []string
	allowedScope []string
	skewSeconds  int
	maxTTL       int
	mintTimeout  time.Duration
}

// NewProvider builds a Provider, applying defaults for Minter and Cache.
func NewProvider(opts ProviderOptions) *Provider {
	minter := opts.Minter
	if minter == nil {
		minter = &HTTPMinter{}
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewCache()
	}
	return &Provider{
		clientID:     opts.ClientID,
		secretRef:    opts.SecretRef,
		resolver:     opts.Resolver,
		minter:       minter,
		cache:        cache,
		allowedRes:   opts.AllowedResources,
		allowedScope: opts.AllowedScopes,
		skewSeconds:  opts.CacheSkewSeconds,
		maxTTL:       opts.MaxTTLSeconds,
		mintTimeout:  opts.MintTimeout,
	}
}

// GetToken acquires a token for the query.
//
// Ordering is part of the contract: allowlist errors precede any cache read,
// cache reads precede secret resolution, secret resolution precedes the mint,
// and the fallback lookup happens only after a mint failure. Secret resolver
// failures propagate directly; they are a configuration or trust fault, not a
// transient provider outage, so the fallback does not apply to them.
func (p *Provider) GetToken(ctx context.Context, q Query) (Result, error) {
	now := q.Now
	if now == 0 {
		now = time.Now().Unix()
	}

	if err := p.checkAllowlist(q.Resource, q.Scopes); err != nil {
		failuresTotal.WithLabelValues(err.Code).Inc()
		return Result{}, err
	}

	key := NewKey(q.TenantID, p.clientID, q.Scopes)
	if !q.ForceRefresh {
		if cached, ok := p.cache.GetValid(key, now, p.skewSeconds); ok {
			cacheHitsTotal.Inc()
			return p.toResult(cached, SourceCache, q), nil
		}
	}

	clientSecret, err := p.resolver.Resolve(ctx, p.secretRef)
	if err != nil {
		coded := contract.AsError(err, contract.CodeSecretUnavailable)
		failuresTotal.WithLabelValues(coded.Code).Inc()
		return Result{}, coded
	}

	minted, err := p.minter.Mint(ctx, q.TenantID, p.clientID, clientSecret,
		strings.Join(q.Scopes, " "), p.mintTimeout)
	if err != nil {
		coded := contract.AsError(err, contract.CodeProviderUnavailable)
		if fallback, ok := p.cache.GetValid(key, now, p.skewSeconds); ok {
			cacheFallbacksTotal.Inc()
			return p.toResult(fallback, SourceCacheFallback, q), nil
		}
		failuresTotal.WithLabelValues(coded.Code).Inc()
		return Result{}, coded
	}

	record := p.cache.Put(key, minted.AccessToken, minted.TokenType,
		minted.ExpiresInSeconds, p.maxTTL, now)
	mintsTotal.Inc()
	return p.toResult(record, SourceMinted, q), nil
}

// checkAllowlist runs before any I/O.
func (p *Provider) checkAllowlist(resource string, scopes []string) *contract.Error {
	if !contains(p.allowedRes, resource) {
		return contract.E(contract.CodePolicyDenied, "provider resource is not allowlisted")
	}
	for _, scope := range scopes {
		if !contains(p.allowedScope, scope) {
			return contract.E(contract.CodePolicyInvalidScope, "requested scope is not allowlisted")
		}
	}
	return nil
}

// toResult shapes a cache record into a call result. The returned source
// reflects the provenance of this call; the stored record keeps SourceMinted.
func (p *Provider) toResult(record Record, source string, q Query) Result {
	return Result{
		Token: record.AccessToken,
		Metadata: contract.TokenMetadata{
			TenantID:       q.TenantID,
			Resource:       q.Resource,
			Scopes:         q.Scopes,
			TokenType:      record.TokenType,
			ExpiresAtEpoch: record.ExpiresAtEpoch,
			Source:         source,
		},
	}
}

func contains(list []string, value string) bool {
	for _, s := range list {
		if s == value {
			return true
		}
	}
	return false
}
