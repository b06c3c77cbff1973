package tokens_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bdobrica/mcp-auth-broker/common/spec/contract"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/secrets"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/tokens"
)

type stubMinter struct {
	result tokens.MintResult
	err    error
	calls  int
}

func (m *stubMinter) Mint(_ context.Context, _, _, _, scope string, _ time.Duration) (tokens.MintResult, error) {
	m.calls++
	if m.err != nil {
		return tokens.MintResult{}, m.err
	}
	return m.result, nil
}

type failingResolver struct {
	err   error
	calls int
}

func (r *failingResolver) Resolve(_ context.Context, _ secrets.Reference) (string, error) {
	r.calls++
	return "", r.err
}

func testProvider(minter tokens.Minter, resolver secrets.Resolver) *tokens.Provider {
	ref, _ := secrets.ParseReference("op://vault/item/field")
	if resolver == nil {
		resolver = &secrets.StaticResolver{Values: map[string]string{ref.URI(): "shh"}}
	}
	return tokens.NewProvider(tokens.ProviderOptions{
		ClientID:         "client-1",
		SecretRef:        ref,
		Resolver:         resolver,
		Minter:           minter,
		AllowedResources: []string{"https://graph.microsoft.com"},
		AllowedScopes:    []string{"User.Read", "Mail.Read"},
		CacheSkewSeconds: 60,
		MaxTTLSeconds:    3000,
	})
}

func allowQuery(now int64) tokens.Query {
	return tokens.Query{
		TenantID: "tenant-1",
		Resource: "https://graph.microsoft.com",
		Scopes:   []string{"User.Read"},
		Now:      now,
	}
}

func TestGetToken_MintsAndCaches(t *testing.T) {
	minter := &stubMinter{result: tokens.MintResult{AccessToken: "tok-1", TokenType: "Bearer", ExpiresInSeconds: 600}}
	p := testProvider(minter, nil)

	res, err := p.GetToken(context.Background(), allowQuery(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Token != "tok-1" {
		t.Errorf("token: got %q", res.Token)
	}
	if res.Metadata.Source != tokens.SourceMinted {
		t.Errorf("source: got %q, want minted", res.Metadata.Source)
	}
	if res.Metadata.ExpiresAtEpoch != 1600 {
		t.Errorf("expires_at: got %d, want 1600", res.Metadata.ExpiresAtEpoch)
	}

	// Second call inside validity hits the cache; the minter is not called.
	res, err = p.GetToken(context.Background(), allowQuery(1100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Metadata.Source != tokens.SourceCache {
		t.Errorf("source: got %q, want cache", res.Metadata.Source)
	}
	if minter.calls != 1 {
		t.Errorf("minter called %d times, want 1", minter.calls)
	}
}

func TestGetToken_SkewForcesRemint(t *testing.T) {
	minter := &stubMinter{result: tokens.MintResult{AccessToken: "tok-1", TokenType: "Bearer", ExpiresInSeconds: 100}}
	p := testProvider(minter, nil)

	if _, err := p.GetToken(context.Background(), allowQuery(1000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// expires_at 1100, skew 60: at now=1040 the record is inside the window.
	minter.result.AccessToken = "tok-2"
	res, err := p.GetToken(context.Background(), allowQuery(1040))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Token != "tok-2" || res.Metadata.Source != tokens.SourceMinted {
		t.Errorf("expected fresh mint, got %q from %q", res.Token, res.Metadata.Source)
	}
	if minter.calls != 2 {
		t.Errorf("minter called %d times, want 2", minter.calls)
	}
}

func TestGetToken_ForceRefreshSkipsCacheRead(t *testing.T) {
	minter := &stubMinter{result: tokens.MintResult{AccessToken: "tok-1", TokenType: "Bearer", ExpiresInSeconds: 600}}
	p := testProvider(minter, nil)

	if _, err := p.GetToken(context.Background(), allowQuery(1000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := allowQuery(1010)
	q.ForceRefresh = true
	minter.result.AccessToken = "tok-2"
	res, err := p.GetToken(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Token != "tok-2" || res.Metadata.Source != tokens.SourceMinted {
		t.Errorf("force refresh should remint, got %q from %q", res.Token, res.Metadata.Source)
	}
}

func TestGetToken_FallbackOnMintFailure(t *testing.T) {
	minter := &stubMinter{result: tokens.MintResult{AccessToken: "tok-1", TokenType: "Bearer", ExpiresInSeconds: 600}}
	p := testProvider(minter, nil)

	if _, err := p.GetToken(context.Background(), allowQuery(1000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Force refresh + mint outage: the still-valid record is served as fallback.
	minter.err = contract.E(contract.CodeProviderUnavailable, "outage")
	q := allowQuery(1010)
	q.ForceRefresh = true
	res, err := p.GetToken(context.Background(), q)
	if err != nil {
		t.Fatalf("expected fallback, got error: %v", err)
	}
	if res.Token != "tok-1" {
		t.Errorf("fallback token: got %q", res.Token)
	}
	if res.Metadata.Source != tokens.SourceCacheFallback {
		t.Errorf("source: got %q, want cache_fallback", res.Metadata.Source)
	}
}

func TestGetToken_NoFallbackWhenRecordExpired(t *testing.T) {
	minter := &stubMinter{result: tokens.MintResult{AccessToken: "tok-1", TokenType: "Bearer", ExpiresInSeconds: 100}}
	p := testProvider(minter, nil)

	if _, err := p.GetToken(context.Background(), allowQuery(1000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Record expired at 1100; at 1200 the fallback has nothing to serve.
	minter.err = contract.E(contract.CodeProviderTimeout, "slow")
	_, err := p.GetToken(context.Background(), allowQuery(1200))
	var coded *contract.Error
	if !errors.As(err, &coded) || coded.Code != contract.CodeProviderTimeout {
		t.Fatalf("expected provider.timeout to surface, got %v", err)
	}
}

func TestGetToken_SecretFailureSkipsFallback(t *testing.T) {
	minter := &stubMinter{result: tokens.MintResult{AccessToken: "tok-1", TokenType: "Bearer", ExpiresInSeconds: 600}}
	resolver := &failingResolver{err: contract.E(contract.CodeSecretAccessDenied, "denied")}

	ref, _ := secrets.ParseReference("op://vault/item/field")
	cache := tokens.NewCache()
	// Seed a valid record so a (wrong) fallback would have something to return.
	cache.Put(tokens.NewKey("tenant-1", "client-1", []string{"User.Read"}), "stale", "Bearer", 600, 3000, 1000)

	p := tokens.NewProvider(tokens.ProviderOptions{
		ClientID:         "client-1",
		SecretRef:        ref,
		Resolver:         resolver,
		Minter:           minter,
		Cache:            cache,
		AllowedResources: []string{"https://graph.microsoft.com"},
		AllowedScopes:    []string{"User.Read"},
		CacheSkewSeconds: 60,
		MaxTTLSeconds:    3000,
	})

	q := allowQuery(1010)
	q.ForceRefresh = true
	_, err := p.GetToken(context.Background(), q)
	var coded *contract.Error
	if !errors.As(err, &coded) || coded.Code != contract.CodeSecretAccessDenied {
		t.Fatalf("secret failures must propagate, got %v", err)
	}
	if minter.calls != 0 {
		t.Errorf("minter must not run after a secret failure, got %d calls", minter.calls)
	}
}

func TestGetToken_AllowlistPrecedesIO(t *testing.T) {
	minter := &stubMinter{result: tokens.MintResult{AccessToken: "tok-1", TokenType: "Bearer", ExpiresInSeconds: 600}}
	resolver := &failingResolver{err: contract.E(contract.CodeSecretUnavailable, "should not be reached")}
	p := testProvider(minter, resolver)

	q := allowQuery(1000)
	q.Resource = "https://example.invalid"
	_, err := p.GetToken(context.Background(), q)
	var coded *contract.Error
	if !errors.As(err, &coded) || coded.Code != contract.CodePolicyDenied {
		t.Fatalf("expected policy.denied for resource, got %v", err)
	}

	q = allowQuery(1000)
	q.Scopes = []string{"Directory.ReadWrite.All"}
	_, err = p.GetToken(context.Background(), q)
	if !errors.As(err, &coded) || coded.Code != contract.CodePolicyInvalidScope {
		t.Fatalf("expected policy.invalid_scope, got %v", err)
	}

	if resolver.calls != 0 || minter.calls != 0 {
		t.Errorf("allowlist failures must precede I/O: resolver=%d minter=%d", resolver.calls, minter.calls)
	}
}

func TestGetToken_ScopeOrderAddressesDistinctEntries(t *testing.T) {
	minter := &stubMinter{result: tokens.MintResult{AccessToken: "tok-1", TokenType: "Bearer", ExpiresInSeconds: 600}}
	p := testProvider(minter, nil)

	q1 := allowQuery(1000)
	q1.Scopes = []string{"User.Read", "Mail.Read"}
	if _, err := p.GetToken(context.Background(), q1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q2 := allowQuery(1010)
	q2.Scopes = []string{"Mail.Read", "User.Read"}
	if _, err := p.GetToken(context.Background(), q2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if minter.calls != 2 {
		t.Errorf("reordered scopes must miss the cache: minter called %d times, want 2", minter.calls)
	}
}
