// Package smoke wires the broker with stub collaborators and runs one
// end-to-end allow-path invocation as a self-check. No network, no secret
// store: the resolver and minter are in-memory doubles.
package smoke

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/mcp-auth-broker/internal/broker/audit"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/config"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/registry"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/secrets"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/server"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/tokens"
)

const (
	smokeSecret = "smoke-secret"
	smokeToken  = "smoke-token-value"
)

// Result is the smoke check outcome, printed as JSON by the CLI.
type Result struct {
	Status      string   `json:"status"`
	Checks      []string `json:"checks"`
	TokenSource string   `json:"token_source"`
}

type stubMinter struct{}

func (stubMinter) Mint(_ context.Context, _, _, _, _ string, _ time.Duration) (tokens.MintResult, error) {
	return tokens.MintResult{AccessToken: smokeToken, TokenType: "Bearer", ExpiresInSeconds: 600}, nil
}

// Run executes the end-to-end self-check.
func Run(ctx context.Context) (Result, error) {
	ref, err := secrets.ParseReference("op://vault/item/field")
	if err != nil {
		return Result{}, err
	}

	cfg := &config.Config{
		Environment:                 "smoke",
		ServiceName:                 "mcp-auth-broker",
		ContractVersion:             "v0.1.0",
		PolicyVersion:               "v0.1.0",
		DefaultTimeoutMS:            10000,
		AllowedScopes:               []string{"User.Read"},
		AllowedGraphResources:       []string{"https://graph.microsoft.com"},
		SecretProviderMode:          config.ProviderModeNone,
		GraphSecretRef:              &ref,
		GraphClientID:               "smoke-client",
		TokenCacheSkewSeconds:       60,
		TokenMaxTTLSeconds:          3000,
		TokenProviderTimeoutSeconds: 4,
	}

	resolver := &secrets.StaticResolver{Values: map[string]string{ref.URI(): smokeSecret}}
	provider := tokens.NewProvider(tokens.ProviderOptions{
		ClientID:         cfg.GraphClientID,
		SecretRef:        ref,
		Resolver:         resolver,
		Minter:           stubMinter{},
		AllowedResources: cfg.AllowedGraphResources,
		AllowedScopes:    cfg.AllowedScopes,
		CacheSkewSeconds: cfg.TokenCacheSkewSeconds,
		MaxTTLSeconds:    cfg.TokenMaxTTLSeconds,
		MintTimeout:      4 * time.Second,
	})

	srv, err := server.New(cfg, server.Options{
		Audit:    audit.NewEmitter(),
		Provider: provider,
		Resolver: resolver,
	})
	if err != nil {
		return Result{}, err
	}

	response := srv.ExecuteTool(ctx, registry.ToolName, Fixture())
	if response.Status != "ok" {
		return Result{}, fmt.Errorf("smoke e2e failed: status %q", response.Status)
	}

	meta := response.Result.Execution.ResponseBody.TokenMetadata
	if meta.Source == "" {
		return Result{}, fmt.Errorf("missing token metadata in smoke response")
	}

	// The bearer value must not appear anywhere in the serialized envelope.
	encoded, err := json.Marshal(response)
	if err != nil {
		return Result{}, fmt.Errorf("encode smoke response: %w", err)
	}
	if strings.Contains(string(encoded), smokeToken) || strings.Contains(string(encoded), smokeSecret) {
		return Result{}, fmt.Errorf("token value leaked in smoke response")
	}

	return Result{
		Status:      "ok",
		Checks:      []string{"request", "policy", "secret", "token_response"},
		TokenSource: meta.Source,
	}, nil
}

// Fixture is the canonical allow-path request body.
func Fixture() map[string]any {
	return map[string]any{
		"contract_version": "v0.1.0",
		"request_id":       "smoke-req-1",
		"requester": map[string]any{
			"requester_id":       "smoke-user",
			"identity_assurance": "verified",
		},
		"graph": map[string]any{
			"tenant_id": "smoke-tenant",
			"resource":  "https://graph.microsoft.com",
			"scopes":    []any{"User.Read"},
		},
		"operation": map[string]any{
			"action": "downstream_call",
			"method": "GET",
			"path":   "/v1.0/me",
		},
		"timeout_ms": 1000,
	}
}
