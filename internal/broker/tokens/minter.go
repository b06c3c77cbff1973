package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bdobrica/mcp-auth-broker/common/spec/contract"
)

// MintResult is the raw outcome of one token endpoint exchange.
type MintResult struct {
	AccessToken      string
	TokenType        string
	ExpiresInSeconds int
}

// Minter performs an OAuth2 client-credentials exchange.
//
// Implementations return *contract.Error with one of the provider.* codes
// (provider.timeout, provider.auth_failed, provider.rate_limited,
// provider.unavailable, provider.bad_response).
type Minter interface {
	Mint(ctx context.Context, tenantID, clientID, clientSecret, scope string, timeout time.Duration) (MintResult, error)
}

// DefaultTokenEndpointBase is the Microsoft Entra token endpoint prefix.
const DefaultTokenEndpointBase = "https://login.microsoftonline.com"

// HTTPMinter mints tokens against the Entra v2.0 token endpoint.
type HTTPMinter struct {
	// BaseURL overrides DefaultTokenEndpointBase, primarily for tests.
	BaseURL string

	// Client defaults to http.DefaultClient. Per-call timeouts come from the
	// context, not from the client.
	Client *http.Client
}

// Mint POSTs the client-credentials form and maps the HTTP outcome onto the
// provider.* taxonomy:
//
//	401/403                → provider.auth_failed
//	429                    → provider.rate_limited
//	other non-2xx / transport error → provider.unavailable
//	deadline exceeded      → provider.timeout
//	missing access_token or non-integer expires_in → provider.bad_response
func (m *HTTPMinter) Mint(ctx context.Context, tenantID, clientID, clientSecret, scope string, timeout time.Duration) (MintResult, error) {
	base := m.BaseURL
	if base == "" {
		base = DefaultTokenEndpointBase
	}
	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"scope":         {scope},
	}

	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(base, "/"), tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return MintResult{}, contract.E(contract.CodeProviderUnavailable, "token provider unavailable")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return MintResult{}, contract.E(contract.CodeProviderTimeout, "token provider timeout")
		}
		return MintResult{}, contract.E(contract.CodeProviderUnavailable, "token provider unavailable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return MintResult{}, contract.E(contract.CodeProviderAuthFailed, "token provider auth failed")
	case resp.StatusCode == http.StatusTooManyRequests:
		return MintResult{}, contract.E(contract.CodeProviderRateLimited, "token provider rate limited")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return MintResult{}, contract.E(contract.CodeProviderUnavailable, "token provider unavailable")
	}

	return decodeMintResponse(resp.Body)
}

func decodeMintResponse(r io.Reader) (MintResult, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return MintResult{}, badResponse()
	}

	accessToken, ok := payload["access_token"].(string)
	if !ok || accessToken == "" {
		return MintResult{}, badResponse()
	}

	tokenType := "Bearer"
	if tt, ok := payload["token_type"].(string); ok && tt != "" {
		tokenType = tt
	}

	// Entra serves expires_in as a JSON number, but some token endpoints send
	// a numeric string. Anything else is a bad response.
	var expiresIn int64
	switch v := payload["expires_in"].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return MintResult{}, badResponse()
		}
		expiresIn = n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return MintResult{}, badResponse()
		}
		expiresIn = n
	default:
		return MintResult{}, badResponse()
	}

	return MintResult{
		AccessToken:      accessToken,
		TokenType:        tokenType,
		ExpiresInSeconds: int(expiresIn),
	}, nil
}

func badResponse() *contract.Error {
	return contract.E(contract.CodeProviderBadResponse, "token provider bad response")
}
