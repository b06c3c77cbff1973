package contract

import "github.com/bdobrica/mcp-auth-broker/common/redact"

// Request is the inbound tool payload after structural validation. The field
// set is closed: unknown top-level keys are rejected during validation rather
// than ignored.
type Request struct {
	ContractVersion string    `json:"contract_version"`
	RequestID       string    `json:"request_id"`
	Requester       Requester `json:"requester"`
	Graph           Graph     `json:"graph"`
	Operation       Operation `json:"operation"`

	// TimeoutMS bounds the whole call end-to-end. Zero means the configured
	// default applies.
	TimeoutMS int `json:"timeout_ms,omitempty"`
}

// Requester identifies the calling principal.
type Requester struct {
	RequesterID       string `json:"requester_id"`
	IdentityAssurance string `json:"identity_assurance,omitempty"`
}

// Graph names the downstream tenant, audience and requested scopes.
type Graph struct {
	TenantID string   `json:"tenant_id"`
	Resource string   `json:"resource"`
	Scopes   []string `json:"scopes"`
}

// Operation describes the downstream call the broker executes on behalf of
// the caller.
type Operation struct {
	Action string `json:"action"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

// Response is the envelope returned for every tool invocation. Exactly one of
// Result and Error is set, matching Status "ok" or "error".
type Response struct {
	ContractVersion string       `json:"contract_version"`
	RequestID       string       `json:"request_id"`
	Status          string       `json:"status"`
	Result          *Result      `json:"result,omitempty"`
	Error           *ErrorDetail `json:"error,omitempty"`

	// Redactions is present (possibly empty) on error envelopes and absent on
	// success envelopes, where redactions live under Result.
	Redactions *[]redact.Record `json:"redactions,omitempty"`
}

// Result is the success payload.
type Result struct {
	Policy     PolicyResult    `json:"policy"`
	Execution  Execution       `json:"execution"`
	Redactions []redact.Record `json:"redactions"`
}

// PolicyResult echoes the policy decision in the success envelope.
type PolicyResult struct {
	Decision string         `json:"decision"`
	Reason   string         `json:"reason"`
	Metadata PolicyMetadata `json:"metadata"`
}

// PolicyMetadata is attached to every policy decision, allow or deny.
type PolicyMetadata struct {
	PolicyVersion string `json:"policy_version"`

	// MatchedRuleID is nil on deny.
	MatchedRuleID *string `json:"matched_rule_id"`

	RequesterID string `json:"requester_id"`
	TenantID    string `json:"tenant_id"`

	// ScopesEvaluated reflects the scopes as observed on the request,
	// including disallowed ones.
	ScopesEvaluated []string `json:"scopes_evaluated"`
}

// Execution describes the (stubbed) downstream call outcome.
type Execution struct {
	Mode              string            `json:"mode"`
	Provider          string            `json:"provider"`
	ProviderRequestID string            `json:"provider_request_id"`
	HTTPStatus        int               `json:"http_status"`
	ResponseHeaders   map[string]string `json:"response_headers"`
	ResponseBody      ExecutionBody     `json:"response_body"`
}

// ExecutionBody carries token metadata only. The access token itself never
// crosses the trust boundary.
type ExecutionBody struct {
	OK            bool          `json:"ok"`
	TokenMetadata TokenMetadata `json:"token_metadata"`
}

// TokenMetadata describes an acquired token without exposing its value.
type TokenMetadata struct {
	TenantID       string   `json:"tenant_id"`
	Resource       string   `json:"resource"`
	Scopes         []string `json:"scopes"`
	TokenType      string   `json:"token_type"`
	ExpiresAtEpoch int64    `json:"expires_at_epoch"`
	Source         string   `json:"source"`
}

// ErrorDetail is the error payload. Retryable is always false: retry is the
// caller's responsibility, the broker has no durable queue.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Category  string         `json:"category"`
	Metadata  map[string]any `json:"metadata"`
}
