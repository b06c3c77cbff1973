// Package server owns the broker request pipeline: structural validation,
// policy evaluation, secret pre-flight, token acquisition and audit emission,
// composed into one deterministic state machine per tool invocation.
//
// Per call the pipeline moves strictly through
// validating → policy_evaluating → (denied | secret_resolving) →
// (secret_failed | token_acquiring) → (token_failed | executing) →
// emitting_result; every path terminates in emitting_result. Exactly one
// response leaves the pipeline per request, and the bearer token never does.
package server

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/mcp-auth-broker/common/redact"
	"github.com/bdobrica/mcp-auth-broker/common/spec/contract"
	"github.com/bdobrica/mcp-auth-broker/common/trace"
	"github.com/bdobrica/mcp-auth-broker/common/version"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/audit"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/config"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/policy"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/registry"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/secrets"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/tokens"
)

// TokenProvider is the token acquisition capability the pipeline consumes.
// The production implementation is *tokens.Provider.
type TokenProvider interface {
	GetToken(ctx context.Context, q tokens.Query) (tokens.Result, error)
}

// Server composes the broker components. It owns the config, the audit
// emitter and the token provider; the secret resolver is referenced only for
// the pre-flight check and may be nil when no provider is configured.
type Server struct {
	cfg      *config.Config
	audit    *audit.Emitter
	provider TokenProvider
	resolver secrets.Resolver
	registry *registry.Registry
}

// Options overrides collaborators; zero-value fields get production defaults.
type Options struct {
	Audit    *audit.Emitter
	Provider TokenProvider

	// Resolver backs the secret pre-flight. Leave nil to build one from
	// cfg.SecretProviderMode (nil when the mode is "none").
	Resolver secrets.Resolver
}

// New builds a Server. The tool registry is compiled here; a schema that does
// not compile fails construction.
func New(cfg *config.Config, opts Options) (*Server, error) {
	reg, err := registry.New()
	if err != nil {
		return nil, err
	}

	emitter := opts.Audit
	if emitter == nil {
		emitter = audit.NewEmitter(audit.NewLineSink(os.Stdout))
	}

	resolver := opts.Resolver
	if resolver == nil && cfg.SecretProviderMode == config.ProviderModeOnePassword {
		resolver = secrets.NewOnePasswordResolver()
	}

	provider := opts.Provider
	if provider == nil {
		providerResolver := resolver
		if providerResolver == nil {
			providerResolver = &secrets.StaticResolver{}
		}
		var ref secrets.Reference
		if cfg.GraphSecretRef != nil {
			ref = *cfg.GraphSecretRef
		}
		provider = tokens.NewProvider(tokens.ProviderOptions{
			ClientID:         cfg.GraphClientID,
			SecretRef:        ref,
			Resolver:         providerResolver,
			AllowedResources: cfg.AllowedGraphResources,
			AllowedScopes:    cfg.AllowedScopes,
			CacheSkewSeconds: cfg.TokenCacheSkewSeconds,
			MaxTTLSeconds:    cfg.TokenMaxTTLSeconds,
			MintTimeout:      time.Duration(cfg.TokenProviderTimeoutSeconds) * time.Second,
		})
	}

	return &Server{
		cfg:      cfg,
		audit:    emitter,
		provider: provider,
		resolver: resolver,
		registry: reg,
	}, nil
}

// Config exposes the immutable configuration (read-only by convention).
func (s *Server) Config() *config.Config { return s.cfg }

// Audit exposes the emitter so callers can inspect the retained trail.
func (s *Server) Audit() *audit.Emitter { return s.audit }

// Health reports liveness.
func (s *Server) Health() map[string]string {
	return map[string]string{
		"status":  "ok",
		"service": s.cfg.ServiceName,
		"version": version.Version,
	}
}

// Readiness reports readiness to serve.
func (s *Server) Readiness() map[string]string {
	return map[string]string{"status": "ready", "environment": s.cfg.Environment}
}

// DiscoverTools returns the static tool catalogue.
func (s *Server) DiscoverTools() []*registry.Definition {
	return s.registry.List()
}

// ExecuteTool runs the full pipeline for one tool invocation and returns
// exactly one response envelope. All audit events emitted during the call
// share one trace ID and the caller's request ID.
func (s *Server) ExecuteTool(ctx context.Context, toolName string, raw map[string]any) contract.Response {
	requestID := stringField(raw, "request_id")

	def, ok := s.registry.Lookup(toolName)
	if !ok {
		return s.errorResponse(requestID, contract.CodeUnsupportedOperation,
			"Unsupported tool name", map[string]any{"tool_name": toolName})
	}

	req, failure := s.validateRequest(def, raw)
	if failure != nil {
		return *failure
	}

	// The validated timeout bounds the whole call end-to-end. Collaborators
	// keep their own per-call deadlines on top of this one.
	ctx, cancel := context.WithTimeout(ctx, time.Duration(req.TimeoutMS)*time.Millisecond)
	defer cancel()

	traceID := trace.GenerateID()
	ctx = trace.WithTraceID(ctx, traceID)

	s.audit.Emit(s.cfg, audit.EventRequestReceived, req, traceID, map[string]any{
		"tool_name":        toolName,
		"contract_version": req.ContractVersion,
		"tenant_id":        req.Graph.TenantID,
		"requested_scopes": req.Graph.Scopes,
	})

	decision := policy.Evaluate(req, s.cfg)
	s.audit.Emit(s.cfg, audit.EventPolicyDecided, req, traceID, map[string]any{
		"decision":        decision.Decision,
		"reason":          decision.Reason,
		"policy_version":  decision.Metadata.PolicyVersion,
		"matched_rule_id": matchedRule(decision.Metadata.MatchedRuleID),
	})

	if decision.Decision == policy.DecisionDeny {
		resp := s.errorResponse(requestID, contract.CodePolicyDenied,
			"Access denied by policy", map[string]any{"reason_code": decision.Reason})
		s.emitResultError(req, traceID, resp.Error.Code, nil)
		return resp
	}

	if failure := s.resolveGraphSecret(ctx, requestID); failure != nil {
		s.emitResultError(req, traceID, failure.Error.Code, []redact.Record{
			{Field: "error.metadata.secret_value", Reason: "sensitive"},
		})
		return *failure
	}

	result, err := s.provider.GetToken(ctx, tokens.Query{
		TenantID: req.Graph.TenantID,
		Resource: req.Graph.Resource,
		Scopes:   req.Graph.Scopes,
	})
	if err != nil {
		coded := contract.AsError(err, contract.CodeProviderUnavailable)
		resp := s.errorResponse(requestID, coded.Code, coded.Message, map[string]any{})
		s.emitResultError(req, traceID, coded.Code, nil)
		return resp
	}

	s.audit.Emit(s.cfg, audit.EventProviderCalled, req, traceID, map[string]any{
		"provider": "microsoft_graph",
		"operation": map[string]any{
			"action": req.Operation.Action,
			"method": req.Operation.Method,
			"path":   req.Operation.Path,
		},
		"timeout_ms": req.TimeoutMS,
		"attempt":    1,
		"outcome":    "success",
	})

	resp := contract.Response{
		ContractVersion: s.cfg.ContractVersion,
		RequestID:       requestID,
		Status:          "ok",
		Result: &contract.Result{
			Policy: contract.PolicyResult{
				Decision: decision.Decision,
				Reason:   decision.Reason,
				Metadata: decision.Metadata,
			},
			Execution: contract.Execution{
				Mode:              "broker_downstream_execution",
				Provider:          "microsoft_graph",
				ProviderRequestID: uuid.NewString(),
				HTTPStatus:        200,
				ResponseHeaders:   map[string]string{},
				ResponseBody: contract.ExecutionBody{
					OK:            true,
					TokenMetadata: result.Metadata,
				},
			},
			Redactions: []redact.Record{},
		},
	}

	s.audit.Emit(s.cfg, audit.EventResultEmitted, req, traceID, map[string]any{
		"status":      "ok",
		"error_code":  nil,
		"duration_ms": 0,
	})
	return resp
}

// resolveGraphSecret is the pre-flight secret check. It runs only when a
// resolver and a reference are both configured, and discards the value: the
// token provider resolves again when it actually mints. An empty value counts
// as secret.not_found.
func (s *Server) resolveGraphSecret(ctx context.Context, requestID string) *contract.Response {
	if s.resolver == nil || s.cfg.GraphSecretRef == nil {
		return nil
	}

	ref := *s.cfg.GraphSecretRef
	value, err := s.resolver.Resolve(ctx, ref)
	if err != nil {
		coded := contract.AsError(err, contract.CodeSecretUnavailable)
		resp := s.errorResponse(requestID, coded.Code, coded.Message,
			map[string]any{"reference": ref.URI()})
		return &resp
	}
	if value == "" {
		resp := s.errorResponse(requestID, contract.CodeSecretNotFound,
			"secret reference returned empty value",
			map[string]any{"reference": ref.URI()})
		return &resp
	}
	return nil
}

func (s *Server) emitResultError(req contract.Request, traceID, errorCode string, redactions []redact.Record) {
	payload := map[string]any{
		"status":      "error",
		"error_code":  errorCode,
		"duration_ms": 0,
	}
	if redactions != nil {
		s.audit.EmitPreRedacted(s.cfg, audit.EventResultEmitted, req, traceID, payload, redactions)
		return
	}
	s.audit.Emit(s.cfg, audit.EventResultEmitted, req, traceID, payload)
}

func (s *Server) errorResponse(requestID, code, message string, metadata map[string]any) contract.Response {
	slog.Debug("broker error response", "request_id", requestID, "code", code)
	empty := []redact.Record{}
	return contract.Response{
		ContractVersion: s.cfg.ContractVersion,
		RequestID:       requestID,
		Status:          "error",
		Error: &contract.ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: false,
			Category:  contract.Category(code),
			Metadata:  metadata,
		},
		Redactions: &empty,
	}
}

func matchedRule(id *string) any {
	if id == nil {
		return nil
	}
	return *id
}
