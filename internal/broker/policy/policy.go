// Package policy evaluates whether a tool invocation is permitted.
//
// Evaluation is a pure function of the request and the configuration; no I/O
// and no clock. Reason codes are part of the external contract and must never
// be renamed. Resource allowlisting is deliberately absent here: it is
// enforced inside the token provider so the policy layer stays scope-centric.
package policy

import (
	"github.com/bdobrica/mcp-auth-broker/common/spec/contract"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/config"
)

// Decisions.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Stable reason codes.
const (
	ReasonMissingIdentity   = "policy.missing_identity"
	ReasonScopeNotPermitted = "policy.rule.deny.scope.not_permitted"
	ReasonAllowUserRead     = "policy.rule.allow.graph.user.read"
)

// ruleAllowUserRead is the single allow rule in policy v0.1.0.
const ruleAllowUserRead = "allow-user-read"

// Decision is the outcome of policy evaluation.
type Decision struct {
	Decision string
	Reason   string
	Metadata contract.PolicyMetadata
}

// Evaluate applies the policy to a validated request.
//
// Checks run in a fixed order: identity first, then scopes. ScopesEvaluated
// in the metadata always reflects the scopes as observed on the request,
// including disallowed ones.
func Evaluate(req contract.Request, cfg *config.Config) Decision {
	scopes := req.Graph.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	meta := contract.PolicyMetadata{
		PolicyVersion:   cfg.PolicyVersion,
		RequesterID:     req.Requester.RequesterID,
		TenantID:        req.Graph.TenantID,
		ScopesEvaluated: scopes,
	}

	if req.Requester.RequesterID == "" {
		meta.RequesterID = ""
		return Decision{Decision: DecisionDeny, Reason: ReasonMissingIdentity, Metadata: meta}
	}

	for _, scope := range scopes {
		if !contains(cfg.AllowedScopes, scope) {
			return Decision{Decision: DecisionDeny, Reason: ReasonScopeNotPermitted, Metadata: meta}
		}
	}

	rule := ruleAllowUserRead
	meta.MatchedRuleID = &rule
	return Decision{Decision: DecisionAllow, Reason: ReasonAllowUserRead, Metadata: meta}
}

func contains(list []string, value string) bool {
	for _, s := range list {
		if s == value {
			return true
		}
	}
	return false
}
