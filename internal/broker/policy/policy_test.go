package policy_test

import (
	"reflect"
	"testing"

	"github.com/bdobrica/mcp-auth-broker/common/spec/contract"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/config"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/policy"
)

func testConfig() *config.Config {
	return &config.Config{
		PolicyVersion: "v0.1.0",
		AllowedScopes: []string{"User.Read"},
	}
}

func testRequest(requesterID string, scopes []string) contract.Request {
	return contract.Request{
		Requester: contract.Requester{RequesterID: requesterID},
		Graph: contract.Graph{
			TenantID: "tenant-1",
			Scopes:   scopes,
		},
	}
}

func TestEvaluate_Allow(t *testing.T) {
	d := policy.Evaluate(testRequest("agent-1", []string{"User.Read"}), testConfig())

	if d.Decision != policy.DecisionAllow {
		t.Fatalf("expected allow, got %q (%q)", d.Decision, d.Reason)
	}
	if d.Reason != policy.ReasonAllowUserRead {
		t.Errorf("unexpected reason: %q", d.Reason)
	}
	if d.Metadata.MatchedRuleID == nil || *d.Metadata.MatchedRuleID != "allow-user-read" {
		t.Errorf("unexpected matched rule: %v", d.Metadata.MatchedRuleID)
	}
	if d.Metadata.PolicyVersion != "v0.1.0" {
		t.Errorf("unexpected policy version: %q", d.Metadata.PolicyVersion)
	}
	if d.Metadata.RequesterID != "agent-1" || d.Metadata.TenantID != "tenant-1" {
		t.Errorf("unexpected identity metadata: %+v", d.Metadata)
	}
}

func TestEvaluate_MissingIdentity(t *testing.T) {
	d := policy.Evaluate(testRequest("", []string{"User.Read"}), testConfig())

	if d.Decision != policy.DecisionDeny {
		t.Fatalf("expected deny, got %q", d.Decision)
	}
	if d.Reason != policy.ReasonMissingIdentity {
		t.Errorf("unexpected reason: %q", d.Reason)
	}
	if d.Metadata.MatchedRuleID != nil {
		t.Errorf("deny must not carry a matched rule, got %v", *d.Metadata.MatchedRuleID)
	}
}

func TestEvaluate_ScopeNotPermitted(t *testing.T) {
	d := policy.Evaluate(testRequest("agent-1", []string{"User.Read", "Mail.ReadWrite"}), testConfig())

	if d.Decision != policy.DecisionDeny {
		t.Fatalf("expected deny, got %q", d.Decision)
	}
	if d.Reason != policy.ReasonScopeNotPermitted {
		t.Errorf("unexpected reason: %q", d.Reason)
	}
	// Metadata records what was observed, disallowed scopes included.
	want := []string{"User.Read", "Mail.ReadWrite"}
	if !reflect.DeepEqual(d.Metadata.ScopesEvaluated, want) {
		t.Errorf("scopes_evaluated: got %v, want %v", d.Metadata.ScopesEvaluated, want)
	}
}

func TestEvaluate_IdentityCheckedBeforeScopes(t *testing.T) {
	d := policy.Evaluate(testRequest("", []string{"Mail.ReadWrite"}), testConfig())
	if d.Reason != policy.ReasonMissingIdentity {
		t.Fatalf("identity check must run first, got reason %q", d.Reason)
	}
}

func TestEvaluate_NilScopes(t *testing.T) {
	d := policy.Evaluate(testRequest("agent-1", nil), testConfig())
	if d.Decision != policy.DecisionAllow {
		t.Fatalf("expected allow for empty scope list, got %q (%q)", d.Decision, d.Reason)
	}
	if d.Metadata.ScopesEvaluated == nil || len(d.Metadata.ScopesEvaluated) != 0 {
		t.Errorf("scopes_evaluated should be empty non-nil, got %v", d.Metadata.ScopesEvaluated)
	}
}
