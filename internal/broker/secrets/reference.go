// Package secrets provides the secret resolution capability: a reference
// format (op://vault/item/field), a single-method Resolver interface with a
// closed error taxonomy, and the 1Password CLI implementation.
package secrets

import (
	"strings"

	"github.com/bdobrica/mcp-auth-broker/common/spec/contract"
)

const referencePrefix = "op://"

// Reference addresses a single secret field in a vault. All three components
// are non-empty; ParseReference rejects anything else.
type Reference struct {
	Vault string
	Item  string
	Field string
}

// ParseReference parses the canonical op://<vault>/<item>/<field> form.
// Any deviation from that exact shape yields bad_request.invalid_field.
func ParseReference(value string) (Reference, error) {
	if !strings.HasPrefix(value, referencePrefix) {
		return Reference{}, contract.E(contract.CodeInvalidField,
			"secret reference must start with op://")
	}

	parts := strings.Split(value[len(referencePrefix):], "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Reference{}, contract.E(contract.CodeInvalidField,
			"secret reference must follow op://vault/item/field")
	}

	return Reference{Vault: parts[0], Item: parts[1], Field: parts[2]}, nil
}

// URI renders the reference back to its canonical string form.
func (r Reference) URI() string {
	return referencePrefix + r.Vault + "/" + r.Item + "/" + r.Field
}
