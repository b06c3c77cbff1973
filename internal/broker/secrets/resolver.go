package secrets

import "context"

// Resolver resolves a secret reference to its value.
//
// Implementations return *contract.Error with one of the secret.* codes
// (secret.not_found, secret.access_denied, secret.timeout,
// secret.unavailable). An empty-string success is treated by callers as
// secret.not_found.
type Resolver interface {
	Resolve(ctx context.Context, ref Reference) (string, error)
}

// StaticResolver serves secrets from a fixed map keyed by reference URI.
// It backs tests and the smoke harness; production deployments use the
// 1Password resolver.
type StaticResolver struct {
	Values map[string]string
}

// Resolve returns the mapped value or secret.not_found.
func (s *StaticResolver) Resolve(_ context.Context, ref Reference) (string, error) {
	if v, ok := s.Values[ref.URI()]; ok {
		return v, nil
	}
	return "", notFoundErr()
}
