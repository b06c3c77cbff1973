package secrets

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/bdobrica/mcp-auth-broker/common/spec/contract"
)

// DefaultResolveTimeout bounds a single `op read` invocation.
const DefaultResolveTimeout = 5 * time.Second

// OnePasswordResolver resolves references by shelling out to the 1Password
// CLI (`op read op://vault/item/field`). Authentication uses a service
// account token passed through the environment.
type OnePasswordResolver struct {
	// Token is the 1Password service account token. When empty the value of
	// OP_SERVICE_ACCOUNT_TOKEN is used.
	Token string

	// Binary is the op executable name or path. Defaults to "op".
	Binary string

	// Timeout bounds each CLI invocation. Defaults to DefaultResolveTimeout.
	Timeout time.Duration
}

// NewOnePasswordResolver returns a resolver using the OP_SERVICE_ACCOUNT_TOKEN
// environment variable and the `op` binary from PATH.
func NewOnePasswordResolver() *OnePasswordResolver {
	return &OnePasswordResolver{}
}

// Resolve reads the secret via the CLI. Error mapping:
//
//   - missing service account token  → secret.access_denied
//   - CLI deadline exceeded          → secret.timeout
//   - op binary not installed        → secret.unavailable
//   - "not found" on stderr          → secret.not_found
//   - forbidden / unauthorized       → secret.access_denied
//   - anything else                  → secret.unavailable
func (p *OnePasswordResolver) Resolve(ctx context.Context, ref Reference) (string, error) {
	token := p.Token
	if token == "" {
		token = os.Getenv("OP_SERVICE_ACCOUNT_TOKEN")
	}
	if token == "" {
		return "", contract.E(contract.CodeSecretAccessDenied,
			"OP_SERVICE_ACCOUNT_TOKEN is required")
	}

	binary := p.Binary
	if binary == "" {
		binary = "op"
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, "read", ref.URI())
	cmd.Env = append(os.Environ(), "OP_SERVICE_ACCOUNT_TOKEN="+token)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", contract.E(contract.CodeSecretTimeout, "secret provider timed out")
	}
	if errors.Is(err, exec.ErrNotFound) {
		return "", contract.E(contract.CodeSecretUnavailable, "1Password CLI is not available")
	}
	if err == nil {
		return strings.TrimSpace(stdout.String()), nil
	}

	msg := strings.ToLower(stderr.String())
	switch {
	case strings.Contains(msg, "not found"):
		return "", notFoundErr()
	case strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "access denied"),
		strings.Contains(msg, "unauthorized"):
		return "", contract.E(contract.CodeSecretAccessDenied, "secret access denied")
	default:
		return "", contract.E(contract.CodeSecretUnavailable, "secret provider unavailable")
	}
}

func notFoundErr() *contract.Error {
	return contract.E(contract.CodeSecretNotFound, "secret reference not found")
}
