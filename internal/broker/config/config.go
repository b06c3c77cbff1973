// Package config loads and validates the immutable broker configuration.
//
// Values come from environment variables (MCP_AUTH_BROKER_*), optionally
// seeded from a YAML file named by MCP_AUTH_BROKER_CONFIG_FILE. Environment
// variables always win over file values. The resulting Config is built once
// at process start and never mutated.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/mcp-auth-broker/common/environment"
	"github.com/bdobrica/mcp-auth-broker/internal/broker/secrets"
)

// Secret provider modes.
const (
	ProviderModeNone        = "none"
	ProviderModeOnePassword = "1password"
)

// Config is the process-lifetime broker configuration.
type Config struct {
	Environment     string
	ServiceName     string
	ContractVersion string
	PolicyVersion   string

	DefaultTimeoutMS int

	// AllowedScopes and AllowedGraphResources are ordered allowlists with no
	// empty entries.
	AllowedScopes         []string
	AllowedGraphResources []string

	// SecretProviderMode is ProviderModeNone or ProviderModeOnePassword.
	SecretProviderMode string

	// GraphSecretRef is nil when no reference is configured.
	GraphSecretRef *secrets.Reference
	GraphClientID  string

	TokenCacheSkewSeconds       int
	TokenMaxTTLSeconds          int
	TokenProviderTimeoutSeconds int

	// HTTPAddr enables the optional health HTTP listener when non-empty.
	HTTPAddr string

	// AuditDBPath enables the SQLite audit sink when non-empty.
	AuditDBPath string
}

// fileConfig is the YAML shape of the optional config file. Every field is
// optional; set fields become the defaults that env vars may still override.
type fileConfig struct {
	Environment                 string   `yaml:"environment"`
	ServiceName                 string   `yaml:"service_name"`
	ContractVersion             string   `yaml:"contract_version"`
	PolicyVersion               string   `yaml:"policy_version"`
	DefaultTimeoutMS            int      `yaml:"default_timeout_ms"`
	AllowedScopes               []string `yaml:"allowed_scopes"`
	AllowedGraphResources       []string `yaml:"allowed_graph_resources"`
	SecretProvider              string   `yaml:"secret_provider"`
	GraphSecretRef              string   `yaml:"graph_secret_ref"`
	GraphClientID               string   `yaml:"graph_client_id"`
	TokenCacheSkewSeconds       int      `yaml:"token_cache_skew_seconds"`
	TokenMaxTTLSeconds          int      `yaml:"token_max_ttl_seconds"`
	TokenProviderTimeoutSeconds int      `yaml:"token_provider_timeout_seconds"`
	HTTPAddr                    string   `yaml:"http_addr"`
	AuditDBPath                 string   `yaml:"audit_db_path"`
}

// FromEnv builds a Config from the environment, optionally seeded from the
// YAML file named by MCP_AUTH_BROKER_CONFIG_FILE.
func FromEnv() (*Config, error) {
	seed := fileConfig{}
	if path := os.Getenv("MCP_AUTH_BROKER_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return nil, fmt.Errorf("config file parse: %w", err)
		}
	}
	return fromEnv(seed)
}

func fromEnv(seed fileConfig) (*Config, error) {
	cfg := &Config{
		Environment:     environment.StringOr("MCP_AUTH_BROKER_ENV", orDefault(seed.Environment, "dev")),
		ServiceName:     environment.StringOr("MCP_AUTH_BROKER_SERVICE_NAME", orDefault(seed.ServiceName, "mcp-auth-broker")),
		ContractVersion: environment.StringOr("MCP_AUTH_BROKER_CONTRACT_VERSION", orDefault(seed.ContractVersion, "v0.1.0")),
		PolicyVersion:   environment.StringOr("MCP_AUTH_BROKER_POLICY_VERSION", orDefault(seed.PolicyVersion, "v0.1.0")),
		GraphClientID:   environment.StringOr("MCP_AUTH_BROKER_GRAPH_CLIENT_ID", seed.GraphClientID),
		HTTPAddr:        environment.StringOr("MCP_AUTH_BROKER_HTTP_ADDR", seed.HTTPAddr),
		AuditDBPath:     environment.StringOr("MCP_AUTH_BROKER_AUDIT_DB", seed.AuditDBPath),
	}

	var err error
	if cfg.DefaultTimeoutMS, err = environment.IntStrict("MCP_AUTH_BROKER_DEFAULT_TIMEOUT_MS", orDefaultInt(seed.DefaultTimeoutMS, 10000)); err != nil {
		return nil, err
	}
	if cfg.DefaultTimeoutMS <= 0 {
		return nil, fmt.Errorf("MCP_AUTH_BROKER_DEFAULT_TIMEOUT_MS must be positive, got %d", cfg.DefaultTimeoutMS)
	}

	cfg.AllowedScopes = environment.StringSliceOr("MCP_AUTH_BROKER_ALLOWED_SCOPES",
		orDefaultSlice(seed.AllowedScopes, []string{"User.Read"}))
	if err := validateAllowlist("MCP_AUTH_BROKER_ALLOWED_SCOPES", cfg.AllowedScopes); err != nil {
		return nil, err
	}

	cfg.AllowedGraphResources = environment.StringSliceOr("MCP_AUTH_BROKER_ALLOWED_GRAPH_RESOURCES",
		orDefaultSlice(seed.AllowedGraphResources, []string{"https://graph.microsoft.com"}))
	if err := validateAllowlist("MCP_AUTH_BROKER_ALLOWED_GRAPH_RESOURCES", cfg.AllowedGraphResources); err != nil {
		return nil, err
	}

	cfg.SecretProviderMode = environment.StringOr("MCP_AUTH_BROKER_SECRET_PROVIDER",
		orDefault(seed.SecretProvider, ProviderModeNone))
	if cfg.SecretProviderMode != ProviderModeNone && cfg.SecretProviderMode != ProviderModeOnePassword {
		return nil, fmt.Errorf("MCP_AUTH_BROKER_SECRET_PROVIDER must be %q or %q, got %q",
			ProviderModeNone, ProviderModeOnePassword, cfg.SecretProviderMode)
	}

	if refStr := environment.StringOr("MCP_AUTH_BROKER_GRAPH_SECRET_REF", seed.GraphSecretRef); refStr != "" {
		ref, err := secrets.ParseReference(refStr)
		if err != nil {
			return nil, fmt.Errorf("MCP_AUTH_BROKER_GRAPH_SECRET_REF: %w", err)
		}
		cfg.GraphSecretRef = &ref
	}

	if cfg.TokenCacheSkewSeconds, err = environment.IntStrict("MCP_AUTH_BROKER_TOKEN_CACHE_SKEW_SECONDS", orDefaultInt(seed.TokenCacheSkewSeconds, 60)); err != nil {
		return nil, err
	}
	if cfg.TokenCacheSkewSeconds < 0 {
		return nil, fmt.Errorf("MCP_AUTH_BROKER_TOKEN_CACHE_SKEW_SECONDS must not be negative, got %d", cfg.TokenCacheSkewSeconds)
	}

	if cfg.TokenMaxTTLSeconds, err = environment.IntStrict("MCP_AUTH_BROKER_TOKEN_MAX_TTL_SECONDS", orDefaultInt(seed.TokenMaxTTLSeconds, 3000)); err != nil {
		return nil, err
	}
	if cfg.TokenMaxTTLSeconds <= 0 {
		return nil, fmt.Errorf("MCP_AUTH_BROKER_TOKEN_MAX_TTL_SECONDS must be positive, got %d", cfg.TokenMaxTTLSeconds)
	}

	if cfg.TokenProviderTimeoutSeconds, err = environment.IntStrict("MCP_AUTH_BROKER_TOKEN_PROVIDER_TIMEOUT_SECONDS", orDefaultInt(seed.TokenProviderTimeoutSeconds, 4)); err != nil {
		return nil, err
	}
	if cfg.TokenProviderTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("MCP_AUTH_BROKER_TOKEN_PROVIDER_TIMEOUT_SECONDS must be positive, got %d", cfg.TokenProviderTimeoutSeconds)
	}

	return cfg, nil
}

func validateAllowlist(name string, values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("%s must contain at least one entry", name)
	}
	for _, v := range values {
		if v == "" {
			return fmt.Errorf("%s must not contain empty entries", name)
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orDefaultSlice(v, def []string) []string {
	if len(v) != 0 {
		return v
	}
	return def
}
