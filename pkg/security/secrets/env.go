package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider loads secrets from environment variables.
//
// Names are upper-cased with hyphens replaced by underscores, then the
// prefix is prepended:
//   - Secret name: "mirror-secret"
//   - Env var name: "ARCHIVIST_SECRET_MIRROR_SECRET" (with prefix "ARCHIVIST_SECRET_")
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates a new environment variable secret provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// GetSecret retrieves a secret from an environment variable. An empty
// variable counts as missing.
func (p *EnvProvider) GetSecret(ctx context.Context, name string) (string, error) {
	envVar := p.Prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))

	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("%w in environment: %s (env var: %s)", ErrSecretNotFound, name, envVar)
	}
	return value, nil
}

// Provider returns the provider name.
func (p *EnvProvider) Provider() string {
	return "env"
}
