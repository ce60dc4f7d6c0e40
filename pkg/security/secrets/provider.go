package secrets

import (
	"context"
	"errors"
	"strings"
)

// ErrSecretNotFound is returned when a referenced secret does not exist.
var ErrSecretNotFound = errors.New("secret not found")

// SecretProvider retrieves secrets from a backend.
type SecretProvider interface {
	// GetSecret retrieves a secret by name.
	GetSecret(ctx context.Context, name string) (string, error)

	// Provider returns the provider name, which is also its reference
	// scheme ("env", "file").
	Provider() string
}

var defaultProviders = []SecretProvider{
	NewEnvProvider(""),
	NewFileProvider(),
}

// Resolve returns the secret a configuration value refers to. Values
// without a known "<scheme>:" prefix are returned as is.
func Resolve(ctx context.Context, value string) (string, error) {
	return ResolveWith(ctx, value, defaultProviders...)
}

// ResolveWith is Resolve over an explicit provider list.
func ResolveWith(ctx context.Context, value string, providers ...SecretProvider) (string, error) {
	scheme, name, ok := strings.Cut(value, ":")
	if !ok {
		return value, nil
	}
	for _, p := range providers {
		if p.Provider() == scheme {
			return p.GetSecret(ctx, name)
		}
	}
	return value, nil
}
