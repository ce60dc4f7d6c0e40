package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider loads secrets from individual files, Kubernetes style.
// Names are file paths, relative to BasePath when it is set.
type FileProvider struct {
	BasePath string
}

// NewFileProvider creates a file secret provider for absolute paths.
func NewFileProvider() *FileProvider {
	return &FileProvider{}
}

// GetSecret reads the secret file. Permissions must be 0600 or 0400.
func (p *FileProvider) GetSecret(ctx context.Context, name string) (string, error) {
	path := filepath.Clean(name)
	if p.BasePath != "" && !filepath.IsAbs(path) {
		path = filepath.Join(p.BasePath, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret path is not a regular file: %s", path)
	}

	mode := info.Mode().Perm()
	if mode != 0o600 && mode != 0o400 {
		return "", fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, mode)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("secret file is empty: %s", path)
	}
	return value, nil
}

// Provider returns the provider name.
func (p *FileProvider) Provider() string {
	return "file"
}
