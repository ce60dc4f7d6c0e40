package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"mercator-hq/archivist/pkg/archive"
)

// PolicyStore holds the current retention policies and swaps them atomically
// on reload. It implements archive.PolicySource.
type PolicyStore struct {
	mu       sync.RWMutex
	path     string
	policies map[string]archive.RetentionPolicy
	logger   *slog.Logger
}

// NewPolicyStore creates a store seeded with policies. path is the
// configuration file re-read by Reload; it may be empty for a static store.
func NewPolicyStore(path string, policies map[string]archive.RetentionPolicy) *PolicyStore {
	s := &PolicyStore{
		path:   path,
		logger: slog.Default().With("component", "config.policies"),
	}
	s.set(policies)
	return s
}

func (s *PolicyStore) set(policies map[string]archive.RetentionPolicy) {
	copied := make(map[string]archive.RetentionPolicy, len(policies))
	for table, p := range policies {
		p.Table = table
		copied[table] = p
	}

	s.mu.Lock()
	s.policies = copied
	s.mu.Unlock()
}

// Policy implements archive.PolicySource.
func (s *PolicyStore) Policy(table string) (archive.RetentionPolicy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[table]
	return p, ok
}

// Tables implements archive.PolicySource.
func (s *PolicyStore) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tables := make([]string, 0, len(s.policies))
	for t := range s.policies {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// Path returns the file Reload reads from.
func (s *PolicyStore) Path() string {
	return s.path
}

// Reload re-reads the retention policies from the configuration file. An
// invalid file leaves the current policies in place.
func (s *PolicyStore) Reload() error {
	if s.path == "" {
		return fmt.Errorf("policy store has no configuration file")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file %q: %w", s.path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse configuration file %q: %w", s.path, err)
	}

	if errs := ValidatePolicies(cfg.Retention.Policies); len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	s.set(cfg.Retention.Policies)
	s.logger.Info("Retention policies reloaded",
		"path", s.path,
		"tables", len(cfg.Retention.Policies),
	)
	return nil
}
