// Package policy holds the per-operation access policy configuration:
// which minimum role an operation requires, where its organization id comes
// from, and the explicit opt-in flags (anonymous bypass, verify-before-deny,
// rate limiting). Anonymous eligibility is deliberately a configuration
// concern here, never a property of the evaluator itself.
package policy

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/assembly-hq/assembly/pkg/authz"
)

// OperationPolicy declares the access requirements of one operation key.
type OperationPolicy struct {
	// Operation is the operation key routes reference (e.g. "org.members.add").
	Operation string `yaml:"operation"`
	// MinimumRole is the role required at the target organization.
	MinimumRole authz.Role `yaml:"minimum_role"`
	// OrgParam names the route variable carrying the organization id.
	OrgParam string `yaml:"org_param"`
	// AllowAnonymous admits anonymous principals on this operation. Only
	// explicitly-flagged legacy routes set this.
	AllowAnonymous bool `yaml:"allow_anonymous"`
	// VerifyBeforeDeny consults the membership store before denying
	// NotAMember (for flows where the token may be momentarily stale).
	VerifyBeforeDeny bool `yaml:"verify_before_deny"`
	// RateLimited marks the operation as subject to the rate limiter.
	RateLimited bool `yaml:"rate_limited"`
	// Limit and Window override the limiter defaults when set.
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"-"`
}

// UnmarshalYAML decodes the policy entry, accepting the window as a
// duration string ("60s", "5m").
func (p *OperationPolicy) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		Operation        string     `yaml:"operation"`
		MinimumRole      authz.Role `yaml:"minimum_role"`
		OrgParam         string     `yaml:"org_param"`
		AllowAnonymous   bool       `yaml:"allow_anonymous"`
		VerifyBeforeDeny bool       `yaml:"verify_before_deny"`
		RateLimited      bool       `yaml:"rate_limited"`
		Limit            int        `yaml:"limit"`
		Window           string     `yaml:"window"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}

	p.Operation = aux.Operation
	p.MinimumRole = aux.MinimumRole
	p.OrgParam = aux.OrgParam
	p.AllowAnonymous = aux.AllowAnonymous
	p.VerifyBeforeDeny = aux.VerifyBeforeDeny
	p.RateLimited = aux.RateLimited
	p.Limit = aux.Limit

	if aux.Window != "" {
		window, err := time.ParseDuration(aux.Window)
		if err != nil {
			return fmt.Errorf("operation %q: invalid window: %w", aux.Operation, err)
		}
		p.Window = window
	}
	return nil
}

// Validate checks that the policy entry is well formed.
func (p OperationPolicy) Validate() error {
	if p.Operation == "" {
		return fmt.Errorf("operation key is required")
	}
	if !p.MinimumRole.Valid() {
		return fmt.Errorf("operation %q: unknown minimum role %q", p.Operation, p.MinimumRole)
	}
	if p.OrgParam == "" {
		return fmt.Errorf("operation %q: org_param is required", p.Operation)
	}
	return nil
}

// CheckOptions translates the policy entry into guard options.
func (p OperationPolicy) CheckOptions() authz.CheckOptions {
	return authz.CheckOptions{
		AllowAnonymous:   p.AllowAnonymous,
		VerifyBeforeDeny: p.VerifyBeforeDeny,
		RateLimited:      p.RateLimited,
	}
}

type policyFile struct {
	Operations []OperationPolicy `yaml:"operations"`
}

// Set is a reloadable collection of operation policies. Lookups are safe
// under concurrent reloads.
type Set struct {
	mu   sync.RWMutex
	byOp map[string]OperationPolicy
}

// NewSet creates an empty policy set.
func NewSet() *Set {
	return &Set{byOp: make(map[string]OperationPolicy)}
}

// Load parses a policy YAML file into a new set.
func Load(path string) (*Set, error) {
	s := NewSet()
	if err := s.Reload(path); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the set's contents from the file. On any parse or
// validation error the previous contents are kept.
func (s *Set) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse policy file: %w", err)
	}

	byOp := make(map[string]OperationPolicy, len(file.Operations))
	for _, op := range file.Operations {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("invalid policy: %w", err)
		}
		if _, exists := byOp[op.Operation]; exists {
			return fmt.Errorf("invalid policy: duplicate operation %q", op.Operation)
		}
		byOp[op.Operation] = op
	}

	s.mu.Lock()
	s.byOp = byOp
	s.mu.Unlock()
	return nil
}

// Lookup returns the policy for an operation key.
func (s *Set) Lookup(operation string) (OperationPolicy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.byOp[operation]
	return op, ok
}

// Operations returns the declared operation keys.
func (s *Set) Operations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.byOp))
	for k := range s.byOp {
		keys = append(keys, k)
	}
	return keys
}
