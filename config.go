package permissions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the declarative form of an engine deployment: tunables plus the
// seed data pushed into seedable stores by ApplyConfig.
type Config struct {
	Version         uint16                 `json:"version" yaml:"version"`
	Engine          EngineConfig           `json:"engine" yaml:"engine"`
	RoleAssignments []RoleAssignment       `json:"role_assignments,omitempty" yaml:"role_assignments,omitempty"`
	Attributes      []*UserAttributes      `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Policies        []*Policy              `json:"policies,omitempty" yaml:"policies,omitempty"`
	PolicyRoles     []PolicyRoleAssignment `json:"policy_roles,omitempty" yaml:"policy_roles,omitempty"`
}

// EngineConfig carries the engine tunables.
type EngineConfig struct {
	CacheTTLMillis       int64  `json:"cache_ttl_ms" yaml:"cache_ttl_ms"`
	CacheMaxEntries      int    `json:"cache_max_entries" yaml:"cache_max_entries"`
	SuperAdminRole       string `json:"super_admin_role" yaml:"super_admin_role"`
	AuditBufferSize      int    `json:"audit_buffer_size" yaml:"audit_buffer_size"`
	RistrettoNumCounters int64  `json:"ristretto_num_counters" yaml:"ristretto_num_counters"`
	RistrettoMaxCost     int64  `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer      int64  `json:"ristretto_buffer" yaml:"ristretto_buffer"`
}

// Options expands the config tunables into engine options for NewEngine.
func (c EngineConfig) Options() []EngineOption {
	opts := make([]EngineOption, 0, 4)
	if c.CacheTTLMillis > 0 {
		opts = append(opts, WithCacheTTL(time.Duration(c.CacheTTLMillis)*time.Millisecond))
	}
	if c.CacheMaxEntries > 0 {
		opts = append(opts, WithCacheMaxEntries(c.CacheMaxEntries))
	}
	if c.SuperAdminRole != "" {
		opts = append(opts, WithSuperAdminRole(c.SuperAdminRole))
	}
	if c.AuditBufferSize > 0 {
		opts = append(opts, WithAuditBuffer(c.AuditBufferSize))
	}
	if c.RistrettoNumCounters > 0 {
		opts = append(opts, WithRistrettoCache(c.RistrettoNumCounters, c.RistrettoMaxCost, c.RistrettoBuffer))
	}
	return opts
}

// ConfigLoader loads configuration from YAML or JSON.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader { return &ConfigLoader{} }

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate checks referential integrity of the seed data.
func (c *Config) Validate() error {
	policies := make(map[string]bool, len(c.Policies))
	for _, p := range c.Policies {
		if p.ID == "" {
			return fmt.Errorf("policy %q: id is required", p.Name)
		}
		if p.Feature == "" || p.Action == "" {
			return fmt.Errorf("policy %s: feature and action are required", p.ID)
		}
		if policies[p.ID] {
			return fmt.Errorf("policy %s: duplicate id", p.ID)
		}
		policies[p.ID] = true
	}
	for _, pr := range c.PolicyRoles {
		if !policies[pr.PolicyID] {
			return fmt.Errorf("policy role binding %s -> %s: unknown policy", pr.Role, pr.PolicyID)
		}
	}
	for _, ra := range c.RoleAssignments {
		if ra.UserID == "" || ra.Role == "" {
			return fmt.Errorf("role assignment: user id and role are required")
		}
	}
	return nil
}

// SeedableRoleAttributeStore is implemented by stores that accept seed data.
type SeedableRoleAttributeStore interface {
	RoleAttributeStore
	PutRoleAssignment(ctx context.Context, a RoleAssignment) error
	PutUserAttributes(ctx context.Context, attrs *UserAttributes) error
}

// SeedablePolicyStore is implemented by policy stores that accept seed data.
type SeedablePolicyStore interface {
	PolicyStore
	PutPolicy(ctx context.Context, p *Policy) error
	AssignPolicyRole(ctx context.Context, a PolicyRoleAssignment) error
}

// ApplyConfig applies tunable-independent seed data to the engine's stores
// and clears the decision cache afterwards. Tunables in cfg.Engine only take
// effect at construction time (EngineConfig.Options); seeding requires the
// injected stores to be seedable.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(cfg.RoleAssignments) > 0 || len(cfg.Attributes) > 0 {
		seedable, ok := e.roleStore.(SeedableRoleAttributeStore)
		if !ok {
			return fmt.Errorf("role attribute store does not accept seed data")
		}
		for _, ra := range cfg.RoleAssignments {
			if err := seedable.PutRoleAssignment(ctx, ra); err != nil {
				return fmt.Errorf("seed role assignment %s/%s: %w", ra.UserID, ra.Role, err)
			}
		}
		for _, attrs := range cfg.Attributes {
			if err := seedable.PutUserAttributes(ctx, attrs); err != nil {
				return fmt.Errorf("seed attributes for %s: %w", attrs.UserID, err)
			}
		}
	}
	if len(cfg.Policies) > 0 || len(cfg.PolicyRoles) > 0 {
		seedable, ok := e.policyStore.(SeedablePolicyStore)
		if !ok {
			return fmt.Errorf("policy store does not accept seed data")
		}
		for _, p := range cfg.Policies {
			if err := seedable.PutPolicy(ctx, p); err != nil {
				return fmt.Errorf("seed policy %s: %w", p.ID, err)
			}
		}
		for _, pr := range cfg.PolicyRoles {
			if err := seedable.AssignPolicyRole(ctx, pr); err != nil {
				return fmt.Errorf("seed policy role %s -> %s: %w", pr.Role, pr.PolicyID, err)
			}
		}
	}
	// Seeding mutates stores, so the staleness obligation applies here too.
	e.ClearCache()
	return nil
}
