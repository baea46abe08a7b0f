package permissions

import (
	"context"
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Reason classifies why a Decision allowed or denied access.
type Reason string

const (
	ReasonCachedResult         Reason = "cached_result"
	ReasonNoRolesAssigned      Reason = "no_roles_assigned"
	ReasonSuperAdminAccess     Reason = "super_admin_access"
	ReasonNoApplicablePolicies Reason = "no_applicable_policies"
	ReasonPolicyMatch          Reason = "policy_match"
	ReasonNoPolicyMatch        Reason = "no_policy_match"
	ReasonEvaluationError      Reason = "evaluation_error"
)

// TenantScope narrows a role assignment to a company and/or client. A nil
// scope on a RoleAssignment grants the role across all tenants.
type TenantScope struct {
	CompanyID string `json:"company_id,omitempty" yaml:"company_id,omitempty"`
	ClientID  string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
}

// RoleAssignment binds a role to a user. Assignments are immutable rows:
// revoking deletes, re-granting inserts.
type RoleAssignment struct {
	UserID string       `json:"user_id" yaml:"user_id"`
	Role   string       `json:"role" yaml:"role"`
	Scope  *TenantScope `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// UserAttributes is the per-user attribute bag used by attribute conditions.
// Absence of a stored record is not an error; stores return a zero-valued
// record so attribute conditions deny gracefully instead of failing.
type UserAttributes struct {
	UserID          string           `json:"user_id" yaml:"user_id"`
	JobTitle        string           `json:"job_title" yaml:"job_title"`
	Department      string           `json:"department" yaml:"department"`
	IsManager       bool             `json:"is_manager" yaml:"is_manager"`
	Certifications  []string         `json:"certifications,omitempty" yaml:"certifications,omitempty"`
	AssignedModules []string         `json:"assigned_modules,omitempty" yaml:"assigned_modules,omitempty"`
	DirectReports   []string         `json:"direct_reports,omitempty" yaml:"direct_reports,omitempty"`
	Custom          map[string]Value `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// NewUserAttributes returns the default (empty) attribute record for a user.
func NewUserAttributes(userID string) *UserAttributes {
	return &UserAttributes{UserID: userID}
}

// Clone returns a deep copy so stores can hand out records without sharing
// mutable state with callers.
func (a *UserAttributes) Clone() *UserAttributes {
	if a == nil {
		return nil
	}
	dup := *a
	dup.Certifications = append([]string(nil), a.Certifications...)
	dup.AssignedModules = append([]string(nil), a.AssignedModules...)
	dup.DirectReports = append([]string(nil), a.DirectReports...)
	if a.Custom != nil {
		dup.Custom = make(map[string]Value, len(a.Custom))
		for k, v := range a.Custom {
			dup.Custom[k] = v.clone()
		}
	}
	return &dup
}

// Operator identifies a condition comparison.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// PolicyCondition is a single attribute-operator-value predicate.
// ConditionType is reserved for future grouping; evaluation applies a flat
// AND across all conditions of a policy.
type PolicyCondition struct {
	Attribute     string   `json:"attribute" yaml:"attribute"`
	Operator      Operator `json:"operator" yaml:"operator"`
	Value         Value    `json:"value" yaml:"value"`
	ConditionType string   `json:"condition_type,omitempty" yaml:"condition_type,omitempty"`
}

// String renders the condition as "attribute operator value", the form used
// in Decision.FailedConditions.
func (c PolicyCondition) String() string {
	return c.Attribute + " " + string(c.Operator) + " " + c.Value.Text()
}

// Policy grants an action on a feature to its assigned roles, provided every
// condition holds. A policy with no conditions is unconditionally satisfied
// once selected.
type Policy struct {
	ID         string            `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Feature    string            `json:"feature" yaml:"feature"`
	Action     string            `json:"action" yaml:"action"`
	Conditions []PolicyCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Clone returns a copy with its own condition slice.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	dup := *p
	dup.Conditions = append([]PolicyCondition(nil), p.Conditions...)
	return &dup
}

// PolicyRoleAssignment associates a policy with a role. Inactive assignments
// are ignored during policy selection.
type PolicyRoleAssignment struct {
	Role     string `json:"role" yaml:"role"`
	PolicyID string `json:"policy_id" yaml:"policy_id"`
	Active   bool   `json:"active" yaml:"active"`
}

// AccessContext carries per-request values for context-dependent attribute
// names (company_id, client_id) and identifies the concrete resource under
// evaluation. It is ephemeral and never stored.
type AccessContext struct {
	ResourceID   string `json:"resource_id,omitempty" yaml:"resource_id,omitempty"`
	ResourceType string `json:"resource_type,omitempty" yaml:"resource_type,omitempty"`
	TargetUserID string `json:"target_user_id,omitempty" yaml:"target_user_id,omitempty"`
	CompanyID    string `json:"company_id,omitempty" yaml:"company_id,omitempty"`
	ClientID     string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
}

// Decision is the structured outcome of one access evaluation.
type Decision struct {
	Allowed          bool      `json:"allowed"`
	Reason           Reason    `json:"reason"`
	MatchedPolicies  []string  `json:"matched_policies,omitempty"`
	FailedConditions []string  `json:"failed_conditions,omitempty"`
	Trace            []string  `json:"trace,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// AccessRequest is one item of a batch evaluation.
type AccessRequest struct {
	UserID  string
	Feature string
	Action  string
	Context *AccessContext
}

// ============================================================================
// STORAGE INTERFACES
// ============================================================================

// RoleAttributeStore is the narrow read interface for role assignments and
// attribute bags. GetUserAttributes must return a default record, not an
// error, when no record exists for the user; both operations may still fail
// on store faults, and those faults are surfaced as errors.
type RoleAttributeStore interface {
	GetRoleAssignments(ctx context.Context, userID string) ([]RoleAssignment, error)
	GetUserAttributes(ctx context.Context, userID string) (*UserAttributes, error)
}

// PolicyStore returns the active policies whose feature and action exactly
// match and whose role binding is active for any of the given roles.
// Matching is deliberately exact: no wildcards, no hierarchy.
type PolicyStore interface {
	GetPolicies(ctx context.Context, roles []string, feature, action string) ([]*Policy, error)
}

// AuditStore records authorization decisions.
type AuditStore interface {
	LogDecision(ctx context.Context, entry *AuditEntry) error
	GetAccessLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// AuditEntry is one recorded decision.
type AuditEntry struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	UserID          string    `json:"user_id"`
	Feature         string    `json:"feature"`
	Action          string    `json:"action"`
	ResourceID      string    `json:"resource_id,omitempty"`
	ResourceType    string    `json:"resource_type,omitempty"`
	Allowed         bool      `json:"allowed"`
	Reason          Reason    `json:"reason"`
	MatchedPolicies []string  `json:"matched_policies,omitempty"`
}

// AuditFilter selects audit entries.
type AuditFilter struct {
	UserID    string
	Feature   string
	Action    string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}
