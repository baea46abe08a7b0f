package stores

import (
	"context"
	"sort"
	"sync"

	"github.com/lumenwork/permissions"
)

// MemoryRoleAttributeStore keeps role assignments and attribute bags
// in-memory. It is the seedable backend used by config seeding and tests.
type MemoryRoleAttributeStore struct {
	mu          sync.RWMutex
	assignments map[string][]permissions.RoleAssignment
	attributes  map[string]*permissions.UserAttributes
}

func NewMemoryRoleAttributeStore() *MemoryRoleAttributeStore {
	return &MemoryRoleAttributeStore{
		assignments: make(map[string][]permissions.RoleAssignment),
		attributes:  make(map[string]*permissions.UserAttributes),
	}
}

func (s *MemoryRoleAttributeStore) GetRoleAssignments(ctx context.Context, userID string) ([]permissions.RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]permissions.RoleAssignment(nil), s.assignments[userID]...), nil
}

// GetUserAttributes returns a default record when none is stored; absence is
// not an error.
func (s *MemoryRoleAttributeStore) GetUserAttributes(ctx context.Context, userID string) (*permissions.UserAttributes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if attrs, ok := s.attributes[userID]; ok {
		return attrs.Clone(), nil
	}
	return permissions.NewUserAttributes(userID), nil
}

func (s *MemoryRoleAttributeStore) PutRoleAssignment(ctx context.Context, a permissions.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assignments[a.UserID] {
		if existing.Role == a.Role && scopeEqual(existing.Scope, a.Scope) {
			return nil
		}
	}
	s.assignments[a.UserID] = append(s.assignments[a.UserID], a)
	return nil
}

// RevokeRole deletes every assignment of the role for the user. Assignments
// are never mutated in place: revoke deletes, re-grant inserts.
func (s *MemoryRoleAttributeStore) RevokeRole(ctx context.Context, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.assignments[userID][:0]
	for _, a := range s.assignments[userID] {
		if a.Role != role {
			kept = append(kept, a)
		}
	}
	s.assignments[userID] = kept
	return nil
}

func (s *MemoryRoleAttributeStore) PutUserAttributes(ctx context.Context, attrs *permissions.UserAttributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attributes[attrs.UserID] = attrs.Clone()
	return nil
}

func scopeEqual(a, b *permissions.TenantScope) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// MemoryPolicyStore keeps policies and their role bindings in-memory.
type MemoryPolicyStore struct {
	mu       sync.RWMutex
	policies map[string]*permissions.Policy
	// role -> policyID -> active
	bindings map[string]map[string]bool
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{
		policies: make(map[string]*permissions.Policy),
		bindings: make(map[string]map[string]bool),
	}
}

// GetPolicies selects active policies bound to any of the roles whose
// feature and action match exactly. Results are deduplicated (the same
// policy may be bound to several of the user's roles) and ordered by ID.
func (s *MemoryPolicyStore) GetPolicies(ctx context.Context, roles []string, feature, action string) ([]*permissions.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	out := make([]*permissions.Policy, 0)
	for _, role := range roles {
		for policyID, active := range s.bindings[role] {
			if !active || seen[policyID] {
				continue
			}
			p, ok := s.policies[policyID]
			if !ok || p.Feature != feature || p.Action != action {
				continue
			}
			seen[policyID] = true
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryPolicyStore) PutPolicy(ctx context.Context, p *permissions.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = p.Clone()
	return nil
}

func (s *MemoryPolicyStore) DeletePolicy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, id)
	return nil
}

func (s *MemoryPolicyStore) AssignPolicyRole(ctx context.Context, a permissions.PolicyRoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bindings[a.Role] == nil {
		s.bindings[a.Role] = make(map[string]bool)
	}
	s.bindings[a.Role][a.PolicyID] = a.Active
	return nil
}

// MemoryAuditStore keeps decision audit entries in-memory.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*permissions.AuditEntry
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{entries: make([]*permissions.AuditEntry, 0)}
}

func (s *MemoryAuditStore) LogDecision(ctx context.Context, entry *permissions.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryAuditStore) GetAccessLog(ctx context.Context, filter permissions.AuditFilter) ([]*permissions.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*permissions.AuditEntry, 0)
	for _, entry := range s.entries {
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		if filter.Feature != "" && entry.Feature != filter.Feature {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if !filter.StartTime.IsZero() && entry.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && entry.Timestamp.After(filter.EndTime) {
			continue
		}
		result = append(result, entry)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}
