package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumenwork/permissions"
	"github.com/oarkflow/squealx"
)

// SQLPolicyStore persists policies, their ordered conditions and their role
// bindings in SQL (squealx).
type SQLPolicyStore struct {
	db *squealx.DB
}

func NewSQLPolicyStore(db *squealx.DB) *SQLPolicyStore {
	return &SQLPolicyStore{db: db}
}

// GetPolicies selects active policies bound to any of the roles with an
// exact feature+action match, deduplicated across roles and ordered by ID.
func (s *SQLPolicyStore) GetPolicies(ctx context.Context, roles []string, feature, action string) ([]*permissions.Policy, error) {
	seen := make(map[string]bool)
	out := make([]*permissions.Policy, 0)
	q := `SELECT p.id FROM policies p
		JOIN policy_role_assignments pra ON pra.policy_id = p.id
		WHERE pra.role = :role AND pra.is_active = 1 AND p.feature = :feature AND p.action = :action
		ORDER BY p.id`
	for _, role := range roles {
		r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"role": role, "feature": feature, "action": action})
		if err != nil {
			return nil, fmt.Errorf("query policies for role %s: %w", role, err)
		}
		ids := make([]string, 0)
		for r.Next() {
			var id string
			if err := r.Scan(&id); err != nil {
				r.Close()
				return nil, fmt.Errorf("scan policy id: %w", err)
			}
			ids = append(ids, id)
		}
		r.Close()
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			p, err := s.GetPolicy(ctx, id)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *SQLPolicyStore) GetPolicy(ctx context.Context, id string) (*permissions.Policy, error) {
	q := `SELECT id, name, feature, action FROM policies WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("query policy: %w", err)
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("policy not found: %s", id)
	}
	p := &permissions.Policy{}
	if err := r.Scan(&p.ID, &p.Name, &p.Feature, &p.Action); err != nil {
		return nil, fmt.Errorf("scan policy: %w", err)
	}
	conds, err := s.loadConditions(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Conditions = conds
	return p, nil
}

func (s *SQLPolicyStore) loadConditions(ctx context.Context, policyID string) ([]permissions.PolicyCondition, error) {
	q := `SELECT attribute, operator, value_json, condition_type FROM policy_conditions WHERE policy_id = :policy_id ORDER BY position ASC`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"policy_id": policyID})
	if err != nil {
		return nil, fmt.Errorf("query conditions for %s: %w", policyID, err)
	}
	defer r.Close()
	out := make([]permissions.PolicyCondition, 0)
	for r.Next() {
		var attribute, operator, valueJSON, conditionType string
		if err := r.Scan(&attribute, &operator, &valueJSON, &conditionType); err != nil {
			return nil, fmt.Errorf("scan condition: %w", err)
		}
		cond := permissions.PolicyCondition{
			Attribute:     attribute,
			Operator:      permissions.Operator(operator),
			ConditionType: conditionType,
		}
		if err := json.Unmarshal([]byte(valueJSON), &cond.Value); err != nil {
			return nil, fmt.Errorf("decode condition value for %s: %w", policyID, err)
		}
		out = append(out, cond)
	}
	return out, nil
}

// PutPolicy upserts the policy row and rewrites its condition list.
func (s *SQLPolicyStore) PutPolicy(ctx context.Context, p *permissions.Policy) error {
	q := `INSERT INTO policies(id, name, feature, action) VALUES(:id, :name, :feature, :action)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, feature=excluded.feature, action=excluded.action`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id": p.ID, "name": p.Name, "feature": p.Feature, "action": p.Action,
	})
	if err != nil {
		return fmt.Errorf("upsert policy %s: %w", p.ID, err)
	}
	if _, err := s.db.NamedExecContext(ctx, `DELETE FROM policy_conditions WHERE policy_id = :policy_id`, map[string]any{"policy_id": p.ID}); err != nil {
		return fmt.Errorf("clear conditions for %s: %w", p.ID, err)
	}
	for i, cond := range p.Conditions {
		valueJSON, err := json.Marshal(cond.Value)
		if err != nil {
			return fmt.Errorf("encode condition value for %s: %w", p.ID, err)
		}
		cq := `INSERT INTO policy_conditions(policy_id, position, attribute, operator, value_json, condition_type) VALUES(:policy_id, :position, :attribute, :operator, :value_json, :condition_type)`
		_, err = s.db.NamedExecContext(ctx, cq, map[string]any{
			"policy_id":      p.ID,
			"position":       i,
			"attribute":      cond.Attribute,
			"operator":       string(cond.Operator),
			"value_json":     string(valueJSON),
			"condition_type": cond.ConditionType,
		})
		if err != nil {
			return fmt.Errorf("insert condition %d for %s: %w", i, p.ID, err)
		}
	}
	return nil
}

func (s *SQLPolicyStore) DeletePolicy(ctx context.Context, id string) error {
	if _, err := s.db.NamedExecContext(ctx, `DELETE FROM policy_conditions WHERE policy_id = :policy_id`, map[string]any{"policy_id": id}); err != nil {
		return err
	}
	if _, err := s.db.NamedExecContext(ctx, `DELETE FROM policy_role_assignments WHERE policy_id = :policy_id`, map[string]any{"policy_id": id}); err != nil {
		return err
	}
	_, err := s.db.NamedExecContext(ctx, `DELETE FROM policies WHERE id = :id`, map[string]any{"id": id})
	return err
}

func (s *SQLPolicyStore) AssignPolicyRole(ctx context.Context, a permissions.PolicyRoleAssignment) error {
	q := `INSERT INTO policy_role_assignments(role, policy_id, is_active) VALUES(:role, :policy_id, :is_active)
		ON CONFLICT(role, policy_id) DO UPDATE SET is_active=excluded.is_active`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"role": a.Role, "policy_id": a.PolicyID, "is_active": boolToInt(a.Active),
	})
	return err
}
