package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumenwork/permissions"
	"github.com/oarkflow/squealx"
)

// SQLRoleAttributeStore persists role assignments and attribute bags in SQL
// (squealx). Set-valued and custom attributes are stored as JSON columns.
type SQLRoleAttributeStore struct {
	db *squealx.DB
}

func NewSQLRoleAttributeStore(db *squealx.DB) *SQLRoleAttributeStore {
	return &SQLRoleAttributeStore{db: db}
}

func (s *SQLRoleAttributeStore) GetRoleAssignments(ctx context.Context, userID string) ([]permissions.RoleAssignment, error) {
	q := `SELECT role, company_id, client_id FROM role_assignments WHERE user_id = :user_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("query role assignments: %w", err)
	}
	defer r.Close()
	out := make([]permissions.RoleAssignment, 0)
	for r.Next() {
		var role, companyID, clientID string
		if err := r.Scan(&role, &companyID, &clientID); err != nil {
			return nil, fmt.Errorf("scan role assignment: %w", err)
		}
		a := permissions.RoleAssignment{UserID: userID, Role: role}
		if companyID != "" || clientID != "" {
			a.Scope = &permissions.TenantScope{CompanyID: companyID, ClientID: clientID}
		}
		out = append(out, a)
	}
	return out, nil
}

// GetUserAttributes returns a default record when no row exists; only actual
// store faults surface as errors.
func (s *SQLRoleAttributeStore) GetUserAttributes(ctx context.Context, userID string) (*permissions.UserAttributes, error) {
	q := `SELECT job_title, department, is_manager, certifications_json, assigned_modules_json, direct_reports_json, custom_json FROM user_attributes WHERE user_id = :user_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("query user attributes: %w", err)
	}
	defer r.Close()
	if !r.Next() {
		return permissions.NewUserAttributes(userID), nil
	}
	var jobTitle, department, certsJSON, modulesJSON, reportsJSON, customJSON string
	var isManagerInt int
	if err := r.Scan(&jobTitle, &department, &isManagerInt, &certsJSON, &modulesJSON, &reportsJSON, &customJSON); err != nil {
		return nil, fmt.Errorf("scan user attributes: %w", err)
	}
	attrs := &permissions.UserAttributes{
		UserID:     userID,
		JobTitle:   jobTitle,
		Department: department,
		IsManager:  isManagerInt != 0,
	}
	_ = json.Unmarshal([]byte(certsJSON), &attrs.Certifications)
	_ = json.Unmarshal([]byte(modulesJSON), &attrs.AssignedModules)
	_ = json.Unmarshal([]byte(reportsJSON), &attrs.DirectReports)
	_ = json.Unmarshal([]byte(customJSON), &attrs.Custom)
	return attrs, nil
}

func (s *SQLRoleAttributeStore) PutRoleAssignment(ctx context.Context, a permissions.RoleAssignment) error {
	companyID, clientID := "", ""
	if a.Scope != nil {
		companyID, clientID = a.Scope.CompanyID, a.Scope.ClientID
	}
	q := `INSERT OR IGNORE INTO role_assignments(user_id, role, company_id, client_id) VALUES(:user_id, :role, :company_id, :client_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"user_id":    a.UserID,
		"role":       a.Role,
		"company_id": companyID,
		"client_id":  clientID,
	})
	return err
}

func (s *SQLRoleAttributeStore) RevokeRole(ctx context.Context, userID, role string) error {
	q := `DELETE FROM role_assignments WHERE user_id = :user_id AND role = :role`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "role": role})
	return err
}

func (s *SQLRoleAttributeStore) PutUserAttributes(ctx context.Context, attrs *permissions.UserAttributes) error {
	certs, _ := json.Marshal(attrs.Certifications)
	modules, _ := json.Marshal(attrs.AssignedModules)
	reports, _ := json.Marshal(attrs.DirectReports)
	custom, _ := json.Marshal(attrs.Custom)
	q := `INSERT INTO user_attributes(user_id, job_title, department, is_manager, certifications_json, assigned_modules_json, direct_reports_json, custom_json)
		VALUES(:user_id, :job_title, :department, :is_manager, :certifications_json, :assigned_modules_json, :direct_reports_json, :custom_json)
		ON CONFLICT(user_id) DO UPDATE SET job_title=excluded.job_title, department=excluded.department, is_manager=excluded.is_manager,
		certifications_json=excluded.certifications_json, assigned_modules_json=excluded.assigned_modules_json,
		direct_reports_json=excluded.direct_reports_json, custom_json=excluded.custom_json`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"user_id":               attrs.UserID,
		"job_title":             attrs.JobTitle,
		"department":            attrs.Department,
		"is_manager":            boolToInt(attrs.IsManager),
		"certifications_json":   string(certs),
		"assigned_modules_json": string(modules),
		"direct_reports_json":   string(reports),
		"custom_json":           string(custom),
	})
	return err
}
