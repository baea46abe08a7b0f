package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lumenwork/permissions"
	"github.com/oarkflow/squealx"
)

// SQLAuditStore writes decision audit entries to the audit_log table.
type SQLAuditStore struct {
	db  *squealx.DB
	seq atomic.Int64
}

func NewSQLAuditStore(db *squealx.DB) *SQLAuditStore {
	return &SQLAuditStore{db: db}
}

func (s *SQLAuditStore) LogDecision(ctx context.Context, entry *permissions.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("audit-%d-%d", time.Now().UnixNano(), s.seq.Add(1))
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	matched, err := json.Marshal(entry.MatchedPolicies)
	if err != nil {
		return fmt.Errorf("encode matched policies: %w", err)
	}
	q := `INSERT INTO audit_log(id, logged_at, user_id, feature, action, resource_id, resource_type, allowed, reason, matched_policies)
		VALUES(:id, :logged_at, :user_id, :feature, :action, :resource_id, :resource_type, :allowed, :reason, :matched_policies)`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               entry.ID,
		"logged_at":        entry.Timestamp.UTC().Format(time.RFC3339Nano),
		"user_id":          entry.UserID,
		"feature":          entry.Feature,
		"action":           entry.Action,
		"resource_id":      entry.ResourceID,
		"resource_type":    entry.ResourceType,
		"allowed":          boolToInt(entry.Allowed),
		"reason":           string(entry.Reason),
		"matched_policies": string(matched),
	})
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *SQLAuditStore) GetAccessLog(ctx context.Context, filter permissions.AuditFilter) ([]*permissions.AuditEntry, error) {
	clauses := make([]string, 0, 5)
	args := map[string]any{}
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = :user_id")
		args["user_id"] = filter.UserID
	}
	if filter.Feature != "" {
		clauses = append(clauses, "feature = :feature")
		args["feature"] = filter.Feature
	}
	if filter.Action != "" {
		clauses = append(clauses, "action = :action")
		args["action"] = filter.Action
	}
	if !filter.StartTime.IsZero() {
		clauses = append(clauses, "logged_at >= :start_time")
		args["start_time"] = filter.StartTime.UTC().Format(time.RFC3339Nano)
	}
	if !filter.EndTime.IsZero() {
		clauses = append(clauses, "logged_at <= :end_time")
		args["end_time"] = filter.EndTime.UTC().Format(time.RFC3339Nano)
	}
	q := `SELECT id, logged_at, user_id, feature, action, resource_id, resource_type, allowed, reason, matched_policies FROM audit_log`
	if len(clauses) > 0 {
		q += " WHERE " + strings.Join(clauses, " AND ")
	}
	q += " ORDER BY logged_at ASC"
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	r, err := s.db.NamedQueryContext(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer r.Close()
	out := make([]*permissions.AuditEntry, 0)
	for r.Next() {
		var loggedAt interface{}
		var allowed int
		var reason, matched string
		e := &permissions.AuditEntry{}
		if err := r.Scan(&e.ID, &loggedAt, &e.UserID, &e.Feature, &e.Action, &e.ResourceID, &e.ResourceType, &allowed, &reason, &matched); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Timestamp = scanTime(loggedAt)
		e.Allowed = allowed != 0
		e.Reason = permissions.Reason(reason)
		if matched != "" && matched != "null" {
			if err := json.Unmarshal([]byte(matched), &e.MatchedPolicies); err != nil {
				return nil, fmt.Errorf("decode matched policies: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, nil
}
