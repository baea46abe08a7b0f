package permissions_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumenwork/permissions"
	"github.com/lumenwork/permissions/logger"
	"github.com/lumenwork/permissions/stores"
)

type fixture struct {
	engine *permissions.Engine
	roles  *stores.MemoryRoleAttributeStore
	pols   *stores.MemoryPolicyStore
	audit  *stores.MemoryAuditStore
}

func newTestEngine(t *testing.T, opts ...permissions.EngineOption) *fixture {
	t.Helper()
	f := &fixture{
		roles: stores.NewMemoryRoleAttributeStore(),
		pols:  stores.NewMemoryPolicyStore(),
		audit: stores.NewMemoryAuditStore(),
	}
	opts = append([]permissions.EngineOption{
		permissions.WithLogger(logger.NewNullLogger()),
		permissions.WithAuditStore(f.audit),
	}, opts...)
	eng, err := permissions.NewEngine(f.roles, f.pols, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	f.engine = eng
	return f
}

func (f *fixture) grantRole(t *testing.T, userID, role string) {
	t.Helper()
	err := f.roles.PutRoleAssignment(context.Background(), permissions.RoleAssignment{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("grant role: %v", err)
	}
}

func (f *fixture) putPolicy(t *testing.T, p *permissions.Policy, roles ...string) {
	t.Helper()
	ctx := context.Background()
	if err := f.pols.PutPolicy(ctx, p); err != nil {
		t.Fatalf("put policy: %v", err)
	}
	for _, role := range roles {
		err := f.pols.AssignPolicyRole(ctx, permissions.PolicyRoleAssignment{Role: role, PolicyID: p.ID, Active: true})
		if err != nil {
			t.Fatalf("assign policy role: %v", err)
		}
	}
}

func TestUnconditionalPolicyAllows(t *testing.T) {
	f := newTestEngine(t)
	f.grantRole(t, "alice", "accountant")
	f.putPolicy(t, &permissions.Policy{ID: "p1", Name: "payroll-view", Feature: "payroll", Action: "view"}, "accountant")

	dec := f.engine.CanAccess(context.Background(), "alice", "payroll", "view", nil)
	if !dec.Allowed || dec.Reason != permissions.ReasonPolicyMatch {
		t.Fatalf("expected policy_match allow, got %+v", dec)
	}
	if len(dec.MatchedPolicies) != 1 || dec.MatchedPolicies[0] != "payroll-view" {
		t.Fatalf("unexpected matched policies %v", dec.MatchedPolicies)
	}

	// Wrong action is an exact-match miss, not a partial one.
	dec = f.engine.CanAccess(context.Background(), "alice", "payroll", "edit", nil)
	if dec.Allowed || dec.Reason != permissions.ReasonNoApplicablePolicies {
		t.Fatalf("expected no_applicable_policies, got %+v", dec)
	}
}

func TestNoRolesDenies(t *testing.T) {
	f := newTestEngine(t)
	dec := f.engine.CanAccess(context.Background(), "ghost", "payroll", "view", nil)
	if dec.Allowed || dec.Reason != permissions.ReasonNoRolesAssigned {
		t.Fatalf("expected no_roles_assigned deny, got %+v", dec)
	}
}

func TestConditionsANDWithinPolicy(t *testing.T) {
	f := newTestEngine(t)
	f.grantRole(t, "bob", "manager")
	f.putPolicy(t, &permissions.Policy{
		ID: "p1", Name: "hr-managers", Feature: "reports", Action: "view",
		Conditions: []permissions.PolicyCondition{
			{Attribute: permissions.AttrDepartment, Operator: permissions.OpEquals, Value: permissions.String("HR")},
			{Attribute: permissions.AttrIsManager, Operator: permissions.OpEquals, Value: permissions.Bool(true)},
		},
	}, "manager")

	ctx := context.Background()
	attrs := &permissions.UserAttributes{UserID: "bob", Department: "HR", IsManager: false}
	if err := f.roles.PutUserAttributes(ctx, attrs); err != nil {
		t.Fatalf("put attributes: %v", err)
	}

	dec := f.engine.CanAccess(ctx, "bob", "reports", "view", nil)
	if dec.Allowed || dec.Reason != permissions.ReasonNoPolicyMatch {
		t.Fatalf("expected no_policy_match with one failing condition, got %+v", dec)
	}
	if len(dec.FailedConditions) != 1 || dec.FailedConditions[0] != "is_manager equals true" {
		t.Fatalf("unexpected failed conditions %v", dec.FailedConditions)
	}

	attrs.IsManager = true
	if err := f.roles.PutUserAttributes(ctx, attrs); err != nil {
		t.Fatalf("put attributes: %v", err)
	}
	f.engine.ClearCache()

	dec = f.engine.CanAccess(ctx, "bob", "reports", "view", nil)
	if !dec.Allowed || dec.Reason != permissions.ReasonPolicyMatch {
		t.Fatalf("expected allow after attribute change, got %+v", dec)
	}
}

func TestPoliciesORAcrossSet(t *testing.T) {
	f := newTestEngine(t)
	f.grantRole(t, "carol", "analyst")
	f.putPolicy(t, &permissions.Policy{
		ID: "p1", Name: "finance-only", Feature: "dash", Action: "view",
		Conditions: []permissions.PolicyCondition{
			{Attribute: permissions.AttrDepartment, Operator: permissions.OpEquals, Value: permissions.String("Finance")},
		},
	}, "analyst")
	f.putPolicy(t, &permissions.Policy{
		ID: "p2", Name: "any-manager", Feature: "dash", Action: "view",
		Conditions: []permissions.PolicyCondition{
			{Attribute: permissions.AttrIsManager, Operator: permissions.OpEquals, Value: permissions.Bool(true)},
		},
	}, "analyst")

	ctx := context.Background()
	err := f.roles.PutUserAttributes(ctx, &permissions.UserAttributes{UserID: "carol", Department: "Sales", IsManager: true})
	if err != nil {
		t.Fatalf("put attributes: %v", err)
	}

	dec := f.engine.CanAccess(ctx, "carol", "dash", "view", nil)
	if !dec.Allowed || dec.Reason != permissions.ReasonPolicyMatch {
		t.Fatalf("expected allow via second policy, got %+v", dec)
	}
	if len(dec.MatchedPolicies) != 1 || dec.MatchedPolicies[0] != "any-manager" {
		t.Fatalf("expected exactly the satisfied policy, got %v", dec.MatchedPolicies)
	}
	// The grant does not report the failing sibling's conditions.
	if len(dec.FailedConditions) != 0 {
		t.Fatalf("allow must not carry failed conditions, got %v", dec.FailedConditions)
	}
}

func TestInactiveBindingIgnored(t *testing.T) {
	f := newTestEngine(t)
	f.grantRole(t, "dave", "viewer")
	ctx := context.Background()
	p := &permissions.Policy{ID: "p1", Name: "open-door", Feature: "wiki", Action: "view"}
	if err := f.pols.PutPolicy(ctx, p); err != nil {
		t.Fatalf("put policy: %v", err)
	}
	err := f.pols.AssignPolicyRole(ctx, permissions.PolicyRoleAssignment{Role: "viewer", PolicyID: "p1", Active: false})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	dec := f.engine.CanAccess(ctx, "dave", "wiki", "view", nil)
	if dec.Allowed || dec.Reason != permissions.ReasonNoApplicablePolicies {
		t.Fatalf("inactive binding must not select the policy, got %+v", dec)
	}
}

func TestSuperAdminBypassIsAudited(t *testing.T) {
	f := newTestEngine(t)
	// The bypass wins even alongside ordinary roles.
	f.grantRole(t, "root", "viewer")
	f.grantRole(t, "root", "super_admin")

	dec := f.engine.CanAccess(context.Background(), "root", "anything", "delete", nil)
	if !dec.Allowed || dec.Reason != permissions.ReasonSuperAdminAccess {
		t.Fatalf("expected super_admin_access allow, got %+v", dec)
	}

	entry := waitForAudit(t, f.audit, "root")
	if !entry.Allowed || entry.Reason != permissions.ReasonSuperAdminAccess {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
}

func TestCustomSuperAdminRole(t *testing.T) {
	f := newTestEngine(t, permissions.WithSuperAdminRole("owner"))
	f.grantRole(t, "eve", "super_admin")
	f.grantRole(t, "frank", "owner")

	if dec := f.engine.CanAccess(context.Background(), "eve", "x", "view", nil); dec.Allowed {
		t.Fatalf("default role name must lose its power when overridden, got %+v", dec)
	}
	if dec := f.engine.CanAccess(context.Background(), "frank", "x", "view", nil); !dec.Allowed || dec.Reason != permissions.ReasonSuperAdminAccess {
		t.Fatalf("expected bypass for configured role, got %+v", dec)
	}
}

func TestDefaultActionIsView(t *testing.T) {
	f := newTestEngine(t)
	f.grantRole(t, "alice", "viewer")
	f.putPolicy(t, &permissions.Policy{ID: "p1", Name: "view-policy", Feature: "wiki", Action: "view"}, "viewer")

	dec := f.engine.CanAccess(context.Background(), "alice", "wiki", "", nil)
	if !dec.Allowed {
		t.Fatalf("empty action must default to view, got %+v", dec)
	}
}

// countingRoleStore wraps a store to count evaluation round trips.
type countingRoleStore struct {
	inner permissions.RoleAttributeStore
	calls int
}

func (c *countingRoleStore) GetRoleAssignments(ctx context.Context, userID string) ([]permissions.RoleAssignment, error) {
	c.calls++
	return c.inner.GetRoleAssignments(ctx, userID)
}

func (c *countingRoleStore) GetUserAttributes(ctx context.Context, userID string) (*permissions.UserAttributes, error) {
	return c.inner.GetUserAttributes(ctx, userID)
}

func TestDecisionCaching(t *testing.T) {
	roles := stores.NewMemoryRoleAttributeStore()
	pols := stores.NewMemoryPolicyStore()
	counting := &countingRoleStore{inner: roles}
	eng, err := permissions.NewEngine(counting, pols, permissions.WithLogger(logger.NewNullLogger()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx := context.Background()
	if err := roles.PutRoleAssignment(ctx, permissions.RoleAssignment{UserID: "alice", Role: "viewer"}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := pols.PutPolicy(ctx, &permissions.Policy{ID: "p1", Name: "view", Feature: "wiki", Action: "view"}); err != nil {
		t.Fatalf("put policy: %v", err)
	}
	if err := pols.AssignPolicyRole(ctx, permissions.PolicyRoleAssignment{Role: "viewer", PolicyID: "p1", Active: true}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	first := eng.CanAccess(ctx, "alice", "wiki", "view", nil)
	if !first.Allowed || first.Reason != permissions.ReasonPolicyMatch {
		t.Fatalf("expected evaluated allow, got %+v", first)
	}
	second := eng.CanAccess(ctx, "alice", "wiki", "view", nil)
	if !second.Allowed || second.Reason != permissions.ReasonCachedResult {
		t.Fatalf("expected cached allow, got %+v", second)
	}
	if counting.calls != 1 {
		t.Fatalf("cached call must not hit the store, calls=%d", counting.calls)
	}

	// Different context means a different cache key.
	eng.CanAccess(ctx, "alice", "wiki", "view", &permissions.AccessContext{CompanyID: "acme"})
	if counting.calls != 2 {
		t.Fatalf("distinct context must re-evaluate, calls=%d", counting.calls)
	}

	eng.ClearCache()
	third := eng.CanAccess(ctx, "alice", "wiki", "view", nil)
	if third.Reason != permissions.ReasonPolicyMatch {
		t.Fatalf("expected re-evaluation after ClearCache, got %+v", third)
	}
	if counting.calls != 3 {
		t.Fatalf("ClearCache must invalidate, calls=%d", counting.calls)
	}
}

func TestCacheTTLExpiryReevaluates(t *testing.T) {
	roles := stores.NewMemoryRoleAttributeStore()
	pols := stores.NewMemoryPolicyStore()
	counting := &countingRoleStore{inner: roles}
	eng, err := permissions.NewEngine(counting, pols,
		permissions.WithLogger(logger.NewNullLogger()),
		permissions.WithCacheTTL(20*time.Millisecond))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx := context.Background()
	if err := roles.PutRoleAssignment(ctx, permissions.RoleAssignment{UserID: "alice", Role: "viewer"}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	eng.CanAccess(ctx, "alice", "wiki", "view", nil)
	eng.CanAccess(ctx, "alice", "wiki", "view", nil)
	if counting.calls != 1 {
		t.Fatalf("expected second call cached, calls=%d", counting.calls)
	}

	time.Sleep(30 * time.Millisecond)
	dec := eng.CanAccess(ctx, "alice", "wiki", "view", nil)
	if dec.Reason == permissions.ReasonCachedResult {
		t.Fatalf("expected re-evaluation after ttl, got %+v", dec)
	}
	if counting.calls != 2 {
		t.Fatalf("expired entry must re-invoke stores, calls=%d", counting.calls)
	}
}

// reversingPolicyStore returns policies in reverse order.
type reversingPolicyStore struct {
	inner permissions.PolicyStore
}

func (r reversingPolicyStore) GetPolicies(ctx context.Context, roles []string, feature, action string) ([]*permissions.Policy, error) {
	out, err := r.inner.GetPolicies(ctx, roles, feature, action)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func TestPolicyOrderDoesNotChangeOutcome(t *testing.T) {
	roles := stores.NewMemoryRoleAttributeStore()
	pols := stores.NewMemoryPolicyStore()
	ctx := context.Background()
	if err := roles.PutRoleAssignment(ctx, permissions.RoleAssignment{UserID: "carol", Role: "analyst"}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	err := roles.PutUserAttributes(ctx, &permissions.UserAttributes{UserID: "carol", IsManager: true})
	if err != nil {
		t.Fatalf("attrs: %v", err)
	}
	put := func(p *permissions.Policy) {
		if err := pols.PutPolicy(ctx, p); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := pols.AssignPolicyRole(ctx, permissions.PolicyRoleAssignment{Role: "analyst", PolicyID: p.ID, Active: true}); err != nil {
			t.Fatalf("bind: %v", err)
		}
	}
	put(&permissions.Policy{
		ID: "p1", Name: "finance-only", Feature: "dash", Action: "view",
		Conditions: []permissions.PolicyCondition{
			{Attribute: permissions.AttrDepartment, Operator: permissions.OpEquals, Value: permissions.String("Finance")},
		},
	})
	put(&permissions.Policy{
		ID: "p2", Name: "any-manager", Feature: "dash", Action: "view",
		Conditions: []permissions.PolicyCondition{
			{Attribute: permissions.AttrIsManager, Operator: permissions.OpEquals, Value: permissions.Bool(true)},
		},
	})

	for _, store := range []permissions.PolicyStore{pols, reversingPolicyStore{inner: pols}} {
		eng, err := permissions.NewEngine(roles, store, permissions.WithLogger(logger.NewNullLogger()))
		if err != nil {
			t.Fatalf("new engine: %v", err)
		}
		dec := eng.CanAccess(ctx, "carol", "dash", "view", nil)
		if !dec.Allowed || len(dec.MatchedPolicies) != 1 || dec.MatchedPolicies[0] != "any-manager" {
			t.Fatalf("outcome changed with policy order: %+v", dec)
		}
	}
}

func TestMissingAttributeRecordDeniesGracefully(t *testing.T) {
	f := newTestEngine(t)
	f.grantRole(t, "norecord", "manager")
	f.putPolicy(t, &permissions.Policy{
		ID: "p1", Name: "managers-only", Feature: "reports", Action: "view",
		Conditions: []permissions.PolicyCondition{
			{Attribute: permissions.AttrIsManager, Operator: permissions.OpEquals, Value: permissions.Bool(true)},
		},
	}, "manager")

	// No attribute record stored: is_manager resolves to its zero value.
	dec := f.engine.CanAccess(context.Background(), "norecord", "reports", "view", nil)
	if dec.Allowed || dec.Reason != permissions.ReasonNoPolicyMatch {
		t.Fatalf("expected graceful deny, got %+v", dec)
	}
}

func TestNegativeDecisionsAreCached(t *testing.T) {
	f := newTestEngine(t)
	ctx := context.Background()

	dec := f.engine.CanAccess(ctx, "ghost", "wiki", "view", nil)
	if dec.Allowed || dec.Reason != permissions.ReasonNoRolesAssigned {
		t.Fatalf("expected deny, got %+v", dec)
	}
	dec = f.engine.CanAccess(ctx, "ghost", "wiki", "view", nil)
	if dec.Allowed || dec.Reason != permissions.ReasonCachedResult {
		t.Fatalf("expected cached deny, got %+v", dec)
	}
}

// failingStore simulates an adapter outage.
type failingStore struct{}

func (failingStore) GetRoleAssignments(ctx context.Context, userID string) ([]permissions.RoleAssignment, error) {
	return nil, errors.New("backend unavailable")
}

func (failingStore) GetUserAttributes(ctx context.Context, userID string) (*permissions.UserAttributes, error) {
	return nil, errors.New("backend unavailable")
}

func TestStoreFaultFailsClosed(t *testing.T) {
	eng, err := permissions.NewEngine(failingStore{}, stores.NewMemoryPolicyStore(),
		permissions.WithLogger(logger.NewNullLogger()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx := context.Background()
	dec := eng.CanAccess(ctx, "alice", "wiki", "view", nil)
	if dec.Allowed || dec.Reason != permissions.ReasonEvaluationError {
		t.Fatalf("expected fail-closed deny, got %+v", dec)
	}
	// Error results are never cached, so the outage is retried.
	dec = eng.CanAccess(ctx, "alice", "wiki", "view", nil)
	if dec.Reason != permissions.ReasonEvaluationError {
		t.Fatalf("error decision must not be served from cache, got %+v", dec)
	}
}

// panickyPolicyStore exercises the recover path.
type panickyPolicyStore struct{}

func (panickyPolicyStore) GetPolicies(ctx context.Context, roles []string, feature, action string) ([]*permissions.Policy, error) {
	panic("corrupt policy row")
}

func TestPanicBecomesEvaluationError(t *testing.T) {
	roles := stores.NewMemoryRoleAttributeStore()
	ctx := context.Background()
	if err := roles.PutRoleAssignment(ctx, permissions.RoleAssignment{UserID: "alice", Role: "viewer"}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	eng, err := permissions.NewEngine(roles, panickyPolicyStore{}, permissions.WithLogger(logger.NewNullLogger()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	dec := eng.CanAccess(ctx, "alice", "wiki", "view", nil)
	if dec.Allowed || dec.Reason != permissions.ReasonEvaluationError {
		t.Fatalf("expected recovered deny, got %+v", dec)
	}
}

func TestCancelledContextFailsClosed(t *testing.T) {
	f := newTestEngine(t)
	f.grantRole(t, "alice", "viewer")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dec := f.engine.CanAccess(ctx, "alice", "wiki", "view", nil)
	if dec.Allowed || dec.Reason != permissions.ReasonEvaluationError {
		t.Fatalf("expected deny on cancelled context, got %+v", dec)
	}
}

func TestCanAccessBatch(t *testing.T) {
	f := newTestEngine(t)
	f.grantRole(t, "alice", "viewer")
	f.putPolicy(t, &permissions.Policy{ID: "p1", Name: "wiki-view", Feature: "wiki", Action: "view"}, "viewer")

	ctx := context.Background()
	decs, err := f.engine.CanAccessBatch(ctx, []permissions.AccessRequest{
		{UserID: "alice", Feature: "wiki", Action: "view"},
		{UserID: "alice", Feature: "payroll", Action: "view"},
		{UserID: "nobody", Feature: "wiki", Action: "view"},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(decs) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(decs))
	}
	if !decs[0].Allowed || decs[1].Allowed || decs[2].Allowed {
		t.Fatalf("unexpected batch outcome %v %v %v", decs[0].Allowed, decs[1].Allowed, decs[2].Allowed)
	}

	if _, err := f.engine.CanAccessBatch(ctx, []permissions.AccessRequest{{UserID: "", Feature: "wiki"}}); err == nil {
		t.Fatalf("expected validation error for empty user id")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := f.engine.CanAccessBatch(cancelled, []permissions.AccessRequest{{UserID: "alice", Feature: "wiki"}}); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
}

func TestExplainTracesWithoutCaching(t *testing.T) {
	f := newTestEngine(t)
	f.grantRole(t, "alice", "viewer")
	f.putPolicy(t, &permissions.Policy{
		ID: "p1", Name: "hr-only", Feature: "wiki", Action: "view",
		Conditions: []permissions.PolicyCondition{
			{Attribute: permissions.AttrDepartment, Operator: permissions.OpEquals, Value: permissions.String("HR")},
		},
	}, "viewer")

	ctx := context.Background()
	dec := f.engine.Explain(ctx, "alice", "wiki", "view", nil)
	if dec.Allowed {
		t.Fatalf("expected deny, got %+v", dec)
	}
	if len(dec.Trace) == 0 {
		t.Fatalf("expected a trace")
	}

	// Explain must not have primed the cache.
	dec2 := f.engine.CanAccess(ctx, "alice", "wiki", "view", nil)
	if dec2.Reason == permissions.ReasonCachedResult {
		t.Fatalf("explain must not write to the cache")
	}
}

func TestRoleHelpers(t *testing.T) {
	f := newTestEngine(t)
	f.grantRole(t, "alice", "viewer")
	f.grantRole(t, "alice", "editor")
	ctx := context.Background()
	err := f.roles.PutUserAttributes(ctx, &permissions.UserAttributes{
		UserID:          "alice",
		AssignedModules: []string{"payroll", "billing"},
	})
	if err != nil {
		t.Fatalf("put attributes: %v", err)
	}

	if ok, err := f.engine.HasRole(ctx, "alice", "editor"); err != nil || !ok {
		t.Fatalf("HasRole editor = %v, %v", ok, err)
	}
	if ok, err := f.engine.HasRole(ctx, "alice", "admin"); err != nil || ok {
		t.Fatalf("HasRole admin = %v, %v", ok, err)
	}
	if ok, err := f.engine.HasAnyRole(ctx, "alice", []string{"admin", "viewer"}); err != nil || !ok {
		t.Fatalf("HasAnyRole = %v, %v", ok, err)
	}
	if ok, err := f.engine.HasAnyRole(ctx, "alice", []string{"admin"}); err != nil || ok {
		t.Fatalf("HasAnyRole admin = %v, %v", ok, err)
	}

	modules, err := f.engine.UserModules(ctx, "alice")
	if err != nil || len(modules) != 2 {
		t.Fatalf("UserModules = %v, %v", modules, err)
	}
}

func TestAuditTrailRecordsDenies(t *testing.T) {
	f := newTestEngine(t)
	actx := &permissions.AccessContext{ResourceID: "doc-1", ResourceType: "document"}
	f.engine.CanAccess(context.Background(), "ghost", "wiki", "view", actx)

	entry := waitForAudit(t, f.audit, "ghost")
	if entry.Allowed || entry.Reason != permissions.ReasonNoRolesAssigned {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
	if entry.ResourceID != "doc-1" || entry.ResourceType != "document" {
		t.Fatalf("context not carried into audit entry: %+v", entry)
	}
}

func waitForAudit(t *testing.T, store *stores.MemoryAuditStore, userID string) *permissions.AuditEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := store.GetAccessLog(context.Background(), permissions.AuditFilter{UserID: userID})
		if err != nil {
			t.Fatalf("get access log: %v", err)
		}
		if len(entries) > 0 {
			return entries[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("audit entry for %s never arrived", userID)
	return nil
}

func TestOptionValidation(t *testing.T) {
	roles := stores.NewMemoryRoleAttributeStore()
	pols := stores.NewMemoryPolicyStore()

	if _, err := permissions.NewEngine(nil, pols); err == nil {
		t.Fatalf("expected error for nil role store")
	}
	if _, err := permissions.NewEngine(roles, nil); err == nil {
		t.Fatalf("expected error for nil policy store")
	}
	if _, err := permissions.NewEngine(roles, pols, permissions.WithCacheTTL(0)); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
	if _, err := permissions.NewEngine(roles, pols, permissions.WithCacheMaxEntries(-1)); err == nil {
		t.Fatalf("expected error for negative max entries")
	}
	if _, err := permissions.NewEngine(roles, pols, permissions.WithSuperAdminRole("")); err == nil {
		t.Fatalf("expected error for empty super admin role")
	}
}

func TestConcurrentDecisions(t *testing.T) {
	f := newTestEngine(t)
	f.grantRole(t, "alice", "viewer")
	f.putPolicy(t, &permissions.Policy{ID: "p1", Name: "wiki-view", Feature: "wiki", Action: "view"}, "viewer")

	ctx := context.Background()
	done := make(chan bool, 16)
	for g := 0; g < 16; g++ {
		go func(g int) {
			ok := true
			for i := 0; i < 50; i++ {
				dec := f.engine.CanAccess(ctx, "alice", "wiki", "view", nil)
				if !dec.Allowed {
					ok = false
				}
				if i%10 == 0 && g == 0 {
					f.engine.ClearCache()
				}
			}
			done <- ok
		}(g)
	}
	for g := 0; g < 16; g++ {
		if !<-done {
			t.Fatalf("concurrent evaluation returned a deny")
		}
	}
}
