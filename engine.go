package permissions

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenwork/permissions/logger"
)

const (
	// DefaultAction is assumed when a caller does not name one.
	DefaultAction = "view"

	// DefaultCacheTTL bounds how stale a cached decision may be. Role and
	// policy changes made elsewhere become visible within one TTL window
	// unless the caller invalidates explicitly with ClearCache.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheMaxEntries triggers the expired-entry sweep.
	DefaultCacheMaxEntries = 10000

	// DefaultSuperAdminRole is the distinguished role that bypasses all
	// policy evaluation.
	DefaultSuperAdminRole = "super_admin"

	defaultAuditBuffer = 1024
)

// Engine answers "can user U perform action A on feature F under context C".
// It is purely computational plus one cache; construct one per process with
// injected store adapters and share it by reference across request handlers.
//
// The engine has no invalidation signal of its own: after mutating roles,
// policies or attributes, callers must either call ClearCache or accept
// TTL-bounded staleness.
type Engine struct {
	roleStore   RoleAttributeStore
	policyStore PolicyStore
	auditStore  AuditStore

	cache          decisionCache
	cacheTTL       time.Duration
	cacheMax       int
	superAdminRole string
	logger         logger.Logger

	auditBuffer int
	auditCh     chan AuditEntry
}

// EngineOption configures an Engine during construction.
type EngineOption func(*Engine) error

// WithCacheTTL overrides the decision cache TTL.
func WithCacheTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) error {
		if ttl <= 0 {
			return fmt.Errorf("cache ttl must be positive, got %s", ttl)
		}
		e.cacheTTL = ttl
		return nil
	}
}

// WithCacheMaxEntries overrides the size threshold that triggers the
// expired-entry sweep.
func WithCacheMaxEntries(n int) EngineOption {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("cache max entries must be positive, got %d", n)
		}
		e.cacheMax = n
		return nil
	}
}

// WithSuperAdminRole overrides the distinguished super-admin role name.
func WithSuperAdminRole(role string) EngineOption {
	return func(e *Engine) error {
		if role == "" {
			return fmt.Errorf("super admin role must not be empty")
		}
		e.superAdminRole = role
		return nil
	}
}

// WithLogger installs a Logger on the Engine.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		e.logger = l
		return nil
	}
}

// WithAuditStore enables asynchronous decision auditing.
func WithAuditStore(s AuditStore) EngineOption {
	return func(e *Engine) error {
		e.auditStore = s
		return nil
	}
}

// WithAuditBuffer sizes the async audit channel.
func WithAuditBuffer(n int) EngineOption {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("audit buffer must be positive, got %d", n)
		}
		e.auditBuffer = n
		return nil
	}
}

// WithRistrettoCache swaps the default mutex-map decision cache for a
// ristretto-backed one.
func WithRistrettoCache(numCounters, maxCost, bufferItems int64) EngineOption {
	return func(e *Engine) error {
		c, err := newRistrettoCache(numCounters, maxCost, bufferItems, e.cacheTTL)
		if err != nil {
			return fmt.Errorf("configure ristretto cache: %w", err)
		}
		e.cache = c
		return nil
	}
}

// NewEngine constructs the decision engine with injected adapters.
func NewEngine(roleStore RoleAttributeStore, policyStore PolicyStore, opts ...EngineOption) (*Engine, error) {
	if roleStore == nil {
		return nil, fmt.Errorf("role attribute store is required")
	}
	if policyStore == nil {
		return nil, fmt.Errorf("policy store is required")
	}
	e := &Engine{
		roleStore:      roleStore,
		policyStore:    policyStore,
		cacheTTL:       DefaultCacheTTL,
		cacheMax:       DefaultCacheMaxEntries,
		superAdminRole: DefaultSuperAdminRole,
		logger:         logger.NewPhusluLogger(),
		auditBuffer:    defaultAuditBuffer,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.cache == nil {
		e.cache = newTTLCache(e.cacheTTL, e.cacheMax)
	}
	if e.auditStore != nil {
		e.auditCh = make(chan AuditEntry, e.auditBuffer)
		go func() {
			bg := context.Background()
			for entry := range e.auditCh {
				if err := e.auditStore.LogDecision(bg, &entry); err != nil {
					e.logger.Error("audit write failed", "entry", entry.ID, "error", err.Error())
				}
			}
		}()
	}
	return e, nil
}

// CanAccess decides whether userID may perform action on feature. An empty
// action defaults to "view". The engine is fail-closed end to end: it never
// returns an error and never panics out to the caller; store faults become
// a deny with reason evaluation_error. Error results are not cached, so a
// transient store outage does not lock a user out for the full TTL.
func (e *Engine) CanAccess(ctx context.Context, userID, feature, action string, actx *AccessContext) (dec Decision) {
	if action == "" {
		action = DefaultAction
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic during evaluation",
				"user", userID, "feature", feature, "action", action, "panic", fmt.Sprint(r))
			dec = Decision{Allowed: false, Reason: ReasonEvaluationError, Timestamp: time.Now()}
		}
	}()

	key := cacheKey(userID, feature, action, actx)
	if allowed, ok := e.cache.Get(key); ok {
		return Decision{Allowed: allowed, Reason: ReasonCachedResult, Timestamp: time.Now()}
	}

	dec, cacheable := e.evaluate(ctx, userID, feature, action, actx, false)
	if cacheable {
		e.cache.Set(key, dec.Allowed)
	}
	e.audit(userID, feature, action, actx, dec)
	return dec
}

// Explain is the uncached variant of CanAccess that records a per-policy,
// per-condition trace for admin-facing debugging. Explain results are never
// written to the cache.
func (e *Engine) Explain(ctx context.Context, userID, feature, action string, actx *AccessContext) Decision {
	if action == "" {
		action = DefaultAction
	}
	dec, _ := e.evaluate(ctx, userID, feature, action, actx, true)
	return dec
}

// evaluate runs the full decision algorithm. The second return reports
// whether the decision may be cached; evaluation errors are not.
func (e *Engine) evaluate(ctx context.Context, userID, feature, action string, actx *AccessContext, trace bool) (Decision, bool) {
	dec := Decision{Timestamp: time.Now()}
	fail := func(stage string, err error) (Decision, bool) {
		e.logger.Error("evaluation failed",
			"stage", stage, "user", userID, "feature", feature, "action", action, "error", err.Error())
		dec.Allowed = false
		dec.Reason = ReasonEvaluationError
		if trace {
			dec.Trace = append(dec.Trace, fmt.Sprintf("ERROR %s: %v", stage, err))
		}
		return dec, false
	}

	if err := ctx.Err(); err != nil {
		return fail("deadline", err)
	}
	assignments, err := e.roleStore.GetRoleAssignments(ctx, userID)
	if err != nil {
		return fail("role lookup", err)
	}
	if len(assignments) == 0 {
		dec.Reason = ReasonNoRolesAssigned
		if trace {
			dec.Trace = append(dec.Trace, "DENY: user holds no roles")
		}
		return dec, true
	}

	roles := make([]string, 0, len(assignments))
	for _, a := range assignments {
		roles = append(roles, a.Role)
		if a.Role == e.superAdminRole {
			// The single designed escape hatch: policies are bypassed
			// entirely, so every use is logged for audit.
			e.logger.Info("super admin bypass",
				"user", userID, "feature", feature, "action", action)
			dec.Allowed = true
			dec.Reason = ReasonSuperAdminAccess
			if trace {
				dec.Trace = append(dec.Trace, fmt.Sprintf("ALLOW: role %s bypasses policies", e.superAdminRole))
			}
			return dec, true
		}
	}

	attrs, err := e.roleStore.GetUserAttributes(ctx, userID)
	if err != nil {
		return fail("attribute lookup", err)
	}
	if attrs == nil {
		attrs = NewUserAttributes(userID)
	}

	if err := ctx.Err(); err != nil {
		return fail("deadline", err)
	}
	policies, err := e.policyStore.GetPolicies(ctx, roles, feature, action)
	if err != nil {
		return fail("policy lookup", err)
	}
	if len(policies) == 0 {
		dec.Reason = ReasonNoApplicablePolicies
		if trace {
			dec.Trace = append(dec.Trace, fmt.Sprintf("DENY: no active policies for feature=%s action=%s", feature, action))
		}
		return dec, true
	}

	// Conditions AND within a policy, policies OR across the set.
	var matched []string
	var failed []string
	for _, p := range policies {
		satisfied := true
		for _, cond := range p.Conditions {
			ok := evalCondition(cond, attrs, actx, e.logger)
			if trace {
				dec.Trace = append(dec.Trace, fmt.Sprintf("policy=%s cond=%q result=%v", p.Name, cond.String(), ok))
			}
			if !ok {
				satisfied = false
				failed = append(failed, cond.String())
			}
		}
		if satisfied {
			matched = append(matched, p.Name)
			if trace {
				dec.Trace = append(dec.Trace, fmt.Sprintf("policy=%s MATCH", p.Name))
			}
		}
	}

	if len(matched) > 0 {
		dec.Allowed = true
		dec.Reason = ReasonPolicyMatch
		dec.MatchedPolicies = matched
	} else {
		dec.Reason = ReasonNoPolicyMatch
		dec.FailedConditions = failed
	}
	return dec, true
}

// CanAccessBatch evaluates multiple requests, stopping on context
// cancellation.
func (e *Engine) CanAccessBatch(ctx context.Context, requests []AccessRequest) ([]Decision, error) {
	decisions := make([]Decision, len(requests))
	for i, req := range requests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if req.UserID == "" || req.Feature == "" {
			return nil, fmt.Errorf("request %d: user id and feature are required", i)
		}
		decisions[i] = e.CanAccess(ctx, req.UserID, req.Feature, req.Action, req.Context)
	}
	return decisions, nil
}

// HasRole reports whether the user currently holds the role. Uncached.
func (e *Engine) HasRole(ctx context.Context, userID, role string) (bool, error) {
	assignments, err := e.roleStore.GetRoleAssignments(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("role lookup for %s: %w", userID, err)
	}
	for _, a := range assignments {
		if a.Role == role {
			return true, nil
		}
	}
	return false, nil
}

// HasAnyRole reports whether the user holds at least one of the roles.
func (e *Engine) HasAnyRole(ctx context.Context, userID string, roles []string) (bool, error) {
	assignments, err := e.roleStore.GetRoleAssignments(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("role lookup for %s: %w", userID, err)
	}
	for _, a := range assignments {
		for _, r := range roles {
			if a.Role == r {
				return true, nil
			}
		}
	}
	return false, nil
}

// UserModules returns the user's assigned modules. Uncached.
func (e *Engine) UserModules(ctx context.Context, userID string) ([]string, error) {
	attrs, err := e.roleStore.GetUserAttributes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("attribute lookup for %s: %w", userID, err)
	}
	if attrs == nil {
		return nil, nil
	}
	return append([]string(nil), attrs.AssignedModules...), nil
}

// ClearCache drops every cached decision. Callers mutating roles, policies
// or attributes are expected to call this, since the engine receives no
// change signal of its own.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// audit queues the decision for the async audit worker. The send is
// non-blocking: entries are dropped rather than stalling the decision path.
func (e *Engine) audit(userID, feature, action string, actx *AccessContext, dec Decision) {
	e.logger.Debug("decision",
		"user", userID, "feature", feature, "action", action,
		"allowed", dec.Allowed, "reason", string(dec.Reason))
	if e.auditCh == nil {
		return
	}
	entry := AuditEntry{
		ID:              fmt.Sprintf("%d", time.Now().UnixNano()),
		Timestamp:       dec.Timestamp,
		UserID:          userID,
		Feature:         feature,
		Action:          action,
		Allowed:         dec.Allowed,
		Reason:          dec.Reason,
		MatchedPolicies: dec.MatchedPolicies,
	}
	if actx != nil {
		entry.ResourceID = actx.ResourceID
		entry.ResourceType = actx.ResourceType
	}
	select {
	case e.auditCh <- entry:
	default:
	}
}
