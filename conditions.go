package permissions

import (
	"strings"

	"github.com/lumenwork/permissions/logger"
)

// Well-known attribute names resolved against UserAttributes, and the
// context-only names resolved against AccessContext. Anything else is looked
// up in the custom attribute bag.
const (
	AttrJobTitle        = "job_title"
	AttrDepartment      = "department"
	AttrIsManager       = "is_manager"
	AttrCertifications  = "certifications"
	AttrAssignedModules = "assigned_modules"
	AttrDirectReports   = "direct_reports"

	CtxCompanyID = "company_id"
	CtxClientID  = "client_id"
)

// resolveAttribute produces the left-hand value for a condition. Resolution
// order: well-known attribute names, context-only names, custom bag, null.
func resolveAttribute(name string, attrs *UserAttributes, actx *AccessContext) Value {
	switch name {
	case AttrJobTitle:
		return String(attrs.JobTitle)
	case AttrDepartment:
		return String(attrs.Department)
	case AttrIsManager:
		return Bool(attrs.IsManager)
	case AttrCertifications:
		return StringList(attrs.Certifications)
	case AttrAssignedModules:
		return StringList(attrs.AssignedModules)
	case AttrDirectReports:
		return StringList(attrs.DirectReports)
	case CtxCompanyID:
		if actx == nil || actx.CompanyID == "" {
			return Null()
		}
		return String(actx.CompanyID)
	case CtxClientID:
		if actx == nil || actx.ClientID == "" {
			return Null()
		}
		return String(actx.ClientID)
	}
	if attrs.Custom != nil {
		if v, ok := attrs.Custom[name]; ok {
			return v
		}
	}
	return Null()
}

// evalCondition evaluates one condition against the attribute bag and the
// request context. Unknown operators fail closed: the condition is false and
// a warning is logged, but evaluation of sibling conditions continues.
func evalCondition(cond PolicyCondition, attrs *UserAttributes, actx *AccessContext, log logger.Logger) bool {
	v := resolveAttribute(cond.Attribute, attrs, actx)
	switch cond.Operator {
	case OpEquals:
		return v.Equal(cond.Value)
	case OpNotEquals:
		return !v.Equal(cond.Value)
	case OpContains:
		return containsValue(v, cond.Value)
	case OpNotContains:
		return !containsValue(v, cond.Value)
	case OpIn:
		return inList(v, cond.Value)
	case OpNotIn:
		return !inList(v, cond.Value)
	case OpGreaterThan:
		lhs, lok := v.AsNumber()
		rhs, rok := cond.Value.AsNumber()
		return lok && rok && lhs > rhs
	case OpLessThan:
		lhs, lok := v.AsNumber()
		rhs, rok := cond.Value.AsNumber()
		return lok && rok && lhs < rhs
	}
	log.Warn("unknown condition operator",
		"operator", string(cond.Operator),
		"attribute", cond.Attribute)
	return false
}

// containsValue implements the contains operator: membership for list
// values, substring match otherwise.
func containsValue(v, rhs Value) bool {
	if v.Kind == KindStringList {
		needle := rhs.Text()
		for _, item := range v.List {
			if item == needle {
				return true
			}
		}
		return false
	}
	if v.IsNull() {
		return false
	}
	return strings.Contains(v.Text(), rhs.Text())
}

// inList implements the in operator: the right-hand literal is a
// comma-separated list, split and trimmed, matched against the textual form
// of the resolved value.
func inList(v, rhs Value) bool {
	if v.IsNull() {
		return false
	}
	needle := v.Text()
	for _, item := range splitCSV(rhs.Text()) {
		if item == needle {
			return true
		}
	}
	return false
}

// splitCSV splits a comma-separated literal, trimming surrounding
// whitespace and dropping empty items.
func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
