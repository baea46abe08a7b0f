package permissions

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCondition parses the compact "attribute operator value" form used in
// config files and in Decision.FailedConditions, e.g.
//
//	department equals HR
//	certifications contains "first aid"
//	company_id in "acme, globex"
//	headcount greater_than 25
//
// The value literal may be quoted (to preserve spaces or commas), a bare
// true/false, a number, or plain text.
func ParseCondition(s string) (PolicyCondition, error) {
	s = strings.TrimSpace(s)
	attr, rest, ok := strings.Cut(s, " ")
	if !ok {
		return PolicyCondition{}, fmt.Errorf("condition %q: want \"attribute operator value\"", s)
	}
	opStr, lit, ok := strings.Cut(strings.TrimSpace(rest), " ")
	if !ok {
		return PolicyCondition{}, fmt.Errorf("condition %q: missing value literal", s)
	}
	op := Operator(opStr)
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains, OpIn, OpNotIn, OpGreaterThan, OpLessThan:
	default:
		return PolicyCondition{}, fmt.Errorf("condition %q: unknown operator %q", s, opStr)
	}
	return PolicyCondition{Attribute: attr, Operator: op, Value: parseValueLiteral(lit)}, nil
}

// parseValueLiteral interprets a textual literal as a typed Value.
func parseValueLiteral(s string) Value {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return String(s[1 : len(s)-1])
		}
	}
	switch s {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	case "", "null":
		return Null()
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return Number(n)
	}
	return String(s)
}

// UnmarshalYAML lets config files write conditions either as mappings or in
// the compact string form handled by ParseCondition.
func (c *PolicyCondition) UnmarshalYAML(unmarshal func(any) error) error {
	var compact string
	if err := unmarshal(&compact); err == nil {
		parsed, perr := ParseCondition(compact)
		if perr != nil {
			return perr
		}
		*c = parsed
		return nil
	}
	type plain PolicyCondition
	var p plain
	if err := unmarshal(&p); err != nil {
		return err
	}
	*c = PolicyCondition(p)
	return nil
}
