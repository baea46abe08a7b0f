package permissions

// Builders provide a fluent API for assembling policies and attribute
// records in config seeding and tests.

// PolicyBuilder builds a Policy
type PolicyBuilder struct {
	p *Policy
}

func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{p: &Policy{Conditions: []PolicyCondition{}}}
}

func (b *PolicyBuilder) ID(id string) *PolicyBuilder        { b.p.ID = id; return b }
func (b *PolicyBuilder) Name(n string) *PolicyBuilder       { b.p.Name = n; return b }
func (b *PolicyBuilder) Feature(f string) *PolicyBuilder    { b.p.Feature = f; return b }
func (b *PolicyBuilder) Action(a string) *PolicyBuilder     { b.p.Action = a; return b }
func (b *PolicyBuilder) Condition(attr string, op Operator, v Value) *PolicyBuilder {
	b.p.Conditions = append(b.p.Conditions, PolicyCondition{Attribute: attr, Operator: op, Value: v})
	return b
}
func (b *PolicyBuilder) Build() *Policy { return b.p }

// AttributesBuilder builds a UserAttributes record
type AttributesBuilder struct {
	a *UserAttributes
}

func NewAttributesBuilder(userID string) *AttributesBuilder {
	return &AttributesBuilder{a: NewUserAttributes(userID)}
}

func (b *AttributesBuilder) JobTitle(t string) *AttributesBuilder   { b.a.JobTitle = t; return b }
func (b *AttributesBuilder) Department(d string) *AttributesBuilder { b.a.Department = d; return b }
func (b *AttributesBuilder) Manager(m bool) *AttributesBuilder      { b.a.IsManager = m; return b }
func (b *AttributesBuilder) Certifications(c ...string) *AttributesBuilder {
	b.a.Certifications = append(b.a.Certifications, c...)
	return b
}
func (b *AttributesBuilder) Modules(m ...string) *AttributesBuilder {
	b.a.AssignedModules = append(b.a.AssignedModules, m...)
	return b
}
func (b *AttributesBuilder) DirectReports(ids ...string) *AttributesBuilder {
	b.a.DirectReports = append(b.a.DirectReports, ids...)
	return b
}
func (b *AttributesBuilder) Custom(key string, v Value) *AttributesBuilder {
	if b.a.Custom == nil {
		b.a.Custom = make(map[string]Value)
	}
	b.a.Custom[key] = v
	return b
}
func (b *AttributesBuilder) Build() *UserAttributes { return b.a }
