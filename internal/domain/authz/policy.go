package authz

// Policy is a named, evaluatable rule: every requirement must succeed
type Policy struct {
	Name         string
	Requirements []Requirement
}

// NewPolicy creates a policy from its requirements
func NewPolicy(name string, requirements ...Requirement) Policy {
	return Policy{Name: name, Requirements: requirements}
}

// ModulePolicy synthesises the policy for a module: an authenticated caller granted that module
func ModulePolicy(name, module string) Policy {
	return NewPolicy(name, AuthenticatedRequirement{}, ModuleRequirement{Module: module})
}

// Evaluate returns Succeed only if every requirement succeeds.
// A policy with no requirements fails.
func (p Policy) Evaluate(principal Principal) Outcome {
	if len(p.Requirements) == 0 {
		return Fail
	}
	for _, r := range p.Requirements {
		if r.Evaluate(principal) != Succeed {
			return Fail
		}
	}
	return Succeed
}

// Module returns the module a policy requires, if any
func (p Policy) Module() (string, bool) {
	for _, r := range p.Requirements {
		if m, ok := r.(ModuleRequirement); ok {
			return m.Module, true
		}
	}
	return "", false
}
