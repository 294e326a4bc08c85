package authz

// Outcome is the terminal result of evaluating a requirement or policy
type Outcome int

const (
	// Fail denies the request. It is the zero value so an unset outcome never grants.
	Fail Outcome = iota
	// Succeed grants the request
	Succeed
)

// String returns the outcome name
func (o Outcome) String() string {
	if o == Succeed {
		return "succeed"
	}
	return "fail"
}

// Granted reports whether the outcome is Succeed
func (o Outcome) Granted() bool {
	return o == Succeed
}

// Requirement is one condition a policy demands of the caller
type Requirement interface {
	Evaluate(p Principal) Outcome
}

// AuthenticatedRequirement demands an authenticated caller
type AuthenticatedRequirement struct{}

// Evaluate implements Requirement
func (AuthenticatedRequirement) Evaluate(p Principal) Outcome {
	if p.Authenticated {
		return Succeed
	}
	return Fail
}

// ClaimRequirement demands a claim with an exact type and value
type ClaimRequirement struct {
	Type  string
	Value string
}

// Evaluate implements Requirement
func (r ClaimRequirement) Evaluate(p Principal) Outcome {
	if p.Authenticated && p.HasClaim(r.Type, r.Value) {
		return Succeed
	}
	return Fail
}

// ModuleRequirement demands that the caller was granted a module
type ModuleRequirement struct {
	Module string
}

// Evaluate implements Requirement by delegating to ModuleAuthorizer
func (r ModuleRequirement) Evaluate(p Principal) Outcome {
	return ModuleAuthorizer{}.Evaluate(p, r)
}

// ModuleAuthorizer evaluates module requirements against a principal's claims.
// Evaluation is pure: no I/O, deterministic, safe to repeat.
type ModuleAuthorizer struct{}

// Evaluate fails closed at the first unmet condition:
// unauthenticated, not active, module not granted.
func (ModuleAuthorizer) Evaluate(p Principal, req ModuleRequirement) Outcome {
	if !p.Authenticated {
		return Fail
	}
	if !p.IsActive() {
		return Fail
	}
	if _, ok := p.GrantedModules()[req.Module]; !ok {
		return Fail
	}
	return Succeed
}
