package authz

import (
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultPolicyCacheSize bounds the number of memoised module policies
const DefaultPolicyCacheSize = 1024

// ErrPolicyNotFound is returned when a name is neither a module policy nor a static one
var ErrPolicyNotFound = errors.New("authorization policy not found")

// PolicyResolver turns a declared policy name into an evaluatable policy.
// "Module_<ID>" names are synthesised on demand and memoised per distinct name;
// any other name is looked up in a static table fixed at construction.
type PolicyResolver struct {
	static    map[string]Policy
	memo      *lru.Cache[string, Policy]
	cacheSize int
}

// ResolverOption is a functional option for configuring the resolver
type ResolverOption func(*PolicyResolver)

// WithPolicy adds a statically configured policy used for names without the module prefix
func WithPolicy(policy Policy) ResolverOption {
	return func(r *PolicyResolver) {
		r.static[policy.Name] = policy
	}
}

// WithPolicyCacheSize sets how many module policies are memoised
func WithPolicyCacheSize(size int) ResolverOption {
	return func(r *PolicyResolver) {
		r.cacheSize = size
	}
}

// NewPolicyResolver creates a resolver
func NewPolicyResolver(opts ...ResolverOption) (*PolicyResolver, error) {
	r := &PolicyResolver{
		static:    make(map[string]Policy),
		cacheSize: DefaultPolicyCacheSize,
	}

	for _, opt := range opts {
		opt(r)
	}

	for name := range r.static {
		if strings.HasPrefix(name, ModulePolicyPrefix) {
			return nil, fmt.Errorf("static policy %q uses reserved prefix %q", name, ModulePolicyPrefix)
		}
	}

	memo, err := lru.New[string, Policy](r.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy cache: %w", err)
	}
	r.memo = memo

	return r, nil
}

// Resolve returns the policy for a name
func (r *PolicyResolver) Resolve(name string) (Policy, error) {
	if policy, ok := r.memo.Get(name); ok {
		return policy, nil
	}

	if module, ok := strings.CutPrefix(name, ModulePolicyPrefix); ok {
		policy := ModulePolicy(name, module)
		r.memo.Add(name, policy)
		return policy, nil
	}

	if policy, ok := r.static[name]; ok {
		return policy, nil
	}

	return Policy{}, fmt.Errorf("%w: %q", ErrPolicyNotFound, name)
}

// Authorize resolves a policy and evaluates it for the principal
func (r *PolicyResolver) Authorize(p Principal, policyName string) (Outcome, error) {
	policy, err := r.Resolve(policyName)
	if err != nil {
		return Fail, err
	}
	return policy.Evaluate(p), nil
}

// Cached returns how many module policies are currently memoised
func (r *PolicyResolver) Cached() int {
	return r.memo.Len()
}
