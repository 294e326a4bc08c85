package access

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/restaurant/backend/internal/application/dispatch"
	"github.com/restaurant/backend/internal/domain/authz"
	"github.com/restaurant/backend/internal/domain/shared"
)

// Authorizer evaluates a named policy for a principal
type Authorizer interface {
	Authorize(p authz.Principal, policyName string) (authz.Outcome, error)
}

// Service answers the access requests
type Service struct {
	authorizer Authorizer
	modules    []string
}

// NewService creates a service over the known module list
func NewService(authorizer Authorizer) *Service {
	return &Service{
		authorizer: authorizer,
		modules:    authz.Modules(),
	}
}

// Register adds the access handlers and their validators to reg
func (s *Service) Register(reg *dispatch.Registry) {
	dispatch.Register[CheckModuleAccess, ModuleAccess](reg,
		dispatch.HandlerFunc[CheckModuleAccess, ModuleAccess](s.CheckModule),
		dispatch.NewStructValidator[CheckModuleAccess](),
		dispatch.ValidatorFunc[CheckModuleAccess](s.validateModule),
	)
	dispatch.Register[ListModuleAccess, []ModuleAccess](reg,
		dispatch.HandlerFunc[ListModuleAccess, []ModuleAccess](s.ListModules),
		dispatch.NewStructValidator[ListModuleAccess](),
	)
	dispatch.Register[InvalidateModuleAccess, Invalidation](reg,
		dispatch.HandlerFunc[InvalidateModuleAccess, Invalidation](s.Invalidate),
		dispatch.NewStructValidator[InvalidateModuleAccess](),
	)
}

// Required lists the requests a server must be able to route
func Required() []dispatch.Request {
	return []dispatch.Request{CheckModuleAccess{}, ListModuleAccess{}, InvalidateModuleAccess{}}
}

func (s *Service) validateModule(_ context.Context, q CheckModuleAccess) []string {
	if q.Module == "" || slices.Contains(s.modules, q.Module) {
		return nil
	}
	return []string{fmt.Sprintf("module %q is not a known module", q.Module)}
}

// CheckModule evaluates the module policy for the caller
func (s *Service) CheckModule(_ context.Context, q CheckModuleAccess) (dispatch.Outcome[ModuleAccess], error) {
	access, err := s.evaluate(q.Principal, q.Module)
	if err != nil {
		return dispatch.Outcome[ModuleAccess]{}, err
	}
	return dispatch.Succeeded(access), nil
}

// ListModules evaluates every known module for the caller, in catalog order
func (s *Service) ListModules(_ context.Context, q ListModuleAccess) (dispatch.Outcome[[]ModuleAccess], error) {
	out := make([]ModuleAccess, 0, len(s.modules))
	for _, m := range s.modules {
		access, err := s.evaluate(q.Principal, m)
		if err != nil {
			return dispatch.Outcome[[]ModuleAccess]{}, err
		}
		out = append(out, access)
	}
	return dispatch.Succeeded(out), nil
}

// Invalidate announces the grant change; the pipeline drops the cached listings
func (s *Service) Invalidate(_ context.Context, c InvalidateModuleAccess) (dispatch.Outcome[Invalidation], error) {
	userID := uuid.Nil
	scope := "all"
	if c.UserID != "" {
		id, err := uuid.Parse(c.UserID)
		if err != nil {
			return dispatch.Failed[Invalidation]("user_id must be a valid UUID"), nil
		}
		userID = id
		scope = "user"
	}
	return dispatch.Succeeded(Invalidation{Scope: scope},
		shared.DomainEvent(authz.NewModuleAccessChangedEvent(userID))), nil
}

func (s *Service) evaluate(p authz.Principal, module string) (ModuleAccess, error) {
	policy := authz.PolicyName(module)
	outcome, err := s.authorizer.Authorize(p, policy)
	if err != nil {
		return ModuleAccess{}, fmt.Errorf("authorize %s: %w", policy, err)
	}
	return ModuleAccess{Module: module, Policy: policy, Granted: outcome.Granted()}, nil
}
