// Package access exposes module authorization as dispatcher requests:
// checking one module, listing every module's grant for a user, and
// dropping the cached listings after grants change.
package access

import (
	"time"

	"github.com/restaurant/backend/internal/application/dispatch"
	"github.com/restaurant/backend/internal/domain/authz"
	"github.com/restaurant/backend/internal/infrastructure/cache"
)

// EntityModuleAccess is the cache entity of per-user module listings
const EntityModuleAccess = "module_access"

// ModuleAccess is the answer for one module
type ModuleAccess struct {
	Module  string `json:"module"`
	Policy  string `json:"policy"`
	Granted bool   `json:"granted"`
}

// CheckModuleAccess asks whether the caller may use Module
type CheckModuleAccess struct {
	dispatch.QueryBase
	Module    string          `json:"module" validate:"required,max=64"`
	Principal authz.Principal `json:"-"`
}

// OperationName implements dispatch.Request
func (CheckModuleAccess) OperationName() string { return "access.check_module" }

// ListModuleAccess lists every known module with the caller's grant.
// The listing is cached per user and claim set until InvalidateModuleAccess
// runs or TTL passes, so a reissued token with other claims is evaluated afresh.
type ListModuleAccess struct {
	dispatch.QueryBase
	UserID    string          `json:"user_id" validate:"required,uuid"`
	Principal authz.Principal `json:"-"`
	TTL       time.Duration   `json:"-"`
}

// OperationName implements dispatch.Request
func (ListModuleAccess) OperationName() string { return "access.list_modules" }

// CacheKey implements dispatch.Cacheable
func (q ListModuleAccess) CacheKey() string {
	return cache.ListKey(EntityModuleAccess, q.UserID, q.Principal.Fingerprint())
}

// CacheTTL implements dispatch.Cacheable
func (q ListModuleAccess) CacheTTL() time.Duration { return q.TTL }

// InvalidateModuleAccess drops cached listings after grants were edited
// elsewhere. An empty UserID drops every user's listing.
type InvalidateModuleAccess struct {
	dispatch.CommandBase
	UserID string `json:"user_id" validate:"omitempty,uuid"`
}

// OperationName implements dispatch.Request
func (InvalidateModuleAccess) OperationName() string { return "access.invalidate" }

// InvalidatePatterns implements dispatch.Invalidating
func (c InvalidateModuleAccess) InvalidatePatterns() []string {
	if c.UserID == "" {
		return []string{cache.AllPattern(EntityModuleAccess)}
	}
	return []string{cache.ListKey(EntityModuleAccess, c.UserID, "*")}
}

// Invalidation reports what was dropped
type Invalidation struct {
	Scope string `json:"scope"`
}
