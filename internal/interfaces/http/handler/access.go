package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/restaurant/backend/internal/application/access"
	"github.com/restaurant/backend/internal/application/dispatch"
	"github.com/restaurant/backend/internal/domain/authz"
	"github.com/restaurant/backend/internal/interfaces/http/dto"
	"github.com/restaurant/backend/internal/interfaces/http/middleware"
)

// AccessHandler answers module authorization questions for the signed-in user
type AccessHandler struct {
	BaseHandler
	dispatcher *dispatch.Dispatcher
	authorizer middleware.PolicyAuthorizer
	listTTL    time.Duration
}

// NewAccessHandler creates a new AccessHandler. listTTL <= 0 uses the dispatcher default.
func NewAccessHandler(d *dispatch.Dispatcher, authorizer middleware.PolicyAuthorizer, listTTL time.Duration) *AccessHandler {
	return &AccessHandler{
		dispatcher: d,
		authorizer: authorizer,
		listTTL:    listTTL,
	}
}

// RegisterRoutes mounts the access routes. Callers must be authenticated;
// invalidation additionally requires the users module.
func (h *AccessHandler) RegisterRoutes(rg *gin.RouterGroup) {
	modules := rg.Group("/modules")
	modules.GET("", h.ListModules)
	modules.GET("/:module/access", h.CheckModule)
	modules.POST("/access/invalidate",
		middleware.RequireModule(h.authorizer, authz.ModuleUsers),
		h.Invalidate)
}

// CheckModule reports whether the caller holds the module in the path
func (h *AccessHandler) CheckModule(c *gin.Context) {
	result := dispatch.Send[access.ModuleAccess](c.Request.Context(), h.dispatcher, access.CheckModuleAccess{
		Module:    c.Param("module"),
		Principal: middleware.PrincipalFromContext(c),
	})
	dto.WriteResult(c, result)
}

// ListModules lists every module with the caller's grant
func (h *AccessHandler) ListModules(c *gin.Context) {
	userID := middleware.GetJWTUserID(c)
	if userID == "" {
		h.Unauthorized(c, "Authentication required")
		return
	}
	result := dispatch.Send[[]access.ModuleAccess](c.Request.Context(), h.dispatcher, access.ListModuleAccess{
		UserID:    userID,
		Principal: middleware.PrincipalFromContext(c),
		TTL:       h.listTTL,
	})
	dto.WriteResult(c, result)
}

// InvalidateRequest is the body of the invalidation endpoint
type InvalidateRequest struct {
	UserID string `json:"user_id"`
}

// Invalidate drops cached module listings after grants were edited
func (h *AccessHandler) Invalidate(c *gin.Context) {
	var req InvalidateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, "invalid request body")
			return
		}
	}
	result := dispatch.Send[access.Invalidation](c.Request.Context(), h.dispatcher,
		access.InvalidateModuleAccess{UserID: req.UserID})
	dto.WriteResult(c, result)
}
