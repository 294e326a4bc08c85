package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/restaurant/backend/internal/domain/authz"
	"github.com/restaurant/backend/internal/infrastructure/logger"
	"github.com/restaurant/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// PolicyPrincipalKey is where the evaluated principal is stored for handlers
const PolicyPrincipalKey = "authz_principal"

// PolicyAuthorizer resolves a named policy and evaluates it for a principal
type PolicyAuthorizer interface {
	Authorize(p authz.Principal, policyName string) (authz.Outcome, error)
}

// PolicyConfig holds configuration for policy middleware
type PolicyConfig struct {
	// Logger for middleware logging
	Logger *zap.Logger
	// OnDenied is called when the policy fails (optional, default 401/403)
	OnDenied func(c *gin.Context, policyName string)
}

// RequirePolicy creates middleware that admits the request only when the named
// policy grants the caller. Unknown policy names are a server configuration error.
func RequirePolicy(authorizer PolicyAuthorizer, policyName string) gin.HandlerFunc {
	return RequirePolicyWithConfig(authorizer, policyName, PolicyConfig{})
}

// RequireModule creates middleware that requires access to a back-office module
func RequireModule(authorizer PolicyAuthorizer, module string) gin.HandlerFunc {
	return RequirePolicy(authorizer, authz.PolicyName(module))
}

// RequirePolicyWithConfig creates policy middleware with custom config
func RequirePolicyWithConfig(authorizer PolicyAuthorizer, policyName string, cfg PolicyConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		principal := PrincipalFromContext(c)
		reqLog := logger.ForRequest(c.Request.Context(), log)

		outcome, err := authorizer.Authorize(principal, policyName)
		if err != nil {
			reqLog.Error("Authorization policy cannot be resolved",
				zap.String("policy", policyName),
				zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, dto.ErrCodeInternal, dto.InternalErrorMessage)
			return
		}

		if !outcome.Granted() {
			// Claims are not logged
			reqLog.Debug("Authorization denied",
				zap.String("policy", policyName),
				zap.Bool("authenticated", principal.Authenticated))
			handlePolicyDenied(c, cfg, policyName, principal)
			return
		}

		c.Set(PolicyPrincipalKey, principal)
		if module, ok := moduleOf(policyName); ok {
			ctx, _ := logger.WithModule(c.Request.Context(), logger.FromContext(c.Request.Context()), module)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// PrincipalFromContext builds the caller's principal from the JWT claims.
// Requests without claims are anonymous.
func PrincipalFromContext(c *gin.Context) authz.Principal {
	claims := GetJWTClaims(c)
	if claims == nil {
		return authz.Anonymous()
	}
	return claims.Principal()
}

func moduleOf(policyName string) (string, bool) {
	module, ok := strings.CutPrefix(policyName, authz.ModulePolicyPrefix)
	return module, ok && module != ""
}

// handlePolicyDenied answers 401 for anonymous callers and 403 otherwise
func handlePolicyDenied(c *gin.Context, cfg PolicyConfig, policyName string, principal authz.Principal) {
	if cfg.OnDenied != nil {
		cfg.OnDenied(c, policyName)
		if !c.IsAborted() {
			c.Abort()
		}
		return
	}

	if !principal.Authenticated {
		abortWithError(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Authentication required")
		return
	}
	abortWithError(c, http.StatusForbidden, dto.ErrCodeForbidden, "Access to this resource is not allowed")
}
