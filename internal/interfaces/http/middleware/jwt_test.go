package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/restaurant/backend/internal/domain/authz"
	"github.com/restaurant/backend/internal/infrastructure/auth"
	"github.com/restaurant/backend/internal/infrastructure/config"
	"github.com/restaurant/backend/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService(expiration time.Duration) *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		AccessTokenExpiration: expiration,
		Issuer:                "test-issuer",
	})
}

func newTestGrant(modules ...string) auth.Grant {
	return auth.Grant{
		UserID:   uuid.New(),
		Username: "gerente",
		Active:   true,
		Modules:  modules,
	}
}

func issue(t *testing.T, svc *auth.JWTService, grant auth.Grant) string {
	t.Helper()
	token, err := svc.IssueAccessToken(grant)
	require.NoError(t, err)
	return token.Token
}

func get(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(AuthHeaderKey, token)
	}
	return serve(router, req)
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Error.Code
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	svc := newTestJWTService(15 * time.Minute)
	grant := newTestGrant(authz.ModuleOrder)
	token := issue(t, svc, grant)

	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(DefaultJWTConfig(svc)))
	router.GET("/test", func(c *gin.Context) {
		claims := GetJWTClaims(c)
		require.NotNil(t, claims)
		assert.Equal(t, []string{authz.ModuleOrder}, claims.Modulos)
		assert.Equal(t, grant.UserID.String(), GetJWTUserID(c))
		assert.Equal(t, grant.UserID.String(), logger.ScopeFrom(c.Request.Context()).UserID)
		c.Status(http.StatusOK)
	})

	w := get(router, "/test", BearerPrefix+token)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	svc := newTestJWTService(15 * time.Minute)
	expired := issue(t, newTestJWTService(-time.Hour), newTestGrant())

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"missing header", "", "INVALID_TOKEN"},
		{"basic scheme", "Basic dXNlcjpwYXNz", "INVALID_TOKEN"},
		{"empty bearer", BearerPrefix, "INVALID_TOKEN"},
		{"garbage", BearerPrefix + "not.a.jwt", "INVALID_TOKEN"},
		{"expired", BearerPrefix + expired, "TOKEN_EXPIRED"},
	}

	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(DefaultJWTConfig(svc)))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(router, "/test", tt.header)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, w))
		})
	}
}

func TestJWTAuthMiddleware_SkipPaths(t *testing.T) {
	cfg := DefaultJWTConfig(newTestJWTService(time.Minute))
	cfg.SkipPathPrefixes = []string{"/public/"}

	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(cfg))
	handler := func(c *gin.Context) { c.Status(http.StatusOK) }
	router.GET("/health", handler)
	router.GET("/public/menu", handler)
	router.GET("/private", handler)

	assert.Equal(t, http.StatusOK, get(router, "/health", "").Code)
	assert.Equal(t, http.StatusOK, get(router, "/public/menu", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(router, "/private", "").Code)
}

func TestJWTAuthMiddleware_CustomOnError(t *testing.T) {
	cfg := DefaultJWTConfig(newTestJWTService(time.Minute))
	var seen error
	cfg.OnError = func(c *gin.Context, err error) {
		seen = err
		c.AbortWithStatus(http.StatusTeapot)
	}

	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(cfg))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(router, "/test", BearerPrefix+"broken")

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.ErrorIs(t, seen, auth.ErrInvalidToken)
}

func TestGetJWTClaims_NotFound(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Nil(t, GetJWTClaims(c))
	assert.Empty(t, GetJWTUserID(c))
}
