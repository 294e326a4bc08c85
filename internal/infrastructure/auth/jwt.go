package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/restaurant/backend/internal/domain/authz"
	"github.com/restaurant/backend/internal/infrastructure/config"
)

// TokenType represents the type of JWT token
type TokenType string

// TokenTypeAccess is the only token type the API accepts
const TokenTypeAccess TokenType = "access"

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidTokenType = errors.New("invalid token type")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingUserID    = errors.New("missing user_id in claims")
)

// Claims represents custom JWT claims.
// Ativo and Modulos are the authorization grant; they are copied verbatim into
// the principal and never interpreted here.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Ativo     string    `json:"ativo,omitempty"`
	Modulos   []string  `json:"modulos,omitempty"`
	TokenType TokenType `json:"token_type"`
}

// Principal maps the token onto the authorization vocabulary: one Ativo claim
// when present, then one Modulo claim per granted module, in token order.
func (c *Claims) Principal() authz.Principal {
	claims := make([]authz.Claim, 0, len(c.Modulos)+1)
	if c.Ativo != "" {
		claims = append(claims, authz.Claim{Type: authz.ClaimActive, Value: c.Ativo})
	}
	for _, m := range c.Modulos {
		claims = append(claims, authz.Claim{Type: authz.ClaimModule, Value: m})
	}
	return authz.NewPrincipal(claims...)
}

// AccessToken is a signed token with its expiry
type AccessToken struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenType string    `json:"token_type"` // Bearer
}

// JWTService signs and validates access tokens
type JWTService struct {
	secret           []byte
	accessExpiration time.Duration
	issuer           string
	now              func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret:           []byte(cfg.Secret),
		accessExpiration: cfg.AccessTokenExpiration,
		issuer:           cfg.Issuer,
		now:              time.Now,
	}
}

// Grant is what an access token asserts about its holder
type Grant struct {
	UserID   uuid.UUID
	Username string
	Active   bool
	Modules  []string
}

// ativo renders the active flag in the literal form the authorizer compares against
func (g Grant) ativo() string {
	if g.Active {
		return authz.ActiveValue
	}
	return "False"
}

// IssueAccessToken signs an access token asserting grant.
// Production tokens come from the identity provider; this serves local tooling.
func (s *JWTService) IssueAccessToken(grant Grant) (*AccessToken, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: s.registered(grant.UserID, now, s.accessExpiration),
		UserID:           grant.UserID.String(),
		Username:         grant.Username,
		Ativo:            grant.ativo(),
		Modulos:          slices.Clone(grant.Modules),
		TokenType:        TokenTypeAccess,
	}
	token, err := s.generateToken(claims)
	if err != nil {
		return nil, err
	}
	return &AccessToken{
		Token:     token,
		ExpiresAt: now.Add(s.accessExpiration),
		TokenType: "Bearer",
	}, nil
}

func (s *JWTService) registered(userID uuid.UUID, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Issuer:    s.issuer,
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{s.issuer},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}
}

// generateToken creates a signed JWT token
func (s *JWTService) generateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateAccessToken validates an access token and returns its claims
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}

	if claims.TokenType != TokenTypeAccess {
		return nil, ErrInvalidTokenType
	}
	if claims.UserID == "" {
		return nil, ErrMissingUserID
	}

	return claims, nil
}
