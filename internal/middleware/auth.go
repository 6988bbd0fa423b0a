package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// CustomClaims contains the custom claims from Auth0 JWT
type CustomClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Validate implements validator.CustomClaims
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for JWT claims
	ClaimsKey contextKey = "claims"
	// Auth0IDKey is the context key for the Auth0 subject
	Auth0IDKey contextKey = "auth0_id"
	// MemberIDKey is the context key for the caller's member ID
	MemberIDKey contextKey = "member_id"
	// MemberRoleKey is the context key for the caller's member role
	MemberRoleKey contextKey = "member_role"
)

// TokenValidator validates a raw bearer token. *validator.Validator satisfies it.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (interface{}, error)
}

// MemberProvider resolves the member behind an Auth0 subject
type MemberProvider interface {
	GetMemberByAuth0ID(ctx context.Context, auth0ID string) (*domain.Member, error)
}

// AuthMiddleware provides JWT validation and member resolution
type AuthMiddleware struct {
	validator      TokenValidator
	memberProvider MemberProvider
}

// NewAuthMiddleware creates a new AuthMiddleware with Auth0 configuration
func NewAuthMiddleware(auth0Domain, audience string, memberProvider MemberProvider) (*AuthMiddleware, error) {
	issuerURL, err := url.Parse("https://" + auth0Domain + "/")
	if err != nil {
		return nil, err
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &CustomClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	return NewAuthMiddlewareWithValidator(jwtValidator, memberProvider), nil
}

// NewAuthMiddlewareWithValidator creates an AuthMiddleware around an existing validator
func NewAuthMiddlewareWithValidator(v TokenValidator, memberProvider MemberProvider) *AuthMiddleware {
	return &AuthMiddleware{validator: v, memberProvider: memberProvider}
}

// Authenticate returns an Echo middleware that validates JWT tokens. It does
// not require the caller to be a registered member, so the auth callback can
// use it on its own.
func (m *AuthMiddleware) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return unauthorizedError(c, "missing authorization header")
			}

			// Check Bearer prefix
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return unauthorizedError(c, "invalid authorization header format")
			}

			claims, err := m.validator.ValidateToken(c.Request().Context(), parts[1])
			if err != nil {
				log.Debug().Err(err).Msg("Token validation failed")
				return unauthorizedError(c, "invalid token")
			}

			validatedClaims, ok := claims.(*validator.ValidatedClaims)
			if !ok {
				return unauthorizedError(c, "invalid claims")
			}

			ctx := context.WithValue(c.Request().Context(), ClaimsKey, validatedClaims)
			ctx = context.WithValue(ctx, Auth0IDKey, validatedClaims.RegisteredClaims.Subject)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// RequireMember returns an Echo middleware that resolves the authenticated
// subject to a member and stores its ID and role in the context. It must run
// after Authenticate.
func (m *AuthMiddleware) RequireMember() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth0ID := GetAuth0ID(c)
			if auth0ID == "" {
				return unauthorizedError(c, "not authenticated")
			}

			member, err := m.memberProvider.GetMemberByAuth0ID(c.Request().Context(), auth0ID)
			if err != nil {
				if errors.Is(err, domain.ErrMemberNotFound) {
					log.Debug().Str("auth0_id", auth0ID).Msg("Member lookup failed")
					return unauthorizedError(c, "member not registered")
				}
				log.Error().Err(err).Str("auth0_id", auth0ID).Msg("Member lookup failed")
				return c.JSON(http.StatusInternalServerError, problemDetails{
					Type:     errorTypeInternal,
					Title:    "Internal Server Error",
					Status:   http.StatusInternalServerError,
					Detail:   "failed to resolve member",
					Instance: c.Request().URL.Path,
				})
			}

			ctx := context.WithValue(c.Request().Context(), MemberIDKey, member.ID)
			ctx = context.WithValue(ctx, MemberRoleKey, member.Role)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// RequireAdmin returns an Echo middleware that rejects callers without the
// admin role. It must run after RequireMember.
func (m *AuthMiddleware) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !IsAdmin(c) {
				log.Warn().
					Int32("member_id", GetMemberID(c)).
					Str("path", c.Request().URL.Path).
					Msg("Admin route denied")
				return forbiddenError(c, "admin role required")
			}
			return next(c)
		}
	}
}

// GetAuth0ID extracts the Auth0 subject from the context
func GetAuth0ID(c echo.Context) string {
	if id, ok := c.Request().Context().Value(Auth0IDKey).(string); ok {
		return id
	}
	return ""
}

// GetClaims extracts the validated claims from the context
func GetClaims(c echo.Context) *validator.ValidatedClaims {
	if claims, ok := c.Request().Context().Value(ClaimsKey).(*validator.ValidatedClaims); ok {
		return claims
	}
	return nil
}

// GetCustomClaims extracts the custom claims from the context
func GetCustomClaims(c echo.Context) *CustomClaims {
	claims := GetClaims(c)
	if claims == nil {
		return nil
	}
	if custom, ok := claims.CustomClaims.(*CustomClaims); ok {
		return custom
	}
	return nil
}

// GetMemberID extracts the caller's member ID from the context
func GetMemberID(c echo.Context) int32 {
	if id, ok := c.Request().Context().Value(MemberIDKey).(int32); ok {
		return id
	}
	return 0
}

// IsAdmin reports whether the caller holds the admin role
func IsAdmin(c echo.Context) bool {
	role, ok := c.Request().Context().Value(MemberRoleKey).(domain.MemberRole)
	return ok && role == domain.MemberRoleAdmin
}
