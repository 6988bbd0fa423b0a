package handler

import (
	"net/http"
	"time"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/dafibh/cooplend/cooplend-backend/internal/middleware"
	"github.com/dafibh/cooplend/cooplend-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// AuthCallbackResponse represents the response from the auth callback
type AuthCallbackResponse struct {
	Member      MemberResponse `json:"member"`
	IsNewMember bool           `json:"isNewMember"`
}

// MemberResponse represents a member in API responses
type MemberResponse struct {
	ID        int32   `json:"id"`
	Email     string  `json:"email"`
	Name      *string `json:"name"`
	Role      string  `json:"role"`
	CreatedAt string  `json:"createdAt"`
}

// Callback godoc
// @Summary Provision the authenticated member
// @Description Called by the frontend after login. Creates the member on first sign-in.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} AuthCallbackResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Router /auth/callback [post]
func (h *AuthHandler) Callback(c echo.Context) error {
	auth0ID := middleware.GetAuth0ID(c)
	if auth0ID == "" {
		log.Error().Msg("No Auth0 ID in context - middleware may not be configured")
		return NewUnauthorizedError(c, "Authentication required")
	}

	var email, name string
	if claims := middleware.GetCustomClaims(c); claims != nil {
		email = claims.Email
		name = claims.Name
	}

	// Email is required for member creation
	if email == "" {
		log.Error().Str("auth0_id", auth0ID).Msg("No email in JWT claims")
		return NewValidationError(c, "Email is required for authentication", []ValidationError{
			{Field: "email", Message: "Email claim is missing from token"},
		})
	}

	var namePtr *string
	if name != "" {
		namePtr = &name
	}

	result, err := h.authService.AuthenticateMember(c.Request().Context(), auth0ID, email, namePtr)
	if err != nil {
		return respondError(c, err, "authenticate member")
	}

	return c.JSON(http.StatusOK, AuthCallbackResponse{
		Member:      toMemberResponse(result.Member),
		IsNewMember: result.IsNewMember,
	})
}

// Me returns the current member
// GET /auth/me
func (h *AuthHandler) Me(c echo.Context) error {
	member, err := h.authService.GetMemberByID(c.Request().Context(), middleware.GetMemberID(c))
	if err != nil {
		return respondError(c, err, "get member")
	}
	return c.JSON(http.StatusOK, toMemberResponse(member))
}

func toMemberResponse(member *domain.Member) MemberResponse {
	return MemberResponse{
		ID:        member.ID,
		Email:     member.Email,
		Name:      member.Name,
		Role:      string(member.Role),
		CreatedAt: member.CreatedAt.Format(time.RFC3339),
	}
}
