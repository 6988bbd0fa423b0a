package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/dafibh/cooplend/cooplend-backend/internal/middleware"
	"github.com/dafibh/cooplend/cooplend-backend/internal/service"
	"github.com/dafibh/cooplend/cooplend-backend/internal/testutil"
	"github.com/labstack/echo/v4"
)

// tokenValidator treats the bearer token as the Auth0 subject
type tokenValidator struct{}

func (tokenValidator) ValidateToken(ctx context.Context, token string) (interface{}, error) {
	if !strings.HasPrefix(token, "auth0|") {
		return nil, errors.New("invalid token")
	}
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{Subject: token},
		CustomClaims:     &middleware.CustomClaims{Email: "someone@example.com"},
	}, nil
}

func newTestRouter(t *testing.T) *echo.Echo {
	t.Helper()

	f := newHandlerFixture(nil)
	authService := service.NewAuthService(f.members)
	contributions := service.NewContributionService(testutil.NewMockContributionRepository(), f.members, nil)
	notifications := service.NewNotificationService(testutil.NewMockNotificationRepository())

	rateLimiter := middleware.NewRateLimiterWithConfig(60, 2)
	t.Cleanup(rateLimiter.Stop)

	e := echo.New()
	RegisterRoutes(e, middleware.NewAuthMiddlewareWithValidator(tokenValidator{}, authService), rateLimiter, Handlers{
		Auth:         NewAuthHandler(authService),
		Loan:         f.loan,
		Payment:      f.payment,
		Contribution: NewContributionHandler(contributions),
		Notification: NewNotificationHandler(notifications),
	})
	return e
}

func TestRoutes_Authorization(t *testing.T) {
	e := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"no token", http.MethodGet, "/api/v1/loans", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/api/v1/loans", "garbage", http.StatusUnauthorized},
		{"unregistered subject", http.MethodGet, "/api/v1/loans", "auth0|stranger", http.StatusUnauthorized},
		{"member lists own loans", http.MethodGet, "/api/v1/loans", "auth0|member", http.StatusOK},
		{"member on admin route", http.MethodGet, "/api/v1/admin/loans", "auth0|member", http.StatusForbidden},
		{"admin on admin route", http.MethodGet, "/api/v1/admin/loans", "auth0|admin", http.StatusOK},
		{"admin pending payments", http.MethodGet, "/api/v1/admin/payments/pending", "auth0|admin", http.StatusOK},
		{"me", http.MethodGet, "/api/v1/auth/me", "auth0|member", http.StatusOK},
		{"callback before registration", http.MethodPost, "/api/v1/auth/callback", "auth0|newcomer", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRoutes_SubmissionsAreThrottled(t *testing.T) {
	e := newTestRouter(t)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/contributions", strings.NewReader(`{"amount": "10"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer auth0|member")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusCreated || codes[1] != http.StatusCreated {
		t.Errorf("Expected first two submissions to succeed, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected third submission to be throttled, got %d", codes[2])
	}
}

func TestRoutes_AdminCreatesLoanForMember(t *testing.T) {
	e := newTestRouter(t)

	body := `{"memberId": 42, "principal": "2000", "termMonths": 3, "purpose": "Tools", "paymentMethod": "cash", "accountDetails": "Counter", "accountName": "Jane"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/loans", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer auth0|admin")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"status":"`+string(domain.LoanStatusApproved)+`"`) {
		t.Errorf("Expected an approved loan, got %s", rec.Body.String())
	}
}
