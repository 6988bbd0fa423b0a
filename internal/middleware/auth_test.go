package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/labstack/echo/v4"
)

// fakeValidator accepts a single token and returns claims for a fixed subject
type fakeValidator struct {
	token   string
	subject string
}

func (f *fakeValidator) ValidateToken(ctx context.Context, token string) (interface{}, error) {
	if token != f.token {
		return nil, errors.New("invalid token")
	}
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{Subject: f.subject},
		CustomClaims:     &CustomClaims{Email: "member@example.com", Name: "Member"},
	}, nil
}

// mockMemberProvider implements MemberProvider for testing
type mockMemberProvider struct {
	members map[string]*domain.Member
	err     error
}

func (m *mockMemberProvider) GetMemberByAuth0ID(ctx context.Context, auth0ID string) (*domain.Member, error) {
	if m.err != nil {
		return nil, m.err
	}
	if member, ok := m.members[auth0ID]; ok {
		return member, nil
	}
	return nil, domain.ErrMemberNotFound
}

func newTestAuthMiddleware() *AuthMiddleware {
	return NewAuthMiddlewareWithValidator(
		&fakeValidator{token: "good-token", subject: "auth0|member"},
		&mockMemberProvider{members: map[string]*domain.Member{
			"auth0|member": {ID: 42, Auth0ID: "auth0|member", Role: domain.MemberRoleMember},
			"auth0|admin":  {ID: 1, Auth0ID: "auth0|admin", Role: domain.MemberRoleAdmin},
		}},
	)
}

func withContextValue(c echo.Context, key contextKey, value interface{}) {
	ctx := context.WithValue(c.Request().Context(), key, value)
	c.SetRequest(c.Request().WithContext(ctx))
}

func TestGetAuth0ID(t *testing.T) {
	e := echo.New()

	tests := []struct {
		name     string
		setup    func(c echo.Context)
		expected string
	}{
		{
			name: "returns auth0 id when present",
			setup: func(c echo.Context) {
				withContextValue(c, Auth0IDKey, "auth0|12345")
			},
			expected: "auth0|12345",
		},
		{
			name:     "returns empty string when not present",
			setup:    func(c echo.Context) {},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			tt.setup(c)

			result := GetAuth0ID(c)
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestGetCustomClaims(t *testing.T) {
	e := echo.New()

	t.Run("returns custom claims when present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		withContextValue(c, ClaimsKey, &validator.ValidatedClaims{
			RegisteredClaims: validator.RegisteredClaims{Subject: "auth0|test"},
			CustomClaims:     &CustomClaims{Email: "test@example.com", Name: "Test User"},
		})

		result := GetCustomClaims(c)
		if result == nil {
			t.Fatal("Expected custom claims, got nil")
		}
		if result.Email != "test@example.com" {
			t.Errorf("Expected email 'test@example.com', got %q", result.Email)
		}
		if GetClaims(c).RegisteredClaims.Subject != "auth0|test" {
			t.Errorf("Expected subject 'auth0|test', got %q", GetClaims(c).RegisteredClaims.Subject)
		}
	})

	t.Run("returns nil when claims not present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if GetCustomClaims(c) != nil {
			t.Error("Expected nil, got custom claims")
		}
	})
}

func TestAuthenticate(t *testing.T) {
	e := echo.New()
	m := newTestAuthMiddleware()

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"no bearer prefix", "good-token", http.StatusUnauthorized},
		{"wrong scheme", "Basic good-token", http.StatusUnauthorized},
		{"invalid token", "Bearer bad-token", http.StatusUnauthorized},
		{"valid token", "Bearer good-token", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/loans", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var subject string
			handler := m.Authenticate()(func(c echo.Context) error {
				subject = GetAuth0ID(c)
				return c.String(http.StatusOK, "ok")
			})

			if err := handler(c); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusOK && subject != "auth0|member" {
				t.Errorf("Expected subject 'auth0|member', got %q", subject)
			}
		})
	}
}

func TestRequireMember(t *testing.T) {
	e := echo.New()

	tests := []struct {
		name       string
		auth0ID    string
		provider   MemberProvider
		wantStatus int
		wantID     int32
		wantAdmin  bool
	}{
		{name: "member", auth0ID: "auth0|member", wantStatus: http.StatusOK, wantID: 42},
		{name: "admin", auth0ID: "auth0|admin", wantStatus: http.StatusOK, wantID: 1, wantAdmin: true},
		{name: "unregistered", auth0ID: "auth0|stranger", wantStatus: http.StatusUnauthorized},
		{name: "unauthenticated", auth0ID: "", wantStatus: http.StatusUnauthorized},
		{
			name:       "lookup failure",
			auth0ID:    "auth0|member",
			provider:   &mockMemberProvider{err: errors.New("connection refused")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestAuthMiddleware()
			if tt.provider != nil {
				m = NewAuthMiddlewareWithValidator(&fakeValidator{}, tt.provider)
			}

			req := httptest.NewRequest(http.MethodGet, "/api/v1/loans", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			if tt.auth0ID != "" {
				withContextValue(c, Auth0IDKey, tt.auth0ID)
			}

			var gotID int32
			var gotAdmin bool
			handler := m.RequireMember()(func(c echo.Context) error {
				gotID = GetMemberID(c)
				gotAdmin = IsAdmin(c)
				return c.String(http.StatusOK, "ok")
			})

			if err := handler(c); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if gotID != tt.wantID {
				t.Errorf("Expected member ID %d, got %d", tt.wantID, gotID)
			}
			if gotAdmin != tt.wantAdmin {
				t.Errorf("Expected admin %v, got %v", tt.wantAdmin, gotAdmin)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	e := echo.New()
	m := newTestAuthMiddleware()

	tests := []struct {
		name       string
		role       interface{}
		wantStatus int
	}{
		{"admin allowed", domain.MemberRoleAdmin, http.StatusOK},
		{"member forbidden", domain.MemberRoleMember, http.StatusForbidden},
		{"no role forbidden", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/loans/1/decision", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			if tt.role != nil {
				withContextValue(c, MemberRoleKey, tt.role)
			}

			handler := m.RequireAdmin()(func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})

			if err := handler(c); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestGetMemberID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if GetMemberID(c) != 0 {
		t.Error("Expected 0 when member ID is not present")
	}

	withContextValue(c, MemberIDKey, int32(42))
	if GetMemberID(c) != 42 {
		t.Errorf("Expected 42, got %d", GetMemberID(c))
	}
}
