package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
)

var (
	// ErrInvalidToken is returned when the token does not verify
	ErrInvalidToken = errors.New("invalid token")
	// ErrMemberNotFound is returned when the token subject has not been provisioned
	ErrMemberNotFound = errors.New("member not found")
)

// MemberLookup resolves an Auth0 subject to a member ID
type MemberLookup interface {
	GetMemberIDByAuth0ID(ctx context.Context, auth0ID string) (int32, error)
}

// TokenVerifier checks a raw JWT. *validator.Validator satisfies it.
type TokenVerifier interface {
	ValidateToken(ctx context.Context, token string) (interface{}, error)
}

// Auth0JWTValidator authenticates the token carried on the /ws query string
// and maps its subject to a member
type Auth0JWTValidator struct {
	verifier TokenVerifier
	members  MemberLookup
}

// NewAuth0JWTValidator verifies RS256 tokens against the tenant's JWKS
func NewAuth0JWTValidator(domain, audience string, members MemberLookup) (*Auth0JWTValidator, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, fmt.Errorf("parse issuer: %w", err)
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)
	v, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("build validator: %w", err)
	}

	return NewMemberTokenValidator(v, members), nil
}

// NewMemberTokenValidator pairs any verifier with a member lookup
func NewMemberTokenValidator(verifier TokenVerifier, members MemberLookup) *Auth0JWTValidator {
	return &Auth0JWTValidator{verifier: verifier, members: members}
}

// ValidateToken returns the member the token was issued to
func (v *Auth0JWTValidator) ValidateToken(ctx context.Context, token string) (int32, error) {
	claims, err := v.verifier.ValidateToken(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	validated, ok := claims.(*validator.ValidatedClaims)
	if !ok || validated.RegisteredClaims.Subject == "" {
		return 0, ErrInvalidToken
	}

	memberID, err := v.members.GetMemberIDByAuth0ID(ctx, validated.RegisteredClaims.Subject)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMemberNotFound, err)
	}
	return memberID, nil
}
