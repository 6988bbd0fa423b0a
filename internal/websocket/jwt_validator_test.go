package websocket

import (
	"context"
	"errors"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	claims interface{}
	err    error
}

func (s stubVerifier) ValidateToken(ctx context.Context, token string) (interface{}, error) {
	return s.claims, s.err
}

type stubMembers map[string]int32

func (s stubMembers) GetMemberIDByAuth0ID(ctx context.Context, auth0ID string) (int32, error) {
	if id, ok := s[auth0ID]; ok {
		return id, nil
	}
	return 0, errors.New("no rows")
}

func claimsFor(subject string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{RegisteredClaims: validator.RegisteredClaims{Subject: subject}}
}

func TestAuth0JWTValidator_ValidateToken(t *testing.T) {
	members := stubMembers{"auth0|jane": 42}

	tests := []struct {
		name     string
		verifier stubVerifier
		wantID   int32
		wantErr  error
	}{
		{"known member", stubVerifier{claims: claimsFor("auth0|jane")}, 42, nil},
		{"bad signature", stubVerifier{err: errors.New("signature mismatch")}, 0, ErrInvalidToken},
		{"unexpected claims type", stubVerifier{claims: map[string]string{"sub": "auth0|jane"}}, 0, ErrInvalidToken},
		{"empty subject", stubVerifier{claims: claimsFor("")}, 0, ErrInvalidToken},
		{"not provisioned", stubVerifier{claims: claimsFor("auth0|stranger")}, 0, ErrMemberNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewMemberTokenValidator(tt.verifier, members)
			id, err := v.ValidateToken(context.Background(), "token")

			assert.Equal(t, tt.wantID, id)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewAuth0JWTValidator_RejectsGarbage(t *testing.T) {
	v, err := NewAuth0JWTValidator("tenant.auth0.com", "https://api.cooplend.app", stubMembers{})
	require.NoError(t, err)

	id, err := v.ValidateToken(context.Background(), "not-a-jwt")
	assert.Equal(t, int32(0), id)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
