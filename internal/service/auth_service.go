package service

import (
	"context"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/rs/zerolog/log"
)

// AuthService maps Auth0 identities onto cooperative members
type AuthService struct {
	memberRepo domain.MemberRepository
}

// NewAuthService creates a new AuthService
func NewAuthService(memberRepo domain.MemberRepository) *AuthService {
	return &AuthService{memberRepo: memberRepo}
}

// AuthResult represents the result of an authentication operation
type AuthResult struct {
	Member      *domain.Member
	IsNewMember bool
}

// AuthenticateMember handles the Auth0 callback, registering the caller as a
// plain member on first login. Admin roles are granted out of band.
func (s *AuthService) AuthenticateMember(ctx context.Context, auth0ID, email string, name *string) (*AuthResult, error) {
	if auth0ID == "" {
		return nil, domain.NewValidationError("auth0Id", "subject is required")
	}

	member, created, err := s.memberRepo.CreateOrGetByAuth0ID(ctx, auth0ID, email, name)
	if err != nil {
		log.Error().Err(err).Str("auth0_id", auth0ID).Msg("Failed to create or get member")
		return nil, err
	}

	if created {
		log.Info().Int32("member_id", member.ID).Msg("Registered new member")
	} else {
		log.Info().Int32("member_id", member.ID).Msg("Existing member authenticated")
	}

	return &AuthResult{Member: member, IsNewMember: created}, nil
}

// GetMemberByID retrieves a member by ID
func (s *AuthService) GetMemberByID(ctx context.Context, id int32) (*domain.Member, error) {
	return s.memberRepo.GetByID(ctx, id)
}

// GetMemberByAuth0ID retrieves a member by their Auth0 subject
func (s *AuthService) GetMemberByAuth0ID(ctx context.Context, auth0ID string) (*domain.Member, error) {
	return s.memberRepo.GetByAuth0ID(ctx, auth0ID)
}

// GetMemberIDByAuth0ID resolves an Auth0 subject to a member ID. It satisfies
// the WebSocket MemberLookup.
func (s *AuthService) GetMemberIDByAuth0ID(ctx context.Context, auth0ID string) (int32, error) {
	member, err := s.memberRepo.GetByAuth0ID(ctx, auth0ID)
	if err != nil {
		return 0, err
	}
	return member.ID, nil
}
