package domain

import (
	"context"
	"time"
)

// MemberRole controls which lending operations a member may perform
type MemberRole string

const (
	MemberRoleMember MemberRole = "member"
	MemberRoleAdmin  MemberRole = "admin"
)

// Member is a cooperative member, identified externally by their Auth0 subject
type Member struct {
	ID        int32      `json:"id"`
	Auth0ID   string     `json:"auth0Id"`
	Email     string     `json:"email"`
	Name      *string    `json:"name"`
	Role      MemberRole `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// IsAdmin reports whether the member may decide loans and verify payments
func (m *Member) IsAdmin() bool {
	return m.Role == MemberRoleAdmin
}

// MemberRepository defines the interface for member persistence operations
type MemberRepository interface {
	GetByID(ctx context.Context, id int32) (*Member, error)
	GetByAuth0ID(ctx context.Context, auth0ID string) (*Member, error)
	CreateOrGetByAuth0ID(ctx context.Context, auth0ID, email string, name *string) (*Member, bool, error)
}
