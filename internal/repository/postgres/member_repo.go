package postgres

import (
	"context"
	"errors"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const memberColumns = `id, auth0_id, email, name, role, created_at, updated_at`

// MemberRepository implements domain.MemberRepository using PostgreSQL
type MemberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository creates a new MemberRepository
func NewMemberRepository(pool *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

// GetByID retrieves a member by ID
func (r *MemberRepository) GetByID(ctx context.Context, id int32) (*domain.Member, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	return scanMember(row)
}

// GetByAuth0ID retrieves a member by their Auth0 subject
func (r *MemberRepository) GetByAuth0ID(ctx context.Context, auth0ID string) (*domain.Member, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE auth0_id = $1`, auth0ID)
	return scanMember(row)
}

// CreateOrGetByAuth0ID registers a member on first login or returns the
// existing one, refreshing the email and name from the identity provider.
// The boolean reports whether the row was inserted.
func (r *MemberRepository) CreateOrGetByAuth0ID(ctx context.Context, auth0ID, email string, name *string) (*domain.Member, bool, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO members (auth0_id, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (auth0_id) DO UPDATE
		SET email = EXCLUDED.email,
		    name = COALESCE(EXCLUDED.name, members.name),
		    updated_at = NOW()
		RETURNING `+memberColumns+`, (xmax = 0) AS inserted`,
		auth0ID, email, stringPtrToPgText(name))

	var (
		m        domain.Member
		pgName   pgtype.Text
		role     string
		inserted bool
	)
	if err := row.Scan(&m.ID, &m.Auth0ID, &m.Email, &pgName, &role, &m.CreatedAt, &m.UpdatedAt, &inserted); err != nil {
		return nil, false, err
	}
	m.Name = pgTextToStringPtr(pgName)
	m.Role = domain.MemberRole(role)
	return &m, inserted, nil
}

func scanMember(row rowScanner) (*domain.Member, error) {
	var (
		m      domain.Member
		pgName pgtype.Text
		role   string
	)
	if err := row.Scan(&m.ID, &m.Auth0ID, &m.Email, &pgName, &role, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	m.Name = pgTextToStringPtr(pgName)
	m.Role = domain.MemberRole(role)
	return &m, nil
}
