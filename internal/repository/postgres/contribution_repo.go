package postgres

import (
	"context"
	"errors"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const contributionColumns = `id, receipt_number, member_id, amount, note, status,
	recorded_by, decided_by, decided_at, created_at, updated_at`

// ContributionRepository implements domain.ContributionRepository using PostgreSQL
type ContributionRepository struct {
	pool *pgxpool.Pool
}

// NewContributionRepository creates a new ContributionRepository
func NewContributionRepository(pool *pgxpool.Pool) *ContributionRepository {
	return &ContributionRepository{pool: pool}
}

// Create inserts a contribution
func (r *ContributionRepository) Create(ctx context.Context, c *domain.Contribution) (*domain.Contribution, error) {
	amount, err := decimalToPgNumeric(c.Amount)
	if err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO contributions (receipt_number, member_id, amount, note, status, recorded_by, decided_by, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+contributionColumns,
		c.ReceiptNumber, c.MemberID, amount, stringPtrToPgText(c.Note), string(c.Status),
		int32PtrToPgInt4(c.RecordedBy), int32PtrToPgInt4(c.DecidedBy), timePtrToPgTimestamptz(c.DecidedAt),
	)
	return scanContribution(row)
}

// GetByID retrieves a contribution by ID
func (r *ContributionRepository) GetByID(ctx context.Context, id int32) (*domain.Contribution, error) {
	return scanContribution(r.pool.QueryRow(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE id = $1`, id))
}

// ListByMember retrieves all contributions of a member, newest first
func (r *ContributionRepository) ListByMember(ctx context.Context, memberID int32) ([]*domain.Contribution, error) {
	return r.list(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE member_id = $1 ORDER BY id DESC`, memberID)
}

// ListPending retrieves the confirmation queue, oldest first
func (r *ContributionRepository) ListPending(ctx context.Context) ([]*domain.Contribution, error) {
	return r.list(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE status = 'pending' ORDER BY id`)
}

// DecidePending moves a pending contribution to its decided status. The
// status guard in the WHERE clause makes concurrent decisions resolve to one winner.
func (r *ContributionRepository) DecidePending(ctx context.Context, c *domain.Contribution) (*domain.Contribution, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE contributions
		SET status = $2, decided_by = $3, decided_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+contributionColumns,
		c.ID, string(c.Status), int32PtrToPgInt4(c.DecidedBy), timePtrToPgTimestamptz(c.DecidedAt),
	)
	decided, err := scanContribution(row)
	if errors.Is(err, domain.ErrContributionNotFound) {
		if _, getErr := r.GetByID(ctx, c.ID); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrContributionAlreadyProcessed
	}
	return decided, err
}

// SumConfirmedByMember totals a member's confirmed contributions
func (r *ContributionRepository) SumConfirmedByMember(ctx context.Context, memberID int32) (decimal.Decimal, error) {
	var total pgtype.Numeric
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM contributions WHERE member_id = $1 AND status = 'confirmed'`, memberID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return pgNumericToDecimal(total), nil
}

func (r *ContributionRepository) list(ctx context.Context, sql string, args ...any) ([]*domain.Contribution, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.Contribution, 0)
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanContribution(row rowScanner) (*domain.Contribution, error) {
	var (
		c          domain.Contribution
		amount     pgtype.Numeric
		note       pgtype.Text
		status     string
		recordedBy pgtype.Int4
		decidedBy  pgtype.Int4
		decidedAt  pgtype.Timestamptz
	)
	err := row.Scan(
		&c.ID, &c.ReceiptNumber, &c.MemberID, &amount, &note, &status,
		&recordedBy, &decidedBy, &decidedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrContributionNotFound
		}
		return nil, err
	}

	c.Amount = pgNumericToDecimal(amount)
	c.Note = pgTextToStringPtr(note)
	c.Status = domain.ContributionStatus(status)
	c.RecordedBy = pgInt4ToInt32Ptr(recordedBy)
	c.DecidedBy = pgInt4ToInt32Ptr(decidedBy)
	c.DecidedAt = pgTimestamptzToTimePtr(decidedAt)
	return &c, nil
}
