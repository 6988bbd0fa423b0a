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

const loanColumns = `id, loan_number, member_id, principal, term_months, interest_rate,
	total_interest, total_amount, monthly_payment, remaining_balance, status,
	purpose, payment_method, account_details, account_name,
	approved_by, approved_at, rejection_reason, created_at, updated_at`

// LoanRepository implements domain.LoanRepository using PostgreSQL
type LoanRepository struct {
	pool *pgxpool.Pool
}

// NewLoanRepository creates a new LoanRepository
func NewLoanRepository(pool *pgxpool.Pool) *LoanRepository {
	return &LoanRepository{pool: pool}
}

// Create inserts a new loan
func (r *LoanRepository) Create(ctx context.Context, loan *domain.Loan) (*domain.Loan, error) {
	principal, err := decimalToPgNumeric(loan.Principal)
	if err != nil {
		return nil, err
	}
	interestRate, err := decimalToPgNumeric(loan.InterestRate)
	if err != nil {
		return nil, err
	}
	totalInterest, err := decimalToPgNumeric(loan.TotalInterest)
	if err != nil {
		return nil, err
	}
	totalAmount, err := decimalToPgNumeric(loan.TotalAmount)
	if err != nil {
		return nil, err
	}
	monthlyPayment, err := decimalToPgNumeric(loan.MonthlyPayment)
	if err != nil {
		return nil, err
	}
	remaining, err := decimalToPgNumeric(loan.RemainingBalance)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO loans (
			loan_number, member_id, principal, term_months, interest_rate,
			total_interest, total_amount, monthly_payment, remaining_balance, status,
			purpose, payment_method, account_details, account_name,
			approved_by, approved_at, rejection_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING `+loanColumns,
		loan.LoanNumber, loan.MemberID, principal, loan.TermMonths, interestRate,
		totalInterest, totalAmount, monthlyPayment, remaining, string(loan.Status),
		loan.Purpose, loan.PaymentMethod, loan.AccountDetails, loan.AccountName,
		int32PtrToPgInt4(loan.ApprovedBy), timePtrToPgTimestamptz(loan.ApprovedAt), stringPtrToPgText(loan.RejectionReason),
	)
	return scanLoan(row)
}

// GetByID retrieves a loan by ID
func (r *LoanRepository) GetByID(ctx context.Context, id int32) (*domain.Loan, error) {
	return scanLoan(r.pool.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id))
}

// GetByIDForUpdateTx retrieves a loan and holds its row lock until the
// transaction ends. Every balance change goes through this lock.
func (r *LoanRepository) GetByIDForUpdateTx(ctx context.Context, tx domain.Tx, id int32) (*domain.Loan, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	return scanLoan(q.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id))
}

// ListByMember retrieves all loans of a member, newest first
func (r *LoanRepository) ListByMember(ctx context.Context, memberID int32) ([]*domain.Loan, error) {
	return r.list(ctx, r.pool, `SELECT `+loanColumns+` FROM loans WHERE member_id = $1 ORDER BY id DESC`, memberID)
}

// ListByStatus retrieves loans newest first, filtered by status when one is given
func (r *LoanRepository) ListByStatus(ctx context.Context, status *domain.LoanStatus) ([]*domain.Loan, error) {
	filter := pgtype.Text{}
	if status != nil {
		filter = pgtype.Text{String: string(*status), Valid: true}
	}
	return r.list(ctx, r.pool, `SELECT `+loanColumns+` FROM loans WHERE ($1::text IS NULL OR status = $1) ORDER BY id DESC`, filter)
}

// UpdateStatusTx persists the decision fields of a loan
func (r *LoanRepository) UpdateStatusTx(ctx context.Context, tx domain.Tx, loan *domain.Loan) (*domain.Loan, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	row := q.QueryRow(ctx, `
		UPDATE loans
		SET status = $2, approved_by = $3, approved_at = $4, rejection_reason = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+loanColumns,
		loan.ID, string(loan.Status), int32PtrToPgInt4(loan.ApprovedBy),
		timePtrToPgTimestamptz(loan.ApprovedAt), stringPtrToPgText(loan.RejectionReason),
	)
	return scanLoan(row)
}

// UpdateBalanceTx sets the remaining balance and status only while the stored
// balance still equals expected
func (r *LoanRepository) UpdateBalanceTx(ctx context.Context, tx domain.Tx, id int32, expected, balance decimal.Decimal, status domain.LoanStatus) (*domain.Loan, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	pgExpected, err := decimalToPgNumeric(expected)
	if err != nil {
		return nil, err
	}
	pgBalance, err := decimalToPgNumeric(balance)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `
		UPDATE loans
		SET remaining_balance = $3, status = $4, updated_at = NOW()
		WHERE id = $1 AND remaining_balance = $2
		RETURNING `+loanColumns,
		id, pgExpected, pgBalance, string(status),
	)
	loan, err := scanLoan(row)
	if errors.Is(err, domain.ErrLoanNotFound) {
		return nil, domain.ErrBalanceChanged
	}
	return loan, err
}

func (r *LoanRepository) list(ctx context.Context, q querier, sql string, args ...any) ([]*domain.Loan, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.Loan, 0)
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, loan)
	}
	return result, rows.Err()
}

func scanLoan(row rowScanner) (*domain.Loan, error) {
	var (
		l               domain.Loan
		principal       pgtype.Numeric
		interestRate    pgtype.Numeric
		totalInterest   pgtype.Numeric
		total           pgtype.Numeric
		monthlyPayment  pgtype.Numeric
		remaining       pgtype.Numeric
		status          string
		approvedBy      pgtype.Int4
		approvedAt      pgtype.Timestamptz
		rejectionReason pgtype.Text
	)
	err := row.Scan(
		&l.ID, &l.LoanNumber, &l.MemberID, &principal, &l.TermMonths, &interestRate,
		&totalInterest, &total, &monthlyPayment, &remaining, &status,
		&l.Purpose, &l.PaymentMethod, &l.AccountDetails, &l.AccountName,
		&approvedBy, &approvedAt, &rejectionReason, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}

	l.Principal = pgNumericToDecimal(principal)
	l.InterestRate = pgNumericToDecimal(interestRate)
	l.TotalInterest = pgNumericToDecimal(totalInterest)
	l.TotalAmount = pgNumericToDecimal(total)
	l.MonthlyPayment = pgNumericToDecimal(monthlyPayment)
	l.RemainingBalance = pgNumericToDecimal(remaining)
	l.Status = domain.LoanStatus(status)
	l.ApprovedBy = pgInt4ToInt32Ptr(approvedBy)
	l.ApprovedAt = pgTimestamptzToTimePtr(approvedAt)
	l.RejectionReason = pgTextToStringPtr(rejectionReason)
	return &l, nil
}
