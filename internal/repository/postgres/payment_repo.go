package postgres

import (
	"context"
	"errors"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `id, receipt_number, loan_id, member_id, amount, payment_date, payment_method,
	status, receipt_path, recorded_by, verified_by, verified_at, created_at, updated_at`

// PaymentRepository implements domain.PaymentRepository using PostgreSQL
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// CreateTx inserts a payment within a transaction
func (r *PaymentRepository) CreateTx(ctx context.Context, tx domain.Tx, payment *domain.Payment) (*domain.Payment, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	amount, err := decimalToPgNumeric(payment.Amount)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `
		INSERT INTO payments (
			receipt_number, loan_id, member_id, amount, payment_date, payment_method,
			status, receipt_path, recorded_by, verified_by, verified_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+paymentColumns,
		payment.ReceiptNumber, payment.LoanID, payment.MemberID, amount,
		pgtype.Date{Time: payment.PaymentDate, Valid: true}, payment.PaymentMethod,
		string(payment.Status), stringPtrToPgText(payment.ReceiptPath),
		int32PtrToPgInt4(payment.RecordedBy), int32PtrToPgInt4(payment.VerifiedBy),
		timePtrToPgTimestamptz(payment.VerifiedAt),
	)
	return scanPayment(row)
}

// GetByID retrieves a payment by ID
func (r *PaymentRepository) GetByID(ctx context.Context, id int32) (*domain.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// GetByIDForUpdateTx retrieves a payment and locks its row
func (r *PaymentRepository) GetByIDForUpdateTx(ctx context.Context, tx domain.Tx, id int32) (*domain.Payment, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	return scanPayment(q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
}

// ListByLoan retrieves all payments of a loan, oldest first
func (r *PaymentRepository) ListByLoan(ctx context.Context, loanID int32) ([]*domain.Payment, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payments WHERE loan_id = $1 ORDER BY payment_date, id`, loanID)
}

// ListPending retrieves the verification queue, oldest first
func (r *PaymentRepository) ListPending(ctx context.Context) ([]*domain.Payment, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payments WHERE status = 'pending' ORDER BY created_at, id`)
}

// UpdateStatusTx persists the verification fields of a payment
func (r *PaymentRepository) UpdateStatusTx(ctx context.Context, tx domain.Tx, payment *domain.Payment) (*domain.Payment, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}
	row := q.QueryRow(ctx, `
		UPDATE payments
		SET status = $2, verified_by = $3, verified_at = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+paymentColumns,
		payment.ID, string(payment.Status), int32PtrToPgInt4(payment.VerifiedBy),
		timePtrToPgTimestamptz(payment.VerifiedAt),
	)
	return scanPayment(row)
}

// AttachReceipt sets the receipt path of a payment that is still pending
func (r *PaymentRepository) AttachReceipt(ctx context.Context, id int32, receiptPath string) (*domain.Payment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE payments
		SET receipt_path = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+paymentColumns,
		id, receiptPath,
	)
	payment, err := scanPayment(row)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		// Distinguish a missing row from one that has already been decided
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrReceiptNotAllowed
	}
	return payment, err
}

// CountVerifiedByLoan counts the verified payments of a loan
func (r *PaymentRepository) CountVerifiedByLoan(ctx context.Context, loanID int32) (int32, error) {
	var count int32
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*)::int FROM payments WHERE loan_id = $1 AND status = 'verified'`, loanID,
	).Scan(&count)
	return count, err
}

func (r *PaymentRepository) list(ctx context.Context, sql string, args ...any) ([]*domain.Payment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, payment)
	}
	return result, rows.Err()
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		p           domain.Payment
		amount      pgtype.Numeric
		paymentDate pgtype.Date
		status      string
		receiptPath pgtype.Text
		recordedBy  pgtype.Int4
		verifiedBy  pgtype.Int4
		verifiedAt  pgtype.Timestamptz
	)
	err := row.Scan(
		&p.ID, &p.ReceiptNumber, &p.LoanID, &p.MemberID, &amount, &paymentDate, &p.PaymentMethod,
		&status, &receiptPath, &recordedBy, &verifiedBy, &verifiedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}

	p.Amount = pgNumericToDecimal(amount)
	p.PaymentDate = paymentDate.Time
	p.Status = domain.PaymentStatus(status)
	p.ReceiptPath = pgTextToStringPtr(receiptPath)
	p.RecordedBy = pgInt4ToInt32Ptr(recordedBy)
	p.VerifiedBy = pgInt4ToInt32Ptr(verifiedBy)
	p.VerifiedAt = pgTimestamptzToTimePtr(verifiedAt)
	return &p, nil
}
