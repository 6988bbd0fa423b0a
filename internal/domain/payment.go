package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the verification state of a loan payment. Admin cash
// entries are created directly as verified.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusVerified PaymentStatus = "verified"
	PaymentStatusRejected PaymentStatus = "rejected"
)

// PaymentDecision is an admin's verdict on a pending payment
type PaymentDecision string

const (
	PaymentDecisionVerify PaymentDecision = "verify"
	PaymentDecisionReject PaymentDecision = "reject"
)

// IsValid reports whether d is a known decision
func (d PaymentDecision) IsValid() bool {
	return d == PaymentDecisionVerify || d == PaymentDecisionReject
}

// Payment is a repayment against a loan. Only verified payments have been
// deducted from the loan's remaining balance.
type Payment struct {
	ID            int32           `json:"id"`
	ReceiptNumber string          `json:"receiptNumber"`
	LoanID        int32           `json:"loanId"`
	MemberID      int32           `json:"memberId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   time.Time       `json:"paymentDate"`
	PaymentMethod string          `json:"paymentMethod"`
	Status        PaymentStatus   `json:"status"`
	ReceiptPath   *string         `json:"receiptPath,omitempty"`
	RecordedBy    *int32          `json:"recordedBy,omitempty"`
	VerifiedBy    *int32          `json:"verifiedBy,omitempty"`
	VerifiedAt    *time.Time      `json:"verifiedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Validate checks the fields required for a payment record to be persisted
func (p *Payment) Validate() error {
	if p.LoanID <= 0 {
		return NewValidationError("loanId", "loan is required")
	}
	if p.MemberID <= 0 {
		return NewValidationError("memberId", "member is required")
	}
	if p.ReceiptNumber == "" {
		return NewValidationError("receiptNumber", "receipt number is required")
	}
	if err := ValidateAmount("amount", p.Amount); err != nil {
		return err
	}
	if p.PaymentMethod == "" {
		return NewValidationError("paymentMethod", "payment method is required")
	}
	return nil
}

// PaymentProgress is the installment-count view of a loan's repayment
type PaymentProgress struct {
	LoanID           int32           `json:"loanId"`
	Paid             int32           `json:"paid"`
	Expected         int32           `json:"expected"`
	Remaining        int32           `json:"remaining"`
	PaidAmount       decimal.Decimal `json:"paidAmount"`
	RemainingBalance decimal.Decimal `json:"remainingBalance"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
}

// PaymentRepository defines the interface for payment persistence operations
type PaymentRepository interface {
	CreateTx(ctx context.Context, tx Tx, payment *Payment) (*Payment, error)
	GetByID(ctx context.Context, id int32) (*Payment, error)
	GetByIDForUpdateTx(ctx context.Context, tx Tx, id int32) (*Payment, error)
	ListByLoan(ctx context.Context, loanID int32) ([]*Payment, error)
	ListPending(ctx context.Context) ([]*Payment, error)
	// UpdateStatusTx persists status, verifier and verification time
	UpdateStatusTx(ctx context.Context, tx Tx, payment *Payment) (*Payment, error)
	// AttachReceipt sets the receipt path of a pending payment. It returns
	// ErrReceiptNotAllowed if the stored row is no longer pending.
	AttachReceipt(ctx context.Context, id int32, receiptPath string) (*Payment, error)
	CountVerifiedByLoan(ctx context.Context, loanID int32) (int32, error)
}
