package domain

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan
type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "pending"
	LoanStatusApproved  LoanStatus = "approved"
	LoanStatusActive    LoanStatus = "active"
	LoanStatusRejected  LoanStatus = "rejected"
	LoanStatusCompleted LoanStatus = "completed"
)

// IsValid reports whether s is a known loan status
func (s LoanStatus) IsValid() bool {
	switch s {
	case LoanStatusPending, LoanStatusApproved, LoanStatusActive, LoanStatusRejected, LoanStatusCompleted:
		return true
	}
	return false
}

// IsDecidable reports whether an admin may approve or reject a loan in this state.
// Active loans are treated like pending ones for decision purposes.
func (s LoanStatus) IsDecidable() bool {
	return s == LoanStatusPending || s == LoanStatusActive
}

// AcceptsPayments reports whether payments may be applied against the loan
func (s LoanStatus) AcceptsPayments() bool {
	return s == LoanStatusApproved || s == LoanStatusActive
}

// LoanDecision is an admin's verdict on a loan application
type LoanDecision string

const (
	LoanDecisionApprove LoanDecision = "approve"
	LoanDecisionReject  LoanDecision = "reject"
)

// IsValid reports whether d is a known decision
func (d LoanDecision) IsValid() bool {
	return d == LoanDecisionApprove || d == LoanDecisionReject
}

// Loan is a member loan. Terms and the amortization-derived amounts are frozen
// at creation; only RemainingBalance, Status and the audit fields change afterwards.
type Loan struct {
	ID         int32  `json:"id"`
	LoanNumber string `json:"loanNumber"`
	MemberID   int32  `json:"memberId"`

	Principal    decimal.Decimal `json:"principal"`
	TermMonths   int32           `json:"termMonths"`
	InterestRate decimal.Decimal `json:"interestRate"` // percent per month

	TotalInterest  decimal.Decimal `json:"totalInterest"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	MonthlyPayment decimal.Decimal `json:"monthlyPayment"`

	RemainingBalance decimal.Decimal `json:"remainingBalance"`
	Status           LoanStatus      `json:"status"`

	Purpose        string `json:"purpose"`
	PaymentMethod  string `json:"paymentMethod"`
	AccountDetails string `json:"accountDetails"`
	AccountName    string `json:"accountName"`

	ApprovedBy      *int32     `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	RejectionReason *string    `json:"rejectionReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the fields required for a loan record to be persisted
func (l *Loan) Validate() error {
	if l.MemberID <= 0 {
		return NewValidationError("memberId", "member is required")
	}
	if l.LoanNumber == "" {
		return NewValidationError("loanNumber", "loan number is required")
	}
	if err := ValidateAmount("principal", l.Principal); err != nil {
		return err
	}
	if l.TermMonths < 1 {
		return NewValidationError("termMonths", "term must be at least 1 month")
	}
	if err := ValidateRate(l.InterestRate); err != nil {
		return err
	}
	if strings.TrimSpace(l.Purpose) == "" {
		return NewValidationError("purpose", "purpose is required")
	}
	if strings.TrimSpace(l.PaymentMethod) == "" {
		return NewValidationError("paymentMethod", "payment method is required")
	}
	if strings.TrimSpace(l.AccountDetails) == "" {
		return NewValidationError("accountDetails", "account details are required")
	}
	if strings.TrimSpace(l.AccountName) == "" {
		return NewValidationError("accountName", "account name is required")
	}
	if !FitsPlaces(l.TotalAmount, MoneyPlaces) {
		return NewValidationError("totalAmount", "total amount must be whole cents")
	}
	if l.RemainingBalance.IsNegative() || l.RemainingBalance.GreaterThan(l.TotalAmount) {
		return NewValidationError("remainingBalance", "remaining balance must be between 0 and the total amount")
	}
	if !FitsPlaces(l.RemainingBalance, MoneyPlaces) {
		return NewValidationError("remainingBalance", "remaining balance must be whole cents")
	}
	if !l.Status.IsValid() {
		return NewValidationError("status", "unknown loan status")
	}
	return nil
}

// PaidAmount returns how much of the total has been settled
func (l *Loan) PaidAmount() decimal.Decimal {
	return l.TotalAmount.Sub(l.RemainingBalance)
}

// ScheduleStart returns the date installments are counted from: the approval
// date when the loan has been approved, otherwise its creation date
func (l *Loan) ScheduleStart() time.Time {
	if l.ApprovedAt != nil {
		return *l.ApprovedAt
	}
	return l.CreatedAt
}

// LoanRepository defines the interface for loan persistence operations
type LoanRepository interface {
	Create(ctx context.Context, loan *Loan) (*Loan, error)
	GetByID(ctx context.Context, id int32) (*Loan, error)
	GetByIDForUpdateTx(ctx context.Context, tx Tx, id int32) (*Loan, error)
	ListByMember(ctx context.Context, memberID int32) ([]*Loan, error)
	ListByStatus(ctx context.Context, status *LoanStatus) ([]*Loan, error)
	// UpdateStatusTx persists status, approver, approval time and rejection reason
	UpdateStatusTx(ctx context.Context, tx Tx, loan *Loan) (*Loan, error)
	// UpdateBalanceTx sets the balance and status only if the stored balance still
	// equals expected. It returns ErrBalanceChanged otherwise.
	UpdateBalanceTx(ctx context.Context, tx Tx, id int32, expected, balance decimal.Decimal, status LoanStatus) (*Loan, error)
}

// ErrBalanceChanged is returned when a balance compare-and-swap loses a race
var ErrBalanceChanged = StateConflictError{
	Entity: "loan", Action: "update balance of", Reason: "balance changed concurrently, retry the payment",
}
