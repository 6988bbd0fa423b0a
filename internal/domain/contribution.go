package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ContributionStatus is the confirmation state of a member contribution
type ContributionStatus string

const (
	ContributionStatusPending   ContributionStatus = "pending"
	ContributionStatusConfirmed ContributionStatus = "confirmed"
	ContributionStatusRejected  ContributionStatus = "rejected"
)

// ContributionDecision is an admin's verdict on a pending contribution
type ContributionDecision string

const (
	ContributionDecisionConfirm ContributionDecision = "confirm"
	ContributionDecisionReject  ContributionDecision = "reject"
)

// IsValid reports whether d is a known decision
func (d ContributionDecision) IsValid() bool {
	return d == ContributionDecisionConfirm || d == ContributionDecisionReject
}

type Contribution struct {
	ID            int32              `json:"id"`
	ReceiptNumber string             `json:"receiptNumber"`
	MemberID      int32              `json:"memberId"`
	Amount        decimal.Decimal    `json:"amount"`
	Note          *string            `json:"note,omitempty"`
	Status        ContributionStatus `json:"status"`
	RecordedBy    *int32             `json:"recordedBy,omitempty"`
	DecidedBy     *int32             `json:"decidedBy,omitempty"`
	DecidedAt     *time.Time         `json:"decidedAt,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

func (c *Contribution) Validate() error {
	if c.MemberID <= 0 {
		return NewValidationError("memberId", "member is required")
	}
	if c.ReceiptNumber == "" {
		return NewValidationError("receiptNumber", "receipt number is required")
	}
	if err := ValidateAmount("amount", c.Amount); err != nil {
		return err
	}
	return nil
}

// ContributionRepository defines the interface for contribution persistence operations
type ContributionRepository interface {
	Create(ctx context.Context, contribution *Contribution) (*Contribution, error)
	GetByID(ctx context.Context, id int32) (*Contribution, error)
	ListByMember(ctx context.Context, memberID int32) ([]*Contribution, error)
	ListPending(ctx context.Context) ([]*Contribution, error)
	// DecidePending moves a pending contribution to its decided status. It
	// returns ErrContributionAlreadyProcessed if the stored row is no longer pending.
	DecidePending(ctx context.Context, contribution *Contribution) (*Contribution, error)
	SumConfirmedByMember(ctx context.Context, memberID int32) (decimal.Decimal, error)
}
