package domain

import (
	"context"
	"time"
)

// NotificationKind classifies a member notification
type NotificationKind string

const (
	NotificationLoanApplication       NotificationKind = "loan_application"
	NotificationLoanApproval          NotificationKind = "loan_approval"
	NotificationLoanRejection         NotificationKind = "loan_rejection"
	NotificationLoanReactivated       NotificationKind = "loan_reactivated"
	NotificationPaymentSubmitted      NotificationKind = "payment_submitted"
	NotificationPaymentProcessed      NotificationKind = "payment_processed"
	NotificationPaymentRejected       NotificationKind = "payment_rejected"
	NotificationContributionRecorded  NotificationKind = "contribution_recorded"
	NotificationContributionConfirmed NotificationKind = "contribution_confirmed"
	NotificationContributionRejected  NotificationKind = "contribution_rejected"
)

type Notification struct {
	ID        int32            `json:"id"`
	MemberID  int32            `json:"memberId"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	LoanID    *int32           `json:"loanId,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// NotificationSink accepts notifications for delivery. Delivery is
// fire-and-forget: implementations log failures instead of returning them.
type NotificationSink interface {
	Notify(ctx context.Context, memberID int32, kind NotificationKind, title, body string, loanID *int32)
}

// NotificationRepository defines the interface for notification persistence operations
type NotificationRepository interface {
	Create(ctx context.Context, notification *Notification) (*Notification, error)
	ListByMember(ctx context.Context, memberID int32, unreadOnly bool) ([]*Notification, error)
	MarkRead(ctx context.Context, memberID int32, id int32) (*Notification, error)
}
