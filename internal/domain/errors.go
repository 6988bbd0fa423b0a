package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Generic errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// ValidationError reports a bad input shape or range
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for a field
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// NotFoundError reports a reference to a record that does not exist
type NotFoundError struct {
	Entity string
}

func (e NotFoundError) Error() string {
	return e.Entity + " not found"
}

// StateConflictError reports an operation attempted against a record whose
// status does not allow it
type StateConflictError struct {
	Entity string
	Action string
	Reason string
}

func (e StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s %s: %s", e.Action, e.Entity, e.Reason)
}

// OverpaymentError reports a payment larger than the loan's remaining balance.
// It carries decimals so it is compared with errors.As rather than ==.
type OverpaymentError struct {
	Amount           decimal.Decimal
	RemainingBalance decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds remaining balance of %s",
		e.Amount.StringFixed(2), e.RemainingBalance.StringFixed(2))
}

// Not found sentinels
var (
	ErrMemberNotFound       = NotFoundError{Entity: "member"}
	ErrLoanNotFound         = NotFoundError{Entity: "loan"}
	ErrPaymentNotFound      = NotFoundError{Entity: "payment"}
	ErrContributionNotFound = NotFoundError{Entity: "contribution"}
	ErrNotificationNotFound = NotFoundError{Entity: "notification"}
)

// State conflict sentinels
var (
	ErrLoanAlreadyProcessed = StateConflictError{
		Entity: "loan", Action: "decide", Reason: "loan has already been processed",
	}
	ErrLoanNotPayable = StateConflictError{
		Entity: "loan", Action: "pay", Reason: "loan is not approved or active",
	}
	ErrLoanNotRejected = StateConflictError{
		Entity: "loan", Action: "reactivate", Reason: "only rejected loans can be reactivated",
	}
	ErrPaymentAlreadyProcessed = StateConflictError{
		Entity: "payment", Action: "verify", Reason: "payment has already been processed",
	}
	ErrReceiptNotAllowed = StateConflictError{
		Entity: "payment", Action: "attach receipt to", Reason: "payment is no longer pending",
	}
	ErrContributionAlreadyProcessed = StateConflictError{
		Entity: "contribution", Action: "decide", Reason: "contribution has already been processed",
	}
)

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsStateConflict reports whether err is a StateConflictError
func IsStateConflict(err error) bool {
	var sc StateConflictError
	return errors.As(err, &sc)
}

// IsOverpayment reports whether err is an OverpaymentError
func IsOverpayment(err error) bool {
	var op *OverpaymentError
	return errors.As(err, &op)
}
