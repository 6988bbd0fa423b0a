package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal places of the stored NUMERIC columns
const (
	MoneyPlaces int32 = 2
	RatePlaces  int32 = 4
)

// FitsPlaces reports whether v has no significant digits beyond places.
// Trailing zeros do not count, so 100.000 fits two places.
func FitsPlaces(v decimal.Decimal, places int32) bool {
	return v.Equal(v.Truncate(places))
}

// ValidateAmount checks that a money input is positive and whole cents
func ValidateAmount(field string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return NewValidationError(field, field+" must be positive")
	}
	if !FitsPlaces(amount, MoneyPlaces) {
		return NewValidationError(field, fmt.Sprintf("%s cannot have more than %d decimal places", field, MoneyPlaces))
	}
	return nil
}

// ValidateRate checks that a monthly interest rate is non-negative and fits
// the stored precision
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() {
		return NewValidationError("interestRate", "interest rate cannot be negative")
	}
	if !FitsPlaces(rate, RatePlaces) {
		return NewValidationError("interestRate", fmt.Sprintf("interest rate cannot have more than %d decimal places", RatePlaces))
	}
	return nil
}
