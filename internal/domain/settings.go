package domain

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Settings keys stored in the settings table
const (
	SettingInterestRate       = "loan_interest_rate"
	SettingMinPrincipal       = "loan_min_principal"
	SettingMaxPrincipal       = "loan_max_principal"
	SettingAllowedTerms       = "loan_terms"
	SettingProgressMultiplier = "payment_progress_multiplier"
)

// LendingSettings are the admin-maintained policy values the lending core
// reads at call time
type LendingSettings struct {
	InterestRate       decimal.Decimal // percent per month
	MinPrincipal       decimal.Decimal
	MaxPrincipal       decimal.Decimal
	AllowedTerms       []int32
	ProgressMultiplier int32
}

// AllowsTerm reports whether months is one of the offered loan terms
func (s LendingSettings) AllowsTerm(months int32) bool {
	for _, t := range s.AllowedTerms {
		if t == months {
			return true
		}
	}
	return false
}

// ValidatePrincipal checks principal against the configured bounds
func (s LendingSettings) ValidatePrincipal(principal decimal.Decimal) error {
	if !FitsPlaces(principal, MoneyPlaces) {
		return NewValidationError("principal", fmt.Sprintf("principal cannot have more than %d decimal places", MoneyPlaces))
	}
	if principal.LessThan(s.MinPrincipal) || principal.GreaterThan(s.MaxPrincipal) {
		return NewValidationError("principal", fmt.Sprintf("principal must be between %s and %s",
			s.MinPrincipal.StringFixed(2), s.MaxPrincipal.StringFixed(2)))
	}
	return nil
}

// ValidateTerm checks months against the offered loan terms
func (s LendingSettings) ValidateTerm(months int32) error {
	if !s.AllowsTerm(months) {
		return NewValidationError("termMonths", fmt.Sprintf("term must be one of %v months", s.AllowedTerms))
	}
	return nil
}

// SettingsRepository reads raw key/value settings
type SettingsRepository interface {
	GetAll(ctx context.Context) (map[string]string, error)
}
