package service

import (
	"time"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/dafibh/cooplend/cooplend-backend/internal/util"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeSchedule calculates the flat-interest amortization of a loan.
//
//	totalInterest  = principal * (rate/100) * termMonths
//	totalAmount    = principal + totalInterest
//	monthlyPayment = totalAmount / termMonths
//
// Installment i is due i months after startDate and every installment is due
// monthlyPayment. Its remaining balance is totalAmount - monthlyPayment*i
// floored at zero, so the last one is always 0.
func ComputeSchedule(principal, monthlyRatePercent decimal.Decimal, termMonths int32, startDate time.Time) (*domain.Schedule, error) {
	if principal.LessThanOrEqual(decimal.Zero) {
		return nil, domain.NewValidationError("principal", "principal must be positive")
	}
	if monthlyRatePercent.IsNegative() {
		return nil, domain.NewValidationError("interestRate", "interest rate cannot be negative")
	}
	if termMonths < 1 {
		return nil, domain.NewValidationError("termMonths", "term must be at least 1 month")
	}

	months := decimal.NewFromInt(int64(termMonths))
	totalInterest := CalculateTotalInterest(principal, monthlyRatePercent, termMonths)
	totalAmount := principal.Add(totalInterest)

	return buildSchedule(principal, monthlyRatePercent, termMonths, totalInterest, totalAmount, totalAmount.Div(months), startDate), nil
}

// ScheduleForLoan lays out the installments of a stored loan from its frozen
// totals, so the schedule always agrees with the loan record
func ScheduleForLoan(loan *domain.Loan) *domain.Schedule {
	return buildSchedule(loan.Principal, loan.InterestRate, loan.TermMonths,
		loan.TotalInterest, loan.TotalAmount, loan.MonthlyPayment, loan.ScheduleStart())
}

func buildSchedule(principal, rate decimal.Decimal, termMonths int32, totalInterest, totalAmount, monthlyPayment decimal.Decimal, startDate time.Time) *domain.Schedule {
	amountDue := monthlyPayment.Round(domain.MoneyPlaces)

	installments := make([]domain.Installment, 0, termMonths)
	for i := int32(1); i <= termMonths; i++ {
		remaining := totalAmount.Sub(monthlyPayment.Mul(decimal.NewFromInt(int64(i))))
		if remaining.IsNegative() || i == termMonths {
			remaining = decimal.Zero
		}
		installments = append(installments, domain.Installment{
			Index:            i,
			DueDate:          util.AddMonths(startDate, int(i)),
			AmountDue:        amountDue,
			RemainingBalance: remaining.Round(domain.MoneyPlaces),
		})
	}

	return &domain.Schedule{
		Principal:      principal,
		InterestRate:   rate,
		TermMonths:     termMonths,
		TotalInterest:  totalInterest,
		TotalAmount:    totalAmount,
		MonthlyPayment: monthlyPayment,
		Installments:   installments,
	}
}

// CalculateTotalInterest returns principal * (rate/100) * termMonths
func CalculateTotalInterest(principal, monthlyRatePercent decimal.Decimal, termMonths int32) decimal.Decimal {
	return principal.Mul(monthlyRatePercent.Div(hundred)).Mul(decimal.NewFromInt(int64(termMonths)))
}
