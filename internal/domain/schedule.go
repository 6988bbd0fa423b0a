package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Installment is one row of an amortization schedule
type Installment struct {
	Index            int32           `json:"index"`
	DueDate          time.Time       `json:"dueDate"`
	AmountDue        decimal.Decimal `json:"amountDue"`
	RemainingBalance decimal.Decimal `json:"remainingBalance"`
}

// Schedule is the flat-interest amortization of a loan. Totals keep full
// precision; installment amounts are rounded to cents.
type Schedule struct {
	Principal      decimal.Decimal `json:"principal"`
	InterestRate   decimal.Decimal `json:"interestRate"`
	TermMonths     int32           `json:"termMonths"`
	TotalInterest  decimal.Decimal `json:"totalInterest"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	MonthlyPayment decimal.Decimal `json:"monthlyPayment"`
	Installments   []Installment   `json:"installments"`
}
