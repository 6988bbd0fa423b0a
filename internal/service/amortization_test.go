package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/shopspring/decimal"
)

func TestComputeSchedule_FlatInterest(t *testing.T) {
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	schedule, err := ComputeSchedule(decimal.NewFromInt(10000), decimal.NewFromInt(2), 6, start)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !schedule.TotalInterest.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("Expected total interest 1200, got %s", schedule.TotalInterest)
	}
	if !schedule.TotalAmount.Equal(decimal.NewFromInt(11200)) {
		t.Errorf("Expected total amount 11200, got %s", schedule.TotalAmount)
	}
	if got := schedule.MonthlyPayment.StringFixed(2); got != "1866.67" {
		t.Errorf("Expected monthly payment 1866.67, got %s", got)
	}
	if len(schedule.Installments) != 6 {
		t.Fatalf("Expected 6 installments, got %d", len(schedule.Installments))
	}

	sum := decimal.Zero
	for i, inst := range schedule.Installments {
		if inst.Index != int32(i+1) {
			t.Errorf("Installment %d has index %d", i, inst.Index)
		}
		if got := inst.AmountDue.StringFixed(2); got != "1866.67" {
			t.Errorf("Installment %d: expected amount due 1866.67, got %s", i+1, got)
		}
		sum = sum.Add(inst.AmountDue)
	}

	// Rounding drift across all installments stays within a cent per installment
	drift := sum.Sub(schedule.TotalAmount).Abs()
	if drift.GreaterThan(decimal.RequireFromString("0.06")) {
		t.Errorf("Expected installment sum within 0.06 of total, drift was %s", drift)
	}

	if got := schedule.Installments[0].RemainingBalance.StringFixed(2); got != "9333.33" {
		t.Errorf("Expected remaining balance 9333.33 after first installment, got %s", got)
	}
	if !schedule.Installments[5].RemainingBalance.IsZero() {
		t.Errorf("Expected final remaining balance 0, got %s", schedule.Installments[5].RemainingBalance)
	}
}

func TestComputeSchedule_DueDates(t *testing.T) {
	start := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	schedule, err := ComputeSchedule(decimal.NewFromInt(3000), decimal.NewFromInt(2), 3, start)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	expected := []time.Time{
		time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC),
	}
	for i, want := range expected {
		got := schedule.Installments[i].DueDate
		if !got.Equal(want) {
			t.Errorf("Installment %d: expected due date %s, got %s", i+1, want.Format("2006-01-02"), got.Format("2006-01-02"))
		}
	}
}

func TestComputeSchedule_ZeroRate(t *testing.T) {
	schedule, err := ComputeSchedule(decimal.NewFromInt(1200), decimal.Zero, 12, time.Now())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !schedule.TotalInterest.IsZero() {
		t.Errorf("Expected no interest, got %s", schedule.TotalInterest)
	}
	if !schedule.MonthlyPayment.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected monthly payment 100, got %s", schedule.MonthlyPayment)
	}
}

func TestComputeSchedule_InvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		principal decimal.Decimal
		rate      decimal.Decimal
		term      int32
		field     string
	}{
		{"zero principal", decimal.Zero, decimal.NewFromInt(2), 6, "principal"},
		{"negative principal", decimal.NewFromInt(-5), decimal.NewFromInt(2), 6, "principal"},
		{"negative rate", decimal.NewFromInt(1000), decimal.NewFromInt(-1), 6, "interestRate"},
		{"zero term", decimal.NewFromInt(1000), decimal.NewFromInt(2), 0, "termMonths"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeSchedule(tt.principal, tt.rate, tt.term, time.Now())
			ve, ok := err.(domain.ValidationError)
			if !ok {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, ve.Field)
			}
		})
	}
}

func TestCalculateTotalInterest(t *testing.T) {
	got := CalculateTotalInterest(decimal.NewFromInt(25000), decimal.RequireFromString("1.5"), 9)
	if !got.Equal(decimal.NewFromInt(3375)) {
		t.Errorf("Expected 3375, got %s", got)
	}
}

func TestComputeSchedule_InstallmentsReconcileWithTotal(t *testing.T) {
	tests := []struct {
		principal string
		rate      string
		term      int32
	}{
		{"1000.01", "1.75", 3},
		{"1000.01", "1.75", 6},
		{"1000.01", "1.75", 9},
		{"1000.01", "1.75", 12},
		{"3333.33", "2.3333", 3},
		{"7777.77", "0.9999", 6},
		{"12345.67", "1.5", 9},
		{"49999.99", "2.0001", 12},
		{"1001", "0", 9},
	}

	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	cent := decimal.RequireFromString("0.01")

	for _, tt := range tests {
		name := fmt.Sprintf("%s at %s%% over %d", tt.principal, tt.rate, tt.term)
		t.Run(name, func(t *testing.T) {
			schedule, err := ComputeSchedule(decimal.RequireFromString(tt.principal), decimal.RequireFromString(tt.rate), tt.term, start)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if len(schedule.Installments) != int(tt.term) {
				t.Fatalf("Expected %d installments, got %d", tt.term, len(schedule.Installments))
			}

			sum := decimal.Zero
			amountDue := schedule.MonthlyPayment.Round(2)
			for _, inst := range schedule.Installments {
				if !inst.AmountDue.Equal(amountDue) {
					t.Errorf("Installment %d: expected amount due %s, got %s", inst.Index, amountDue, inst.AmountDue)
				}
				if inst.RemainingBalance.IsNegative() {
					t.Errorf("Installment %d: negative remaining balance %s", inst.Index, inst.RemainingBalance)
				}
				sum = sum.Add(inst.AmountDue)
			}

			tolerance := cent.Mul(decimal.NewFromInt(int64(tt.term)))
			if drift := sum.Sub(schedule.TotalAmount).Abs(); drift.GreaterThan(tolerance) {
				t.Errorf("Installment sum %s drifts %s from total %s, more than %s", sum, drift, schedule.TotalAmount, tolerance)
			}
			if last := schedule.Installments[tt.term-1].RemainingBalance; !last.IsZero() {
				t.Errorf("Expected final remaining balance 0, got %s", last)
			}
		})
	}
}

func TestScheduleForLoan(t *testing.T) {
	approvedAt := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	loan := &domain.Loan{
		Principal:      decimal.NewFromInt(10000),
		InterestRate:   decimal.NewFromInt(2),
		TermMonths:     6,
		TotalInterest:  decimal.NewFromInt(1200),
		TotalAmount:    decimal.NewFromInt(11200),
		MonthlyPayment: decimal.RequireFromString("1866.67"),
		ApprovedAt:     &approvedAt,
	}

	schedule := ScheduleForLoan(loan)

	if !schedule.TotalAmount.Equal(loan.TotalAmount) || !schedule.MonthlyPayment.Equal(loan.MonthlyPayment) {
		t.Errorf("Expected frozen totals, got total %s monthly %s", schedule.TotalAmount, schedule.MonthlyPayment)
	}
	if len(schedule.Installments) != 6 {
		t.Fatalf("Expected 6 installments, got %d", len(schedule.Installments))
	}
	if got := schedule.Installments[4].RemainingBalance.StringFixed(2); got != "1866.65" {
		t.Errorf("Expected 1866.65 left before the last installment, got %s", got)
	}
	if !schedule.Installments[5].RemainingBalance.IsZero() {
		t.Errorf("Expected final remaining balance 0, got %s", schedule.Installments[5].RemainingBalance)
	}
	if want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC); !schedule.Installments[0].DueDate.Equal(want) {
		t.Errorf("Expected first due date %s, got %s", want.Format("2006-01-02"), schedule.Installments[0].DueDate.Format("2006-01-02"))
	}
}
