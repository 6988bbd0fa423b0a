package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/dafibh/cooplend/cooplend-backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paymentFixture struct {
	svc       *PaymentService
	payments  *testutil.MockPaymentRepository
	loans     *testutil.MockLoanRepository
	notifier  *testutil.RecordingNotifier
	publisher *testutil.RecordingPublisher
}

func newPaymentFixture() *paymentFixture {
	f := &paymentFixture{
		payments:  testutil.NewMockPaymentRepository(),
		loans:     testutil.NewMockLoanRepository(),
		notifier:  &testutil.RecordingNotifier{},
		publisher: &testutil.RecordingPublisher{},
	}
	f.svc = NewPaymentService(&testutil.MockTxRunner{}, f.payments, f.loans, testLendingSettings(), f.notifier)
	f.svc.SetEventPublisher(f.publisher)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

// addLoan seeds a 6 month loan for member 42 with the given balance left
func (f *paymentFixture) addLoan(status domain.LoanStatus, total, remaining int64) *domain.Loan {
	loan := &domain.Loan{
		ID:               3,
		LoanNumber:       "LN-20260101000000-0042",
		MemberID:         42,
		Principal:        decimal.NewFromInt(total),
		TermMonths:       6,
		InterestRate:     decimal.Zero,
		TotalAmount:      decimal.NewFromInt(total),
		MonthlyPayment:   decimal.NewFromInt(total).Div(decimal.NewFromInt(6)),
		RemainingBalance: decimal.NewFromInt(remaining),
		Status:           status,
	}
	f.loans.AddLoan(loan)
	return loan
}

func (f *paymentFixture) addPendingPayment(id int32, loanID int32, amount int64) *domain.Payment {
	p := &domain.Payment{
		ID:            id,
		ReceiptNumber: fmt.Sprintf("PAY-20260101-%08d", id),
		LoanID:        loanID,
		MemberID:      42,
		Amount:        decimal.NewFromInt(amount),
		PaymentDate:   time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		PaymentMethod: "bank_transfer",
		Status:        domain.PaymentStatusPending,
	}
	f.payments.AddPayment(p)
	return p
}

func TestPaymentService_ApplyPayment_FullSettlementCompletesLoan(t *testing.T) {
	f := newPaymentFixture()
	loan := f.addLoan(domain.LoanStatusApproved, 5000, 5000)

	payment, err := f.svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		LoanID:           loan.ID,
		Amount:           decimal.NewFromInt(5000),
		PaymentMethod:    "cash",
		ImmediateConfirm: true,
		RequestedBy:      1,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusVerified, payment.Status)
	require.NotNil(t, payment.VerifiedBy)
	assert.Equal(t, int32(1), *payment.VerifiedBy)
	assert.Equal(t, int32(42), payment.MemberID)
	assert.Regexp(t, `^PAY-20260314-[0-9A-F]{8}$`, payment.ReceiptNumber)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), payment.PaymentDate)

	stored := f.loans.Loans[loan.ID]
	assert.True(t, stored.RemainingBalance.IsZero())
	assert.Equal(t, domain.LoanStatusCompleted, stored.Status)

	require.Len(t, f.notifier.Notifications, 1)
	assert.Equal(t, domain.NotificationPaymentProcessed, f.notifier.Notifications[0].Kind)
	assert.Contains(t, f.notifier.Notifications[0].Body, "fully paid")

	assert.Equal(t, []string{"payment.created", "loan.updated"}, f.publisher.Types())
}

func TestPaymentService_ApplyPayment_PartialKeepsStatus(t *testing.T) {
	f := newPaymentFixture()
	loan := f.addLoan(domain.LoanStatusActive, 6000, 6000)

	_, err := f.svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		LoanID:           loan.ID,
		Amount:           decimal.RequireFromString("1000.50"),
		PaymentMethod:    "cash",
		ImmediateConfirm: true,
		RequestedBy:      1,
	})
	require.NoError(t, err)

	stored := f.loans.Loans[loan.ID]
	assert.Equal(t, "4999.50", stored.RemainingBalance.StringFixed(2))
	assert.Equal(t, domain.LoanStatusActive, stored.Status)
	assert.Contains(t, f.notifier.Notifications[0].Body, "4999.50")
}

func TestPaymentService_ApplyPayment_SubCentAmountRejected(t *testing.T) {
	f := newPaymentFixture()
	loan := f.addLoan(domain.LoanStatusApproved, 100, 100)

	_, err := f.svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		LoanID:           loan.ID,
		Amount:           decimal.RequireFromString("99.996"),
		PaymentMethod:    "cash",
		ImmediateConfirm: true,
		RequestedBy:      1,
	})
	require.Error(t, err)

	var ve domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)
	assert.Empty(t, f.payments.Payments)

	stored := f.loans.Loans[loan.ID]
	assert.True(t, stored.RemainingBalance.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, domain.LoanStatusApproved, stored.Status)
	assert.Empty(t, f.publisher.Events)
}

func TestPaymentService_ApplyPayment_TrailingZerosSettleLoan(t *testing.T) {
	f := newPaymentFixture()
	loan := f.addLoan(domain.LoanStatusApproved, 100, 100)

	_, err := f.svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		LoanID:           loan.ID,
		Amount:           decimal.RequireFromString("100.000"),
		PaymentMethod:    "cash",
		ImmediateConfirm: true,
		RequestedBy:      1,
	})
	require.NoError(t, err)

	stored := f.loans.Loans[loan.ID]
	assert.True(t, stored.RemainingBalance.IsZero())
	assert.Equal(t, domain.LoanStatusCompleted, stored.Status)
}

func TestPaymentService_ApplyPayment_OverpaymentRejected(t *testing.T) {
	f := newPaymentFixture()
	loan := f.addLoan(domain.LoanStatusApproved, 5000, 5000)

	_, err := f.svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		LoanID:           loan.ID,
		Amount:           decimal.NewFromInt(5001),
		PaymentMethod:    "cash",
		ImmediateConfirm: true,
		RequestedBy:      1,
	})
	require.Error(t, err)

	var op *domain.OverpaymentError
	require.ErrorAs(t, err, &op)
	assert.True(t, op.RemainingBalance.Equal(decimal.NewFromInt(5000)))
	assert.Empty(t, f.payments.Payments)
	assert.True(t, f.loans.Loans[loan.ID].RemainingBalance.Equal(decimal.NewFromInt(5000)))
	assert.Empty(t, f.notifier.Notifications)
	assert.Empty(t, f.publisher.Events)
}

func TestPaymentService_ApplyPayment_MemberSubmissionStaysPending(t *testing.T) {
	f := newPaymentFixture()
	loan := f.addLoan(domain.LoanStatusApproved, 5000, 5000)

	payment, err := f.svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		LoanID:        loan.ID,
		Amount:        decimal.NewFromInt(1000),
		PaymentDate:   time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC),
		PaymentMethod: "bank_transfer",
		RequestedBy:   42,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPending, payment.Status)
	assert.Nil(t, payment.VerifiedBy)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), payment.PaymentDate)
	assert.True(t, f.loans.Loans[loan.ID].RemainingBalance.Equal(decimal.NewFromInt(5000)))
	assert.Zero(t, f.loans.BalanceUpdates)
	assert.Equal(t, []domain.NotificationKind{domain.NotificationPaymentSubmitted}, f.notifier.Kinds())
}

func TestPaymentService_ApplyPayment_OtherMembersLoan(t *testing.T) {
	f := newPaymentFixture()
	loan := f.addLoan(domain.LoanStatusApproved, 5000, 5000)

	_, err := f.svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		LoanID:        loan.ID,
		Amount:        decimal.NewFromInt(100),
		PaymentMethod: "bank_transfer",
		RequestedBy:   99,
	})
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
	assert.Empty(t, f.payments.Payments)
}

func TestPaymentService_ApplyPayment_LoanNotPayable(t *testing.T) {
	for _, status := range []domain.LoanStatus{domain.LoanStatusPending, domain.LoanStatusRejected, domain.LoanStatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			f := newPaymentFixture()
			loan := f.addLoan(status, 5000, 5000)

			_, err := f.svc.ApplyPayment(context.Background(), ApplyPaymentInput{
				LoanID:           loan.ID,
				Amount:           decimal.NewFromInt(100),
				PaymentMethod:    "cash",
				ImmediateConfirm: true,
				RequestedBy:      1,
			})
			assert.ErrorIs(t, err, domain.ErrLoanNotPayable)
			assert.Empty(t, f.payments.Payments)
		})
	}
}

func TestPaymentService_ApplyPayment_Validation(t *testing.T) {
	f := newPaymentFixture()
	loan := f.addLoan(domain.LoanStatusApproved, 5000, 5000)

	_, err := f.svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		LoanID: loan.ID, Amount: decimal.Zero, PaymentMethod: "cash", RequestedBy: 42,
	})
	assert.True(t, domain.IsValidation(err))

	_, err = f.svc.ApplyPayment(context.Background(), ApplyPaymentInput{
		LoanID: loan.ID, Amount: decimal.NewFromInt(10), PaymentMethod: " ", RequestedBy: 42,
	})
	assert.True(t, domain.IsValidation(err))
}

func TestPaymentService_Verify_DeductsBalance(t *testing.T) {
	f := newPaymentFixture()
	loan := f.addLoan(domain.LoanStatusApproved, 5000, 5000)
	pending := f.addPendingPayment(1, loan.ID, 2000)

	payment, err := f.svc.Verify(context.Background(), pending.ID, domain.PaymentDecisionVerify, 1)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusVerified, payment.Status)
	require.NotNil(t, payment.VerifiedAt)
	assert.True(t, payment.VerifiedAt.Equal(fixedNow))

	stored := f.loans.Loans[loan.ID]
	assert.True(t, stored.RemainingBalance.Equal(decimal.NewFromInt(3000)))
	assert.Equal(t, domain.LoanStatusApproved, stored.Status)
	assert.Equal(t, []domain.NotificationKind{domain.NotificationPaymentProcessed}, f.notifier.Kinds())
	assert.Equal(t, []string{"payment.updated", "loan.updated"}, f.publisher.Types())

	_, err = f.svc.Verify(context.Background(), pending.ID, domain.PaymentDecisionVerify, 1)
	assert.ErrorIs(t, err, domain.ErrPaymentAlreadyProcessed)
	assert.True(t, f.loans.Loans[loan.ID].RemainingBalance.Equal(decimal.NewFromInt(3000)))
}

func TestPaymentService_Verify_Reject(t *testing.T) {
	f := newPaymentFixture()
	loan := f.addLoan(domain.LoanStatusApproved, 5000, 5000)
	pending := f.addPendingPayment(1, loan.ID, 2000)

	payment, err := f.svc.Verify(context.Background(), pending.ID, domain.PaymentDecisionReject, 1)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusRejected, payment.Status)
	assert.True(t, f.loans.Loans[loan.ID].RemainingBalance.Equal(decimal.NewFromInt(5000)))
	assert.Zero(t, f.loans.BalanceUpdates)
	assert.Equal(t, []domain.NotificationKind{domain.NotificationPaymentRejected}, f.notifier.Kinds())
}

func TestPaymentService_Verify_RechecksBalance(t *testing.T) {
	f := newPaymentFixture()
	loan := f.addLoan(domain.LoanStatusApproved, 5000, 5000)
	first := f.addPendingPayment(1, loan.ID, 3000)
	second := f.addPendingPayment(2, loan.ID, 3000)

	_, err := f.svc.Verify(context.Background(), first.ID, domain.PaymentDecisionVerify, 1)
	require.NoError(t, err)

	_, err = f.svc.Verify(context.Background(), second.ID, domain.PaymentDecisionVerify, 1)
	assert.True(t, domain.IsOverpayment(err))
	assert.Equal(t, domain.PaymentStatusPending, f.payments.Payments[second.ID].Status)
	assert.True(t, f.loans.Loans[loan.ID].RemainingBalance.Equal(decimal.NewFromInt(2000)))
}

func TestPaymentService_Verify_LostBalanceRace(t *testing.T) {
	f := newPaymentFixture()
	loan := f.addLoan(domain.LoanStatusApproved, 5000, 5000)
	pending := f.addPendingPayment(1, loan.ID, 1000)
	f.loans.UpdateBalanceFn = func(id int32, expected, balance decimal.Decimal, status domain.LoanStatus) (*domain.Loan, error) {
		return nil, domain.ErrBalanceChanged
	}

	_, err := f.svc.Verify(context.Background(), pending.ID, domain.PaymentDecisionVerify, 1)
	assert.ErrorIs(t, err, domain.ErrBalanceChanged)
	assert.Equal(t, domain.PaymentStatusPending, f.payments.Payments[pending.ID].Status)
	assert.Empty(t, f.notifier.Notifications)
}

func TestPaymentService_Verify_NotFound(t *testing.T) {
	f := newPaymentFixture()

	_, err := f.svc.Verify(context.Background(), 404, domain.PaymentDecisionVerify, 1)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestPaymentService_Progress(t *testing.T) {
	f := newPaymentFixture()
	loan := f.addLoan(domain.LoanStatusActive, 6000, 3000)
	for i := int32(1); i <= 3; i++ {
		p := f.addPendingPayment(i, loan.ID, 1000)
		f.payments.Payments[p.ID].Status = domain.PaymentStatusVerified
	}
	f.addPendingPayment(4, loan.ID, 1000)

	progress, err := f.svc.Progress(context.Background(), loan.ID)
	require.NoError(t, err)

	assert.Equal(t, int32(3), progress.Paid)
	assert.Equal(t, int32(12), progress.Expected)
	assert.Equal(t, int32(9), progress.Remaining)
	assert.True(t, progress.PaidAmount.Equal(decimal.NewFromInt(3000)))
}

func TestCalculateProgress(t *testing.T) {
	loan := &domain.Loan{
		ID:               1,
		TermMonths:       3,
		TotalAmount:      decimal.NewFromInt(3000),
		RemainingBalance: decimal.Zero,
	}

	tests := []struct {
		name       string
		paid       int32
		multiplier int32
		expected   int32
		remaining  int32
	}{
		{"no payments", 0, 2, 6, 6},
		{"some payments", 4, 2, 6, 2},
		{"more payments than expected", 9, 2, 6, 0},
		{"multiplier of one", 1, 1, 3, 2},
		{"invalid multiplier treated as one", 1, 0, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := CalculateProgress(loan, tt.paid, tt.multiplier)
			assert.Equal(t, tt.expected, p.Expected)
			assert.Equal(t, tt.remaining, p.Remaining)
			assert.GreaterOrEqual(t, p.Remaining, int32(0))
		})
	}
}

func TestPaymentService_GetPaymentsByLoan(t *testing.T) {
	f := newPaymentFixture()
	loan := f.addLoan(domain.LoanStatusApproved, 5000, 5000)
	f.addPendingPayment(1, loan.ID, 100)
	f.addPendingPayment(2, loan.ID, 200)

	payments, err := f.svc.GetPaymentsByLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, int32(1), payments[0].ID)

	_, err = f.svc.GetPaymentsByLoan(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)

	pending, err := f.svc.GetPendingPayments(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
