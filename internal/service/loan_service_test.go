package service

import (
	"context"
	"testing"
	"time"

	"github.com/dafibh/cooplend/cooplend-backend/internal/config"
	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/dafibh/cooplend/cooplend-backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testLendingSettings() StaticSettings {
	return StaticSettings{
		InterestRate:       decimal.NewFromInt(2),
		MinPrincipal:       decimal.NewFromInt(1000),
		MaxPrincipal:       decimal.NewFromInt(50000),
		AllowedTerms:       []int32{3, 6, 9, 12},
		ProgressMultiplier: 2,
	}
}

type loanFixture struct {
	svc       *LoanService
	loans     *testutil.MockLoanRepository
	members   *testutil.MockMemberRepository
	notifier  *testutil.RecordingNotifier
	publisher *testutil.RecordingPublisher
}

func newLoanFixture(settings SettingsProvider) *loanFixture {
	f := &loanFixture{
		loans:     testutil.NewMockLoanRepository(),
		members:   testutil.NewMockMemberRepository(),
		notifier:  &testutil.RecordingNotifier{},
		publisher: &testutil.RecordingPublisher{},
	}
	f.members.AddMember(&domain.Member{ID: 42, Auth0ID: "auth0|member", Email: "member@example.com", Role: domain.MemberRoleMember})
	f.members.AddMember(&domain.Member{ID: 1, Auth0ID: "auth0|admin", Email: "admin@example.com", Role: domain.MemberRoleAdmin})

	f.svc = NewLoanService(&testutil.MockTxRunner{}, f.loans, f.members, settings, f.notifier)
	f.svc.SetEventPublisher(f.publisher)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func validSubmitInput() SubmitLoanInput {
	return SubmitLoanInput{
		MemberID:       42,
		Principal:      decimal.NewFromInt(10000),
		TermMonths:     6,
		Purpose:        "School fees",
		PaymentMethod:  "bank_transfer",
		AccountDetails: "0123456789",
		AccountName:    "Jane Member",
	}
}

func TestLoanService_Submit_Pending(t *testing.T) {
	f := newLoanFixture(testLendingSettings())

	loan, err := f.svc.Submit(context.Background(), validSubmitInput())
	require.NoError(t, err)

	assert.Equal(t, domain.LoanStatusPending, loan.Status)
	assert.Equal(t, "LN-20260314093000-0042", loan.LoanNumber)
	assert.True(t, loan.InterestRate.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, "1200.00", loan.TotalInterest.StringFixed(2))
	assert.Equal(t, "11200.00", loan.TotalAmount.StringFixed(2))
	assert.Equal(t, "1866.67", loan.MonthlyPayment.StringFixed(2))
	assert.True(t, loan.RemainingBalance.Equal(loan.TotalAmount))
	assert.Nil(t, loan.ApprovedBy)
	assert.Len(t, f.loans.Loans, 1)

	require.Len(t, f.notifier.Notifications, 1)
	n := f.notifier.Notifications[0]
	assert.Equal(t, domain.NotificationLoanApplication, n.Kind)
	assert.Equal(t, int32(42), n.MemberID)
	require.NotNil(t, n.LoanID)
	assert.Equal(t, loan.ID, *n.LoanID)

	assert.Equal(t, []string{"loan.updated"}, f.publisher.Types())
}

func TestLoanService_Submit_ByAdminIsApproved(t *testing.T) {
	f := newLoanFixture(testLendingSettings())
	adminID := int32(1)
	input := validSubmitInput()
	input.AdminID = &adminID

	loan, err := f.svc.Submit(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, domain.LoanStatusApproved, loan.Status)
	require.NotNil(t, loan.ApprovedBy)
	assert.Equal(t, adminID, *loan.ApprovedBy)
	require.NotNil(t, loan.ApprovedAt)
	assert.True(t, loan.ApprovedAt.Equal(fixedNow))
	assert.Equal(t, []domain.NotificationKind{domain.NotificationLoanApproval}, f.notifier.Kinds())
}

func TestLoanService_Submit_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *SubmitLoanInput)
		field  string
	}{
		{"principal below minimum", func(in *SubmitLoanInput) { in.Principal = decimal.NewFromInt(999) }, "principal"},
		{"principal above maximum", func(in *SubmitLoanInput) { in.Principal = decimal.NewFromInt(50001) }, "principal"},
		{"sub-cent principal", func(in *SubmitLoanInput) { in.Principal = decimal.RequireFromString("5000.005") }, "principal"},
		{"term not offered", func(in *SubmitLoanInput) { in.TermMonths = 5 }, "termMonths"},
		{"blank purpose", func(in *SubmitLoanInput) { in.Purpose = "   " }, "purpose"},
		{"missing payment method", func(in *SubmitLoanInput) { in.PaymentMethod = "" }, "paymentMethod"},
		{"missing account details", func(in *SubmitLoanInput) { in.AccountDetails = "" }, "accountDetails"},
		{"missing account name", func(in *SubmitLoanInput) { in.AccountName = "" }, "accountName"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLoanFixture(testLendingSettings())
			input := validSubmitInput()
			tt.mutate(&input)

			_, err := f.svc.Submit(context.Background(), input)
			require.Error(t, err)
			var ve domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Empty(t, f.loans.Loans)
			assert.Empty(t, f.notifier.Notifications)
		})
	}
}

func TestLoanService_Submit_BoundaryPrincipalAccepted(t *testing.T) {
	f := newLoanFixture(testLendingSettings())
	input := validSubmitInput()
	input.Principal = decimal.NewFromInt(1000)
	input.TermMonths = 3

	loan, err := f.svc.Submit(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "60.00", loan.TotalInterest.StringFixed(2))
}

func TestLoanService_Submit_UnknownMember(t *testing.T) {
	f := newLoanFixture(testLendingSettings())
	input := validSubmitInput()
	input.MemberID = 999

	_, err := f.svc.Submit(context.Background(), input)
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestLoanService_Submit_UsesStoredSettings(t *testing.T) {
	repo := testutil.NewMockSettingsRepository()
	repo.Values[domain.SettingInterestRate] = "3"
	settings := NewSettingsService(repo, config.LendingConfig{
		InterestRate:       decimal.NewFromInt(2),
		MinPrincipal:       decimal.NewFromInt(1000),
		MaxPrincipal:       decimal.NewFromInt(50000),
		AllowedTerms:       []int32{3, 6, 9, 12},
		ProgressMultiplier: 2,
	})
	f := newLoanFixture(settings)

	loan, err := f.svc.Submit(context.Background(), validSubmitInput())
	require.NoError(t, err)
	assert.True(t, loan.InterestRate.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, "1800.00", loan.TotalInterest.StringFixed(2))
}

func seedLoan(t *testing.T, f *loanFixture, status domain.LoanStatus) *domain.Loan {
	t.Helper()
	loan := &domain.Loan{
		ID:               7,
		LoanNumber:       "LN-20260101000000-0042",
		MemberID:         42,
		Principal:        decimal.NewFromInt(10000),
		TermMonths:       6,
		InterestRate:     decimal.NewFromInt(2),
		TotalInterest:    decimal.NewFromInt(1200),
		TotalAmount:      decimal.NewFromInt(11200),
		MonthlyPayment:   decimal.RequireFromString("1866.67"),
		RemainingBalance: decimal.NewFromInt(11200),
		Status:           status,
		Purpose:          "Roof repair",
		PaymentMethod:    "cash",
		AccountDetails:   "n/a",
		AccountName:      "Jane Member",
		CreatedAt:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.loans.AddLoan(loan)
	return loan
}

func TestLoanService_Decide_Approve(t *testing.T) {
	f := newLoanFixture(testLendingSettings())
	seeded := seedLoan(t, f, domain.LoanStatusPending)

	loan, err := f.svc.Decide(context.Background(), seeded.ID, domain.LoanDecisionApprove, 1, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.LoanStatusApproved, loan.Status)
	require.NotNil(t, loan.ApprovedBy)
	assert.Equal(t, int32(1), *loan.ApprovedBy)
	assert.Equal(t, domain.LoanStatusApproved, f.loans.Loans[seeded.ID].Status)
	assert.Equal(t, []domain.NotificationKind{domain.NotificationLoanApproval}, f.notifier.Kinds())
}

func TestLoanService_Decide_RejectWithReason(t *testing.T) {
	f := newLoanFixture(testLendingSettings())
	seeded := seedLoan(t, f, domain.LoanStatusPending)
	reason := "  Insufficient contributions  "

	loan, err := f.svc.Decide(context.Background(), seeded.ID, domain.LoanDecisionReject, 1, &reason)
	require.NoError(t, err)

	assert.Equal(t, domain.LoanStatusRejected, loan.Status)
	require.NotNil(t, loan.RejectionReason)
	assert.Equal(t, "Insufficient contributions", *loan.RejectionReason)

	require.Len(t, f.notifier.Notifications, 1)
	assert.Equal(t, domain.NotificationLoanRejection, f.notifier.Notifications[0].Kind)
	assert.Contains(t, f.notifier.Notifications[0].Body, "Insufficient contributions")
}

func TestLoanService_Decide_ActiveLoanIsDecidable(t *testing.T) {
	f := newLoanFixture(testLendingSettings())
	seeded := seedLoan(t, f, domain.LoanStatusActive)

	loan, err := f.svc.Decide(context.Background(), seeded.ID, domain.LoanDecisionApprove, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusApproved, loan.Status)
}

func TestLoanService_Decide_AlreadyProcessed(t *testing.T) {
	for _, status := range []domain.LoanStatus{domain.LoanStatusApproved, domain.LoanStatusRejected, domain.LoanStatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			f := newLoanFixture(testLendingSettings())
			seeded := seedLoan(t, f, status)

			_, err := f.svc.Decide(context.Background(), seeded.ID, domain.LoanDecisionApprove, 1, nil)
			assert.ErrorIs(t, err, domain.ErrLoanAlreadyProcessed)
			assert.True(t, domain.IsStateConflict(err))
			assert.Equal(t, status, f.loans.Loans[seeded.ID].Status)
			assert.Zero(t, f.loans.UpdateStatusCalls)
			assert.Empty(t, f.notifier.Notifications)
		})
	}
}

func TestLoanService_Decide_InvalidDecision(t *testing.T) {
	f := newLoanFixture(testLendingSettings())
	seeded := seedLoan(t, f, domain.LoanStatusPending)

	_, err := f.svc.Decide(context.Background(), seeded.ID, domain.LoanDecision("maybe"), 1, nil)
	assert.True(t, domain.IsValidation(err))
}

func TestLoanService_Decide_NotFound(t *testing.T) {
	f := newLoanFixture(testLendingSettings())

	_, err := f.svc.Decide(context.Background(), 404, domain.LoanDecisionApprove, 1, nil)
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestLoanService_Reactivate(t *testing.T) {
	f := newLoanFixture(testLendingSettings())
	seeded := seedLoan(t, f, domain.LoanStatusRejected)

	loan, err := f.svc.Reactivate(context.Background(), seeded.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusActive, loan.Status)
	assert.Nil(t, loan.RejectionReason)
	assert.Equal(t, []domain.NotificationKind{domain.NotificationLoanReactivated}, f.notifier.Kinds())

	_, err = f.svc.Reactivate(context.Background(), seeded.ID, 1)
	assert.ErrorIs(t, err, domain.ErrLoanNotRejected)
}

func TestLoanService_PreviewLoan(t *testing.T) {
	f := newLoanFixture(testLendingSettings())

	schedule, err := f.svc.PreviewLoan(context.Background(), decimal.NewFromInt(10000), 6)
	require.NoError(t, err)
	assert.Len(t, schedule.Installments, 6)
	assert.Empty(t, f.loans.Loans)

	_, err = f.svc.PreviewLoan(context.Background(), decimal.NewFromInt(10000), 7)
	assert.True(t, domain.IsValidation(err))

	_, err = f.svc.PreviewLoan(context.Background(), decimal.RequireFromString("10000.001"), 6)
	assert.True(t, domain.IsValidation(err))
}

func TestLoanService_Submit_FreezesWholeCents(t *testing.T) {
	settings := testLendingSettings()
	settings.InterestRate = decimal.RequireFromString("1.7525")
	f := newLoanFixture(settings)
	input := validSubmitInput()
	input.Principal = decimal.RequireFromString("1000.01")
	input.TermMonths = 9

	loan, err := f.svc.Submit(context.Background(), input)
	require.NoError(t, err)

	// 1000.01 * 1.7525% * 9 = 157.7265772...
	assert.Equal(t, "157.73", loan.TotalInterest.String())
	assert.Equal(t, "1157.74", loan.TotalAmount.String())
	assert.Equal(t, "128.64", loan.MonthlyPayment.String())
	assert.True(t, loan.RemainingBalance.Equal(loan.TotalAmount))
}

func TestLoanService_GetSchedule_UsesFrozenTotals(t *testing.T) {
	settings := testLendingSettings()
	settings.InterestRate = decimal.RequireFromString("1.7525")
	f := newLoanFixture(settings)
	input := validSubmitInput()
	input.Principal = decimal.RequireFromString("1000.01")
	input.TermMonths = 9

	loan, err := f.svc.Submit(context.Background(), input)
	require.NoError(t, err)

	schedule, err := f.svc.GetSchedule(context.Background(), loan.ID)
	require.NoError(t, err)

	assert.True(t, schedule.TotalInterest.Equal(loan.TotalInterest), "interest %s vs %s", schedule.TotalInterest, loan.TotalInterest)
	assert.True(t, schedule.TotalAmount.Equal(loan.TotalAmount), "total %s vs %s", schedule.TotalAmount, loan.TotalAmount)
	assert.True(t, schedule.MonthlyPayment.Equal(loan.MonthlyPayment), "monthly %s vs %s", schedule.MonthlyPayment, loan.MonthlyPayment)
	require.Len(t, schedule.Installments, 9)
	assert.Equal(t, "128.64", schedule.Installments[0].AmountDue.StringFixed(2))
	assert.Equal(t, "1029.10", schedule.Installments[0].RemainingBalance.StringFixed(2))
	assert.True(t, schedule.Installments[8].RemainingBalance.IsZero())
}

func TestLoanService_GetSchedule_StartsAtApproval(t *testing.T) {
	f := newLoanFixture(testLendingSettings())
	seeded := seedLoan(t, f, domain.LoanStatusApproved)
	approvedAt := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	f.loans.Loans[seeded.ID].ApprovedAt = &approvedAt

	schedule, err := f.svc.GetSchedule(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), schedule.Installments[0].DueDate)
}

func TestLoanService_GetMemberLoan_HidesOtherMembers(t *testing.T) {
	f := newLoanFixture(testLendingSettings())
	seeded := seedLoan(t, f, domain.LoanStatusPending)

	loan, err := f.svc.GetMemberLoan(context.Background(), 42, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, loan.ID)

	_, err = f.svc.GetMemberLoan(context.Background(), 43, seeded.ID)
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestLoanService_GetLoansByStatus(t *testing.T) {
	f := newLoanFixture(testLendingSettings())
	seedLoan(t, f, domain.LoanStatusPending)

	pending := domain.LoanStatusPending
	loans, err := f.svc.GetLoansByStatus(context.Background(), &pending)
	require.NoError(t, err)
	assert.Len(t, loans, 1)

	approved := domain.LoanStatusApproved
	loans, err = f.svc.GetLoansByStatus(context.Background(), &approved)
	require.NoError(t, err)
	assert.Empty(t, loans)

	bogus := domain.LoanStatus("archived")
	_, err = f.svc.GetLoansByStatus(context.Background(), &bogus)
	assert.True(t, domain.IsValidation(err))
}
