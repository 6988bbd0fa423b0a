package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/dafibh/cooplend/cooplend-backend/internal/util"
	"github.com/dafibh/cooplend/cooplend-backend/internal/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// LoanService handles the loan lifecycle: submission, decision and reactivation
type LoanService struct {
	txRunner       domain.TxRunner
	loanRepo       domain.LoanRepository
	memberRepo     domain.MemberRepository
	settings       SettingsProvider
	notifier       domain.NotificationSink
	now            func() time.Time
	eventPublisher websocket.EventPublisher
}

// NewLoanService creates a new LoanService
func NewLoanService(txRunner domain.TxRunner, loanRepo domain.LoanRepository, memberRepo domain.MemberRepository, settings SettingsProvider, notifier domain.NotificationSink) *LoanService {
	return &LoanService{
		txRunner:   txRunner,
		loanRepo:   loanRepo,
		memberRepo: memberRepo,
		settings:   settings,
		notifier:   notifier,
		now:        time.Now,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *LoanService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *LoanService) publishEvent(memberID int32, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(memberID, event)
	}
}

// SubmitLoanInput contains input for submitting a loan
type SubmitLoanInput struct {
	MemberID       int32
	Principal      decimal.Decimal
	TermMonths     int32
	Purpose        string
	PaymentMethod  string
	AccountDetails string
	AccountName    string
	// AdminID is set when an admin enters the loan on the member's behalf.
	// Such loans are approved immediately with the admin as approver.
	AdminID *int32
}

// Submit validates a loan application, freezes its amortization and stores it
// as pending, or as approved when submitted by an admin
func (s *LoanService) Submit(ctx context.Context, input SubmitLoanInput) (*domain.Loan, error) {
	settings, err := s.settings.Lending(ctx)
	if err != nil {
		return nil, err
	}

	purpose := strings.TrimSpace(input.Purpose)
	paymentMethod := strings.TrimSpace(input.PaymentMethod)
	accountDetails := strings.TrimSpace(input.AccountDetails)
	accountName := strings.TrimSpace(input.AccountName)

	if err := settings.ValidatePrincipal(input.Principal); err != nil {
		return nil, err
	}
	if err := settings.ValidateTerm(input.TermMonths); err != nil {
		return nil, err
	}
	if purpose == "" {
		return nil, domain.NewValidationError("purpose", "purpose is required")
	}
	if paymentMethod == "" {
		return nil, domain.NewValidationError("paymentMethod", "payment method is required")
	}
	if accountDetails == "" {
		return nil, domain.NewValidationError("accountDetails", "account details are required")
	}
	if accountName == "" {
		return nil, domain.NewValidationError("accountName", "account name is required")
	}

	if _, err := s.memberRepo.GetByID(ctx, input.MemberID); err != nil {
		return nil, err
	}

	now := s.now()
	schedule, err := ComputeSchedule(input.Principal, settings.InterestRate, input.TermMonths, now)
	if err != nil {
		return nil, err
	}

	// Ledger amounts are frozen at currency precision
	totalInterest := schedule.TotalInterest.Round(domain.MoneyPlaces)
	totalAmount := input.Principal.Add(totalInterest)
	monthlyPayment := totalAmount.Div(decimal.NewFromInt(int64(input.TermMonths))).Round(domain.MoneyPlaces)

	loan := &domain.Loan{
		LoanNumber:       util.LoanNumber(input.MemberID, now),
		MemberID:         input.MemberID,
		Principal:        input.Principal,
		TermMonths:       input.TermMonths,
		InterestRate:     settings.InterestRate,
		TotalInterest:    totalInterest,
		TotalAmount:      totalAmount,
		MonthlyPayment:   monthlyPayment,
		RemainingBalance: totalAmount,
		Status:           domain.LoanStatusPending,
		Purpose:          purpose,
		PaymentMethod:    paymentMethod,
		AccountDetails:   accountDetails,
		AccountName:      accountName,
	}
	if input.AdminID != nil {
		adminID := *input.AdminID
		loan.Status = domain.LoanStatusApproved
		loan.ApprovedBy = &adminID
		loan.ApprovedAt = &now
	}

	if err := loan.Validate(); err != nil {
		return nil, err
	}

	created, err := s.loanRepo.Create(ctx, loan)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int32("loan_id", created.ID).
		Int32("member_id", created.MemberID).
		Str("loan_number", created.LoanNumber).
		Str("principal", created.Principal.StringFixed(2)).
		Str("status", string(created.Status)).
		Msg("Loan submitted")

	s.publishEvent(created.MemberID, websocket.LoanUpdated(created))

	if created.Status == domain.LoanStatusApproved {
		s.notify(ctx, created, domain.NotificationLoanApproval, "Loan approved",
			fmt.Sprintf("Your loan %s of %s has been approved. Monthly payment: %s over %d months.",
				created.LoanNumber, created.Principal.StringFixed(2), created.MonthlyPayment.StringFixed(2), created.TermMonths))
	} else {
		s.notify(ctx, created, domain.NotificationLoanApplication, "Loan application received",
			fmt.Sprintf("Your application %s for %s over %d months is pending review.",
				created.LoanNumber, created.Principal.StringFixed(2), created.TermMonths))
	}

	return created, nil
}

// Decide approves or rejects a pending or active loan. A loan in any other
// status fails with ErrLoanAlreadyProcessed and is left untouched.
func (s *LoanService) Decide(ctx context.Context, loanID int32, decision domain.LoanDecision, adminID int32, rejectionReason *string) (*domain.Loan, error) {
	if !decision.IsValid() {
		return nil, domain.NewValidationError("decision", "decision must be approve or reject")
	}

	var reason *string
	if rejectionReason != nil {
		if trimmed := strings.TrimSpace(*rejectionReason); trimmed != "" {
			reason = &trimmed
		}
	}

	var decided *domain.Loan
	err := s.txRunner.RunInTx(ctx, func(tx domain.Tx) error {
		loan, err := s.loanRepo.GetByIDForUpdateTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if !loan.Status.IsDecidable() {
			return domain.ErrLoanAlreadyProcessed
		}

		now := s.now()
		updated := *loan
		updated.ApprovedBy = &adminID
		updated.ApprovedAt = &now
		if decision == domain.LoanDecisionApprove {
			updated.Status = domain.LoanStatusApproved
			updated.RejectionReason = nil
		} else {
			updated.Status = domain.LoanStatusRejected
			updated.RejectionReason = reason
		}

		decided, err = s.loanRepo.UpdateStatusTx(ctx, tx, &updated)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int32("loan_id", decided.ID).
		Int32("admin_id", adminID).
		Str("status", string(decided.Status)).
		Msg("Loan decided")

	s.publishEvent(decided.MemberID, websocket.LoanUpdated(decided))

	if decided.Status == domain.LoanStatusApproved {
		s.notify(ctx, decided, domain.NotificationLoanApproval, "Loan approved",
			fmt.Sprintf("Your loan %s of %s has been approved. Monthly payment: %s over %d months.",
				decided.LoanNumber, decided.Principal.StringFixed(2), decided.MonthlyPayment.StringFixed(2), decided.TermMonths))
	} else {
		body := fmt.Sprintf("Your loan application %s has been rejected.", decided.LoanNumber)
		if decided.RejectionReason != nil {
			body += " Reason: " + *decided.RejectionReason
		}
		s.notify(ctx, decided, domain.NotificationLoanRejection, "Loan rejected", body)
	}

	return decided, nil
}

// Reactivate moves a rejected loan to active so it can be decided again
func (s *LoanService) Reactivate(ctx context.Context, loanID int32, adminID int32) (*domain.Loan, error) {
	var reactivated *domain.Loan
	err := s.txRunner.RunInTx(ctx, func(tx domain.Tx) error {
		loan, err := s.loanRepo.GetByIDForUpdateTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != domain.LoanStatusRejected {
			return domain.ErrLoanNotRejected
		}

		updated := *loan
		updated.Status = domain.LoanStatusActive
		updated.RejectionReason = nil

		reactivated, err = s.loanRepo.UpdateStatusTx(ctx, tx, &updated)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int32("loan_id", reactivated.ID).Int32("admin_id", adminID).Msg("Loan reactivated")

	s.publishEvent(reactivated.MemberID, websocket.LoanUpdated(reactivated))

	s.notify(ctx, reactivated, domain.NotificationLoanReactivated, "Loan reactivated",
		fmt.Sprintf("Your loan application %s has been reopened for review.", reactivated.LoanNumber))

	return reactivated, nil
}

// PreviewLoan computes the schedule a loan would get under the current
// settings without storing anything
func (s *LoanService) PreviewLoan(ctx context.Context, principal decimal.Decimal, termMonths int32) (*domain.Schedule, error) {
	settings, err := s.settings.Lending(ctx)
	if err != nil {
		return nil, err
	}
	if err := settings.ValidatePrincipal(principal); err != nil {
		return nil, err
	}
	if err := settings.ValidateTerm(termMonths); err != nil {
		return nil, err
	}
	return ComputeSchedule(principal, settings.InterestRate, termMonths, s.now())
}

// GetSchedule returns the installment schedule of a stored loan built from
// its frozen totals
func (s *LoanService) GetSchedule(ctx context.Context, loanID int32) (*domain.Schedule, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return ScheduleForLoan(loan), nil
}

// GetLoan retrieves a loan by ID
func (s *LoanService) GetLoan(ctx context.Context, id int32) (*domain.Loan, error) {
	return s.loanRepo.GetByID(ctx, id)
}

// GetMemberLoan retrieves a loan by ID, hiding loans that belong to another member
func (s *LoanService) GetMemberLoan(ctx context.Context, memberID int32, id int32) (*domain.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if loan.MemberID != memberID {
		return nil, domain.ErrLoanNotFound
	}
	return loan, nil
}

// GetMemberLoans retrieves all loans of a member
func (s *LoanService) GetMemberLoans(ctx context.Context, memberID int32) ([]*domain.Loan, error) {
	return s.loanRepo.ListByMember(ctx, memberID)
}

// GetLoansByStatus retrieves all loans, optionally filtered by status
func (s *LoanService) GetLoansByStatus(ctx context.Context, status *domain.LoanStatus) ([]*domain.Loan, error) {
	if status != nil && !status.IsValid() {
		return nil, domain.NewValidationError("status", "unknown loan status")
	}
	return s.loanRepo.ListByStatus(ctx, status)
}

func (s *LoanService) notify(ctx context.Context, loan *domain.Loan, kind domain.NotificationKind, title, body string) {
	if s.notifier == nil {
		return
	}
	loanID := loan.ID
	s.notifier.Notify(ctx, loan.MemberID, kind, title, body, &loanID)
}
