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

// PaymentService applies repayments to loan balances and tracks progress
type PaymentService struct {
	txRunner       domain.TxRunner
	paymentRepo    domain.PaymentRepository
	loanRepo       domain.LoanRepository
	settings       SettingsProvider
	notifier       domain.NotificationSink
	now            func() time.Time
	eventPublisher websocket.EventPublisher
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(txRunner domain.TxRunner, paymentRepo domain.PaymentRepository, loanRepo domain.LoanRepository, settings SettingsProvider, notifier domain.NotificationSink) *PaymentService {
	return &PaymentService{
		txRunner:    txRunner,
		paymentRepo: paymentRepo,
		loanRepo:    loanRepo,
		settings:    settings,
		notifier:    notifier,
		now:         time.Now,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *PaymentService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *PaymentService) publishEvent(memberID int32, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(memberID, event)
	}
}

// ApplyPaymentInput contains input for recording a payment
type ApplyPaymentInput struct {
	LoanID        int32
	Amount        decimal.Decimal
	PaymentDate   time.Time // zero means today
	PaymentMethod string
	// ImmediateConfirm marks an admin cash entry: the payment is stored as
	// verified and deducted from the balance in the same transaction
	ImmediateConfirm bool
	// RequestedBy is the member submitting the payment. Members may only pay
	// their own loans; admins may record payments against any loan.
	RequestedBy int32
}

// balanceDeduction is the outcome of deducting a verified payment from a loan
type balanceDeduction struct {
	loan      *domain.Loan
	completed bool
}

// ApplyPayment records a payment against an approved or active loan. The amount
// may not exceed the remaining balance. Member submissions stay pending until
// verified; admin cash entries are applied immediately.
func (s *PaymentService) ApplyPayment(ctx context.Context, input ApplyPaymentInput) (*domain.Payment, error) {
	if err := domain.ValidateAmount("amount", input.Amount); err != nil {
		return nil, err
	}
	method := strings.TrimSpace(input.PaymentMethod)
	if method == "" {
		return nil, domain.NewValidationError("paymentMethod", "payment method is required")
	}

	now := s.now()
	paymentDate := input.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = now
	}
	paymentDate = util.DateOnly(paymentDate)

	var (
		created   *domain.Payment
		deduction *balanceDeduction
	)
	err := s.txRunner.RunInTx(ctx, func(tx domain.Tx) error {
		loan, err := s.loanRepo.GetByIDForUpdateTx(ctx, tx, input.LoanID)
		if err != nil {
			return err
		}
		if !input.ImmediateConfirm && loan.MemberID != input.RequestedBy {
			return domain.ErrLoanNotFound
		}
		if err := checkPayable(loan, input.Amount); err != nil {
			return err
		}

		payment := &domain.Payment{
			ReceiptNumber: util.ReceiptNumber(util.ReceiptPrefixPayment, now),
			LoanID:        loan.ID,
			MemberID:      loan.MemberID,
			Amount:        input.Amount,
			PaymentDate:   paymentDate,
			PaymentMethod: method,
			Status:        domain.PaymentStatusPending,
		}
		if input.ImmediateConfirm {
			recordedBy := input.RequestedBy
			payment.Status = domain.PaymentStatusVerified
			payment.RecordedBy = &recordedBy
			payment.VerifiedBy = &recordedBy
			payment.VerifiedAt = &now
		}
		if err := payment.Validate(); err != nil {
			return err
		}

		created, err = s.paymentRepo.CreateTx(ctx, tx, payment)
		if err != nil {
			return err
		}

		if input.ImmediateConfirm {
			deduction, err = s.deductTx(ctx, tx, loan, input.Amount)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int32("payment_id", created.ID).
		Int32("loan_id", created.LoanID).
		Str("amount", created.Amount.StringFixed(2)).
		Str("status", string(created.Status)).
		Msg("Payment recorded")

	s.publishEvent(created.MemberID, websocket.PaymentCreated(created))
	if deduction != nil {
		s.publishEvent(created.MemberID, websocket.LoanUpdated(deduction.loan))
		s.notifyProcessed(ctx, created, deduction)
	} else {
		s.notify(ctx, created, domain.NotificationPaymentSubmitted, "Payment submitted",
			fmt.Sprintf("Your payment %s of %s is awaiting verification.",
				created.ReceiptNumber, created.Amount.StringFixed(2)))
	}

	return created, nil
}

// Verify settles a pending payment. Verification deducts the amount from the
// loan balance, completing the loan when it reaches zero; rejection leaves the
// balance untouched.
func (s *PaymentService) Verify(ctx context.Context, paymentID int32, decision domain.PaymentDecision, adminID int32) (*domain.Payment, error) {
	if !decision.IsValid() {
		return nil, domain.NewValidationError("decision", "decision must be verify or reject")
	}

	var (
		updated   *domain.Payment
		deduction *balanceDeduction
	)
	err := s.txRunner.RunInTx(ctx, func(tx domain.Tx) error {
		payment, err := s.paymentRepo.GetByIDForUpdateTx(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status != domain.PaymentStatusPending {
			return domain.ErrPaymentAlreadyProcessed
		}

		now := s.now()
		next := *payment
		next.VerifiedBy = &adminID
		next.VerifiedAt = &now

		if decision == domain.PaymentDecisionVerify {
			loan, err := s.loanRepo.GetByIDForUpdateTx(ctx, tx, payment.LoanID)
			if err != nil {
				return err
			}
			if err := checkPayable(loan, payment.Amount); err != nil {
				return err
			}
			deduction, err = s.deductTx(ctx, tx, loan, payment.Amount)
			if err != nil {
				return err
			}
			next.Status = domain.PaymentStatusVerified
		} else {
			next.Status = domain.PaymentStatusRejected
		}

		updated, err = s.paymentRepo.UpdateStatusTx(ctx, tx, &next)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int32("payment_id", updated.ID).
		Int32("loan_id", updated.LoanID).
		Int32("admin_id", adminID).
		Str("status", string(updated.Status)).
		Msg("Payment decided")

	s.publishEvent(updated.MemberID, websocket.PaymentUpdated(updated))
	if deduction != nil {
		s.publishEvent(updated.MemberID, websocket.LoanUpdated(deduction.loan))
		s.notifyProcessed(ctx, updated, deduction)
	} else {
		s.notify(ctx, updated, domain.NotificationPaymentRejected, "Payment rejected",
			fmt.Sprintf("Your payment %s of %s could not be verified.",
				updated.ReceiptNumber, updated.Amount.StringFixed(2)))
	}

	return updated, nil
}

// Progress reports verified payment count against the expected installment count
func (s *PaymentService) Progress(ctx context.Context, loanID int32) (*domain.PaymentProgress, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Lending(ctx)
	if err != nil {
		return nil, err
	}
	paid, err := s.paymentRepo.CountVerifiedByLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	return CalculateProgress(loan, paid, settings.ProgressMultiplier), nil
}

// CalculateProgress builds the progress view of a loan given its verified payment count.
// expected = termMonths * multiplier; remaining never goes below zero.
func CalculateProgress(loan *domain.Loan, paid int32, multiplier int32) *domain.PaymentProgress {
	if multiplier < 1 {
		multiplier = 1
	}
	expected := loan.TermMonths * multiplier
	remaining := expected - paid
	if remaining < 0 {
		remaining = 0
	}
	return &domain.PaymentProgress{
		LoanID:           loan.ID,
		Paid:             paid,
		Expected:         expected,
		Remaining:        remaining,
		PaidAmount:       loan.PaidAmount(),
		RemainingBalance: loan.RemainingBalance,
		TotalAmount:      loan.TotalAmount,
	}
}

// GetPayment retrieves a payment by ID
func (s *PaymentService) GetPayment(ctx context.Context, id int32) (*domain.Payment, error) {
	return s.paymentRepo.GetByID(ctx, id)
}

// GetPaymentsByLoan retrieves all payments recorded against a loan
func (s *PaymentService) GetPaymentsByLoan(ctx context.Context, loanID int32) ([]*domain.Payment, error) {
	if _, err := s.loanRepo.GetByID(ctx, loanID); err != nil {
		return nil, err
	}
	return s.paymentRepo.ListByLoan(ctx, loanID)
}

// GetPendingPayments retrieves the verification queue
func (s *PaymentService) GetPendingPayments(ctx context.Context) ([]*domain.Payment, error) {
	return s.paymentRepo.ListPending(ctx)
}

// checkPayable enforces the loan status and over-payment preconditions
func checkPayable(loan *domain.Loan, amount decimal.Decimal) error {
	if !loan.Status.AcceptsPayments() {
		return domain.ErrLoanNotPayable
	}
	if amount.GreaterThan(loan.RemainingBalance) {
		return &domain.OverpaymentError{Amount: amount, RemainingBalance: loan.RemainingBalance}
	}
	return nil
}

// deductTx subtracts amount from the loan balance with a compare-and-swap on the
// balance read under lock, completing the loan when nothing is left
func (s *PaymentService) deductTx(ctx context.Context, tx domain.Tx, loan *domain.Loan, amount decimal.Decimal) (*balanceDeduction, error) {
	balance := loan.RemainingBalance.Sub(amount)
	status := loan.Status
	completed := false
	if balance.LessThanOrEqual(decimal.Zero) {
		balance = decimal.Zero
		status = domain.LoanStatusCompleted
		completed = true
	}

	updated, err := s.loanRepo.UpdateBalanceTx(ctx, tx, loan.ID, loan.RemainingBalance, balance, status)
	if err != nil {
		return nil, err
	}

	if completed {
		log.Info().Int32("loan_id", updated.ID).Msg("Loan completed")
	}
	return &balanceDeduction{loan: updated, completed: completed}, nil
}

func (s *PaymentService) notifyProcessed(ctx context.Context, payment *domain.Payment, d *balanceDeduction) {
	body := fmt.Sprintf("Your payment %s of %s has been processed. Remaining balance: %s.",
		payment.ReceiptNumber, payment.Amount.StringFixed(2), d.loan.RemainingBalance.StringFixed(2))
	if d.completed {
		body = fmt.Sprintf("Your payment %s of %s has been processed. Loan %s is now fully paid.",
			payment.ReceiptNumber, payment.Amount.StringFixed(2), d.loan.LoanNumber)
	}
	s.notify(ctx, payment, domain.NotificationPaymentProcessed, "Payment processed", body)
}

func (s *PaymentService) notify(ctx context.Context, payment *domain.Payment, kind domain.NotificationKind, title, body string) {
	if s.notifier == nil {
		return
	}
	loanID := payment.LoanID
	s.notifier.Notify(ctx, payment.MemberID, kind, title, body, &loanID)
}
