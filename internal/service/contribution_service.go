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

// ContributionService records member contributions. A member's total is always
// summed from confirmed records rather than kept as a running counter.
type ContributionService struct {
	contributionRepo domain.ContributionRepository
	memberRepo       domain.MemberRepository
	notifier         domain.NotificationSink
	now              func() time.Time
	eventPublisher   websocket.EventPublisher
}

// NewContributionService creates a new ContributionService
func NewContributionService(contributionRepo domain.ContributionRepository, memberRepo domain.MemberRepository, notifier domain.NotificationSink) *ContributionService {
	return &ContributionService{
		contributionRepo: contributionRepo,
		memberRepo:       memberRepo,
		notifier:         notifier,
		now:              time.Now,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *ContributionService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *ContributionService) publishEvent(memberID int32, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(memberID, event)
	}
}

// RecordContributionInput contains input for recording a contribution
type RecordContributionInput struct {
	MemberID int32
	Amount   decimal.Decimal
	Note     *string
	// ImmediateConfirm marks an admin entry, stored as confirmed
	ImmediateConfirm bool
	RecordedBy       *int32
}

// Record stores a contribution as pending, or confirmed when entered by an admin
func (s *ContributionService) Record(ctx context.Context, input RecordContributionInput) (*domain.Contribution, error) {
	if err := domain.ValidateAmount("amount", input.Amount); err != nil {
		return nil, err
	}

	if _, err := s.memberRepo.GetByID(ctx, input.MemberID); err != nil {
		return nil, err
	}

	var note *string
	if input.Note != nil {
		if trimmed := strings.TrimSpace(*input.Note); trimmed != "" {
			note = &trimmed
		}
	}

	now := s.now()
	contribution := &domain.Contribution{
		ReceiptNumber: util.ReceiptNumber(util.ReceiptPrefixContribution, now),
		MemberID:      input.MemberID,
		Amount:        input.Amount,
		Note:          note,
		Status:        domain.ContributionStatusPending,
		RecordedBy:    input.RecordedBy,
	}
	if input.ImmediateConfirm {
		contribution.Status = domain.ContributionStatusConfirmed
		contribution.DecidedBy = input.RecordedBy
		contribution.DecidedAt = &now
	}
	if err := contribution.Validate(); err != nil {
		return nil, err
	}

	created, err := s.contributionRepo.Create(ctx, contribution)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int32("contribution_id", created.ID).
		Int32("member_id", created.MemberID).
		Str("amount", created.Amount.StringFixed(2)).
		Str("status", string(created.Status)).
		Msg("Contribution recorded")

	s.publishEvent(created.MemberID, websocket.ContributionUpdated(created))

	if created.Status == domain.ContributionStatusConfirmed {
		s.notify(ctx, created.MemberID, domain.NotificationContributionConfirmed, "Contribution confirmed",
			fmt.Sprintf("Your contribution %s of %s has been confirmed.", created.ReceiptNumber, created.Amount.StringFixed(2)))
	} else {
		s.notify(ctx, created.MemberID, domain.NotificationContributionRecorded, "Contribution received",
			fmt.Sprintf("Your contribution %s of %s is awaiting confirmation.", created.ReceiptNumber, created.Amount.StringFixed(2)))
	}

	return created, nil
}

// Decide confirms or rejects a pending contribution
func (s *ContributionService) Decide(ctx context.Context, id int32, decision domain.ContributionDecision, adminID int32) (*domain.Contribution, error) {
	if !decision.IsValid() {
		return nil, domain.NewValidationError("decision", "decision must be confirm or reject")
	}

	contribution, err := s.contributionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if contribution.Status != domain.ContributionStatusPending {
		return nil, domain.ErrContributionAlreadyProcessed
	}

	now := s.now()
	next := *contribution
	next.DecidedBy = &adminID
	next.DecidedAt = &now
	if decision == domain.ContributionDecisionConfirm {
		next.Status = domain.ContributionStatusConfirmed
	} else {
		next.Status = domain.ContributionStatusRejected
	}

	decided, err := s.contributionRepo.DecidePending(ctx, &next)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int32("contribution_id", decided.ID).
		Int32("admin_id", adminID).
		Str("status", string(decided.Status)).
		Msg("Contribution decided")

	s.publishEvent(decided.MemberID, websocket.ContributionUpdated(decided))

	if decided.Status == domain.ContributionStatusConfirmed {
		s.notify(ctx, decided.MemberID, domain.NotificationContributionConfirmed, "Contribution confirmed",
			fmt.Sprintf("Your contribution %s of %s has been confirmed.", decided.ReceiptNumber, decided.Amount.StringFixed(2)))
	} else {
		s.notify(ctx, decided.MemberID, domain.NotificationContributionRejected, "Contribution rejected",
			fmt.Sprintf("Your contribution %s of %s was rejected.", decided.ReceiptNumber, decided.Amount.StringFixed(2)))
	}

	return decided, nil
}

// ConfirmedTotal sums the member's confirmed contributions
func (s *ContributionService) ConfirmedTotal(ctx context.Context, memberID int32) (decimal.Decimal, error) {
	if _, err := s.memberRepo.GetByID(ctx, memberID); err != nil {
		return decimal.Zero, err
	}
	return s.contributionRepo.SumConfirmedByMember(ctx, memberID)
}

// GetMemberContributions retrieves all contributions of a member
func (s *ContributionService) GetMemberContributions(ctx context.Context, memberID int32) ([]*domain.Contribution, error) {
	return s.contributionRepo.ListByMember(ctx, memberID)
}

// GetPendingContributions retrieves the confirmation queue
func (s *ContributionService) GetPendingContributions(ctx context.Context) ([]*domain.Contribution, error) {
	return s.contributionRepo.ListPending(ctx)
}

func (s *ContributionService) notify(ctx context.Context, memberID int32, kind domain.NotificationKind, title, body string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, memberID, kind, title, body, nil)
}
