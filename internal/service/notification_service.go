package service

import (
	"context"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/dafibh/cooplend/cooplend-backend/internal/websocket"
	"github.com/rs/zerolog/log"
)

// NotificationService stores member notifications and pushes them to any
// open WebSocket connection of the member
type NotificationService struct {
	notificationRepo domain.NotificationRepository
	eventPublisher   websocket.EventPublisher
}

// Ensure NotificationService can be handed to the ledger services
var _ domain.NotificationSink = (*NotificationService)(nil)

// NewNotificationService creates a new NotificationService
func NewNotificationService(notificationRepo domain.NotificationRepository) *NotificationService {
	return &NotificationService{notificationRepo: notificationRepo}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *NotificationService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// Notify implements domain.NotificationSink. Failures are logged and never
// propagate to the caller, whose ledger change has already committed.
func (s *NotificationService) Notify(ctx context.Context, memberID int32, kind domain.NotificationKind, title, body string, loanID *int32) {
	created, err := s.notificationRepo.Create(ctx, &domain.Notification{
		MemberID: memberID,
		Kind:     kind,
		Title:    title,
		Body:     body,
		LoanID:   loanID,
	})
	if err != nil {
		log.Warn().
			Err(err).
			Int32("member_id", memberID).
			Str("kind", string(kind)).
			Msg("Failed to store notification")
		return
	}

	s.publishEvent(memberID, websocket.NotificationCreated(created))
}

// List returns a member's notifications, newest first
func (s *NotificationService) List(ctx context.Context, memberID int32, unreadOnly bool) ([]*domain.Notification, error) {
	return s.notificationRepo.ListByMember(ctx, memberID, unreadOnly)
}

// UnreadCount returns how many of the member's notifications are unread
func (s *NotificationService) UnreadCount(ctx context.Context, memberID int32) (int, error) {
	unread, err := s.notificationRepo.ListByMember(ctx, memberID, true)
	if err != nil {
		return 0, err
	}
	return len(unread), nil
}

// MarkRead marks one of the member's notifications as read
func (s *NotificationService) MarkRead(ctx context.Context, memberID int32, id int32) (*domain.Notification, error) {
	notification, err := s.notificationRepo.MarkRead(ctx, memberID, id)
	if err != nil {
		return nil, err
	}
	s.publishEvent(memberID, websocket.NotificationRead(notification))
	return notification, nil
}

func (s *NotificationService) publishEvent(memberID int32, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(memberID, event)
	}
}
