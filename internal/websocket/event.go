package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents what happened to the entity
type EventType string

const (
	EventTypeCreated EventType = "created"
	EventTypeUpdated EventType = "updated"
	EventTypeRead    EventType = "read"
	EventTypeSummary EventType = "summary"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypeNotification EntityType = "notification"
	EntityTypeLoan         EntityType = "loan"
	EntityTypePayment      EntityType = "payment"
	EntityTypeContribution EntityType = "contribution"
)

// Event is the message pushed to a member's connected clients.
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"` // e.g. "notification.created"
	Entity    EntityType  `json:"entity"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent creates a new event with the given type, entity, and payload
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NotificationCreated creates a notification.created event
func NotificationCreated(payload interface{}) Event {
	return NewEvent(EventTypeCreated, EntityTypeNotification, payload)
}

// NotificationRead creates a notification.read event
func NotificationRead(payload interface{}) Event {
	return NewEvent(EventTypeRead, EntityTypeNotification, payload)
}

// NotificationSummary creates the notification.summary event sent when a
// member connects
func NotificationSummary(unread int) Event {
	return NewEvent(EventTypeSummary, EntityTypeNotification, map[string]int{"unread": unread})
}

// LoanUpdated creates a loan.updated event
func LoanUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeLoan, payload)
}

// PaymentCreated creates a payment.created event
func PaymentCreated(payload interface{}) Event {
	return NewEvent(EventTypeCreated, EntityTypePayment, payload)
}

// PaymentUpdated creates a payment.updated event
func PaymentUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypePayment, payload)
}

// ContributionUpdated creates a contribution.updated event
func ContributionUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeContribution, payload)
}
