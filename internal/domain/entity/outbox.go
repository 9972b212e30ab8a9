package entity

import (
	"encoding/json"
	"time"
)

// OutboxStatus is the delivery state of an outbox event
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusPublished  OutboxStatus = "PUBLISHED"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	// OutboxStatusInvalid marks events that can never be delivered
	OutboxStatusInvalid OutboxStatus = "INVALID"
)

// OutboxEventNotification is the event type carrying a NotificationDraft
const OutboxEventNotification = "notification.requested"

// CanTransitionTo reports whether moving from s to next is allowed
func (s OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	switch s {
	case OutboxStatusPending, OutboxStatusFailed:
		return next == OutboxStatusProcessing
	case OutboxStatusProcessing:
		return next == OutboxStatusPublished || next == OutboxStatusFailed || next == OutboxStatusInvalid
	}
	return false
}

// OutboxEvent is a pending side effect written in the same transaction as a state change
type OutboxEvent struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	Status      OutboxStatus    `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	NextAttempt time.Time       `json:"next_attempt_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
