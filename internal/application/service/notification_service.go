package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperror"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// NotificationService turns transition side effects into outbox events and
// reads back delivered notifications
type NotificationService interface {
	// Emit validates draft and enqueues it in the transaction carried by ctx
	Emit(ctx context.Context, draft entity.NotificationDraft) error
	ListForUser(ctx context.Context, actor entity.Actor, limit int) ([]*entity.Notification, error)
}

type notificationServiceImpl struct {
	outboxRepo       port.OutboxRepository
	notificationRepo port.NotificationRepository
	logger           Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	outboxRepo port.OutboxRepository,
	notificationRepo port.NotificationRepository,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		outboxRepo:       outboxRepo,
		notificationRepo: notificationRepo,
		logger:           logger,
	}
}

// Emit enqueues a notification request
func (s *notificationServiceImpl) Emit(ctx context.Context, draft entity.NotificationDraft) error {
	if err := validateDraft(draft); err != nil {
		return err
	}

	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode notification draft: %w", err)
	}

	aggregateID, _ := draft.Data["expense_id"].(string)
	now := time.Now().UTC()
	evt := &entity.OutboxEvent{
		ID:          uuid.NewString(),
		EventType:   entity.OutboxEventNotification,
		AggregateID: aggregateID,
		Payload:     payload,
		Status:      entity.OutboxStatusPending,
		NextAttempt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.outboxRepo.Enqueue(ctx, evt); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	s.logger.Info("Notification enqueued",
		"outbox_id", evt.ID, "user_id", draft.UserID, "type", string(draft.Type))
	return nil
}

// ListForUser returns the actor's most recent notifications
func (s *notificationServiceImpl) ListForUser(ctx context.Context, actor entity.Actor, limit int) ([]*entity.Notification, error) {
	if actor.ID == "" {
		return nil, apperror.Unauthorized("missing actor")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.notificationRepo.ListByUser(ctx, actor.ID, limit)
}

func validateDraft(d entity.NotificationDraft) error {
	if d.UserID == "" {
		return apperror.Validation("notification recipient is required")
	}
	if d.CompanyID == "" {
		return apperror.Validation("notification company is required")
	}
	if !d.Type.IsValid() {
		return apperror.Validation("unknown notification type %q", d.Type)
	}
	return nil
}

// notify emits draft as a side effect of a transition. Invalid drafts are
// logged and dropped; storage errors abort the surrounding transaction.
func notify(ctx context.Context, n NotificationService, logger Logger, draft entity.NotificationDraft) error {
	err := n.Emit(ctx, draft)
	if err == nil {
		return nil
	}
	if apperror.KindOf(err) == apperror.KindValidation {
		logger.Error("Dropping invalid notification", "error", err, "type", string(draft.Type))
		return nil
	}
	return err
}
