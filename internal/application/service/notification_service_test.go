package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/domain/apperror"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
)

func TestEmit_EnqueuesOutboxEvent(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)

	err := h.notifications.Emit(context.Background(), entity.NotificationDraft{
		UserID:    "u-1",
		CompanyID: "acme",
		Type:      entity.NotificationApprovalRequired,
		Title:     "Approval required",
		Data:      map[string]interface{}{"expense_id": "e-1"},
	})
	require.NoError(t, err)

	claimed, err := h.outboxRepo.ClaimBatch(context.Background(), time.Now().UTC().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, entity.OutboxEventNotification, claimed[0].EventType)
	assert.Equal(t, "e-1", claimed[0].AggregateID)
}

func TestEmit_RejectsInvalidDrafts(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	ctx := context.Background()

	drafts := []entity.NotificationDraft{
		{CompanyID: "acme", Type: entity.NotificationExpenseApproved},
		{UserID: "u", Type: entity.NotificationExpenseApproved},
		{UserID: "u", CompanyID: "acme", Type: "expense_paid"},
	}
	for _, d := range drafts {
		assert.ErrorIs(t, h.notifications.Emit(ctx, d), apperror.ErrValidation)
	}
	assert.Empty(t, h.outboxDrafts(t))
}

func TestEmit_RolledBackWithTransaction(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)

	_ = h.db.WithTransaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, h.notifications.Emit(ctx, entity.NotificationDraft{
			UserID: "u", CompanyID: "acme", Type: entity.NotificationExpenseRejected,
		}))
		return assert.AnError
	})

	assert.Empty(t, h.outboxDrafts(t))
}

func TestNotify_DropsInvalidDraft(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)

	err := notify(context.Background(), h.notifications, h.logger, entity.NotificationDraft{Type: entity.NotificationExpenseApproved})
	assert.NoError(t, err)
	assert.Len(t, h.logger.errors, 1)
}

func TestListForUser(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	ctx := context.Background()
	repo := repository.NewNotificationRepository(h.db, zap.NewNop())

	for _, id := range []string{"n-1", "n-2"} {
		_, err := repo.CreateIfAbsent(ctx, &entity.Notification{
			ID: id, UserID: owner.ID, CompanyID: "acme", Type: entity.NotificationExpenseApproved, CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	got, err := h.notifications.ListForUser(ctx, owner, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = h.notifications.ListForUser(ctx, entity.Actor{}, 10)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}
