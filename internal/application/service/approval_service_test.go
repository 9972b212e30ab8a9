package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperror"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/money"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/lock"
)

func TestApprove_PartialSplit(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "100")

	got, err := h.approvals.Approve(context.Background(), manager, e.ID, "only the train", dec("60"))
	require.NoError(t, err)

	assert.Equal(t, workflow.StateApproved, got.Status)
	assert.True(t, dec("60").Equal(*got.ApprovedAmount))
	assert.True(t, dec("40").Equal(*got.RejectedAmount))
	assert.Equal(t, manager.ID, got.ApprovedBy)
	require.Len(t, got.EscalationHistory, 1)
	assert.Equal(t, entity.HistoryActionPartialApproval, got.EscalationHistory[0].Action)

	stored := h.reload(t, e.ID)
	assert.Equal(t, workflow.StateApproved, stored.Status)
	assert.True(t, stored.ApprovedAmount.Add(*stored.RejectedAmount).Equal(stored.Amount))

	drafts := h.outboxDrafts(t)
	require.Len(t, drafts, 1)
	assert.Equal(t, owner.ID, drafts[0].UserID)
	assert.Equal(t, entity.NotificationExpensePartiallyApproved, drafts[0].Type)
}

func TestApprove_FullApprovalHasNoHistory(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "42.10")

	got, err := h.approvals.Approve(context.Background(), manager, e.ID, "", money.FullApproval)
	require.NoError(t, err)

	assert.Empty(t, got.EscalationHistory)
	assert.True(t, dec("42.10").Equal(*got.ApprovedAmount))
	assert.True(t, got.RejectedAmount.IsZero())
	assert.Equal(t, entity.NotificationExpenseApproved, h.outboxDrafts(t)[0].Type)
}

func TestApprove_AlreadyApprovedIsInvalidState(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "100")
	ctx := context.Background()

	_, err := h.approvals.Approve(ctx, manager, e.ID, "", dec("60"))
	require.NoError(t, err)

	_, err = h.approvals.Approve(ctx, manager2, e.ID, "", dec("100"))
	assert.ErrorIs(t, err, apperror.ErrInvalidState)

	stored := h.reload(t, e.ID)
	assert.True(t, dec("60").Equal(*stored.ApprovedAmount))
	assert.Len(t, h.outboxDrafts(t), 1)
}

func TestApprove_Preconditions(t *testing.T) {
	tests := []struct {
		name       string
		actor      entity.Actor
		percentage string
		missing    bool
		want       *apperror.Error
	}{
		{"employee", entity.Actor{ID: "emp-2", Role: entity.RoleEmployee, CompanyID: "acme"}, "100", false, apperror.ErrUnauthorized},
		{"other company", outsider, "100", false, apperror.ErrUnauthorized},
		{"percentage above range", manager, "100.01", false, apperror.ErrValidation},
		{"negative percentage", manager, "-1", false, apperror.ErrValidation},
		{"unknown expense", manager, "100", true, apperror.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, entity.OrderingLoose)
			e := h.submit(t, "100")
			id := e.ID
			if tt.missing {
				id = "missing"
			}

			_, err := h.approvals.Approve(context.Background(), tt.actor, id, "", dec(tt.percentage))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, workflow.StatePending, h.reload(t, e.ID).Status)
		})
	}
}

func TestApprove_OwnExpenseIsUnauthorized(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	self := entity.Actor{ID: "mgr-1", Role: entity.RoleManager, CompanyID: "acme"}
	e, err := h.expenses.Submit(context.Background(), self, SubmitExpenseInput{
		Amount: dec("10"), Currency: "USD", Category: "meals", Description: "lunch",
	})
	require.NoError(t, err)

	_, err = h.approvals.Approve(context.Background(), self, e.ID, "", money.FullApproval)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestReject(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "80")
	ctx := context.Background()

	got, err := h.approvals.Reject(ctx, manager, e.ID, "no receipt")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateRejected, got.Status)
	assert.Equal(t, "no receipt", got.RejectionReason)
	assert.NotNil(t, got.ApprovedAt)

	_, err = h.approvals.Reject(ctx, manager, e.ID, "again")
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
	_, err = h.approvals.Approve(ctx, manager, e.ID, "", money.FullApproval)
	assert.ErrorIs(t, err, apperror.ErrInvalidState)

	drafts := h.outboxDrafts(t)
	require.Len(t, drafts, 1)
	assert.Equal(t, entity.NotificationExpenseRejected, drafts[0].Type)
}

func TestEscalate_OnlyTargetOrAdminResumes(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "300")
	ctx := context.Background()

	got, err := h.approvals.Escalate(ctx, manager, e.ID, manager2.ID, "above my limit")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateEscalated, got.Status)
	assert.Equal(t, manager2.ID, got.ApprovedBy)
	require.Len(t, got.EscalationHistory, 1)
	assert.Equal(t, entity.HistoryActionEscalation, got.EscalationHistory[0].Action)
	assert.Equal(t, manager2.ID, got.EscalationHistory[0].EscalatedTo)

	drafts := h.outboxDrafts(t)
	require.Len(t, drafts, 1)
	assert.Equal(t, manager2.ID, drafts[0].UserID)
	assert.Equal(t, entity.NotificationExpenseEscalated, drafts[0].Type)

	_, err = h.approvals.Approve(ctx, manager, e.ID, "", money.FullApproval)
	assert.ErrorIs(t, err, apperror.ErrInvalidState)

	got, err = h.approvals.Approve(ctx, manager2, e.ID, "fine", money.FullApproval)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, got.Status)
	assert.Equal(t, manager2.ID, got.ApprovedBy)
}

func TestEscalate_AdminMayResolve(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "300")
	ctx := context.Background()

	_, err := h.approvals.Escalate(ctx, manager, e.ID, manager2.ID, "")
	require.NoError(t, err)

	got, err := h.approvals.Reject(ctx, admin, e.ID, "over budget")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateRejected, got.Status)
}

func TestEscalate_Validation(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "300")
	ctx := context.Background()

	_, err := h.approvals.Escalate(ctx, manager, e.ID, "", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = h.approvals.Escalate(ctx, manager, e.ID, manager.ID, "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestDirectPath_BlockedByWorkflow(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "100")
	ctx := context.Background()

	_, err := h.workflows.Create(ctx, admin, e.ID, []string{"A"}, nil)
	require.NoError(t, err)

	_, err = h.approvals.Approve(ctx, manager, e.ID, "", money.FullApproval)
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
}

func TestApproveReject_ConcurrentExactlyOneWins(t *testing.T) {
	for i := 0; i < 5; i++ {
		h := newHarness(t, entity.OrderingLoose)
		e := h.submit(t, "100")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = h.approvals.Approve(context.Background(), manager, e.ID, "", money.FullApproval)
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = h.approvals.Reject(context.Background(), manager2, e.ID, "no")
		}()
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			kind := apperror.KindOf(err)
			assert.Contains(t, []apperror.Kind{apperror.KindInvalidState, apperror.KindStaleState}, kind)
		}
		assert.Equal(t, 1, succeeded)
		assert.Len(t, h.outboxDrafts(t), 1)
	}
}

// staleReadRepo hands out expenses one version behind the store, as if another
// writer committed between the read and the write
type staleReadRepo struct {
	port.ExpenseRepository
}

func (r staleReadRepo) GetByID(ctx context.Context, id string) (*entity.Expense, error) {
	e, err := r.ExpenseRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Version--
	return e, nil
}

func TestApprove_StaleWriteIsRejected(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "100")

	svc := NewApprovalService(staleReadRepo{h.expenseRepo}, h.notifications, lock.NewMemoryLocker(), h.db, h.events, h.logger)
	_, err := svc.Approve(context.Background(), manager, e.ID, "", money.FullApproval)
	assert.ErrorIs(t, err, apperror.ErrStaleState)

	stored := h.reload(t, e.ID)
	assert.Equal(t, workflow.StatePending, stored.Status)
	assert.Empty(t, h.outboxDrafts(t))
}
