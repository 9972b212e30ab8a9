package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/apperror"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/money"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/lock"
)

type mockAdvisor struct {
	mock.Mock
}

func (m *mockAdvisor) Advise(ctx context.Context, e *entity.Expense) (string, error) {
	args := m.Called(ctx, e)
	return args.String(0), args.Error(1)
}

func TestSubmit(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)

	submitted := make(chan *event.Event, 1)
	h.events.Subscribe(event.TypeExpenseSubmitted, func(_ context.Context, evt *event.Event) error {
		submitted <- evt
		return nil
	})

	date := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	e, err := h.expenses.Submit(context.Background(), owner, SubmitExpenseInput{
		Amount:      dec("123.45"),
		Currency:    " eur ",
		Category:    "meals",
		Description: "Team\x00 dinner ",
		Date:        &date,
		ReceiptURL:  "https://receipts.example/1.pdf",
	})
	require.NoError(t, err)

	assert.Equal(t, workflow.StatePending, e.Status)
	assert.Equal(t, "EUR", e.Currency)
	assert.Equal(t, "Team dinner", e.Description)
	assert.Equal(t, owner.ID, e.SubmittedBy)
	assert.Equal(t, owner.CompanyID, e.CompanyID)
	assert.Equal(t, int64(1), e.Version)

	stored := h.reload(t, e.ID)
	assert.True(t, dec("123.45").Equal(stored.Amount))
	require.NotNil(t, stored.Date)
	assert.True(t, date.Equal(*stored.Date))

	select {
	case evt := <-submitted:
		assert.Equal(t, e.ID, evt.AggregateID)
	case <-time.After(2 * time.Second):
		t.Fatal("expense.submitted not dispatched")
	}
}

func TestSubmit_Validation(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	valid := SubmitExpenseInput{Amount: dec("10"), Currency: "USD", Category: "travel", Description: "bus"}

	tests := []struct {
		name   string
		actor  entity.Actor
		mutate func(in *SubmitExpenseInput)
		want   *apperror.Error
	}{
		{"zero amount", owner, func(in *SubmitExpenseInput) { in.Amount = dec("0") }, apperror.ErrValidation},
		{"three decimals", owner, func(in *SubmitExpenseInput) { in.Amount = dec("1.005") }, apperror.ErrValidation},
		{"bad currency", owner, func(in *SubmitExpenseInput) { in.Currency = "US" }, apperror.ErrValidation},
		{"no category", owner, func(in *SubmitExpenseInput) { in.Category = "  " }, apperror.ErrValidation},
		{"no description", owner, func(in *SubmitExpenseInput) { in.Description = "" }, apperror.ErrValidation},
		{"anonymous", entity.Actor{}, func(in *SubmitExpenseInput) {}, apperror.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := h.expenses.Submit(context.Background(), tt.actor, in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubmit_MaxAmount(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	svc := NewExpenseService(h.expenseRepo, nil, lock.NewMemoryLocker(), h.db, h.events, ExpenseOptions{MaxAmount: dec("1000")}, h.logger)

	_, err := svc.Submit(context.Background(), owner, SubmitExpenseInput{Amount: dec("1000.01"), Currency: "USD", Category: "c", Description: "d"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestSubmit_Advisory(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	in := SubmitExpenseInput{Amount: dec("900"), Currency: "USD", Category: "hotel", Description: "3 nights"}

	t.Run("note stored", func(t *testing.T) {
		advisor := new(mockAdvisor)
		advisor.On("Advise", mock.Anything, mock.AnythingOfType("*entity.Expense")).Return("Above nightly cap [hotel]", nil)
		svc := NewExpenseService(h.expenseRepo, advisor, lock.NewMemoryLocker(), h.db, h.events, ExpenseOptions{}, h.logger)

		e, err := svc.Submit(context.Background(), owner, in)
		require.NoError(t, err)
		assert.Equal(t, "Above nightly cap [hotel]", h.reload(t, e.ID).AdvisoryNote)
		advisor.AssertExpectations(t)
	})

	t.Run("failure does not block submission", func(t *testing.T) {
		advisor := new(mockAdvisor)
		advisor.On("Advise", mock.Anything, mock.Anything).Return("", errors.New("upstream timeout"))
		svc := NewExpenseService(h.expenseRepo, advisor, lock.NewMemoryLocker(), h.db, h.events, ExpenseOptions{}, h.logger)

		e, err := svc.Submit(context.Background(), owner, in)
		require.NoError(t, err)
		assert.Empty(t, e.AdvisoryNote)
		assert.Equal(t, workflow.StatePending, e.Status)
	})
}

func TestGet_Visibility(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "10")
	ctx := context.Background()

	for _, a := range []entity.Actor{owner, manager, admin} {
		_, err := h.expenses.Get(ctx, a, e.ID)
		assert.NoError(t, err, a.ID)
	}

	_, err := h.expenses.Get(ctx, entity.Actor{ID: "emp-2", Role: entity.RoleEmployee, CompanyID: "acme"}, e.ID)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	_, err = h.expenses.Get(ctx, outsider, e.ID)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	_, err = h.expenses.Get(ctx, owner, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestList_ScopedByRole(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	ctx := context.Background()

	h.submit(t, "10")
	second := h.submit(t, "20")
	other := entity.Actor{ID: "emp-2", Role: entity.RoleEmployee, CompanyID: "acme"}
	_, err := h.expenses.Submit(ctx, other, SubmitExpenseInput{Amount: dec("5"), Currency: "USD", Category: "c", Description: "d"})
	require.NoError(t, err)

	mine, err := h.expenses.List(ctx, owner, ListExpensesInput{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := h.expenses.List(ctx, manager, ListExpensesInput{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = h.approvals.Approve(ctx, manager, second.ID, "", money.FullApproval)
	require.NoError(t, err)
	approved, err := h.expenses.List(ctx, manager, ListExpensesInput{Status: workflow.StateApproved})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, second.ID, approved[0].ID)

	_, err = h.expenses.List(ctx, manager, ListExpensesInput{Status: "archived"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	foreign, err := h.expenses.List(ctx, outsider, ListExpensesInput{})
	require.NoError(t, err)
	assert.Empty(t, foreign)
}

func TestDelete(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	ctx := context.Background()

	t.Run("owner deletes pending", func(t *testing.T) {
		e := h.submit(t, "10")
		require.NoError(t, h.expenses.Delete(ctx, owner, e.ID))
		_, err := h.expenseRepo.GetByID(ctx, e.ID)
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("not the owner", func(t *testing.T) {
		e := h.submit(t, "10")
		assert.ErrorIs(t, h.expenses.Delete(ctx, manager, e.ID), apperror.ErrUnauthorized)
	})

	t.Run("decided expense is kept", func(t *testing.T) {
		e := h.submit(t, "10")
		_, err := h.approvals.Reject(ctx, manager, e.ID, "")
		require.NoError(t, err)
		assert.ErrorIs(t, h.expenses.Delete(ctx, owner, e.ID), apperror.ErrInvalidState)
		assert.Equal(t, workflow.StateRejected, h.reload(t, e.ID).Status)
	})

	t.Run("expense with workflow is kept", func(t *testing.T) {
		e := h.submit(t, "10")
		_, err := h.workflows.Create(ctx, admin, e.ID, []string{"A"}, nil)
		require.NoError(t, err)
		assert.ErrorIs(t, h.expenses.Delete(ctx, owner, e.ID), apperror.ErrInvalidState)
	})

	t.Run("missing", func(t *testing.T) {
		assert.ErrorIs(t, h.expenses.Delete(ctx, owner, "missing"), apperror.ErrNotFound)
	})
}
