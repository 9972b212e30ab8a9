package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/lock"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqldb/sqldbtest"
)

// testLogger implements Logger and records error messages
type testLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *testLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *testLogger) Error(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

var (
	owner    = entity.Actor{ID: "emp-1", Role: entity.RoleEmployee, CompanyID: "acme"}
	manager  = entity.Actor{ID: "mgr-1", Role: entity.RoleManager, CompanyID: "acme"}
	manager2 = entity.Actor{ID: "mgr-2", Role: entity.RoleManager, CompanyID: "acme"}
	admin    = entity.Actor{ID: "adm-1", Role: entity.RoleAdmin, CompanyID: "acme"}
	outsider = entity.Actor{ID: "mgr-9", Role: entity.RoleManager, CompanyID: "globex"}
)

func approver(id string) entity.Actor {
	return entity.Actor{ID: id, Role: entity.RoleManager, CompanyID: "acme"}
}

type harness struct {
	db            *sqldb.DB
	expenseRepo   *repository.ExpenseRepository
	workflowRepo  *repository.WorkflowRepository
	outboxRepo    *repository.OutboxRepository
	notifications NotificationService
	events        dispatcher.Dispatcher
	logger        *testLogger

	expenses  ExpenseService
	approvals ApprovalService
	workflows WorkflowService
}

func newHarness(t *testing.T, ordering string) *harness {
	t.Helper()

	db := sqldbtest.New(t)
	zl := zap.NewNop()
	h := &harness{
		db:           db,
		expenseRepo:  repository.NewExpenseRepository(db, zl),
		workflowRepo: repository.NewWorkflowRepository(db, zl),
		outboxRepo:   repository.NewOutboxRepository(db, zl),
		events:       dispatcher.NewDispatcher(),
		logger:       &testLogger{},
	}
	t.Cleanup(func() { _ = h.events.Close() })

	locker := lock.NewMemoryLocker()
	h.notifications = NewNotificationService(h.outboxRepo, repository.NewNotificationRepository(db, zl), h.logger)
	h.expenses = NewExpenseService(h.expenseRepo, nil, locker, db, h.events, ExpenseOptions{}, h.logger)
	h.approvals = NewApprovalService(h.expenseRepo, h.notifications, locker, db, h.events, h.logger)
	h.workflows = NewWorkflowService(h.expenseRepo, h.workflowRepo, h.notifications, locker, db, h.events, ordering, h.logger)
	return h
}

func (h *harness) submit(t *testing.T, amount string) *entity.Expense {
	t.Helper()
	e, err := h.expenses.Submit(context.Background(), owner, SubmitExpenseInput{
		Amount:      decimal.RequireFromString(amount),
		Currency:    "usd",
		Category:    "travel",
		Description: "Client visit",
	})
	require.NoError(t, err)
	return e
}

func (h *harness) reload(t *testing.T, id string) *entity.Expense {
	t.Helper()
	e, err := h.expenseRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return e
}

// outboxDrafts returns the notification drafts enqueued so far, oldest first
func (h *harness) outboxDrafts(t *testing.T) []entity.NotificationDraft {
	t.Helper()
	rows, err := h.db.QueryContext(context.Background(), `SELECT payload FROM outbox_events ORDER BY created_at, rowid`)
	require.NoError(t, err)
	defer rows.Close()

	var drafts []entity.NotificationDraft
	for rows.Next() {
		var payload string
		require.NoError(t, rows.Scan(&payload))
		var d entity.NotificationDraft
		require.NoError(t, json.Unmarshal([]byte(payload), &d))
		drafts = append(drafts, d)
	}
	require.NoError(t, rows.Err())
	return drafts
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
