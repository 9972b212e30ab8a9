package port

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ExpenseRepository persists expenses. Update and Delete are conditional on
// the version the caller read and fail with a STALE_STATE error when it moved.
type ExpenseRepository interface {
	Create(ctx context.Context, expense *entity.Expense) error
	GetByID(ctx context.Context, id string) (*entity.Expense, error)
	List(ctx context.Context, filter entity.ExpenseFilter) ([]*entity.Expense, error)
	// Update writes every mutable field and bumps expense.Version on success
	Update(ctx context.Context, expense *entity.Expense) error
	Delete(ctx context.Context, id string, version int64) error
}

// WorkflowRepository persists approval chains
type WorkflowRepository interface {
	Create(ctx context.Context, wf *entity.Workflow) error
	GetByID(ctx context.Context, id string) (*entity.Workflow, error)
	GetByExpenseID(ctx context.Context, expenseID string) (*entity.Workflow, error)
	// Update writes steps, status and pointer and bumps wf.Version on success
	Update(ctx context.Context, wf *entity.Workflow) error
}

// NotificationRepository stores delivered notification records
type NotificationRepository interface {
	// CreateIfAbsent inserts n unless a row with n.ID exists; it reports whether a row was written
	CreateIfAbsent(ctx context.Context, n *entity.Notification) (bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*entity.Notification, error)
}

// OutboxRepository stores pending side effects
type OutboxRepository interface {
	Enqueue(ctx context.Context, evt *entity.OutboxEvent) error
	// ClaimBatch moves up to limit due PENDING/FAILED events to PROCESSING and returns them
	ClaimBatch(ctx context.Context, now time.Time, limit int) ([]*entity.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string, nextAttempt time.Time) error
	MarkInvalid(ctx context.Context, id string, reason string) error
	// ReleaseStale returns PROCESSING events untouched since before to FAILED
	ReleaseStale(ctx context.Context, before time.Time) (int, error)
	GetByID(ctx context.Context, id string) (*entity.OutboxEvent, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
