package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperror"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

var tracer = otel.Tracer("github.com/garyjia/expense-approval/internal/application/service")

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

func startSpan(ctx context.Context, name string, actor entity.Actor, expenseID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("actor.id", actor.ID),
		attribute.String("actor.role", string(actor.Role)),
		attribute.String("expense.id", expenseID),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func expenseLockKey(id string) string {
	return "expense:" + id
}

// runLocked executes fn in one transaction while holding the expense lock
func runLocked(ctx context.Context, locker port.EntityLocker, tx port.TransactionManager, expenseID string, fn func(ctx context.Context) error) error {
	return locker.WithLock(ctx, expenseLockKey(expenseID), func(ctx context.Context) error {
		return tx.WithTransaction(ctx, fn)
	})
}

// fire moves m with trigger, reporting a refused transition as INVALID_STATE
func fire(ctx context.Context, m workflow.StateMachine, trigger workflow.Trigger, what string) error {
	from := m.State()
	if err := m.Fire(ctx, trigger); err != nil {
		if errors.Is(err, workflow.ErrInvalidTransition) || errors.Is(err, workflow.ErrGuardFailed) {
			return apperror.Wrap(apperror.KindInvalidState, err, what+" is "+from.String())
		}
		return err
	}
	return nil
}

// authorizeDecision checks that actor may approve, reject or escalate e directly
func authorizeDecision(actor entity.Actor, e *entity.Expense) error {
	if !actor.IsPrivileged() {
		return apperror.Unauthorized("role %q may not decide expenses", actor.Role)
	}
	if !actor.InCompany(e.CompanyID) {
		return apperror.Unauthorized("expense %s belongs to another company", e.ID)
	}
	if e.OwnedBy(actor.ID) {
		return apperror.Unauthorized("cannot decide on own expense %s", e.ID)
	}
	return nil
}

// canView reports whether actor may read e
func canView(actor entity.Actor, e *entity.Expense) bool {
	if e.OwnedBy(actor.ID) {
		return true
	}
	return actor.IsPrivileged() && actor.InCompany(e.CompanyID)
}
