package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperror"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/money"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// ApprovalService decides expenses directly, without a multi-step workflow
type ApprovalService interface {
	// Approve approves percentage of the expense amount; the remainder is rejected
	Approve(ctx context.Context, actor entity.Actor, expenseID, comment string, percentage decimal.Decimal) (*entity.Expense, error)
	Reject(ctx context.Context, actor entity.Actor, expenseID, comment string) (*entity.Expense, error)
	// Escalate reassigns the decision to escalateTo
	Escalate(ctx context.Context, actor entity.Actor, expenseID, escalateTo, comment string) (*entity.Expense, error)
}

type approvalServiceImpl struct {
	expenseRepo port.ExpenseRepository
	notifier    NotificationService
	locker      port.EntityLocker
	txManager   port.TransactionManager
	events      dispatcher.Dispatcher
	logger      Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	expenseRepo port.ExpenseRepository,
	notifier NotificationService,
	locker port.EntityLocker,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		expenseRepo: expenseRepo,
		notifier:    notifier,
		locker:      locker,
		txManager:   txManager,
		events:      events,
		logger:      logger,
	}
}

// Approve approves a pending expense, or an escalated one on behalf of its target
func (s *approvalServiceImpl) Approve(ctx context.Context, actor entity.Actor, expenseID, comment string, percentage decimal.Decimal) (_ *entity.Expense, err error) {
	ctx, span := startSpan(ctx, "ApprovalService.Approve", actor, expenseID)
	defer func() { endSpan(span, err) }()

	if percentage.IsNegative() || percentage.GreaterThan(money.FullApproval) {
		return nil, apperror.Validation("approval percentage must be within [0,100], got %s", percentage.String())
	}

	return s.decide(ctx, actor, expenseID, workflow.TriggerApprove, func(e *entity.Expense, now time.Time) (entity.NotificationDraft, error) {
		split, err := money.Split(e.Amount, percentage)
		if err != nil {
			return entity.NotificationDraft{}, err
		}
		pct := percentage
		e.ApprovedBy = actor.ID
		e.ApprovedAt = &now
		e.ApprovalComments = comment
		e.ApprovalPercentage = &pct
		e.ApprovedAmount = &split.Approved
		e.RejectedAmount = &split.Rejected

		draft := entity.NotificationDraft{
			UserID:    e.SubmittedBy,
			CompanyID: e.CompanyID,
			Data:      expenseData(e),
		}
		if money.IsFull(percentage) {
			draft.Type = entity.NotificationExpenseApproved
			draft.Title = "Expense approved"
			draft.Message = fmt.Sprintf("Your %s %s expense was approved.", e.Amount.StringFixed(2), e.Currency)
			return draft, nil
		}

		e.EscalationHistory = append(e.EscalationHistory, entity.HistoryEntry{
			Action:         entity.HistoryActionPartialApproval,
			ApprovedBy:     actor.ID,
			ApprovedAt:     now,
			ApprovedAmount: &split.Approved,
			RejectedAmount: &split.Rejected,
			Percentage:     &pct,
			Comment:        comment,
		})
		draft.Type = entity.NotificationExpensePartiallyApproved
		draft.Title = "Expense partially approved"
		draft.Message = fmt.Sprintf("%s%% of your %s %s expense was approved (%s approved, %s rejected).",
			pct.String(), e.Amount.StringFixed(2), e.Currency, split.Approved.StringFixed(2), split.Rejected.StringFixed(2))
		return draft, nil
	})
}

// Reject rejects a pending expense, or an escalated one on behalf of its target
func (s *approvalServiceImpl) Reject(ctx context.Context, actor entity.Actor, expenseID, comment string) (_ *entity.Expense, err error) {
	ctx, span := startSpan(ctx, "ApprovalService.Reject", actor, expenseID)
	defer func() { endSpan(span, err) }()

	return s.decide(ctx, actor, expenseID, workflow.TriggerReject, func(e *entity.Expense, now time.Time) (entity.NotificationDraft, error) {
		e.ApprovedBy = actor.ID
		e.ApprovedAt = &now
		e.RejectionReason = comment
		return entity.NotificationDraft{
			UserID:    e.SubmittedBy,
			CompanyID: e.CompanyID,
			Type:      entity.NotificationExpenseRejected,
			Title:     "Expense rejected",
			Message:   rejectionMessage(e, comment),
			Data:      expenseData(e),
		}, nil
	})
}

// Escalate hands the decision over to another approver
func (s *approvalServiceImpl) Escalate(ctx context.Context, actor entity.Actor, expenseID, escalateTo, comment string) (_ *entity.Expense, err error) {
	ctx, span := startSpan(ctx, "ApprovalService.Escalate", actor, expenseID)
	defer func() { endSpan(span, err) }()

	if escalateTo == "" {
		return nil, apperror.Validation("escalation target is required")
	}
	if escalateTo == actor.ID {
		return nil, apperror.Validation("cannot escalate to yourself")
	}

	return s.decide(ctx, actor, expenseID, workflow.TriggerEscalate, func(e *entity.Expense, now time.Time) (entity.NotificationDraft, error) {
		e.ApprovedBy = escalateTo
		e.ApprovalComments = comment
		e.EscalationHistory = append(e.EscalationHistory, entity.HistoryEntry{
			Action:      entity.HistoryActionEscalation,
			ApprovedBy:  actor.ID,
			ApprovedAt:  now,
			EscalatedTo: escalateTo,
			Comment:     comment,
		})
		return entity.NotificationDraft{
			UserID:    escalateTo,
			CompanyID: e.CompanyID,
			Type:      entity.NotificationExpenseEscalated,
			Title:     "Expense escalated to you",
			Message:   fmt.Sprintf("A %s %s expense was escalated to you for a decision.", e.Amount.StringFixed(2), e.Currency),
			Data:      expenseData(e),
		}, nil
	})
}

// decide runs one direct transition: load, authorize, fire trigger, apply, persist, notify
func (s *approvalServiceImpl) decide(
	ctx context.Context,
	actor entity.Actor,
	expenseID string,
	trigger workflow.Trigger,
	apply func(e *entity.Expense, now time.Time) (entity.NotificationDraft, error),
) (*entity.Expense, error) {
	var (
		updated *entity.Expense
		from    workflow.State
	)

	err := runLocked(ctx, s.locker, s.txManager, expenseID, func(ctx context.Context) error {
		e, err := s.expenseRepo.GetByID(ctx, expenseID)
		if err != nil {
			return err
		}
		if err := authorizeDecision(actor, e); err != nil {
			return err
		}
		if e.HasWorkflow() {
			return apperror.InvalidState("expense %s is decided by workflow %s", e.ID, e.WorkflowID)
		}
		if e.Status == workflow.StateEscalated && e.ApprovedBy != actor.ID && !actor.IsAdmin() {
			return apperror.InvalidState("expense %s is escalated to %s", e.ID, e.ApprovedBy)
		}

		from = e.Status
		m := workflow.NewExpenseMachine(e.Status)
		if err := fire(ctx, m, trigger, "expense "+e.ID); err != nil {
			return err
		}

		now := time.Now().UTC()
		e.Status = m.State()
		e.UpdatedAt = now
		draft, err := apply(e, now)
		if err != nil {
			return err
		}

		if err := s.expenseRepo.Update(ctx, e); err != nil {
			return err
		}
		if err := notify(ctx, s.notifier, s.logger, draft); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		s.logger.Error("Expense decision failed", "error", err, "expense_id", expenseID, "trigger", string(trigger), "actor", actor.ID)
		return nil, err
	}

	s.events.DispatchAsync(ctx, statusChangedEvent(updated, from, actor.ID))
	s.logger.Info("Expense decided", "expense_id", updated.ID, "from", string(from), "to", string(updated.Status), "actor", actor.ID)
	return updated, nil
}

func statusChangedEvent(e *entity.Expense, from workflow.State, actorID string) *event.Event {
	return event.NewEvent(event.TypeExpenseStatusChanged, e.ID, e.CompanyID, map[string]interface{}{
		"from":  string(from),
		"to":    string(e.Status),
		"actor": actorID,
	})
}

func expenseData(e *entity.Expense) map[string]interface{} {
	data := map[string]interface{}{
		"expense_id": e.ID,
		"status":     string(e.Status),
		"amount":     e.Amount.String(),
		"currency":   e.Currency,
	}
	if e.ApprovedAmount != nil {
		data["approved_amount"] = e.ApprovedAmount.String()
	}
	if e.RejectedAmount != nil {
		data["rejected_amount"] = e.RejectedAmount.String()
	}
	return data
}

func rejectionMessage(e *entity.Expense, reason string) string {
	msg := fmt.Sprintf("Your %s %s expense was rejected.", e.Amount.StringFixed(2), e.Currency)
	if reason != "" {
		msg += " Reason: " + reason
	}
	return msg
}
