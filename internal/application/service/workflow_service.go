package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperror"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/money"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// WorkflowService runs multi-step approval chains. The acting approver is actor.ID.
type WorkflowService interface {
	Create(ctx context.Context, actor entity.Actor, expenseID string, approvers []string, rules json.RawMessage) (*entity.Workflow, error)
	Get(ctx context.Context, actor entity.Actor, expenseID string) (*entity.Workflow, error)
	ApproveStep(ctx context.Context, actor entity.Actor, expenseID, comment string) (*entity.Workflow, error)
	RejectStep(ctx context.Context, actor entity.Actor, expenseID, comment string) (*entity.Workflow, error)
	// EscalateStep hands the actor's pending step to toApproverID by opening a
	// replacement step right after it
	EscalateStep(ctx context.Context, actor entity.Actor, expenseID, toApproverID, comment string) (*entity.Workflow, error)
}

type workflowServiceImpl struct {
	expenseRepo  port.ExpenseRepository
	workflowRepo port.WorkflowRepository
	notifier     NotificationService
	locker       port.EntityLocker
	txManager    port.TransactionManager
	events       dispatcher.Dispatcher
	ordering     string
	logger       Logger
}

// NewWorkflowService creates a new WorkflowService. ordering is
// entity.OrderingLoose or entity.OrderingStrict; anything else means loose.
func NewWorkflowService(
	expenseRepo port.ExpenseRepository,
	workflowRepo port.WorkflowRepository,
	notifier NotificationService,
	locker port.EntityLocker,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	ordering string,
	logger Logger,
) WorkflowService {
	if ordering != entity.OrderingStrict {
		ordering = entity.OrderingLoose
	}
	return &workflowServiceImpl{
		expenseRepo:  expenseRepo,
		workflowRepo: workflowRepo,
		notifier:     notifier,
		locker:       locker,
		txManager:    txManager,
		events:       events,
		ordering:     ordering,
		logger:       logger,
	}
}

// Create attaches a new approval chain to a pending expense
func (s *workflowServiceImpl) Create(ctx context.Context, actor entity.Actor, expenseID string, approvers []string, rules json.RawMessage) (_ *entity.Workflow, err error) {
	ctx, span := startSpan(ctx, "WorkflowService.Create", actor, expenseID)
	defer func() { endSpan(span, err) }()

	if !actor.IsAdmin() {
		return nil, apperror.Unauthorized("only admins may create workflows")
	}
	if len(approvers) == 0 {
		return nil, apperror.Validation("at least one approver is required")
	}
	for i, a := range approvers {
		if strings.TrimSpace(a) == "" {
			return nil, apperror.Validation("approver %d is empty", i)
		}
	}
	if len(rules) > 0 && !json.Valid(rules) {
		return nil, apperror.Validation("rules must be valid JSON")
	}

	var wf *entity.Workflow
	err = runLocked(ctx, s.locker, s.txManager, expenseID, func(ctx context.Context) error {
		e, err := s.expenseRepo.GetByID(ctx, expenseID)
		if err != nil {
			return err
		}
		if !actor.InCompany(e.CompanyID) {
			return apperror.Unauthorized("expense %s belongs to another company", e.ID)
		}
		if e.Status != workflow.StatePending {
			return apperror.InvalidState("expense %s is %s", e.ID, e.Status)
		}
		if e.HasWorkflow() {
			return apperror.InvalidState("expense %s already has workflow %s", e.ID, e.WorkflowID)
		}
		for _, a := range approvers {
			if e.OwnedBy(a) {
				return apperror.Validation("submitter %s cannot approve own expense", a)
			}
		}
		if _, err := s.workflowRepo.GetByExpenseID(ctx, e.ID); err == nil {
			return apperror.InvalidState("expense %s already has a workflow", e.ID)
		} else if !errors.Is(err, apperror.ErrNotFound) {
			return err
		}

		now := time.Now().UTC()
		wf = &entity.Workflow{
			ID:          uuid.NewString(),
			ExpenseID:   e.ID,
			CompanyID:   e.CompanyID,
			SubmittedBy: e.SubmittedBy,
			Steps:       entity.NewSteps(approvers),
			Status:      workflow.StatePending,
			Rules:       rules,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.workflowRepo.Create(ctx, wf); err != nil {
			return err
		}

		e.WorkflowID = wf.ID
		e.UpdatedAt = now
		if err := s.expenseRepo.Update(ctx, e); err != nil {
			return err
		}

		return notify(ctx, s.notifier, s.logger, approvalRequired(e, approvers[0]))
	})
	if err != nil {
		s.logger.Error("Failed to create workflow", "error", err, "expense_id", expenseID)
		return nil, err
	}

	s.events.DispatchAsync(ctx, event.NewEvent(event.TypeWorkflowCreated, wf.ID, wf.CompanyID, map[string]interface{}{
		"expense_id": wf.ExpenseID,
		"approvers":  len(wf.Steps),
	}))
	s.logger.Info("Workflow created", "workflow_id", wf.ID, "expense_id", expenseID, "steps", len(wf.Steps))
	return wf, nil
}

// Get returns the workflow of an expense to its owner, its approvers or privileged roles
func (s *workflowServiceImpl) Get(ctx context.Context, actor entity.Actor, expenseID string) (_ *entity.Workflow, err error) {
	ctx, span := startSpan(ctx, "WorkflowService.Get", actor, expenseID)
	defer func() { endSpan(span, err) }()

	e, err := s.expenseRepo.GetByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	wf, err := s.workflowRepo.GetByExpenseID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if !canView(actor, e) && !(actor.InCompany(wf.CompanyID) && wf.HasApprover(actor.ID)) {
		return nil, apperror.Unauthorized("workflow for expense %s is not visible to %s", expenseID, actor.ID)
	}
	return wf, nil
}

// ApproveStep approves the actor's step. The expense is approved in full once
// every step not superseded by escalation is approved.
func (s *workflowServiceImpl) ApproveStep(ctx context.Context, actor entity.Actor, expenseID, comment string) (_ *entity.Workflow, err error) {
	ctx, span := startSpan(ctx, "WorkflowService.ApproveStep", actor, expenseID)
	defer func() { endSpan(span, err) }()

	return s.act(ctx, actor, expenseID, "approve", func(ctx context.Context, c *stepContext) error {
		step := &c.wf.Steps[c.index]
		step.Status = workflow.StateApproved
		step.Comments = comment
		step.ActionAt = &c.now

		if c.wf.IsFullyApproved() {
			if err := fire(ctx, c.machine, workflow.TriggerComplete, "workflow "+c.wf.ID); err != nil {
				return err
			}
			c.wf.CurrentStep = len(c.wf.Steps)

			split, err := money.Split(c.expense.Amount, money.FullApproval)
			if err != nil {
				return err
			}
			pct := money.FullApproval
			if err := c.cascade(ctx, workflow.TriggerApprove); err != nil {
				return err
			}
			c.expense.ApprovedBy = actor.ID
			c.expense.ApprovedAt = &c.now
			c.expense.ApprovalComments = comment
			c.expense.ApprovalPercentage = &pct
			c.expense.ApprovedAmount = &split.Approved
			c.expense.RejectedAmount = &split.Rejected

			c.drafts = append(c.drafts, entity.NotificationDraft{
				UserID:    c.expense.SubmittedBy,
				CompanyID: c.expense.CompanyID,
				Type:      entity.NotificationWorkflowCompleted,
				Title:     "Expense approved",
				Message:   fmt.Sprintf("All approvers signed off your %s %s expense.", c.expense.Amount.StringFixed(2), c.expense.Currency),
				Data:      expenseData(c.expense),
			})
			return nil
		}

		trigger := workflow.TriggerAdvance
		if c.wf.HasPendingReplacement() {
			trigger = workflow.TriggerEscalate
		}
		if err := fire(ctx, c.machine, trigger, "workflow "+c.wf.ID); err != nil {
			return err
		}
		c.wf.CurrentStep = c.index + 1

		next := c.wf.NextPendingIndex(c.index + 1)
		if next < 0 {
			next = c.wf.FirstPendingIndex()
		}
		if next >= 0 {
			c.drafts = append(c.drafts, approvalRequired(c.expense, c.wf.Steps[next].ApproverID))
		}
		return nil
	})
}

// RejectStep rejects the actor's step and with it the whole chain
func (s *workflowServiceImpl) RejectStep(ctx context.Context, actor entity.Actor, expenseID, comment string) (_ *entity.Workflow, err error) {
	ctx, span := startSpan(ctx, "WorkflowService.RejectStep", actor, expenseID)
	defer func() { endSpan(span, err) }()

	return s.act(ctx, actor, expenseID, "reject", func(ctx context.Context, c *stepContext) error {
		step := &c.wf.Steps[c.index]
		step.Status = workflow.StateRejected
		step.Comments = comment
		step.ActionAt = &c.now

		if err := fire(ctx, c.machine, workflow.TriggerReject, "workflow "+c.wf.ID); err != nil {
			return err
		}
		if err := c.cascade(ctx, workflow.TriggerReject); err != nil {
			return err
		}
		c.expense.ApprovedBy = actor.ID
		c.expense.ApprovedAt = &c.now
		c.expense.RejectionReason = comment

		c.drafts = append(c.drafts, entity.NotificationDraft{
			UserID:    c.expense.SubmittedBy,
			CompanyID: c.expense.CompanyID,
			Type:      entity.NotificationExpenseRejected,
			Title:     "Expense rejected",
			Message:   rejectionMessage(c.expense, comment),
			Data:      expenseData(c.expense),
		})
		return nil
	})
}

// EscalateStep marks the actor's step escalated and opens a pending step for the target
func (s *workflowServiceImpl) EscalateStep(ctx context.Context, actor entity.Actor, expenseID, toApproverID, comment string) (_ *entity.Workflow, err error) {
	ctx, span := startSpan(ctx, "WorkflowService.EscalateStep", actor, expenseID)
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(toApproverID) == "" {
		return nil, apperror.Validation("escalation target is required")
	}
	if toApproverID == actor.ID {
		return nil, apperror.Validation("cannot escalate to yourself")
	}

	return s.act(ctx, actor, expenseID, "escalate", func(ctx context.Context, c *stepContext) error {
		if c.expense.OwnedBy(toApproverID) {
			return apperror.Validation("cannot escalate to the submitter of expense %s", c.expense.ID)
		}
		step := &c.wf.Steps[c.index]
		step.Status = workflow.StateEscalated
		step.EscalatedTo = toApproverID
		step.Comments = comment
		step.ActionAt = &c.now

		c.wf.InsertStep(c.index+1, entity.Step{
			ApproverID:    toApproverID,
			Status:        workflow.StatePending,
			EscalatedFrom: actor.ID,
		})
		if err := fire(ctx, c.machine, workflow.TriggerEscalate, "workflow "+c.wf.ID); err != nil {
			return err
		}
		c.wf.CurrentStep = c.index + 1

		c.expense.EscalationHistory = append(c.expense.EscalationHistory, entity.HistoryEntry{
			Action:      entity.HistoryActionEscalation,
			ApprovedBy:  actor.ID,
			ApprovedAt:  c.now,
			EscalatedTo: toApproverID,
			Comment:     comment,
		})
		c.expenseChanged = true

		c.drafts = append(c.drafts, entity.NotificationDraft{
			UserID:    toApproverID,
			CompanyID: c.expense.CompanyID,
			Type:      entity.NotificationExpenseEscalated,
			Title:     "Approval escalated to you",
			Message:   fmt.Sprintf("An approval step for a %s %s expense was escalated to you.", c.expense.Amount.StringFixed(2), c.expense.Currency),
			Data:      expenseData(c.expense),
		})
		return nil
	})
}

// stepContext carries one step action through act
type stepContext struct {
	expense        *entity.Expense
	wf             *entity.Workflow
	machine        workflow.StateMachine
	index          int
	now            time.Time
	expenseChanged bool
	expenseFrom    workflow.State
	drafts         []entity.NotificationDraft
}

// cascade moves the expense with trigger
func (c *stepContext) cascade(ctx context.Context, trigger workflow.Trigger) error {
	m := workflow.NewExpenseMachine(c.expense.Status)
	if err := fire(ctx, m, trigger, "expense "+c.expense.ID); err != nil {
		return err
	}
	c.expense.Status = m.State()
	c.expenseChanged = true
	return nil
}

// act loads the chain, locates the actor's step under the ordering policy,
// applies fn and persists workflow, expense and notifications atomically
func (s *workflowServiceImpl) act(ctx context.Context, actor entity.Actor, expenseID, action string, fn func(ctx context.Context, c *stepContext) error) (*entity.Workflow, error) {
	var (
		c          *stepContext
		workflowTo workflow.State
		wfFrom     workflow.State
	)

	err := runLocked(ctx, s.locker, s.txManager, expenseID, func(ctx context.Context) error {
		e, err := s.expenseRepo.GetByID(ctx, expenseID)
		if err != nil {
			return err
		}
		wf, err := s.workflowRepo.GetByExpenseID(ctx, expenseID)
		if err != nil {
			return err
		}
		if !actor.InCompany(wf.CompanyID) {
			return apperror.Unauthorized("workflow %s belongs to another company", wf.ID)
		}
		if e.OwnedBy(actor.ID) {
			return apperror.Unauthorized("cannot decide on own expense %s", e.ID)
		}
		if wf.Status.IsTerminal() {
			return apperror.InvalidState("workflow %s is %s", wf.ID, wf.Status)
		}

		idx := wf.FindActionableStep(actor.ID, s.ordering)
		if idx < 0 {
			return apperror.InvalidState("no pending approval found for %s on workflow %s", actor.ID, wf.ID)
		}

		c = &stepContext{
			expense:     e,
			wf:          wf,
			machine:     workflow.NewWorkflowMachine(wf.Status),
			index:       idx,
			now:         time.Now().UTC(),
			expenseFrom: e.Status,
		}
		wfFrom = wf.Status
		if err := fn(ctx, c); err != nil {
			return err
		}

		wf.Status = c.machine.State()
		wf.UpdatedAt = c.now
		if err := s.workflowRepo.Update(ctx, wf); err != nil {
			return err
		}
		if c.expenseChanged {
			e.UpdatedAt = c.now
			if err := s.expenseRepo.Update(ctx, e); err != nil {
				return err
			}
		}
		for _, d := range c.drafts {
			if err := notify(ctx, s.notifier, s.logger, d); err != nil {
				return err
			}
		}
		workflowTo = wf.Status
		return nil
	})
	if err != nil {
		s.logger.Error("Workflow step failed", "error", err, "expense_id", expenseID, "action", action, "actor", actor.ID)
		return nil, err
	}

	s.events.DispatchAsync(ctx, event.NewEvent(event.TypeWorkflowStatusChanged, c.wf.ID, c.wf.CompanyID, map[string]interface{}{
		"expense_id": expenseID,
		"action":     action,
		"from":       string(wfFrom),
		"to":         string(workflowTo),
		"actor":      actor.ID,
	}))
	if c.expense.Status != c.expenseFrom {
		s.events.DispatchAsync(ctx, statusChangedEvent(c.expense, c.expenseFrom, actor.ID))
	}

	s.logger.Info("Workflow step applied", "workflow_id", c.wf.ID, "action", action, "status", string(workflowTo), "actor", actor.ID)
	return c.wf, nil
}

func approvalRequired(e *entity.Expense, approverID string) entity.NotificationDraft {
	return entity.NotificationDraft{
		UserID:    approverID,
		CompanyID: e.CompanyID,
		Type:      entity.NotificationApprovalRequired,
		Title:     "Approval required",
		Message:   fmt.Sprintf("A %s %s %s expense is waiting for your approval.", e.Amount.StringFixed(2), e.Currency, e.Category),
		Data:      expenseData(e),
	}
}
