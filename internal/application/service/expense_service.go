package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperror"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// SubmitExpenseInput is the caller-supplied part of a new expense
type SubmitExpenseInput struct {
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Description string
	Date        *time.Time
	ReceiptURL  string
}

// ListExpensesInput narrows a listing
type ListExpensesInput struct {
	Status workflow.State
	Limit  int
	Offset int
}

// ExpenseOptions tunes submission
type ExpenseOptions struct {
	// MaxAmount caps a single expense; zero disables the cap
	MaxAmount       decimal.Decimal
	AdvisoryTimeout time.Duration
}

// ExpenseService manages the expense lifecycle outside approval decisions
type ExpenseService interface {
	Submit(ctx context.Context, actor entity.Actor, in SubmitExpenseInput) (*entity.Expense, error)
	Get(ctx context.Context, actor entity.Actor, id string) (*entity.Expense, error)
	List(ctx context.Context, actor entity.Actor, in ListExpensesInput) ([]*entity.Expense, error)
	Delete(ctx context.Context, actor entity.Actor, id string) error
}

type expenseServiceImpl struct {
	expenseRepo port.ExpenseRepository
	advisor     port.ExpenseAdvisor
	locker      port.EntityLocker
	txManager   port.TransactionManager
	events      dispatcher.Dispatcher
	opts        ExpenseOptions
	logger      Logger
}

// NewExpenseService creates a new ExpenseService. advisor may be nil.
func NewExpenseService(
	expenseRepo port.ExpenseRepository,
	advisor port.ExpenseAdvisor,
	locker port.EntityLocker,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	opts ExpenseOptions,
	logger Logger,
) ExpenseService {
	if opts.AdvisoryTimeout <= 0 {
		opts.AdvisoryTimeout = 10 * time.Second
	}
	return &expenseServiceImpl{
		expenseRepo: expenseRepo,
		advisor:     advisor,
		locker:      locker,
		txManager:   txManager,
		events:      events,
		opts:        opts,
		logger:      logger,
	}
}

// Submit validates and stores a new pending expense owned by actor
func (s *expenseServiceImpl) Submit(ctx context.Context, actor entity.Actor, in SubmitExpenseInput) (_ *entity.Expense, err error) {
	ctx, span := startSpan(ctx, "ExpenseService.Submit", actor, "")
	defer func() { endSpan(span, err) }()

	if actor.ID == "" || actor.CompanyID == "" {
		return nil, apperror.Unauthorized("actor identity and company are required")
	}
	if err := utils.ValidateAmount(in.Amount, s.opts.MaxAmount); err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, err, "invalid amount")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := utils.ValidateCurrency(currency); err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, err, "invalid currency")
	}
	category := utils.SanitizeString(in.Category)
	if category == "" {
		return nil, apperror.Validation("category is required")
	}
	description := utils.SanitizeString(in.Description)
	if description == "" {
		return nil, apperror.Validation("description is required")
	}

	now := time.Now().UTC()
	e := &entity.Expense{
		ID:                uuid.NewString(),
		Amount:            in.Amount,
		Currency:          currency,
		Category:          category,
		Description:       description,
		Date:              in.Date,
		ReceiptURL:        strings.TrimSpace(in.ReceiptURL),
		Status:            workflow.StatePending,
		SubmittedBy:       actor.ID,
		CompanyID:         actor.CompanyID,
		EscalationHistory: []entity.HistoryEntry{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	e.AdvisoryNote = s.advise(ctx, e)

	if err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.expenseRepo.Create(txCtx, e)
	}); err != nil {
		s.logger.Error("Failed to submit expense", "error", err, "submitted_by", actor.ID)
		return nil, err
	}

	s.events.DispatchAsync(ctx, event.NewEvent(event.TypeExpenseSubmitted, e.ID, e.CompanyID, map[string]interface{}{
		"submitted_by": e.SubmittedBy,
		"amount":       e.Amount.String(),
		"currency":     e.Currency,
	}))

	s.logger.Info("Expense submitted", "expense_id", e.ID, "submitted_by", actor.ID, "amount", e.Amount.String())
	return e, nil
}

// advise returns the advisor's note, or "" when it is absent or fails
func (s *expenseServiceImpl) advise(ctx context.Context, e *entity.Expense) string {
	if s.advisor == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.AdvisoryTimeout)
	defer cancel()

	note, err := s.advisor.Advise(ctx, e)
	if err != nil {
		s.logger.Error("Advisory review failed", "error", err, "expense_id", e.ID)
		return ""
	}
	return note
}

// Get returns an expense visible to actor
func (s *expenseServiceImpl) Get(ctx context.Context, actor entity.Actor, id string) (_ *entity.Expense, err error) {
	ctx, span := startSpan(ctx, "ExpenseService.Get", actor, id)
	defer func() { endSpan(span, err) }()

	e, err := s.expenseRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, e) {
		return nil, apperror.Unauthorized("expense %s is not visible to %s", id, actor.ID)
	}
	return e, nil
}

// List returns the actor's own expenses, or the company's for privileged roles
func (s *expenseServiceImpl) List(ctx context.Context, actor entity.Actor, in ListExpensesInput) (_ []*entity.Expense, err error) {
	ctx, span := startSpan(ctx, "ExpenseService.List", actor, "")
	defer func() { endSpan(span, err) }()

	if actor.ID == "" || actor.CompanyID == "" {
		return nil, apperror.Unauthorized("actor identity and company are required")
	}
	if in.Status != "" && !in.Status.IsValid() {
		return nil, apperror.Validation("unknown status %q", in.Status)
	}
	if in.Limit < 0 || in.Offset < 0 {
		return nil, apperror.Validation("limit and offset must not be negative")
	}

	filter := entity.ExpenseFilter{
		CompanyID: actor.CompanyID,
		Status:    in.Status,
		Limit:     in.Limit,
		Offset:    in.Offset,
	}
	if !actor.IsPrivileged() {
		filter.SubmittedBy = actor.ID
	}
	return s.expenseRepo.List(ctx, filter)
}

// Delete removes a pending expense without a workflow on behalf of its owner
func (s *expenseServiceImpl) Delete(ctx context.Context, actor entity.Actor, id string) (err error) {
	ctx, span := startSpan(ctx, "ExpenseService.Delete", actor, id)
	defer func() { endSpan(span, err) }()

	err = runLocked(ctx, s.locker, s.txManager, id, func(ctx context.Context) error {
		e, err := s.expenseRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !e.OwnedBy(actor.ID) {
			return apperror.Unauthorized("only the submitter may delete expense %s", id)
		}
		if e.Status != workflow.StatePending {
			return apperror.InvalidState("expense %s is %s", id, e.Status)
		}
		if e.HasWorkflow() {
			return apperror.InvalidState("expense %s has workflow %s", id, e.WorkflowID)
		}
		return s.expenseRepo.Delete(ctx, id, e.Version)
	})
	if err != nil {
		s.logger.Error("Failed to delete expense", "error", err, "expense_id", id)
		return err
	}

	s.logger.Info("Expense deleted", "expense_id", id, "deleted_by", actor.ID)
	return nil
}
