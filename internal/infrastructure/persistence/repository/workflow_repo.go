package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperror"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqldb"
)

const workflowColumns = `
	id, expense_id, company_id, submitted_by, steps, current_step,
	status, rules, version, created_at, updated_at`

// WorkflowRepository implements port.WorkflowRepository.
// Steps are stored as one JSON document so a step action is a single row write.
type WorkflowRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sqldb.DB, logger *zap.Logger) *WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new workflow at version 1
func (r *WorkflowRepository) Create(ctx context.Context, wf *entity.Workflow) error {
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}

	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	wf.Version = 1

	query := r.db.Rebind(`INSERT INTO workflows (` + workflowColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		wf.ID,
		wf.ExpenseID,
		wf.CompanyID,
		wf.SubmittedBy,
		string(steps),
		wf.CurrentStep,
		string(wf.Status),
		nullRaw(wf.Rules),
		wf.Version,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow",
			zap.String("workflow_id", wf.ID),
			zap.String("expense_id", wf.ExpenseID),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	return nil
}

// GetByID retrieves a workflow or returns a NOT_FOUND error
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*entity.Workflow, error) {
	return r.getOne(ctx, "id", id)
}

// GetByExpenseID retrieves the workflow attached to an expense or returns NOT_FOUND
func (r *WorkflowRepository) GetByExpenseID(ctx context.Context, expenseID string) (*entity.Workflow, error) {
	return r.getOne(ctx, "expense_id", expenseID)
}

func (r *WorkflowRepository) getOne(ctx context.Context, column, value string) (*entity.Workflow, error) {
	query := r.db.Rebind(`SELECT ` + workflowColumns + ` FROM workflows WHERE ` + column + ` = ?`)

	wf, err := scanWorkflow(r.db.Executor(ctx).QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("workflow for %s %s not found", column, value)
	}
	if err != nil {
		r.logger.Error("Failed to get workflow",
			zap.String(column, value),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return wf, nil
}

// Update writes steps, pointer and status if the stored version still equals wf.Version
func (r *WorkflowRepository) Update(ctx context.Context, wf *entity.Workflow) error {
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}

	now := time.Now().UTC()
	query := r.db.Rebind(`
		UPDATE workflows SET
			steps = ?, current_step = ?, status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`)

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		string(steps),
		wf.CurrentStep,
		string(wf.Status),
		now,
		wf.ID,
		wf.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow",
			zap.String("workflow_id", wf.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	if err := checkApplied(ctx, r.db, result, "workflows", "workflow", wf.ID); err != nil {
		return err
	}

	wf.Version++
	wf.UpdatedAt = now
	return nil
}

func scanWorkflow(row rowScanner) (*entity.Workflow, error) {
	var (
		wf     entity.Workflow
		steps  string
		status string
		rules  sql.NullString
	)

	err := row.Scan(
		&wf.ID,
		&wf.ExpenseID,
		&wf.CompanyID,
		&wf.SubmittedBy,
		&steps,
		&wf.CurrentStep,
		&status,
		&rules,
		&wf.Version,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	wf.Status = workflow.State(status)
	if rules.Valid && rules.String != "" {
		wf.Rules = json.RawMessage(rules.String)
	}
	if err := json.Unmarshal([]byte(steps), &wf.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}

	return &wf, nil
}

func nullRaw(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
