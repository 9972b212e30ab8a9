package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperror"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqldb"
)

const expenseColumns = `
	id, company_id, submitted_by, amount, currency, category, description,
	expense_date, receipt_url, status, approved_by, approved_at,
	approval_percentage, approved_amount, rejected_amount, rejection_reason,
	approval_comments, escalation_history, workflow_id, advisory_note,
	version, created_at, updated_at`

// ExpenseRepository implements port.ExpenseRepository
type ExpenseRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sqldb.DB, logger *zap.Logger) *ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new expense at version 1
func (r *ExpenseRepository) Create(ctx context.Context, e *entity.Expense) error {
	history, err := marshalHistory(e.EscalationHistory)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e.Version = 1

	query := r.db.Rebind(`INSERT INTO expenses (` + expenseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		e.ID,
		e.CompanyID,
		e.SubmittedBy,
		e.Amount.String(),
		e.Currency,
		e.Category,
		e.Description,
		nullTime(e.Date),
		e.ReceiptURL,
		string(e.Status),
		e.ApprovedBy,
		nullTime(e.ApprovedAt),
		nullDecimal(e.ApprovalPercentage),
		nullDecimal(e.ApprovedAmount),
		nullDecimal(e.RejectedAmount),
		e.RejectionReason,
		e.ApprovalComments,
		history,
		e.WorkflowID,
		e.AdvisoryNote,
		e.Version,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create expense",
			zap.String("expense_id", e.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}

	return nil
}

// GetByID retrieves an expense or returns a NOT_FOUND error
func (r *ExpenseRepository) GetByID(ctx context.Context, id string) (*entity.Expense, error) {
	query := r.db.Rebind(`SELECT ` + expenseColumns + ` FROM expenses WHERE id = ?`)

	e, err := scanExpense(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("expense %s not found", id)
	}
	if err != nil {
		r.logger.Error("Failed to get expense",
			zap.String("expense_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	return e, nil
}

// List returns expenses matching filter, newest first
func (r *ExpenseRepository) List(ctx context.Context, filter entity.ExpenseFilter) ([]*entity.Expense, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.CompanyID != "" {
		where = append(where, "company_id = ?")
		args = append(args, filter.CompanyID)
	}
	if filter.SubmittedBy != "" {
		where = append(where, "submitted_by = ?")
		args = append(args, filter.SubmittedBy)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*entity.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}

	return expenses, rows.Err()
}

// Update writes the mutable fields if the stored version still equals e.Version
func (r *ExpenseRepository) Update(ctx context.Context, e *entity.Expense) error {
	history, err := marshalHistory(e.EscalationHistory)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := r.db.Rebind(`
		UPDATE expenses SET
			status = ?, approved_by = ?, approved_at = ?, approval_percentage = ?,
			approved_amount = ?, rejected_amount = ?, rejection_reason = ?,
			approval_comments = ?, escalation_history = ?, workflow_id = ?,
			advisory_note = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`)

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		string(e.Status),
		e.ApprovedBy,
		nullTime(e.ApprovedAt),
		nullDecimal(e.ApprovalPercentage),
		nullDecimal(e.ApprovedAmount),
		nullDecimal(e.RejectedAmount),
		e.RejectionReason,
		e.ApprovalComments,
		history,
		e.WorkflowID,
		e.AdvisoryNote,
		now,
		e.ID,
		e.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update expense",
			zap.String("expense_id", e.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update expense: %w", err)
	}

	if err := checkApplied(ctx, r.db, result, "expenses", "expense", e.ID); err != nil {
		return err
	}

	e.Version++
	e.UpdatedAt = now
	return nil
}

// Delete removes a pending expense at the given version
func (r *ExpenseRepository) Delete(ctx context.Context, id string, version int64) error {
	query := r.db.Rebind(`DELETE FROM expenses WHERE id = ? AND version = ? AND status = ?`)

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, id, version, string(workflow.StatePending))
	if err != nil {
		r.logger.Error("Failed to delete expense",
			zap.String("expense_id", id),
			zap.Error(err))
		return fmt.Errorf("failed to delete expense: %w", err)
	}

	return checkApplied(ctx, r.db, result, "expenses", "expense", id)
}

func scanExpense(row rowScanner) (*entity.Expense, error) {
	var (
		e          entity.Expense
		status     string
		date       sql.NullTime
		approvedAt sql.NullTime
		percentage decimal.NullDecimal
		approved   decimal.NullDecimal
		rejected   decimal.NullDecimal
		history    string
	)

	err := row.Scan(
		&e.ID,
		&e.CompanyID,
		&e.SubmittedBy,
		&e.Amount,
		&e.Currency,
		&e.Category,
		&e.Description,
		&date,
		&e.ReceiptURL,
		&status,
		&e.ApprovedBy,
		&approvedAt,
		&percentage,
		&approved,
		&rejected,
		&e.RejectionReason,
		&e.ApprovalComments,
		&history,
		&e.WorkflowID,
		&e.AdvisoryNote,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = workflow.State(status)
	e.Date = timePtr(date)
	e.ApprovedAt = timePtr(approvedAt)
	e.ApprovalPercentage = decimalPtr(percentage)
	e.ApprovedAmount = decimalPtr(approved)
	e.RejectedAmount = decimalPtr(rejected)

	if err := json.Unmarshal([]byte(history), &e.EscalationHistory); err != nil {
		return nil, fmt.Errorf("failed to decode escalation history: %w", err)
	}

	return &e, nil
}

func marshalHistory(h []entity.HistoryEntry) (string, error) {
	if h == nil {
		h = []entity.HistoryEntry{}
	}
	b, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("failed to encode escalation history: %w", err)
	}
	return string(b), nil
}

var _ port.ExpenseRepository = (*ExpenseRepository)(nil)
