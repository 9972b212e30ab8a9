package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// History actions recorded on an expense
const (
	HistoryActionPartialApproval = "partial_approval"
	HistoryActionEscalation      = "escalation"
)

// Expense is a single claim submitted by an employee
type Expense struct {
	ID                 string           `json:"id"`
	Amount             decimal.Decimal  `json:"amount"`
	Currency           string           `json:"currency"`
	Category           string           `json:"category"`
	Description        string           `json:"description"`
	Date               *time.Time       `json:"date,omitempty"`
	ReceiptURL         string           `json:"receipt_url,omitempty"`
	Status             workflow.State   `json:"status"`
	SubmittedBy        string           `json:"submitted_by"`
	CompanyID          string           `json:"company_id"`
	ApprovedBy         string           `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time       `json:"approved_at,omitempty"`
	ApprovalPercentage *decimal.Decimal `json:"approval_percentage,omitempty"`
	ApprovedAmount     *decimal.Decimal `json:"approved_amount,omitempty"`
	RejectedAmount     *decimal.Decimal `json:"rejected_amount,omitempty"`
	RejectionReason    string           `json:"rejection_reason,omitempty"`
	ApprovalComments   string           `json:"approval_comments,omitempty"`
	EscalationHistory  []HistoryEntry   `json:"escalation_history"`
	WorkflowID         string           `json:"workflow_id,omitempty"`
	AdvisoryNote       string           `json:"advisory_note,omitempty"`
	Version            int64            `json:"version"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// HistoryEntry is one append-only record in Expense.EscalationHistory
type HistoryEntry struct {
	Action         string           `json:"action"`
	ApprovedBy     string           `json:"approved_by,omitempty"`
	ApprovedAt     time.Time        `json:"approved_at"`
	ApprovedAmount *decimal.Decimal `json:"approved_amount,omitempty"`
	RejectedAmount *decimal.Decimal `json:"rejected_amount,omitempty"`
	Percentage     *decimal.Decimal `json:"percentage,omitempty"`
	EscalatedTo    string           `json:"escalated_to,omitempty"`
	Comment        string           `json:"comment,omitempty"`
}

// OwnedBy reports whether userID submitted the expense
func (e *Expense) OwnedBy(userID string) bool {
	return e.SubmittedBy == userID
}

// HasWorkflow reports whether a multi-step workflow is attached
func (e *Expense) HasWorkflow() bool {
	return e.WorkflowID != ""
}

// ExpenseFilter narrows an expense listing
type ExpenseFilter struct {
	CompanyID   string
	SubmittedBy string
	Status      workflow.State
	Limit       int
	Offset      int
}
