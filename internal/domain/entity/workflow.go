package entity

import (
	"encoding/json"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Ordering policies for locating the step an approver acts on
const (
	OrderingLoose  = "loose"
	OrderingStrict = "strict"
)

// Workflow is an ordered approval chain attached to one expense
type Workflow struct {
	ID          string          `json:"id"`
	ExpenseID   string          `json:"expense_id"`
	CompanyID   string          `json:"company_id"`
	SubmittedBy string          `json:"submitted_by"`
	Steps       []Step          `json:"steps"`
	CurrentStep int             `json:"current_step"`
	Status      workflow.State  `json:"status"`
	Rules       json.RawMessage `json:"rules,omitempty"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Step is one approver's decision inside a workflow
type Step struct {
	ApproverID    string         `json:"approver_id"`
	Status        workflow.State `json:"status"`
	Comments      string         `json:"comments,omitempty"`
	ActionAt      *time.Time     `json:"action_at,omitempty"`
	EscalatedTo   string         `json:"escalated_to,omitempty"`
	EscalatedFrom string         `json:"escalated_from,omitempty"`
}

// NewSteps builds pending steps in approver order
func NewSteps(approvers []string) []Step {
	steps := make([]Step, len(approvers))
	for i, id := range approvers {
		steps[i] = Step{ApproverID: id, Status: workflow.StatePending}
	}
	return steps
}

// FindActionableStep returns the index of the step approverID may act on, or -1.
// Loose ordering picks the first pending step owned by the approver. Strict
// ordering only considers the first pending step of the whole chain.
func (w *Workflow) FindActionableStep(approverID, ordering string) int {
	for i, s := range w.Steps {
		if s.Status != workflow.StatePending {
			continue
		}
		if s.ApproverID == approverID {
			return i
		}
		if ordering == OrderingStrict {
			return -1
		}
	}
	return -1
}

// NextPendingIndex returns the first pending step at or after from, or -1
func (w *Workflow) NextPendingIndex(from int) int {
	for i := from; i < len(w.Steps); i++ {
		if w.Steps[i].Status == workflow.StatePending {
			return i
		}
	}
	return -1
}

// FirstPendingIndex returns the earliest pending step, or -1
func (w *Workflow) FirstPendingIndex() int {
	return w.NextPendingIndex(0)
}

// IsFullyApproved is true when every step not superseded by escalation is approved
func (w *Workflow) IsFullyApproved() bool {
	resolved := 0
	for _, s := range w.Steps {
		switch s.Status {
		case workflow.StateEscalated:
			continue
		case workflow.StateApproved:
			resolved++
		default:
			return false
		}
	}
	return resolved > 0
}

// HasApprover reports whether userID owns any step
func (w *Workflow) HasApprover(userID string) bool {
	for _, s := range w.Steps {
		if s.ApproverID == userID {
			return true
		}
	}
	return false
}

// InsertStep places step at index i, shifting later steps right
func (w *Workflow) InsertStep(i int, step Step) {
	w.Steps = append(w.Steps, Step{})
	copy(w.Steps[i+1:], w.Steps[i:])
	w.Steps[i] = step
}

// HasPendingReplacement reports whether a step opened by escalation is still pending
func (w *Workflow) HasPendingReplacement() bool {
	for _, s := range w.Steps {
		if s.Status == workflow.StatePending && s.EscalatedFrom != "" {
			return true
		}
	}
	return false
}
