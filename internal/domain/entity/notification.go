package entity

import (
	"encoding/json"
	"time"
)

// NotificationType is the closed set of notification kinds
type NotificationType string

const (
	NotificationApprovalRequired         NotificationType = "approval_required"
	NotificationExpenseApproved          NotificationType = "expense_approved"
	NotificationExpensePartiallyApproved NotificationType = "expense_partially_approved"
	NotificationExpenseRejected          NotificationType = "expense_rejected"
	NotificationExpenseEscalated         NotificationType = "expense_escalated"
	NotificationWorkflowCompleted        NotificationType = "workflow_completed"
)

// IsValid reports whether t is a known notification type
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationApprovalRequired,
		NotificationExpenseApproved,
		NotificationExpensePartiallyApproved,
		NotificationExpenseRejected,
		NotificationExpenseEscalated,
		NotificationWorkflowCompleted:
		return true
	}
	return false
}

// Notification is a fire-and-forget record describing a transition
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	CompanyID string           `json:"company_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      json.RawMessage  `json:"data,omitempty"`
	IsRead    bool             `json:"is_read"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationDraft is what an approval path asks to be delivered
type NotificationDraft struct {
	UserID    string                 `json:"user_id"`
	CompanyID string                 `json:"company_id"`
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
