package event

// Type identifies the type of domain event
type Type string

const (
	TypeExpenseSubmitted      Type = "expense.submitted"
	TypeExpenseStatusChanged  Type = "expense.status_changed"
	TypeWorkflowCreated       Type = "workflow.created"
	TypeWorkflowStatusChanged Type = "workflow.status_changed"
	// TypeNotificationCreated is raised by the outbox relay once a notification is persisted
	TypeNotificationCreated Type = "notification.created"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeExpenseSubmitted,
		TypeExpenseStatusChanged,
		TypeWorkflowCreated,
		TypeWorkflowStatusChanged,
		TypeNotificationCreated:
		return true
	default:
		return false
	}
}
