package workflow

// Trigger represents an action that can cause a state transition
type Trigger string

const (
	TriggerApprove  Trigger = "APPROVE"
	TriggerReject   Trigger = "REJECT"
	TriggerEscalate Trigger = "ESCALATE"
	// TriggerAdvance moves a workflow on after a non-final step is resolved
	TriggerAdvance  Trigger = "ADVANCE"
	TriggerComplete Trigger = "COMPLETE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
