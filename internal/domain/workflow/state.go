package workflow

// State is a status value shared by expenses, workflows and steps
type State string

const (
	StatePending   State = "pending"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StateEscalated State = "escalated"
	StateCompleted State = "completed"
)

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	switch s {
	case StateApproved, StateRejected, StateCompleted:
		return true
	}
	return false
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is known
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateApproved, StateRejected, StateEscalated, StateCompleted:
		return true
	}
	return false
}
