package workflow

import "sync"

var (
	expenseOnce     sync.Once
	expenseMachine  StateMachineBuilder
	workflowOnce    sync.Once
	workflowMachine StateMachineBuilder
)

// newExpenseBuilder configures the single-approver lifecycle of an expense.
// An escalated expense may be resolved or re-escalated by its escalation target.
func newExpenseBuilder() StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerEscalate, StateEscalated)

	b.Configure(StateEscalated).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerEscalate, StateEscalated)

	return b
}

// newWorkflowBuilder configures the status of a multi-step approval chain
func newWorkflowBuilder() StateMachineBuilder {
	b := NewBuilder()

	for _, s := range []State{StatePending, StateEscalated} {
		b.Configure(s).
			Permit(TriggerAdvance, StatePending).
			Permit(TriggerComplete, StateCompleted).
			Permit(TriggerReject, StateRejected).
			Permit(TriggerEscalate, StateEscalated)
	}

	return b
}

// NewExpenseMachine returns a machine for an expense currently in state
func NewExpenseMachine(state State) StateMachine {
	expenseOnce.Do(func() { expenseMachine = newExpenseBuilder() })
	return expenseMachine.Build(state)
}

// NewWorkflowMachine returns a machine for a workflow currently in state
func NewWorkflowMachine(state State) StateMachine {
	workflowOnce.Do(func() { workflowMachine = newWorkflowBuilder() })
	return workflowMachine.Build(state)
}
