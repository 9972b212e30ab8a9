package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/apperror"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

func TestWorkflowCreate(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "100")
	ctx := context.Background()

	wf, err := h.workflows.Create(ctx, admin, e.ID, []string{"A", "B", "A"}, json.RawMessage(`{"threshold":500}`))
	require.NoError(t, err)

	assert.Equal(t, workflow.StatePending, wf.Status)
	require.Len(t, wf.Steps, 3)
	for i, id := range []string{"A", "B", "A"} {
		assert.Equal(t, id, wf.Steps[i].ApproverID)
		assert.Equal(t, workflow.StatePending, wf.Steps[i].Status)
	}
	assert.JSONEq(t, `{"threshold":500}`, string(wf.Rules))
	assert.Equal(t, wf.ID, h.reload(t, e.ID).WorkflowID)

	drafts := h.outboxDrafts(t)
	require.Len(t, drafts, 1)
	assert.Equal(t, "A", drafts[0].UserID)
	assert.Equal(t, entity.NotificationApprovalRequired, drafts[0].Type)

	_, err = h.workflows.Create(ctx, admin, e.ID, []string{"C"}, nil)
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
}

func TestWorkflowCreate_Preconditions(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "100")
	ctx := context.Background()

	_, err := h.workflows.Create(ctx, manager, e.ID, []string{"A"}, nil)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = h.workflows.Create(ctx, admin, e.ID, nil, nil)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = h.workflows.Create(ctx, admin, e.ID, []string{"A", " "}, nil)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = h.workflows.Create(ctx, admin, e.ID, []string{"A"}, json.RawMessage(`{`))
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = h.workflows.Create(ctx, admin, "missing", []string{"A"}, nil)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	otherAdmin := entity.Actor{ID: "adm-9", Role: entity.RoleAdmin, CompanyID: "globex"}
	_, err = h.workflows.Create(ctx, otherAdmin, e.ID, []string{"A"}, nil)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = h.approvals.Reject(ctx, manager, e.ID, "no")
	require.NoError(t, err)
	_, err = h.workflows.Create(ctx, admin, e.ID, []string{"A"}, nil)
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
}

func TestWorkflow_SequentialApprovalCompletes(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "100")
	ctx := context.Background()

	_, err := h.workflows.Create(ctx, admin, e.ID, []string{"A", "B"}, nil)
	require.NoError(t, err)

	wf, err := h.workflows.ApproveStep(ctx, approver("A"), e.ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePending, wf.Status)
	assert.Equal(t, 1, wf.CurrentStep)
	assert.Equal(t, workflow.StatePending, h.reload(t, e.ID).Status)

	wf, err = h.workflows.ApproveStep(ctx, approver("B"), e.ID, "ok too")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCompleted, wf.Status)
	assert.Equal(t, 2, wf.CurrentStep)

	stored := h.reload(t, e.ID)
	assert.Equal(t, workflow.StateApproved, stored.Status)
	assert.Equal(t, "B", stored.ApprovedBy)
	assert.Equal(t, "ok too", stored.ApprovalComments)
	assert.True(t, stored.Amount.Equal(*stored.ApprovedAmount))
	assert.True(t, stored.RejectedAmount.IsZero())

	drafts := h.outboxDrafts(t)
	require.Len(t, drafts, 3)
	assert.Equal(t, "B", drafts[1].UserID)
	assert.Equal(t, entity.NotificationApprovalRequired, drafts[1].Type)
	assert.Equal(t, owner.ID, drafts[2].UserID)
	assert.Equal(t, entity.NotificationWorkflowCompleted, drafts[2].Type)

	_, err = h.workflows.ApproveStep(ctx, approver("B"), e.ID, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
}

func TestWorkflow_RejectAnyStepRejectsChain(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "100")
	ctx := context.Background()

	_, err := h.workflows.Create(ctx, admin, e.ID, []string{"A", "B"}, nil)
	require.NoError(t, err)

	wf, err := h.workflows.RejectStep(ctx, approver("B"), e.ID, "duplicate claim")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateRejected, wf.Status)
	assert.Equal(t, workflow.StatePending, wf.Steps[0].Status)
	assert.Equal(t, workflow.StateRejected, wf.Steps[1].Status)

	stored := h.reload(t, e.ID)
	assert.Equal(t, workflow.StateRejected, stored.Status)
	assert.Equal(t, "duplicate claim", stored.RejectionReason)

	_, err = h.workflows.ApproveStep(ctx, approver("A"), e.ID, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
}

func TestWorkflow_LooseOrderingAllowsOutOfOrder(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "100")
	ctx := context.Background()

	_, err := h.workflows.Create(ctx, admin, e.ID, []string{"A", "B"}, nil)
	require.NoError(t, err)

	wf, err := h.workflows.ApproveStep(ctx, approver("B"), e.ID, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePending, wf.Status)

	drafts := h.outboxDrafts(t)
	assert.Equal(t, "A", drafts[len(drafts)-1].UserID)

	wf, err = h.workflows.ApproveStep(ctx, approver("A"), e.ID, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCompleted, wf.Status)
	assert.Equal(t, workflow.StateApproved, h.reload(t, e.ID).Status)
}

func TestWorkflow_StrictOrderingRefusesOutOfOrder(t *testing.T) {
	h := newHarness(t, entity.OrderingStrict)
	e := h.submit(t, "100")
	ctx := context.Background()

	_, err := h.workflows.Create(ctx, admin, e.ID, []string{"A", "B"}, nil)
	require.NoError(t, err)

	_, err = h.workflows.ApproveStep(ctx, approver("B"), e.ID, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
	_, err = h.workflows.RejectStep(ctx, approver("B"), e.ID, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidState)

	_, err = h.workflows.ApproveStep(ctx, approver("A"), e.ID, "")
	require.NoError(t, err)
	wf, err := h.workflows.ApproveStep(ctx, approver("B"), e.ID, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCompleted, wf.Status)
}

func TestWorkflow_EscalateOpensReplacementStep(t *testing.T) {
	h := newHarness(t, entity.OrderingStrict)
	e := h.submit(t, "100")
	ctx := context.Background()

	_, err := h.workflows.Create(ctx, admin, e.ID, []string{"A", "B"}, nil)
	require.NoError(t, err)

	wf, err := h.workflows.EscalateStep(ctx, approver("A"), e.ID, "C", "on leave")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateEscalated, wf.Status)
	require.Len(t, wf.Steps, 3)

	assert.Equal(t, workflow.StateEscalated, wf.Steps[0].Status)
	assert.False(t, wf.Steps[0].Status.IsTerminal())
	assert.Equal(t, "C", wf.Steps[0].EscalatedTo)
	assert.Equal(t, "C", wf.Steps[1].ApproverID)
	assert.Equal(t, workflow.StatePending, wf.Steps[1].Status)
	assert.Equal(t, "A", wf.Steps[1].EscalatedFrom)
	assert.Equal(t, "B", wf.Steps[2].ApproverID)

	stored := h.reload(t, e.ID)
	assert.Equal(t, workflow.StatePending, stored.Status)
	require.Len(t, stored.EscalationHistory, 1)
	assert.Equal(t, "C", stored.EscalationHistory[0].EscalatedTo)

	drafts := h.outboxDrafts(t)
	assert.Equal(t, "C", drafts[len(drafts)-1].UserID)
	assert.Equal(t, entity.NotificationExpenseEscalated, drafts[len(drafts)-1].Type)

	_, err = h.workflows.ApproveStep(ctx, approver("A"), e.ID, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidState)

	wf, err = h.workflows.ApproveStep(ctx, approver("C"), e.ID, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePending, wf.Status)

	wf, err = h.workflows.ApproveStep(ctx, approver("B"), e.ID, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCompleted, wf.Status)
	assert.Equal(t, workflow.StateApproved, h.reload(t, e.ID).Status)
}

func TestWorkflow_EscalationTargetRejects(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "100")
	ctx := context.Background()

	_, err := h.workflows.Create(ctx, admin, e.ID, []string{"A"}, nil)
	require.NoError(t, err)
	_, err = h.workflows.EscalateStep(ctx, approver("A"), e.ID, "C", "")
	require.NoError(t, err)

	wf, err := h.workflows.RejectStep(ctx, approver("C"), e.ID, "not allowed")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateRejected, wf.Status)
	assert.Equal(t, workflow.StateRejected, h.reload(t, e.ID).Status)
}

func TestWorkflow_EscalatedStaysUntilReplacementResolved(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "100")
	ctx := context.Background()

	_, err := h.workflows.Create(ctx, admin, e.ID, []string{"A", "B"}, nil)
	require.NoError(t, err)
	_, err = h.workflows.EscalateStep(ctx, approver("A"), e.ID, "C", "")
	require.NoError(t, err)

	wf, err := h.workflows.ApproveStep(ctx, approver("B"), e.ID, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateEscalated, wf.Status)

	wf, err = h.workflows.ApproveStep(ctx, approver("C"), e.ID, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCompleted, wf.Status)
}

func TestWorkflow_EscalateValidation(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "100")
	ctx := context.Background()

	_, err := h.workflows.Create(ctx, admin, e.ID, []string{"A"}, nil)
	require.NoError(t, err)

	_, err = h.workflows.EscalateStep(ctx, approver("A"), e.ID, "", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = h.workflows.EscalateStep(ctx, approver("A"), e.ID, "A", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = h.workflows.EscalateStep(ctx, approver("Z"), e.ID, "C", "")
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
}

func TestWorkflow_StepActionChecksCompany(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "100")
	ctx := context.Background()

	_, err := h.workflows.Create(ctx, admin, e.ID, []string{"A"}, nil)
	require.NoError(t, err)

	_, err = h.workflows.ApproveStep(ctx, entity.Actor{ID: "A", Role: entity.RoleManager, CompanyID: "globex"}, e.ID, "")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestWorkflowGet_Visibility(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "100")
	ctx := context.Background()

	_, err := h.workflows.Get(ctx, owner, e.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = h.workflows.Create(ctx, admin, e.ID, []string{"emp-7"}, nil)
	require.NoError(t, err)

	for _, a := range []entity.Actor{owner, manager, {ID: "emp-7", Role: entity.RoleEmployee, CompanyID: "acme"}} {
		_, err := h.workflows.Get(ctx, a, e.ID)
		assert.NoError(t, err, a.ID)
	}

	_, err = h.workflows.Get(ctx, entity.Actor{ID: "emp-8", Role: entity.RoleEmployee, CompanyID: "acme"}, e.ID)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	_, err = h.workflows.Get(ctx, outsider, e.ID)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestWorkflow_SubmitterCannotDecideOwnExpense(t *testing.T) {
	h := newHarness(t, entity.OrderingLoose)
	e := h.submit(t, "100")
	ctx := context.Background()

	_, err := h.workflows.Create(ctx, admin, e.ID, []string{"A", owner.ID}, nil)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Empty(t, h.reload(t, e.ID).WorkflowID)

	_, err = h.workflows.Create(ctx, admin, e.ID, []string{"A"}, nil)
	require.NoError(t, err)

	_, err = h.workflows.EscalateStep(ctx, approver("A"), e.ID, owner.ID, "")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	// a chain stored with the submitter as approver still refuses the submitter
	wf, err := h.workflowRepo.GetByExpenseID(ctx, e.ID)
	require.NoError(t, err)
	wf.InsertStep(0, entity.Step{ApproverID: owner.ID, Status: workflow.StatePending})
	require.NoError(t, h.workflowRepo.Update(ctx, wf))

	_, err = h.workflows.ApproveStep(ctx, owner, e.ID, "")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	_, err = h.workflows.RejectStep(ctx, owner, e.ID, "")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	wf, err = h.workflows.ApproveStep(ctx, approver("A"), e.ID, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePending, wf.Status)
}
