package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreateWorkflow handles POST /api/v1/expenses/:id/workflow
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	wf, err := h.services.Workflows.Create(c.Request.Context(), actorFrom(c), c.Param("id"), req.Approvers, req.Rules)
	if err != nil {
		h.fail(c, "create workflow", err)
		return
	}
	ok(c, http.StatusCreated, wf)
}

// GetWorkflow handles GET /api/v1/expenses/:id/workflow
func (h *Handlers) GetWorkflow(c *gin.Context) {
	wf, err := h.services.Workflows.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, "get workflow", err)
		return
	}
	ok(c, http.StatusOK, wf)
}

// ApproveStep handles POST /api/v1/expenses/:id/workflow/approve
func (h *Handlers) ApproveStep(c *gin.Context) {
	var req CommentRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	wf, err := h.services.Workflows.ApproveStep(c.Request.Context(), actorFrom(c), c.Param("id"), req.Comment)
	if err != nil {
		h.fail(c, "approve step", err)
		return
	}
	ok(c, http.StatusOK, wf)
}

// RejectStep handles POST /api/v1/expenses/:id/workflow/reject
func (h *Handlers) RejectStep(c *gin.Context) {
	var req CommentRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	wf, err := h.services.Workflows.RejectStep(c.Request.Context(), actorFrom(c), c.Param("id"), req.Comment)
	if err != nil {
		h.fail(c, "reject step", err)
		return
	}
	ok(c, http.StatusOK, wf)
}

// EscalateStep handles POST /api/v1/expenses/:id/workflow/escalate
func (h *Handlers) EscalateStep(c *gin.Context) {
	var req EscalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "escalateTo is required")
		return
	}

	wf, err := h.services.Workflows.EscalateStep(c.Request.Context(), actorFrom(c), c.Param("id"), req.EscalateTo, req.Comment)
	if err != nil {
		h.fail(c, "escalate step", err)
		return
	}
	ok(c, http.StatusOK, wf)
}
