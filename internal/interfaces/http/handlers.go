package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// SubmitExpenseRequest is the body of POST /expenses
type SubmitExpenseRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	// Date is YYYY-MM-DD or RFC 3339
	Date       string `json:"date"`
	ReceiptURL string `json:"receiptUrl"`
}

// ListExpensesRequest represents query parameters for listing expenses
type ListExpensesRequest struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// ApproveRequest is the body of the direct approve call.
// A missing approvalPercentage approves the full amount.
type ApproveRequest struct {
	Comment            string           `json:"comment"`
	ApprovalPercentage *decimal.Decimal `json:"approvalPercentage"`
}

// CommentRequest carries an optional comment
type CommentRequest struct {
	Comment string `json:"comment"`
}

// EscalateRequest is the body of both escalate calls
type EscalateRequest struct {
	EscalateTo string `json:"escalateTo" binding:"required"`
	Comment    string `json:"comment"`
}

// CreateWorkflowRequest is the body of POST /expenses/:id/workflow
type CreateWorkflowRequest struct {
	Approvers []string        `json:"approvers"`
	Rules     json.RawMessage `json:"rules"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if h.services.Health != nil {
		if err := h.services.Health(c.Request.Context()); err != nil {
			response.Status = "unhealthy"
			response.Error = err.Error()
			c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: response})
			return
		}
	}

	ok(c, http.StatusOK, response)
}

// SubmitExpense handles POST /api/v1/expenses
func (h *Handlers) SubmitExpense(c *gin.Context) {
	var req SubmitExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	in := service.SubmitExpenseInput{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
		ReceiptURL:  req.ReceiptURL,
	}
	if req.Date != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			badRequest(c, "date must be YYYY-MM-DD or RFC 3339")
			return
		}
		in.Date = &date
	}

	expense, err := h.services.Expenses.Submit(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		h.fail(c, "submit expense", err)
		return
	}
	ok(c, http.StatusCreated, expense)
}

// ListExpenses handles GET /api/v1/expenses
func (h *Handlers) ListExpenses(c *gin.Context) {
	var req ListExpensesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	status := workflow.State(req.Status)
	if status != "" && !status.IsValid() {
		badRequest(c, "unknown status")
		return
	}

	expenses, err := h.services.Expenses.List(c.Request.Context(), actorFrom(c), service.ListExpensesInput{
		Status: status,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		h.fail(c, "list expenses", err)
		return
	}
	ok(c, http.StatusOK, expenses)
}

// GetExpense handles GET /api/v1/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	expense, err := h.services.Expenses.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, "get expense", err)
		return
	}
	ok(c, http.StatusOK, expense)
}

// DeleteExpense handles DELETE /api/v1/expenses/:id
func (h *Handlers) DeleteExpense(c *gin.Context) {
	if err := h.services.Expenses.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.fail(c, "delete expense", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Approve handles POST /api/v1/expenses/:id/approve
func (h *Handlers) Approve(c *gin.Context) {
	var req ApproveRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	percentage := decimal.NewFromInt(100)
	if req.ApprovalPercentage != nil {
		percentage = *req.ApprovalPercentage
	}

	expense, err := h.services.Approvals.Approve(c.Request.Context(), actorFrom(c), c.Param("id"), req.Comment, percentage)
	if err != nil {
		h.fail(c, "approve expense", err)
		return
	}
	ok(c, http.StatusOK, expense)
}

// Reject handles POST /api/v1/expenses/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	var req CommentRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	expense, err := h.services.Approvals.Reject(c.Request.Context(), actorFrom(c), c.Param("id"), req.Comment)
	if err != nil {
		h.fail(c, "reject expense", err)
		return
	}
	ok(c, http.StatusOK, expense)
}

// Escalate handles POST /api/v1/expenses/:id/escalate
func (h *Handlers) Escalate(c *gin.Context) {
	var req EscalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "escalateTo is required")
		return
	}

	expense, err := h.services.Approvals.Escalate(c.Request.Context(), actorFrom(c), c.Param("id"), req.EscalateTo, req.Comment)
	if err != nil {
		h.fail(c, "escalate expense", err)
		return
	}
	ok(c, http.StatusOK, expense)
}

// ListNotifications handles GET /api/v1/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	var req struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	notifications, err := h.services.Notifications.ListForUser(c.Request.Context(), actorFrom(c), req.Limit)
	if err != nil {
		h.fail(c, "list notifications", err)
		return
	}
	ok(c, http.StatusOK, notifications)
}

// ExportApproved handles GET /api/v1/reports/approved
func (h *Handlers) ExportApproved(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.services.Reports.ExportApproved(c.Request.Context(), actorFrom(c), &buf); err != nil {
		h.fail(c, "export approved", err)
		return
	}

	filename := "approved-" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, h.services.Reports.ContentType(), buf.Bytes())
}

// bindOptionalJSON binds the body into req when one is present
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "invalid request body")
		return false
	}
	return true
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
