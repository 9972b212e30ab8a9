package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/domain/apperror"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindInvalidState, apperror.KindStaleState:
		return http.StatusConflict
	case apperror.KindUnauthorized:
		return http.StatusForbidden
	case apperror.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
		Code:    string(apperror.KindValidation),
	})
}

// fail writes err using its kind. Internal errors are logged and hidden.
func (h *Handlers) fail(c *gin.Context, op string, err error) {
	kind := apperror.KindOf(err)
	status := statusFor(kind)

	msg := "internal error"
	var appErr *apperror.Error
	if status != http.StatusInternalServerError && errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "operation", op, "error", err)
	}

	c.JSON(status, Response{
		Success: false,
		Error:   msg,
		Code:    string(kind),
	})
}
