package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/application/service"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/progression"
)

// statusFor maps an application error to an HTTP status and a stable error code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, port.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, port.ErrConcurrentUpdate):
		return http.StatusConflict, "concurrent_update"
	case errors.Is(err, progression.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, progression.ErrNotCurrentStep):
		return http.StatusConflict, "not_current_step"
	case errors.Is(err, progression.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, progression.ErrCommentRequired):
		return http.StatusUnprocessableEntity, "comment_required"
	case errors.Is(err, progression.ErrUnresolvedApprover):
		return http.StatusUnprocessableEntity, "unresolved_approver"
	case errors.Is(err, progression.ErrEmptyWorkflow):
		return http.StatusUnprocessableEntity, "empty_workflow"
	case errors.Is(err, progression.ErrInvalidTemplate), errors.Is(err, entity.ErrInvalidApproverSpec):
		return http.StatusUnprocessableEntity, "invalid_template"
	case errors.Is(err, entity.ErrInvalidMetadata):
		return http.StatusUnprocessableEntity, "invalid_metadata"
	case errors.Is(err, progression.ErrInvalidDecision), errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// respondError writes the envelope for err; internal errors are logged and not echoed
func (h *Handlers) respondError(c *gin.Context, op string, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "operation", op, "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	abortWith(c, status, code, msg)
}

func abortWith(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error:   msg,
		Code:    code,
	})
}

func badRequest(c *gin.Context, msg string) {
	abortWith(c, http.StatusBadRequest, "invalid_input", msg)
}
