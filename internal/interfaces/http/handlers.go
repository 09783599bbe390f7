package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-flow/internal/application/report"
	"github.com/garyjia/approval-flow/internal/application/service"
	"github.com/garyjia/approval-flow/internal/application/workflow"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/progression"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportBuilder renders the ledger workbook of a request
type ReportBuilder interface {
	Build(ctx context.Context, requestID string) (*report.Report, error)
}

// HealthChecker reports overall health and per-component detail
type HealthChecker func() (healthy bool, components interface{})

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine    workflow.Engine
	requests  service.RequestService
	templates service.TemplateService
	reports   ReportBuilder
	health    HealthChecker
	version   string
	logger    Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, logger Logger) *Handlers {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	return &Handlers{
		engine:    deps.Engine,
		requests:  deps.Requests,
		templates: deps.Templates,
		reports:   deps.Reports,
		health:    deps.Health,
		version:   version,
		logger:    logger,
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: formatTime(time.Now()),
		Version:   h.version,
	}

	status := http.StatusOK
	if h.health != nil {
		healthy, components := h.health()
		response.Components = components
		if !healthy {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// CreateTemplate handles POST /api/templates
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var body CreateTemplateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid template body: "+err.Error())
		return
	}

	tmpl, err := h.templates.Create(c.Request.Context(), body.Name, actorID(c), body.Steps)
	if err != nil {
		h.respondError(c, "create_template", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: tmpl})
}

// ListTemplates handles GET /api/templates
func (h *Handlers) ListTemplates(c *gin.Context) {
	limit, offset := pagination(c)

	templates, err := h.templates.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, "list_templates", err)
		return
	}
	if templates == nil {
		templates = []*entity.Template{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: templates})
}

// GetTemplate handles GET /api/templates/:id
func (h *Handlers) GetTemplate(c *gin.Context) {
	tmpl, err := h.templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_template", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: tmpl})
}

// CreateRequest handles POST /api/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	input, ok := bindDraft(c)
	if !ok {
		return
	}

	req, err := h.requests.CreateDraft(c.Request.Context(), actorID(c), input)
	if err != nil {
		h.respondError(c, "create_request", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: toRequestResponse(req)})
}

// UpdateRequest handles PUT /api/requests/:id
func (h *Handlers) UpdateRequest(c *gin.Context) {
	input, ok := bindDraft(c)
	if !ok {
		return
	}

	req, err := h.requests.UpdateDraft(c.Request.Context(), c.Param("id"), actorID(c), input)
	if err != nil {
		h.respondError(c, "update_request", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toRequestResponse(req)})
}

// ListRequests handles GET /api/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	var query ListRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	if query.Limit <= 0 || query.Limit > 100 {
		query.Limit = 20
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	reqs, err := h.requests.List(c.Request.Context(), entity.RequestFilter{
		Status:    entity.RequestStatus(query.Status),
		CreatorID: query.CreatorID,
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
	if err != nil {
		h.respondError(c, "list_requests", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toRequestResponses(reqs)})
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.requests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_request", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toRequestResponse(req)})
}

// PublishRequest handles POST /api/requests/:id/publish
func (h *Handlers) PublishRequest(c *gin.Context) {
	var body PublishRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "template_id is required")
		return
	}

	req, err := h.engine.Publish(c.Request.Context(), workflow.PublishCommand{
		RequestID:  c.Param("id"),
		TemplateID: body.TemplateID,
		ActorID:    actorID(c),
	})
	if err != nil {
		h.respondError(c, "publish", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toRequestResponse(req)})
}

// Decide handles POST /api/requests/:id/decisions
func (h *Handlers) Decide(c *gin.Context) {
	var body DecisionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "step_id and decision are required")
		return
	}

	req, err := h.engine.Decide(c.Request.Context(), c.Param("id"), progression.DecisionCommand{
		ActorID:  actorID(c),
		StepID:   body.StepID,
		Decision: body.Decision,
		Comment:  body.Comment,
	})
	if err != nil {
		h.respondError(c, "decide", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toRequestResponse(req)})
}

// Withdraw handles POST /api/requests/:id/withdraw
func (h *Handlers) Withdraw(c *gin.Context) {
	req, err := h.engine.Withdraw(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		h.respondError(c, "withdraw", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toRequestResponse(req)})
}

// SkipStep handles POST /api/requests/:id/steps/:stepId/skip
func (h *Handlers) SkipStep(c *gin.Context) {
	var body SkipRequest
	// the reason is optional, so an empty body is fine
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid skip body")
			return
		}
	}

	req, err := h.engine.Skip(c.Request.Context(), workflow.SkipCommand{
		RequestID:  c.Param("id"),
		StepID:     c.Param("stepId"),
		ActorID:    actorID(c),
		ActorRoles: actorRoles(c),
		Reason:     body.Reason,
	})
	if err != nil {
		h.respondError(c, "skip", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toRequestResponse(req)})
}

// History handles GET /api/requests/:id/history
func (h *Handlers) History(c *gin.Context) {
	entries, err := h.requests.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "history", err)
		return
	}
	if entries == nil {
		entries = []*entity.HistoryEntry{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// Report handles GET /api/requests/:id/report
func (h *Handlers) Report(c *gin.Context) {
	if h.reports == nil {
		abortWith(c, http.StatusNotImplemented, "reports_disabled", "reports are not configured")
		return
	}

	rep, err := h.reports.Build(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "report", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, rep.Filename))
	c.Data(http.StatusOK, xlsxContentType, rep.Content)
}

// Inbox handles GET /api/inbox
func (h *Handlers) Inbox(c *gin.Context) {
	items, err := h.requests.Inbox(c.Request.Context(), actorID(c))
	if err != nil {
		h.respondError(c, "inbox", err)
		return
	}

	out := make([]InboxItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, InboxItemResponse{
			Request: toRequestResponse(item.Request),
			Step:    item.Step,
		})
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: out})
}

func bindDraft(c *gin.Context) (service.DraftInput, bool) {
	var body DraftRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return service.DraftInput{}, false
	}

	input, err := body.toInput()
	if err != nil {
		status, code := statusFor(err)
		abortWith(c, status, code, err.Error())
		return service.DraftInput{}, false
	}
	return input, true
}

func pagination(c *gin.Context) (limit, offset int) {
	var q struct {
		Limit  int `form:"limit"`
		Offset int `form:"offset"`
	}
	_ = c.ShouldBindQuery(&q)
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q.Limit, q.Offset
}
