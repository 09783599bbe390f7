package http

import (
	"encoding/json"
	"time"

	"github.com/garyjia/approval-flow/internal/application/service"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/ledger"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Version    string      `json:"version"`
	Components interface{} `json:"components,omitempty"`
}

// CreateTemplateRequest is the body of POST /api/templates
type CreateTemplateRequest struct {
	Name  string            `json:"name" binding:"required"`
	Steps []entity.StepSpec `json:"steps" binding:"required"`
}

// DraftRequest is the body of POST /api/requests and PUT /api/requests/:id
type DraftRequest struct {
	Title        string              `json:"title" binding:"required"`
	Description  string              `json:"description"`
	MetadataKind entity.MetadataKind `json:"metadata_kind"`
	Metadata     json.RawMessage     `json:"metadata"`
	OrgID        string              `json:"org_id"`
	DepartmentID string              `json:"department_id"`
}

// PublishRequest is the body of POST /api/requests/:id/publish
type PublishRequest struct {
	TemplateID string `json:"template_id" binding:"required"`
}

// DecisionRequest is the body of POST /api/requests/:id/decisions
type DecisionRequest struct {
	StepID   string          `json:"step_id" binding:"required"`
	Decision entity.Decision `json:"decision" binding:"required"`
	Comment  string          `json:"comment"`
}

// SkipRequest is the body of POST /api/requests/:id/steps/:stepId/skip
type SkipRequest struct {
	Reason string `json:"reason"`
}

// ListRequestsQuery holds query parameters for listing requests
type ListRequestsQuery struct {
	Status    string `form:"status"`
	CreatorID string `form:"creator_id"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// RequestResponse represents a request in API responses
type RequestResponse struct {
	*entity.Request
	MetadataKind  entity.MetadataKind `json:"metadata_kind"`
	Metadata      entity.Metadata     `json:"metadata"`
	ActiveStepIDs []string            `json:"active_step_ids,omitempty"`
}

// InboxItemResponse is one entry of the caller's inbox
type InboxItemResponse struct {
	Request RequestResponse      `json:"request"`
	Step    *entity.ApprovalStep `json:"step"`
}

func (r DraftRequest) toInput() (service.DraftInput, error) {
	kind := r.MetadataKind
	if kind == "" {
		kind = entity.MetadataGeneric
	}
	metadata, err := entity.DecodeMetadata(kind, r.Metadata)
	if err != nil {
		return service.DraftInput{}, err
	}
	return service.DraftInput{
		Title:        r.Title,
		Description:  r.Description,
		Metadata:     metadata,
		OrgID:        r.OrgID,
		DepartmentID: r.DepartmentID,
	}, nil
}

func toRequestResponse(req *entity.Request) RequestResponse {
	resp := RequestResponse{
		Request:      req,
		MetadataKind: entity.MetadataGeneric,
		Metadata:     req.Metadata,
	}
	if req.Metadata != nil {
		resp.MetadataKind = req.Metadata.Kind()
	}
	for _, s := range ledger.ActiveGroup(req.Steps) {
		if s.Status.IsOpen() {
			resp.ActiveStepIDs = append(resp.ActiveStepIDs, s.ID)
		}
	}
	return resp
}

func toRequestResponses(reqs []*entity.Request) []RequestResponse {
	out := make([]RequestResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, toRequestResponse(r))
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
