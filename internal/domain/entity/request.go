package entity

import "time"

// Request is the approval request aggregate. It exclusively owns its step ledger.
type Request struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Metadata     Metadata      `json:"-"`
	CreatorID    string        `json:"creator_id"`
	OrgID        string        `json:"org_id"`
	DepartmentID string        `json:"department_id"`
	Status       RequestStatus `json:"status"`

	// Template snapshot the ledger was materialized from
	TemplateID      string `json:"template_id,omitempty"`
	TemplateVersion int    `json:"template_version,omitempty"`

	Steps []*ApprovalStep `json:"steps"`

	// Version is the optimistic concurrency token, bumped on every write
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsPublished returns true once the ledger has been materialized
func (r *Request) IsPublished() bool {
	return r.Status != RequestStatusDraft
}

// FindStep returns the step with the given id, or nil
func (r *Request) FindStep(stepID string) *ApprovalStep {
	for _, s := range r.Steps {
		if s.ID == stepID {
			return s
		}
	}
	return nil
}

// Clone returns a deep copy of the request, including its ledger.
// Metadata variants are value types and are shared safely.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Steps = CloneSteps(r.Steps)
	if r.PublishedAt != nil {
		t := *r.PublishedAt
		c.PublishedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	if g, ok := r.Metadata.(GenericMetadata); ok && g.Fields != nil {
		fields := make(map[string]string, len(g.Fields))
		for k, v := range g.Fields {
			fields[k] = v
		}
		c.Metadata = GenericMetadata{Fields: fields}
	}
	return &c
}

// RequestFilter narrows request listings
type RequestFilter struct {
	Status    RequestStatus
	CreatorID string
	Limit     int
	Offset    int
}
