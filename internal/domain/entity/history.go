package entity

import "time"

// History actions
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionPublished = "published"
	ActionApproved  = "approved"
	ActionRejected  = "rejected"
	ActionSkipped   = "skipped"
	ActionWithdrawn = "withdrawn"
)

// HistoryEntry is one row of a request's append-only audit trail
type HistoryEntry struct {
	ID             int64         `json:"id"`
	RequestID      string        `json:"request_id"`
	StepID         string        `json:"step_id,omitempty"`
	ActorID        string        `json:"actor_id"`
	Action         string        `json:"action"`
	PreviousStatus RequestStatus `json:"previous_status,omitempty"`
	NewStatus      RequestStatus `json:"new_status"`
	Comment        string        `json:"comment,omitempty"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// OrgUser is a member of the organization directory
type OrgUser struct {
	ID           string   `json:"id"`
	OrgID        string   `json:"org_id"`
	DepartmentID string   `json:"department_id"`
	ManagerID    string   `json:"manager_id,omitempty"`
	DisplayName  string   `json:"display_name"`
	Roles        []string `json:"roles"`
	LarkUserID   string   `json:"lark_user_id,omitempty"`
}

// Department is an organizational unit with an optional head
type Department struct {
	ID         string `json:"id"`
	OrgID      string `json:"org_id"`
	Name       string `json:"name"`
	HeadUserID string `json:"head_user_id,omitempty"`
}
