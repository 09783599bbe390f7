package entity

import (
	"errors"
	"fmt"
	"time"
)

// ApproverKind identifies how an approver specification is resolved
type ApproverKind string

const (
	ApproverExplicitUser   ApproverKind = "explicit_user"
	ApproverRole           ApproverKind = "role"
	ApproverDepartmentHead ApproverKind = "department_head"
	ApproverDirectManager  ApproverKind = "direct_manager"
	ApproverSkipLevel      ApproverKind = "skip_level"
)

// IsValid returns true if the kind is one of the supported approver kinds
func (k ApproverKind) IsValid() bool {
	switch k {
	case ApproverExplicitUser, ApproverRole, ApproverDepartmentHead, ApproverDirectManager, ApproverSkipLevel:
		return true
	default:
		return false
	}
}

// ErrInvalidApproverSpec is returned when an approver specification is malformed
var ErrInvalidApproverSpec = errors.New("invalid approver specification")

// ApproverSpec is an unresolved description of who approves a step
type ApproverSpec struct {
	Kind         ApproverKind `json:"kind"`
	UserID       string       `json:"user_id,omitempty"`
	Role         string       `json:"role,omitempty"`
	DepartmentID string       `json:"department_id,omitempty"`
	// Levels above the direct manager for skip_level (1 = manager's manager)
	Levels int `json:"levels,omitempty"`
}

// Validate checks that the fields required by the kind are present
func (s ApproverSpec) Validate() error {
	switch s.Kind {
	case ApproverExplicitUser:
		if s.UserID == "" {
			return fmt.Errorf("%w: explicit_user requires user_id", ErrInvalidApproverSpec)
		}
	case ApproverRole:
		if s.Role == "" {
			return fmt.Errorf("%w: role requires role", ErrInvalidApproverSpec)
		}
	case ApproverDepartmentHead, ApproverDirectManager:
	case ApproverSkipLevel:
		if s.Levels < 1 {
			return fmt.Errorf("%w: skip_level requires levels >= 1", ErrInvalidApproverSpec)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidApproverSpec, s.Kind)
	}
	return nil
}

// String returns a compact human readable form, e.g. "role:finance"
func (s ApproverSpec) String() string {
	switch s.Kind {
	case ApproverExplicitUser:
		return "user:" + s.UserID
	case ApproverRole:
		return "role:" + s.Role
	case ApproverDepartmentHead:
		if s.DepartmentID != "" {
			return "department_head:" + s.DepartmentID
		}
		return "department_head"
	case ApproverSkipLevel:
		return fmt.Sprintf("skip_level:%d", s.Levels)
	default:
		return string(s.Kind)
	}
}

// ApproverRef is the resolved approver of a step together with the spec it came from
type ApproverRef struct {
	UserID string       `json:"user_id"`
	Spec   ApproverSpec `json:"spec"`
}

// StepDecision records who decided a step and when
type StepDecision struct {
	DecidedBy string    `json:"decided_by"`
	DecidedAt time.Time `json:"decided_at"`
	Comment   string    `json:"comment,omitempty"`
}

// Escalation is declarative escalation configuration, announced but never enforced
type Escalation struct {
	AfterHours int    `json:"after_hours"`
	EscalateTo string `json:"escalate_to,omitempty"`
}

// ApprovalStep is one approval gate in a request's ledger
type ApprovalStep struct {
	ID                 string        `json:"id"`
	RequestID          string        `json:"request_id"`
	Name               string        `json:"name,omitempty"`
	Order              int           `json:"order"`
	Approver           ApproverRef   `json:"approver"`
	IsParallel         bool          `json:"is_parallel"`
	RequireAllParallel bool          `json:"require_all_parallel"`
	RequireComment     bool          `json:"require_comment"`
	Status             StepStatus    `json:"status"`
	Decision           *StepDecision `json:"decision,omitempty"`
	Escalation         *Escalation   `json:"escalation,omitempty"`
	ActivatedAt        *time.Time    `json:"activated_at,omitempty"`
}

// Clone returns a deep copy of the step
func (s *ApprovalStep) Clone() *ApprovalStep {
	if s == nil {
		return nil
	}
	c := *s
	if s.Decision != nil {
		d := *s.Decision
		c.Decision = &d
	}
	if s.Escalation != nil {
		e := *s.Escalation
		c.Escalation = &e
	}
	if s.ActivatedAt != nil {
		t := *s.ActivatedAt
		c.ActivatedAt = &t
	}
	return &c
}

// CloneSteps deep copies a ledger
func CloneSteps(steps []*ApprovalStep) []*ApprovalStep {
	if steps == nil {
		return nil
	}
	out := make([]*ApprovalStep, len(steps))
	for i, s := range steps {
		out[i] = s.Clone()
	}
	return out
}
