package entity

import "time"

// StepSpec is one step definition inside a workflow template
type StepSpec struct {
	Name           string       `json:"name,omitempty"`
	Order          int          `json:"order"`
	Approver       ApproverSpec `json:"approver_spec"`
	IsParallel     bool         `json:"is_parallel"`
	RequireComment bool         `json:"require_comment"`
	// RequireAllParallel defaults to true for parallel steps when omitted
	RequireAllParallel *bool       `json:"require_all_parallel,omitempty"`
	Escalation         *Escalation `json:"escalation,omitempty"`
}

// Template is a reusable, versioned definition used to materialize ledgers
type Template struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Version   int        `json:"version"`
	Steps     []StepSpec `json:"steps"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
}
