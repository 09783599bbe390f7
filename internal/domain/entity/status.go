package entity

// RequestStatus is the aggregate status of an approval request
type RequestStatus string

const (
	RequestStatusDraft     RequestStatus = "draft"
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusInReview  RequestStatus = "in_review"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusWithdrawn RequestStatus = "withdrawn"
)

var validRequestStatuses = map[RequestStatus]bool{
	RequestStatusDraft:     true,
	RequestStatusPending:   true,
	RequestStatusInReview:  true,
	RequestStatusApproved:  true,
	RequestStatusRejected:  true,
	RequestStatusWithdrawn: true,
}

var terminalRequestStatuses = map[RequestStatus]bool{
	RequestStatusApproved:  true,
	RequestStatusRejected:  true,
	RequestStatusWithdrawn: true,
}

// IsValid returns true if the status is a known request status
func (s RequestStatus) IsValid() bool {
	return validRequestStatuses[s]
}

// IsTerminal returns true if no further decisions are accepted in this status
func (s RequestStatus) IsTerminal() bool {
	return terminalRequestStatuses[s]
}

// String returns the string representation of the status
func (s RequestStatus) String() string {
	return string(s)
}

// StepStatus is the status of a single approval step
type StepStatus string

const (
	StepStatusWaiting  StepStatus = "waiting"
	StepStatusPending  StepStatus = "pending"
	StepStatusApproved StepStatus = "approved"
	StepStatusRejected StepStatus = "rejected"
	StepStatusSkipped  StepStatus = "skipped"
)

var validStepStatuses = map[StepStatus]bool{
	StepStatusWaiting:  true,
	StepStatusPending:  true,
	StepStatusApproved: true,
	StepStatusRejected: true,
	StepStatusSkipped:  true,
}

// IsValid returns true if the status is a known step status
func (s StepStatus) IsValid() bool {
	return validStepStatuses[s]
}

// IsTerminal returns true once the step has been decided or skipped
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusApproved || s == StepStatusRejected || s == StepStatusSkipped
}

// IsSatisfied returns true for statuses that count towards completing a group
func (s StepStatus) IsSatisfied() bool {
	return s == StepStatusApproved || s == StepStatusSkipped
}

// IsOpen returns true while the step can still receive a decision
func (s StepStatus) IsOpen() bool {
	return s == StepStatusWaiting || s == StepStatusPending
}

// String returns the string representation of the status
func (s StepStatus) String() string {
	return string(s)
}

// Decision is an approver's verdict on a step
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// IsValid returns true for approve and reject
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// String returns the string representation of the decision
func (d Decision) String() string {
	return string(d)
}
