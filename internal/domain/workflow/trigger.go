package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

// Step triggers
const (
	TriggerActivate Trigger = "ACTIVATE"
	TriggerApprove  Trigger = "APPROVE"
	TriggerReject   Trigger = "REJECT"
	TriggerSkip     Trigger = "SKIP"
)

// Request triggers. Approve and Reject are shared with steps.
const (
	TriggerPublish  Trigger = "PUBLISH"
	TriggerAdvance  Trigger = "ADVANCE"
	TriggerWithdraw Trigger = "WITHDRAW"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
