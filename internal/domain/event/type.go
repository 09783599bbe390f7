package event

// Kind identifies the kind of domain event
type Kind string

const (
	KindStepApproved     Kind = "StepApproved"
	KindStepRejected     Kind = "StepRejected"
	KindRequestCompleted Kind = "RequestCompleted"

	// Notification-only kinds emitted by publish, skip and the escalation scanner
	KindRequestPublished  Kind = "RequestPublished"
	KindStepSkipped       Kind = "StepSkipped"
	KindStepEscalationDue Kind = "StepEscalationDue"
)

// String returns the string representation of the event kind
func (k Kind) String() string {
	return string(k)
}

// IsValid checks if the event kind is one of the defined constants
func (k Kind) IsValid() bool {
	switch k {
	case KindStepApproved,
		KindStepRejected,
		KindRequestCompleted,
		KindRequestPublished,
		KindStepSkipped,
		KindStepEscalationDue:
		return true
	default:
		return false
	}
}

// IsStepDecision returns true for the two kinds produced by an approver's decision
func (k Kind) IsStepDecision() bool {
	return k == KindStepApproved || k == KindStepRejected
}
