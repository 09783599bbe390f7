package progression

import "errors"

var (
	// ErrInvalidState is returned for operations on a terminal or not-yet-published request
	ErrInvalidState = errors.New("invalid request state")

	// ErrNotCurrentStep is returned when a decision targets a step outside the active group
	ErrNotCurrentStep = errors.New("step is not the current active step")

	// ErrForbidden is returned when the actor may not perform the operation
	ErrForbidden = errors.New("actor is not allowed to perform this action")

	// ErrCommentRequired is returned for a rejection or comment-required step without a comment
	ErrCommentRequired = errors.New("comment required")

	// ErrUnresolvedApprover is returned when an approver specification resolves to nobody
	ErrUnresolvedApprover = errors.New("approver could not be resolved")

	// ErrEmptyWorkflow is returned when publishing with a template that has no steps
	ErrEmptyWorkflow = errors.New("workflow template has no steps")

	// ErrInvalidTemplate is returned for malformed template step definitions
	ErrInvalidTemplate = errors.New("invalid workflow template")

	// ErrInvalidDecision is returned for a decision other than approve or reject
	ErrInvalidDecision = errors.New("invalid decision")
)
