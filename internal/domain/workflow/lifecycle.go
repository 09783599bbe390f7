package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/approval-flow/internal/domain/entity"
)

var (
	stepLifecycle    = buildStepLifecycle()
	requestLifecycle = buildRequestLifecycle()
)

// buildStepLifecycle encodes the only legal step transitions:
// waiting -> pending -> {approved, rejected}, and any open state -> skipped.
func buildStepLifecycle() StateMachineBuilder[entity.StepStatus] {
	b := NewBuilder[entity.StepStatus]()

	b.Configure(entity.StepStatusWaiting).
		Permit(TriggerActivate, entity.StepStatusPending).
		Permit(TriggerSkip, entity.StepStatusSkipped)

	b.Configure(entity.StepStatusPending).
		Permit(TriggerApprove, entity.StepStatusApproved).
		Permit(TriggerReject, entity.StepStatusRejected).
		Permit(TriggerSkip, entity.StepStatusSkipped)

	return b
}

func buildRequestLifecycle() StateMachineBuilder[entity.RequestStatus] {
	b := NewBuilder[entity.RequestStatus]()

	b.Configure(entity.RequestStatusDraft).
		Permit(TriggerPublish, entity.RequestStatusPending).
		Permit(TriggerWithdraw, entity.RequestStatusWithdrawn)

	b.Configure(entity.RequestStatusPending).
		Permit(TriggerAdvance, entity.RequestStatusInReview).
		Permit(TriggerApprove, entity.RequestStatusApproved).
		Permit(TriggerReject, entity.RequestStatusRejected).
		Permit(TriggerWithdraw, entity.RequestStatusWithdrawn)

	b.Configure(entity.RequestStatusInReview).
		Permit(TriggerAdvance, entity.RequestStatusInReview).
		Permit(TriggerApprove, entity.RequestStatusApproved).
		Permit(TriggerReject, entity.RequestStatusRejected).
		Permit(TriggerWithdraw, entity.RequestStatusWithdrawn)

	return b
}

// StepMachine returns a step lifecycle machine positioned at the given status
func StepMachine(current entity.StepStatus) StateMachine[entity.StepStatus] {
	return stepLifecycle.Build(current)
}

// RequestMachine returns a request lifecycle machine positioned at the given status
func RequestMachine(current entity.RequestStatus) StateMachine[entity.RequestStatus] {
	return requestLifecycle.Build(current)
}

// FireStep applies trigger to a step status and returns the resulting status
func FireStep(ctx context.Context, current entity.StepStatus, trigger Trigger) (entity.StepStatus, error) {
	if !current.IsValid() {
		return current, fmt.Errorf("%w: unknown step status %q", ErrInvalidTransition, current)
	}
	m := StepMachine(current)
	if err := m.Fire(ctx, trigger); err != nil {
		return current, err
	}
	return m.State(), nil
}

// FireRequest applies trigger to a request status and returns the resulting status
func FireRequest(ctx context.Context, current entity.RequestStatus, trigger Trigger) (entity.RequestStatus, error) {
	if !current.IsValid() {
		return current, fmt.Errorf("%w: unknown request status %q", ErrInvalidTransition, current)
	}
	m := RequestMachine(current)
	if err := m.Fire(ctx, trigger); err != nil {
		return current, err
	}
	return m.State(), nil
}
