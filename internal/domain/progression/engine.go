// Package progression is the only code allowed to change step or request status.
// Every operation works on a clone of the request and returns it together with the
// events it produced; on error the input is left untouched.
package progression

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/event"
	"github.com/garyjia/approval-flow/internal/domain/ledger"
	"github.com/garyjia/approval-flow/internal/domain/workflow"
)

// DecisionCommand is an approver's verdict on one step
type DecisionCommand struct {
	ActorID  string
	StepID   string
	Decision entity.Decision
	Comment  string
}

// StepChange records one step status transition made by an operation
type StepChange struct {
	StepID string
	From   entity.StepStatus
	To     entity.StepStatus
}

// Outcome is the result of a successful operation
type Outcome struct {
	Request        *entity.Request
	PreviousStatus entity.RequestStatus
	Changes        []StepChange
	Events         []*event.Event
}

// Completed returns true if the operation moved the request into a terminal status
func (o *Outcome) Completed() bool {
	return !o.PreviousStatus.IsTerminal() && o.Request.Status.IsTerminal()
}

// ApplyDecision records an approve or reject decision on a step of the active group.
// Preconditions are checked in a fixed order and the first failure wins.
func ApplyDecision(req *entity.Request, cmd DecisionCommand, now time.Time) (*Outcome, error) {
	if !cmd.Decision.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, cmd.Decision)
	}
	if err := requireInProgress(req); err != nil {
		return nil, err
	}

	target := activeMember(req.Steps, cmd.StepID)
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotCurrentStep, cmd.StepID)
	}
	if cmd.ActorID == "" || cmd.ActorID != target.Approver.UserID {
		return nil, fmt.Errorf("%w: %s is not the approver of step %s", ErrForbidden, cmd.ActorID, cmd.StepID)
	}

	comment := strings.TrimSpace(cmd.Comment)
	if cmd.Decision == entity.DecisionReject && comment == "" {
		return nil, fmt.Errorf("%w: rejection needs a reason", ErrCommentRequired)
	}
	if target.RequireComment && comment == "" {
		return nil, fmt.Errorf("%w: step %s requires a comment", ErrCommentRequired, cmd.StepID)
	}

	next := req.Clone()
	t := newTransition(req, next, now)

	trigger, kind := workflow.TriggerApprove, event.KindStepApproved
	if cmd.Decision == entity.DecisionReject {
		trigger, kind = workflow.TriggerReject, event.KindStepRejected
	}

	s := next.FindStep(cmd.StepID)
	if err := t.fireStep(s, trigger); err != nil {
		return nil, err
	}
	s.Decision = &entity.StepDecision{DecidedBy: cmd.ActorID, DecidedAt: now, Comment: comment}

	if cmd.Decision == entity.DecisionApprove {
		if err := t.settleGroup(s.ID, cmd.ActorID); err != nil {
			return nil, err
		}
		if err := t.activate(); err != nil {
			return nil, err
		}
	}

	if err := t.finish(); err != nil {
		return nil, err
	}
	t.emit(kind, s.ID, cmd.ActorID)
	t.emitCompletion(cmd.ActorID)
	return t.outcome(), nil
}

// Publish materializes the ledger of a draft from a template, resolving every approver.
// Nothing is returned unless every step resolved.
func Publish(ctx context.Context, draft *entity.Request, tmpl *entity.Template, resolver Resolver, org OrgContext, now time.Time) (*Outcome, error) {
	if draft == nil || draft.Status != entity.RequestStatusDraft {
		return nil, fmt.Errorf("%w: only drafts can be published", ErrInvalidState)
	}
	if tmpl == nil || len(tmpl.Steps) == 0 {
		return nil, ErrEmptyWorkflow
	}
	if err := ValidateTemplate(tmpl.Steps); err != nil {
		return nil, err
	}
	if resolver == nil {
		return nil, fmt.Errorf("%w: no resolver configured", ErrUnresolvedApprover)
	}

	specs := SortedSpecs(tmpl.Steps)
	steps := make([]*entity.ApprovalStep, 0, len(specs))
	for _, spec := range specs {
		userID, err := resolver.Resolve(ctx, spec.Approver, org)
		if err != nil {
			return nil, fmt.Errorf("%w: step %d (%s): %w", ErrUnresolvedApprover, spec.Order, spec.Approver, err)
		}
		if userID == "" {
			return nil, fmt.Errorf("%w: step %d (%s) matched nobody", ErrUnresolvedApprover, spec.Order, spec.Approver)
		}
		steps = append(steps, materialize(draft.ID, spec, userID))
	}

	next := draft.Clone()
	next.Steps = steps
	next.TemplateID = tmpl.ID
	next.TemplateVersion = tmpl.Version
	next.PublishedAt = &now

	t := newTransition(draft, next, now)
	status, err := workflow.FireRequest(context.Background(), draft.Status, workflow.TriggerPublish)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	next.Status = status
	next.UpdatedAt = now

	if err := t.activate(); err != nil {
		return nil, err
	}
	// Every step is new, so publish reports no step changes for conditional updates
	t.changes = nil

	t.emit(event.KindRequestPublished, "", draft.CreatorID)
	return t.outcome(), nil
}

// Withdraw lets the creator cancel a request that has not reached a decision yet.
// Steps are left as they are.
func Withdraw(req *entity.Request, actorID string, now time.Time) (*Outcome, error) {
	if req == nil {
		return nil, ErrInvalidState
	}
	switch req.Status {
	case entity.RequestStatusDraft, entity.RequestStatusPending, entity.RequestStatusInReview:
	default:
		return nil, fmt.Errorf("%w: cannot withdraw a %s request", ErrInvalidState, req.Status)
	}
	if actorID == "" || actorID != req.CreatorID {
		return nil, fmt.Errorf("%w: only the creator can withdraw", ErrForbidden)
	}

	next := req.Clone()
	t := newTransition(req, next, now)

	status, err := workflow.FireRequest(context.Background(), req.Status, workflow.TriggerWithdraw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	next.Status = status
	next.UpdatedAt = now
	next.CompletedAt = &now

	t.emitCompletion(actorID)
	return t.outcome(), nil
}

// Skip is the administrative override that marks an undecided step as skipped.
// Authorization of the actor is the caller's concern.
func Skip(req *entity.Request, actorID, stepID, reason string, now time.Time) (*Outcome, error) {
	if err := requireInProgress(req); err != nil {
		return nil, err
	}

	target := req.FindStep(stepID)
	if target == nil || !target.Status.IsOpen() {
		return nil, fmt.Errorf("%w: %s cannot be skipped", ErrNotCurrentStep, stepID)
	}

	next := req.Clone()
	t := newTransition(req, next, now)

	s := next.FindStep(stepID)
	if err := t.fireStep(s, workflow.TriggerSkip); err != nil {
		return nil, err
	}
	s.Decision = &entity.StepDecision{DecidedBy: actorID, DecidedAt: now, Comment: strings.TrimSpace(reason)}

	if err := t.settleGroup(s.ID, actorID); err != nil {
		return nil, err
	}
	if err := t.activate(); err != nil {
		return nil, err
	}
	if err := t.finish(); err != nil {
		return nil, err
	}

	t.emit(event.KindStepSkipped, s.ID, actorID)
	t.emitCompletion(actorID)
	return t.outcome(), nil
}

func requireInProgress(req *entity.Request) error {
	if req == nil {
		return ErrInvalidState
	}
	if !req.IsPublished() || len(req.Steps) == 0 {
		return fmt.Errorf("%w: request %s is not published", ErrInvalidState, req.ID)
	}
	if req.Status.IsTerminal() || ledger.IsTerminal(req.Steps) {
		return fmt.Errorf("%w: request %s is %s", ErrInvalidState, req.ID, req.Status)
	}
	return nil
}

// activeMember returns the undecided active-group step with the given id
func activeMember(steps []*entity.ApprovalStep, stepID string) *entity.ApprovalStep {
	for _, s := range ledger.ActiveGroup(steps) {
		if s.ID == stepID && s.Status.IsOpen() {
			return s
		}
	}
	return nil
}

// transition accumulates the changes of one operation on the cloned request
type transition struct {
	prev    *entity.Request
	next    *entity.Request
	now     time.Time
	changes []StepChange
	events  []*event.Event
}

func newTransition(prev, next *entity.Request, now time.Time) *transition {
	return &transition{prev: prev, next: next, now: now}
}

func (t *transition) fireStep(s *entity.ApprovalStep, trigger workflow.Trigger) error {
	from := s.Status
	to, err := workflow.FireStep(context.Background(), from, trigger)
	if err != nil {
		return fmt.Errorf("%w: step %s: %w", ErrNotCurrentStep, s.ID, err)
	}
	s.Status = to
	t.changes = append(t.changes, StepChange{StepID: s.ID, From: from, To: to})
	return nil
}

// settleGroup skips the leftover members of an any-mode group once it is satisfied
func (t *transition) settleGroup(stepID, actorID string) error {
	g, ok := ledger.GroupOf(t.next.Steps, stepID)
	if !ok || !g.Satisfied() {
		return nil
	}
	for _, s := range g.Open() {
		if err := t.fireStep(s, workflow.TriggerSkip); err != nil {
			return err
		}
		s.Decision = &entity.StepDecision{DecidedBy: actorID, DecidedAt: t.now, Comment: "group satisfied"}
	}
	return nil
}

// activate moves the waiting members of the active group to pending
func (t *transition) activate() error {
	for _, s := range ledger.ActiveGroup(t.next.Steps) {
		if s.Status != entity.StepStatusWaiting {
			continue
		}
		if err := t.fireStep(s, workflow.TriggerActivate); err != nil {
			return err
		}
		activated := t.now
		s.ActivatedAt = &activated
	}
	return nil
}

// finish derives the aggregate status from the mutated ledger
func (t *transition) finish() error {
	derived := ledger.DeriveStatus(t.next.Steps, t.prev.Status)

	var trigger workflow.Trigger
	switch derived {
	case entity.RequestStatusApproved:
		trigger = workflow.TriggerApprove
	case entity.RequestStatusRejected:
		trigger = workflow.TriggerReject
	case entity.RequestStatusInReview:
		trigger = workflow.TriggerAdvance
	default:
		// pending until the first step is decided
		t.next.Status = derived
		t.next.UpdatedAt = t.now
		return nil
	}

	status, err := workflow.FireRequest(context.Background(), t.prev.Status, trigger)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	t.next.Status = status
	t.next.UpdatedAt = t.now
	if status.IsTerminal() {
		completed := t.now
		t.next.CompletedAt = &completed
	}
	return nil
}

func (t *transition) emit(kind event.Kind, stepID, actorID string) {
	t.events = append(t.events, event.New(kind, t.next.ID, stepID, actorID, t.next.Status, t.now))
}

func (t *transition) emitCompletion(actorID string) {
	if !t.prev.Status.IsTerminal() && t.next.Status.IsTerminal() {
		t.emit(event.KindRequestCompleted, "", actorID)
	}
}

func (t *transition) outcome() *Outcome {
	return &Outcome{
		Request:        t.next,
		PreviousStatus: t.prev.Status,
		Changes:        t.changes,
		Events:         event.Correlate(t.events),
	}
}
