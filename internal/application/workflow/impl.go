package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/approval-flow/internal/application/dispatcher"
	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/event"
	"github.com/garyjia/approval-flow/internal/domain/progression"
)

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	requestRepo  port.RequestRepository
	stepRepo     port.StepRepository
	templateRepo port.TemplateRepository
	historyRepo  port.HistoryRepository
	txManager    port.TransactionManager
	directory    ApproverDirectory

	dispatcher dispatcher.Dispatcher
	recorder   Recorder
	logger     Logger
	now        func() time.Time
}

// Repositories groups the stores the engine reads and writes
type Repositories struct {
	Requests  port.RequestRepository
	Steps     port.StepRepository
	Templates port.TemplateRepository
	History   port.HistoryRepository
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) EngineOption {
	return func(e *engineImpl) {
		e.recorder = r
	}
}

// WithLogger sets the logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	repos Repositories,
	txManager port.TransactionManager,
	directory ApproverDirectory,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		requestRepo:  repos.Requests,
		stepRepo:     repos.Steps,
		templateRepo: repos.Templates,
		historyRepo:  repos.History,
		txManager:    txManager,
		directory:    directory,
		now:          func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Load returns a request together with its ledger
func (e *engineImpl) Load(ctx context.Context, requestID string) (*entity.Request, error) {
	req, err := e.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request %s", port.ErrNotFound, requestID)
	}

	steps, err := e.stepRepo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch steps: %w", err)
	}
	req.Steps = steps

	return req, nil
}

// Publish materializes the ledger of a draft from a stored template
func (e *engineImpl) Publish(ctx context.Context, cmd PublishCommand) (*entity.Request, error) {
	return e.run(ctx, "publish", cmd.RequestID, func(txCtx context.Context, req *entity.Request, now time.Time) (*progression.Outcome, *entity.HistoryEntry, error) {
		if req.Status != entity.RequestStatusDraft {
			return nil, nil, fmt.Errorf("%w: request %s is %s", progression.ErrInvalidState, req.ID, req.Status)
		}
		if cmd.ActorID != req.CreatorID {
			return nil, nil, fmt.Errorf("%w: only the creator can publish", progression.ErrForbidden)
		}

		tmpl, err := e.templateRepo.GetByID(txCtx, cmd.TemplateID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch template: %w", err)
		}
		if tmpl == nil {
			return nil, nil, fmt.Errorf("%w: template %s", port.ErrNotFound, cmd.TemplateID)
		}

		org, err := e.orgContext(txCtx, req)
		if err != nil {
			return nil, nil, err
		}

		out, err := progression.Publish(txCtx, req, tmpl, e.directory, org, now)
		if err != nil {
			return nil, nil, err
		}

		if err := e.stepRepo.CreateBatch(txCtx, out.Request.Steps); err != nil {
			return nil, nil, err
		}

		entry := &entity.HistoryEntry{
			ActorID: cmd.ActorID,
			Action:  entity.ActionPublished,
			Comment: fmt.Sprintf("template %s v%d", tmpl.Name, tmpl.Version),
		}
		return out, entry, nil
	})
}

// Decide records an approver's decision
func (e *engineImpl) Decide(ctx context.Context, requestID string, cmd progression.DecisionCommand) (*entity.Request, error) {
	return e.run(ctx, "decide", requestID, func(txCtx context.Context, req *entity.Request, now time.Time) (*progression.Outcome, *entity.HistoryEntry, error) {
		out, err := progression.ApplyDecision(req, cmd, now)
		if err != nil {
			return nil, nil, err
		}

		action := entity.ActionApproved
		if cmd.Decision == entity.DecisionReject {
			action = entity.ActionRejected
		}
		entry := &entity.HistoryEntry{
			StepID:  cmd.StepID,
			ActorID: cmd.ActorID,
			Action:  action,
			Comment: out.Request.FindStep(cmd.StepID).Decision.Comment,
		}
		return out, entry, e.persistSteps(txCtx, out)
	})
}

// Withdraw cancels an undecided request on behalf of its creator
func (e *engineImpl) Withdraw(ctx context.Context, requestID, actorID string) (*entity.Request, error) {
	return e.run(ctx, "withdraw", requestID, func(txCtx context.Context, req *entity.Request, now time.Time) (*progression.Outcome, *entity.HistoryEntry, error) {
		out, err := progression.Withdraw(req, actorID, now)
		if err != nil {
			return nil, nil, err
		}
		return out, &entity.HistoryEntry{ActorID: actorID, Action: entity.ActionWithdrawn}, nil
	})
}

// Skip is the administrative override that skips an undecided step
func (e *engineImpl) Skip(ctx context.Context, cmd SkipCommand) (*entity.Request, error) {
	if !hasRole(cmd.ActorRoles, RoleAdmin) {
		return nil, fmt.Errorf("%w: skipping a step requires the %s role", progression.ErrForbidden, RoleAdmin)
	}

	return e.run(ctx, "skip", cmd.RequestID, func(txCtx context.Context, req *entity.Request, now time.Time) (*progression.Outcome, *entity.HistoryEntry, error) {
		out, err := progression.Skip(req, cmd.ActorID, cmd.StepID, cmd.Reason, now)
		if err != nil {
			return nil, nil, err
		}
		entry := &entity.HistoryEntry{
			StepID:  cmd.StepID,
			ActorID: cmd.ActorID,
			Action:  entity.ActionSkipped,
			Comment: out.Request.FindStep(cmd.StepID).Decision.Comment,
		}
		return out, entry, e.persistSteps(txCtx, out)
	})
}

// operation computes the outcome for a loaded request and persists anything besides the request row
type operation func(txCtx context.Context, req *entity.Request, now time.Time) (*progression.Outcome, *entity.HistoryEntry, error)

// run loads the request, applies op, writes the request row and history in one transaction,
// then dispatches the emitted events once the transaction has committed
func (e *engineImpl) run(ctx context.Context, name, requestID string, op operation) (*entity.Request, error) {
	started := e.now()
	var out *progression.Outcome

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := e.Load(txCtx, requestID)
		if err != nil {
			return err
		}

		now := e.now()
		result, entry, err := op(txCtx, req, now)
		if err != nil {
			return err
		}

		if err := e.requestRepo.Update(txCtx, result.Request, req.Version); err != nil {
			return err
		}

		entry.RequestID = req.ID
		entry.PreviousStatus = result.PreviousStatus
		entry.NewStatus = result.Request.Status
		entry.OccurredAt = now
		if err := e.historyRepo.Create(txCtx, entry); err != nil {
			return fmt.Errorf("failed to create history record: %w", err)
		}

		out = result
		return nil
	})

	if e.recorder != nil {
		e.recorder.ObserveOperation(name, err, e.now().Sub(started))
	}
	if err != nil {
		if e.logger != nil && !isExpected(err) {
			e.logger.Error("Workflow operation failed",
				"operation", name,
				"request_id", requestID,
				"error", err,
			)
		}
		return nil, err
	}

	if e.logger != nil {
		e.logger.Info("Workflow operation applied",
			"operation", name,
			"request_id", requestID,
			"previous_status", out.PreviousStatus,
			"status", out.Request.Status,
			"events", len(out.Events),
		)
	}
	if out.Completed() && e.recorder != nil {
		e.recorder.RequestCompleted(out.Request.Status)
	}
	if e.dispatcher != nil {
		// The caller's request may finish before the sinks do
		e.dispatcher.DispatchAllAsync(context.WithoutCancel(ctx), annotate(out))
	}

	return out.Request, nil
}

// persistSteps writes every changed step, conditioned on the status it had when loaded
func (e *engineImpl) persistSteps(ctx context.Context, out *progression.Outcome) error {
	for _, change := range collapse(out.Changes) {
		step := out.Request.FindStep(change.StepID)
		if step == nil {
			return fmt.Errorf("changed step %s is missing from the ledger", change.StepID)
		}
		if err := e.stepRepo.UpdateFrom(ctx, step, change.From); err != nil {
			return err
		}
	}
	return nil
}

// orgContext builds the resolver context from the creator's directory entry.
// A creator missing from the directory still resolves explicit, role and department specs.
func (e *engineImpl) orgContext(ctx context.Context, req *entity.Request) (progression.OrgContext, error) {
	org, err := e.directory.OrgContextFor(ctx, req.CreatorID)
	if err != nil && !errors.Is(err, port.ErrNotFound) {
		return progression.OrgContext{}, fmt.Errorf("failed to load org context: %w", err)
	}
	if req.OrgID != "" {
		org.OrgID = req.OrgID
	}
	if req.DepartmentID != "" {
		org.DepartmentID = req.DepartmentID
	}
	return org, nil
}

// annotate tags the first event with the steps the operation activated
func annotate(out *progression.Outcome) []*event.Event {
	var activated []string
	for _, c := range out.Changes {
		if c.To == entity.StepStatusPending {
			activated = append(activated, c.StepID)
		}
	}
	// Publish reports no changes, every pending step is new
	if out.PreviousStatus == entity.RequestStatusDraft {
		for _, s := range out.Request.Steps {
			if s.Status == entity.StepStatusPending {
				activated = append(activated, s.ID)
			}
		}
	}

	events := out.Events
	if len(activated) > 0 && len(events) > 0 {
		events = append([]*event.Event(nil), events...)
		events[0] = events[0].WithPayload(event.PayloadActivatedSteps, strings.Join(activated, ","))
	}
	return events
}

// collapse merges repeated changes of one step into a single first-from, last-to change
func collapse(changes []progression.StepChange) []progression.StepChange {
	index := make(map[string]int, len(changes))
	var out []progression.StepChange
	for _, c := range changes {
		if i, ok := index[c.StepID]; ok {
			out[i].To = c.To
			continue
		}
		index[c.StepID] = len(out)
		out = append(out, c)
	}
	return out
}

// isExpected reports errors that describe a refused command rather than a failure
func isExpected(err error) bool {
	for _, target := range []error{
		progression.ErrInvalidState,
		progression.ErrNotCurrentStep,
		progression.ErrForbidden,
		progression.ErrCommentRequired,
		progression.ErrInvalidDecision,
		port.ErrNotFound,
		port.ErrConcurrentUpdate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
