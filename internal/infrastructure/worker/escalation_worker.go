package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/garyjia/approval-flow/internal/application/dispatcher"
	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/event"
)

// SystemActor is the actor id carried by events the scanner raises
const SystemActor = "system"

// EscalationWorkerConfig holds configuration for the escalation scanner
type EscalationWorkerConfig struct {
	// Schedule is a standard cron expression or descriptor such as "@every 5m"
	Schedule    string
	ScanTimeout time.Duration
}

// DefaultEscalationWorkerConfig returns default configuration
func DefaultEscalationWorkerConfig() EscalationWorkerConfig {
	return EscalationWorkerConfig{
		Schedule:    "@every 5m",
		ScanTimeout: time.Minute,
	}
}

// EscalationCounter counts raised escalations
type EscalationCounter interface {
	EscalationRaised()
}

// EscalationWorker announces pending steps that outlived their escalation deadline.
// It only emits StepEscalationDue events and never touches the ledger.
type EscalationWorker struct {
	config EscalationWorkerConfig

	stepRepo       port.StepRepository
	requestRepo    port.RequestRepository
	escalationRepo port.EscalationRepository
	dispatcher     dispatcher.Dispatcher
	counter        EscalationCounter
	clock          func() time.Time
	logger         *zap.Logger

	mu          sync.RWMutex
	scheduler   *cron.Cron
	ctx         context.Context
	cancel      context.CancelFunc
	isRunning   bool
	raisedCount int
	lastScan    time.Time
	lastError   error
}

// NewEscalationWorker creates a new escalation scanner. counter may be nil.
func NewEscalationWorker(
	config EscalationWorkerConfig,
	stepRepo port.StepRepository,
	requestRepo port.RequestRepository,
	escalationRepo port.EscalationRepository,
	d dispatcher.Dispatcher,
	counter EscalationCounter,
	logger *zap.Logger,
) *EscalationWorker {
	if config.Schedule == "" {
		config.Schedule = DefaultEscalationWorkerConfig().Schedule
	}
	if config.ScanTimeout <= 0 {
		config.ScanTimeout = DefaultEscalationWorkerConfig().ScanTimeout
	}
	return &EscalationWorker{
		config:         config,
		stepRepo:       stepRepo,
		requestRepo:    requestRepo,
		escalationRepo: escalationRepo,
		dispatcher:     d,
		counter:        counter,
		clock:          func() time.Time { return time.Now().UTC() },
		logger:         logger,
	}
}

// Start schedules the scan
func (w *EscalationWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("escalation worker already running")
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(w.config.Schedule, w.runScheduled); err != nil {
		return fmt.Errorf("invalid escalation schedule %q: %w", w.config.Schedule, err)
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.scheduler = scheduler
	w.isRunning = true
	scheduler.Start()

	w.logger.Info("EscalationWorker started", zap.String("schedule", w.config.Schedule))
	return nil
}

// Stop waits for a running scan and stops the schedule
func (w *EscalationWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	scheduler := w.scheduler
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	<-scheduler.Stop().Done()

	w.logger.Info("EscalationWorker stopped", zap.Int("raised_count", w.RaisedCount()))
	return nil
}

// Name returns the worker name for identification
func (w *EscalationWorker) Name() string {
	return "EscalationWorker"
}

// RaisedCount returns how many escalations this worker announced
func (w *EscalationWorker) RaisedCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.raisedCount
}

// LastScan returns when the last scan ran and how it ended
func (w *EscalationWorker) LastScan() (time.Time, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastScan, w.lastError
}

func (w *EscalationWorker) runScheduled() {
	w.mu.RLock()
	parent := w.ctx
	w.mu.RUnlock()
	if parent == nil || parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, w.config.ScanTimeout)
	defer cancel()

	if _, err := w.Scan(ctx); err != nil {
		w.logger.Error("Escalation scan failed", zap.Error(err))
	}
}

// Scan raises StepEscalationDue for every overdue pending step not announced before
func (w *EscalationWorker) Scan(ctx context.Context) (int, error) {
	now := w.clock()

	steps, err := w.stepRepo.ListPendingWithEscalation(ctx)
	if err != nil {
		w.recordScan(now, 0, err)
		return 0, fmt.Errorf("failed to list escalation candidates: %w", err)
	}

	raised := 0
	for _, step := range steps {
		if ctx.Err() != nil {
			break
		}
		overdue, ok := overdueBy(step, now)
		if !ok {
			continue
		}

		evt, err := w.escalate(ctx, step, overdue, now)
		if err != nil {
			w.logger.Error("Failed to escalate step",
				zap.String("request_id", step.RequestID),
				zap.String("step_id", step.ID),
				zap.Error(err))
			continue
		}
		if evt == nil {
			continue
		}

		raised++
		if w.counter != nil {
			w.counter.EscalationRaised()
		}
		if err := w.dispatcher.Dispatch(ctx, evt); err != nil {
			w.logger.Error("Failed to dispatch escalation",
				zap.String("step_id", step.ID),
				zap.Error(err))
		}
	}

	w.recordScan(now, raised, ctx.Err())
	if raised > 0 {
		w.logger.Info("Escalations raised",
			zap.Int("candidates", len(steps)),
			zap.Int("raised", raised))
	}
	return raised, nil
}

// escalate claims the step's escalation and builds its event, or returns nil if already claimed
func (w *EscalationWorker) escalate(ctx context.Context, step *entity.ApprovalStep, overdue time.Duration, now time.Time) (*event.Event, error) {
	req, err := w.requestRepo.GetByID(ctx, step.RequestID)
	if err != nil {
		return nil, err
	}
	if req == nil || req.Status.IsTerminal() {
		return nil, nil
	}

	claimed, err := w.escalationRepo.MarkNotified(ctx, step.ID, now)
	if err != nil || !claimed {
		return nil, err
	}

	evt := event.New(event.KindStepEscalationDue, step.RequestID, step.ID, SystemActor, req.Status, now).
		WithPayload(event.PayloadApproverID, step.Approver.UserID).
		WithPayload(event.PayloadOverdueHours, strconv.Itoa(int(overdue.Hours())))
	if step.Escalation.EscalateTo != "" {
		evt = evt.WithPayload(event.PayloadEscalateTo, step.Escalation.EscalateTo)
	}
	return evt, nil
}

func (w *EscalationWorker) recordScan(at time.Time, raised int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastScan = at
	w.lastError = err
	w.raisedCount += raised
}

// overdueBy returns how long past its deadline a pending step is
func overdueBy(step *entity.ApprovalStep, now time.Time) (time.Duration, bool) {
	if step.Status != entity.StepStatusPending || step.Escalation == nil || step.ActivatedAt == nil {
		return 0, false
	}
	deadline := step.ActivatedAt.Add(time.Duration(step.Escalation.AfterHours) * time.Hour)
	if now.Before(deadline) {
		return 0, false
	}
	return now.Sub(deadline), true
}
