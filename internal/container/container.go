package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/approval-flow/internal/application/dispatcher"
	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/application/report"
	"github.com/garyjia/approval-flow/internal/application/service"
	"github.com/garyjia/approval-flow/internal/application/workflow"
	"github.com/garyjia/approval-flow/internal/infrastructure/metrics"
	"github.com/garyjia/approval-flow/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/approval-flow/internal/infrastructure/worker"
	"github.com/garyjia/approval-flow/pkg/database"
	"github.com/garyjia/approval-flow/pkg/utils"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config  *Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	// Infrastructure - Data
	rawDB        *database.DB
	db           *sqldb.DB
	repositories *RepositoryBundle

	// Infrastructure - Sinks
	notifiers *NotifierBundle
	redis     *redis.Client

	// Infrastructure - Storage
	fileStorage port.FileStorage

	// Application
	dispatcher dispatcher.Dispatcher
	workflow   workflow.Engine
	services   *ServiceBundle
	report     *report.LedgerReport

	// Workers
	workers    *worker.WorkerManager
	escalation *worker.EscalationWorker

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Requests    port.RequestRepository
	Steps       port.StepRepository
	Templates   port.TemplateRepository
	History     port.HistoryRepository
	Directory   port.DirectoryRepository
	Escalations port.EscalationRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Requests     service.RequestService
	Templates    service.TemplateService
	Notification service.NotificationService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Option configures the container
type Option func(*Container)

// WithMetrics records engine and escalation metrics on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Container) {
		c.metrics = m
	}
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Event sinks (Redis, Lark)
// 3. Report storage
// 4. Event dispatcher and workflow engine
// 5. Application services and report builder
// 6. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize event sinks
	if err := c.initNotifiers(); err != nil {
		return fmt.Errorf("failed to initialize notifiers: %w", err)
	}
	c.logger.Info("Notifiers initialized",
		zap.Int("publishers", len(c.notifiers.Publishers)),
		zap.Bool("chat", c.notifiers.Sender != nil))

	// Step 3: Initialize storage
	if err := c.initStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.logger.Info("Storage initialized")

	// Step 4: Initialize dispatcher and workflow engine
	if err := c.initDispatcherAndWorkflow(); err != nil {
		return fmt.Errorf("failed to initialize dispatcher and workflow: %w", err)
	}
	c.logger.Info("Dispatcher and workflow engine initialized")

	// Step 5: Initialize application services
	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	// Step 6: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started", zap.Strings("workers", c.workers.Names()))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers (reverse of step 6)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Step 2: Close dispatcher so queued notifications drain (reverse of step 4)
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 3: Close the Redis connection pool (reverse of step 2)
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Error("Failed to close redis", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		} else {
			c.logger.Info("Redis closed")
		}
	}

	// Step 4: Close database (reverse of step 1)
	if c.rawDB != nil {
		if err := c.rawDB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Check database
	if c.rawDB != nil {
		if err := c.rawDB.PingContext(ctx); err != nil {
			set("database", ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true, Message: string(c.rawDB.Dialect())})
		}
	} else {
		set("database", ComponentHealth{Healthy: false, Message: "not initialized"})
	}

	// Redis is optional; an outage only degrades delivery
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			status.Components["redis"] = ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)}
		} else {
			status.Components["redis"] = ComponentHealth{Healthy: true}
		}
	}

	// Check workers
	if c.workers != nil {
		healthy := c.workers.GetWorkerCount() == 0 || c.workers.IsRunning()
		set("workers", ComponentHealth{
			Healthy: healthy,
			Message: fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()),
		})
	} else {
		set("workers", ComponentHealth{Healthy: false, Message: "not initialized"})
	}

	if c.escalation != nil {
		at, err := c.escalation.LastScan()
		h := ComponentHealth{Healthy: err == nil}
		switch {
		case err != nil:
			h.Message = fmt.Sprintf("last scan failed: %v", err)
		case at.IsZero():
			h.Message = "no scan yet"
		default:
			h.Message = fmt.Sprintf("last scan %s, raised %d", at.Format(time.RFC3339), c.escalation.RaisedCount())
		}
		status.Components["escalation"] = h
	}

	// Check dispatcher
	if c.dispatcher != nil {
		set("dispatcher", ComponentHealth{Healthy: true})
	} else {
		set("dispatcher", ComponentHealth{Healthy: false, Message: "not initialized"})
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.rawDB = dbBundle.Raw
	c.db = dbBundle.TxManager

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		c.rawDB.Close()
		return err
	}

	c.repositories = repos
	return nil
}

// initNotifiers builds the Redis publisher and the Lark sender when enabled.
func (c *Container) initNotifiers() error {
	notifiers, err := ProvideNotifiers(&NotifierDeps{
		Redis:        &c.config.Redis,
		Lark:         &c.config.Lark,
		Notification: &c.config.Notification,
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}

	c.notifiers = notifiers
	c.redis = notifiers.Redis
	return nil
}

// initStorage initializes report file storage using providers.
func (c *Container) initStorage() error {
	fileStorage, err := ProvideStorage(&c.config.Report, c.logger)
	if err != nil {
		return err
	}

	c.fileStorage = fileStorage
	return nil
}

// initDispatcherAndWorkflow initializes the event dispatcher and workflow engine using providers.
func (c *Container) initDispatcherAndWorkflow() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Metrics:    c.metrics,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.workflow = engine

	return nil
}

// initServices initializes all application services and the report builder.
func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Notifiers:  c.notifiers,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services

	ledgerReport, err := ProvideReport(c.workflow, c.repositories, c.fileStorage, c.dispatcher, c.logger)
	if err != nil {
		return err
	}
	c.report = ledgerReport

	return nil
}

// initWorkers initializes and starts all background workers using providers.
func (c *Container) initWorkers() error {
	workers, escalation, err := ProvideWorkers(&WorkerDeps{
		Repos:         c.repositories,
		Dispatcher:    c.dispatcher,
		Metrics:       c.metrics,
		EscalationCfg: &c.config.Escalation,
		Logger:        c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers
	c.escalation = escalation

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// FileStorage returns the report storage, nil when disabled.
func (c *Container) FileStorage() port.FileStorage {
	return c.fileStorage
}

// MessageSender returns the chat sender, nil when Lark is disabled.
func (c *Container) MessageSender() port.MessageSender {
	if c.notifiers == nil {
		return nil
	}
	return c.notifiers.Sender
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() workflow.Engine {
	return c.workflow
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Report returns the ledger workbook builder.
func (c *Container) Report() *report.LedgerReport {
	return c.report
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

var (
	_ service.Logger    = (*utils.KVLogger)(nil)
	_ workflow.Logger   = (*utils.KVLogger)(nil)
	_ dispatcher.Logger = (*utils.KVLogger)(nil)
)
