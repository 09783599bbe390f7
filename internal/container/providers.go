package container

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/approval-flow/internal/application/dispatcher"
	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/application/report"
	"github.com/garyjia/approval-flow/internal/application/service"
	"github.com/garyjia/approval-flow/internal/application/workflow"
	"github.com/garyjia/approval-flow/internal/infrastructure/directory"
	"github.com/garyjia/approval-flow/internal/infrastructure/external/lark"
	"github.com/garyjia/approval-flow/internal/infrastructure/metrics"
	"github.com/garyjia/approval-flow/internal/infrastructure/notify"
	"github.com/garyjia/approval-flow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/approval-flow/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/approval-flow/internal/infrastructure/storage"
	"github.com/garyjia/approval-flow/internal/infrastructure/worker"
	"github.com/garyjia/approval-flow/pkg/database"
	"github.com/garyjia/approval-flow/pkg/utils"
)

// DatabaseBundle holds the raw connection and the transaction-aware wrapper.
type DatabaseBundle struct {
	Raw       *database.DB
	TxManager *sqldb.DB
}

// ProvideDatabase opens the configured database and applies pending migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	raw, err := database.New(database.Config{
		Driver:          database.Dialect(cfg.Driver),
		Path:            cfg.Path,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MigrationsDir != "" {
		if err := database.NewMigrator(raw, logger).RunMigrations(cfg.MigrationsDir); err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DatabaseBundle{
		Raw:       raw,
		TxManager: sqldb.NewDB(raw.DB, raw.Dialect(), logger),
	}, nil
}

// ProvideRepositories creates all repository implementations on db.
func ProvideRepositories(db *sqldb.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Requests:    repository.NewRequestRepository(db, logger),
		Steps:       repository.NewStepRepository(db, logger),
		Templates:   repository.NewTemplateRepository(db, logger),
		History:     repository.NewHistoryRepository(db, logger),
		Directory:   repository.NewDirectoryRepository(db, logger),
		Escalations: repository.NewEscalationRepository(db, logger),
	}, nil
}

// NotifierBundle holds the event sinks built from configuration.
type NotifierBundle struct {
	Redis      *redis.Client
	Publishers []port.EventPublisher
	Sender     port.MessageSender
}

// NotifierDeps holds the configuration needed to build the sinks.
type NotifierDeps struct {
	Redis        *RedisConfig
	Lark         *LarkConfig
	Notification *NotificationConfig
	Logger       *zap.Logger
}

// ProvideNotifiers builds the enabled sinks, each wrapped with retry, breaker and rate limit.
// A Redis server that cannot be reached yet is logged and left to the breaker.
func ProvideNotifiers(deps *NotifierDeps) (*NotifierBundle, error) {
	if deps == nil || deps.Redis == nil || deps.Lark == nil || deps.Notification == nil {
		return nil, fmt.Errorf("notifier dependencies are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	reliable := reliableConfig(deps.Notification)
	bundle := &NotifierBundle{}

	if deps.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     deps.Redis.Addr,
			Password: deps.Redis.Password,
			DB:       deps.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			deps.Logger.Warn("Redis not reachable at startup", zap.String("addr", deps.Redis.Addr), zap.Error(err))
		}
		cancel()

		bundle.Redis = rdb
		bundle.Publishers = append(bundle.Publishers, notify.NewReliablePublisher(
			notify.NewRedisPublisher(rdb, deps.Redis.ChannelPrefix, deps.Logger),
			reliable,
			deps.Logger,
		))
	}

	if deps.Lark.Enabled {
		larkCfg := lark.Config{
			AppID:         deps.Lark.AppID,
			AppSecret:     deps.Lark.AppSecret,
			ReceiveIDType: deps.Lark.ReceiveIDType,
		}
		client := lark.NewSDKClient(larkCfg, deps.Logger)
		bundle.Sender = notify.NewReliableSender("lark",
			lark.NewNotifier(client, larkCfg, deps.Logger),
			reliable,
			deps.Logger,
		)
	}

	return bundle, nil
}

func reliableConfig(cfg *NotificationConfig) notify.ReliableConfig {
	out := notify.DefaultReliableConfig()
	if cfg.RetryAttempts > 0 {
		out.RetryAttempts = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		out.RetryDelay = cfg.RetryDelay
	}
	if cfg.CallTimeout > 0 {
		out.CallTimeout = cfg.CallTimeout
	}
	if cfg.BreakerFailures > 0 {
		out.BreakerFailures = cfg.BreakerFailures
	}
	if cfg.BreakerTimeout > 0 {
		out.BreakerTimeout = cfg.BreakerTimeout
	}
	if cfg.RatePerSecond > 0 {
		out.RatePerSecond = cfg.RatePerSecond
	}
	if cfg.Burst > 0 {
		out.Burst = cfg.Burst
	}
	return out
}

// ProvideStorage creates the report file storage, or nil when no output directory is configured.
func ProvideStorage(cfg *ReportConfig, logger *zap.Logger) (port.FileStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("report config is required")
	}
	if cfg.OutputDir == "" {
		return nil, nil
	}
	return storage.NewLocalFileStorage(cfg.OutputDir, logger), nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKVLogger(logger)),
	), nil
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine with the directory resolver.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.Engine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []workflow.EngineOption{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(utils.NewKVLogger(deps.Logger)),
	}
	if deps.Metrics != nil {
		opts = append(opts, workflow.WithRecorder(deps.Metrics))
	}

	return workflow.NewEngine(
		workflow.Repositories{
			Requests:  deps.Repos.Requests,
			Steps:     deps.Repos.Steps,
			Templates: deps.Repos.Templates,
			History:   deps.Repos.History,
		},
		deps.TxManager,
		directory.NewResolver(deps.Repos.Directory, deps.Logger),
		opts...,
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Notifiers  *NotifierBundle
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideServices creates all application services and subscribes
// the notification service to the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := utils.NewKVLogger(deps.Logger)

	var (
		publishers []port.EventPublisher
		sender     port.MessageSender
	)
	if deps.Notifiers != nil {
		publishers = deps.Notifiers.Publishers
		sender = deps.Notifiers.Sender
	}

	notification := service.NewNotificationService(
		deps.Repos.Requests,
		deps.Repos.Steps,
		deps.Repos.Directory,
		publishers,
		sender,
		serviceLogger,
	)
	notification.Register(deps.Dispatcher)

	return &ServiceBundle{
		Requests: service.NewRequestService(
			deps.Repos.Requests,
			deps.Repos.Steps,
			deps.Repos.History,
			deps.Repos.Directory,
			deps.TxManager,
			serviceLogger,
		),
		Templates: service.NewTemplateService(
			deps.Repos.Templates,
			deps.TxManager,
			serviceLogger,
		),
		Notification: notification,
	}, nil
}

// ProvideReport creates the ledger workbook builder and, when storage is
// configured, archives the ledger of every completed request.
func ProvideReport(engine workflow.Engine, repos *RepositoryBundle, files port.FileStorage, d dispatcher.Dispatcher, logger *zap.Logger) (*report.LedgerReport, error) {
	if engine == nil {
		return nil, fmt.Errorf("workflow engine is required")
	}
	if repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	ledgerReport := report.NewLedgerReport(engine, repos.History, files, logger)
	if d != nil {
		ledgerReport.ArchiveOnCompletion(d)
	}
	return ledgerReport, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Repos         *RepositoryBundle
	Dispatcher    dispatcher.Dispatcher
	Metrics       *metrics.Metrics
	EscalationCfg *EscalationConfig
	Logger        *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// Returns the manager with all workers registered but not started, and the
// escalation worker when it is enabled.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, *worker.EscalationWorker, error) {
	if deps == nil {
		return nil, nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Repos == nil {
		return nil, nil, fmt.Errorf("repositories are required")
	}
	if deps.EscalationCfg == nil {
		return nil, nil, fmt.Errorf("escalation config is required")
	}
	if deps.Logger == nil {
		return nil, nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)
	if !deps.EscalationCfg.Enabled {
		return manager, nil, nil
	}
	if deps.Dispatcher == nil {
		return nil, nil, fmt.Errorf("dispatcher is required")
	}

	var counter worker.EscalationCounter
	if deps.Metrics != nil {
		counter = deps.Metrics
	}

	escalation := worker.NewEscalationWorker(
		worker.EscalationWorkerConfig{
			Schedule:    deps.EscalationCfg.Schedule,
			ScanTimeout: deps.EscalationCfg.ScanTimeout,
		},
		deps.Repos.Steps,
		deps.Repos.Requests,
		deps.Repos.Escalations,
		deps.Dispatcher,
		counter,
		deps.Logger,
	)
	manager.Register(escalation)

	return manager, escalation, nil
}
