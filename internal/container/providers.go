package container

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/event"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/openai"
	"github.com/garyjia/expense-approval/internal/infrastructure/lock"
	"github.com/garyjia/expense-approval/internal/infrastructure/notify"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/expense-approval/internal/infrastructure/realtime"
	"github.com/garyjia/expense-approval/internal/infrastructure/report"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	"github.com/garyjia/expense-approval/migrations"
	"github.com/garyjia/expense-approval/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Raw            *database.DB
	TransactionMgr *sqldb.DB
}

// ProvideDatabase opens the configured database and applies the embedded migrations.
func ProvideDatabase(cfg *database.Config, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	raw, err := database.New(*cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(raw, logger).Run(migrations.FS); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Raw:            raw,
		TransactionMgr: sqldb.NewDB(raw, logger),
	}, nil
}

// ProvideRepositories creates all repositories on top of db.
func ProvideRepositories(db *sqldb.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &RepositoryBundle{
		Expense:      repository.NewExpenseRepository(db, logger),
		Workflow:     repository.NewWorkflowRepository(db, logger),
		Notification: repository.NewNotificationRepository(db, logger),
		Outbox:       repository.NewOutboxRepository(db, logger),
	}, nil
}

// ProvideRedis creates the shared Redis client, or nil when Redis is disabled.
func ProvideRedis(cfg *RedisConfig) redis.UniversalClient {
	if !cfg.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// ProvideLocker creates the per-expense locker for the configured backend.
func ProvideLocker(cfg *LockerConfig, client redis.UniversalClient, logger *zap.Logger) (port.EntityLocker, error) {
	switch cfg.Backend {
	case LockerRedis:
		return lock.NewRedisLocker(client, cfg.Redis, logger)
	case LockerMemory, "":
		return lock.NewMemoryLocker(), nil
	default:
		return nil, fmt.Errorf("unsupported locker backend %q", cfg.Backend)
	}
}

// ProvideAdvisor creates the OpenAI submission advisor, or nil when disabled.
func ProvideAdvisor(cfg *OpenAIConfig, logger *zap.Logger) (port.ExpenseAdvisor, error) {
	if !cfg.Enabled {
		logger.Info("OpenAI advisor disabled")
		return nil, nil
	}

	prompts := openai.DefaultPrompts()
	if cfg.PromptsPath != "" {
		loaded, err := openai.LoadPrompts(cfg.PromptsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompts: %w", err)
		}
		prompts = loaded
	}

	return openai.NewAdvisor(cfg.Client, prompts, logger), nil
}

// ProvideSinks creates every enabled notification sink. The log sink is always present.
func ProvideSinks(cfg *Config, client redis.UniversalClient, logger *zap.Logger) []port.NotificationSink {
	sinks := []port.NotificationSink{notify.NewLogSink(logger)}

	if client != nil {
		sinks = append(sinks, realtime.NewRedisPublisher(client, cfg.Redis.ChannelPrefix, logger))
	}

	if cfg.Lark.Enabled {
		sdk := infraLark.NewSDKClient(cfg.Lark.Client, logger)
		messenger := infraLark.NewMessenger(sdk, cfg.Lark.Client.ReceiveIDType, logger)
		sinks = append(sinks, notify.NewLarkSink(messenger))
	}

	return sinks
}

// ProvideDispatcher creates the event dispatcher and subscribes every sink
// to persisted notifications.
func ProvideDispatcher(sinks []port.NotificationSink, logger *zap.Logger) dispatcher.Dispatcher {
	disp := dispatcher.NewDispatcher(dispatcher.WithLogger(NewLoggerAdapter(logger)))
	for _, sink := range sinks {
		disp.SubscribeNamed(event.TypeNotificationCreated, sink.Name(), worker.SinkHandler(sink))
	}
	return disp
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Locker     port.EntityLocker
	Advisor    port.ExpenseAdvisor
	Dispatcher dispatcher.Dispatcher
	Config     *Config
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}

	log := NewLoggerAdapter(deps.Logger)
	notifications := service.NewNotificationService(deps.Repos.Outbox, deps.Repos.Notification, log)

	return &ServiceBundle{
		Expense: service.NewExpenseService(
			deps.Repos.Expense, deps.Advisor, deps.Locker, deps.TxManager, deps.Dispatcher,
			deps.Config.Expense, log,
		),
		Approval: service.NewApprovalService(
			deps.Repos.Expense, notifications, deps.Locker, deps.TxManager, deps.Dispatcher, log,
		),
		Workflow: service.NewWorkflowService(
			deps.Repos.Expense, deps.Repos.Workflow, notifications, deps.Locker, deps.TxManager,
			deps.Dispatcher, deps.Config.Ordering, log,
		),
		Notification: notifications,
		Report:       service.NewReportService(deps.Repos.Expense, report.NewExcelWriter(deps.Logger), log),
	}, nil
}

// ProvideWorkers creates the worker manager with the outbox relay registered.
func ProvideWorkers(cfg *worker.OutboxRelayConfig, repos *RepositoryBundle, disp dispatcher.Dispatcher, logger *zap.Logger) *worker.Manager {
	manager := worker.NewManager(logger)
	manager.Register(worker.NewOutboxRelay(*cfg, repos.Outbox, repos.Notification, disp, logger))
	return manager
}
