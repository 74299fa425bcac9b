// Package app wires the process-level dependencies shared by the cmd
// binaries: logger, configuration, the database pool, AWS clients and the
// reminder service graph built on top of them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"habitpulse/internal/config"
	"habitpulse/internal/db"
	"habitpulse/internal/external"
	"habitpulse/internal/notifications"
	"habitpulse/internal/notifications/dedup"
	"habitpulse/internal/queue"
	"habitpulse/internal/types"
)

// NewLogger creates a JSON slog.Logger for the given level name.
// Unknown names fall back to info.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// LoadConfig resolves *_SSM_PARAM pointers in the function's region and
// loads Config. The SSM client is created lazily, so local runs never
// touch AWS.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(SecretProvider())
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// SecretProvider resolves *_SSM_PARAM pointers from SSM, or from other
// environment variables when SECRET_PROVIDER=env (CI and containers that
// inject secrets under their own names).
func SecretProvider() config.SecretProvider {
	if os.Getenv("SECRET_PROVIDER") == "env" {
		return config.NewEnvVarProvider()
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"))
}

// IsLambda reports whether the process runs inside the AWS Lambda runtime.
func IsLambda() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// OpenPool creates the pgx pool, verifies connectivity and, with
// DB_AUTO_MIGRATE, applies the schema.
func OpenPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := db.ApplySchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return pool, nil
}

// LoadAWS loads the SDK configuration. AWS_ENDPOINT_URL, when set, points
// every client at LocalStack.
func LoadAWS(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.EndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.EndpointURL))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config (region=%s): %w", cfg.Region, err)
	}
	return awsCfg, nil
}

// Metrics covers both the delivery telemetry and the per-request API
// latency recorded by core.
type Metrics interface {
	notifications.Metrics
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// NewMetrics publishes to CloudWatch when METRICS_ENABLED is set.
func NewMetrics(awsCfg aws.Config, cfg config.ObservabilityConfig, logger *slog.Logger) Metrics {
	if !cfg.MetricsEnabled {
		return notifications.NopMetrics{}
	}
	return notifications.NewCloudWatchMetrics(
		cloudwatch.NewFromConfig(awsCfg),
		cfg.MetricNamespace,
		types.NewSlogAdapter(logger),
	)
}

// NewPushSender returns the FCM transport, or the logging stub when
// PUSH_PROVIDER=log.
func NewPushSender(cfg config.PushConfig, logger *slog.Logger) types.PushSender {
	if cfg.Provider == "log" {
		return external.NewLogPushSender(logger)
	}
	return external.NewFCMClient(
		external.FCMConfig{
			BaseURL:     cfg.BaseURL,
			ProjectID:   cfg.ProjectID,
			Concurrency: cfg.Concurrency,
			Timeout:     cfg.Timeout,
		},
		external.StaticTokenSource(cfg.AccessToken),
		logger,
	)
}

// Services is the reminder domain graph shared by the API, the scheduler
// and the poller.
type Services struct {
	Notifications *db.NotificationRepository
	Users         *db.UserRepository
	DeliveryLog   *db.DeliveryLogRepository
	Tasks         *db.TaskRepository
	Queue         *queue.DurableQueue
	Scheduler     *notifications.Scheduler
	Broadcaster   *notifications.Broadcaster
	Executor      *notifications.Executor
	Bridge        *notifications.Bridge
}

func NewServices(conn db.DBTX, cfg *config.Config, sender types.PushSender, metrics notifications.Metrics, logger *slog.Logger) (*Services, error) {
	loc, err := cfg.Scheduling.Location()
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = notifications.NopMetrics{}
	}
	typed := types.NewSlogAdapter(logger)

	s := &Services{
		Notifications: db.NewNotificationRepository(conn),
		Users:         db.NewUserRepository(conn),
		DeliveryLog:   db.NewDeliveryLogRepository(conn),
		Tasks:         db.NewTaskRepository(conn),
	}
	s.Queue = queue.NewDurableQueue(s.Tasks, logger)
	s.Scheduler = notifications.NewScheduler(
		s.Queue,
		notifications.SchedulerConfig{
			Location:    loc,
			CallbackURL: cfg.Scheduling.CallbackURL,
			AuthToken:   cfg.Scheduling.CallbackAuthToken,
		},
		types.RealClock{},
		metrics,
		typed,
	)
	s.Broadcaster = notifications.NewBroadcaster(
		s.Users,
		sender,
		s.DeliveryLog,
		metrics,
		notifications.BroadcasterConfig{
			TargetRoles: cfg.Push.TargetRoles,
			BatchSize:   cfg.Push.BatchSize,
		},
		typed,
	)
	s.Executor = notifications.NewExecutor(s.Notifications, s.Broadcaster, s.Scheduler, s.DeliveryLog, typed)
	s.Bridge = notifications.NewBridge(s.Scheduler, s.Broadcaster, cfg.Scheduling.SendOnCreate, typed)
	return s, nil
}

// NewSink picks the dispatch sink for the relay and the lookahead that
// suits it. With a delivery queue configured, tasks go to SQS ahead of
// time and SQS delays them; without one, the relay invokes the callback
// in-process and only once a task is due.
func NewSink(awsCfg aws.Config, cfg *config.Config, tasks queue.TaskStore, logger *slog.Logger) (queue.Sink, time.Duration) {
	if cfg.AWS.DeliveryQueueURL != "" {
		sink := queue.NewSQSSink(sqs.NewFromConfig(awsCfg), cfg.AWS.DeliveryQueueURL, types.RealClock{}, logger)
		return sink, cfg.Scheduling.RelayLookahead
	}
	worker := queue.NewWorker(tasks, external.NewCallbackClient(0), types.RealClock{}, logger)
	return queue.NewDirectSink(worker), 0
}

func NewRelay(awsCfg aws.Config, cfg *config.Config, tasks queue.TaskStore, logger *slog.Logger) *queue.Relay {
	sink, lookahead := NewSink(awsCfg, cfg, tasks, logger)
	return queue.NewRelay(tasks, sink, types.RealClock{}, queue.RelayConfig{
		Lookahead: lookahead,
		BatchSize: cfg.Scheduling.RelayBatchSize,
	}, logger)
}

// NewDedupStore returns the configured dedup store and its close func.
func NewDedupStore(cfg config.DedupConfig) (dedup.Store, func() error, error) {
	if cfg.Backend == "redis" {
		store, client, err := dedup.NewRedisStoreFromURL(cfg.RedisURL.Unmask())
		if err != nil {
			return nil, nil, fmt.Errorf("connecting dedup redis: %w", err)
		}
		return store, client.Close, nil
	}
	return dedup.NewMemoryStore(), func() error { return nil }, nil
}
