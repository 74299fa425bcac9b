// Package config defines the process configuration for the reminder service.
// Configuration is loaded once at startup (Lambda cold start or binary boot)
// and treated as immutable afterwards.
//
// Resolution order:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Missing required values or invalid formats abort startup.
package config

import (
	"fmt"
	"time"

	"habitpulse/internal/types"
)

// SecretString is an alias for types.SecretString so config structs can
// declare redacted fields without importing types directly.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
// Sub-components receive only the subsets they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"habitpulse-reminders"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Push          PushConfig
	Scheduling    SchedulingConfig
	Dedup         DedupConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`

	// AutoMigrate applies the embedded schema when the pool opens.
	AutoMigrate bool `envconfig:"DB_AUTO_MIGRATE" default:"false"`
}

// AWSConfig holds AWS resource identifiers.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// DeliveryQueueURL receives due tasks. Empty means tasks are invoked
	// in-process by the relay (local mode).
	DeliveryQueueURL string `envconfig:"DELIVERY_QUEUE_URL" validate:"omitempty,url"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// PushConfig configures the FCM HTTP v1 transport and fan-out.
type PushConfig struct {
	// Provider selects the transport: "fcm" or "log" (local runs only).
	Provider    string        `envconfig:"PUSH_PROVIDER" default:"fcm" validate:"oneof=fcm log"`
	ProjectID   string        `envconfig:"FCM_PROJECT_ID" validate:"required_if=Provider fcm"`
	AccessToken SecretString  `envconfig:"FCM_ACCESS_TOKEN" validate:"required_if=Provider fcm"`
	BaseURL     string        `envconfig:"FCM_BASE_URL" default:"https://fcm.googleapis.com" validate:"url"`
	BatchSize   int           `envconfig:"PUSH_BATCH_SIZE" default:"500" validate:"min=1,max=500"`
	Concurrency int           `envconfig:"PUSH_CONCURRENCY" default:"10" validate:"min=1,max=100"`
	TargetRoles []string      `envconfig:"PUSH_TARGET_ROLES" default:"user"`
	Timeout     time.Duration `envconfig:"PUSH_TIMEOUT" default:"10s"`
}

// SchedulingConfig configures occurrence computation and the task queue.
type SchedulingConfig struct {
	TargetTimezone string `envconfig:"TARGET_TIMEZONE" default:"Asia/Karachi" validate:"required,timezone"`

	// CallbackURL is the delivery entrypoint the queue posts to when a task fires.
	CallbackURL       string       `envconfig:"CALLBACK_URL" validate:"required,url"`
	CallbackAuthToken SecretString `envconfig:"CALLBACK_AUTH_TOKEN" validate:"required,min=16"`

	SendOnCreate         bool          `envconfig:"SEND_ON_CREATE" default:"true"`
	RelayLookahead       time.Duration `envconfig:"RELAY_LOOKAHEAD" default:"15m"`
	RelayBatchSize       int           `envconfig:"RELAY_BATCH_SIZE" default:"100" validate:"min=1"`
	DeliveryLogRetention time.Duration `envconfig:"DELIVERY_LOG_RETENTION" default:"720h"`
	PollInterval         time.Duration `envconfig:"POLL_INTERVAL" default:"15s"`
}

// Location resolves TargetTimezone. Validation already guarantees it loads.
func (c SchedulingConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TargetTimezone)
	if err != nil {
		return nil, fmt.Errorf("loading target timezone %q: %w", c.TargetTimezone, err)
	}
	return loc, nil
}

// DedupConfig configures the polling runtime's duplicate guard.
type DedupConfig struct {
	Window   time.Duration `envconfig:"DEDUP_WINDOW" default:"45s"`
	Backend  string        `envconfig:"DEDUP_BACKEND" default:"memory" validate:"oneof=memory redis"`
	RedisURL SecretString  `envconfig:"REDIS_URL" validate:"required_if=Backend redis"`
}

// SecurityConfig holds credentials for the admin surface.
type SecurityConfig struct {
	// AdminAPIKeyHash is a bcrypt hash of the admin bearer key.
	AdminAPIKeyHash    SecretString `envconfig:"ADMIN_API_KEY_HASH" validate:"required"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"HabitPulse"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
