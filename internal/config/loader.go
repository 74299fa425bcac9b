package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig and tells operators which stage failed.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// FOO_SSM_PARAM=/path means "load FOO from SSM parameter /path".
const ssmParamSuffix = "_SSM_PARAM"

const localEnv = "local"

type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig loads and validates configuration:
//  1. forces the process timezone to UTC (reminder times are converted
//     explicitly through TARGET_TIMEZONE, never through time.Local);
//  2. loads .env when present;
//  3. outside APP_ENV=local, resolves *_SSM_PARAM pointers through provider;
//  4. populates Config with envconfig and attaches build info;
//  5. validates struct tags and cross-field rules.
//
// provider may be nil when no SSM pointers are present.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv never overrides variables already present in the environment.
	_ = godotenv.Load()

	appEnv, _ := deps.lookupEnv("APP_ENV")
	if appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}
	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if err := validateSemantics(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateSemantics covers rules struct tags cannot express.
func validateSemantics(cfg *Config) error {
	if cfg.Environment == "prod" && cfg.Push.Provider == "log" {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "PUSH_PROVIDER=log is not allowed in prod; set PUSH_PROVIDER=fcm with FCM_PROJECT_ID and FCM_ACCESS_TOKEN",
		}
	}
	if len(cfg.Push.TargetRoles) == 0 {
		return &ConfigError{
			Type:    ErrMissingEnv,
			Message: "PUSH_TARGET_ROLES must list at least one role",
		}
	}
	if cfg.Dedup.Window <= 0 || cfg.Dedup.Window >= time.Minute {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("DEDUP_WINDOW must be between 0 and 1m, got %s", cfg.Dedup.Window),
		}
	}
	if cfg.Scheduling.PollInterval <= 0 || cfg.Scheduling.PollInterval > cfg.Dedup.Window {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("POLL_INTERVAL (%s) must be positive and no longer than DEDUP_WINDOW (%s) or slots can be skipped", cfg.Scheduling.PollInterval, cfg.Dedup.Window),
		}
	}
	return nil
}

// resolveSSMParams replaces every FOO_SSM_PARAM pointer with FOO=<value>.
// Variables already set directly keep priority over SSM.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	pathToTarget := make(map[string]string)
	var paths []string

	for _, entry := range deps.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, ssmParamSuffix) || path == "" {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		if _, dup := pathToTarget[path]; !dup {
			paths = append(paths, path)
		}
		pathToTarget[path] = target
	}

	if len(paths) == 0 {
		return nil
	}

	if provider == nil {
		targets := make([]string, 0, len(paths))
		for _, p := range paths {
			targets = append(targets, pathToTarget[p])
		}
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required for non-local environments (need to resolve: %s)", strings.Join(targets, ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, path := range paths {
		value, ok := resolved[path]
		if !ok {
			missing = append(missing, pathToTarget[path])
			continue
		}
		if err := deps.setEnv(pathToTarget[path], value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", pathToTarget[path]),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
