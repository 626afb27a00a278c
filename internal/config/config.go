package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Idempotency  IdempotencyConfig
	Projector    ProjectorConfig
	Paging       PagingConfig
	Notification NotificationConfig
	River        RiverConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `env:"APP_NAME" envDefault:"support-ticket-service"`
	Env                   string `env:"APP_ENV" envDefault:"development"`
	Host                  string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port                  string `env:"APP_PORT" envDefault:"8080"`
	Version               string `env:"APP_VERSION" envDefault:"dev"`
	RequestTimeoutSeconds int    `env:"HTTP_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
}

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory stores.
type PostgresConfig struct {
	DSN            string `env:"POSTGRES_DSN"`
	MaxConns       int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	MinConns       int32  `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	RunMigrations  bool   `env:"POSTGRES_RUN_MIGRATIONS" envDefault:"true"`
	MigrationsDir  string `env:"POSTGRES_MIGRATIONS_DIR" envDefault:"migrations"`
	ConnMaxIdleSec int32  `env:"POSTGRES_CONN_MAX_IDLE_SECONDS" envDefault:"30"`
	ConnMaxLifeSec int32  `env:"POSTGRES_CONN_MAX_LIFE_SECONDS" envDefault:"300"`

	// SlowQuery is the duration above which statements are logged at warn.
	// Zero disables the query tracer.
	SlowQuery       time.Duration `env:"POSTGRES_SLOW_QUERY" envDefault:"250ms"`
	ApplicationName string        `env:"POSTGRES_APPLICATION_NAME" envDefault:"ticket-lifecycle"`
}

// RedisConfig holds Redis connection values. An empty address selects the
// in-memory receipt store.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// DialTimeout also bounds the startup ping.
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"3s"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// AuthConfig defines bearer token parameters. When Required is false,
// requests without a token act as the anonymous actor.
type AuthConfig struct {
	JWTSecret             string `env:"AUTH_JWT_SECRET" envDefault:"dev-secret"`
	Issuer                string `env:"AUTH_ISSUER" envDefault:"support-ticket-service"`
	AccessTokenTTLMinutes int    `env:"AUTH_ACCESS_TOKEN_TTL_MINUTES" envDefault:"60"`
	Required              bool   `env:"AUTH_REQUIRED" envDefault:"false"`
}

// IdempotencyConfig tunes receipt handling for ticket creation.
type IdempotencyConfig struct {
	ReceiptTTL   time.Duration `env:"IDEMPOTENCY_RECEIPT_TTL" envDefault:"24h"`
	WaitAttempts int           `env:"IDEMPOTENCY_WAIT_ATTEMPTS" envDefault:"5"`
	WaitInterval time.Duration `env:"IDEMPOTENCY_WAIT_INTERVAL" envDefault:"100ms"`
}

// ProjectorConfig tunes the read-model projector.
type ProjectorConfig struct {
	SubscriptionName string        `env:"PROJECTOR_SUBSCRIPTION" envDefault:"ticket-read-models"`
	BatchSize        int           `env:"PROJECTOR_BATCH_SIZE" envDefault:"256"`
	PollInterval     time.Duration `env:"PROJECTOR_POLL_INTERVAL" envDefault:"2s"`
	RetryBackoff     time.Duration `env:"PROJECTOR_RETRY_BACKOFF" envDefault:"5s"`
	LeaseTTL         time.Duration `env:"PROJECTOR_LEASE_TTL" envDefault:"30s"`
	Embedded         bool          `env:"PROJECTOR_EMBEDDED" envDefault:"false"`
}

// PagingConfig configures query paging.
type PagingConfig struct {
	CursorSecret string `env:"CURSOR_SECRET" envDefault:"dev-cursor-secret"`
}

// NotificationConfig holds outbound notification endpoints.
type NotificationConfig struct {
	EmailFrom      string        `env:"NOTIFY_EMAIL_FROM" envDefault:"noreply@example.com"`
	WebhookURL     string        `env:"NOTIFY_WEBHOOK_URL"`
	WebhookTimeout time.Duration `env:"NOTIFY_WEBHOOK_TIMEOUT" envDefault:"5s"`
}

// RiverConfig configures the background job client.
type RiverConfig struct {
	MaxWorkers                  int           `env:"RIVER_MAX_WORKERS" envDefault:"10"`
	CompletedJobRetentionPeriod time.Duration `env:"RIVER_COMPLETED_JOB_RETENTION" envDefault:"24h"`
}

// Load reads configuration from the optional dotenv files and environment
// variables, applying defaults where possible.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.App.Port) == "" {
		errs = append(errs, errors.New("APP_PORT must not be empty"))
	}
	if c.Idempotency.ReceiptTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_RECEIPT_TTL must be positive"))
	}
	if c.Idempotency.WaitAttempts < 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_WAIT_ATTEMPTS must not be negative"))
	}
	if f := strings.ToLower(c.Logger.Format); f != "json" && f != "console" {
		errs = append(errs, errors.New("LOG_FORMAT must be json or console"))
	}
	if strings.TrimSpace(c.Projector.SubscriptionName) == "" {
		errs = append(errs, errors.New("PROJECTOR_SUBSCRIPTION must not be empty"))
	}
	if c.Projector.BatchSize <= 0 {
		errs = append(errs, errors.New("PROJECTOR_BATCH_SIZE must be positive"))
	}
	if c.Projector.PollInterval <= 0 || c.Projector.RetryBackoff <= 0 || c.Projector.LeaseTTL <= 0 {
		errs = append(errs, errors.New("projector intervals must be positive"))
	}
	if c.Auth.Required && strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required when AUTH_REQUIRED is set"))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the lifetime of issued tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// InMemory reports whether no Postgres DSN is configured.
func (p PostgresConfig) InMemory() bool {
	return strings.TrimSpace(p.DSN) == ""
}
