package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	TAT          TATConfig
	Escalation   EscalationConfig
	Outbox       OutboxConfig
	Idempotency  IdempotencyConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	KeyPrefix       string
	StatusCacheTTLS int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
}

// AuthConfig defines how identity provider tokens are verified.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// TATConfig describes the business calendar and default SLA budgets.
type TATConfig struct {
	Timezone          string
	CalendarFile      string
	DefaultSLAHours   float64
	DefaultAckHours   float64
	PauseStatuses     []string
	OverdueSweepLimit int
}

// EscalationConfig drives the automatic sweep.
type EscalationConfig struct {
	SweepSpec       string
	CooldownMinutes int
	Enabled         bool
}

// OutboxConfig tunes the dispatcher.
type OutboxConfig struct {
	Enabled            bool
	PollIntervalMS     int
	BatchSize          int
	MaxAttempts        int
	BackoffBaseSeconds int
	BackoffMaxSeconds  int
	StaleAfterSeconds  int
}

// IdempotencyConfig controls request deduplication.
type IdempotencyConfig struct {
	TTLHours  int
	PurgeSpec string
}

// NotificationConfig holds sender settings.
type NotificationConfig struct {
	EmailFrom     string
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SlackToken    string
	SlackAPIBase  string
	SlackChannel  string
	KafkaBrokers  []string
	KafkaTopic    string
	PortalBaseURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-sla"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:        os.Getenv("REDIS_PASSWORD"),
			DB:              redisDB,
			KeyPrefix:       getEnv("REDIS_KEY_PREFIX", "ticket-sla:"),
			StatusCacheTTLS: getEnvAsInt("STATUS_CACHE_TTL_SECONDS", 60),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnv("APP_ENV", "development") != "production",
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		TAT: TATConfig{
			Timezone:          getEnv("TAT_TIMEZONE", "UTC"),
			CalendarFile:      os.Getenv("TAT_CALENDAR_FILE"),
			DefaultSLAHours:   getEnvAsFloat("TAT_DEFAULT_SLA_HOURS", 48),
			DefaultAckHours:   getEnvAsFloat("TAT_DEFAULT_ACK_HOURS", 4),
			PauseStatuses:     getEnvAsList("TAT_PAUSE_STATUSES", []string{"awaiting_student_response"}),
			OverdueSweepLimit: getEnvAsInt("TAT_OVERDUE_SWEEP_LIMIT", 200),
		},
		Escalation: EscalationConfig{
			SweepSpec:       getEnv("ESCALATION_SWEEP_SPEC", "@every 5m"),
			CooldownMinutes: getEnvAsInt("ESCALATION_COOLDOWN_MINUTES", 60),
			Enabled:         getEnvAsBool("ESCALATION_SWEEP_ENABLED", true),
		},
		Outbox: OutboxConfig{
			Enabled:            getEnvAsBool("OUTBOX_DISPATCHER_ENABLED", true),
			PollIntervalMS:     getEnvAsInt("OUTBOX_POLL_INTERVAL_MS", 1000),
			BatchSize:          getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
			MaxAttempts:        getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 5),
			BackoffBaseSeconds: getEnvAsInt("OUTBOX_BACKOFF_BASE_SECONDS", 10),
			BackoffMaxSeconds:  getEnvAsInt("OUTBOX_BACKOFF_MAX_SECONDS", 3600),
			StaleAfterSeconds:  getEnvAsInt("OUTBOX_STALE_AFTER_SECONDS", 300),
		},
		Idempotency: IdempotencyConfig{
			TTLHours:  getEnvAsInt("IDEMPOTENCY_TTL_HOURS", 24),
			PurgeSpec: getEnv("IDEMPOTENCY_PURGE_SPEC", "@hourly"),
		},
		Notification: NotificationConfig{
			EmailFrom:     getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			SMTPHost:      os.Getenv("SMTP_HOST"),
			SMTPPort:      getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername:  os.Getenv("SMTP_USERNAME"),
			SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
			SlackToken:    os.Getenv("SLACK_BOT_TOKEN"),
			SlackAPIBase:  getEnv("SLACK_API_BASE", "https://slack.com/api/"),
			SlackChannel:  os.Getenv("SLACK_DEFAULT_CHANNEL"),
			KafkaBrokers:  getEnvAsList("KAFKA_BROKERS", nil),
			KafkaTopic:    getEnv("KAFKA_TOPIC", "ticket-events"),
			PortalBaseURL: getEnv("PORTAL_BASE_URL", "http://localhost:3000"),
		},
	}

	return cfg, nil
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

// Location resolves the configured time zone, falling back to UTC.
func (t TATConfig) Location() *time.Location {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PollInterval returns the dispatcher poll interval.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

// StaleAfter is how long a claimed row may stay processing before it is released.
func (o OutboxConfig) StaleAfter() time.Duration {
	return time.Duration(o.StaleAfterSeconds) * time.Second
}

// Cooldown is the minimum gap between two escalations of the same ticket.
func (e EscalationConfig) Cooldown() time.Duration {
	return time.Duration(e.CooldownMinutes) * time.Minute
}

// TTL returns how long idempotency keys are remembered.
func (i IdempotencyConfig) TTL() time.Duration {
	if i.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(i.TTLHours) * time.Hour
}

// StatusCacheTTL returns the status registry cache lifetime.
func (r RedisConfig) StatusCacheTTL() time.Duration {
	return time.Duration(r.StatusCacheTTLS) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
