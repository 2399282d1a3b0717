package config

import (
	"fmt"
	"os"
	"strconv"
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
	Notification NotificationConfig
	Mail         MailConfig
	Realtime     RealtimeConfig
	Omni         OmniConfig
	Outbox       OutboxConfig
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
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
}

// AuthConfig defines bearer token verification parameters.
type AuthConfig struct {
	JWTSecret             string
	Issuer                string
	AccessTokenTTLMinutes int
}

// NotificationConfig points at the e-mail routing table.
type NotificationConfig struct {
	RoutingFile string
	BaseURL     string
}

// MailConfig holds SMTP delivery settings. An empty Host disables delivery.
type MailConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	TimeoutSeconds int
}

// RealtimeConfig controls room fan-out over Redis pub/sub.
type RealtimeConfig struct {
	Enabled        bool
	ChannelPrefix  string
	TimeoutSeconds int
}

// OmniConfig holds the omnichannel status-sync endpoint.
type OmniConfig struct {
	Enabled        bool
	BaseURL        string
	Token          string
	TimeoutSeconds int
}

// OutboxConfig tunes the follow-up effect worker pool.
type OutboxConfig struct {
	Workers           int
	QueueSize         int
	MaxAttempts       int
	BackoffMillis     int
	SweepIntervalSecs int
	StaleAfterSecs    int
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
			Name:                  getEnv("APP_NAME", "servicedesk"),
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
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:                getEnv("AUTH_JWT_ISSUER", "servicedesk"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			RoutingFile: getEnv("NOTIFY_ROUTING_FILE", ""),
			BaseURL:     getEnv("NOTIFY_BASE_URL", "http://localhost:3000"),
		},
		Mail: MailConfig{
			Host:           os.Getenv("SMTP_HOST"),
			Port:           getEnvAsInt("SMTP_PORT", 587),
			Username:       os.Getenv("SMTP_USERNAME"),
			Password:       os.Getenv("SMTP_PASSWORD"),
			From:           getEnv("SMTP_FROM", "servicedesk@example.com"),
			TimeoutSeconds: getEnvAsInt("SMTP_TIMEOUT_SECONDS", 10),
		},
		Realtime: RealtimeConfig{
			Enabled:        getEnvAsBool("REALTIME_ENABLED", true),
			ChannelPrefix:  getEnv("REALTIME_CHANNEL_PREFIX", "realtime:"),
			TimeoutSeconds: getEnvAsInt("REALTIME_TIMEOUT_SECONDS", 2),
		},
		Omni: OmniConfig{
			Enabled:        getEnvAsBool("OMNI_ENABLED", false),
			BaseURL:        os.Getenv("OMNI_BASE_URL"),
			Token:          os.Getenv("OMNI_TOKEN"),
			TimeoutSeconds: getEnvAsInt("OMNI_TIMEOUT_SECONDS", 30),
		},
		Outbox: OutboxConfig{
			Workers:           getEnvAsInt("OUTBOX_WORKERS", 4),
			QueueSize:         getEnvAsInt("OUTBOX_QUEUE_SIZE", 256),
			MaxAttempts:       getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 5),
			BackoffMillis:     getEnvAsInt("OUTBOX_BACKOFF_MILLIS", 500),
			SweepIntervalSecs: getEnvAsInt("OUTBOX_SWEEP_INTERVAL_SECONDS", 30),
			StaleAfterSecs:    getEnvAsInt("OUTBOX_STALE_AFTER_SECONDS", 120),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.Omni.Enabled && c.Omni.BaseURL == "" {
		return fmt.Errorf("OMNI_BASE_URL is required when OMNI_ENABLED is set")
	}
	if c.Outbox.Workers <= 0 {
		return fmt.Errorf("OUTBOX_WORKERS must be > 0")
	}
	if c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("OUTBOX_MAX_ATTEMPTS must be > 0")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	return seconds(a.RequestTimeoutSeconds)
}

// AccessTokenTTL returns the lifetime of issued tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// Addr returns host:port for the SMTP relay.
func (m MailConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// Timeout bounds one delivery.
func (m MailConfig) Timeout() time.Duration { return seconds(m.TimeoutSeconds) }

// Timeout bounds one room publish.
func (r RealtimeConfig) Timeout() time.Duration { return seconds(r.TimeoutSeconds) }

// Timeout bounds one status push.
func (o OmniConfig) Timeout() time.Duration { return seconds(o.TimeoutSeconds) }

// Backoff is the base delay between attempts.
func (o OutboxConfig) Backoff() time.Duration {
	return time.Duration(o.BackoffMillis) * time.Millisecond
}

// SweepInterval is how often stale effects are reclaimed.
func (o OutboxConfig) SweepInterval() time.Duration { return seconds(o.SweepIntervalSecs) }

// StaleAfter is how long an effect may stay claimed before it is reclaimed.
func (o OutboxConfig) StaleAfter() time.Duration { return seconds(o.StaleAfterSecs) }

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
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
