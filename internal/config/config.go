package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"8000"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`

	// ClientBaseURL is where the web client lives; invite links point there.
	ClientBaseURL string `env:"CLIENT_BASE_URL" envDefault:"http://localhost:3000"`

	// CORSOrigins is a comma separated allow-list; empty allows any origin.
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:""`

	Database  DatabaseConfig
	Auth      AuthConfig
	Booking   BookingConfig
	Invite    InviteConfig
	Upload    UploadConfig
	Email     EmailConfig
	Storage   StorageConfig
	Scheduler SchedulerConfig
	Otel      OtelConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"thingbooker"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"thingbooker"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// AuthConfig configures verification of bearer tokens minted by the
// identity provider.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" envDefault:""`
	JWTIssuer string `env:"AUTH_JWT_ISSUER" envDefault:""`
	// DebugUserID, when set outside production, authenticates requests that
	// carry no token as this user.
	DebugUserID string `env:"AUTH_DEBUG_USER_ID" envDefault:""`
}

// BookingConfig bounds the retry of booking transactions that fail with a
// serialization failure, deadlock or lock timeout.
type BookingConfig struct {
	TxMaxRetries     int           `env:"BOOKING_TX_MAX_RETRIES" envDefault:"3"`
	TxRetryBaseDelay time.Duration `env:"BOOKING_TX_RETRY_BASE_DELAY" envDefault:"25ms"`
}

// InviteConfig holds invitation token settings
type InviteConfig struct {
	TokenTTL        time.Duration `env:"INVITE_TOKEN_TTL" envDefault:"72h"`
	TokenByteLength int           `env:"INVITE_TOKEN_BYTE_LENGTH" envDefault:"32"`
	// AcceptRatePerMin limits accept attempts per user; burst is the same value.
	AcceptRatePerMin int `env:"INVITE_ACCEPT_RATE_PER_MIN" envDefault:"10"`
}

// UploadConfig limits picture uploads
type UploadConfig struct {
	MaxMegabytes int `env:"UPLOAD_MAX_MEGABYTES" envDefault:"5"`
}

// MaxBytes returns the upload limit in bytes
func (u *UploadConfig) MaxBytes() int64 {
	return int64(u.MaxMegabytes) * 1024 * 1024
}

// EmailConfig holds email service configuration
type EmailConfig struct {
	Enabled          bool   `env:"EMAIL_ENABLED" envDefault:"false"`
	MailgunDomain    string `env:"MAILGUN_DOMAIN" envDefault:""`
	MailgunAPIKey    string `env:"MAILGUN_API_KEY" envDefault:""`
	MailgunAPIBase   string `env:"MAILGUN_API_BASE" envDefault:""`
	FromEmail        string `env:"EMAIL_FROM_ADDRESS" envDefault:"noreply@thingbooker.local"`
	FromName         string `env:"EMAIL_FROM_NAME" envDefault:"Thingbooker"`
	MaxRetries       int    `env:"EMAIL_MAX_RETRIES" envDefault:"3"`
	RetryDelaySec    int    `env:"EMAIL_RETRY_DELAY_SEC" envDefault:"60"`
	WorkerIntervalMs int    `env:"EMAIL_WORKER_INTERVAL_MS" envDefault:"5000"`
	WorkerBatchSize  int    `env:"EMAIL_WORKER_BATCH_SIZE" envDefault:"10"`
}

// IsConfigured returns true if Mailgun is configured
func (e *EmailConfig) IsConfigured() bool {
	return e.MailgunDomain != "" && e.MailgunAPIKey != ""
}

// StorageConfig holds S3-compatible object storage configuration
type StorageConfig struct {
	Endpoint        string `env:"STORAGE_ENDPOINT" envDefault:"localhost:9000"`
	AccessKeyID     string `env:"STORAGE_ACCESS_KEY" envDefault:""`
	SecretAccessKey string `env:"STORAGE_SECRET_KEY" envDefault:""`
	Bucket          string `env:"STORAGE_BUCKET" envDefault:"thingbooker"`
	UseSSL          bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
	Region          string `env:"STORAGE_REGION" envDefault:"us-east-1"`
}

// IsConfigured returns true if storage is configured
func (s *StorageConfig) IsConfigured() bool {
	return s.Endpoint != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// SchedulerConfig holds cron schedules for background housekeeping
type SchedulerConfig struct {
	Enabled bool `env:"SCHEDULER_ENABLED" envDefault:"true"`
	// StaleEmailJobSchedule re-queues email jobs stuck in processing.
	StaleEmailJobSchedule string `env:"SCHEDULER_STALE_EMAIL_SCHEDULE" envDefault:"*/10 * * * *"`
	StaleEmailJobMinutes  int    `env:"SCHEDULER_STALE_EMAIL_MINUTES" envDefault:"15"`
	// EmailPurgeSchedule deletes sent email jobs older than the retention.
	EmailPurgeSchedule string        `env:"SCHEDULER_EMAIL_PURGE_SCHEDULE" envDefault:"0 3 * * *"`
	EmailRetention     time.Duration `env:"SCHEDULER_EMAIL_RETENTION" envDefault:"720h"`
	// LimiterPruneInterval drops idle per-user invite accept limiters.
	LimiterPruneInterval time.Duration `env:"SCHEDULER_LIMITER_PRUNE_INTERVAL" envDefault:"10m"`
}

// AllowedOrigins splits CORSOrigins into a list
func (c *Config) AllowedOrigins() []string {
	if strings.TrimSpace(c.CORSOrigins) == "" {
		return []string{"*"}
	}
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if c.Booking.TxMaxRetries < 0 {
		return fmt.Errorf("BOOKING_TX_MAX_RETRIES must not be negative")
	}
	if c.Invite.TokenByteLength < 16 {
		return fmt.Errorf("INVITE_TOKEN_BYTE_LENGTH must be at least 16, got %d", c.Invite.TokenByteLength)
	}
	if c.Invite.TokenTTL <= 0 {
		return fmt.Errorf("INVITE_TOKEN_TTL must be positive")
	}
	if c.Upload.MaxMegabytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_MEGABYTES must be positive")
	}
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}
	return nil
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.Duration("invite_ttl", cfg.Invite.TokenTTL),
		slog.Bool("email_enabled", cfg.Email.Enabled),
	)

	return cfg, nil
}
