package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Store        StoreConfig        `yaml:"store"`
	JWT          JWTConfig          `yaml:"jwt"`
	Log          LogConfig          `yaml:"log"`
	Loan         LoanConfig         `yaml:"loan"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Notification NotificationConfig `yaml:"notification"`
	Retry        RetryConfig        `yaml:"retry"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	ReadTimeoutSeconds     int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	// LockTimeoutMs bounds how long a transaction waits for a row lock before failing as busy.
	LockTimeoutMs int `yaml:"lock_timeout_ms"`
	TxTimeoutMs   int `yaml:"tx_timeout_ms"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Type     string `yaml:"type"`      // "postgres" or "memory"
	SeedFile string `yaml:"seed_file"` // memory store only
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// LoanConfig contains lending terms
type LoanConfig struct {
	PeriodDays int   `yaml:"period_days"`
	Amount     int32 `yaml:"amount"`
	FinePerDay int32 `yaml:"fine_per_day"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	// Enabled runs the scheduler inside the API server; the cronjob binary ignores it.
	Enabled           bool   `yaml:"enabled"`
	SweepOverdueLoans string `yaml:"sweep_overdue_loans"`
}

// NotificationConfig contains delivery channel settings. Empty credentials disable a channel.
type NotificationConfig struct {
	DeliveryTimeoutSeconds int            `yaml:"delivery_timeout_seconds"`
	Workers                int            `yaml:"workers"`
	QueueSize              int            `yaml:"queue_size"`
	MaxRetries             int            `yaml:"max_retries"`
	RetryDelayMs           int            `yaml:"retry_delay_ms"`
	SendGrid               SendGridConfig `yaml:"sendgrid"`
	AMQP                   AMQPConfig     `yaml:"amqp"`
}

type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// RetryConfig controls retries of transactions that fail as busy
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMs int `yaml:"base_delay_ms"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}
	if val := os.Getenv("DB_LOCK_TIMEOUT_MS"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.LockTimeoutMs)
	}

	// Store
	if val := os.Getenv("STORE_TYPE"); val != "" {
		c.Store.Type = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Scheduler
	if val := os.Getenv("SCHEDULER_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Scheduler.Enabled = enabled
		}
	}

	// Notification
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Notification.SendGrid.APIKey = val
	}
	if val := os.Getenv("SENDGRID_FROM_EMAIL"); val != "" {
		c.Notification.SendGrid.FromEmail = val
	}
	if val := os.Getenv("AMQP_URL"); val != "" {
		c.Notification.AMQP.URL = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 30
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = 20
	}

	// Store validation
	switch c.Store.Type {
	case "":
		c.Store.Type = "postgres"
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown store type: %q", c.Store.Type)
	}

	// Database validation
	if c.Store.Type == "postgres" {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.LockTimeoutMs == 0 {
		c.Database.LockTimeoutMs = 2000
	}
	if c.Database.TxTimeoutMs == 0 {
		c.Database.TxTimeoutMs = 10000
	}
	if c.Database.LockTimeoutMs < 0 || c.Database.TxTimeoutMs < 0 {
		return fmt.Errorf("database timeouts must not be negative")
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	// Loan defaults
	if c.Loan.PeriodDays == 0 {
		c.Loan.PeriodDays = 15
	}
	if c.Loan.Amount == 0 {
		c.Loan.Amount = 50
	}
	if c.Loan.FinePerDay == 0 {
		c.Loan.FinePerDay = 10
	}
	if c.Loan.PeriodDays < 0 || c.Loan.Amount < 0 || c.Loan.FinePerDay < 0 {
		return fmt.Errorf("loan terms must not be negative")
	}

	// Scheduler defaults
	if c.Scheduler.SweepOverdueLoans == "" {
		c.Scheduler.SweepOverdueLoans = "0 0 2 * * *" // 2 AM UTC
	}

	// Notification defaults
	if c.Notification.DeliveryTimeoutSeconds == 0 {
		c.Notification.DeliveryTimeoutSeconds = 10
	}
	if c.Notification.Workers == 0 {
		c.Notification.Workers = 4
	}
	if c.Notification.QueueSize == 0 {
		c.Notification.QueueSize = 256
	}
	if c.Notification.MaxRetries == 0 {
		c.Notification.MaxRetries = 2
	}
	if c.Notification.RetryDelayMs == 0 {
		c.Notification.RetryDelayMs = 1000
	}
	if c.Notification.Workers < 0 || c.Notification.QueueSize < 0 || c.Notification.MaxRetries < 0 || c.Notification.RetryDelayMs < 0 {
		return fmt.Errorf("notification queue settings must not be negative")
	}
	if c.Notification.SendGrid.APIKey != "" && c.Notification.SendGrid.FromEmail == "" {
		return fmt.Errorf("sendgrid from_email is required when an API key is set")
	}
	if c.Notification.SendGrid.FromName == "" {
		c.Notification.SendGrid.FromName = "Library"
	}
	if c.Notification.AMQP.Exchange == "" {
		c.Notification.AMQP.Exchange = "library.notifications"
	}

	// Retry defaults
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 4
	}
	if c.Retry.BaseDelayMs == 0 {
		c.Retry.BaseDelayMs = 20
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (d DatabaseConfig) LockTimeout() time.Duration {
	return time.Duration(d.LockTimeoutMs) * time.Millisecond
}

func (d DatabaseConfig) TxTimeout() time.Duration {
	return time.Duration(d.TxTimeoutMs) * time.Millisecond
}

func (n NotificationConfig) DeliveryTimeout() time.Duration {
	return time.Duration(n.DeliveryTimeoutSeconds) * time.Second
}

func (n NotificationConfig) RetryDelay() time.Duration {
	return time.Duration(n.RetryDelayMs) * time.Millisecond
}

func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

func (j JWTConfig) AccessTokenTTL() time.Duration {
	return time.Duration(j.AccessTokenExpiry) * time.Minute
}
