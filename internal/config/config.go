// Package config handles application configuration loading and validation using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/spf13/viper"
)

// Rate-limited action names.
const (
	ActionVote                = "vote"
	ActionComponentSubmission = "component_submission"
	ActionSubmission          = "submission"
)

// Config represents the application configuration.
type Config struct {
	Server        ServerConfig               `mapstructure:"server"`
	Database      DatabaseConfig             `mapstructure:"database"`
	Scoring       ScoringConfig              `mapstructure:"scoring"`
	Leaderboard   LeaderboardConfig          `mapstructure:"leaderboard"`
	RateLimits    map[string]RateLimitConfig `mapstructure:"rate_limits"`
	Scheduler     SchedulerConfig            `mapstructure:"scheduler"`
	Metrics       MetricsConfig              `mapstructure:"metrics"`
	Logging       LoggingConfig              `mapstructure:"logging"`
	Notifications NotificationsConfig        `mapstructure:"notifications"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig contains connection settings for Redis (live state) and PostgreSQL (archives).
type DatabaseConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection and pool settings.
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	PoolSize  int    `mapstructure:"pool_size"`
	Namespace string `mapstructure:"namespace"`  // key prefix
	TimeoutMs int    `mapstructure:"timeout_ms"` // per-operation timeout
}

// PostgresConfig contains PostgreSQL connection and pool settings.
// Archival to PostgreSQL is optional; it is skipped when Host is empty.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	RunMigrations   bool   `mapstructure:"run_migrations"`
}

// Enabled reports whether PostgreSQL archival is configured.
func (c *PostgresConfig) Enabled() bool {
	return c.Host != ""
}

// DSN returns the keyword/value connection string used by GORM.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the postgres:// URL used by the migrator.
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// ThresholdConfig holds the inclusive transition thresholds for one item kind.
type ThresholdConfig struct {
	Upper int64 `mapstructure:"upper"`
	Lower int64 `mapstructure:"lower"`
}

// ScoringConfig contains lifecycle thresholds per item kind.
type ScoringConfig struct {
	Drink     ThresholdConfig `mapstructure:"drink"`
	Component ThresholdConfig `mapstructure:"component"`
	// PromotedIndexMax bounds the featured/approved display indexes.
	PromotedIndexMax int `mapstructure:"promoted_index_max"`
}

// LeaderboardConfig contains ranking and retention settings.
type LeaderboardConfig struct {
	MaxEntries    int `mapstructure:"max_entries"`
	RetentionDays int `mapstructure:"retention_days"` // archived snapshot retention
	CleanupDays   int `mapstructure:"cleanup_days"`   // live entry age limit for monthly cleanup
	UpdateRetries int `mapstructure:"update_retries"` // optimistic write attempts
}

// RateLimitConfig is the sliding window for one action.
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	Max           int `mapstructure:"max"`
}

// Window returns the window length as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// SchedulerConfig contains maintenance cron settings.
type SchedulerConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Timezone    string `mapstructure:"timezone"`
	DailyCron   string `mapstructure:"daily_cron"`
	WeeklyCron  string `mapstructure:"weekly_cron"`
	MonthlyCron string `mapstructure:"monthly_cron"`
}

// MetricsConfig contains metrics exporter settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// NotificationsConfig contains webhook settings for lifecycle announcements.
type NotificationsConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Enabled    bool   `mapstructure:"enabled"`
}

// setDefaults registers the built-in defaults on v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")

	v.SetDefault("database.redis.host", "localhost")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)
	v.SetDefault("database.redis.namespace", "se")
	v.SetDefault("database.redis.timeout_ms", 2000)
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 10)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.postgres.run_migrations", true)

	v.SetDefault("scoring.drink.upper", 25)
	v.SetDefault("scoring.drink.lower", -5)
	v.SetDefault("scoring.component.upper", 15)
	v.SetDefault("scoring.component.lower", -10)
	v.SetDefault("scoring.promoted_index_max", 50)

	v.SetDefault("leaderboard.max_entries", 50)
	v.SetDefault("leaderboard.retention_days", 90)
	v.SetDefault("leaderboard.cleanup_days", 30)
	v.SetDefault("leaderboard.update_retries", 10)

	v.SetDefault("rate_limits."+ActionVote+".window_seconds", 60)
	v.SetDefault("rate_limits."+ActionVote+".max", 10)
	v.SetDefault("rate_limits."+ActionComponentSubmission+".window_seconds", 600)
	v.SetDefault("rate_limits."+ActionComponentSubmission+".max", 1)
	v.SetDefault("rate_limits."+ActionSubmission+".window_seconds", 300)
	v.SetDefault("rate_limits."+ActionSubmission+".max", 3)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.daily_cron", "5 0 * * *")
	v.SetDefault("scheduler.weekly_cron", "10 0 * * 1")
	v.SetDefault("scheduler.monthly_cron", "30 0 1 * *")

	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads configuration from file and environment variables.
// An empty configPath searches the usual locations; a missing file is then not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/scoring-engine/")
	}

	// Bind specific environment variables (explicit bindings for 12-factor app compliance)
	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")
	_ = v.BindEnv("database.redis.namespace", "REDIS_NAMESPACE")
	_ = v.BindEnv("database.redis.timeout_ms", "REDIS_TIMEOUT_MS")

	// PostgreSQL configuration
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.run_migrations", "POSTGRES_RUN_MIGRATIONS")

	// Scoring configuration
	_ = v.BindEnv("scoring.drink.upper", "SCORING_DRINK_UPPER")
	_ = v.BindEnv("scoring.drink.lower", "SCORING_DRINK_LOWER")
	_ = v.BindEnv("scoring.component.upper", "SCORING_COMPONENT_UPPER")
	_ = v.BindEnv("scoring.component.lower", "SCORING_COMPONENT_LOWER")

	// Leaderboard configuration
	_ = v.BindEnv("leaderboard.max_entries", "LEADERBOARD_MAX_ENTRIES")
	_ = v.BindEnv("leaderboard.retention_days", "LEADERBOARD_RETENTION_DAYS")
	_ = v.BindEnv("leaderboard.cleanup_days", "LEADERBOARD_CLEANUP_DAYS")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")
	_ = v.BindEnv("scheduler.daily_cron", "SCHEDULER_DAILY_CRON")
	_ = v.BindEnv("scheduler.weekly_cron", "SCHEDULER_WEEKLY_CRON")
	_ = v.BindEnv("scheduler.monthly_cron", "SCHEDULER_MONTHLY_CRON")

	// Notification configuration
	_ = v.BindEnv("notifications.webhook_url", "NOTIFICATIONS_WEBHOOK_URL")
	_ = v.BindEnv("notifications.channel", "NOTIFICATIONS_CHANNEL")
	_ = v.BindEnv("notifications.enabled", "NOTIFICATIONS_ENABLED")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required")
	}
	if c.Database.Postgres.Enabled() {
		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required when postgres.host is set")
		}
		if c.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required when postgres.host is set")
		}
	}

	if c.Scoring.Drink.Upper <= c.Scoring.Drink.Lower {
		return fmt.Errorf("scoring.drink.upper must be greater than scoring.drink.lower")
	}
	if c.Scoring.Component.Upper <= c.Scoring.Component.Lower {
		return fmt.Errorf("scoring.component.upper must be greater than scoring.component.lower")
	}
	if c.Scoring.PromotedIndexMax < 1 {
		return fmt.Errorf("scoring.promoted_index_max must be positive")
	}

	if c.Leaderboard.MaxEntries < 1 {
		return fmt.Errorf("leaderboard.max_entries must be positive")
	}
	if c.Leaderboard.RetentionDays < 1 {
		return fmt.Errorf("leaderboard.retention_days must be positive")
	}

	for _, action := range []string{ActionVote, ActionComponentSubmission, ActionSubmission} {
		rl, ok := c.RateLimits[action]
		if !ok {
			return fmt.Errorf("rate_limits.%s is required", action)
		}
		if rl.WindowSeconds < 1 || rl.Max < 1 {
			return fmt.Errorf("rate_limits.%s needs a positive window_seconds and max", action)
		}
	}

	if c.Scheduler.Enabled {
		for name, expr := range map[string]string{
			"daily_cron":   c.Scheduler.DailyCron,
			"weekly_cron":  c.Scheduler.WeeklyCron,
			"monthly_cron": c.Scheduler.MonthlyCron,
		} {
			if !gronx.IsValid(expr) {
				return fmt.Errorf("scheduler.%s is not a valid cron expression: %q", name, expr)
			}
		}
		if _, err := c.Scheduler.GetLocation(); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}

	return nil
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Default returns the built-in configuration without reading files or the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&config)
	return &config
}

// RedisAddr returns host:port for the Redis client.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Timeout returns the per-operation store timeout.
func (c *RedisConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
