// Package config provides configuration management for Owl Middleware.
// Configuration can be loaded from YAML files, a .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Bot      BotConfig      `mapstructure:"bot"`
	LLM      LLMConfig      `mapstructure:"llm"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Upload   UploadConfig   `mapstructure:"upload"`
	State    StateConfig    `mapstructure:"state"`
	Janitor  JanitorConfig  `mapstructure:"janitor"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
}

// Addr returns the listen address in host:port format.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds metadata store connection settings.
// Supports MongoDB, PostgreSQL and SQLite backends.
type DatabaseConfig struct {
	// Driver specifies the database driver: "mongo", "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`

	// MongoDB settings (used when Driver is "mongo")
	MongoURI       string        `mapstructure:"mongo_uri"`
	MongoDatabase  string        `mapstructure:"mongo_database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// PostgreSQL settings (used when Driver is "postgres")
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	// SQLite settings (used when Driver is "sqlite")
	Path        string `mapstructure:"path"`         // Path to SQLite database file, ":memory:" for tests
	JournalMode string `mapstructure:"journal_mode"` // WAL, DELETE, TRUNCATE, etc.
	BusyTimeout int    `mapstructure:"busy_timeout"` // Milliseconds to wait for locks
}

// DSN returns the PostgreSQL connection string.
// Only valid when Driver is "postgres".
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// IsEmbedded returns true if using an embedded database (SQLite).
func (c DatabaseConfig) IsEmbedded() bool {
	return c.Driver == "sqlite"
}

// RedisConfig holds Redis connection settings.
// When disabled, per-user state and locks stay in process memory.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BackendConfig holds settings of the remote container/file/search service.
type BackendConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
	MaxIdleConns  int           `mapstructure:"max_idle_conns"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	// JWTSecret is the HS256 signing secret. Must be at least 32 characters.
	JWTSecret string `mapstructure:"jwt_secret"`

	// TokenExpiration is how long issued tokens stay valid.
	TokenExpiration time.Duration `mapstructure:"token_expiration"`

	// MinPasswordLength is the minimum length accepted at email registration.
	MinPasswordLength int `mapstructure:"min_password_length"`
}

// BotConfig holds Telegram bot settings.
type BotConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`

	// WebURL is the web app address handed out by /web, the token is appended.
	WebURL string `mapstructure:"web_url"`

	// Workers bounds concurrently processed updates.
	Workers int `mapstructure:"workers"`

	// PollTimeout is the long-polling timeout in seconds.
	PollTimeout int `mapstructure:"poll_timeout"`

	// SearchLimit is the result count for /search.
	SearchLimit int `mapstructure:"search_limit"`

	Debug bool `mapstructure:"debug"`
}

// LLMConfig holds chat-completion provider settings.
type LLMConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Provider       string        `mapstructure:"provider"`
	PrimaryModel   string        `mapstructure:"primary_model"`
	SecondaryModel string        `mapstructure:"secondary_model"`
	Temperature    float64       `mapstructure:"temperature"`
	Timeout        time.Duration `mapstructure:"timeout"`
	SystemPrompt   string        `mapstructure:"system_prompt"`

	// MaxContextFiles caps the files pulled into a chat prompt.
	MaxContextFiles int `mapstructure:"max_context_files"`
}

// OCRConfig holds OCR provider settings.
type OCRConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`

	// PreviewLength is the number of characters shown inline.
	PreviewLength int `mapstructure:"preview_length"`
}

// UploadConfig holds file upload limits.
type UploadConfig struct {
	MaxFileSize int64 `mapstructure:"max_file_size"`

	// PreviewLength is the number of characters returned by reads.
	PreviewLength int `mapstructure:"preview_length"`
}

// StateConfig holds ephemeral per-user state settings.
type StateConfig struct {
	// TTL is the idle time after which a user's state is dropped.
	TTL time.Duration `mapstructure:"ttl"`

	// SearchSessions is the number of search result sets kept for callbacks.
	SearchSessions int `mapstructure:"search_sessions"`

	// SearchSessionTTL is how long a search result set stays addressable.
	SearchSessionTTL time.Duration `mapstructure:"search_session_ttl"`

	// LockTTL bounds how long a per-user lock may be held.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// JanitorConfig holds background maintenance settings.
type JanitorConfig struct {
	// Enabled determines if the scheduled jobs run.
	Enabled bool `mapstructure:"enabled"`

	// StateCleanupSchedule is the cron spec for dropping idle user state.
	StateCleanupSchedule string `mapstructure:"state_cleanup_schedule"`

	// ReconcileSchedule is the cron spec for the pending-record sweep.
	ReconcileSchedule string `mapstructure:"reconcile_schedule"`

	// HealthSchedule is the cron spec for backend health probes.
	HealthSchedule string `mapstructure:"health_schedule"`

	// GracePeriod is how long a record may stay pending before it is reconciled.
	GracePeriod time.Duration `mapstructure:"grace_period"`

	// DryRun logs what would be deleted without actually deleting.
	DryRun bool `mapstructure:"dry_run"`

	// LockTTL is the renewable lease on a running job's lock.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// StorageConfig holds artifact storage settings (OCR visualizations).
type StorageConfig struct {
	// Backend is "none", "filesystem" or "s3".
	Backend string          `mapstructure:"backend"`
	DataDir string          `mapstructure:"data_dir"`
	S3      S3StorageConfig `mapstructure:"s3"`
}

// S3StorageConfig holds S3 artifact backend settings.
// Endpoint may point at any S3-compatible service.
type S3StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled determines if metrics collection is active.
	Enabled bool `mapstructure:"enabled"`

	// Path is the URL path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// Load reads configuration from the specified file and environment variables.
// A .env file in the working directory is loaded first; variables already
// set in the environment win over it.
// Environment variables take precedence over file values.
// Environment variables are prefixed with OWL_ and use _ as separator.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variable configuration
	v.SetEnvPrefix("OWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file configuration
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/owl")
	}

	// Read config file (optional - environment variables can be used instead)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// The bot token keeps its conventional unprefixed name.
	if !v.IsSet("bot.token") || v.GetString("bot.token") == "" {
		if token := os.Getenv("BOT_TOKEN"); token != "" {
			v.Set("bot.token", token)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_size", 64*1024*1024) // 64MB

	// Database defaults
	v.SetDefault("database.driver", "mongo")
	v.SetDefault("database.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("database.mongo_database", "owl")
	v.SetDefault("database.connect_timeout", 10*time.Second)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "owl")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "owl")
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)
	// SQLite defaults
	v.SetDefault("database.path", "./data/owl.db")
	v.SetDefault("database.journal_mode", "WAL")
	v.SetDefault("database.busy_timeout", 5000)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.enabled", false)

	// Backend defaults
	v.SetDefault("backend.base_url", "http://localhost:8080")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.health_timeout", 5*time.Second)
	v.SetDefault("backend.max_idle_conns", 32)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "") // Must be provided
	v.SetDefault("auth.token_expiration", 24*time.Hour)
	v.SetDefault("auth.min_password_length", 8)

	// Bot defaults
	v.SetDefault("bot.enabled", true)
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.web_url", "http://localhost:8080")
	v.SetDefault("bot.workers", 16)
	v.SetDefault("bot.poll_timeout", 60)
	v.SetDefault("bot.search_limit", 10)
	v.SetDefault("bot.debug", false)

	// LLM defaults
	v.SetDefault("llm.base_url", "https://api.mistral.ai/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.provider", "mistral")
	v.SetDefault("llm.primary_model", "mistral-large-latest")
	v.SetDefault("llm.secondary_model", "mistral-small-latest")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.system_prompt", "You are a helpful AI assistant. Answer using the provided file context.")
	v.SetDefault("llm.max_context_files", 5)

	// OCR defaults
	v.SetDefault("ocr.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("ocr.api_key", "")
	v.SetDefault("ocr.model", "deepseek-ocr")
	v.SetDefault("ocr.timeout", 60*time.Second)
	v.SetDefault("ocr.preview_length", 4000)

	// Upload defaults
	v.SetDefault("upload.max_file_size", 20*1024*1024) // 20MB, the Telegram download limit
	v.SetDefault("upload.preview_length", 3000)

	// State defaults
	v.SetDefault("state.ttl", 24*time.Hour)
	v.SetDefault("state.search_sessions", 1024)
	v.SetDefault("state.search_session_ttl", 30*time.Minute)
	v.SetDefault("state.lock_ttl", 30*time.Second)

	// Janitor defaults
	v.SetDefault("janitor.enabled", true)
	v.SetDefault("janitor.state_cleanup_schedule", "@every 1h")
	v.SetDefault("janitor.reconcile_schedule", "@every 10m")
	v.SetDefault("janitor.health_schedule", "@every 1m")
	v.SetDefault("janitor.grace_period", 15*time.Minute)
	v.SetDefault("janitor.dry_run", false)
	v.SetDefault("janitor.lock_ttl", 5*time.Minute)

	// Storage defaults
	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.data_dir", "./data/artifacts")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.prefix", "ocr/")
	v.SetDefault("storage.s3.use_path_style", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// Validate database configuration
	switch c.Database.Driver {
	case "mongo":
		if c.Database.MongoURI == "" {
			return fmt.Errorf("database.mongo_uri is required for mongo driver")
		}
		if c.Database.MongoDatabase == "" {
			return fmt.Errorf("database.mongo_database is required for mongo driver")
		}
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required for postgres driver")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required for postgres driver")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database.database is required for postgres driver")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver must be 'mongo', 'postgres' or 'sqlite'")
	}

	// Validate backend configuration
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.Timeout <= 0 || c.Backend.HealthTimeout <= 0 {
		return fmt.Errorf("backend.timeout and backend.health_timeout must be positive")
	}

	// Validate auth configuration
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}
	if c.Auth.TokenExpiration <= 0 {
		return fmt.Errorf("auth.token_expiration must be positive")
	}

	// Validate bot configuration
	if c.Bot.Enabled && c.Bot.Token == "" {
		return fmt.Errorf("bot.token (or BOT_TOKEN) is required when the bot is enabled")
	}
	if c.Bot.Workers < 1 {
		return fmt.Errorf("bot.workers must be at least 1")
	}

	if !c.Server.Enabled && !c.Bot.Enabled {
		return fmt.Errorf("at least one of server.enabled and bot.enabled must be set")
	}

	// Validate upload configuration
	if c.Upload.MaxFileSize <= 0 || c.Upload.MaxFileSize > 100*1024*1024 {
		return fmt.Errorf("upload.max_file_size must be between 1 byte and 100MB")
	}

	// Validate storage configuration
	switch c.Storage.Backend {
	case "none":
	case "filesystem":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.data_dir is required for filesystem backend")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be 'none', 'filesystem' or 's3'")
	}

	// Validate logging configuration
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

// MustLoad loads configuration or panics on error.
// Useful for main function initialization.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
