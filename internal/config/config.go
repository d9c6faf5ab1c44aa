package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage" validate:"required"`
	Upload    UploadConfig    `mapstructure:"upload" validate:"required"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" validate:"required"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	PDF       PDFConfig       `mapstructure:"pdf"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// Role selects which parts of the process run: the HTTP API, the
	// background workers, or both.
	Role                   string `mapstructure:"role" validate:"required,oneof=api worker all"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL                    string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" validate:"gt=0"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" validate:"gt=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret                   string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes        int    `mapstructure:"token_lifetime_minutes" validate:"gt=0,lte=1440"`
	RefreshTokenLifetimeMinutes int    `mapstructure:"refresh_token_lifetime_minutes" validate:"gt=0"`
}

// RedisConfig configures the Redis connection shared by the cache, the rate
// limiter and the durable job queue.
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url" validate:"required_if=Enabled true"`
}

// StorageConfig selects and configures the blob store.
type StorageConfig struct {
	Backend       string `mapstructure:"backend" validate:"required,oneof=local gcs"`
	LocalRoot     string `mapstructure:"local_root" validate:"required_if=Backend local"`
	GCSBucket     string `mapstructure:"gcs_bucket" validate:"required_if=Backend gcs"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// UploadConfig bounds accepted uploads.
type UploadConfig struct {
	MaxSizeBytes      int64    `mapstructure:"max_size_bytes" validate:"gt=0"`
	AllowedExtensions []string `mapstructure:"allowed_extensions" validate:"min=1,dive,startswith=."`
}

// PipelineConfig configures background document processing.
type PipelineConfig struct {
	QueueBackend          string `mapstructure:"queue_backend" validate:"required,oneof=memory redis"`
	QueueSize             int    `mapstructure:"queue_size" validate:"gt=0"`
	WorkerCount           int    `mapstructure:"worker_count" validate:"gt=0"`
	MaxRetries            int    `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryBaseDelaySeconds int    `mapstructure:"retry_base_delay_seconds" validate:"gt=0"`
	TextLimit             int    `mapstructure:"text_limit" validate:"gt=0"`
	HardTimeoutSeconds    int    `mapstructure:"hard_timeout_seconds" validate:"gt=0"`
	SoftTimeoutSeconds    int    `mapstructure:"soft_timeout_seconds" validate:"gt=0,ltfield=HardTimeoutSeconds"`
	StuckThresholdMinutes int    `mapstructure:"stuck_threshold_minutes" validate:"gt=0"`
	SweepIntervalMinutes  int    `mapstructure:"sweep_interval_minutes" validate:"gt=0"`
}

// CacheConfig sets cache TTLs.
type CacheConfig struct {
	DefaultTTLSeconds int `mapstructure:"default_ttl_seconds" validate:"gte=0"`
	ListTTLSeconds    int `mapstructure:"list_ttl_seconds" validate:"gte=0"`
}

// RateLimitConfig enables fixed-window limiting and defines its tiers.
type RateLimitConfig struct {
	Enabled bool                     `mapstructure:"enabled"`
	Tiers   map[string]RateLimitTier `mapstructure:"tiers" validate:"dive"`
}

// RateLimitTier is one named limit.
type RateLimitTier struct {
	Requests      int    `mapstructure:"requests" validate:"gt=0"`
	WindowSeconds int    `mapstructure:"window_seconds" validate:"gt=0"`
	KeyPrefix     string `mapstructure:"key_prefix" validate:"required"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint" validate:"required_if=Enabled true"`
	ServiceName  string `mapstructure:"service_name"`
}

// PDFConfig carries the metered license key required by the PDF library.
type PDFConfig struct {
	LicenseKey string `mapstructure:"license_key"`
}
