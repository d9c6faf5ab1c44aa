package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// DOCINTEL_DATABASE_URL.
const EnvPrefix = "DOCINTEL"

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom behaves like Load but reads the named config file instead of
// searching for config.yaml in the working directory.
func LoadFrom(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"database.url", "auth.jwt_secret", "redis.url", "storage.gcs_bucket", "tracing.otlp_endpoint", "pdf.license_key"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.role", "all")
	v.SetDefault("server.shutdown_timeout_seconds", 10)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime_minutes", 5)

	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("auth.refresh_token_lifetime_minutes", 10080)

	v.SetDefault("redis.enabled", false)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_root", "./data/uploads")
	v.SetDefault("storage.public_base_url", "")

	v.SetDefault("upload.max_size_bytes", 10*1024*1024)
	v.SetDefault("upload.allowed_extensions", []string{".pdf", ".docx", ".txt", ".md"})

	v.SetDefault("pipeline.queue_backend", "memory")
	v.SetDefault("pipeline.queue_size", 100)
	v.SetDefault("pipeline.worker_count", 2)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.retry_base_delay_seconds", 60)
	v.SetDefault("pipeline.text_limit", 10000)
	v.SetDefault("pipeline.hard_timeout_seconds", 300)
	v.SetDefault("pipeline.soft_timeout_seconds", 240)
	v.SetDefault("pipeline.stuck_threshold_minutes", 60)
	v.SetDefault("pipeline.sweep_interval_minutes", 60)

	v.SetDefault("cache.default_ttl_seconds", 300)
	v.SetDefault("cache.list_ttl_seconds", 60)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.tiers", map[string]any{
		"default": map[string]any{"requests": 60, "window_seconds": 60, "key_prefix": "rl"},
		"upload":  map[string]any{"requests": 10, "window_seconds": 60, "key_prefix": "rl_upload"},
		"auth":    map[string]any{"requests": 5, "window_seconds": 60, "key_prefix": "rl_auth"},
		"search":  map[string]any{"requests": 30, "window_seconds": 60, "key_prefix": "rl_search"},
		"bulk":    map[string]any{"requests": 5, "window_seconds": 60, "key_prefix": "rl_bulk"},
	})

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "docintel-api")
}
