package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/docintel-api/internal/config"
)

// loadAppConfig loads the configuration from the optional file and the
// DOCINTEL_* environment.
func loadAppConfig(configFile string) (*config.Config, error) {
	cfg, err := config.LoadFrom(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"role", cfg.Server.Role)
	slog.Debug("Backend configuration",
		"storage_backend", cfg.Storage.Backend,
		"queue_backend", cfg.Pipeline.QueueBackend,
		"redis_enabled", cfg.Redis.Enabled,
		"tracing_enabled", cfg.Tracing.Enabled)

	return cfg, nil
}
