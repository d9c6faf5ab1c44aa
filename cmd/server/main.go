// Package main implements the entry point for the docintel API server, which
// accepts document uploads, processes them in the background and serves the
// tenant-scoped document API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/docintel-api/internal/config"
)

// main parses flags and dispatches to one of the commands: running the
// server (the default), applying migrations, or minting an API key.
func main() {
	configFile := flag.String("config", "", "Path to a YAML config file (defaults to ./config.yaml when present)")
	migrateCmd := flag.String("migrate", "", "Run a migration command and exit: up, down, reset, status, version")
	createKey := flag.Bool("create-api-key", false, "Create an API key and print it once")
	keyTenant := flag.String("tenant", "", "Tenant ID for -create-api-key")
	keyUser := flag.String("user", "", "User ID for -create-api-key")
	keyName := flag.String("key-name", "cli", "Display name for -create-api-key")
	keyPerms := flag.String("permissions", defaultKeyPermissions, "Comma-separated permissions for -create-api-key")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadAppConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := setupAppLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	switch {
	case *migrateCmd != "":
		err = handleMigrations(ctx, cfg, *migrateCmd, logger)
	case *createKey:
		err = handleCreateAPIKey(ctx, cfg, apiKeyRequest{
			TenantID:    *keyTenant,
			UserID:      *keyUser,
			Name:        *keyName,
			Permissions: *keyPerms,
		}, os.Stdout, logger)
	default:
		err = runServer(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("command failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

// runServer connects to the database, wires the application and runs it
// until ctx is cancelled. newApplication owns db from here on.
func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := setupAppDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}

	app, err := newApplication(ctx, cfg, logger, db)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	return app.Run(ctx)
}
