package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/docintel-api/internal/config"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/platform/postgres"
	"github.com/phrazzld/docintel-api/internal/service/auth"
)

// defaultKeyPermissions are granted to keys created without -permissions.
var defaultKeyPermissions = strings.Join([]string{
	domain.PermissionDocumentsCreate,
	domain.PermissionDocumentsRead,
	domain.PermissionDocumentsUpdate,
}, ",")

// handleMigrations runs one goose command against the configured database.
func handleMigrations(ctx context.Context, cfg *config.Config, command string, logger *slog.Logger) error {
	db, err := setupAppDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	logger.Info("Executing migrations", "command", command)
	if err := postgres.Migrate(ctx, db, command, logger); err != nil {
		return err
	}
	logger.Info("Migrations finished", "command", command)
	return nil
}

// apiKeyRequest holds the -create-api-key flag values.
type apiKeyRequest struct {
	TenantID    string
	UserID      string
	Name        string
	Permissions string
}

// build validates the request and returns the key row to store together with
// the raw key to show the operator.
func (r apiKeyRequest) build(now time.Time) (*domain.APIKey, string, error) {
	tenantID, err := uuid.Parse(r.TenantID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: -tenant must be a UUID", domain.ErrValidation)
	}
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: -user must be a UUID", domain.ErrValidation)
	}

	var perms []string
	for _, p := range strings.Split(r.Permissions, ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}
	if len(perms) == 0 {
		return nil, "", fmt.Errorf("%w: at least one permission is required", domain.ErrValidation)
	}

	generated, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, "", err
	}
	key := &domain.APIKey{
		ID:          uuid.New(),
		TenantID:    tenantID,
		UserID:      userID,
		Name:        r.Name,
		Prefix:      generated.Prefix,
		KeyHash:     generated.Hash,
		Permissions: perms,
		IsActive:    true,
		CreatedAt:   now,
	}
	return key, generated.Raw, nil
}

// apiKeyCreator persists new API keys.
type apiKeyCreator interface {
	Create(ctx context.Context, key *domain.APIKey) error
}

// createAPIKey stores a new key in keys and writes the raw key to out.
func createAPIKey(ctx context.Context, keys apiKeyCreator, req apiKeyRequest, out io.Writer) error {
	key, raw, err := req.build(time.Now().UTC())
	if err != nil {
		return err
	}
	if err := keys.Create(ctx, key); err != nil {
		return fmt.Errorf("failed to store api key: %w", err)
	}
	_, err = fmt.Fprintf(out, "API key %s created for tenant %s. It will not be shown again:\n%s\n",
		key.ID, key.TenantID, raw)
	return err
}

// handleCreateAPIKey connects to the database and runs createAPIKey.
func handleCreateAPIKey(ctx context.Context, cfg *config.Config, req apiKeyRequest, out io.Writer, logger *slog.Logger) error {
	db, err := setupAppDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return createAPIKey(ctx, postgres.NewPostgresAPIKeyStore(db, logger), req, out)
}
