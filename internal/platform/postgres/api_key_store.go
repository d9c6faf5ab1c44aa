package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/platform/logger"
	"github.com/phrazzld/docintel-api/internal/store"
)

// PostgresAPIKeyStore implements store.APIKeyStore.
type PostgresAPIKeyStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAPIKeyStore creates an API key store on db.
func NewPostgresAPIKeyStore(db store.DBTX, logger *slog.Logger) *PostgresAPIKeyStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAPIKeyStore{
		db:     db,
		logger: logger.With(slog.String("component", "api_key_store")),
	}
}

var _ store.APIKeyStore = (*PostgresAPIKeyStore)(nil)

// Create inserts a new key. Used by provisioning and tests.
func (s *PostgresAPIKeyStore) Create(ctx context.Context, key *domain.APIKey) error {
	perms, err := json.Marshal(key.Permissions)
	if err != nil {
		return fmt.Errorf("failed to encode permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, tenant_id, user_id, name, prefix, key_hash, permissions, expires_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		key.ID, key.TenantID, key.UserID, key.Name, key.Prefix, key.KeyHash,
		string(perms), key.ExpiresAt, key.IsActive, key.CreatedAt,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create api key",
			slog.String("error", err.Error()),
			slog.String("api_key_id", key.ID.String()))
		return MapError(err)
	}
	return nil
}

// FindByPrefix implements store.APIKeyStore. Inactive keys are never
// returned.
func (s *PostgresAPIKeyStore) FindByPrefix(ctx context.Context, prefix string) ([]*domain.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, name, prefix, key_hash, permissions,
			expires_at, last_used_at, is_active, created_at
		FROM api_keys
		WHERE prefix = $1 AND is_active = TRUE`, prefix)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to look up api key",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var keys []*domain.APIKey
	for rows.Next() {
		var (
			k     domain.APIKey
			perms []byte
		)
		if err := rows.Scan(&k.ID, &k.TenantID, &k.UserID, &k.Name, &k.Prefix, &k.KeyHash, &perms,
			&k.ExpiresAt, &k.LastUsedAt, &k.IsActive, &k.CreatedAt); err != nil {
			return nil, MapError(err)
		}
		if err := json.Unmarshal(perms, &k.Permissions); err != nil {
			return nil, fmt.Errorf("failed to decode permissions of api key %s: %w", k.ID, err)
		}
		keys = append(keys, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return keys, nil
}

// TouchLastUsed implements store.APIKeyStore.
func (s *PostgresAPIKeyStore) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrAPIKeyNotFound)
}
