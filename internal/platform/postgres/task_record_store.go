package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/platform/logger"
	"github.com/phrazzld/docintel-api/internal/store"
)

const taskRecordColumns = `
	task_id, task_name, task_type, status, progress, started_at, completed_at,
	result, error, traceback, retry_count, max_retries, resource_type,
	resource_id, tenant_id, user_id, created_at, updated_at`

// PostgresTaskRecordStore implements store.TaskRecordStore.
type PostgresTaskRecordStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskRecordStore creates a task record store on db.
func NewPostgresTaskRecordStore(db store.DBTX, logger *slog.Logger) *PostgresTaskRecordStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskRecordStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_record_store")),
	}
}

var _ store.TaskRecordStore = (*PostgresTaskRecordStore)(nil)

func scanTaskRecord(row rowScanner) (*domain.TaskRecord, error) {
	var (
		rec    domain.TaskRecord
		status string
		result []byte
	)
	err := row.Scan(
		&rec.TaskID, &rec.TaskName, &rec.TaskType, &status, &rec.Progress, &rec.StartedAt, &rec.CompletedAt,
		&result, &rec.Error, &rec.Traceback, &rec.RetryCount, &rec.MaxRetries, &rec.ResourceType,
		&rec.ResourceID, &rec.TenantID, &rec.UserID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = domain.TaskStatus(status)
	if len(result) > 0 {
		rec.Result = result
	}
	return &rec, nil
}

// Get implements store.TaskRecordStore.
func (s *PostgresTaskRecordStore) Get(ctx context.Context, taskID string) (*domain.TaskRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskRecordColumns+` FROM task_records WHERE task_id = $1`, taskID)
	return s.scanOne(ctx, row, taskID)
}

// GetForTenant implements store.TaskRecordStore.
func (s *PostgresTaskRecordStore) GetForTenant(
	ctx context.Context,
	tenantID uuid.UUID,
	taskID string,
) (*domain.TaskRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskRecordColumns+` FROM task_records WHERE task_id = $1 AND tenant_id = $2`,
		taskID, tenantID)
	return s.scanOne(ctx, row, taskID)
}

func (s *PostgresTaskRecordStore) scanOne(ctx context.Context, row *sql.Row, taskID string) (*domain.TaskRecord, error) {
	rec, err := scanTaskRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get task record",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID))
		return nil, MapError(err)
	}
	return rec, nil
}

// Save implements store.TaskRecordStore. The row is upserted on task_id;
// created_at keeps its first value.
func (s *PostgresTaskRecordStore) Save(ctx context.Context, rec *domain.TaskRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := rec.Validate(); err != nil {
		log.Warn("task record validation failed",
			slog.String("error", err.Error()),
			slog.String("task_id", rec.TaskID))
		return err
	}

	var result any
	if len(rec.Result) > 0 {
		result = string(rec.Result)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_records (`+taskRecordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (task_id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			traceback = EXCLUDED.traceback,
			retry_count = EXCLUDED.retry_count,
			max_retries = EXCLUDED.max_retries,
			updated_at = EXCLUDED.updated_at`,
		rec.TaskID, rec.TaskName, rec.TaskType, string(rec.Status), rec.Progress, rec.StartedAt, rec.CompletedAt,
		result, rec.Error, rec.Traceback, rec.RetryCount, rec.MaxRetries, rec.ResourceType,
		rec.ResourceID, rec.TenantID, rec.UserID, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save task record",
			slog.String("error", err.Error()),
			slog.String("task_id", rec.TaskID),
			slog.String("status", string(rec.Status)))
		return MapError(err)
	}
	return nil
}

// FindStale implements store.TaskRecordStore.
func (s *PostgresTaskRecordStore) FindStale(
	ctx context.Context,
	status domain.TaskStatus,
	cutoff time.Time,
	limit int,
) ([]*domain.TaskRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskRecordColumns+` FROM task_records
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`, string(status), cutoff, limit)
	if err != nil {
		log.Error("failed to find stale task records",
			slog.String("error", err.Error()),
			slog.String("status", string(status)))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*domain.TaskRecord
	for rows.Next() {
		rec, err := scanTaskRecord(rows)
		if err != nil {
			return nil, MapError(err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return recs, nil
}
