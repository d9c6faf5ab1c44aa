package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/docintel-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentStoreDelete_RemovesTasksInTransaction(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tenant, id := uuid.New(), uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM task_records`).
		WithArgs(tenant, sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM documents`).
		WithArgs(id, tenant).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewPostgresDocumentStore(db, nil).Delete(context.Background(), tenant, id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentStoreDelete_MissingDocumentRollsBack(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM task_records`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM documents`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = NewPostgresDocumentStore(db, nil).Delete(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentStoreDelete_TaskCleanupFailureAborts(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM task_records`).WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	err = NewPostgresDocumentStore(db, nil).Delete(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
