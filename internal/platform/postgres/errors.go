package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/docintel-api/internal/store"
)

// integrityViolation describes how an integrity-constraint SQLSTATE surfaces
// to callers of the stores.
type integrityViolation struct {
	sentinel error
	kind     string
}

// integrityViolations is keyed by SQLSTATE class 23 codes.
var integrityViolations = map[string]integrityViolation{
	"23505": {store.ErrDuplicate, "unique violation"},
	"23503": {store.ErrInvalidEntity, "foreign key violation"},
	"23514": {store.ErrInvalidEntity, "check constraint violation"},
	"23502": {store.ErrInvalidEntity, "not null violation"},
}

// MapError translates driver errors into store sentinels. The result wraps
// both the sentinel and the original error, so callers can match either.
// Errors without a mapping are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	v, ok := integrityViolations[pgErr.Code]
	if !ok {
		return err
	}
	return fmt.Errorf("%w: %s on %s: %w", v.sentinel, v.kind, violatedObject(pgErr), err)
}

// violatedObject names the table and the constraint or column involved,
// e.g. "documents(documents_title_check)" or "documents.title".
func violatedObject(pgErr *pgconn.PgError) string {
	switch {
	case pgErr.ConstraintName != "":
		return fmt.Sprintf("%s(%s)", pgErr.TableName, pgErr.ConstraintName)
	case pgErr.ColumnName != "":
		return pgErr.TableName + "." + pgErr.ColumnName
	default:
		return pgErr.TableName
	}
}

// CheckRowsAffected returns notFound, or store.ErrNotFound when notFound is
// nil, if an UPDATE or DELETE matched no row.
func CheckRowsAffected(result sql.Result, notFound error) error {
	if result == nil {
		return errors.New("no result to check rows affected")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if notFound == nil {
		return store.ErrNotFound
	}
	return notFound
}
