package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrInvalidConfig     = errors.New("pg: invalid connection config")
	ErrConnectionFailed  = errors.New("pg: failed to open connection")
	ErrHealthcheckFailed = errors.New("pg: healthcheck failed")
	ErrMigrationsFailed  = errors.New("pg: failed to apply migrations")
)

// IsNotFound reports whether err is pgx's empty-result error, so stores
// can map it to their own ErrNotFound sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKey reports a unique constraint violation (SQLSTATE 23505).
func IsDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolation reports a referential integrity violation
// (SQLSTATE 23503).
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
