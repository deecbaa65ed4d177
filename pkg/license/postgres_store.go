package license

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orunkhq/orunk/pkg/pg"
)

// PostgresActivationStore persists activations in the orunk_activations
// table (see migrations/00002_activations.sql).
type PostgresActivationStore struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPostgresActivationStore(pool *pgxpool.Pool) *PostgresActivationStore {
	return &PostgresActivationStore{pool: pool, q: pool}
}

// querier is the subset of pgx shared by a pool and a transaction, so
// WithKeyLock can hand out a tx-bound copy of the store.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ ActivationStore = (*PostgresActivationStore)(nil)

const activationColumns = `
	id, license_key, site, active, activated_at, deactivated_at`

func (s *PostgresActivationStore) Find(ctx context.Context, key, site string) (*Activation, error) {
	row := s.q.QueryRow(ctx, `SELECT`+activationColumns+`
		FROM orunk_activations WHERE license_key = $1 AND site = $2`, key, site)

	act, err := scanActivation(row)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrActivationNotFound
		}
		return nil, err
	}
	return act, nil
}

func (s *PostgresActivationStore) CountActive(ctx context.Context, key string) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM orunk_activations
		WHERE license_key = $1 AND active`, key).Scan(&n)
	return n, err
}

func (s *PostgresActivationStore) List(ctx context.Context, key string) ([]Activation, error) {
	rows, err := s.q.Query(ctx, `SELECT`+activationColumns+`
		FROM orunk_activations
		WHERE license_key = $1
		ORDER BY activated_at DESC`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Activation
	for rows.Next() {
		act, err := scanActivation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *act)
	}
	return out, rows.Err()
}

func (s *PostgresActivationStore) Create(ctx context.Context, act *Activation) error {
	_, err := s.q.Exec(ctx, `INSERT INTO orunk_activations
		(id, license_key, site, active, activated_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		act.ID, act.Key, act.Site, act.Active, act.ActivatedAt, act.DeactivatedAt)
	return err
}

func (s *PostgresActivationStore) Update(ctx context.Context, act *Activation) error {
	tag, err := s.q.Exec(ctx, `UPDATE orunk_activations
		SET active = $2, activated_at = $3, deactivated_at = $4
		WHERE id = $1`,
		act.ID, act.Active, act.ActivatedAt, act.DeactivatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrActivationNotFound
	}
	return nil
}

// WithKeyLock opens a transaction and takes a per-key advisory lock, so
// two concurrent registrations of the same key cannot both pass the
// ceiling check. The lock releases with the transaction.
func (s *PostgresActivationStore) WithKeyLock(ctx context.Context, key string, fn func(ctx context.Context, st ActivationStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return err
	}

	txStore := &PostgresActivationStore{pool: s.pool, q: tx}
	if err := fn(ctx, txStore); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanActivation(row pgx.Row) (*Activation, error) {
	var act Activation
	err := row.Scan(
		&act.ID, &act.Key, &act.Site,
		&act.Active, &act.ActivatedAt, &act.DeactivatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &act, nil
}
