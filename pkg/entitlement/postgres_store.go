package entitlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orunkhq/orunk/pkg/pg"
)

// PostgresStore persists entitlements in the orunk_entitlements table
// (see migrations/00001_entitlements.sql).
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const entitlementColumns = `
	id, owner_id, feature_key, plan_id, status,
	purchase_date, expires_at, auto_renew,
	pending_switch_plan_id, parent_id,
	api_key, license_key,
	gateway, gateway_txn_id, gateway_sub_id,
	failure_reason, failed_at,
	override_activation_limit,
	created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Entitlement, error) {
	return s.one(ctx, `SELECT`+entitlementColumns+`
		FROM orunk_entitlements WHERE id = $1`, id)
}

func (s *PostgresStore) GetByAPIKey(ctx context.Context, key string) (*Entitlement, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	return s.one(ctx, `SELECT`+entitlementColumns+`
		FROM orunk_entitlements WHERE api_key = $1`, key)
}

func (s *PostgresStore) GetByLicenseKey(ctx context.Context, key string) (*Entitlement, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	return s.one(ctx, `SELECT`+entitlementColumns+`
		FROM orunk_entitlements WHERE license_key = $1`, key)
}

func (s *PostgresStore) GetByGatewaySubID(ctx context.Context, gateway, subID string) (*Entitlement, error) {
	if subID == "" {
		return nil, ErrNotFound
	}
	return s.one(ctx, `SELECT`+entitlementColumns+`
		FROM orunk_entitlements WHERE gateway = $1 AND gateway_sub_id = $2`, gateway, subID)
}

func (s *PostgresStore) GetPendingSwitch(ctx context.Context, parentID uuid.UUID) (*Entitlement, error) {
	return s.one(ctx, `SELECT`+entitlementColumns+`
		FROM orunk_entitlements
		WHERE parent_id = $1 AND status = $2
		ORDER BY created_at DESC LIMIT 1`, parentID, StatusPendingPayment)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Entitlement, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+entitlementColumns+`
		FROM orunk_entitlements
		WHERE owner_id = $1
		ORDER BY purchase_date DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time) ([]Entitlement, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+entitlementColumns+`
		FROM orunk_entitlements
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $2`,
		StatusActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

func (s *PostgresStore) Create(ctx context.Context, ent *Entitlement) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orunk_entitlements (`+entitlementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        NULLIF($11, ''), NULLIF($12, ''),
		        $13, $14, $15, $16, $17, $18, $19, $20)`,
		ent.ID, ent.OwnerID, ent.FeatureKey, ent.PlanID, ent.Status,
		ent.PurchaseDate, ent.ExpiresAt, ent.AutoRenew,
		ent.PendingSwitchPlanID, ent.ParentID,
		ent.APIKey, ent.LicenseKey,
		ent.Gateway, ent.GatewayTxnID, ent.GatewaySubID,
		ent.FailureReason, ent.FailedAt,
		ent.OverrideActivationLimit,
		ent.CreatedAt, ent.UpdatedAt)
	if pg.IsDuplicateKey(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *PostgresStore) Update(ctx context.Context, ent *Entitlement) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orunk_entitlements SET
			plan_id = $2, status = $3,
			expires_at = $4, auto_renew = $5,
			pending_switch_plan_id = $6,
			api_key = NULLIF($7, ''), license_key = NULLIF($8, ''),
			gateway = $9, gateway_txn_id = $10, gateway_sub_id = $11,
			failure_reason = $12, failed_at = $13,
			override_activation_limit = $14,
			updated_at = $15
		WHERE id = $1`,
		ent.ID, ent.PlanID, ent.Status,
		ent.ExpiresAt, ent.AutoRenew,
		ent.PendingSwitchPlanID,
		ent.APIKey, ent.LicenseKey,
		ent.Gateway, ent.GatewayTxnID, ent.GatewaySubID,
		ent.FailureReason, ent.FailedAt,
		ent.OverrideActivationLimit,
		ent.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) KeyExists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM orunk_entitlements
			WHERE api_key = $1 OR license_key = $1
		)`, key).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) one(ctx context.Context, query string, args ...any) (*Entitlement, error) {
	row := s.pool.QueryRow(ctx, query, args...)
	ent, err := scanEntitlement(row)
	if pg.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ent, nil
}

func scanEntitlement(row pgx.Row) (*Entitlement, error) {
	var (
		ent        Entitlement
		apiKey     *string
		licenseKey *string
	)
	err := row.Scan(
		&ent.ID, &ent.OwnerID, &ent.FeatureKey, &ent.PlanID, &ent.Status,
		&ent.PurchaseDate, &ent.ExpiresAt, &ent.AutoRenew,
		&ent.PendingSwitchPlanID, &ent.ParentID,
		&apiKey, &licenseKey,
		&ent.Gateway, &ent.GatewayTxnID, &ent.GatewaySubID,
		&ent.FailureReason, &ent.FailedAt,
		&ent.OverrideActivationLimit,
		&ent.CreatedAt, &ent.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if apiKey != nil {
		ent.APIKey = *apiKey
	}
	if licenseKey != nil {
		ent.LicenseKey = *licenseKey
	}
	return &ent, nil
}

func scanAll(rows pgx.Rows) ([]Entitlement, error) {
	var out []Entitlement
	for rows.Next() {
		ent, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ent)
	}
	return out, rows.Err()
}
