package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tenantColumns = `tenant_id, name, plan, status, created_at`

// PostgresStore is the durable tenant catalog.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a tenant Store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanTenantRow(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.TenantID, &t.Name, &t.Plan, &t.Status, &t.CreatedAt)
	return t, err
}

// Get returns the tenant with the given id, or nil if it does not exist.
func (s *PostgresStore) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE tenant_id = $1`, tenantID)
	t, err := scanTenantRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting tenant: %w", err)
	}
	return &t, nil
}

// Create inserts a new tenant row.
func (s *PostgresStore) Create(ctx context.Context, t Tenant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5)
	`, t.TenantID, t.Name, t.Plan, t.Status, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating tenant: %w", err)
	}
	return nil
}

// Activate flips a tenant's status to active. Idempotent: re-activating an
// already-active tenant is a no-op.
func (s *PostgresStore) Activate(ctx context.Context, tenantID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tenants SET status = $2 WHERE tenant_id = $1 AND status <> $2
	`, tenantID, StatusActive)
	if err != nil {
		return fmt.Errorf("activating tenant: %w", err)
	}
	return nil
}

// SetPlan moves a tenant to a different plan.
func (s *PostgresStore) SetPlan(ctx context.Context, tenantID, planID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tenants SET plan = $2 WHERE tenant_id = $1`, tenantID, planID)
	if err != nil {
		return fmt.Errorf("updating tenant plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
