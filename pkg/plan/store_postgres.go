package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const planColumns = `plan_id, display_name, monthly_messages, monthly_token_cap, max_agents, active, created_at`

// PostgresStore is the durable plan catalog backed by the shared schema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a plan Store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanPlanRow(row pgx.Row) (Plan, error) {
	var p Plan
	err := row.Scan(&p.PlanID, &p.DisplayName, &p.MonthlyMessages, &p.MonthlyTokenCap, &p.MaxAgents, &p.Active, &p.CreatedAt)
	return p, err
}

// Get returns the plan with the given id, or nil if it does not exist.
func (s *PostgresStore) Get(ctx context.Context, planID string) (*Plan, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE plan_id = $1`, planID)
	p, err := scanPlanRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting plan: %w", err)
	}
	return &p, nil
}

// List returns all plans ordered by plan_id.
func (s *PostgresStore) List(ctx context.Context) ([]Plan, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+planColumns+` FROM plans ORDER BY plan_id`)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		p, err := scanPlanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning plan row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create inserts a new plan. A conflicting plan_id is an error — plans are
// not meant to be silently overwritten.
func (s *PostgresStore) Create(ctx context.Context, p Plan) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO plans (`+planColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.PlanID, p.DisplayName, p.MonthlyMessages, p.MonthlyTokenCap, p.MaxAgents, p.Active, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating plan: %w", err)
	}
	return nil
}

// EnsureSeeded inserts the seed plans if they are not already present.
// Existing rows are left untouched.
func (s *PostgresStore) EnsureSeeded(ctx context.Context) error {
	for _, p := range Seed() {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO plans (`+planColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (plan_id) DO NOTHING
		`, p.PlanID, p.DisplayName, p.MonthlyMessages, p.MonthlyTokenCap, p.MaxAgents, p.Active, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("seeding plan %s: %w", p.PlanID, err)
		}
	}
	return nil
}
