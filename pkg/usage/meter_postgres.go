package usage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMeter is the durable usage meter. Record uses ON CONFLICT DO
// NOTHING against the request_id primary key, the Postgres-native
// equivalent of an application-level idempotent merge.
type PostgresMeter struct {
	pool *pgxpool.Pool
}

// NewPostgresMeter creates a usage Meter backed by the given connection pool.
func NewPostgresMeter(pool *pgxpool.Pool) *PostgresMeter {
	return &PostgresMeter{pool: pool}
}

func (m *PostgresMeter) Record(ctx context.Context, event Event) error {
	_, err := m.pool.Exec(ctx, `
		INSERT INTO usage_events (request_id, tenant_id, agent_id, model, latency_ms, tokens_in, tokens_out, cost_estimate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (request_id) DO NOTHING
	`, event.RequestID, event.TenantID, event.AgentID, event.Model, event.LatencyMs, event.TokensIn, event.TokensOut, event.CostEstimate, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording usage event: %w", err)
	}
	return nil
}

func (m *PostgresMeter) SummarizeTenantMonth(ctx context.Context, tenantID, month string) (Summary, error) {
	start, end, err := MonthBounds(month)
	if err != nil {
		return Summary{}, fmt.Errorf("parsing month: %w", err)
	}

	row := m.pool.QueryRow(ctx, `
		SELECT count(*), coalesce(sum(tokens_in + tokens_out), 0), coalesce(sum(cost_estimate), 0)
		FROM usage_events
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
	`, tenantID, start, end)

	var s Summary
	s.TenantID = tenantID
	if err := row.Scan(&s.MessagesUsed, &s.TokensUsed, &s.CostEstimate); err != nil {
		return Summary{}, fmt.Errorf("summarizing tenant month: %w", err)
	}
	return s, nil
}

func (m *PostgresMeter) SummarizeAllTenantsMonth(ctx context.Context, month string) ([]Summary, error) {
	start, end, err := MonthBounds(month)
	if err != nil {
		return nil, fmt.Errorf("parsing month: %w", err)
	}

	rows, err := m.pool.Query(ctx, `
		SELECT tenant_id, count(*), coalesce(sum(tokens_in + tokens_out), 0), coalesce(sum(cost_estimate), 0)
		FROM usage_events
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY tenant_id
		ORDER BY tenant_id
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("summarizing all tenants month: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.TenantID, &s.MessagesUsed, &s.TokensUsed, &s.CostEstimate); err != nil {
			return nil, fmt.Errorf("scanning tenant summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
