// Package usage implements the append-only usage meter and its monthly
// aggregation.
package usage

import (
	"context"
	"time"
)

// Event is a single admitted agent run, recorded once per request.
type Event struct {
	RequestID    string
	TenantID     string
	AgentID      string
	Model        string
	LatencyMs    int
	TokensIn     int
	TokensOut    int
	CostEstimate float64
	CreatedAt    time.Time
}

// Summary is a per-tenant-month (or all-tenants-month) aggregate.
type Summary struct {
	TenantID     string
	MessagesUsed int
	TokensUsed   int
	CostEstimate float64
}

// Meter is the collaborator contract for recording and summarizing usage.
// Implementations: PostgresMeter (durable), MemoryMeter (tests).
type Meter interface {
	// Record appends an event. Recording the same RequestID twice is an
	// idempotent no-op: the first write wins.
	Record(ctx context.Context, event Event) error
	// SummarizeTenantMonth aggregates one tenant's usage for a UTC calendar
	// month ("YYYY-MM"). Zero-result months yield all zeros.
	SummarizeTenantMonth(ctx context.Context, tenantID, month string) (Summary, error)
	// SummarizeAllTenantsMonth aggregates every tenant's usage for a UTC
	// calendar month, sorted ascending by tenant_id.
	SummarizeAllTenantsMonth(ctx context.Context, month string) ([]Summary, error)
}

// MonthBounds returns [start, end) for a UTC calendar month given as
// "YYYY-MM". December wraps to January of the following year.
func MonthBounds(month string) (start, end time.Time, err error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end, nil
}
