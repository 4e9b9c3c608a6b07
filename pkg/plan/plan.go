// Package plan stores the catalog of subscription plans tenants are bound to.
package plan

import (
	"context"
	"time"
)

// Plan is a named bundle of monthly limits a tenant is bound to.
type Plan struct {
	PlanID          string
	DisplayName     string
	MonthlyMessages int
	MonthlyTokenCap int
	MaxAgents       int
	Active          bool
	CreatedAt       time.Time
}

// Seed returns the plans that must exist at startup.
func Seed() []Plan {
	now := time.Now().UTC()
	return []Plan{
		{PlanID: "starter", DisplayName: "Starter", MonthlyMessages: 1000, MonthlyTokenCap: 200_000, MaxAgents: 1, Active: true, CreatedAt: now},
		{PlanID: "growth", DisplayName: "Growth", MonthlyMessages: 10_000, MonthlyTokenCap: 2_000_000, MaxAgents: 5, Active: true, CreatedAt: now},
		{PlanID: "enterprise", DisplayName: "Enterprise", MonthlyMessages: 100_000, MonthlyTokenCap: 20_000_000, MaxAgents: 50, Active: true, CreatedAt: now},
	}
}

// Store is the collaborator contract the rest of the system needs from the
// plan catalog. Implementations: PostgresStore (durable), MemoryStore (tests).
type Store interface {
	Get(ctx context.Context, planID string) (*Plan, error)
	List(ctx context.Context) ([]Plan, error)
	Create(ctx context.Context, p Plan) error
	EnsureSeeded(ctx context.Context) error
}
