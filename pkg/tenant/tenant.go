// Package tenant stores tenant accounts and their provisioning status.
package tenant

import (
	"context"
	"time"
)

// Status values a Tenant can hold. Only the provisioning worker transitions
// a tenant from Pending to Active.
const (
	StatusPending = "pending"
	StatusActive  = "active"
)

// Tenant is a customer account: the unit of isolation and quota.
type Tenant struct {
	TenantID  string
	Name      string
	Plan      string
	Status    string
	CreatedAt time.Time
}

// Store is the collaborator contract the rest of the system needs from the
// tenant catalog. Implementations: PostgresStore (durable), MemoryStore
// (tests).
type Store interface {
	Get(ctx context.Context, tenantID string) (*Tenant, error)
	Create(ctx context.Context, t Tenant) error
	Activate(ctx context.Context, tenantID string) error
	SetPlan(ctx context.Context, tenantID, planID string) error
}

type contextKey string

const tenantKey contextKey = "tenant"

// NewContext stores a resolved tenant in the context.
func NewContext(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// FromContext extracts the resolved tenant from the context, or nil.
func FromContext(ctx context.Context) *Tenant {
	t, _ := ctx.Value(tenantKey).(*Tenant)
	return t
}
