package admission

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fleetgate/agentctl/internal/authn"
	"github.com/fleetgate/agentctl/internal/gateway"
	"github.com/fleetgate/agentctl/internal/ratelimit"
	"github.com/fleetgate/agentctl/pkg/plan"
	"github.com/fleetgate/agentctl/pkg/tenant"
	"github.com/fleetgate/agentctl/pkg/usage"
)

func newTestPipeline(t *testing.T, limiter ratelimit.Limiter) (*Pipeline, *tenant.MemoryStore, *plan.MemoryStore, *usage.MemoryMeter) {
	t.Helper()
	tenants := tenant.NewMemoryStore()
	plans := plan.NewMemoryStore()
	meter := usage.NewMemoryMeter()
	gw := gateway.NewPlaceholderGateway()

	if err := plans.Create(context.Background(), plan.Plan{
		PlanID: "starter", DisplayName: "Starter", MonthlyMessages: 10, MonthlyTokenCap: 1000, Active: true,
	}); err != nil {
		t.Fatalf("seeding plan: %v", err)
	}
	if err := tenants.Create(context.Background(), tenant.Tenant{
		TenantID: "tenant-a", Name: "Tenant A", Plan: "starter", Status: tenant.StatusActive,
	}); err != nil {
		t.Fatalf("seeding tenant: %v", err)
	}

	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter(100)
	}
	p := New(tenants, plans, limiter, meter, gw, nil)
	return p, tenants, plans, meter
}

func baseRequest() Request {
	return Request{
		PathTenantID:    "tenant-a",
		XTenantID:       "tenant-a",
		XCustomerUserID: "user-1",
		AgentID:         "agent-1",
		Message:         "hello agent",
	}
}

func TestPipeline_Run_AdmitsAndRecordsUsage(t *testing.T) {
	p, _, _, meter := newTestPipeline(t, nil)

	result, err := p.Run(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TenantID != "tenant-a" || result.RequestID == "" {
		t.Errorf("unexpected result: %+v", result)
	}
	if !strings.Contains(result.OutputText, "tenant-a") {
		t.Errorf("expected output to reference tenant, got %q", result.OutputText)
	}

	month := time.Now().UTC().Format("2006-01")
	summary, err := meter.SummarizeTenantMonth(context.Background(), "tenant-a", month)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.MessagesUsed != 1 {
		t.Errorf("expected one message recorded, got %d", summary.MessagesUsed)
	}
}

func TestPipeline_Run_MissingHeadersIsInvalidInput(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, nil)
	req := baseRequest()
	req.XCustomerUserID = ""

	_, err := p.Run(context.Background(), req)
	assertKind(t, err, KindInvalidInput)
}

func TestPipeline_Run_PathHeaderMismatchIsForbidden(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, nil)
	req := baseRequest()
	req.PathTenantID = "tenant-b"

	_, err := p.Run(context.Background(), req)
	assertKind(t, err, KindForbidden)
}

func TestPipeline_Run_UnknownTenantIsNotFound(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, nil)
	req := baseRequest()
	req.PathTenantID = "tenant-z"
	req.XTenantID = "tenant-z"

	_, err := p.Run(context.Background(), req)
	assertKind(t, err, KindNotFound)
}

func TestPipeline_Run_PendingTenantIsConflict(t *testing.T) {
	p, tenants, _, _ := newTestPipeline(t, nil)
	if err := tenants.Create(context.Background(), tenant.Tenant{
		TenantID: "tenant-pending", Plan: "starter", Status: tenant.StatusPending,
	}); err != nil {
		t.Fatalf("seeding pending tenant: %v", err)
	}

	req := baseRequest()
	req.PathTenantID = "tenant-pending"
	req.XTenantID = "tenant-pending"

	_, err := p.Run(context.Background(), req)
	assertKind(t, err, KindConflict)
}

func TestPipeline_Run_InactivePlanIsConflict(t *testing.T) {
	p, _, plans, _ := newTestPipeline(t, nil)
	if err := plans.Create(context.Background(), plan.Plan{PlanID: "frozen", Active: false}); err != nil {
		t.Fatalf("seeding plan: %v", err)
	}
	tenants := tenant.NewMemoryStore()
	if err := tenants.Create(context.Background(), tenant.Tenant{TenantID: "tenant-a", Plan: "frozen", Status: tenant.StatusActive}); err != nil {
		t.Fatalf("seeding tenant: %v", err)
	}
	p2 := New(tenants, plans, ratelimit.NewMemoryLimiter(100), usage.NewMemoryMeter(), gateway.NewPlaceholderGateway(), nil)

	_, err := p2.Run(context.Background(), baseRequest())
	assertKind(t, err, KindConflict)
}

func TestPipeline_Run_RateLimitExceededHasRateLimitReason(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, ratelimit.NewMemoryLimiter(1))

	if _, err := p.Run(context.Background(), baseRequest()); err != nil {
		t.Fatalf("first run within budget: unexpected error: %v", err)
	}

	_, err := p.Run(context.Background(), baseRequest())
	assertKind(t, err, KindRateLimited)

	var admErr *Error
	if !errors.As(err, &admErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if admErr.Reason != "rate limit" {
		t.Errorf("expected reason %q, got %q", "rate limit", admErr.Reason)
	}
}

func TestPipeline_Run_QuotaExceededHasQuotaReason(t *testing.T) {
	tenants := tenant.NewMemoryStore()
	plans := plan.NewMemoryStore()
	meter := usage.NewMemoryMeter()
	if err := plans.Create(context.Background(), plan.Plan{PlanID: "starter", MonthlyMessages: 0, MonthlyTokenCap: 1000, Active: true}); err != nil {
		t.Fatalf("seeding plan: %v", err)
	}
	if err := tenants.Create(context.Background(), tenant.Tenant{TenantID: "tenant-a", Plan: "starter", Status: tenant.StatusActive}); err != nil {
		t.Fatalf("seeding tenant: %v", err)
	}
	p := New(tenants, plans, ratelimit.NewMemoryLimiter(100), meter, gateway.NewPlaceholderGateway(), nil)

	_, err := p.Run(context.Background(), baseRequest())
	assertKind(t, err, KindRateLimited)

	var admErr *Error
	if !errors.As(err, &admErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if admErr.Reason != "quota" {
		t.Errorf("expected reason %q, got %q", "quota", admErr.Reason)
	}
}

func TestPipeline_Run_AuthenticationFailureIsUnauthenticated(t *testing.T) {
	tenants := tenant.NewMemoryStore()
	plans := plan.NewMemoryStore()
	if err := plans.Create(context.Background(), plan.Plan{PlanID: "starter", MonthlyMessages: 10, MonthlyTokenCap: 1000, Active: true}); err != nil {
		t.Fatalf("seeding plan: %v", err)
	}
	if err := tenants.Create(context.Background(), tenant.Tenant{TenantID: "tenant-a", Plan: "starter", Status: tenant.StatusActive}); err != nil {
		t.Fatalf("seeding tenant: %v", err)
	}

	tenantAuth := authn.NewTenantAuthenticator(map[string]string{"tenant-a": "correct-key"}, nil, true, false)
	p := New(tenants, plans, ratelimit.NewMemoryLimiter(100), usage.NewMemoryMeter(), gateway.NewPlaceholderGateway(), tenantAuth)

	req := baseRequest()
	req.XAPIKey = "wrong-key"

	_, err := p.Run(context.Background(), req)
	assertKind(t, err, KindUnauthenticated)
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of kind %s, got nil", want)
	}
	var admErr *Error
	if !errors.As(err, &admErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if admErr.Kind != want {
		t.Errorf("expected kind %s, got %s (%v)", want, admErr.Kind, admErr)
	}
}
