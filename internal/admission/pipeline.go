package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetgate/agentctl/internal/authn"
	"github.com/fleetgate/agentctl/internal/gateway"
	"github.com/fleetgate/agentctl/internal/quota"
	"github.com/fleetgate/agentctl/internal/ratelimit"
	"github.com/fleetgate/agentctl/internal/telemetry"
	"github.com/fleetgate/agentctl/pkg/plan"
	"github.com/fleetgate/agentctl/pkg/tenant"
	"github.com/fleetgate/agentctl/pkg/usage"
)

// Request is one POST /tenants/{tenant_id}/runs call's inputs.
type Request struct {
	PathTenantID    string
	XTenantID       string
	XCustomerUserID string
	XAPIKey         string
	Authorization   string
	AgentID         string
	Message         string
}

// Result is the admitted run's outcome.
type Result struct {
	TenantID   string
	RequestID  string
	OutputText string
}

// Pipeline wires the collaborators the 9-stage admission algorithm needs.
type Pipeline struct {
	tenants    tenant.Store
	plans      plan.Store
	limiter    ratelimit.Limiter
	meter      usage.Meter
	gateway    gateway.AgentGateway
	tenantAuth *authn.TenantAuthenticator

	now func() time.Time
}

// New creates a Pipeline. tenantAuth may be nil for tests that want to
// bypass authentication entirely; production wiring always constructs a
// TenantAuthenticator, which itself enforces the production-must-
// configure-auth rule.
func New(
	tenants tenant.Store,
	plans plan.Store,
	limiter ratelimit.Limiter,
	meter usage.Meter,
	gw gateway.AgentGateway,
	tenantAuth *authn.TenantAuthenticator,
) *Pipeline {
	return &Pipeline{
		tenants:    tenants,
		plans:      plans,
		limiter:    limiter,
		meter:      meter,
		gateway:    gw,
		tenantAuth: tenantAuth,
		now:        time.Now,
	}
}

// Run executes the full admission pipeline for req, recording the outcome
// to the runs_admitted/runs_rejected counters.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	result, err := p.run(ctx, req)
	if err != nil {
		var admErr *Error
		kind := string(KindMisconfigured)
		if errors.As(err, &admErr) {
			kind = string(admErr.Kind)
			if admErr.Kind == KindRateLimited && admErr.Reason == "rate limit" {
				telemetry.RateLimitDeniedTotal.WithLabelValues(req.XTenantID).Inc()
			}
		}
		telemetry.RunsRejectedTotal.WithLabelValues(kind).Inc()
		return result, err
	}
	telemetry.RunsAdmittedTotal.WithLabelValues(req.XTenantID).Inc()
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, req Request) (Result, error) {
	if req.XTenantID == "" || req.XCustomerUserID == "" {
		return Result{}, newError(KindInvalidInput, "X-Tenant-Id and X-Customer-User-Id are required")
	}
	if req.PathTenantID != req.XTenantID {
		return Result{}, newError(KindForbidden, "path tenant_id does not match header tenant")
	}

	if _, err := p.authenticate(req); err != nil {
		return Result{}, err
	}

	t, err := p.tenants.Get(ctx, req.XTenantID)
	if err != nil {
		return Result{}, wrapError(KindDependencyUnavailable, "loading tenant", err)
	}
	if t == nil {
		return Result{}, newError(KindNotFound, "unknown tenant")
	}
	if t.Status != tenant.StatusActive {
		return Result{}, newError(KindConflict, "tenant is not active")
	}

	pl, err := p.plans.Get(ctx, t.Plan)
	if err != nil {
		return Result{}, wrapError(KindDependencyUnavailable, "loading plan", err)
	}
	if pl == nil || !pl.Active {
		return Result{}, newError(KindConflict, "tenant plan is not active")
	}

	rateKey := fmt.Sprintf("%s:%s", req.XTenantID, req.AgentID)
	allowed, err := p.limiter.Allow(ctx, rateKey)
	if err != nil {
		return Result{}, wrapError(KindDependencyUnavailable, "checking rate limit", err)
	}
	if !allowed {
		return Result{}, newReasonError(KindRateLimited, "rate limit", "per-minute rate limit exceeded")
	}

	month := p.now().UTC().Format("2006-01")
	summary, err := p.meter.SummarizeTenantMonth(ctx, req.XTenantID, month)
	if err != nil {
		return Result{}, wrapError(KindDependencyUnavailable, "summarizing usage", err)
	}

	estimatedTokens := estimateTokens(len(req.Message)) * 2
	counter := quota.Counter{MessagesUsed: summary.MessagesUsed, TokensUsed: summary.TokensUsed}
	policy := quota.Policy{IncludedMessages: pl.MonthlyMessages, HardTokenCap: pl.MonthlyTokenCap}
	if !quota.Allow(policy, counter, estimatedTokens) {
		return Result{}, newReasonError(KindRateLimited, "quota", "tenant monthly quota exceeded")
	}

	start := p.now()
	outputText, err := p.gateway.Execute(ctx, req.XTenantID, req.AgentID, req.Message)
	if err != nil {
		return Result{}, wrapError(KindDependencyUnavailable, "executing agent gateway", err)
	}
	latency := p.now().Sub(start)
	latencyMs := int(latency.Milliseconds())
	telemetry.RunLatency.Observe(latency.Seconds())

	requestID := uuid.NewString()
	event := usage.Event{
		RequestID:    requestID,
		TenantID:     req.XTenantID,
		AgentID:      req.AgentID,
		Model:        "provider-default",
		LatencyMs:    latencyMs,
		TokensIn:     estimateTokens(len(req.Message)),
		TokensOut:    estimateTokens(len(outputText)),
		CostEstimate: 0.0,
		CreatedAt:    p.now().UTC(),
	}
	if err := p.meter.Record(ctx, event); err != nil {
		return Result{}, wrapError(KindDependencyUnavailable, "recording usage", err)
	}

	return Result{TenantID: req.XTenantID, RequestID: requestID, OutputText: outputText}, nil
}

func (p *Pipeline) authenticate(req Request) (authn.TenantContext, error) {
	if p.tenantAuth == nil {
		return authn.TenantContext{TenantID: req.XTenantID, CustomerUserID: req.XCustomerUserID}, nil
	}

	ctx, err := p.tenantAuth.Authenticate(req.PathTenantID, req.XTenantID, req.XCustomerUserID, req.XAPIKey, req.Authorization)
	if err != nil {
		return authn.TenantContext{}, translateAuthError(err)
	}
	return ctx, nil
}

func estimateTokens(byteLen int) int {
	estimate := byteLen / 4
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}
