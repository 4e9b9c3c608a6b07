package provisioning

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fleetgate/agentctl/pkg/tenant"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessNext_NoJobs_ReturnsFalse(t *testing.T) {
	q := NewMemoryQueue()
	tenants := tenant.NewMemoryStore()

	processed, err := ProcessNext(context.Background(), q, tenants, 3, 5, discardLogger())
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if processed {
		t.Error("expected no job to be processed")
	}
}

func TestProcessNext_ActivatesTenantAndMarksDone(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	tenants := tenant.NewMemoryStore()

	if err := tenants.Create(ctx, tenant.Tenant{TenantID: "t1", Name: "Acme", Plan: "starter", Status: tenant.StatusPending, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if err := q.Enqueue(ctx, newQueuedJob("j1", "t1", "t1:bootstrap")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	processed, err := ProcessNext(ctx, q, tenants, 3, 5, discardLogger())
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if !processed {
		t.Fatal("expected job to be processed")
	}

	tn, _ := tenants.Get(ctx, "t1")
	if tn.Status != tenant.StatusActive {
		t.Fatalf("expected tenant active, got %s", tn.Status)
	}
	job, _ := q.GetJob(ctx, "j1")
	if job.State != StateDone {
		t.Fatalf("expected job done, got %s", job.State)
	}
}

func TestProcessNext_MissingTenant_DeadLettersWithoutConsumingRetryBudget(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	tenants := tenant.NewMemoryStore()

	job := newQueuedJob("j1", "ghost", "ghost:bootstrap")
	job.MaxAttempts = 3
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	processed, err := ProcessNext(ctx, q, tenants, 3, 5, discardLogger())
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if processed {
		t.Error("expected processed=false for a dead-lettered job")
	}

	got, _ := q.GetJob(ctx, "j1")
	if got.State != StateDeadLetter {
		t.Fatalf("expected dead_letter, got %s", got.State)
	}
	if got.Retries != 1 {
		t.Fatalf("expected retries=1 (one dead-letter transition), got %d", got.Retries)
	}
	if got.Error != "tenant not found" {
		t.Fatalf("expected error 'tenant not found', got %q", got.Error)
	}
}

// failingTenantStore returns a transient error from Get until the error
// budget is exhausted, letting the test drive backoff-then-dead-letter.
type failingTenantStore struct {
	*tenant.MemoryStore
	failUntilCall int
	calls         int
}

func (f *failingTenantStore) Get(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	f.calls++
	if f.calls <= f.failUntilCall {
		return nil, errors.New("transient lookup failure")
	}
	return f.MemoryStore.Get(ctx, tenantID)
}

func TestProcessNext_BackoffThenDeadLetter(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	tenants := &failingTenantStore{MemoryStore: tenant.NewMemoryStore(), failUntilCall: 10}

	job := newQueuedJob("j1", "t1", "t1:bootstrap")
	job.MaxAttempts = 2
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// First tick: retries 0 -> 1, retry_base_seconds=0 means available_at ~ now.
	processed, err := ProcessNext(ctx, q, tenants, 2, 0, discardLogger())
	if err != nil {
		t.Fatalf("first ProcessNext: %v", err)
	}
	if processed {
		t.Error("expected processed=false on first failing tick")
	}
	got, _ := q.GetJob(ctx, "j1")
	if got.State != StateQueued || got.Retries != 1 {
		t.Fatalf("expected queued with retries=1 after first tick, got state=%s retries=%d", got.State, got.Retries)
	}

	// Second tick: retries 1 -> 2 == max_attempts -> dead_letter.
	processed, err = ProcessNext(ctx, q, tenants, 2, 0, discardLogger())
	if err != nil {
		t.Fatalf("second ProcessNext: %v", err)
	}
	if processed {
		t.Error("expected processed=false on second failing tick")
	}
	got, _ = q.GetJob(ctx, "j1")
	if got.State != StateDeadLetter || got.Retries != 2 {
		t.Fatalf("expected dead_letter with retries=2 after second tick, got state=%s retries=%d", got.State, got.Retries)
	}
}

func TestProcessNext_ExponentialBackoffDelay(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	tenants := &failingTenantStore{MemoryStore: tenant.NewMemoryStore(), failUntilCall: 10}

	job := newQueuedJob("j1", "t1", "t1:bootstrap")
	job.MaxAttempts = 5
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	before := time.Now().UTC()
	if _, err := ProcessNext(ctx, q, tenants, 5, 10, discardLogger()); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	got, _ := q.GetJob(ctx, "j1")
	// retries was 0 at the time of failure, so delay = 10 * 2^0 = 10s.
	wantEarliest := before.Add(9 * time.Second)
	if got.AvailableAt.Before(wantEarliest) {
		t.Fatalf("expected available_at at least 9s out, got %s (before=%s)", got.AvailableAt, before)
	}
}
