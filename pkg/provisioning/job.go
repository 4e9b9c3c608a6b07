// Package provisioning implements the durable provisioning job queue and
// the worker that drains it.
package provisioning

import (
	"context"
	"time"
)

// Job states. Queued and Running are transient; Done and DeadLetter are
// absorbing terminal states.
const (
	StateQueued     = "queued"
	StateRunning    = "running"
	StateDone       = "done"
	StateDeadLetter = "dead_letter"
)

// StepBootstrap is the only defined provisioning step.
const StepBootstrap = "bootstrap"

// maxErrorLen truncates persisted job errors to this many characters.
const maxErrorLen = 500

// Job is a unit of deferred work that prepares a tenant for use.
type Job struct {
	JobID          string
	TenantID       string
	Step           string
	IdempotencyKey string
	State          string
	Retries        int
	MaxAttempts    int
	Error          string
	AvailableAt    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Queue is the durable, idempotent, single-consumer-per-job work queue
// contract. Implementations: PostgresQueue (durable), MemoryQueue (tests),
// NotifyingQueue (advisory Redis transport wrapper over either).
type Queue interface {
	// Enqueue inserts the job. A row with the same IdempotencyKey already
	// present is a no-op: the prior job wins.
	Enqueue(ctx context.Context, job Job) error
	// ClaimNext atomically selects and claims the single eligible queued
	// job, or returns nil if none is eligible.
	ClaimNext(ctx context.Context) (*Job, error)
	// MarkDone transitions queued|running -> done.
	MarkDone(ctx context.Context, jobID string) error
	// MarkRetry transitions running -> queued, incrementing retries and
	// scheduling the next attempt retryInSeconds from now.
	MarkRetry(ctx context.Context, jobID string, errMsg string, retryInSeconds int) error
	// MarkDeadLetter transitions running -> dead_letter.
	MarkDeadLetter(ctx context.Context, jobID string, errMsg string) error
	// GetJob is a read-only lookup.
	GetJob(ctx context.Context, jobID string) (*Job, error)
	// QueueDepth counts jobs currently in state queued.
	QueueDepth(ctx context.Context) (int, error)
}

func truncateError(s string) string {
	if len(s) <= maxErrorLen {
		return s
	}
	return s[:maxErrorLen]
}
