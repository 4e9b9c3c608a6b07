package provisioning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetgate/agentctl/internal/telemetry"
	"github.com/fleetgate/agentctl/pkg/tenant"
)

// ProcessNext processes one queued provisioning job. It returns false when
// the queue had nothing eligible to claim, and true only after a job was
// claimed and successfully marked done.
//
// Tenant-missing is deliberately non-transient: it indicates an out-of-band
// deletion and does not consume the retry budget.
func ProcessNext(ctx context.Context, queue Queue, tenants tenant.Store, defaultMaxAttempts, retryBaseSeconds int, logger *slog.Logger) (bool, error) {
	if depth, err := queue.QueueDepth(ctx); err == nil {
		telemetry.ProvisioningQueueDepth.Set(float64(depth))
	}

	job, err := queue.ClaimNext(ctx)
	if err != nil {
		return false, fmt.Errorf("claiming next job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	maxAttempts := job.MaxAttempts
	if defaultMaxAttempts > maxAttempts {
		maxAttempts = defaultMaxAttempts
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	t, err := tenants.Get(ctx, job.TenantID)
	if err != nil {
		return processFailure(ctx, queue, job, maxAttempts, retryBaseSeconds, err, logger)
	}
	if t == nil {
		if err := queue.MarkDeadLetter(ctx, job.JobID, "tenant not found"); err != nil {
			return false, fmt.Errorf("marking job dead letter: %w", err)
		}
		logEvent(logger, "provisioning_job_dead_letter", job, job.Retries+1, maxAttempts, "tenant not found", "")
		return false, nil
	}

	if t.Status != tenant.StatusActive {
		if err := tenants.Activate(ctx, job.TenantID); err != nil {
			return processFailure(ctx, queue, job, maxAttempts, retryBaseSeconds, err, logger)
		}
	}

	if err := queue.MarkDone(ctx, job.JobID); err != nil {
		return false, fmt.Errorf("marking job done: %w", err)
	}
	logEvent(logger, "provisioning_job_completed", job, job.Retries, maxAttempts, "", "")
	return true, nil
}

func processFailure(ctx context.Context, queue Queue, job *Job, maxAttempts, retryBaseSeconds int, cause error, logger *slog.Logger) (bool, error) {
	failureType := fmt.Sprintf("%T", cause)

	if job.Retries+1 >= maxAttempts {
		if err := queue.MarkDeadLetter(ctx, job.JobID, cause.Error()); err != nil {
			return false, fmt.Errorf("marking job dead letter: %w", err)
		}
		logEvent(logger, "provisioning_job_dead_letter", job, job.Retries+1, maxAttempts, cause.Error(), failureType)
		return false, nil
	}

	delaySeconds := retryBaseSeconds
	if delaySeconds < 0 {
		delaySeconds = 0
	}
	for i := 0; i < job.Retries; i++ {
		delaySeconds *= 2
	}

	if err := queue.MarkRetry(ctx, job.JobID, cause.Error(), delaySeconds); err != nil {
		return false, fmt.Errorf("marking job retry: %w", err)
	}
	logEvent(logger, "provisioning_job_retry", job, job.Retries+1, maxAttempts, cause.Error(), failureType)
	return false, nil
}

func logEvent(logger *slog.Logger, event string, job *Job, retries, maxAttempts int, reason, failureType string) {
	outcome := "done"
	switch event {
	case "provisioning_job_dead_letter":
		outcome = "dead_letter"
	case "provisioning_job_retry":
		outcome = "retry"
	}
	telemetry.ProvisioningJobsProcessedTotal.WithLabelValues(outcome).Inc()

	attrs := []any{
		"event", event,
		"job_id", job.JobID,
		"tenant_id", job.TenantID,
		"step", job.Step,
		"retries", retries,
		"max_attempts", maxAttempts,
	}
	if reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	if failureType != "" {
		attrs = append(attrs, "failure_type", failureType)
	}
	logger.Info(event, attrs...)
}

// RunLoop runs ProcessNext continuously, sleeping pollInterval whenever the
// queue has nothing eligible, until ctx is cancelled.
func RunLoop(ctx context.Context, queue Queue, tenants tenant.Store, defaultMaxAttempts, retryBaseSeconds int, pollInterval time.Duration, logger *slog.Logger) {
	logger.Info("provisioning worker loop started", "poll_interval", pollInterval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("provisioning worker loop stopped")
			return
		default:
		}

		processed, err := ProcessNext(ctx, queue, tenants, defaultMaxAttempts, retryBaseSeconds, logger)
		if err != nil {
			logger.Error("provisioning worker tick", "error", err)
		}
		if !processed {
			select {
			case <-ctx.Done():
				logger.Info("provisioning worker loop stopped")
				return
			case <-time.After(pollInterval):
			}
		}
	}
}
