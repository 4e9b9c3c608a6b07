package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `job_id, tenant_id, step, idempotency_key, state, retries, max_attempts, error, available_at, created_at, updated_at`

// PostgresQueue is the durable provisioning queue. ClaimNext uses
// SELECT ... FOR UPDATE SKIP LOCKED so exactly one concurrent worker ever
// observes a given row as claimable.
type PostgresQueue struct {
	pool *pgxpool.Pool
}

// NewPostgresQueue creates a provisioning Queue backed by the given pool.
func NewPostgresQueue(pool *pgxpool.Pool) *PostgresQueue {
	return &PostgresQueue{pool: pool}
}

func scanJobRow(row pgx.Row) (Job, error) {
	var j Job
	var errMsg *string
	err := row.Scan(&j.JobID, &j.TenantID, &j.Step, &j.IdempotencyKey, &j.State, &j.Retries, &j.MaxAttempts, &errMsg, &j.AvailableAt, &j.CreatedAt, &j.UpdatedAt)
	if errMsg != nil {
		j.Error = *errMsg
	}
	return j, err
}

// Enqueue inserts the job. A conflicting idempotency_key is a no-op.
func (q *PostgresQueue) Enqueue(ctx context.Context, job Job) error {
	if job.AvailableAt.IsZero() {
		job.AvailableAt = time.Now().UTC()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.UpdatedAt = job.CreatedAt

	_, err := q.pool.Exec(ctx, `
		INSERT INTO provisioning_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, job.JobID, job.TenantID, job.Step, job.IdempotencyKey, job.State, job.Retries, job.MaxAttempts,
		job.Error, job.AvailableAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("enqueuing job: %w", err)
	}
	return nil
}

// ClaimNext atomically claims the single eligible queued job, ordered by
// available_at then created_at, and transitions it to running.
func (q *PostgresQueue) ClaimNext(ctx context.Context) (*Job, error) {
	row := q.pool.QueryRow(ctx, `
		UPDATE provisioning_jobs
		SET state = 'running', updated_at = now()
		WHERE job_id = (
			SELECT job_id FROM provisioning_jobs
			WHERE state = 'queued' AND available_at <= now()
			ORDER BY available_at, created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns)

	job, err := scanJobRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming next job: %w", err)
	}
	return &job, nil
}

// MarkDone transitions queued|running -> done.
func (q *PostgresQueue) MarkDone(ctx context.Context, jobID string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE provisioning_jobs SET state = 'done', updated_at = now()
		WHERE job_id = $1 AND state IN ('queued', 'running')
	`, jobID)
	if err != nil {
		return fmt.Errorf("marking job done: %w", err)
	}
	return nil
}

// MarkRetry transitions running -> queued, incrementing retries and
// rescheduling available_at.
func (q *PostgresQueue) MarkRetry(ctx context.Context, jobID string, errMsg string, retryInSeconds int) error {
	if retryInSeconds < 0 {
		retryInSeconds = 0
	}
	_, err := q.pool.Exec(ctx, `
		UPDATE provisioning_jobs
		SET state = 'queued', retries = retries + 1, error = $2,
			available_at = now() + ($3 || ' seconds')::interval, updated_at = now()
		WHERE job_id = $1 AND state = 'running'
	`, jobID, truncateError(errMsg), retryInSeconds)
	if err != nil {
		return fmt.Errorf("marking job retry: %w", err)
	}
	return nil
}

// MarkDeadLetter transitions running -> dead_letter.
func (q *PostgresQueue) MarkDeadLetter(ctx context.Context, jobID string, errMsg string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE provisioning_jobs
		SET state = 'dead_letter', retries = retries + 1, error = $2, updated_at = now()
		WHERE job_id = $1 AND state = 'running'
	`, jobID, truncateError(errMsg))
	if err != nil {
		return fmt.Errorf("marking job dead letter: %w", err)
	}
	return nil
}

// GetJob is a read-only lookup.
func (q *PostgresQueue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	row := q.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM provisioning_jobs WHERE job_id = $1`, jobID)
	job, err := scanJobRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return &job, nil
}

// QueueDepth counts jobs currently in state queued.
func (q *PostgresQueue) QueueDepth(ctx context.Context) (int, error) {
	var depth int
	err := q.pool.QueryRow(ctx, `SELECT count(*) FROM provisioning_jobs WHERE state = 'queued'`).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("counting queued jobs: %w", err)
	}
	return depth, nil
}
