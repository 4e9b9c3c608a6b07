package provisioning

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryQueue is an in-process provisioning queue for tests. Claim ordering
// and state transitions match PostgresQueue exactly; the mutex plays the
// role FOR UPDATE SKIP LOCKED plays for the durable store.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]*Job
	keys map[string]string // idempotency_key -> job_id
}

// NewMemoryQueue creates an empty in-process provisioning queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs: make(map[string]*Job),
		keys: make(map[string]string),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.keys[job.IdempotencyKey]; exists {
		return nil
	}

	if job.AvailableAt.IsZero() {
		job.AvailableAt = time.Now().UTC()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.UpdatedAt = job.CreatedAt

	cp := job
	q.jobs[job.JobID] = &cp
	q.keys[job.IdempotencyKey] = job.JobID
	return nil
}

func (q *MemoryQueue) ClaimNext(_ context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	var candidates []*Job
	for _, j := range q.jobs {
		if j.State == StateQueued && !j.AvailableAt.After(now) {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].AvailableAt.Equal(candidates[j].AvailableAt) {
			return candidates[i].AvailableAt.Before(candidates[j].AvailableAt)
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	claimed := candidates[0]
	claimed.State = StateRunning
	claimed.UpdatedAt = now

	out := *claimed
	return &out, nil
}

func (q *MemoryQueue) MarkDone(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok || (j.State != StateQueued && j.State != StateRunning) {
		return nil
	}
	j.State = StateDone
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (q *MemoryQueue) MarkRetry(_ context.Context, jobID string, errMsg string, retryInSeconds int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok || j.State != StateRunning {
		return nil
	}
	if retryInSeconds < 0 {
		retryInSeconds = 0
	}
	j.State = StateQueued
	j.Retries++
	j.Error = truncateError(errMsg)
	j.AvailableAt = time.Now().UTC().Add(time.Duration(retryInSeconds) * time.Second)
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (q *MemoryQueue) MarkDeadLetter(_ context.Context, jobID string, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok || j.State != StateRunning {
		return nil
	}
	j.State = StateDeadLetter
	j.Retries++
	j.Error = truncateError(errMsg)
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (q *MemoryQueue) GetJob(_ context.Context, jobID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return nil, nil
	}
	out := *j
	return &out, nil
}

func (q *MemoryQueue) QueueDepth(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	depth := 0
	for _, j := range q.jobs {
		if j.State == StateQueued {
			depth++
		}
	}
	return depth, nil
}
