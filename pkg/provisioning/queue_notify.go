package provisioning

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// NotifyingQueue composes an advisory Redis signal layer in front of a
// durable Queue. It substitutes for the Azure Storage Queue / Service Bus
// transport wrappers the original system used: it sends a signal on
// enqueue, drains one signal per claim, and republishes to a dead-letter
// channel on MarkDeadLetter. The transport is advisory only — the delegate
// Queue remains the authoritative state, and a missed or duplicated signal
// never changes what claim_next actually returns.
type NotifyingQueue struct {
	delegate       Queue
	rdb            *redis.Client
	signalKey      string
	deadLetterChan string
	logger         *slog.Logger
}

// NewNotifyingQueue wraps delegate with a Redis-backed signal layer. keyPrefix
// namespaces the list and channel used for signaling.
func NewNotifyingQueue(delegate Queue, rdb *redis.Client, keyPrefix string, logger *slog.Logger) *NotifyingQueue {
	return &NotifyingQueue{
		delegate:       delegate,
		rdb:            rdb,
		signalKey:      keyPrefix + ":signal",
		deadLetterChan: keyPrefix + ":deadletter",
		logger:         logger,
	}
}

type signal struct {
	JobID string `json:"job_id"`
	Retry bool   `json:"retry,omitempty"`
}

func (q *NotifyingQueue) Enqueue(ctx context.Context, job Job) error {
	if err := q.delegate.Enqueue(ctx, job); err != nil {
		return err
	}
	q.publishSignal(ctx, signal{JobID: job.JobID})
	return nil
}

// ClaimNext drains one advisory signal (if any is waiting) before deferring
// to the delegate. The drained signal is purely informative — the delegate
// decides what is actually claimable regardless of whether a signal was
// present, since the durable store is authoritative.
func (q *NotifyingQueue) ClaimNext(ctx context.Context) (*Job, error) {
	q.drainSignal(ctx)
	return q.delegate.ClaimNext(ctx)
}

func (q *NotifyingQueue) MarkDone(ctx context.Context, jobID string) error {
	return q.delegate.MarkDone(ctx, jobID)
}

func (q *NotifyingQueue) MarkRetry(ctx context.Context, jobID string, errMsg string, retryInSeconds int) error {
	if err := q.delegate.MarkRetry(ctx, jobID, errMsg, retryInSeconds); err != nil {
		return err
	}
	q.publishSignal(ctx, signal{JobID: jobID, Retry: true})
	return nil
}

// MarkDeadLetter writes the durable dead-letter transition and then
// publishes to the dead-letter topic as a separate, non-transactional step
// (see DESIGN.md Open Question (b)): a crash between the two leaves the
// durable store correct but the notification possibly undelivered.
func (q *NotifyingQueue) MarkDeadLetter(ctx context.Context, jobID string, errMsg string) error {
	if err := q.delegate.MarkDeadLetter(ctx, jobID, errMsg); err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]string{"job_id": jobID, "error": truncateError(errMsg)})
	if err := q.rdb.Publish(ctx, q.deadLetterChan, payload).Err(); err != nil {
		q.logger.Warn("publishing dead letter signal", "job_id", jobID, "error", err)
	}
	return nil
}

func (q *NotifyingQueue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return q.delegate.GetJob(ctx, jobID)
}

func (q *NotifyingQueue) QueueDepth(ctx context.Context) (int, error) {
	return q.delegate.QueueDepth(ctx)
}

func (q *NotifyingQueue) publishSignal(ctx context.Context, s signal) {
	payload, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := q.rdb.LPush(ctx, q.signalKey, payload).Err(); err != nil {
		q.logger.Warn("publishing provisioning signal", "job_id", s.JobID, "error", err)
	}
}

func (q *NotifyingQueue) drainSignal(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	q.rdb.BRPop(drainCtx, 10*time.Millisecond, q.signalKey)
}
