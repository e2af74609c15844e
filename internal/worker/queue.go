package worker

import (
	"context"
	"time"

	"github.com/akonev/newsletter-delivery/internal/store"
	"github.com/google/uuid"
)

// NewPostgresQueue adapts the store's task claims to the worker's Queue
// interface.
func NewPostgresQueue(s *store.PostgresStore) Queue {
	return &postgresQueue{store: s}
}

type postgresQueue struct {
	store *store.PostgresStore
}

func (q *postgresQueue) Dequeue(ctx context.Context) (Task, error) {
	claim, err := q.store.DequeueDeliveryTask(ctx)
	if err != nil || claim == nil {
		return nil, err
	}
	return &postgresTask{claim: claim}, nil
}

func (q *postgresQueue) PurgeAbandoned(ctx context.Context, maxRetries int) (int64, error) {
	return q.store.PurgeAbandonedTasks(ctx, maxRetries)
}

type postgresTask struct {
	claim *store.TaskClaim
}

func (t *postgresTask) IssueID() uuid.UUID { return t.claim.IssueID }
func (t *postgresTask) Recipient() string  { return t.claim.Recipient }
func (t *postgresTask) Retries() int       { return t.claim.Retries }

func (t *postgresTask) Complete(ctx context.Context) error { return t.claim.Complete(ctx) }
func (t *postgresTask) Abandon(ctx context.Context) error  { return t.claim.Abandon(ctx) }
func (t *postgresTask) Release(ctx context.Context) error  { return t.claim.Release(ctx) }

func (t *postgresTask) Retry(ctx context.Context, delay time.Duration) error {
	return t.claim.Retry(ctx, delay)
}

// NopRecorder discards all delivery metrics.
type NopRecorder struct{}

func (NopRecorder) EmailSent(context.Context)               {}
func (NopRecorder) EmailFailed(context.Context)             {}
func (NopRecorder) TaskDeadLettered(context.Context)        {}
func (NopRecorder) InvalidRecipientDropped(context.Context) {}
