package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TaskClaim is a delivery task claimed for exclusive processing. The
// claiming transaction stays open for the duration of the attempt; the
// row lock it holds is what keeps concurrent workers off this task.
// Exactly one of Complete, Retry, Abandon, or Release must be called.
type TaskClaim struct {
	IssueID   uuid.UUID
	Recipient string
	Retries   int

	tx pgx.Tx
}

// EnqueueDeliveryTasks creates one delivery task per currently confirmed
// subscriber as a single set-based insert inside the caller's
// transaction. Sourcing the recipient list in SQL snapshots the
// subscriber set at publish time instead of racing a read-then-loop
// against concurrent confirmations.
func EnqueueDeliveryTasks(ctx context.Context, tx pgx.Tx, issueID uuid.UUID) (int64, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO issue_delivery_queue (newsletter_issue_id, subscriber_email, n_retries, execute_after)
		SELECT $1, email, 0, now()
		FROM subscriptions
		WHERE status = 'confirmed'
	`, issueID)
	if err != nil {
		return 0, fmt.Errorf("enqueueing delivery tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DequeueDeliveryTask claims one due task with a lock-skipping read.
// SKIP LOCKED makes concurrent workers claim disjoint rows, so a task is
// never attempted by two workers at once. Returns (nil, nil) when no
// task is due.
func (s *PostgresStore) DequeueDeliveryTask(ctx context.Context) (*TaskClaim, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning dequeue transaction: %w", err)
	}

	claim := &TaskClaim{tx: tx}
	err = tx.QueryRow(ctx, `
		SELECT newsletter_issue_id, subscriber_email, n_retries
		FROM issue_delivery_queue
		WHERE execute_after <= now()
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`).Scan(&claim.IssueID, &claim.Recipient, &claim.Retries)
	if err != nil {
		tx.Rollback(ctx)
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeuing delivery task: %w", err)
	}

	return claim, nil
}

// Complete removes the task and commits: delivery succeeded.
func (c *TaskClaim) Complete(ctx context.Context) error {
	if err := c.delete(ctx); err != nil {
		c.tx.Rollback(ctx)
		return err
	}
	if err := c.tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing task completion: %w", err)
	}
	return nil
}

// Retry records a failed attempt and reschedules the task: the row
// survives for a later claim, by this worker or another.
func (c *TaskClaim) Retry(ctx context.Context, delay time.Duration) error {
	_, err := c.tx.Exec(ctx, `
		UPDATE issue_delivery_queue
		SET n_retries = n_retries + 1,
		    execute_after = now() + make_interval(secs => $1)
		WHERE newsletter_issue_id = $2 AND subscriber_email = $3
	`, delay.Seconds(), c.IssueID, c.Recipient)
	if err != nil {
		c.tx.Rollback(ctx)
		return fmt.Errorf("updating task retry state: %w", err)
	}
	if err := c.tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing task retry: %w", err)
	}
	return nil
}

// Abandon removes the task without a send having succeeded: either the
// recipient data is invalid or the retry ceiling was exceeded.
func (c *TaskClaim) Abandon(ctx context.Context) error {
	if err := c.delete(ctx); err != nil {
		c.tx.Rollback(ctx)
		return err
	}
	if err := c.tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing task abandonment: %w", err)
	}
	return nil
}

// Release rolls the claim back, returning the task to the queue
// untouched.
func (c *TaskClaim) Release(ctx context.Context) error {
	return c.tx.Rollback(ctx)
}

func (c *TaskClaim) delete(ctx context.Context) error {
	_, err := c.tx.Exec(ctx, `
		DELETE FROM issue_delivery_queue
		WHERE newsletter_issue_id = $1 AND subscriber_email = $2
	`, c.IssueID, c.Recipient)
	if err != nil {
		return fmt.Errorf("deleting delivery task: %w", err)
	}
	return nil
}

// PurgeAbandonedTasks deletes tasks whose retry count exceeded the
// ceiling. The worker runs this as a maintenance sweep after each
// handled task; it is not load-bearing for any single task.
func (s *PostgresStore) PurgeAbandonedTasks(ctx context.Context, maxRetries int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM issue_delivery_queue WHERE n_retries > $1
	`, maxRetries)
	if err != nil {
		return 0, fmt.Errorf("purging abandoned tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeliveryQueueDepth returns the number of tasks currently awaiting
// delivery.
func (s *PostgresStore) DeliveryQueueDepth(ctx context.Context) (int64, error) {
	var depth int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM issue_delivery_queue`).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("querying delivery queue depth: %w", err)
	}
	return depth, nil
}
