package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/akonev/newsletter-delivery/internal/domain"
	"github.com/google/uuid"
)

// Task is one claimed delivery obligation. The implementation holds a
// row lock until exactly one of Complete, Retry, or Abandon is called.
type Task interface {
	IssueID() uuid.UUID
	Recipient() string
	Retries() int

	// Complete removes the task: the email went out.
	Complete(ctx context.Context) error
	// Retry reschedules the task after a failed send attempt.
	Retry(ctx context.Context, delay time.Duration) error
	// Abandon removes the task without a successful send.
	Abandon(ctx context.Context) error
	// Release returns the task to the queue untouched.
	Release(ctx context.Context) error
}

// Queue claims tasks for exclusive processing.
type Queue interface {
	// Dequeue claims one due task, or returns (nil, nil) if none is due.
	Dequeue(ctx context.Context) (Task, error)
	// PurgeAbandoned removes tasks past the retry ceiling.
	PurgeAbandoned(ctx context.Context, maxRetries int) (int64, error)
}

// IssueReader looks up stored newsletter issues.
type IssueReader interface {
	GetIssue(ctx context.Context, issueID uuid.UUID) (*domain.NewsletterIssue, error)
}

// Sender delivers one email. It must honor the context deadline.
type Sender interface {
	Send(ctx context.Context, recipient, subject, htmlBody, textBody string) error
}

// Recorder observes delivery outcomes. Implementations must be cheap
// and must not fail the delivery path.
type Recorder interface {
	EmailSent(ctx context.Context)
	EmailFailed(ctx context.Context)
	TaskDeadLettered(ctx context.Context)
	InvalidRecipientDropped(ctx context.Context)
}

// Config holds the worker's delay policy. The three delays are
// deliberately separate: an empty queue, a failed send, and an
// infrastructure error each back off on their own schedule.
type Config struct {
	// IdleDelay is slept when the queue has no due task.
	IdleDelay time.Duration
	// ErrorDelay is slept after an unexpected failure (e.g. lost
	// database connectivity) before the loop tries again.
	ErrorDelay time.Duration
	// RetryDelay is how far a failed task's next attempt is pushed out.
	RetryDelay time.Duration
	// MaxRetries is the per-task failure ceiling; one more failure
	// beyond it dead-letters the task.
	MaxRetries int
}

// DefaultConfig returns the delivery policy used in production.
func DefaultConfig() Config {
	return Config{
		IdleDelay:  10 * time.Second,
		ErrorDelay: 1 * time.Second,
		RetryDelay: 1 * time.Minute,
		MaxRetries: 10,
	}
}

// Worker drains the delivery queue, one task per cycle. Multiple
// workers can run concurrently against the same queue; the queue's
// lock-skipping claim keeps them off each other's tasks.
type Worker struct {
	queue   Queue
	issues  IssueReader
	sender  Sender
	metrics Recorder
	logger  *slog.Logger
	cfg     Config

	// sleep is injectable so tests can observe the backoff policy
	// without real timers.
	sleep func(ctx context.Context, d time.Duration)
}

func New(queue Queue, issues IssueReader, sender Sender, metrics Recorder, logger *slog.Logger, cfg Config) *Worker {
	return &Worker{
		queue:   queue,
		issues:  issues,
		sender:  sender,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		sleep:   sleepCtx,
	}
}

type outcome int

const (
	outcomeTaskHandled outcome = iota
	outcomeEmptyQueue
)

// Run processes tasks until the context is cancelled. It never returns
// on task or infrastructure failures; those only slow it down.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("delivery worker started")

	for {
		if ctx.Err() != nil {
			w.logger.Info("delivery worker stopping")
			return
		}

		switch out, err := w.runOnce(ctx); {
		case err != nil:
			w.logger.Error("delivery cycle failed", "error", err)
			w.sleep(ctx, w.cfg.ErrorDelay)
		case out == outcomeEmptyQueue:
			w.sleep(ctx, w.cfg.IdleDelay)
		}
	}
}

// runOnce claims and handles at most one task. The retry-or-abandon
// choice on a failed send is made in exactly one place so a task can
// never be both rescheduled and deleted in the same attempt.
func (w *Worker) runOnce(ctx context.Context) (outcome, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return 0, err
	}
	if task == nil {
		return outcomeEmptyQueue, nil
	}

	if err := w.handleTask(ctx, task); err != nil {
		return 0, err
	}

	// Maintenance sweep; not load-bearing for the task just handled.
	if purged, err := w.queue.PurgeAbandoned(ctx, w.cfg.MaxRetries); err != nil {
		w.logger.Error("failed to purge abandoned tasks", "error", err)
	} else if purged > 0 {
		w.logger.Warn("purged abandoned delivery tasks", "count", purged)
	}

	return outcomeTaskHandled, nil
}

func (w *Worker) handleTask(ctx context.Context, task Task) error {
	if err := domain.ValidateEmail(task.Recipient()); err != nil {
		// Bad data, not a transient failure: retrying cannot help.
		w.logger.Warn("skipping task with invalid recipient address",
			"issue_id", task.IssueID(),
			"error", err,
		)
		w.metrics.InvalidRecipientDropped(ctx)
		return task.Abandon(ctx)
	}

	// Issues are immutable, so reading outside the task's lock scope
	// is safe.
	issue, err := w.issues.GetIssue(ctx, task.IssueID())
	if err != nil {
		task.Release(ctx)
		return err
	}
	if issue == nil {
		w.logger.Warn("dropping task for unknown issue", "issue_id", task.IssueID())
		return task.Abandon(ctx)
	}

	sendErr := w.sender.Send(ctx, task.Recipient(), issue.Title, issue.HTMLContent, issue.TextContent)
	if sendErr == nil {
		w.logger.Info("newsletter issue delivered",
			"issue_id", task.IssueID(),
			"recipient", task.Recipient(),
			"attempt", task.Retries()+1,
		)
		w.metrics.EmailSent(ctx)
		return task.Complete(ctx)
	}

	w.metrics.EmailFailed(ctx)

	if task.Retries() >= w.cfg.MaxRetries {
		w.logger.Error("delivery abandoned after exceeding retry ceiling",
			"issue_id", task.IssueID(),
			"recipient", task.Recipient(),
			"retries", task.Retries(),
			"error", sendErr,
		)
		w.metrics.TaskDeadLettered(ctx)
		return task.Abandon(ctx)
	}

	w.logger.Warn("delivery failed, task rescheduled",
		"issue_id", task.IssueID(),
		"recipient", task.Recipient(),
		"retries", task.Retries(),
		"error", sendErr,
	)
	return task.Retry(ctx, w.cfg.RetryDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
