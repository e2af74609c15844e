package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/akonev/newsletter-delivery/internal/domain"
	"github.com/google/uuid"
)

type fakeTask struct {
	issueID   uuid.UUID
	recipient string
	retries   int

	completed  bool
	abandoned  bool
	released   bool
	retried    bool
	retryDelay time.Duration
}

func (t *fakeTask) IssueID() uuid.UUID { return t.issueID }
func (t *fakeTask) Recipient() string  { return t.recipient }
func (t *fakeTask) Retries() int       { return t.retries }

func (t *fakeTask) Complete(ctx context.Context) error { t.completed = true; return nil }
func (t *fakeTask) Abandon(ctx context.Context) error  { t.abandoned = true; return nil }
func (t *fakeTask) Release(ctx context.Context) error  { t.released = true; return nil }

func (t *fakeTask) Retry(ctx context.Context, delay time.Duration) error {
	t.retried = true
	t.retryDelay = delay
	return nil
}

type fakeQueue struct {
	tasks      []*fakeTask
	dequeueErr error
	purgeCalls int
}

func (q *fakeQueue) Dequeue(ctx context.Context) (Task, error) {
	if q.dequeueErr != nil {
		return nil, q.dequeueErr
	}
	if len(q.tasks) == 0 {
		return nil, nil
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, nil
}

func (q *fakeQueue) PurgeAbandoned(ctx context.Context, maxRetries int) (int64, error) {
	q.purgeCalls++
	return 0, nil
}

type fakeIssues struct {
	issues map[uuid.UUID]*domain.NewsletterIssue
	err    error
}

func (f *fakeIssues) GetIssue(ctx context.Context, issueID uuid.UUID) (*domain.NewsletterIssue, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.issues[issueID], nil
}

type sentEmail struct {
	recipient string
	subject   string
	htmlBody  string
	textBody  string
}

type fakeSender struct {
	sent []sentEmail
	err  error
}

func (f *fakeSender) Send(ctx context.Context, recipient, subject, htmlBody, textBody string) error {
	f.sent = append(f.sent, sentEmail{recipient, subject, htmlBody, textBody})
	return f.err
}

type fakeRecorder struct {
	sent, failed, deadLettered, invalid int
}

func (r *fakeRecorder) EmailSent(context.Context)               { r.sent++ }
func (r *fakeRecorder) EmailFailed(context.Context)             { r.failed++ }
func (r *fakeRecorder) TaskDeadLettered(context.Context)        { r.deadLettered++ }
func (r *fakeRecorder) InvalidRecipientDropped(context.Context) { r.invalid++ }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() Config {
	return Config{
		IdleDelay:  10 * time.Second,
		ErrorDelay: 1 * time.Second,
		RetryDelay: 1 * time.Minute,
		MaxRetries: 10,
	}
}

func newWorkerTest(queue Queue, issues IssueReader, sender Sender, rec Recorder) *Worker {
	return New(queue, issues, sender, rec, testLogger(), testConfig())
}

func issueFixture() (*fakeIssues, uuid.UUID) {
	issueID := uuid.New()
	return &fakeIssues{issues: map[uuid.UUID]*domain.NewsletterIssue{
		issueID: {
			ID:          issueID,
			Title:       "Issue #1",
			HTMLContent: "<p>hello</p>",
			TextContent: "hello",
		},
	}}, issueID
}

func TestRunOnce_EmptyQueue(t *testing.T) {
	queue := &fakeQueue{}
	issues, _ := issueFixture()
	w := newWorkerTest(queue, issues, &fakeSender{}, &fakeRecorder{})

	out, err := w.runOnce(context.Background())
	if err != nil {
		t.Fatalf("runOnce failed: %v", err)
	}
	if out != outcomeEmptyQueue {
		t.Errorf("outcome = %v, want outcomeEmptyQueue", out)
	}
	if queue.purgeCalls != 0 {
		t.Error("purge should not run when no task was handled")
	}
}

func TestRunOnce_SuccessfulDelivery(t *testing.T) {
	issues, issueID := issueFixture()
	task := &fakeTask{issueID: issueID, recipient: "ursula@example.com"}
	queue := &fakeQueue{tasks: []*fakeTask{task}}
	sender := &fakeSender{}
	rec := &fakeRecorder{}
	w := newWorkerTest(queue, issues, sender, rec)

	out, err := w.runOnce(context.Background())
	if err != nil {
		t.Fatalf("runOnce failed: %v", err)
	}
	if out != outcomeTaskHandled {
		t.Errorf("outcome = %v, want outcomeTaskHandled", out)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.sent))
	}
	got := sender.sent[0]
	if got.recipient != "ursula@example.com" || got.subject != "Issue #1" ||
		got.htmlBody != "<p>hello</p>" || got.textBody != "hello" {
		t.Errorf("unexpected email: %+v", got)
	}

	if !task.completed {
		t.Error("task should be completed")
	}
	if task.retried || task.abandoned {
		t.Error("a completed task must not also be retried or abandoned")
	}
	if rec.sent != 1 {
		t.Errorf("recorded %d sent emails, want 1", rec.sent)
	}
	if queue.purgeCalls != 1 {
		t.Errorf("purge ran %d times, want 1", queue.purgeCalls)
	}
}

func TestRunOnce_SendFailureReschedules(t *testing.T) {
	issues, issueID := issueFixture()
	task := &fakeTask{issueID: issueID, recipient: "ursula@example.com", retries: 3}
	queue := &fakeQueue{tasks: []*fakeTask{task}}
	rec := &fakeRecorder{}
	w := newWorkerTest(queue, issues, &fakeSender{err: errors.New("mail API down")}, rec)

	if _, err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("a failed send must not fail the cycle: %v", err)
	}

	if !task.retried {
		t.Error("task should be rescheduled")
	}
	if task.completed || task.abandoned {
		t.Error("a rescheduled task must not also be completed or abandoned")
	}
	if task.retryDelay != time.Minute {
		t.Errorf("retry delay = %v, want %v", task.retryDelay, time.Minute)
	}
	if rec.failed != 1 {
		t.Errorf("recorded %d failures, want 1", rec.failed)
	}
	if rec.deadLettered != 0 {
		t.Error("task below the ceiling must not be dead-lettered")
	}
}

func TestRunOnce_RetryCeilingDeadLetters(t *testing.T) {
	issues, issueID := issueFixture()
	task := &fakeTask{issueID: issueID, recipient: "ursula@example.com", retries: 10}
	queue := &fakeQueue{tasks: []*fakeTask{task}}
	rec := &fakeRecorder{}
	w := newWorkerTest(queue, issues, &fakeSender{err: errors.New("mail API down")}, rec)

	if _, err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce failed: %v", err)
	}

	if !task.abandoned {
		t.Error("task past the ceiling should be abandoned")
	}
	if task.retried || task.completed {
		t.Error("a dead-lettered task must not also be retried or completed")
	}
	if rec.deadLettered != 1 {
		t.Errorf("recorded %d dead letters, want 1", rec.deadLettered)
	}
}

func TestRunOnce_InvalidRecipientDroppedWithoutSend(t *testing.T) {
	issues, issueID := issueFixture()
	task := &fakeTask{issueID: issueID, recipient: "not-an-email", retries: 2}
	queue := &fakeQueue{tasks: []*fakeTask{task}}
	sender := &fakeSender{}
	rec := &fakeRecorder{}
	w := newWorkerTest(queue, issues, sender, rec)

	if _, err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce failed: %v", err)
	}

	if len(sender.sent) != 0 {
		t.Error("no send attempt should be made for an invalid address")
	}
	if !task.abandoned {
		t.Error("invalid-recipient task should be abandoned")
	}
	if task.retried {
		t.Error("invalid-recipient task must not be retried")
	}
	if rec.invalid != 1 {
		t.Errorf("recorded %d invalid recipients, want 1", rec.invalid)
	}
}

func TestRunOnce_UnknownIssueDropsTask(t *testing.T) {
	issues := &fakeIssues{issues: map[uuid.UUID]*domain.NewsletterIssue{}}
	task := &fakeTask{issueID: uuid.New(), recipient: "ursula@example.com"}
	queue := &fakeQueue{tasks: []*fakeTask{task}}
	sender := &fakeSender{}
	w := newWorkerTest(queue, issues, sender, &fakeRecorder{})

	if _, err := w.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce failed: %v", err)
	}

	if len(sender.sent) != 0 {
		t.Error("no send attempt should be made without issue content")
	}
	if !task.abandoned {
		t.Error("task for unknown issue should be abandoned")
	}
}

func TestRunOnce_IssueLookupErrorReleasesTask(t *testing.T) {
	issues := &fakeIssues{err: errors.New("connection refused")}
	task := &fakeTask{issueID: uuid.New(), recipient: "ursula@example.com"}
	queue := &fakeQueue{tasks: []*fakeTask{task}}
	w := newWorkerTest(queue, issues, &fakeSender{}, &fakeRecorder{})

	if _, err := w.runOnce(context.Background()); err == nil {
		t.Fatal("expected error from failed issue lookup")
	}

	if !task.released {
		t.Error("task should be released back to the queue")
	}
	if task.completed || task.retried || task.abandoned {
		t.Error("task state must not change on an infrastructure error")
	}
}

func TestRun_BackoffPolicy(t *testing.T) {
	issues, issueID := issueFixture()
	queue := &fakeQueue{tasks: []*fakeTask{
		{issueID: issueID, recipient: "a@example.com"},
		{issueID: issueID, recipient: "b@example.com"},
	}}
	sender := &fakeSender{}
	w := newWorkerTest(queue, issues, sender, &fakeRecorder{})

	ctx, cancel := context.WithCancel(context.Background())
	var sleeps []time.Duration
	w.sleep = func(ctx context.Context, d time.Duration) {
		sleeps = append(sleeps, d)
		// The first sleep means the queue is drained; stop the loop.
		cancel()
	}

	w.Run(ctx)

	// Two queued recipients should produce exactly two sends while
	// draining, with no sleep between tasks.
	if len(sender.sent) != 2 {
		t.Errorf("sent %d emails, want 2", len(sender.sent))
	}
	if len(sleeps) != 1 || sleeps[0] != 10*time.Second {
		t.Errorf("sleeps = %v, want a single idle delay of 10s", sleeps)
	}
}

func TestRun_ErrorBackoff(t *testing.T) {
	queue := &fakeQueue{dequeueErr: errors.New("database gone")}
	issues, _ := issueFixture()
	w := newWorkerTest(queue, issues, &fakeSender{}, &fakeRecorder{})

	ctx, cancel := context.WithCancel(context.Background())
	var sleeps []time.Duration
	w.sleep = func(ctx context.Context, d time.Duration) {
		sleeps = append(sleeps, d)
		if len(sleeps) == 3 {
			cancel()
		}
	}

	w.Run(ctx)

	// The loop survives infrastructure failures and backs off with the
	// short error delay, not the idle delay.
	for i, d := range sleeps {
		if d != time.Second {
			t.Errorf("sleep %d = %v, want 1s error backoff", i, d)
		}
	}
}
