package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/akonev/newsletter-delivery/internal/domain"
	"github.com/akonev/newsletter-delivery/internal/idempotency"
	"github.com/akonev/newsletter-delivery/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// claimer arbitrates idempotency claims for publish requests.
type claimer interface {
	TryClaim(ctx context.Context, userID uuid.UUID, key idempotency.Key) (idempotency.NextAction, error)
	SaveResponse(ctx context.Context, tx pgx.Tx, userID uuid.UUID, key idempotency.Key, resp *idempotency.StoredResponse) error
}

// issueWriter covers the writes performed while the claim transaction is
// held open.
type issueWriter interface {
	InsertIssue(ctx context.Context, tx pgx.Tx, issue domain.NewIssue) (uuid.UUID, error)
	EnqueueDeliveryTasks(ctx context.Context, tx pgx.Tx, issueID uuid.UUID) (int64, error)
}

type pgIssueWriter struct{}

func (pgIssueWriter) InsertIssue(ctx context.Context, tx pgx.Tx, issue domain.NewIssue) (uuid.UUID, error) {
	return store.InsertIssue(ctx, tx, issue)
}

func (pgIssueWriter) EnqueueDeliveryTasks(ctx context.Context, tx pgx.Tx, issueID uuid.UUID) (int64, error) {
	return store.EnqueueDeliveryTasks(ctx, tx, issueID)
}

// Coordinator ties the idempotency store, the issue repository, and the
// delivery queue together. Publishing never sends email: it persists the
// issue, snapshots the confirmed recipients into delivery tasks, and
// caches the response, all in the claim transaction.
type Coordinator struct {
	idem   claimer
	issues issueWriter
	logger *slog.Logger
}

func NewCoordinator(idem *idempotency.Store, logger *slog.Logger) *Coordinator {
	return &Coordinator{idem: idem, issues: pgIssueWriter{}, logger: logger}
}

type acceptedBody struct {
	IssueID uuid.UUID `json:"issue_id"`
	Message string    `json:"message"`
}

// Publish accepts a newsletter issue on behalf of userID. Resubmitting
// with the same idempotency key replays the original response without
// creating a second issue or a second set of tasks.
func (c *Coordinator) Publish(ctx context.Context, userID uuid.UUID, rawKey string, issue domain.NewIssue) (*idempotency.StoredResponse, error) {
	key, err := idempotency.ParseKey(rawKey)
	if err != nil {
		return nil, err
	}

	action, err := c.idem.TryClaim(ctx, userID, key)
	if err != nil {
		return nil, fmt.Errorf("claiming idempotency key: %w", err)
	}

	if action.Saved != nil {
		c.logger.Info("replaying cached publish response",
			"user_id", userID,
			"idempotency_key", key.String(),
		)
		return action.Saved, nil
	}

	tx := action.Tx
	// Anything that goes wrong past this point rolls the whole claim
	// back: no issue, no tasks, no cached response, key reusable.
	defer tx.Rollback(ctx)

	issueID, err := c.issues.InsertIssue(ctx, tx, issue)
	if err != nil {
		return nil, err
	}

	queued, err := c.issues.EnqueueDeliveryTasks(ctx, tx, issueID)
	if err != nil {
		return nil, err
	}

	resp, err := acceptedResponse(issueID)
	if err != nil {
		return nil, err
	}

	if err := c.idem.SaveResponse(ctx, tx, userID, key, resp); err != nil {
		return nil, err
	}

	c.logger.Info("newsletter issue accepted",
		"issue_id", issueID,
		"user_id", userID,
		"deliveries_queued", queued,
	)

	return resp, nil
}

func acceptedResponse(issueID uuid.UUID) (*idempotency.StoredResponse, error) {
	body, err := json.Marshal(acceptedBody{
		IssueID: issueID,
		Message: "The newsletter issue has been accepted - emails will go out shortly.",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding accepted response: %w", err)
	}

	return &idempotency.StoredResponse{
		StatusCode: http.StatusAccepted,
		Headers: []idempotency.HeaderPair{
			{Name: "Content-Type", Value: []byte("application/json")},
		},
		Body: body,
	}, nil
}
