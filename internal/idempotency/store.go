package idempotency

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists idempotency records and arbitrates which of several
// concurrent identical requests performs the side-effecting work.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NextAction is the outcome of a claim attempt. Exactly one of Tx and
// Saved is set: Tx means the caller owns the claim and must finish it
// with SaveResponse (or roll the transaction back); Saved means an
// earlier request already processed this key and its response should be
// replayed verbatim.
type NextAction struct {
	Tx    pgx.Tx
	Saved *StoredResponse
}

// TryClaim inserts a claim row for (userID, key) inside a fresh
// transaction. The unique constraint makes concurrent identical requests
// serialize: a second insert blocks until the first transaction commits
// or rolls back, then observes either the taken row or a free slot.
func (s *Store) TryClaim(ctx context.Context, userID uuid.UUID, key Key) (NextAction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return NextAction{}, fmt.Errorf("beginning claim transaction: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO idempotency (user_id, idempotency_key, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT DO NOTHING
	`, userID, key.String())
	if err != nil {
		tx.Rollback(ctx)
		return NextAction{}, fmt.Errorf("inserting idempotency claim: %w", err)
	}

	if tag.RowsAffected() > 0 {
		return NextAction{Tx: tx}, nil
	}

	// The row is taken. The owner's transaction has committed by now
	// (our insert blocked on it), so a saved response must exist.
	tx.Rollback(ctx)

	saved, err := s.getSavedResponse(ctx, userID, key)
	if err != nil {
		return NextAction{}, err
	}
	if saved == nil {
		return NextAction{}, fmt.Errorf("expected a saved response for key %q but found none", key)
	}
	return NextAction{Saved: saved}, nil
}

// SaveResponse writes the final response into the claim row and commits
// the transaction, making the claim, the side effects performed inside
// the transaction, and the cached response durable as one unit.
func (s *Store) SaveResponse(ctx context.Context, tx pgx.Tx, userID uuid.UUID, key Key, resp *StoredResponse) error {
	headers, err := json.Marshal(resp.Headers)
	if err != nil {
		return fmt.Errorf("encoding response headers: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE idempotency
		SET response_status_code = $1,
		    response_headers = $2,
		    response_body = $3
		WHERE user_id = $4 AND idempotency_key = $5
	`, resp.StatusCode, headers, resp.Body, userID, key.String())
	if err != nil {
		return fmt.Errorf("saving response: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing claim transaction: %w", err)
	}
	return nil
}

func (s *Store) getSavedResponse(ctx context.Context, userID uuid.UUID, key Key) (*StoredResponse, error) {
	var (
		statusCode int
		headers    []byte
		body       []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT response_status_code, response_headers, response_body
		FROM idempotency
		WHERE user_id = $1 AND idempotency_key = $2
		  AND response_status_code IS NOT NULL
	`, userID, key.String()).Scan(&statusCode, &headers, &body)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying saved response: %w", err)
	}

	resp := &StoredResponse{StatusCode: statusCode, Body: body}
	if err := json.Unmarshal(headers, &resp.Headers); err != nil {
		return nil, fmt.Errorf("decoding response headers: %w", err)
	}
	return resp, nil
}
