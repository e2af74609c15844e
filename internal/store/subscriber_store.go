package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/akonev/newsletter-delivery/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const tokenLength = 25

// CreateSubscriber inserts a pending subscriber together with its
// confirmation token in one transaction and returns the token.
func (s *PostgresStore) CreateSubscriber(ctx context.Context, req domain.NewSubscriberRequest) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	subscriberID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO subscriptions (id, email, username, subscribed_at, status)
		VALUES ($1, $2, $3, now(), $4)
	`, subscriberID, req.Email, req.Username, domain.StatusPendingConfirmation)
	if err != nil {
		return "", fmt.Errorf("inserting subscriber: %w", err)
	}

	token, err := generateSubscriptionToken()
	if err != nil {
		return "", fmt.Errorf("generating subscription token: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO subscription_tokens (subscription_token, subscriber_id)
		VALUES ($1, $2)
	`, token, subscriberID)
	if err != nil {
		return "", fmt.Errorf("storing subscription token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing transaction: %w", err)
	}

	return token, nil
}

// ConfirmSubscriber flips the subscriber behind a token to confirmed.
// Returns false when the token is unknown.
func (s *PostgresStore) ConfirmSubscriber(ctx context.Context, token string) (bool, error) {
	var subscriberID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT subscriber_id FROM subscription_tokens WHERE subscription_token = $1
	`, token).Scan(&subscriberID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("querying subscription token: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE subscriptions SET status = $1 WHERE id = $2
	`, domain.StatusConfirmed, subscriberID)
	if err != nil {
		return false, fmt.Errorf("confirming subscriber: %w", err)
	}

	return true, nil
}

// CountConfirmedSubscribers reports how many recipients a publish would
// currently fan out to.
func (s *PostgresStore) CountConfirmedSubscribers(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM subscriptions WHERE status = $1
	`, domain.StatusConfirmed).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting confirmed subscribers: %w", err)
	}
	return n, nil
}

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateSubscriptionToken() (string, error) {
	buf := make([]byte, tokenLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(tokenAlphabet))))
		if err != nil {
			return "", err
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}
