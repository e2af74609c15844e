package store

import (
	"context"
	"fmt"

	"github.com/akonev/newsletter-delivery/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InsertIssue persists a newsletter issue inside the caller's
// transaction and returns its generated id. The publish coordinator is
// the only caller; the row becomes visible when the claim transaction
// commits.
func InsertIssue(ctx context.Context, tx pgx.Tx, issue domain.NewIssue) (uuid.UUID, error) {
	issueID := uuid.New()
	_, err := tx.Exec(ctx, `
		INSERT INTO newsletter_issues (newsletter_issue_id, title, html_content, text_content, published_at)
		VALUES ($1, $2, $3, $4, now())
	`, issueID, issue.Title, issue.HTMLContent, issue.TextContent)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting newsletter issue: %w", err)
	}
	return issueID, nil
}

// GetIssue returns a stored issue, or nil if it does not exist.
func (s *PostgresStore) GetIssue(ctx context.Context, issueID uuid.UUID) (*domain.NewsletterIssue, error) {
	var issue domain.NewsletterIssue
	err := s.pool.QueryRow(ctx, `
		SELECT newsletter_issue_id, title, html_content, text_content, published_at
		FROM newsletter_issues
		WHERE newsletter_issue_id = $1
	`, issueID).Scan(
		&issue.ID, &issue.Title, &issue.HTMLContent, &issue.TextContent, &issue.PublishedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying newsletter issue: %w", err)
	}
	return &issue, nil
}
