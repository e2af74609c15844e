package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewsletterIssue is an issue that has been accepted for delivery.
// Issues are immutable once written.
type NewsletterIssue struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	HTMLContent string    `json:"html_content"`
	TextContent string    `json:"text_content"`
	PublishedAt time.Time `json:"published_at"`
}

// NewIssue carries the content of an issue before it is persisted.
type NewIssue struct {
	Title       string `json:"title"`
	HTMLContent string `json:"html_content"`
	TextContent string `json:"text_content"`
}
