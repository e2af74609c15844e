package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/akonev/newsletter-delivery/internal/domain"
	"github.com/akonev/newsletter-delivery/internal/idempotency"
	"github.com/akonev/newsletter-delivery/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// publisher is the slice of the publish coordinator the handler needs.
type publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, rawKey string, issue domain.NewIssue) (*idempotency.StoredResponse, error)
}

type NewsletterHandler struct {
	store     *store.PostgresStore
	publisher publisher
	adminID   uuid.UUID
	logger    *slog.Logger
}

func NewNewsletterHandler(s *store.PostgresStore, p publisher, adminID uuid.UUID, logger *slog.Logger) *NewsletterHandler {
	return &NewsletterHandler{store: s, publisher: p, adminID: adminID, logger: logger}
}

type publishRequest struct {
	Title          string `json:"title"`
	HTMLContent    string `json:"html_content"`
	TextContent    string `json:"text_content"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Publish accepts a newsletter issue for delivery. Duplicate
// submissions with the same idempotency key get the original response
// replayed verbatim.
func (h *NewsletterHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.HTMLContent == "" || req.TextContent == "" {
		respondError(w, http.StatusBadRequest, "html_content and text_content are required")
		return
	}

	resp, err := h.publisher.Publish(r.Context(), h.adminID, req.IdempotencyKey, domain.NewIssue{
		Title:       req.Title,
		HTMLContent: req.HTMLContent,
		TextContent: req.TextContent,
	})
	if err != nil {
		if errors.Is(err, idempotency.ErrInvalidKey) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to publish newsletter issue", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to publish newsletter issue")
		return
	}

	writeStoredResponse(w, resp)
}

// Get returns a stored newsletter issue.
func (h *NewsletterHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid issue id")
		return
	}

	issue, err := h.store.GetIssue(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get newsletter issue", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get newsletter issue")
		return
	}
	if issue == nil {
		respondError(w, http.StatusNotFound, "newsletter issue not found")
		return
	}

	respondJSON(w, http.StatusOK, issue)
}

// writeStoredResponse forwards a coordinator response to the client
// unchanged, whether it was just computed or replayed from the cache.
func writeStoredResponse(w http.ResponseWriter, resp *idempotency.StoredResponse) {
	for _, h := range resp.Headers {
		w.Header().Add(h.Name, string(h.Value))
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}
