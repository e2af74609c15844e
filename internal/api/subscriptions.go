package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/akonev/newsletter-delivery/internal/domain"
	"github.com/akonev/newsletter-delivery/internal/store"
)

// confirmationSender is the slice of the mail client the handler needs.
type confirmationSender interface {
	Send(ctx context.Context, recipient, subject, htmlBody, textBody string) error
}

type SubscriptionHandler struct {
	store   *store.PostgresStore
	sender  confirmationSender
	baseURL string
	logger  *slog.Logger
}

func NewSubscriptionHandler(s *store.PostgresStore, sender confirmationSender, baseURL string, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{store: s, sender: sender, baseURL: baseURL, logger: logger}
}

// Subscribe registers a pending subscriber and emails a confirmation
// link. The subscriber only becomes eligible for newsletter delivery
// once the link is followed.
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req domain.NewSubscriberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := domain.ValidateEmail(req.Email); err != nil {
		respondError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if err := domain.ValidateUsername(req.Username); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.store.CreateSubscriber(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to create subscriber", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create subscriber")
		return
	}

	confirmLink := fmt.Sprintf("%s/api/v1/subscriptions/confirm?token=%s", h.baseURL, token)
	err = h.sender.Send(r.Context(), req.Email,
		"Please confirm your subscription",
		fmt.Sprintf(`Welcome! <a href="%s">Click here</a> to confirm your subscription.`, confirmLink),
		fmt.Sprintf("Welcome! Visit %s to confirm your subscription.", confirmLink),
	)
	if err != nil {
		h.logger.Error("failed to send confirmation email", "error", err, "email", req.Email)
		respondError(w, http.StatusInternalServerError, "failed to send confirmation email")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"status": domain.StatusPendingConfirmation})
}

// Confirm flips a pending subscriber to confirmed via their token.
func (h *SubscriptionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	ok, err := h.store.ConfirmSubscriber(r.Context(), token)
	if err != nil {
		h.logger.Error("failed to confirm subscriber", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to confirm subscription")
		return
	}
	if !ok {
		respondError(w, http.StatusUnauthorized, "unknown subscription token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": domain.StatusConfirmed})
}
