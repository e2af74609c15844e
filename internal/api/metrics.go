package api

import (
	"log/slog"
	"net/http"

	"github.com/akonev/newsletter-delivery/internal/store"
)

type MetricsHandler struct {
	store   *store.PostgresStore
	metrics *store.MetricsStore
	logger  *slog.Logger
}

func NewMetricsHandler(s *store.PostgresStore, m *store.MetricsStore, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{store: s, metrics: m, logger: logger}
}

// Metrics reports delivery counters and queue state. Dead-letter drops
// are silent on the delivery path; this endpoint and the logs are where
// they surface.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	counters, err := h.metrics.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("failed to read delivery counters", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read delivery counters")
		return
	}

	queueDepth, err := h.store.DeliveryQueueDepth(r.Context())
	if err != nil {
		h.logger.Error("failed to read queue depth", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read queue depth")
		return
	}

	confirmed, err := h.store.CountConfirmedSubscribers(r.Context())
	if err != nil {
		h.logger.Error("failed to count subscribers", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to count subscribers")
		return
	}

	type metricsResponse struct {
		store.DeliveryCounters
		QueueDepth           int64 `json:"queue_depth"`
		ConfirmedSubscribers int64 `json:"confirmed_subscribers"`
	}

	respondJSON(w, http.StatusOK, metricsResponse{
		DeliveryCounters:     *counters,
		QueueDepth:           queueDepth,
		ConfirmedSubscribers: confirmed,
	})
}
