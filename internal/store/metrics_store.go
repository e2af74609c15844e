package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Redis keys for delivery counters.
const (
	metricEmailsSent     = "metrics:emails_sent"
	metricEmailsFailed   = "metrics:emails_failed"
	metricDeadLettered   = "metrics:tasks_dead_lettered"
	metricInvalidDropped = "metrics:tasks_invalid_recipient"
)

// MetricsStore tracks delivery outcomes in Redis. Dead-letter drops are
// silent on the delivery path, so these counters (plus logs) are the
// only place they show up.
type MetricsStore struct {
	client *redis.Client
}

func NewMetricsStore(client *redis.Client) *MetricsStore {
	return &MetricsStore{client: client}
}

func (m *MetricsStore) EmailSent(ctx context.Context) {
	m.client.Incr(ctx, metricEmailsSent)
}

func (m *MetricsStore) EmailFailed(ctx context.Context) {
	m.client.Incr(ctx, metricEmailsFailed)
}

func (m *MetricsStore) TaskDeadLettered(ctx context.Context) {
	m.client.Incr(ctx, metricDeadLettered)
}

func (m *MetricsStore) InvalidRecipientDropped(ctx context.Context) {
	m.client.Incr(ctx, metricInvalidDropped)
}

// DeliveryCounters is a point-in-time snapshot of the delivery counters.
type DeliveryCounters struct {
	EmailsSent        int64 `json:"emails_sent"`
	EmailsFailed      int64 `json:"emails_failed"`
	TasksDeadLettered int64 `json:"tasks_dead_lettered"`
	InvalidRecipients int64 `json:"tasks_invalid_recipient"`
}

// Snapshot reads all counters in one round trip.
func (m *MetricsStore) Snapshot(ctx context.Context) (*DeliveryCounters, error) {
	vals, err := m.client.MGet(ctx, metricEmailsSent, metricEmailsFailed, metricDeadLettered, metricInvalidDropped).Result()
	if err != nil {
		return nil, fmt.Errorf("reading delivery counters: %w", err)
	}

	out := make([]int64, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			n, _ := strconv.ParseInt(s, 10, 64)
			out[i] = n
		}
	}

	return &DeliveryCounters{
		EmailsSent:        out[0],
		EmailsFailed:      out[1],
		TasksDeadLettered: out[2],
		InvalidRecipients: out[3],
	}, nil
}
