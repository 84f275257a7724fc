package kafka_middleware

import (
	"context"
	"sync/atomic"
	"time"

	"shelfwatch/pkg/kafka"
)

// Metrics counts publish and consume outcomes for one producer/consumer pair.
type Metrics struct {
	messagesPublished       atomic.Int64
	messagesPublishedFailed atomic.Int64
	publishDurationTotal    atomic.Int64

	messagesConsumed       atomic.Int64
	messagesConsumedFailed atomic.Int64
	consumeDurationTotal   atomic.Int64
}

type MetricsSnapshot struct {
	MessagesPublished       int64         `json:"messages_published"`
	MessagesPublishedFailed int64         `json:"messages_published_failed"`
	AvgPublishDuration      time.Duration `json:"avg_publish_duration_ns"`
	MessagesConsumed        int64         `json:"messages_consumed"`
	MessagesConsumedFailed  int64         `json:"messages_consumed_failed"`
	AvgConsumeDuration      time.Duration `json:"avg_consume_duration_ns"`
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	published := m.messagesPublished.Load()
	consumed := m.messagesConsumed.Load()

	s := MetricsSnapshot{
		MessagesPublished:       published,
		MessagesPublishedFailed: m.messagesPublishedFailed.Load(),
		MessagesConsumed:        consumed,
		MessagesConsumedFailed:  m.messagesConsumedFailed.Load(),
	}
	if published > 0 {
		s.AvgPublishDuration = time.Duration(m.publishDurationTotal.Load() / published)
	}
	if consumed > 0 {
		s.AvgConsumeDuration = time.Duration(m.consumeDurationTotal.Load() / consumed)
	}
	return s
}

func (m *Metrics) Producer() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()

		err := next(ctx, msg)

		m.publishDurationTotal.Add(int64(time.Since(start)))
		if err != nil {
			m.messagesPublishedFailed.Add(1)
		} else {
			m.messagesPublished.Add(1)
		}

		return err
	}
}

func (m *Metrics) Consumer() kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()

		err := next(ctx, msg)

		m.consumeDurationTotal.Add(int64(time.Since(start)))
		if err != nil {
			m.messagesConsumedFailed.Add(1)
		} else {
			m.messagesConsumed.Add(1)
		}

		return err
	}
}
