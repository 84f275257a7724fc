package kafka_middleware

import (
	"context"
	"errors"
	"testing"

	"shelfwatch/pkg/kafka"
	"shelfwatch/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountsOutcomes(t *testing.T) {
	m := NewMetrics()
	produce := m.Producer()
	consume := m.Consumer()
	msg := kafka.Message{Key: "k", Value: []byte("{}"), Headers: map[string]string{}}

	ok := func(context.Context, kafka.Message) error { return nil }
	fail := func(context.Context, kafka.Message) error { return errors.New("boom") }

	require.NoError(t, produce(context.Background(), msg, ok))
	require.NoError(t, produce(context.Background(), msg, ok))
	require.Error(t, produce(context.Background(), msg, fail))
	require.NoError(t, consume(context.Background(), msg, ok))
	require.Error(t, consume(context.Background(), msg, fail))

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.MessagesPublished)
	assert.Equal(t, int64(1), s.MessagesPublishedFailed)
	assert.Equal(t, int64(1), s.MessagesConsumed)
	assert.Equal(t, int64(1), s.MessagesConsumedFailed)
}

func TestLoggingMiddleware_PassesErrorThrough(t *testing.T) {
	log := logger.Nop()
	msg := kafka.Message{Key: "k", Headers: map[string]string{}}
	want := errors.New("boom")

	err := LoggingProducerMiddleware(log)(context.Background(), msg, func(context.Context, kafka.Message) error { return want })
	assert.ErrorIs(t, err, want)

	err = LoggingConsumerMiddleware(log)(context.Background(), msg, func(context.Context, kafka.Message) error { return nil })
	assert.NoError(t, err)
}
