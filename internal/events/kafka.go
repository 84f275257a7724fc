package events

import (
	"context"
	"fmt"

	"shelfwatch/pkg/kafka"
)

const schemaVersion = "1"

// Publisher forwards envelopes to a Kafka topic. Envelopes are keyed by
// resource id so events for one resource keep their order within a
// partition.
type Publisher struct {
	producer *kafka.Producer
	source   string
}

func NewPublisher(producer *kafka.Producer, source string) *Publisher {
	return &Publisher{producer: producer, source: source}
}

func (p *Publisher) Publish(ctx context.Context, env Envelope) error {
	value, err := env.Marshal()
	if err != nil {
		return kafka.NewPermanentError("failed to encode envelope", err)
	}

	msg, err := kafka.NewMessage().
		WithKey(partitionKey(env)).
		WithRawValue(value).
		WithEventID(env.ID).
		WithEventType(string(env.Type)).
		WithSchemaVersion(schemaVersion).
		WithSource(p.source).
		Build()
	if err != nil {
		return err
	}

	if err := p.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", env.ID, err)
	}
	return nil
}

func partitionKey(env Envelope) string {
	if env.ResourceID != "" {
		return env.ResourceID
	}
	return string(env.Type)
}

// Relay turns Kafka messages back into envelopes and hands them to the local
// sink. Every tracker instance runs its own consumer group so each one sees
// every event.
type Relay struct {
	sink Sink
}

func NewRelay(sink Sink) *Relay {
	return &Relay{sink: sink}
}

// Handle is a kafka.MessageHandler.
func (r *Relay) Handle(ctx context.Context, msg kafka.Message) error {
	env, err := UnmarshalEnvelope(msg.Value)
	if err != nil {
		return kafka.NewPermanentError("failed to decode envelope", err)
	}
	if env.ID == "" || env.Type == "" {
		return kafka.NewPermanentError("envelope missing id or type", nil)
	}
	return r.sink.Publish(ctx, env)
}
