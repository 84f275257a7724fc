package events

import (
	"context"
	"sync/atomic"
	"time"

	"shelfwatch/pkg/logger"

	"github.com/google/uuid"
)

// Dispatcher accepts events produced by a committed mutation. Dispatch must
// not block the caller.
type Dispatcher interface {
	Dispatch(events ...Event)
}

// Sink receives envelopes from the bus, one at a time, in dispatch order.
type Sink interface {
	Publish(ctx context.Context, env Envelope) error
}

type SinkFunc func(ctx context.Context, env Envelope) error

func (f SinkFunc) Publish(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

type BusStats struct {
	Dispatched int64 `json:"dispatched"`
	Dropped    int64 `json:"dropped"`
	Delivered  int64 `json:"delivered"`
	Failed     int64 `json:"failed"`
	Queued     int   `json:"queued"`
}

// Bus decouples mutations from delivery with a bounded queue. When the queue
// is full the event is dropped and logged; observers catch up on the next
// event for the same resource.
type Bus struct {
	queue chan Envelope
	sinks []Sink
	log   *logger.Logger
	now   func() time.Time

	dispatched atomic.Int64
	dropped    atomic.Int64
	delivered  atomic.Int64
	failed     atomic.Int64
}

func NewBus(size int, log *logger.Logger, now func() time.Time, sinks ...Sink) *Bus {
	if size <= 0 {
		size = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Bus{
		queue: make(chan Envelope, size),
		sinks: sinks,
		log:   log,
		now:   now,
	}
}

func (b *Bus) Dispatch(events ...Event) {
	for _, e := range events {
		if e == nil {
			continue
		}
		env, err := NewEnvelope(uuid.NewString(), e, b.now())
		if err != nil {
			b.log.Error("Failed to encode event", "type", e.Type(), "action", e.Action(), "error", err)
			continue
		}

		select {
		case b.queue <- env:
			b.dispatched.Add(1)
		default:
			b.dropped.Add(1)
			b.log.Warn("Event queue full, dropping event",
				"event_id", env.ID,
				"type", env.Type,
				"action", env.Action,
				"resource_id", env.ResourceID,
			)
		}
	}
}

// Run delivers queued envelopes until ctx is cancelled, then drains whatever
// is still queued.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			b.drain()
			return nil
		case env := <-b.queue:
			b.deliver(ctx, env)
		}
	}
}

func (b *Bus) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case env := <-b.queue:
			b.deliver(ctx, env)
		default:
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, env Envelope) {
	for _, sink := range b.sinks {
		if err := sink.Publish(ctx, env); err != nil {
			b.failed.Add(1)
			b.log.Error("Failed to deliver event",
				"event_id", env.ID,
				"type", env.Type,
				"error", err,
			)
			continue
		}
		b.delivered.Add(1)
	}
}

func (b *Bus) Stats() BusStats {
	return BusStats{
		Dispatched: b.dispatched.Load(),
		Dropped:    b.dropped.Load(),
		Delivered:  b.delivered.Load(),
		Failed:     b.failed.Load(),
		Queued:     len(b.queue),
	}
}
