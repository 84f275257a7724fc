package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shelfwatch/pkg/kafka"
	"shelfwatch/pkg/logger"
	"shelfwatch/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2024, 9, 2, 8, 30, 0, 0, time.FixedZone("UTC+2", 2*3600))

func TestNewEnvelope(t *testing.T) {
	e := ReservationUpdate{
		Act:       ActionCreated,
		Session:   &model.Session{ID: "s1", PersonID: "p1", Kind: model.SessionResource, ResourceID: "eq1"},
		Equipment: &model.Equipment{ID: "eq1", Code: "LAPTOP001", Status: model.EquipmentInUse},
	}

	env, err := NewEnvelope("ev1", e, at)
	require.NoError(t, err)

	assert.Equal(t, "ev1", env.ID)
	assert.Equal(t, TypeReservationUpdate, env.Type)
	assert.Equal(t, ActionCreated, env.Action)
	assert.Equal(t, "eq1", env.ResourceID)
	assert.Equal(t, "2024-09-02T06:30:00Z", env.Timestamp)

	var data map[string]map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "s1", data["session"]["id"])
	assert.Equal(t, "IN_USE", data["equipment"]["status"])

	raw, err := env.Marshal()
	require.NoError(t, err)
	back, err := UnmarshalEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, env.ID, back.ID)
	assert.JSONEq(t, string(env.Data), string(back.Data))
}

func TestEnvelope_VisitHasNoResource(t *testing.T) {
	env, err := NewEnvelope("ev2", SessionUpdate{
		Act:     ActionEnded,
		Session: &model.Session{ID: "s1", Kind: model.SessionVisit},
	}, at)
	require.NoError(t, err)

	raw, err := env.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "resource_id")
}

type collector struct {
	mu   sync.Mutex
	envs []Envelope
	done chan struct{}
	want int
	err  error
}

func newCollector(want int) *collector {
	return &collector{done: make(chan struct{}), want: want}
}

func (c *collector) Publish(_ context.Context, env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
	if len(c.envs) == c.want {
		close(c.done)
	}
	return c.err
}

func (c *collector) received() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Envelope(nil), c.envs...)
}

func TestBus_DeliversInOrderToEverySink(t *testing.T) {
	a, b := newCollector(3), newCollector(3)
	bus := NewBus(8, logger.Nop(), nil, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	for _, id := range []string{"s1", "s2", "s3"} {
		bus.Dispatch(SessionUpdate{Act: ActionCreated, Session: &model.Session{ID: id}})
	}

	for _, c := range []*collector{a, b} {
		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
			t.Fatal("events not delivered")
		}
	}

	got := a.received()
	require.Len(t, got, 3)
	assert.Contains(t, string(got[0].Data), `"s1"`)
	assert.Contains(t, string(got[2].Data), `"s3"`)

	assert.Equal(t, int64(3), bus.Stats().Dispatched)
	assert.Eventually(t, func() bool {
		return bus.Stats().Delivered == 6
	}, time.Second, 10*time.Millisecond)
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus(2, logger.Nop(), nil)

	for i := 0; i < 5; i++ {
		bus.Dispatch(SessionUpdate{Act: ActionUpdated, Session: &model.Session{ID: "s"}})
	}

	stats := bus.Stats()
	assert.Equal(t, int64(2), stats.Dispatched)
	assert.Equal(t, int64(3), stats.Dropped)
	assert.Equal(t, 2, stats.Queued)
}

func TestBus_DrainsOnShutdown(t *testing.T) {
	c := newCollector(2)
	bus := NewBus(4, logger.Nop(), nil, c)
	bus.Dispatch(
		CheckoutUpdate{Act: ActionCreated, Checkout: &model.Checkout{ID: "c1"}, Book: &model.Book{ID: "b1"}},
		CheckoutUpdate{Act: ActionEnded, Checkout: &model.Checkout{ID: "c1"}, Book: &model.Book{ID: "b1"}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, bus.Run(ctx))

	assert.Len(t, c.received(), 2)
}

func TestBus_SinkFailureIsCounted(t *testing.T) {
	c := newCollector(1)
	c.err = errors.New("down")
	bus := NewBus(1, logger.Nop(), nil, c)
	bus.Dispatch(SessionUpdate{Act: ActionCreated, Session: &model.Session{ID: "s1"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, bus.Run(ctx))

	assert.Equal(t, int64(1), bus.Stats().Failed)
}

func TestRelay_Handle(t *testing.T) {
	c := newCollector(1)
	relay := NewRelay(c)

	env, err := NewEnvelope("ev1", CheckoutUpdate{
		Act:      ActionCreated,
		Checkout: &model.Checkout{ID: "c1"},
		Book:     &model.Book{ID: "b1"},
	}, at)
	require.NoError(t, err)
	raw, err := env.Marshal()
	require.NoError(t, err)

	require.NoError(t, relay.Handle(context.Background(), kafka.Message{Value: raw}))
	got := c.received()
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].ResourceID)

	err = relay.Handle(context.Background(), kafka.Message{Value: []byte("not json")})
	require.Error(t, err)
	assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))
}

func TestPartitionKey(t *testing.T) {
	assert.Equal(t, "eq1", partitionKey(Envelope{Type: TypeReservationUpdate, ResourceID: "eq1"}))
	assert.Equal(t, "SESSION_UPDATE", partitionKey(Envelope{Type: TypeSessionUpdate}))
}
