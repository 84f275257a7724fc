package storetest

import (
	"sync"

	"shelfwatch/internal/events"
)

// Dispatcher records dispatched events synchronously.
type Dispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *Dispatcher) Dispatch(evs ...events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evs...)
}

func (d *Dispatcher) Events() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.Event, len(d.events))
	copy(out, d.events)
	return out
}

func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}
