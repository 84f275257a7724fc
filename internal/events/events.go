// Package events defines the domain events produced by presence and loan
// mutations and the bus that carries them to observers.
package events

import (
	"time"

	"shelfwatch/pkg/model"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Type string

const (
	TypeSessionUpdate     Type = "SESSION_UPDATE"
	TypeReservationUpdate Type = "RESERVATION_UPDATE"
	TypeCheckoutUpdate    Type = "CHECKOUT_UPDATE"
)

type Action string

const (
	ActionCreated Action = "CREATED"
	ActionUpdated Action = "UPDATED"
	ActionEnded   Action = "ENDED"
)

// Event is the closed set of domain events: SessionUpdate, ReservationUpdate
// and CheckoutUpdate.
type Event interface {
	Type() Type
	Action() Action
	// ResourceID is the resource the event concerns, or "" when it concerns
	// no specific resource (a plain visit).
	ResourceID() string
	isEvent()
}

type SessionUpdate struct {
	Act     Action         `json:"-"`
	Session *model.Session `json:"session"`
	Person  *model.Person  `json:"person,omitempty"`
}

type ReservationUpdate struct {
	Act       Action           `json:"-"`
	Session   *model.Session   `json:"session"`
	Equipment *model.Equipment `json:"equipment"`
}

type CheckoutUpdate struct {
	Act      Action          `json:"-"`
	Checkout *model.Checkout `json:"checkout"`
	Book     *model.Book     `json:"book"`
}

func (SessionUpdate) Type() Type     { return TypeSessionUpdate }
func (ReservationUpdate) Type() Type { return TypeReservationUpdate }
func (CheckoutUpdate) Type() Type    { return TypeCheckoutUpdate }

func (e SessionUpdate) Action() Action     { return e.Act }
func (e ReservationUpdate) Action() Action { return e.Act }
func (e CheckoutUpdate) Action() Action    { return e.Act }

func (e SessionUpdate) ResourceID() string {
	if e.Session == nil {
		return ""
	}
	return e.Session.ResourceID
}

func (e ReservationUpdate) ResourceID() string {
	switch {
	case e.Equipment != nil:
		return e.Equipment.ID
	case e.Session != nil:
		return e.Session.ResourceID
	}
	return ""
}

func (e CheckoutUpdate) ResourceID() string {
	switch {
	case e.Book != nil:
		return e.Book.ID
	case e.Checkout != nil:
		return e.Checkout.BookID
	}
	return ""
}

func (SessionUpdate) isEvent()     {}
func (ReservationUpdate) isEvent() {}
func (CheckoutUpdate) isEvent()    {}

// Envelope is the wire form of an event, shared by the WebSocket channel and
// the Kafka relay.
type Envelope struct {
	ID         string              `json:"id"`
	Type       Type                `json:"type"`
	Action     Action              `json:"action"`
	ResourceID string              `json:"resource_id,omitempty"`
	Data       jsoniter.RawMessage `json:"data"`
	Timestamp  string              `json:"timestamp"`
}

func NewEnvelope(id string, e Event, at time.Time) (Envelope, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:         id,
		Type:       e.Type(),
		Action:     e.Action(),
		ResourceID: e.ResourceID(),
		Data:       data,
		Timestamp:  at.UTC().Format(time.RFC3339),
	}, nil
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}
