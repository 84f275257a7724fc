package fanout

import (
	"shelfwatch/internal/events"
)

const (
	OpAuth        = "auth"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPing        = "ping"
)

const (
	ReplyAuthOK       = "auth_ok"
	ReplySubscribed   = "subscribed"
	ReplyUnsubscribed = "unsubscribed"
	ReplyError        = "error"
	ReplyPong         = "pong"
	ReplyEvent        = "event"
)

// ServerMessage is every frame the server sends. ResourceID is omitted for
// the "all" subscription.
type ServerMessage struct {
	Type       string           `json:"type"`
	ResourceID string           `json:"resource_id,omitempty"`
	Message    string           `json:"message,omitempty"`
	Event      *events.Envelope `json:"event,omitempty"`
}
