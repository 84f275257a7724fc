// Package fanout delivers committed domain events to live subscriber
// connections. Delivery is best-effort and at-most-once: a connection that
// cannot keep up is dropped, never replayed.
package fanout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"shelfwatch/internal/events"
	"shelfwatch/pkg/auth"
	"shelfwatch/pkg/logger"
	"shelfwatch/pkg/model"
	"shelfwatch/pkg/validator"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrNotAuthenticated  = errors.New("connection not authenticated")
)

// Transport is the write side of one subscriber connection. Only the
// connection's writer goroutine calls Send and Ping.
type Transport interface {
	Send(frame []byte) error
	Ping() error
	Close() error
}

type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	SendBuffer        int
}

type Stats struct {
	Connections   int   `json:"connections"`
	Authenticated int   `json:"authenticated"`
	Subscribed    int   `json:"subscribed"`
	Broadcasts    int64 `json:"broadcasts"`
	Delivered     int64 `json:"delivered"`
	Dropped       int64 `json:"dropped"`
	Expired       int64 `json:"expired"`
}

type Connection struct {
	ID string

	transport Transport
	outbound  chan []byte
	ping      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// guarded by Hub.mu
	claims   *auth.Claims
	all      bool
	subs     map[string]struct{}
	lastSeen time.Time
}

func (c *Connection) wants(resourceID string, now time.Time) bool {
	if c.claims == nil || c.credentialExpired(now) {
		return false
	}
	if c.all {
		return true
	}
	if resourceID == "" {
		return false
	}
	_, ok := c.subs[resourceID]
	return ok
}

// credentialExpired reports whether the token the connection authenticated
// with has passed its expiry.
func (c *Connection) credentialExpired(now time.Time) bool {
	if c.claims == nil || c.claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.claims.ExpiresAt.Time)
}

func (c *Connection) subscribed() bool {
	return c.all || len(c.subs) > 0
}

// Done is closed once the connection has been removed from the hub.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Hub is the registry of live connections.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Connection

	verifier  auth.Verifier
	validator *validator.Validator
	cfg       Config
	log       *logger.Logger
	now       func() time.Time

	broadcasts atomic.Int64
	delivered  atomic.Int64
	dropped    atomic.Int64
	expired    atomic.Int64
}

func NewHub(verifier auth.Verifier, v *validator.Validator, cfg Config, log *logger.Logger, now func() time.Time) *Hub {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 2 * cfg.HeartbeatInterval
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	if now == nil {
		now = time.Now
	}
	return &Hub{
		conns:     make(map[string]*Connection),
		verifier:  verifier,
		validator: v,
		cfg:       cfg,
		log:       log,
		now:       now,
	}
}

// Register adds an unauthenticated connection and starts its writer.
func (h *Hub) Register(t Transport) *Connection {
	c := &Connection{
		ID:        uuid.NewString(),
		transport: t,
		outbound:  make(chan []byte, h.cfg.SendBuffer),
		ping:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		subs:      make(map[string]struct{}),
		lastSeen:  h.now(),
	}

	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()

	go h.writeLoop(c)
	h.log.Debug("Subscriber connected", "connection_id", c.ID)
	return c
}

func (h *Hub) writeLoop(c *Connection) {
	for {
		select {
		case frame := <-c.outbound:
			if err := c.transport.Send(frame); err != nil {
				h.log.Warn("Subscriber send failed", "connection_id", c.ID, "error", err)
				h.dropped.Add(1)
				h.Remove(c.ID)
				return
			}
		case <-c.ping:
			if err := c.transport.Ping(); err != nil {
				h.log.Warn("Subscriber ping failed", "connection_id", c.ID, "error", err)
				h.Remove(c.ID)
				return
			}
		case <-c.done:
			return
		}
	}
}

// Remove unregisters the connection and closes its transport. Removing an
// unknown id is a no-op.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.transport.Close(); err != nil {
			h.log.Debug("Subscriber close failed", "connection_id", id, "error", err)
		}
	})
	h.log.Debug("Subscriber disconnected", "connection_id", id)
}

func (h *Hub) Authenticate(id, token string) (*auth.Claims, error) {
	claims, err := h.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[id]
	if !ok {
		return nil, ErrUnknownConnection
	}
	c.claims = claims
	c.lastSeen = h.now()
	return claims, nil
}

// Subscribe adds resourceID to the connection's filter; an empty id
// subscribes to every event.
func (h *Hub) Subscribe(id, resourceID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.authenticatedLocked(id)
	if err != nil {
		return err
	}
	if resourceID == "" {
		c.all = true
	} else {
		c.subs[resourceID] = struct{}{}
	}
	return nil
}

func (h *Hub) Unsubscribe(id, resourceID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.authenticatedLocked(id)
	if err != nil {
		return err
	}
	if resourceID == "" {
		c.all = false
	} else {
		delete(c.subs, resourceID)
	}
	return nil
}

func (h *Hub) authenticatedLocked(id string) (*Connection, error) {
	c, ok := h.conns[id]
	if !ok {
		return nil, ErrUnknownConnection
	}
	if c.claims == nil {
		return nil, ErrNotAuthenticated
	}
	return c, nil
}

// Touch records liveness for the connection.
func (h *Hub) Touch(id string) {
	h.mu.Lock()
	if c, ok := h.conns[id]; ok {
		c.lastSeen = h.now()
	}
	h.mu.Unlock()
}

// Broadcast queues env on every matching connection and returns how many
// accepted it. A connection whose queue is full is dropped.
func (h *Hub) Broadcast(env events.Envelope) int {
	frame, err := json.Marshal(ServerMessage{Type: ReplyEvent, ResourceID: env.ResourceID, Event: &env})
	if err != nil {
		h.log.Error("Failed to encode event frame", "event_id", env.ID, "error", err)
		return 0
	}
	h.broadcasts.Add(1)

	var (
		sent int
		slow []string
	)
	now := h.now()
	h.mu.RLock()
	for id, c := range h.conns {
		if !c.wants(env.ResourceID, now) {
			continue
		}
		select {
		case c.outbound <- frame:
			sent++
		default:
			slow = append(slow, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range slow {
		h.log.Warn("Dropping slow subscriber", "connection_id", id, "event_id", env.ID)
		h.dropped.Add(1)
		h.Remove(id)
	}
	h.delivered.Add(int64(sent))
	return sent
}

// Publish lets the hub act as an event bus sink.
func (h *Hub) Publish(_ context.Context, env events.Envelope) error {
	h.Broadcast(env)
	return nil
}

// Sweep removes connections silent for longer than the heartbeat timeout or
// holding an expired credential, and returns how many were removed.
func (h *Hub) Sweep(now time.Time) int {
	var stale, lapsed []string
	h.mu.RLock()
	for id, c := range h.conns {
		switch {
		case now.Sub(c.lastSeen) > h.cfg.HeartbeatTimeout:
			stale = append(stale, id)
		case c.credentialExpired(now):
			lapsed = append(lapsed, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range stale {
		h.log.Info("Subscriber heartbeat timed out", "connection_id", id)
		h.Remove(id)
	}
	for _, id := range lapsed {
		h.log.Info("Subscriber credential expired", "connection_id", id)
		h.Remove(id)
	}
	removed := len(stale) + len(lapsed)
	h.expired.Add(int64(removed))
	return removed
}

func (h *Hub) pingAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		select {
		case c.ping <- struct{}{}:
		default:
		}
	}
}

// Run drives the heartbeat until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	h.log.Info("Fan-out heartbeat started",
		"interval", h.cfg.HeartbeatInterval,
		"timeout", h.cfg.HeartbeatTimeout,
	)
	for {
		select {
		case <-ticker.C:
			h.Sweep(h.now())
			h.pingAll()
		case <-ctx.Done():
			h.closeAll()
			h.log.Info("Fan-out hub stopped")
			return
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Remove(id)
	}
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{
		Connections: len(h.conns),
		Broadcasts:  h.broadcasts.Load(),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
		Expired:     h.expired.Load(),
	}
	for _, c := range h.conns {
		if c.claims != nil {
			stats.Authenticated++
		}
		if c.subscribed() {
			stats.Subscribed++
		}
	}
	return stats
}

// HandleMessage applies one client frame and queues the reply.
func (h *Hub) HandleMessage(id string, data []byte) {
	h.Touch(id)

	var msg model.SubscriptionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.reply(id, ServerMessage{Type: ReplyError, Message: "malformed message"})
		return
	}
	if err := h.validator.Validate(&msg); err != nil {
		h.reply(id, ServerMessage{Type: ReplyError, Message: err.Error()})
		return
	}

	switch msg.Op {
	case OpAuth:
		if _, err := h.Authenticate(id, msg.Token); err != nil {
			h.log.Info("Subscriber authentication failed", "connection_id", id, "error", err)
			h.reply(id, ServerMessage{Type: ReplyError, Message: "authentication failed"})
			return
		}
		h.reply(id, ServerMessage{Type: ReplyAuthOK})
	case OpSubscribe:
		if err := h.Subscribe(id, msg.ResourceID); err != nil {
			h.reply(id, ServerMessage{Type: ReplyError, ResourceID: msg.ResourceID, Message: err.Error()})
			return
		}
		h.reply(id, ServerMessage{Type: ReplySubscribed, ResourceID: msg.ResourceID})
	case OpUnsubscribe:
		if err := h.Unsubscribe(id, msg.ResourceID); err != nil {
			h.reply(id, ServerMessage{Type: ReplyError, ResourceID: msg.ResourceID, Message: err.Error()})
			return
		}
		h.reply(id, ServerMessage{Type: ReplyUnsubscribed, ResourceID: msg.ResourceID})
	case OpPing:
		h.reply(id, ServerMessage{Type: ReplyPong})
	}
}

func (h *Hub) reply(id string, msg ServerMessage) {
	frame, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to encode reply", "connection_id", id, "error", err)
		return
	}

	h.mu.RLock()
	c, ok := h.conns[id]
	full := false
	if ok {
		select {
		case c.outbound <- frame:
		default:
			full = true
		}
	}
	h.mu.RUnlock()

	if full {
		h.dropped.Add(1)
		h.Remove(id)
	}
}
