package fanout

import (
	"net/http"
	"time"

	"shelfwatch/pkg/auth"
	httputil "shelfwatch/pkg/http"
	"shelfwatch/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8192
)

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Send(frame []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (t *wsTransport) Close() error {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	stats    func() any
	log      *logger.Logger
}

// NewHandler serves the subscriber endpoint. stats, when set, replaces the
// body of the stats endpoint.
func NewHandler(hub *Hub, stats func() any, log *logger.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		stats: stats,
		log:   log,
	}
}

func (h *Handler) Connect(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.log.Info("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	c := h.hub.Register(&wsTransport{conn: conn})
	defer h.hub.Remove(c.ID)

	if header := r.Header.Get("Authorization"); header != "" {
		if _, err := h.hub.Authenticate(c.ID, auth.StripBearer(header)); err != nil {
			h.log.Info("Subscriber header authentication failed", "connection_id", c.ID, "error", err)
			return
		}
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		h.hub.Touch(c.ID)
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("Subscriber read failed", "connection_id", c.ID, "error", err)
			}
			return
		}
		h.hub.HandleMessage(c.ID, data)
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body any = h.hub.Stats()
	if h.stats != nil {
		body = h.stats()
	}
	if err := httputil.WriteSuccess(w, body); err != nil {
		h.log.Error("failed to write success response", "handler", "Stats", "operation", "WriteSuccess", "error", err)
	}
}

func (h *Handler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/ws", h.Connect)
	router.GET("/api/v1/realtime/stats", h.Stats)
}
