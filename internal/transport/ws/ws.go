// Package ws bridges browser websockets to pub/sub connections.
//
// Every socket becomes one pubsub.Conn in the namespace the request resolves
// to. Messages are written as JSON text frames: {"event": "...", "data": ...}.
// Anything the browser sends is read and discarded; the read loop only serves
// pongs and close frames.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tileboard/internal/pubsub"
	"tileboard/pkg/logx"
)

type Config struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	MaxMessage int64
	Buffer     int // per-connection queue; full queues drop messages
	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool
}

func (c Config) withDefaults() Config {
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.MaxMessage <= 0 {
		c.MaxMessage = 4096
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
	return c
}

// Lookup maps a request to the namespace its socket joins.
type Lookup func(r *http.Request) (*pubsub.Namespace, bool)

type Handler struct {
	cfg    Config
	lookup Lookup
	log    logx.Logger
	up     websocket.Upgrader
}

func NewHandler(cfg Config, lookup Lookup, log logx.Logger) *Handler {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &Handler{cfg: cfg, lookup: lookup, log: log}
	h.up = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 5 * time.Second,
		CheckOrigin:      cfg.CheckOrigin,
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			h.log.Debug("upgrade failed", logx.Int("status", status), logx.Err(reason))
			http.Error(w, http.StatusText(status), status)
		},
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ns, ok := h.lookup(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	conn, err := h.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Server shutdown cancels the request context; hijacked sockets are not
	// tracked by http.Server, so close them here.
	stop := context.AfterFunc(r.Context(), func() { _ = conn.Close() })
	defer stop()

	sub := ns.Connect(h.cfg.Buffer)
	log := h.log.With(logx.Namespace(ns.Name()), logx.Conn(sub.ID()))
	log.Debug("websocket connected", logx.String("remote", r.RemoteAddr))

	go h.writeLoop(conn, sub, log)
	h.readLoop(conn, log)

	sub.Close()
	log.Debug("websocket disconnected", logx.Uint64("dropped", sub.Dropped()))
}

// writeLoop is the only writer on conn. It exits when sub is closed or a write fails.
func (h *Handler) writeLoop(conn *websocket.Conn, sub *pubsub.Conn, log logx.Logger) {
	ping := time.NewTicker(h.cfg.PongWait * 9 / 10)
	defer func() {
		ping.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case msg, ok := <-sub.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("websocket write failed", logx.String("event", msg.Event), logx.Err(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(conn *websocket.Conn, log logx.Logger) {
	conn.SetReadLimit(h.cfg.MaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn("websocket read failed", logx.Err(err))
			}
			return
		}
	}
}
