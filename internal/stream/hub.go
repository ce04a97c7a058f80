// Package stream pushes avatar state to overlay clients over WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/posteravatar/internal/bus"
	"github.com/normanking/posteravatar/internal/logging"
)

// Message types sent to overlays.
const (
	TypeMood         = "mood"
	TypeTranscript   = "transcript"
	TypeViewerStatus = "viewer.status"
	TypeClip         = "viewer.clip"
	TypeLog          = "log"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

// Message is one overlay update.
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
	Seq  uint64         `json:"seq"`
}

var busTypes = map[bus.EventType]string{
	bus.EventTypeMoodChanged:  TypeMood,
	bus.EventTypeTranscript:   TypeTranscript,
	bus.EventTypeViewerStatus: TypeViewerStatus,
	bus.EventTypeClipChanged:  TypeClip,
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans messages out to every connected client. New clients first receive the
// latest message of each type.
type Hub struct {
	addr     string
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	latest  map[string]Message
}

// NewHub creates a hub that Run serves on addr.
func NewHub(addr string, logger zerolog.Logger) *Hub {
	return &Hub{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger.With().Str("component", "stream").Logger(),
		clients: make(map[*client]struct{}),
		latest:  make(map[string]Message),
	}
}

// Attach forwards mood, transcript and viewer events from b.
func (h *Hub) Attach(b *bus.EventBus) {
	types := make([]bus.EventType, 0, len(busTypes))
	for t := range busTypes {
		types = append(types, t)
	}
	b.SubscribeMultiple(types, func(e bus.Event) {
		h.Broadcast(Message{Type: busTypes[e.Type], Data: e.Data, Seq: e.Seq})
	})
}

// AttachLog forwards recorded log entries as log messages. The hub's own entries are
// skipped.
func (h *Hub) AttachLog(l *logging.Logger) {
	l.SetOnLog(func(e logging.LogEntry) {
		if e.Component == "stream" {
			return
		}
		h.Broadcast(Message{Type: TypeLog, Data: map[string]any{
			"timestamp": e.Timestamp,
			"level":     e.Level,
			"component": e.Component,
			"message":   e.Message,
			"data":      e.Data,
		}})
	})
}

// Broadcast sends msg to all clients. Messages older than the latest of the same type
// are dropped. Log messages are not replayed to new clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("marshal overlay message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if msg.Type != TypeLog {
		if prev, ok := h.latest[msg.Type]; ok && msg.Seq != 0 && prev.Seq > msg.Seq {
			return
		}
		h.latest[msg.Type] = msg
	}

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn().Msg("overlay client too slow, dropping")
			h.removeLocked(c)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams messages until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	for _, msg := range h.latest {
		if data, err := json.Marshal(msg); err == nil {
			c.send <- data
		}
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("overlay connected")

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client input and unregisters on error.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(c)
		h.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeLocked unregisters c. Callers hold h.mu.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Run serves /ws on the hub's address until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	srv := &http.Server{Addr: h.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info().Str("addr", h.addr).Msg("overlay stream listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		h.mu.Lock()
		for c := range h.clients {
			h.removeLocked(c)
		}
		h.mu.Unlock()
		return srv.Shutdown(shutdownCtx)
	}
}
