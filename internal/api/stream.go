package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/sosim/internal/model"
)

const (
	streamBuffer = 64
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// TickFrame is one websocket message: the outcome of a single tick.
type TickFrame struct {
	Tick        int                `json:"tick"`
	Events      []model.LogEvent   `json:"events"`
	Diagnostics []model.Diagnostic `json:"diagnostics,omitempty"`
}

// Hub fans tick results out to websocket subscribers. It is an engine sink.
// A subscriber whose buffer is full misses frames instead of stalling the
// tick.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	subs    map[uint64]chan []byte
	nextID  uint64
	dropped uint64
}

// NewHub creates a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[uint64]chan []byte),
	}
}

// Record implements engine.Sink.
func (h *Hub) Record(tick int, ur model.UpdateResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs) == 0 {
		return nil
	}

	b, err := json.Marshal(TickFrame{Tick: tick, Events: ur.Events, Diagnostics: ur.Diagnostics})
	if err != nil {
		return err
	}
	for _, ch := range h.subs {
		select {
		case ch <- b:
		default:
			h.dropped++
		}
	}
	return nil
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many frames were skipped for slow clients.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *Hub) subscribe() (uint64, chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	ch := make(chan []byte, streamBuffer)
	h.subs[h.nextID] = ch
	return h.nextID, ch
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// ServeHTTP upgrades the request and streams frames until the client goes
// away. Client messages are read only to notice the close.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, ch := h.subscribe()
	defer h.unsubscribe(id)
	slog.Info("stream client connected", "sub_id", id, "remote", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case b := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				slog.Debug("stream write failed", "sub_id", id, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-done:
			slog.Info("stream client disconnected", "sub_id", id)
			return
		case <-r.Context().Done():
			return
		}
	}
}
