package api

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"gostudio/domain/core"
	"gostudio/domain/event"
	"gostudio/internal"
)

const (
	clientBuffer    = 32
	broadcastBuffer = 256
	pingInterval    = 30 * time.Second
)

// SSEHub fans session events out to Server-Sent Events clients. It implements
// ports.EventSink; Publish never blocks and drops events when buffers are full.
type SSEHub struct {
	clients   map[core.SessionID]map[chan event.Event]struct{}
	clientsMu sync.RWMutex
	broadcast chan event.Event
	done      chan struct{}
	closeOnce sync.Once
	logger    *internal.Logger
}

// NewSSEHub creates a hub and starts its dispatch loop
func NewSSEHub() *SSEHub {
	hub := &SSEHub{
		clients:   make(map[core.SessionID]map[chan event.Event]struct{}),
		broadcast: make(chan event.Event, broadcastBuffer),
		done:      make(chan struct{}),
		logger:    internal.DefaultLogger,
	}

	go hub.run()
	return hub
}

// run dispatches queued events until Close
func (h *SSEHub) run() {
	for {
		select {
		case e := <-h.broadcast:
			h.clientsMu.RLock()
			for clientChan := range h.clients[e.SessionID] {
				select {
				case clientChan <- e:
				default:
					h.logger.Warn("[SSE] Client channel full for session %s, skipping %s", e.SessionID, e.Type)
				}
			}
			h.clientsMu.RUnlock()
		case <-h.done:
			return
		}
	}
}

// Publish queues an event for every client of its session
func (h *SSEHub) Publish(e event.Event) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- e:
	default:
		h.logger.Warn("[SSE] Broadcast channel full, dropping event: %s", e.Type)
	}
}

// Subscribe registers a client for sessionID. The returned cancel function
// unregisters it and closes the channel.
func (h *SSEHub) Subscribe(sessionID core.SessionID) (<-chan event.Event, func()) {
	ch := make(chan event.Event, clientBuffer)

	h.clientsMu.Lock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[chan event.Event]struct{})
	}
	h.clients[sessionID][ch] = struct{}{}
	h.logger.Debug("[SSE] Client registered for session %s (total clients: %d)", sessionID, len(h.clients[sessionID]))
	h.clientsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.clientsMu.Lock()
			defer h.clientsMu.Unlock()
			if clients, ok := h.clients[sessionID]; ok {
				delete(clients, ch)
				if len(clients) == 0 {
					delete(h.clients, sessionID)
				}
			}
			close(ch)
			h.logger.Debug("[SSE] Client unregistered from session %s", sessionID)
		})
	}
	return ch, cancel
}

// Close stops the dispatch loop; later events are dropped
func (h *SSEHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// HandleSSE streams the events of ?session_id= until the client disconnects
func (h *SSEHub) HandleSSE(c *gin.Context) {
	sessionID := core.SessionID(c.Query("session_id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, errorBody{Kind: kindBadRequest, Message: "session_id parameter required"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Headers", "Cache-Control")

	events, cancel := h.Subscribe(sessionID)
	defer cancel()

	ctx := c.Request.Context()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-events:
			if !ok {
				return false
			}
			payload, err := json.Marshal(e)
			if err != nil {
				h.logger.Error("[SSE] Failed to marshal event: %v", err)
				return true
			}
			c.SSEvent(string(e.Type), string(payload))
			return true

		case <-ticker.C:
			c.SSEvent("ping", `{"status": "alive", "timestamp": "`+time.Now().UTC().Format(time.RFC3339)+`"}`)
			return true

		case <-ctx.Done():
			return false
		}
	})
}

// ActiveSessions returns sessions with connected clients
func (h *SSEHub) ActiveSessions() []core.SessionID {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	sessions := make([]core.SessionID, 0, len(h.clients))
	for sessionID := range h.clients {
		sessions = append(sessions, sessionID)
	}
	return sessions
}

// ClientCount returns the number of connected clients for a session
func (h *SSEHub) ClientCount(sessionID core.SessionID) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[sessionID])
}
