package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loomhq/loom/internal/ui"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 45 * time.Second
	wsPingInterval = 15 * time.Second
	wsMaxMsgBytes  = 1 << 16
)

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
	return c.conn.WriteJSON(v)
}

// Hub manages websocket clients grouped by conversation. A client joins
// exactly one group, named by the conversationId query parameter, and
// receives every patch broadcast to that conversation.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	groups map[string]map[*wsClient]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		groups: map[string]map[*wsClient]struct{}{},
	}
}

// ServeHTTP upgrades the connection and keeps it registered until it
// closes. Inbound frames are only read to service pings.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversationId")
	if conversationID == "" {
		http.Error(w, "conversationId required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn}
	h.join(conversationID, client)
	h.logger.Debug("websocket joined", "conversation_id", conversationID)

	go h.pingLoop(client)

	conn.SetReadLimit(wsMaxMsgBytes)
	conn.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.leave(conversationID, client)
	conn.Close()
	h.logger.Debug("websocket left", "conversation_id", conversationID)
}

func (h *Hub) pingLoop(client *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for range ticker.C {
		client.mu.Lock()
		client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
		err := client.conn.WriteMessage(websocket.PingMessage, nil)
		client.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (h *Hub) join(conversationID string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.groups[conversationID]
	if !ok {
		group = map[*wsClient]struct{}{}
		h.groups[conversationID] = group
	}
	group[client] = struct{}{}
}

func (h *Hub) leave(conversationID string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if group, ok := h.groups[conversationID]; ok {
		delete(group, client)
		if len(group) == 0 {
			delete(h.groups, conversationID)
		}
	}
}

// BroadcastPatch sends one ui.patch.v1 message to every client joined to
// the conversation. Send failures drop only the failing client.
func (h *Hub) BroadcastPatch(_ context.Context, conversationID string, patch ui.Patch) error {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.groups[conversationID]))
	for client := range h.groups[conversationID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.writeJSON(patch); err != nil {
			h.logger.Warn("patch send failed", "conversation_id", conversationID, "error", err)
			h.leave(conversationID, client)
			client.conn.Close()
		}
	}
	return nil
}

// Joined reports how many clients are in a conversation's group.
func (h *Hub) Joined(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[conversationID])
}
