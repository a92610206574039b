// Package websocket is the /ws gateway: one authenticated connection per
// browser tab, request dispatch, and per-user push of account events.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/mybudgetplus/mybudget/internal/common/logger"
	ws "github.com/mybudgetplus/mybudget/pkg/websocket"
)

// Hub tracks live clients, indexed by the user that owns them.
type Hub struct {
	clients map[*Client]bool
	byUser  map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	dispatcher *ws.Dispatcher

	mu     sync.RWMutex
	logger *logger.Logger
}

func NewHub(dispatcher *ws.Dispatcher, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byUser:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		dispatcher: dispatcher,
		logger:     log.WithFields(zap.String("component", "ws_hub")),
	}
}

// Run owns registration until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer h.logger.Info("WebSocket hub stopped")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.closeSend()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	if h.byUser[client.UserID] == nil {
		h.byUser[client.UserID] = make(map[*Client]bool)
	}
	h.byUser[client.UserID][client] = true
	h.logger.Debug("Client registered",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	if set := h.byUser[client.UserID]; set != nil {
		delete(set, client)
		if len(set) == 0 {
			delete(h.byUser, client.UserID)
		}
	}
	client.closeSend()
	h.logger.Debug("Client unregistered", zap.String("client_id", client.ID))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.closeSend()
	}
	h.clients = make(map[*Client]bool)
	h.byUser = make(map[string]map[*Client]bool)
}

// BroadcastToUser pushes msg to every connection of userID. Slow clients
// whose buffer is full miss the message.
func (h *Hub) BroadcastToUser(userID string, msg *ws.Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for client := range h.byUser[userID] {
		if client.trySend(data) {
			sent++
		} else {
			h.logger.Warn("Client send buffer full", zap.String("client_id", client.ID))
		}
	}
	return sent
}

// DisconnectUser closes every connection owned by userID.
func (h *Hub) DisconnectUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.byUser[userID] {
		delete(h.clients, client)
		client.closeSend()
	}
	delete(h.byUser, userID)
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) UserClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}
