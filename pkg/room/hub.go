package room

import (
	"sync"

	"github.com/sirupsen/logrus"
	"seka-server/pkg/protocol"
)

// Notifier delivers messages to players
type Notifier interface {
	SendTo(playerID int64, res *protocol.Response)
	// Broadcast sends to every seat of the session, spectators included
	Broadcast(sessionID string, playerIDs []int64, res *protocol.Response)
}

// Hub keeps track of the websocket clients connected to this process
// A player may have more than one client (several tabs).
type Hub struct {
	clients map[int64]map[*Client]bool
	lock    sync.RWMutex
	logger  logrus.FieldLogger
}

var _ Notifier = (*Hub)(nil)

// NewHub returns an empty hub
func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]bool),
		logger:  logger,
	}
}

// ClientConnected registers the client
func (h *Hub) ClientConnected(client *Client) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.logger.WithField("player", client.PlayerID).Debug("client connected")
	clients, ok := h.clients[client.PlayerID]
	if !ok {
		clients = make(map[*Client]bool)
		h.clients[client.PlayerID] = clients
	}

	clients[client] = true
}

// ClientDisconnected removes the client
// It returns true if it was the player's last client.
func (h *Hub) ClientDisconnected(client *Client) (lastClient bool) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.logger.WithField("player", client.PlayerID).Debug("client disconnected")
	clients := h.clients[client.PlayerID]
	delete(clients, client)
	if len(clients) > 0 {
		return false
	}

	delete(h.clients, client.PlayerID)
	return true
}

// Connected returns true if the player has a client on this process
func (h *Hub) Connected(playerID int64) bool {
	h.lock.RLock()
	defer h.lock.RUnlock()

	return len(h.clients[playerID]) > 0
}

// Deliver sends the message to every local client of the players
func (h *Hub) Deliver(playerIDs []int64, res *protocol.Response) {
	h.lock.RLock()
	defer h.lock.RUnlock()

	for _, playerID := range playerIDs {
		for client := range h.clients[playerID] {
			if !client.Send(res) {
				h.logger.WithField("player", playerID).Warn("client is not keeping up, dropping message")
			}
		}
	}
}

// SendTo sends the message to the player's clients
func (h *Hub) SendTo(playerID int64, res *protocol.Response) {
	h.Deliver([]int64{playerID}, res)
}

// Broadcast sends the message to the clients of every listed player
func (h *Hub) Broadcast(_ string, playerIDs []int64, res *protocol.Response) {
	h.Deliver(playerIDs, res)
}
