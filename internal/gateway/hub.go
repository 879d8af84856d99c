// ABOUTME: Room bookkeeping and fan-out for live websocket connections
// ABOUTME: Rooms are named fan-out sets: one per conversation, one personal room per identity

package gateway

import (
	"log/slog"
	"sync"
)

// Room name constructors. A connection always sits in its identity room;
// conversation rooms are joined and left explicitly.
func conversationRoom(conversationID string) string { return "conversation:" + conversationID }
func identityRoom(identityID string) string         { return "identity:" + identityID }

// Hub tracks live clients and their room memberships. All access is
// guarded by one RWMutex; sends never block under the lock because client
// send channels are buffered and drop-on-full.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	rooms       map[string]map[*Client]bool
	clientRooms map[*Client]map[string]bool
	logger      *slog.Logger
}

// NewHub creates an empty hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:     make(map[*Client]bool),
		rooms:       make(map[string]map[*Client]bool),
		clientRooms: make(map[*Client]map[string]bool),
		logger:      logger.With("component", "hub"),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	h.clientRooms[c] = make(map[string]bool)
}

// Unregister removes a client from the hub and every room it joined.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	for room := range h.clientRooms[c] {
		h.leaveLocked(room, c)
	}
	delete(h.clientRooms, c)
	delete(h.clients, c)
}

// Join adds the client to a room.
func (h *Hub) Join(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[c] = true
	h.clientRooms[c][room] = true
}

// Leave removes the client from a room.
func (h *Hub) Leave(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, c)
	delete(h.clientRooms[c], room)
}

func (h *Hub) leaveLocked(room string, c *Client) {
	members := h.rooms[room]
	if members == nil {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// IdentityInRoom reports whether any connection belonging to the identity
// is currently joined to the room. Drives the decision to additionally
// push a direct notification: in-room recipients already get the broadcast.
func (h *Hub) IdentityInRoom(room, identityID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c.identity.ID == identityID {
			return true
		}
	}
	return false
}

// IdentityConnected reports whether the identity has any live connection
// on this instance.
func (h *Hub) IdentityConnected(identityID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.identity.ID == identityID {
			return true
		}
	}
	return false
}

// Broadcast delivers payload to every member of a room. A nil exclude
// sends to everyone, including the originating connection.
func (h *Hub) Broadcast(room string, payload []byte, exclude *Client) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c == exclude {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(payload)
	}
}

// BroadcastAll delivers payload to every connected client.
func (h *Hub) BroadcastAll(payload []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(payload)
	}
}

// SendToIdentity delivers payload to every connection of one identity.
func (h *Hub) SendToIdentity(identityID string, payload []byte) {
	h.Broadcast(identityRoom(identityID), payload, nil)
}
