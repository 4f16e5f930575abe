package ws

import (
	"sort"
	"strings"
	"sync"
)

// roomSeparator joins the two participant ids into a room key. Ids are uuids,
// which can never contain it.
const roomSeparator = "$"

// RoomID derives the canonical room key for a participant pair. It is
// order-independent: both sides compute the same key regardless of who
// initiates.
func RoomID(userID1, userID2 string) string {
	ids := []string{userID1, userID2}
	sort.Strings(ids)
	return strings.Join(ids, roomSeparator)
}

// Hub is the in-process registry of room subscriptions. It is the only owner
// of the room→connections mapping and exposes just Join, Broadcast and
// LeaveAll so the registry could be swapped for a distributed pub/sub backend.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]map[*Client]struct{}
	membership map[*Client]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		membership: make(map[*Client]map[string]struct{}),
	}
}

// Join subscribes the client to a room. Joining an already joined room is a
// no-op. A client may be in any number of rooms at once.
func (h *Hub) Join(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][c] = struct{}{}

	if h.membership[c] == nil {
		h.membership[c] = make(map[string]struct{})
	}
	h.membership[c][roomID] = struct{}{}
}

// Broadcast delivers payload to every subscriber of the room, including the
// sender's own connections. Clients whose send buffer is full are dropped to
// keep backpressure bounded.
func (h *Hub) Broadcast(roomID string, payload []byte) {
	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	for _, c := range subscribers {
		if !c.enqueue(payload) {
			go c.Close()
		}
	}
}

// LeaveAll removes the client from every room it joined. Called once on
// disconnect; empty rooms are deleted.
func (h *Hub) LeaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID := range h.membership[c] {
		if subscribers := h.rooms[roomID]; subscribers != nil {
			delete(subscribers, c)
			if len(subscribers) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	delete(h.membership, c)
}
