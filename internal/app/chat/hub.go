/*
Package chat contains the core coordination logic for the ConnectMatch fleet.

This file defines the Hub, the process-local socket registry. It answers
the transport-layer questions the rest of the core asks: which sockets are
joined to a room right now (occupancy), and where a given user's live
connection is. Cross-process state never lives here; the hub only knows
about connections this process holds.
*/
package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"connectmatch/internal/pkg/logx"
)

// Conn is a live client connection as the core sees it. The websocket
// client implements it; tests substitute fakes.
type Conn interface {
	// UserID is the stable opaque user id the transport supplied.
	UserID() string

	// SocketID identifies this particular connection.
	SocketID() string

	// SendEvent queues a server event for delivery. Implementations must
	// never block the caller; a full queue drops the event.
	SendEvent(ev ServerEvent)

	// Kick closes the connection because a newer one superseded it.
	Kick(reason string)
}

// Hub indexes the process's live connections by user and by room.
// Forward and reverse room indexes are kept so that room fan-out and full
// disconnect cleanup are both cheap.
type Hub struct {
	mu sync.RWMutex

	// byUser maps user id to their single live connection.
	byUser map[string]Conn

	// byRoom maps room id to the set of connections joined to it.
	byRoom map[string]map[Conn]struct{}

	// rooms maps a connection to the set of rooms it has joined.
	rooms map[Conn]map[string]struct{}

	logger zerolog.Logger
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		byUser: make(map[string]Conn),
		byRoom: make(map[string]map[Conn]struct{}),
		rooms:  make(map[Conn]map[string]struct{}),
		logger: logx.Logger().With().Str("component", "Hub").Logger(),
	}
}

// Register adds a connection to the registry. If the same user already has
// a live connection on this process, the old one is detached and kicked:
// exactly one live connection per user id at a time.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	old, superseded := h.byUser[c.UserID()]
	if superseded && old != c {
		h.detachLocked(old)
	}
	h.byUser[c.UserID()] = c
	h.rooms[c] = make(map[string]struct{})
	h.mu.Unlock()

	if superseded && old != c {
		h.logger.Info().Str("user_id", c.UserID()).Msg("Superseding existing connection for user.")
		old.Kick("session replaced by a newer connection")
	}
}

// Unregister removes the connection and reports whether it was still the
// user's current one. A stale connection (already superseded) must not
// disturb the newer session's state, so callers skip presence teardown
// when this returns false.
func (h *Hub) Unregister(c Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.byUser[c.UserID()]
	if !ok || current != c {
		h.detachLocked(c)
		return false
	}

	delete(h.byUser, c.UserID())
	h.detachLocked(c)
	return true
}

// detachLocked removes the connection from every room index. Caller holds mu.
func (h *Hub) detachLocked(c Conn) {
	for roomID := range h.rooms[c] {
		if members, ok := h.byRoom[roomID]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.byRoom, roomID)
			}
		}
	}
	delete(h.rooms, c)
}

// JoinRoom marks the connection as joined to roomID.
func (h *Hub) JoinRoom(c Conn, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, known := h.rooms[c]; !known {
		// Never registered, or already unregistered. Nothing to join.
		return
	}

	if h.byRoom[roomID] == nil {
		h.byRoom[roomID] = make(map[Conn]struct{})
	}
	h.byRoom[roomID][c] = struct{}{}
	h.rooms[c][roomID] = struct{}{}
}

// LeaveRoom removes the connection from roomID.
func (h *Hub) LeaveRoom(c Conn, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.byRoom[roomID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.byRoom, roomID)
		}
	}
	if rooms, ok := h.rooms[c]; ok {
		delete(rooms, roomID)
	}
}

// EmitToRoom delivers an event to every local connection joined to roomID.
func (h *Hub) EmitToRoom(roomID string, ev ServerEvent) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.byRoom[roomID]))
	for c := range h.byRoom[roomID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.SendEvent(ev)
	}
}

// EmitToUser delivers an event to the user's live connection, if this
// process holds one. Returns whether a delivery was attempted.
func (h *Hub) EmitToUser(userID string, ev ServerEvent) bool {
	h.mu.RLock()
	c, ok := h.byUser[userID]
	h.mu.RUnlock()

	if !ok {
		return false
	}
	c.SendEvent(ev)
	return true
}

// Occupancy reports how many local connections are presently joined to the
// room. This is the transport-layer occupancy question: "is anyone here
// right now", as opposed to the tracked membership set in the store.
func (h *Hub) Occupancy(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.byRoom[roomID])
}
