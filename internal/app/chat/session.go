/*
Package chat contains the core coordination logic for the ConnectMatch fleet.

This file defines the Session, the per-connection coordinator. It is an
explicit state machine (Connected, InRoom, Disconnected) that translates
client events into calls on the matchmaker, relay, history store and
presence tracker. No event is user-fatal here: malformed payloads are
dropped with a warning, and a failed store or bus call for one event never
prevents handling of the next.
*/
package chat

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"connectmatch/internal/pkg/logx"
)

// SessionState tags where a connection is in its lifecycle.
type SessionState int

const (
	// StateConnected means the user holds a live socket but no room.
	StateConnected SessionState = iota

	// StateInRoom means the user is joined to a room.
	StateInRoom

	// StateDisconnected is terminal.
	StateDisconnected
)

// Deps bundles the collaborators every session shares.
type Deps struct {
	Hub        *Hub
	Presence   *Presence
	History    *HistoryStore
	Relay      *Relay
	Matchmaker *Matchmaker
}

// Session coordinates one connection's lifecycle.
// All methods run on the connection's read goroutine, so the state fields
// need no locking.
type Session struct {
	deps *Deps
	conn Conn

	state  SessionState
	roomID string

	logger zerolog.Logger
}

// NewSession constructs a Session for the given connection.
func NewSession(deps *Deps, conn Conn) *Session {
	return &Session{
		deps: deps,
		conn: conn,
		logger: logx.Logger().With().
			Str("component", "Session").
			Str("user_id", conn.UserID()).
			Logger(),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	return s.state
}

// RoomID returns the room the session is currently in, if any.
func (s *Session) RoomID() string {
	return s.roomID
}

// HandleConnect registers the connection, binds presence, and restores the
// user into their previous room when one is on record: rejoin, history
// replay, occupancy broadcast.
func (s *Session) HandleConnect(ctx context.Context) {
	s.deps.Hub.Register(s.conn)
	s.state = StateConnected

	if err := s.deps.Presence.Bind(ctx, s.conn.UserID(), s.conn.SocketID()); err != nil {
		s.logger.Error().Err(err).Msg("Binding presence failed.")
	}

	previousRoom, ok, err := s.deps.Presence.RecallRoom(ctx, s.conn.UserID())
	if err != nil {
		s.logger.Error().Err(err).Msg("Recalling previous room failed.")
		return
	}
	if ok {
		s.logger.Info().Str("room_id", previousRoom).Msg("Restoring user into previous room.")
		s.enterRoom(ctx, previousRoom)
	}
}

// HandleDisconnect tears the session down: occupancy broadcast for the last
// known room and removal of the user's presence keys. A stale connection
// (superseded by a reconnect) leaves the newer session's state alone.
func (s *Session) HandleDisconnect(ctx context.Context) {
	if s.state == StateDisconnected {
		return
	}

	current := s.deps.Hub.Unregister(s.conn)
	s.state = StateDisconnected

	if !current {
		s.logger.Info().Msg("Stale connection disconnected; presence untouched.")
		return
	}

	lastRoom, ok, err := s.deps.Presence.RecallRoom(ctx, s.conn.UserID())
	if err != nil {
		s.logger.Error().Err(err).Msg("Recalling room on disconnect failed.")
	}

	if err := s.deps.Presence.Drop(ctx, s.conn.UserID()); err != nil {
		s.logger.Error().Err(err).Msg("Dropping presence keys failed.")
	}

	if ok {
		s.broadcastOccupancy(lastRoom)
	}

	s.logger.Info().Msg("Session disconnected.")
}

// Dispatch decodes one client event envelope and routes it. Unknown events
// and invalid payloads are dropped with a warning.
func (s *Session) Dispatch(ctx context.Context, raw []byte) {
	var ev ClientEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.logger.Warn().Err(err).Msg("Client sent invalid JSON.")
		return
	}

	switch ev.Event {
	case EventChoosePreference:
		s.handleChoosePreference(ctx, ev.Data)
	case EventSendMessage:
		s.handleSendMessage(ctx, ev.Data)
	case EventAddReaction:
		s.handleAddReaction(ctx, ev.Data)
	case EventJoinRoom:
		s.handleJoinRoom(ctx, ev.Data)
	case EventLeaveRoom:
		s.handleLeaveRoom(ctx, ev.Data)
	case EventDeleteForMe:
		s.handleDeleteForMe(ctx, ev.Data)
	case EventDeleteForEveryone:
		s.handleDeleteForEveryone(ctx, ev.Data)
	default:
		s.logger.Warn().Str("event", ev.Event).Msg("Client sent unsupported event.")
	}
}

// decodePayload unmarshals and validates a typed event payload.
func decodePayload[T interface{ Validate() error }](s *Session, raw json.RawMessage, out *T) bool {
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Warn().Err(err).Msg("Client sent invalid payload.")
		return false
	}
	if err := (*out).Validate(); err != nil {
		s.logger.Warn().Err(err).Msg("Client payload failed validation.")
		return false
	}
	return true
}

// handleChoosePreference delegates to the matchmaker. Room assignment
// arrives asynchronously through the match announcement, so the session
// state does not change here.
func (s *Session) handleChoosePreference(ctx context.Context, raw json.RawMessage) {
	var p ChoosePreferencePayload
	if !decodePayload(s, raw, &p) {
		return
	}

	if err := s.deps.Matchmaker.ChoosePreference(ctx, s.conn.UserID(), p.Preference); err != nil {
		s.logger.Error().Err(err).Str("category", p.Preference).Msg("Publishing preference failed.")
	}
}

// handleSendMessage generates the message id and publishes via the relay.
// Delivery and persistence both happen on the subscription side.
func (s *Session) handleSendMessage(ctx context.Context, raw json.RawMessage) {
	var p SendMessagePayload
	if !decodePayload(s, raw, &p) {
		return
	}

	msg := NewMessage(p.RoomID, s.conn.UserID(), p.Message)
	if err := s.deps.Relay.PublishMessage(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("room_id", p.RoomID).Msg("Publishing message failed.")
	}
}

// handleAddReaction merges the reaction into the stored message and, when
// the message still exists, publishes the updated map. A missing message
// is a silent no-op; trims and deletions race client actions by design.
func (s *Session) handleAddReaction(ctx context.Context, raw json.RawMessage) {
	var p AddReactionPayload
	if !decodePayload(s, raw, &p) {
		return
	}

	userID := p.UserID
	if userID == "" {
		userID = s.conn.UserID()
	}

	reactions, err := s.deps.History.AddReaction(ctx, p.RoomID, p.MessageID, userID, p.Emoji)
	if err != nil {
		s.logger.Error().Err(err).Str("message_id", p.MessageID).Msg("Merging reaction failed.")
		return
	}
	if reactions == nil {
		return
	}

	if err := s.deps.Relay.PublishReaction(ctx, p.RoomID, p.MessageID, p.Emoji, reactions); err != nil {
		s.logger.Error().Err(err).Str("message_id", p.MessageID).Msg("Publishing reaction failed.")
	}
}

// handleJoinRoom moves the session into a room.
func (s *Session) handleJoinRoom(ctx context.Context, raw json.RawMessage) {
	var p JoinRoomPayload
	if !decodePayload(s, raw, &p) {
		return
	}

	if s.state == StateInRoom && s.roomID != p.RoomID {
		// Implicit leave; the client skipped leave_room.
		s.deps.Hub.LeaveRoom(s.conn, s.roomID)
		s.broadcastOccupancy(s.roomID)
	}

	s.enterRoom(ctx, p.RoomID)
}

// enterRoom performs the shared join path for explicit joins and reconnect
// restores: local join, room mapping, membership tracking, history replay,
// occupancy broadcast.
func (s *Session) enterRoom(ctx context.Context, roomID string) {
	s.deps.Hub.JoinRoom(s.conn, roomID)
	s.state = StateInRoom
	s.roomID = roomID

	if err := s.deps.Presence.SetRoom(ctx, s.conn.UserID(), roomID); err != nil {
		s.logger.Error().Err(err).Str("room_id", roomID).Msg("Persisting room mapping failed.")
	}
	if err := s.deps.Presence.TrackMembership(ctx, roomID, s.conn.UserID()); err != nil {
		s.logger.Error().Err(err).Str("room_id", roomID).Msg("Tracking membership failed.")
	}

	s.replayHistory(ctx, roomID)
	s.broadcastOccupancy(roomID)
}

// replayHistory sends the retained log to this connection, honoring the
// user's own delete-for-me markers.
func (s *Session) replayHistory(ctx context.Context, roomID string) {
	msgs, err := s.deps.History.HistoryFor(ctx, roomID, s.conn.UserID())
	if err != nil {
		s.logger.Error().Err(err).Str("room_id", roomID).Msg("History replay failed.")
		return
	}

	for _, msg := range msgs {
		s.conn.SendEvent(receiveMessageEvent(msg))
	}
}

// handleLeaveRoom returns the session to the Connected state and clears the
// user's presence keys for the left room.
func (s *Session) handleLeaveRoom(ctx context.Context, raw json.RawMessage) {
	var p LeaveRoomPayload
	if !decodePayload(s, raw, &p) {
		return
	}

	s.deps.Hub.LeaveRoom(s.conn, p.RoomID)
	if s.roomID == p.RoomID {
		s.state = StateConnected
		s.roomID = ""
	}

	if err := s.deps.Presence.ClearRoom(ctx, s.conn.UserID(), p.RoomID); err != nil {
		s.logger.Error().Err(err).Str("room_id", p.RoomID).Msg("Clearing room mapping failed.")
	}
	if err := s.deps.Presence.Unbind(ctx, s.conn.UserID()); err != nil {
		s.logger.Error().Err(err).Msg("Clearing user presence key failed.")
	}

	s.broadcastOccupancy(p.RoomID)
}

// handleDeleteForMe records the per-user marker and confirms to the
// requesting user only.
func (s *Session) handleDeleteForMe(ctx context.Context, raw json.RawMessage) {
	var p DeleteForMePayload
	if !decodePayload(s, raw, &p) {
		return
	}

	if err := s.deps.History.DeleteForMe(ctx, s.conn.UserID(), p.MessageID); err != nil {
		s.logger.Error().Err(err).Str("message_id", p.MessageID).Msg("Recording delete-for-me failed.")
		return
	}

	s.conn.SendEvent(messageDeletedForMeEvent(p.MessageID))
}

// handleDeleteForEveryone rewrites the shared log without the message and
// publishes the deletion so every process notifies its local members.
func (s *Session) handleDeleteForEveryone(ctx context.Context, raw json.RawMessage) {
	var p DeleteForEveryonePayload
	if !decodePayload(s, raw, &p) {
		return
	}

	if err := s.deps.History.DeleteForEveryone(ctx, p.RoomID, p.MessageID); err != nil {
		s.logger.Error().Err(err).Str("message_id", p.MessageID).Msg("Delete-for-everyone failed.")
		return
	}

	if err := s.deps.Relay.PublishDeletion(ctx, p.RoomID, p.MessageID); err != nil {
		s.logger.Error().Err(err).Str("message_id", p.MessageID).Msg("Publishing deletion failed.")
	}
}

// broadcastOccupancy recomputes the room's live occupancy and announces it
// to the room's local members.
func (s *Session) broadcastOccupancy(roomID string) {
	count := s.deps.Hub.Occupancy(roomID)
	s.deps.Hub.EmitToRoom(roomID, roomOccupancyEvent(roomID, count))
}
