/*
Package chat contains the core coordination logic for the ConnectMatch
fleet: the bounded per-room message log, presence bookkeeping, preference
matchmaking, the pub/sub relay, and the per-connection session state machine.

This file defines the Message model, the reaction merge rules, and the
client/server event surface with required-field validation at the boundary.
*/
package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Client-sent event names.
const (
	EventChoosePreference  = "choose_preference"
	EventSendMessage       = "send_message"
	EventAddReaction       = "add_reaction"
	EventJoinRoom          = "join_room"
	EventLeaveRoom         = "leave_room"
	EventDeleteForMe       = "delete_for_me"
	EventDeleteForEveryone = "delete_for_everyone"
)

// Server-emitted event names.
const (
	EventReceiveMessage            = "receive_message"
	EventReactionAdded             = "reaction_added"
	EventMatchFound                = "match_found"
	EventMessageDeletedForMe       = "message_deleted_for_me"
	EventMessageDeletedForEveryone = "message_deleted_for_everyone"
	EventRoomOccupancy             = "room_occupancy"
)

// Message is the wire and storage representation of a chat message.
// The JSON field names are the cross-process contract; every fleet member
// and every stored log entry uses this exact shape.
type Message struct {
	ID        string              `json:"id"`
	RoomID    string              `json:"roomID"`
	Sender    string              `json:"sender"`
	Body      string              `json:"message"`
	Timestamp time.Time           `json:"timestamp"`
	Reactions map[string][]string `json:"reactions"`
}

// NewMessage builds a message with a fresh globally-unique id and the
// current timestamp. Reactions start empty, never nil, so the wire shape
// always carries an object.
func NewMessage(roomID, sender, body string) Message {
	return Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Sender:    sender,
		Body:      body,
		Timestamp: time.Now().UTC(),
		Reactions: map[string][]string{},
	}
}

// applyReaction merges a user's reaction into the map. A user holds at most
// one emoji per message: any prior entry by the same user is removed first,
// and emoji keys never map to an empty user list. Repeating the same call
// is a no-op after the first application.
func applyReaction(reactions map[string][]string, userID, emoji string) map[string][]string {
	if reactions == nil {
		reactions = map[string][]string{}
	}

	for existing, users := range reactions {
		kept := users[:0]
		for _, u := range users {
			if u != userID {
				kept = append(kept, u)
			}
		}
		if len(kept) == 0 {
			delete(reactions, existing)
		} else {
			reactions[existing] = kept
		}
	}

	reactions[emoji] = append(reactions[emoji], userID)
	return reactions
}

// ClientEvent is the envelope every client action arrives in.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerEvent is the envelope every server emission leaves in.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ChoosePreferencePayload carries a matchmaking request.
type ChoosePreferencePayload struct {
	Preference string `json:"preference"`
}

func (p ChoosePreferencePayload) Validate() error {
	if p.Preference == "" {
		return fmt.Errorf("choose_preference: missing preference")
	}
	return nil
}

// SendMessagePayload carries an outgoing chat message.
type SendMessagePayload struct {
	RoomID  string `json:"roomID"`
	Message string `json:"message"`
}

func (p SendMessagePayload) Validate() error {
	if p.RoomID == "" {
		return fmt.Errorf("send_message: missing roomID")
	}
	if p.Message == "" {
		return fmt.Errorf("send_message: missing message")
	}
	return nil
}

// AddReactionPayload carries a reaction toggle. UserID may be omitted, in
// which case the session's own user id applies.
type AddReactionPayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Emoji     string `json:"emoji"`
	RoomID    string `json:"roomId"`
}

func (p AddReactionPayload) Validate() error {
	if p.MessageID == "" || p.Emoji == "" || p.RoomID == "" {
		return fmt.Errorf("add_reaction: missing messageId, emoji or roomId")
	}
	return nil
}

// JoinRoomPayload carries an explicit room join.
type JoinRoomPayload struct {
	RoomID string `json:"roomID"`
}

func (p JoinRoomPayload) Validate() error {
	if p.RoomID == "" {
		return fmt.Errorf("join_room: missing roomID")
	}
	return nil
}

// LeaveRoomPayload carries an explicit room leave.
type LeaveRoomPayload struct {
	RoomID string `json:"roomID"`
}

func (p LeaveRoomPayload) Validate() error {
	if p.RoomID == "" {
		return fmt.Errorf("leave_room: missing roomID")
	}
	return nil
}

// DeleteForMePayload hides a message for the requesting user only.
type DeleteForMePayload struct {
	MessageID string `json:"messageId"`
}

func (p DeleteForMePayload) Validate() error {
	if p.MessageID == "" {
		return fmt.Errorf("delete_for_me: missing messageId")
	}
	return nil
}

// DeleteForEveryonePayload removes a message from the shared log.
type DeleteForEveryonePayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

func (p DeleteForEveryonePayload) Validate() error {
	if p.MessageID == "" || p.RoomID == "" {
		return fmt.Errorf("delete_for_everyone: missing messageId or roomId")
	}
	return nil
}

// ReceiveMessagePayload is the client-facing shape of a chat message.
type ReceiveMessagePayload struct {
	Sender    string              `json:"sender"`
	Message   string              `json:"message"`
	Timestamp time.Time           `json:"timestamp"`
	ID        string              `json:"id"`
	Reactions map[string][]string `json:"reactions"`
}

// receiveMessageEvent converts a stored message into its emitted form.
func receiveMessageEvent(msg Message) ServerEvent {
	reactions := msg.Reactions
	if reactions == nil {
		reactions = map[string][]string{}
	}

	return ServerEvent{
		Event: EventReceiveMessage,
		Data: ReceiveMessagePayload{
			Sender:    msg.Sender,
			Message:   msg.Body,
			Timestamp: msg.Timestamp,
			ID:        msg.ID,
			Reactions: reactions,
		},
	}
}

// ReactionAddedPayload announces an updated reaction map for one message.
type ReactionAddedPayload struct {
	MessageID string              `json:"messageId"`
	Emoji     string              `json:"emoji"`
	Reactions map[string][]string `json:"reactions"`
}

func reactionAddedEvent(messageID, emoji string, reactions map[string][]string) ServerEvent {
	return ServerEvent{
		Event: EventReactionAdded,
		Data: ReactionAddedPayload{
			MessageID: messageID,
			Emoji:     emoji,
			Reactions: reactions,
		},
	}
}

// MatchFoundPayload tells a waiting user which room their preference
// resolved to.
type MatchFoundPayload struct {
	RoomID     string `json:"roomID"`
	Preference string `json:"preference"`
}

func matchFoundEvent(roomID, preference string) ServerEvent {
	return ServerEvent{
		Event: EventMatchFound,
		Data: MatchFoundPayload{
			RoomID:     roomID,
			Preference: preference,
		},
	}
}

// MessageDeletedPayload names the message affected by either deletion mode.
type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
}

func messageDeletedForMeEvent(messageID string) ServerEvent {
	return ServerEvent{
		Event: EventMessageDeletedForMe,
		Data:  MessageDeletedPayload{MessageID: messageID},
	}
}

func messageDeletedForEveryoneEvent(messageID string) ServerEvent {
	return ServerEvent{
		Event: EventMessageDeletedForEveryone,
		Data:  MessageDeletedPayload{MessageID: messageID},
	}
}

// RoomOccupancyPayload reports how many sockets are currently joined to a
// room.
type RoomOccupancyPayload struct {
	RoomID string `json:"roomID"`
	Count  int    `json:"count"`
}

func roomOccupancyEvent(roomID string, count int) ServerEvent {
	return ServerEvent{
		Event: EventRoomOccupancy,
		Data: RoomOccupancyPayload{
			RoomID: roomID,
			Count:  count,
		},
	}
}
