/*
Package chat contains the core coordination logic for the ConnectMatch fleet.

This file defines the Relay, the pub/sub bridge that makes an event
published by any process visible to the locally-connected members of the
target room on every process. Chat messages gain their durable side effect
here: the subscription callback appends to the shared log, so persistence
is driven by the event stream rather than by whichever process published.
*/
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"connectmatch/internal/pkg/logx"
	"connectmatch/internal/store"
)

// Channel namespaces, one per event kind. Per-channel publish order is all
// the broker promises; chat, reaction and deletion streams for the same
// room are independent.
const (
	chatChannelPrefix     = "chat-room:"
	reactionChannelPrefix = "reaction:"
	deletionChannelPrefix = "deletion:"
)

// reactionEvent is the wire shape of a reaction publication.
type reactionEvent struct {
	RoomID    string              `json:"roomId"`
	MessageID string              `json:"messageId"`
	Emoji     string              `json:"emoji"`
	Reactions map[string][]string `json:"reactions"`
}

// deletionEvent is the wire shape of a delete-for-everyone publication.
type deletionEvent struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

// Relay publishes local client actions to the bus and re-emits incoming
// bus events to local room members.
type Relay struct {
	bus     store.Bus
	history *HistoryStore
	hub     *Hub
	subs    []store.Subscription
	logger  zerolog.Logger
}

// NewRelay constructs a Relay over the given bus, history store, and hub.
func NewRelay(bus store.Bus, history *HistoryStore, hub *Hub) *Relay {
	return &Relay{
		bus:     bus,
		history: history,
		hub:     hub,
		logger:  logx.Logger().With().Str("component", "Relay").Logger(),
	}
}

// Start opens the pattern subscriptions for every event kind. Each callback
// fires once per publication on any channel in its namespace, including
// publications made by this process.
func (r *Relay) Start(ctx context.Context) error {
	patterns := []struct {
		pattern string
		fn      store.Handler
	}{
		{chatChannelPrefix + "*", r.handleChat},
		{reactionChannelPrefix + "*", r.handleReaction},
		{deletionChannelPrefix + "*", r.handleDeletion},
	}

	for _, p := range patterns {
		sub, err := r.bus.PSubscribe(ctx, p.pattern, p.fn)
		if err != nil {
			r.Stop()
			return fmt.Errorf("subscribe %q: %w", p.pattern, err)
		}
		r.subs = append(r.subs, sub)
	}

	r.logger.Info().Msg("Relay subscriptions established.")
	return nil
}

// Stop closes all subscriptions.
func (r *Relay) Stop() {
	for _, sub := range r.subs {
		if err := sub.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("Closing relay subscription failed.")
		}
	}
	r.subs = nil
}

// PublishMessage serializes msg and publishes it on the room's chat channel.
func (r *Relay) PublishMessage(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode chat event: %w", err)
	}
	if err := r.bus.Publish(ctx, chatChannelPrefix+msg.RoomID, string(raw)); err != nil {
		return fmt.Errorf("publish chat event: %w", err)
	}
	return nil
}

// PublishReaction publishes an updated reaction map on the room's reaction
// channel.
func (r *Relay) PublishReaction(ctx context.Context, roomID, messageID, emoji string, reactions map[string][]string) error {
	raw, err := json.Marshal(reactionEvent{
		RoomID:    roomID,
		MessageID: messageID,
		Emoji:     emoji,
		Reactions: reactions,
	})
	if err != nil {
		return fmt.Errorf("encode reaction event: %w", err)
	}
	if err := r.bus.Publish(ctx, reactionChannelPrefix+roomID, string(raw)); err != nil {
		return fmt.Errorf("publish reaction event: %w", err)
	}
	return nil
}

// PublishDeletion publishes a delete-for-everyone on the room's deletion
// channel so every process notifies its local members.
func (r *Relay) PublishDeletion(ctx context.Context, roomID, messageID string) error {
	raw, err := json.Marshal(deletionEvent{RoomID: roomID, MessageID: messageID})
	if err != nil {
		return fmt.Errorf("encode deletion event: %w", err)
	}
	if err := r.bus.Publish(ctx, deletionChannelPrefix+roomID, string(raw)); err != nil {
		return fmt.Errorf("publish deletion event: %w", err)
	}
	return nil
}

// handleChat re-emits an incoming chat event to local room members, then
// appends it to the shared log. A failed append must not prevent later
// events from being processed, so it is logged and swallowed.
func (r *Relay) handleChat(channel, payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.Warn().Err(err).Str("channel", channel).Msg("Dropping malformed chat event.")
		return
	}

	roomID := msg.RoomID
	if roomID == "" {
		roomID = strings.TrimPrefix(channel, chatChannelPrefix)
	}

	r.hub.EmitToRoom(roomID, receiveMessageEvent(msg))

	if err := r.history.Append(context.Background(), roomID, msg); err != nil {
		r.logger.Error().Err(err).Str("room_id", roomID).Str("message_id", msg.ID).Msg("Persisting chat event failed.")
	}
}

// handleReaction re-emits an incoming reaction event to local room members.
func (r *Relay) handleReaction(channel, payload string) {
	var ev reactionEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		r.logger.Warn().Err(err).Str("channel", channel).Msg("Dropping malformed reaction event.")
		return
	}

	roomID := ev.RoomID
	if roomID == "" {
		roomID = strings.TrimPrefix(channel, reactionChannelPrefix)
	}

	r.hub.EmitToRoom(roomID, reactionAddedEvent(ev.MessageID, ev.Emoji, ev.Reactions))
}

// handleDeletion re-emits an incoming delete-for-everyone to local room
// members.
func (r *Relay) handleDeletion(channel, payload string) {
	var ev deletionEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		r.logger.Warn().Err(err).Str("channel", channel).Msg("Dropping malformed deletion event.")
		return
	}

	roomID := ev.RoomID
	if roomID == "" {
		roomID = strings.TrimPrefix(channel, deletionChannelPrefix)
	}

	r.hub.EmitToRoom(roomID, messageDeletedForEveryoneEvent(ev.MessageID))
}
