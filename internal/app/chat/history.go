/*
Package chat contains the core coordination logic for the ConnectMatch fleet.

This file defines the HistoryStore, which owns the bounded per-room message
log in the shared store: append-and-trim, ordered replay, the in-place
reaction merge, and the two deletion modes.
*/
package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"connectmatch/internal/pkg/logx"
	"connectmatch/internal/store"
)

func messagesKey(roomID string) string {
	return "messages:" + roomID
}

func deletedForMeKey(userID, messageID string) string {
	return "deleted-for-me:" + userID + ":" + messageID
}

// HistoryStore manages the bounded message log of every room.
// All state lives in the shared store; the struct itself is stateless and
// safe for concurrent use. Log mutation is read-modify-write over the whole
// list and therefore converges rather than serializes under cross-process
// races (last writer wins).
type HistoryStore struct {
	store  store.Store
	limit  int
	logger zerolog.Logger
}

// NewHistoryStore constructs a HistoryStore retaining at most limit
// messages per room.
func NewHistoryStore(s store.Store, limit int) *HistoryStore {
	return &HistoryStore{
		store:  s,
		limit:  limit,
		logger: logx.Logger().With().Str("component", "HistoryStore").Logger(),
	}
}

// Append adds msg to the end of the room's log and trims the log to the
// most recent limit entries, discarding the oldest first.
func (h *HistoryStore) Append(ctx context.Context, roomID string, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %q: %w", msg.ID, err)
	}

	key := messagesKey(roomID)
	if err := h.store.ListAppend(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("append message to %q: %w", roomID, err)
	}
	if err := h.store.ListTrim(ctx, key, -int64(h.limit), -1); err != nil {
		return fmt.Errorf("trim log of %q: %w", roomID, err)
	}
	return nil
}

// History returns the full retained log of the room in creation order.
// Entries that no longer decode are skipped, not fatal; the log is shared
// mutable state and a half-written entry must not break replay for everyone.
func (h *HistoryStore) History(ctx context.Context, roomID string) ([]Message, error) {
	entries, err := h.store.ListRange(ctx, messagesKey(roomID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("read log of %q: %w", roomID, err)
	}

	msgs := make([]Message, 0, len(entries))
	for _, entry := range entries {
		var msg Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			h.logger.Warn().Err(err).Str("room_id", roomID).Msg("Skipping undecodable log entry.")
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// HistoryFor returns the room's log as seen by one user: messages that user
// has hidden via delete-for-me are filtered out. Other users' views are
// never affected by those markers.
func (h *HistoryStore) HistoryFor(ctx context.Context, roomID, userID string) ([]Message, error) {
	msgs, err := h.History(ctx, roomID)
	if err != nil {
		return nil, err
	}

	visible := msgs[:0]
	for _, msg := range msgs {
		hidden, err := h.hiddenFor(ctx, userID, msg.ID)
		if err != nil {
			h.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Marker lookup failed; keeping message visible.")
			hidden = false
		}
		if !hidden {
			visible = append(visible, msg)
		}
	}
	return visible, nil
}

// hiddenFor reports whether userID has a delete-for-me marker for messageID.
func (h *HistoryStore) hiddenFor(ctx context.Context, userID, messageID string) (bool, error) {
	_, ok, err := h.store.Get(ctx, deletedForMeKey(userID, messageID))
	if err != nil {
		return false, err
	}
	return ok, nil
}

// AddReaction locates the message by id in the room's current log, merges
// the user's reaction, and writes the message back at the same position.
// The updated reaction map is returned; a nil map means the message is no
// longer in the log (trimmed or deleted), which is a silent no-op rather
// than an error.
func (h *HistoryStore) AddReaction(ctx context.Context, roomID, messageID, userID, emoji string) (map[string][]string, error) {
	key := messagesKey(roomID)
	entries, err := h.store.ListRange(ctx, key, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("read log of %q: %w", roomID, err)
	}

	for i, entry := range entries {
		var msg Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			continue
		}
		if msg.ID != messageID {
			continue
		}

		msg.Reactions = applyReaction(msg.Reactions, userID, emoji)

		raw, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("encode message %q: %w", messageID, err)
		}
		if err := h.store.ListSet(ctx, key, int64(i), string(raw)); err != nil {
			return nil, fmt.Errorf("write back message %q: %w", messageID, err)
		}
		return msg.Reactions, nil
	}

	// Trimmed or deleted in the meantime; expected, not an error.
	return nil, nil
}

// DeleteForMe records that userID has hidden messageID for themselves.
// The shared log is untouched and the message is not required to exist.
func (h *HistoryStore) DeleteForMe(ctx context.Context, userID, messageID string) error {
	if err := h.store.Set(ctx, deletedForMeKey(userID, messageID), "true"); err != nil {
		return fmt.Errorf("record delete-for-me marker: %w", err)
	}
	return nil
}

// DeleteForEveryone removes the message with messageID from the room's log,
// preserving the relative order of every other message, and prunes every
// per-user delete-for-me marker referencing it. Deleting an absent id
// leaves the log unchanged.
func (h *HistoryStore) DeleteForEveryone(ctx context.Context, roomID, messageID string) error {
	key := messagesKey(roomID)
	entries, err := h.store.ListRange(ctx, key, 0, -1)
	if err != nil {
		return fmt.Errorf("read log of %q: %w", roomID, err)
	}

	kept := make([]string, 0, len(entries))
	for _, entry := range entries {
		var msg Message
		if err := json.Unmarshal([]byte(entry), &msg); err == nil && msg.ID == messageID {
			continue
		}
		kept = append(kept, entry)
	}

	if len(kept) != len(entries) {
		if err := h.store.Del(ctx, key); err != nil {
			return fmt.Errorf("rewrite log of %q: %w", roomID, err)
		}
		for _, entry := range kept {
			if err := h.store.ListAppend(ctx, key, entry); err != nil {
				return fmt.Errorf("rewrite log of %q: %w", roomID, err)
			}
		}
	}

	markers, err := h.store.Keys(ctx, "deleted-for-me:*:"+messageID)
	if err != nil {
		return fmt.Errorf("find markers for %q: %w", messageID, err)
	}
	if len(markers) > 0 {
		if err := h.store.Del(ctx, markers...); err != nil {
			return fmt.Errorf("prune markers for %q: %w", messageID, err)
		}
	}
	return nil
}
