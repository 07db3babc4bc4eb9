/*
Package chat contains the core coordination logic for the ConnectMatch fleet.

This file defines the Presence tracker: user-to-socket and user-to-room
bookkeeping plus the per-room tracked membership set the cleanup sweep
reconciles against. Tracked membership and live occupancy are deliberately
different notions: the set records who has been associated with the room
since it was last empty, so the sweep knows whose keys to purge; live
occupancy is a transport-layer question answered by the hub.
*/
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"connectmatch/internal/pkg/logx"
	"connectmatch/internal/store"
)

func userKey(userID string) string {
	return "user:" + userID
}

func userRoomKey(userID string) string {
	return "user-room:" + userID
}

const roomUsersPrefix = "room-users:"

func roomUsersKey(roomID string) string {
	return roomUsersPrefix + roomID
}

// Presence tracks connection and room facts in the shared store.
// Keys are plain scalars and sets with no multi-key guarantee; a disconnect
// racing a reconnect can leave stale entries, which the cleanup sweep
// reclaims.
type Presence struct {
	store  store.Store
	logger zerolog.Logger
}

// NewPresence constructs a Presence tracker over the shared store.
func NewPresence(s store.Store) *Presence {
	return &Presence{
		store:  s,
		logger: logx.Logger().With().Str("component", "Presence").Logger(),
	}
}

// Bind records (or overwrites) the live socket id for userID. A later
// connection for the same user silently supersedes the earlier one.
func (p *Presence) Bind(ctx context.Context, userID, socketID string) error {
	if err := p.store.Set(ctx, userKey(userID), socketID); err != nil {
		return fmt.Errorf("bind user %q: %w", userID, err)
	}
	return nil
}

// Unbind removes the live socket mapping for userID.
func (p *Presence) Unbind(ctx context.Context, userID string) error {
	if err := p.store.Del(ctx, userKey(userID)); err != nil {
		return fmt.Errorf("unbind user %q: %w", userID, err)
	}
	return nil
}

// RecallRoom returns the user's last known room, if any. Used to restore a
// reconnecting user into the room they were in.
func (p *Presence) RecallRoom(ctx context.Context, userID string) (string, bool, error) {
	roomID, ok, err := p.store.Get(ctx, userRoomKey(userID))
	if err != nil {
		return "", false, fmt.Errorf("recall room of %q: %w", userID, err)
	}
	return roomID, ok, nil
}

// SetRoom persists the user-to-room mapping.
func (p *Presence) SetRoom(ctx context.Context, userID, roomID string) error {
	if err := p.store.Set(ctx, userRoomKey(userID), roomID); err != nil {
		return fmt.Errorf("set room of %q: %w", userID, err)
	}
	return nil
}

// ClearRoom removes the user-to-room mapping and drops the user from the
// room's tracked membership set.
func (p *Presence) ClearRoom(ctx context.Context, userID, roomID string) error {
	if err := p.store.Del(ctx, userRoomKey(userID)); err != nil {
		return fmt.Errorf("clear room of %q: %w", userID, err)
	}
	if err := p.store.SetRemove(ctx, roomUsersKey(roomID), userID); err != nil {
		return fmt.Errorf("untrack %q in %q: %w", userID, roomID, err)
	}
	return nil
}

// Drop removes both presence keys of a user without touching any tracked
// membership set. Disconnect uses this; the sweep reconciles the set later.
func (p *Presence) Drop(ctx context.Context, userID string) error {
	if err := p.store.Del(ctx, userRoomKey(userID), userKey(userID)); err != nil {
		return fmt.Errorf("drop presence of %q: %w", userID, err)
	}
	return nil
}

// TrackMembership adds userID to the room's tracked membership set.
func (p *Presence) TrackMembership(ctx context.Context, roomID, userID string) error {
	if err := p.store.SetAdd(ctx, roomUsersKey(roomID), userID); err != nil {
		return fmt.Errorf("track %q in %q: %w", userID, roomID, err)
	}
	return nil
}

// TrackedMembers returns the room's tracked membership set.
func (p *Presence) TrackedMembers(ctx context.Context, roomID string) ([]string, error) {
	members, err := p.store.SetMembers(ctx, roomUsersKey(roomID))
	if err != nil {
		return nil, fmt.Errorf("tracked members of %q: %w", roomID, err)
	}
	return members, nil
}

// TrackedRooms returns the ids of every room with a tracked membership set.
func (p *Presence) TrackedRooms(ctx context.Context) ([]string, error) {
	keys, err := p.store.Keys(ctx, roomUsersPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("list tracked rooms: %w", err)
	}

	rooms := make([]string, 0, len(keys))
	for _, key := range keys {
		rooms = append(rooms, strings.TrimPrefix(key, roomUsersPrefix))
	}
	return rooms, nil
}

// PurgeRoom deletes every tracked member's presence keys and discards the
// room's tracked membership set. Called by the cleanup sweep once the room
// has zero occupancy.
func (p *Presence) PurgeRoom(ctx context.Context, roomID string) error {
	members, err := p.TrackedMembers(ctx, roomID)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(members)*2+1)
	for _, member := range members {
		keys = append(keys, userKey(member), userRoomKey(member))
	}
	keys = append(keys, roomUsersKey(roomID))

	if err := p.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("purge room %q: %w", roomID, err)
	}

	p.logger.Info().Str("room_id", roomID).Int("members", len(members)).Msg("Purged empty room presence state.")
	return nil
}
