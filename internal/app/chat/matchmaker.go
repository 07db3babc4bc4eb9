/*
Package chat contains the core coordination logic for the ConnectMatch fleet.

This file defines the Matchmaker. Choosing a preference publishes an
announcement on the category's channel; every process subscribes to every
known category at startup and applies the same deterministic room-selection
policy, so two users choosing the same category converge on the same room
without negotiation.
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

const preferenceChannelPrefix = "preference:"

// MatchPolicy maps a category to a room id. Returning ok=false means the
// category has no room rule and the announcement is ignored, never fatal.
// Every process in the fleet must run the same policy.
type MatchPolicy func(category string) (roomID string, ok bool)

// SharedRoomPolicy funnels every user of a category into one shared,
// deterministically named room.
func SharedRoomPolicy(category string) (string, bool) {
	if category == "" {
		return "", false
	}
	return "room-" + strings.ToLower(category), true
}

// KnownCategoriesPolicy restricts a policy to a fixed category list.
// Announcements for anything outside the list are ignored.
func KnownCategoriesPolicy(categories []string, inner MatchPolicy) MatchPolicy {
	known := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		known[c] = struct{}{}
	}

	return func(category string) (string, bool) {
		if _, ok := known[category]; !ok {
			return "", false
		}
		return inner(category)
	}
}

// announcement is the wire shape of a preference publication.
type announcement struct {
	UserID     string `json:"userId"`
	Preference string `json:"preference"`
}

// Matchmaker routes waiting users into shared rooms by preference category.
type Matchmaker struct {
	bus        store.Bus
	hub        *Hub
	categories []string
	policy     MatchPolicy
	subs       []store.Subscription
	logger     zerolog.Logger
}

// NewMatchmaker constructs a Matchmaker for the given categories.
// A nil policy is tolerated; every announcement is then ignored.
func NewMatchmaker(bus store.Bus, hub *Hub, categories []string, policy MatchPolicy) *Matchmaker {
	return &Matchmaker{
		bus:        bus,
		hub:        hub,
		categories: categories,
		policy:     policy,
		logger:     logx.Logger().With().Str("component", "Matchmaker").Logger(),
	}
}

// Start subscribes to every configured category channel.
func (m *Matchmaker) Start(ctx context.Context) error {
	for _, category := range m.categories {
		sub, err := m.bus.PSubscribe(ctx, preferenceChannelPrefix+category, m.handleAnnouncement)
		if err != nil {
			m.Stop()
			return fmt.Errorf("subscribe category %q: %w", category, err)
		}
		m.subs = append(m.subs, sub)
	}

	m.logger.Info().Strs("categories", m.categories).Msg("Matchmaker subscriptions established.")
	return nil
}

// Stop closes all category subscriptions.
func (m *Matchmaker) Stop() {
	for _, sub := range m.subs {
		if err := sub.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("Closing matchmaker subscription failed.")
		}
	}
	m.subs = nil
}

// ChoosePreference publishes the user's matchmaking announcement on the
// category's channel.
func (m *Matchmaker) ChoosePreference(ctx context.Context, userID, category string) error {
	raw, err := json.Marshal(announcement{UserID: userID, Preference: category})
	if err != nil {
		return fmt.Errorf("encode announcement: %w", err)
	}
	if err := m.bus.Publish(ctx, preferenceChannelPrefix+category, string(raw)); err != nil {
		return fmt.Errorf("publish announcement: %w", err)
	}
	return nil
}

// handleAnnouncement applies the room-selection policy to an incoming
// announcement. Only the process holding the user's live socket tells them
// where their match is; room entry then goes through the normal join path.
func (m *Matchmaker) handleAnnouncement(channel, payload string) {
	var ann announcement
	if err := json.Unmarshal([]byte(payload), &ann); err != nil {
		m.logger.Warn().Err(err).Str("channel", channel).Msg("Dropping malformed announcement.")
		return
	}

	if ann.Preference == "" {
		ann.Preference = strings.TrimPrefix(channel, preferenceChannelPrefix)
	}

	if m.policy == nil {
		m.logger.Debug().Str("category", ann.Preference).Msg("No match policy configured; ignoring announcement.")
		return
	}

	roomID, ok := m.policy(ann.Preference)
	if !ok {
		m.logger.Debug().Str("category", ann.Preference).Msg("No room rule for category; ignoring announcement.")
		return
	}

	if m.hub.EmitToUser(ann.UserID, matchFoundEvent(roomID, ann.Preference)) {
		m.logger.Info().
			Str("user_id", ann.UserID).
			Str("category", ann.Preference).
			Str("room_id", roomID).
			Msg("Match announced to local user.")
	}
}
