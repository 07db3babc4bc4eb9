package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectmatch/internal/store"
)

func TestSharedRoomPolicyIsDeterministic(t *testing.T) {
	roomA, okA := SharedRoomPolicy("Coding")
	roomB, okB := SharedRoomPolicy("Coding")

	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, roomA, roomB)
	assert.Equal(t, "room-coding", roomA)

	_, ok := SharedRoomPolicy("")
	assert.False(t, ok)
}

func TestKnownCategoriesPolicyFiltersUnknown(t *testing.T) {
	policy := KnownCategoriesPolicy([]string{"Coding"}, SharedRoomPolicy)

	roomID, ok := policy("Coding")
	require.True(t, ok)
	assert.Equal(t, "room-coding", roomID)

	_, ok = policy("Knitting")
	assert.False(t, ok)
}

// Two matchmaker instances on separate hubs share one bus, standing in for
// two fleet processes. Only the process holding the user's socket announces
// the match, and both compute the same room.
func TestMatchmakerConvergesAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	hubA := NewHub()
	hubB := NewHub()

	mmA := NewMatchmaker(mem, hubA, []string{"Coding"}, SharedRoomPolicy)
	mmB := NewMatchmaker(mem, hubB, []string{"Coding"}, SharedRoomPolicy)
	require.NoError(t, mmA.Start(ctx))
	require.NoError(t, mmB.Start(ctx))
	t.Cleanup(mmA.Stop)
	t.Cleanup(mmB.Stop)

	alice := newFakeConn("alice")
	hubA.Register(alice)

	// The announcement may enter through either process.
	require.NoError(t, mmB.ChoosePreference(ctx, "alice", "Coding"))

	matches := alice.eventsNamed(EventMatchFound)
	require.Len(t, matches, 1, "exactly the process holding the socket announces")
	payload, ok := matches[0].Data.(MatchFoundPayload)
	require.True(t, ok)
	assert.Equal(t, "room-coding", payload.RoomID)
	assert.Equal(t, "Coding", payload.Preference)
}

func TestMatchmakerIgnoresCategoryWithoutRule(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	hub := NewHub()

	noRule := func(string) (string, bool) { return "", false }
	mm := NewMatchmaker(mem, hub, []string{"Coding"}, noRule)
	require.NoError(t, mm.Start(ctx))
	t.Cleanup(mm.Stop)

	alice := newFakeConn("alice")
	hub.Register(alice)

	require.NoError(t, mm.ChoosePreference(ctx, "alice", "Coding"))

	assert.Empty(t, alice.eventsNamed(EventMatchFound))
}

func TestMatchmakerSurvivesNilPolicy(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	hub := NewHub()

	mm := NewMatchmaker(mem, hub, []string{"Coding"}, nil)
	require.NoError(t, mm.Start(ctx))
	t.Cleanup(mm.Stop)

	assert.NoError(t, mm.ChoosePreference(ctx, "alice", "Coding"))
}

func TestMatchmakerDropsMalformedAnnouncements(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	hub := NewHub()

	mm := NewMatchmaker(mem, hub, []string{"Coding"}, SharedRoomPolicy)
	require.NoError(t, mm.Start(ctx))
	t.Cleanup(mm.Stop)

	alice := newFakeConn("alice")
	hub.Register(alice)

	require.NoError(t, mem.Publish(ctx, "preference:Coding", "{not json"))

	assert.Empty(t, alice.eventsNamed(EventMatchFound))
}
