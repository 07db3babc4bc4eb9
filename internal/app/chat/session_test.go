package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectmatch/internal/store"
)

// sessionFixture wires a full single-process core: in-memory store/bus,
// hub, history, relay and matchmaker, all started.
type sessionFixture struct {
	mem      *store.Memory
	hub      *Hub
	history  *HistoryStore
	presence *Presence
	deps     *Deps
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	mem := store.NewMemory()
	hub := NewHub()
	history := NewHistoryStore(mem, 100)
	presence := NewPresence(mem)
	relay := NewRelay(mem, history, hub)
	matchmaker := NewMatchmaker(mem, hub, []string{"Coding"}, SharedRoomPolicy)

	require.NoError(t, relay.Start(context.Background()))
	t.Cleanup(relay.Stop)
	require.NoError(t, matchmaker.Start(context.Background()))
	t.Cleanup(matchmaker.Stop)

	return &sessionFixture{
		mem:      mem,
		hub:      hub,
		history:  history,
		presence: presence,
		deps: &Deps{
			Hub:        hub,
			Presence:   presence,
			History:    history,
			Relay:      relay,
			Matchmaker: matchmaker,
		},
	}
}

// connect builds a session for a fresh fake connection and runs its
// connect path.
func (f *sessionFixture) connect(t *testing.T, userID string) (*Session, *fakeConn) {
	t.Helper()

	conn := newFakeConn(userID)
	sess := NewSession(f.deps, conn)
	sess.HandleConnect(context.Background())
	return sess, conn
}

func dispatch(t *testing.T, sess *Session, event string, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw := fmt.Sprintf(`{"event":%q,"data":%s}`, event, data)
	sess.Dispatch(context.Background(), []byte(raw))
}

func TestSessionJoinRoomTransitionsAndReplays(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	require.NoError(t, f.history.Append(ctx, "r1", NewMessage("r1", "bob", "earlier")))

	sess, conn := f.connect(t, "alice")
	assert.Equal(t, StateConnected, sess.State())

	dispatch(t, sess, EventJoinRoom, JoinRoomPayload{RoomID: "r1"})

	assert.Equal(t, StateInRoom, sess.State())
	assert.Equal(t, "r1", sess.RoomID())

	// History replayed to the joining connection.
	replayed := conn.eventsNamed(EventReceiveMessage)
	require.Len(t, replayed, 1)

	// Room mapping and membership tracked in the store.
	roomID, ok, err := f.presence.RecallRoom(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r1", roomID)

	members, err := f.presence.TrackedMembers(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, members)

	// Occupancy recomputed and broadcast.
	occupancy := conn.eventsNamed(EventRoomOccupancy)
	require.NotEmpty(t, occupancy)
	payload, isOccupancy := occupancy[len(occupancy)-1].Data.(RoomOccupancyPayload)
	require.True(t, isOccupancy)
	assert.Equal(t, 1, payload.Count)
}

func TestSessionSendMessageReachesRoomAndLog(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	sessA, connA := f.connect(t, "alice")
	dispatch(t, sessA, EventJoinRoom, JoinRoomPayload{RoomID: "r1"})

	dispatch(t, sessA, EventSendMessage, SendMessagePayload{RoomID: "r1", Message: "hi"})

	// The sender's own relay delivers the message back.
	received := connA.eventsNamed(EventReceiveMessage)
	require.Len(t, received, 1)
	sent, ok := received[0].Data.(ReceiveMessagePayload)
	require.True(t, ok)
	assert.Equal(t, "alice", sent.Sender)
	assert.Equal(t, "hi", sent.Message)
	require.NotEmpty(t, sent.ID)

	// A fresh join by another user replays exactly that message.
	sessB, connB := f.connect(t, "bob")
	dispatch(t, sessB, EventJoinRoom, JoinRoomPayload{RoomID: "r1"})

	replayed := connB.eventsNamed(EventReceiveMessage)
	require.Len(t, replayed, 1)
	got, ok := replayed[0].Data.(ReceiveMessagePayload)
	require.True(t, ok)
	assert.Equal(t, sent.ID, got.ID)

	msgs, err := f.history.History(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSessionReactionFlow(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	sessA, connA := f.connect(t, "alice")
	dispatch(t, sessA, EventJoinRoom, JoinRoomPayload{RoomID: "r1"})
	dispatch(t, sessA, EventSendMessage, SendMessagePayload{RoomID: "r1", Message: "hi"})

	msgs, err := f.history.History(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	messageID := msgs[0].ID

	dispatch(t, sessA, EventAddReaction, AddReactionPayload{MessageID: messageID, Emoji: "👍", RoomID: "r1"})
	dispatch(t, sessA, EventAddReaction, AddReactionPayload{MessageID: messageID, Emoji: "👎", RoomID: "r1"})

	// Final stored state: the second emoji replaced the first.
	msgs, err = f.history.History(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string][]string{"👎": {"alice"}}, msgs[0].Reactions)

	// Both mutations were broadcast through the relay.
	reactionEvents := connA.eventsNamed(EventReactionAdded)
	require.Len(t, reactionEvents, 2)
	last, ok := reactionEvents[1].Data.(ReactionAddedPayload)
	require.True(t, ok)
	assert.Equal(t, map[string][]string{"👎": {"alice"}}, last.Reactions)
}

func TestSessionReactionOnMissingMessagePublishesNothing(t *testing.T) {
	f := newSessionFixture(t)

	sess, conn := f.connect(t, "alice")
	dispatch(t, sess, EventJoinRoom, JoinRoomPayload{RoomID: "r1"})

	dispatch(t, sess, EventAddReaction, AddReactionPayload{MessageID: "gone", Emoji: "👍", RoomID: "r1"})

	assert.Empty(t, conn.eventsNamed(EventReactionAdded))
}

func TestSessionDeleteForEveryone(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	sessA, connA := f.connect(t, "alice")
	dispatch(t, sessA, EventJoinRoom, JoinRoomPayload{RoomID: "r1"})
	sessB, connB := f.connect(t, "bob")
	dispatch(t, sessB, EventJoinRoom, JoinRoomPayload{RoomID: "r1"})

	dispatch(t, sessA, EventSendMessage, SendMessagePayload{RoomID: "r1", Message: "oops"})
	msgs, err := f.history.History(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	messageID := msgs[0].ID

	dispatch(t, sessA, EventDeleteForEveryone, DeleteForEveryonePayload{MessageID: messageID, RoomID: "r1"})

	msgs, err = f.history.History(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	for _, conn := range []*fakeConn{connA, connB} {
		deleted := conn.eventsNamed(EventMessageDeletedForEveryone)
		require.Len(t, deleted, 1)
		payload, ok := deleted[0].Data.(MessageDeletedPayload)
		require.True(t, ok)
		assert.Equal(t, messageID, payload.MessageID)
	}
}

func TestSessionDeleteForMeConfirmsOnlyRequester(t *testing.T) {
	f := newSessionFixture(t)

	sessA, connA := f.connect(t, "alice")
	dispatch(t, sessA, EventJoinRoom, JoinRoomPayload{RoomID: "r1"})
	sessB, connB := f.connect(t, "bob")
	dispatch(t, sessB, EventJoinRoom, JoinRoomPayload{RoomID: "r1"})

	dispatch(t, sessA, EventDeleteForMe, DeleteForMePayload{MessageID: "m1"})

	require.Len(t, connA.eventsNamed(EventMessageDeletedForMe), 1)
	assert.Empty(t, connB.eventsNamed(EventMessageDeletedForMe))
}

func TestSessionLeaveRoomClearsPresence(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	sess, _ := f.connect(t, "alice")
	dispatch(t, sess, EventJoinRoom, JoinRoomPayload{RoomID: "r1"})
	dispatch(t, sess, EventLeaveRoom, LeaveRoomPayload{RoomID: "r1"})

	assert.Equal(t, StateConnected, sess.State())
	assert.Empty(t, sess.RoomID())
	assert.Equal(t, 0, f.hub.Occupancy("r1"))

	_, ok, err := f.presence.RecallRoom(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	members, err := f.presence.TrackedMembers(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestSessionReconnectRestoresRoom(t *testing.T) {
	f := newSessionFixture(t)

	sessFirst, _ := f.connect(t, "alice")
	dispatch(t, sessFirst, EventJoinRoom, JoinRoomPayload{RoomID: "r1"})
	dispatch(t, sessFirst, EventSendMessage, SendMessagePayload{RoomID: "r1", Message: "before drop"})

	// A newer connection supersedes the first one.
	sessSecond, connSecond := f.connect(t, "alice")

	assert.Equal(t, StateInRoom, sessSecond.State())
	assert.Equal(t, "r1", sessSecond.RoomID())

	replayed := connSecond.eventsNamed(EventReceiveMessage)
	require.Len(t, replayed, 1)
	payload, ok := replayed[0].Data.(ReceiveMessagePayload)
	require.True(t, ok)
	assert.Equal(t, "before drop", payload.Message)

	// The stale connection's teardown must not clear the new session's keys.
	sessFirst.HandleDisconnect(context.Background())

	roomID, stillSet, err := f.presence.RecallRoom(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, stillSet)
	assert.Equal(t, "r1", roomID)
	assert.Equal(t, 1, f.hub.Occupancy("r1"))
}

func TestSessionDisconnectDropsPresence(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	sess, _ := f.connect(t, "alice")
	dispatch(t, sess, EventJoinRoom, JoinRoomPayload{RoomID: "r1"})

	sess.HandleDisconnect(ctx)

	assert.Equal(t, StateDisconnected, sess.State())
	assert.Equal(t, 0, f.hub.Occupancy("r1"))

	_, ok, err := f.presence.RecallRoom(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	// Tracked membership survives for the sweep.
	members, err := f.presence.TrackedMembers(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, members)
}

func TestSessionChoosePreferenceYieldsMatch(t *testing.T) {
	f := newSessionFixture(t)

	sess, conn := f.connect(t, "alice")
	dispatch(t, sess, EventChoosePreference, ChoosePreferencePayload{Preference: "Coding"})

	matches := conn.eventsNamed(EventMatchFound)
	require.Len(t, matches, 1)
	payload, ok := matches[0].Data.(MatchFoundPayload)
	require.True(t, ok)
	assert.Equal(t, "room-coding", payload.RoomID)
}

func TestSessionToleratesGarbage(t *testing.T) {
	f := newSessionFixture(t)

	sess, conn := f.connect(t, "alice")

	sess.Dispatch(context.Background(), []byte("{not json"))
	sess.Dispatch(context.Background(), []byte(`{"event":"no_such_event"}`))
	sess.Dispatch(context.Background(), []byte(`{"event":"join_room","data":{"roomID":""}}`))
	sess.Dispatch(context.Background(), []byte(`{"event":"send_message"}`))

	assert.Equal(t, StateConnected, sess.State())
	assert.Empty(t, conn.eventsNamed(EventReceiveMessage))
}
