package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectmatch/internal/store"
)

// relayFixture wires a relay over the in-process bus with one local member
// joined to room r1.
func relayFixture(t *testing.T) (*Relay, *HistoryStore, *fakeConn, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	hub := NewHub()
	history := NewHistoryStore(mem, 100)
	relay := NewRelay(mem, history, hub)

	require.NoError(t, relay.Start(context.Background()))
	t.Cleanup(relay.Stop)

	conn := newFakeConn("alice")
	hub.Register(conn)
	hub.JoinRoom(conn, "r1")

	return relay, history, conn, mem
}

func TestRelayDeliversAndPersistsChatEvents(t *testing.T) {
	ctx := context.Background()
	relay, history, conn, _ := relayFixture(t)

	msg := NewMessage("r1", "alice", "hi")
	require.NoError(t, relay.PublishMessage(ctx, msg))

	received := conn.eventsNamed(EventReceiveMessage)
	require.Len(t, received, 1)
	payload, ok := received[0].Data.(ReceiveMessagePayload)
	require.True(t, ok)
	assert.Equal(t, msg.ID, payload.ID)
	assert.Equal(t, "alice", payload.Sender)
	assert.Equal(t, "hi", payload.Message)

	msgs, err := history.History(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
}

func TestRelayDeliversReactionEvents(t *testing.T) {
	ctx := context.Background()
	relay, _, conn, _ := relayFixture(t)

	reactions := map[string][]string{"👍": {"bob"}}
	require.NoError(t, relay.PublishReaction(ctx, "r1", "m1", "👍", reactions))

	received := conn.eventsNamed(EventReactionAdded)
	require.Len(t, received, 1)
	payload, ok := received[0].Data.(ReactionAddedPayload)
	require.True(t, ok)
	assert.Equal(t, "m1", payload.MessageID)
	assert.Equal(t, "👍", payload.Emoji)
	assert.Equal(t, reactions, payload.Reactions)
}

func TestRelayDeliversDeletionEvents(t *testing.T) {
	ctx := context.Background()
	relay, _, conn, _ := relayFixture(t)

	require.NoError(t, relay.PublishDeletion(ctx, "r1", "m1"))

	received := conn.eventsNamed(EventMessageDeletedForEveryone)
	require.Len(t, received, 1)
	payload, ok := received[0].Data.(MessageDeletedPayload)
	require.True(t, ok)
	assert.Equal(t, "m1", payload.MessageID)
}

func TestRelayDropsMalformedPayloads(t *testing.T) {
	ctx := context.Background()
	_, history, conn, mem := relayFixture(t)

	require.NoError(t, mem.Publish(ctx, "chat-room:r1", "{not json"))
	require.NoError(t, mem.Publish(ctx, "reaction:r1", "{not json"))
	require.NoError(t, mem.Publish(ctx, "deletion:r1", "{not json"))

	assert.Empty(t, conn.eventsNamed(EventReceiveMessage))
	assert.Empty(t, conn.eventsNamed(EventReactionAdded))
	assert.Empty(t, conn.eventsNamed(EventMessageDeletedForEveryone))

	msgs, err := history.History(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRelayScopedToTargetRoom(t *testing.T) {
	ctx := context.Background()
	relay, _, conn, _ := relayFixture(t)

	// conn is in r1; an event for r2 must not reach it.
	require.NoError(t, relay.PublishMessage(ctx, NewMessage("r2", "bob", "elsewhere")))

	assert.Empty(t, conn.eventsNamed(EventReceiveMessage))
}
