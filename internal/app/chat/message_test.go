package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyReactionAddsUser(t *testing.T) {
	reactions := applyReaction(nil, "alice", "👍")

	assert.Equal(t, map[string][]string{"👍": {"alice"}}, reactions)
}

func TestApplyReactionIsIdempotent(t *testing.T) {
	reactions := applyReaction(nil, "alice", "👍")
	reactions = applyReaction(reactions, "alice", "👍")

	assert.Equal(t, map[string][]string{"👍": {"alice"}}, reactions)
}

func TestApplyReactionReplacesPriorEmoji(t *testing.T) {
	reactions := applyReaction(nil, "alice", "👍")
	reactions = applyReaction(reactions, "bob", "👍")
	reactions = applyReaction(reactions, "alice", "👎")

	assert.Equal(t, map[string][]string{
		"👍": {"bob"},
		"👎": {"alice"},
	}, reactions)
}

func TestApplyReactionPrunesEmptyEntries(t *testing.T) {
	reactions := applyReaction(nil, "alice", "👍")
	reactions = applyReaction(reactions, "alice", "👎")

	_, stillThere := reactions["👍"]
	assert.False(t, stillThere, "an emoji key must never map to an empty user set")
}

func TestNewMessageHasIdentityAndEmptyReactions(t *testing.T) {
	msg := NewMessage("r1", "alice", "hi")

	require.NotEmpty(t, msg.ID)
	assert.Equal(t, "r1", msg.RoomID)
	assert.Equal(t, "alice", msg.Sender)
	assert.Equal(t, "hi", msg.Body)
	assert.NotNil(t, msg.Reactions)
	assert.False(t, msg.Timestamp.IsZero())

	other := NewMessage("r1", "alice", "hi")
	assert.NotEqual(t, msg.ID, other.ID)
}

func TestPayloadValidation(t *testing.T) {
	cases := []struct {
		name    string
		payload interface{ Validate() error }
		wantErr bool
	}{
		{"choose_preference ok", ChoosePreferencePayload{Preference: "Coding"}, false},
		{"choose_preference empty", ChoosePreferencePayload{}, true},
		{"send_message ok", SendMessagePayload{RoomID: "r1", Message: "hi"}, false},
		{"send_message no room", SendMessagePayload{Message: "hi"}, true},
		{"send_message no body", SendMessagePayload{RoomID: "r1"}, true},
		{"add_reaction ok", AddReactionPayload{MessageID: "m1", Emoji: "👍", RoomID: "r1"}, false},
		{"add_reaction missing emoji", AddReactionPayload{MessageID: "m1", RoomID: "r1"}, true},
		{"join_room ok", JoinRoomPayload{RoomID: "r1"}, false},
		{"join_room empty", JoinRoomPayload{}, true},
		{"leave_room empty", LeaveRoomPayload{}, true},
		{"delete_for_me ok", DeleteForMePayload{MessageID: "m1"}, false},
		{"delete_for_me empty", DeleteForMePayload{}, true},
		{"delete_for_everyone ok", DeleteForEveryonePayload{MessageID: "m1", RoomID: "r1"}, false},
		{"delete_for_everyone no room", DeleteForEveryonePayload{MessageID: "m1"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
