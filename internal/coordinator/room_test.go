package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/parlor/internal/protocol"
)

func TestRoomJoinAssignsRolesInOrder(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindGame)

	require.NoError(t, room.Join("conn-1", "Alice", true, sink))
	require.NoError(t, room.Join("conn-2", "Bob", false, sink))

	players := room.Participants()
	require.Len(t, players, 2)
	assert.Equal(t, "X", players[0].Role)
	assert.Equal(t, "O", players[1].Role)
	assert.Equal(t, "Alice", players[0].Nickname)
}

func TestRoomJoinEmitsAckThenPlayersThenState(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindGame)

	require.NoError(t, room.Join("conn-1", "Alice", true, sink))

	require.Equal(t, []string{
		protocol.TypeRoomCreated,
		protocol.TypeRoomPlayers,
		protocol.TypeGameState,
	}, sink.types())
	assert.Equal(t, "conn-1", sink.events[0].Target)
	assert.Equal(t, "abc123", sink.events[1].RoomID)
}

func TestRoomGameStartsAtCapacity(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindGame)

	require.NoError(t, room.Join("conn-1", "Alice", true, sink))
	assert.Equal(t, PhaseWaiting, room.Phase())

	require.NoError(t, room.Join("conn-2", "Bob", false, sink))
	assert.Equal(t, PhasePlaying, room.Phase())

	state := statePayload(t, sink.lastOf(t, protocol.TypeGameState))
	assert.Equal(t, "playing", state.Status)
	assert.Equal(t, "X", state.Turn)
	assert.Empty(t, state.Winner)
}

func TestRoomRejectsThirdPlayer(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindGame)

	require.NoError(t, room.Join("conn-1", "Alice", true, sink))
	require.NoError(t, room.Join("conn-2", "Bob", false, sink))
	before := len(sink.events)

	err := room.Join("conn-3", "Mallory", false, sink)
	re, ok := AsRoomError(err)
	require.True(t, ok)
	assert.Equal(t, "Room is full", re.Message)
	assert.Len(t, room.Participants(), 2)
	assert.Len(t, sink.events, before, "rejected join must not broadcast")
}

func TestRoomChatJoinableWhileLive(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindChat)

	require.NoError(t, room.Join("conn-1", "Alice", true, sink))
	assert.Equal(t, PhasePlaying, room.Phase())

	require.NoError(t, room.Join("conn-2", "Bob", false, sink))
	require.NoError(t, room.Join("conn-3", "Carol", false, sink))
	assert.Len(t, room.Participants(), 3)

	for _, p := range room.Participants() {
		assert.Equal(t, "member", p.Role)
	}
}

func TestRoomMoveAlternatesAndBroadcasts(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindGame)
	require.NoError(t, room.Join("conn-x", "Alice", true, sink))
	require.NoError(t, room.Join("conn-o", "Bob", false, sink))

	require.NoError(t, room.Move("conn-x", 4, sink))
	state := statePayload(t, sink.lastOf(t, protocol.TypeGameState))
	assert.Equal(t, "X", state.Board[4])
	assert.Equal(t, "O", state.Turn)

	require.NoError(t, room.Move("conn-o", 0, sink))
	state = statePayload(t, sink.lastOf(t, protocol.TypeGameState))
	assert.Equal(t, "O", state.Board[0])
	assert.Equal(t, "X", state.Turn)
}

func TestRoomMoveRejections(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindGame)
	require.NoError(t, room.Join("conn-x", "Alice", true, sink))

	err := room.Move("conn-x", 0, sink)
	re, ok := AsRoomError(err)
	require.True(t, ok)
	assert.Equal(t, "Game not in progress", re.Message)

	require.NoError(t, room.Join("conn-o", "Bob", false, sink))

	err = room.Move("conn-o", 0, sink)
	re, ok = AsRoomError(err)
	require.True(t, ok)
	assert.Equal(t, "Not your turn", re.Message)

	require.NoError(t, room.Move("conn-x", 0, sink))

	err = room.Move("conn-o", 0, sink)
	re, ok = AsRoomError(err)
	require.True(t, ok)
	assert.Equal(t, "Cell occupied", re.Message)

	err = room.Move("conn-o", 9, sink)
	re, ok = AsRoomError(err)
	require.True(t, ok)
	assert.Equal(t, "Cell index out of range", re.Message)

	err = room.Move("stranger", 1, sink)
	re, ok = AsRoomError(err)
	require.True(t, ok)
	assert.Equal(t, "Not in a room", re.Message)
}

func TestRoomWinFinishesGame(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindGame)
	require.NoError(t, room.Join("conn-x", "Alice", true, sink))
	require.NoError(t, room.Join("conn-o", "Bob", false, sink))

	// X takes the top row.
	require.NoError(t, room.Move("conn-x", 0, sink))
	require.NoError(t, room.Move("conn-o", 3, sink))
	require.NoError(t, room.Move("conn-x", 1, sink))
	require.NoError(t, room.Move("conn-o", 4, sink))
	require.NoError(t, room.Move("conn-x", 2, sink))

	assert.Equal(t, PhaseFinished, room.Phase())
	state := statePayload(t, sink.lastOf(t, protocol.TypeGameState))
	assert.Equal(t, "finished", state.Status)
	assert.Equal(t, "X", state.Winner)

	err := room.Move("conn-o", 5, sink)
	re, ok := AsRoomError(err)
	require.True(t, ok)
	assert.Equal(t, "Game is already over", re.Message)
}

func TestRoomDrawReportsDrawWinner(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindGame)
	require.NoError(t, room.Join("conn-x", "Alice", true, sink))
	require.NoError(t, room.Join("conn-o", "Bob", false, sink))

	// Final board X O X / X O O / O X X with no line for either mark.
	moves := []struct {
		conn  string
		index int
	}{
		{"conn-x", 0}, {"conn-o", 1}, {"conn-x", 2},
		{"conn-o", 4}, {"conn-x", 3}, {"conn-o", 5},
		{"conn-x", 7}, {"conn-o", 6}, {"conn-x", 8},
	}
	for _, m := range moves {
		require.NoError(t, room.Move(m.conn, m.index, sink))
	}

	state := statePayload(t, sink.lastOf(t, protocol.TypeGameState))
	assert.Equal(t, "finished", state.Status)
	assert.Equal(t, "draw", state.Winner)
}

func TestRoomLeaveResetsGameForRemaining(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindGame)
	require.NoError(t, room.Join("conn-x", "Alice", true, sink))
	require.NoError(t, room.Join("conn-o", "Bob", false, sink))
	require.NoError(t, room.Move("conn-x", 4, sink))

	require.True(t, room.Leave("conn-x", sink, nil))

	players := room.Participants()
	require.Len(t, players, 1)
	assert.Equal(t, "Bob", players[0].Nickname)
	assert.Equal(t, "X", players[0].Role, "remaining member takes over X")
	assert.Equal(t, PhaseWaiting, room.Phase())

	state := statePayload(t, sink.lastOf(t, protocol.TypeGameState))
	assert.Equal(t, "waiting", state.Status)
	for _, cell := range state.Board {
		assert.Empty(t, cell)
	}
}

func TestRoomLastLeaveClosesRoom(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindGame)
	require.NoError(t, room.Join("conn-1", "Alice", true, sink))

	emptied := false
	require.True(t, room.Leave("conn-1", sink, func() { emptied = true }))
	require.True(t, emptied)

	closed := sink.lastOf(t, protocol.TypeRoomClosed)
	assert.Equal(t, "abc123", closed.RoomID)

	err := room.Join("conn-2", "Bob", false, sink)
	re, ok := AsRoomError(err)
	require.True(t, ok)
	assert.Equal(t, "Room not found", re.Message, "closed room must not admit new members")
}

func TestRoomLeaveByNonMember(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindGame)
	require.NoError(t, room.Join("conn-1", "Alice", true, sink))

	assert.False(t, room.Leave("stranger", sink, nil))
	assert.Len(t, room.Participants(), 1)
}

func TestRoomSayBroadcastsWithNickname(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindChat)
	require.NoError(t, room.Join("conn-1", "Alice", true, sink))
	require.NoError(t, room.Join("conn-2", "Bob", false, sink))

	require.NoError(t, room.Say("conn-2", "hello all", sink))

	chat := sink.lastOf(t, protocol.TypeChatMessage)
	assert.Equal(t, "abc123", chat.RoomID)
	payload, ok := chat.Event.Payload.(protocol.ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "Bob", payload.From)
	assert.Equal(t, "hello all", payload.Text)
}

func TestRoomSayRejectedInGameRoom(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindGame)
	require.NoError(t, room.Join("conn-1", "Alice", true, sink))

	err := room.Say("conn-1", "psst", sink)
	re, ok := AsRoomError(err)
	require.True(t, ok)
	assert.Equal(t, "Not a chat room", re.Message)
}

func TestRoomMoveRejectedInChatRoom(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindChat)
	require.NoError(t, room.Join("conn-1", "Alice", true, sink))

	err := room.Move("conn-1", 0, sink)
	re, ok := AsRoomError(err)
	require.True(t, ok)
	assert.Equal(t, "Not a game room", re.Message)
}

func TestRoomSnapshotChatRoomHasNoBoard(t *testing.T) {
	sink := newRecordingSink()
	room := newRoom("abc123", KindChat)
	require.NoError(t, room.Join("conn-1", "Alice", true, sink))

	snap := room.Snapshot()
	assert.Equal(t, "abc123", snap.RoomID)
	assert.Equal(t, "playing", snap.Status)
	assert.Nil(t, snap.Board)
	assert.Empty(t, snap.Turn)
}
