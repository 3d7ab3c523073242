package coordinator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cory-johannsen/parlor/internal/game/tictactoe"
	"github.com/cory-johannsen/parlor/internal/protocol"
)

// Kind selects a room's state-machine variant.
type Kind string

// The two room variants the coordinator supports.
const (
	KindGame Kind = "game"
	KindChat Kind = "chat"
)

// Phase is a room's coarse lifecycle stage. Wire values follow the original
// client contract.
type Phase string

// Room phases.
const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// GameCapacity is the member limit for game rooms. Chat rooms are unbounded.
const GameCapacity = 2

// Participant is a room member and the role tag determining its permitted
// actions.
type Participant struct {
	ConnectionID string
	Nickname     string
	Role         string
}

// RoomError is a targeted, user-visible rejection. It is delivered only to
// the requester and never tears down the connection or alters room state.
type RoomError struct {
	Message string
}

// Error implements the error interface.
func (e *RoomError) Error() string { return e.Message }

func reject(msg string) error { return &RoomError{Message: msg} }

// AsRoomError unwraps a RoomError from err, if present.
func AsRoomError(err error) (*RoomError, bool) {
	var re *RoomError
	ok := errors.As(err, &re)
	return re, ok
}

// Room is a bounded group of connections sharing one state machine. All
// transitions run under the room's mutex, so concurrent events against the
// same room apply one at a time in arrival order; distinct rooms never block
// each other. Outbound events are emitted while the lock is held, which is
// what gives members a per-room FIFO view of accepted transitions.
type Room struct {
	id   string
	kind Kind

	mu           sync.Mutex
	phase        Phase
	participants []Participant
	game         *tictactoe.Game
	winner       string
	closed       bool
}

func newRoom(id string, kind Kind) *Room {
	r := &Room{
		id:    id,
		kind:  kind,
		phase: PhaseWaiting,
	}
	if kind == KindGame {
		r.game = tictactoe.New()
	}
	return r
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Kind returns the room variant.
func (r *Room) Kind() Kind { return r.kind }

// Phase returns the current lifecycle phase.
func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Participants returns a copy of the current membership in join order.
func (r *Room) Participants() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Participant, len(r.participants))
	copy(out, r.participants)
	return out
}

// Join admits a connection to the room and broadcasts the updated membership
// (and, for game rooms, the full state). The requester receives room:created
// or room:joined first, depending on created.
//
// Postcondition: On success the participant holds a deterministically
// assigned role and, if a game room reached capacity, the phase is playing
// with X to move. On error nothing is broadcast and the room is unchanged.
func (r *Room) Join(connID, nickname string, created bool, sink EventSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return reject("Room not found")
	}
	if r.kind == KindGame {
		if len(r.participants) >= GameCapacity {
			return reject("Room is full")
		}
		if r.phase != PhaseWaiting {
			return reject("Game already in progress")
		}
	}

	p := Participant{
		ConnectionID: connID,
		Nickname:     nickname,
		Role:         r.nextRoleLocked(),
	}
	r.participants = append(r.participants, p)

	switch r.kind {
	case KindGame:
		if len(r.participants) == GameCapacity {
			r.phase = PhasePlaying
		}
	case KindChat:
		// A chat room is live as soon as anyone is in it.
		r.phase = PhasePlaying
	}

	sink.Subscribe(r.id, connID)

	ack := protocol.RoomJoined(r.id, p.Role)
	if created {
		ack = protocol.RoomCreated(r.id, p.Role)
	}
	sink.SendTo(connID, ack)
	sink.BroadcastToRoom(r.id, protocol.RoomPlayers(r.playersLocked()))
	if r.kind == KindGame {
		sink.BroadcastToRoom(r.id, protocol.GameState(r.snapshotLocked()))
	}
	return nil
}

// nextRoleLocked assigns the next unused role by join order: X then O for
// game rooms, "member" for chat rooms.
func (r *Room) nextRoleLocked() string {
	if r.kind == KindChat {
		return "member"
	}
	taken := make(map[string]bool, len(r.participants))
	for _, p := range r.participants {
		taken[p.Role] = true
	}
	if !taken[string(tictactoe.MarkX)] {
		return string(tictactoe.MarkX)
	}
	return string(tictactoe.MarkO)
}

// Leave removes a connection from the room in any phase.
//
// When the last member leaves, the room is marked closed, onEmpty runs while
// the lock is still held (the registry uses it to drop the room atomically),
// and a room:closed broadcast is attempted on the now-empty group. When
// members remain, the room resets: phase back to waiting, a fresh board,
// roles re-derived from the remaining members in join order, and a
// membership plus full-state broadcast.
//
// Postcondition: Returns true if the connection was a member.
func (r *Room) Leave(connID string, sink EventSink, onEmpty func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, p := range r.participants {
		if p.ConnectionID == connID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	r.participants = append(r.participants[:idx], r.participants[idx+1:]...)
	sink.Unsubscribe(r.id, connID)

	if len(r.participants) == 0 {
		r.closed = true
		r.phase = PhaseFinished
		if onEmpty != nil {
			onEmpty()
		}
		sink.BroadcastToRoom(r.id, protocol.RoomClosed(r.id))
		return true
	}

	// An in-progress game does not survive a departure.
	r.phase = PhaseWaiting
	r.winner = ""
	if r.kind == KindChat {
		r.phase = PhasePlaying
	}
	if r.game != nil {
		r.game.Reset()
	}
	for i := range r.participants {
		if r.kind == KindGame {
			r.participants[i].Role = string(tictactoe.MarkX)
			if i > 0 {
				r.participants[i].Role = string(tictactoe.MarkO)
			}
		}
	}

	sink.BroadcastToRoom(r.id, protocol.RoomPlayers(r.playersLocked()))
	if r.kind == KindGame {
		sink.BroadcastToRoom(r.id, protocol.GameState(r.snapshotLocked()))
	}
	return true
}

// Move applies a board move for the given connection and broadcasts the
// resulting state to all members.
//
// Postcondition: On error the board, turn, and phase are unchanged and
// nothing is broadcast.
func (r *Room) Move(connID string, index int, sink EventSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.kind != KindGame {
		return reject("Not a game room")
	}
	p, ok := r.participantLocked(connID)
	if !ok {
		return reject("Not in a room")
	}
	switch r.phase {
	case PhaseWaiting:
		return reject("Game not in progress")
	case PhaseFinished:
		return reject("Game is already over")
	}

	if err := r.game.Move(tictactoe.Mark(p.Role), index); err != nil {
		return reject(moveRejectionMessage(err))
	}

	if winner, finished := r.game.Result(); finished {
		r.phase = PhaseFinished
		r.winner = "draw"
		if winner != "" {
			r.winner = string(winner)
		}
	}

	sink.BroadcastToRoom(r.id, protocol.GameState(r.snapshotLocked()))
	return nil
}

// Say broadcasts a chat line from the given connection to every member.
//
// Precondition: text has been validated at the protocol boundary.
func (r *Room) Say(connID, text string, sink EventSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.kind != KindChat {
		return reject("Not a chat room")
	}
	p, ok := r.participantLocked(connID)
	if !ok {
		return reject("Not in a room")
	}

	sink.BroadcastToRoom(r.id, protocol.Chat(p.Nickname, text))
	return nil
}

// Snapshot returns the full public state, as broadcast to members.
func (r *Room) Snapshot() protocol.GameStatePayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) participantLocked(connID string) (Participant, bool) {
	for _, p := range r.participants {
		if p.ConnectionID == connID {
			return p, true
		}
	}
	return Participant{}, false
}

func (r *Room) playersLocked() []protocol.Player {
	players := make([]protocol.Player, 0, len(r.participants))
	for _, p := range r.participants {
		players = append(players, protocol.Player{Nickname: p.Nickname, Role: p.Role})
	}
	return players
}

func (r *Room) snapshotLocked() protocol.GameStatePayload {
	snap := protocol.GameStatePayload{
		RoomID:  r.id,
		Status:  string(r.phase),
		Winner:  r.winner,
		Players: r.playersLocked(),
	}
	if r.game != nil {
		board := r.game.Board()
		snap.Board = make([]string, len(board))
		for i, cell := range board {
			snap.Board[i] = string(cell)
		}
		snap.Turn = string(r.game.Turn())
	}
	return snap
}

func moveRejectionMessage(err error) string {
	switch {
	case errors.Is(err, tictactoe.ErrNotYourTurn):
		return "Not your turn"
	case errors.Is(err, tictactoe.ErrCellOccupied):
		return "Cell occupied"
	case errors.Is(err, tictactoe.ErrOutOfRange):
		return "Cell index out of range"
	case errors.Is(err, tictactoe.ErrFinished):
		return "Game is already over"
	default:
		return fmt.Sprintf("Invalid move: %v", err)
	}
}
