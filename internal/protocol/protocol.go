// Package protocol defines the JSON event envelopes exchanged over a
// connection. Inbound frames are decoded into typed payloads and validated
// here, before they reach the room state machine; outbound events are plain
// structs marshalled by the dispatcher.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound event types.
const (
	TypeRoomCreate  = "room:create"
	TypeRoomJoin    = "room:join"
	TypeRoomLeave   = "room:leave"
	TypeGameMove    = "game:move"
	TypeChatMessage = "chat:message"
)

// Outbound event types.
const (
	TypeHello       = "hello"
	TypeRoomCreated = "room:created"
	TypeRoomJoined  = "room:joined"
	TypeRoomError   = "room:error"
	TypeRoomPlayers = "room:players"
	TypeRoomClosed  = "room:closed"
	TypeGameState   = "game:state"
	// chat:message is mirrored back out with a from field.
)

// Decode failure reasons.
var (
	ErrUnknownType      = errors.New("unknown event type")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Envelope is the wire shape of every event in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is an outbound event before marshalling.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Inbound is the decoded form of a client frame. Exactly one of the concrete
// payload types below implements it.
type Inbound interface {
	inbound()
}

// CreateRoom asks for a fresh room. Kind selects the game or chat variant;
// empty means game.
type CreateRoom struct {
	Nickname string `json:"nickname"`
	Kind     string `json:"kind"`
}

// JoinRoom asks to join an existing room by id.
type JoinRoom struct {
	RoomID   string `json:"roomId"`
	Nickname string `json:"nickname"`
}

// LeaveRoom asks to leave the current room. It carries no payload.
type LeaveRoom struct{}

// GameMove submits a board move.
type GameMove struct {
	Index int `json:"index"`
}

// ChatMessage submits a chat line (inbound) or carries one to members
// (outbound, with From set).
type ChatMessage struct {
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

func (CreateRoom) inbound()  {}
func (JoinRoom) inbound()    {}
func (LeaveRoom) inbound()   {}
func (GameMove) inbound()    {}
func (ChatMessage) inbound() {}

// gameMoveWire distinguishes a missing index from index 0 at the boundary.
type gameMoveWire struct {
	Index *int `json:"index"`
}

// ParseInbound decodes a raw client frame into its typed payload.
//
// Postcondition: Returns one of the Inbound types, or an error wrapping
// ErrUnknownType / ErrMalformedPayload. No partial state escapes on error.
func ParseInbound(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch env.Type {
	case TypeRoomCreate:
		var p CreateRoom
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		return p, nil

	case TypeRoomJoin:
		var p JoinRoom
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.RoomID == "" {
			return nil, fmt.Errorf("%w: roomId is required", ErrMalformedPayload)
		}
		return p, nil

	case TypeRoomLeave:
		return LeaveRoom{}, nil

	case TypeGameMove:
		var wire gameMoveWire
		if err := unmarshalPayload(env.Payload, &wire); err != nil {
			return nil, err
		}
		if wire.Index == nil {
			return nil, fmt.Errorf("%w: index is required", ErrMalformedPayload)
		}
		return GameMove{Index: *wire.Index}, nil

	case TypeChatMessage:
		var p ChatMessage
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		return ChatMessage{Text: p.Text}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedPayload)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func unmarshalPayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: payload is required", ErrMalformedPayload)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// Player is the public view of a room member.
type Player struct {
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
}

// HelloPayload acknowledges a successful handshake.
type HelloPayload struct {
	ConnectionID string `json:"connectionId"`
	Name         string `json:"name"`
}

// RoomCreatedPayload answers a room:create request.
type RoomCreatedPayload struct {
	RoomID string `json:"roomId"`
	Role   string `json:"role"`
}

// RoomJoinedPayload answers a room:join request.
type RoomJoinedPayload struct {
	RoomID string `json:"roomId"`
	Role   string `json:"role"`
}

// RoomErrorPayload is a targeted rejection. It is never broadcast.
type RoomErrorPayload struct {
	Message string `json:"message"`
}

// RoomPlayersPayload announces the current membership of a room.
type RoomPlayersPayload struct {
	Players []Player `json:"players"`
}

// RoomClosedPayload announces that a room was destroyed.
type RoomClosedPayload struct {
	RoomID string `json:"roomId"`
}

// GameStatePayload is the full public room state broadcast after every
// accepted transition.
type GameStatePayload struct {
	RoomID  string   `json:"roomId"`
	Board   []string `json:"board"`
	Turn    string   `json:"turn"`
	Status  string   `json:"status"`
	Winner  string   `json:"winner"`
	Players []Player `json:"players"`
}

// Hello builds the handshake acknowledgement event.
func Hello(connectionID, name string) Event {
	return Event{Type: TypeHello, Payload: HelloPayload{ConnectionID: connectionID, Name: name}}
}

// RoomCreated builds the room:created reply.
func RoomCreated(roomID, role string) Event {
	return Event{Type: TypeRoomCreated, Payload: RoomCreatedPayload{RoomID: roomID, Role: role}}
}

// RoomJoined builds the room:joined reply.
func RoomJoined(roomID, role string) Event {
	return Event{Type: TypeRoomJoined, Payload: RoomJoinedPayload{RoomID: roomID, Role: role}}
}

// RoomError builds a targeted room:error reply.
func RoomError(message string) Event {
	return Event{Type: TypeRoomError, Payload: RoomErrorPayload{Message: message}}
}

// RoomPlayers builds the membership broadcast.
func RoomPlayers(players []Player) Event {
	return Event{Type: TypeRoomPlayers, Payload: RoomPlayersPayload{Players: players}}
}

// RoomClosed builds the room teardown broadcast.
func RoomClosed(roomID string) Event {
	return Event{Type: TypeRoomClosed, Payload: RoomClosedPayload{RoomID: roomID}}
}

// GameState builds the full-state broadcast.
func GameState(p GameStatePayload) Event {
	return Event{Type: TypeGameState, Payload: p}
}

// Chat builds the outbound chat:message broadcast.
func Chat(from, text string) Event {
	return Event{Type: TypeChatMessage, Payload: ChatMessage{From: from, Text: text}}
}
