package coordinator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/parlor/internal/protocol"
)

// recordedEvent is one delivery observed by recordingSink. Target is the
// connection id for direct sends and empty for broadcasts.
type recordedEvent struct {
	Target string
	RoomID string
	Except string
	Event  protocol.Event
}

// recordingSink captures every emission in order for assertions.
type recordingSink struct {
	events []recordedEvent
	subs   map[string]map[string]bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{subs: make(map[string]map[string]bool)}
}

func (s *recordingSink) SendTo(connID string, ev protocol.Event) {
	s.events = append(s.events, recordedEvent{Target: connID, Event: ev})
}

func (s *recordingSink) BroadcastToRoom(roomID string, ev protocol.Event) {
	s.events = append(s.events, recordedEvent{RoomID: roomID, Event: ev})
}

func (s *recordingSink) BroadcastToRoomExcept(roomID, exceptConnID string, ev protocol.Event) {
	s.events = append(s.events, recordedEvent{RoomID: roomID, Except: exceptConnID, Event: ev})
}

func (s *recordingSink) Subscribe(roomID, connID string) {
	if s.subs[roomID] == nil {
		s.subs[roomID] = make(map[string]bool)
	}
	s.subs[roomID][connID] = true
}

func (s *recordingSink) Unsubscribe(roomID, connID string) {
	if group, ok := s.subs[roomID]; ok {
		delete(group, connID)
		if len(group) == 0 {
			delete(s.subs, roomID)
		}
	}
}

// types returns the event type of every recorded delivery, in order.
func (s *recordingSink) types() []string {
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Event.Type
	}
	return out
}

// lastOf returns the most recent event of the given type.
func (s *recordingSink) lastOf(t *testing.T, evType string) recordedEvent {
	t.Helper()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Event.Type == evType {
			return s.events[i]
		}
	}
	t.Fatalf("no %s event recorded", evType)
	return recordedEvent{}
}

// errorsTo returns the room:error messages targeted at connID, in order.
func (s *recordingSink) errorsTo(t *testing.T, connID string) []string {
	t.Helper()
	var out []string
	for _, ev := range s.events {
		if ev.Event.Type != protocol.TypeRoomError || ev.Target != connID {
			continue
		}
		payload, ok := ev.Event.Payload.(protocol.RoomErrorPayload)
		require.True(t, ok, "room:error payload has unexpected type %T", ev.Event.Payload)
		out = append(out, payload.Message)
	}
	return out
}

// statePayload extracts the game state carried by a recorded event.
func statePayload(t *testing.T, ev recordedEvent) protocol.GameStatePayload {
	t.Helper()
	require.Equal(t, protocol.TypeGameState, ev.Event.Type)
	payload, ok := ev.Event.Payload.(protocol.GameStatePayload)
	require.True(t, ok, "game:state payload has unexpected type %T", ev.Event.Payload)
	return payload
}

// decodeFrame unmarshals a wire frame produced by the dispatcher.
func decodeFrame(t *testing.T, frame []byte) (string, json.RawMessage) {
	t.Helper()
	var wire struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(frame, &wire))
	return wire.Type, wire.Payload
}
