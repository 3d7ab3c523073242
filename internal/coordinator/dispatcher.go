package coordinator

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/parlor/internal/protocol"
)

// EventSink delivers outbound events and tracks room broadcast groups. The
// room state machine emits through this interface so transitions stay
// testable without a live transport. Membership changes happen under the
// room's lock, which keeps subscription and the broadcasts around it in a
// single order.
type EventSink interface {
	// SendTo delivers an event to a single connection.
	SendTo(connID string, ev protocol.Event)
	// BroadcastToRoom delivers an event to every connection subscribed to
	// the room, in submission order.
	BroadcastToRoom(roomID string, ev protocol.Event)
	// BroadcastToRoomExcept delivers to every subscriber but one.
	BroadcastToRoomExcept(roomID, exceptConnID string, ev protocol.Event)
	// Subscribe adds a connection to a room's broadcast group.
	Subscribe(roomID, connID string)
	// Unsubscribe removes a connection from a room's broadcast group.
	Unsubscribe(roomID, connID string)
}

// Dispatcher routes outbound events to connection outboxes. Delivery to an
// individual connection is best-effort: a closed or saturated outbox drops
// the event for that connection without affecting the others.
//
// Per-room ordering holds because the state machine enqueues events while
// holding the room's lock, and each outbox preserves enqueue order.
type Dispatcher struct {
	logger *zap.Logger

	mu     sync.RWMutex
	conns  map[string]*Outbox
	groups map[string]map[string]bool // roomID → set of connIDs
}

// NewDispatcher creates an empty Dispatcher.
//
// Precondition: logger must be non-nil.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger: logger,
		conns:  make(map[string]*Outbox),
		groups: make(map[string]map[string]bool),
	}
}

// Register adds a connection's outbox.
//
// Precondition: out must be non-nil with a unique connection id.
func (d *Dispatcher) Register(out *Outbox) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[out.ConnID()] = out
}

// Unregister removes a connection and closes its outbox. The connection is
// also dropped from any room group it is still subscribed to.
//
// Postcondition: Subsequent deliveries to connID are no-ops.
func (d *Dispatcher) Unregister(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out, ok := d.conns[connID]
	if !ok {
		return
	}
	delete(d.conns, connID)
	for roomID, group := range d.groups {
		delete(group, connID)
		if len(group) == 0 {
			delete(d.groups, roomID)
		}
	}
	out.Close()
}

// Subscribe adds a connection to a room's broadcast group.
func (d *Dispatcher) Subscribe(roomID, connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.groups[roomID] == nil {
		d.groups[roomID] = make(map[string]bool)
	}
	d.groups[roomID][connID] = true
}

// Unsubscribe removes a connection from a room's broadcast group.
func (d *Dispatcher) Unsubscribe(roomID, connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if group, ok := d.groups[roomID]; ok {
		delete(group, connID)
		if len(group) == 0 {
			delete(d.groups, roomID)
		}
	}
}

// SendTo implements EventSink.
func (d *Dispatcher) SendTo(connID string, ev protocol.Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error("marshalling event", zap.String("type", ev.Type), zap.Error(err))
		return
	}

	d.mu.RLock()
	out := d.conns[connID]
	d.mu.RUnlock()

	d.push(out, connID, ev.Type, frame)
}

// BroadcastToRoom implements EventSink.
func (d *Dispatcher) BroadcastToRoom(roomID string, ev protocol.Event) {
	d.broadcast(roomID, "", ev)
}

// BroadcastToRoomExcept implements EventSink.
func (d *Dispatcher) BroadcastToRoomExcept(roomID, exceptConnID string, ev protocol.Event) {
	d.broadcast(roomID, exceptConnID, ev)
}

func (d *Dispatcher) broadcast(roomID, exceptConnID string, ev protocol.Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error("marshalling event", zap.String("type", ev.Type), zap.Error(err))
		return
	}

	d.mu.RLock()
	group := d.groups[roomID]
	targets := make([]*Outbox, 0, len(group))
	ids := make([]string, 0, len(group))
	for connID := range group {
		if connID == exceptConnID {
			continue
		}
		if out, ok := d.conns[connID]; ok {
			targets = append(targets, out)
			ids = append(ids, connID)
		}
	}
	d.mu.RUnlock()

	for i, out := range targets {
		d.push(out, ids[i], ev.Type, frame)
	}
}

// push enqueues one frame, dropping it when the connection is gone or its
// outbox cannot accept more.
func (d *Dispatcher) push(out *Outbox, connID, evType string, frame []byte) {
	if out == nil {
		return
	}
	if err := out.Push(frame); err != nil {
		d.logger.Debug("dropping event",
			zap.String("conn_id", connID),
			zap.String("type", evType),
			zap.Error(err),
		)
	}
}
