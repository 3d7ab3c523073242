package coordinator

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/parlor/internal/auth"
	"github.com/cory-johannsen/parlor/internal/config"
	"github.com/cory-johannsen/parlor/internal/protocol"
)

// DefaultNickname is used when a request carries no usable nickname.
const DefaultNickname = "Player"

// Coordinator is the session-facing façade over the room registry. It owns
// the connection-to-room index, sanitizes request fields, and turns state
// machine rejections into targeted room:error events.
//
// Each connection's events arrive from a single reader goroutine, so calls
// for one connection are naturally serialized; the index mutex only guards
// the map against concurrent access from different connections.
type Coordinator struct {
	logger   *zap.Logger
	cfg      config.RoomsConfig
	registry *Registry
	sink     EventSink

	mu       sync.Mutex
	memberOf map[string]string // connID → roomID
}

// NewCoordinator creates a Coordinator over the given registry and sink.
//
// Precondition: registry, sink, and logger must be non-nil.
func NewCoordinator(cfg config.RoomsConfig, registry *Registry, sink EventSink, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		logger:   logger,
		cfg:      cfg,
		registry: registry,
		sink:     sink,
		memberOf: make(map[string]string),
	}
}

// Connect announces an authenticated connection with a hello event carrying
// its identity. Room membership starts empty.
func (c *Coordinator) Connect(id auth.Identity) {
	c.sink.SendTo(id.ConnectionID, protocol.Hello(id.ConnectionID, id.DisplayName))
	c.logger.Info("connection established",
		zap.String("conn_id", id.ConnectionID),
		zap.String("subject", id.SubjectID),
	)
}

// Disconnect removes the connection from its room, if any. Safe to call for
// connections that never joined a room or already left.
func (c *Coordinator) Disconnect(id auth.Identity) {
	c.leaveCurrent(id.ConnectionID)
	c.logger.Info("connection closed", zap.String("conn_id", id.ConnectionID))
}

// CreateRoom creates a room of the requested kind and admits the requester
// as its first member. A connection already in a room leaves it as part of
// the create.
func (c *Coordinator) CreateRoom(id auth.Identity, kind, nickname string) {
	roomKind, err := parseKind(kind)
	if err != nil {
		c.rejectOrLog(id.ConnectionID, "room:create", err)
		return
	}

	room, err := c.registry.Create(roomKind)
	if err != nil {
		c.rejectOrLog(id.ConnectionID, "room:create", err)
		return
	}

	nick := c.sanitizeNickname(nickname)
	if err := room.Join(id.ConnectionID, nick, true, c.sink); err != nil {
		c.rejectOrLog(id.ConnectionID, "room:create", err)
		return
	}

	c.leaveCurrent(id.ConnectionID)
	c.setRoom(id.ConnectionID, room.ID())
	c.logger.Info("room created",
		zap.String("room_id", room.ID()),
		zap.String("kind", string(roomKind)),
		zap.String("conn_id", id.ConnectionID),
	)
}

// JoinRoom admits the requester to an existing room. A connection already in
// a room leaves it once the join succeeds; a rejected join leaves the
// current membership untouched.
func (c *Coordinator) JoinRoom(id auth.Identity, roomID, nickname string) {
	if c.currentRoom(id.ConnectionID) == roomID {
		c.rejectOrLog(id.ConnectionID, "room:join", reject("Already in this room"))
		return
	}

	room, ok := c.registry.Get(roomID)
	if !ok {
		c.rejectOrLog(id.ConnectionID, "room:join", reject("Room not found"))
		return
	}

	nick := c.sanitizeNickname(nickname)
	if err := room.Join(id.ConnectionID, nick, false, c.sink); err != nil {
		c.rejectOrLog(id.ConnectionID, "room:join", err)
		return
	}

	c.leaveCurrent(id.ConnectionID)
	c.setRoom(id.ConnectionID, room.ID())
	c.logger.Info("room joined",
		zap.String("room_id", room.ID()),
		zap.String("conn_id", id.ConnectionID),
	)
}

// LeaveRoom removes the requester from its current room. Leaving while in no
// room is a no-op.
func (c *Coordinator) LeaveRoom(id auth.Identity) {
	c.leaveCurrent(id.ConnectionID)
}

// Move applies a board move in the requester's current room.
func (c *Coordinator) Move(id auth.Identity, index int) {
	room, ok := c.roomOf(id.ConnectionID)
	if !ok {
		c.rejectOrLog(id.ConnectionID, "game:move", reject("Not in a room"))
		return
	}
	if err := room.Move(id.ConnectionID, index, c.sink); err != nil {
		c.rejectOrLog(id.ConnectionID, "game:move", err)
	}
}

// Chat broadcasts a chat line in the requester's current room.
func (c *Coordinator) Chat(id auth.Identity, text string) {
	room, ok := c.roomOf(id.ConnectionID)
	if !ok {
		c.rejectOrLog(id.ConnectionID, "chat:message", reject("Not in a room"))
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		c.rejectOrLog(id.ConnectionID, "chat:message", reject("Message is empty"))
		return
	}
	if c.cfg.MaxChatMessage > 0 {
		runes := []rune(text)
		if len(runes) > c.cfg.MaxChatMessage {
			text = string(runes[:c.cfg.MaxChatMessage])
		}
	}

	if err := room.Say(id.ConnectionID, text, c.sink); err != nil {
		c.rejectOrLog(id.ConnectionID, "chat:message", err)
	}
}

// leaveCurrent removes the connection from its indexed room, dropping the
// room from the registry when it empties.
func (c *Coordinator) leaveCurrent(connID string) {
	roomID := c.clearRoom(connID)
	if roomID == "" {
		return
	}
	room, ok := c.registry.Get(roomID)
	if !ok {
		return
	}
	room.Leave(connID, c.sink, func() {
		c.registry.Remove(roomID)
	})
	c.logger.Info("room left",
		zap.String("room_id", roomID),
		zap.String("conn_id", connID),
	)
}

// roomOf resolves the connection's current room.
func (c *Coordinator) roomOf(connID string) (*Room, bool) {
	roomID := c.currentRoom(connID)
	if roomID == "" {
		return nil, false
	}
	return c.registry.Get(roomID)
}

func (c *Coordinator) currentRoom(connID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memberOf[connID]
}

func (c *Coordinator) setRoom(connID, roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memberOf[connID] = roomID
}

// clearRoom drops and returns the connection's indexed room id.
func (c *Coordinator) clearRoom(connID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	roomID := c.memberOf[connID]
	delete(c.memberOf, connID)
	return roomID
}

// rejectOrLog turns a RoomError into a targeted room:error event. Any other
// error is internal and only logged.
func (c *Coordinator) rejectOrLog(connID, op string, err error) {
	if re, ok := AsRoomError(err); ok {
		c.sink.SendTo(connID, protocol.RoomError(re.Message))
		c.logger.Debug("request rejected",
			zap.String("conn_id", connID),
			zap.String("op", op),
			zap.String("reason", re.Message),
		)
		return
	}
	c.logger.Error("request failed",
		zap.String("conn_id", connID),
		zap.String("op", op),
		zap.Error(err),
	)
}

// sanitizeNickname trims, defaults, and truncates a requested nickname.
func (c *Coordinator) sanitizeNickname(nickname string) string {
	nick := strings.TrimSpace(nickname)
	if nick == "" {
		return DefaultNickname
	}
	if c.cfg.MaxNickname > 0 {
		runes := []rune(nick)
		if len(runes) > c.cfg.MaxNickname {
			nick = string(runes[:c.cfg.MaxNickname])
		}
	}
	return nick
}

func parseKind(kind string) (Kind, error) {
	switch kind {
	case "", string(KindGame):
		return KindGame, nil
	case string(KindChat):
		return KindChat, nil
	default:
		return "", reject("Unknown room kind")
	}
}
