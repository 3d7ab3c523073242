package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/parlor/internal/auth"
	"github.com/cory-johannsen/parlor/internal/config"
	"github.com/cory-johannsen/parlor/internal/coordinator"
	"github.com/cory-johannsen/parlor/internal/protocol"
)

// Handler upgrades HTTP requests to WebSocket sessions. Each session runs a
// reader loop on the request goroutine and a single writer goroutine that
// drains the connection's outbox, so outbound frames leave in enqueue order.
type Handler struct {
	server     config.ServerConfig
	rooms      config.RoomsConfig
	auth       *auth.Authenticator
	coord      *coordinator.Coordinator
	dispatcher *coordinator.Dispatcher
	logger     *zap.Logger
}

// NewHandler creates the WebSocket session handler.
//
// Precondition: All collaborators must be non-nil.
func NewHandler(
	server config.ServerConfig,
	rooms config.RoomsConfig,
	authenticator *auth.Authenticator,
	coord *coordinator.Coordinator,
	dispatcher *coordinator.Dispatcher,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		server:     server,
		rooms:      rooms,
		auth:       authenticator,
		coord:      coord,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ServeHTTP implements http.Handler. The upgrade is accepted first so the
// client receives authentication failures as a WebSocket close frame rather
// than an HTTP error.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	credential, credErr := auth.BearerFromRequest(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.server.AllowedOrigins,
	})
	if err != nil {
		h.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	defer conn.CloseNow()

	var identity auth.Identity
	if credErr == nil {
		identity, credErr = h.auth.Authenticate(credential)
	}
	if credErr != nil {
		h.logger.Info("authentication failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(credErr),
		)
		conn.Close(websocket.StatusPolicyViolation, "authentication failed")
		return
	}
	identity.ConnectionID = uuid.NewString()

	h.runSession(r.Context(), conn, identity)
}

// runSession drives one authenticated connection until it closes.
//
// Postcondition: The connection is unregistered and its room membership
// released exactly once, regardless of how the session ends.
func (h *Handler) runSession(ctx context.Context, conn *websocket.Conn, identity auth.Identity) {
	start := time.Now()
	connID := identity.ConnectionID

	out := coordinator.NewOutbox(connID, h.rooms.OutboxBuffer)
	h.dispatcher.Register(out)

	writerDone := make(chan struct{})
	go h.writeLoop(conn, out, writerDone)

	defer func() {
		h.dispatcher.Unregister(connID)
		h.coord.Disconnect(identity)
		<-writerDone
		h.logger.Info("session ended",
			zap.String("conn_id", connID),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	h.coord.Connect(identity)

	for {
		data, err := h.readFrame(ctx, conn)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return
			}
			h.logger.Debug("read loop ended",
				zap.String("conn_id", connID),
				zap.Error(err),
			)
			return
		}
		h.dispatch(identity, data)
	}
}

// readFrame reads one message, bounding the wait by the idle timeout.
func (h *Handler) readFrame(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	readCtx := ctx
	if h.server.IdleTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, h.server.IdleTimeout)
		defer cancel()
	}
	_, data, err := conn.Read(readCtx)
	return data, err
}

// dispatch decodes one inbound event and routes it to the coordinator. A
// frame that fails to decode earns the sender a room:error and nothing else.
func (h *Handler) dispatch(identity auth.Identity, data []byte) {
	in, err := protocol.ParseInbound(data)
	if err != nil {
		h.dispatcher.SendTo(identity.ConnectionID, protocol.RoomError("Invalid message"))
		h.logger.Debug("rejecting inbound frame",
			zap.String("conn_id", identity.ConnectionID),
			zap.Error(err),
		)
		return
	}

	switch ev := in.(type) {
	case protocol.CreateRoom:
		h.coord.CreateRoom(identity, ev.Kind, ev.Nickname)
	case protocol.JoinRoom:
		h.coord.JoinRoom(identity, ev.RoomID, ev.Nickname)
	case protocol.LeaveRoom:
		h.coord.LeaveRoom(identity)
	case protocol.GameMove:
		h.coord.Move(identity, ev.Index)
	case protocol.ChatMessage:
		h.coord.Chat(identity, ev.Text)
	}
}

// writeLoop drains the outbox onto the wire. It exits when the outbox is
// closed or a write fails; a failed write tears the connection down, which
// in turn ends the read loop.
func (h *Handler) writeLoop(conn *websocket.Conn, out *coordinator.Outbox, done chan<- struct{}) {
	defer close(done)

	for frame := range out.Frames() {
		ctx, cancel := context.WithTimeout(context.Background(), h.server.WriteTimeout)
		err := conn.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			h.logger.Debug("write failed",
				zap.String("conn_id", out.ConnID()),
				zap.Error(err),
			)
			conn.CloseNow()
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
