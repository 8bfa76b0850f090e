package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	socketio "github.com/googollee/go-socket.io"

	"github.com/darsh8000an/study-buddy-matcher/internal/logging"
)

var (
	ErrUndelivered  = errors.New("notification not delivered")
	ErrMissingToken = errors.New("missing token")
	ErrForeignRoom  = errors.New("cannot join another user's room")
)

// TokenVerifier resolves a bearer token to the user it was issued for.
type TokenVerifier interface {
	ValidateToken(token string) (uuid.UUID, error)
}

type roomBroadcaster interface {
	BroadcastToRoom(namespace string, room, event string, args ...interface{}) bool
}

// SocketSink pushes events to the room of the target user.
type SocketSink struct {
	rooms roomBroadcaster
}

func NewSocketSink(rooms roomBroadcaster) *SocketSink {
	return &SocketSink{rooms: rooms}
}

func (s *SocketSink) Notify(ctx context.Context, target uuid.UUID, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.rooms.BroadcastToRoom(socketNamespace, Room(target), event, payload) {
		return fmt.Errorf("%s to %s: %w", event, target, ErrUndelivered)
	}
	return nil
}

// conn is the part of socketio.Conn the server needs on connect.
type conn interface {
	ID() string
	URL() url.URL
	Context() interface{}
	SetContext(ctx interface{})
	Join(room string)
}

// SocketServer accepts socket connections authenticated with ?token= and
// places each one in its user's room.
type SocketServer struct {
	server *socketio.Server
	tokens TokenVerifier
	logger *logging.Logger
}

func NewSocketServer(tokens TokenVerifier, logger *logging.Logger) *SocketServer {
	if logger == nil {
		logger = logging.Default
	}
	s := &SocketServer{
		server: socketio.NewServer(nil),
		tokens: tokens,
		logger: logger,
	}

	s.server.OnConnect(socketNamespace, func(c socketio.Conn) error {
		return s.admit(c)
	})
	s.server.OnEvent(socketNamespace, "join", func(c socketio.Conn, userID string) {
		if err := s.join(c, userID); err != nil {
			s.logger.Warn("Socket join rejected", map[string]interface{}{
				"socket_id": c.ID(),
				"error":     err.Error(),
			})
		}
	})
	s.server.OnError(socketNamespace, func(c socketio.Conn, err error) {
		fields := map[string]interface{}{"error": err.Error()}
		if c != nil {
			fields["socket_id"] = c.ID()
		}
		s.logger.Warn("Socket error", fields)
	})
	s.server.OnDisconnect(socketNamespace, func(c socketio.Conn, reason string) {
		s.logger.Debug("Socket disconnected", map[string]interface{}{
			"socket_id": c.ID(),
			"reason":    reason,
		})
	})

	return s
}

func (s *SocketServer) admit(c conn) error {
	u := c.URL()
	token := u.Query().Get("token")
	if token == "" {
		return ErrMissingToken
	}
	userID, err := s.tokens.ValidateToken(token)
	if err != nil {
		return fmt.Errorf("validating socket token: %w", err)
	}

	c.SetContext(userID)
	c.Join(Room(userID))
	s.logger.Debug("Socket connected", map[string]interface{}{
		"socket_id": c.ID(),
		"user_id":   userID.String(),
	})
	return nil
}

// join handles the explicit join event older clients send after connecting.
// A connection may only join its own room.
func (s *SocketServer) join(c conn, requested string) error {
	owner, ok := c.Context().(uuid.UUID)
	if !ok {
		return ErrMissingToken
	}
	id, err := uuid.Parse(requested)
	if err != nil {
		return fmt.Errorf("parsing room user id: %w", err)
	}
	if id != owner {
		return ErrForeignRoom
	}
	c.Join(Room(owner))
	return nil
}

// Sink returns a Sink that broadcasts through this server.
func (s *SocketServer) Sink() *SocketSink {
	return NewSocketSink(s.server)
}

// Serve runs the socket event loop. It blocks until Close is called.
func (s *SocketServer) Serve() error {
	return s.server.Serve()
}

func (s *SocketServer) Close() error {
	return s.server.Close()
}

func (s *SocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.ServeHTTP(w, r)
}
