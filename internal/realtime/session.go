package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prudhvinik1/edgerelay/internal/models"
)

type State int

const (
	StateConnected State = iota
	StateIdentified
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session drives one client connection: it decodes inbound frames, binds the
// connection to an identity and hands work to the Coordinator.
//
// States only move forward: connected, identified, closed. A session handles
// its frames one at a time, which keeps one sender's messages in order.
type Session struct {
	conn  *Conn
	coord *Coordinator
	log   *slog.Logger

	// trusted is the identity proven by a bearer token at upgrade time, if any.
	trusted models.UserID

	mu       sync.Mutex
	state    State
	identity models.UserID
}

// NewSession creates a session for conn. When trusted is non-empty the client
// may only come online as that identity.
func NewSession(conn *Conn, coord *Coordinator, trusted models.UserID, log *slog.Logger) *Session {
	return &Session{
		conn:    conn,
		coord:   coord,
		trusted: trusted,
		log:     log.With("conn_id", conn.ID()),
		state:   StateConnected,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Identity() models.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Run reads frames from ws until the peer goes away or sends something that
// cannot be decoded, then closes the session.
func (s *Session) Run(ctx context.Context, ws *websocket.Conn, maxFrameBytes int64) {
	defer s.Close()

	if maxFrameBytes > 0 {
		ws.SetReadLimit(maxFrameBytes)
	}
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		if id := s.Identity(); id != "" {
			s.coord.Heartbeat(id)
		}
		return nil
	})

	for {
		messageType, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("Connection lost", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			s.log.Warn("Closing session on non-text frame", "type", messageType)
			return
		}
		if err := s.HandleFrame(ctx, frame); err != nil {
			s.log.Warn("Closing session on undecodable frame", "error", err)
			return
		}
	}
}

// HandleFrame processes one inbound frame. A non-nil error means the frame was
// undecodable and the session must close; payload problems are reported to the
// client as error events instead.
func (s *Session) HandleFrame(ctx context.Context, frame []byte) error {
	if s.State() == StateClosed {
		return nil
	}

	env, err := Decode(frame)
	if err != nil {
		return err
	}

	switch env.Event {
	case EventUserOnline:
		s.handleUserOnline(env.Data)
	case EventSendMessage:
		s.handleSendMessage(ctx, env.Data)
	default:
		s.reject(env.Event, fmt.Errorf("%w: unknown event %q", ErrInvalidPayload, env.Event))
	}
	return nil
}

// Close moves the session to its terminal state and tells the coordinator the
// connection is gone. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	identity := s.identity
	s.mu.Unlock()

	s.coord.HandleLeave(s.conn)
	s.conn.Close()
	s.log.Debug("Session closed", "user_id", identity)
}

func (s *Session) handleUserOnline(data json.RawMessage) {
	var id models.UserID
	if err := json.Unmarshal(data, &id); err != nil {
		s.reject(EventUserOnline, fmt.Errorf("%w: user-online expects a user id: %w", ErrInvalidPayload, err))
		return
	}
	if err := ValidateUserID(id); err != nil {
		s.reject(EventUserOnline, err)
		return
	}

	if s.trusted != "" && id != s.trusted {
		s.reject(EventUserOnline, fmt.Errorf("%w: token identity does not match %q", ErrUnauthenticated, id))
		return
	}

	s.mu.Lock()
	if s.state == StateIdentified && s.identity != id {
		s.mu.Unlock()
		s.reject(EventUserOnline, fmt.Errorf("%w: session already bound to another user", ErrUnauthenticated))
		return
	}
	s.state = StateIdentified
	s.identity = id
	s.mu.Unlock()

	s.coord.HandleJoin(id, s.conn)
}

func (s *Session) handleSendMessage(ctx context.Context, data json.RawMessage) {
	sender := s.Identity()
	if sender == "" {
		s.reject(EventSendMessage, fmt.Errorf("%w: send user-online first", ErrUnauthenticated))
		return
	}

	var req SendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.reject(EventSendMessage, fmt.Errorf("%w: %w", ErrInvalidPayload, err))
		return
	}
	if err := req.Validate(); err != nil {
		s.reject(EventSendMessage, err)
		return
	}
	if req.Sender != "" && req.Sender != sender {
		s.reject(EventSendMessage, fmt.Errorf("%w: sender does not match session identity", ErrUnauthenticated))
		return
	}

	if _, err := s.coord.HandleSend(ctx, sender, s.conn, req); err != nil {
		s.reject(EventSendMessage, err)
	}
}

// reject reports err to this connection only.
func (s *Session) reject(event string, err error) {
	code := ErrorCode(err)
	s.log.Info("Rejected event", "event", event, "code", code, "error", err)

	message := err.Error()
	if errors.Is(err, ErrStoreUnavailable) {
		message = "message could not be stored, it was not delivered"
	}

	frame, encErr := Encode(EventError, ErrorPayload{Code: code, Message: message, Event: event})
	if encErr != nil {
		s.log.Error("Failed to encode error event", "error", encErr)
		return
	}
	s.conn.Push(frame)
}
