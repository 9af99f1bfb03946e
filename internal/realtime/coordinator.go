package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prudhvinik1/edgerelay/internal/models"
	"github.com/prudhvinik1/edgerelay/internal/presence"
	"github.com/prudhvinik1/edgerelay/internal/repositories"
)

const (
	defaultPersistTimeout = 5 * time.Second
	mirrorTimeout         = 2 * time.Second
)

// Coordinator routes messages between sessions and keeps every connection
// informed of who is online.
//
// Routing decisions use only the in-memory registry. Messages are persisted
// before any delivery is attempted; delivery itself is best effort.
type Coordinator struct {
	registry       *presence.Registry[*Conn]
	store          repositories.MessageRepository
	mirror         repositories.PresenceRepository
	log            *slog.Logger
	persistTimeout time.Duration
	now            func() time.Time

	// mu serializes presence changes with their broadcast so successive
	// online-users frames never go backwards. It also guards conns.
	mu    sync.Mutex
	conns map[*Conn]struct{}
}

type CoordinatorOption func(*Coordinator)

// WithPresenceMirror records join/leave in repo for readers outside this process.
func WithPresenceMirror(repo repositories.PresenceRepository) CoordinatorOption {
	return func(c *Coordinator) { c.mirror = repo }
}

// WithPersistTimeout bounds each store insert. Expiry counts as a store failure.
func WithPersistTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.persistTimeout = d
		}
	}
}

// WithClock overrides the message timestamp source.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(store repositories.MessageRepository, log *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		registry:       presence.NewRegistry[*Conn](),
		store:          store,
		log:            log,
		persistTimeout: defaultPersistTimeout,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Millisecond)
		},
		conns: make(map[*Conn]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach starts broadcasting presence to conn.
func (c *Coordinator) Attach(conn *Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[conn] = struct{}{}
}

// HandleJoin binds id to conn, replacing any previous connection of id, and
// broadcasts the new online set to every connection.
func (c *Coordinator) HandleJoin(id models.UserID, conn *Conn) {
	c.mu.Lock()
	c.conns[conn] = struct{}{}
	previous, replaced := c.registry.Register(id, conn)
	c.broadcastPresenceLocked()
	c.mu.Unlock()

	if replaced {
		c.log.Info("Connection superseded", "user_id", id, "old_conn", previous.ID(), "conn_id", conn.ID())
	} else {
		c.log.Info("User online", "user_id", id, "conn_id", conn.ID())
	}
	c.mirrorPresence(id, models.StatusOnline)
}

// HandleLeave forgets conn and broadcasts the online set to the remaining
// connections. A conn that was superseded leaves its user online.
func (c *Coordinator) HandleLeave(conn *Conn) {
	c.mu.Lock()
	delete(c.conns, conn)
	id, removed := c.registry.Unregister(conn)
	c.broadcastPresenceLocked()
	_, stillOnline := c.registry.Lookup(id)
	c.mu.Unlock()

	if !removed || stillOnline {
		return
	}
	c.log.Info("User offline", "user_id", id, "conn_id", conn.ID())
	c.mirrorPresence(id, models.StatusOffline)
}

// HandleSend persists a message from sender and relays it.
//
// The receiver's live connection, if any, gets receive-message. The sender gets
// message-sent on origin, or on their registered connection when origin is nil.
// If the store rejects the message nothing is delivered and an error wrapping
// ErrStoreUnavailable is returned.
func (c *Coordinator) HandleSend(ctx context.Context, sender models.UserID, origin *Conn, req SendMessageRequest) (*models.Message, error) {
	msg := &models.Message{
		Sender:    sender,
		Receiver:  req.Receiver,
		Content:   req.Content,
		FileURL:   req.FileURL,
		CreatedAt: c.now(),
	}

	// The insert outlives the sender's connection once started.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.persistTimeout)
	defer cancel()

	if err := c.store.Insert(persistCtx, msg); err != nil {
		if errors.Is(err, repositories.ErrInvalidMessage) {
			c.log.Info("Store rejected message", "sender", sender, "receiver", req.Receiver, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		c.log.Error("Failed to persist message", "sender", sender, "receiver", req.Receiver, "error", err)
		if !errors.Is(err, ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return nil, err
	}

	if target, ok := c.registry.Lookup(msg.Receiver); ok {
		c.push(target, EventReceiveMessage, msg)
	} else {
		c.log.Debug("Receiver offline, stored only", "message_id", msg.ID, "receiver", msg.Receiver)
	}

	if origin == nil {
		origin, _ = c.registry.Lookup(sender)
	}
	if origin != nil {
		c.push(origin, EventMessageSent, msg)
	}

	return msg, nil
}

// Heartbeat refreshes the mirrored presence of id.
func (c *Coordinator) Heartbeat(id models.UserID) {
	if _, ok := c.registry.Lookup(id); ok {
		c.mirrorPresence(id, models.StatusOnline)
	}
}

// Online returns the identities currently connected.
func (c *Coordinator) Online() []models.UserID {
	return c.registry.Snapshot()
}

// Shutdown closes every attached connection.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for conn := range c.conns {
		conn.Close()
	}
	c.log.Info("Closed realtime connections", "count", len(c.conns))
}

func (c *Coordinator) broadcastPresenceLocked() {
	frame, err := Encode(EventOnlineUsers, c.registry.Snapshot())
	if err != nil {
		c.log.Error("Failed to encode presence", "error", err)
		return
	}
	for conn := range c.conns {
		conn.Push(frame)
	}
}

func (c *Coordinator) push(conn *Conn, event string, data any) {
	frame, err := Encode(event, data)
	if err != nil {
		c.log.Error("Failed to encode event", "event", event, "error", err)
		return
	}
	if !conn.Push(frame) {
		c.log.Debug("Event not delivered", "event", event, "conn_id", conn.ID())
	}
}

// mirrorPresence writes presence to the mirror in the background. Failures are
// logged and never affect routing.
func (c *Coordinator) mirrorPresence(id models.UserID, status models.PresenceStatus) {
	if c.mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()

		var err error
		if status == models.StatusOffline {
			err = c.mirror.DeletePresence(ctx, id)
		} else {
			err = c.mirror.SetPresence(ctx, &models.Presence{UserID: id, Status: string(status)})
		}
		if err != nil {
			c.log.Warn("Failed to mirror presence", "user_id", id, "status", status, "error", err)
		}
	}()
}
