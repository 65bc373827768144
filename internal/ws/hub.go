package ws

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"parley/internal/chat"
	"parley/internal/models"
	"parley/internal/room"

	"github.com/google/uuid"
)

const sendBuffer = 100

// Conn is the server-side handle for one live client connection. The Hub
// creates it on connect and the transport owns it until disconnect.
type Conn struct {
	id     string
	userID string
	send   chan models.ServerEvent
}

func (c *Conn) UserID() string { return c.userID }

// deliver is fire-and-forget: a slow or dead connection never blocks the
// hub or other members.
func (c *Conn) deliver(ev models.ServerEvent) {
	select {
	case c.send <- ev:
	default:
		slog.Warn("dropping event for slow connection", "user_id", c.userID, "event", ev.Type)
	}
}

type Pipeline interface {
	Submit(ctx context.Context, req chat.SubmitRequest) (*models.EnrichedMessage, error)
}

// Notifier is told about messages whose recipient has no live connection.
type Notifier interface {
	Notify(ctx context.Context, userID string, msg *models.EnrichedMessage)
}

// Hub owns the two shared mutable tables of the core: the presence
// registry (user -> live connection) and room membership. All access goes
// through its methods under one lock; nothing reaches into the tables
// directly.
type Hub struct {
	mu       sync.RWMutex
	presence map[string]*Conn
	rooms    map[string]map[*Conn]struct{}

	// Per-room submit serialization so room members see messages in
	// persistence-commit order. Unrelated rooms stay independent.
	submitLocks sync.Map // roomKey -> *sync.Mutex

	pipeline Pipeline
	notifier Notifier
}

func NewHub(pipeline Pipeline, notifier Notifier) *Hub {
	return &Hub{
		presence: make(map[string]*Conn),
		rooms:    make(map[string]map[*Conn]struct{}),
		pipeline: pipeline,
		notifier: notifier,
	}
}

// Connect registers a live connection for the user and broadcasts the
// updated online set. At most one connection is tracked per user; the
// last one wins.
func (h *Hub) Connect(userID string) *Conn {
	c := &Conn{
		id:     uuid.NewString(),
		userID: userID,
		send:   make(chan models.ServerEvent, sendBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.presence[userID] = c
	h.broadcastOnlineLocked()
	return c
}

// Disconnect removes the connection from presence and every room, then
// broadcasts the updated online set. The presence entry is left alone if a
// newer connection for the same user has already replaced this one.
func (h *Hub) Disconnect(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.presence[c.userID]; ok && current == c {
		delete(h.presence, c.userID)
	}
	for _, members := range h.rooms {
		delete(members, c)
	}
	h.broadcastOnlineLocked()
}

// Snapshot returns the set of user IDs with a live connection.
func (h *Hub) Snapshot() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onlineLocked()
}

func (h *Hub) onlineLocked() []string {
	users := make([]string, 0, len(h.presence))
	for userID := range h.presence {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// broadcastOnlineLocked runs in the same critical section as the mutation
// that triggered it, so no broadcast can carry a view older than a
// preceding mutation.
func (h *Hub) broadcastOnlineLocked() {
	ev := models.ServerEvent{
		Type:        models.ServerEventOnlineUsers,
		OnlineUsers: h.onlineLocked(),
	}
	for _, c := range h.presence {
		c.deliver(ev)
	}
}

// Join adds the connection to a room's broadcast group. Idempotent; a
// connection may be in any number of rooms. There is no leave: membership
// of a destroyed connection is cleaned up on disconnect, and delivery to a
// dead handle is a no-op anyway.
func (h *Hub) Join(c *Conn, roomKey string) {
	if roomKey == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[roomKey]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[roomKey] = members
	}
	members[c] = struct{}{}
}

// Broadcast delivers the event to every connection joined to the room.
func (h *Hub) Broadcast(roomKey string, ev models.ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomKey] {
		c.deliver(ev)
	}
}

// Typing forwards a typing signal to every room member except the sender.
// Purely transient: never persisted, never retried.
func (h *Hub) Typing(sender *Conn, roomKey string, ev models.ServerEvent) {
	if roomKey == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomKey] {
		if c != sender {
			c.deliver(ev)
		}
	}
}

// HandleEvent dispatches one inbound client event. Joining and typing are
// in-memory and handled inline; message submission suspends on storage and
// directory calls, so it runs in its own goroutine and never delays typing
// relay or unrelated rooms.
func (h *Hub) HandleEvent(ctx context.Context, c *Conn, ev models.ClientEvent) {
	switch ev.Type {
	case models.ClientEventJoinRoom:
		h.Join(c, ev.RoomKey)
	case models.ClientEventSendMessage:
		// The connection may go away while the message is in flight;
		// the submit must still run to completion.
		go h.submit(context.WithoutCancel(ctx), c, ev)
	case models.ClientEventTyping:
		h.Typing(c, ev.RoomKey, models.ServerEvent{
			Type:     models.ServerEventTyping,
			RoomKey:  ev.RoomKey,
			Username: ev.Username,
			IsTyping: ev.IsTyping,
		})
	default:
		slog.Debug("ignoring unknown client event", "type", ev.Type)
	}
}

func (h *Hub) submit(ctx context.Context, origin *Conn, ev models.ClientEvent) {
	// Serialize on the canonical room, not the client-supplied one.
	lock := h.roomLock(room.Key(ev.Sender, ev.Recipient))
	lock.Lock()
	defer lock.Unlock()

	msg, err := h.pipeline.Submit(ctx, chat.SubmitRequest{
		Sender:    ev.Sender,
		Recipient: ev.Recipient,
		Content:   ev.Content,
		Timestamp: ev.Timestamp,
	})
	if err != nil {
		slog.Error("message submit failed", "user_id", origin.userID, "error", err)
		// Reported to the originating connection only, never broadcast,
		// not retried.
		origin.deliver(models.ServerEvent{
			Type: models.ServerEventMessageError,
			Error: &models.EventError{
				Message: "Failed to send message",
				Details: err.Error(),
			},
		})
		return
	}

	h.Broadcast(msg.RoomKey, models.ServerEvent{
		Type:    models.ServerEventReceiveMessage,
		Message: msg,
	})

	if h.notifier != nil && !h.online(msg.Recipient.ID) {
		h.notifier.Notify(ctx, msg.Recipient.ID, msg)
	}
}

func (h *Hub) roomLock(roomKey string) *sync.Mutex {
	lock, _ := h.submitLocks.LoadOrStore(roomKey, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (h *Hub) online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.presence[userID]
	return ok
}
