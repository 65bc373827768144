package ws

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"parley/internal/chat"
	"parley/internal/models"
)

type testStore struct {
	mu    sync.Mutex
	saved []models.Message
	err   error
}

func (s *testStore) SaveMessage(msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.Message{}, s.err
	}
	msg.ID = "m1"
	s.saved = append(s.saved, msg)
	return msg, nil
}

func (s *testStore) messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.saved)
}

type testResolver struct{}

func (testResolver) Resolve(id string) models.Profile {
	return models.Profile{ID: id, Username: "user-" + id}
}

type testNotifier struct {
	notified chan string
}

func (n *testNotifier) Notify(_ context.Context, userID string, _ *models.EnrichedMessage) {
	n.notified <- userID
}

func newTestHub(store *testStore, notifier Notifier) *Hub {
	return NewHub(chat.NewPipeline(store, testResolver{}), notifier)
}

// waitFor reads events from the connection until one of the wanted type
// arrives, skipping everything else (e.g. buffered onlineUsers updates).
func waitFor(t *testing.T, c *Conn, eventType models.ServerEventType) models.ServerEvent {
	t.Helper()
	deadline := time.After(1 * time.Second)
	for {
		select {
		case ev := <-c.send:
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s event", eventType)
			return models.ServerEvent{}
		}
	}
}

// expectNone asserts that no event of the given type shows up within a
// short grace period.
func expectNone(t *testing.T, c *Conn, eventType models.ServerEventType) {
	t.Helper()
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case ev := <-c.send:
			if ev.Type == eventType {
				t.Fatalf("unexpected %s event: %+v", eventType, ev)
			}
		case <-deadline:
			return
		}
	}
}

func TestHub_PresenceLifecycle(t *testing.T) {
	h := newTestHub(&testStore{}, nil)

	c1 := h.Connect("u1")
	ev := waitFor(t, c1, models.ServerEventOnlineUsers)
	if !slices.Equal(ev.OnlineUsers, []string{"u1"}) {
		t.Errorf("expected online set [u1], got %v", ev.OnlineUsers)
	}

	c2 := h.Connect("u2")
	ev = waitFor(t, c1, models.ServerEventOnlineUsers)
	if !slices.Equal(ev.OnlineUsers, []string{"u1", "u2"}) {
		t.Errorf("expected online set [u1 u2], got %v", ev.OnlineUsers)
	}

	h.Disconnect(c2)
	if got := h.Snapshot(); !slices.Equal(got, []string{"u1"}) {
		t.Errorf("expected snapshot [u1] after disconnect, got %v", got)
	}

	h.Disconnect(c1)
	if got := h.Snapshot(); len(got) != 0 {
		t.Errorf("expected empty snapshot, got %v", got)
	}
}

func TestHub_LastConnectionWins(t *testing.T) {
	h := newTestHub(&testStore{}, nil)

	old := h.Connect("u1")
	fresh := h.Connect("u1")

	// Tearing down the stale connection must not knock the user offline.
	h.Disconnect(old)
	if got := h.Snapshot(); !slices.Equal(got, []string{"u1"}) {
		t.Errorf("expected [u1] after stale disconnect, got %v", got)
	}

	h.Disconnect(fresh)
	if got := h.Snapshot(); len(got) != 0 {
		t.Errorf("expected empty snapshot, got %v", got)
	}
}

func TestHub_BroadcastRoomIsolation(t *testing.T) {
	h := newTestHub(&testStore{}, nil)

	c1 := h.Connect("u1")
	c2 := h.Connect("u2")
	c3 := h.Connect("u3")

	h.Join(c1, "u1-u2")
	h.Join(c2, "u1-u2")
	h.Join(c2, "u1-u2") // idempotent
	h.Join(c3, "u3-u4")

	h.Broadcast("u1-u2", models.ServerEvent{
		Type:    models.ServerEventReceiveMessage,
		Message: &models.EnrichedMessage{ID: "m1", Content: "hello"},
	})

	for _, c := range []*Conn{c1, c2} {
		ev := waitFor(t, c, models.ServerEventReceiveMessage)
		if ev.Message.Content != "hello" {
			t.Errorf("expected content hello, got %q", ev.Message.Content)
		}
	}

	expectNone(t, c3, models.ServerEventReceiveMessage)
}

func TestHub_TypingExcludesSender(t *testing.T) {
	h := newTestHub(&testStore{}, nil)

	c1 := h.Connect("u1")
	c2 := h.Connect("u2")
	h.Join(c1, "u1-u2")
	h.Join(c2, "u1-u2")

	h.HandleEvent(t.Context(), c1, models.ClientEvent{
		Type:     models.ClientEventTyping,
		RoomKey:  "u1-u2",
		Username: "alice",
		IsTyping: true,
	})

	ev := waitFor(t, c2, models.ServerEventTyping)
	if ev.Username != "alice" || !ev.IsTyping {
		t.Errorf("unexpected typing event: %+v", ev)
	}

	expectNone(t, c1, models.ServerEventTyping)
}

func TestHub_SendMessageEndToEnd(t *testing.T) {
	store := &testStore{}
	h := newTestHub(store, nil)

	c1 := h.Connect("u1")
	c2 := h.Connect("u2")
	h.Join(c1, "u1-u2")
	h.Join(c2, "u1-u2")

	h.HandleEvent(t.Context(), c1, models.ClientEvent{
		Type:      models.ClientEventSendMessage,
		RoomKey:   "spoofed-room", // must be ignored
		Sender:    "u1",
		Recipient: "u2",
		Content:   "hello",
		Timestamp: 123,
	})

	for _, c := range []*Conn{c1, c2} {
		ev := waitFor(t, c, models.ServerEventReceiveMessage)
		if ev.Message.Content != "hello" {
			t.Errorf("expected content hello, got %q", ev.Message.Content)
		}
		if ev.Message.RoomKey != "u1-u2" {
			t.Errorf("expected canonical room u1-u2, got %q", ev.Message.RoomKey)
		}
		if ev.Message.Sender.Username != "user-u1" {
			t.Errorf("expected resolved sender profile, got %+v", ev.Message.Sender)
		}
	}

	saved := store.messages()
	if len(saved) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(saved))
	}
	if saved[0].RoomKey != "u1-u2" {
		t.Errorf("persisted with room %q, want u1-u2", saved[0].RoomKey)
	}
}

func TestHub_InvalidIDsRejectedBeforeSideEffects(t *testing.T) {
	store := &testStore{}
	h := newTestHub(store, nil)

	c1 := h.Connect("u1")
	c2 := h.Connect("u2")
	h.Join(c1, "u1-u2")
	h.Join(c2, "u1-u2")

	h.HandleEvent(t.Context(), c1, models.ClientEvent{
		Type:      models.ClientEventSendMessage,
		Sender:    "not a valid id!",
		Recipient: "u2",
		Content:   "hello",
	})

	ev := waitFor(t, c1, models.ServerEventMessageError)
	if ev.Error == nil || ev.Error.Message != "Failed to send message" {
		t.Errorf("unexpected error event: %+v", ev)
	}

	expectNone(t, c2, models.ServerEventMessageError)
	expectNone(t, c2, models.ServerEventReceiveMessage)

	if len(store.messages()) != 0 {
		t.Error("nothing may be persisted for a rejected message")
	}
}

func TestHub_PersistenceErrorOnlyToOrigin(t *testing.T) {
	store := &testStore{err: errors.New("disk full")}
	h := newTestHub(store, nil)

	c1 := h.Connect("u1")
	c2 := h.Connect("u2")
	h.Join(c1, "u1-u2")
	h.Join(c2, "u1-u2")

	h.HandleEvent(t.Context(), c1, models.ClientEvent{
		Type:      models.ClientEventSendMessage,
		Sender:    "u1",
		Recipient: "u2",
		Content:   "hello",
	})

	ev := waitFor(t, c1, models.ServerEventMessageError)
	if ev.Error == nil || ev.Error.Details == "" {
		t.Errorf("expected error details, got %+v", ev)
	}

	expectNone(t, c2, models.ServerEventMessageError)
	expectNone(t, c2, models.ServerEventReceiveMessage)
}

func TestHub_OfflineRecipientNotified(t *testing.T) {
	notifier := &testNotifier{notified: make(chan string, 1)}
	h := newTestHub(&testStore{}, notifier)

	c1 := h.Connect("u1")
	h.Join(c1, "u1-u2")
	// u2 never connects.

	h.HandleEvent(t.Context(), c1, models.ClientEvent{
		Type:      models.ClientEventSendMessage,
		Sender:    "u1",
		Recipient: "u2",
		Content:   "hello",
	})

	select {
	case userID := <-notifier.notified:
		if userID != "u2" {
			t.Errorf("expected notification for u2, got %s", userID)
		}
	case <-time.After(1 * time.Second):
		t.Error("timeout waiting for offline notification")
	}
}

func TestHub_OnlineRecipientNotNotified(t *testing.T) {
	notifier := &testNotifier{notified: make(chan string, 1)}
	h := newTestHub(&testStore{}, notifier)

	c1 := h.Connect("u1")
	c2 := h.Connect("u2")
	h.Join(c1, "u1-u2")
	h.Join(c2, "u1-u2")

	h.HandleEvent(t.Context(), c1, models.ClientEvent{
		Type:      models.ClientEventSendMessage,
		Sender:    "u1",
		Recipient: "u2",
		Content:   "hello",
	})

	waitFor(t, c2, models.ServerEventReceiveMessage)

	select {
	case userID := <-notifier.notified:
		t.Errorf("unexpected notification for online user %s", userID)
	case <-time.After(100 * time.Millisecond):
	}
}
