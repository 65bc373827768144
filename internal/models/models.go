package models

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidID       = errors.New("invalid identifier")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Profile is the public view of a user, safe to put on the wire.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Message is a persisted chat message. ID is assigned by the store on save
// and the record is immutable afterwards.
type Message struct {
	ID          string `json:"id"`
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	RoomKey     string `json:"roomKey"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"` // Unix timestamp (milliseconds)
}

// EnrichedMessage is the broadcast form of a persisted message: identifiers
// resolved to profiles so clients can render without a second round trip.
type EnrichedMessage struct {
	ID          string  `json:"id"`
	Sender      Profile `json:"sender"`
	Recipient   Profile `json:"recipient"`
	Content     string  `json:"content"`
	ContentHTML string  `json:"contentHtml,omitempty"`
	RoomKey     string  `json:"roomKey"`
	Timestamp   int64   `json:"timestamp"`
}

// PushSubscription is a registered Web Push endpoint for a user.
type PushSubscription struct {
	UserID   string `json:"userId"`
	Endpoint string `json:"endpoint"`
	Auth     string `json:"auth"`
	P256dh   string `json:"p256dh"`
}

type ClientEventType string

const (
	ClientEventJoinRoom    ClientEventType = "join_room"
	ClientEventSendMessage ClientEventType = "send_message"
	ClientEventTyping      ClientEventType = "typing"
)

// ClientEvent is the envelope for everything a client sends over the socket.
type ClientEvent struct {
	Type      ClientEventType `json:"type"`
	RoomKey   string          `json:"roomKey,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	Recipient string          `json:"recipient,omitempty"`
	Content   string          `json:"content,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Username  string          `json:"username,omitempty"`
	IsTyping  bool            `json:"isTyping,omitempty"`
}

type ServerEventType string

const (
	ServerEventReceiveMessage ServerEventType = "receive_message"
	ServerEventTyping         ServerEventType = "typing"
	ServerEventMessageError   ServerEventType = "message_error"
	ServerEventOnlineUsers    ServerEventType = "onlineUsers"
)

// ServerEvent is the envelope for everything the server pushes to a client.
type ServerEvent struct {
	Type        ServerEventType  `json:"type"`
	Message     *EnrichedMessage `json:"message,omitempty"`
	RoomKey     string           `json:"roomKey,omitempty"`
	Username    string           `json:"username,omitempty"`
	IsTyping    bool             `json:"isTyping,omitempty"`
	OnlineUsers []string         `json:"onlineUsers,omitempty"`
	Error       *EventError      `json:"error,omitempty"`
}

// EventError carries a request-scoped failure back to the originating
// connection. It is never broadcast.
type EventError struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
