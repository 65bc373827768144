// Package reconcile implements the client-side merge of optimistically
// rendered messages with their server-confirmed copies. It is a pure
// reducer over per-room, timestamp-ordered message lists, independent of
// any transport or rendering.
package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const tempIDPrefix = "temp-"

// NewOptimisticID returns a locally unique temporary message ID. It never
// collides with store-assigned IDs, which are UUIDs.
func NewOptimisticID() string {
	return fmt.Sprintf("%s%d", tempIDPrefix, time.Now().UnixNano())
}

// IsOptimistic reports whether the ID belongs to a locally fabricated
// message awaiting server confirmation.
func IsOptimistic(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// Message is the minimal shape the reducer needs. The server's enriched
// payload and a locally fabricated placeholder both satisfy it.
type Message struct {
	ID        string
	SenderID  string
	Content   string
	Timestamp int64
}

// View holds the reconciled per-room transcripts.
type View struct {
	rooms map[string][]Message
}

func NewView() *View {
	return &View{rooms: make(map[string][]Message)}
}

// AddLocal appends an optimistic message to the room before any network
// confirmation. The caller is expected to have given it a temporary ID.
func (v *View) AddLocal(roomKey string, msg Message) {
	v.rooms[roomKey] = append(v.rooms[roomKey], msg)
}

// Apply merges a server-confirmed message into the room:
//   - optimistic entries with the same sender and identical content are
//     collapsed (the placeholder's temporary ID never matches the
//     persisted one, so matching is by sender + content);
//   - a message whose persisted ID is already present is dropped, which
//     makes duplicate delivery idempotent;
//   - otherwise the message is inserted and the room re-sorted ascending
//     by timestamp, restoring order regardless of delivery order.
func (v *View) Apply(roomKey string, msg Message) {
	current := v.rooms[roomKey]

	filtered := current[:0:0]
	for _, m := range current {
		if IsOptimistic(m.ID) && m.SenderID == msg.SenderID && m.Content == msg.Content {
			continue
		}
		filtered = append(filtered, m)
	}

	for _, m := range filtered {
		if m.ID == msg.ID {
			v.rooms[roomKey] = filtered
			return
		}
	}

	filtered = append(filtered, msg)
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp < filtered[j].Timestamp
	})
	v.rooms[roomKey] = filtered
}

// Room returns the reconciled transcript for a room, oldest first.
func (v *View) Room(roomKey string) []Message {
	return v.rooms[roomKey]
}
