package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptimisticCollapse(t *testing.T) {
	v := NewView()

	tempID := NewOptimisticID()
	require.True(t, IsOptimistic(tempID))

	v.AddLocal("u1-u2", Message{ID: tempID, SenderID: "u1", Content: "hi", Timestamp: 100})

	// Server echo of the same message, now with a persisted ID.
	v.Apply("u1-u2", Message{ID: "X", SenderID: "u1", Content: "hi", Timestamp: 100})

	room := v.Room("u1-u2")
	require.Len(t, room, 1)
	require.Equal(t, "X", room[0].ID)
	for _, m := range room {
		require.False(t, IsOptimistic(m.ID))
	}
}

func TestOptimisticWithDifferentContentSurvives(t *testing.T) {
	v := NewView()

	v.AddLocal("u1-u2", Message{ID: NewOptimisticID(), SenderID: "u1", Content: "first", Timestamp: 100})
	v.Apply("u1-u2", Message{ID: "X", SenderID: "u1", Content: "second", Timestamp: 200})

	room := v.Room("u1-u2")
	require.Len(t, room, 2)
	require.True(t, IsOptimistic(room[0].ID))
	require.Equal(t, "X", room[1].ID)
}

func TestDuplicateDeliveryIdempotent(t *testing.T) {
	v := NewView()

	confirmed := Message{ID: "X", SenderID: "u1", Content: "hi", Timestamp: 100}
	v.Apply("u1-u2", confirmed)
	v.Apply("u1-u2", confirmed)

	require.Len(t, v.Room("u1-u2"), 1)
}

func TestResortByTimestamp(t *testing.T) {
	v := NewView()

	// Delivered out of order.
	v.Apply("u1-u2", Message{ID: "b", SenderID: "u2", Content: "second", Timestamp: 200})
	v.Apply("u1-u2", Message{ID: "a", SenderID: "u1", Content: "first", Timestamp: 100})
	v.Apply("u1-u2", Message{ID: "c", SenderID: "u1", Content: "third", Timestamp: 300})

	room := v.Room("u1-u2")
	require.Len(t, room, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{room[0].ID, room[1].ID, room[2].ID})
}

func TestRoomsAreIndependent(t *testing.T) {
	v := NewView()

	v.Apply("u1-u2", Message{ID: "X", SenderID: "u1", Content: "hi", Timestamp: 100})
	v.Apply("u1-u3", Message{ID: "Y", SenderID: "u1", Content: "hi", Timestamp: 100})

	require.Len(t, v.Room("u1-u2"), 1)
	require.Len(t, v.Room("u1-u3"), 1)
	require.Empty(t, v.Room("u2-u3"))
}

func TestSameContentDifferentSenderNotCollapsed(t *testing.T) {
	v := NewView()

	temp := Message{ID: NewOptimisticID(), SenderID: "u1", Content: "hi", Timestamp: 100}
	v.AddLocal("u1-u2", temp)

	// Same content but from the other participant: the placeholder stays.
	v.Apply("u1-u2", Message{ID: "X", SenderID: "u2", Content: "hi", Timestamp: 150})

	room := v.Room("u1-u2")
	require.Len(t, room, 2)
}
