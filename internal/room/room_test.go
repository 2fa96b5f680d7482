package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dasi-Technology/presenced/internal/protocol"
)

func TestNewRoomIsEmpty(t *testing.T) {
	r := New(42)
	assert.Equal(t, protocol.BoardID(42), r.BoardID())
	assert.True(t, r.IsEmpty())
	assert.Equal(t, 0, r.Count())
}

func TestAssignUserIDIsLowestFirst(t *testing.T) {
	r := New(1)

	id1, ok := r.AssignUserID()
	require.True(t, ok)
	id2, ok := r.AssignUserID()
	require.True(t, ok)
	id3, ok := r.AssignUserID()
	require.True(t, ok)

	assert.Equal(t, protocol.UserID(0), id1)
	assert.Equal(t, protocol.UserID(1), id2)
	assert.Equal(t, protocol.UserID(2), id3)
}

func TestAssignUserIDReusesReleasedSlot(t *testing.T) {
	r := New(1)

	id0, _ := r.AssignUserID()
	r.Add("client-a", id0, "Alice", protocol.Color{1, 2, 3})
	r.Remove("client-a")

	reused, ok := r.AssignUserID()
	require.True(t, ok)
	assert.Equal(t, protocol.UserID(0), reused)
}

func TestRoomFullAfter256Members(t *testing.T) {
	r := New(1)
	for i := 0; i < 256; i++ {
		_, ok := r.AssignUserID()
		require.True(t, ok, "slot %d should be assignable", i)
	}

	_, ok := r.AssignUserID()
	assert.False(t, ok, "257th member should be rejected")
}

func TestAddRemoveMembership(t *testing.T) {
	r := New(7)
	const client = "conn-1"

	id, _ := r.AssignUserID()
	r.Add(client, id, "Bob", protocol.Color{10, 20, 30})

	assert.True(t, r.Contains(client))
	assert.Equal(t, 1, r.Count())

	member, ok := r.Get(client)
	require.True(t, ok)
	assert.Equal(t, "Bob", member.Username)
	assert.Equal(t, protocol.Color{10, 20, 30}, member.Color)

	removed, ok := r.Remove(client)
	require.True(t, ok)
	assert.Equal(t, id, removed.UserID)
	assert.True(t, r.IsEmpty())
}

func TestRemoveUnknownClientIsNoop(t *testing.T) {
	r := New(1)
	_, ok := r.Remove("nobody")
	assert.False(t, ok)
}

func TestMembersSnapshot(t *testing.T) {
	r := New(1)
	id1, _ := r.AssignUserID()
	id2, _ := r.AssignUserID()
	r.Add("a", id1, "Alice", protocol.Color{})
	r.Add("b", id2, "Bob", protocol.Color{})

	members := r.Members()
	assert.Len(t, members, 2)
	assert.ElementsMatch(t, []Client{"a", "b"}, members)
}
