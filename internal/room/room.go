// Package room tracks per-board membership and the 256-slot short user
// id pool that membership is drawn from, local to a single instance.
package room

import (
	"sync"

	"github.com/Dasi-Technology/presenced/internal/protocol"
)

// maxUsers bounds a room to the id space a single byte can address.
const maxUsers = 256

// Client identifies a connected participant by pointer identity. A room
// is keyed on this identity rather than a remote address: a Go
// websocket connection carries no socket-address guarantee as strong
// as the raw TCP accept loop this service's membership model was
// ported from.
type Client interface{}

// Member is a participant's room-local identity.
type Member struct {
	UserID   protocol.UserID
	Username string
	Color    protocol.Color
}

// Room holds the membership of a single board across every connection
// joined to it on this instance.
type Room struct {
	boardID protocol.BoardID

	mu       sync.RWMutex
	members  map[Client]*Member
	assigned [maxUsers]bool
}

// New creates an empty room for boardID with all 256 user ids free.
func New(boardID protocol.BoardID) *Room {
	return &Room{
		boardID: boardID,
		members: make(map[Client]*Member),
	}
}

// BoardID returns the board this room belongs to.
func (r *Room) BoardID() protocol.BoardID {
	return r.boardID
}

// AssignUserID reserves the lowest-numbered free id. ok is false when
// the room already holds the maximum 256 members.
func (r *Room) AssignUserID() (id protocol.UserID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assignUserIDLocked()
}

func (r *Room) assignUserIDLocked() (protocol.UserID, bool) {
	for i := 0; i < maxUsers; i++ {
		if !r.assigned[i] {
			r.assigned[i] = true
			return protocol.UserID(i), true
		}
	}
	return 0, false
}

func (r *Room) releaseUserIDLocked(id protocol.UserID) {
	r.assigned[id] = false
}

// Add registers client as holding userID, username and color. Callers
// must have obtained userID from AssignUserID on this room first.
func (r *Room) Add(c Client, userID protocol.UserID, username string, color protocol.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[c] = &Member{UserID: userID, Username: username, Color: color}
}

// Remove forgets client and releases its short id back to the pool.
// ok is false if client was not a member.
func (r *Room) Remove(c Client) (m *Member, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok = r.members[c]
	if !ok {
		return nil, false
	}
	delete(r.members, c)
	r.releaseUserIDLocked(m.UserID)
	return m, true
}

// Get returns client's member record, if any.
func (r *Room) Get(c Client) (m *Member, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok = r.members[c]
	return m, ok
}

// Contains reports whether client currently holds a slot in the room.
func (r *Room) Contains(c Client) bool {
	_, ok := r.Get(c)
	return ok
}

// Count returns the number of members currently in the room.
func (r *Room) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// IsEmpty reports whether the room has no members.
func (r *Room) IsEmpty() bool {
	return r.Count() == 0
}

// Members returns a snapshot of every client currently in the room.
// The returned slice is safe to range over after the call returns even
// if the room mutates concurrently.
func (r *Room) Members() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(r.members))
	for c := range r.members {
		out = append(out, c)
	}
	return out
}
