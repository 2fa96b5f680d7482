// Package session tracks, per connection, the set of boards that
// connection has joined and the room-local identity it holds on each.
package session

import (
	"sync"

	"github.com/Dasi-Technology/presenced/internal/protocol"
)

// BoardInfo is a connection's room-local identity on a single board.
type BoardInfo struct {
	UserID   protocol.UserID
	Username string
	Color    protocol.Color
}

// Session is the join state of a single connection across every board
// it currently participates in. A connection may be joined to more
// than one board at a time; each board's identity is independent.
type Session struct {
	mu     sync.RWMutex
	boards map[protocol.BoardID]BoardInfo
}

// New creates an empty session.
func New() *Session {
	return &Session{boards: make(map[protocol.BoardID]BoardInfo)}
}

// AddBoard records the connection's identity on board.
func (s *Session) AddBoard(board protocol.BoardID, info BoardInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[board] = info
}

// RemoveBoard forgets the connection's participation in board.
func (s *Session) RemoveBoard(board protocol.BoardID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.boards, board)
}

// BoardInfo returns the connection's identity on board, if joined.
func (s *Session) BoardInfo(board protocol.BoardID) (BoardInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.boards[board]
	return info, ok
}

// IsInBoard reports whether the connection has joined board.
func (s *Session) IsInBoard(board protocol.BoardID) bool {
	_, ok := s.BoardInfo(board)
	return ok
}

// BoardIDs returns every board this connection currently participates in.
func (s *Session) BoardIDs() []protocol.BoardID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]protocol.BoardID, 0, len(s.boards))
	for id := range s.boards {
		ids = append(ids, id)
	}
	return ids
}

// BoardCount returns the number of boards this connection has joined.
func (s *Session) BoardCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.boards)
}
