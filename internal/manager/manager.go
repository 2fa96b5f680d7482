// Package manager implements the presence service's central
// orchestrator: it owns every room and connection on this instance,
// dispatches decoded client frames to the right handler, and relays
// join/leave/cursor state to and from the bus so other instances stay
// in sync.
package manager

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/Dasi-Technology/presenced/internal/bus"
	"github.com/Dasi-Technology/presenced/internal/logging"
	"github.com/Dasi-Technology/presenced/internal/metrics"
	"github.com/Dasi-Technology/presenced/internal/protocol"
	"github.com/Dasi-Technology/presenced/internal/room"
	"github.com/Dasi-Technology/presenced/internal/session"
)

// Sender delivers a decoded frame to a single connection's outbound
// queue. Implementations own their own backpressure policy; Manager
// only needs to hand the frame off.
type Sender interface {
	Send(protocol.Message) bool
}

// Bus relays frames to the other instances of this service.
type Bus interface {
	Publish(ctx context.Context, channel string, msg protocol.Message) error
	Subscribe(ctx context.Context, channel string, handler func(protocol.Message)) (unsubscribe func(), err error)
}

type connection struct {
	sender  Sender
	session *session.Session
}

// Manager is the single orchestrator for every room and connection
// handled by this instance.
type Manager struct {
	mu          sync.RWMutex
	connections map[room.Client]*connection
	rooms       map[protocol.BoardID]*room.Room
	unsubs      map[protocol.BoardID]func()

	bus Bus
}

// New creates an empty Manager. bus may be nil to run in single-instance
// mode with cross-instance relay disabled.
func New(b Bus) *Manager {
	return &Manager{
		connections: make(map[room.Client]*connection),
		rooms:       make(map[protocol.BoardID]*room.Room),
		unsubs:      make(map[protocol.BoardID]func()),
		bus:         b,
	}
}

// Connect registers a newly accepted connection under client's
// identity. client is typically the *transport.Client pointer for
// that connection.
func (m *Manager) Connect(ctx context.Context, client room.Client, sender Sender) {
	m.mu.Lock()
	m.connections[client] = &connection{sender: sender, session: session.New()}
	m.mu.Unlock()

	metrics.IncConnection()
	logging.Info(ctx, "client connected")
}

// Disconnect leaves every board client had joined, then forgets it.
func (m *Manager) Disconnect(ctx context.Context, client room.Client) {
	m.mu.Lock()
	conn, ok := m.connections[client]
	if ok {
		delete(m.connections, client)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	for _, board := range conn.session.BoardIDs() {
		m.leave(ctx, client, conn, board)
	}

	metrics.DecConnection()
	logging.Info(ctx, "client disconnected")
}

// HandleFrame dispatches a single client-originated frame to its handler.
func (m *Manager) HandleFrame(ctx context.Context, client room.Client, msg protocol.Message) {
	switch msg.Tag {
	case protocol.TagJoin:
		m.handleJoin(ctx, client, msg.BoardID, msg.Username)
	case protocol.TagLeave:
		m.handleLeave(ctx, client, msg.BoardID)
	case protocol.TagCursorUpdate:
		m.handleCursorUpdate(ctx, client, msg.BoardID, msg.X, msg.Y)
	case protocol.TagHeartbeat:
		m.handleHeartbeat(ctx, client)
	default:
		logging.Warn(ctx, "received a server-originated frame from a client", zap.Uint8("tag", uint8(msg.Tag)))
	}
}

func (m *Manager) handleJoin(ctx context.Context, client room.Client, board protocol.BoardID, username string) {
	m.mu.Lock()
	conn, ok := m.connections[client]
	if !ok {
		m.mu.Unlock()
		return
	}
	if conn.session.IsInBoard(board) {
		m.mu.Unlock()
		logging.Warn(ctx, "client already joined board", zap.Uint16("board_id", uint16(board)))
		return
	}

	r, existed := m.rooms[board]
	if !existed {
		r = room.New(board)
		m.rooms[board] = r
	}

	userID, ok := r.AssignUserID()
	if !ok {
		m.mu.Unlock()
		logging.Warn(ctx, "room is full, rejecting join", zap.Uint16("board_id", uint16(board)))
		return
	}

	color := randomColor()
	r.Add(client, userID, username, color)
	conn.session.AddBoard(board, session.BoardInfo{UserID: userID, Username: username, Color: color})
	count := r.Count()

	firstMember := !existed
	needsSubscribe := false
	if _, subscribed := m.unsubs[board]; !subscribed {
		needsSubscribe = true
		m.unsubs[board] = func() {}
	}
	m.mu.Unlock()

	if firstMember {
		metrics.ActiveRooms.Inc()
	}
	metrics.RoomParticipants.WithLabelValues(strconv.Itoa(int(board))).Set(float64(count))

	if needsSubscribe {
		m.subscribeBoard(ctx, board)
	}

	joined := protocol.UserJoined(board, userID, username, color)
	m.publishAndBroadcast(ctx, board, joined, client)

	presence := protocol.PresenceUpdate(board, uint8(count))
	m.publishAndBroadcast(ctx, board, presence, nil)

	logging.Info(ctx, "client joined board",
		zap.Uint16("board_id", uint16(board)),
		zap.Uint8("user_id", uint8(userID)),
	)
}

func (m *Manager) handleLeave(ctx context.Context, client room.Client, board protocol.BoardID) {
	m.mu.RLock()
	conn, ok := m.connections[client]
	m.mu.RUnlock()
	if !ok {
		return
	}
	m.leave(ctx, client, conn, board)
}

func (m *Manager) leave(ctx context.Context, client room.Client, conn *connection, board protocol.BoardID) {
	m.mu.Lock()
	r, ok := m.rooms[board]
	if !ok {
		m.mu.Unlock()
		return
	}
	member, ok := r.Remove(client)
	if !ok {
		m.mu.Unlock()
		return
	}
	conn.session.RemoveBoard(board)
	count := r.Count()
	empty := r.IsEmpty()

	var unsubscribe func()
	if empty {
		delete(m.rooms, board)
		unsubscribe = m.unsubs[board]
		delete(m.unsubs, board)
	}
	m.mu.Unlock()

	if empty {
		metrics.ActiveRooms.Dec()
		metrics.RoomParticipants.DeleteLabelValues(strconv.Itoa(int(board)))
	} else {
		metrics.RoomParticipants.WithLabelValues(strconv.Itoa(int(board))).Set(float64(count))
	}
	if unsubscribe != nil {
		unsubscribe()
	}

	left := protocol.UserLeft(board, member.UserID)
	m.publishAndBroadcast(ctx, board, left, client)

	if count > 0 {
		presence := protocol.PresenceUpdate(board, uint8(count))
		m.publishAndBroadcast(ctx, board, presence, nil)
	}

	logging.Info(ctx, "client left board",
		zap.Uint16("board_id", uint16(board)),
		zap.Uint8("user_id", uint8(member.UserID)),
	)
}

func (m *Manager) handleCursorUpdate(ctx context.Context, client room.Client, board protocol.BoardID, x, y uint16) {
	m.mu.RLock()
	conn, ok := m.connections[client]
	m.mu.RUnlock()
	if !ok {
		return
	}

	info, ok := conn.session.BoardInfo(board)
	if !ok {
		logging.Warn(ctx, "cursor update for a board the client has not joined", zap.Uint16("board_id", uint16(board)))
		return
	}

	broadcast := protocol.CursorBroadcast(board, info.UserID, x, y)
	m.publishAndBroadcast(ctx, board, broadcast, client)
}

func (m *Manager) handleHeartbeat(ctx context.Context, client room.Client) {
	m.mu.RLock()
	conn, ok := m.connections[client]
	m.mu.RUnlock()
	if !ok {
		return
	}
	conn.sender.Send(protocol.Heartbeat())
}

// subscribeBoard subscribes to board's bus channel and rebroadcasts
// every frame received from other instances to this instance's local
// members. Called when a board gains its first local member.
func (m *Manager) subscribeBoard(ctx context.Context, board protocol.BoardID) {
	if m.bus == nil {
		return
	}

	unsubscribe, err := m.bus.Subscribe(ctx, bus.BoardChannel(board), func(msg protocol.Message) {
		m.broadcastLocal(board, msg, nil)
	})
	if err != nil {
		logging.Error(ctx, "failed to subscribe to board channel", zap.Uint16("board_id", uint16(board)), zap.Error(err))
		m.mu.Lock()
		delete(m.unsubs, board)
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.unsubs[board] = unsubscribe
	m.mu.Unlock()
}

// publishAndBroadcast relays msg to other instances over the bus and
// delivers it to every local member of board except exclude.
func (m *Manager) publishAndBroadcast(ctx context.Context, board protocol.BoardID, msg protocol.Message, exclude room.Client) {
	if m.bus != nil {
		if err := m.bus.Publish(ctx, bus.BoardChannel(board), msg); err != nil {
			logging.Warn(ctx, "failed to publish frame to bus", zap.Error(err))
		}
	}
	m.broadcastLocal(board, msg, exclude)
}

func (m *Manager) broadcastLocal(board protocol.BoardID, msg protocol.Message, exclude room.Client) {
	m.mu.RLock()
	r, ok := m.rooms[board]
	if !ok {
		m.mu.RUnlock()
		return
	}
	members := r.Members()
	targets := make([]Sender, 0, len(members))
	for _, c := range members {
		if exclude != nil && c == exclude {
			continue
		}
		if conn, ok := m.connections[c]; ok {
			targets = append(targets, conn.sender)
		}
	}
	m.mu.RUnlock()

	for _, sender := range targets {
		sender.Send(msg)
	}
}

// RoomCount returns the number of active rooms. Intended for tests and
// diagnostics.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// RoomMemberCount returns the member count of board, or 0 if it has no
// active room.
func (m *Manager) RoomMemberCount(board protocol.BoardID) int {
	m.mu.RLock()
	r, ok := m.rooms[board]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return r.Count()
}

// randomColor generates a vibrant RGB cursor color by picking one
// channel to dominate (180-255) while constraining the other two
// (0-150), so cursors stay visible against light and dark boards alike.
func randomColor() protocol.Color {
	dominant := rand.IntN(3)
	high := func() byte { return byte(180 + rand.IntN(76)) }
	low := func() byte { return byte(rand.IntN(151)) }

	switch dominant {
	case 0:
		return protocol.Color{high(), low(), low()}
	case 1:
		return protocol.Color{low(), high(), low()}
	default:
		return protocol.Color{low(), low(), high()}
	}
}
