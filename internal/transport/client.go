package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Dasi-Technology/presenced/internal/logging"
	"github.com/Dasi-Technology/presenced/internal/manager"
	"github.com/Dasi-Technology/presenced/internal/metrics"
	"github.com/Dasi-Technology/presenced/internal/protocol"
)

// writeWait bounds how long a single WebSocket write (control or data
// frame) may block before the connection is considered dead.
const writeWait = 10 * time.Second

// wsConnection is the subset of *websocket.Conn this package depends
// on, narrowed for testability.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// Client is a single connection's transport-layer half: it owns the
// WebSocket, decodes/encodes frames, and applies the outbound
// backpressure policy. It implements manager.Sender and is used as
// its own room.Client identity (pointer equality is stable for the
// life of the connection).
type Client struct {
	conn    wsConnection
	manager *manager.Manager

	heartbeatInterval time.Duration
	clientTimeout     time.Duration

	outbound  chan []byte
	closeOnce sync.Once
}

func newClient(conn wsConnection, mgr *manager.Manager, heartbeatInterval, clientTimeout time.Duration, queueCapacity int) *Client {
	return &Client{
		conn:              conn,
		manager:           mgr,
		heartbeatInterval: heartbeatInterval,
		clientTimeout:     clientTimeout,
		outbound:          make(chan []byte, queueCapacity),
	}
}

// Send encodes and enqueues msg for delivery. CursorBroadcast frames
// are dropped immediately if the outbound queue is full, since a
// slightly stale cursor position is worthless once a fresher one
// exists. Every other frame blocks up to writeWait before giving up,
// at which point the connection is torn down: losing a Join/Leave/
// PresenceUpdate frame would desynchronize the client's view of the
// room, so a wedged connection is closed rather than silently
// skipping it.
func (c *Client) Send(msg protocol.Message) bool {
	data := protocol.Encode(msg)

	if msg.Tag == protocol.TagCursorBroadcast {
		select {
		case c.outbound <- data:
			return true
		default:
			metrics.OutboundQueueDrops.WithLabelValues("queue_full").Inc()
			return false
		}
	}

	select {
	case c.outbound <- data:
		return true
	case <-time.After(writeWait):
		metrics.OutboundQueueDrops.WithLabelValues("timeout").Inc()
		c.close()
		return false
	}
}

// close stops the write pump by closing the outbound channel. Safe to
// call more than once or concurrently.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.outbound)
	})
}

// readPump decodes incoming frames and hands them to the manager until
// the connection errors or the client's timeout elapses with no
// activity.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.manager.Disconnect(ctx, c)
		c.conn.Close()
		c.close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.clientTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.clientTimeout))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.clientTimeout))
		if messageType != websocket.BinaryMessage {
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			metrics.FramesProcessed.WithLabelValues("unknown", "decode_error").Inc()
			logging.Warn(ctx, "dropping malformed frame", zap.Error(err))
			continue
		}

		metrics.FramesProcessed.WithLabelValues(msg.Tag.String(), "ok").Inc()
		c.manager.HandleFrame(ctx, c, msg)
	}
}

// writePump drains the outbound queue to the wire and sends periodic
// WebSocket-level pings so a silent but still-open TCP connection is
// detected within clientTimeout.
func (c *Client) writePump() {
	defer c.conn.Close()

	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.outbound:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
