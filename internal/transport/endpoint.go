// Package transport implements the WebSocket connection endpoint: it
// upgrades HTTP connections, decodes/encodes wire frames, and applies
// the outbound backpressure policy. Board membership itself is a
// property of the protocol (a Join frame sent after the socket is
// open), not of the upgrade request.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Dasi-Technology/presenced/internal/logging"
	"github.com/Dasi-Technology/presenced/internal/manager"
)

// Endpoint upgrades incoming HTTP requests to WebSocket connections
// and wires each one to the connection manager.
type Endpoint struct {
	manager        *manager.Manager
	allowedOrigins []string
	upgrader       websocket.Upgrader

	heartbeatInterval time.Duration
	clientTimeout     time.Duration
	queueCapacity     int
}

// NewEndpoint builds an Endpoint. heartbeatInterval governs how often
// the server pings the client; clientTimeout is how long a connection
// may go silent (no pong, no frame) before it is dropped; queueCapacity
// bounds each connection's outbound buffer.
func NewEndpoint(mgr *manager.Manager, allowedOrigins []string, heartbeatInterval, clientTimeout time.Duration, queueCapacity int) *Endpoint {
	return &Endpoint{
		manager:        mgr,
		allowedOrigins: allowedOrigins,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return validateOrigin(r, allowedOrigins) == nil
			},
			WriteBufferPool: &sync.Pool{
				New: func() any { return make([]byte, 4096) },
			},
		},
		heartbeatInterval: heartbeatInterval,
		clientTimeout:     clientTimeout,
		queueCapacity:     queueCapacity,
	}
}

// ServeWS is the gin handler for the presence WebSocket route.
func (e *Endpoint) ServeWS(c *gin.Context) {
	if err := validateOrigin(c.Request, e.allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	conn, err := e.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to upgrade connection", zap.Error(err))
		return
	}

	client := newClient(conn, e.manager, e.heartbeatInterval, e.clientTimeout, e.queueCapacity)

	// A connection outlives the HTTP handler that accepted it, so its
	// pumps must not inherit a context tied to the request.
	ctx := context.Background()
	e.manager.Connect(ctx, client, client)

	go client.writePump()
	go client.readPump(ctx)
}
