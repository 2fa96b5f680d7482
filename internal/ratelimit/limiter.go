// Package ratelimit implements admission control for new WebSocket
// connections, backed by Redis when the presence bus is available so
// the limit is shared across instances, and falling back to an
// in-memory store in single-instance mode.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/Dasi-Technology/presenced/internal/config"
	"github.com/Dasi-Technology/presenced/internal/logging"
	"github.com/Dasi-Technology/presenced/internal/metrics"
)

// RateLimiter admits or rejects new WebSocket connections by client IP.
type RateLimiter struct {
	wsIP        *limiter.Limiter
	redisClient *redis.Client
}

// NewRateLimiter builds a RateLimiter from cfg.RateLimitWSIP. redisClient
// may be nil, in which case the limit is enforced with a process-local
// memory store.
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWSIP)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "presenced:ratelimit:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using memory store (bus disabled)")
	}

	return &RateLimiter{
		wsIP:        limiter.New(store, wsIPRate),
		redisClient: redisClient,
	}, nil
}

// CheckWebSocket checks the connecting IP against the WebSocket
// connection rate limit. Returns true if the connection should
// proceed; on false, it has already written the rejection response.
// A rate limiter store failure fails open, since refusing service
// over a store outage is worse than briefly allowing extra
// connections.
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()
	ip := c.ClientIP()

	result, err := rl.wsIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed", zap.Error(err))
		metrics.RateLimitRequests.WithLabelValues("websocket_connect").Inc()
		return true
	}

	if result.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.Header("Retry-After", strconv.FormatInt(result.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections from this IP"})
		return false
	}

	metrics.RateLimitRequests.WithLabelValues("websocket_connect").Inc()
	return true
}
