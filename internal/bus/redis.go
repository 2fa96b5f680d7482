// Package bus relays presence frames between instances over Redis
// pub/sub so that users on different boards-service pods still see
// each other's cursors and join/leave events.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Dasi-Technology/presenced/internal/logging"
	"github.com/Dasi-Technology/presenced/internal/metrics"
	"github.com/Dasi-Technology/presenced/internal/protocol"
)

// envelope wraps an encoded frame with the publishing instance's id so
// that subscribers can recognize and discard their own publications.
type envelope struct {
	InstanceID string `json:"instance_id"`
	Payload    []byte `json:"payload"`
}

// BoardChannel returns the pub/sub channel a board's frames travel on.
func BoardChannel(board protocol.BoardID) string {
	return fmt.Sprintf("presence:board:%d", board)
}

// GlobalChannel returns the pub/sub channel for instance-wide frames.
func GlobalChannel() string {
	return "presence:global"
}

// Service handles all interaction with the Redis cluster that backs
// cross-instance relay.
type Service struct {
	client     *redis.Client
	cb         *gobreaker.CircuitBreaker
	instanceID string
}

// NewService dials Redis, verifies connectivity with a PING, and wraps
// every subsequent call in a circuit breaker so a degraded Redis
// degrades cross-instance relay instead of this instance's local
// presence handling.
func NewService(addr, password, instanceID string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to bus: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "bus",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("bus").Set(stateVal)
		},
	}

	logging.Info(context.Background(), "connected to presence bus", zap.String("addr", addr))

	return &Service{
		client:     rdb,
		cb:         gobreaker.NewCircuitBreaker(st),
		instanceID: instanceID,
	}, nil
}

// Client returns the underlying Redis client, e.g. so the rate limiter
// can share it as its store.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// Publish encodes msg and publishes it, tagged with this instance's id,
// on channel. A tripped circuit breaker degrades gracefully: the
// publish is dropped and local broadcast still proceeds.
func (s *Service) Publish(ctx context.Context, channel string, msg protocol.Message) error {
	if s == nil || s.client == nil {
		return nil
	}

	start := time.Now()
	_, err := s.cb.Execute(func() (any, error) {
		env := envelope{InstanceID: s.instanceID, Payload: protocol.Encode(msg)}
		data, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal bus envelope: %w", err)
		}
		return nil, s.client.Publish(ctx, channel, data).Err()
	})
	metrics.BusOperationDuration.WithLabelValues("publish").Observe(time.Since(start).Seconds())

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("bus").Inc()
			metrics.BusOperationsTotal.WithLabelValues("publish", "circuit_open").Inc()
			logging.Warn(ctx, "bus circuit open, dropping publish", zap.String("channel", channel))
			return nil
		}
		metrics.BusOperationsTotal.WithLabelValues("publish", "error").Inc()
		logging.Error(ctx, "bus publish failed", zap.String("channel", channel), zap.Error(err))
		return err
	}

	metrics.BusOperationsTotal.WithLabelValues("publish", "success").Inc()
	return nil
}

// Subscribe starts a background goroutine relaying every frame
// received on channel from other instances to handler, until ctx is
// cancelled or the returned unsubscribe function is called. Frames
// published by this same instance are discarded to prevent echo.
func (s *Service) Subscribe(ctx context.Context, channel string, handler func(protocol.Message)) (unsubscribe func(), err error) {
	if s == nil || s.client == nil {
		return func() {}, nil
	}

	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := s.cb.Execute(func() (any, error) {
		return pubsub.Receive(ctx)
	}); err != nil {
		pubsub.Close()
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("bus").Inc()
		}
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				s.handleIncoming(ctx, channel, raw.Payload, handler)
			}
		}
	}()

	return func() {
		pubsub.Close()
		<-done
	}, nil
}

func (s *Service) handleIncoming(ctx context.Context, channel, payload string, handler func(protocol.Message)) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		logging.Error(ctx, "failed to unmarshal bus envelope", zap.String("channel", channel), zap.Error(err))
		return
	}
	if env.InstanceID == s.instanceID {
		return
	}
	msg, err := protocol.Decode(env.Payload)
	if err != nil {
		logging.Error(ctx, "failed to decode bus frame", zap.String("channel", channel), zap.Error(err))
		return
	}
	handler(msg)
}

// Ping checks bus connectivity, used by the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	if err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues("bus").Inc()
	}
	return err
}

// Close gracefully shuts down the connection to the bus.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
