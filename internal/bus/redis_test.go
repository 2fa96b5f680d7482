package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dasi-Technology/presenced/internal/protocol"
)

func newTestService(t *testing.T, instanceID string) (*Service, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	svc, err := NewService(mr.Addr(), "", instanceID)
	require.NoError(t, err)

	return svc, mr
}

func TestChannelNaming(t *testing.T) {
	assert.Equal(t, "presence:board:123", BoardChannel(123))
	assert.Equal(t, "presence:global", GlobalChannel())
}

func TestNewService(t *testing.T) {
	svc, mr := newTestService(t, "instance-a")
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	assert.NotNil(t, svc.Client())
	assert.NoError(t, svc.Ping(context.Background()))
}

func TestPublishAndSubscribeAcrossInstances(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	publisher, err := NewService(mr.Addr(), "", "instance-a")
	require.NoError(t, err)
	defer publisher.Close()

	subscriber, err := NewService(mr.Addr(), "", "instance-b")
	require.NoError(t, err)
	defer subscriber.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan protocol.Message, 1)
	unsubscribe, err := subscriber.Subscribe(ctx, BoardChannel(42), func(m protocol.Message) {
		received <- m
	})
	require.NoError(t, err)
	defer unsubscribe()

	msg := protocol.UserJoined(42, 5, "Alice", protocol.Color{255, 0, 0})
	require.NoError(t, publisher.Publish(ctx, BoardChannel(42), msg))

	select {
	case got := <-received:
		assert.Equal(t, msg, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed message")
	}
}

func TestSubscribeSuppressesOwnInstanceEcho(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	svc, err := NewService(mr.Addr(), "", "instance-a")
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan protocol.Message, 1)
	unsubscribe, err := svc.Subscribe(ctx, BoardChannel(1), func(m protocol.Message) {
		received <- m
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, svc.Publish(ctx, BoardChannel(1), protocol.Heartbeat()))

	select {
	case <-received:
		t.Fatal("should not have received a frame published by this same instance")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPingFailsWhenBusUnavailable(t *testing.T) {
	svc, mr := newTestService(t, "instance-a")
	mr.Close()

	err := svc.Ping(context.Background())
	assert.Error(t, err)
}

func TestPublishDegradesGracefullyWhenCircuitOpen(t *testing.T) {
	svc, mr := newTestService(t, "instance-a")
	defer mr.Close()
	defer svc.Close()

	mr.Close()

	for i := 0; i < 10; i++ {
		_ = svc.Publish(context.Background(), BoardChannel(1), protocol.Heartbeat())
	}

	// Once the breaker trips, Publish must degrade to nil rather than
	// propagate an error to the caller.
	err := svc.Publish(context.Background(), BoardChannel(1), protocol.Heartbeat())
	assert.NoError(t, err)
}

func TestNilServiceIsSafeNoOp(t *testing.T) {
	var svc *Service
	assert.Nil(t, svc.Client())
	assert.NoError(t, svc.Publish(context.Background(), BoardChannel(1), protocol.Heartbeat()))
	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())

	unsubscribe, err := svc.Subscribe(context.Background(), BoardChannel(1), func(protocol.Message) {})
	require.NoError(t, err)
	unsubscribe()
}
