package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the presence service.
//
// Naming convention: namespace_subsystem_name
// - namespace: presence (application-level grouping)
// - subsystem: websocket, room, bus, rate_limit (feature-level grouping)
// - name: specific metric (connections_active, frames_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, participants)
// - Counter: Cumulative events (frames processed, drops, errors)
// - Histogram: Latency distributions (processing time)

var (
	// ActiveConnections tracks the current number of active WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active boards with at least one member.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms (boards with at least one member)",
	})

	// RoomParticipants tracks the number of participants per board.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "presence",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"board_id"})

	// FramesProcessed tracks the total number of decoded frames handled per type.
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Subsystem: "websocket",
		Name:      "frames_total",
		Help:      "Total frames processed, labeled by message type and outcome",
	}, []string{"message_type", "status"})

	// MessageProcessingDuration tracks the time spent processing a decoded frame.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "presence",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing a single frame",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
	}, []string{"message_type"})

	// OutboundQueueDrops tracks frames dropped from a client's outbound queue.
	OutboundQueueDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Subsystem: "websocket",
		Name:      "outbound_queue_drops_total",
		Help:      "Total frames dropped from a client outbound queue, labeled by reason",
	}, []string{"reason"})

	// CircuitBreakerState tracks the current state of the bus circuit breaker.
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "presence",
		Subsystem: "bus",
		Name:      "circuit_breaker_state",
		Help:      "Current state of the bus circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks the total number of bus calls rejected by the circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Subsystem: "bus",
		Name:      "circuit_breaker_failures_total",
		Help:      "Total bus calls rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks the total number of connections rejected by the rate limiter.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of connection attempts that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks the total number of connection attempts checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of connection attempts checked against the rate limiter",
	}, []string{"endpoint"})

	// BusOperationsTotal tracks the total number of bus operations.
	BusOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Subsystem: "bus",
		Name:      "operations_total",
		Help:      "Total number of bus operations",
	}, []string{"operation", "status"})

	// BusOperationDuration tracks the duration of bus operations.
	BusOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "presence",
		Subsystem: "bus",
		Name:      "operation_duration_seconds",
		Help:      "Duration of bus operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

// IncConnection increments the active connection gauge.
func IncConnection() {
	ActiveConnections.Inc()
}

// DecConnection decrements the active connection gauge.
func DecConnection() {
	ActiveConnections.Dec()
}
