package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBusOperationsTotal(t *testing.T) {
	BusOperationsTotal.WithLabelValues("publish", "success").Inc()
	val := testutil.ToFloat64(BusOperationsTotal.WithLabelValues("publish", "success"))
	if val < 1 {
		t.Errorf("expected BusOperationsTotal to be at least 1, got %v", val)
	}
}

func TestBusOperationDuration(t *testing.T) {
	// Verifying a histogram's value is awkward; absence of panic on
	// registration/observe is the main signal here.
	BusOperationDuration.WithLabelValues("publish").Observe(0.1)
}

func TestConnectionGauge(t *testing.T) {
	before := testutil.ToFloat64(ActiveConnections)
	IncConnection()
	if got := testutil.ToFloat64(ActiveConnections); got != before+1 {
		t.Errorf("expected ActiveConnections to increase by 1, got %v (was %v)", got, before)
	}
	DecConnection()
	if got := testutil.ToFloat64(ActiveConnections); got != before {
		t.Errorf("expected ActiveConnections to return to %v, got %v", before, got)
	}
}

func TestRoomParticipantsLabeled(t *testing.T) {
	RoomParticipants.WithLabelValues("42").Set(3)
	if got := testutil.ToFloat64(RoomParticipants.WithLabelValues("42")); got != 3 {
		t.Errorf("expected 3 participants for board 42, got %v", got)
	}
	RoomParticipants.DeleteLabelValues("42")
}

func TestFramesProcessedLabeled(t *testing.T) {
	FramesProcessed.WithLabelValues("cursor_update", "ok").Inc()
	val := testutil.ToFloat64(FramesProcessed.WithLabelValues("cursor_update", "ok"))
	if val < 1 {
		t.Errorf("expected FramesProcessed to be at least 1, got %v", val)
	}
}

func TestOutboundQueueDropsLabeled(t *testing.T) {
	OutboundQueueDrops.WithLabelValues("queue_full").Inc()
	val := testutil.ToFloat64(OutboundQueueDrops.WithLabelValues("queue_full"))
	if val < 1 {
		t.Errorf("expected OutboundQueueDrops to be at least 1, got %v", val)
	}
}
