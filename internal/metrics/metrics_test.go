package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RoomCreated()
	m.RoomStatus("", "WAITING")
	m.RoomStatus("WAITING", "ACTIVE")
	m.MoveAccepted()
	m.MoveAccepted()
	m.Rejected("submitMove", "NotYourTurn")
	m.Finished("Forfeit")
	m.OutboxDropped(3)

	if got := testutil.ToFloat64(m.roomsCreated); got != 1 {
		t.Fatalf("rooms_created = %v", got)
	}
	if got := testutil.ToFloat64(m.roomsByStatus.WithLabelValues("WAITING")); got != 0 {
		t.Fatalf("waiting gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.roomsByStatus.WithLabelValues("ACTIVE")); got != 1 {
		t.Fatalf("active gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.movesAccepted); got != 2 {
		t.Fatalf("moves = %v", got)
	}
	if got := testutil.ToFloat64(m.rejections.WithLabelValues("submitMove", "NotYourTurn")); got != 1 {
		t.Fatalf("rejections = %v", got)
	}
	if got := testutil.ToFloat64(m.outboxDrops); got != 3 {
		t.Fatalf("drops = %v", got)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Fatalf("GatherAndCount = %d, %v", n, err)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.RoomCreated()
	m.RoomStatus("", "ACTIVE")
	m.MoveAccepted()
	m.Rejected("joinRoom", "RoomFull")
	m.Finished("Checkmate")
	m.OutboxDropped(1)
	m.ObserveRules(0.01)
	m.Reconnected()
}
