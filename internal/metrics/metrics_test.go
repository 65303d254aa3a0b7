package metrics

import (
	"sync"
	"testing"
)

func TestMetrics_IncAddGet(t *testing.T) {
	m := New()
	m.Inc(ConnectionsOpened)
	m.Inc(ConnectionsOpened)
	m.Add(DropReasonSendQueueFull, 5)

	if got := m.Get(ConnectionsOpened); got != 2 {
		t.Fatalf("%s=%d, want 2", ConnectionsOpened, got)
	}
	if got := m.Get(DropReasonSendQueueFull); got != 5 {
		t.Fatalf("%s=%d, want 5", DropReasonSendQueueFull, got)
	}
	if got := m.Get(RoomsDeleted); got != 0 {
		t.Fatalf("%s=%d, want 0", RoomsDeleted, got)
	}
}

func TestMetrics_SnapshotIsCopy(t *testing.T) {
	m := New()
	m.Inc(RoomsCreated)

	snap := m.Snapshot()
	snap[RoomsCreated] = 100

	if got := m.Get(RoomsCreated); got != 1 {
		t.Fatalf("%s=%d after mutating snapshot, want 1", RoomsCreated, got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Inc(RoomsCreated)
	m.Add(RoomsCreated, 3)
	if got := m.Get(RoomsCreated); got != 0 {
		t.Fatalf("Get on nil=%d, want 0", got)
	}
	if snap := m.Snapshot(); snap != nil {
		t.Fatalf("Snapshot on nil=%v, want nil", snap)
	}
}

func TestMetrics_Concurrent(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Inc(RelayedOffer)
			}
		}()
	}
	wg.Wait()
	if got := m.Get(RelayedOffer); got != 800 {
		t.Fatalf("%s=%d, want 800", RelayedOffer, got)
	}
}
