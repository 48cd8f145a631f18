// ABOUTME: Tests for the jitter scheduler
// ABOUTME: Tests release order, the lead window and late packet drops
package source

import (
	"context"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// wallClock treats server timestamps as local unix microseconds
type wallClock struct{}

func (wallClock) ServerToLocal(server int64) time.Time { return time.UnixMicro(server) }

func newTestScheduler(lead time.Duration) (*Scheduler, *time.Time) {
	now := time.UnixMicro(10_000_000)
	s := NewScheduler(wallClock{}, lead)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestSchedulerReleasesInPlayOrder(t *testing.T) {
	s, now := newTestScheduler(100 * time.Millisecond)
	base := now.UnixMicro()

	s.Schedule(&audio.Packet{PTS: 2}, base+80000)
	s.Schedule(&audio.Packet{PTS: 1}, base+40000)
	s.Schedule(&audio.Packet{PTS: 3}, base+500000)

	ready := s.due()
	if len(ready) != 2 {
		t.Fatalf("expected 2 packets in the window, got %d", len(ready))
	}
	if ready[0].PTS != 1 || ready[1].PTS != 2 {
		t.Errorf("expected play order, got %v then %v", ready[0].PTS, ready[1].PTS)
	}

	*now = now.Add(450 * time.Millisecond)
	ready = s.due()
	if len(ready) != 1 || ready[0].PTS != 3 {
		t.Errorf("expected the last packet once inside the window")
	}
}

func TestSchedulerDropsLatePackets(t *testing.T) {
	s, now := newTestScheduler(100 * time.Millisecond)
	base := now.UnixMicro()

	s.Schedule(&audio.Packet{PTS: 1}, base-200000) // 200ms late
	s.Schedule(&audio.Packet{PTS: 2}, base-20000)  // within tolerance

	ready := s.due()
	if len(ready) != 1 || ready[0].PTS != 2 {
		t.Fatalf("expected only the slightly late packet")
	}

	stats := s.Stats()
	if stats.Received != 2 || stats.Released != 1 || stats.Dropped != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestSchedulerRunAndFlush(t *testing.T) {
	s := NewScheduler(wallClock{}, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Schedule(&audio.Packet{PTS: 7}, time.Now().UnixMicro())

	select {
	case pkt := <-s.Output():
		if pkt.PTS != 7 {
			t.Errorf("unexpected packet %v", pkt.PTS)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for release")
	}

	s.Schedule(&audio.Packet{PTS: 8}, time.Now().Add(time.Hour).UnixMicro())
	s.Flush()
	s.mu.Lock()
	n := s.queue.Len()
	s.mu.Unlock()
	if n != 0 {
		t.Errorf("expected empty queue after flush")
	}
}
