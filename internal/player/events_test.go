// ABOUTME: Tests for pipeline event delivery
// ABOUTME: Tests that a full event queue only sheds format change notices
package player

import (
	"testing"
	"time"
)

func TestEventsDropOnlyAVChangeWhenFull(t *testing.T) {
	events := NewEvents(1)
	events.Post(AVChange{})

	start := time.Now()
	events.Post(AVChange{})
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("expected AVChange on a full queue to return at once, took %v", elapsed)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 queued event, got %d", len(events))
	}

	posted := make(chan struct{})
	go func() {
		events.Post(Started{CacheTotal: 500000})
		events.Post(ReportState{SyncState: SyncInSync})
		close(posted)
	}()

	var got []Event
	for len(got) < 3 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(postTimeout / 2):
			t.Fatalf("timed out after %d events", len(got))
		}
	}
	<-posted

	if _, ok := got[0].(AVChange); !ok {
		t.Errorf("expected AVChange first, got %T", got[0])
	}
	if s, ok := got[1].(Started); !ok || s.CacheTotal != 500000 {
		t.Errorf("expected Started second, got %#v", got[1])
	}
	if s, ok := got[2].(ReportState); !ok || s.SyncState != SyncInSync {
		t.Errorf("expected ReportState third, got %#v", got[2])
	}
}
