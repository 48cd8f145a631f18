// ABOUTME: Jitter scheduler for network packets
// ABOUTME: Releases server-timestamped packets shortly before their local play time
package source

import (
	"container/heap"
	"context"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// lateDrop is how far past its play time a packet may still be released
const lateDrop = 50 * time.Millisecond

// ServerTime maps server timestamps to local wall time
type ServerTime interface {
	ServerToLocal(server int64) time.Time
}

// Scheduler orders packets by play time and releases each one when it is
// within the lead window. Packets already past play time by more than
// lateDrop are dropped.
type Scheduler struct {
	clock ServerTime
	lead  time.Duration
	now   func() time.Time

	mu    sync.Mutex
	queue packetQueue
	stats SchedulerStats

	output chan *audio.Packet
}

// SchedulerStats tracks scheduler metrics
type SchedulerStats struct {
	Received int64
	Released int64
	Dropped  int64
}

type scheduled struct {
	pkt    *audio.Packet
	server int64
	playAt time.Time
}

// NewScheduler creates a scheduler releasing packets lead ahead of play time
func NewScheduler(clock ServerTime, lead time.Duration) *Scheduler {
	return &Scheduler{
		clock:  clock,
		lead:   lead,
		now:    time.Now,
		output: make(chan *audio.Packet, 64),
	}
}

// Schedule queues pkt for release at its server timestamp
func (s *Scheduler) Schedule(pkt *audio.Packet, server int64) {
	item := scheduled{pkt: pkt, server: server, playAt: s.clock.ServerToLocal(server)}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stats.Received < 5 {
		log.Printf("Scheduled packet #%d: server=%d, due in %v",
			s.stats.Received, server, item.playAt.Sub(s.now()))
	}
	s.stats.Received++
	heap.Push(&s.queue, item)
}

// Run releases packets until ctx ends
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, pkt := range s.due() {
				select {
				case s.output <- pkt:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// due pops every packet inside the release window
func (s *Scheduler) due() []*audio.Packet {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []*audio.Packet
	for s.queue.Len() > 0 {
		item := s.queue.items[0]
		delay := item.playAt.Sub(now)
		if delay > s.lead {
			break
		}
		heap.Pop(&s.queue)

		if delay < -lateDrop {
			s.stats.Dropped++
			log.Printf("Dropped late packet: %v late", -delay)
			continue
		}
		s.stats.Released++
		ready = append(ready, item.pkt)
	}
	return ready
}

// Output returns the released packets
func (s *Scheduler) Output() <-chan *audio.Packet {
	return s.output
}

// Flush drops every queued packet
func (s *Scheduler) Flush() {
	s.mu.Lock()
	s.queue.items = nil
	s.mu.Unlock()

	for {
		select {
		case <-s.output:
		default:
			return
		}
	}
}

// Stats returns scheduler statistics
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// packetQueue is a min-heap on play time
type packetQueue struct {
	items []scheduled
}

func (q *packetQueue) Len() int { return len(q.items) }

func (q *packetQueue) Less(i, j int) bool {
	return q.items[i].playAt.Before(q.items[j].playAt)
}

func (q *packetQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *packetQueue) Push(x interface{}) {
	q.items = append(q.items, x.(scheduled))
}

func (q *packetQueue) Pop() interface{} {
	n := len(q.items)
	item := q.items[n-1]
	q.items = q.items[:n-1]
	return item
}
