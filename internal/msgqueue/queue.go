// ABOUTME: Bounded priority message queue feeding the render goroutine
// ABOUTME: Tracks buffered bytes and stream time for producer backpressure
package msgqueue

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

var (
	// ErrTimeout means no eligible message arrived before the deadline
	ErrTimeout = errors.New("message queue timeout")

	// ErrAborted means Abort was called
	ErrAborted = errors.New("message queue aborted")

	// ErrNotInitialized means Init has not been called or End was called
	ErrNotInitialized = errors.New("message queue not initialized")
)

// Default limits for an audio queue
const (
	DefaultMaxDataSize = 6 * 1024 * 1024
	DefaultMaxTimeSize = 8.0 // seconds
)

type entry struct {
	msg      Message
	priority int
}

// Queue is a thread-safe message queue. Messages with a higher priority are
// served first; equal priorities are FIFO. Only Get blocks.
type Queue struct {
	name string

	mu      sync.Mutex
	wake    chan struct{}
	items   []entry
	inited  bool
	aborted bool

	dataSize    int
	maxDataSize int
	maxTimeSize float64

	// DTS of the newest and oldest queued packets
	timeFront float64
	timeBack  float64
}

// New creates a queue with the default audio limits
func New(name string) *Queue {
	return &Queue{
		name:        name,
		wake:        make(chan struct{}),
		maxDataSize: DefaultMaxDataSize,
		maxTimeSize: DefaultMaxTimeSize,
		timeFront:   audio.NoPTS,
		timeBack:    audio.NoPTS,
	}
}

// SetMaxDataSize sets the byte limit used by Level and IsFull
func (q *Queue) SetMaxDataSize(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxDataSize = n
}

// SetMaxTimeSize sets the duration limit in seconds used by Level and IsFull
func (q *Queue) SetMaxTimeSize(seconds float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxTimeSize = seconds
}

// Init makes the queue usable
func (q *Queue) Init() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.dataSize = 0
	q.timeFront = audio.NoPTS
	q.timeBack = audio.NoPTS
	q.aborted = false
	q.inited = true
}

// IsInited reports whether Init has been called
func (q *Queue) IsInited() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inited
}

// Put enqueues msg behind every message of equal or higher priority
func (q *Queue) Put(msg Message, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.inited {
		return ErrNotInitialized
	}

	i := len(q.items)
	for i > 0 && q.items[i-1].priority < priority {
		i--
	}
	q.insert(i, entry{msg: msg, priority: priority})
	q.account(msg, true)
	q.broadcast()
	return nil
}

// PutBack returns msg to the head of the data messages, still behind
// queued control messages with a positive priority
func (q *Queue) PutBack(msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.inited {
		return ErrNotInitialized
	}

	i := 0
	for i < len(q.items) && q.items[i].priority > 0 {
		i++
	}
	q.insert(i, entry{msg: msg, priority: 0})
	q.account(msg, true)
	q.broadcast()
	return nil
}

func (q *Queue) insert(i int, e entry) {
	q.items = append(q.items, entry{})
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = e
}

// Get returns the next message whose priority is at least priority,
// waiting up to timeout
func (q *Queue) Get(timeout time.Duration, priority int) (Message, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		q.mu.Lock()
		if !q.inited {
			q.mu.Unlock()
			return nil, ErrNotInitialized
		}
		if q.aborted {
			q.mu.Unlock()
			return nil, ErrAborted
		}
		if len(q.items) > 0 && q.items[0].priority >= priority {
			msg := q.items[0].msg
			q.items[0] = entry{}
			q.items = q.items[1:]
			q.account(msg, false)
			q.mu.Unlock()
			return msg, nil
		}
		wake := q.wake
		q.mu.Unlock()

		if timeout <= 0 {
			return nil, ErrTimeout
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}

		timer := time.NewTimer(remaining)
		select {
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Abort wakes a blocked Get, which then returns ErrAborted
func (q *Queue) Abort() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.aborted = true
	q.broadcast()
}

// Flush drops all queued data packets, leaving control messages
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	for _, e := range q.items {
		if e.msg.Type() != TypePacket {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = entry{}
	}
	q.items = kept
	q.dataSize = 0
	q.timeFront = audio.NoPTS
	q.timeBack = audio.NoPTS
}

// End drops everything and makes the queue unusable until the next Init
func (q *Queue) End() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = nil
	q.dataSize = 0
	q.timeFront = audio.NoPTS
	q.timeBack = audio.NoPTS
	q.inited = false
	q.aborted = false
	q.broadcast()
}

// WaitUntilEmpty queues a barrier behind the pending data and waits for the
// consumer to reach it
func (q *Queue) WaitUntilEmpty(timeout time.Duration) bool {
	barrier := NewSynchronize(SourceOwner | SourceAudio)
	if err := q.Put(barrier, 0); err != nil {
		return false
	}
	ok := barrier.Wait(timeout, SourceOwner)
	if !ok {
		log.Printf("%s queue: timed out waiting for consumer to drain", q.name)
	}
	return ok
}

// Count returns the number of queued messages of type t
func (q *Queue) Count(t Type) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, e := range q.items {
		if e.msg.Type() == t {
			n++
		}
	}
	return n
}

// DataSize returns the buffered packet bytes
func (q *Queue) DataSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dataSize
}

// TimeSize returns the buffered stream time in seconds
func (q *Queue) TimeSize() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.timeSize()
}

func (q *Queue) timeSize() float64 {
	if q.timeFront == audio.NoPTS || q.timeBack == audio.NoPTS || q.timeFront <= q.timeBack {
		return 0
	}
	return (q.timeFront - q.timeBack) / audio.TimeBase
}

// Level returns the fill level in percent, the larger of the byte and
// time measures
func (q *Queue) Level() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.level()
}

func (q *Queue) level() int {
	if q.dataSize == 0 {
		return 0
	}
	if q.maxDataSize > 0 && q.dataSize > q.maxDataSize {
		return 100
	}

	level := 0
	if q.maxDataSize > 0 {
		level = 100 * q.dataSize / q.maxDataSize
	}
	if q.maxTimeSize > 0 {
		if t := int(100 * q.timeSize() / q.maxTimeSize); t > level {
			level = t
		}
	}
	if level > 100 {
		level = 100
	}
	return level
}

// IsFull reports whether producers should stop feeding data
func (q *Queue) IsFull() bool {
	return q.Level() >= 100
}

// account updates the byte and time bookkeeping for a data packet
func (q *Queue) account(msg Message, added bool) {
	dp, ok := msg.(*DataPacket)
	if !ok || dp.Packet == nil {
		return
	}

	if added {
		q.dataSize += dp.Packet.Size()
		if dp.Packet.DTS != audio.NoPTS {
			if q.timeFront == audio.NoPTS || dp.Packet.DTS > q.timeFront {
				q.timeFront = dp.Packet.DTS
			}
			if q.timeBack == audio.NoPTS {
				q.timeBack = dp.Packet.DTS
			}
		}
		return
	}

	q.dataSize -= dp.Packet.Size()
	if q.dataSize < 0 {
		q.dataSize = 0
	}
	if dp.Packet.DTS != audio.NoPTS {
		q.timeBack = dp.Packet.DTS
	}
	if q.dataSize == 0 {
		q.timeFront = audio.NoPTS
		q.timeBack = audio.NoPTS
	}
}

// broadcast wakes every waiter; callers hold q.mu
func (q *Queue) broadcast() {
	close(q.wake)
	q.wake = make(chan struct{})
}
