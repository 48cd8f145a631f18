// ABOUTME: Real-time pacing for outputs without a hardware clock
// ABOUTME: Models a playout buffer that drains at wall-clock speed
package output

import (
	"sync"
	"time"
)

// pacer tracks how much written audio is still "playing" for backends that
// accept data instantly, so they report a device-like Buffered value
type pacer struct {
	mu      sync.Mutex
	now     func() time.Time
	start   time.Time
	written time.Duration
}

func newPacer() *pacer {
	return &pacer{now: time.Now}
}

func (p *pacer) buffered() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bufferedLocked()
}

func (p *pacer) bufferedLocked() time.Duration {
	if p.written == 0 {
		return 0
	}
	b := p.written - p.now().Sub(p.start)
	if b < 0 {
		return 0
	}
	return b
}

// add accounts for d of newly written audio; an underrun restarts the
// playhead at the time of the write
func (p *pacer) add(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bufferedLocked() == 0 {
		p.start = p.now()
		p.written = 0
	}
	p.written += d
}

func (p *pacer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = 0
}

func samplesDuration(samples, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	frames := samples / channels
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
