// ABOUTME: Render goroutine message loop
// ABOUTME: Prioritized control handling, packet decode and stall detection
package player

import (
	"errors"
	"log"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/internal/clock"
	"github.com/Resonate-Protocol/resonate-zones/internal/msgqueue"
	"github.com/Resonate-Protocol/resonate-zones/internal/sink"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio/decode"
)

// idleSleep is the pause after a zero-timeout poll found nothing to do
const idleSleep = 10 * time.Millisecond

func (p *Player) run(done chan struct{}) {
	defer close(done)
	log.Printf("Audio player: render goroutine running")

	for _, o := range p.outputs {
		o.frame.Clear()
	}
	p.stats.Start()
	p.audioDiff = 0
	p.secondarySkip = false
	p.onlyPrio = false

	for p.iterate() {
	}
	log.Printf("Audio player: render goroutine exited")
}

// tempoAllowed reports whether the current speed is rendered as audio
func (p *Player) tempoAllowed(speed int) bool {
	return p.pinfo.IsTempoAllowed(float64(speed) / clock.PlaySpeedNormal)
}

// priority returns the lowest message priority to accept and the poll timeout
func (p *Player) priority() (int, time.Duration) {
	timeout := time.Duration(p.outputs[sink.Primary].sink.CacheTime() * float64(time.Second))

	priority := 1
	if p.syncState == SyncStarting ||
		p.tempoAllowed(p.speed) ||
		p.speed < clock.PlaySpeedPause ||
		(p.speed > clock.PlaySpeedNormal && p.audioClock < p.clock.GetClock()) {
		priority = 0
	}
	if p.syncState == SyncWaitSync || p.paused {
		priority = 1
	}
	if p.onlyPrio {
		priority = 1
		timeout = 0
	}
	return priority, timeout
}

// iterate runs one pass of the loop and reports whether to keep going
func (p *Player) iterate() bool {
	priority, timeout := p.priority()

	msg, err := p.queue.Get(timeout, priority)
	p.onlyPrio = false

	if errors.Is(err, msgqueue.ErrTimeout) {
		p.handleTimeout(priority, timeout)
		return true
	}
	if err != nil {
		log.Printf("Audio player: queue error, stopping: %v", err)
		return false
	}

	p.handleMessage(msg)
	return true
}

func (p *Player) handleTimeout(priority int, timeout time.Duration) {
	if p.processDecoderOutput() {
		p.onlyPrio = true
		return
	}

	// waiting on control messages only is not a stall
	if priority > 0 {
		return
	}

	if p.tempoAllowed(p.speed) && !p.stalled && p.syncState == SyncInSync {
		// sinks still have time to fill until the sync timer runs out
		if !p.now().Before(p.syncDeadline) {
			log.Printf("Audio player: stream stalled")
			p.stalled = true
		}
	}
	if timeout == 0 {
		time.Sleep(idleSleep)
	}
}

func (p *Player) handleMessage(msg msgqueue.Message) {
	switch m := msg.(type) {
	case *msgqueue.Synchronize:
		if !m.Wait(synchronizeWait, msgqueue.SourceAudio) {
			// let other control messages through before waiting again
			if err := p.queue.Put(m, 1); err != nil {
				log.Printf("Audio player: failed to requeue synchronize: %v", err)
			}
		}

	case msgqueue.Resync:
		p.resync(m.PTS)

	case msgqueue.Reset:
		for _, o := range p.outputs {
			if o.codec != nil {
				o.codec.Reset()
			}
		}
		for _, o := range p.activeOutputs() {
			o.sink.Flush()
		}
		p.stalled = true
		p.audioClock = 0
		p.clearFrames()
		p.syncState = SyncStarting

	case msgqueue.Flush:
		for _, o := range p.activeOutputs() {
			o.sink.Flush()
		}
		p.stalled = true
		p.audioClock = 0
		p.clearFrames()

		if m.Sync {
			p.syncState = SyncStarting
			for _, o := range p.activeOutputs() {
				o.sink.Pause()
			}
		}

		for _, o := range p.outputs {
			if o.codec != nil {
				o.codec.Reset()
			}
		}

	case msgqueue.EOF:
		log.Printf("Audio player: end of stream")

	case msgqueue.SetSpeed:
		p.setSpeed(m.Speed)

	case *msgqueue.StreamChange:
		p.openStream(m.Hints, m.Codec, m.Codec2)
		m.Codec, m.Codec2 = nil, nil

	case msgqueue.Pause:
		p.paused = m.Paused
		log.Printf("Audio player: paused=%v", p.paused)

	case msgqueue.RequestState:
		p.parent.Post(ReportState{Session: p.session, SyncState: p.syncState})

	case *msgqueue.DataPacket:
		p.handlePacket(m)

	case msgqueue.DisplayReset:
		p.displayReset = true

	default:
		log.Printf("Audio player: ignoring %s message", msg.Type())
	}
}

// resync aligns the audio clock with the master clock position pts
func (p *Player) resync(pts float64) {
	pri := p.outputs[sink.Primary]
	delay := pri.sink.Delay()
	log.Printf("Audio player: resync to %.0f, level %d%%, delay %.0f", pts, p.queue.Level(), delay)

	if pts > p.audioClock-delay+resyncFlushMargin {
		for _, o := range p.activeOutputs() {
			o.sink.Flush()
		}
	}
	p.audioClock = pts + delay
	if p.speed != clock.PlaySpeedPause {
		for _, o := range p.activeOutputs() {
			o.sink.Resume()
		}
	}
	p.syncState = SyncInSync
	p.syncDeadline = p.now().Add(syncTimeout)
}

func (p *Player) setSpeed(speed int) {
	if p.tempoAllowed(speed) {
		if speed != p.speed && p.syncState == SyncInSync {
			for _, o := range p.activeOutputs() {
				o.sink.Resume()
			}
			p.stalled = false
		}
	} else {
		for _, o := range p.activeOutputs() {
			o.sink.Pause()
		}
	}
	p.speed = speed
}

func (p *Player) handlePacket(m *msgqueue.DataPacket) {
	if m.Drop {
		if p.syncState != SyncStarting {
			for _, o := range p.activeOutputs() {
				o.sink.Drain()
				o.sink.Flush()
				o.frame.Clear()
			}
		}
		p.syncState = SyncStarting
		return
	}

	if !p.tempoAllowed(p.speed) && p.syncState == SyncInSync {
		return
	}

	pri := p.outputs[sink.Primary]
	pkt := m.Packet
	if _, err := pri.codec.Decode(pkt); err != nil {
		if errors.Is(err, decode.ErrBufferFull) {
			if err := p.queue.PutBack(m); err != nil {
				log.Printf("Audio player: failed to put back packet: %v", err)
			}
			p.onlyPrio = true
			return
		}
		p.decodeFailed(pri, err)
		return
	}

	if p.dual {
		sec := p.outputs[sink.Secondary]
		if _, err := sec.codec.Decode(pkt); err != nil && !errors.Is(err, decode.ErrBufferFull) {
			p.decodeFailed(sec, err)
		}
	}

	p.stats.AddSampleBytes(pkt.Size())
	p.updatePlayerInfo()

	if p.processDecoderOutput() {
		p.onlyPrio = true
	}
}

// decodeFailed resets the codec of o; the packet is dropped
func (p *Player) decodeFailed(o *output, err error) {
	p.counters.DecodeErrors++
	if p.counters.DecodeErrors <= 5 {
		log.Printf("Audio player: %s decode failed, resetting codec: %v", o.role, err)
	}
	o.codec.Reset()
}

// clearFrames drops the current and merged frames of both zones
func (p *Player) clearFrames() {
	for _, o := range p.outputs {
		o.frame.Clear()
		o.acc.Clear()
	}
}
