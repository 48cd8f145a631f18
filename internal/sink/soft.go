// ABOUTME: Software sink rendering a zone through a beep DSP chain
// ABOUTME: Buffers frames, paces them into an output and measures sync error
package sink

import (
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio/output"
	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
)

const (
	// addTimeout bounds how long AddPackets waits for buffer space
	addTimeout = 200 * time.Millisecond

	// pumpInterval is how often the pump tops up the device
	pumpInterval = 5 * time.Millisecond

	// resampleQuality is the beep resampler quality
	resampleQuality = 4

	// lookahead is what the resampler reads ahead of its output, in frames
	lookahead = 1024

	// drainTail is how many silence-padded writes follow the last queued
	// frame when draining; each beep resampler stage holds up to 512 frames
	drainTail = 3

	// syncSmoothing is the weight of a new sync error measurement
	syncSmoothing = 0.1

	// maxRatioAdjust bounds the resample ratio correction
	maxRatioAdjust = 0.05
)

// Config tunes a software sink
type Config struct {
	Name string

	// BufferTime is the sink queue capacity
	BufferTime time.Duration

	// DeviceBuffer is how much audio the pump keeps inside the output
	DeviceBuffer time.Duration

	// DeviceRate fixes the output rate; 0 follows the stream
	DeviceRate int

	// Passthrough lists the bitstreams the receiver behind the output decodes
	Passthrough []audio.StreamType

	Dumb     bool
	Disabled bool
}

// DefaultConfig returns the settings used for a zone with no overrides
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		BufferTime:   500 * time.Millisecond,
		DeviceBuffer: 50 * time.Millisecond,
	}
}

type rawChunk struct {
	data     []byte
	duration time.Duration
}

// SoftSink is a Sink rendering into an output.Output.
//
// PCM frames are folded to stereo on arrival and queued. A pump goroutine
// pulls them through resample, rate conversion and gain stages and keeps the
// device topped up. Passthrough frames bypass the chain and go to a
// BitstreamWriter untouched.
type SoftSink struct {
	cfg   Config
	out   output.Output
	clock Clock

	disabled atomic.Bool

	mu          sync.Mutex
	space       chan struct{}
	created     bool
	format      audio.Format
	passthrough bool
	paused      bool
	abort       bool

	pcm      [][2]float64
	capacity int // frames
	raw      []rawChunk
	rawTime  time.Duration
	endPTS   float64

	srcRate   int
	devRate   int
	resample  bool
	ratio     float64
	resampler *beep.Resampler
	gain      *effects.Gain
	chain     beep.Streamer
	drcGain   float64

	syncError float64
	syncValid bool
	logCount  int

	// draining streams the queue out below the resampler lookahead; tail
	// counts the padded writes that flush the resampler afterwards
	draining bool
	tail     int

	stop chan struct{}
	done chan struct{}
}

// NewSoftSink creates a sink rendering into out and measuring against clock
func NewSoftSink(cfg Config, out output.Output, clock Clock) *SoftSink {
	s := &SoftSink{
		cfg:    cfg,
		out:    out,
		clock:  clock,
		space:  make(chan struct{}),
		ratio:  1,
		endPTS: audio.NoPTS,
	}
	s.disabled.Store(cfg.Disabled)
	return s
}

// Name returns the zone name
func (s *SoftSink) Name() string {
	return s.cfg.Name
}

// Output returns the device behind the sink
func (s *SoftSink) Output() output.Output {
	return s.out
}

// SetDisabled switches the zone off or on
func (s *SoftSink) SetDisabled(disabled bool) {
	s.disabled.Store(disabled)
	log.Printf("Zone %s disabled: %v", s.cfg.Name, disabled)
}

func (s *SoftSink) IsValidFormat(frame *audio.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created && frame.Passthrough == s.passthrough && frame.Format.Equal(s.format)
}

func (s *SoftSink) Create(frame *audio.Frame, codec string, useResample bool) bool {
	s.Destroy(false)

	rate := frame.Format.SampleRate
	if rate <= 0 {
		log.Printf("Zone %s: cannot create sink without a sample rate", s.cfg.Name)
		return false
	}

	if frame.Passthrough {
		if _, ok := s.out.(output.BitstreamWriter); !ok {
			log.Printf("Zone %s: output cannot carry %s bitstream", s.cfg.Name, frame.Format.StreamType)
			return false
		}
	}

	devRate := rate
	if s.cfg.DeviceRate > 0 && !frame.Passthrough {
		devRate = s.cfg.DeviceRate
	}
	if err := s.out.Open(devRate, 2); err != nil {
		log.Printf("Zone %s: failed to open output: %v", s.cfg.Name, err)
		return false
	}

	s.mu.Lock()
	s.created = true
	s.format = frame.Format
	s.passthrough = frame.Passthrough
	s.paused = true
	s.abort = false
	s.srcRate = rate
	s.devRate = devRate
	s.capacity = int(s.cfg.BufferTime.Seconds() * float64(rate))
	s.resample = useResample
	s.ratio = 1
	s.clearLocked()
	s.buildChainLocked()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go s.run(stop, done)

	log.Printf("Zone %s sink created: codec=%s %dHz %dch -> %dHz, passthrough=%v, resample=%v",
		s.cfg.Name, codec, rate, frame.Format.Channels, devRate, frame.Passthrough, useResample)
	return true
}

// buildChainLocked wires queue -> ratio resampler -> rate converter -> gain
func (s *SoftSink) buildChainLocked() {
	s.resampler = beep.ResampleRatio(resampleQuality, s.ratio, &queueStreamer{s: s})
	var st beep.Streamer = s.resampler
	if s.devRate != s.srcRate {
		st = beep.Resample(resampleQuality, beep.SampleRate(s.srcRate), beep.SampleRate(s.devRate), st)
	}
	s.gain = &effects.Gain{Streamer: st, Gain: s.drcGain}
	s.chain = s.gain
}

func (s *SoftSink) Destroy(wait bool) {
	s.mu.Lock()
	created := s.created
	s.mu.Unlock()
	if !created {
		return
	}

	if wait {
		s.Drain()
	}

	s.mu.Lock()
	s.created = false
	stop, done := s.stop, s.done
	s.clearLocked()
	s.signalLocked()
	s.mu.Unlock()

	close(stop)
	<-done

	if err := s.out.Close(); err != nil {
		log.Printf("Zone %s: output close error: %v", s.cfg.Name, err)
	}
}

func (s *SoftSink) AddPackets(frame *audio.Frame) int {
	remaining := frame.Remaining()
	if remaining == 0 {
		return 0
	}

	timer := time.NewTimer(addTimeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if !s.created || s.abort {
			s.mu.Unlock()
			return 0
		}

		if n := s.acceptLocked(frame, remaining); n > 0 {
			s.mu.Unlock()
			return n
		}

		wait := s.space
		s.mu.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			return 0
		}
	}
}

// acceptLocked queues up to remaining frames and returns how many fit
func (s *SoftSink) acceptLocked(frame *audio.Frame, remaining int) int {
	var n int
	if frame.Passthrough {
		if s.rawTime >= s.cfg.BufferTime {
			return 0
		}
		data := frame.Data[0][frame.Offset() : frame.Offset()+remaining]
		d := time.Duration(frame.DurationOf(remaining)) * time.Microsecond
		s.raw = append(s.raw, rawChunk{data: append([]byte(nil), data...), duration: d})
		s.rawTime += d
		n = remaining
	} else {
		free := s.capacity - len(s.pcm)
		if free <= 0 {
			return 0
		}
		n = remaining
		if n > free {
			n = free
		}
		s.pcm = append(s.pcm, toStereo(frame, frame.FramesOut, n)...)
	}

	if frame.PTS != audio.NoPTS {
		s.endPTS = frame.PTS + frame.DurationOf(frame.FramesOut+n)
	}
	return n
}

// queuedLocked returns the audio waiting in the sink queue
func (s *SoftSink) queuedLocked() time.Duration {
	if s.passthrough {
		return s.rawTime
	}
	if s.srcRate == 0 {
		return 0
	}
	return time.Duration(len(s.pcm)) * time.Second / time.Duration(s.srcRate)
}

func (s *SoftSink) Delay() float64 {
	s.mu.Lock()
	queued := s.queuedLocked()
	s.mu.Unlock()
	d := queued + s.out.Buffered() + s.out.Latency()
	return float64(d.Microseconds())
}

func (s *SoftSink) CacheTime() float64 {
	s.mu.Lock()
	queued := s.queuedLocked()
	s.mu.Unlock()
	return (queued + s.out.Buffered()).Seconds()
}

func (s *SoftSink) CacheTotal() float64 {
	return (s.cfg.BufferTime + s.cfg.DeviceBuffer).Seconds()
}

func (s *SoftSink) MaxDelay() float64 {
	return s.CacheTotal() + s.out.Latency().Seconds()
}

func (s *SoftSink) PlayingPts() float64 {
	s.mu.Lock()
	end := s.endPTS
	s.mu.Unlock()
	if end == audio.NoPTS {
		return audio.NoPTS
	}
	return end - s.Delay()
}

func (s *SoftSink) SetResampleMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resample = on
	if !on {
		s.ratio = 1
		if s.resampler != nil {
			s.resampler.SetRatio(1)
		}
	}
	log.Printf("Zone %s resample mode: %v", s.cfg.Name, on)
}

func (s *SoftSink) ResampleRatio() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ratio
}

func (s *SoftSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

func (s *SoftSink) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		s.syncValid = false
	}
	s.paused = false
}

func (s *SoftSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.abort = false
	if s.created {
		s.buildChainLocked()
	}
	s.signalLocked()
}

func (s *SoftSink) clearLocked() {
	s.pcm = nil
	s.raw = nil
	s.rawTime = 0
	s.endPTS = audio.NoPTS
	s.syncError = 0
	s.syncValid = false
	s.draining = false
	s.tail = 0
}

// Drain plays out everything buffered, bounded by the sink's maximum delay
func (s *SoftSink) Drain() {
	s.mu.Lock()
	if !s.created {
		s.mu.Unlock()
		return
	}
	s.paused = false
	s.draining = true
	if !s.passthrough {
		s.tail = drainTail
	}
	s.mu.Unlock()

	deadline := time.Now().Add(time.Duration(s.MaxDelay()*float64(time.Second)) + time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		empty := len(s.raw) == 0 && len(s.pcm) == 0 && s.tail == 0
		aborted := s.abort || !s.created
		s.mu.Unlock()

		if aborted || (empty && s.out.Buffered() == 0) {
			break
		}
		time.Sleep(pumpInterval)
	}

	s.mu.Lock()
	s.clearLocked()
	if s.created {
		s.buildChainLocked()
	}
	s.signalLocked()
	s.mu.Unlock()
}

func (s *SoftSink) AbortAddPackets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abort = true
	s.signalLocked()
}

func (s *SoftSink) SetDynamicRangeCompression(drc int64) {
	db := float64(drc) / 100
	g := math.Pow(10, db/20) - 1

	s.mu.Lock()
	defer s.mu.Unlock()
	s.drcGain = g
	if s.gain != nil {
		s.gain.Gain = g
	}
}

func (s *SoftSink) SyncError() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncError
}

func (s *SoftSink) SetSyncErrorCorrection(correction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncError += correction
}

func (s *SoftSink) PassthroughStreamType(codec string, sampleRate, profile int) audio.StreamType {
	if _, ok := s.out.(output.BitstreamWriter); !ok {
		return audio.StreamTypeNone
	}

	want := audio.ParseStreamType(codec)
	if want == audio.StreamTypeDTS && (profile == audio.ProfileDTSHDHRA || profile == audio.ProfileDTSHDMA) {
		if s.allows(audio.StreamTypeDTSHD) {
			return audio.StreamTypeDTSHD
		}
	}
	if want != audio.StreamTypeNone && s.allows(want) {
		return want
	}
	return audio.StreamTypeNone
}

func (s *SoftSink) allows(t audio.StreamType) bool {
	for _, p := range s.cfg.Passthrough {
		if p == t {
			return true
		}
	}
	return false
}

func (s *SoftSink) IsDumb() bool {
	return s.cfg.Dumb
}

func (s *SoftSink) IsDisabled() bool {
	return s.disabled.Load()
}

// signalLocked wakes AddPackets waiters
func (s *SoftSink) signalLocked() {
	close(s.space)
	s.space = make(chan struct{})
}

func (s *SoftSink) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	buf := make([][2]float64, s.devRate/100) // 10ms per write
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		s.pump(buf)
		s.measure()
	}
}

// pump tops the device up to DeviceBuffer
func (s *SoftSink) pump(buf [][2]float64) {
	for s.out.Buffered() < s.cfg.DeviceBuffer {
		s.mu.Lock()
		if s.paused || !s.created {
			s.mu.Unlock()
			return
		}

		if s.passthrough {
			if len(s.raw) == 0 {
				s.mu.Unlock()
				return
			}
			chunk := s.raw[0]
			s.raw = s.raw[1:]
			s.rawTime -= chunk.duration
			s.signalLocked()
			s.mu.Unlock()

			if err := s.out.(output.BitstreamWriter).WriteBitstream(chunk.data, chunk.duration); err != nil {
				log.Printf("Zone %s: bitstream write failed: %v", s.cfg.Name, err)
				return
			}
			continue
		}

		if s.draining {
			if len(s.pcm) == 0 {
				if s.tail == 0 {
					s.mu.Unlock()
					return
				}
				s.tail--
			}
		} else {
			need := int(float64(len(buf))*s.ratio*float64(s.srcRate)/float64(s.devRate)) + lookahead
			if len(s.pcm) < need {
				s.mu.Unlock()
				return
			}
		}
		n, _ := s.chain.Stream(buf)
		s.signalLocked()
		s.mu.Unlock()

		samples := make([]int32, n*2)
		for i := 0; i < n; i++ {
			samples[i*2] = audio.SampleFromFloat(buf[i][0])
			samples[i*2+1] = audio.SampleFromFloat(buf[i][1])
		}
		if err := s.out.Write(samples); err != nil {
			log.Printf("Zone %s: output write failed: %v", s.cfg.Name, err)
			return
		}
	}
}

// measure updates the smoothed sync error and, in resample mode, steers the
// resample ratio against it
func (s *SoftSink) measure() {
	if s.clock == nil {
		return
	}
	playing := s.PlayingPts()
	if playing == audio.NoPTS {
		return
	}
	err := playing - s.clock.GetClock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || !s.created {
		return
	}

	if !s.syncValid {
		s.syncError = err
		s.syncValid = true
	} else {
		s.syncError += syncSmoothing * (err - s.syncError)
	}

	if s.resample && s.resampler != nil {
		adjust := -s.syncError / audio.TimeBase / 2
		adjust = math.Max(-maxRatioAdjust, math.Min(maxRatioAdjust, adjust))
		s.ratio = 1 + adjust
		s.resampler.SetRatio(s.ratio)
	}

	if s.logCount < 5 && math.Abs(s.syncError) > audio.MsecToTime(10) {
		log.Printf("Zone %s sync error %.1fms", s.cfg.Name, s.syncError/1000)
		s.logCount++
	}
}

// queueStreamer feeds the sink queue into the beep chain. It is only
// streamed with s.mu held and pads with silence on underrun.
type queueStreamer struct {
	s *SoftSink
}

func (q *queueStreamer) Stream(samples [][2]float64) (int, bool) {
	n := copy(samples, q.s.pcm)
	q.s.pcm = q.s.pcm[n:]
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (q *queueStreamer) Err() error {
	return nil
}
