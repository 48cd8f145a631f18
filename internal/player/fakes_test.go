// ABOUTME: Test doubles for the render pipeline
// ABOUTME: Scripted codecs, recording sinks and a controllable clock
package player

import (
	"sync"

	"github.com/Resonate-Protocol/resonate-zones/internal/msgqueue"
	"github.com/Resonate-Protocol/resonate-zones/internal/sink"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio/decode"
)

// fakeCodec turns each packet into one frame of 16-bit stereo
type fakeCodec struct {
	name        string
	rate        int
	passthrough bool
	pending     []*audio.Frame
	maxPending  int
	decodeErr   error
	resets      int
	disposed    bool
}

func newFakeCodec(rate int, passthrough bool) *fakeCodec {
	return &fakeCodec{name: "fake", rate: rate, passthrough: passthrough, maxPending: 8}
}

func (c *fakeCodec) Decode(pkt *audio.Packet) (int, error) {
	if c.decodeErr != nil {
		return 0, c.decodeErr
	}
	if len(c.pending) >= c.maxPending {
		return 0, decode.ErrBufferFull
	}
	nb := len(pkt.Data) / 4
	c.pending = append(c.pending, &audio.Frame{
		Data:          [][]byte{append([]byte(nil), pkt.Data...)},
		Planes:        1,
		NbFrames:      nb,
		FrameSize:     4,
		PTS:           pkt.PTS,
		Duration:      float64(nb) * audio.TimeBase / float64(c.rate),
		Passthrough:   c.passthrough,
		Format:        c.Format(),
		BitsPerSample: 16,
	})
	return len(pkt.Data), nil
}

func (c *fakeCodec) GetData(frame *audio.Frame) bool {
	if len(c.pending) == 0 {
		frame.NbFrames = 0
		frame.FramesOut = 0
		return false
	}
	*frame = *c.pending[0]
	c.pending = c.pending[1:]
	return true
}

func (c *fakeCodec) NeedPassthrough() bool { return c.passthrough }

func (c *fakeCodec) Format() audio.Format {
	return audio.Format{
		Codec:      "pcm",
		SampleRate: c.rate,
		Channels:   2,
		BitDepth:   16,
		Layout:     audio.DefaultLayout(2),
		DataFormat: audio.SampleFormatS16,
	}
}

func (c *fakeCodec) Name() string { return c.name }

func (c *fakeCodec) Reset() {
	c.resets++
	c.pending = nil
}

func (c *fakeCodec) Dispose() {
	c.disposed = true
	c.pending = nil
}

// fakeCodecFactory builds fake codecs and remembers them
type fakeCodecFactory struct {
	created []*fakeCodec
	fail    map[bool]error // keyed by Options.Secondary
}

func (f *fakeCodecFactory) CreateAudioCodec(hints audio.StreamInfo, opts decode.Options) (decode.Codec, error) {
	if err := f.fail[opts.Secondary]; err != nil {
		return nil, err
	}
	rate := hints.SampleRate
	if rate == 0 {
		rate = 48000
	}
	c := newFakeCodec(rate, opts.AllowPassthrough && opts.StreamType != audio.StreamTypeNone)
	f.created = append(f.created, c)
	return c, nil
}

// fakeSink accepts audio up to an optional capacity and records it
type fakeSink struct {
	mu sync.Mutex

	delay      float64 // time base units
	cacheTotal float64 // seconds
	capacity   int     // frames, 0 for unlimited
	streamType audio.StreamType
	dumb       bool
	disabled   bool
	syncError  float64

	format      audio.Format
	valid       bool
	created     int
	destroyed   int
	waits       []bool
	buffered    int
	bufferedDur float64
	submissions [][]byte
	paused      bool
	resumes     int
	pauses      int
	flushes     int
	drains      int
	aborts      int
	resample    []bool
	drc         int64
	corrections []float64
}

func newFakeSink() *fakeSink {
	return &fakeSink{cacheTotal: 0.5, paused: true}
}

func (s *fakeSink) IsValidFormat(frame *audio.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid && frame.Format.Equal(s.format)
}

func (s *fakeSink) Create(frame *audio.Frame, codec string, useResample bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	s.valid = true
	s.format = frame.Format
	s.paused = true
	return true
}

func (s *fakeSink) Destroy(wait bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.valid {
		s.destroyed++
		s.waits = append(s.waits, wait)
	}
	s.valid = false
}

func (s *fakeSink) AddPackets(frame *audio.Frame) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := frame.Remaining()
	if s.capacity > 0 && s.buffered+n > s.capacity {
		n = s.capacity - s.buffered
	}
	if n <= 0 {
		return 0
	}
	off := frame.Offset()
	size := n * frame.FrameSize / frame.Planes
	s.submissions = append(s.submissions, append([]byte(nil), frame.Data[0][off:off+size]...))
	s.buffered += n
	s.bufferedDur += frame.DurationOf(n)
	return n
}

func (s *fakeSink) Delay() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

func (s *fakeSink) CacheTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.bufferedDur / audio.TimeBase; t < s.cacheTotal {
		return t
	}
	return s.cacheTotal
}

func (s *fakeSink) CacheTotal() float64 { return s.cacheTotal }
func (s *fakeSink) MaxDelay() float64   { return s.cacheTotal + 0.05 }
func (s *fakeSink) PlayingPts() float64 { return audio.NoPTS }

func (s *fakeSink) SetResampleMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resample = append(s.resample, on)
}

func (s *fakeSink) ResampleRatio() float64 { return 1.0 }

func (s *fakeSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	s.pauses++
}

func (s *fakeSink) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	s.resumes++
}

func (s *fakeSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	s.buffered = 0
	s.bufferedDur = 0
}

func (s *fakeSink) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drains++
	s.buffered = 0
	s.bufferedDur = 0
}

func (s *fakeSink) AbortAddPackets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborts++
}

func (s *fakeSink) SetDynamicRangeCompression(drc int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drc = drc
}

func (s *fakeSink) SyncError() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncError
}

func (s *fakeSink) SetSyncErrorCorrection(c float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrections = append(s.corrections, c)
	s.syncError += c
}

func (s *fakeSink) PassthroughStreamType(codec string, rate, profile int) audio.StreamType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamType
}

func (s *fakeSink) IsDumb() bool { return s.dumb }

func (s *fakeSink) IsDisabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled
}

func (s *fakeSink) setDelay(d float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *fakeSink) destroys() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.waits...)
}

func (s *fakeSink) stats() (created, submissions, resumes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created, len(s.submissions), s.resumes
}

// fakeClock returns a fixed position and applies every error adjustment
type fakeClock struct {
	mu             sync.Mutex
	now            float64
	adjustments    []float64
	maxSpeedAdjust []float64
}

func (c *fakeClock) GetClock() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) ErrorAdjust(err float64, tag string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adjustments = append(c.adjustments, err)
	c.now += err
	return err
}

func (c *fakeClock) SetMaxSpeedAdjust(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSpeedAdjust = append(c.maxSpeedAdjust, v)
}

// recorder collects posted events
type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event, 64)}
}

func (r *recorder) Post(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.ch <- ev:
	default:
	}
}

func (r *recorder) count(match func(Event) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if match(ev) {
			n++
		}
	}
	return n
}

// rig is a pipeline wired to fakes, driven synchronously by the test
type rig struct {
	p       *Player
	clock   *fakeClock
	codecs  *fakeCodecFactory
	sinks   [len(sink.Roles)]*fakeSink
	events  *recorder
	primary *fakeCodec
	second  *fakeCodec
}

func newRig(dual bool) *rig {
	r := &rig{
		clock:  &fakeClock{},
		codecs: &fakeCodecFactory{},
		events: newRecorder(),
	}
	for i := range r.sinks {
		r.sinks[i] = newFakeSink()
	}
	cfg := DefaultConfig()
	cfg.DualOutput = dual
	r.p = New(r.clock, func(role sink.Role) sink.Sink { return r.sinks[role] }, r.codecs, NewProcessInfo(), r.events, cfg)
	return r
}

// open installs codecs without starting the render goroutine
func (r *rig) open(hints audio.StreamInfo) {
	r.primary = newFakeCodec(hints.SampleRate, false)
	var codec2 decode.Codec
	if r.p.cfg.DualOutput {
		r.second = newFakeCodec(hints.SampleRate, false)
		codec2 = r.second
	}
	r.p.openStream(hints, r.primary, codec2)
	r.p.queue.Init()
}

// feed decodes one packet and runs the output step until both codecs are dry
func (r *rig) feed(pkt *audio.Packet) {
	r.p.handleMessage(&msgqueue.DataPacket{Packet: pkt})
	r.drain()
}

func (r *rig) drain() {
	for i := 0; i < 1000 && r.p.processDecoderOutput(); i++ {
	}
}

func pcmHints() audio.StreamInfo {
	return audio.StreamInfo{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}
}

func packet(size int, pts float64) *audio.Packet {
	data := make([]byte, size)
	for i := range data {
		data[i] = 0x11
	}
	return &audio.Packet{Data: data, PTS: pts, DTS: pts}
}
