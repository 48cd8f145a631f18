// ABOUTME: Tests for the software sink
// ABOUTME: Tests format setup, partial acceptance, delay and passthrough negotiation
package sink

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio/output"
)

type fixedClock float64

func (c fixedClock) GetClock() float64 { return float64(c) }

func pcmFrame(nb, rate, channels int, pts float64) *audio.Frame {
	data := make([]byte, nb*channels*4)
	for i := 0; i < nb*channels; i++ {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(int32(1000)))
	}
	return &audio.Frame{
		Data:      [][]byte{data},
		Planes:    1,
		NbFrames:  nb,
		FrameSize: channels * 4,
		PTS:       pts,
		Duration:  float64(nb) * audio.TimeBase / float64(rate),
		Format: audio.Format{
			SampleRate: rate,
			Channels:   channels,
			Layout:     audio.DefaultLayout(channels),
			DataFormat: audio.SampleFormatS24,
		},
	}
}

func newTestSink(t *testing.T, latency time.Duration) *SoftSink {
	t.Helper()
	cfg := DefaultConfig("test")
	cfg.BufferTime = 100 * time.Millisecond
	s := NewSoftSink(cfg, output.NewNull(latency), fixedClock(0))
	t.Cleanup(func() { s.Destroy(false) })
	return s
}

func TestSoftSinkCreate(t *testing.T) {
	s := newTestSink(t, 0)
	frame := pcmFrame(480, 48000, 2, 0)

	if s.IsValidFormat(frame) {
		t.Error("expected invalid format before create")
	}
	if !s.Create(frame, "pcm", false) {
		t.Fatal("create failed")
	}
	if !s.IsValidFormat(frame) {
		t.Error("expected valid format after create")
	}

	other := pcmFrame(480, 44100, 2, 0)
	if s.IsValidFormat(other) {
		t.Error("expected sample rate change to invalidate format")
	}
}

func TestSoftSinkPartialAccept(t *testing.T) {
	s := newTestSink(t, 0)
	frame := pcmFrame(9600, 48000, 2, 0) // 200ms into a 100ms buffer

	if !s.Create(frame, "pcm", false) {
		t.Fatal("create failed")
	}

	n := s.AddPackets(frame)
	if n != 4800 {
		t.Fatalf("expected 4800 frames accepted, got %d", n)
	}
	frame.FramesOut += n

	// Paused sink does not drain, so the next add times out
	if got := s.AddPackets(frame); got != 0 {
		t.Errorf("expected full sink to accept 0, got %d", got)
	}

	if ct := s.CacheTime(); math.Abs(ct-0.1) > 0.001 {
		t.Errorf("expected 0.1s cached, got %f", ct)
	}
}

func TestSoftSinkDelayIncludesLatency(t *testing.T) {
	s := newTestSink(t, 50*time.Millisecond)
	frame := pcmFrame(2400, 48000, 2, 1000000)

	s.Create(frame, "pcm", false)
	s.AddPackets(frame)

	// 50ms queued + 50ms latency
	if d := s.Delay(); math.Abs(d-100000) > 1000 {
		t.Errorf("expected ~100000µs delay, got %f", d)
	}

	// Last sample added ends at 1.05s
	if pts := s.PlayingPts(); math.Abs(pts-950000) > 1000 {
		t.Errorf("expected playing pts ~950000, got %f", pts)
	}
}

func TestSoftSinkFlush(t *testing.T) {
	s := newTestSink(t, 0)
	frame := pcmFrame(2400, 48000, 2, 0)

	s.Create(frame, "pcm", false)
	s.AddPackets(frame)
	s.Flush()

	if s.CacheTime() != 0 {
		t.Errorf("expected empty cache after flush, got %f", s.CacheTime())
	}
	if s.PlayingPts() != audio.NoPTS {
		t.Error("expected no playing pts after flush")
	}
}

func TestSoftSinkAbortAddPackets(t *testing.T) {
	s := newTestSink(t, 0)
	frame := pcmFrame(480, 48000, 2, 0)
	s.Create(frame, "pcm", false)

	s.AbortAddPackets()
	if n := s.AddPackets(frame); n != 0 {
		t.Errorf("expected aborted sink to accept nothing, got %d", n)
	}

	s.Flush()
	if n := s.AddPackets(frame); n != 480 {
		t.Errorf("expected flush to clear abort, accepted %d", n)
	}
}

func TestSoftSinkDRC(t *testing.T) {
	s := newTestSink(t, 0)
	s.Create(pcmFrame(480, 48000, 2, 0), "pcm", false)

	s.SetDynamicRangeCompression(600) // +6dB
	if g := s.gain.Gain; math.Abs(g-(math.Pow(10, 0.3)-1)) > 1e-9 {
		t.Errorf("unexpected gain %f", g)
	}
}

func TestSyncErrorCorrection(t *testing.T) {
	s := newTestSink(t, 0)
	s.syncError = 30000

	s.SetSyncErrorCorrection(-30000)
	if s.SyncError() != 0 {
		t.Errorf("expected corrected error 0, got %f", s.SyncError())
	}
}

func TestPassthroughStreamType(t *testing.T) {
	tests := []struct {
		name    string
		out     output.Output
		allowed []audio.StreamType
		codec   string
		profile int
		want    audio.StreamType
	}{
		{"ac3 allowed", output.NewNull(0), []audio.StreamType{audio.StreamTypeAC3}, "ac3", 0, audio.StreamTypeAC3},
		{"ac3 not allowed", output.NewNull(0), nil, "ac3", 0, audio.StreamTypeNone},
		{"dts-hd falls back to core", output.NewNull(0), []audio.StreamType{audio.StreamTypeDTS}, "dts", audio.ProfileDTSHDMA, audio.StreamTypeDTS},
		{"dts-hd", output.NewNull(0), []audio.StreamType{audio.StreamTypeDTSHD}, "dts", audio.ProfileDTSHDMA, audio.StreamTypeDTSHD},
		{"pcm never", output.NewNull(0), []audio.StreamType{audio.StreamTypeAC3}, "pcm", 0, audio.StreamTypeNone},
		{"wav cannot carry bitstreams", output.NewWAV("unused.wav"), []audio.StreamType{audio.StreamTypeAC3}, "ac3", 0, audio.StreamTypeNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("test")
			cfg.Passthrough = tt.allowed
			s := NewSoftSink(cfg, tt.out, nil)

			if got := s.PassthroughStreamType(tt.codec, 48000, tt.profile); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestToStereoCenterMix(t *testing.T) {
	frame := pcmFrame(1, 48000, 3, 0)
	frame.Format.Layout = audio.ChannelLayout{audio.ChFL, audio.ChFR, audio.ChFC}
	frame.HasDownmix = true
	frame.CenterMixLevel = 0.5

	out := toStereo(frame, 0, 1)
	want := audio.SampleToFloat(1000) * 1.5
	if math.Abs(out[0][0]-want) > 1e-12 || math.Abs(out[0][1]-want) > 1e-12 {
		t.Errorf("expected %f on both channels, got %v", want, out[0])
	}
}

func TestZonesFactory(t *testing.T) {
	zones, err := NewZones(Zone{Config: DefaultConfig("main"), Output: output.NewNull(0)}, nil, nil)
	if err != nil {
		t.Fatalf("failed to build zones: %v", err)
	}

	factory := zones.Factory()
	if factory(Primary) != Sink(zones.Get(Primary)) {
		t.Error("expected primary sink from factory")
	}
	if !factory(Secondary).IsDisabled() {
		t.Error("expected missing secondary zone to be disabled")
	}
	if zones.HasSecondary() {
		t.Error("expected no configured secondary")
	}
}

func TestSoftSinkDrainPlaysOutTail(t *testing.T) {
	out := output.NewNull(0)
	s := NewSoftSink(DefaultConfig("test"), out, fixedClock(0))
	t.Cleanup(func() { s.Destroy(false) })

	// fewer frames than the resampler keeps in reserve during normal play
	frame := pcmFrame(1300, 48000, 2, 0)
	if !s.Create(frame, "pcm", false) {
		t.Fatal("create failed")
	}
	if n := s.AddPackets(frame); n != 1300 {
		t.Fatalf("expected 1300 frames accepted, got %d", n)
	}
	s.Resume()

	start := time.Now()
	s.Drain()
	elapsed := time.Since(start)

	if got := out.SamplesWritten(); got < 1300*2 {
		t.Errorf("expected at least %d samples written, got %d", 1300*2, got)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("drain of 27ms took %v", elapsed)
	}
	if s.CacheTime() != 0 {
		t.Errorf("expected empty cache after drain, got %f", s.CacheTime())
	}

	// the sink keeps working after a drain
	if n := s.AddPackets(pcmFrame(480, 48000, 2, 0)); n != 480 {
		t.Errorf("expected 480 frames accepted after drain, got %d", n)
	}
}

func TestSoftSinkDestroyWaitPlaysOut(t *testing.T) {
	out := output.NewNull(0)
	s := NewSoftSink(DefaultConfig("test"), out, fixedClock(0))

	frame := pcmFrame(2400, 48000, 2, 0)
	if !s.Create(frame, "pcm", false) {
		t.Fatal("create failed")
	}
	s.AddPackets(frame)

	start := time.Now()
	s.Destroy(true)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("destroy with wait took %v", elapsed)
	}
	if got := out.SamplesWritten(); got < 2400*2 {
		t.Errorf("expected at least %d samples written, got %d", 2400*2, got)
	}
	if s.IsValidFormat(frame) {
		t.Error("expected destroyed sink to reject the format")
	}
}

func TestSoftSinkAbortWakesAddPackets(t *testing.T) {
	s := newTestSink(t, 0)
	frame := pcmFrame(4800, 48000, 2, 0)
	s.Create(frame, "pcm", false)
	if n := s.AddPackets(frame); n != 4800 {
		t.Fatalf("expected buffer filled with 4800 frames, got %d", n)
	}

	// paused and full, so this add waits for space
	result := make(chan int, 1)
	start := time.Now()
	go func() { result <- s.AddPackets(pcmFrame(480, 48000, 2, 0)) }()

	time.Sleep(20 * time.Millisecond)
	s.AbortAddPackets()

	select {
	case n := <-result:
		if n != 0 {
			t.Errorf("expected aborted add to accept 0, got %d", n)
		}
		if elapsed := time.Since(start); elapsed >= addTimeout {
			t.Errorf("add returned after %v, expected abort to wake it early", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("AddPackets did not return after abort")
	}
}

func TestResampleRatioSteersAgainstSyncError(t *testing.T) {
	tests := []struct {
		name     string
		resample bool
		ahead    bool
	}{
		{"resample sink ahead of clock", true, true},
		{"resample sink behind clock", true, false},
		{"no resample keeps ratio", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// frames carry 1s timestamps, the clock sits at 1s plus or minus 100ms
			clk := fixedClock(900000)
			if !tt.ahead {
				clk = fixedClock(1100000)
			}
			cfg := DefaultConfig("test")
			s := NewSoftSink(cfg, output.NewNull(0), clk)
			defer s.Destroy(false)

			frame := pcmFrame(2400, 48000, 2, 1000000)
			s.Create(frame, "pcm", tt.resample)
			s.AddPackets(frame)
			s.Resume()
			s.measure()

			ratio := s.ResampleRatio()
			switch {
			case !tt.resample && ratio != 1:
				t.Errorf("expected ratio 1 without resample, got %f", ratio)
			case tt.resample && tt.ahead && ratio >= 1:
				t.Errorf("expected ratio below 1 when ahead, got %f", ratio)
			case tt.resample && !tt.ahead && ratio <= 1:
				t.Errorf("expected ratio above 1 when behind, got %f", ratio)
			}
			if math.Abs(ratio-1) > maxRatioAdjust+1e-9 {
				t.Errorf("ratio %f exceeds the adjust bound", ratio)
			}
		})
	}
}
