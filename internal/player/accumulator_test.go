// ABOUTME: Tests for the frame merge buffer
// ABOUTME: Tests merging, capacity growth and format-change hand-over
package player

import (
	"testing"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

func TestAccumulatorMergesToTarget(t *testing.T) {
	codec := newFakeCodec(48000, false)
	for i := 0; i < 4; i++ {
		codec.Decode(packet(1024, float64(i)*5333)) // 256 frames each
	}

	acc := NewAccumulator(512)
	if !acc.Fill(codec) {
		t.Fatal("expected merged frame")
	}

	var f audio.Frame
	if !acc.Take(&f) {
		t.Fatal("expected take to succeed")
	}
	if f.NbFrames != 512 {
		t.Errorf("expected 512 merged frames, got %d", f.NbFrames)
	}
	if f.PTS != 0 {
		t.Errorf("expected pts of first frame, got %f", f.PTS)
	}
	if len(f.Data[0]) != 2048 {
		t.Errorf("expected 2048 bytes, got %d", len(f.Data[0]))
	}
	wantDur := 512 * audio.TimeBase / 48000
	if f.Duration != wantDur {
		t.Errorf("expected duration %f, got %f", wantDur, f.Duration)
	}
	if acc.Buffered() != 0 {
		t.Errorf("expected empty after take, got %d", acc.Buffered())
	}

	// the remaining two frames form the next packet
	acc.Fill(codec)
	acc.Take(&f)
	if f.NbFrames != 512 || f.PTS != 2*5333 {
		t.Errorf("expected second merge of 512 at 10666, got %d at %f", f.NbFrames, f.PTS)
	}
}

func TestAccumulatorSingleFrameMode(t *testing.T) {
	codec := newFakeCodec(48000, false)
	codec.Decode(packet(1024, 0))
	codec.Decode(packet(1024, 5333))

	acc := NewAccumulator(0)
	acc.Fill(codec)
	if acc.Buffered() != 256 {
		t.Errorf("expected one frame of 256, got %d", acc.Buffered())
	}
}

func TestAccumulatorCapacityGrowsInSteps(t *testing.T) {
	codec := newFakeCodec(48000, false)
	codec.maxPending = 100
	for i := 0; i < 12; i++ {
		codec.Decode(packet(4096, audio.NoPTS))
	}

	acc := NewAccumulator(12 * 1024)
	acc.Fill(codec)

	if acc.Capacity()%AccumulatorGrowStep != 0 {
		t.Errorf("expected capacity in %d byte steps, got %d", AccumulatorGrowStep, acc.Capacity())
	}
	if acc.Capacity() != 2*AccumulatorGrowStep {
		t.Errorf("expected 48KiB to need 64KiB, got %d", acc.Capacity())
	}
	if used := acc.planeSize(); used > acc.Capacity() {
		t.Errorf("buffered %d bytes beyond capacity %d", used, acc.Capacity())
	}
}

func TestAccumulatorHoldsBackFormatChange(t *testing.T) {
	codec := newFakeCodec(48000, false)
	codec.Decode(packet(1024, 0))
	codec.rate = 44100
	codec.Decode(packet(1024, 9000))

	acc := NewAccumulator(4096)
	acc.Fill(codec)
	if acc.Buffered() != 512 {
		t.Fatalf("expected merged plus pending frames, got %d", acc.Buffered())
	}

	var f audio.Frame
	acc.Take(&f)
	if f.NbFrames != 256 || f.Format.SampleRate != 48000 {
		t.Errorf("expected first format alone, got %d frames at %dHz", f.NbFrames, f.Format.SampleRate)
	}

	acc.Fill(codec)
	acc.Take(&f)
	if f.NbFrames != 256 || f.Format.SampleRate != 44100 || f.PTS != 9000 {
		t.Errorf("expected pending frame next, got %d frames at %dHz pts %f", f.NbFrames, f.Format.SampleRate, f.PTS)
	}
}

func TestAccumulatorClear(t *testing.T) {
	codec := newFakeCodec(48000, false)
	codec.Decode(packet(1024, 0))
	codec.rate = 44100
	codec.Decode(packet(1024, 0))

	acc := NewAccumulator(4096)
	acc.Fill(codec)
	acc.Clear()

	if acc.Buffered() != 0 {
		t.Errorf("expected nothing buffered, got %d", acc.Buffered())
	}
	var f audio.Frame
	if acc.Take(&f) {
		t.Error("expected nothing to take")
	}
	if acc.Capacity() == 0 {
		t.Error("expected capacity kept across clear")
	}
}
