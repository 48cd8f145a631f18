// ABOUTME: Oto-based audio output implementation
// ABOUTME: Handles PCM playback with software volume control using oto library
package output

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

// oto allows one context per process, shared by every Oto output
var sharedOto struct {
	ctx        *oto.Context
	sampleRate int
	channels   int
}

// Oto output implementation using oto library
type Oto struct {
	volume
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	sampleRate int
	channels   int
	latency    time.Duration
	ready      bool
}

// NewOto creates a new Oto output; latency is the extra playout delay of
// the attached speakers
func NewOto(latency time.Duration) *Oto {
	return &Oto{
		volume:  newVolume("oto"),
		latency: latency,
	}
}

// Open initializes the output device
func (o *Oto) Open(sampleRate, channels int) error {
	if o.ready && o.sampleRate == sampleRate && o.channels == channels {
		log.Printf("Audio output already initialized with same format, reusing player")
		return nil
	}

	if sharedOto.ctx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			return fmt.Errorf("failed to create oto context: %w", err)
		}
		<-readyChan

		sharedOto.ctx = ctx
		sharedOto.sampleRate = sampleRate
		sharedOto.channels = channels
	} else if sharedOto.sampleRate != sampleRate || sharedOto.channels != channels {
		// The context cannot be reinitialized, so the sink has to convert
		return fmt.Errorf("oto context fixed at %dHz %dch, cannot open %dHz %dch",
			sharedOto.sampleRate, sharedOto.channels, sampleRate, channels)
	}

	o.closePlayer()

	o.sampleRate = sampleRate
	o.channels = channels

	// Create pipe for continuous streaming
	o.pipeReader, o.pipeWriter = io.Pipe()

	// Create persistent player that reads from the pipe
	o.player = sharedOto.ctx.NewPlayer(o.pipeReader)
	o.player.Play()

	o.ready = true

	log.Printf("Audio output initialized: %dHz, %d channels", sampleRate, channels)

	return nil
}

// Write outputs audio samples (blocks until the player takes them)
func (o *Oto) Write(samples []int32) error {
	if !o.ready {
		return fmt.Errorf("output not initialized")
	}

	samples = o.apply(samples)

	// oto plays 16-bit
	output := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(audio.SampleToInt16(s)))
	}

	if _, err := o.pipeWriter.Write(output); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}

	return nil
}

// Buffered returns audio queued inside the oto player
func (o *Oto) Buffered() time.Duration {
	if !o.ready || o.player == nil {
		return 0
	}
	bytesPerSecond := o.sampleRate * o.channels * 2
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(o.player.BufferedSize()) * time.Second / time.Duration(bytesPerSecond)
}

// Latency returns the configured speaker latency
func (o *Oto) Latency() time.Duration {
	return o.latency
}

func (o *Oto) closePlayer() {
	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
}

// Close releases the player; the shared context stays for later opens
func (o *Oto) Close() error {
	o.closePlayer()
	o.ready = false
	return nil
}
