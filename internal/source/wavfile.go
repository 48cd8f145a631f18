// ABOUTME: WAV file source
// ABOUTME: Reads PCM from a RIFF file and emits fixed-size pcm packets
package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio/encode"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavPacketFrames is the number of sample frames per emitted packet
const wavPacketFrames = 1024

// WAVFile is a Source reading a 16 or 24-bit PCM WAV file
type WAVFile struct {
	f       *os.File
	dec     *wav.Decoder
	enc     encode.Encoder
	hints   audio.StreamInfo
	buf     *goaudio.IntBuffer
	samples []int32
	frames  int64
}

// OpenWAV opens path and reads its format
func OpenWAV(path string) (*WAVFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav: %w", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s: not a valid wav file", path)
	}

	bitDepth := int(dec.BitDepth)
	channels := int(dec.NumChans)
	rate := int(dec.SampleRate)

	format := audio.Format{Codec: "pcm", SampleRate: rate, Channels: channels, BitDepth: bitDepth}
	enc, err := encode.NewPCM(format)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &WAVFile{
		f:   f,
		dec: dec,
		enc: enc,
		hints: audio.StreamInfo{
			Codec:      "pcm",
			SampleRate: rate,
			Channels:   channels,
			BitDepth:   bitDepth,
		},
		buf: &goaudio.IntBuffer{
			Data:           make([]int, wavPacketFrames*channels),
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
			SourceBitDepth: bitDepth,
		},
		samples: make([]int32, 0, wavPacketFrames*channels),
	}, nil
}

// Hints returns the file format
func (w *WAVFile) Hints() audio.StreamInfo {
	return w.hints
}

// ReadPacket returns the next block of samples
func (w *WAVFile) ReadPacket(ctx context.Context) (*audio.Packet, error) {
	if w.f == nil {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, err := w.dec.PCMBuffer(w.buf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("wav read failed: %w", err)
	}

	channels := w.hints.Channels
	n -= n % channels
	if n == 0 {
		return nil, io.EOF
	}

	w.samples = w.samples[:0]
	for _, v := range w.buf.Data[:n] {
		s := int32(v)
		if w.hints.BitDepth == 16 {
			s = audio.SampleFromInt16(int16(v))
		}
		w.samples = append(w.samples, s)
	}

	data, err := w.enc.Encode(w.samples)
	if err != nil {
		return nil, err
	}

	nb := int64(n / channels)
	pkt := &audio.Packet{
		Data:     data,
		PTS:      framesToTime(w.frames, w.hints.SampleRate),
		DTS:      audio.NoPTS,
		Duration: framesToTime(nb, w.hints.SampleRate),
	}
	w.frames += nb
	return pkt, nil
}

// Close releases the file
func (w *WAVFile) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	w.enc.Close()
	return err
}
