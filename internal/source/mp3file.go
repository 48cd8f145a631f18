// ABOUTME: MP3 file source
// ABOUTME: Splits an MPEG audio file into one packet per Layer III frame
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// maxResyncBytes bounds how much junk is skipped looking for a frame header
const maxResyncBytes = 64 * 1024

type mpegHeader struct {
	version    byte // 3 = MPEG-1, 2 = MPEG-2, 0 = MPEG-2.5
	bitrate    int  // kbit/s
	sampleRate int
	channels   int
	padding    bool
}

var mpegSampleRates = map[byte][3]int{
	3: {44100, 48000, 32000},
	2: {22050, 24000, 16000},
	0: {11025, 12000, 8000},
}

var (
	layer3BitratesV1 = [15]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320}
	layer3BitratesV2 = [15]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160}
)

// parseMPEGHeader decodes a Layer III frame header. Free-format frames are
// rejected because their length cannot be computed from the header.
func parseMPEGHeader(hdr []byte) (mpegHeader, bool) {
	if len(hdr) < 4 || hdr[0] != 0xFF || hdr[1]&0xE0 != 0xE0 {
		return mpegHeader{}, false
	}
	version := (hdr[1] >> 3) & 0x03
	layer := (hdr[1] >> 1) & 0x03
	if version == 1 || layer != 1 {
		return mpegHeader{}, false
	}
	bitrateIndex := hdr[2] >> 4
	rateIndex := (hdr[2] >> 2) & 0x03
	if bitrateIndex == 0 || bitrateIndex == 0x0F || rateIndex == 3 {
		return mpegHeader{}, false
	}

	bitrate := layer3BitratesV1[bitrateIndex]
	if version != 3 {
		bitrate = layer3BitratesV2[bitrateIndex]
	}
	channels := 2
	if hdr[3]>>6 == 3 {
		channels = 1
	}
	return mpegHeader{
		version:    version,
		bitrate:    bitrate,
		sampleRate: mpegSampleRates[version][rateIndex],
		channels:   channels,
		padding:    hdr[2]&0x02 != 0,
	}, true
}

func (h mpegHeader) samples() int {
	if h.version == 3 {
		return 1152
	}
	return 576
}

func (h mpegHeader) frameLength() int {
	coef := 144000
	if h.version != 3 {
		coef = 72000
	}
	n := coef * h.bitrate / h.sampleRate
	if h.padding {
		n++
	}
	return n
}

// MP3File is a Source splitting an MPEG Layer III file into frames
type MP3File struct {
	f       *os.File
	r       *bufio.Reader
	hints   audio.StreamInfo
	frames  int64
	skipped int
}

// OpenMP3 opens path, skips any ID3v2 tag and reads the first frame header
func OpenMP3(path string) (*MP3File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mp3: %w", err)
	}

	m := &MP3File{f: f, r: bufio.NewReaderSize(f, 16*1024)}
	if err := m.skipID3(); err != nil {
		f.Close()
		return nil, err
	}

	h, err := m.sync()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: no mpeg audio frame found: %w", path, err)
	}

	m.hints = audio.StreamInfo{
		Codec:        "mp3",
		SampleRate:   h.sampleRate,
		Channels:     h.channels,
		BitDepth:     16,
		FrameSamples: h.samples(),
	}
	return m, nil
}

func (m *MP3File) skipID3() error {
	hdr, err := m.r.Peek(10)
	if err != nil || string(hdr[:3]) != "ID3" {
		return nil
	}
	size := int(hdr[6]&0x7F)<<21 | int(hdr[7]&0x7F)<<14 | int(hdr[8]&0x7F)<<7 | int(hdr[9]&0x7F)
	size += 10
	if hdr[5]&0x10 != 0 {
		size += 10 // footer
	}
	if _, err := m.r.Discard(size); err != nil {
		return fmt.Errorf("truncated id3 tag: %w", err)
	}
	return nil
}

// sync advances to the next frame header without consuming it
func (m *MP3File) sync() (mpegHeader, error) {
	for skipped := 0; skipped < maxResyncBytes; skipped++ {
		hdr, err := m.r.Peek(4)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, bufio.ErrBufferFull) {
				err = io.EOF
			}
			return mpegHeader{}, err
		}
		if h, ok := parseMPEGHeader(hdr); ok {
			if skipped > 0 {
				m.skipped += skipped
			}
			return h, nil
		}
		m.r.Discard(1)
	}
	return mpegHeader{}, fmt.Errorf("lost frame sync after %d bytes", maxResyncBytes)
}

// Hints returns the format of the first frame
func (m *MP3File) Hints() audio.StreamInfo {
	return m.hints
}

// ReadPacket returns the next whole frame
func (m *MP3File) ReadPacket(ctx context.Context) (*audio.Packet, error) {
	if m.f == nil {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, err := m.sync()
	if err != nil {
		return nil, err
	}

	data := make([]byte, h.frameLength())
	if _, err := io.ReadFull(m.r, data); err != nil {
		// a truncated last frame is dropped
		return nil, io.EOF
	}

	pkt := &audio.Packet{
		Data:     data,
		PTS:      framesToTime(m.frames, h.sampleRate),
		DTS:      audio.NoPTS,
		Duration: framesToTime(int64(h.samples()), h.sampleRate),
	}
	m.frames += int64(h.samples())
	return pkt, nil
}

// Close releases the file
func (m *MP3File) Close() error {
	if m.f == nil {
		return nil
	}
	if m.skipped > 0 {
		log.Printf("MP3 source skipped %d junk bytes", m.skipped)
	}
	err := m.f.Close()
	m.f = nil
	return err
}
