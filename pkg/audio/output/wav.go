// ABOUTME: WAV file audio output
// ABOUTME: Records a zone to 24-bit WAV files paced at real time
package output

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM is the RIFF audio format tag for integer PCM
const wavFormatPCM = 1

// WAV writes everything a zone plays to disk. Each format change starts a
// new file: out.wav, out-2.wav, ...
type WAV struct {
	volume
	mu         sync.Mutex
	pace       *pacer
	path       string
	segment    int
	file       *os.File
	encoder    *wav.Encoder
	buf        *goaudio.IntBuffer
	sampleRate int
	channels   int
}

// NewWAV creates a WAV recorder writing to path
func NewWAV(path string) *WAV {
	return &WAV{
		volume: newVolume("wav"),
		pace:   newPacer(),
		path:   path,
	}
}

// Open starts a file for the format, closing any previous one
func (w *WAV) Open(sampleRate, channels int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.encoder != nil && w.sampleRate == sampleRate && w.channels == channels {
		return nil
	}
	if err := w.closeFile(); err != nil {
		return err
	}

	w.segment++
	path := w.segmentPath()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}

	w.file = f
	w.encoder = wav.NewEncoder(f, sampleRate, 24, channels, wavFormatPCM)
	w.buf = &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 24,
	}
	w.sampleRate = sampleRate
	w.channels = channels
	w.pace.reset()

	log.Printf("WAV output recording to %s: %dHz, %d channels", path, sampleRate, channels)
	return nil
}

func (w *WAV) segmentPath() string {
	if w.segment <= 1 {
		return w.path
	}
	base := strings.TrimSuffix(w.path, ".wav")
	return fmt.Sprintf("%s-%d.wav", base, w.segment)
}

// Write appends samples to the file
func (w *WAV) Write(samples []int32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.encoder == nil {
		return fmt.Errorf("output not initialized")
	}

	samples = w.apply(samples)
	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	for i, s := range samples {
		w.buf.Data[i] = int(s)
	}

	if err := w.encoder.Write(w.buf); err != nil {
		return fmt.Errorf("wav write failed: %w", err)
	}
	w.pace.add(samplesDuration(len(samples), w.sampleRate, w.channels))
	return nil
}

// Buffered returns recorded audio that has not "played" yet
func (w *WAV) Buffered() time.Duration {
	return w.pace.buffered()
}

// Latency is zero for a file
func (w *WAV) Latency() time.Duration {
	return 0
}

// Close finalizes the WAV header
func (w *WAV) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeFile()
}

func (w *WAV) closeFile() error {
	if w.encoder == nil {
		return nil
	}
	err := w.encoder.Close()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.encoder = nil
	w.file = nil
	if err != nil {
		return fmt.Errorf("failed to finalize wav file: %w", err)
	}
	return nil
}
