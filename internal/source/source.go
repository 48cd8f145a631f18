// ABOUTME: Packet sources feeding the render pipeline
// ABOUTME: Opens files, generated tones and network streams behind one interface
package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Resonate-Protocol/resonate-zones/internal/discovery"
	"github.com/Resonate-Protocol/resonate-zones/internal/protocol"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

var (
	// ErrClosed is returned once a source has been closed
	ErrClosed = errors.New("source closed")

	// ErrFormatChanged is returned once when the stream format changes; the
	// caller should reopen the pipeline with Hints before reading on
	ErrFormatChanged = errors.New("stream format changed")
)

// Source produces demuxed packets with stream-relative timestamps in µs.
// ReadPacket returns io.EOF at the end of a finite source.
type Source interface {
	Hints() audio.StreamInfo
	ReadPacket(ctx context.Context) (*audio.Packet, error)
	Close() error
}

// Options tunes sources that need more than a path
type Options struct {
	// Name identifies this host to a stream server
	Name string

	// JitterBuffer is how far ahead of its play time a network packet is
	// released to the pipeline
	JitterBuffer time.Duration

	// Device and Support are announced to stream servers
	Device  protocol.DeviceInfo
	Support protocol.PlayerSupport

	// Tone settings for tone: URIs
	ToneCodec    string
	ToneDuration time.Duration
}

func (o Options) stream(addr string) StreamConfig {
	return StreamConfig{
		ServerAddr:   addr,
		Name:         o.Name,
		JitterBuffer: o.JitterBuffer,
		DeviceInfo:   o.Device,
		Support:      o.Support,
	}
}

// Open picks a source for uri:
//
//	tone[:freq]        generated sine
//	ws://host:port     network stream
//	mdns               first network stream server found on the LAN
//	*.wav, *.mp3       local file
func Open(ctx context.Context, uri string, opts Options) (Source, error) {
	switch {
	case uri == "tone" || strings.HasPrefix(uri, "tone:"):
		freq := 440.0
		if rest := strings.TrimPrefix(uri, "tone"); rest != "" {
			f, err := strconv.ParseFloat(strings.TrimPrefix(rest, ":"), 64)
			if err != nil || f <= 0 {
				return nil, fmt.Errorf("invalid tone frequency: %s", rest[1:])
			}
			freq = f
		}
		return NewTone(ToneConfig{
			Codec:     opts.ToneCodec,
			Frequency: freq,
			Duration:  opts.ToneDuration,
		})

	case uri == "mdns":
		m := discovery.NewManager(discovery.Config{})
		dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		server, err := m.First(dctx)
		if err != nil {
			return nil, err
		}
		return DialStream(ctx, opts.stream(server.Addr()))

	case strings.HasPrefix(uri, "ws://"):
		return DialStream(ctx, opts.stream(strings.TrimPrefix(uri, "ws://")))
	}

	switch strings.ToLower(filepath.Ext(uri)) {
	case ".wav":
		return OpenWAV(uri)
	case ".mp3":
		return OpenMP3(uri)
	}
	return nil, fmt.Errorf("unsupported source: %s", uri)
}

func framesToTime(frames int64, sampleRate int) float64 {
	return float64(frames) * audio.TimeBase / float64(sampleRate)
}
