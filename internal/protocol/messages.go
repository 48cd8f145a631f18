// ABOUTME: Wire messages exchanged with a stream server
// ABOUTME: JSON control envelopes plus the binary audio chunk header
package protocol

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// Message is the envelope for every JSON message
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Message types
const (
	TypeClientHello  = "client/hello"
	TypeServerHello  = "server/hello"
	TypePlayerUpdate = "player/update"
	TypeClientTime   = "client/time"
	TypeServerTime   = "server/time"
	TypeCommand      = "server/command"
	TypeStreamStart  = "stream/start"
	TypeMetadata     = "stream/metadata"
)

// ClientHello is sent first on every connection
type ClientHello struct {
	ClientID       string         `json:"client_id"`
	Name           string         `json:"name"`
	Version        int            `json:"version"`
	SupportedRoles []string       `json:"supported_roles"`
	DeviceInfo     *DeviceInfo    `json:"device_info,omitempty"`
	PlayerSupport  *PlayerSupport `json:"player_support,omitempty"`
}

type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// PlayerSupport lists the formats the pipeline decodes and the bitstreams the
// zones can pass through
type PlayerSupport struct {
	SupportFormats    []AudioFormat `json:"support_formats,omitempty"`
	Passthrough       []string      `json:"passthrough,omitempty"`
	BufferCapacity    int           `json:"buffer_capacity,omitempty"`
	SupportedCommands []string      `json:"supported_commands,omitempty"`
}

type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ClientState reports the pipeline state to the server
type ClientState struct {
	State  string `json:"state"` // "playing", "paused" or "idle"
	Volume int    `json:"volume"`
	Muted  bool   `json:"muted"`
}

// ServerCommand is a transport request: "play", "pause", "flush", "volume"
// or "mute"
type ServerCommand struct {
	Command string `json:"command"`
	Volume  int    `json:"volume,omitempty"`
	Mute    bool   `json:"mute,omitempty"`
}

// StreamStart announces the format of the chunks that follow
type StreamStart struct {
	Codec         string `json:"codec"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	BitDepth      int    `json:"bit_depth"`
	ChannelLayout uint64 `json:"channel_layout,omitempty"`
	Profile       int    `json:"profile,omitempty"`
	FrameSamples  int    `json:"frame_samples,omitempty"`
	CodecHeader   string `json:"codec_header,omitempty"` // base64
}

// StreamInfo converts the announcement to decoder hints
func (s StreamStart) StreamInfo() (audio.StreamInfo, error) {
	var header []byte
	if s.CodecHeader != "" {
		var err error
		header, err = base64.StdEncoding.DecodeString(s.CodecHeader)
		if err != nil {
			return audio.StreamInfo{}, fmt.Errorf("invalid codec header: %w", err)
		}
	}
	return audio.StreamInfo{
		Codec:         s.Codec,
		SampleRate:    s.SampleRate,
		Channels:      s.Channels,
		ChannelLayout: s.ChannelLayout,
		BitDepth:      s.BitDepth,
		Profile:       s.Profile,
		CodecHeader:   header,
		FrameSamples:  s.FrameSamples,
		Realtime:      true,
	}, nil
}

type StreamMetadata struct {
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}

// ClientTime starts a clock exchange; timestamps are microseconds
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"`
}

type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"`
	ServerReceived    int64 `json:"server_received"`
	ServerTransmitted int64 `json:"server_transmitted"`
}

// Binary chunk layout: one type byte, a big-endian server timestamp in
// microseconds, then the encoded packet.
const (
	ChunkTypeAudio  = 0
	ChunkHeaderSize = 9
)

// AudioChunk is a timestamped packet from the server
type AudioChunk struct {
	Timestamp int64
	Data      []byte
}

// ParseAudioChunk decodes a binary websocket message
func ParseAudioChunk(data []byte) (AudioChunk, error) {
	if len(data) < ChunkHeaderSize {
		return AudioChunk{}, fmt.Errorf("audio chunk too short: %d bytes", len(data))
	}
	if data[0] != ChunkTypeAudio {
		return AudioChunk{}, fmt.Errorf("unknown binary message type: %d", data[0])
	}
	return AudioChunk{
		Timestamp: int64(binary.BigEndian.Uint64(data[1:ChunkHeaderSize])),
		Data:      data[ChunkHeaderSize:],
	}, nil
}

// Bytes encodes the chunk for the wire
func (c AudioChunk) Bytes() []byte {
	out := make([]byte, ChunkHeaderSize+len(c.Data))
	out[0] = ChunkTypeAudio
	binary.BigEndian.PutUint64(out[1:], uint64(c.Timestamp))
	copy(out[ChunkHeaderSize:], c.Data)
	return out
}
