// ABOUTME: Tests for stream wire messages
// ABOUTME: Tests chunk framing and stream announcement conversion
package protocol

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestAudioChunkRoundTrip(t *testing.T) {
	chunk := AudioChunk{Timestamp: 1234567890123, Data: []byte{1, 2, 3}}

	got, err := ParseAudioChunk(chunk.Bytes())
	if err != nil {
		t.Fatalf("failed to parse chunk: %v", err)
	}
	if got.Timestamp != chunk.Timestamp || !bytes.Equal(got.Data, chunk.Data) {
		t.Errorf("expected %+v, got %+v", chunk, got)
	}
}

func TestParseAudioChunkErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"short", []byte{0, 1, 2}, "audio chunk too short: 3 bytes"},
		{"wrong type", append([]byte{7}, make([]byte, 8)...), "unknown binary message type: 7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAudioChunk(tt.data)
			if err == nil || err.Error() != tt.want {
				t.Errorf("expected error %q, got %v", tt.want, err)
			}
		})
	}
}

func TestStreamStartInfo(t *testing.T) {
	start := StreamStart{
		Codec:       "flac",
		SampleRate:  96000,
		Channels:    6,
		BitDepth:    24,
		CodecHeader: base64.StdEncoding.EncodeToString([]byte("fLaC")),
	}

	info, err := start.StreamInfo()
	if err != nil {
		t.Fatalf("failed to convert: %v", err)
	}
	if !info.Realtime {
		t.Error("expected network streams to be realtime")
	}
	if string(info.CodecHeader) != "fLaC" || info.SampleRate != 96000 || info.Channels != 6 {
		t.Errorf("unexpected hints: %+v", info)
	}

	start.CodecHeader = "!!"
	if _, err := start.StreamInfo(); err == nil {
		t.Error("expected error for bad base64")
	}
}
