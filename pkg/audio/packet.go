// ABOUTME: Compressed packet definition
// ABOUTME: Carries demuxed bytes and their timing to the codecs
package audio

// Packet is one demuxed unit of compressed audio
type Packet struct {
	Data     []byte
	PTS      float64 // NoPTS if unknown
	DTS      float64 // NoPTS if unknown
	Duration float64 // 0 if unknown
}

// Size returns the payload size in bytes
func (p *Packet) Size() int {
	return len(p.Data)
}
