// ABOUTME: Passthrough bitstream types
// ABOUTME: Identifies compressed formats a receiver may decode itself
package audio

// StreamType identifies a passthrough bitstream
type StreamType int

const (
	StreamTypeNone StreamType = iota
	StreamTypeAC3
	StreamTypeEAC3
	StreamTypeDTS
	StreamTypeDTSHD
	StreamTypeTrueHD
)

var streamTypeNames = map[StreamType]string{
	StreamTypeNone:   "none",
	StreamTypeAC3:    "ac3",
	StreamTypeEAC3:   "eac3",
	StreamTypeDTS:    "dts",
	StreamTypeDTSHD:  "dtshd",
	StreamTypeTrueHD: "truehd",
}

func (t StreamType) String() string {
	if name, ok := streamTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseStreamType maps a codec name to its bitstream type
func ParseStreamType(codec string) StreamType {
	for t, name := range streamTypeNames {
		if t != StreamTypeNone && name == codec {
			return t
		}
	}
	return StreamTypeNone
}

// DTS-HD profiles that need the high-resolution bitstream
const (
	ProfileDTS      = 0
	ProfileDTSHDHRA = 1
	ProfileDTSHDMA  = 2
)

// SamplesPerPacket returns the nominal samples carried by one packet
func (t StreamType) SamplesPerPacket() int {
	switch t {
	case StreamTypeAC3:
		return 1536
	case StreamTypeEAC3:
		return 1536
	case StreamTypeDTS, StreamTypeDTSHD:
		return 512
	case StreamTypeTrueHD:
		return 40 * 24 // 24 access units of 40 samples per MAT frame
	default:
		return 0
	}
}
