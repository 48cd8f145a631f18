// ABOUTME: Channel layout helpers
// ABOUTME: Maps stream layout masks to ordered speaker lists
package audio

import "strings"

// Channel identifies a speaker position
type Channel int

const (
	ChFL Channel = iota
	ChFR
	ChFC
	ChLFE
	ChBL
	ChBR
	ChFLC
	ChFRC
	ChBC
	ChSL
	ChSR
)

var channelNames = map[Channel]string{
	ChFL: "FL", ChFR: "FR", ChFC: "FC", ChLFE: "LFE",
	ChBL: "BL", ChBR: "BR", ChFLC: "FLC", ChFRC: "FRC",
	ChBC: "BC", ChSL: "SL", ChSR: "SR",
}

func (c Channel) String() string {
	if name, ok := channelNames[c]; ok {
		return name
	}
	return "?"
}

// ChannelLayout is an ordered list of speaker positions
type ChannelLayout []Channel

// Layout mask bits, in the order demuxers report them
const (
	MaskFrontLeft          uint64 = 0x1
	MaskFrontRight         uint64 = 0x2
	MaskFrontCenter        uint64 = 0x4
	MaskLowFrequency       uint64 = 0x8
	MaskBackLeft           uint64 = 0x10
	MaskBackRight          uint64 = 0x20
	MaskFrontLeftOfCenter  uint64 = 0x40
	MaskFrontRightOfCenter uint64 = 0x80
	MaskBackCenter         uint64 = 0x100
	MaskSideLeft           uint64 = 0x200
	MaskSideRight          uint64 = 0x400
)

var maskOrder = []struct {
	mask uint64
	ch   Channel
}{
	{MaskFrontLeft, ChFL},
	{MaskFrontRight, ChFR},
	{MaskFrontCenter, ChFC},
	{MaskLowFrequency, ChLFE},
	{MaskBackLeft, ChBL},
	{MaskBackRight, ChBR},
	{MaskFrontLeftOfCenter, ChFLC},
	{MaskFrontRightOfCenter, ChFRC},
	{MaskBackCenter, ChBC},
	{MaskSideLeft, ChSL},
	{MaskSideRight, ChSR},
}

// LayoutFromMask converts a layout mask to an ordered channel list
func LayoutFromMask(mask uint64) ChannelLayout {
	var layout ChannelLayout
	for _, m := range maskOrder {
		if mask&m.mask != 0 {
			layout = append(layout, m.ch)
		}
	}
	return layout
}

// DefaultLayout returns the conventional layout for a channel count
func DefaultLayout(channels int) ChannelLayout {
	switch channels {
	case 1:
		return ChannelLayout{ChFC}
	case 2:
		return ChannelLayout{ChFL, ChFR}
	case 3:
		return ChannelLayout{ChFL, ChFR, ChFC}
	case 4:
		return ChannelLayout{ChFL, ChFR, ChBL, ChBR}
	case 5:
		return ChannelLayout{ChFL, ChFR, ChFC, ChBL, ChBR}
	case 6:
		return ChannelLayout{ChFL, ChFR, ChFC, ChLFE, ChBL, ChBR}
	case 8:
		return ChannelLayout{ChFL, ChFR, ChFC, ChLFE, ChBL, ChBR, ChSL, ChSR}
	}
	layout := make(ChannelLayout, channels)
	for i := range layout {
		layout[i] = Channel(i % len(channelNames))
	}
	return layout
}

// Count returns the number of channels
func (l ChannelLayout) Count() int {
	return len(l)
}

// Equal compares two layouts position by position
func (l ChannelLayout) Equal(o ChannelLayout) bool {
	if len(l) != len(o) {
		return false
	}
	for i := range l {
		if l[i] != o[i] {
			return false
		}
	}
	return true
}

// Index returns the position of ch, or -1
func (l ChannelLayout) Index(ch Channel) int {
	for i, c := range l {
		if c == ch {
			return i
		}
	}
	return -1
}

func (l ChannelLayout) String() string {
	names := make([]string, len(l))
	for i, c := range l {
		names[i] = c.String()
	}
	return strings.Join(names, ",")
}
