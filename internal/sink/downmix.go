// ABOUTME: Frame to stereo conversion for the software sink
// ABOUTME: Reads planar or interleaved samples and folds them to two channels
package sink

import (
	"encoding/binary"
	"math"

	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
)

// surroundMixLevel is the gain of surround channels folded into the fronts
var surroundMixLevel = math.Sqrt2 / 2

// sampleAt returns sample ch of audio frame i as a float in [-1, 1]
func sampleAt(f *audio.Frame, i, ch int) float64 {
	bps := f.Format.DataFormat.BytesPerSample()
	channels := f.Format.Channels

	var plane []byte
	var off int
	if f.Planes > 1 {
		plane = f.Data[ch]
		off = i * bps
	} else {
		plane = f.Data[0]
		off = (i*channels + ch) * bps
	}
	if off+bps > len(plane) {
		return 0
	}

	switch f.Format.DataFormat {
	case audio.SampleFormatS16:
		return float64(int16(binary.LittleEndian.Uint16(plane[off:]))) / 32768
	default:
		return audio.SampleToFloat(int32(binary.LittleEndian.Uint32(plane[off:])))
	}
}

// mixWeights returns the left and right gain of every channel in layout
func mixWeights(layout audio.ChannelLayout, centerMix float64) [][2]float64 {
	w := make([][2]float64, len(layout))
	if len(layout) == 1 {
		w[0] = [2]float64{1, 1}
		return w
	}
	for i, ch := range layout {
		switch ch {
		case audio.ChFL, audio.ChFLC:
			w[i] = [2]float64{1, 0}
		case audio.ChFR, audio.ChFRC:
			w[i] = [2]float64{0, 1}
		case audio.ChFC:
			w[i] = [2]float64{centerMix, centerMix}
		case audio.ChBL, audio.ChSL:
			w[i] = [2]float64{surroundMixLevel, 0}
		case audio.ChBR, audio.ChSR:
			w[i] = [2]float64{0, surroundMixLevel}
		case audio.ChBC:
			w[i] = [2]float64{surroundMixLevel / 2, surroundMixLevel / 2}
		}
	}
	return w
}

// toStereo converts frames [from, from+n) of f
func toStereo(f *audio.Frame, from, n int) [][2]float64 {
	centerMix := audio.DefaultCenterMixLevel
	if f.HasDownmix {
		centerMix = f.CenterMixLevel
	}

	layout := f.Format.Layout
	if len(layout) != f.Format.Channels {
		layout = audio.DefaultLayout(f.Format.Channels)
	}
	weights := mixWeights(layout, centerMix)

	out := make([][2]float64, n)
	for i := 0; i < n; i++ {
		var l, r float64
		for ch, w := range weights {
			if w[0] == 0 && w[1] == 0 {
				continue
			}
			s := sampleAt(f, from+i, ch)
			l += s * w[0]
			r += s * w[1]
		}
		out[i] = [2]float64{l, r}
	}
	return out
}
