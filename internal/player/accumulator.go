// ABOUTME: Merge buffer for decoded frames
// ABOUTME: Joins consecutive small frames into one packet before it reaches a sink
package player

import (
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio"
	"github.com/Resonate-Protocol/resonate-zones/pkg/audio/decode"
)

// AccumulatorGrowStep is the capacity increment of each plane buffer
const AccumulatorGrowStep = 32 * 1024

// Accumulator merges decoded frames of one format into a single larger
// frame. Bytes held per plane never exceed the allocated capacity, which
// grows in AccumulatorGrowStep increments. A frame of a different format is
// held back and starts the next merged frame.
type Accumulator struct {
	target   int // frames per merged packet, 0 takes one frame at a time
	planes   [][]byte
	capacity int
	head     audio.Frame
	nbFrames int
	duration float64
	pending  *audio.Frame
}

// NewAccumulator creates a merge buffer aiming for target frames per packet
func NewAccumulator(target int) *Accumulator {
	return &Accumulator{target: target}
}

// Fill pulls frames from codec until the target is reached, the codec runs
// dry or the format changes. It reports whether a merged frame is ready.
func (a *Accumulator) Fill(codec decode.Codec) bool {
	if a.pending != nil && a.nbFrames == 0 {
		a.add(a.pending)
		a.pending = nil
	}

	for a.pending == nil && (a.nbFrames == 0 || a.nbFrames < a.target) {
		var f audio.Frame
		if !codec.GetData(&f) || f.NbFrames == 0 {
			break
		}
		if !a.compatible(&f) {
			a.pending = &f
			break
		}
		a.add(&f)
	}
	return a.nbFrames > 0
}

// Take moves the merged frame into out and empties the buffer
func (a *Accumulator) Take(out *audio.Frame) bool {
	if a.nbFrames == 0 {
		out.NbFrames = 0
		out.FramesOut = 0
		return false
	}

	*out = a.head
	out.Data = make([][]byte, len(a.planes))
	for i, plane := range a.planes {
		out.Data[i] = append([]byte(nil), plane...)
		a.planes[i] = plane[:0]
	}
	out.NbFrames = a.nbFrames
	out.FramesOut = 0
	out.Duration = a.duration

	a.nbFrames = 0
	a.duration = 0
	return true
}

// Buffered returns the frames held, including a pending frame
func (a *Accumulator) Buffered() int {
	n := a.nbFrames
	if a.pending != nil {
		n += a.pending.Remaining()
	}
	return n
}

// Capacity returns the allocated bytes per plane
func (a *Accumulator) Capacity() int {
	return a.capacity
}

// Clear drops everything held. Allocated capacity is kept.
func (a *Accumulator) Clear() {
	for i := range a.planes {
		a.planes[i] = a.planes[i][:0]
	}
	a.nbFrames = 0
	a.duration = 0
	a.pending = nil
}

func (a *Accumulator) compatible(f *audio.Frame) bool {
	if a.nbFrames == 0 {
		return true
	}
	h := &a.head
	return f.Passthrough == h.Passthrough &&
		f.Planes == h.Planes &&
		f.FrameSize == h.FrameSize &&
		f.Format.Equal(h.Format)
}

func (a *Accumulator) add(f *audio.Frame) {
	n := f.Remaining()
	if n == 0 || f.Planes == 0 {
		return
	}
	if a.nbFrames == 0 {
		a.head = *f
		a.head.Data = nil
		a.head.FramesOut = 0
	}

	off := f.Offset()
	size := n * f.FrameSize / f.Planes
	a.grow(f.Planes, a.planeSize()+size)
	for i := 0; i < f.Planes; i++ {
		src := f.Data[i]
		end := off + size
		if end > len(src) {
			end = len(src)
		}
		chunk := src[off:end]
		a.planes[i] = append(a.planes[i], chunk...)
		// short source planes are padded so every plane stays aligned
		for pad := size - len(chunk); pad > 0; pad-- {
			a.planes[i] = append(a.planes[i], 0)
		}
	}
	a.nbFrames += n
	a.duration += f.DurationOf(n)
}

func (a *Accumulator) planeSize() int {
	if len(a.planes) == 0 {
		return 0
	}
	return len(a.planes[0])
}

// grow makes room for need bytes in each of planes buffers
func (a *Accumulator) grow(planes, need int) {
	if len(a.planes) != planes {
		a.planes = make([][]byte, planes)
		a.capacity = 0
	}
	if need <= a.capacity && a.planes[0] != nil {
		return
	}

	capacity := a.capacity
	for capacity < need {
		capacity += AccumulatorGrowStep
	}
	for i, plane := range a.planes {
		buf := make([]byte, len(plane), capacity)
		copy(buf, plane)
		a.planes[i] = buf
	}
	a.capacity = capacity
}
