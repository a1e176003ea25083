package schedule

import (
	"fmt"

	"github.com/shaban/pluginhost/bufferpool"
)

// Executor is the audio-thread interpreter of spec.md §4.5. It has
// exactly one entry point and never blocks or touches the filesystem.
// It is not allocation-free: plugin tasks build their channel slices and
// input event lists on every cycle, and a delay-compensation task
// allocates its ring on its first cycle.
type Executor struct {
	cell      *SharedSchedule
	maxFrames int
}

// NewExecutor builds an executor bound to a shared schedule cell.
func NewExecutor(cell *SharedSchedule, maxFrames int) *Executor {
	return &Executor{cell: cell, maxFrames: maxFrames}
}

// ErrFramesExceedMax is returned when a caller requests more frames than
// the schedule's declared maximum; spec.md §8 requires the chosen
// policy be explicit, so this implementation rejects rather than
// truncates.
var ErrFramesExceedMax = fmt.Errorf("schedule: frame count exceeds max_frames")

// ProcessInterleaved is the sole audio-thread entry point (spec.md
// §4.5). in/out are interleaved sample buffers; inChannels/outChannels
// give their channel counts. frames is derived from
// len(in)/inChannels and must not exceed the active schedule's
// MaxFrames.
func (e *Executor) ProcessInterleaved(in []float32, inChannels int, out []float32, outChannels int) error {
	sched := e.cell.consumeAcquire()

	frames := 0
	if inChannels > 0 {
		frames = len(in) / inChannels
	} else if outChannels > 0 {
		frames = len(out) / outChannels
	}
	if frames > sched.MaxFrames {
		return ErrFramesExceedMax
	}

	for _, buf := range sched.ClearAudioInBuffers {
		buf.Clear(frames)
	}

	deinterleave(in, inChannels, frames, sched.GraphInBuffers)

	for i := range sched.Tasks {
		sched.Tasks[i].Process(frames)
	}

	interleave(sched.GraphOutBuffers, frames, out, outChannels)
	return nil
}

func deinterleave(in []float32, inChannels, frames int, dst []*bufferpool.Buffer) {
	for ch := 0; ch < inChannels && ch < len(dst); ch++ {
		target := dst[ch].Audio()
		for f := 0; f < frames && f < len(target); f++ {
			target[f] = in[f*inChannels+ch]
		}
	}
}

func interleave(src []*bufferpool.Buffer, frames int, out []float32, outChannels int) {
	for f := 0; f < frames; f++ {
		for ch := 0; ch < outChannels; ch++ {
			idx := f*outChannels + ch
			if idx >= len(out) {
				continue
			}
			if ch < len(src) {
				samples := src[ch].Audio()
				if f < len(samples) {
					out[idx] = samples[f]
					continue
				}
			}
			out[idx] = 0
		}
	}
}
