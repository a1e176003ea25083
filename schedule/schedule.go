package schedule

import "github.com/shaban/pluginhost/bufferpool"

// Schedule is the immutable, ordered task list of spec.md §3: a
// compiled plan plus the frame capacity it was compiled for. A new
// Schedule entirely replaces the previous one; tasks are never mutated
// in place once published.
type Schedule struct {
	Tasks     []Task
	MaxFrames int

	// GraphInBuffers/GraphOutBuffers are the pseudo-node buffers the
	// executor de-interleaves into and re-interleaves from at the start
	// and end of each cycle.
	GraphInBuffers  []*bufferpool.Buffer
	GraphOutBuffers []*bufferpool.Buffer

	// ClearAudioInBuffers names every input buffer the compiler decided
	// has no incoming edge; the executor zeroes exactly these at the
	// start of each cycle (spec.md §4.1's acquire-does-not-clear
	// contract, §4.4 step 2).
	ClearAudioInBuffers []*bufferpool.Buffer
}

// Empty returns the fallback schedule installed whenever compilation
// fails (spec.md §4.4 "Failure policy"): it passes input channels
// through to output channels up to min(in,out) with silence elsewhere,
// with no plugin tasks at all. Channels within the shared range are
// wired as the literal same buffer for both graph-in and graph-out, so
// the executor's deinterleave step is the only write that buffer ever
// needs; channels beyond the shared range are distinct buffers cleared
// every cycle via ClearAudioInBuffers, since nothing else ever writes
// them.
func Empty(pool *bufferpool.Pool, maxFrames, inChannels, outChannels int) *Schedule {
	shared := inChannels
	if outChannels < shared {
		shared = outChannels
	}

	graphIn := make([]*bufferpool.Buffer, inChannels)
	for ch := 0; ch < inChannels; ch++ {
		graphIn[ch] = pool.Acquire(bufferpool.KindAudio, maxFrames)
	}

	graphOut := make([]*bufferpool.Buffer, outChannels)
	var clear []*bufferpool.Buffer
	for ch := 0; ch < outChannels; ch++ {
		if ch < shared {
			graphOut[ch] = graphIn[ch]
			continue
		}
		buf := pool.Acquire(bufferpool.KindAudio, maxFrames)
		clear = append(clear, buf)
		graphOut[ch] = buf
	}

	return &Schedule{
		MaxFrames:           maxFrames,
		GraphInBuffers:      graphIn,
		GraphOutBuffers:     graphOut,
		ClearAudioInBuffers: clear,
	}
}

// Len reports how many tasks this schedule runs per cycle.
func (s *Schedule) Len() int { return len(s.Tasks) }
