// Package schedule implements the audio-thread side of the engine: the
// compiled Task variants, the immutable Schedule they form, and the
// single-entry-point Executor that interprets a schedule over
// interleaved I/O (spec.md §3 "Schedule", §4.5).
package schedule

import (
	"fmt"

	"github.com/shaban/pluginhost/abi"
	"github.com/shaban/pluginhost/bufferpool"
	"github.com/shaban/pluginhost/host"
	"gitlab.com/gomidi/midi/v2"
)

// Task is one unit of audio-thread work. Exactly one of the embedded
// pointer fields is non-nil; Kind tells the executor which.
type Kind uint8

const (
	KindPlugin Kind = iota
	KindDelayComp
	KindSum
	KindDeactivatedPassthrough
)

func (k Kind) String() string {
	switch k {
	case KindPlugin:
		return "Plugin"
	case KindDelayComp:
		return "DelayComp"
	case KindSum:
		return "Sum"
	case KindDeactivatedPassthrough:
		return "DeactivatedPlugin"
	default:
		return "Unknown"
	}
}

// Task is a tagged union over the four schedule task variants of
// spec.md §3. Go has no sum types, so Kind selects which payload struct
// is meaningful — mirroring the original source's Task enum.
type Task struct {
	Kind Kind

	Plugin     *PluginTask
	DelayComp  *DelayCompTask
	Sum        *SumTask
	Deactivated *DeactivatedPluginTask
}

// PluginTask invokes a single activated plugin's audio-thread handle
// against its bound buffers.
type PluginTask struct {
	PluginID string
	Audio    *host.AudioThread
	Inputs   []*bufferpool.Buffer
	Outputs  []*bufferpool.Buffer
	EventIn  []*bufferpool.Buffer
	EventOut []*bufferpool.Buffer
	Info     abi.ProcInfo
}

func (t *PluginTask) process(frames int) {
	t.Info.Frames = frames
	audioBuffers := abi.AudioBuffers{
		Inputs:  channelsOf(t.Inputs),
		Outputs: channelsOf(t.Outputs),
	}

	var inEvents abi.EventBuffers
	for _, buf := range t.EventIn {
		for _, raw := range buf.DrainEvents() {
			msg, ok := decodeNote(raw)
			if !ok {
				continue
			}
			inEvents.In = append(inEvents.In, abi.NoteEvent{Raw: msg})
		}
	}

	var outList []abi.NoteEvent
	outEvents := abi.EventBuffers{Out: &outList}

	t.Audio.Process(t.Info, audioBuffers, inEvents, outEvents)

	for i, ev := range outList {
		if i >= len(t.EventOut) {
			break
		}
		t.EventOut[i%len(t.EventOut)].AppendEvent(ev.Raw)
	}
}

// decodeNote is a thin wrapper kept separate from process() so the
// gomidi dependency has a single, easily auditable call site per
// spec.md §6's note-port event decoding.
func decodeNote(raw []byte) (midi.Message, bool) {
	var msg midi.Message = raw
	return msg, len(raw) > 0
}

// DelayCompTask routes one buffer through a fixed-length ring delay to
// equalize accumulated latency along a parallel path (spec.md §4.4
// step 2).
type DelayCompTask struct {
	Input       *bufferpool.Buffer
	Output      *bufferpool.Buffer
	DelaySamples int
	ring        []float32
	writeHead   int
}

func (t *DelayCompTask) process(frames int) {
	if t.ring == nil {
		t.ring = make([]float32, t.DelaySamples+frames)
	}
	in := t.Input.Audio()
	out := t.Output.Audio()
	for i := 0; i < frames; i++ {
		t.ring[t.writeHead] = in[i]
		readHead := (t.writeHead + len(t.ring) - t.DelaySamples) % len(t.ring)
		out[i] = t.ring[readHead]
		t.writeHead = (t.writeHead + 1) % len(t.ring)
	}
}

// SumTask sums ≥2 audio inputs into one output buffer (spec.md §4.4
// step 2, §8 "every Sum task has ≥2 inputs").
type SumTask struct {
	Inputs []*bufferpool.Buffer
	Output *bufferpool.Buffer
}

func (t *SumTask) process(frames int) {
	out := t.Output.Audio()
	for i := 0; i < frames && i < len(out); i++ {
		out[i] = 0
	}
	for _, in := range t.Inputs {
		samples := in.Audio()
		n := frames
		if n > len(samples) {
			n = len(samples)
		}
		if n > len(out) {
			n = len(out)
		}
		for i := 0; i < n; i++ {
			out[i] += samples[i]
		}
	}
}

// DeactivatedPluginTask copies the first k input channels to the first
// k output channels and clears any remaining outputs, standing in for a
// plugin that isn't currently active (spec.md §3, §4.4 step 4).
type DeactivatedPluginTask struct {
	Inputs  []*bufferpool.Buffer
	Outputs []*bufferpool.Buffer
}

func (t *DeactivatedPluginTask) process(frames int) {
	k := len(t.Inputs)
	if len(t.Outputs) < k {
		k = len(t.Outputs)
	}
	for i := 0; i < k; i++ {
		in := t.Inputs[i].Audio()
		out := t.Outputs[i].Audio()
		n := frames
		if n > len(in) {
			n = len(in)
		}
		if n > len(out) {
			n = len(out)
		}
		copy(out[:n], in[:n])
	}
	for i := k; i < len(t.Outputs); i++ {
		t.Outputs[i].Clear(frames)
	}
}

func channelsOf(buffers []*bufferpool.Buffer) [][]float32 {
	out := make([][]float32, len(buffers))
	for i, b := range buffers {
		out[i] = b.Audio()
	}
	return out
}

// Process runs this task for the given frame count. Called by the
// executor strictly in schedule order (spec.md §4.5: "the executor does
// not spawn threads").
func (t *Task) Process(frames int) {
	switch t.Kind {
	case KindPlugin:
		t.Plugin.process(frames)
	case KindDelayComp:
		t.DelayComp.process(frames)
	case KindSum:
		t.Sum.process(frames)
	case KindDeactivatedPassthrough:
		t.Deactivated.process(frames)
	default:
		panic(fmt.Sprintf("schedule: task with unknown kind %d", t.Kind))
	}
}
