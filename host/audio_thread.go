package host

import "github.com/shaban/pluginhost/abi"

// AudioThread is the audio-thread counterpart of an Entry: the live
// plugin audio-thread handle plus shared pointers into the same atomic
// state word, request flags, and reducing queues (spec.md §3, §4.2).
// Exactly one AudioThread exists per activation; it is dropped on
// deactivate and rebuilt on the next activate.
type AudioThread struct {
	handle  abi.AudioThreadHandle
	state   *sharedState
	flags   *requestFlags
	toAudio *rqQueue
	toMain  *rqQueue
}

// Process runs one cycle of the plugin lifecycle state machine
// (spec.md §4.2, grounded on the original source's
// PluginInstanceHostAudioThread::process). info.Frames must already be
// bounded to ≤ max_frames by the caller; buffers/events are pre-bound by
// the compiler.
func (a *AudioThread) Process(info abi.ProcInfo, buffers abi.AudioBuffers, in abi.EventBuffers, out abi.EventBuffers) {
	// Step 1: always clear plugin output event buffers.
	if out.Out != nil {
		*out.Out = (*out.Out)[:0]
	}

	st := a.state.Load()

	// Step 2: not active, or deactivate requested.
	if !st.IsActive() || a.flags.takeDeactivate() {
		if st.IsProcessing() {
			a.handle.StopProcessing()
		}
		clearAudio(buffers.Outputs, info.Frames)
		if a.flags.takeDeactivate() {
			a.state.Store(ActiveAndReadyToDeactivate)
		}
		return
	}

	// Step 3.
	if st == ActiveWithError {
		clearAudio(buffers.Outputs, info.Frames)
		return
	}

	// Step 4: drain main→audio parameter queue into the input event list.
	a.toAudio.drainInto(&in)

	// Step 5.
	if st == ActiveAndWaitingForQuiet && isSilent(buffers.Inputs, info.Frames) && len(in.In) == 0 {
		a.handle.StopProcessing()
		a.state.Store(ActiveAndSleeping)
		clearAudio(buffers.Outputs, info.Frames)
		a.handle.ParamFlush(in, out)
		return
	}

	// Step 6.
	if st.IsSleeping() {
		if !a.flags.takeProcess() && len(in.In) == 0 {
			clearAudio(buffers.Outputs, info.Frames)
			a.handle.ParamFlush(in, out)
			return
		}
		if err := a.handle.StartProcessing(); err != nil {
			a.state.Store(ActiveWithError)
			clearAudio(buffers.Outputs, info.Frames)
			return
		}
		a.state.Store(ActiveAndProcessing)
	}

	// Step 7.
	status := a.handle.Process(info, buffers, in, out)
	switch status {
	case abi.ProcessContinue:
		a.state.Store(ActiveAndProcessing)
	case abi.ProcessContinueIfNotQuiet:
		a.state.Store(ActiveAndWaitingForQuiet)
	case abi.ProcessTail:
		a.state.Store(ActiveAndWaitingForTail)
	case abi.ProcessSleep:
		a.handle.StopProcessing()
		if a.flags.takeDeactivate() {
			a.state.Store(ActiveAndReadyToDeactivate)
		} else {
			a.state.Store(ActiveAndSleeping)
		}
	case abi.ProcessError:
		clearAudio(buffers.Outputs, info.Frames)
		a.state.Store(ActiveWithError)
	}

	// Step 8.
	if a.state.Load() == ActiveAndWaitingForTail && isSilent(buffers.Outputs, info.Frames) {
		a.handle.StopProcessing()
		if a.flags.takeDeactivate() {
			a.state.Store(ActiveAndReadyToDeactivate)
		} else {
			a.state.Store(ActiveAndSleeping)
		}
	}

	// Step 9: push parameter notifications into the audio→main queue.
	// Output note events stay in out.Out for the calling schedule task
	// to forward downstream.
	a.toMain.drainFrom(out)
}

func clearAudio(channels [][]float32, frames int) {
	for _, ch := range channels {
		n := frames
		if n > len(ch) {
			n = len(ch)
		}
		for i := 0; i < n; i++ {
			ch[i] = 0
		}
	}
}

func isSilent(channels [][]float32, frames int) bool {
	for _, ch := range channels {
		n := frames
		if n > len(ch) {
			n = len(ch)
		}
		for i := 0; i < n; i++ {
			if ch[i] != 0 {
				return false
			}
		}
	}
	return true
}
