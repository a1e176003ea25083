// Package fakeplugin is an in-process abi.Factory used by tests and
// cmd/hostdemo in place of a real discovered/loaded plugin binary.
// Plugin discovery and dynamic loading are explicitly out of scope
// (spec.md §1's "filesystem discovery and library loading of plugin
// binaries" external collaborator), so this is the only plugin
// implementation the module ships.
package fakeplugin

import (
	"fmt"
	"math"

	"github.com/shaban/pluginhost/abi"
)

// GainParamID is the single parameter this plugin exposes: linear gain
// applied to every channel.
const GainParamID uint32 = 0

// Factory builds Passthrough-or-gain plugin instances. Channels fixes
// the mono/stereo/etc layout every instance declares; a real plugin
// would discover this from its own metadata, but fakeplugin has none.
type Factory struct {
	Channels int
}

func (f *Factory) Description() abi.Description {
	return abi.Description{
		ID:      "fakeplugin.gain",
		Name:    "Fake Gain",
		Vendor:  "pluginhost",
		Version: "1.0.0",
	}
}

func (f *Factory) New(hostReq abi.HostRequest, id string) (abi.MainThreadHandle, error) {
	channels := f.Channels
	if channels <= 0 {
		channels = 2
	}
	return &mainThread{channels: channels, gain: 1.0, host: hostReq, id: id}, nil
}

type mainThread struct {
	channels int
	gain     float64
	host     abi.HostRequest
	id       string
	audio    *audioThread
}

func (m *mainThread) Init() error { return nil }

func (m *mainThread) Activate(sampleRate float64, minFrames, maxFrames int) (abi.AudioThreadHandle, error) {
	m.audio = &audioThread{gain: &m.gain}
	return m.audio, nil
}

func (m *mainThread) Deactivate() { m.audio = nil }

func (m *mainThread) OnMainThread() {}

func (m *mainThread) AudioPortsExt() (abi.AudioPortsInfo, error) {
	ch := uint16(m.channels)
	return abi.AudioPortsInfo{
		Inputs:  []abi.PortDescriptor{{StableID: 0, Dir: abi.DirInput, Channels: ch}},
		Outputs: []abi.PortDescriptor{{StableID: 0, Dir: abi.DirOutput, Channels: ch}},
	}, nil
}

func (m *mainThread) NotePortsExt() (abi.NotePortsInfo, error) {
	return abi.NotePortsInfo{
		Inputs: []abi.PortDescriptor{{StableID: abi.EventPortIn, Dir: abi.DirInput, Channels: 1}},
	}, nil
}

func (m *mainThread) NumParams() int { return 1 }

func (m *mainThread) ParamInfo(index int) (abi.ParamInfo, error) {
	if index != 0 {
		return abi.ParamInfo{}, fmt.Errorf("fakeplugin: no parameter at index %d", index)
	}
	return abi.ParamInfo{ID: GainParamID, Name: "Gain", MinValue: 0, MaxValue: 4, DefaultValue: 1}, nil
}

func (m *mainThread) ParamValue(id uint32) (float64, error) {
	if id != GainParamID {
		return 0, fmt.Errorf("fakeplugin: unknown parameter %d", id)
	}
	return m.gain, nil
}

func (m *mainThread) ParamValueToText(id uint32, value float64) (string, error) {
	if id != GainParamID {
		return "", fmt.Errorf("fakeplugin: unknown parameter %d", id)
	}
	return fmt.Sprintf("%.2f dB", 20*math.Log10(value+1e-9)), nil
}

func (m *mainThread) ParamTextToValue(id uint32, text string) (float64, error) {
	if id != GainParamID {
		return 0, fmt.Errorf("fakeplugin: unknown parameter %d", id)
	}
	var v float64
	if _, err := fmt.Sscanf(text, "%f", &v); err != nil {
		return 0, fmt.Errorf("fakeplugin: parsing %q: %w", text, err)
	}
	return v, nil
}

func (m *mainThread) CollectSaveState() (abi.SaveState, error) {
	return abi.SaveState(fmt.Sprintf("gain=%f", m.gain)), nil
}

func (m *mainThread) LoadState(data abi.SaveState) error {
	var v float64
	if _, err := fmt.Sscanf(string(data), "gain=%f", &v); err != nil {
		return fmt.Errorf("fakeplugin: loading state %q: %w", string(data), err)
	}
	m.gain = v
	return nil
}

func (m *mainThread) Latency() int { return 0 }

type audioThread struct {
	gain *float64
}

func (a *audioThread) StartProcessing() error { return nil }
func (a *audioThread) StopProcessing()         {}

func (a *audioThread) Process(info abi.ProcInfo, buffers abi.AudioBuffers, in, out abi.EventBuffers) abi.ProcessStatus {
	for _, ev := range in.ParamIn {
		if ev.ParamID == GainParamID {
			*a.gain = ev.Value
		}
	}

	gain := float32(*a.gain)
	for i, ch := range buffers.Outputs {
		if i >= len(buffers.Inputs) {
			continue
		}
		src := buffers.Inputs[i]
		n := info.Frames
		if n > len(src) {
			n = len(src)
		}
		if n > len(ch) {
			n = len(ch)
		}
		for f := 0; f < n; f++ {
			ch[f] = src[f] * gain
		}
	}
	return abi.ProcessContinue
}

func (a *audioThread) ParamFlush(in, out abi.EventBuffers) {}
