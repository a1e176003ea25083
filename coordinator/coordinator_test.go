package coordinator

import (
	"fmt"
	"testing"

	"github.com/shaban/pluginhost/abi"
	"github.com/shaban/pluginhost/events"
	"github.com/shaban/pluginhost/graph"
	"github.com/shaban/pluginhost/savestate"
	"github.com/stretchr/testify/require"
)

type stubMain struct {
	channels int
}

func (m *stubMain) Init() error { return nil }
func (m *stubMain) Activate(sampleRate float64, minFrames, maxFrames int) (abi.AudioThreadHandle, error) {
	return &stubAudio{}, nil
}
func (m *stubMain) Deactivate()   {}
func (m *stubMain) OnMainThread() {}
func (m *stubMain) AudioPortsExt() (abi.AudioPortsInfo, error) {
	return abi.AudioPortsInfo{
		Inputs:  []abi.PortDescriptor{{StableID: 0, Dir: abi.DirInput, Channels: uint16(m.channels)}},
		Outputs: []abi.PortDescriptor{{StableID: 0, Dir: abi.DirOutput, Channels: uint16(m.channels)}},
	}, nil
}
func (m *stubMain) NotePortsExt() (abi.NotePortsInfo, error)                 { return abi.NotePortsInfo{}, nil }
func (m *stubMain) NumParams() int                                          { return 1 }
func (m *stubMain) ParamInfo(index int) (abi.ParamInfo, error)               { return abi.ParamInfo{}, nil }
func (m *stubMain) ParamValue(id uint32) (float64, error)                    { return 0, nil }
func (m *stubMain) ParamValueToText(id uint32, value float64) (string, error) { return "", nil }
func (m *stubMain) ParamTextToValue(id uint32, text string) (float64, error)  { return 0, nil }
func (m *stubMain) CollectSaveState() (abi.SaveState, error)                 { return abi.SaveState("stub-state"), nil }
func (m *stubMain) LoadState(data abi.SaveState) error                       { return nil }
func (m *stubMain) Latency() int                                            { return 0 }

type stubAudio struct{}

func (a *stubAudio) StartProcessing() error { return nil }
func (a *stubAudio) StopProcessing()         {}
func (a *stubAudio) Process(info abi.ProcInfo, buffers abi.AudioBuffers, in, out abi.EventBuffers) abi.ProcessStatus {
	for i, ch := range buffers.Outputs {
		if i < len(buffers.Inputs) {
			copy(ch, buffers.Inputs[i])
		}
	}
	return abi.ProcessContinue
}
func (a *stubAudio) ParamFlush(in, out abi.EventBuffers) {}

type stubFactory struct{ channels int }

func (f *stubFactory) Description() abi.Description { return abi.Description{ID: "stub"} }
func (f *stubFactory) New(hostReq abi.HostRequest, id string) (abi.MainThreadHandle, error) {
	return &stubMain{channels: f.channels}, nil
}

func lookup(key string) (abi.Factory, error) {
	switch key {
	case "stub-mono":
		return &stubFactory{channels: 1}, nil
	default:
		return nil, fmt.Errorf("unknown key %q", key)
	}
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	return New(Config{
		GraphInChannels:  1,
		GraphOutChannels: 1,
		MaxFrames:        64,
		Factories:        lookup,
	})
}

func TestAddPluginActivateConnectCompileProcesses(t *testing.T) {
	c := newTestCoordinator(t)

	id, err := c.AddPlugin(savestate.PluginRecord{Format: graph.FormatInternal, Key: "stub-mono", AudioInChannels: 1, AudioOutChannels: 1})
	require.NoError(t, err)

	require.NoError(t, c.Activate(id))

	require.NoError(t, c.ConnectEdge(
		graph.PortRef{Node: c.Graph().GraphIn(), Key: graph.PortKey{Type: graph.PortAudio, StableID: 0, Dir: graph.DirOutput, Channel: 0}},
		graph.PortRef{Node: id, Key: graph.PortKey{Type: graph.PortAudio, StableID: 0, Dir: graph.DirInput, Channel: 0}},
	))
	require.NoError(t, c.ConnectEdge(
		graph.PortRef{Node: id, Key: graph.PortKey{Type: graph.PortAudio, StableID: 0, Dir: graph.DirOutput, Channel: 0}},
		graph.PortRef{Node: c.Graph().GraphOut(), Key: graph.PortKey{Type: graph.PortAudio, StableID: 0, Dir: graph.DirInput, Channel: 0}},
	))

	require.NoError(t, c.Compile(nil))

	exec := c.Executor()
	in := []float32{0.1, 0.2, 0.3}
	out := make([]float32, 3)
	// First cycle consumes the activation's pending process request and
	// starts processing (host.AudioThread's sleeping->processing step).
	require.NoError(t, exec.ProcessInterleaved(in, 1, out, 1))
	require.NoError(t, exec.ProcessInterleaved(in, 1, out, 1))
	require.Equal(t, in, out)
}

func TestOnIdleReportsRecompileAfterRemoval(t *testing.T) {
	c := newTestCoordinator(t)
	id, err := c.AddPlugin(savestate.PluginRecord{Format: graph.FormatInternal, Key: "stub-mono"})
	require.NoError(t, err)

	var gotEvents []events.Event
	sink := sinkFunc(func(ev events.Event) { gotEvents = append(gotEvents, ev) })

	require.NoError(t, c.RemovePlugins([]graph.NodeHandle{id}))
	recompile := c.OnIdle(sink)
	require.True(t, recompile)

	var sawRemoved bool
	for _, ev := range gotEvents {
		if ev.Kind == events.PluginReadyToRemove {
			sawRemoved = true
		}
	}
	require.True(t, sawRemoved)
	require.False(t, c.Graph().HasNode(id))
}

func TestCollectAndRestoreSaveStateRoundTrip(t *testing.T) {
	c := newTestCoordinator(t)
	id, err := c.AddPlugin(savestate.PluginRecord{Format: graph.FormatInternal, Key: "stub-mono"})
	require.NoError(t, err)
	require.NoError(t, c.Activate(id))

	require.NoError(t, c.ConnectEdge(
		graph.PortRef{Node: c.Graph().GraphIn(), Key: graph.PortKey{Type: graph.PortAudio, StableID: 0, Dir: graph.DirOutput, Channel: 0}},
		graph.PortRef{Node: id, Key: graph.PortKey{Type: graph.PortAudio, StableID: 0, Dir: graph.DirInput, Channel: 0}},
	))

	rec, err := c.CollectSaveState()
	require.NoError(t, err)
	require.Len(t, rec.Plugins, 1)
	require.Equal(t, "stub-mono", rec.Plugins[0].Key)
	require.Len(t, rec.Edges, 1)

	c2 := newTestCoordinator(t)
	require.NoError(t, c2.RestoreFromSaveState(rec))
	require.Equal(t, 1, len(c2.entries))
}

type sinkFunc func(events.Event)

func (f sinkFunc) HandleEvent(ev events.Event) { f(ev) }
