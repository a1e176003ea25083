package fakeplugin

import (
	"testing"

	"github.com/shaban/pluginhost/abi"
	"github.com/stretchr/testify/require"
)

type noopHostRequest struct{}

func (noopHostRequest) RequestRestart()                        {}
func (noopHostRequest) RequestProcess()                        {}
func (noopHostRequest) RequestCallback()                       {}
func (noopHostRequest) HostInfo() (name, version string) { return "test", "0.0.0" }

func TestSaveStateRoundTrip(t *testing.T) {
	f := &Factory{Channels: 2}
	main, err := f.New(noopHostRequest{}, "instance-1")
	require.NoError(t, err)
	require.NoError(t, main.Init())

	saved, err := main.CollectSaveState()
	require.NoError(t, err)

	restored, err := f.New(noopHostRequest{}, "instance-2")
	require.NoError(t, err)
	require.NoError(t, restored.LoadState(saved))

	v, err := restored.ParamValue(GainParamID)
	require.NoError(t, err)
	require.InDelta(t, 1.0, v, 1e-9)
}

func TestProcessAppliesGain(t *testing.T) {
	f := &Factory{Channels: 1}
	main, err := f.New(noopHostRequest{}, "instance")
	require.NoError(t, err)

	audio, err := main.Activate(48000, 1, 64)
	require.NoError(t, err)

	in := [][]float32{{1, 1, 1}}
	out := [][]float32{{0, 0, 0}}
	buffers := abi.AudioBuffers{Inputs: in, Outputs: out}
	status := audio.Process(abi.ProcInfo{Frames: 3}, buffers,
		abi.EventBuffers{ParamIn: []abi.ParamEvent{{ParamID: GainParamID, Value: 0.5}}},
		abi.EventBuffers{})
	require.Equal(t, abi.ProcessContinue, status)
	require.InDeltaSlice(t, []float32{0.5, 0.5, 0.5}, out[0], 1e-6)
}
