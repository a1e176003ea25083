package savestate

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shaban/pluginhost/graph"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *Record {
	r := New()
	r.Plugins = []PluginRecord{
		{Format: graph.FormatInternal, Key: "gain", Bytes: []byte{1, 2, 3}, AudioInChannels: 2, AudioOutChannels: 2, ActivationRequested: true},
		{Format: graph.FormatExternal, Key: "reverb.clap", AudioInChannels: 2, AudioOutChannels: 2},
	}
	r.Edges = []EdgeRecord{
		{PortType: graph.PortAudio, SrcPluginIndex: GraphInIndex, DstPluginIndex: PluginIndex(0), SrcChannel: 0, DstChannel: 0},
		{PortType: graph.PortAudio, SrcPluginIndex: PluginIndex(0), DstPluginIndex: PluginIndex(1), SrcChannel: 0, DstChannel: 0},
		{PortType: graph.PortAudio, SrcPluginIndex: PluginIndex(1), DstPluginIndex: GraphOutIndex, SrcChannel: 0, DstChannel: 0},
	}
	return r
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleRecord()

	var buf bytes.Buffer
	require.NoError(t, want.Encode(&buf))

	got, err := Decode(&buf)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte(`{"version":"99","plugins":[],"edges":[]}`)))
	require.Error(t, err)
}

func TestValidateCatchesOutOfRangePluginIndex(t *testing.T) {
	r := sampleRecord()
	r.Edges = append(r.Edges, EdgeRecord{SrcPluginIndex: PluginIndex(5), DstPluginIndex: GraphOutIndex})
	require.Error(t, r.Validate())
}

func TestValidateAcceptsWellFormedRecord(t *testing.T) {
	require.NoError(t, sampleRecord().Validate())
}

func TestPluginIndexConvention(t *testing.T) {
	require.Equal(t, 0, GraphInIndex)
	require.Equal(t, 1, GraphOutIndex)
	require.Equal(t, 2, PluginIndex(0))
	require.Equal(t, 3, PluginIndex(1))
}
