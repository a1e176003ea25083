// Package savestate implements the persisted-state record of spec.md §6:
// an ordered list of plugin records and an ordered list of edge records
// that together let a Coordinator reconstruct a graph and its plugin
// instances. Format is not bit-specified by spec.md, so this
// implementation persists JSON, matching macaudio's serializer.go.
package savestate

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shaban/pluginhost/graph"
)

// formatVersion guards against decoding a record shaped by a future,
// incompatible revision of this package.
const formatVersion = "1"

// PluginRecord is one persisted plugin instance: its format tag, a
// caller-defined lookup key identifying which factory can rebuild it, its
// opaque save-state bytes, its last-known channel counts, and whether it
// should be reactivated on restore.
type PluginRecord struct {
	Format               graph.FormatTag `json:"format"`
	Key                  string          `json:"key"`
	Bytes                []byte          `json:"bytes,omitempty"`
	AudioInChannels      int             `json:"audio_in_channels"`
	AudioOutChannels     int             `json:"audio_out_channels"`
	ActivationRequested  bool            `json:"activation_requested"`
}

// EdgeRecord is one persisted connection. SrcPluginIndex/DstPluginIndex
// follow spec.md §6's convention: 0 = graph-in, 1 = graph-out, ≥2 =
// Plugins[index-2].
type EdgeRecord struct {
	PortType      graph.PortType `json:"port_type"`
	SrcPluginIndex int           `json:"src_plugin_index"`
	DstPluginIndex int           `json:"dst_plugin_index"`
	SrcStableID   uint32         `json:"src_stable_id"`
	SrcChannel    uint16         `json:"src_channel"`
	DstStableID   uint32         `json:"dst_stable_id"`
	DstChannel    uint16         `json:"dst_channel"`
}

// Record is the complete save-state of spec.md §6: the ordered plugin
// list and the ordered edge list referencing it by index.
type Record struct {
	Version string         `json:"version"`
	Plugins []PluginRecord `json:"plugins"`
	Edges   []EdgeRecord   `json:"edges"`
}

// GraphInIndex and GraphOutIndex are the two reserved indices every edge record
// may reference besides a real plugin slot.
const (
	GraphInIndex  = 0
	GraphOutIndex = 1
	pluginIndexOffset = 2
)

// PluginIndex converts a plugin's position in Record.Plugins to the index
// convention edge records use.
func PluginIndex(i int) int { return i + pluginIndexOffset }

// New builds an empty record at the current format version.
func New() *Record {
	return &Record{Version: formatVersion}
}

// Encode writes the record as indented JSON.
func (r *Record) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("savestate: encode: %w", err)
	}
	return nil
}

// Decode reads a record back and checks its format version.
func Decode(r io.Reader) (*Record, error) {
	var rec Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("savestate: decode: %w", err)
	}
	if rec.Version != formatVersion {
		return nil, fmt.Errorf("savestate: unsupported format version %q (want %q)", rec.Version, formatVersion)
	}
	return &rec, nil
}

// Validate checks that every edge record references a plugin index that
// actually exists, catching a corrupted or hand-edited record before a
// Coordinator tries to replay it.
func (r *Record) Validate() error {
	maxIndex := PluginIndex(len(r.Plugins) - 1)
	for i, e := range r.Edges {
		if err := validateIndex(e.SrcPluginIndex, maxIndex); err != nil {
			return fmt.Errorf("savestate: edge %d src: %w", i, err)
		}
		if err := validateIndex(e.DstPluginIndex, maxIndex); err != nil {
			return fmt.Errorf("savestate: edge %d dst: %w", i, err)
		}
	}
	return nil
}

func validateIndex(idx, maxIndex int) error {
	if idx == GraphInIndex || idx == GraphOutIndex {
		return nil
	}
	if idx < pluginIndexOffset || idx > maxIndex {
		return fmt.Errorf("plugin index %d out of range [%d,%d] (plus reserved 0,1)", idx, pluginIndexOffset, maxIndex)
	}
	return nil
}
