// Package abi defines the plugin ABI the host consumes. It deliberately
// mirrors a CLAP-shaped contract: a factory that builds a main-thread
// handle, which in turn activates into a separate audio-thread handle.
// Nothing in this package talks to a real plugin binary — discovery and
// dynamic loading are external collaborators (see spec.md §1).
package abi

// PortType is the declared medium on a port.
type PortType uint8

const (
	PortAudio PortType = iota
	PortNote
	PortAutomation
)

func (p PortType) String() string {
	switch p {
	case PortAudio:
		return "audio"
	case PortNote:
		return "note"
	case PortAutomation:
		return "automation"
	default:
		return "unknown"
	}
}

// Direction is the flow direction of a port.
type Direction uint8

const (
	DirInput Direction = iota
	DirOutput
)

// EventPortIn and EventPortOut are the stable-ids spec.md §4.4.3 reserves
// for every plugin's single event input/output port.
const (
	EventPortIn  uint32 = 0
	EventPortOut uint32 = 1
)

// PortDescriptor names one port a plugin exposes, keyed by a stable id
// the plugin must keep constant across deactivations (spec.md §3).
type PortDescriptor struct {
	StableID uint32
	Dir      Direction
	Channels uint16
}

// AudioPortsInfo is a plugin's audio port layout, queried once at
// activation and held constant until the next deactivation (spec.md §4.2).
type AudioPortsInfo struct {
	Inputs  []PortDescriptor
	Outputs []PortDescriptor
}

func (a AudioPortsInfo) TotalInChannels() int {
	total := 0
	for _, p := range a.Inputs {
		total += int(p.Channels)
	}
	return total
}

func (a AudioPortsInfo) TotalOutChannels() int {
	total := 0
	for _, p := range a.Outputs {
		total += int(p.Channels)
	}
	return total
}

// NotePortsInfo is a plugin's note port layout.
type NotePortsInfo struct {
	Inputs  []PortDescriptor
	Outputs []PortDescriptor
}

// NoteEvent is a single note/automation event carried on a note port.
// Raw holds the CLAP-style encoded payload; for note ports this is a
// MIDI 1.0 byte sequence decodable with gitlab.com/gomidi/midi/v2.
type NoteEvent struct {
	FrameOffset uint32
	StableID    uint32
	Raw         []byte
}

// ParamInfo describes one plugin parameter.
type ParamInfo struct {
	ID           uint32
	Name         string
	MinValue     float64
	MaxValue     float64
	DefaultValue float64
}

// ProcessStatus is the per-cycle verdict a plugin's audio-thread Process
// call returns (spec.md §4.2 step 7).
type ProcessStatus uint8

const (
	ProcessError ProcessStatus = iota
	ProcessContinue
	ProcessContinueIfNotQuiet
	ProcessTail
	ProcessSleep
)

// ProcInfo carries the per-cycle frame count and transport position. The
// transport timeline producer itself is an external collaborator
// (spec.md §1); only the fields the host needs to pass through live here.
type ProcInfo struct {
	Frames      int
	SteadyTime  int64
	TempoValid  bool
	TempoBPM    float64
}

// AudioBuffers is the set of audio-thread-owned input/output channel
// slices bound to one plugin task for a single process cycle.
type AudioBuffers struct {
	Inputs  [][]float32
	Outputs [][]float32
}

// ParamEvent is a single parameter-value or gesture notification flowing
// between the host and a plugin through the per-instance reducing
// queues (spec.md §3 "per-instance pair of reducing queues").
type ParamEvent struct {
	FrameOffset uint32
	ParamID     uint32
	Value       float64
}

// EventBuffers carries the input/output note, automation, and parameter
// event lists bound to a plugin task for a single cycle.
type EventBuffers struct {
	In      []NoteEvent
	Out     *[]NoteEvent
	ParamIn []ParamEvent
	ParamOut *[]ParamEvent
}

// SaveState is an opaque, plugin-defined byte blob (spec.md §6).
type SaveState []byte

// HostRequest is the host-side handle a plugin uses to request restart,
// processing, or a main-thread callback. The three Request* calls are
// idempotent flag sets and HostInfo is read-only; all four are safe to
// call from any thread (spec.md §6).
type HostRequest interface {
	RequestRestart()
	RequestProcess()
	RequestCallback()
	HostInfo() (name, version string)
}

// Factory builds plugin instances. id is the host-assigned node handle's
// string form, supplied so a plugin implementation can tag its own logs.
type Factory interface {
	Description() Description
	New(host HostRequest, id string) (MainThreadHandle, error)
}

// Description is static plugin metadata, independent of any instance.
type Description struct {
	ID             string
	Name           string
	Vendor         string
	Version        string
}

// MainThreadHandle exposes every main-thread-only operation spec.md §6
// lists for the consumed plugin interface.
type MainThreadHandle interface {
	Init() error
	Activate(sampleRate float64, minFrames, maxFrames int) (AudioThreadHandle, error)
	Deactivate()
	OnMainThread()

	AudioPortsExt() (AudioPortsInfo, error)
	NotePortsExt() (NotePortsInfo, error)

	NumParams() int
	ParamInfo(index int) (ParamInfo, error)
	ParamValue(id uint32) (float64, error)
	ParamValueToText(id uint32, value float64) (string, error)
	ParamTextToValue(id uint32, text string) (float64, error)

	CollectSaveState() (SaveState, error)
	LoadState(data SaveState) error

	// Latency reports the plugin's inherent processing delay in samples,
	// constant while activated. Used by the compiler to equalize
	// parallel-path latency (spec.md §4.4 step 2, §9 Open Question i).
	Latency() int
}

// AudioThreadHandle exposes every audio-thread operation spec.md §6 lists.
// None of these may block, allocate, or touch the filesystem.
type AudioThreadHandle interface {
	StartProcessing() error
	StopProcessing()
	Process(info ProcInfo, buffers AudioBuffers, in EventBuffers, out EventBuffers) ProcessStatus
	ParamFlush(in EventBuffers, out EventBuffers)
}
