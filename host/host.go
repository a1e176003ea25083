package host

import (
	"fmt"
	"sync"

	"github.com/shaban/pluginhost/abi"
	"github.com/shaban/pluginhost/rq"
)

// ParamUpdate is one modified-parameter notification drained from a
// plugin's audio→main reducing queue.
type ParamUpdate struct {
	ID    uint32
	Value float64
}

type paramValue = rq.Plain[float64]

// rqQueue wraps a generic rq.Queue[uint32, paramValue] with the
// event-buffer drain helpers host/audio_thread.go needs; methods can't
// be attached directly to an instantiated generic type from another
// package, hence the thin wrapper.
type rqQueue struct {
	inner *rq.Queue[uint32, paramValue]
}

func newRQQueue(capacity int) *rqQueue {
	return &rqQueue{inner: rq.New[uint32, paramValue](capacity)}
}

func (r *rqQueue) push(id uint32, v float64) error {
	return r.inner.Push(id, paramValue{V: v})
}

// drainInto empties the queue into the plugin's input parameter event
// list (spec.md §4.2 step 4: "latest-value-wins per parameter id" is
// already guaranteed by the queue itself).
func (r *rqQueue) drainInto(in *abi.EventBuffers) {
	r.inner.Drain(func(id uint32, v paramValue) {
		in.ParamIn = append(in.ParamIn, abi.ParamEvent{ParamID: id, Value: v.V})
	})
}

// drainFrom pushes every parameter notification the plugin produced
// this cycle into the audio→main reducing queue (spec.md §4.2 step 9).
func (r *rqQueue) drainFrom(out abi.EventBuffers) {
	if out.ParamOut == nil {
		return
	}
	for _, ev := range *out.ParamOut {
		_ = r.push(ev.ParamID, ev.Value)
	}
}

// Entry is the "Plugin Host Entry" of spec.md §3: it owns a plugin's
// main-thread handle, its shared lifecycle state, its request flags, and
// its two parameter reducing queues. Every exported method except those
// on AudioThread is main-thread-only.
type Entry struct {
	mu sync.Mutex

	id      string
	factory abi.Factory
	main    abi.MainThreadHandle

	state *sharedState
	flags *requestFlags

	audioPorts abi.AudioPortsInfo
	notePorts  abi.NotePortsInfo

	toAudio *rqQueue
	toMain  *rqQueue

	audio *AudioThread

	saveState  abi.SaveState
	sampleRate float64
	minFrames  int
	maxFrames  int

	hostName    string
	hostVersion string
}

// hostRequestShim adapts an Entry's flags/name into the abi.HostRequest
// the plugin factory receives at construction time.
type hostRequestShim struct {
	flags       *requestFlags
	hostName    string
	hostVersion string
}

func (h *hostRequestShim) RequestRestart()  { h.flags.RequestRestart() }
func (h *hostRequestShim) RequestProcess()  { h.flags.RequestProcess() }
func (h *hostRequestShim) RequestCallback() { h.flags.RequestCallback() }
func (h *hostRequestShim) HostInfo() (name, version string) {
	return h.hostName, h.hostVersion
}

// New constructs a Plugin Host Entry in state Inactive, builds the
// plugin's main-thread handle via factory.New, and calls Init().
func New(factory abi.Factory, id, hostName, hostVersion string) (*Entry, error) {
	flags := &requestFlags{}
	e := &Entry{
		id:          id,
		factory:     factory,
		state:       newSharedState(Inactive),
		flags:       flags,
		hostName:    hostName,
		hostVersion: hostVersion,
	}

	shim := &hostRequestShim{flags: flags, hostName: hostName, hostVersion: hostVersion}
	main, err := factory.New(shim, id)
	if err != nil {
		return nil, fmt.Errorf("host: building plugin instance %s: %w", id, err)
	}
	if err := main.Init(); err != nil {
		return nil, fmt.Errorf("host: initializing plugin instance %s: %w", id, err)
	}
	e.main = main
	return e, nil
}

// ID returns the node handle string this entry was constructed with.
func (e *Entry) ID() string { return e.id }

// State reports the plugin's current lifecycle state. Safe from any
// thread.
func (e *Entry) State() State { return e.state.Load() }

// AudioPorts reports the last-known audio port layout, valid from
// activation until the next deactivation.
func (e *Entry) AudioPorts() abi.AudioPortsInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audioPorts
}

// NotePorts reports the last-known note port layout.
func (e *Entry) NotePorts() abi.NotePortsInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notePorts
}

// Audio returns the current activation's audio-thread counterpart, or
// nil if the entry is not active. The coordinator reads this once per
// compile to hand the compiler a live handle.
func (e *Entry) Audio() *AudioThread {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audio
}

// CanActivate reports whether Activate is currently legal (spec.md §4.2).
func (e *Entry) CanActivate() error {
	if e.main == nil {
		return &ActivationError{Kind: ErrNotLoaded}
	}
	if e.flags.takeRestart() {
		return &ActivationError{Kind: ErrRestartScheduled}
	}
	if e.state.Load() != Inactive {
		return &ActivationError{Kind: ErrAlreadyActive}
	}
	return nil
}

// Activate calls the plugin's Activate, queries its port layouts and
// parameter count, and transitions to ActiveAndSleeping on success
// (spec.md §4.2).
func (e *Entry) Activate(sampleRate float64, minFrames, maxFrames int) (*AudioThread, abi.AudioPortsInfo, error) {
	if err := e.CanActivate(); err != nil {
		return nil, abi.AudioPortsInfo{}, err
	}

	audioHandle, err := e.main.Activate(sampleRate, minFrames, maxFrames)
	if err != nil {
		e.state.Store(InactiveWithError)
		return nil, abi.AudioPortsInfo{}, &ActivationError{Kind: ErrPluginSpecific, Inner: err}
	}

	audioPorts, err := e.main.AudioPortsExt()
	if err != nil {
		e.main.Deactivate()
		e.state.Store(InactiveWithError)
		return nil, abi.AudioPortsInfo{}, &ActivationError{Kind: ErrFailedToGetAudioPorts, Inner: err}
	}
	notePorts, err := e.main.NotePortsExt()
	if err != nil {
		e.main.Deactivate()
		e.state.Store(InactiveWithError)
		return nil, abi.AudioPortsInfo{}, &ActivationError{Kind: ErrFailedToGetAudioPorts, Inner: err}
	}

	numParams := e.main.NumParams()
	if numParams < 1 {
		numParams = 1
	}

	e.mu.Lock()
	e.audioPorts = audioPorts
	e.notePorts = notePorts
	e.toAudio = newRQQueue(numParams)
	e.toMain = newRQQueue(numParams)
	e.sampleRate, e.minFrames, e.maxFrames = sampleRate, minFrames, maxFrames
	e.mu.Unlock()

	e.flags.clearDeactivate()
	e.flags.RequestProcess()
	e.state.Store(ActiveAndSleeping)

	at := &AudioThread{
		handle:  audioHandle,
		state:   e.state,
		flags:   e.flags,
		toAudio: e.toAudio,
		toMain:  e.toMain,
	}
	e.mu.Lock()
	e.audio = at
	e.mu.Unlock()

	return at, audioPorts, nil
}

// ScheduleDeactivate sets deactivate_requested; the audio thread
// advances state to ActiveAndReadyToDeactivate at its next cycle.
func (e *Entry) ScheduleDeactivate() { e.flags.requestDeactivate() }

// ScheduleRemove sets remove_requested and schedules deactivate. The
// entry may only be dropped once the audio thread has released its
// counterpart (state observed Inactive after OnIdle's deactivate step).
func (e *Entry) ScheduleRemove() {
	e.flags.requestRemove()
	e.flags.requestDeactivate()
}

// PushParam writes a parameter value bound for the audio thread.
func (e *Entry) PushParam(id uint32, value float64) error {
	e.mu.Lock()
	q := e.toAudio
	e.mu.Unlock()
	if q == nil {
		return fmt.Errorf("host: plugin %s is not active", e.id)
	}
	return q.push(id, value)
}

// IdleResultKind is the coarse result variant on_idle returns
// (spec.md §4.2).
type IdleResultKind uint8

const (
	IdleOk IdleResultKind = iota
	IdlePluginDeactivated
	IdlePluginActivated
	IdlePluginReadyToRemove
	IdlePluginFailedToActivate
)

// IdleResult is host.on_idle's tagged return value. Kind selects which
// payload fields are meaningful.
type IdleResult struct {
	Kind           IdleResultKind
	AudioThread    *AudioThread
	Ports          abi.AudioPortsInfo
	NotePorts      abi.NotePortsInfo
	Err            error
	ModifiedParams []ParamUpdate
}

// OnIdle is the main-thread reconciliation tick (spec.md §4.2). It
// services pending requests in order — callback, then a bare restart
// (converted to a deactivate request while the plugin is still active),
// then deactivate (if ready), then restart-after-deactivate, then
// ready-to-remove — and drains the audio→main parameter queue regardless
// of which branch fired.
func (e *Entry) OnIdle(sampleRate float64, minFrames, maxFrames int) IdleResult {
	if e.flags.takeCallback() {
		e.main.OnMainThread()
	}

	result := IdleResult{Kind: IdleOk}

	// A restart requested while the plugin is merely active (not yet
	// ready to deactivate) only becomes a deactivate request here; the
	// audio thread drains that into ActiveAndReadyToDeactivate on its
	// next cycle, at which point the branch below restarts it.
	if st := e.state.Load(); st.IsActive() && st != ActiveAndReadyToDeactivate && e.flags.takeRestart() {
		e.flags.requestDeactivate()
	}

	if e.state.Load() == ActiveAndReadyToDeactivate {
		e.mu.Lock()
		e.main.Deactivate()
		e.audio = nil
		e.mu.Unlock()
		e.state.Store(Inactive)
		e.flags.clearDeactivate()
		result.Kind = IdlePluginDeactivated

		if e.flags.takeRestart() {
			e.flags.clearRestart()
			at, ports, err := e.Activate(sampleRate, minFrames, maxFrames)
			if err != nil {
				result.Kind = IdlePluginFailedToActivate
				result.Err = err
			} else {
				result.Kind = IdlePluginActivated
				result.AudioThread = at
				result.Ports = ports
				result.NotePorts = e.NotePorts()
			}
		} else if e.flags.removeRequested() {
			result.Kind = IdlePluginReadyToRemove
		}
	} else if e.state.Load() == Inactive && e.flags.removeRequested() {
		result.Kind = IdlePluginReadyToRemove
	}

	e.mu.Lock()
	q := e.toMain
	e.mu.Unlock()
	if q != nil {
		q.inner.Drain(func(id uint32, v paramValue) {
			result.ModifiedParams = append(result.ModifiedParams, ParamUpdate{ID: id, Value: v.V})
		})
	}

	return result
}

// Latency reports the plugin's declared processing latency in samples.
func (e *Entry) Latency() int {
	if e.main == nil {
		return 0
	}
	return e.main.Latency()
}

// CollectSaveState asks the plugin for its persisted blob.
func (e *Entry) CollectSaveState() (abi.SaveState, error) {
	return e.main.CollectSaveState()
}

// LoadState restores a previously collected blob.
func (e *Entry) LoadState(data abi.SaveState) error {
	return e.main.LoadState(data)
}
