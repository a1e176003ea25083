// Package host wraps a single plugin instance: its lifecycle state
// machine, its cross-thread request flags, and its two parameter
// reducing queues (spec.md §3 "Plugin Host Entry", §4.2).
package host

import "sync/atomic"

// State is the plugin lifecycle state of spec.md §3, stored as a
// lock-free atomic word. Values are exhaustive and ordered exactly as
// spec.md lists them.
type State uint32

const (
	Inactive State = iota + 1
	InactiveWithError
	ActiveAndSleeping
	ActiveAndProcessing
	ActiveAndWaitingForQuiet
	ActiveAndWaitingForTail
	ActiveWithError
	ActiveAndReadyToDeactivate
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case InactiveWithError:
		return "InactiveWithError"
	case ActiveAndSleeping:
		return "ActiveAndSleeping"
	case ActiveAndProcessing:
		return "ActiveAndProcessing"
	case ActiveAndWaitingForQuiet:
		return "ActiveAndWaitingForQuiet"
	case ActiveAndWaitingForTail:
		return "ActiveAndWaitingForTail"
	case ActiveWithError:
		return "ActiveWithError"
	case ActiveAndReadyToDeactivate:
		return "ActiveAndReadyToDeactivate"
	default:
		return "Unknown"
	}
}

// IsActive reports state ∈ {3..8}.
func (s State) IsActive() bool { return s >= ActiveAndSleeping }

// IsProcessing reports state ∈ {4,5,6}.
func (s State) IsProcessing() bool {
	return s == ActiveAndProcessing || s == ActiveAndWaitingForQuiet || s == ActiveAndWaitingForTail
}

// IsSleeping reports state = 3.
func (s State) IsSleeping() bool { return s == ActiveAndSleeping }

// sharedState is the single atomic word backing a plugin's lifecycle
// state (spec.md §5, §9 "Atomic state word"): the one deliberate
// departure from this package's otherwise mutex-guarded fields, because
// the audio thread must read and write it without ever blocking on the
// main thread. All transitions are single-writer per side: the audio
// thread only ever writes ActiveAnd*/ActiveWithError states, the main
// thread writes Inactive/InactiveWithError, plus ActiveAndSleeping when
// Entry.Activate succeeds.
type sharedState struct {
	word atomic.Uint32
}

func newSharedState(initial State) *sharedState {
	s := &sharedState{}
	s.word.Store(uint32(initial))
	return s
}

func (s *sharedState) Load() State { return State(s.word.Load()) }
func (s *sharedState) Store(v State) { s.word.Store(uint32(v)) }

// requestFlags holds the five idempotent cross-thread request bits of
// spec.md §3. Each is safe to set from any thread; only the owning side
// clears it.
type requestFlags struct {
	restart    atomic.Bool
	process    atomic.Bool
	callback   atomic.Bool
	deactivate atomic.Bool
	remove     atomic.Bool
}

func (r *requestFlags) RequestRestart()  { r.restart.Store(true) }
func (r *requestFlags) RequestProcess()  { r.process.Store(true) }
func (r *requestFlags) RequestCallback() { r.callback.Store(true) }

func (r *requestFlags) requestDeactivate() { r.deactivate.Store(true) }
func (r *requestFlags) requestRemove()     { r.remove.Store(true) }

func (r *requestFlags) takeDeactivate() bool { return r.deactivate.Load() }
func (r *requestFlags) takeProcess() bool    { return r.process.Swap(false) }
func (r *requestFlags) takeCallback() bool   { return r.callback.Swap(false) }
func (r *requestFlags) takeRestart() bool    { return r.restart.Load() }

func (r *requestFlags) clearRestart()    { r.restart.Store(false) }
func (r *requestFlags) clearDeactivate() { r.deactivate.Store(false) }
func (r *requestFlags) clearRemove()     { r.remove.Store(false) }

func (r *requestFlags) removeRequested() bool { return r.remove.Load() }
