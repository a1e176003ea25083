// Package events defines the lifecycle notifications the coordinator
// dispatches to its caller. Sink mirrors the single-method nil-safe
// handler shape macaudio's ErrorHandler uses, generalized to the full
// set of lifecycle events spec.md §4.6/§7 names.
package events

import "github.com/shaban/pluginhost/abi"

// Kind names one lifecycle event variant.
type Kind uint8

const (
	PluginActivated Kind = iota
	PluginDeactivated
	PluginReadyToRemove
	PluginFailedToActivate
	ParametersModified
	EngineDeactivated
)

func (k Kind) String() string {
	switch k {
	case PluginActivated:
		return "PluginActivated"
	case PluginDeactivated:
		return "PluginDeactivated"
	case PluginReadyToRemove:
		return "PluginReadyToRemove"
	case PluginFailedToActivate:
		return "PluginFailedToActivate"
	case ParametersModified:
		return "ParametersModified"
	case EngineDeactivated:
		return "EngineDeactivated"
	default:
		return "Unknown"
	}
}

// ParamChange is one modified parameter reported alongside a
// ParametersModified event.
type ParamChange struct {
	ID    uint32
	Value float64
}

// Event is a single lifecycle notification. Only the fields relevant to
// Kind are populated.
type Event struct {
	Kind       Kind
	PluginID   string
	Ports      abi.AudioPortsInfo
	Err        error
	ParamsChanged []ParamChange
}

// Sink receives lifecycle events emitted by the coordinator's OnIdle
// tick. A nil Sink is valid everywhere events are accepted — callers
// that don't care about lifecycle notifications simply pass nil.
type Sink interface {
	HandleEvent(Event)
}

// Dispatch calls sink.HandleEvent if sink is non-nil; the nil-safe
// optional-handler idiom carried over from macaudio's ErrorHandler.
func Dispatch(sink Sink, ev Event) {
	if sink == nil {
		return
	}
	sink.HandleEvent(ev)
}

// LoggingSink wraps a structured logger and reports every event at
// info/warn level, matching macaudio's LoggingErrorHandler shape.
type LoggingSink struct {
	Log interface {
		Infof(format string, args ...any)
		Warnf(format string, args ...any)
	}
}

func (s *LoggingSink) HandleEvent(ev Event) {
	if s.Log == nil {
		return
	}
	if ev.Err != nil {
		s.Log.Warnf("%s plugin=%s err=%v", ev.Kind, ev.PluginID, ev.Err)
		return
	}
	s.Log.Infof("%s plugin=%s", ev.Kind, ev.PluginID)
}
