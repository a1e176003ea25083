package host

import "fmt"

// ActivationErrorKind names the activation failure classes of spec.md §7.
type ActivationErrorKind string

const (
	ErrNotLoaded              ActivationErrorKind = "NotLoaded"
	ErrAlreadyActive          ActivationErrorKind = "AlreadyActive"
	ErrRestartScheduled       ActivationErrorKind = "RestartScheduled"
	ErrFailedToGetAudioPorts  ActivationErrorKind = "FailedToGetAudioPortsExt"
	ErrPluginSpecific         ActivationErrorKind = "PluginSpecific"
)

// ActivationError is returned by CanActivate/Activate. It wraps an inner
// cause where spec.md §7 names one (FailedToGetAudioPortsExt, PluginSpecific).
type ActivationError struct {
	Kind  ActivationErrorKind
	Inner error
}

func (e *ActivationError) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("host: %s: %v", e.Kind, e.Inner)
	}
	return fmt.Sprintf("host: %s", e.Kind)
}

func (e *ActivationError) Unwrap() error { return e.Inner }
