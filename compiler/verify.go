package compiler

import (
	"fmt"

	"github.com/shaban/pluginhost/bufferpool"
	"github.com/shaban/pluginhost/schedule"
)

// Verify checks a compiled schedule before it is ever published: no
// buffer appears twice among one task's inputs or twice among its
// outputs, every Sum task has at least two inputs, and each plugin
// appears in at most one Plugin task. It does not check how buffers are
// shared between different tasks. Any violation is a compiler bug, not
// a user error, so the caller must discard the schedule and install an
// empty one.
func Verify(sched *schedule.Schedule) error {
	for i, t := range sched.Tasks {
		ins, outs := taskBuffers(t)

		if hasDuplicate(ins) {
			return &Error{Kind: ErrVerifier, Msg: fmt.Sprintf("task %d (%s): duplicate input buffer", i, t.Kind)}
		}
		if hasDuplicate(outs) {
			return &Error{Kind: ErrVerifier, Msg: fmt.Sprintf("task %d (%s): duplicate output buffer", i, t.Kind)}
		}

		if t.Kind == schedule.KindSum && len(t.Sum.Inputs) < 2 {
			return &Error{Kind: ErrVerifier, Msg: fmt.Sprintf("task %d: sum task has %d inputs, want ≥2", i, len(t.Sum.Inputs))}
		}
	}

	seenPlugins := map[string]bool{}
	for i, t := range sched.Tasks {
		if t.Kind != schedule.KindPlugin {
			continue
		}
		id := t.Plugin.PluginID
		if seenPlugins[id] {
			return &Error{Kind: ErrVerifier, Msg: fmt.Sprintf("task %d: plugin %s scheduled more than once", i, id)}
		}
		seenPlugins[id] = true
	}

	return nil
}

func taskBuffers(t schedule.Task) (ins, outs []*bufferpool.Buffer) {
	switch t.Kind {
	case schedule.KindPlugin:
		return append(append([]*bufferpool.Buffer{}, t.Plugin.Inputs...), t.Plugin.EventIn...), t.Plugin.Outputs
	case schedule.KindDelayComp:
		return []*bufferpool.Buffer{t.DelayComp.Input}, []*bufferpool.Buffer{t.DelayComp.Output}
	case schedule.KindSum:
		return t.Sum.Inputs, []*bufferpool.Buffer{t.Sum.Output}
	case schedule.KindDeactivatedPassthrough:
		return t.Deactivated.Inputs, t.Deactivated.Outputs
	default:
		return nil, nil
	}
}

func hasDuplicate(buffers []*bufferpool.Buffer) bool {
	seen := make(map[*bufferpool.Buffer]bool, len(buffers))
	for _, b := range buffers {
		if seen[b] {
			return true
		}
		seen[b] = true
	}
	return false
}
