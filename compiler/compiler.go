// Package compiler transforms the abstract graph plus per-plugin port
// metadata into a linear, immutable schedule the audio thread can
// execute without allocating (spec.md §4.4).
package compiler

import (
	"fmt"

	"github.com/shaban/pluginhost/bufferpool"
	"github.com/shaban/pluginhost/graph"
	"github.com/shaban/pluginhost/host"
	"github.com/shaban/pluginhost/schedule"
)

// PluginInfo is everything the compiler needs about one graph node
// beyond its topology: whether it's active, its audio-thread handle,
// and its declared processing latency.
type PluginInfo struct {
	Active  bool
	Audio   *host.AudioThread
	Latency int
	ID      string
}

// ErrorKind names the compilation failure classes of spec.md §7.
type ErrorKind string

const (
	ErrVerifier   ErrorKind = "VerifierError"
	ErrUnexpected ErrorKind = "UnexpectedError"
)

// Error is returned by Compile; on any error the caller must install an
// empty schedule (spec.md §4.4 "Failure policy").
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("compiler: %s: %s", e.Kind, e.Msg) }

// portBuffer keys a resolved output buffer by the exact node/port/channel
// that produces it.
type portBuffer struct {
	node graph.NodeHandle
	key  graph.PortKey
}

// compilation carries the mutable state threaded through one Compile
// call: resolved producer buffers, per-node accumulated latency, and
// the schedule under construction.
type compilation struct {
	g         *graph.Graph
	plugins   map[graph.NodeHandle]PluginInfo
	pool      *bufferpool.Pool
	maxFrames int

	outputs map[portBuffer]*bufferpool.Buffer
	latency map[graph.NodeHandle]int

	tasks     []schedule.Task
	clearList []*bufferpool.Buffer
}

// Compile runs the graph-to-schedule algorithm of spec.md §4.4. plugins
// maps every non-pseudo node handle to its PluginInfo; graph-in/out are
// handled internally. On any failure, callers must fall back to
// schedule.Empty(pool, maxFrames, graphInChannels, graphOutChannels).
func Compile(
	g *graph.Graph,
	plugins map[graph.NodeHandle]PluginInfo,
	pool *bufferpool.Pool,
	graphInChannels, graphOutChannels, maxFrames int,
) (*schedule.Schedule, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return nil, &Error{Kind: ErrUnexpected, Msg: err.Error()}
	}

	c := &compilation{
		g:         g,
		plugins:   plugins,
		pool:      pool,
		maxFrames: maxFrames,
		outputs:   make(map[portBuffer]*bufferpool.Buffer),
		latency:   make(map[graph.NodeHandle]int),
	}

	graphIn := g.GraphIn()
	graphOut := g.GraphOut()

	graphInBuffers := make([]*bufferpool.Buffer, graphInChannels)
	for ch := 0; ch < graphInChannels; ch++ {
		buf := pool.Acquire(bufferpool.KindAudio, maxFrames)
		graphInBuffers[ch] = buf
		c.outputs[portBuffer{graphIn, graph.PortKey{Type: graph.PortAudio, StableID: 0, Dir: graph.DirOutput, Channel: uint16(ch)}}] = buf
	}
	c.latency[graphIn] = 0

	for _, node := range order {
		if node == graphIn || node == graphOut {
			continue
		}

		info, known := plugins[node]
		if !known {
			return nil, &Error{Kind: ErrUnexpected, Msg: fmt.Sprintf("no PluginInfo for node %s", node)}
		}

		audioIn, noteIn, maxInLatency, err := c.resolveAudioAndNoteInputs(node)
		if err != nil {
			return nil, err
		}

		outPorts := audioOutputPorts(g, node)
		outputs := make([]*bufferpool.Buffer, len(outPorts))
		for i, pk := range outPorts {
			buf := pool.Acquire(bufferpool.KindAudio, maxFrames)
			outputs[i] = buf
			c.outputs[portBuffer{node, pk}] = buf
		}

		noteOutPorts := noteOutputPorts(g, node)
		noteOutputs := make([]*bufferpool.Buffer, len(noteOutPorts))
		for i, pk := range noteOutPorts {
			buf := pool.Acquire(bufferpool.KindNote, 0)
			noteOutputs[i] = buf
			c.outputs[portBuffer{node, pk}] = buf
		}

		if info.Active {
			c.latency[node] = info.Latency + maxInLatency
			c.tasks = append(c.tasks, schedule.Task{
				Kind: schedule.KindPlugin,
				Plugin: &schedule.PluginTask{
					PluginID: info.ID,
					Audio:    info.Audio,
					Inputs:   audioIn,
					Outputs:  outputs,
					EventIn:  noteIn,
					EventOut: noteOutputs,
				},
			})
		} else {
			c.latency[node] = maxInLatency
			c.tasks = append(c.tasks, schedule.Task{
				Kind: schedule.KindDeactivatedPassthrough,
				Deactivated: &schedule.DeactivatedPluginTask{
					Inputs:  audioIn,
					Outputs: outputs,
				},
			})
		}
	}

	graphOutBuffers, err := c.resolveGraphOutputs(graphOut, graphOutChannels)
	if err != nil {
		return nil, err
	}

	sched := &schedule.Schedule{
		Tasks:               c.tasks,
		MaxFrames:           maxFrames,
		GraphInBuffers:      graphInBuffers,
		GraphOutBuffers:     graphOutBuffers,
		ClearAudioInBuffers: c.clearList,
	}

	if err := Verify(sched); err != nil {
		return nil, err
	}

	return sched, nil
}

func maxIntSlice(vs []int) int {
	m := 0
	for _, v := range vs {
		if v > m {
			m = v
		}
	}
	return m
}
