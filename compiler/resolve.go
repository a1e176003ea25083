package compiler

import (
	"fmt"
	"sort"

	"github.com/shaban/pluginhost/bufferpool"
	"github.com/shaban/pluginhost/graph"
	"github.com/shaban/pluginhost/schedule"
)

func isEventType(t graph.PortType) bool {
	return t == graph.PortNote || t == graph.PortAutomation
}

func filterSortPorts(ports []graph.PortKey, t graph.PortType, dir graph.Direction) []graph.PortKey {
	var out []graph.PortKey
	for _, p := range ports {
		if p.Type == t && p.Dir == dir {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StableID != out[j].StableID {
			return out[i].StableID < out[j].StableID
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

func filterSortEventPorts(ports []graph.PortKey, dir graph.Direction) []graph.PortKey {
	var out []graph.PortKey
	for _, p := range ports {
		if isEventType(p.Type) && p.Dir == dir {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StableID != out[j].StableID {
			return out[i].StableID < out[j].StableID
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

func audioOutputPorts(g *graph.Graph, node graph.NodeHandle) []graph.PortKey {
	return filterSortPorts(g.Ports(node), graph.PortAudio, graph.DirOutput)
}

func noteOutputPorts(g *graph.Graph, node graph.NodeHandle) []graph.PortKey {
	return filterSortEventPorts(g.Ports(node), graph.DirOutput)
}

// resolveAudioAndNoteInputs assigns every input buffer a node needs,
// following spec.md §4.4 step 2: no edge → fresh pool buffer marked
// clear-on-read; one edge → zero-copy reuse of the producer's buffer;
// ≥2 edges → a Sum task, with delay compensation inserted on whichever
// incoming paths arrive with less accumulated latency (this
// implementation's resolution of Open Question i: destinations carry
// the equalizing delay).
//
// Note/automation ports are resolved the same way except multi-producer
// fan-in is never summed into a new buffer (spec.md's Sum task is
// defined over audio samples only): every connected producer's event
// buffer is instead handed to the consumer directly, ordered by
// producer stable-id/channel, and the plugin task drains all of them
// each cycle — the merge happens at read time rather than at a
// dedicated task, matching how the original source's
// write_input_note_events() iterates every connected producer buffer
// for a note-port index.
func (c *compilation) resolveAudioAndNoteInputs(node graph.NodeHandle) (audio, notes []*bufferpool.Buffer, maxInLatency int, err error) {
	ports := c.g.Ports(node)

	for _, pk := range filterSortPorts(ports, graph.PortAudio, graph.DirInput) {
		edges := c.g.InEdgesForPort(node, pk)
		switch len(edges) {
		case 0:
			buf := c.pool.Acquire(bufferpool.KindAudio, c.maxFrames)
			c.clearList = append(c.clearList, buf)
			audio = append(audio, buf)
		case 1:
			src := edges[0].Src
			buf, ok := c.outputs[portBuffer{src.Node, src.Key}]
			if !ok {
				return nil, nil, 0, &Error{Kind: ErrUnexpected, Msg: fmt.Sprintf("missing producer buffer for %+v", src)}
			}
			audio = append(audio, buf)
			if lat := c.latency[src.Node]; lat > maxInLatency {
				maxInLatency = lat
			}
		default:
			buf, lat, serr := c.sumWithDelayComp(edges)
			if serr != nil {
				return nil, nil, 0, serr
			}
			audio = append(audio, buf)
			if lat > maxInLatency {
				maxInLatency = lat
			}
		}
	}

	for _, pk := range filterSortEventPorts(ports, graph.DirInput) {
		edges := c.g.InEdgesForPort(node, pk)
		if len(edges) == 0 {
			buf := c.pool.Acquire(bufferpool.KindNote, 0)
			c.clearList = append(c.clearList, buf)
			notes = append(notes, buf)
			continue
		}

		sorted := make([]graph.Edge, len(edges))
		copy(sorted, edges)
		sort.Slice(sorted, func(i, j int) bool {
			if sorted[i].Src.Key.StableID != sorted[j].Src.Key.StableID {
				return sorted[i].Src.Key.StableID < sorted[j].Src.Key.StableID
			}
			return sorted[i].Src.Key.Channel < sorted[j].Src.Key.Channel
		})

		for _, e := range sorted {
			buf, ok := c.outputs[portBuffer{e.Src.Node, e.Src.Key}]
			if !ok {
				return nil, nil, 0, &Error{Kind: ErrUnexpected, Msg: fmt.Sprintf("missing producer buffer for %+v", e.Src)}
			}
			notes = append(notes, buf)
		}
	}

	return audio, notes, maxInLatency, nil
}

// sumWithDelayComp materializes a Sum task for a port with ≥2 incoming
// edges, first equalizing every producer to the slowest incoming path's
// accumulated latency via a DelayComp task (spec.md §4.4 step 2, §9
// Open Question i).
func (c *compilation) sumWithDelayComp(edges []graph.Edge) (*bufferpool.Buffer, int, error) {
	producers := make([]*bufferpool.Buffer, len(edges))
	latencies := make([]int, len(edges))
	for i, e := range edges {
		buf, ok := c.outputs[portBuffer{e.Src.Node, e.Src.Key}]
		if !ok {
			return nil, 0, &Error{Kind: ErrUnexpected, Msg: fmt.Sprintf("missing producer buffer for %+v", e.Src)}
		}
		producers[i] = buf
		latencies[i] = c.latency[e.Src.Node]
	}

	target := maxIntSlice(latencies)
	sumInputs := make([]*bufferpool.Buffer, len(producers))
	for i, buf := range producers {
		diff := target - latencies[i]
		if diff <= 0 {
			sumInputs[i] = buf
			continue
		}
		delayed := c.pool.Acquire(bufferpool.KindAudio, c.maxFrames)
		c.tasks = append(c.tasks, schedule.Task{
			Kind: schedule.KindDelayComp,
			DelayComp: &schedule.DelayCompTask{
				Input:        buf,
				Output:       delayed,
				DelaySamples: diff,
			},
		})
		sumInputs[i] = delayed
	}

	out := c.pool.Acquire(bufferpool.KindAudio, c.maxFrames)
	c.tasks = append(c.tasks, schedule.Task{
		Kind: schedule.KindSum,
		Sum:  &schedule.SumTask{Inputs: sumInputs, Output: out},
	})
	return out, target, nil
}

// resolveGraphOutputs assigns each graph-output channel its source
// buffer, using the same zero-copy/sum rules as a plugin's audio input.
func (c *compilation) resolveGraphOutputs(graphOut graph.NodeHandle, channels int) ([]*bufferpool.Buffer, error) {
	out := make([]*bufferpool.Buffer, channels)
	for ch := 0; ch < channels; ch++ {
		key := graph.PortKey{Type: graph.PortAudio, StableID: 0, Dir: graph.DirInput, Channel: uint16(ch)}
		edges := c.g.InEdgesForPort(graphOut, key)

		switch len(edges) {
		case 0:
			buf := c.pool.Acquire(bufferpool.KindAudio, c.maxFrames)
			c.clearList = append(c.clearList, buf)
			out[ch] = buf
		case 1:
			src := edges[0].Src
			buf, ok := c.outputs[portBuffer{src.Node, src.Key}]
			if !ok {
				return nil, &Error{Kind: ErrUnexpected, Msg: fmt.Sprintf("missing producer buffer for %+v", src)}
			}
			out[ch] = buf
		default:
			buf, _, err := c.sumWithDelayComp(edges)
			if err != nil {
				return nil, err
			}
			out[ch] = buf
		}
	}
	return out, nil
}
