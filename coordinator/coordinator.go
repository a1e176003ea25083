package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/shaban/pluginhost/abi"
	"github.com/shaban/pluginhost/bufferpool"
	"github.com/shaban/pluginhost/compiler"
	"github.com/shaban/pluginhost/events"
	"github.com/shaban/pluginhost/graph"
	"github.com/shaban/pluginhost/host"
	"github.com/shaban/pluginhost/savestate"
	"github.com/shaban/pluginhost/schedule"
)

// Coordinator is the Main-Thread Coordinator facade of spec.md §4.6: the
// single owner of the abstract graph and the plugin host registry. Every
// exported method except Executor is main-thread-only
// and must not be called concurrently with itself.
type Coordinator struct {
	mu  sync.Mutex
	cfg Config

	g       *graph.Graph
	pool    *bufferpool.Pool
	shared  *schedule.SharedSchedule

	entries    map[graph.NodeHandle]*host.Entry
	pluginKeys map[graph.NodeHandle]string
	order      []graph.NodeHandle

	recompile bool
}

// New builds a coordinator with an empty graph and an empty published
// schedule.
func New(cfg Config) *Coordinator {
	cfg.setDefaults()
	c := &Coordinator{
		cfg:        cfg,
		g:          graph.New(),
		pool:       bufferpool.New(cfg.MaxFrames),
		shared:     schedule.NewSharedSchedule(cfg.MaxFrames),
		entries:    make(map[graph.NodeHandle]*host.Entry),
		pluginKeys: make(map[graph.NodeHandle]string),
	}
	for ch := uint16(0); ch < uint16(cfg.GraphInChannels); ch++ {
		_ = c.g.AddPort(c.g.GraphIn(), graph.PortKey{Type: graph.PortAudio, StableID: 0, Dir: graph.DirOutput, Channel: ch})
	}
	for ch := uint16(0); ch < uint16(cfg.GraphOutChannels); ch++ {
		_ = c.g.AddPort(c.g.GraphOut(), graph.PortKey{Type: graph.PortAudio, StableID: 0, Dir: graph.DirInput, Channel: ch})
	}

	c.shared.Publish(schedule.Empty(c.pool, cfg.MaxFrames, cfg.GraphInChannels, cfg.GraphOutChannels))
	return c
}

// Executor returns a fresh audio-thread executor bound to this
// coordinator's published schedule cell. Safe to call once and reuse;
// the executor itself holds no coordinator state besides the cell.
func (c *Coordinator) Executor() *schedule.Executor {
	return schedule.NewExecutor(c.shared, c.cfg.MaxFrames)
}

// Graph exposes the underlying graph for callers that need read-only
// introspection (e.g. rendering a UI topology view).
func (c *Coordinator) Graph() *graph.Graph { return c.g }

// AddPlugin instantiates a new plugin instance from a save-state plugin
// record, inserts it into the graph, and — if the record requests it —
// activates it immediately (spec.md §4.6 "add_plugin(save_state)").
func (c *Coordinator) AddPlugin(rec savestate.PluginRecord) (graph.NodeHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addPluginLocked(rec)
}

func (c *Coordinator) addPluginLocked(rec savestate.PluginRecord) (graph.NodeHandle, error) {
	factory, err := c.cfg.Factories(rec.Key)
	if err != nil {
		return graph.NodeHandle{}, &ErrNoFactory{Key: rec.Key, Inner: err}
	}

	identity := c.g.AddNode(rec.Format, rec.Key)
	entry, err := host.New(factory, identity.Handle.String(), c.cfg.HostName, c.cfg.HostVersion)
	if err != nil {
		_ = c.g.RemoveNode(identity.Handle)
		return graph.NodeHandle{}, err
	}

	c.entries[identity.Handle] = entry
	c.pluginKeys[identity.Handle] = rec.Key
	c.order = append(c.order, identity.Handle)

	if len(rec.Bytes) > 0 {
		if err := entry.LoadState(rec.Bytes); err != nil {
			c.cfg.Logger.Warnf("coordinator: loading saved state for %s: %v", rec.Key, err)
		}
	}

	if rec.ActivationRequested {
		if err := c.activateLocked(identity.Handle); err != nil {
			c.cfg.Logger.Warnf("coordinator: activating restored plugin %s: %v", rec.Key, err)
		}
	}

	c.recompile = true
	return identity.Handle, nil
}

// Activate activates a previously added plugin instance and declares its
// queried audio/note ports on the graph.
func (c *Coordinator) Activate(id graph.NodeHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activateLocked(id)
}

func (c *Coordinator) activateLocked(id graph.NodeHandle) error {
	entry, ok := c.entries[id]
	if !ok {
		return &ErrUnknownNode{Node: id}
	}

	_, ports, err := entry.Activate(c.cfg.SampleRate, c.cfg.MinFrames, c.cfg.MaxFrames)
	if err != nil {
		c.recompile = true
		return err
	}

	declarePorts(c.g, id, ports, entry.NotePorts())
	c.recompile = true
	return nil
}

func declarePorts(g *graph.Graph, id graph.NodeHandle, audio abi.AudioPortsInfo, notes abi.NotePortsInfo) {
	for _, p := range audio.Inputs {
		for ch := uint16(0); ch < p.Channels; ch++ {
			_ = g.AddPort(id, graph.PortKey{Type: graph.PortAudio, StableID: p.StableID, Dir: graph.DirInput, Channel: ch})
		}
	}
	for _, p := range audio.Outputs {
		for ch := uint16(0); ch < p.Channels; ch++ {
			_ = g.AddPort(id, graph.PortKey{Type: graph.PortAudio, StableID: p.StableID, Dir: graph.DirOutput, Channel: ch})
		}
	}
	for _, p := range notes.Inputs {
		_ = g.AddPort(id, graph.PortKey{Type: graph.PortNote, StableID: p.StableID, Dir: graph.DirInput})
	}
	for _, p := range notes.Outputs {
		_ = g.AddPort(id, graph.PortKey{Type: graph.PortNote, StableID: p.StableID, Dir: graph.DirOutput})
	}
}

// PushParam writes a parameter value bound for a plugin's audio thread.
func (c *Coordinator) PushParam(id graph.NodeHandle, paramID uint32, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok {
		return &ErrUnknownNode{Node: id}
	}
	return entry.PushParam(paramID, value)
}

// RemovePlugins schedules deactivation+removal of the given plugin
// instances. Removal completes asynchronously: the node and its entry
// are dropped from the graph/registry only once a subsequent OnIdle
// observes IdlePluginReadyToRemove (spec.md §4.6).
func (c *Coordinator) RemovePlugins(ids []graph.NodeHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		entry, ok := c.entries[id]
		if !ok {
			return &ErrUnknownNode{Node: id}
		}
		entry.ScheduleRemove()
	}
	return nil
}

// ConnectEdge connects two ports, refusing cycles and type mismatches
// (spec.md §4.3). The graph is left unchanged on error.
func (c *Coordinator) ConnectEdge(src, dst graph.PortRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.g.Connect(src, dst); err != nil {
		return err
	}
	c.recompile = true
	return nil
}

// DisconnectEdge removes a previously connected edge; a no-op if it
// doesn't exist.
func (c *Coordinator) DisconnectEdge(src, dst graph.PortRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.g.Disconnect(src, dst); err != nil {
		return err
	}
	c.recompile = true
	return nil
}

// Compile invokes the graph compiler and atomically publishes the
// resulting schedule. On any compiler error it installs an empty
// schedule and dispatches EngineDeactivated (spec.md §4.4 "Failure
// policy", §7).
func (c *Coordinator) Compile(sink events.Sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compileLocked(sink)
}

func (c *Coordinator) compileLocked(sink events.Sink) error {
	plugins := make(map[graph.NodeHandle]compiler.PluginInfo, len(c.entries))
	for id, entry := range c.entries {
		plugins[id] = compiler.PluginInfo{
			Active:  entry.State().IsActive(),
			Audio:   entry.Audio(),
			Latency: entry.Latency(),
			ID:      entry.ID(),
		}
	}

	sched, err := compiler.Compile(c.g, plugins, c.pool, c.cfg.GraphInChannels, c.cfg.GraphOutChannels, c.cfg.MaxFrames)
	if err != nil {
		c.cfg.Logger.Warnf("coordinator: compile failed, installing empty schedule: %v", err)
		c.shared.Publish(schedule.Empty(c.pool, c.cfg.MaxFrames, c.cfg.GraphInChannels, c.cfg.GraphOutChannels))
		events.Dispatch(sink, events.Event{Kind: events.EngineDeactivated, Err: err})
		return err
	}

	c.shared.Publish(sched)
	c.recompile = false
	return nil
}

// OnIdle runs every plugin host entry's reconciliation tick, dispatching
// a lifecycle event for each state transition it observes, and reports
// whether any structural change occurred (spec.md §4.6).
func (c *Coordinator) OnIdle(sink events.Sink) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onIdleLocked(sink)
}

func (c *Coordinator) onIdleLocked(sink events.Sink) bool {
	changed := false

	ids := make([]graph.NodeHandle, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}

	for _, id := range ids {
		entry, ok := c.entries[id]
		if !ok {
			continue
		}
		result := entry.OnIdle(c.cfg.SampleRate, c.cfg.MinFrames, c.cfg.MaxFrames)

		switch result.Kind {
		case host.IdlePluginDeactivated:
			changed = true
			events.Dispatch(sink, events.Event{Kind: events.PluginDeactivated, PluginID: entry.ID()})
		case host.IdlePluginActivated:
			changed = true
			declarePorts(c.g, id, result.Ports, result.NotePorts)
			events.Dispatch(sink, events.Event{Kind: events.PluginActivated, PluginID: entry.ID(), Ports: result.Ports})
		case host.IdlePluginFailedToActivate:
			changed = true
			events.Dispatch(sink, events.Event{Kind: events.PluginFailedToActivate, PluginID: entry.ID(), Err: result.Err})
		case host.IdlePluginReadyToRemove:
			changed = true
			_ = c.g.RemoveNode(id)
			delete(c.entries, id)
			delete(c.pluginKeys, id)
			c.order = removeHandle(c.order, id)
			events.Dispatch(sink, events.Event{Kind: events.PluginReadyToRemove, PluginID: entry.ID()})
		}

		if len(result.ModifiedParams) > 0 {
			changes := make([]events.ParamChange, len(result.ModifiedParams))
			for i, p := range result.ModifiedParams {
				changes[i] = events.ParamChange{ID: p.ID, Value: p.Value}
			}
			events.Dispatch(sink, events.Event{Kind: events.ParametersModified, PluginID: entry.ID(), ParamsChanged: changes})
		}
	}

	if changed {
		c.recompile = true
	}
	return c.recompile
}

func removeHandle(hs []graph.NodeHandle, target graph.NodeHandle) []graph.NodeHandle {
	out := hs[:0]
	for _, h := range hs {
		if h != target {
			out = append(out, h)
		}
	}
	return out
}

// CollectSaveState captures every live plugin instance's persisted state
// and the edges between them, in the index convention of spec.md §6.
func (c *Coordinator) CollectSaveState() (*savestate.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := savestate.New()
	index := map[graph.NodeHandle]int{
		c.g.GraphIn():  savestate.GraphInIndex,
		c.g.GraphOut(): savestate.GraphOutIndex,
	}

	for i, id := range c.order {
		entry := c.entries[id]
		ports := entry.AudioPorts()
		bytes, err := entry.CollectSaveState()
		if err != nil {
			return nil, fmt.Errorf("coordinator: collecting save state for %s: %w", entry.ID(), err)
		}
		identity, _ := c.g.Identity(id)

		rec.Plugins = append(rec.Plugins, savestate.PluginRecord{
			Format:              identity.Format,
			Key:                 c.pluginKeys[id],
			Bytes:               bytes,
			AudioInChannels:     ports.TotalInChannels(),
			AudioOutChannels:    ports.TotalOutChannels(),
			ActivationRequested: entry.State().IsActive(),
		})
		index[id] = savestate.PluginIndex(i)
	}

	for _, e := range c.g.AllEdges() {
		rec.Edges = append(rec.Edges, savestate.EdgeRecord{
			PortType:       e.Src.Key.Type,
			SrcPluginIndex: index[e.Src.Node],
			DstPluginIndex: index[e.Dst.Node],
			SrcStableID:    e.Src.Key.StableID,
			SrcChannel:     e.Src.Key.Channel,
			DstStableID:    e.Dst.Key.StableID,
			DstChannel:     e.Dst.Key.Channel,
		})
	}

	return rec, nil
}

// RestoreFromSaveState deactivates and removes every current plugin
// (waiting up to Config.ResetTimeout for audio-thread confirmation, then
// forcing an empty schedule), recreates each plugin in the recorded
// order, and re-applies the recorded edges (spec.md §4.6).
func (c *Coordinator) RestoreFromSaveState(rec *savestate.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked()

	newOrder := make([]graph.NodeHandle, 0, len(rec.Plugins))
	for _, pr := range rec.Plugins {
		id, err := c.addPluginLocked(pr)
		if err != nil {
			return fmt.Errorf("coordinator: restoring plugin %q: %w", pr.Key, err)
		}
		newOrder = append(newOrder, id)
	}

	resolve := func(idx int) (graph.NodeHandle, bool) {
		switch idx {
		case savestate.GraphInIndex:
			return c.g.GraphIn(), true
		case savestate.GraphOutIndex:
			return c.g.GraphOut(), true
		default:
			i := idx - 2
			if i < 0 || i >= len(newOrder) {
				return graph.NodeHandle{}, false
			}
			return newOrder[i], true
		}
	}

	for _, e := range rec.Edges {
		src, ok := resolve(e.SrcPluginIndex)
		if !ok {
			return fmt.Errorf("coordinator: restore: edge src index %d out of range", e.SrcPluginIndex)
		}
		dst, ok := resolve(e.DstPluginIndex)
		if !ok {
			return fmt.Errorf("coordinator: restore: edge dst index %d out of range", e.DstPluginIndex)
		}
		srcRef := graph.PortRef{Node: src, Key: graph.PortKey{Type: e.PortType, StableID: e.SrcStableID, Dir: graph.DirOutput, Channel: e.SrcChannel}}
		dstRef := graph.PortRef{Node: dst, Key: graph.PortKey{Type: e.PortType, StableID: e.DstStableID, Dir: graph.DirInput, Channel: e.DstChannel}}
		if err := c.g.Connect(srcRef, dstRef); err != nil {
			return fmt.Errorf("coordinator: restore: reconnecting edge: %w", err)
		}
	}

	return c.compileLocked(nil)
}

// resetLocked implements spec.md §4.6 step (a): schedule deactivate on
// every current plugin, then idle-spin up to ResetTimeout waiting for
// every entry to report ready-to-remove, forcing an empty schedule on
// timeout.
func (c *Coordinator) resetLocked() {
	for _, entry := range c.entries {
		entry.ScheduleRemove()
	}

	deadline := time.Now().Add(c.cfg.ResetTimeout)
	for len(c.entries) > 0 && time.Now().Before(deadline) {
		c.onIdleLocked(nil)
		if len(c.entries) == 0 {
			break
		}
		time.Sleep(c.cfg.ResetPollInterval)
	}

	if len(c.entries) > 0 {
		c.cfg.Logger.Warnf("coordinator: reset timed out with %d plugin(s) still pending, forcing reset", len(c.entries))
		for id := range c.entries {
			_ = c.g.RemoveNode(id)
		}
		c.entries = make(map[graph.NodeHandle]*host.Entry)
		c.pluginKeys = make(map[graph.NodeHandle]string)
		c.order = nil
	}

	c.shared.Publish(schedule.Empty(c.pool, c.cfg.MaxFrames, c.cfg.GraphInChannels, c.cfg.GraphOutChannels))
}
