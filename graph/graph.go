// Package graph implements the abstract, editable plugin DAG of
// spec.md §3/§4.3: typed nodes and ports, cycle-checked edges, and a
// deterministic topological order. Only the main thread ever mutates a
// Graph (spec.md §5).
package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// NodeHandle is a stable, comparable, never-reused node identity.
// Two Identity values are equal iff their handles are equal
// (spec.md §3).
type NodeHandle uuid.UUID

func (h NodeHandle) String() string { return uuid.UUID(h).String() }

// NewNodeHandle mints a fresh, never-reused handle.
func NewNodeHandle() NodeHandle { return NodeHandle(uuid.New()) }

// FormatTag is the plugin-format tag of spec.md §3.
type FormatTag string

const (
	FormatInternal  FormatTag = "internal"
	FormatExternal  FormatTag = "external"
	FormatGraphIn   FormatTag = "graph-in"
	FormatGraphOut  FormatTag = "graph-out"
	FormatSum       FormatTag = "sum"
	FormatDelayComp FormatTag = "delay-comp"
)

// Identity is a Plugin Instance Identity: a stable handle, its format
// tag, and a shared immutable display name.
type Identity struct {
	Handle      NodeHandle
	Format      FormatTag
	DisplayName string
}

// PortType is the declared medium on a port.
type PortType uint8

const (
	PortAudio PortType = iota
	PortNote
	PortAutomation
)

// Direction is a port's flow direction.
type Direction uint8

const (
	DirInput Direction = iota
	DirOutput
)

// PortKey is the quadruple of spec.md §3 identifying one port.
type PortKey struct {
	Type     PortType
	StableID uint32
	Dir      Direction
	Channel  uint16
}

// PortRef names a port on a specific node.
type PortRef struct {
	Node NodeHandle
	Key  PortKey
}

// Edge connects one output port to one input port of the same port-type.
type Edge struct {
	Src PortRef
	Dst PortRef
}

// node is the graph's internal per-node bookkeeping.
type node struct {
	identity Identity
	ports    map[PortKey]struct{}
	// outEdges/inEdges index edges incident to this node's ports for
	// O(1) enumeration and cycle checks.
	outEdges []Edge
	inEdges  []Edge
}

// ErrCycle is returned by Connect when the edge would create a cycle.
var ErrCycle = fmt.Errorf("graph: connect would create a cycle")

// Graph is a typed, directed, acyclic multigraph of plugin instances.
// A designated graph-input and graph-output node always exist and
// cannot be removed (spec.md §4.3).
type Graph struct {
	mu sync.RWMutex

	nodes map[NodeHandle]*node
	// nodes is unordered; TopoOrder walks ready nodes by sorted handle
	// for determinism.
	graphIn  NodeHandle
	graphOut NodeHandle
}

// New creates a graph with its permanent graph-input and graph-output
// pseudo-nodes already installed.
func New() *Graph {
	g := &Graph{nodes: make(map[NodeHandle]*node)}

	g.graphIn = NewNodeHandle()
	g.nodes[g.graphIn] = &node{
		identity: Identity{Handle: g.graphIn, Format: FormatGraphIn, DisplayName: "graph-in"},
		ports:    make(map[PortKey]struct{}),
	}

	g.graphOut = NewNodeHandle()
	g.nodes[g.graphOut] = &node{
		identity: Identity{Handle: g.graphOut, Format: FormatGraphOut, DisplayName: "graph-out"},
		ports:    make(map[PortKey]struct{}),
	}

	return g
}

// GraphIn returns the permanent graph-input node's handle.
func (g *Graph) GraphIn() NodeHandle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.graphIn
}

// GraphOut returns the permanent graph-output node's handle.
func (g *Graph) GraphOut() NodeHandle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.graphOut
}

// AddNode inserts a new node with the given format and display name and
// returns its identity.
func (g *Graph) AddNode(format FormatTag, displayName string) Identity {
	g.mu.Lock()
	defer g.mu.Unlock()

	h := NewNodeHandle()
	id := Identity{Handle: h, Format: format, DisplayName: displayName}
	g.nodes[h] = &node{identity: id, ports: make(map[PortKey]struct{})}
	return id
}

// RemoveNode deletes a node and every edge incident to it. Removing the
// graph-input or graph-output node is a refused no-op (spec.md §4.3,
// §8 "Removing the graph-in or graph-out node is a no-op").
func (g *Graph) RemoveNode(h NodeHandle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if h == g.graphIn || h == g.graphOut {
		return fmt.Errorf("graph: refusing to remove reserved node %s", h)
	}

	n, ok := g.nodes[h]
	if !ok {
		return fmt.Errorf("graph: node %s does not exist", h)
	}

	for _, e := range append(append([]Edge{}, n.outEdges...), n.inEdges...) {
		g.disconnectLocked(e.Src, e.Dst)
	}
	delete(g.nodes, h)
	return nil
}

// AddPort declares a port on an existing node.
func (g *Graph) AddPort(h NodeHandle, key PortKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[h]
	if !ok {
		return fmt.Errorf("graph: node %s does not exist", h)
	}
	n.ports[key] = struct{}{}
	return nil
}

// HasNode reports whether a node handle currently exists.
func (g *Graph) HasNode(h NodeHandle) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[h]
	return ok
}

// Ports returns every port declared on a node, in no particular order.
func (g *Graph) Ports(h NodeHandle) []PortKey {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[h]
	if !ok {
		return nil
	}
	out := make([]PortKey, 0, len(n.ports))
	for k := range n.ports {
		out = append(out, k)
	}
	return out
}

// InEdgesForPort returns every edge whose destination is exactly the
// given port, in no particular order.
func (g *Graph) InEdgesForPort(h NodeHandle, key PortKey) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[h]
	if !ok {
		return nil
	}
	var out []Edge
	for _, e := range n.inEdges {
		if e.Dst.Key == key {
			out = append(out, e)
		}
	}
	return out
}

// AllEdges returns every edge in the graph, each appearing exactly once.
// Used by save-state collection, which must walk the whole edge set
// rather than one node's incident edges.
func (g *Graph) AllEdges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for _, n := range g.nodes {
		out = append(out, n.outEdges...)
	}
	return out
}

// Identity returns a node's identity.
func (g *Graph) Identity(h NodeHandle) (Identity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[h]
	if !ok {
		return Identity{}, false
	}
	return n.identity, true
}

// StructuralError names the class of edge-connect failures in spec.md §7.
type StructuralErrorKind string

const (
	ErrSrcPluginDoesNotExist StructuralErrorKind = "SrcPluginDoesNotExist"
	ErrDstPluginDoesNotExist StructuralErrorKind = "DstPluginDoesNotExist"
	ErrSrcPortDoesNotExist   StructuralErrorKind = "SrcPortDoesNotExist"
	ErrDstPortDoesNotExist   StructuralErrorKind = "DstPortDoesNotExist"
	ErrCycleKind             StructuralErrorKind = "Cycle"
	ErrUnknownKind           StructuralErrorKind = "Unknown"
)

// StructuralError is returned synchronously from Connect; the graph is
// left unchanged on any error (spec.md §7).
type StructuralError struct {
	Kind StructuralErrorKind
	Msg  string
}

func (e *StructuralError) Error() string { return fmt.Sprintf("graph: %s: %s", e.Kind, e.Msg) }

// Connect adds a directed edge from an output port to an input port of
// the same port-type, refusing cycles and type mismatches. The graph is
// left unchanged on any error.
func (g *Graph) Connect(src, dst PortRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	srcNode, ok := g.nodes[src.Node]
	if !ok {
		return &StructuralError{Kind: ErrSrcPluginDoesNotExist, Msg: src.Node.String()}
	}
	dstNode, ok := g.nodes[dst.Node]
	if !ok {
		return &StructuralError{Kind: ErrDstPluginDoesNotExist, Msg: dst.Node.String()}
	}

	if src.Key.Dir != DirOutput {
		return &StructuralError{Kind: ErrSrcPortDoesNotExist, Msg: "source port must be an output"}
	}
	if dst.Key.Dir != DirInput {
		return &StructuralError{Kind: ErrDstPortDoesNotExist, Msg: "destination port must be an input"}
	}

	if _, ok := srcNode.ports[src.Key]; !ok {
		return &StructuralError{Kind: ErrSrcPortDoesNotExist, Msg: fmt.Sprintf("%+v", src.Key)}
	}
	if _, ok := dstNode.ports[dst.Key]; !ok {
		return &StructuralError{Kind: ErrDstPortDoesNotExist, Msg: fmt.Sprintf("%+v", dst.Key)}
	}
	if src.Key.Type != dst.Key.Type {
		return &StructuralError{Kind: ErrDstPortDoesNotExist, Msg: "port-type mismatch"}
	}

	edge := Edge{Src: src, Dst: dst}
	if g.wouldCreateCycleLocked(edge) {
		return &StructuralError{Kind: ErrCycleKind, Msg: fmt.Sprintf("%s -> %s", src.Node, dst.Node)}
	}

	srcNode.outEdges = append(srcNode.outEdges, edge)
	dstNode.inEdges = append(dstNode.inEdges, edge)
	return nil
}

// Disconnect removes a previously connected edge. A no-op if the edge
// does not exist.
func (g *Graph) Disconnect(src, dst PortRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disconnectLocked(src, dst)
}

func (g *Graph) disconnectLocked(src, dst PortRef) error {
	srcNode, ok := g.nodes[src.Node]
	if !ok {
		return nil
	}
	dstNode, ok := g.nodes[dst.Node]
	if !ok {
		return nil
	}

	srcNode.outEdges = removeEdge(srcNode.outEdges, src, dst)
	dstNode.inEdges = removeEdge(dstNode.inEdges, src, dst)
	return nil
}

func removeEdge(edges []Edge, src, dst PortRef) []Edge {
	out := edges[:0]
	for _, e := range edges {
		if e.Src == src && e.Dst == dst {
			continue
		}
		out = append(out, e)
	}
	return out
}

// IncidentEdges returns every edge touching the given node, in/out
// combined.
func (g *Graph) IncidentEdges(h NodeHandle) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[h]
	if !ok {
		return nil
	}
	edges := make([]Edge, 0, len(n.inEdges)+len(n.outEdges))
	edges = append(edges, n.inEdges...)
	edges = append(edges, n.outEdges...)
	return edges
}

// InEdges returns every edge whose destination is on the given node.
func (g *Graph) InEdges(h NodeHandle) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[h]
	if !ok {
		return nil
	}
	out := make([]Edge, len(n.inEdges))
	copy(out, n.inEdges)
	return out
}

// wouldCreateCycleLocked reports whether adding edge would create a
// cycle, via a reachability search from dst back to src. Callers must
// hold g.mu.
func (g *Graph) wouldCreateCycleLocked(edge Edge) bool {
	if edge.Src.Node == edge.Dst.Node {
		return true
	}
	visited := make(map[NodeHandle]bool)
	var stack []NodeHandle
	stack = append(stack, edge.Dst.Node)

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == edge.Src.Node {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true

		n, ok := g.nodes[cur]
		if !ok {
			continue
		}
		for _, e := range n.outEdges {
			stack = append(stack, e.Dst.Node)
		}
	}
	return false
}

// TopoOrder returns a deterministic topological order of every node,
// breaking ties by node handle so the compiled schedule is reproducible
// across compilations of an identical structure (spec.md §4.3, §9).
func (g *Graph) TopoOrder() ([]NodeHandle, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inDegree := make(map[NodeHandle]int, len(g.nodes))
	for h, n := range g.nodes {
		inDegree[h] = len(uniqueSources(n.inEdges))
	}

	ready := make([]NodeHandle, 0, len(g.nodes))
	for h, d := range inDegree {
		if d == 0 {
			ready = append(ready, h)
		}
	}
	sortHandles(ready)

	order := make([]NodeHandle, 0, len(g.nodes))
	for len(ready) > 0 {
		sortHandles(ready)
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)

		n := g.nodes[cur]
		// Decrement once per distinct downstream node; a multi-edge
		// into the same destination only counts once toward in-degree
		// (see uniqueSources).
		decremented := map[NodeHandle]bool{}
		for _, e := range n.outEdges {
			dst := e.Dst.Node
			if decremented[dst] {
				continue
			}
			decremented[dst] = true
			inDegree[dst]--
			if inDegree[dst] == 0 {
				ready = append(ready, dst)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("graph: cycle detected during topological sort")
	}
	return order, nil
}

func uniqueSources(edges []Edge) map[NodeHandle]bool {
	m := make(map[NodeHandle]bool, len(edges))
	for _, e := range edges {
		m[e.Src.Node] = true
	}
	return m
}

func sortHandles(hs []NodeHandle) {
	sort.Slice(hs, func(i, j int) bool {
		return hs[i].String() < hs[j].String()
	})
}

// NodeCount returns how many nodes currently exist.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
