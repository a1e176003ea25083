package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func audioPort(stableID uint32, dir Direction) PortKey {
	return PortKey{Type: PortAudio, StableID: stableID, Dir: dir, Channel: 0}
}

func TestConnectRefusesCycle(t *testing.T) {
	g := New()

	a := g.AddNode(FormatInternal, "A")
	b := g.AddNode(FormatInternal, "B")
	require.NoError(t, g.AddPort(a.Handle, audioPort(0, DirOutput)))
	require.NoError(t, g.AddPort(a.Handle, audioPort(1, DirInput)))
	require.NoError(t, g.AddPort(b.Handle, audioPort(0, DirOutput)))
	require.NoError(t, g.AddPort(b.Handle, audioPort(1, DirInput)))

	err := g.Connect(PortRef{a.Handle, audioPort(0, DirOutput)}, PortRef{b.Handle, audioPort(1, DirInput)})
	require.NoError(t, err)

	err = g.Connect(PortRef{b.Handle, audioPort(0, DirOutput)}, PortRef{a.Handle, audioPort(1, DirInput)})
	require.Error(t, err)
	var structErr *StructuralError
	require.ErrorAs(t, err, &structErr)
	require.Equal(t, ErrCycleKind, structErr.Kind)

	require.Len(t, g.IncidentEdges(a.Handle), 1)
}

func TestConnectMismatchedPortTypeFails(t *testing.T) {
	g := New()
	a := g.AddNode(FormatInternal, "A")
	b := g.AddNode(FormatInternal, "B")
	require.NoError(t, g.AddPort(a.Handle, audioPort(0, DirOutput)))
	notePort := PortKey{Type: PortNote, StableID: 1, Dir: DirInput, Channel: 0}
	require.NoError(t, g.AddPort(b.Handle, notePort))

	err := g.Connect(PortRef{a.Handle, audioPort(0, DirOutput)}, PortRef{b.Handle, notePort})
	require.Error(t, err)
}

func TestRemovingGraphInOrOutIsRefused(t *testing.T) {
	g := New()
	require.Error(t, g.RemoveNode(g.GraphIn()))
	require.Error(t, g.RemoveNode(g.GraphOut()))
	require.True(t, g.HasNode(g.GraphIn()))
	require.True(t, g.HasNode(g.GraphOut()))
}

func TestTopoOrderIsDeterministicAcrossCalls(t *testing.T) {
	g := New()
	a := g.AddNode(FormatInternal, "A")
	b := g.AddNode(FormatInternal, "B")
	c := g.AddNode(FormatInternal, "C")
	require.NoError(t, g.AddPort(a.Handle, audioPort(0, DirOutput)))
	require.NoError(t, g.AddPort(b.Handle, audioPort(1, DirInput)))
	require.NoError(t, g.AddPort(b.Handle, audioPort(0, DirOutput)))
	require.NoError(t, g.AddPort(c.Handle, audioPort(1, DirInput)))

	require.NoError(t, g.Connect(PortRef{a.Handle, audioPort(0, DirOutput)}, PortRef{b.Handle, audioPort(1, DirInput)}))
	require.NoError(t, g.Connect(PortRef{b.Handle, audioPort(0, DirOutput)}, PortRef{c.Handle, audioPort(1, DirInput)}))

	first, err := g.TopoOrder()
	require.NoError(t, err)
	second, err := g.TopoOrder()
	require.NoError(t, err)
	require.Equal(t, first, second)

	positions := map[NodeHandle]int{}
	for i, h := range first {
		positions[h] = i
	}
	require.Less(t, positions[a.Handle], positions[b.Handle])
	require.Less(t, positions[b.Handle], positions[c.Handle])
}

func TestRemoveNodeClearsIncidentEdges(t *testing.T) {
	g := New()
	a := g.AddNode(FormatInternal, "A")
	b := g.AddNode(FormatInternal, "B")
	require.NoError(t, g.AddPort(a.Handle, audioPort(0, DirOutput)))
	require.NoError(t, g.AddPort(b.Handle, audioPort(1, DirInput)))
	require.NoError(t, g.Connect(PortRef{a.Handle, audioPort(0, DirOutput)}, PortRef{b.Handle, audioPort(1, DirInput)}))

	require.NoError(t, g.RemoveNode(a.Handle))
	require.Empty(t, g.IncidentEdges(b.Handle))
}
