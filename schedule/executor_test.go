package schedule

import (
	"testing"

	"github.com/shaban/pluginhost/bufferpool"
	"github.com/stretchr/testify/require"
)

func TestEmptyScheduleFallsBackToPassthrough(t *testing.T) {
	pool := bufferpool.New(64)
	cell := NewSharedSchedule(64)
	cell.Publish(Empty(pool, 64, 2, 2))

	exec := NewExecutor(cell, 64)
	in := []float32{0.5, 0.5, 0.25, 0.25}
	out := make([]float32, 4)
	require.NoError(t, exec.ProcessInterleaved(in, 2, out, 2))
	require.Equal(t, in, out)
}

func TestEmptyScheduleSilencesChannelsBeyondSharedRange(t *testing.T) {
	pool := bufferpool.New(64)
	cell := NewSharedSchedule(64)
	cell.Publish(Empty(pool, 64, 1, 2))

	exec := NewExecutor(cell, 64)
	in := []float32{0.5, 0.5}
	out := []float32{9, 9, 9, 9}
	require.NoError(t, exec.ProcessInterleaved(in, 1, out, 2))
	require.Equal(t, []float32{0.5, 0, 0.5, 0}, out)
}

func TestProcessInterleavedRejectsOversizedFrameCount(t *testing.T) {
	cell := NewSharedSchedule(4)
	exec := NewExecutor(cell, 4)

	in := make([]float32, 2*8)
	out := make([]float32, 2*8)
	err := exec.ProcessInterleaved(in, 2, out, 2)
	require.ErrorIs(t, err, ErrFramesExceedMax)
}

func TestSumTaskCombinesTwoInputs(t *testing.T) {
	pool := bufferpool.New(4)
	a := pool.Acquire(bufferpool.KindAudio, 4)
	b := pool.Acquire(bufferpool.KindAudio, 4)
	out := pool.Acquire(bufferpool.KindAudio, 4)

	copy(a.Audio(), []float32{1, 2, 3, 4})
	copy(b.Audio(), []float32{10, 20, 30, 40})

	task := &SumTask{Inputs: []*bufferpool.Buffer{a, b}, Output: out}
	task.process(4)

	require.Equal(t, []float32{11, 22, 33, 44}, out.Audio()[:4])
}

func TestDeactivatedPassthroughClearsExtraOutputs(t *testing.T) {
	pool := bufferpool.New(4)
	in := pool.Acquire(bufferpool.KindAudio, 4)
	out1 := pool.Acquire(bufferpool.KindAudio, 4)
	out2 := pool.Acquire(bufferpool.KindAudio, 4)
	copy(out2.Audio(), []float32{9, 9, 9, 9})
	copy(in.Audio(), []float32{1, 2, 3, 4})

	task := &DeactivatedPluginTask{Inputs: []*bufferpool.Buffer{in}, Outputs: []*bufferpool.Buffer{out1, out2}}
	task.process(4)

	require.Equal(t, []float32{1, 2, 3, 4}, out1.Audio()[:4])
	require.Equal(t, []float32{0, 0, 0, 0}, out2.Audio()[:4])
}
