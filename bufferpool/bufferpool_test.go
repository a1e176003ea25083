package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireDoesNotClearAudioBuffer(t *testing.T) {
	p := New(128)

	buf := p.Acquire(KindAudio, 128)
	for i := range buf.Audio() {
		buf.Audio()[i] = 1
	}
	p.Release(buf)

	reused := p.Acquire(KindAudio, 128)
	require.Same(t, buf, reused, "expected the freed buffer to be reused from the free-list")
	require.Equal(t, float32(1), reused.Audio()[0], "acquire must not clear audio content")
}

func TestClearZeroesOnlyRequestedFrames(t *testing.T) {
	p := New(128)
	buf := p.Acquire(KindAudio, 128)
	for i := range buf.Audio() {
		buf.Audio()[i] = 9
	}

	buf.Clear(4)

	for i := 0; i < 4; i++ {
		require.Equal(t, float32(0), buf.Audio()[i])
	}
	require.Equal(t, float32(9), buf.Audio()[4])
}

func TestSizeClassReuseAcrossEqualRequests(t *testing.T) {
	p := New(128)

	a := p.Acquire(KindAudio, 100)
	p.Release(a)
	b := p.Acquire(KindAudio, 90)

	require.Same(t, a, b, "requests rounding to the same size class must reuse the same free buffer")
}

func TestSetMaxFramesPurgesFreeLists(t *testing.T) {
	p := New(128)
	buf := p.Acquire(KindAudio, 128)
	p.Release(buf)
	require.Equal(t, 0, p.Live())

	require.NoError(t, p.SetMaxFrames(256))

	fresh := p.Acquire(KindAudio, 128)
	require.NotSame(t, buf, fresh, "purge must drop previously freed buffers")
}

func TestRetainDefersReleaseUntilRefsDrop(t *testing.T) {
	p := New(128)
	buf := p.Acquire(KindAudio, 64)
	p.Retain(buf)

	p.Release(buf)
	require.Equal(t, 1, p.Live(), "buffer must stay live while a retain is outstanding")

	p.Release(buf)
	require.Equal(t, 0, p.Live())
}

func TestNoteBufferAppendEventNeverErrors(t *testing.T) {
	p := New(128)
	buf := p.Acquire(KindNote, 0)

	buf.AppendEvent([]byte{0x90, 0x40, 0x7f})
	buf.Clear(0)
}

func TestSetMaxFramesRejectsNonPositive(t *testing.T) {
	p := New(128)
	require.Error(t, p.SetMaxFrames(0))
	require.Error(t, p.SetMaxFrames(-1))
}
