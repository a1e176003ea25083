// Package bufferpool allocates and recycles the fixed-capacity typed
// buffers the compiler wires into a schedule (spec.md §4.1). It never
// allocates on the audio thread: acquire/release only happen on the main
// thread, during compilation.
package bufferpool

import (
	"fmt"
	"sync"

	"github.com/smallnest/ringbuffer"
)

// Kind is the buffer's medium, matching abi.PortType.
type Kind uint8

const (
	KindAudio Kind = iota
	KindNote
	KindAutomation
)

// noteBufferCapacity is the size in bytes of a note/automation buffer's
// ring, which holds the raw encoded events (rawEventSize bytes each)
// pending for one cycle.
const noteBufferCapacity = 256

// Buffer is the "Shared Buffer" of spec.md §3: a fixed-size typed buffer
// whose reference count is only ever mutated off the audio thread.
// Audio buffers are flat, size-class-matched []float32 slices (never
// resized in place, per §4.1); note/automation buffers are backed by a
// fixed-capacity ring so appending an event never allocates.
type Buffer struct {
	kind    Kind
	size    int // frame capacity for audio, ring byte capacity for note/automation
	audio   []float32
	events  *ringbuffer.RingBuffer
	refs    int
	pool    *Pool
}

// Kind reports the buffer's medium.
func (b *Buffer) Kind() Kind { return b.kind }

// Audio returns the underlying sample slice. Only valid for KindAudio
// buffers; callers must not resize it.
func (b *Buffer) Audio() []float32 { return b.audio }

// Clear zeroes an audio buffer up to frames samples, or drops all
// pending events for note/automation buffers. Called by the executor at
// the start of a cycle for buffers named in a schedule's
// ClearAudioInBuffers list (spec.md §4.1).
func (b *Buffer) Clear(frames int) {
	switch b.kind {
	case KindAudio:
		if frames > len(b.audio) {
			frames = len(b.audio)
		}
		for i := 0; i < frames; i++ {
			b.audio[i] = 0
		}
	default:
		b.events.Reset()
	}
}

// AppendEvent appends a raw encoded note/automation event to the ring.
// Never allocates: writes past capacity silently drop the oldest event,
// which is the ring buffer's built-in overwrite behavior.
func (b *Buffer) AppendEvent(raw []byte) {
	if b.events == nil {
		return
	}
	_, _ = b.events.Write(raw)
}

// rawEventSize is the fixed MIDI 1.0 message length note/automation
// events are encoded at (spec.md §6, §3 "note ports"): status byte plus
// two data bytes, matching gitlab.com/gomidi/midi/v2's short-message
// shape.
const rawEventSize = 3

// DrainEvents removes every pending raw event from the ring and returns
// them as individual fixed-size messages, oldest first. Called once per
// cycle by the schedule executor when bridging a note/automation buffer
// into a plugin's input event list.
func (b *Buffer) DrainEvents() [][]byte {
	if b.events == nil {
		return nil
	}
	n := b.events.Length()
	if n < rawEventSize {
		return nil
	}
	data := make([]byte, n-(n%rawEventSize))
	if _, err := b.events.Read(data); err != nil {
		return nil
	}
	msgs := make([][]byte, 0, len(data)/rawEventSize)
	for i := 0; i+rawEventSize <= len(data); i += rawEventSize {
		msgs = append(msgs, data[i:i+rawEventSize:i+rawEventSize])
	}
	return msgs
}

// sizeClass buckets a requested capacity into the pool's free-list key.
// Buffers are drawn from the smallest class that fits so a handful of
// distinct frame-capacity requests (64/128/256/512/1024, per spec.md
// §4.2's activation frame bounds) reuse the same free-list entries.
func sizeClass(n int) int {
	class := 64
	for class < n {
		class *= 2
	}
	return class
}

// Pool maintains free-lists per buffer kind and size class. acquire never
// allocates on the audio thread; only the main thread calls Pool methods
// (spec.md §4.1, §5).
type Pool struct {
	mu        sync.Mutex
	maxFrames int
	free      map[Kind]map[int][]*Buffer
	live      int
}

// New creates an empty pool sized for the given frame capacity.
func New(maxFrames int) *Pool {
	if maxFrames <= 0 {
		maxFrames = 1
	}
	return &Pool{
		maxFrames: maxFrames,
		free:      make(map[Kind]map[int][]*Buffer),
	}
}

// Acquire draws a buffer of the given kind sized for at least size units
// (frames for audio, events for note/automation) from the free-list,
// allocating a fresh one only if none is available. The contract from
// spec.md §4.1 holds: returned audio buffers are NOT cleared.
func (p *Pool) Acquire(kind Kind, size int) *Buffer {
	if kind == KindAudio && size <= 0 {
		size = p.maxFrames
	}
	if kind != KindAudio {
		size = noteBufferCapacity
	}
	class := sizeClass(size)

	p.mu.Lock()
	defer p.mu.Unlock()

	classes := p.free[kind]
	if classes == nil {
		classes = make(map[int][]*Buffer)
		p.free[kind] = classes
	}
	list := classes[class]
	if n := len(list); n > 0 {
		buf := list[n-1]
		classes[class] = list[:n-1]
		buf.refs = 1
		p.live++
		return buf
	}

	buf := &Buffer{kind: kind, size: class, pool: p}
	switch kind {
	case KindAudio:
		buf.audio = make([]float32, class)
	default:
		buf.events = ringbuffer.New(class)
	}
	buf.refs = 1
	p.live++
	return buf
}

// Release returns a buffer to its free-list once its last reference is
// dropped. Reference-count mutation only ever happens off the audio
// thread (spec.md §3 "Ownership summary").
func (p *Pool) Release(buf *Buffer) {
	if buf == nil || buf.pool != p {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	buf.refs--
	if buf.refs > 0 {
		return
	}
	p.live--

	class := sizeClass(buf.size)
	classes := p.free[buf.kind]
	if classes == nil {
		classes = make(map[int][]*Buffer)
		p.free[buf.kind] = classes
	}
	classes[class] = append(classes[class], buf)
}

// Retain increments a buffer's reference count, so that one more
// Release is needed before the buffer returns to its free-list.
func (p *Pool) Retain(buf *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf.refs++
}

// SetMaxFrames updates the pool's frame capacity. Per spec.md §4.1, a
// max_frames change purges the pool: buffers are never resized in place.
func (p *Pool) SetMaxFrames(maxFrames int) error {
	if maxFrames <= 0 {
		return fmt.Errorf("bufferpool: max frames must be positive, got %d", maxFrames)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxFrames = maxFrames
	p.free = make(map[Kind]map[int][]*Buffer)
	return nil
}

// MaxFrames reports the pool's current frame capacity.
func (p *Pool) MaxFrames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxFrames
}

// Live reports how many buffers are currently checked out (not on any
// free-list). Exposed for tests and diagnostics.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}
