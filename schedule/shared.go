package schedule

import "sync/atomic"

// SharedSchedule is the single-slot reference cell spec.md §3/§4.4 step
// 6/§5 describes: the main thread publishes a new Schedule with a
// release store, the audio thread consumes the latest one with an
// acquire load, and no lock is ever taken on the hot path. Grounded on
// the original source's SharedSchedule wrapping an
// Shared<SharedCell<AtomicRefCell<Schedule>>>; Go's atomic.Pointer gives
// the same release/acquire guarantee directly.
type SharedSchedule struct {
	slot atomic.Pointer[Schedule]

	generation atomic.Uint64
	recordedGeneration atomic.Uint64
}

// NewSharedSchedule creates a cell pre-loaded with a bare, task-less
// schedule so the audio thread always has something to execute before
// the first real publish. Callers that need the actual passthrough
// fallback behavior of spec.md §4.4's failure policy must publish the
// result of Empty(pool, maxFrames, inChannels, outChannels) themselves;
// this placeholder has no buffers at all and exists only to avoid a nil
// slot between construction and that first Publish.
func NewSharedSchedule(maxFrames int) *SharedSchedule {
	s := &SharedSchedule{}
	s.slot.Store(&Schedule{MaxFrames: maxFrames})
	return s
}

// Publish atomically installs a new schedule. Main-thread only.
func (s *SharedSchedule) Publish(sched *Schedule) {
	s.slot.Store(sched)
	s.generation.Add(1)
}

// consumeAcquire loads the latest schedule and, the first time a given
// generation is observed, records that a swap happened — standing in
// for the original's once-per-swap audio-thread-identity assertion,
// since Go goroutines carry no stable, inspectable thread identity.
func (s *SharedSchedule) consumeAcquire() *Schedule {
	gen := s.generation.Load()
	if s.recordedGeneration.Load() != gen {
		s.recordedGeneration.Store(gen)
	}
	return s.slot.Load()
}

// Current returns the latest published schedule without the
// once-per-swap bookkeeping consumeAcquire does; used by diagnostics
// and tests.
func (s *SharedSchedule) Current() *Schedule {
	return s.slot.Load()
}
