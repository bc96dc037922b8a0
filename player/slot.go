package player

import (
	"fmt"
	"sync/atomic"
)

type Owner int32

const (
	OwnerNone Owner = iota
	OwnerProducer
	OwnerConsumer
)

func (o Owner) String() string {
	switch o {
	case OwnerNone:
		return "none"
	case OwnerProducer:
		return "producer"
	case OwnerConsumer:
		return "consumer"
	default:
		return fmt.Sprintf("Owner(%d)", int32(o))
	}
}

// Slot is one of the two buffers alternated between the decode and the
// playback stage. The sample memory is allocated once and reused for the
// whole track.
type Slot struct {
	index    int
	channels [][]float32
	view     [][]float32
	frames   int

	owner atomic.Int32
}

func NewSlot(index, channels, capacity int) *Slot {
	s := &Slot{
		index:    index,
		channels: make([][]float32, channels),
		view:     make([][]float32, channels),
	}
	for i := range s.channels {
		s.channels[i] = make([]float32, capacity)
	}

	return s
}

func (s *Slot) Index() int {
	return s.index
}

func (s *Slot) Capacity() int {
	if len(s.channels) == 0 {
		return 0
	}

	return len(s.channels[0])
}

// Acquire tags the slot as being accessed by owner. Two stages touching the
// same slot at once is a protocol violation and panics.
func (s *Slot) Acquire(owner Owner) {
	if !s.owner.CompareAndSwap(int32(OwnerNone), int32(owner)) {
		panic(fmt.Sprintf("slot %d acquired by %s while owned by %s", s.index, owner, Owner(s.owner.Load())))
	}
}

// Release gives back a slot previously acquired by owner.
func (s *Slot) Release(owner Owner) {
	if !s.owner.CompareAndSwap(int32(owner), int32(OwnerNone)) {
		panic(fmt.Sprintf("slot %d released by %s while owned by %s", s.index, owner, Owner(s.owner.Load())))
	}
}

func (s *Slot) Owner() Owner {
	return Owner(s.owner.Load())
}

func (s *Slot) assertOwner(owner Owner) {
	if cur := Owner(s.owner.Load()); cur != owner {
		panic(fmt.Sprintf("slot %d accessed by %s while owned by %s", s.index, owner, cur))
	}
}

// Frames returns the number of valid frames in the slot.
func (s *Slot) Frames() int {
	return s.frames
}

// Channels returns the planar sample arrays, trimmed to the filled frames.
// The caller must own the slot.
func (s *Slot) Channels(owner Owner) [][]float32 {
	s.assertOwner(owner)

	for i, ch := range s.channels {
		s.view[i] = ch[:s.frames]
	}

	return s.view
}

// Reset marks the slot as empty.
func (s *Slot) Reset(owner Owner) {
	s.assertOwner(owner)
	s.frames = 0
}

// Deinterleave copies frames interleaved frames from src into the per-channel
// arrays starting at offset and extends the filled count accordingly.
func (s *Slot) Deinterleave(owner Owner, src []float32, offset, frames int) {
	s.assertOwner(owner)

	if offset+frames > s.Capacity() {
		panic(fmt.Sprintf("slot %d overflow: %d+%d frames, capacity %d", s.index, offset, frames, s.Capacity()))
	}

	nch := len(s.channels)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < nch; ch++ {
			s.channels[ch][offset+i] = src[i*nch+ch]
		}
	}

	s.frames = offset + frames
}

// free drops the sample memory once the session is over.
func (s *Slot) free() {
	s.assertOwner(OwnerNone)
	s.channels = nil
	s.view = nil
	s.frames = 0
}
