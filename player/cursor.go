package player

import "sync/atomic"

// Cursor is the decode position in the track. Only the producer moves it,
// anyone may read it.
type Cursor struct {
	pos   atomic.Int64
	total int64
}

func NewCursor(total int64) *Cursor {
	return &Cursor{total: total}
}

func (c *Cursor) Position() int64 {
	return c.pos.Load()
}

// Total returns the track length in frames, zero if unknown.
func (c *Cursor) Total() int64 {
	return c.total
}

func (c *Cursor) advance(frames int) int64 {
	return c.pos.Add(int64(frames))
}

func (c *Cursor) set(pos int64) {
	c.pos.Store(pos)
}

// Remaining returns the frames left before the end of the track, or -1 if
// the length is unknown.
func (c *Cursor) Remaining() int64 {
	if c.total <= 0 {
		return -1
	}

	return max(0, c.total-c.pos.Load())
}
