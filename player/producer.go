package player

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	vgmplay "github.com/devgianlu/go-vgmplay"
)

// producer decodes the track into whichever slot the consumer has given
// back, one slot per produce request.
type producer struct {
	log vgmplay.Logger

	dec    vgmplay.Decoder
	track  vgmplay.Track
	gate   *Gate
	slots  *[2]*Slot
	cursor *Cursor

	scratch []float32

	decodeCalls atomic.Int64
	delivered   atomic.Int64
	wraps       atomic.Int64
}

func newProducer(log vgmplay.Logger, dec vgmplay.Decoder, gate *Gate, slots *[2]*Slot, cursor *Cursor, maxFrames int) *producer {
	track := dec.Track()
	return &producer{
		log:     log,
		dec:     dec,
		track:   track,
		gate:    gate,
		slots:   slots,
		cursor:  cursor,
		scratch: make([]float32, maxFrames*track.Channels),
	}
}

func (p *producer) run() error {
	defer p.gate.End()

	target := 0
	for {
		if err := p.gate.Wait(EventProduceRequested); err != nil {
			p.log.Tracef("producer exiting: %v", err)
			return nil
		}

		if !p.track.Loop && p.cursor.Remaining() == 0 {
			p.log.Debugf("reached end of track at frame %d", p.cursor.Position())
			return nil
		}

		slot := p.slots[target]
		slot.Acquire(OwnerProducer)
		last, err := p.fill(slot)
		frames := slot.Frames()
		slot.Release(OwnerProducer)
		if err != nil {
			return err
		}

		if frames == 0 {
			p.log.Debugf("decoder has no more frames at frame %d", p.cursor.Position())
			return nil
		}

		p.delivered.Add(1)
		p.log.Tracef("slot %d ready with %d frames", target, frames)
		p.gate.Signal(EventDataReady)

		if last {
			p.log.Debugf("decoded last slot, cursor at frame %d", p.cursor.Position())
			return nil
		}

		target ^= 1
	}
}

// fill decodes into slot and reports whether it holds the last frames of a
// non-looping track.
func (p *producer) fill(slot *Slot) (bool, error) {
	slot.Reset(OwnerProducer)

	capacity := slot.Capacity()
	if !p.track.Loop {
		want := capacity
		if rem := p.cursor.Remaining(); rem >= 0 && int64(want) > rem {
			want = int(rem)
		}

		n, err := p.decode(slot, 0, want)
		if err != nil {
			return false, err
		}

		// a shortfall is the end of the stream
		return n < want || p.cursor.Remaining() == 0, nil
	}

	// looping tracks never end, fill the whole slot wrapping as needed
	wrapped := false
	for filled := 0; filled < capacity; {
		want := capacity - filled
		if end := p.track.WrapFrame(); end > 0 {
			left := end - p.cursor.Position()
			if left <= 0 {
				if err := p.wrap(); err != nil {
					return false, err
				}

				wrapped = true
				continue
			}

			want = int(min(int64(want), left))
		}

		n, err := p.decode(slot, filled, want)
		if err != nil {
			return false, err
		}

		filled += n

		if n == 0 && wrapped {
			return false, fmt.Errorf("decoder returned no frames after looping to frame %d", p.track.LoopStart)
		} else if n < want {
			if err := p.wrap(); err != nil {
				return false, err
			}

			wrapped = true
		} else {
			wrapped = false
		}
	}

	return false, nil
}

func (p *producer) decode(slot *Slot, offset, frames int) (int, error) {
	if frames <= 0 {
		return 0, nil
	}

	nch := p.track.Channels
	buf := p.scratch[:frames*nch]

	pos := p.cursor.Position()
	n, err := p.dec.Decode(buf)
	p.decodeCalls.Add(1)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed decoding %d frames at frame %d: %w", frames, pos, err)
	} else if n < 0 || n > frames {
		return 0, fmt.Errorf("decoder returned %d frames for a request of %d", n, frames)
	}

	slot.Deinterleave(OwnerProducer, buf, offset, n)
	p.cursor.advance(n)
	return n, nil
}

func (p *producer) wrap() error {
	if err := p.dec.SeekFrame(p.track.LoopStart); err != nil {
		return fmt.Errorf("failed looping to frame %d: %w", p.track.LoopStart, err)
	}

	p.log.Tracef("looping from frame %d to %d", p.cursor.Position(), p.track.LoopStart)
	p.cursor.set(p.track.LoopStart)
	p.wraps.Add(1)
	return nil
}
