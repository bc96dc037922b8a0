package output

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Float32Reader is how pull-based drivers get their samples: interleaved
// float32 frames, io.EOF once closed.
type Float32Reader interface {
	Read(p []float32) (int, error)
}

// feeder hands submitted buffers to a driver pulling samples through Read.
// A submission is complete once the driver has read all of it.
type feeder struct {
	channels int

	lock sync.Mutex
	cond *sync.Cond

	buf    []float32
	pos    int
	closed bool
}

func newFeeder(channels int) *feeder {
	f := &feeder{channels: channels}
	f.cond = sync.NewCond(&f.lock)
	return f
}

// Submit interleaves the planar channels into the pending buffer.
func (f *feeder) Submit(channels [][]float32, frames int) error {
	if len(channels) != f.channels {
		return fmt.Errorf("expected %d channels, got %d", f.channels, len(channels))
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	if f.closed {
		return io.ErrClosedPipe
	}

	// drop what was already read, keep what was not
	f.buf = append(f.buf[:0], f.buf[f.pos:]...)
	f.pos = 0

	start := len(f.buf)
	f.buf = append(f.buf, make([]float32, frames*f.channels)...)
	for ch, samples := range channels {
		for i := 0; i < frames; i++ {
			f.buf[start+i*f.channels+ch] = samples[i]
		}
	}

	f.cond.Broadcast()
	return nil
}

// Read blocks until there are samples to read or the feeder is closed. It
// only returns whole frames.
func (f *feeder) Read(p []float32) (int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for f.pos == len(f.buf) && !f.closed {
		f.cond.Wait()
	}

	if f.closed {
		return 0, io.EOF
	}

	n := copy(p[:len(p)-len(p)%f.channels], f.buf[f.pos:])
	f.pos += n
	if f.pos == len(f.buf) {
		f.cond.Broadcast()
	}

	return n, nil
}

// Pending returns the number of frames not yet read.
func (f *feeder) Pending() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return (len(f.buf) - f.pos) / f.channels
}

// Wait blocks until everything submitted has been read.
func (f *feeder) Wait(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		f.lock.Lock()
		defer f.lock.Unlock()
		f.cond.Broadcast()
	})
	defer stop()

	f.lock.Lock()
	defer f.lock.Unlock()

	for f.pos < len(f.buf) && !f.closed {
		if err := ctx.Err(); err != nil {
			return err
		}

		f.cond.Wait()
	}

	return ctx.Err()
}

func (f *feeder) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.closed = true
	f.cond.Broadcast()
	return nil
}
