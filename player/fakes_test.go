//go:build test_unit

package player

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	vgmplay "github.com/devgianlu/go-vgmplay"
)

// sampleValue is the deterministic value the fake decoder emits for a frame
// and channel, so that any reordering, duplicate or drop is detectable.
func sampleValue(frame int64, channel, channels int) float32 {
	return float32(frame*int64(channels) + int64(channel))
}

type fakeDecoder struct {
	mu sync.Mutex

	track vgmplay.Track
	pos   int64

	// length bounds the decoded data when the track does not advertise it.
	length int64

	requests []int
	seeks    []int64
	closed   bool

	// failOn makes the request with this index (1-based) fail.
	failOn int
	// gate, if set, is received from before every request after the first.
	gate chan struct{}
}

func newFakeDecoder(track vgmplay.Track) *fakeDecoder {
	return &fakeDecoder{track: track}
}

func (d *fakeDecoder) Track() vgmplay.Track {
	return d.track
}

func (d *fakeDecoder) Decode(p []float32) (int, error) {
	d.mu.Lock()
	d.requests = append(d.requests, len(p)/d.track.Channels)
	calls, gate := len(d.requests), d.gate
	d.mu.Unlock()

	if gate != nil && calls > 1 {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failOn > 0 && calls == d.failOn {
		return 0, errors.New("corrupt block")
	}

	limit := d.track.Frames
	if d.length > 0 {
		limit = d.length
	}

	n := int64(len(p) / d.track.Channels)
	if limit > 0 && d.pos+n > limit {
		n = max(0, limit-d.pos)
	}

	for i := int64(0); i < n; i++ {
		for ch := 0; ch < d.track.Channels; ch++ {
			p[i*int64(d.track.Channels)+int64(ch)] = sampleValue(d.pos+i, ch, d.track.Channels)
		}
	}

	d.pos += n
	if n == 0 {
		return 0, io.EOF
	}

	return int(n), nil
}

func (d *fakeDecoder) SeekFrame(frame int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seeks = append(d.seeks, frame)
	d.pos = frame
	return nil
}

func (d *fakeDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	return nil
}

func (d *fakeDecoder) Requests() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.requests...)
}

func (d *fakeDecoder) Seeks() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.seeks...)
}

func (d *fakeDecoder) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *fakeDecoder) open(vgmplay.Logger, string) (vgmplay.Decoder, error) {
	return d, nil
}

// fakeOutput records every submitted buffer.
type fakeOutput struct {
	mu sync.Mutex

	submissions [][][]float32
	closed      bool

	// failOn makes the submission with this index (1-based) fail.
	failOn int
	// delay simulates the playback time of a buffer.
	delay time.Duration
	// block makes Wait block until the context is cancelled.
	block bool
	// notify receives the number of submissions after each one.
	notify chan int
}

func (o *fakeOutput) Submit(channels [][]float32, frames int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.failOn > 0 && len(o.submissions)+1 == o.failOn {
		return errors.New("device busy")
	}

	buf := make([][]float32, len(channels))
	for i, ch := range channels {
		buf[i] = append([]float32(nil), ch[:frames]...)
	}

	o.submissions = append(o.submissions, buf)
	if o.notify != nil {
		select {
		case o.notify <- len(o.submissions):
		default:
		}
	}

	return nil
}

func (o *fakeOutput) Wait(ctx context.Context) error {
	if o.block {
		<-ctx.Done()
		return ctx.Err()
	}

	if o.delay > 0 {
		select {
		case <-time.After(o.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true
	return nil
}

func (o *fakeOutput) Submissions() [][][]float32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][][]float32(nil), o.submissions...)
}

func (o *fakeOutput) SubmittedFrames() []int {
	var frames []int
	for _, sub := range o.Submissions() {
		frames = append(frames, len(sub[0]))
	}

	return frames
}

// FrameSequence turns the submitted samples back into decoder frame indices.
func (o *fakeOutput) FrameSequence(channels int) []int64 {
	var seq []int64
	for _, sub := range o.Submissions() {
		for i := range sub[0] {
			seq = append(seq, int64(sub[0][i])/int64(channels))
		}
	}

	return seq
}

func (o *fakeOutput) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *fakeOutput) newOutput(vgmplay.Track) (vgmplay.Output, error) {
	return o, nil
}
