package output

import (
	"fmt"
	"sync"
	"time"

	vgmplay "github.com/devgianlu/go-vgmplay"
)

// timerDevice plays nothing, it only takes as long as the audio would. A
// submission is complete once its duration has elapsed after the previous
// one did, like a hardware queue of wave buffers.
type timerDevice struct {
	channels   int
	sampleRate int

	now func() time.Time

	lock   sync.Mutex
	until  time.Time
	closed bool
}

func newTimerDevice(track vgmplay.Track) *timerDevice {
	return &timerDevice{
		channels:   track.Channels,
		sampleRate: track.SampleRate,
		now:        time.Now,
	}
}

func (d *timerDevice) Submit(channels [][]float32, frames int) error {
	if len(channels) != d.channels {
		return fmt.Errorf("expected %d channels, got %d", d.channels, len(channels))
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	if d.closed {
		return fmt.Errorf("timer device is closed")
	}

	now := d.now()
	if d.until.Before(now) {
		d.until = now
	}

	d.until = d.until.Add(time.Duration(frames) * time.Second / time.Duration(d.sampleRate))
	return nil
}

func (d *timerDevice) Complete() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.closed || !d.now().Before(d.until)
}

func (d *timerDevice) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.closed = true
	return nil
}
