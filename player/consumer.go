package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	vgmplay "github.com/devgianlu/go-vgmplay"
)

// consumer hands filled slots to the output device, one step behind the
// producer.
type consumer struct {
	log vgmplay.Logger

	out   vgmplay.Output
	gate  *Gate
	slots *[2]*Slot

	started     chan struct{}
	startedOnce sync.Once

	submitted atomic.Int64
	frames    atomic.Int64
	underruns atomic.Int64
}

func newConsumer(log vgmplay.Logger, out vgmplay.Output, gate *Gate, slots *[2]*Slot) *consumer {
	return &consumer{
		log:     log,
		out:     out,
		gate:    gate,
		slots:   slots,
		started: make(chan struct{}),
	}
}

// Started is closed once the first slot has been handed to the device.
func (c *consumer) Started() <-chan struct{} {
	return c.started
}

func (c *consumer) run(ctx context.Context) error {
	// the producer fills the first slot before anything can be played
	if err := c.gate.WaitContext(ctx, EventDataReady); err != nil {
		return c.exit(err)
	}

	src := 0
	if err := c.submit(src); err != nil {
		return err
	}

	c.startedOnce.Do(func() { close(c.started) })

	// decode of the next slot overlaps playback of this one
	c.gate.Signal(EventProduceRequested)

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := c.out.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("failed waiting for output device: %w", err)
		}

		ready := c.gate.Pending(EventDataReady)
		if err := c.gate.WaitContext(ctx, EventDataReady); err != nil {
			return c.exit(err)
		}

		if !ready {
			c.underruns.Add(1)
			c.log.Debugf("underrun waiting for slot %d", src^1)
		}

		src ^= 1
		if err := c.submit(src); err != nil {
			return err
		}

		c.gate.Signal(EventProduceRequested)
	}
}

func (c *consumer) exit(err error) error {
	if errors.Is(err, io.EOF) {
		c.log.Debugf("played out last slot after %d submissions", c.submitted.Load())
	} else {
		c.log.Tracef("consumer exiting: %v", err)
	}

	return nil
}

func (c *consumer) submit(idx int) error {
	slot := c.slots[idx]
	slot.Acquire(OwnerConsumer)
	defer slot.Release(OwnerConsumer)

	frames := slot.Frames()
	if err := c.out.Submit(slot.Channels(OwnerConsumer), frames); err != nil {
		if errors.Is(err, vgmplay.ErrDeviceSubmit) {
			return fmt.Errorf("failed submitting slot %d: %w", idx, err)
		}

		return fmt.Errorf("failed submitting slot %d: %w: %w", idx, vgmplay.ErrDeviceSubmit, err)
	}

	c.submitted.Add(1)
	c.frames.Add(int64(frames))
	c.log.Tracef("submitted slot %d with %d frames", idx, frames)
	return nil
}
