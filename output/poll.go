package output

import (
	"context"
	"time"

	vgmplay "github.com/devgianlu/go-vgmplay"
)

// PollDevice is a device that can only report whether the last submitted
// buffer is done playing.
type PollDevice interface {
	Submit(channels [][]float32, frames int) error
	Complete() bool
	Close() error
}

type pollOutput struct {
	dev      PollDevice
	interval time.Duration
}

// Poll turns a PollDevice into an output, checking for completion every
// interval.
func Poll(dev PollDevice, interval time.Duration) vgmplay.Output {
	return &pollOutput{dev: dev, interval: interval}
}

func (p *pollOutput) Submit(channels [][]float32, frames int) error {
	return p.dev.Submit(channels, frames)
}

func (p *pollOutput) Wait(ctx context.Context) error {
	if p.dev.Complete() {
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.dev.Complete() {
				return nil
			}
		}
	}
}

func (p *pollOutput) Close() error {
	return p.dev.Close()
}
