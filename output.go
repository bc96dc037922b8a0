package go_vgmplay

import (
	"context"
	"errors"
)

var ErrDeviceSubmit = errors.New("device rejected buffer")

type Output interface {
	// Submit hands frames from the planar channels to the device. The data is
	// copied before Submit returns, the device then plays it asynchronously.
	Submit(channels [][]float32, frames int) error

	// Wait blocks until the last submitted buffer has been consumed by the device.
	// It returns immediately if nothing is pending.
	Wait(ctx context.Context) error

	Close() error
}

// NewOutputFunc creates an Output configured for the given track.
type NewOutputFunc func(track Track) (Output, error)
