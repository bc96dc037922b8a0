package output

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	vgmplay "github.com/devgianlu/go-vgmplay"
)

type pipeOutput struct {
	log vgmplay.Logger

	feeder *feeder
	file   *os.File

	transform func([]float32, []byte) int

	lock sync.Mutex
	err  error
	done chan struct{}
}

func pipeTransform(format string) (func([]float32, []byte) int, int, error) {
	switch format {
	case "s16le":
		return func(in []float32, out []byte) int {
			for i := 0; i < len(in); i++ {
				sample := int16(clamp(in[i]) * 32767)
				binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
			}
			return len(in) * 2
		}, 2, nil
	case "s32le":
		return func(in []float32, out []byte) int {
			for i := 0; i < len(in); i++ {
				sample := int32(float64(clamp(in[i])) * 2147483647)
				binary.LittleEndian.PutUint32(out[i*4:], uint32(sample))
			}
			return len(in) * 4
		}, 4, nil
	case "f32le":
		return func(in []float32, out []byte) int {
			for i := 0; i < len(in); i++ {
				binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(in[i]))
			}
			return len(in) * 4
		}, 4, nil
	default:
		return nil, 0, fmt.Errorf("unknown output pipe format: %s", format)
	}
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	} else if v < -1 {
		return -1
	}

	return v
}

func newPipeOutput(log vgmplay.Logger, opts *NewOutputOptions, track vgmplay.Track) (_ *pipeOutput, err error) {
	out := &pipeOutput{
		log:    log,
		feeder: newFeeder(track.Channels),
		done:   make(chan struct{}),
	}

	var size int
	out.transform, size, err = pipeTransform(opts.OutputPipeFormat)
	if err != nil {
		return nil, err
	}

	out.file, err = os.OpenFile(opts.OutputPipe, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open fifo: %w", err)
	}

	go out.outputLoop(size)

	return out, nil
}

func (out *pipeOutput) outputLoop(size int) {
	defer close(out.done)

	floats := make([]float32, 4*1024)
	bytes := make([]byte, size*len(floats))

	for {
		n, err := out.feeder.Read(floats)
		if errors.Is(err, io.EOF) {
			return
		}

		nn := out.transform(floats[:n], bytes)
		if _, err := out.file.Write(bytes[:nn]); err != nil {
			out.log.WithError(err).Errorf("failed writing to pipe")

			out.lock.Lock()
			out.err = err
			out.lock.Unlock()

			_ = out.feeder.Close()
			return
		}
	}
}

func (out *pipeOutput) Submit(channels [][]float32, frames int) error {
	out.lock.Lock()
	err := out.err
	out.lock.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %w", vgmplay.ErrDeviceSubmit, err)
	} else if err := out.feeder.Submit(channels, frames); err != nil {
		return fmt.Errorf("%w: %w", vgmplay.ErrDeviceSubmit, err)
	}

	return nil
}

func (out *pipeOutput) Wait(ctx context.Context) error {
	return out.feeder.Wait(ctx)
}

func (out *pipeOutput) Close() error {
	_ = out.feeder.Close()
	<-out.done
	return out.file.Close()
}
