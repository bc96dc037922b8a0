package output

import (
	"context"
	"fmt"
	"sync"
	"time"

	vgmplay "github.com/devgianlu/go-vgmplay"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process, so every track after the first
// must match its format.
var otoContext struct {
	sync.Mutex

	ctx        *oto.Context
	sampleRate int
	channels   int
}

func sharedOtoContext(log vgmplay.Logger, track vgmplay.Track) (*oto.Context, error) {
	otoContext.Lock()
	defer otoContext.Unlock()

	if otoContext.ctx != nil {
		if otoContext.sampleRate != track.SampleRate || otoContext.channels != track.Channels {
			return nil, fmt.Errorf("%w: oto is running at %dHz with %d channels, cannot play %dHz with %d channels",
				vgmplay.ErrUnsupportedFormat, otoContext.sampleRate, otoContext.channels, track.SampleRate, track.Channels)
		}

		return otoContext.ctx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   track.SampleRate,
		ChannelCount: track.Channels,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}

	<-ready

	log.Debugf("oto context ready at %dHz with %d channels", track.SampleRate, track.Channels)

	otoContext.ctx = ctx
	otoContext.sampleRate = track.SampleRate
	otoContext.channels = track.Channels
	return ctx, nil
}

// otoDrainTimeout bounds how long Close lets oto play out its own buffer.
const otoDrainTimeout = 500 * time.Millisecond

// otoPlayer is the part of *oto.Player the output uses.
type otoPlayer interface {
	Play()
	Pause()
	IsPlaying() bool
	BufferedSize() int
	Err() error
}

type otoOutput struct {
	log vgmplay.Logger

	feeder *feeder
	player otoPlayer
}

func newOtoOutput(log vgmplay.Logger, track vgmplay.Track) (*otoOutput, error) {
	ctx, err := sharedOtoContext(log, track)
	if err != nil {
		return nil, err
	}

	out := &otoOutput{
		log:    log,
		feeder: newFeeder(track.Channels),
	}

	player := ctx.NewPlayer(NewFloat32ToByteReader(out.feeder))
	player.Play()
	out.player = player
	return out, nil
}

func (out *otoOutput) Submit(channels [][]float32, frames int) error {
	if err := out.player.Err(); err != nil {
		return fmt.Errorf("%w: %w", vgmplay.ErrDeviceSubmit, err)
	} else if err := out.feeder.Submit(channels, frames); err != nil {
		return fmt.Errorf("%w: %w", vgmplay.ErrDeviceSubmit, err)
	}

	return nil
}

func (out *otoOutput) Wait(ctx context.Context) error {
	return out.feeder.Wait(ctx)
}

// Close pauses the player. Unread samples mean playback was cut short and
// the player stops right away, otherwise oto gets to play its buffer first.
func (out *otoOutput) Close() error {
	interrupted := out.feeder.Pending() > 0
	_ = out.feeder.Close()

	if !interrupted {
		deadline := time.Now().Add(otoDrainTimeout)
		for out.player.IsPlaying() && out.player.BufferedSize() > 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
	}

	out.player.Pause()
	return nil
}
