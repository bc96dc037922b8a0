package output

import (
	"context"
	"errors"
	"fmt"
	"io"

	vgmplay "github.com/devgianlu/go-vgmplay"
	"github.com/jfreymuth/pulse"
)

type pulseAudioOutput struct {
	log vgmplay.Logger

	feeder *feeder
	client *pulse.Client
	stream *pulse.PlaybackStream
}

func newPulseAudioOutput(log vgmplay.Logger, opts *NewOutputOptions, track vgmplay.Track) (*pulseAudioOutput, error) {
	// The application name is what desktop volume controls show.
	client, err := pulse.NewClient(pulse.ClientApplicationName("go-vgmplay"), pulse.ClientApplicationIconName("audio-x-generic"))
	if err != nil {
		return nil, err
	}

	out := &pulseAudioOutput{
		log:    log,
		feeder: newFeeder(track.Channels),
		client: client,
	}

	var channelOpt pulse.PlaybackOption
	if track.Channels == 1 {
		channelOpt = pulse.PlaybackMono
	} else if track.Channels == 2 {
		channelOpt = pulse.PlaybackStereo
	} else {
		client.Close()
		return nil, fmt.Errorf("%w: cannot play %d channels, pulse only supports mono and stereo", vgmplay.ErrUnsupportedFormat, track.Channels)
	}

	playbackOpts := []pulse.PlaybackOption{
		pulse.PlaybackSampleRate(track.SampleRate),
		channelOpt,
	}

	if opts.Device != "" {
		var sink *pulse.Sink
		if opts.Device == "default" {
			sink, err = client.DefaultSink()
		} else {
			sink, err = client.SinkByID(opts.Device)
		}

		if err != nil {
			client.Close()
			return nil, fmt.Errorf("cannot find pulseaudio sink %s: %w", opts.Device, err)
		}

		playbackOpts = append(playbackOpts, pulse.PlaybackSink(sink))
	}

	out.stream, err = client.NewPlayback(pulse.Float32Reader(out.float32Reader), playbackOpts...)
	if err != nil {
		client.Close()
		return nil, err
	}

	out.stream.Start()
	return out, nil
}

func (out *pulseAudioOutput) float32Reader(buf []float32) (int, error) {
	n, err := out.feeder.Read(buf)
	if errors.Is(err, io.EOF) {
		// Might happen, so translate this error message.
		return n, pulse.EndOfData
	}

	return n, err
}

func (out *pulseAudioOutput) Submit(channels [][]float32, frames int) error {
	if err := out.stream.Error(); err != nil {
		return fmt.Errorf("%w: %w", vgmplay.ErrDeviceSubmit, err)
	} else if err := out.feeder.Submit(channels, frames); err != nil {
		return fmt.Errorf("%w: %w", vgmplay.ErrDeviceSubmit, err)
	}

	return nil
}

// Wait returns once pulse has pulled everything submitted into its own
// buffer, which is still playing while the next buffer is decoded.
func (out *pulseAudioOutput) Wait(ctx context.Context) error {
	return out.feeder.Wait(ctx)
}

func (out *pulseAudioOutput) Close() error {
	_ = out.feeder.Close()

	if out.stream.Running() {
		out.stream.Drain()
	}

	out.stream.Close()
	out.client.Close()
	return nil
}
