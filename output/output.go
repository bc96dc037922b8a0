package output

import (
	"fmt"
	"time"

	vgmplay "github.com/devgianlu/go-vgmplay"
)

type NewOutputOptions struct {
	Log vgmplay.Logger

	// Backend is the audio backend to use: pulseaudio, oto, pipe or timer.
	Backend string

	// Device specifies the audio device name.
	//
	// This feature is support only for the pulseaudio backend.
	Device string

	// OutputPipe is the path to the named pipe for the pipe backend.
	OutputPipe string

	// OutputPipeFormat is the sample format written to the pipe: s16le,
	// s32le or f32le.
	OutputPipeFormat string

	// PollInterval is how often the timer backend polls for completion.
	PollInterval time.Duration
}

// DefaultPollInterval matches the period of a 60Hz frame loop.
const DefaultPollInterval = 16 * time.Millisecond

// NewOutput opens the configured backend for a track. Every track gets its
// own output, configured from its channel count and sample rate.
func NewOutput(opts *NewOutputOptions, track vgmplay.Track) (vgmplay.Output, error) {
	if err := track.Validate(); err != nil {
		return nil, err
	}

	log := opts.Log
	if log == nil {
		log = &vgmplay.NullLogger{}
	}

	log = log.WithField("backend", opts.Backend)

	switch opts.Backend {
	case "pulseaudio":
		return newPulseAudioOutput(log, opts, track)
	case "oto":
		return newOtoOutput(log, track)
	case "pipe":
		return newPipeOutput(log, opts, track)
	case "timer":
		interval := opts.PollInterval
		if interval <= 0 {
			interval = DefaultPollInterval
		}

		return Poll(newTimerDevice(track), interval), nil
	default:
		return nil, fmt.Errorf("unknown audio backend: %s", opts.Backend)
	}
}

// Factory binds opts to NewOutput.
func Factory(opts *NewOutputOptions) vgmplay.NewOutputFunc {
	return func(track vgmplay.Track) (vgmplay.Output, error) {
		return NewOutput(opts, track)
	}
}
