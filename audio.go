package go_vgmplay

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnreadableFile    = errors.New("unreadable file")
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// Track describes a decoded stream. It never changes for the lifetime of a session.
type Track struct {
	Channels   int
	SampleRate int

	// Frames is the total number of frames in the stream, zero if unknown.
	Frames int64

	Loop      bool
	LoopStart int64

	// LoopEnd is the frame at which a looping track wraps back to LoopStart.
	// Zero means the end of the stream.
	LoopEnd int64
}

// WrapFrame returns the frame at which a looping track goes back to LoopStart,
// or zero if the track wraps only when the decoder runs out of data.
func (t Track) WrapFrame() int64 {
	if t.LoopEnd > 0 {
		return t.LoopEnd
	}

	return t.Frames
}

func (t Track) Duration() time.Duration {
	if t.SampleRate <= 0 {
		return 0
	}

	return time.Duration(t.Frames) * time.Second / time.Duration(t.SampleRate)
}

func (t Track) Validate() error {
	if t.Channels <= 0 {
		return fmt.Errorf("%w: invalid channel count %d", ErrUnsupportedFormat, t.Channels)
	} else if t.SampleRate <= 0 {
		return fmt.Errorf("%w: invalid sample rate %d", ErrUnsupportedFormat, t.SampleRate)
	} else if t.Frames < 0 {
		return fmt.Errorf("%w: invalid frame count %d", ErrUnsupportedFormat, t.Frames)
	}

	if !t.Loop {
		return nil
	}

	if t.LoopStart < 0 || (t.Frames > 0 && t.LoopStart >= t.Frames) {
		return fmt.Errorf("%w: loop start %d outside of track", ErrUnsupportedFormat, t.LoopStart)
	} else if t.LoopEnd != 0 && (t.LoopEnd <= t.LoopStart || (t.Frames > 0 && t.LoopEnd > t.Frames)) {
		return fmt.Errorf("%w: loop end %d outside of track", ErrUnsupportedFormat, t.LoopEnd)
	}

	return nil
}

type Decoder interface {
	// Track returns the stream parameters, known once the decoder is open.
	Track() Track

	// Decode fills p with up to len(p)/Channels interleaved frames and returns
	// the number of frames decoded. Returning less frames than requested, or
	// io.EOF, means the end of the stream has been reached.
	Decode(p []float32) (frames int, err error)

	// SeekFrame moves the decoder to the given frame. It is only used to wrap
	// looping tracks.
	SeekFrame(frame int64) error

	Close() error
}

// OpenFunc opens a Decoder for the file at path. Errors wrap ErrUnreadableFile
// or ErrUnsupportedFormat.
type OpenFunc func(log Logger, path string) (Decoder, error)

// ApplyLoopTags sets the loop points from LOOPSTART, LOOPLENGTH and LOOPEND
// tags, all in frames. Frames must already be set. A track with loop points
// that fail Validate is never produced.
func (t *Track) ApplyLoopTags(tags [][2]string) {
	start, length, end := int64(-1), int64(-1), int64(-1)
	for _, tag := range tags {
		val, err := strconv.ParseInt(strings.TrimSpace(tag[1]), 10, 64)
		if err != nil || val < 0 {
			continue
		}

		switch strings.ToUpper(strings.TrimSpace(tag[0])) {
		case "LOOPSTART":
			start = val
		case "LOOPLENGTH":
			length = val
		case "LOOPEND":
			end = val
		}
	}

	// a loop starting past the end of the stream is ignored
	if start < 0 || (t.Frames > 0 && start >= t.Frames) {
		return
	}

	t.Loop = true
	t.LoopStart = start
	t.LoopEnd = 0

	if end > start {
		t.LoopEnd = end
	} else if length > 0 {
		t.LoopEnd = start + length
	}

	// past the end means the end
	if t.Frames > 0 && t.LoopEnd >= t.Frames {
		t.LoopEnd = 0
	}
}
