package mp3

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	vgmplay "github.com/devgianlu/go-vgmplay"
	"github.com/hajimehoshi/go-mp3"
)

const (
	// go-mp3 always decodes to 16 bit stereo.
	channels      = 2
	bytesPerFrame = 2 * channels
)

type Decoder struct {
	log vgmplay.Logger

	input io.ReadSeeker
	dec   *mp3.Decoder
	track vgmplay.Track

	buf []byte
}

// Open opens an MP3 file.
func Open(log vgmplay.Logger, path string) (vgmplay.Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vgmplay.ErrUnreadableFile, err)
	}

	dec, err := New(log, f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %w", vgmplay.ErrUnsupportedFormat, err)
	}

	return dec, nil
}

// New creates a decoder reading from r, which it closes if it is an io.Closer.
func New(log vgmplay.Logger, r io.ReadSeeker) (*Decoder, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	d := &Decoder{
		log:   log,
		input: r,
		dec:   dec,
		track: vgmplay.Track{
			Channels:   channels,
			SampleRate: dec.SampleRate(),
		},
	}

	// the length is only known for seekable inputs
	if length := dec.Length(); length > 0 {
		d.track.Frames = length / bytesPerFrame
	}

	log.Debugf("loaded MP3 at %dHz, %d frames", d.track.SampleRate, d.track.Frames)
	return d, nil
}

func (d *Decoder) Track() vgmplay.Track {
	return d.track
}

// Decode reads up to len(p)/2 stereo frames.
func (d *Decoder) Decode(p []float32) (int, error) {
	frames := len(p) / channels
	if cap(d.buf) < frames*bytesPerFrame {
		d.buf = make([]byte, frames*bytesPerFrame)
	}

	buf := d.buf[:frames*bytesPerFrame]
	n, err := io.ReadFull(d.dec, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("failed reading mp3: %w", err)
	}

	n /= 2
	n -= n % channels
	for i := 0; i < n; i++ {
		p[i] = float32(int16(binary.LittleEndian.Uint16(buf[i*2:]))) / 32768
	}

	if n == 0 {
		return 0, io.EOF
	}

	return n / channels, nil
}

func (d *Decoder) SeekFrame(frame int64) error {
	if _, err := d.dec.Seek(frame*bytesPerFrame, io.SeekStart); err != nil {
		return fmt.Errorf("failed seeking to frame %d: %w", frame, err)
	}

	return nil
}

func (d *Decoder) Close() error {
	if c, ok := d.input.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
