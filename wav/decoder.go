package wav

import (
	"errors"
	"fmt"
	"io"
	"os"

	vgmplay "github.com/devgianlu/go-vgmplay"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	formatPCM        = 1
	formatExtensible = 0xfffe
)

type Decoder struct {
	log vgmplay.Logger

	input io.ReadSeeker
	full  fullReader
	dec   *wav.Decoder
	track vgmplay.Track

	bitDepth int
	norm     float32
	buf      *audio.IntBuffer
}

// Open opens a PCM WAV file.
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

// New reads the format and the sampler loops of r. The decoder closes the
// input if it is an io.Closer.
func New(log vgmplay.Logger, r io.ReadSeeker) (*Decoder, error) {
	d := &Decoder{log: log, input: r, full: fullReader{r}}

	// the metadata pass reads the whole file
	meta := wav.NewDecoder(d.full)
	if !meta.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}

	meta.ReadMetadata()
	if meta.Err() != nil {
		log.WithError(meta.Err()).Debugf("wav: failed reading metadata")
	}

	if err := d.rewind(); err != nil {
		return nil, err
	}

	if d.dec.WavAudioFormat != formatPCM && d.dec.WavAudioFormat != formatExtensible {
		return nil, fmt.Errorf("unsupported wav audio format: %d", d.dec.WavAudioFormat)
	}

	d.bitDepth = int(d.dec.BitDepth)
	if d.bitDepth != 8 && d.bitDepth != 16 && d.bitDepth != 24 && d.bitDepth != 32 {
		return nil, fmt.Errorf("unsupported bit depth: %d", d.bitDepth)
	}

	d.norm = float32(uint64(1) << (d.bitDepth - 1))
	d.track = vgmplay.Track{
		Channels:   int(d.dec.NumChans),
		SampleRate: int(d.dec.SampleRate),
	}

	if d.track.Channels > 0 {
		d.track.Frames = d.dec.PCMLen() / int64(d.track.Channels*d.bitDepth/8)
	}

	if meta.Metadata != nil && meta.Metadata.SamplerInfo != nil {
		for _, loop := range meta.Metadata.SamplerInfo.Loops {
			if loop == nil {
				continue
			}

			// only the first loop is played, end is inclusive
			start, end := int64(loop.Start), int64(loop.End)+1
			if d.track.Frames > 0 && start >= d.track.Frames {
				log.Debugf("wav: ignoring loop starting at %d past the end", start)
				break
			}

			d.track.Loop = true
			d.track.LoopStart = start
			if end > start && (d.track.Frames <= 0 || end < d.track.Frames) {
				d.track.LoopEnd = end
			}

			break
		}
	}

	return d, nil
}

// rewind starts reading the PCM data from the beginning.
func (d *Decoder) rewind() error {
	if _, err := d.input.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed seeking input: %w", err)
	}

	d.dec = wav.NewDecoder(d.full)
	if err := d.dec.FwdToPCM(); err != nil {
		return fmt.Errorf("failed finding pcm data: %w", err)
	}

	return nil
}

// fullReader fills the whole buffer on every read unless the input ends,
// the pcm reader decodes only what a single read returns.
type fullReader struct {
	io.ReadSeeker
}

func (r fullReader) Read(p []byte) (int, error) {
	n, err := io.ReadFull(r.ReadSeeker, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}
	return n, err
}

func (d *Decoder) Track() vgmplay.Track {
	return d.track
}

// Decode reads up to len(p)/channels interleaved frames.
func (d *Decoder) Decode(p []float32) (int, error) {
	channels := d.track.Channels
	samples := len(p) - len(p)%channels
	if samples == 0 {
		return 0, nil
	}

	if d.buf == nil || cap(d.buf.Data) < samples {
		d.buf = &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: d.track.SampleRate},
			Data:           make([]int, samples),
			SourceBitDepth: d.bitDepth,
		}
	}

	d.buf.Data = d.buf.Data[:samples]

	// a short read is not the end of the data
	n := 0
	for n < samples {
		view := audio.IntBuffer{Format: d.buf.Format, Data: d.buf.Data[n:samples]}
		read, err := d.dec.PCMBuffer(&view)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("failed reading pcm data: %w", err)
		} else if read <= 0 {
			break
		}

		n += read
	}

	n -= n % channels
	for i := 0; i < n; i++ {
		v := d.buf.Data[i]
		if d.bitDepth == 8 {
			// 8 bit wav is unsigned
			v -= 128
		}

		p[i] = float32(v) / d.norm
	}

	if n == 0 {
		return 0, io.EOF
	}

	return n / channels, nil
}

// SeekFrame reads the data chunk again up to frame.
func (d *Decoder) SeekFrame(frame int64) error {
	if err := d.rewind(); err != nil {
		return err
	}

	skip := make([]float32, 4096*d.track.Channels)
	for frame > 0 {
		n, err := d.Decode(skip[:min(int64(len(skip)), frame*int64(d.track.Channels))])
		if err != nil {
			return fmt.Errorf("failed skipping to frame %d: %w", frame, err)
		}

		frame -= int64(n)
	}

	return nil
}

func (d *Decoder) Close() error {
	if c, ok := d.input.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
