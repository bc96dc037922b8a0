package flac

import (
	"errors"
	"fmt"
	"io"
	"os"

	vgmplay "github.com/devgianlu/go-vgmplay"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/meta"
)

type Decoder struct {
	log vgmplay.Logger

	stream *flac.Stream
	track  vgmplay.Track

	norm   float32
	buffer []float32
	skip   int
}

// Open opens a FLAC file.
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

// New parses the FLAC metadata from r. The stream closes r if it is an io.Closer.
func New(log vgmplay.Logger, r io.ReadSeeker) (*Decoder, error) {
	stream, err := flac.NewSeek(r)
	if err != nil {
		return nil, fmt.Errorf("failed parsing flac stream: %w", err)
	}

	info := stream.Info
	if info.BitsPerSample == 0 || info.BitsPerSample > 32 {
		return nil, fmt.Errorf("invalid bits per sample: %d", info.BitsPerSample)
	}

	d := &Decoder{
		log:    log,
		stream: stream,
		norm:   float32(uint64(1) << (info.BitsPerSample - 1)),
		track: vgmplay.Track{
			Channels:   int(info.NChannels),
			SampleRate: int(info.SampleRate),
			Frames:     int64(info.NSamples),
		},
	}

	for _, block := range stream.Blocks {
		if comment, ok := block.Body.(*meta.VorbisComment); ok {
			d.track.ApplyLoopTags(comment.Tags)
		}
	}

	log.Debugf("FLAC stream info: sample rate = %d, channels = %d, bits = %d", info.SampleRate, info.NChannels, info.BitsPerSample)
	return d, nil
}

func (d *Decoder) Track() vgmplay.Track {
	return d.track
}

// Decode reads up to len(p)/channels interleaved frames.
func (d *Decoder) Decode(p []float32) (n int, err error) {
	channels := d.track.Channels
	p = p[:len(p)-len(p)%channels]

	for {
		if d.skip > 0 && len(d.buffer) > 0 {
			skipped := min(d.skip, len(d.buffer))
			d.buffer = d.buffer[skipped:]
			d.skip -= skipped
			continue
		}

		nn := copy(p, d.buffer)
		p = p[nn:]
		n += nn
		d.buffer = d.buffer[nn:]

		if len(p) == 0 {
			return n / channels, nil
		}

		if err := d.readFrame(); errors.Is(err, io.EOF) {
			if n == 0 {
				return 0, io.EOF
			}

			return n / channels, nil
		} else if err != nil {
			return n / channels, fmt.Errorf("failed decoding flac frame: %w", err)
		}
	}
}

func (d *Decoder) readFrame() error {
	frame, err := d.stream.ParseNext()
	if err != nil {
		return err
	}

	if len(frame.Subframes) != d.track.Channels {
		return fmt.Errorf("frame has %d channels, stream has %d", len(frame.Subframes), d.track.Channels)
	}

	// Copy samples to the buffer interleaving channels
	d.buffer = d.buffer[:0]
	for i := 0; i < int(frame.BlockSize); i++ {
		for _, sub := range frame.Subframes {
			d.buffer = append(d.buffer, float32(sub.Samples[i])/d.norm)
		}
	}

	return nil
}

// SeekFrame seeks to the FLAC frame holding frame and drops the frames before it.
func (d *Decoder) SeekFrame(frame int64) error {
	start, err := d.stream.Seek(uint64(frame))
	if err != nil {
		return fmt.Errorf("failed seeking to frame %d: %w", frame, err)
	}

	d.buffer = d.buffer[:0]
	d.skip = int(uint64(frame)-start) * d.track.Channels
	return nil
}

func (d *Decoder) Close() error {
	return d.stream.Close()
}
