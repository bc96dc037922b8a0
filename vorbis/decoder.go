package vorbis

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	vgmplay "github.com/devgianlu/go-vgmplay"
	"github.com/xlab/vorbis-go/vorbis"
)

const (
	// DataChunkSize represents the amount of data read from physical bitstream on each iteration.
	DataChunkSize = 4096 // could be also 8192

	// tailSize is how much of the end of the file is searched for the last page.
	tailSize = 64 * 1024
)

// Decoder implements an OggVorbis decoder.
type Decoder struct {
	sync.Mutex

	log vgmplay.Logger

	input io.ReadSeeker
	track vgmplay.Track
	info  Info

	stream *stream
	buf    []float32
	skip   int
	eos    bool
	closed bool
}

// stream is a single pass of libvorbis over the input, from the headers on.
type stream struct {
	log   vgmplay.Logger
	input io.Reader

	// syncState tracks the synchronization of the current page. It is used during
	// decoding to track the status of data as it is read in, synchronized, verified,
	// and parsed into pages belonging to the various logical bistreams
	// in the current physical bitstream link.
	syncState vorbis.OggSyncState

	// streamState tracks the current decode state of the current logical bitstream.
	streamState vorbis.OggStreamState

	// page encapsulates the data for an Ogg page. Ogg pages are the fundamental unit
	// of framing and interleave in an Ogg bitstream.
	page vorbis.OggPage

	// packet encapsulates the data for a single raw packet of data and is used to transfer
	// data between the Ogg framing layer and the handling codec.
	packet vorbis.OggPacket

	info    vorbis.Info
	comment vorbis.Comment

	// dspState is the state for one instance of the Vorbis decoder.
	dspState vorbis.DspState

	// block holds the data for a single block of audio. One Vorbis block translates to one codec packet.
	block vorbis.Block

	pcm [][][]float32
}

// Info represents basic information about the audio in a Vorbis bitstream.
type Info struct {
	Channels   int32
	SampleRate int32
	Comments   []string
	Vendor     string
}

// Tags splits the user comments into key and value.
func (i Info) Tags() [][2]string {
	tags := make([][2]string, 0, len(i.Comments))
	for _, comment := range i.Comments {
		key, val, ok := strings.Cut(comment, "=")
		if !ok {
			continue
		}

		tags = append(tags, [2]string{key, val})
	}

	return tags
}

// Open opens an Ogg Vorbis file.
func Open(log vgmplay.Logger, path string) (vgmplay.Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vgmplay.ErrUnreadableFile, err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %w", vgmplay.ErrUnreadableFile, err)
	}

	dec, err := New(log, f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %w", vgmplay.ErrUnsupportedFormat, err)
	}

	return dec, nil
}

// New creates and initialises a new OggVorbis decoder for the provided bytestream.
// The decoder closes the input if it is an io.Closer.
func New(log vgmplay.Logger, r io.ReadSeeker, size int64) (*Decoder, error) {
	d := &Decoder{log: log, input: r}

	// the length is the position of the last page
	frames, err := lastGranulePosition(r, size)
	if err != nil {
		log.WithError(err).Debugf("vorbis: unknown stream length")
		frames = 0
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("vorbis: failed rewinding input: %w", err)
	}

	d.stream, err = newStream(log, r)
	if err != nil {
		return nil, err
	}

	d.info = ReadInfo(&d.stream.info, &d.stream.comment)
	d.track = vgmplay.Track{
		Channels:   int(d.info.Channels),
		SampleRate: int(d.info.SampleRate),
		Frames:     frames,
	}
	d.track.ApplyLoopTags(d.info.Tags())

	return d, nil
}

func newStream(log vgmplay.Logger, r io.Reader) (*stream, error) {
	s := &stream{log: log, input: r}

	vorbis.OggSyncInit(&s.syncState)

	if err := s.readStreamHeaders(); err != nil {
		s.cleanup()
		return nil, err
	}

	s.pcm = [][][]float32{
		make([][]float32, s.info.Channels),
	}

	if ret := vorbis.SynthesisInit(&s.dspState, &s.info); ret < 0 {
		s.cleanup()
		return nil, errors.New("vorbis: error during playback initialization")
	}

	vorbis.BlockInit(&s.dspState, &s.block)

	return s, nil
}

func (d *Decoder) Track() vgmplay.Track {
	return d.track
}

func (d *Decoder) Info() Info {
	return d.info
}

// Close releases the allocated resources and puts the decoder into an
// unrecoverable state.
func (d *Decoder) Close() error {
	d.Lock()
	defer d.Unlock()
	if d.closed {
		return nil
	}

	d.closed = true
	if d.stream != nil {
		d.stream.cleanup()
		d.stream = nil
	}

	if c, ok := d.input.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

func (s *stream) cleanup() {
	vorbis.OggSyncClear(&s.syncState)
	s.syncState.Free()

	if s.streamState.Ref() != nil {
		vorbis.OggStreamClear(&s.streamState)
		s.streamState.Free()
	}

	if s.comment.Ref() != nil {
		vorbis.CommentClear(&s.comment)
		s.comment.Free()
	}

	if s.info.Ref() != nil {
		vorbis.InfoClear(&s.info)
		s.info.Free()
	}

	if s.dspState.Ref() != nil {
		vorbis.DspClear(&s.dspState)
		s.dspState.Free()
	}

	if s.block.Ref() != nil {
		vorbis.BlockClear(&s.block)
		s.block.Free()
	}

	s.packet.Free()
	s.page.Free()
}

// fill reads up to len(buf) bytes. The last short chunk of the input is not
// an error, io.EOF is returned only when nothing is left to read.
func fill(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}
	return n, err
}

func (s *stream) readChunk() (n int, err error) {
	buf := vorbis.OggSyncBuffer(&s.syncState, DataChunkSize)
	n, err = fill(s.input, buf[:DataChunkSize])
	vorbis.OggSyncWrote(&s.syncState, n)
	return n, err
}

func (s *stream) readStreamHeaders() error {
	if _, err := s.readChunk(); err != nil {
		return fmt.Errorf("vorbis: failed reading headers chunk: %w", err)
	}

	// Read the first page
	if ret := vorbis.OggSyncPageout(&s.syncState, &s.page); ret != 1 {
		return errors.New("vorbis: not a valid Ogg bitstream")
	}

	// Init the logical bitstream with serial number stored in the page
	vorbis.OggStreamInit(&s.streamState, vorbis.OggPageSerialno(&s.page))

	vorbis.InfoInit(&s.info)
	vorbis.CommentInit(&s.comment)

	// Add a complete page to the bitstream
	if ret := vorbis.OggStreamPagein(&s.streamState, &s.page); ret < 0 {
		return errors.New("vorbis: the supplied page does not belong this Vorbis stream")
	}
	// Get the first packet
	if ret := vorbis.OggStreamPacketout(&s.streamState, &s.packet); ret != 1 {
		return errors.New("vorbis: unable to fetch initial Vorbis packet from the first page")
	}
	// Finally decode the header packet
	if ret := vorbis.SynthesisHeaderin(&s.info, &s.comment, &s.packet); ret < 0 {
		return fmt.Errorf("vorbis: unable to decode the initial Vorbis header: %d", ret)
	}

	var headersRead int
forPage:
	for headersRead < 2 {
		if res := vorbis.OggSyncPageout(&s.syncState, &s.page); res < 0 {
			// bytes have been skipped, try to sync again
			continue forPage
		} else if res == 0 {
			// go get more data
			if _, err := s.readChunk(); err != nil {
				return errors.New("vorbis: got EOF while reading Vorbis headers")
			}
			continue forPage
		}
		// page is synced at this point
		vorbis.OggStreamPagein(&s.streamState, &s.page)
		for headersRead < 2 {
			if ret := vorbis.OggStreamPacketout(&s.streamState, &s.packet); ret < 0 {
				return errors.New("vorbis: data is missing near the secondary Vorbis header")
			} else if ret == 0 {
				// no packets left on the page, go get a new one
				continue forPage
			}
			if ret := vorbis.SynthesisHeaderin(&s.info, &s.comment, &s.packet); ret < 0 {
				return errors.New("vorbis: unable to read the secondary Vorbis header")
			}
			headersRead++
		}
	}

	s.info.Deref()
	s.comment.Deref()

	return nil
}

// Decode reads up to len(p)/channels interleaved frames.
func (d *Decoder) Decode(p []float32) (int, error) {
	d.Lock()
	defer d.Unlock()
	if d.closed {
		return 0, errors.New("decoder: decoder has already been closed")
	} else if d.stream == nil {
		return 0, errors.New("decoder: stream failed restarting")
	}

	channels := d.track.Channels
	p = p[:len(p)-len(p)%channels]

	n := 0
	for n < len(p) {
		// read from page buffer
		if len(d.buf) > 0 {
			if d.skip > 0 {
				skipped := min(d.skip, len(d.buf))
				d.buf = d.buf[skipped:]
				d.skip -= skipped
				continue
			}

			copied := copy(p[n:], d.buf)
			d.buf = d.buf[copied:]
			n += copied
			continue
		}

		if d.eos {
			break
		}

		// decode another page
		if err := d.stream.readNextPage(&d.buf); errors.Is(err, io.EOF) {
			d.eos = true
		} else if err != nil {
			return n / channels, err
		}
	}

	if n == 0 && d.eos {
		return 0, io.EOF
	}

	return n / channels, nil
}

func (s *stream) safeSynthesisPcmout() (ret int32) {
	defer func() {
		err := recover()
		if err == nil {
			return
		}

		switch err := err.(type) {
		case string:
			// the calloc inside allocPPFloatMemory will sometimes fail for no apparent reason,
			// avoid panicking the entire program and fail locally instead.
			if strings.HasPrefix(err, "memory alloc error") {
				ret = -1
				return
			}
		}

		panic(err)
	}()

	return vorbis.SynthesisPcmout(&s.dspState, s.pcm)
}

func (s *stream) readNextPage(buf *[]float32) (err error) {
	for {
		if ret := vorbis.OggSyncPageout(&s.syncState, &s.page); ret < 0 {
			s.log.Debugf("vorbis: corrupt or missing data in bitstream")
			continue
		} else if ret == 0 {
			// need more data, a page may still be buffered after a short read
			if _, err = s.readChunk(); err != nil {
				return err
			}
		} else {
			// we have read the page
			break
		}
	}

	// page is synced at this point
	vorbis.OggStreamPagein(&s.streamState, &s.page)

	for {
		if ret := vorbis.OggStreamPacketout(&s.streamState, &s.packet); ret < 0 {
			// skip this packet
			continue
		} else if ret == 0 {
			// no packets left on the page
			break
		}

		if vorbis.Synthesis(&s.block, &s.packet) == 0 {
			vorbis.SynthesisBlockin(&s.dspState, &s.block)
		}

		samples := s.safeSynthesisPcmout()
		for ; samples > 0; samples = s.safeSynthesisPcmout() {
			for i := 0; i < int(samples); i++ {
				for j := 0; j < int(s.info.Channels); j++ {
					*buf = append(*buf, s.pcm[0][j][:samples][i])
				}
			}
			vorbis.SynthesisRead(&s.dspState, samples)
		}
	}

	if vorbis.OggPageEos(&s.page) == 1 {
		return io.EOF
	}

	return nil
}

// SeekFrame restarts decoding from the beginning of the stream and drops
// everything before frame. Ogg has no cheap exact seek without an index.
func (d *Decoder) SeekFrame(frame int64) error {
	d.Lock()
	defer d.Unlock()
	if d.closed {
		return errors.New("decoder: decoder has already been closed")
	}

	if _, err := d.input.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed seeking input: %w", err)
	}

	if d.stream != nil {
		d.stream.cleanup()
		d.stream = nil
	}

	st, err := newStream(d.log, d.input)
	if err != nil {
		return fmt.Errorf("failed restarting stream: %w", err)
	}

	d.stream = st
	d.buf = d.buf[:0]
	d.skip = int(frame) * d.track.Channels
	d.eos = false

	d.log.Tracef("vorbis: restarted stream at frame %d", frame)
	return nil
}

// lastGranulePosition returns the granule position of the last Ogg page,
// which for Vorbis is the number of frames in the stream.
func lastGranulePosition(r io.ReadSeeker, size int64) (int64, error) {
	start := max(0, size-tailSize)
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return 0, err
	}

	tail := make([]byte, size-start)
	if _, err := io.ReadFull(r, tail); err != nil {
		return 0, err
	}

	for i := len(tail) - 27; i >= 0; i-- {
		if string(tail[i:i+4]) != "OggS" || tail[i+4] != 0 {
			continue
		}

		granule := int64(binary.LittleEndian.Uint64(tail[i+6:]))
		if granule < 0 {
			continue
		}

		return granule, nil
	}

	return 0, errors.New("no ogg page found")
}
