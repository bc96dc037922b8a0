//go:build test_unit

package vorbis

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	vgmplay "github.com/devgianlu/go-vgmplay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oggPageHeader(granule int64) []byte {
	hdr := make([]byte, 27)
	copy(hdr, "OggS")
	binary.LittleEndian.PutUint64(hdr[6:], uint64(granule))
	return hdr
}

func TestLastGranulePosition(t *testing.T) {
	var data []byte
	data = append(data, oggPageHeader(0)...)
	data = append(data, bytes.Repeat([]byte{0xaa}, 100)...)
	data = append(data, oggPageHeader(4096)...)
	data = append(data, bytes.Repeat([]byte{0xbb}, 100)...)
	data = append(data, oggPageHeader(123456)...)
	data = append(data, bytes.Repeat([]byte{0xcc}, 50)...)

	frames, err := lastGranulePosition(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, int64(123456), frames)
}

func TestLastGranulePositionSkipsUnfinishedPacket(t *testing.T) {
	var data []byte
	data = append(data, oggPageHeader(800)...)
	data = append(data, oggPageHeader(-1)...)

	frames, err := lastGranulePosition(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, int64(800), frames)
}

func TestLastGranulePositionNotOgg(t *testing.T) {
	data := bytes.Repeat([]byte("RIFF"), 100)
	_, err := lastGranulePosition(bytes.NewReader(data), int64(len(data)))
	assert.Error(t, err)
}

func TestInfoTags(t *testing.T) {
	info := Info{Comments: []string{"TITLE=Title Theme", "LOOPSTART=44100", "broken", "COMMENT=a=b"}}
	assert.Equal(t, [][2]string{
		{"TITLE", "Title Theme"},
		{"LOOPSTART", "44100"},
		{"COMMENT", "a=b"},
	}, info.Tags())
}

func TestFill(t *testing.T) {
	buf := make([]byte, 8)

	// the last chunk of the file is shorter than the buffer
	n, err := fill(bytes.NewReader([]byte("OggS!")), buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = fill(bytes.NewReader(nil), buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, n)

	// short reads are retried until the buffer is full
	n, err = fill(iotest.OneByteReader(bytes.NewReader([]byte("0123456789"))), buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	broken := errors.New("broken")
	_, err = fill(iotest.ErrReader(broken), buf)
	assert.ErrorIs(t, err, broken)
}

// decodeAll returns the number of frames left in the decoder and whether they
// are all silent.
func decodeAll(t *testing.T, dec *Decoder) (frames int64, silent bool) {
	t.Helper()

	silent = true
	buf := make([]float32, 1000*dec.Track().Channels)
	for {
		n, err := dec.Decode(buf)
		if errors.Is(err, io.EOF) {
			return frames, silent
		}
		require.NoError(t, err)

		for _, v := range buf[:n*dec.Track().Channels] {
			if v != 0 {
				silent = false
			}
		}

		frames += int64(n)
	}
}

func newTestDecoder(t *testing.T, data []byte) *Decoder {
	t.Helper()

	dec, err := New(&vgmplay.NullLogger{}, bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dec.Close() })
	return dec
}

func TestDecoderDecodesUpToLastGranule(t *testing.T) {
	data := silentOgg(3001, 100)

	// the last chunk read from the file is a short one
	require.Greater(t, len(data), DataChunkSize)
	require.NotZero(t, len(data)%DataChunkSize)

	dec := newTestDecoder(t, data)
	assert.Equal(t, vgmplay.Track{Channels: 2, SampleRate: 44100, Frames: 3000 * silentBlockFrames}, dec.Track())

	frames, silent := decodeAll(t, dec)
	assert.Equal(t, dec.Track().Frames, frames)
	assert.True(t, silent)

	// the end of the stream sticks
	n, err := dec.Decode(make([]float32, 16))
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, n)
}

func TestDecoderSmallFile(t *testing.T) {
	data := silentOgg(21, 100)
	require.Less(t, len(data), DataChunkSize)

	path := filepath.Join(t.TempDir(), "small.ogg")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	dec, err := Open(&vgmplay.NullLogger{}, path)
	require.NoError(t, err)
	defer dec.Close()

	assert.Equal(t, int64(20*silentBlockFrames), dec.Track().Frames)

	frames, _ := decodeAll(t, dec.(*Decoder))
	assert.Equal(t, int64(20*silentBlockFrames), frames)
}

func TestDecoderLoopTagsAndSeek(t *testing.T) {
	dec := newTestDecoder(t, silentOgg(101, 30, "TITLE=Boss", "LOOPSTART=5000", "LOOPLENGTH=2000"))

	track := dec.Track()
	assert.True(t, track.Loop)
	assert.Equal(t, int64(5000), track.LoopStart)
	assert.Equal(t, int64(7000), track.LoopEnd)
	assert.NoError(t, track.Validate())
	assert.Equal(t, []string{"TITLE=Boss", "LOOPSTART=5000", "LOOPLENGTH=2000"}, dec.Info().Comments)

	_, _ = decodeAll(t, dec)

	require.NoError(t, dec.SeekFrame(track.LoopStart))
	frames, _ := decodeAll(t, dec)
	assert.Equal(t, track.Frames-track.LoopStart, frames)
}

func TestNewTruncatedHeaders(t *testing.T) {
	data := silentOgg(10, 10)
	_, err := New(&vgmplay.NullLogger{}, bytes.NewReader(data[:60]), 60)
	assert.Error(t, err)
}
