//go:build test_unit

package flac

import (
	"bytes"
	"errors"
	"io"
	"testing"

	vgmplay "github.com/devgianlu/go-vgmplay"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlockSize = 1000

// encodeTestStream encodes a 16 bit stereo stream where frame i is (i, -i).
func encodeTestStream(t *testing.T, blocks int, tags ...[2]string) []byte {
	t.Helper()

	info := &meta.StreamInfo{
		BlockSizeMin:  testBlockSize,
		BlockSizeMax:  testBlockSize,
		SampleRate:    44100,
		NChannels:     2,
		BitsPerSample: 16,
		NSamples:      uint64(blocks * testBlockSize),
	}

	var extra []*meta.Block
	if len(tags) > 0 {
		extra = append(extra, &meta.Block{
			Header: meta.Header{Type: meta.TypeVorbisComment, Length: 1},
			Body:   &meta.VorbisComment{Vendor: "go-vgmplay", Tags: tags},
		})
	}

	var out bytes.Buffer
	enc, err := flac.NewEncoder(&out, info, extra...)
	require.NoError(t, err)

	for b := 0; b < blocks; b++ {
		left, right := make([]int32, testBlockSize), make([]int32, testBlockSize)
		for i := range left {
			left[i] = int32(b*testBlockSize + i)
			right[i] = -left[i]
		}

		require.NoError(t, enc.WriteFrame(&frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         testBlockSize,
				SampleRate:        44100,
				Channels:          frame.ChannelsLR,
				BitsPerSample:     16,
			},
			Subframes: []*frame.Subframe{
				{SubHeader: frame.SubHeader{Pred: frame.PredVerbatim}, Samples: left, NSamples: testBlockSize},
				{SubHeader: frame.SubHeader{Pred: frame.PredVerbatim}, Samples: right, NSamples: testBlockSize},
			},
		}))
	}

	require.NoError(t, enc.Close())
	return out.Bytes()
}

func frameValue(v float32) int {
	if v < 0 {
		return int(v*32768 - 0.5)
	}
	return int(v*32768 + 0.5)
}

// decodeRest returns the left channel of every frame left in the decoder and
// checks the right channel mirrors it.
func decodeRest(t *testing.T, dec *Decoder) []int {
	t.Helper()

	var got []int
	buf := make([]float32, 2*700)
	for {
		n, err := dec.Decode(buf)
		if errors.Is(err, io.EOF) {
			return got
		}
		require.NoError(t, err)

		for i := 0; i < n; i++ {
			require.Equal(t, -frameValue(buf[2*i]), frameValue(buf[2*i+1]))
			got = append(got, frameValue(buf[2*i]))
		}
	}
}

func TestDecode(t *testing.T) {
	dec, err := New(&vgmplay.NullLogger{}, bytes.NewReader(encodeTestStream(t, 5)))
	require.NoError(t, err)
	defer dec.Close()

	assert.Equal(t, vgmplay.Track{Channels: 2, SampleRate: 44100, Frames: 5000}, dec.Track())

	got := decodeRest(t, dec)
	require.Len(t, got, 5000)
	for i, v := range got {
		if !assert.Equal(t, i, v) {
			break
		}
	}
}

func TestSeekFrame(t *testing.T) {
	dec, err := New(&vgmplay.NullLogger{}, bytes.NewReader(encodeTestStream(t, 5)))
	require.NoError(t, err)
	defer dec.Close()

	// in the middle of a block
	require.NoError(t, dec.SeekFrame(2500))
	got := decodeRest(t, dec)
	require.Len(t, got, 2500)
	assert.Equal(t, 2500, got[0])
	assert.Equal(t, 4999, got[len(got)-1])

	// the very last frame
	require.NoError(t, dec.SeekFrame(4999))
	assert.Equal(t, []int{4999}, decodeRest(t, dec))

	// back to a block boundary
	require.NoError(t, dec.SeekFrame(1000))
	got = decodeRest(t, dec)
	require.Len(t, got, 4000)
	assert.Equal(t, 1000, got[0])

	assert.Error(t, dec.SeekFrame(5000))
}

func TestLoopTags(t *testing.T) {
	data := encodeTestStream(t, 3, [2]string{"TITLE", "Stage 1"}, [2]string{"LOOPSTART", "500"}, [2]string{"LOOPEND", "2500"})

	dec, err := New(&vgmplay.NullLogger{}, bytes.NewReader(data))
	require.NoError(t, err)
	defer dec.Close()

	track := dec.Track()
	assert.True(t, track.Loop)
	assert.Equal(t, int64(500), track.LoopStart)
	assert.Equal(t, int64(2500), track.LoopEnd)
	assert.NoError(t, track.Validate())
}

func TestNewNotFlac(t *testing.T) {
	_, err := New(&vgmplay.NullLogger{}, bytes.NewReader([]byte("RIFF....WAVEfmt ")))
	assert.Error(t, err)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(&vgmplay.NullLogger{}, "does/not/exist.flac")
	assert.ErrorIs(t, err, vgmplay.ErrUnreadableFile)
}
