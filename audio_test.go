//go:build test_unit

package go_vgmplay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackValidate(t *testing.T) {
	tests := []struct {
		name  string
		track Track
		ok    bool
	}{
		{"stereo", Track{Channels: 2, SampleRate: 44100, Frames: 100}, true},
		{"unknown length", Track{Channels: 1, SampleRate: 8000}, true},
		{"no channels", Track{SampleRate: 44100}, false},
		{"no sample rate", Track{Channels: 2}, false},
		{"negative frames", Track{Channels: 2, SampleRate: 44100, Frames: -1}, false},
		{"loop", Track{Channels: 2, SampleRate: 44100, Frames: 100, Loop: true, LoopStart: 10, LoopEnd: 90}, true},
		{"loop start past end", Track{Channels: 2, SampleRate: 44100, Frames: 100, Loop: true, LoopStart: 100}, false},
		{"loop end before start", Track{Channels: 2, SampleRate: 44100, Frames: 100, Loop: true, LoopStart: 10, LoopEnd: 10}, false},
		{"loop end past end", Track{Channels: 2, SampleRate: 44100, Frames: 100, Loop: true, LoopEnd: 101}, false},
		{"loop points ignored", Track{Channels: 2, SampleRate: 44100, Frames: 100, LoopStart: 500}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.track.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
			}
		})
	}
}

func TestTrackWrapFrame(t *testing.T) {
	assert.Equal(t, int64(100), Track{Frames: 100, Loop: true}.WrapFrame())
	assert.Equal(t, int64(60), Track{Frames: 100, Loop: true, LoopEnd: 60}.WrapFrame())
	assert.Equal(t, int64(0), Track{Loop: true}.WrapFrame())
}

func TestTrackDuration(t *testing.T) {
	assert.Equal(t, 2500*time.Millisecond, Track{SampleRate: 8000, Frames: 20000}.Duration())
	assert.Equal(t, time.Duration(0), Track{Frames: 20000}.Duration())
}

func TestTrackApplyLoopTags(t *testing.T) {
	track := Track{Channels: 2, SampleRate: 44100, Frames: 1000}
	track.ApplyLoopTags([][2]string{{"TITLE", "Green Hill"}, {"loopstart", "100"}, {"LOOPLENGTH", "500"}})
	assert.True(t, track.Loop)
	assert.Equal(t, int64(100), track.LoopStart)
	assert.Equal(t, int64(600), track.LoopEnd)

	track = Track{Channels: 2, SampleRate: 44100, Frames: 1000}
	track.ApplyLoopTags([][2]string{{"LOOPSTART", "100"}, {"LOOPEND", "700"}, {"LOOPLENGTH", "5"}})
	assert.Equal(t, int64(700), track.LoopEnd)

	track = Track{Channels: 2, SampleRate: 44100, Frames: 1000}
	track.ApplyLoopTags([][2]string{{"LOOPSTART", "100"}, {"LOOPLENGTH", "900"}})
	assert.Equal(t, int64(0), track.LoopEnd)
	assert.NoError(t, track.Validate())

	track = Track{Channels: 2, SampleRate: 44100, Frames: 1000}
	track.ApplyLoopTags([][2]string{{"LOOPSTART", "abc"}, {"LOOPEND", "700"}})
	assert.False(t, track.Loop)
	// a loop start past the end leaves the track playable once through
	for _, start := range []string{"5000", "1000"} {
		track = Track{Channels: 2, SampleRate: 44100, Frames: 1000}
		track.ApplyLoopTags([][2]string{{"LOOPSTART", start}, {"LOOPLENGTH", "100"}})
		assert.False(t, track.Loop, start)
		assert.NoError(t, track.Validate(), start)
	}

	// unknown length trusts the tags
	track = Track{Channels: 2, SampleRate: 44100}
	track.ApplyLoopTags([][2]string{{"LOOPSTART", "5000"}})
	assert.True(t, track.Loop)
	assert.NoError(t, track.Validate())
}
