package mpris

import (
	"encoding/hex"
	"net/url"
	"time"

	"github.com/godbus/dbus/v5"
)

type PlaybackStatus string

const (
	Playing PlaybackStatus = "Playing"
	Paused  PlaybackStatus = "Paused"
	Stopped PlaybackStatus = "Stopped"
)

type LoopStatus string

const (
	None     LoopStatus = "None"
	Track    LoopStatus = "Track"
	Playlist LoopStatus = "Playlist"
)

type MediaPlayer2PlayerCommandType int32

const (
	MediaPlayer2PlayerCommandTypeNext MediaPlayer2PlayerCommandType = iota
	MediaPlayer2PlayerCommandTypePrevious
	MediaPlayer2PlayerCommandTypePause
	MediaPlayer2PlayerCommandTypePlayPause
	MediaPlayer2PlayerCommandTypeStop
	MediaPlayer2PlayerCommandTypePlay
	MediaPlayer2PlayerCommandTypeSeek
	MediaPlayer2PlayerCommandTypeSetPosition
	MediaPlayer2PlayerCommandTypeOpenUri
	MediaPlayer2PlayerCommandLoopStatusChanged
	MediaPlayer2PlayerCommandRateChanged
	MediaPlayer2PlayerCommandShuffleChanged
	MediaPlayer2PlayerCommandVolumeChanged
)

type MediaPlayer2PlayerCommand struct {
	Type     MediaPlayer2PlayerCommandType
	Argument any

	response chan MediaPlayer2PlayerCommandResponse
}

// Reply unblocks the D-Bus call that produced the command. Commands built
// outside this package have nobody waiting and are ignored.
func (m *MediaPlayer2PlayerCommand) Reply(resp MediaPlayer2PlayerCommandResponse) {
	if m.response == nil {
		return
	}

	m.response <- resp
}

type MediaPlayer2PlayerCommandResponse struct {
	Err *dbus.Error
}

// Media is the track being played.
type Media struct {
	Path     string
	Title    string
	Duration time.Duration
	Loop     bool
}

type MediaState struct {
	PlaybackStatus PlaybackStatus
	LoopStatus     LoopStatus
	Shuffle        bool
	PositionMs     int64
	Media          *Media // nilable
}

type SeekState struct {
	PositionMs int64
}

type Server interface {
	EmitStateUpdate(state MediaState)
	EmitSeekUpdate(state SeekState)
	Receive() <-chan MediaPlayer2PlayerCommand

	Close() error
}

// GetLoopStatus maps a looping track to Track and autoplay through the list
// to Playlist.
func GetLoopStatus(autoplay bool, loopingTrack bool) LoopStatus {
	if loopingTrack {
		return Track
	}
	if autoplay {
		return Playlist
	}
	return None
}

func sameMedia(a, b *Media) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func trackId(path string) dbus.ObjectPath {
	if len(path) == 0 {
		return "/org/mpris/MediaPlayer2/TrackList/NoTrack"
	}

	return dbus.ObjectPath("/org/vgmplay/track/" + hex.EncodeToString([]byte(path)))
}

func makeMetadata(media *Media) map[string]any {
	m := make(map[string]any)
	if media == nil {
		m["mpris:trackid"] = trackId("")
		return m
	}

	m["mpris:trackid"] = trackId(media.Path)
	m["xesam:title"] = media.Title
	m["xesam:url"] = (&url.URL{Scheme: "file", Path: media.Path}).String()
	m["xesam:autoRating"] = 1

	// looping tracks never end
	if !media.Loop && media.Duration > 0 {
		m["mpris:length"] = media.Duration.Microseconds()
	}

	return m
}

type DummyServer struct {
}

func (d DummyServer) EmitStateUpdate(_ MediaState) {
}

func (d DummyServer) EmitSeekUpdate(_ SeekState) {
}

func (d DummyServer) Receive() <-chan MediaPlayer2PlayerCommand {
	return make(<-chan MediaPlayer2PlayerCommand)
}

func (d DummyServer) Close() error { return nil }
