package player

import vgmplay "github.com/devgianlu/go-vgmplay"

type EventType int

const (
	EventTypePlay EventType = iota
	EventTypeStop
	EventTypeNotPlaying
	EventTypeError
)

func (t EventType) String() string {
	switch t {
	case EventTypePlay:
		return "play"
	case EventTypeStop:
		return "stop"
	case EventTypeNotPlaying:
		return "not_playing"
	case EventTypeError:
		return "error"
	default:
		return "unknown"
	}
}

type Event struct {
	Type EventType
	Path string

	// Track is set for EventTypePlay.
	Track vgmplay.Track

	// Err is set for EventTypeError.
	Err error
}
