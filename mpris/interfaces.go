//go:build linux

package mpris

import (
	"reflect"

	vgmplay "github.com/devgianlu/go-vgmplay"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

func newProp(value interface{}, cb func(*prop.Change) *dbus.Error) *prop.Prop {
	return &prop.Prop{
		Value:    value,
		Writable: cb != nil,
		Emit:     prop.EmitTrue,
		Callback: cb,
	}
}

var mediaPlayer2Props = map[string]*prop.Prop{
	"CanQuit":             newProp(false, nil),
	"CanRaise":            newProp(false, nil),
	"HasTrackList":        newProp(false, nil),
	"Identity":            newProp("go-vgmplay", nil),
	"SupportedUriSchemes": newProp([]string{}, nil),
	"SupportedMimeTypes":  newProp([]string{"audio/wav", "audio/mpeg", "audio/flac", "audio/ogg"}, nil),
}

type MediaPlayer2RootInterface struct {
	log vgmplay.Logger
}

func (r MediaPlayer2RootInterface) Raise() *dbus.Error {
	// there is no window to raise
	r.log.Tracef("RootInterface::Raise")
	return nil
}

func (r MediaPlayer2RootInterface) Quit() *dbus.Error {
	r.log.Tracef("RootInterface::Quit")
	return nil
}

type MediaPlayer2PlayerInterface struct {
	log vgmplay.Logger

	commands chan MediaPlayer2PlayerCommand
}

func (p MediaPlayer2PlayerInterface) Props() map[string]*prop.Prop {
	position := newProp(int64(0), nil)
	// clients poll the position, changes are not signalled
	position.Emit = prop.EmitFalse

	return map[string]*prop.Prop{
		"PlaybackStatus": newProp(Stopped, nil),
		"Metadata":       newProp(makeMetadata(nil), nil),

		"Volume":     newProp(float64(1), nil),
		"Shuffle":    newProp(false, p.shuffleChanged),
		"LoopStatus": newProp(None, p.loopStatusChanged),

		"Position":      position,
		"Rate":          newProp(1.0, nil),
		"MinimumRate":   newProp(1.0, nil),
		"MaximumRate":   newProp(1.0, nil),
		"CanGoNext":     newProp(true, nil),
		"CanGoPrevious": newProp(true, nil),
		"CanPlay":       newProp(true, nil),
		"CanPause":      newProp(true, nil),
		"CanSeek":       newProp(false, nil),
		"CanControl":    newProp(true, nil),
	}
}

func (p MediaPlayer2PlayerInterface) enqueueCommand(command MediaPlayer2PlayerCommand) *dbus.Error {
	command.response = make(chan MediaPlayer2PlayerCommandResponse)

	select {
	case p.commands <- command:
		resp := <-command.response

		if resp.Err != nil {
			p.log.Tracef("mpris command %v returned an error %s", command.Type, resp.Err)
		}

		return resp.Err
	default:
		p.log.Tracef("mpris command not enqueued, because there was no listener registered")
		return nil
	}
}

func (p MediaPlayer2PlayerInterface) shuffleChanged(change *prop.Change) *dbus.Error {
	p.log.Tracef("PlayerInterface::shuffleChanged")

	return p.enqueueCommand(MediaPlayer2PlayerCommand{
		Type:     MediaPlayer2PlayerCommandShuffleChanged,
		Argument: change.Value,
	})
}

func (p MediaPlayer2PlayerInterface) loopStatusChanged(change *prop.Change) *dbus.Error {
	p.log.Tracef("PlayerInterface::loopStatusChanged")

	// the value is sometimes decoded as a plain string
	value := change.Value
	if reflect.TypeOf(value) != reflect.TypeOf(None) {
		s, _ := change.Value.(string)
		value = LoopStatus(s)
	}

	return p.enqueueCommand(MediaPlayer2PlayerCommand{
		Type:     MediaPlayer2PlayerCommandLoopStatusChanged,
		Argument: value,
	})
}

func (p MediaPlayer2PlayerInterface) Next() *dbus.Error {
	p.log.Tracef("PlayerInterface::Next")
	return p.enqueueCommand(MediaPlayer2PlayerCommand{Type: MediaPlayer2PlayerCommandTypeNext})
}

func (p MediaPlayer2PlayerInterface) Previous() *dbus.Error {
	p.log.Tracef("PlayerInterface::Previous")
	return p.enqueueCommand(MediaPlayer2PlayerCommand{Type: MediaPlayer2PlayerCommandTypePrevious})
}

func (p MediaPlayer2PlayerInterface) Pause() *dbus.Error {
	p.log.Tracef("PlayerInterface::Pause")
	return p.enqueueCommand(MediaPlayer2PlayerCommand{Type: MediaPlayer2PlayerCommandTypePause})
}

func (p MediaPlayer2PlayerInterface) PlayPause() *dbus.Error {
	p.log.Tracef("PlayerInterface::PlayPause")
	return p.enqueueCommand(MediaPlayer2PlayerCommand{Type: MediaPlayer2PlayerCommandTypePlayPause})
}

func (p MediaPlayer2PlayerInterface) Stop() *dbus.Error {
	p.log.Tracef("PlayerInterface::Stop")
	return p.enqueueCommand(MediaPlayer2PlayerCommand{Type: MediaPlayer2PlayerCommandTypeStop})
}

func (p MediaPlayer2PlayerInterface) Play() *dbus.Error {
	p.log.Tracef("PlayerInterface::Play")
	return p.enqueueCommand(MediaPlayer2PlayerCommand{Type: MediaPlayer2PlayerCommandTypePlay})
}

func (p MediaPlayer2PlayerInterface) Seek(x int64) *dbus.Error {
	p.log.Tracef("PlayerInterface::Seek (%d)", x)
	return p.enqueueCommand(MediaPlayer2PlayerCommand{Type: MediaPlayer2PlayerCommandTypeSeek, Argument: x})
}

func (p MediaPlayer2PlayerInterface) SetPosition(o dbus.ObjectPath, x int64) *dbus.Error {
	p.log.Tracef("PlayerInterface::SetPosition (%s, %d)", o, x)
	return p.enqueueCommand(MediaPlayer2PlayerCommand{Type: MediaPlayer2PlayerCommandTypeSetPosition, Argument: x})
}

func (p MediaPlayer2PlayerInterface) OpenUri(s string) *dbus.Error {
	p.log.Tracef("PlayerInterface::OpenUri (%s)", s)
	return p.enqueueCommand(MediaPlayer2PlayerCommand{Type: MediaPlayer2PlayerCommandTypeOpenUri, Argument: s})
}
