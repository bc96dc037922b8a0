//go:build linux

package mpris

import (
	"errors"
	"fmt"

	vgmplay "github.com/devgianlu/go-vgmplay"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

const (
	objectPath      = "/org/mpris/MediaPlayer2"
	rootInterface   = "org.mpris.MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"
	busName         = "org.mpris.MediaPlayer2.go-vgmplay"
)

type DBusInstance struct {
	props *prop.Properties
	conn  *dbus.Conn
}

// setProperty updates a property from our side, change callbacks only run for
// writes coming from the bus.
func (d *DBusInstance) setProperty(interfaceName string, fieldName string, value interface{}) (err *dbus.Error) {
	defer func() {
		if r := recover(); r != nil {
			err = dbus.MakeFailedError(fmt.Errorf("failed setting %s.%s: %v", interfaceName, fieldName, r))
		}
	}()

	d.props.SetMust(interfaceName, fieldName, value)
	return nil
}

type ConcreteServer struct {
	log vgmplay.Logger

	dbus            *DBusInstance
	rootInterface   MediaPlayer2RootInterface
	playerInterface MediaPlayer2PlayerInterface

	lastUploadedState MediaState

	stateChannel chan MediaState
	seekChannel  chan SeekState
	done         chan struct{}
}

func (s *ConcreteServer) EmitStateUpdate(state MediaState) {
	s.stateChannel <- state
}

func (s *ConcreteServer) EmitSeekUpdate(state SeekState) {
	s.seekChannel <- state
}

func (s *ConcreteServer) Receive() <-chan MediaPlayer2PlayerCommand {
	return s.playerInterface.commands
}

func (s *ConcreteServer) executeStateUpdate(state MediaState) *dbus.Error {
	if state.PlaybackStatus != s.lastUploadedState.PlaybackStatus {
		if err := s.dbus.setProperty(playerInterface, "PlaybackStatus", state.PlaybackStatus); err != nil {
			s.log.Warnf("error executing mpris state update (playbackStatus) %s", err)
			return err
		}
	}
	if state.LoopStatus != s.lastUploadedState.LoopStatus {
		if err := s.dbus.setProperty(playerInterface, "LoopStatus", state.LoopStatus); err != nil {
			s.log.Warnf("error executing mpris state update (loopStatus) %s", err)
			return err
		}
	}
	if state.Shuffle != s.lastUploadedState.Shuffle {
		if err := s.dbus.setProperty(playerInterface, "Shuffle", state.Shuffle); err != nil {
			s.log.Warnf("error executing mpris state update (shuffle) %s", err)
			return err
		}
	}
	if state.PositionMs != s.lastUploadedState.PositionMs {
		if err := s.dbus.setProperty(playerInterface, "Position", state.PositionMs*1000); err != nil {
			s.log.Warnf("error executing mpris state update (position) %s", err)
			return err
		}
	}
	if !sameMedia(state.Media, s.lastUploadedState.Media) {
		mt := makeMetadata(state.Media)
		if err := s.dbus.setProperty(playerInterface, "Metadata", mt); err != nil {
			s.log.Warnf("error executing mpris state update (media) %s", err)
			return err
		}
		s.log.Tracef("successfully updated metadata %v", mt)
	}
	return nil
}

func (s *ConcreteServer) executeSeekSignal(state SeekState) error {
	return s.dbus.conn.Emit(objectPath, playerInterface+".Seeked", state.PositionMs*1000)
}

func (s *ConcreteServer) waitOnChannel() {
	defer close(s.done)

	for {
		select {
		case state, ok := <-s.stateChannel:
			if !ok {
				return
			}

			if err := s.executeStateUpdate(state); err != nil {
				continue
			}
			s.lastUploadedState = state
		case seekState, ok := <-s.seekChannel:
			if !ok {
				return
			}

			if err := s.executeSeekSignal(seekState); err != nil {
				s.log.Warnf("error executing mpris state seek %s", err)
			}
		}
	}
}

// Close must not race with EmitStateUpdate or EmitSeekUpdate.
func (s *ConcreteServer) Close() error {
	close(s.seekChannel)
	close(s.stateChannel)
	<-s.done

	return s.dbus.conn.Close()
}

// NewServer connects to the session bus and exports the MediaPlayer2 and
// MediaPlayer2.Player interfaces.
func NewServer(log vgmplay.Logger) (_ *ConcreteServer, err error) {
	s := &ConcreteServer{log: log}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed connecting to session bus: %w", err)
	}

	defer func() {
		if err != nil {
			_ = conn.Close()
		}
	}()

	s.dbus = &DBusInstance{conn: conn}
	s.rootInterface = MediaPlayer2RootInterface{log: log}
	s.playerInterface = MediaPlayer2PlayerInterface{
		log:      log,
		commands: make(chan MediaPlayer2PlayerCommand),
	}

	s.dbus.props, err = prop.Export(conn, objectPath, prop.Map{
		rootInterface:   mediaPlayer2Props,
		playerInterface: s.playerInterface.Props(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed exporting mpris properties: %w", err)
	}

	if err = conn.Export(s.rootInterface, objectPath, rootInterface); err != nil {
		return nil, fmt.Errorf("failed exporting mpris root interface: %w", err)
	}
	if err = conn.Export(s.playerInterface, objectPath, playerInterface); err != nil {
		return nil, fmt.Errorf("failed exporting mpris player interface: %w", err)
	}

	reply, err := conn.RequestName(busName, dbus.NameFlagReplaceExisting)
	if err != nil {
		return nil, fmt.Errorf("failed requesting mpris name: %w", err)
	} else if reply != dbus.RequestNameReplyPrimaryOwner {
		err = errors.New("mpris name is already taken")
		return nil, err
	}

	s.lastUploadedState = MediaState{PlaybackStatus: Stopped, LoopStatus: None}
	s.stateChannel = make(chan MediaState)
	s.seekChannel = make(chan SeekState)
	s.done = make(chan struct{})

	go s.waitOnChannel()

	log.Debugf("created mpris server")
	return s, nil
}
