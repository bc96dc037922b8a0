package player

import (
	"context"
	"time"

	vgmplay "github.com/devgianlu/go-vgmplay"
)

type Player struct {
	log vgmplay.Logger

	open      vgmplay.OpenFunc
	newOutput vgmplay.NewOutputFunc
	maxFrames int

	cmd chan playerCmd
	ev  chan Event

	closed chan struct{}
}

type playerCmdType int

const (
	playerCmdPlay playerCmdType = iota
	playerCmdStop
	playerCmdStatus
	playerCmdClose
)

type playerCmd struct {
	typ  playerCmdType
	data any
	resp chan any
}

type Options struct {
	Log vgmplay.Logger

	// Open opens the decoder for a file, see Formats.Open.
	Open vgmplay.OpenFunc

	// NewOutput creates the output device for each track.
	NewOutput vgmplay.NewOutputFunc

	// MaxFrames is the number of frames decoded at once.
	MaxFrames int
}

// Status is a snapshot of what is playing.
type Status struct {
	Path  string
	State State
	Track vgmplay.Track

	// Position is the decode position in frames.
	Position int64
	Total    int64

	Stats Stats

	// Since is when the current track started.
	Since time.Time
}

func (s Status) Playing() bool {
	return s.Path != "" && s.State != StateClosed
}

func (s Status) PositionDuration() time.Duration {
	if s.Track.SampleRate <= 0 {
		return 0
	}

	return time.Duration(s.Position) * time.Second / time.Duration(s.Track.SampleRate)
}

func (s Status) TotalDuration() time.Duration {
	if s.Track.SampleRate <= 0 {
		return 0
	}

	return time.Duration(s.Total) * time.Second / time.Duration(s.Track.SampleRate)
}

func NewPlayer(opts *Options) (*Player, error) {
	p := &Player{
		log:       opts.Log,
		open:      opts.Open,
		newOutput: opts.NewOutput,
		maxFrames: opts.MaxFrames,
		cmd:       make(chan playerCmd),
		ev:        make(chan Event, 128),
		closed:    make(chan struct{}),
	}

	if p.log == nil {
		p.log = &vgmplay.NullLogger{}
	}

	go p.manageLoop()

	return p, nil
}

func (p *Player) manageLoop() {
	defer close(p.closed)

	// currently playing session
	var sess *Session
	sessDone := make(<-chan struct{})
	var since time.Time

	stop := func() {
		if sess == nil {
			return
		}

		sess.Stop()
		sess = nil
		sessDone = make(<-chan struct{})
	}

loop:
	for {
		select {
		case cmd := <-p.cmd:
			switch cmd.typ {
			case playerCmdPlay:
				path := cmd.data.(string)

				// a new track always means a new session
				stop()

				s := NewSession(&SessionOptions{
					Log:       p.log,
					Open:      p.open,
					NewOutput: p.newOutput,
					MaxFrames: p.maxFrames,
				})
				if err := s.Start(context.Background(), path); err != nil {
					cmd.resp <- err
					p.emit(Event{Type: EventTypeError, Path: path, Err: err})
					break
				}

				sess = s
				sessDone = s.Done()
				since = time.Now()

				cmd.resp <- nil
				p.emit(Event{Type: EventTypePlay, Path: path, Track: s.Track()})
			case playerCmdStop:
				var path string
				if sess != nil {
					path = sess.Path()
					stop()
					p.log.Tracef("stopped session because of stop command")
				}

				cmd.resp <- struct{}{}
				p.emit(Event{Type: EventTypeStop, Path: path})
			case playerCmdStatus:
				if sess == nil {
					cmd.resp <- Status{State: StateClosed}
					break
				}

				pos, total := sess.Position()
				cmd.resp <- Status{
					Path:     sess.Path(),
					State:    sess.State(),
					Track:    sess.Track(),
					Position: pos,
					Total:    total,
					Stats:    sess.Stats(),
					Since:    since,
				}
			case playerCmdClose:
				break loop
			default:
				panic("unknown player command")
			}
		case <-sessDone:
			path, err := sess.Path(), sess.Err()
			sess = nil
			sessDone = make(<-chan struct{})

			if err != nil {
				p.log.WithError(err).Errorf("playback of %s failed", path)
				p.emit(Event{Type: EventTypeError, Path: path, Err: err})
			} else {
				p.log.Debugf("playback of %s ended", path)
				p.emit(Event{Type: EventTypeNotPlaying, Path: path})
			}
		}
	}

	stop()
	close(p.ev)
}

func (p *Player) emit(ev Event) {
	select {
	case p.ev <- ev:
	default:
		p.log.Warnf("dropping player event %s, nobody is receiving", ev.Type)
	}
}

func (p *Player) Receive() <-chan Event {
	return p.ev
}

// Play stops the current track, if any, and starts playing path.
func (p *Player) Play(path string) error {
	resp := make(chan any, 1)
	p.cmd <- playerCmd{typ: playerCmdPlay, data: path, resp: resp}
	if err := <-resp; err != nil {
		return err.(error)
	}

	return nil
}

func (p *Player) Stop() {
	resp := make(chan any, 1)
	p.cmd <- playerCmd{typ: playerCmdStop, resp: resp}
	<-resp
}

func (p *Player) Status() Status {
	resp := make(chan any, 1)
	p.cmd <- playerCmd{typ: playerCmdStatus, resp: resp}
	return (<-resp).(Status)
}

// Close stops playback and terminates the player. The event channel is
// closed once done.
func (p *Player) Close() {
	p.cmd <- playerCmd{typ: playerCmdClose}
	<-p.closed
}
