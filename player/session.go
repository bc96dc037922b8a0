package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	vgmplay "github.com/devgianlu/go-vgmplay"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxFrames is the number of frames decoded at once when not configured.
const DefaultMaxFrames = 65536

var (
	ErrSessionState = errors.New("invalid session state")

	// ErrSessionStopped is returned by Start when Stop was called while the
	// track was still opening.
	ErrSessionStopped = errors.New("session stopped while opening")
)

type State int32

const (
	StateIdle State = iota
	StateOpening
	StateStreaming
	StateStopping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type SessionOptions struct {
	Log vgmplay.Logger

	// Open opens the decoder for the requested file.
	Open vgmplay.OpenFunc
	// NewOutput opens the output device, configured for the opened track.
	NewOutput vgmplay.NewOutputFunc

	// MaxFrames is the capacity of each slot and the largest decode request.
	MaxFrames int
}

// Stats are counters about a session, safe to read at any time.
type Stats struct {
	DecodeCalls int64
	Delivered   int64
	Submitted   int64
	Frames      int64
	Underruns   int64
	Loops       int64
}

// Session plays a single track. It owns both slots and the two goroutines
// passing them back and forth. A new track needs a new Session.
type Session struct {
	log  vgmplay.Logger
	opts SessionOptions

	state atomic.Int32

	path   string
	track  vgmplay.Track
	dec    vgmplay.Decoder
	out    vgmplay.Output
	slots  [2]*Slot
	gate   *Gate
	cursor *Cursor

	prod *producer
	cons *consumer

	// lock guards the hand-over between Start and a concurrent Stop.
	lock    sync.Mutex
	stopped bool
	cancel  context.CancelFunc

	done chan struct{}
	err  error
}

func NewSession(opts *SessionOptions) *Session {
	s := &Session{
		log:  opts.Log,
		opts: *opts,
		done: make(chan struct{}),
	}

	if s.log == nil {
		s.log = &vgmplay.NullLogger{}
	}
	if s.opts.MaxFrames <= 0 {
		s.opts.MaxFrames = DefaultMaxFrames
	}

	return s
}

// Start opens path and starts streaming it. It returns once the first slot
// has been handed to the output device, or the session has already ended.
func (s *Session) Start(ctx context.Context, path string) error {
	s.lock.Lock()
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateOpening)) {
		s.lock.Unlock()
		return fmt.Errorf("%w: cannot start a session in state %s", ErrSessionState, s.State())
	}
	s.lock.Unlock()

	s.path = path
	s.log = s.log.WithField("path", path)

	if err := s.open(); err != nil {
		s.finish(err)
		return err
	}

	s.log.WithFields(map[string]interface{}{
		"channels":    s.track.Channels,
		"sample_rate": s.track.SampleRate,
		"frames":      s.track.Frames,
		"loop":        s.track.Loop,
	}).Debugf("opened track")

	for i := range s.slots {
		s.slots[i] = NewSlot(i, s.track.Channels, s.opts.MaxFrames)
	}

	gate := NewGate()
	s.cursor = NewCursor(s.track.Frames)
	s.prod = newProducer(s.log.WithField("unit", "producer"), s.dec, gate, &s.slots, s.cursor, s.opts.MaxFrames)
	s.cons = newConsumer(s.log.WithField("unit", "consumer"), s.out, gate, &s.slots)

	runCtx, cancel := context.WithCancel(context.Background())

	s.lock.Lock()
	if s.stopped {
		s.lock.Unlock()
		cancel()
		s.log.Debugf("session stopped while opening")
		s.finish(nil)
		return ErrSessionStopped
	}
	s.gate = gate
	s.cancel = cancel
	s.lock.Unlock()

	group, groupCtx := errgroup.WithContext(runCtx)

	// the first slot is requested before either unit runs
	gate.Signal(EventProduceRequested)

	group.Go(s.prod.run)
	group.Go(func() error { return s.cons.run(groupCtx) })

	// a failing unit must not leave the other one blocked on the gate
	go func() {
		<-groupCtx.Done()
		gate.ForceAll()
	}()

	go s.wait(group)

	select {
	case <-s.cons.Started():
		s.state.CompareAndSwap(int32(StateOpening), int32(StateStreaming))
		s.log.Debugf("session streaming")
		return nil
	case <-s.done:
		// a short track may be over before we get to look at it
		select {
		case <-s.cons.Started():
			return nil
		default:
			return s.err
		}
	case <-ctx.Done():
		s.Stop()
		return ctx.Err()
	}
}

func (s *Session) open() error {
	dec, err := s.opts.Open(s.log, s.path)
	if err != nil {
		return fmt.Errorf("failed opening %s: %w", s.path, err)
	}

	s.dec = dec
	s.track = dec.Track()
	if err := s.track.Validate(); err != nil {
		return fmt.Errorf("invalid track %s: %w", s.path, err)
	}

	s.out, err = s.opts.NewOutput(s.track)
	if err != nil {
		return fmt.Errorf("failed opening output device: %w", err)
	}

	return nil
}

func (s *Session) wait(group *errgroup.Group) {
	err := group.Wait()
	s.state.Store(int32(StateStopping))

	if err != nil {
		s.log.WithError(err).Errorf("session failed")
	} else {
		s.log.Debugf("session ended after %d slots", s.cons.submitted.Load())
	}

	s.finish(err)
}

// finish releases everything the session holds and moves it to StateClosed.
func (s *Session) finish(err error) {
	for i, slot := range s.slots {
		if slot != nil {
			slot.free()
			s.slots[i] = nil
		}
	}

	if s.out != nil {
		if cerr := s.out.Close(); cerr != nil {
			s.log.WithError(cerr).Warnf("failed closing output device")
		}
	}

	if s.dec != nil {
		if cerr := s.dec.Close(); cerr != nil {
			s.log.WithError(cerr).Warnf("failed closing decoder")
		}
	}

	s.err = err
	s.state.Store(int32(StateClosed))
	close(s.done)
}

// Stop cancels playback and waits for both units to exit. It may be called
// from any goroutine, also while Start is opening the track, in which case
// Start gives up with ErrSessionStopped. It is a no-op on a session that was
// never started.
func (s *Session) Stop() {
	s.lock.Lock()
	if s.State() == StateIdle {
		s.lock.Unlock()
		return
	}

	s.stopped = true
	cancel, gate := s.cancel, s.gate
	s.lock.Unlock()

	if s.state.CompareAndSwap(int32(StateStreaming), int32(StateStopping)) {
		s.log.Debugf("stopping session")
	}

	if cancel != nil {
		cancel()
		gate.ForceAll()
	}

	<-s.done
}

// Done is closed once the session reached StateClosed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the session. End of stream and
// cancellation are not errors.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) Path() string {
	return s.path
}

func (s *Session) Track() vgmplay.Track {
	return s.track
}

// Position returns the decode position and the total frames of the track.
func (s *Session) Position() (int64, int64) {
	if s.cursor == nil {
		return 0, 0
	}

	return s.cursor.Position(), s.cursor.Total()
}

func (s *Session) Stats() Stats {
	if s.prod == nil || s.cons == nil {
		return Stats{}
	}

	return Stats{
		DecodeCalls: s.prod.decodeCalls.Load(),
		Delivered:   s.prod.delivered.Load(),
		Submitted:   s.cons.submitted.Load(),
		Frames:      s.cons.frames.Load(),
		Underruns:   s.cons.underruns.Load(),
		Loops:       s.prod.wraps.Load(),
	}
}
