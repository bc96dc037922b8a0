package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrGateForced is returned by Gate.Wait once ForceAll has been called.
var ErrGateForced = errors.New("gate forced")

type GateEvent int

const (
	EventProduceRequested GateEvent = iota
	EventDataReady

	eventCount
)

func (ev GateEvent) String() string {
	switch ev {
	case EventProduceRequested:
		return "produce-requested"
	case EventDataReady:
		return "data-ready"
	default:
		return fmt.Sprintf("GateEvent(%d)", int(ev))
	}
}

// Gate coordinates the hand-off of the two slots between the decode and the
// playback stage. Each event is a binary signal: setting a pending event is
// a no-op and a wait consumes it.
type Gate struct {
	events [eventCount]chan struct{}

	forced    chan struct{}
	forceOnce sync.Once

	ended   chan struct{}
	endOnce sync.Once
}

func NewGate() *Gate {
	g := &Gate{
		forced: make(chan struct{}),
		ended:  make(chan struct{}),
	}

	for i := range g.events {
		g.events[i] = make(chan struct{}, 1)
	}

	return g
}

// Signal marks ev as pending.
func (g *Gate) Signal(ev GateEvent) {
	select {
	case g.events[ev] <- struct{}{}:
	default:
	}
}

// Pending reports whether ev is set without clearing it.
func (g *Gate) Pending(ev GateEvent) bool {
	return len(g.events[ev]) > 0
}

// Wait blocks until ev is pending and clears it. It returns ErrGateForced after
// ForceAll and io.EOF if End was called and ev is not pending.
func (g *Gate) Wait(ev GateEvent) error {
	return g.WaitContext(context.Background(), ev)
}

// WaitContext is like Wait but also gives up with the context error once ctx
// is done.
func (g *Gate) WaitContext(ctx context.Context, ev GateEvent) error {
	if g.isForced() {
		return ErrGateForced
	}

	select {
	case <-g.events[ev]:
		if g.isForced() {
			return ErrGateForced
		}

		return nil
	case <-g.forced:
		return ErrGateForced
	case <-g.ended:
		// the producer may have signaled right before ending
		select {
		case <-g.events[ev]:
			return nil
		default:
			return io.EOF
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForceAll releases every current and future waiter with ErrGateForced.
func (g *Gate) ForceAll() {
	g.forceOnce.Do(func() { close(g.forced) })
}

// End marks the producing side as finished.
func (g *Gate) End() {
	g.endOnce.Do(func() { close(g.ended) })
}

func (g *Gate) isForced() bool {
	select {
	case <-g.forced:
		return true
	default:
		return false
	}
}
