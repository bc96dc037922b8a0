//go:build test_unit

package player

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateSignalBeforeWait(t *testing.T) {
	g := NewGate()
	g.Signal(EventDataReady)

	require.True(t, g.Pending(EventDataReady))
	require.NoError(t, g.Wait(EventDataReady))
	assert.False(t, g.Pending(EventDataReady))
}

func TestGateSignalIsLeveled(t *testing.T) {
	g := NewGate()
	g.Signal(EventProduceRequested)
	g.Signal(EventProduceRequested)

	require.NoError(t, g.Wait(EventProduceRequested))
	assert.False(t, g.Pending(EventProduceRequested), "a second signal must not be counted")
}

func TestGateEventsAreIndependent(t *testing.T) {
	g := NewGate()
	g.Signal(EventDataReady)

	assert.False(t, g.Pending(EventProduceRequested))
	assert.True(t, g.Pending(EventDataReady))
}

func TestGateWaitBlocksUntilSignal(t *testing.T) {
	g := NewGate()

	done := make(chan error, 1)
	go func() { done <- g.Wait(EventDataReady) }()

	select {
	case <-done:
		t.Fatal("wait returned without a signal")
	case <-time.After(20 * time.Millisecond):
	}

	g.Signal(EventDataReady)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not observe the signal")
	}
}

func TestGateForceAllReleasesBothWaiters(t *testing.T) {
	g := NewGate()

	errs := make(chan error, 2)
	go func() { errs <- g.Wait(EventProduceRequested) }()
	go func() { errs <- g.Wait(EventDataReady) }()

	time.Sleep(10 * time.Millisecond)
	g.ForceAll()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrGateForced)
		case <-time.After(time.Second):
			t.Fatal("waiter not released by ForceAll")
		}
	}

	// forced waits stay forced, even with a pending signal
	g.Signal(EventDataReady)
	assert.ErrorIs(t, g.Wait(EventDataReady), ErrGateForced)

	// forcing twice is fine
	g.ForceAll()
}

func TestGateEndAfterSignal(t *testing.T) {
	g := NewGate()
	g.Signal(EventDataReady)
	g.End()

	// the last signal is still delivered before the end
	require.NoError(t, g.Wait(EventDataReady))
	assert.ErrorIs(t, g.Wait(EventDataReady), io.EOF)
}

func TestGateEndReleasesWaiter(t *testing.T) {
	g := NewGate()

	done := make(chan error, 1)
	go func() { done <- g.Wait(EventDataReady) }()

	g.End()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by End")
	}
}

func TestGateWaitContext(t *testing.T) {
	g := NewGate()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, g.WaitContext(ctx, EventProduceRequested), context.DeadlineExceeded)

	g.Signal(EventProduceRequested)
	require.NoError(t, g.WaitContext(context.Background(), EventProduceRequested))

	ctx, cancel = context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.WaitContext(ctx, EventDataReady) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("wait ignored the cancelled context")
	}

	// forcing still wins over a live context
	g.ForceAll()
	assert.ErrorIs(t, g.WaitContext(context.Background(), EventDataReady), ErrGateForced)
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "produce-requested", EventProduceRequested.String())
	assert.Equal(t, "data-ready", EventDataReady.String())
}
