//go:build test_unit

package output

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeederInterleaves(t *testing.T) {
	f := newFeeder(2)
	require.NoError(t, f.Submit([][]float32{{1, 2, 3, 9}, {-1, -2, -3, 9}}, 3))
	assert.Equal(t, 3, f.Pending())

	buf := make([]float32, 5)
	n, err := f.Read(buf)
	require.NoError(t, err)

	// whole frames only
	assert.Equal(t, 4, n)
	assert.Equal(t, []float32{1, -1, 2, -2}, buf[:n])

	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, -3}, buf[:n])
	assert.Equal(t, 0, f.Pending())
}

func TestFeederRejectsChannelMismatch(t *testing.T) {
	f := newFeeder(2)
	assert.Error(t, f.Submit([][]float32{{1}}, 1))
}

func TestFeederWaitForRead(t *testing.T) {
	f := newFeeder(1)
	require.NoError(t, f.Wait(context.Background()))

	require.NoError(t, f.Submit([][]float32{{1, 2, 3, 4}}, 4))

	waited := make(chan error, 1)
	go func() { waited <- f.Wait(context.Background()) }()

	select {
	case <-waited:
		t.Fatal("wait returned before the data was read")
	case <-time.After(20 * time.Millisecond):
	}

	buf := make([]float32, 4)
	_, err := f.Read(buf)
	require.NoError(t, err)

	select {
	case err := <-waited:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not return")
	}
}

func TestFeederWaitCancelled(t *testing.T) {
	f := newFeeder(1)
	require.NoError(t, f.Submit([][]float32{{1}}, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)
}

func TestFeederClose(t *testing.T) {
	f := newFeeder(1)

	read := make(chan error, 1)
	go func() {
		_, err := f.Read(make([]float32, 4))
		read <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, f.Close())

	assert.ErrorIs(t, <-read, io.EOF)
	assert.Error(t, f.Submit([][]float32{{1}}, 1))
	assert.NoError(t, f.Wait(context.Background()))
}

func TestFloat32ToByteReader(t *testing.T) {
	f := newFeeder(1)
	require.NoError(t, f.Submit([][]float32{{1, -0.5}}, 2))

	r := NewFloat32ToByteReader(f)
	buf := make([]byte, 16)

	n, err := r.Read(buf[:6])
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, buf[:4])

	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0xbf}, buf[:n])
}
