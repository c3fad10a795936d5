package transport

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/tlsbridge/pkg/native"
)

func TestPipeRoundTrip(t *testing.T) {
	a, b := Pipe()

	_, err := a.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = a.Write([]byte("world"))
	require.NoError(t, err)
	assert.Equal(t, 11, b.Buffered())

	buf := make([]byte, 32)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf[:n]))
	assert.Zero(t, b.Buffered())
}

func TestPipeNonBlocking(t *testing.T) {
	a, b := Pipe()
	b.SetNonBlocking(true)

	_, err := b.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrWouldBlock)

	_, err = a.Write([]byte("x"))
	require.NoError(t, err)
	n, err := b.Read(make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPipeBlockingReadWakesOnWrite(t *testing.T) {
	a, b := Pipe()

	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 8)
		n, _ := b.Read(buf)
		done <- string(buf[:n])
	}()

	time.Sleep(10 * time.Millisecond)
	_, err := a.Write([]byte("ping"))
	require.NoError(t, err)

	select {
	case got := <-done:
		assert.Equal(t, "ping", got)
	case <-time.After(time.Second):
		t.Fatal("blocked reader was not woken")
	}
}

func TestPipeCloseDrainsThenEOF(t *testing.T) {
	a, b := Pipe()
	_, err := a.Write([]byte("tail"))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	buf := make([]byte, 8)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "tail", string(buf[:n]))

	_, err = b.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	_, err = b.Write([]byte("late"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	_, err = a.Write([]byte("late"))
	assert.ErrorIs(t, err, net.ErrClosed)
	assert.ErrorIs(t, a.Close(), net.ErrClosed)
}

func TestPipeAbortIsConnectionReset(t *testing.T) {
	a, b := Pipe()
	require.NoError(t, a.Abort())

	_, err := b.Read(make([]byte, 1))
	require.Error(t, err)
	assert.Equal(t, native.StatusClosedAbort, Classify(err))
}

func TestPipeCloseWakesOwnReader(t *testing.T) {
	a, _ := Pipe()

	done := make(chan error, 1)
	go func() {
		_, err := a.Read(make([]byte, 1))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Close())

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, net.ErrClosed))
	case <-time.After(time.Second):
		t.Fatal("reader was not woken by Close")
	}
}

func TestPipeBridgeEndToEnd(t *testing.T) {
	a, b := Pipe()
	b.SetNonBlocking(true)
	src, dst := NewBridge(a), NewBridge(b)

	n, status := src.Push([]byte("abc"))
	require.Equal(t, native.StatusSuccess, status)
	require.Equal(t, 3, n)

	buf := make([]byte, 5)
	n, status = dst.Pull(buf)
	assert.Equal(t, 3, n, "bytes already moved are reported with the status")
	assert.Equal(t, native.StatusWouldBlock, status)
	assert.Equal(t, "abc", string(buf[:n]))
	assert.ErrorIs(t, dst.TakeError(), ErrWouldBlock)
}
