package transport

import (
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// pipeBuffer is one direction of a Pipe.
type pipeBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	data   []byte
	eof    bool // writer closed
	reset  bool // writer aborted
	closed bool // reader closed
}

func newPipeBuffer() *pipeBuffer {
	pb := &pipeBuffer{}
	pb.cond = sync.NewCond(&pb.mu)
	return pb
}

// PipeConn is one end of an in-memory duplex byte stream created by Pipe.
// Unlike net.Pipe, writes are buffered and never wait for the reader, so
// both ends of a handshake can be stepped from a single goroutine when the
// ends are non-blocking.
type PipeConn struct {
	in          *pipeBuffer
	out         *pipeBuffer
	nonBlocking atomic.Bool
	closed      atomic.Bool
	flushes     atomic.Int64
}

// Pipe creates a connected pair of blocking endpoints.
func Pipe() (*PipeConn, *PipeConn) {
	ab, ba := newPipeBuffer(), newPipeBuffer()
	return &PipeConn{in: ba, out: ab}, &PipeConn{in: ab, out: ba}
}

// SetNonBlocking switches Read between waiting for data and failing with
// ErrWouldBlock when none is buffered.
func (p *PipeConn) SetNonBlocking(nonBlocking bool) {
	p.nonBlocking.Store(nonBlocking)
	p.in.mu.Lock()
	p.in.cond.Broadcast()
	p.in.mu.Unlock()
}

// Read reads buffered data written by the other end.
func (p *PipeConn) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	in := p.in
	in.mu.Lock()
	defer in.mu.Unlock()

	for len(in.data) == 0 {
		switch {
		case in.closed:
			return 0, net.ErrClosed
		case in.reset:
			return 0, &net.OpError{Op: "read", Net: "pipe", Err: os.NewSyscallError("read", syscall.ECONNRESET)}
		case in.eof:
			return 0, io.EOF
		case p.nonBlocking.Load():
			return 0, ErrWouldBlock
		}
		in.cond.Wait()
	}

	n := copy(b, in.data)
	in.data = in.data[n:]
	return n, nil
}

// Write appends b to the other end's receive buffer.
func (p *PipeConn) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, net.ErrClosed
	}

	out := p.out
	out.mu.Lock()
	defer out.mu.Unlock()

	if out.closed {
		return 0, io.ErrClosedPipe
	}
	out.data = append(out.data, b...)
	out.cond.Broadcast()
	return len(b), nil
}

// Flush counts calls; the pipe has nothing to flush.
func (p *PipeConn) Flush() error {
	p.flushes.Add(1)
	return nil
}

// Flushes returns the number of Flush calls.
func (p *PipeConn) Flushes() int {
	return int(p.flushes.Load())
}

// Buffered returns the number of bytes waiting to be read on this end.
func (p *PipeConn) Buffered() int {
	p.in.mu.Lock()
	defer p.in.mu.Unlock()
	return len(p.in.data)
}

// Close closes this end. The other end reads any buffered data and then
// io.EOF.
func (p *PipeConn) Close() error {
	return p.shutdown(false)
}

// Abort closes this end abruptly. Once its buffer is drained the other end
// fails reads with ECONNRESET.
func (p *PipeConn) Abort() error {
	return p.shutdown(true)
}

func (p *PipeConn) shutdown(reset bool) error {
	if p.closed.Swap(true) {
		return net.ErrClosed
	}

	p.out.mu.Lock()
	if reset {
		p.out.reset = true
	} else {
		p.out.eof = true
	}
	p.out.cond.Broadcast()
	p.out.mu.Unlock()

	p.in.mu.Lock()
	p.in.closed = true
	p.in.cond.Broadcast()
	p.in.mu.Unlock()
	return nil
}
