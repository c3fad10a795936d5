// Package transporttest provides transports that count their own lifecycle,
// for checking that every bound transport is closed exactly once.
package transporttest

import (
	"io"
	"sync"
)

// Tracker counts the transports it created and how often each was closed.
type Tracker struct {
	mu          sync.Mutex
	constructed int
	released    int
	double      int
}

// Conn wraps a stream and reports Close to its Tracker. Read, Write and
// Flush pass through.
type Conn struct {
	io.ReadWriter

	tracker *Tracker
	closed  bool
}

// Wrap returns a tracked transport around rw. Closing it closes rw too when
// rw implements io.Closer.
func (t *Tracker) Wrap(rw io.ReadWriter) *Conn {
	t.mu.Lock()
	t.constructed++
	t.mu.Unlock()
	return &Conn{ReadWriter: rw, tracker: t}
}

// Flush forwards to the wrapped stream if it buffers writes.
func (c *Conn) Flush() error {
	if f, ok := c.ReadWriter.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close records the release. A second Close is counted as a double release
// and does not reach the wrapped stream.
func (c *Conn) Close() error {
	t := c.tracker
	t.mu.Lock()
	if c.closed {
		t.double++
		t.mu.Unlock()
		return nil
	}
	c.closed = true
	t.released++
	t.mu.Unlock()

	if cl, ok := c.ReadWriter.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.tracker.mu.Lock()
	defer c.tracker.mu.Unlock()
	return c.closed
}

// Constructed returns the number of transports created by Wrap.
func (t *Tracker) Constructed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.constructed
}

// Released returns the number of transports closed at least once.
func (t *Tracker) Released() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

// DoubleReleases returns the number of Close calls on an already closed
// transport.
func (t *Tracker) DoubleReleases() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.double
}

// Balanced reports whether every transport was released exactly once.
func (t *Tracker) Balanced() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.constructed == t.released && t.double == 0
}
