package gotls

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/mash-protocol/tlsbridge/pkg/native"
)

const recordHeaderLen = 5

var (
	errAbandoned  = errors.New("gotls: handshake abandoned")
	errWouldBlock = wouldBlockError{}
)

// wouldBlockError is returned to crypto/tls after the handshake. crypto/tls
// does not latch errors that are net.Errors reporting Timeout, so the
// connection stays usable once the transport has data again.
type wouldBlockError struct{}

func (wouldBlockError) Error() string   { return "gotls: transport would block" }
func (wouldBlockError) Timeout() bool   { return true }
func (wouldBlockError) Temporary() bool { return true }

// transportError carries a non-retryable upcall status through crypto/tls.
type transportError struct {
	status native.Status
}

func (e transportError) Error() string { return "gotls: transport: " + e.status.String() }

// wire is the net.Conn crypto/tls talks to. It forwards to the context's
// upcalls.
//
// Reads never cross a TLS record boundary. During a handshake a would-block
// upcall suspends the coroutine and is retried on resume. After the
// handshake would-block surfaces as errWouldBlock on reads; ciphertext that
// could not be written is parked in outbox and drained before anything else.
type wire struct {
	c *Context

	hdr  [recordHeaderLen]byte
	hdrN int
	body int

	outbox  []byte
	blocked bool

	// failure is the last status other than would-block reported by an
	// upcall.
	failure native.Status

	abandoned bool
}

func newWire(c *Context) *wire {
	return &wire{c: c}
}

// want returns how many bytes may be pulled without crossing into the next
// record.
func (w *wire) want() int {
	if w.hdrN < recordHeaderLen {
		return recordHeaderLen - w.hdrN
	}
	return w.body
}

// advance tracks record framing over bytes handed to crypto/tls. b never
// spans a header/body boundary because reads are capped by want.
func (w *wire) advance(b []byte) {
	if len(b) == 0 {
		return
	}
	if w.hdrN < recordHeaderLen {
		w.hdrN += copy(w.hdr[w.hdrN:], b)
		if w.hdrN == recordHeaderLen {
			w.body = int(w.hdr[3])<<8 | int(w.hdr[4])
			if w.body == 0 {
				w.hdrN = 0
			}
		}
		return
	}
	w.body -= len(b)
	if w.body == 0 {
		w.hdrN = 0
	}
}

func (w *wire) Read(p []byte) (int, error) {
	if w.abandoned {
		return 0, errAbandoned
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		buf := p[:min(len(p), w.want())]
		n, st := w.c.readFn(w.c.ref, buf)
		w.advance(buf[:n])

		switch {
		case st == native.StatusSuccess:
			return n, nil
		case st == native.StatusWouldBlock:
			if n > 0 {
				return n, nil
			}
			if !w.c.handshaking() {
				return 0, errWouldBlock
			}
			if !w.c.suspend(native.StatusWouldBlock) {
				w.abandoned = true
				return 0, errAbandoned
			}
		case st.Closed():
			w.failure = st
			return n, io.EOF
		default:
			w.failure = st
			return n, transportError{st}
		}
	}
}

func (w *wire) Write(p []byte) (int, error) {
	if w.abandoned {
		return 0, errAbandoned
	}
	if !w.c.handshaking() && len(w.outbox) > 0 {
		switch st := w.drain(); {
		case st == native.StatusWouldBlock:
			w.park(p)
			return len(p), nil
		case st != native.StatusSuccess:
			return 0, transportError{st}
		}
	}

	sent := 0
	for sent < len(p) {
		n, st := w.c.writeFn(w.c.ref, p[sent:])
		sent += n
		switch {
		case st == native.StatusSuccess:
		case st == native.StatusWouldBlock:
			if !w.c.handshaking() {
				w.park(p[sent:])
				return len(p), nil
			}
			if n > 0 {
				continue
			}
			if !w.c.suspend(native.StatusWouldBlock) {
				w.abandoned = true
				return sent, errAbandoned
			}
		default:
			w.failure = st
			return sent, transportError{st}
		}
	}
	return sent, nil
}

func (w *wire) park(p []byte) {
	w.outbox = append(w.outbox, p...)
	w.blocked = true
}

// drain pushes parked ciphertext. It returns StatusWouldBlock if some of it
// is still parked.
func (w *wire) drain() native.Status {
	for len(w.outbox) > 0 {
		n, st := w.c.writeFn(w.c.ref, w.outbox)
		w.outbox = w.outbox[n:]
		if st == native.StatusSuccess {
			continue
		}
		if st != native.StatusWouldBlock {
			w.failure = st
		}
		return st
	}
	w.outbox = nil
	w.blocked = false
	return native.StatusSuccess
}

func (w *wire) Close() error                     { return nil }
func (w *wire) LocalAddr() net.Addr              { return wireAddr{} }
func (w *wire) RemoteAddr() net.Addr             { return wireAddr{} }
func (w *wire) SetDeadline(time.Time) error      { return nil }
func (w *wire) SetReadDeadline(time.Time) error  { return nil }
func (w *wire) SetWriteDeadline(time.Time) error { return nil }

type wireAddr struct{}

func (wireAddr) Network() string { return "native" }
func (wireAddr) String() string  { return "native" }
