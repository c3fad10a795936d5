package gotls

import (
	"errors"
	"io"

	"github.com/mash-protocol/tlsbridge/pkg/native"
)

// Read returns decrypted application data. A whole record is decrypted into
// an internal buffer; what p cannot hold is reported by BufferedReadSize and
// returned by the next Read without touching the transport.
func (c *Context) Read(p []byte) (int, native.Status) {
	switch c.state {
	case native.StateConnected:
	case native.StateClosed, native.StateAborted:
		if len(c.plain) == 0 {
			return 0, c.terminalStatus()
		}
	default:
		return 0, native.StatusBadReq
	}
	if len(p) == 0 {
		return 0, native.StatusSuccess
	}

	if len(c.plain) == 0 {
		if c.readErr != nil {
			err := c.readErr
			c.readErr = nil
			return 0, c.readStatus(err)
		}
		if c.readBuf == nil {
			c.readBuf = make([]byte, maxPlaintext)
		}
		n, err := c.conn.Read(c.readBuf)
		c.plain = c.readBuf[:n]
		if err != nil {
			if n == 0 {
				return 0, c.readStatus(err)
			}
			c.readErr = err
		}
	}

	n := copy(p, c.plain)
	c.plain = c.plain[n:]
	return n, native.StatusSuccess
}

// readStatus maps a read error and moves the context to its terminal state
// when the error is not retryable.
func (c *Context) readStatus(err error) native.Status {
	var st native.Status
	switch {
	case errors.Is(err, errWouldBlock):
		return native.StatusWouldBlock
	case errors.Is(err, io.EOF):
		// Without a transport status, io.EOF from crypto/tls means the peer
		// sent close_notify.
		st = native.StatusClosedGraceful
		if c.wire.failure.Closed() {
			st = c.wire.failure
		}
	case errors.Is(err, io.ErrUnexpectedEOF):
		st = native.StatusClosedNoNotify
		if c.wire.failure.Closed() {
			st = c.wire.failure
		}
	case c.wire.failure != native.StatusSuccess:
		st = c.wire.failure
	case remoteAlert(err):
		if c.side == native.SideClient && c.certState == native.ClientCertSent {
			c.certState = native.ClientCertRejected
		}
		st = native.StatusPeerHandshakeFail
	default:
		st = native.StatusProtocol
	}

	c.result = st
	if st.Closed() {
		c.state = native.StateClosed
	} else {
		c.state = native.StateAborted
	}
	return st
}

// terminalStatus is what Read and Write report once the context is closed.
func (c *Context) terminalStatus() native.Status {
	if c.result != native.StatusSuccess {
		return c.result
	}
	return native.StatusClosedGraceful
}

// Write encrypts p. If the transport blocks part way, the remaining
// ciphertext is parked, n still counts all of p and the status is
// StatusWouldBlock. Parked ciphertext goes out first on the next Write,
// which may be empty, or on Close.
func (c *Context) Write(p []byte) (int, native.Status) {
	switch c.state {
	case native.StateConnected:
	case native.StateClosed, native.StateAborted:
		return 0, c.terminalStatus()
	default:
		return 0, native.StatusBadReq
	}

	if st := c.wire.drain(); st != native.StatusSuccess {
		return 0, st
	}
	if len(p) == 0 {
		return 0, native.StatusSuccess
	}

	var (
		n   int
		err error
	)
	if c.sessionOpts[native.OptionSendOneByteRecord] && !c.wroteData && len(p) > 1 {
		n, err = c.conn.Write(p[:1])
		if err == nil {
			var m int
			m, err = c.conn.Write(p[1:])
			n += m
		}
	} else {
		n, err = c.conn.Write(p)
	}
	c.wroteData = true

	if err != nil {
		st := c.wire.failure
		if st == native.StatusSuccess {
			st = native.StatusProtocol
		}
		c.result = st
		c.state = native.StateAborted
		return n, st
	}
	if c.wire.blocked {
		return n, native.StatusWouldBlock
	}
	return n, native.StatusSuccess
}

// Close sends close_notify once the handshake has completed, and abandons a
// handshake still in progress.
func (c *Context) Close() native.Status {
	switch c.state {
	case native.StateIdle:
		c.state = native.StateClosed
		return native.StatusSuccess
	case native.StateHandshake:
		c.abandon()
		return native.StatusSuccess
	}
	if !c.handshakeDone || c.closeSent {
		return native.StatusSuccess
	}
	c.closeSent = true

	st := c.wire.drain()
	if st == native.StatusSuccess {
		if err := c.conn.Close(); err != nil {
			st = c.wire.failure
			if st == native.StatusSuccess {
				st = native.StatusIO
			}
		} else if c.wire.blocked {
			st = native.StatusWouldBlock
		}
	}
	if c.state == native.StateConnected {
		c.state = native.StateClosed
	}
	return st
}

// Dispose abandons any running handshake and drops the backend. It never
// calls the upcalls.
func (c *Context) Dispose() {
	if c.wire != nil {
		c.wire.abandoned = true
	}
	c.abandon()
	c.conn = nil
	c.plain = nil
	c.readBuf = nil
}
