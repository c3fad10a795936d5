package gotls

import (
	"crypto/tls"
	"errors"
	"iter"
	"net"
	"slices"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
	"github.com/mash-protocol/tlsbridge/pkg/native"
)

// Handshake starts or resumes the handshake coroutine and returns the next
// status it produces.
func (c *Context) Handshake() native.Status {
	switch c.state {
	case native.StateIdle:
		if st := c.start(); st != native.StatusSuccess {
			return st
		}
	case native.StateHandshake:
	case native.StateConnected:
		return native.StatusSuccess
	default:
		return native.StatusBadReq
	}

	if st, ok := c.next(); ok {
		return st
	}
	return c.finish()
}

func (c *Context) start() native.Status {
	if c.kind == native.ConnectionDatagram {
		return native.StatusUnimplemented
	}
	if c.readFn == nil || c.writeFn == nil {
		return native.StatusParam
	}
	if c.side == native.SideServer && c.identity.IsZero() {
		return native.StatusBadConfiguration
	}
	if lo, hi := c.versionRange(); lo > hi {
		return native.StatusNegotiation
	}

	c.wire = newWire(c)
	c.conn = c.newBackend()
	c.state = native.StateHandshake
	c.next, c.stop = iter.Pull(iter.Seq[native.Status](c.run))
	return native.StatusSuccess
}

// run is the coroutine body.
func (c *Context) run(yield func(native.Status) bool) {
	c.yield = yield
	defer func() { c.yield = nil }()
	c.result = c.handshakeStatus(c.conn.Handshake())
}

// suspend parks the coroutine with st. It returns false if the handshake was
// abandoned while parked.
func (c *Context) suspend(st native.Status) bool {
	if c.yield == nil {
		return false
	}
	return c.yield(st)
}

func (c *Context) finish() native.Status {
	c.stop()
	c.next, c.stop = nil, nil

	if c.result != native.StatusSuccess {
		if c.result.Closed() {
			c.state = native.StateClosed
		} else {
			c.state = native.StateAborted
		}
		return c.result
	}

	c.negotiated = c.conn.negotiated()
	if c.peerChain == nil {
		c.peerChain = c.negotiated.peers
	}
	c.handshakeDone = true
	c.state = native.StateConnected
	return native.StatusSuccess
}

// abandon unwinds a suspended coroutine. Writes are dropped from here on, so
// no alert reaches the transport.
func (c *Context) abandon() {
	if c.stop == nil {
		return
	}
	c.wire.abandoned = true
	c.stop()
	c.next, c.stop = nil, nil
	c.state = native.StateAborted
}

var errCipherNotEnabled = errors.New("gotls: negotiated cipher suite is not enabled")

// verifyPeer runs inside the coroutine once the peer chain is known. It is
// also where the enabled TLS 1.3 suites are enforced, since crypto/tls
// ignores them in Config.CipherSuites.
func (c *Context) verifyPeer(cs connState) error {
	c.peerChain = cs.peers
	c.negotiated = cs

	if !slices.Contains(c.enabled, native.CipherSuite(cs.cipher)) {
		c.verifyStatus = native.StatusNegotiation
		return errCipherNotEnabled
	}

	if c.side == native.SideClient {
		if c.sessionOpts[native.OptionBreakOnServerAuth] {
			if !c.suspend(native.StatusPeerAuthCompleted) {
				return errAbandoned
			}
			return nil
		}
		return c.evaluate()
	}

	if len(cs.peers) == 0 {
		if c.authPolicy != native.AuthNever {
			c.certState = native.ClientCertRequested
		}
		return nil
	}
	c.certState = native.ClientCertSent
	if c.sessionOpts[native.OptionBreakOnClientAuth] {
		if !c.suspend(native.StatusPeerAuthCompleted) {
			return errAbandoned
		}
		return nil
	}
	if err := c.evaluate(); err != nil {
		c.certState = native.ClientCertRejected
		return err
	}
	return nil
}

func (c *Context) evaluate() error {
	err := cert.NewTrust(c.peerChain, c.trustPolicy()).Evaluate()
	if err != nil {
		c.verifyStatus = trustStatus(err)
	}
	return err
}

func trustStatus(err error) native.Status {
	switch {
	case errors.Is(err, cert.ErrHostnameMismatch):
		return native.StatusHostNameMismatch
	case errors.Is(err, cert.ErrCertExpired), errors.Is(err, cert.ErrCertNotYetValid):
		return native.StatusCertExpired
	case errors.Is(err, cert.ErrEmptyChain):
		return native.StatusBadCert
	case errors.Is(err, cert.ErrInvalidChain):
		return native.StatusCertChainInvalid
	default:
		return native.StatusBadCert
	}
}

// clientCertificate answers a server's certificate request, pausing first if
// the caller asked to be told about it.
func (c *Context) clientCertificate() (*tls.Certificate, error) {
	c.certState = native.ClientCertRequested
	if c.sessionOpts[native.OptionBreakOnCertRequested] {
		if !c.suspend(native.StatusClientCertRequested) {
			return nil, errAbandoned
		}
	}
	if c.identity.IsZero() {
		return &tls.Certificate{}, nil
	}
	c.certState = native.ClientCertSent
	tc := c.identity.TLSCertificate(c.chain)
	return &tc, nil
}

// handshakeStatus maps the error returned by a finished handshake.
func (c *Context) handshakeStatus(err error) native.Status {
	if err == nil {
		return native.StatusSuccess
	}
	if c.verifyStatus != native.StatusSuccess {
		return c.verifyStatus
	}
	if c.wire.failure != native.StatusSuccess {
		return c.wire.failure
	}
	if remoteAlert(err) {
		if c.certState == native.ClientCertSent && c.side == native.SideClient {
			c.certState = native.ClientCertRejected
		}
		return native.StatusPeerHandshakeFail
	}
	return native.StatusProtocol
}

// remoteAlert reports whether err is an alert received from the peer.
// crypto/tls wraps those in a net.OpError with Op "remote error".
func remoteAlert(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "remote error"
}
