package session

import (
	"crypto/x509"
	"io"
	"log/slog"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
	"github.com/mash-protocol/tlsbridge/pkg/handle"
	"github.com/mash-protocol/tlsbridge/pkg/log"
	"github.com/mash-protocol/tlsbridge/pkg/native"
	"github.com/mash-protocol/tlsbridge/pkg/native/gotls"
	"github.com/mash-protocol/tlsbridge/pkg/transport"
)

// Engine owns a native TLS engine instance and exposes its configuration.
//
// An Engine is created Idle, configured, and then handed to Handshake,
// which moves the native instance into the returned outcome. The original
// Engine value is consumed at that point and every method on it returns
// ErrConsumed. The engine reachable from a Suspended or Session is the live
// one.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	ctx  native.Context
	side native.Side
	kind native.ConnectionType

	factory native.Factory
	logger  log.Logger
	slog    *slog.Logger

	// Set by Handshake.
	id     handle.ID
	bridge *transport.Bridge
	connID string
	steps  int
	last   native.SessionState
}

// Option configures an Engine.
type Option func(*Engine)

// WithFactory selects the native engine implementation. The default is
// gotls.New.
func WithFactory(f native.Factory) Option {
	return func(e *Engine) {
		e.factory = f
	}
}

// WithLogger attaches a protocol event logger.
func WithLogger(l log.Logger) Option {
	return func(e *Engine) {
		e.logger = log.OrNoop(l)
	}
}

// WithSlog sets the operational logger. The default is slog.Default().
func WithSlog(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.slog = l
		}
	}
}

// NewEngine creates an Idle engine.
func NewEngine(side native.Side, kind native.ConnectionType, opts ...Option) (*Engine, error) {
	e := &Engine{
		side:    side,
		kind:    kind,
		factory: gotls.New,
		logger:  log.NoopLogger{},
		slog:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	ctx, st := e.factory(side, kind)
	if err := check("create", st); err != nil {
		return nil, err
	}
	e.ctx = ctx
	e.last = native.StateIdle
	return e, nil
}

// Side returns the side the engine was created for.
func (e *Engine) Side() native.Side { return e.side }

// Kind returns the connection type the engine was created for.
func (e *Engine) Kind() native.ConnectionType { return e.kind }

// ConnectionID identifies the handshake attempt in logs. It is empty until
// Handshake is called.
func (e *Engine) ConnectionID() string { return e.connID }

// Dispose releases an engine that was never handed to Handshake. It is a
// no-op on a consumed engine.
func (e *Engine) Dispose() {
	if e.ctx == nil || e.bridge != nil {
		return
	}
	e.ctx.Dispose()
	e.ctx = nil
}

func (e *Engine) native() (native.Context, error) {
	if e.ctx == nil {
		return nil, ErrConsumed
	}
	return e.ctx, nil
}

func (e *Engine) SetPeerDomainName(name string) error {
	ctx, err := e.native()
	if err != nil {
		return err
	}
	return check("set peer domain name", ctx.SetPeerDomainName(name))
}

func (e *Engine) PeerDomainName() (string, error) {
	ctx, err := e.native()
	if err != nil {
		return "", err
	}
	name, st := ctx.PeerDomainName()
	return name, check("peer domain name", st)
}

// SetCertificate binds the local identity and the intermediates presented
// after it. A client may call it while suspended on ClientCertRequested.
func (e *Engine) SetCertificate(id cert.Identity, chain []*x509.Certificate) error {
	ctx, err := e.native()
	if err != nil {
		return err
	}
	return check("set certificate", ctx.SetCertificate(id, chain))
}

// SetCertificateAuthorities sets the anchors used to verify the peer. With
// replace false the certificates are added to the current set.
func (e *Engine) SetCertificateAuthorities(certs []*x509.Certificate, replace bool) error {
	ctx, err := e.native()
	if err != nil {
		return err
	}
	return check("set certificate authorities", ctx.SetCertificateAuthorities(certs, replace))
}

func (e *Engine) CertificateAuthorities() ([]*x509.Certificate, error) {
	ctx, err := e.native()
	if err != nil {
		return nil, err
	}
	certs, st := ctx.CertificateAuthorities()
	return certs, check("certificate authorities", st)
}

// SetPeerID sets the opaque value the engine uses to find a resumable
// session for this peer.
func (e *Engine) SetPeerID(id []byte) error {
	ctx, err := e.native()
	if err != nil {
		return err
	}
	return check("set peer id", ctx.SetPeerID(id))
}

// PeerID returns nil if no peer ID was ever set.
func (e *Engine) PeerID() ([]byte, error) {
	ctx, err := e.native()
	if err != nil {
		return nil, err
	}
	id, st := ctx.PeerID()
	return id, check("peer id", st)
}

func (e *Engine) SupportedCiphers() ([]native.CipherSuite, error) {
	ctx, err := e.native()
	if err != nil {
		return nil, err
	}
	ciphers, st := ctx.SupportedCiphers()
	return ciphers, check("supported ciphers", st)
}

func (e *Engine) EnabledCiphers() ([]native.CipherSuite, error) {
	ctx, err := e.native()
	if err != nil {
		return nil, err
	}
	ciphers, st := ctx.EnabledCiphers()
	return ciphers, check("enabled ciphers", st)
}

// SetEnabledCiphers replaces the enabled set. The order is kept.
func (e *Engine) SetEnabledCiphers(ciphers []native.CipherSuite) error {
	ctx, err := e.native()
	if err != nil {
		return err
	}
	return check("set enabled ciphers", ctx.SetEnabledCiphers(ciphers))
}

func (e *Engine) NegotiatedCipher() (native.CipherSuite, error) {
	ctx, err := e.native()
	if err != nil {
		return 0, err
	}
	c, st := ctx.NegotiatedCipher()
	return c, check("negotiated cipher", st)
}

func (e *Engine) SetProtocolVersionMin(v native.ProtocolVersion) error {
	ctx, err := e.native()
	if err != nil {
		return err
	}
	return check("set protocol version min", ctx.SetProtocolVersionMin(v))
}

func (e *Engine) ProtocolVersionMin() (native.ProtocolVersion, error) {
	ctx, err := e.native()
	if err != nil {
		return 0, err
	}
	v, st := ctx.ProtocolVersionMin()
	return v, check("protocol version min", st)
}

func (e *Engine) SetProtocolVersionMax(v native.ProtocolVersion) error {
	ctx, err := e.native()
	if err != nil {
		return err
	}
	return check("set protocol version max", ctx.SetProtocolVersionMax(v))
}

func (e *Engine) ProtocolVersionMax() (native.ProtocolVersion, error) {
	ctx, err := e.native()
	if err != nil {
		return 0, err
	}
	v, st := ctx.ProtocolVersionMax()
	return v, check("protocol version max", st)
}

func (e *Engine) NegotiatedProtocolVersion() (native.ProtocolVersion, error) {
	ctx, err := e.native()
	if err != nil {
		return 0, err
	}
	v, st := ctx.NegotiatedProtocolVersion()
	return v, check("negotiated protocol version", st)
}

func (e *Engine) SetALPNProtocols(protocols []string) error {
	ctx, err := e.native()
	if err != nil {
		return err
	}
	return check("set alpn protocols", ctx.SetALPNProtocols(protocols))
}

func (e *Engine) ALPNProtocols() ([]string, error) {
	ctx, err := e.native()
	if err != nil {
		return nil, err
	}
	protocols, st := ctx.ALPNProtocols()
	return protocols, check("alpn protocols", st)
}

func (e *Engine) NegotiatedALPN() (string, error) {
	ctx, err := e.native()
	if err != nil {
		return "", err
	}
	p, st := ctx.NegotiatedALPN()
	return p, check("negotiated alpn", st)
}

// SetClientSideAuthenticate sets whether a server asks for a client
// certificate.
func (e *Engine) SetClientSideAuthenticate(policy native.AuthPolicy) error {
	ctx, err := e.native()
	if err != nil {
		return err
	}
	return check("set client side authenticate", ctx.SetClientSideAuthenticate(policy))
}

func (e *Engine) ClientCertificateState() (native.ClientCertState, error) {
	ctx, err := e.native()
	if err != nil {
		return 0, err
	}
	s, st := ctx.ClientCertificateState()
	return s, check("client certificate state", st)
}

// PeerTrust returns the peer chain paired with the configured anchors and
// expected name. It fails with ErrBadRequest while the engine is Idle.
func (e *Engine) PeerTrust() (*cert.Trust, error) {
	ctx, err := e.native()
	if err != nil {
		return nil, err
	}
	trust, st := ctx.PeerTrust()
	if err := check("peer trust", st); err != nil {
		return nil, err
	}
	return trust, nil
}

func (e *Engine) State() (native.SessionState, error) {
	ctx, err := e.native()
	if err != nil {
		return 0, err
	}
	s, st := ctx.SessionState()
	return s, check("session state", st)
}

// BufferedReadSize returns decrypted bytes not yet returned by Read.
func (e *Engine) BufferedReadSize() (int, error) {
	ctx, err := e.native()
	if err != nil {
		return 0, err
	}
	n, st := ctx.BufferedReadSize()
	return n, check("buffered read size", st)
}

// Stream returns the bound transport, or nil before Handshake. It must not
// be used for I/O while bound.
func (e *Engine) Stream() io.ReadWriter {
	if e.bridge == nil {
		return nil
	}
	return e.bridge.Stream()
}
