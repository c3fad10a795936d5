package gotls

import (
	"crypto/tls"
	"crypto/x509"

	utls "github.com/refraction-networking/utls"

	"github.com/mash-protocol/tlsbridge/pkg/native"
)

// backend is the TLS connection driving a context. Both crypto/tls and uTLS
// connections satisfy it through thin wrappers.
type backend interface {
	Handshake() error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error

	// negotiated must only be called once Handshake has returned.
	negotiated() connState
}

// connState is the subset of a connection state the context records.
type connState struct {
	version uint16
	cipher  uint16
	alpn    string
	peers   []*x509.Certificate
	resumed bool
}

type stdBackend struct {
	*tls.Conn
}

func (b stdBackend) negotiated() connState {
	return fromStd(b.ConnectionState())
}

func fromStd(cs tls.ConnectionState) connState {
	return connState{
		version: cs.Version,
		cipher:  cs.CipherSuite,
		alpn:    cs.NegotiatedProtocol,
		peers:   cs.PeerCertificates,
		resumed: cs.DidResume,
	}
}

type utlsBackend struct {
	*utls.UConn
}

func (b utlsBackend) negotiated() connState {
	return fromUTLS(b.ConnectionState())
}

func fromUTLS(cs utls.ConnectionState) connState {
	return connState{
		version: cs.Version,
		cipher:  cs.CipherSuite,
		alpn:    cs.NegotiatedProtocol,
		peers:   cs.PeerCertificates,
		resumed: cs.DidResume,
	}
}

// newBackend builds the TLS connection for the context's current
// configuration. Peer verification is always done by verifyPeer so that the
// break-on-auth options can skip it.
func (c *Context) newBackend() backend {
	if id, ok := c.opts.hello.helloID(); ok && c.side == native.SideClient {
		return utlsBackend{utls.UClient(c.wire, c.utlsConfig(), id)}
	}
	if c.side == native.SideClient {
		return stdBackend{tls.Client(c.wire, c.stdConfig())}
	}
	return stdBackend{tls.Server(c.wire, c.stdConfig())}
}

func (c *Context) stdConfig() *tls.Config {
	lo, hi := c.versionRange()
	cfg := &tls.Config{
		MinVersion:   uint16(lo),
		MaxVersion:   uint16(hi),
		CipherSuites: c.tls12Suites(),
		NextProtos:   c.alpn,
		VerifyConnection: func(cs tls.ConnectionState) error {
			return c.verifyPeer(fromStd(cs))
		},
	}

	switch c.side {
	case native.SideClient:
		cfg.ServerName = c.peerName
		cfg.InsecureSkipVerify = true
		cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			return c.clientCertificate()
		}
		if c.opts.tickets != nil && c.peerID != nil {
			cfg.ClientSessionCache = c.opts.tickets.forStd(c.peerID)
		}
	case native.SideServer:
		cfg.Certificates = []tls.Certificate{c.identity.TLSCertificate(c.chain)}
		cfg.ClientAuth = clientAuthType(c.authPolicy)
		if c.opts.tickets != nil {
			cfg.SetSessionTicketKeys([][32]byte{c.opts.tickets.key})
		}
	}
	return cfg
}

func (c *Context) utlsConfig() *utls.Config {
	lo, hi := c.versionRange()
	cfg := &utls.Config{
		ServerName:         c.peerName,
		InsecureSkipVerify: true,
		MinVersion:         uint16(lo),
		MaxVersion:         uint16(hi),
		CipherSuites:       c.tls12Suites(),
		NextProtos:         c.alpn,
		VerifyConnection: func(cs utls.ConnectionState) error {
			return c.verifyPeer(fromUTLS(cs))
		},
		GetClientCertificate: func(*utls.CertificateRequestInfo) (*utls.Certificate, error) {
			tc, err := c.clientCertificate()
			if err != nil {
				return nil, err
			}
			return &utls.Certificate{
				Certificate: tc.Certificate,
				PrivateKey:  tc.PrivateKey,
				Leaf:        tc.Leaf,
			}, nil
		},
	}
	if c.opts.tickets != nil && c.peerID != nil {
		cfg.ClientSessionCache = c.opts.tickets.forUTLS(c.peerID)
	}
	return cfg
}

func clientAuthType(p native.AuthPolicy) tls.ClientAuthType {
	switch p {
	case native.AuthAlways:
		return tls.RequireAnyClientCert
	case native.AuthTry:
		return tls.RequestClientCert
	default:
		return tls.NoClientCert
	}
}
