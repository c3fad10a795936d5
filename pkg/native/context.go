package native

import (
	"crypto/x509"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
)

// ConnectionRef is the opaque value an engine hands back to its I/O upcalls.
// The engine never interprets it.
type ConnectionRef uint64

// ReadFunc fills data from the bound transport. It returns the number of bytes
// placed in data together with a status; a short count is always paired with
// a non-success status.
type ReadFunc func(ref ConnectionRef, data []byte) (int, Status)

// WriteFunc drains data to the bound transport with the same contract as ReadFunc.
type WriteFunc func(ref ConnectionRef, data []byte) (int, Status)

// Context is a native handshake and record-layer engine instance.
//
// A Context is single-threaded: it must not be used from two goroutines at
// the same time. The read and write upcalls are only invoked synchronously
// from within Handshake, Read, Write and Close.
type Context interface {
	// Side returns the side the context was created for.
	Side() Side

	// Kind returns the record framing the context was created for.
	Kind() ConnectionType

	// SetIOFuncs installs the upcalls used to move ciphertext.
	SetIOFuncs(read ReadFunc, write WriteFunc) Status

	// SetConnection sets the value passed to every upcall.
	SetConnection(ref ConnectionRef) Status

	// Connection returns the value set by SetConnection.
	Connection() (ConnectionRef, Status)

	SetPeerDomainName(name string) Status
	PeerDomainName() (string, Status)

	// SetCertificate binds the local identity and the intermediate chain
	// presented after the identity's certificate.
	SetCertificate(id cert.Identity, chain []*x509.Certificate) Status

	// SetCertificateAuthorities sets the trust anchors used to verify the
	// peer. With replace false the certificates are added to any existing set.
	SetCertificateAuthorities(certs []*x509.Certificate, replace bool) Status
	CertificateAuthorities() ([]*x509.Certificate, Status)

	SetPeerID(id []byte) Status

	// PeerID returns nil with StatusSuccess if no peer ID was ever set.
	PeerID() ([]byte, Status)

	SupportedCiphers() ([]CipherSuite, Status)
	EnabledCiphers() ([]CipherSuite, Status)
	SetEnabledCiphers(ciphers []CipherSuite) Status
	NegotiatedCipher() (CipherSuite, Status)

	SetProtocolVersionMin(v ProtocolVersion) Status
	ProtocolVersionMin() (ProtocolVersion, Status)
	SetProtocolVersionMax(v ProtocolVersion) Status
	ProtocolVersionMax() (ProtocolVersion, Status)
	NegotiatedProtocolVersion() (ProtocolVersion, Status)

	SetALPNProtocols(protocols []string) Status
	ALPNProtocols() ([]string, Status)
	NegotiatedALPN() (string, Status)

	SetClientSideAuthenticate(policy AuthPolicy) Status
	ClientCertificateState() (ClientCertState, Status)

	// PeerTrust returns the peer chain wrapped for evaluation. It fails with
	// StatusBadReq while the context is Idle.
	PeerTrust() (*cert.Trust, Status)

	SessionState() (SessionState, Status)

	// BufferedReadSize returns decrypted bytes not yet returned by Read.
	BufferedReadSize() (int, Status)

	// SupportedSessionOptions lists the options this context implements.
	// Options missing from the list fail with StatusUnimplemented.
	SupportedSessionOptions() []SessionOption
	SessionOption(opt SessionOption) (bool, Status)
	SetSessionOption(opt SessionOption, value bool) Status

	// Handshake advances the handshake. Besides success and terminal errors
	// it returns StatusWouldBlock, StatusPeerAuthCompleted and
	// StatusClientCertRequested, after which Handshake may be called again.
	Handshake() Status

	Read(p []byte) (int, Status)
	Write(p []byte) (int, Status)

	// Close sends a close notification if the handshake completed.
	Close() Status

	// Dispose releases the context without touching the transport. The
	// context must not be used afterwards.
	Dispose()
}

// Factory creates a new Idle context.
type Factory func(side Side, kind ConnectionType) (Context, Status)
