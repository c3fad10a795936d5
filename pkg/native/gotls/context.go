package gotls

import (
	"crypto/tls"
	"crypto/x509"
	"slices"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
	"github.com/mash-protocol/tlsbridge/pkg/native"
)

// maxPlaintext is the largest plaintext a single TLS record carries.
const maxPlaintext = 16384

// Context is a native.Context backed by crypto/tls or uTLS.
type Context struct {
	side native.Side
	kind native.ConnectionType
	opts options

	readFn  native.ReadFunc
	writeFn native.WriteFunc
	ref     native.ConnectionRef

	peerName    string
	identity    cert.Identity
	chain       []*x509.Certificate
	authorities []*x509.Certificate
	peerID      []byte
	enabled     []native.CipherSuite
	minVersion  native.ProtocolVersion
	maxVersion  native.ProtocolVersion
	alpn        []string
	authPolicy  native.AuthPolicy
	sessionOpts map[native.SessionOption]bool

	state     native.SessionState
	certState native.ClientCertState

	// Handshake coroutine. next and stop are nil outside a handshake.
	conn  backend
	wire  *wire
	next  func() (native.Status, bool)
	stop  func()
	yield func(native.Status) bool

	result        native.Status
	handshakeDone bool
	verifyStatus  native.Status
	peerChain     []*x509.Certificate
	negotiated    connState

	readBuf   []byte
	plain     []byte
	readErr   error
	wroteData bool
	closeSent bool
}

var _ native.Context = (*Context)(nil)

func newContext(side native.Side, kind native.ConnectionType, o options) (*Context, native.Status) {
	if side != native.SideServer && side != native.SideClient {
		return nil, native.StatusParam
	}
	if kind != native.ConnectionStream && kind != native.ConnectionDatagram {
		return nil, native.StatusParam
	}
	c := &Context{
		side:        side,
		kind:        kind,
		opts:        o,
		enabled:     supportedCiphers(),
		minVersion:  native.VersionTLS12,
		maxVersion:  native.VersionTLS13,
		sessionOpts: make(map[native.SessionOption]bool),
		state:       native.StateIdle,
	}
	return c, native.StatusSuccess
}

func (c *Context) Side() native.Side           { return c.side }
func (c *Context) Kind() native.ConnectionType { return c.kind }

func (c *Context) idle() bool        { return c.state == native.StateIdle }
func (c *Context) handshaking() bool { return c.state == native.StateHandshake }

func (c *Context) SessionState() (native.SessionState, native.Status) {
	return c.state, native.StatusSuccess
}

func (c *Context) SetIOFuncs(read native.ReadFunc, write native.WriteFunc) native.Status {
	if !c.idle() {
		return native.StatusBadReq
	}
	if read == nil || write == nil {
		return native.StatusParam
	}
	c.readFn, c.writeFn = read, write
	return native.StatusSuccess
}

func (c *Context) SetConnection(ref native.ConnectionRef) native.Status {
	if !c.idle() {
		return native.StatusBadReq
	}
	c.ref = ref
	return native.StatusSuccess
}

func (c *Context) Connection() (native.ConnectionRef, native.Status) {
	return c.ref, native.StatusSuccess
}

func (c *Context) SetPeerDomainName(name string) native.Status {
	if !c.idle() {
		return native.StatusBadReq
	}
	c.peerName = name
	return native.StatusSuccess
}

func (c *Context) PeerDomainName() (string, native.Status) {
	return c.peerName, native.StatusSuccess
}

// SetCertificate may also be called while a client handshake is suspended
// on a certificate request.
func (c *Context) SetCertificate(id cert.Identity, chain []*x509.Certificate) native.Status {
	if !c.idle() && !c.handshaking() {
		return native.StatusBadReq
	}
	if id.IsZero() {
		return native.StatusParam
	}
	if err := id.Validate(); err != nil {
		return native.StatusBadCert
	}
	c.identity = id
	c.chain = slices.Clone(chain)
	return native.StatusSuccess
}

func (c *Context) SetCertificateAuthorities(certs []*x509.Certificate, replace bool) native.Status {
	if slices.Contains(certs, nil) {
		return native.StatusParam
	}
	if replace {
		c.authorities = slices.Clone(certs)
	} else {
		c.authorities = append(c.authorities, certs...)
	}
	return native.StatusSuccess
}

func (c *Context) CertificateAuthorities() ([]*x509.Certificate, native.Status) {
	return slices.Clone(c.authorities), native.StatusSuccess
}

func (c *Context) SetPeerID(id []byte) native.Status {
	if !c.idle() {
		return native.StatusBadReq
	}
	if len(id) == 0 {
		return native.StatusParam
	}
	c.peerID = slices.Clone(id)
	return native.StatusSuccess
}

func (c *Context) PeerID() ([]byte, native.Status) {
	return slices.Clone(c.peerID), native.StatusSuccess
}

// supportedCiphers lists every suite crypto/tls implements without known
// weaknesses, TLS 1.3 suites included.
func supportedCiphers() []native.CipherSuite {
	suites := tls.CipherSuites()
	out := make([]native.CipherSuite, 0, len(suites))
	for _, s := range suites {
		out = append(out, native.CipherSuite(s.ID))
	}
	return out
}

func isTLS13Suite(id native.CipherSuite) bool {
	for _, s := range tls.CipherSuites() {
		if s.ID == uint16(id) {
			return slices.Equal(s.SupportedVersions, []uint16{tls.VersionTLS13})
		}
	}
	return false
}

func (c *Context) SupportedCiphers() ([]native.CipherSuite, native.Status) {
	return supportedCiphers(), native.StatusSuccess
}

func (c *Context) EnabledCiphers() ([]native.CipherSuite, native.Status) {
	return slices.Clone(c.enabled), native.StatusSuccess
}

// SetEnabledCiphers restricts negotiation to ciphers, which must be a
// non-empty subset of SupportedCiphers. crypto/tls does not allow TLS 1.3
// suites to be configured individually, so enabling none of them caps the
// version at TLS 1.2 and enabling only TLS 1.3 suites raises the minimum.
// A partial TLS 1.3 set is checked once the suite is negotiated: a handshake
// that lands on a suite outside the set fails with StatusNegotiation.
func (c *Context) SetEnabledCiphers(ciphers []native.CipherSuite) native.Status {
	if !c.idle() {
		return native.StatusBadReq
	}
	if len(ciphers) == 0 {
		return native.StatusParam
	}
	supported := supportedCiphers()
	for _, id := range ciphers {
		if !slices.Contains(supported, id) {
			return native.StatusParam
		}
	}
	c.enabled = slices.Clone(ciphers)
	return native.StatusSuccess
}

func (c *Context) NegotiatedCipher() (native.CipherSuite, native.Status) {
	if !c.handshakeDone {
		return 0, native.StatusBadReq
	}
	return native.CipherSuite(c.negotiated.cipher), native.StatusSuccess
}

// tls12Suites returns the enabled suites crypto/tls accepts in
// Config.CipherSuites, or nil when none are enabled.
func (c *Context) tls12Suites() []uint16 {
	var out []uint16
	for _, id := range c.enabled {
		if !isTLS13Suite(id) {
			out = append(out, uint16(id))
		}
	}
	return out
}

// versionRange narrows the configured versions to those the enabled
// ciphers can serve.
func (c *Context) versionRange() (lo, hi native.ProtocolVersion) {
	lo, hi = c.minVersion, c.maxVersion
	has13 := slices.ContainsFunc(c.enabled, isTLS13Suite)
	has12 := len(c.tls12Suites()) > 0
	if !has13 && hi > native.VersionTLS12 {
		hi = native.VersionTLS12
	}
	if !has12 && lo < native.VersionTLS13 {
		lo = native.VersionTLS13
	}
	return lo, hi
}

func validVersion(v native.ProtocolVersion) bool {
	return v == native.VersionTLS12 || v == native.VersionTLS13
}

func (c *Context) SetProtocolVersionMin(v native.ProtocolVersion) native.Status {
	if !c.idle() {
		return native.StatusBadReq
	}
	if !validVersion(v) {
		return native.StatusParam
	}
	c.minVersion = v
	return native.StatusSuccess
}

func (c *Context) ProtocolVersionMin() (native.ProtocolVersion, native.Status) {
	return c.minVersion, native.StatusSuccess
}

func (c *Context) SetProtocolVersionMax(v native.ProtocolVersion) native.Status {
	if !c.idle() {
		return native.StatusBadReq
	}
	if !validVersion(v) {
		return native.StatusParam
	}
	c.maxVersion = v
	return native.StatusSuccess
}

func (c *Context) ProtocolVersionMax() (native.ProtocolVersion, native.Status) {
	return c.maxVersion, native.StatusSuccess
}

func (c *Context) NegotiatedProtocolVersion() (native.ProtocolVersion, native.Status) {
	if !c.handshakeDone {
		return native.VersionUnknown, native.StatusBadReq
	}
	return native.ProtocolVersion(c.negotiated.version), native.StatusSuccess
}

func (c *Context) SetALPNProtocols(protocols []string) native.Status {
	if !c.idle() {
		return native.StatusBadReq
	}
	for _, p := range protocols {
		if p == "" || len(p) > 255 {
			return native.StatusParam
		}
	}
	c.alpn = slices.Clone(protocols)
	return native.StatusSuccess
}

func (c *Context) ALPNProtocols() ([]string, native.Status) {
	return slices.Clone(c.alpn), native.StatusSuccess
}

func (c *Context) NegotiatedALPN() (string, native.Status) {
	if !c.handshakeDone {
		return "", native.StatusBadReq
	}
	return c.negotiated.alpn, native.StatusSuccess
}

func (c *Context) SetClientSideAuthenticate(policy native.AuthPolicy) native.Status {
	if !c.idle() {
		return native.StatusBadReq
	}
	if c.side != native.SideServer {
		return native.StatusParam
	}
	switch policy {
	case native.AuthNever, native.AuthAlways, native.AuthTry:
	default:
		return native.StatusParam
	}
	c.authPolicy = policy
	return native.StatusSuccess
}

func (c *Context) ClientCertificateState() (native.ClientCertState, native.Status) {
	return c.certState, native.StatusSuccess
}

// PeerTrust wraps whatever chain the peer has presented so far, paired with
// the configured anchors and the expected name.
func (c *Context) PeerTrust() (*cert.Trust, native.Status) {
	if c.idle() {
		return nil, native.StatusBadReq
	}
	return cert.NewTrust(c.peerChain, c.trustPolicy()), native.StatusSuccess
}

func (c *Context) trustPolicy() cert.TrustPolicy {
	if c.side == native.SideClient {
		return cert.TrustPolicy{
			Anchors: c.authorities,
			DNSName: c.peerName,
			Usage:   x509.ExtKeyUsageServerAuth,
		}
	}
	return cert.TrustPolicy{
		Anchors: c.authorities,
		Usage:   x509.ExtKeyUsageClientAuth,
	}
}

func (c *Context) BufferedReadSize() (int, native.Status) {
	return len(c.plain), native.StatusSuccess
}

// SupportedSessionOptions omits OptionFalseStart: crypto/tls always waits
// for the peer's Finished before releasing application data.
func (c *Context) SupportedSessionOptions() []native.SessionOption {
	return []native.SessionOption{
		native.OptionBreakOnServerAuth,
		native.OptionBreakOnCertRequested,
		native.OptionBreakOnClientAuth,
		native.OptionSendOneByteRecord,
	}
}

func (c *Context) SessionOption(opt native.SessionOption) (bool, native.Status) {
	if !slices.Contains(c.SupportedSessionOptions(), opt) {
		return false, native.StatusUnimplemented
	}
	return c.sessionOpts[opt], native.StatusSuccess
}

func (c *Context) SetSessionOption(opt native.SessionOption, value bool) native.Status {
	if !slices.Contains(c.SupportedSessionOptions(), opt) {
		return native.StatusUnimplemented
	}
	if !c.idle() {
		return native.StatusBadReq
	}
	c.sessionOpts[opt] = value
	return native.StatusSuccess
}
