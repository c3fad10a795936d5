// Package config loads engine profiles from YAML.
//
// A profile describes one end of a connection:
//
//	side: client
//	peer_name: device.local
//	ca: certs/ca.pem
//	certificate: certs/controller.pem
//	key: certs/controller.key
//	min_version: "1.2"
//	ciphers: [TLS_AES_128_GCM_SHA256, TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256]
//	alpn: [tlsbridge/1]
//	client_hello: chrome
//	options:
//	  break_on_server_auth: true
//	pin: 3a7f...
//	handshake_timeout: 10s
//	event_log: events.cbor
//
// Relative file paths are resolved against the directory of the profile.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
	"github.com/mash-protocol/tlsbridge/pkg/connection"
	"github.com/mash-protocol/tlsbridge/pkg/native"
	"github.com/mash-protocol/tlsbridge/pkg/native/gotls"
	"github.com/mash-protocol/tlsbridge/pkg/session"
)

// DefaultHandshakeTimeout bounds a handshake when the profile sets none.
const DefaultHandshakeTimeout = 10 * time.Second

// Validation errors.
var (
	ErrInvalidSide       = errors.New("config: side must be client or server")
	ErrMissingIdentity   = errors.New("config: server requires certificate and key")
	ErrIncompleteKeyPair = errors.New("config: certificate and key must be set together")
	ErrUnknownCipher     = errors.New("config: unknown cipher suite")
	ErrUnknownVersion    = errors.New("config: unknown protocol version")
	ErrUnknownAuthPolicy = errors.New("config: unknown client auth policy")
	ErrInvalidPin        = errors.New("config: pin is not a SHA-256 fingerprint")
	ErrServerOnly        = errors.New("config: client_auth applies to servers only")
	ErrPinNeedsAuth      = errors.New("config: a server pin requires client_auth: always")
)

// Options are the boolean session options.
type Options struct {
	BreakOnServerAuth    bool `yaml:"break_on_server_auth"`
	BreakOnCertRequested bool `yaml:"break_on_cert_requested"`
	BreakOnClientAuth    bool `yaml:"break_on_client_auth"`
	SendOneByteRecord    bool `yaml:"send_one_byte_record"`
}

// Profile is the YAML form of an engine configuration.
type Profile struct {
	Side        string `yaml:"side"`
	PeerName    string `yaml:"peer_name,omitempty"`
	Certificate string `yaml:"certificate,omitempty"`
	Key         string `yaml:"key,omitempty"`
	CA          string `yaml:"ca,omitempty"`

	Ciphers    []string `yaml:"ciphers,omitempty"`
	MinVersion string   `yaml:"min_version,omitempty"`
	MaxVersion string   `yaml:"max_version,omitempty"`
	ALPN       []string `yaml:"alpn,omitempty"`

	// ClientAuth is never, try or always. Servers only.
	ClientAuth string `yaml:"client_auth,omitempty"`

	// ClientHello is a gotls client hello profile name. Clients only.
	ClientHello string `yaml:"client_hello,omitempty"`

	// PeerID keys session resumption. Clients only.
	PeerID string `yaml:"peer_id,omitempty"`

	Options Options `yaml:"options,omitempty"`

	// Pin is the SHA-256 fingerprint the peer's leaf must match. Setting it
	// turns on the break that exposes the peer's chain.
	Pin string `yaml:"pin,omitempty"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout,omitempty"`

	// EventLog is the path of a CBOR protocol event log.
	EventLog string `yaml:"event_log,omitempty"`

	dir string
}

// Load reads and validates a profile.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.dir = filepath.Dir(path)
	return p, nil
}

// Parse decodes and validates a profile. Relative paths stay relative to
// the working directory.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Marshal encodes the profile as YAML.
func (p *Profile) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

// Validate checks the profile without touching the file system.
func (p *Profile) Validate() error {
	side, err := p.side()
	if err != nil {
		return err
	}
	if (p.Certificate == "") != (p.Key == "") {
		return ErrIncompleteKeyPair
	}
	if side == native.SideServer && p.Certificate == "" {
		return ErrMissingIdentity
	}
	if _, err := p.ciphers(); err != nil {
		return err
	}
	if _, err := parseVersion(p.MinVersion); err != nil {
		return err
	}
	if _, err := parseVersion(p.MaxVersion); err != nil {
		return err
	}
	policy, err := parseAuthPolicy(p.ClientAuth)
	if err != nil {
		return err
	}
	if side == native.SideClient && policy != native.AuthNever {
		return ErrServerOnly
	}
	if _, err := gotls.ParseClientHelloProfile(p.ClientHello); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if p.Pin != "" {
		if _, ok := cert.NormalizeFingerprint(p.Pin); !ok {
			return ErrInvalidPin
		}
		if side == native.SideServer && policy != native.AuthAlways {
			return ErrPinNeedsAuth
		}
	}
	if p.HandshakeTimeout < 0 {
		return errors.New("config: handshake_timeout must not be negative")
	}
	return nil
}

// NativeSide returns the parsed side.
func (p *Profile) NativeSide() native.Side {
	side, _ := p.side()
	return side
}

// Timeout returns the handshake timeout, or the default.
func (p *Profile) Timeout() time.Duration {
	if p.HandshakeTimeout > 0 {
		return p.HandshakeTimeout
	}
	return DefaultHandshakeTimeout
}

// Factory returns the gotls factory the profile asks for. tickets may be
// nil.
func (p *Profile) Factory(tickets *gotls.TicketCache) native.Factory {
	hello, _ := gotls.ParseClientHelloProfile(p.ClientHello)
	opts := []gotls.Option{gotls.WithClientHello(hello)}
	if tickets != nil {
		opts = append(opts, gotls.WithTicketCache(tickets))
	}
	return gotls.NewFactory(opts...)
}

// Handlers returns the drive handlers for the profile. With a pin set the
// peer is accepted on its fingerprint alone.
func (p *Profile) Handlers() connection.Handlers {
	var h connection.Handlers
	if p.Pin != "" {
		h.OnPeerAuth = connection.PinPeer(p.Pin)
	}
	return h
}

// Resolve returns path relative to the profile's directory.
func (p *Profile) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.dir == "" {
		return path
	}
	return filepath.Join(p.dir, path)
}

// NewEngine creates an Idle engine configured by the profile. opts are
// applied after the profile's own factory, so they may replace it.
func (p *Profile) NewEngine(opts ...session.Option) (*session.Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	opts = append([]session.Option{session.WithFactory(p.Factory(nil))}, opts...)
	e, err := session.NewEngine(p.NativeSide(), native.ConnectionStream, opts...)
	if err != nil {
		return nil, err
	}
	if err := p.apply(e); err != nil {
		e.Dispose()
		return nil, err
	}
	return e, nil
}

func (p *Profile) apply(e *session.Engine) error {
	if p.PeerName != "" {
		if err := e.SetPeerDomainName(p.PeerName); err != nil {
			return err
		}
	}
	if p.Certificate != "" {
		id, chain, err := cert.LoadIdentity(p.Resolve(p.Certificate), p.Resolve(p.Key))
		if err != nil {
			return err
		}
		if err := e.SetCertificate(id, chain); err != nil {
			return err
		}
	}
	if p.CA != "" {
		anchors, err := cert.ReadCertsFile(p.Resolve(p.CA))
		if err != nil {
			return err
		}
		if err := e.SetCertificateAuthorities(anchors, true); err != nil {
			return err
		}
	}

	ciphers, _ := p.ciphers()
	if len(ciphers) > 0 {
		if err := e.SetEnabledCiphers(ciphers); err != nil {
			return err
		}
	}
	if v, _ := parseVersion(p.MinVersion); v != native.VersionUnknown {
		if err := e.SetProtocolVersionMin(v); err != nil {
			return err
		}
	}
	if v, _ := parseVersion(p.MaxVersion); v != native.VersionUnknown {
		if err := e.SetProtocolVersionMax(v); err != nil {
			return err
		}
	}
	if len(p.ALPN) > 0 {
		if err := e.SetALPNProtocols(p.ALPN); err != nil {
			return err
		}
	}
	if p.ClientAuth != "" {
		policy, _ := parseAuthPolicy(p.ClientAuth)
		if err := e.SetClientSideAuthenticate(policy); err != nil {
			return err
		}
	}
	if p.PeerID != "" {
		if err := e.SetPeerID([]byte(p.PeerID)); err != nil {
			return err
		}
	}

	// A pin is checked by Handlers when the handshake pauses for the peer's
	// chain, so it implies the matching break.
	pinned := p.Pin != ""
	server := p.NativeSide() == native.SideServer
	flags := []struct {
		on  bool
		set func(bool) error
	}{
		{p.Options.BreakOnServerAuth || (pinned && !server), e.SetBreakOnServerAuth},
		{p.Options.BreakOnCertRequested, e.SetBreakOnCertRequested},
		{p.Options.BreakOnClientAuth || (pinned && server), e.SetBreakOnClientAuth},
		{p.Options.SendOneByteRecord, e.SetSendOneByteRecord},
	}
	for _, f := range flags {
		if f.on {
			if err := f.set(true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Profile) side() (native.Side, error) {
	switch strings.ToLower(p.Side) {
	case "client":
		return native.SideClient, nil
	case "server":
		return native.SideServer, nil
	default:
		return 0, fmt.Errorf("%w, got %q", ErrInvalidSide, p.Side)
	}
}

func (p *Profile) ciphers() ([]native.CipherSuite, error) {
	out := make([]native.CipherSuite, 0, len(p.Ciphers))
	for _, name := range p.Ciphers {
		c, err := ParseCipherSuite(name)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseCipherSuite accepts an IANA name such as TLS_AES_128_GCM_SHA256 or a
// hex code such as 0x1301.
func ParseCipherSuite(s string) (native.CipherSuite, error) {
	s = strings.TrimSpace(s)
	if hex, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		v, err := strconv.ParseUint(hex, 16, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrUnknownCipher, s)
		}
		return native.CipherSuite(v), nil
	}
	for _, cs := range tls.CipherSuites() {
		if strings.EqualFold(cs.Name, s) {
			return native.CipherSuite(cs.ID), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCipher, s)
}

func parseVersion(s string) (native.ProtocolVersion, error) {
	switch strings.TrimPrefix(strings.ToLower(s), "tls") {
	case "":
		return native.VersionUnknown, nil
	case "1.2":
		return native.VersionTLS12, nil
	case "1.3":
		return native.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownVersion, s)
	}
}

func parseAuthPolicy(s string) (native.AuthPolicy, error) {
	switch strings.ToLower(s) {
	case "", "never":
		return native.AuthNever, nil
	case "try":
		return native.AuthTry, nil
	case "always":
		return native.AuthAlways, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAuthPolicy, s)
	}
}
