package gotls

import (
	"fmt"
	"strings"

	utls "github.com/refraction-networking/utls"

	"github.com/mash-protocol/tlsbridge/pkg/native"
)

// ClientHelloProfile selects how a client context builds its ClientHello.
type ClientHelloProfile string

const (
	// HelloStandard uses crypto/tls directly.
	HelloStandard ClientHelloProfile = ""

	// HelloGolang uses uTLS with the crypto/tls fingerprint.
	HelloGolang ClientHelloProfile = "golang"

	// HelloChrome mimics the current Chrome ClientHello.
	HelloChrome ClientHelloProfile = "chrome"

	// HelloFirefox mimics the current Firefox ClientHello.
	HelloFirefox ClientHelloProfile = "firefox"

	// HelloSafari mimics the current Safari ClientHello.
	HelloSafari ClientHelloProfile = "safari"

	// HelloIOS mimics the current iOS ClientHello.
	HelloIOS ClientHelloProfile = "ios"

	// HelloRandomized generates a randomized ClientHello.
	HelloRandomized ClientHelloProfile = "randomized"
)

// ClientHelloProfiles lists every accepted profile name.
var ClientHelloProfiles = []ClientHelloProfile{
	HelloStandard,
	HelloGolang,
	HelloChrome,
	HelloFirefox,
	HelloSafari,
	HelloIOS,
	HelloRandomized,
}

// ParseClientHelloProfile parses a profile name. "standard" and the empty
// string both select crypto/tls.
func ParseClientHelloProfile(s string) (ClientHelloProfile, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "standard" {
		return HelloStandard, nil
	}
	for _, p := range ClientHelloProfiles {
		if string(p) == name {
			return p, nil
		}
	}
	return HelloStandard, fmt.Errorf("gotls: unknown client hello profile %q", s)
}

// String returns the profile name.
func (p ClientHelloProfile) String() string {
	if p == HelloStandard {
		return "standard"
	}
	return string(p)
}

// helloID maps a uTLS profile to its ClientHelloID. ok is false for
// HelloStandard.
func (p ClientHelloProfile) helloID() (id utls.ClientHelloID, ok bool) {
	switch p {
	case HelloGolang:
		return utls.HelloGolang, true
	case HelloChrome:
		return utls.HelloChrome_Auto, true
	case HelloFirefox:
		return utls.HelloFirefox_Auto, true
	case HelloSafari:
		return utls.HelloSafari_Auto, true
	case HelloIOS:
		return utls.HelloIOS_Auto, true
	case HelloRandomized:
		return utls.HelloRandomized, true
	default:
		return utls.ClientHelloID{}, false
	}
}

type options struct {
	hello   ClientHelloProfile
	tickets *TicketCache
}

// Option configures contexts created by a factory.
type Option func(*options)

// WithClientHello selects the ClientHello profile for client contexts.
// Server contexts ignore it.
func WithClientHello(p ClientHelloProfile) Option {
	return func(o *options) {
		o.hello = p
	}
}

// WithTicketCache shares a session ticket cache between client contexts.
// Contexts only consult the cache once a peer ID is set.
func WithTicketCache(c *TicketCache) Option {
	return func(o *options) {
		o.tickets = c
	}
}

// NewFactory returns a native.Factory producing gotls contexts.
func NewFactory(opts ...Option) native.Factory {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return func(side native.Side, kind native.ConnectionType) (native.Context, native.Status) {
		return newContext(side, kind, o)
	}
}

// New creates a context with default options.
func New(side native.Side, kind native.ConnectionType) (native.Context, native.Status) {
	return newContext(side, kind, options{})
}
