package native

import (
	"crypto/tls"
	"fmt"
)

// Side selects which end of the handshake an engine plays.
type Side uint8

const (
	// SideServer accepts a handshake.
	SideServer Side = iota
	// SideClient initiates a handshake.
	SideClient
)

// String returns the side name.
func (s Side) String() string {
	switch s {
	case SideServer:
		return "SERVER"
	case SideClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// ConnectionType selects the record framing.
type ConnectionType uint8

const (
	// ConnectionStream is TLS over a reliable byte stream.
	ConnectionStream ConnectionType = iota
	// ConnectionDatagram is DTLS over an unreliable datagram transport.
	ConnectionDatagram
)

// String returns the connection type name.
func (c ConnectionType) String() string {
	switch c {
	case ConnectionStream:
		return "STREAM"
	case ConnectionDatagram:
		return "DATAGRAM"
	default:
		return "UNKNOWN"
	}
}

// SessionState is the engine's coarse lifecycle state.
type SessionState uint8

const (
	StateIdle SessionState = iota
	StateHandshake
	StateConnected
	StateClosed
	StateAborted
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateHandshake:
		return "HANDSHAKE"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// AuthPolicy controls whether a server requests a client certificate.
type AuthPolicy uint8

const (
	// AuthNever does not request a client certificate.
	AuthNever AuthPolicy = iota
	// AuthAlways requires a client certificate.
	AuthAlways
	// AuthTry requests a client certificate but accepts its absence.
	AuthTry
)

// String returns the policy name.
func (p AuthPolicy) String() string {
	switch p {
	case AuthNever:
		return "NEVER"
	case AuthAlways:
		return "ALWAYS"
	case AuthTry:
		return "TRY"
	default:
		return "UNKNOWN"
	}
}

// ClientCertState tracks the client certificate exchange.
type ClientCertState uint8

const (
	ClientCertNone ClientCertState = iota
	ClientCertRequested
	ClientCertSent
	ClientCertRejected
)

// String returns the state name.
func (s ClientCertState) String() string {
	switch s {
	case ClientCertNone:
		return "NONE"
	case ClientCertRequested:
		return "REQUESTED"
	case ClientCertSent:
		return "SENT"
	case ClientCertRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// SessionOption names a boolean engine option.
type SessionOption uint8

const (
	// OptionBreakOnServerAuth pauses a client handshake once the server chain
	// has been received. Built-in chain verification is skipped; the caller
	// is expected to evaluate the peer trust before resuming.
	OptionBreakOnServerAuth SessionOption = iota

	// OptionBreakOnCertRequested pauses a client handshake when the server
	// requests a client certificate.
	OptionBreakOnCertRequested

	// OptionBreakOnClientAuth pauses a server handshake once the client chain
	// has been received. Built-in client verification is skipped.
	OptionBreakOnClientAuth

	// OptionFalseStart allows application data before the peer's Finished.
	OptionFalseStart

	// OptionSendOneByteRecord splits the first application write into a
	// one-byte record followed by the remainder.
	OptionSendOneByteRecord
)

// AllSessionOptions lists every option identifier in declaration order.
var AllSessionOptions = []SessionOption{
	OptionBreakOnServerAuth,
	OptionBreakOnCertRequested,
	OptionBreakOnClientAuth,
	OptionFalseStart,
	OptionSendOneByteRecord,
}

// String returns the option name.
func (o SessionOption) String() string {
	switch o {
	case OptionBreakOnServerAuth:
		return "BREAK_ON_SERVER_AUTH"
	case OptionBreakOnCertRequested:
		return "BREAK_ON_CERT_REQUESTED"
	case OptionBreakOnClientAuth:
		return "BREAK_ON_CLIENT_AUTH"
	case OptionFalseStart:
		return "FALSE_START"
	case OptionSendOneByteRecord:
		return "SEND_ONE_BYTE_RECORD"
	default:
		return "UNKNOWN"
	}
}

// CipherSuite is an IANA TLS cipher suite code.
type CipherSuite uint16

// String returns the IANA name, or the hex code for unknown suites.
func (c CipherSuite) String() string {
	return tls.CipherSuiteName(uint16(c))
}

// ProtocolVersion is a TLS protocol version code.
type ProtocolVersion uint16

const (
	VersionUnknown ProtocolVersion = 0
	VersionTLS12   ProtocolVersion = tls.VersionTLS12
	VersionTLS13   ProtocolVersion = tls.VersionTLS13
)

// String returns the version name.
func (v ProtocolVersion) String() string {
	switch v {
	case VersionUnknown:
		return "UNKNOWN"
	case VersionTLS12:
		return "TLS1.2"
	case VersionTLS13:
		return "TLS1.3"
	default:
		return fmt.Sprintf("0x%04X", uint16(v))
	}
}
