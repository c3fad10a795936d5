// Package version provides the tlsbridge application protocol version and
// its ALPN identifiers.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the application protocol version spoken over a session.
const Current = "1.0"

// ALPNPrefix prefixes every tlsbridge ALPN identifier.
const ALPNPrefix = "tlsbridge/"

// ProtocolVersion represents a parsed "major.minor" protocol version.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (ProtocolVersion, error) {
	majorStr, minorStr, ok := strings.Cut(s, ".")
	if !ok || strings.Contains(minorStr, ".") {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(majorStr, 10, 16)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(minorStr, 10, 16)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return ProtocolVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

// ALPNProtocol returns the ALPN protocol string for a major version:
// "tlsbridge/N".
func ALPNProtocol(major uint16) string {
	return ALPNPrefix + strconv.FormatUint(uint64(major), 10)
}

// MajorFromALPN extracts the major version from an ALPN protocol string.
func MajorFromALPN(alpn string) (uint16, error) {
	suffix, ok := strings.CutPrefix(alpn, ALPNPrefix)
	if !ok {
		return 0, fmt.Errorf("not a tlsbridge ALPN protocol: %q", alpn)
	}
	if suffix == "" {
		return 0, fmt.Errorf("empty major version in ALPN: %q", alpn)
	}

	major, err := strconv.ParseUint(suffix, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid major version in ALPN %q: %w", alpn, err)
	}
	return uint16(major), nil
}

// SupportedALPNProtocols returns the ALPN protocol strings for all supported
// major versions, preferred first. Currently only major version 1.
func SupportedALPNProtocols() []string {
	current, _ := Parse(Current)
	return []string{ALPNProtocol(current.Major)}
}

// CheckNegotiated verifies the protocol a handshake settled on. An empty
// string means the peer did not use ALPN, which is accepted.
func CheckNegotiated(alpn string) error {
	if alpn == "" {
		return nil
	}
	major, err := MajorFromALPN(alpn)
	if err != nil {
		return err
	}
	current, _ := Parse(Current)
	if !current.Compatible(ProtocolVersion{Major: major}) {
		return fmt.Errorf("unsupported protocol version %d (speaking %s)", major, current)
	}
	return nil
}
