package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/mash-protocol/tlsbridge/pkg/cert"
)

// Pairing code constants.
const (
	// PairingPrefix starts every pairing code.
	PairingPrefix = "TLSB:"

	// PairingVersion is the current pairing code version.
	PairingVersion = 1
)

// PairingCode tells a client where a server is and which certificate it
// presents.
type PairingCode struct {
	Version     uint8
	Address     string
	Fingerprint string
}

// NewPairingCode validates the address and fingerprint.
func NewPairingCode(address, fingerprint string) (*PairingCode, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPairingCode, err)
	}
	fp, ok := cert.NormalizeFingerprint(fingerprint)
	if !ok {
		return nil, fmt.Errorf("%w: malformed fingerprint", ErrInvalidPairingCode)
	}
	return &PairingCode{
		Version:     PairingVersion,
		Address:     address,
		Fingerprint: fp,
	}, nil
}

// PairingCodeFor builds a pairing code for a discovered service.
func PairingCodeFor(s *Service) (*PairingCode, error) {
	return NewPairingCode(s.Address(), s.Fingerprint)
}

// ParsePairingCode parses a pairing code string.
//
// Format: TLSB:<version>:<host:port>:<fingerprint>
//
// The address may be an IPv6 literal in brackets, so the code is split on
// its first and last colon-separated fields.
func ParsePairingCode(content string) (*PairingCode, error) {
	rest, ok := strings.CutPrefix(content, PairingPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: missing prefix", ErrInvalidPairingCode)
	}

	versionStr, rest, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, fmt.Errorf("%w: missing fields", ErrInvalidPairingCode)
	}
	version, err := strconv.ParseUint(versionStr, 10, 8)
	if err != nil || version < 1 {
		return nil, fmt.Errorf("%w: invalid version", ErrInvalidPairingCode)
	}
	if version != PairingVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidPairingCode, version)
	}

	i := strings.LastIndexByte(rest, ':')
	if i < 0 {
		return nil, fmt.Errorf("%w: missing fields", ErrInvalidPairingCode)
	}
	return NewPairingCode(rest[:i], rest[i+1:])
}

// String returns the pairing code in its textual form.
func (p *PairingCode) String() string {
	return fmt.Sprintf("%s%d:%s:%s", PairingPrefix, p.Version, p.Address, p.Fingerprint)
}
