package cert

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"time"
)

// Validity periods for generated certificates.
const (
	// AuthorityValidity is the validity period for generated CA certificates.
	AuthorityValidity = 10 * 365 * 24 * time.Hour

	// IdentityValidity is the validity period for issued leaf certificates.
	IdentityValidity = 365 * 24 * time.Hour

	// clockSkew backdates NotBefore so freshly issued certificates verify on
	// peers whose clock is slightly behind.
	clockSkew = time.Hour
)

// Identity errors.
var (
	ErrInvalidCert  = errors.New("invalid certificate")
	ErrNoPrivateKey = errors.New("identity has no private key")
	ErrKeyMismatch  = errors.New("private key does not match certificate")
)

// Identity is a certificate together with the private key it certifies.
type Identity struct {
	// Certificate is the leaf certificate presented to the peer.
	Certificate *x509.Certificate

	// PrivateKey signs the handshake.
	PrivateKey crypto.Signer
}

// NewIdentity pairs a certificate with its private key and checks they match.
func NewIdentity(c *x509.Certificate, key crypto.Signer) (Identity, error) {
	id := Identity{Certificate: c, PrivateKey: key}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Validate reports whether the identity is usable for a handshake.
func (id Identity) Validate() error {
	if id.Certificate == nil {
		return ErrInvalidCert
	}
	if id.PrivateKey == nil {
		return ErrNoPrivateKey
	}
	pub, ok := id.PrivateKey.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(id.Certificate.PublicKey) {
		return ErrKeyMismatch
	}
	return nil
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id.Certificate == nil && id.PrivateKey == nil
}

// TLSCertificate converts the identity and its intermediates into the form
// crypto/tls presents during a handshake.
func (id Identity) TLSCertificate(chain []*x509.Certificate) tls.Certificate {
	raw := make([][]byte, 0, 1+len(chain))
	raw = append(raw, id.Certificate.Raw)
	for _, c := range chain {
		raw = append(raw, c.Raw)
	}
	return tls.Certificate{
		Certificate: raw,
		PrivateKey:  id.PrivateKey,
		Leaf:        id.Certificate,
	}
}

// Info is a human-readable summary of a certificate.
type Info struct {
	CommonName  string
	Issuer      string
	DNSNames    []string
	NotBefore   time.Time
	NotAfter    time.Time
	IsCA        bool
	Fingerprint string
}

// GetInfo summarises a certificate.
func GetInfo(c *x509.Certificate) *Info {
	if c == nil {
		return nil
	}
	return &Info{
		CommonName:  c.Subject.CommonName,
		Issuer:      c.Issuer.CommonName,
		DNSNames:    c.DNSNames,
		NotBefore:   c.NotBefore,
		NotAfter:    c.NotAfter,
		IsCA:        c.IsCA,
		Fingerprint: Fingerprint(c),
	}
}
