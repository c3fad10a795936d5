package cert

import (
	"crypto/x509"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Trust evaluation errors.
var (
	ErrEmptyChain          = errors.New("peer presented no certificates")
	ErrCertExpired         = errors.New("certificate has expired")
	ErrCertNotYetValid     = errors.New("certificate is not yet valid")
	ErrInvalidChain        = errors.New("invalid certificate chain")
	ErrHostnameMismatch    = errors.New("certificate does not match host name")
	ErrFingerprintMismatch = errors.New("certificate fingerprint mismatch")
)

// TrustPolicy controls how a Trust is evaluated.
type TrustPolicy struct {
	// Anchors are the trusted roots. When empty the system pool is used.
	Anchors []*x509.Certificate

	// DNSName is the expected host name of the leaf. Empty skips the check.
	DNSName string

	// Usage is the extended key usage the leaf must carry.
	Usage x509.ExtKeyUsage
}

// Trust is a peer certificate chain paired with the policy used to evaluate
// it. Leaf first, followed by the intermediates as presented by the peer.
type Trust struct {
	chain  []*x509.Certificate
	policy TrustPolicy
}

// NewTrust wraps a peer chain. The chain slice is copied.
func NewTrust(chain []*x509.Certificate, policy TrustPolicy) *Trust {
	policy.Anchors = slices.Clone(policy.Anchors)
	return &Trust{
		chain:  slices.Clone(chain),
		policy: policy,
	}
}

// Certificates returns a copy of the chain.
func (t *Trust) Certificates() []*x509.Certificate {
	return slices.Clone(t.chain)
}

// Len returns the number of certificates in the chain.
func (t *Trust) Len() int {
	return len(t.chain)
}

// Leaf returns the peer's own certificate, or nil for an empty chain.
func (t *Trust) Leaf() *x509.Certificate {
	if len(t.chain) == 0 {
		return nil
	}
	return t.chain[0]
}

// Policy returns the evaluation policy.
func (t *Trust) Policy() TrustPolicy {
	p := t.policy
	p.Anchors = slices.Clone(p.Anchors)
	return p
}

// SetAnchors replaces the trusted roots.
func (t *Trust) SetAnchors(anchors []*x509.Certificate) {
	t.policy.Anchors = slices.Clone(anchors)
}

// SetDNSName replaces the expected host name.
func (t *Trust) SetDNSName(name string) {
	t.policy.DNSName = name
}

// Evaluate verifies the chain against the policy at the current time.
func (t *Trust) Evaluate() error {
	return t.EvaluateAt(time.Now())
}

// EvaluateAt verifies the chain against the policy at the given time.
func (t *Trust) EvaluateAt(now time.Time) error {
	leaf := t.Leaf()
	if leaf == nil {
		return ErrEmptyChain
	}

	if now.Before(leaf.NotBefore) {
		return ErrCertNotYetValid
	}
	if now.After(leaf.NotAfter) {
		return ErrCertExpired
	}

	var roots *x509.CertPool
	if len(t.policy.Anchors) > 0 {
		roots = x509.NewCertPool()
		for _, c := range t.policy.Anchors {
			roots.AddCert(c)
		}
	}
	intermediates := x509.NewCertPool()
	for _, c := range t.chain[1:] {
		intermediates.AddCert(c)
	}

	usage := t.policy.Usage
	if usage == 0 {
		usage = x509.ExtKeyUsageAny
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		DNSName:       t.policy.DNSName,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{usage},
	}
	if _, err := leaf.Verify(opts); err != nil {
		var hostErr x509.HostnameError
		if errors.As(err, &hostErr) {
			return fmt.Errorf("%w: %v", ErrHostnameMismatch, err)
		}
		return fmt.Errorf("%w: %v", ErrInvalidChain, err)
	}
	return nil
}

// MatchFingerprint checks the leaf against a pinned SHA-256 fingerprint.
// Colon-separated and uppercase forms are accepted.
func (t *Trust) MatchFingerprint(fp string) error {
	leaf := t.Leaf()
	if leaf == nil {
		return ErrEmptyChain
	}
	want, ok := NormalizeFingerprint(fp)
	if !ok {
		return fmt.Errorf("%w: malformed pin %q", ErrFingerprintMismatch, fp)
	}
	if got := Fingerprint(leaf); got != want {
		return fmt.Errorf("%w: got %s", ErrFingerprintMismatch, got)
	}
	return nil
}
