package cert

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"strings"
)

// FingerprintLength is the length of a hex-encoded SHA-256 fingerprint.
const FingerprintLength = 2 * sha256.Size

// Fingerprint returns the lowercase hex SHA-256 of the certificate DER.
func Fingerprint(c *x509.Certificate) string {
	hash := sha256.Sum256(c.Raw)
	return hex.EncodeToString(hash[:])
}

// ShortFingerprint returns the first 64 bits of Fingerprint.
func ShortFingerprint(c *x509.Certificate) string {
	return Fingerprint(c)[:16]
}

// NormalizeFingerprint lowercases a fingerprint and strips colon separators,
// returning false if the result is not a full SHA-256 fingerprint.
func NormalizeFingerprint(fp string) (string, bool) {
	fp = strings.ToLower(strings.ReplaceAll(fp, ":", ""))
	if len(fp) != FingerprintLength {
		return "", false
	}
	if _, err := hex.DecodeString(fp); err != nil {
		return "", false
	}
	return fp, true
}
