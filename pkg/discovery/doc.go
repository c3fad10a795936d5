// Package discovery implements mDNS/DNS-SD discovery for tlsbridge servers.
//
// # Service (_tlsbridge._tcp)
//
// A server advertises one instance per listener. The instance name is
// chosen by the server; by default it is "tlsbridge-" followed by the
// short fingerprint of its certificate.
//
// TXT records:
//
//	fp    SHA-256 fingerprint of the leaf certificate (required, 64 hex chars)
//	pn    peer name the client should verify (optional)
//	alpn  comma-separated ALPN protocols (optional)
//	v     minimum TLS version, "1.2" or "1.3" (optional)
//
// Clients use the fingerprint to pin the server on first contact, which
// makes self-signed identities usable without a shared CA.
//
// # Pairing Code
//
// A PairingCode carries the same information out of band:
//
//	TLSB:<version>:<host:port>:<fingerprint>
package discovery
