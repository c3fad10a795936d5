// Package gotls implements native.Context on top of crypto/tls.
//
// crypto/tls drives a handshake to completion in a single call and talks to
// a net.Conn. To expose the pull/push contract and the suspend points of a
// native engine, each handshake runs inside an iter.Pull coroutine. The
// coroutine yields a status whenever the handshake has to pause:
//
//   - the transport reported would-block with no progress
//   - the peer chain arrived and a break-on-auth option is set
//   - the server asked for a client certificate and the
//     break-on-cert-requested option is set
//
// Handshake resumes the coroutine and returns the next status. Nothing runs
// between calls, so the engine remains single-threaded from the caller's
// point of view.
//
// Reads from the transport are record-aware: the wire adapter never pulls
// beyond the end of the TLS record crypto/tls is currently assembling. Any
// bytes left in the transport after the handshake therefore stay there for
// the next Read.
//
// Clients can be switched to a uTLS ClientHello with WithClientHello.
package gotls
