// Package native defines the contract between the session layer and a
// handshake/record-layer engine.
//
// An engine is an opaque Context driven entirely through status-returning
// calls. It never touches a transport directly: ciphertext moves through the
// ReadFunc and WriteFunc upcalls installed with SetIOFuncs, each of which
// receives the ConnectionRef installed with SetConnection.
//
// Status codes mirror the Secure Transport numbering, including the three
// handshake interruption codes (StatusWouldBlock, StatusPeerAuthCompleted and
// StatusClientCertRequested) after which Handshake may be called again.
package native
