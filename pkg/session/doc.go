// Package session drives a native TLS engine over a caller-supplied byte
// stream.
//
// An Engine is created Idle and configured, then Handshake binds a stream to
// it and steps the handshake once. The result is an Outcome:
//
//	Ready                 handshake done, plaintext I/O through Session
//	ServerAuthCompleted   peer chain received; inspect PeerTrust, then Resume
//	ClientCertRequested   server wants a certificate; SetCertificate, then Resume
//	WouldBlock            non-blocking stream has no data; Resume later
//	Failed                terminal for this attempt
//
// Ownership moves with each step. Handshake consumes the Engine, Resume
// consumes the Suspended value, and the stream is closed exactly once, by
// Session.Close, Suspended.Abandon or a Failed outcome.
//
// Streams are bound to engines through a process-wide registry keyed by an
// opaque ID, which is what the engine's pull and push upcalls carry.
package session
