// Package connection drives handshakes to completion on behalf of callers
// that do not want to handle each suspension themselves.
//
// The session package never loops: every WouldBlock, ServerAuthCompleted
// or ClientCertRequested is handed back. Drive supplies the loop, pacing
// would-block resumes with an exponential Backoff:
//
//	base: 1ms, 2ms, 4ms ... capped at 100ms
//	actual_delay = base + random(0, base * 0.25)
//
// The backoff resets whenever the handshake reaches a checkpoint.
//
// Retry re-dials a whole connection with the same Backoff type, using a
// one second initial delay capped at one minute. An authentication
// rejection (ErrPeerRejected) is not retried by default.
package connection
