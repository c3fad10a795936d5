package session

// Outcome is the result of a handshake step. It is one of Ready,
// ServerAuthCompleted, ClientCertRequested, WouldBlock or Failed. Only
// Failed carries an error; the three suspensions hand the engine and the
// transport back to the caller until Resume or Abandon.
type Outcome interface {
	// Kind names the outcome, e.g. "READY".
	Kind() string

	isOutcome()
}

// Ready carries the established session.
type Ready struct {
	Session *Session
}

// ServerAuthCompleted is returned when the peer's chain has arrived and a
// break-on-auth option is set. Inspect Suspended.Engine().PeerTrust() and
// then resume or abandon.
type ServerAuthCompleted struct {
	Suspended *Suspended
}

// ClientCertRequested is returned when the server asked for a client
// certificate. Set one on Suspended.Engine() if desired, then resume.
type ClientCertRequested struct {
	Suspended *Suspended
}

// WouldBlock is returned when a non-blocking transport could not make
// progress. Resume once the transport is ready.
type WouldBlock struct {
	Suspended *Suspended
}

// Failed ends the handshake attempt. The transport has already been
// released.
type Failed struct {
	Err error
}

func (Ready) Kind() string               { return "READY" }
func (ServerAuthCompleted) Kind() string { return "SERVER_AUTH_COMPLETED" }
func (ClientCertRequested) Kind() string { return "CLIENT_CERT_REQUESTED" }
func (WouldBlock) Kind() string          { return "WOULD_BLOCK" }
func (Failed) Kind() string              { return "FAILED" }

func (Ready) isOutcome()               {}
func (ServerAuthCompleted) isOutcome() {}
func (ClientCertRequested) isOutcome() {}
func (WouldBlock) isOutcome()          {}
func (Failed) isOutcome()              {}

// AsSuspended returns the suspended handshake carried by o, if any.
func AsSuspended(o Outcome) (*Suspended, bool) {
	switch o := o.(type) {
	case ServerAuthCompleted:
		return o.Suspended, true
	case ClientCertRequested:
		return o.Suspended, true
	case WouldBlock:
		return o.Suspended, true
	default:
		return nil, false
	}
}
