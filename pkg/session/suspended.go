package session

import "io"

// Suspended is a handshake that returned control to the caller. It owns the
// engine and the bound transport until Resume or Abandon is called.
type Suspended struct {
	engine *Engine
}

// Engine returns the live engine, for PeerTrust, ClientCertificateState or
// SetCertificate. It returns nil once the suspension was resumed or
// abandoned.
func (s *Suspended) Engine() *Engine {
	return s.engine
}

// Stream returns the bound transport. It must not be used for I/O while
// the handshake is suspended.
func (s *Suspended) Stream() io.ReadWriter {
	if s.engine == nil {
		return nil
	}
	return s.engine.Stream()
}

// Resume continues the handshake. The suspension is consumed; the returned
// outcome owns the resources from here on.
func (s *Suspended) Resume() Outcome {
	e := s.engine
	if e == nil || e.ctx == nil {
		return Failed{Err: ErrConsumed}
	}
	s.engine = nil
	return e.step()
}

// Abandon drops the handshake without writing anything more to the peer
// and closes the transport. The returned error is the transport's Close
// error, if any.
func (s *Suspended) Abandon() error {
	e := s.engine
	if e == nil {
		return nil
	}
	s.engine = nil

	e.slog.Debug("handshake abandoned",
		"conn_id", e.connID,
		"step", e.steps)
	return e.release(false)
}
