package session

import (
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/mash-protocol/tlsbridge/pkg/log"
	"github.com/mash-protocol/tlsbridge/pkg/native"
	"github.com/mash-protocol/tlsbridge/pkg/transport"
)

// Handshake takes ownership of stream and of the engine, binds the stream
// to the engine and performs the first handshake step.
//
// stream may be blocking or non-blocking. If it implements io.Closer it is
// closed exactly once when the resulting Session is closed, the Suspended
// handshake is abandoned, or the attempt fails.
func (e *Engine) Handshake(stream io.ReadWriter) Outcome {
	if e.ctx == nil || e.bridge != nil {
		transport.NewBridge(stream).Release()
		return Failed{Err: ErrConsumed}
	}

	// Move the native instance; e is consumed from here on.
	b := &Engine{
		ctx:     e.ctx,
		side:    e.side,
		kind:    e.kind,
		factory: e.factory,
		logger:  e.logger,
		slog:    e.slog,
		connID:  uuid.NewString(),
		last:    native.StateIdle,
	}
	e.ctx = nil

	b.bridge = transport.NewBridge(stream)
	b.bridge.SetLogger(b.logger, b.connID, b.role())
	b.id = bridges.Insert(b.bridge)

	if err := check("set io funcs", b.ctx.SetIOFuncs(pull, push)); err != nil {
		b.release(false)
		return Failed{Err: err}
	}
	if err := check("set connection", b.ctx.SetConnection(native.ConnectionRef(b.id))); err != nil {
		b.release(false)
		return Failed{Err: err}
	}

	b.slog.Debug("handshake started",
		"conn_id", b.connID,
		"side", b.side.String(),
		"kind", b.kind.String())
	return b.step()
}

// step runs the native handshake once and wraps the result.
func (e *Engine) step() Outcome {
	e.steps++
	e.bridge.TakeError()

	start := time.Now()
	st := e.ctx.Handshake()
	elapsed := time.Since(start)

	var out Outcome
	switch st {
	case native.StatusSuccess:
		out = Ready{Session: &Session{engine: e}}
	case native.StatusPeerAuthCompleted:
		out = ServerAuthCompleted{Suspended: &Suspended{engine: e}}
	case native.StatusClientCertRequested:
		out = ClientCertRequested{Suspended: &Suspended{engine: e}}
	case native.StatusWouldBlock:
		// The would-block is reported through the outcome, not as an error.
		e.bridge.TakeError()
		out = WouldBlock{Suspended: &Suspended{engine: e}}
	default:
		err := e.failure("handshake", st)
		e.logError("handshake", err, st)
		e.logStep(Failed{}, st, elapsed)
		e.release(false)
		return Failed{Err: err}
	}

	e.logStep(out, st, elapsed)
	e.noteState("handshake " + out.Kind())
	return out
}

// failure builds the error for a non-success status. A transport error
// captured during the operation wins over the engine's code.
func (e *Engine) failure(op string, st native.Status) error {
	if err := e.bridge.TakeError(); err != nil {
		return err
	}
	return &EngineError{Op: op, Status: st}
}

// release tears the binding down: optional close notification, disposal of
// the native instance, then removal of the bridge from the registry, which
// closes the transport. It runs at most once per bound engine.
func (e *Engine) release(notify bool) error {
	if e.ctx == nil {
		return nil
	}

	if notify {
		if st := e.ctx.Close(); st != native.StatusSuccess {
			e.slog.Warn("close notify failed",
				"conn_id", e.connID,
				"status", st.String())
		}
	}
	e.noteState("release")
	e.ctx.Dispose()
	e.ctx = nil

	b, err := bridges.Remove(e.id)
	if err != nil {
		return err
	}
	return b.Release()
}

func (e *Engine) role() log.Role {
	if e.side == native.SideClient {
		return log.RoleClient
	}
	return log.RoleServer
}

func (e *Engine) peerName() string {
	name, _ := e.ctx.PeerDomainName()
	return name
}

func (e *Engine) logStep(out Outcome, st native.Status, elapsed time.Duration) {
	ev := &log.HandshakeEvent{
		Step:     e.steps,
		Outcome:  out.Kind(),
		Duration: elapsed,
	}
	if st != native.StatusSuccess {
		ev.Status = int32(st)
	} else {
		if c, cst := e.ctx.NegotiatedCipher(); cst == native.StatusSuccess {
			ev.Cipher = c.String()
		}
		if v, vst := e.ctx.NegotiatedProtocolVersion(); vst == native.StatusSuccess {
			ev.Version = v.String()
		}
	}

	e.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: e.connID,
		Layer:        log.LayerEngine,
		Category:     log.CategoryHandshake,
		LocalRole:    e.role(),
		PeerName:     e.peerName(),
		Handshake:    ev,
	})
	e.slog.Debug("handshake step",
		"conn_id", e.connID,
		"step", e.steps,
		"outcome", out.Kind(),
		"status", st.String(),
		"duration", elapsed)
}

// noteState logs a state change event if the native state moved since the
// last call.
func (e *Engine) noteState(reason string) {
	s, st := e.ctx.SessionState()
	if st != native.StatusSuccess || s == e.last {
		return
	}
	e.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: e.connID,
		Layer:        log.LayerEngine,
		Category:     log.CategoryState,
		LocalRole:    e.role(),
		StateChange: &log.StateChangeEvent{
			OldState: e.last.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
	e.last = s
}

func (e *Engine) logError(op string, err error, st native.Status) {
	code := int(st)
	e.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: e.connID,
		Layer:        log.LayerEngine,
		Category:     log.CategoryError,
		LocalRole:    e.role(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerEngine,
			Message: err.Error(),
			Code:    &code,
			Context: op,
		},
	})
}
