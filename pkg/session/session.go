package session

import (
	"io"
	"net"
	"time"

	"github.com/mash-protocol/tlsbridge/pkg/log"
	"github.com/mash-protocol/tlsbridge/pkg/native"
)

// Session is an established TLS stream. It is only created by a handshake
// that reported success.
//
// A Session is not safe for concurrent use.
type Session struct {
	engine *Engine
	closed bool
}

var _ io.ReadWriteCloser = (*Session)(nil)

// Engine returns the engine backing the session. Its getters report the
// negotiated parameters; after Close they return ErrConsumed.
func (s *Session) Engine() *Engine {
	return s.engine
}

// Stream returns the bound transport. It must not be used for I/O while the
// session is open.
func (s *Session) Stream() io.ReadWriter {
	return s.engine.Stream()
}

// Read reads decrypted application data. End of stream is always (0, io.EOF),
// whether the peer sent close_notify, reset the connection or simply went
// away.
func (s *Session) Read(p []byte) (int, error) {
	if s.closed {
		return 0, net.ErrClosed
	}
	e := s.engine
	e.bridge.TakeError()

	n, st := e.ctx.Read(p)
	e.logTransfer(log.DirectionIn, len(p), n, st)
	if n > 0 || st == native.StatusSuccess {
		return n, nil
	}
	if st.Closed() {
		e.bridge.TakeError()
		e.noteState("read end of stream")
		return 0, io.EOF
	}

	err := e.failure("read", st)
	if st != native.StatusWouldBlock {
		e.logError("read", err, st)
		e.noteState("read failed")
	}
	return 0, err
}

// Write encrypts p and sends it. When a non-blocking transport stops
// accepting data part way, the rest of the ciphertext is held by the engine
// and Write still reports all of p as written. Held data is sent first by
// the next Write, Flush or Close, and those report the would-block error
// while the transport stays blocked.
func (s *Session) Write(p []byte) (int, error) {
	if s.closed {
		return 0, net.ErrClosed
	}
	e := s.engine
	e.bridge.TakeError()

	n, st := e.ctx.Write(p)
	e.logTransfer(log.DirectionOut, len(p), n, st)
	if st == native.StatusSuccess || (st == native.StatusWouldBlock && n > 0) {
		return n, nil
	}

	err := e.failure("write", st)
	if st != native.StatusWouldBlock {
		e.logError("write", err, st)
		e.noteState("write failed")
	}
	return n, err
}

// Flush sends ciphertext still held by the engine, then flushes the
// transport.
func (s *Session) Flush() error {
	if s.closed {
		return net.ErrClosed
	}
	if _, err := s.Write(nil); err != nil {
		return err
	}
	return s.engine.bridge.Flush()
}

// Close sends close_notify on a best-effort basis and closes the transport.
// Only the transport's Close error is returned. Later calls return nil.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	e := s.engine
	e.slog.Debug("session closed",
		"conn_id", e.connID)
	return e.release(true)
}

func (e *Engine) logTransfer(dir log.Direction, requested, transferred int, st native.Status) {
	ev := &log.TransferEvent{
		Requested:   requested,
		Transferred: transferred,
	}
	if st != native.StatusSuccess {
		ev.Status = int32(st)
		ev.StatusName = st.String()
	}
	e.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: e.connID,
		Direction:    dir,
		Layer:        log.LayerSession,
		Category:     log.CategoryTransfer,
		LocalRole:    e.role(),
		Transfer:     ev,
	})
}
