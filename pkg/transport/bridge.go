package transport

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/mash-protocol/tlsbridge/pkg/log"
	"github.com/mash-protocol/tlsbridge/pkg/native"
)

// ErrReleased is returned by Release after the first call.
var ErrReleased = errors.New("transport: bridge already released")

// Flusher is implemented by transports that buffer outgoing data.
type Flusher interface {
	Flush() error
}

// Bridge adapts a caller-owned duplex stream to the pull/push contract of a
// native engine.
//
// Pull and Push keep transferring until the buffer is done or the stream
// reports end of data, an error, or would-block. Bytes moved before the
// stopping condition are always reported alongside its status. The error
// behind a non-success status is captured and kept until TakeError, so the
// caller can surface it instead of the engine's coarse code.
//
// A Bridge is not safe for concurrent use.
type Bridge struct {
	stream   io.ReadWriter
	err      error
	released bool

	logger log.Logger
	connID string
	role   log.Role
	remote string
}

// NewBridge takes ownership of stream.
func NewBridge(stream io.ReadWriter) *Bridge {
	b := &Bridge{
		stream: stream,
		logger: log.NoopLogger{},
	}
	if nc, ok := stream.(net.Conn); ok && nc.RemoteAddr() != nil {
		b.remote = nc.RemoteAddr().String()
	}
	return b
}

// SetLogger attaches a protocol logger. Every Pull and Push is recorded as a
// transport-layer transfer event.
func (b *Bridge) SetLogger(logger log.Logger, connID string, role log.Role) {
	b.logger = log.OrNoop(logger)
	b.connID = connID
	b.role = role
}

// Stream returns the owned transport. It must not be used for I/O while the
// bridge is bound to an engine.
func (b *Bridge) Stream() io.ReadWriter {
	return b.stream
}

// Pull fills buf from the stream. A read that returns no data and no error
// is treated as the stream having closed, as io.EOF is.
func (b *Bridge) Pull(buf []byte) (int, native.Status) {
	var (
		n      int
		status = native.StatusSuccess
	)
	for n < len(buf) {
		m, err := b.stream.Read(buf[n:])
		n += m
		if err != nil {
			if errors.Is(err, io.EOF) {
				if n < len(buf) {
					status = native.StatusClosedNoNotify
				}
				break
			}
			status = b.capture(err)
			break
		}
		if m == 0 {
			status = native.StatusClosedNoNotify
			break
		}
	}

	b.logTransfer(log.DirectionIn, len(buf), n, status)
	return n, status
}

// Push drains buf to the stream. A write that makes no progress without
// reporting an error is treated as the stream having closed.
func (b *Bridge) Push(buf []byte) (int, native.Status) {
	var (
		n      int
		status = native.StatusSuccess
	)
	for n < len(buf) {
		m, err := b.stream.Write(buf[n:])
		n += m
		if err != nil {
			status = b.capture(err)
			break
		}
		if m == 0 {
			status = native.StatusClosedNoNotify
			break
		}
	}

	b.logTransfer(log.DirectionOut, len(buf), n, status)
	return n, status
}

// capture stores err and returns its classification. A later error
// replaces an earlier one that was never taken.
func (b *Bridge) capture(err error) native.Status {
	b.err = err
	return Classify(err)
}

// Err returns the captured error without clearing it.
func (b *Bridge) Err() error {
	return b.err
}

// TakeError returns the captured error and clears it.
func (b *Bridge) TakeError() error {
	err := b.err
	b.err = nil
	return err
}

// Flush delegates to the stream's Flush, if it has one.
func (b *Bridge) Flush() error {
	if f, ok := b.stream.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// Release closes the stream if it implements io.Closer. Only the first call
// has any effect.
func (b *Bridge) Release() error {
	if b.released {
		return ErrReleased
	}
	b.released = true
	if c, ok := b.stream.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (b *Bridge) logTransfer(dir log.Direction, requested, transferred int, status native.Status) {
	ev := &log.TransferEvent{
		Requested:   requested,
		Transferred: transferred,
	}
	if status != native.StatusSuccess {
		ev.Status = int32(status)
		ev.StatusName = status.String()
	}
	b.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: b.connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryTransfer,
		LocalRole:    b.role,
		RemoteAddr:   b.remote,
		Transfer:     ev,
	})
}
