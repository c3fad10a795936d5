package transport

import "io"

// Conn is the stream shape PipeConn provides: a closable, flushable duplex
// byte stream.
type Conn interface {
	io.ReadWriteCloser
	Flusher
}

// Compile-time interface satisfaction checks.
var (
	_ Conn  = (*PipeConn)(nil)
	_ error = ErrWouldBlock
)
