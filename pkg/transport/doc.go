// Package transport connects native TLS engines to byte streams.
//
// A Bridge owns a caller's io.ReadWriter for as long as it is bound to an
// engine and translates the engine's "fill this buffer" and "drain this
// buffer" upcalls into Read and Write calls:
//
//	engine.Handshake / Read / Write
//	        │ pull(buf) / push(buf)
//	        ▼
//	     Bridge ──► io.ReadWriter (net.Conn, PipeConn, ...)
//
// Transport errors are reduced to four engine statuses by Classify
// (closed-graceful, closed-abrupt, would-block, generic I/O). The original
// error is kept on the Bridge and is what callers eventually see.
//
// Pipe provides an in-memory loopback transport with optional non-blocking
// reads, used to run both ends of a handshake inside one process.
package transport
