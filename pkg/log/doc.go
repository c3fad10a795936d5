// Package log provides protocol event logging for TLS sessions.
//
// It is separate from operational logging (slog): a protocol log is a
// complete, machine-readable trace of what a session did, one Event per
// handshake step, state change, transfer or error.
//
// # Usage
//
// Engines accept a Logger:
//
//	// Console, via slog at Debug level
//	eng, _ := session.NewEngine(native.SideClient, native.ConnectionStream,
//	    session.WithLogger(log.NewSlogAdapter(slog.Default())))
//
//	// File, for later analysis with "tlsbridge log"
//	fl, _ := log.NewFileLogger("client.tlog")
//	defer fl.Close()
//
// # Layers
//
//   - Transport: ciphertext pulled and pushed by the bridge (TransferEvent)
//   - Engine: handshake steps and state changes (HandshakeEvent, StateChangeEvent)
//   - Session: plaintext read and written by the application (TransferEvent)
//
// # File Format
//
// Log files are a CBOR sequence of Events with integer map keys, usually
// with a .tlog extension.
package log
